package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/embedsec/seclink/internal/protocol"
)

func TestDefaults(t *testing.T) {
	cfg := DefaultServerConfig()
	if cfg.Link.Mode != "serial" {
		t.Fatalf("default link mode = %q", cfg.Link.Mode)
	}
	if cfg.Link.Baud != protocol.DefaultBaudRate {
		t.Fatalf("default baud = %d", cfg.Link.Baud)
	}
	if cfg.Device.Mode != "sim" {
		t.Fatalf("default device mode = %q", cfg.Device.Mode)
	}
}

func TestLoadServerConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.yaml")
	data := `
link:
  mode: tcp
  listen: 127.0.0.1:7000
  frame_gap_ms: 50
device:
  mode: sysfs
  led: /sys/class/gpio/gpio21/value
status:
  enabled: true
  listen: 127.0.0.1:9999
log_level: debug
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadServerConfig(path)
	if err != nil {
		t.Fatalf("LoadServerConfig: %v", err)
	}
	if cfg.Link.Mode != "tcp" || cfg.Link.Listen != "127.0.0.1:7000" {
		t.Fatalf("link = %+v", cfg.Link)
	}
	if cfg.Link.FrameGapMS != 50 {
		t.Fatalf("frame gap = %d", cfg.Link.FrameGapMS)
	}
	if cfg.Device.Mode != "sysfs" {
		t.Fatalf("device mode = %q", cfg.Device.Mode)
	}
	if !cfg.Status.Enabled {
		t.Fatal("status API not enabled")
	}
	// Untouched fields keep their defaults.
	if cfg.Device.SimTemperature != 53.25 {
		t.Fatalf("sim temperature = %v", cfg.Device.SimTemperature)
	}
}

func TestLoadMissingFileKeepsDefaults(t *testing.T) {
	cfg, err := LoadServerConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadServerConfig: %v", err)
	}
	if cfg.Link.Mode != "serial" {
		t.Fatalf("link mode = %q, want serial default", cfg.Link.Mode)
	}
}

func TestPSKResolveDefault(t *testing.T) {
	key, err := PSKConfig{}.Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if key != protocol.DefaultPSK {
		t.Fatal("empty PSK config did not select the compiled-in secret")
	}
}

func TestPSKResolveHex(t *testing.T) {
	hex := "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"
	key, err := PSKConfig{Hex: hex}.Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if key[0] != 0x00 || key[31] != 0x1f {
		t.Fatalf("resolved key = %x", key)
	}

	if _, err := PSKConfig{Hex: "abcd"}.Resolve(); err == nil {
		t.Fatal("accepted short hex PSK")
	}
	if _, err := PSKConfig{Hex: "zz"}.Resolve(); err == nil {
		t.Fatal("accepted invalid hex PSK")
	}
}

func TestPSKResolvePassphrase(t *testing.T) {
	a, err := PSKConfig{Passphrase: "correct horse"}.Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	b, err := PSKConfig{Passphrase: "correct horse"}.Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if a != b {
		t.Fatal("same passphrase derived different keys")
	}
	if a == protocol.DefaultPSK {
		t.Fatal("passphrase derived the default key")
	}

	c, err := PSKConfig{Passphrase: "other"}.Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if a == c {
		t.Fatal("different passphrases derived the same key")
	}
}

func TestPSKResolveRejectsAmbiguity(t *testing.T) {
	_, err := PSKConfig{Hex: "00", Passphrase: "x"}.Resolve()
	if err == nil {
		t.Fatal("accepted both hex and passphrase")
	}
}
