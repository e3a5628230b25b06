package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	"golang.org/x/crypto/pbkdf2"
	"gopkg.in/yaml.v3"

	"github.com/embedsec/seclink/internal/protocol"
)

// pskSalt and pskIterations parameterize passphrase-derived secrets. Both
// peers derive the same key from the same passphrase.
var pskSalt = []byte("seclink.psk.v1")

const pskIterations = 4096

// ServerConfig is the configuration for seclink-server.
type ServerConfig struct {
	Link     LinkConfig   `yaml:"link"`
	Device   DeviceConfig `yaml:"device"`
	Status   StatusConfig `yaml:"status"`
	PSK      PSKConfig    `yaml:"psk"`
	LogLevel string       `yaml:"log_level"`
}

// ClientConfig is the configuration for seclink-client.
type ClientConfig struct {
	Link     LinkConfig `yaml:"link"`
	PSK      PSKConfig  `yaml:"psk"`
	LogLevel string     `yaml:"log_level"`
}

// LinkConfig selects and parameterizes the byte transport.
type LinkConfig struct {
	// Mode is "serial" or "tcp".
	Mode string `yaml:"mode"`
	// Device is the serial device path (serial mode).
	Device string `yaml:"device"`
	// Baud is the serial speed; 0 selects the reference 115200.
	Baud int `yaml:"baud"`
	// Listen is the accept address (tcp mode, server side).
	Listen string `yaml:"listen"`
	// Addr is the dial address (tcp mode, client side).
	Addr string `yaml:"addr"`
	// FrameGapMS overrides the record-delimiting silence, in milliseconds.
	FrameGapMS int `yaml:"frame_gap_ms"`
}

// DeviceConfig selects the DEVICE binding.
type DeviceConfig struct {
	// Mode is "sim" or "sysfs".
	Mode string `yaml:"mode"`
	// SimTemperature is the temperature the simulated device reports.
	SimTemperature float64 `yaml:"sim_temperature"`
	// LED, Fault, Thermal are the sysfs files backing each line.
	LED     string `yaml:"led"`
	Fault   string `yaml:"fault"`
	Thermal string `yaml:"thermal"`
}

// StatusConfig configures the read-only diagnostics API.
type StatusConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// PSKConfig overrides the compiled-in pre-shared secret. At most one of
// Hex and Passphrase may be set.
type PSKConfig struct {
	Hex        string `yaml:"hex"`
	Passphrase string `yaml:"passphrase"`
}

// Resolve returns the 32-byte secret this configuration selects.
func (p PSKConfig) Resolve() ([protocol.PSKSize]byte, error) {
	var key [protocol.PSKSize]byte
	switch {
	case p.Hex != "" && p.Passphrase != "":
		return key, fmt.Errorf("psk: hex and passphrase are mutually exclusive")
	case p.Hex != "":
		b, err := hex.DecodeString(p.Hex)
		if err != nil {
			return key, fmt.Errorf("psk: %w", err)
		}
		if len(b) != protocol.PSKSize {
			return key, fmt.Errorf("psk: %d bytes, want %d", len(b), protocol.PSKSize)
		}
		copy(key[:], b)
	case p.Passphrase != "":
		copy(key[:], pbkdf2.Key([]byte(p.Passphrase), pskSalt, pskIterations, protocol.PSKSize, sha256.New))
	default:
		key = protocol.DefaultPSK
	}
	return key, nil
}

// DefaultServerConfig returns a config with sensible defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Link: LinkConfig{
			Mode:   "serial",
			Device: "/dev/ttyUSB0",
			Baud:   protocol.DefaultBaudRate,
		},
		Device: DeviceConfig{
			Mode:           "sim",
			SimTemperature: 53.25,
		},
		Status: StatusConfig{
			Enabled: false,
			Listen:  "127.0.0.1:9176",
		},
		LogLevel: "info",
	}
}

// DefaultClientConfig returns a config with sensible defaults.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Link: LinkConfig{
			Mode:   "serial",
			Device: "/dev/ttyUSB0",
			Baud:   protocol.DefaultBaudRate,
		},
		LogLevel: "info",
	}
}

// LoadServerConfig reads path over the defaults. A missing file is not an
// error; the defaults then stand.
func LoadServerConfig(path string) (*ServerConfig, error) {
	cfg := DefaultServerConfig()
	if err := load(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadClientConfig reads path over the defaults.
func LoadClientConfig(path string) (*ClientConfig, error) {
	cfg := DefaultClientConfig()
	if err := load(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func load(path string, out any) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}
