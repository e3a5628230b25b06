package device

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Sysfs drives real hardware through the Linux sysfs interface: GPIO value
// files for the indicator and fault lines, a thermal zone for the sensor.
// A written level is read back before success is reported.
type Sysfs struct {
	mu          sync.Mutex
	ledPath     string
	faultPath   string
	thermalPath string
	log         *slog.Logger
}

// SysfsPaths names the files backing each line. Fault and Thermal may be
// empty; the fault line then becomes a no-op and the temperature an
// error.
type SysfsPaths struct {
	LED     string
	Fault   string
	Thermal string
}

// NewSysfs validates the indicator path and returns the device.
func NewSysfs(paths SysfsPaths, log *slog.Logger) (*Sysfs, error) {
	if paths.LED == "" {
		return nil, fmt.Errorf("device: no LED value file")
	}
	if _, err := os.Stat(paths.LED); err != nil {
		return nil, fmt.Errorf("device: LED value file: %w", err)
	}
	return &Sysfs{
		ledPath:     paths.LED,
		faultPath:   paths.Fault,
		thermalPath: paths.Thermal,
		log:         log,
	}, nil
}

func (d *Sysfs) ToggleLED() (Level, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	cur, err := readLine(d.ledPath)
	if err != nil {
		return Low, fmt.Errorf("read LED: %w", err)
	}
	next := "1"
	if cur == "1" {
		next = "0"
	}
	if err := os.WriteFile(d.ledPath, []byte(next), 0o644); err != nil {
		return Low, fmt.Errorf("write LED: %w", err)
	}

	back, err := readLine(d.ledPath)
	if err != nil {
		return Low, fmt.Errorf("read back LED: %w", err)
	}
	if back != next {
		return Low, fmt.Errorf("LED level did not stick: wrote %s, read %s", next, back)
	}
	if back == "1" {
		return High, nil
	}
	return Low, nil
}

func (d *Sysfs) Temperature() (float64, error) {
	if d.thermalPath == "" {
		return 0, fmt.Errorf("device: no thermal zone configured")
	}
	raw, err := readLine(d.thermalPath)
	if err != nil {
		return 0, fmt.Errorf("read thermal zone: %w", err)
	}
	milli, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse thermal zone %q: %w", raw, err)
	}
	// Thermal zones report millidegrees.
	return float64(milli) / 1000, nil
}

func (d *Sysfs) FaultSignal(on bool) {
	if d.faultPath == "" {
		return
	}
	val := "0"
	if on {
		val = "1"
	}
	if err := os.WriteFile(d.faultPath, []byte(val), 0o644); err != nil {
		d.log.Warn("fault line write failed", "err", err)
	}
}

func readLine(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
