package device

import "sync"

// Level is an indicator output level.
type Level int

const (
	Low Level = iota
	High
)

func (l Level) String() string {
	if l == High {
		return "ON"
	}
	return "OFF"
}

// Device is the side-effect surface the outer loop drives on behalf of the
// protocol engine.
type Device interface {
	// ToggleLED flips the indicator output and returns the level read back
	// from the hardware.
	ToggleLED() (Level, error)

	// Temperature reads the on-die sensor in °C.
	Temperature() (float64, error)

	// FaultSignal raises or clears the out-of-band fault line. Informational
	// only; errors are ignored.
	FaultSignal(on bool)
}

// Sim is an in-memory device used by tests and by deployments without
// hardware attached.
type Sim struct {
	mu    sync.Mutex
	led   Level
	temp  float64
	fault bool
}

// NewSim returns a simulated device reporting the given temperature.
func NewSim(temp float64) *Sim {
	return &Sim{temp: temp}
}

func (s *Sim) ToggleLED() (Level, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.led == Low {
		s.led = High
	} else {
		s.led = Low
	}
	return s.led, nil
}

func (s *Sim) Temperature() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.temp, nil
}

func (s *Sim) FaultSignal(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = on
}

// SetTemperature changes the reported temperature.
func (s *Sim) SetTemperature(temp float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.temp = temp
}

// LED returns the current indicator level.
func (s *Sim) LED() Level {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.led
}

// Fault returns the current fault line state.
func (s *Sim) Fault() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fault
}
