package link

import (
	"fmt"
	"log/slog"
	"time"

	"go.bug.st/serial"

	"github.com/embedsec/seclink/internal/protocol"
)

// SerialLink binds the protocol to a serial device, 8-N-1. Records are
// delimited by inter-byte silence: block for the first byte, then drain
// until the line goes quiet for frameGap.
type SerialLink struct {
	port     serial.Port
	frameGap time.Duration
	log      *slog.Logger
}

// OpenSerial opens device at the given baud rate. A baud of 0 selects the
// reference 115200.
func OpenSerial(device string, baud int, log *slog.Logger) (*SerialLink, error) {
	if baud == 0 {
		baud = protocol.DefaultBaudRate
	}
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(device, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", device, err)
	}
	log.Info("serial link open", "device", device, "baud", baud)
	return &SerialLink{port: port, frameGap: DefaultFrameGap, log: log}, nil
}

// SetFrameGap overrides the record-delimiting silence interval.
func (l *SerialLink) SetFrameGap(gap time.Duration) {
	if gap > 0 {
		l.frameGap = gap
	}
}

func (l *SerialLink) ReadRecord(buf []byte) (int, error) {
	if err := l.port.SetReadTimeout(serial.NoTimeout); err != nil {
		return 0, fmt.Errorf("set read timeout: %w", err)
	}
	n, err := l.port.Read(buf)
	if err != nil {
		return 0, fmt.Errorf("serial read: %w", err)
	}
	if n == 0 {
		return 0, ErrClosed
	}

	// Drain the rest of the record until the line is quiet.
	if err := l.port.SetReadTimeout(l.frameGap); err != nil {
		return 0, fmt.Errorf("set read timeout: %w", err)
	}
	for n < len(buf) {
		m, err := l.port.Read(buf[n:])
		if err != nil {
			return 0, fmt.Errorf("serial read: %w", err)
		}
		if m == 0 {
			break
		}
		n += m
	}
	return n, nil
}

func (l *SerialLink) WriteRecord(rec []byte) error {
	for len(rec) > 0 {
		n, err := l.port.Write(rec)
		if err != nil {
			return fmt.Errorf("serial write: %w", err)
		}
		rec = rec[n:]
	}
	return l.port.Drain()
}

func (l *SerialLink) Close() error {
	return l.port.Close()
}
