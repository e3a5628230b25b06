package link

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"
)

// TCPLink carries the protocol over a TCP stream. TCP has no record
// boundaries, so records are delimited the same way as on the serial line:
// block for the first bytes, then drain until nothing arrives for frameGap.
// The strict request/response pairing of the protocol keeps records from
// running into each other.
type TCPLink struct {
	conn     net.Conn
	frameGap time.Duration
	log      *slog.Logger
}

// NewTCPLink wraps an established connection.
func NewTCPLink(conn net.Conn, log *slog.Logger) *TCPLink {
	return &TCPLink{conn: conn, frameGap: DefaultFrameGap, log: log}
}

// DialTCP connects to addr and returns the link.
func DialTCP(addr string, log *slog.Logger) (*TCPLink, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	log.Info("tcp link connected", "addr", addr)
	return NewTCPLink(conn, log), nil
}

// SetFrameGap overrides the record-delimiting silence interval.
func (l *TCPLink) SetFrameGap(gap time.Duration) {
	if gap > 0 {
		l.frameGap = gap
	}
}

func (l *TCPLink) ReadRecord(buf []byte) (int, error) {
	if err := l.conn.SetReadDeadline(time.Time{}); err != nil {
		return 0, fmt.Errorf("clear read deadline: %w", err)
	}
	n, err := l.conn.Read(buf)
	if err != nil {
		return 0, readErr(err)
	}

	for n < len(buf) {
		if err := l.conn.SetReadDeadline(time.Now().Add(l.frameGap)); err != nil {
			return 0, fmt.Errorf("set read deadline: %w", err)
		}
		m, err := l.conn.Read(buf[n:])
		n += m
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				break
			}
			return 0, readErr(err)
		}
	}
	if err := l.conn.SetReadDeadline(time.Time{}); err != nil {
		return 0, fmt.Errorf("clear read deadline: %w", err)
	}
	return n, nil
}

func (l *TCPLink) WriteRecord(rec []byte) error {
	if _, err := l.conn.Write(rec); err != nil {
		return fmt.Errorf("tcp write: %w", err)
	}
	return nil
}

func (l *TCPLink) Close() error {
	return l.conn.Close()
}

func readErr(err error) error {
	if errors.Is(err, net.ErrClosed) {
		return ErrClosed
	}
	return fmt.Errorf("tcp read: %w", err)
}
