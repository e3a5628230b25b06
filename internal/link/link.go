package link

import (
	"errors"
	"time"
)

// Link is the byte transport under the protocol. It is record-oriented:
// ReadRecord blocks until one record has arrived and returns its length,
// WriteRecord hands a full record to the transport atomically. The protocol
// is half-duplex over the link; the engine never issues concurrent calls.
type Link interface {
	// ReadRecord blocks until a record is available and copies it into buf.
	// A record larger than buf is truncated to len(buf); the MAC check
	// downstream discards it.
	ReadRecord(buf []byte) (int, error)

	// WriteRecord writes the whole record.
	WriteRecord(p []byte) error

	// Close releases the transport. A blocked ReadRecord returns ErrClosed.
	Close() error
}

// ErrClosed is returned by link operations after Close.
var ErrClosed = errors.New("link: closed")

// DefaultFrameGap is the inter-byte silence that delimits records on
// stream transports. At 115200 baud a byte arrives roughly every 90µs;
// anything an order of magnitude above that marks a record boundary.
const DefaultFrameGap = 20 * time.Millisecond
