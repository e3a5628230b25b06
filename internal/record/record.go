package record

import (
	"crypto/hmac"
	"crypto/sha256"

	"github.com/embedsec/seclink/internal/protocol"
)

// Framer seals and verifies records. Every record on the link, in either
// direction, is payload followed by HMAC-SHA-256(psk, payload).
type Framer struct {
	key [protocol.PSKSize]byte
}

// NewFramer creates a framer keyed by the pre-shared secret.
func NewFramer(key [protocol.PSKSize]byte) *Framer {
	return &Framer{key: key}
}

// Seal appends the MAC suffix to payload and returns the full record.
// The result reuses payload's backing array when it has capacity.
func (f *Framer) Seal(payload []byte) []byte {
	return append(payload, f.sum(payload)...)
}

// Verify checks the MAC suffix of rec and returns the payload length.
// Records too short to carry a MAC and records whose MAC does not match
// report length 0; the dispatcher treats that as an unroutable record.
func (f *Framer) Verify(rec []byte) int {
	if len(rec) <= protocol.HashSize {
		return 0
	}
	n := len(rec) - protocol.HashSize
	if !hmac.Equal(f.sum(rec[:n]), rec[n:]) {
		return 0
	}
	return n
}

func (f *Framer) sum(data []byte) []byte {
	mac := hmac.New(sha256.New, f.key[:])
	mac.Write(data)
	return mac.Sum(nil)
}
