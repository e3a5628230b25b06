package session

import (
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/embedsec/seclink/internal/link"
	"github.com/embedsec/seclink/internal/protocol"
	"github.com/embedsec/seclink/internal/record"
)

// RequestTag tells the outer loop what the peer asked for in one step.
type RequestTag int

const (
	TagNone RequestTag = iota
	TagHandshakePhase1
	TagHandshakePhase2
	TagToggleLED
	TagGetTemperature
	TagClose
	TagError
)

func (t RequestTag) String() string {
	switch t {
	case TagNone:
		return "none"
	case TagHandshakePhase1:
		return "handshake_phase1"
	case TagHandshakePhase2:
		return "handshake_phase2"
	case TagToggleLED:
		return "toggle_led"
	case TagGetTemperature:
		return "get_temperature"
	case TagClose:
		return "close"
	case TagError:
		return "error"
	default:
		return "unknown"
	}
}

// Config carries the engine's collaborators. Link is required; the zero
// values of the remaining fields select the production defaults.
type Config struct {
	Link link.Link

	// PSK overrides the compiled-in pre-shared secret. Both peers must
	// agree. The zero value selects protocol.DefaultPSK.
	PSK [protocol.PSKSize]byte

	// Random is the entropy source for the keypair, padding, and session
	// material. Defaults to crypto/rand. Tests inject a seeded stream.
	Random io.Reader

	// Now is the clock consulted by the inactivity deadline. Defaults to
	// time.Now.
	Now func() time.Time

	// Key is a pre-generated identity keypair. When nil the engine
	// generates one, which dominates init time.
	Key *rsa.PrivateKey
}

// Engine is the responder side of the protocol: the framing layer, the
// two-phase key exchange, the command channel, and the session lifecycle.
// One Engine owns the whole session state; the outer loop calls Step
// repeatedly and acts on the returned tag. Not safe for concurrent use.
type Engine struct {
	lk     link.Link
	framer *record.Framer
	random io.Reader
	now    func() time.Time
	log    *slog.Logger
	psk    [protocol.PSKSize]byte

	priv    *rsa.PrivateKey
	ownDER  []byte
	peerPub *rsa.PublicKey

	sid      [protocol.SessionIDSize]byte
	cipher   blockCipher
	lastSeen time.Time

	buf [protocol.MaxRecord]byte
}

// NewEngine builds an engine and generates its RSA identity. A keypair or
// entropy failure here is fatal; everything later is recoverable.
func NewEngine(cfg Config, log *slog.Logger) (*Engine, error) {
	if cfg.Link == nil {
		return nil, fmt.Errorf("session: nil link")
	}
	psk := cfg.PSK
	if psk == ([protocol.PSKSize]byte{}) {
		psk = protocol.DefaultPSK
	}
	random := cfg.Random
	if random == nil {
		random = rand.Reader
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	priv := cfg.Key
	if priv == nil {
		var err error
		priv, err = generateKeypair(random)
		if err != nil {
			return nil, err
		}
	}
	ownDER, err := marshalPublicDER(&priv.PublicKey)
	if err != nil {
		return nil, err
	}

	return &Engine{
		lk:     cfg.Link,
		framer: record.NewFramer(psk),
		random: random,
		now:    now,
		log:    log,
		psk:    psk,
		priv:   priv,
		ownDER: ownDER,
	}, nil
}

// Step reads one record and runs the protocol for it to completion,
// including the nested handshake I/O. The returned error is a transport
// failure; protocol failures surface as TagError after the appropriate
// on-wire status.
func (e *Engine) Step() (RequestTag, error) {
	n, err := e.lk.ReadRecord(e.buf[:])
	if err != nil {
		return TagNone, err
	}

	switch length := e.framer.Verify(e.buf[:n]); length {
	case protocol.DERSize:
		return e.exchangeKeys(e.buf[:protocol.DERSize])
	case 2 * protocol.RSASize:
		return e.establish(e.buf[:2*protocol.RSASize])
	case protocol.AESBlockSize:
		return e.command(e.buf[:protocol.AESBlockSize])
	default:
		// Covers MAC failures, which report length 0.
		e.log.Warn("unroutable record", "record_bytes", n, "payload", length)
		return TagError, e.writeStatus(protocol.StatusHashError)
	}
}

// Active reports whether a session is established.
func (e *Engine) Active() bool {
	return e.sid != [protocol.SessionIDSize]byte{}
}

// Close clears the session identity. The cipher state is retained so the
// next handshake can reuse the contexts.
func (e *Engine) Close() {
	e.sid = [protocol.SessionIDSize]byte{}
}

func (e *Engine) write(payload []byte) error {
	if err := e.lk.WriteRecord(e.framer.Seal(payload)); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	return nil
}

// writeStatus emits an encrypted status-only response. Before the first
// session establishment there is no cipher to shape one with; the failure
// then stays silent and the peer observes a timeout.
func (e *Engine) writeStatus(status protocol.Status) error {
	if !e.cipher.ready() {
		e.log.Debug("status suppressed, no command cipher", "status", status.String())
		return nil
	}
	var plain [protocol.AESBlockSize]byte
	plain[0] = byte(status)
	ct := e.cipher.encrypt(&plain)
	return e.write(ct[:])
}
