package session

import (
	"bytes"

	"github.com/embedsec/seclink/internal/protocol"
)

// command handles one 16-byte record on the established channel: expiry
// check, decrypt, shape and identity validation, opcode routing. Requests
// that need the device come back as a tag; the outer loop answers them
// through Respond.
func (e *Engine) command(ct []byte) (RequestTag, error) {
	if !e.Active() {
		return TagError, e.writeStatus(protocol.StatusInvalidSession)
	}

	now := e.now()
	if now.Sub(e.lastSeen) > protocol.KeepAlive {
		e.Close()
		e.log.Info("session expired")
		return TagError, e.writeStatus(protocol.StatusExpired)
	}
	e.lastSeen = now

	plain := e.cipher.decrypt(ct)

	if plain[protocol.AESBlockSize-1] != protocol.FormatMarker {
		e.log.Warn("command: bad format marker", "marker", plain[protocol.AESBlockSize-1])
		return TagError, e.writeStatus(protocol.StatusBadRequest)
	}
	if !bytes.Equal(plain[1:1+protocol.SessionIDSize], e.sid[:]) {
		e.log.Warn("command: session id mismatch")
		return TagError, e.writeStatus(protocol.StatusInvalidSession)
	}

	switch plain[0] {
	case protocol.OpClose:
		e.Close()
		e.log.Info("session closed by peer")
		if err := e.Respond(true, nil); err != nil {
			return TagError, err
		}
		return TagClose, nil
	case protocol.OpToggleLED:
		return TagToggleLED, nil
	case protocol.OpGetTemperature:
		return TagGetTemperature, nil
	default:
		e.log.Warn("command: unknown opcode", "opcode", plain[0])
		return TagError, e.writeStatus(protocol.StatusBadRequest)
	}
}

// Respond emits the encrypted command response: a status byte followed by
// up to 15 bytes of ASCII payload, zero-padded to the block.
func (e *Engine) Respond(ok bool, payload []byte) error {
	if !e.cipher.ready() {
		return nil
	}

	var plain [protocol.AESBlockSize]byte
	if ok {
		plain[0] = byte(protocol.StatusOkay)
	} else {
		plain[0] = byte(protocol.StatusError)
	}
	copy(plain[1:], payload)

	ct := e.cipher.encrypt(&plain)
	return e.write(ct[:])
}
