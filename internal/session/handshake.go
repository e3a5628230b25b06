package session

import (
	"io"

	"github.com/embedsec/seclink/internal/protocol"
)

// okayToken is the phase-1 completion token sent encrypted to the peer.
var okayToken = []byte("OKAY")

// exchangeKeys runs phase 1: the peer announced itself with a 294-byte DER
// record. The engine answers with its own key encrypted under the peer's,
// reads back the peer's canonical key plus its signed proof of the PSK,
// and acknowledges with an encrypted OKAY. Any cryptographic failure
// abandons the handshake without a response.
func (e *Engine) exchangeKeys(der []byte) (RequestTag, error) {
	e.Close()
	e.peerPub = nil

	peer, err := parsePublicDER(der)
	if err != nil {
		e.log.Warn("handshake: bad peer key announcement", "err", err)
		return TagError, nil
	}

	// Own DER in two halves under the announced key.
	out, err := encryptChunks(e.random, peer, e.ownDER, protocol.DERSize/2, protocol.DERSize/2)
	if err != nil {
		e.log.Warn("handshake: encrypt own key", "err", err)
		return TagError, nil
	}
	if err := e.write(out); err != nil {
		return TagError, err
	}

	// The peer replies with three RSA blocks: its canonical DER key and a
	// signature over the PSK.
	var reply [3*protocol.RSASize + protocol.HashSize]byte
	n, err := e.lk.ReadRecord(reply[:])
	if err != nil {
		return TagError, err
	}
	length := e.framer.Verify(reply[:n])
	if length != 3*protocol.RSASize {
		e.log.Warn("handshake: bad key reply", "record_bytes", n, "payload", length)
		return TagError, nil
	}
	plain, err := decryptBlocks(e.priv, reply[:length], 3)
	if err != nil {
		e.log.Warn("handshake: decrypt key reply", "err", err)
		return TagError, nil
	}
	if len(plain) != protocol.DERSize+protocol.RSASize {
		e.log.Warn("handshake: key reply has wrong shape", "plaintext", len(plain))
		return TagError, nil
	}

	peer, err = parsePublicDER(plain[:protocol.DERSize])
	if err != nil {
		e.log.Warn("handshake: bad canonical peer key", "err", err)
		return TagError, nil
	}
	if err := verifyProof(peer, e.psk, plain[protocol.DERSize:]); err != nil {
		e.log.Warn("handshake: peer proof rejected", "err", err)
		return TagError, nil
	}
	e.peerPub = peer

	out, err = encryptChunks(e.random, peer, okayToken, len(okayToken))
	if err != nil {
		e.log.Warn("handshake: encrypt acknowledgement", "err", err)
		return TagError, nil
	}
	if err := e.write(out); err != nil {
		return TagError, err
	}

	e.log.Info("public keys exchanged")
	return TagHandshakePhase1, nil
}

// establish runs phase 2: the peer proves possession of the PSK again under
// its exchanged key, and the engine mints the session identity, IV, and AES
// key and returns them encrypted. On a failure after a completed key
// exchange a zero-filled packet of the same shape is emitted so the phase is
// not observable from the outside; with no exchanged peer key the engine
// emits nothing.
func (e *Engine) establish(ct []byte) (RequestTag, error) {
	e.Close()

	if e.peerPub == nil {
		e.log.Warn("establish: no exchanged peer key")
		return TagError, nil
	}

	var blob [protocol.SessionBlobSize]byte
	established := false
	plain, err := decryptBlocks(e.priv, ct, 2)
	if err != nil {
		e.log.Warn("establish: decrypt proof", "err", err)
	} else if len(plain) != protocol.RSASize {
		e.log.Warn("establish: proof has wrong shape", "plaintext", len(plain))
	} else if err := verifyProof(e.peerPub, e.psk, plain); err != nil {
		e.log.Warn("establish: proof rejected", "err", err)
	} else if err := e.newSession(&blob); err != nil {
		e.log.Warn("establish: mint session", "err", err)
	} else {
		established = true
	}

	out, err := encryptChunks(e.random, e.peerPub, blob[:], protocol.SessionBlobSize)
	if err != nil {
		e.log.Warn("establish: encrypt session packet", "err", err)
		e.Close()
		return TagError, nil
	}
	if err := e.write(out); err != nil {
		e.Close()
		return TagError, err
	}
	if !established {
		e.Close()
		return TagError, nil
	}

	e.lastSeen = e.now()
	e.log.Info("session established")
	return TagHandshakePhase2, nil
}

// newSession draws the session identity and AES material, installs the key
// schedule, and serializes id, IV, and key into blob for the peer.
func (e *Engine) newSession(blob *[protocol.SessionBlobSize]byte) error {
	var sid [protocol.SessionIDSize]byte
	for {
		if _, err := io.ReadFull(e.random, sid[:]); err != nil {
			return err
		}
		if sid != ([protocol.SessionIDSize]byte{}) {
			break
		}
	}

	var iv [protocol.AESBlockSize]byte
	if _, err := io.ReadFull(e.random, iv[:]); err != nil {
		return err
	}
	var key [protocol.AESKeySize]byte
	if _, err := io.ReadFull(e.random, key[:]); err != nil {
		return err
	}

	if err := e.cipher.install(key[:], iv[:]); err != nil {
		return err
	}
	e.sid = sid

	n := copy(blob[:], sid[:])
	n += copy(blob[n:], iv[:])
	copy(blob[n:], key[:])
	return nil
}
