package session

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/embedsec/seclink/internal/link"
	"github.com/embedsec/seclink/internal/protocol"
	"github.com/embedsec/seclink/internal/record"
)

// StatusError is a non-OKAY status returned by the endpoint.
type StatusError struct {
	Status protocol.Status
}

func (e *StatusError) Error() string {
	return "endpoint status: " + e.Status.String()
}

// ErrRefused is returned when the endpoint answers phase 2 with the
// zero-filled session packet.
var ErrRefused = errors.New("session: establishment refused")

// ClientConfig carries the initiator's collaborators; Link is required.
type ClientConfig struct {
	Link   link.Link
	PSK    [protocol.PSKSize]byte
	Random io.Reader
	Key    *rsa.PrivateKey
}

// Client is the initiator side of the protocol. It drives the two-phase
// handshake against an endpoint and issues commands on the established
// channel. Not safe for concurrent use.
type Client struct {
	lk     link.Link
	framer *record.Framer
	random io.Reader
	log    *slog.Logger
	psk    [protocol.PSKSize]byte

	priv      *rsa.PrivateKey
	ownDER    []byte
	serverPub *rsa.PublicKey

	sid    [protocol.SessionIDSize]byte
	cipher blockCipher

	buf [protocol.MaxRecord]byte
}

// NewClient builds a client and generates its RSA identity.
func NewClient(cfg ClientConfig, log *slog.Logger) (*Client, error) {
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

	return &Client{
		lk:     cfg.Link,
		framer: record.NewFramer(psk),
		random: random,
		log:    log,
		psk:    psk,
		priv:   priv,
		ownDER: ownDER,
	}, nil
}

// Handshake runs phase 1: announce the own key, recover the endpoint's key
// from its encrypted reply, send the canonical key with the signed PSK
// proof, and wait for the encrypted OKAY.
func (c *Client) Handshake() error {
	c.serverPub = nil
	c.sid = [protocol.SessionIDSize]byte{}

	if err := c.write(c.ownDER); err != nil {
		return err
	}

	payload, err := c.read(2 * protocol.RSASize)
	if err != nil {
		return fmt.Errorf("key reply: %w", err)
	}
	der, err := decryptBlocks(c.priv, payload, 2)
	if err != nil {
		return fmt.Errorf("key reply: %w", err)
	}
	serverPub, err := parsePublicDER(der)
	if err != nil {
		return fmt.Errorf("key reply: %w", err)
	}

	proof, err := signProof(c.random, c.priv, c.psk)
	if err != nil {
		return err
	}
	plain := make([]byte, 0, protocol.DERSize+protocol.RSASize)
	plain = append(plain, c.ownDER...)
	plain = append(plain, proof...)
	// 550 bytes across three RSA blocks, each chunk under the PKCS#1 limit.
	out, err := encryptChunks(c.random, serverPub, plain, 184, 183, 183)
	if err != nil {
		return err
	}
	if err := c.write(out); err != nil {
		return err
	}

	payload, err = c.read(protocol.RSASize)
	if err != nil {
		return fmt.Errorf("acknowledgement: %w", err)
	}
	token, err := decryptBlocks(c.priv, payload, 1)
	if err != nil {
		return fmt.Errorf("acknowledgement: %w", err)
	}
	if !bytes.Equal(token, okayToken) {
		return fmt.Errorf("acknowledgement: unexpected token %q", token)
	}

	c.serverPub = serverPub
	c.log.Info("public keys exchanged")
	return nil
}

// Establish runs phase 2 and installs the session material the endpoint
// minted. Handshake must have succeeded first.
func (c *Client) Establish() error {
	if c.serverPub == nil {
		return errors.New("session: handshake not complete")
	}

	proof, err := signProof(c.random, c.priv, c.psk)
	if err != nil {
		return err
	}
	out, err := encryptChunks(c.random, c.serverPub, proof, protocol.RSASize/2, protocol.RSASize/2)
	if err != nil {
		return err
	}
	if err := c.write(out); err != nil {
		return err
	}

	payload, err := c.read(protocol.RSASize)
	if err != nil {
		return fmt.Errorf("session packet: %w", err)
	}
	blob, err := decryptBlocks(c.priv, payload, 1)
	if err != nil {
		return fmt.Errorf("session packet: %w", err)
	}
	if len(blob) != protocol.SessionBlobSize {
		return fmt.Errorf("session packet: wrong shape (%d bytes)", len(blob))
	}

	var sid [protocol.SessionIDSize]byte
	copy(sid[:], blob[:protocol.SessionIDSize])
	if sid == ([protocol.SessionIDSize]byte{}) {
		return ErrRefused
	}

	iv := blob[protocol.SessionIDSize : protocol.SessionIDSize+protocol.AESBlockSize]
	key := blob[protocol.SessionIDSize+protocol.AESBlockSize:]
	if err := c.cipher.install(key, iv); err != nil {
		return err
	}
	c.sid = sid
	c.log.Info("session established")
	return nil
}

// Active reports whether session material is installed.
func (c *Client) Active() bool {
	return c.sid != [protocol.SessionIDSize]byte{}
}

// ToggleLED flips the endpoint's indicator and returns its new level,
// "ON" or "OFF".
func (c *Client) ToggleLED() (string, error) {
	return c.do(protocol.OpToggleLED)
}

// Temperature reads the endpoint's on-die sensor as an ASCII value in °C.
func (c *Client) Temperature() (string, error) {
	return c.do(protocol.OpGetTemperature)
}

// CloseSession asks the endpoint to drop the session and forgets the local
// session identity.
func (c *Client) CloseSession() error {
	_, err := c.do(protocol.OpClose)
	c.sid = [protocol.SessionIDSize]byte{}
	return err
}

// do issues one command and decodes the one-block response.
func (c *Client) do(op byte) (string, error) {
	if !c.Active() {
		return "", errors.New("session: not established")
	}

	var plain [protocol.AESBlockSize]byte
	plain[0] = op
	copy(plain[1:], c.sid[:])
	plain[protocol.AESBlockSize-1] = protocol.FormatMarker

	ct := c.cipher.encrypt(&plain)
	if err := c.write(ct[:]); err != nil {
		return "", err
	}

	payload, err := c.read(protocol.AESBlockSize)
	if err != nil {
		return "", fmt.Errorf("command response: %w", err)
	}
	resp := c.cipher.decrypt(payload)

	if status := protocol.Status(resp[0]); status != protocol.StatusOkay {
		return "", &StatusError{Status: status}
	}
	body := resp[1:]
	if i := bytes.IndexByte(body, 0); i >= 0 {
		body = body[:i]
	}
	return string(body), nil
}

func (c *Client) write(payload []byte) error {
	rec := c.framer.Seal(append([]byte(nil), payload...))
	if err := c.lk.WriteRecord(rec); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	return nil
}

// read receives one record and requires its verified payload length.
func (c *Client) read(want int) ([]byte, error) {
	n, err := c.lk.ReadRecord(c.buf[:])
	if err != nil {
		return nil, err
	}
	length := c.framer.Verify(c.buf[:n])
	if length != want {
		return nil, fmt.Errorf("payload length %d, want %d", length, want)
	}
	return c.buf[:length], nil
}
