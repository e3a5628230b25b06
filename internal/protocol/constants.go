package protocol

import "time"

const (
	// RSASize is the RSA-2048 ciphertext and signature size in bytes.
	RSASize = 256
	// DERSize is the DER encoding size of an RSA-2048 public key.
	DERSize = 294
	// AESKeySize is the AES-256 key size.
	AESKeySize = 32
	// AESBlockSize is the AES block size; every command record is one block.
	AESBlockSize = 16
	// HashSize is the HMAC-SHA-256 output size.
	HashSize = 32
	// SessionIDSize is the size of the session identifier on the wire.
	SessionIDSize = 8
	// RSAExponent is the public exponent of generated keypairs.
	RSAExponent = 65537

	// MaxRecord is the largest record the dispatcher reads in one step,
	// MAC included.
	MaxRecord = DERSize + RSASize

	// KeepAlive is the inactivity deadline enforced on inbound command
	// records. A session idle longer than this expires on the next command.
	KeepAlive = 60 * time.Second

	// FormatMarker is the sentinel value expected at the last byte of
	// every command plaintext.
	FormatMarker = 0x09

	// SessionBlobSize is the plaintext size of the phase-2 session packet:
	// session id, initial IV, AES key.
	SessionBlobSize = SessionIDSize + AESBlockSize + AESKeySize

	// DefaultBaudRate is the reference serial binding speed (8-N-1).
	DefaultBaudRate = 115200
)

// Command opcodes, byte 0 of a command plaintext.
const (
	OpClose          = 0x00
	OpToggleLED      = 0x01
	OpGetTemperature = 0x02
)
