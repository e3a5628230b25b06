package session

import (
	"crypto"
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"fmt"
	"io"

	"github.com/embedsec/seclink/internal/protocol"
)

var (
	// ErrNotRSA is returned when a peer key parses but is not RSA.
	ErrNotRSA = errors.New("session: public key is not RSA")

	errDERSize = errors.New("session: DER encoding is not 294 bytes")
)

// GenerateKey produces an RSA-2048 identity. Callers that serve several
// transport connections generate one key up front and hand it to each
// engine through Config.Key.
func GenerateKey(random io.Reader) (*rsa.PrivateKey, error) {
	return generateKeypair(random)
}

// generateKeypair produces the endpoint's RSA-2048 identity from random.
func generateKeypair(random io.Reader) (*rsa.PrivateKey, error) {
	key, err := rsa.GenerateKey(random, protocol.RSASize*8)
	if err != nil {
		return nil, fmt.Errorf("generate RSA keypair: %w", err)
	}
	return key, nil
}

// marshalPublicDER encodes pub to the fixed 294-byte wire form.
func marshalPublicDER(pub *rsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("encode public key: %w", err)
	}
	if len(der) != protocol.DERSize {
		return nil, errDERSize
	}
	return der, nil
}

// parsePublicDER decodes a 294-byte peer key and requires it to be RSA.
func parsePublicDER(der []byte) (*rsa.PublicKey, error) {
	if len(der) != protocol.DERSize {
		return nil, errDERSize
	}
	key, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	pub, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, ErrNotRSA
	}
	return pub, nil
}

// encryptChunks RSA-encrypts plain under pub in the given chunk sizes and
// concatenates the 256-byte ciphertext blocks.
func encryptChunks(random io.Reader, pub *rsa.PublicKey, plain []byte, sizes ...int) ([]byte, error) {
	out := make([]byte, 0, len(sizes)*protocol.RSASize)
	for _, size := range sizes {
		ct, err := rsa.EncryptPKCS1v15(random, pub, plain[:size])
		if err != nil {
			return nil, fmt.Errorf("rsa encrypt: %w", err)
		}
		out = append(out, ct...)
		plain = plain[size:]
	}
	return out, nil
}

// decryptBlocks decrypts n consecutive 256-byte ciphertext blocks with priv
// and concatenates the recovered plaintexts.
func decryptBlocks(priv *rsa.PrivateKey, ct []byte, n int) ([]byte, error) {
	out := make([]byte, 0, n*protocol.RSASize)
	for i := 0; i < n; i++ {
		plain, err := rsa.DecryptPKCS1v15(nil, priv, ct[i*protocol.RSASize:(i+1)*protocol.RSASize])
		if err != nil {
			return nil, fmt.Errorf("rsa decrypt block %d: %w", i, err)
		}
		out = append(out, plain...)
	}
	return out, nil
}

// verifyProof checks a 256-byte signature over the PSK with the peer's key.
// The PSK stands in as the SHA-256 digest being signed.
func verifyProof(pub *rsa.PublicKey, psk [protocol.PSKSize]byte, sig []byte) error {
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, psk[:], sig); err != nil {
		return fmt.Errorf("verify handshake proof: %w", err)
	}
	return nil
}

// signProof produces the 256-byte handshake proof with the local key.
func signProof(random io.Reader, priv *rsa.PrivateKey, psk [protocol.PSKSize]byte) ([]byte, error) {
	sig, err := rsa.SignPKCS1v15(random, priv, crypto.SHA256, psk[:])
	if err != nil {
		return nil, fmt.Errorf("sign handshake proof: %w", err)
	}
	return sig, nil
}
