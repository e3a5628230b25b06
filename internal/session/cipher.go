package session

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"

	"github.com/embedsec/seclink/internal/protocol"
)

// blockCipher holds the AES-256-CBC state of the command channel. Each
// direction chains its own IV: after an encryption the produced ciphertext
// block becomes the next encryption IV, after a decryption the consumed
// ciphertext block becomes the next decryption IV. Both peers advance in
// lock-step because the channel is strict request/response.
//
// The key schedule survives a session close so status responses can still
// be emitted for records that arrive without a live session.
type blockCipher struct {
	block cipher.Block
	encIV [protocol.AESBlockSize]byte
	decIV [protocol.AESBlockSize]byte
}

// install sets the AES key and resets both IV chains to iv.
func (c *blockCipher) install(key, iv []byte) error {
	block, err := aes.NewCipher(key)
	if err != nil {
		return fmt.Errorf("aes key schedule: %w", err)
	}
	c.block = block
	copy(c.encIV[:], iv)
	copy(c.decIV[:], iv)
	return nil
}

// ready reports whether a key schedule has ever been installed.
func (c *blockCipher) ready() bool {
	return c.block != nil
}

// encrypt encrypts exactly one block and advances the encryption IV.
func (c *blockCipher) encrypt(plain *[protocol.AESBlockSize]byte) [protocol.AESBlockSize]byte {
	var ct [protocol.AESBlockSize]byte
	enc := cipher.NewCBCEncrypter(c.block, c.encIV[:])
	enc.CryptBlocks(ct[:], plain[:])
	c.encIV = ct
	return ct
}

// decrypt decrypts exactly one block and advances the decryption IV.
func (c *blockCipher) decrypt(ct []byte) [protocol.AESBlockSize]byte {
	var plain [protocol.AESBlockSize]byte
	dec := cipher.NewCBCDecrypter(c.block, c.decIV[:])
	dec.CryptBlocks(plain[:], ct)
	copy(c.decIV[:], ct)
	return plain
}
