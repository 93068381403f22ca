package keywrap

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

const (
	// NonceLen is the length of the AES-GCM nonce in bytes.
	NonceLen = 12

	// GCMTagLen is the length of the GCM authentication tag in bytes.
	GCMTagLen = 16

	// MinCiphertextLen is the minimum valid ciphertext length (nonce + tag).
	MinCiphertextLen = NonceLen + GCMTagLen
)

// ContentKey is the symmetric key a single file version is sealed under.
type ContentKey [ContentKeyLen]byte

// NewContentKey returns a fresh random content key.
func NewContentKey() (ContentKey, error) {
	var key ContentKey
	if _, err := rand.Read(key[:]); err != nil {
		return key, fmt.Errorf("keywrap: generate content key: %w", err)
	}
	return key, nil
}

// String returns a redacted form so keys never reach log output.
func (k ContentKey) String() string {
	return "ContentKey(" + hex.EncodeToString(k[:2]) + "...)"
}

// Seal encrypts plaintext under key.
// Output: nonce(12B) || ciphertext || tag(16B).
func Seal(plaintext []byte, key ContentKey) ([]byte, error) {
	gcm, err := newGCM(key[:])
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, NonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("keywrap: nonce generation failed: %w", err)
	}

	out := make([]byte, 0, NonceLen+len(plaintext)+GCMTagLen)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, plaintext, nil), nil
}

// Open decrypts a ciphertext produced by Seal.
func Open(ciphertext []byte, key ContentKey) ([]byte, error) {
	if len(ciphertext) < MinCiphertextLen {
		return nil, fmt.Errorf("%w: got %d bytes, need at least %d", ErrInvalidCiphertext, len(ciphertext), MinCiphertextLen)
	}
	gcm, err := newGCM(key[:])
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, ciphertext[:NonceLen], ciphertext[NonceLen:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecryptionFailed, err)
	}
	if plaintext == nil {
		plaintext = []byte{}
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("keywrap: AES cipher creation failed: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("keywrap: GCM creation failed: %w", err)
	}
	return gcm, nil
}
