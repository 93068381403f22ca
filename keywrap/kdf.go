// Package keywrap implements per-reader key envelopes for access-controlled files.
//
// Each file version is sealed under a fresh 32-byte content key. For every reader
// the key is wrapped to the reader's secp256k1 public key:
//
//	e       = HKDF-SHA256(content_key, P_reader, "dfs-envelope-ephemeral")
//	wrap    = HKDF-SHA256(ECDH(e, P_reader).x, E, "dfs-envelope-key")
//	wrapped = E || AES-256-GCM(content_key, wrap.key, wrap.nonce, aad=P_reader)
//
// where E is the compressed ephemeral public key. Wrapping is deterministic for a
// (content_key, reader) pair, so granting the same reader twice yields the same
// envelope.
package keywrap

import (
	"crypto/sha256"
	"fmt"
	"io"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	"golang.org/x/crypto/hkdf"
)

const (
	// HKDFEnvelopeInfo is the info string for the envelope wrapping key.
	HKDFEnvelopeInfo = "dfs-envelope-key"

	// HKDFEphemeralInfo is the info string for the ephemeral scalar.
	HKDFEphemeralInfo = "dfs-envelope-ephemeral"

	// ContentKeyLen is the length of a content key in bytes.
	ContentKeyLen = 32
)

// deriveEphemeral derives the ephemeral private key used to wrap key for recipient.
func deriveEphemeral(key ContentKey, recipient []byte) (*ec.PrivateKey, error) {
	reader := hkdf.New(sha256.New, key[:], recipient, []byte(HKDFEphemeralInfo))
	scalar := make([]byte, 32)
	if _, err := io.ReadFull(reader, scalar); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHKDFFailure, err)
	}
	if isZero(scalar) {
		return nil, fmt.Errorf("%w: zero ephemeral scalar", ErrHKDFFailure)
	}
	priv, _ := ec.PrivateKeyFromBytes(scalar)
	return priv, nil
}

// deriveWrapKey derives the AES-256 key and GCM nonce protecting one envelope.
func deriveWrapKey(sharedX, ephemeralPub []byte) (key, nonce []byte, err error) {
	if len(sharedX) != 32 {
		return nil, nil, fmt.Errorf("%w: shared secret must be 32 bytes, got %d", ErrHKDFFailure, len(sharedX))
	}
	reader := hkdf.New(sha256.New, sharedX, ephemeralPub, []byte(HKDFEnvelopeInfo))
	buf := make([]byte, ContentKeyLen+NonceLen)
	if _, err := io.ReadFull(reader, buf); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrHKDFFailure, err)
	}
	return buf[:ContentKeyLen], buf[ContentKeyLen:], nil
}

func isZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
