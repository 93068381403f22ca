package keywrap

import (
	"encoding/hex"
	"fmt"
	"strings"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
)

const (
	// CompressedPubKeyLen is the length of a compressed secp256k1 public key.
	CompressedPubKeyLen = 33

	// IdentityLen is the length of an identity string (hex of a compressed key).
	IdentityLen = CompressedPubKeyLen * 2
)

// Identity is the public identifier of a principal: the lowercase hex encoding
// of its compressed secp256k1 public key. The same string is used as an
// access-list member and as the encryption target of key envelopes.
type Identity string

// ParseIdentity validates s and returns it as an Identity.
// Surrounding whitespace is trimmed and hex digits are lowercased.
func ParseIdentity(s string) (Identity, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != IdentityLen {
		return "", fmt.Errorf("%w: expected %d hex chars, got %d", ErrInvalidIdentity, IdentityLen, len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidIdentity, err)
	}
	if _, err := ec.PublicKeyFromBytes(b); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidIdentity, err)
	}
	return Identity(s), nil
}

// IdentityOf returns the identity of a public key.
func IdentityOf(pub *ec.PublicKey) Identity {
	return Identity(hex.EncodeToString(pub.Compressed()))
}

// PublicKey recovers the public key encoded in the identity.
func (id Identity) PublicKey() (*ec.PublicKey, error) {
	b, err := hex.DecodeString(string(id))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidIdentity, err)
	}
	if len(b) != CompressedPubKeyLen {
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidIdentity, len(b))
	}
	pub, err := ec.PublicKeyFromBytes(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidIdentity, err)
	}
	return pub, nil
}

// String returns the identity as a plain string.
func (id Identity) String() string { return string(id) }

// Short returns an abbreviated identity for log lines.
func (id Identity) Short() string {
	if len(id) <= 12 {
		return string(id)
	}
	return string(id[:12])
}
