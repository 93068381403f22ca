package keywrap

import (
	"fmt"
	"sort"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
)

const (
	// WrappedKeyLen is the length of a wrapped content key:
	// ephemeral pubkey(33B) || encrypted key(32B) || tag(16B).
	WrappedKeyLen = CompressedPubKeyLen + ContentKeyLen + GCMTagLen
)

// Envelope is a content key wrapped for one reader.
type Envelope struct {
	Recipient  Identity
	WrappedKey []byte
}

// EnvelopeSet holds at most one envelope per recipient.
type EnvelopeSet []Envelope

// Wrap encrypts key so that only the holder of recipient's private key can
// recover it. The result is deterministic for a given (key, recipient).
func Wrap(key ContentKey, recipient Identity) ([]byte, error) {
	pub, err := recipient.PublicKey()
	if err != nil {
		return nil, err
	}
	recipientBytes := pub.Compressed()

	eph, err := deriveEphemeral(key, recipientBytes)
	if err != nil {
		return nil, err
	}
	sharedX, err := ECDH(eph, pub)
	if err != nil {
		return nil, err
	}
	ephPub := eph.PubKey().Compressed()

	wrapKey, nonce, err := deriveWrapKey(sharedX, ephPub)
	if err != nil {
		return nil, err
	}
	gcm, err := newGCM(wrapKey)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, WrappedKeyLen)
	out = append(out, ephPub...)
	return gcm.Seal(out, nonce, key[:], recipientBytes), nil
}

// Unwrap recovers the content key from wrapped using the recipient's private key.
func Unwrap(wrapped []byte, priv *ec.PrivateKey) (ContentKey, error) {
	var key ContentKey
	if priv == nil {
		return key, ErrNilPrivateKey
	}
	if len(wrapped) != WrappedKeyLen {
		return key, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidEnvelope, WrappedKeyLen, len(wrapped))
	}

	ephBytes := wrapped[:CompressedPubKeyLen]
	ephPub, err := ec.PublicKeyFromBytes(ephBytes)
	if err != nil {
		return key, fmt.Errorf("%w: %w", ErrInvalidEnvelope, err)
	}
	sharedX, err := ECDH(priv, ephPub)
	if err != nil {
		return key, err
	}
	wrapKey, nonce, err := deriveWrapKey(sharedX, ephBytes)
	if err != nil {
		return key, err
	}
	gcm, err := newGCM(wrapKey)
	if err != nil {
		return key, err
	}

	plain, err := gcm.Open(nil, nonce, wrapped[CompressedPubKeyLen:], priv.PubKey().Compressed())
	if err != nil {
		return key, fmt.Errorf("%w: %w", ErrUnwrapFailed, err)
	}
	copy(key[:], plain)
	return key, nil
}

// WrapAll builds a fresh envelope set for ids. Duplicate ids are collapsed and
// the set is ordered by identity.
func WrapAll(key ContentKey, ids []Identity) (EnvelopeSet, error) {
	set := make(EnvelopeSet, 0, len(ids))
	for _, id := range dedupe(ids) {
		wrapped, err := Wrap(key, id)
		if err != nil {
			return nil, fmt.Errorf("keywrap: wrap for %s: %w", id.Short(), err)
		}
		set = append(set, Envelope{Recipient: id, WrappedKey: wrapped})
	}
	return set, nil
}

// Unlock finds the envelope addressed to id and opens it with priv. A missing
// envelope and one that priv cannot open both yield ErrPermissionDenied.
func Unlock(set EnvelopeSet, id Identity, priv *ec.PrivateKey) (ContentKey, error) {
	env, ok := set.Find(id)
	if !ok {
		return ContentKey{}, fmt.Errorf("%w: no envelope for %s", ErrPermissionDenied, id.Short())
	}
	key, err := Unwrap(env.WrappedKey, priv)
	if err != nil {
		return ContentKey{}, fmt.Errorf("%w: %w", ErrPermissionDenied, err)
	}
	return key, nil
}

// Find returns the envelope addressed to id.
func (s EnvelopeSet) Find(id Identity) (Envelope, bool) {
	for _, env := range s {
		if env.Recipient == id {
			return env, true
		}
	}
	return Envelope{}, false
}

// Has reports whether the set contains an envelope for id.
func (s EnvelopeSet) Has(id Identity) bool {
	_, ok := s.Find(id)
	return ok
}

// Identities returns the recipients of the set in order.
func (s EnvelopeSet) Identities() []Identity {
	ids := make([]Identity, len(s))
	for i, env := range s {
		ids[i] = env.Recipient
	}
	return ids
}

// Merge returns the union of s and other. A recipient already present in s
// keeps its envelope.
func (s EnvelopeSet) Merge(other EnvelopeSet) EnvelopeSet {
	out := make(EnvelopeSet, 0, len(s)+len(other))
	out = append(out, s...)
	for _, env := range other {
		if !out.Has(env.Recipient) {
			out = append(out, env)
		}
	}
	sortSet(out)
	return out
}

// Without returns s minus the envelopes addressed to ids.
func (s EnvelopeSet) Without(ids ...Identity) EnvelopeSet {
	drop := make(map[Identity]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	out := make(EnvelopeSet, 0, len(s))
	for _, env := range s {
		if _, ok := drop[env.Recipient]; !ok {
			out = append(out, env)
		}
	}
	return out
}

func sortSet(s EnvelopeSet) {
	sort.Slice(s, func(i, j int) bool { return s[i].Recipient < s[j].Recipient })
}

func dedupe(ids []Identity) []Identity {
	seen := make(map[Identity]struct{}, len(ids))
	out := make([]Identity, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
