package keywrap

import (
	"bytes"
	"strings"
	"testing"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Helper functions ---

func generateKeyPair(t *testing.T) (*ec.PrivateKey, Identity) {
	t.Helper()
	privKey, err := ec.NewPrivateKey()
	require.NoError(t, err)
	return privKey, IdentityOf(privKey.PubKey())
}

func newKey(t *testing.T) ContentKey {
	t.Helper()
	key, err := NewContentKey()
	require.NoError(t, err)
	return key
}

// --- Identity tests ---

func TestParseIdentity(t *testing.T) {
	_, id := generateKeyPair(t)

	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid", string(id), false},
		{"uppercase with spaces", "  " + strings.ToUpper(string(id)) + "\n", false},
		{"empty", "", true},
		{"too short", string(id[:64]), true},
		{"not hex", strings.Repeat("zz", 33), true},
		{"bad prefix", "05" + string(id[2:]), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseIdentity(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidIdentity)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, id, got)
		})
	}
}

func TestIdentity_PublicKeyRoundTrip(t *testing.T) {
	priv, id := generateKeyPair(t)
	pub, err := id.PublicKey()
	require.NoError(t, err)
	assert.Equal(t, priv.PubKey().Compressed(), pub.Compressed())
	assert.Len(t, id.Short(), 12)
}

// --- ECDH tests ---

func TestECDH_Symmetry(t *testing.T) {
	privA, _ := generateKeyPair(t)
	privB, _ := generateKeyPair(t)

	sharedAB, err := ECDH(privA, privB.PubKey())
	require.NoError(t, err)
	sharedBA, err := ECDH(privB, privA.PubKey())
	require.NoError(t, err)
	assert.Len(t, sharedAB, 32)
	assert.Equal(t, sharedAB, sharedBA)
}

func TestECDH_NilKeys(t *testing.T) {
	priv, _ := generateKeyPair(t)

	_, err := ECDH(nil, priv.PubKey())
	assert.ErrorIs(t, err, ErrNilPrivateKey)
	_, err = ECDH(priv, nil)
	assert.ErrorIs(t, err, ErrNilPublicKey)
}

// --- Wrap / Unwrap tests ---

func TestWrapUnwrap_RoundTrip(t *testing.T) {
	priv, id := generateKeyPair(t)
	key := newKey(t)

	wrapped, err := Wrap(key, id)
	require.NoError(t, err)
	assert.Len(t, wrapped, WrappedKeyLen)

	got, err := Unwrap(wrapped, priv)
	require.NoError(t, err)
	assert.Equal(t, key, got)
}

func TestWrap_Deterministic(t *testing.T) {
	_, id := generateKeyPair(t)
	key := newKey(t)

	w1, err := Wrap(key, id)
	require.NoError(t, err)
	w2, err := Wrap(key, id)
	require.NoError(t, err)
	assert.Equal(t, w1, w2)

	_, other := generateKeyPair(t)
	w3, err := Wrap(key, other)
	require.NoError(t, err)
	assert.NotEqual(t, w1, w3, "different recipients should get different envelopes")
}

func TestWrap_InvalidIdentity(t *testing.T) {
	_, err := Wrap(newKey(t), Identity("nope"))
	assert.ErrorIs(t, err, ErrInvalidIdentity)
}

func TestUnwrap_WrongKey(t *testing.T) {
	_, id := generateKeyPair(t)
	other, _ := generateKeyPair(t)

	wrapped, err := Wrap(newKey(t), id)
	require.NoError(t, err)

	_, err = Unwrap(wrapped, other)
	assert.ErrorIs(t, err, ErrUnwrapFailed)
}

func TestUnwrap_Malformed(t *testing.T) {
	priv, id := generateKeyPair(t)
	wrapped, err := Wrap(newKey(t), id)
	require.NoError(t, err)

	t.Run("truncated", func(t *testing.T) {
		_, err := Unwrap(wrapped[:WrappedKeyLen-1], priv)
		assert.ErrorIs(t, err, ErrInvalidEnvelope)
	})
	t.Run("bad ephemeral key", func(t *testing.T) {
		bad := bytes.Clone(wrapped)
		bad[0] = 0x07
		_, err := Unwrap(bad, priv)
		assert.ErrorIs(t, err, ErrInvalidEnvelope)
	})
	t.Run("tampered body", func(t *testing.T) {
		bad := bytes.Clone(wrapped)
		bad[len(bad)-1] ^= 0xff
		_, err := Unwrap(bad, priv)
		assert.ErrorIs(t, err, ErrUnwrapFailed)
	})
	t.Run("nil key", func(t *testing.T) {
		_, err := Unwrap(wrapped, nil)
		assert.ErrorIs(t, err, ErrNilPrivateKey)
	})
}

// --- EnvelopeSet tests ---

func TestWrapAll_DedupesAndSorts(t *testing.T) {
	_, a := generateKeyPair(t)
	_, b := generateKeyPair(t)
	key := newKey(t)

	set, err := WrapAll(key, []Identity{b, a, b})
	require.NoError(t, err)
	require.Len(t, set, 2)
	assert.True(t, set[0].Recipient < set[1].Recipient)
	assert.ElementsMatch(t, []Identity{a, b}, set.Identities())
}

func TestUnlock(t *testing.T) {
	privA, a := generateKeyPair(t)
	privB, b := generateKeyPair(t)
	key := newKey(t)

	set, err := WrapAll(key, []Identity{a})
	require.NoError(t, err)

	got, err := Unlock(set, a, privA)
	require.NoError(t, err)
	assert.Equal(t, key, got)

	_, err = Unlock(set, b, privB)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	// Claiming someone else's envelope fails the unwrap.
	_, err = Unlock(set, a, privB)
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestEnvelopeSet_MergeIdempotent(t *testing.T) {
	_, a := generateKeyPair(t)
	_, b := generateKeyPair(t)
	key := newKey(t)

	base, err := WrapAll(key, []Identity{a})
	require.NoError(t, err)
	extra, err := WrapAll(key, []Identity{b})
	require.NoError(t, err)

	once := base.Merge(extra)
	twice := once.Merge(extra)
	assert.Equal(t, once, twice)
	assert.True(t, once.Has(a))
	assert.True(t, once.Has(b))
}

func TestEnvelopeSet_MergeKeepsExisting(t *testing.T) {
	_, a := generateKeyPair(t)
	base := EnvelopeSet{{Recipient: a, WrappedKey: []byte("old")}}
	other := EnvelopeSet{{Recipient: a, WrappedKey: []byte("new")}}

	merged := base.Merge(other)
	require.Len(t, merged, 1)
	assert.Equal(t, []byte("old"), merged[0].WrappedKey)
}

func TestEnvelopeSet_Without(t *testing.T) {
	_, a := generateKeyPair(t)
	_, b := generateKeyPair(t)
	set, err := WrapAll(newKey(t), []Identity{a, b})
	require.NoError(t, err)

	out := set.Without(b)
	assert.Equal(t, []Identity{a}, out.Identities())
	assert.Len(t, set, 2, "receiver must not be modified")
}

// --- Seal / Open tests ---

func TestSealOpen(t *testing.T) {
	tests := []struct {
		name      string
		plaintext []byte
	}{
		{"empty", []byte{}},
		{"hello world", []byte("hello world")},
		{"large", bytes.Repeat([]byte("x"), 1<<20)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := newKey(t)
			ct, err := Seal(tt.plaintext, key)
			require.NoError(t, err)
			assert.Len(t, ct, len(tt.plaintext)+MinCiphertextLen)

			pt, err := Open(ct, key)
			require.NoError(t, err)
			assert.Equal(t, tt.plaintext, pt)
		})
	}
}

func TestOpen_Errors(t *testing.T) {
	key := newKey(t)
	ct, err := Seal([]byte("secret"), key)
	require.NoError(t, err)

	_, err = Open(ct[:10], key)
	assert.ErrorIs(t, err, ErrInvalidCiphertext)

	_, err = Open(ct, newKey(t))
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestContentKey_StringRedacted(t *testing.T) {
	key := newKey(t)
	assert.NotContains(t, key.String(), strings.Repeat("0", 64))
	assert.True(t, strings.HasPrefix(key.String(), "ContentKey("))
}
