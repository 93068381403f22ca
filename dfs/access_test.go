package dfs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitfsorg/libdfs-go/keywrap"
	"github.com/bitfsorg/libdfs-go/storage"
)

// --- GrantRead ---

func TestGrantRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created := f.write(t, f.alice, "/g", "secret")

	_, err := f.svc.ReadFile(ctx, f.bob, "/g")
	assert.ErrorIs(t, err, ErrPermissionDenied)

	res, err := f.svc.GrantRead(ctx, f.alice, "/g", ids(f.bob))
	require.NoError(t, err)
	assert.Equal(t, created.Address, res.Address)
	assert.Equal(t, created.ContentHandle, res.ContentHandle)
	assert.Equal(t, uint64(2), res.Version)

	got, err := f.svc.ReadFile(ctx, f.bob, "/g")
	require.NoError(t, err)
	assert.Equal(t, "secret", string(got))
}

func TestGrantRead_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.write(t, f.alice, "/g", "secret")

	granted, err := f.svc.GrantRead(ctx, f.alice, "/g", ids(f.bob))
	require.NoError(t, err)
	before, err := f.svc.load(ctx, f.alice.ID, "/g")
	require.NoError(t, err)

	res, err := f.svc.GrantRead(ctx, f.alice, "/g", ids(f.bob, f.alice, f.bob))
	require.NoError(t, err)
	assert.Equal(t, granted.Version, res.Version)
	assert.Equal(t, granted.ContentHandle, res.ContentHandle)

	after, err := f.svc.load(ctx, f.alice.ID, "/g")
	require.NoError(t, err)
	assert.Equal(t, before.meta.Envelopes, after.meta.Envelopes)
	assert.Equal(t, before.raw, after.raw, "record document must not be rewritten")
	assert.Len(t, after.meta.Envelopes, 2)

	got, err := f.svc.ReadFile(ctx, f.bob, "/g")
	require.NoError(t, err)
	assert.Equal(t, "secret", string(got))
}

func TestGrantRead_Denied(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.write(t, f.alice, "/g", "secret", f.bob)

	// A reader that is not a writer cannot share.
	_, err := f.svc.GrantRead(ctx, f.bob, "/g", ids(f.carol))
	assert.ErrorIs(t, err, ErrPermissionDenied)

	// A writer that is not a reader cannot share.
	_, err = f.svc.GrantWrite(ctx, f.alice, "/g", ids(f.carol))
	require.NoError(t, err)
	_, err = f.svc.GrantRead(ctx, f.carol, "/g", ids(f.carol))
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = f.svc.ReadFile(ctx, f.carol, "/g")
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestGrantRead_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.GrantRead(context.Background(), f.alice, "/missing", ids(f.bob))
	assert.ErrorIs(t, err, ErrNotFound)
}

// --- RevokeRead ---

func TestRevokeRead_RotatesKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created := f.write(t, f.alice, "/r", "payload", f.bob, f.carol)

	// Bob keeps the content key he could open before the revoke.
	rec, err := f.svc.load(ctx, f.bob.ID, "/r")
	require.NoError(t, err)
	bobKey, err := keywrap.Unlock(rec.meta.Envelopes, f.bob.ID, f.bob.Key)
	require.NoError(t, err)

	res, err := f.svc.RevokeRead(ctx, f.alice, "/r", ids(f.bob))
	require.NoError(t, err)
	assert.NotEqual(t, created.ContentHandle, res.ContentHandle)
	assert.Equal(t, created.Address, res.Address)

	_, err = f.svc.ReadFile(ctx, f.bob, "/r")
	assert.ErrorIs(t, err, ErrPermissionDenied)

	got, err := f.svc.ReadFile(ctx, f.carol, "/r")
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))

	// The old ciphertext is gone and the old key opens nothing current.
	has, err := f.blobs.Has(ctx, created.ContentHandle)
	require.NoError(t, err)
	assert.False(t, has)

	current, err := f.blobs.Cat(ctx, res.ContentHandle)
	require.NoError(t, err)
	_, err = keywrap.Open(current, bobKey)
	assert.ErrorIs(t, err, keywrap.ErrDecryptionFailed)

	acl, err := f.svc.ReadACL(ctx, f.alice, "/r")
	require.NoError(t, err)
	assert.ElementsMatch(t, []keywrap.Identity{f.alice.ID, f.carol.ID}, acl.Read)
}

func TestRevokeRead_Owner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.write(t, f.alice, "/r", "payload", f.bob)
	_, err := f.svc.GrantWrite(ctx, f.alice, "/r", ids(f.bob))
	require.NoError(t, err)

	_, err = f.svc.RevokeRead(ctx, f.bob, "/r", ids(f.alice))
	assert.ErrorIs(t, err, ErrOwnerRequired)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	got, err := f.svc.ReadFile(ctx, f.alice, "/r")
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))
}

func TestRevokeRead_Denied(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.write(t, f.alice, "/r", "payload", f.bob, f.carol)

	_, err := f.svc.RevokeRead(ctx, f.bob, "/r", ids(f.carol))
	assert.ErrorIs(t, err, ErrPermissionDenied)

	got, err := f.svc.ReadFile(ctx, f.carol, "/r")
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))
}

func TestRevokeRead_PreservesCompression(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.svc.compression = storage.CompressZSTD

	f.write(t, f.alice, "/z", "zzzzzzzzzzzzzzzzzzzzzzzzzzzz", f.bob)
	_, err := f.svc.RevokeRead(ctx, f.alice, "/z", ids(f.bob))
	require.NoError(t, err)

	got, err := f.svc.ReadFile(ctx, f.alice, "/z")
	require.NoError(t, err)
	assert.Equal(t, "zzzzzzzzzzzzzzzzzzzzzzzzzzzz", string(got))
}

func TestShareAndRevoke(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.write(t, f.alice, "test.txt", "hello world")

	_, err := f.svc.GrantRead(ctx, f.alice, "test.txt", ids(f.bob))
	require.NoError(t, err)

	got, err := f.svc.ReadFile(ctx, f.bob, "test.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(got))

	_, err = f.svc.RevokeRead(ctx, f.alice, "test.txt", ids(f.bob))
	require.NoError(t, err)

	_, err = f.svc.ReadFile(ctx, f.bob, "test.txt")
	assert.ErrorIs(t, err, ErrPermissionDenied)

	got, err = f.svc.ReadFile(ctx, f.alice, "test.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(got))
}

// --- GrantWrite / RevokeWrite ---

func TestGrantWrite_MovesRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created := f.write(t, f.alice, "/w", "original", f.bob)

	_, err := f.svc.WriteFile(ctx, f.bob, &WriteOpts{Path: "/w", Data: []byte("bob")})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	res, err := f.svc.GrantWrite(ctx, f.alice, "/w", ids(f.bob))
	require.NoError(t, err)
	assert.NotEqual(t, created.Address, res.Address)
	assert.Equal(t, created.ContentHandle, res.ContentHandle)

	got, err := f.svc.ReadFile(ctx, f.bob, "/w")
	require.NoError(t, err)
	assert.Equal(t, "original", string(got))

	_, err = f.svc.WriteFile(ctx, f.bob, &WriteOpts{Path: "/w", Data: []byte("bob")})
	require.NoError(t, err)

	acl, err := f.svc.ReadACL(ctx, f.alice, "/w")
	require.NoError(t, err)
	assert.ElementsMatch(t, []keywrap.Identity{f.alice.ID, f.bob.ID}, acl.Write)

	// The old record no longer exists.
	_, err = f.svc.replica.Open(ctx, created.Address)
	assert.Error(t, err)
}

func TestGrantWrite_Unchanged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created := f.write(t, f.alice, "/w", "original")

	res, err := f.svc.GrantWrite(ctx, f.alice, "/w", ids(f.alice))
	require.NoError(t, err)
	assert.Equal(t, created.Address, res.Address)
}

func TestGrantWrite_Denied(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.write(t, f.alice, "/w", "original", f.bob)

	_, err := f.svc.GrantWrite(ctx, f.bob, "/w", ids(f.bob))
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestRevokeWrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.write(t, f.alice, "/w", "v1", f.bob)
	_, err := f.svc.GrantWrite(ctx, f.alice, "/w", ids(f.bob, f.carol))
	require.NoError(t, err)

	_, err = f.svc.RevokeWrite(ctx, f.alice, "/w", ids(f.carol))
	require.NoError(t, err)

	_, err = f.svc.WriteFile(ctx, f.carol, &WriteOpts{Path: "/w", Data: []byte("c")})
	assert.ErrorIs(t, err, ErrPermissionDenied)
	_, err = f.svc.WriteFile(ctx, f.bob, &WriteOpts{Path: "/w", Data: []byte("b")})
	require.NoError(t, err)
}

func TestRevokeWrite_Self(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.write(t, f.alice, "/w", "v1", f.bob)
	_, err := f.svc.GrantWrite(ctx, f.alice, "/w", ids(f.bob))
	require.NoError(t, err)

	_, err = f.svc.RevokeWrite(ctx, f.bob, "/w", ids(f.bob))
	require.NoError(t, err)

	_, err = f.svc.WriteFile(ctx, f.bob, &WriteOpts{Path: "/w", Data: []byte("b")})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	// Bob still reads; the owner still writes.
	got, err := f.svc.ReadFile(ctx, f.bob, "/w")
	require.NoError(t, err)
	assert.Equal(t, "v1", string(got))
	_, err = f.svc.WriteFile(ctx, f.alice, &WriteOpts{Path: "/w", Data: []byte("v2")})
	require.NoError(t, err)
}

func TestRevokeWrite_Owner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.write(t, f.alice, "/w", "v1")

	_, err := f.svc.RevokeWrite(ctx, f.alice, "/w", ids(f.alice))
	assert.ErrorIs(t, err, ErrOwnerRequired)

	acl, err := f.svc.ReadACL(ctx, f.alice, "/w")
	require.NoError(t, err)
	assert.Equal(t, []keywrap.Identity{f.alice.ID}, acl.Write)
}

// --- Record moves against stale state ---

func TestRebind_AfterOverwrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.write(t, f.alice, "/f", "v1")
	stale, err := f.svc.load(ctx, f.alice.ID, "/f")
	require.NoError(t, err)
	f.write(t, f.alice, "/f", "v2")

	// The move copied a record that no longer holds the current content.
	_, err = f.svc.rebind(ctx, f.alice, stale, stale.store.AccessController().Grant(f.bob.ID), "granted write")
	assert.ErrorIs(t, err, ErrConflict)

	_, err = f.blobs.GC(ctx)
	require.NoError(t, err)

	got, err := f.svc.ReadFile(ctx, f.alice, "/f")
	require.NoError(t, err)
	assert.Equal(t, "v2", string(got))

	acl, err := f.svc.ReadACL(ctx, f.alice, "/f")
	require.NoError(t, err)
	assert.Equal(t, []keywrap.Identity{f.alice.ID}, acl.Write)

	// Retrying through the public operation applies the move to v2.
	_, err = f.svc.GrantWrite(ctx, f.alice, "/f", ids(f.bob))
	require.NoError(t, err)
	got, err = f.svc.ReadFile(ctx, f.alice, "/f")
	require.NoError(t, err)
	assert.Equal(t, "v2", string(got))
}

func TestRebind_AfterRemove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.write(t, f.alice, "/f", "v1")
	stale, err := f.svc.load(ctx, f.alice.ID, "/f")
	require.NoError(t, err)
	_, err = f.svc.Remove(ctx, f.alice, "/f")
	require.NoError(t, err)

	_, err = f.svc.rebind(ctx, f.alice, stale, stale.store.AccessController().Grant(f.bob.ID), "granted write")
	assert.ErrorIs(t, err, ErrConflict)

	_, err = f.svc.ReadFile(ctx, f.alice, "/f")
	assert.ErrorIs(t, err, ErrNotFound)
	names, err := f.svc.Readdir(ctx, f.alice, "/")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestSwap_AfterMove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.write(t, f.alice, "/f", "v1", f.bob)
	stale, err := f.svc.load(ctx, f.alice.ID, "/f")
	require.NoError(t, err)
	_, err = f.svc.GrantWrite(ctx, f.alice, "/f", ids(f.bob))
	require.NoError(t, err)

	// A change based on the moved record must not land anywhere.
	meta := stale.meta.Clone()
	meta.Version++
	assert.ErrorIs(t, f.svc.swap(ctx, stale, meta), ErrConflict)

	info, err := f.svc.Stat(ctx, f.alice, "/f")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), info.Version)
}

func TestLoadForWrite_Retired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.write(t, f.alice, "/f", "v1")
	rec, err := f.svc.load(ctx, f.alice.ID, "/f")
	require.NoError(t, err)

	// A record retired by a move still in flight refuses changes.
	retired := rec.meta.Clone()
	retired.Retired = true
	require.NoError(t, f.svc.swap(ctx, rec, retired))

	_, err = f.svc.loadForWrite(ctx, f.alice.ID, "/f")
	assert.ErrorIs(t, err, ErrConflict)

	// Readers are unaffected until the move completes.
	got, err := f.svc.ReadFile(ctx, f.alice, "/f")
	require.NoError(t, err)
	assert.Equal(t, "v1", string(got))
}
