package storage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// peer starts an HTTP server serving blobs from a fresh MemStore.
func peer(t *testing.T) (*MemStore, *httptest.Server) {
	t.Helper()
	remote := NewMemStore()
	srv := httptest.NewServer(Handler(remote))
	t.Cleanup(srv.Close)
	return remote, srv
}

func TestResolver_CatFromLocalStore(t *testing.T) {
	ctx := context.Background()
	local := NewMemStore()
	h, err := local.Add(ctx, []byte("encrypted-hello"))
	require.NoError(t, err)

	r := NewResolver(local)
	data, err := r.Cat(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, []byte("encrypted-hello"), data)
}

func TestResolver_CatFromEndpointCachesLocally(t *testing.T) {
	ctx := context.Background()
	remote, srv := peer(t)
	h, err := remote.Add(ctx, []byte("remote-encrypted-data"))
	require.NoError(t, err)

	local, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	r := NewResolver(local, srv.URL)
	r.Client = srv.Client()

	data, err := r.Cat(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, []byte("remote-encrypted-data"), data)

	ok, err := local.Has(ctx, h)
	require.NoError(t, err)
	assert.True(t, ok, "remote blob should be cached locally")
}

func TestResolver_SkipsHashMismatch(t *testing.T) {
	ctx := context.Background()
	want := []byte("the real content")
	h := HandleOf(want)

	liar := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("tampered content"))
	}))
	defer liar.Close()

	remote, honest := peer(t)
	_, err := remote.Add(ctx, want)
	require.NoError(t, err)

	r := NewResolver(NewMemStore(), liar.URL, honest.URL)
	data, err := r.Cat(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, want, data)
}

func TestResolver_AllEndpointsFail(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	r := NewResolver(NewMemStore(), srv.URL, srv.URL)
	_, err := r.Cat(context.Background(), HandleOf([]byte("nowhere")))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, int32(2), hits.Load())
}

func TestResolver_AddRemoveLocal(t *testing.T) {
	ctx := context.Background()
	local := NewMemStore()
	r := NewResolver(local)

	h, err := r.Add(ctx, []byte("local write"))
	require.NoError(t, err)
	list, err := r.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Handle{h}, list)

	require.NoError(t, r.Remove(ctx, h))
	n, err := r.GC(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	ok, err := r.Has(ctx, h)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResolver_NoLocalStore(t *testing.T) {
	r := &Resolver{}
	_, err := r.Add(context.Background(), []byte("x"))
	assert.ErrorIs(t, err, ErrIOFailure)
}

func TestHandler(t *testing.T) {
	ctx := context.Background()
	remote, srv := peer(t)
	h, err := remote.Add(ctx, []byte("served"))
	require.NoError(t, err)

	tests := []struct {
		name   string
		method string
		path   string
		status int
	}{
		{"found", http.MethodGet, BlobPathPrefix + string(h), http.StatusOK},
		{"missing", http.MethodGet, BlobPathPrefix + string(HandleOf([]byte("nope"))), http.StatusNotFound},
		{"bad handle", http.MethodGet, BlobPathPrefix + "xyz", http.StatusBadRequest},
		{"wrong method", http.MethodPost, BlobPathPrefix + string(h), http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, srv.URL+tt.path, nil)
			require.NoError(t, err)
			resp, err := srv.Client().Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}
