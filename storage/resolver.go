package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// MaxContentResponseSize is the maximum allowed response body size for content
// fetches (1 GB). This prevents memory exhaustion from malicious endpoints.
const MaxContentResponseSize = 1 << 30

// BlobPathPrefix is the HTTP path under which peers serve blobs by handle.
const BlobPathPrefix = "/_dfs/blob/"

var _ Store = (*Resolver)(nil)

// Resolver is a Store that reads from a local store first and falls back to
// peer HTTP endpoints in priority order. Remote content is verified against its
// handle and cached locally. Writes and removals only touch the local store.
type Resolver struct {
	Local     Store        // local content-addressed storage
	Endpoints []string     // peer base URLs (e.g. "http://localhost:8080")
	Client    *http.Client // HTTP client for remote fetches; nil uses default

	logger zerolog.Logger
}

// NewResolver creates a Resolver over the given local store.
// Endpoints and Client can be set after creation.
func NewResolver(local Store, endpoints ...string) *Resolver {
	return &Resolver{
		Local:     local,
		Endpoints: endpoints,
		Client: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: zerolog.Nop(),
	}
}

// SetLogger replaces the resolver's logger.
func (r *Resolver) SetLogger(l zerolog.Logger) { r.logger = l }

// Add stores data in the local store.
func (r *Resolver) Add(ctx context.Context, data []byte) (Handle, error) {
	if r.Local == nil {
		return "", fmt.Errorf("%w: resolver has no local store", ErrIOFailure)
	}
	return r.Local.Add(ctx, data)
}

// Cat retrieves content for h, trying sources in order:
//  1. Local store
//  2. Peer HTTP endpoints (GET {base}/_dfs/blob/{handle})
//
// Returns the first verified result or ErrNotFound if all sources fail.
func (r *Resolver) Cat(ctx context.Context, h Handle) ([]byte, error) {
	if err := h.Validate(); err != nil {
		return nil, err
	}

	if r.Local != nil {
		data, err := r.Local.Cat(ctx, h)
		if err == nil {
			return data, nil
		}
		// Only continue if not found; other errors are real failures.
		if !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("resolver: local store: %w", err)
		}
	}

	client := r.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	for _, ep := range r.Endpoints {
		data, err := r.fetchFromEndpoint(ctx, client, ep, h)
		if err != nil {
			r.logger.Debug().Err(err).Str("endpoint", ep).Str("handle", string(h)).Msg("blob fetch failed")
			continue
		}
		if HandleOf(data) != h {
			r.logger.Warn().Str("endpoint", ep).Str("handle", string(h)).Err(ErrHashMismatch).Msg("discarding blob")
			continue
		}
		if r.Local != nil {
			if _, err := r.Local.Add(ctx, data); err != nil {
				r.logger.Warn().Err(err).Str("handle", string(h)).Msg("blob cache write failed")
			}
		}
		return data, nil
	}

	return nil, fmt.Errorf("resolver: %w: handle %s", ErrNotFound, h)
}

// Has checks the local store only.
func (r *Resolver) Has(ctx context.Context, h Handle) (bool, error) {
	if r.Local == nil {
		return false, nil
	}
	return r.Local.Has(ctx, h)
}

// Remove releases h from the local store.
func (r *Resolver) Remove(ctx context.Context, h Handle) error {
	if r.Local == nil {
		return ErrNotFound
	}
	return r.Local.Remove(ctx, h)
}

// List returns the handles held locally.
func (r *Resolver) List(ctx context.Context) ([]Handle, error) {
	if r.Local == nil {
		return nil, nil
	}
	return r.Local.List(ctx)
}

// GC collects the local store when it supports collection.
func (r *Resolver) GC(ctx context.Context) (int, error) {
	if gc, ok := r.Local.(GarbageCollector); ok {
		return gc.GC(ctx)
	}
	return 0, nil
}

// fetchFromEndpoint fetches content from a single peer endpoint.
func (r *Resolver) fetchFromEndpoint(ctx context.Context, client *http.Client, baseURL string, h Handle) ([]byte, error) {
	url := strings.TrimRight(baseURL, "/") + BlobPathPrefix + string(h)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("resolver: endpoint %s: %w", baseURL, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("resolver: endpoint %s: %w", baseURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("resolver: endpoint %s: HTTP %d", baseURL, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxContentResponseSize))
	if err != nil {
		return nil, fmt.Errorf("resolver: endpoint %s: read body: %w", baseURL, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("resolver: endpoint %s: empty response", baseURL)
	}

	return data, nil
}

// Handler serves blobs from store at GET {BlobPathPrefix}{handle}. It is the
// server side of Resolver's endpoint fetch.
func Handler(store Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet && req.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h, err := ParseHandle(strings.TrimPrefix(req.URL.Path, BlobPathPrefix))
		if err != nil || !strings.HasPrefix(req.URL.Path, BlobPathPrefix) {
			http.Error(w, "invalid handle", http.StatusBadRequest)
			return
		}
		data, err := store.Cat(req.Context(), h)
		if errors.Is(err, ErrNotFound) {
			http.NotFound(w, req)
			return
		}
		if err != nil {
			http.Error(w, "storage error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(data)
	})
}
