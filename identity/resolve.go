package identity

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/bitfsorg/libdfs-go/keywrap"
)

// TXTPrefix starts the TXT record value that publishes an identity.
const TXTPrefix = "dfs="

// Resolver maps a human-readable name to an identity.
type Resolver interface {
	Resolve(ctx context.Context, name string) (keywrap.Identity, error)
}

// DNSLookup performs TXT lookups. Tests substitute a fake.
type DNSLookup interface {
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

// NetLookup resolves TXT records with the system resolver.
type NetLookup struct{}

// LookupTXT looks up TXT records for name.
func (NetLookup) LookupTXT(ctx context.Context, name string) ([]string, error) {
	return net.DefaultResolver.LookupTXT(ctx, name)
}

// DNSResolver resolves a domain to the identity published in the TXT record
// at _dfs.{domain}, e.g. "dfs=02a1b2c3...".
type DNSResolver struct {
	Lookup DNSLookup
}

var _ Resolver = (*DNSResolver)(nil)

// NewDNSResolver creates a DNSResolver. A nil lookup uses NetLookup.
func NewDNSResolver(lookup DNSLookup) *DNSResolver {
	if lookup == nil {
		lookup = NetLookup{}
	}
	return &DNSResolver{Lookup: lookup}
}

// Resolve looks up _dfs.{domain} and returns the first valid identity record.
func (r *DNSResolver) Resolve(ctx context.Context, domain string) (keywrap.Identity, error) {
	domain = strings.TrimSuffix(strings.TrimSpace(domain), ".")
	if domain == "" {
		return "", fmt.Errorf("%w: empty domain", ErrDNSLookupFailed)
	}

	name := "_dfs." + domain
	txts, err := r.Lookup.LookupTXT(ctx, name)
	if err != nil {
		return "", fmt.Errorf("%w: TXT lookup for %s: %w", ErrDNSLookupFailed, name, err)
	}

	var lastErr error
	for _, txt := range txts {
		txt = strings.TrimSpace(txt)
		value, ok := strings.CutPrefix(txt, TXTPrefix)
		if !ok {
			continue
		}
		id, err := keywrap.ParseIdentity(value)
		if err != nil {
			lastErr = err
			continue
		}
		return id, nil
	}
	if lastErr != nil {
		return "", lastErr
	}
	return "", fmt.Errorf("%w: no %s TXT record for %s", ErrDNSLookupFailed, TXTPrefix, name)
}

// StaticResolver resolves names from a fixed table.
type StaticResolver map[string]keywrap.Identity

// Resolve returns the identity registered for name.
func (s StaticResolver) Resolve(_ context.Context, name string) (keywrap.Identity, error) {
	id, ok := s[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnresolvable, name)
	}
	return id, nil
}

// ResolveAll turns names into identities. A name that is already a valid
// identity is used as is; anything else goes through r. A nil r accepts only
// raw identities.
func ResolveAll(ctx context.Context, r Resolver, names []string) ([]keywrap.Identity, error) {
	out := make([]keywrap.Identity, 0, len(names))
	for _, name := range names {
		if id, err := keywrap.ParseIdentity(name); err == nil {
			out = append(out, id)
			continue
		}
		if r == nil {
			return nil, fmt.Errorf("%w: %q", keywrap.ErrInvalidIdentity, name)
		}
		id, err := r.Resolve(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %w", ErrUnresolvable, name, err)
		}
		out = append(out, id)
	}
	return out, nil
}
