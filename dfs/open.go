package dfs

import (
	"context"
	"fmt"

	"github.com/bitfsorg/libdfs-go/config"
	"github.com/bitfsorg/libdfs-go/identity"
	"github.com/bitfsorg/libdfs-go/metadata"
	"github.com/bitfsorg/libdfs-go/storage"
)

// OpenFromConfig builds a Service backed by the node state described in cfg:
// a sharded blob directory fronted by the peer endpoints, a bbolt metadata
// replica, a keystore unlocked with password and a DNS alias resolver.
// Close releases the database and the log file.
func OpenFromConfig(ctx context.Context, cfg config.Config, password string) (*Service, error) {
	if err := config.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	scheme, err := storage.ParseCompression(cfg.Compression)
	if err != nil {
		return nil, fmt.Errorf("dfs: %w", err)
	}

	// Step 1: Logger.
	logger, logCloser, err := config.NewLogger(cfg)
	if err != nil {
		return nil, err
	}

	// Step 2: Blob store with remote fallback.
	local, err := storage.NewFileStore(cfg.BlobPath())
	if err != nil {
		_ = logCloser.Close()
		return nil, classify(fmt.Errorf("dfs: open blob store: %w", err))
	}
	blobs := storage.NewResolver(local, cfg.Endpoints...)
	blobs.SetLogger(logger.With().Str("component", "blobs").Logger())

	// Step 3: Metadata replica.
	replica, err := metadata.OpenBoltReplica(cfg.MetadataPath(), "")
	if err != nil {
		_ = logCloser.Close()
		return nil, classify(fmt.Errorf("dfs: open metadata: %w", err))
	}
	replica.SetLogger(logger.With().Str("component", "metadata").Logger())

	// Step 4: Keystore.
	keys, err := identity.NewFileKeystore(cfg.KeyPath(), password)
	if err != nil {
		_ = replica.Close()
		_ = logCloser.Close()
		return nil, fmt.Errorf("dfs: open keystore: %w", err)
	}

	// Step 5: Alias resolution. A configured upstream enables DNSSEC.
	var lookup identity.DNSLookup = identity.NetLookup{}
	if cfg.DNSUpstream != "" {
		lookup = identity.NewDNSSECLookup(cfg.DNSUpstream)
	}

	svc, err := New(ctx, Options{
		Replica:     replica,
		Blobs:       blobs,
		Resolver:    identity.NewDNSResolver(lookup),
		Compression: scheme,
		Keys:        keys,
		Logger:      &logger,
	})
	if err != nil {
		_ = replica.Close()
		_ = logCloser.Close()
		return nil, err
	}
	svc.closers = append(svc.closers, logCloser, replica)

	logger.Info().Str("datadir", cfg.DataDir).Str("compression", cfg.Compression).
		Int("endpoints", len(cfg.Endpoints)).Msg("filesystem opened")
	return svc, nil
}
