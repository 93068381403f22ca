// Copyright (c) 2024 The BitFS developers
// Use of this source code is governed by the Open BSV License v5
// that can be found in the LICENSE file.

// Package config loads and saves the on-disk configuration of a dfs node.
//
// The file is a flat list of "key = value" lines; '#' starts a comment line.
// Unknown keys are ignored so older builds can read newer files.
package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// configFileName is the name of the configuration file inside the data directory.
	configFileName = "config"

	// dataDirName is the default data directory name under the user's home.
	dataDirName = ".dfs"
)

// Config holds node configuration. Empty path fields are derived from DataDir.
type Config struct {
	DataDir     string   // root of all node state
	BlobDir     string   // content-addressed blob store; default {DataDir}/blobs
	MetadataDB  string   // bbolt metadata replica; default {DataDir}/metadata.db
	KeyDir      string   // encrypted key files; default {DataDir}/keys
	Compression string   // none, lzw, gzip or zstd
	Endpoints   []string // peer base URLs consulted for missing blobs
	DNSUpstream string   // DNSSEC resolver host:port; empty uses the system resolver
	LogLevel    string
	LogFile     string // empty logs to stderr
}

// DefaultDataDir returns ~/.dfs, or ./.dfs when the home directory is unknown.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return dataDirName
	}
	return filepath.Join(home, dataDirName)
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() Config {
	return Config{
		DataDir:     DefaultDataDir(),
		Compression: "none",
		LogLevel:    "info",
	}
}

// ConfigPath returns the configuration file path inside dataDir.
func ConfigPath(dataDir string) string {
	return filepath.Join(filepath.Clean(dataDir), configFileName)
}

// BlobPath returns the blob store directory.
func (c Config) BlobPath() string {
	if c.BlobDir != "" {
		return c.BlobDir
	}
	return filepath.Join(c.DataDir, "blobs")
}

// MetadataPath returns the metadata database file.
func (c Config) MetadataPath() string {
	if c.MetadataDB != "" {
		return c.MetadataDB
	}
	return filepath.Join(c.DataDir, "metadata.db")
}

// KeyPath returns the keystore directory.
func (c Config) KeyPath() string {
	if c.KeyDir != "" {
		return c.KeyDir
	}
	return filepath.Join(c.DataDir, "keys")
}

// LoadConfig reads the file at path over DefaultConfig. Keys missing from the
// file keep their defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return cfg, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, err := parseKeyValue(line)
		if err != nil {
			return cfg, fmt.Errorf("%w: line %d: %q", ErrInvalidConfigLine, lineNo, line)
		}
		applyKey(&cfg, key, value)
	}
	if err := scanner.Err(); err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}

	return cfg, nil
}

// parseKeyValue splits "key = value" on the first '='.
func parseKeyValue(line string) (string, string, error) {
	key, value, ok := strings.Cut(line, "=")
	if !ok {
		return "", "", ErrInvalidConfigLine
	}
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return "", "", ErrInvalidConfigLine
	}
	return key, strings.TrimSpace(value), nil
}

func applyKey(cfg *Config, key, value string) {
	switch key {
	case "datadir":
		cfg.DataDir = value
	case "blobdir":
		cfg.BlobDir = value
	case "metadb":
		cfg.MetadataDB = value
	case "keydir":
		cfg.KeyDir = value
	case "compression":
		cfg.Compression = value
	case "endpoints":
		cfg.Endpoints = splitList(value)
	case "dnsupstream":
		cfg.DNSUpstream = value
	case "loglevel":
		cfg.LogLevel = value
	case "logfile":
		cfg.LogFile = value
	}
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// SaveConfig writes cfg to path, creating parent directories.
func SaveConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("config: create directory: %w", err)
	}

	var b strings.Builder
	b.WriteString("# dfs Configuration\n")
	b.WriteString("# Generated file; lines are \"key = value\".\n\n")
	fmt.Fprintf(&b, "datadir = %s\n", cfg.DataDir)
	fmt.Fprintf(&b, "blobdir = %s\n", cfg.BlobDir)
	fmt.Fprintf(&b, "metadb = %s\n", cfg.MetadataDB)
	fmt.Fprintf(&b, "keydir = %s\n", cfg.KeyDir)
	fmt.Fprintf(&b, "compression = %s\n", cfg.Compression)
	fmt.Fprintf(&b, "endpoints = %s\n", strings.Join(cfg.Endpoints, ","))
	fmt.Fprintf(&b, "dnsupstream = %s\n", cfg.DNSUpstream)
	fmt.Fprintf(&b, "loglevel = %s\n", cfg.LogLevel)
	fmt.Fprintf(&b, "logfile = %s\n", cfg.LogFile)

	if err := os.WriteFile(path, []byte(b.String()), 0600); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}
