// Copyright (c) 2024 The BitFS developers
// Use of this source code is governed by the Open BSV License v5
// that can be found in the LICENSE file.

package config

import "errors"

var (
	// ErrInvalidCompression indicates the compression scheme is not recognized.
	ErrInvalidCompression = errors.New("config: invalid compression (must be \"none\", \"lzw\", \"gzip\", or \"zstd\")")

	// ErrInvalidEndpoint indicates a peer endpoint is not an http(s) URL.
	ErrInvalidEndpoint = errors.New("config: invalid peer endpoint")

	// ErrInvalidUpstream indicates the DNS upstream is not a host:port address.
	ErrInvalidUpstream = errors.New("config: invalid DNS upstream address")

	// ErrInvalidLogLevel indicates the log level is not recognized.
	ErrInvalidLogLevel = errors.New("config: invalid log level (must be \"debug\", \"info\", \"warn\", or \"error\")")

	// ErrEmptyDataDir indicates the data directory path is empty.
	ErrEmptyDataDir = errors.New("config: data directory must not be empty")

	// ErrConfigNotFound indicates the configuration file does not exist.
	ErrConfigNotFound = errors.New("config: configuration file not found")

	// ErrInvalidConfigLine indicates a line in the config file is malformed.
	ErrInvalidConfigLine = errors.New("config: invalid configuration line")
)
