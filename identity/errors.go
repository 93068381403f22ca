package identity

import "errors"

var (
	// ErrKeyNotFound indicates the keystore holds no key for the identity.
	ErrKeyNotFound = errors.New("identity: key not found")

	// ErrNilKey indicates a nil private key was provided.
	ErrNilKey = errors.New("identity: private key is nil")

	// ErrInvalidMnemonic indicates the mnemonic fails BIP39 validation.
	ErrInvalidMnemonic = errors.New("identity: invalid BIP39 mnemonic")

	// ErrInvalidEntropy indicates entropy bits is not 128 or 256.
	ErrInvalidEntropy = errors.New("identity: entropy bits must be 128 or 256")

	// ErrDerivationFailed indicates BIP32 key derivation failed.
	ErrDerivationFailed = errors.New("identity: key derivation failed")

	// ErrIndexOutOfRange indicates a derivation index exceeds the non-hardened max.
	ErrIndexOutOfRange = errors.New("identity: index exceeds maximum (2^31-1)")

	// ErrDecryptionFailed indicates wrong password or corrupted key file.
	ErrDecryptionFailed = errors.New("identity: key decryption failed (wrong password or corrupted data)")

	// ErrChecksumMismatch indicates key checksum verification failed after decryption.
	ErrChecksumMismatch = errors.New("identity: key checksum mismatch")

	// ErrDNSLookupFailed indicates a TXT lookup failed or returned no usable record.
	ErrDNSLookupFailed = errors.New("identity: DNS lookup failed")

	// ErrDNSSECValidationFailed indicates the resolver did not authenticate the answer.
	ErrDNSSECValidationFailed = errors.New("identity: DNSSEC validation failed")

	// ErrUnresolvable indicates a name is neither an identity nor resolvable.
	ErrUnresolvable = errors.New("identity: cannot resolve name")
)
