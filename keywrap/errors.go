package keywrap

import "errors"

var (
	// ErrNilPrivateKey indicates a nil private key was provided.
	ErrNilPrivateKey = errors.New("keywrap: private key is nil")

	// ErrNilPublicKey indicates a nil public key was provided.
	ErrNilPublicKey = errors.New("keywrap: public key is nil")

	// ErrInvalidIdentity indicates an identity string is not the hex encoding of a
	// compressed secp256k1 public key.
	ErrInvalidIdentity = errors.New("keywrap: invalid identity")

	// ErrInvalidEnvelope indicates a wrapped key has the wrong length or a malformed
	// ephemeral public key.
	ErrInvalidEnvelope = errors.New("keywrap: invalid envelope")

	// ErrUnwrapFailed indicates the private key does not open the envelope.
	ErrUnwrapFailed = errors.New("keywrap: unwrap failed")

	// ErrPermissionDenied indicates the caller holds no envelope that its key can open.
	ErrPermissionDenied = errors.New("keywrap: permission denied")

	// ErrInvalidCiphertext indicates the ciphertext is too short or malformed.
	// Minimum length: 12 (nonce) + 16 (GCM tag) = 28 bytes.
	ErrInvalidCiphertext = errors.New("keywrap: invalid ciphertext")

	// ErrDecryptionFailed indicates AES-GCM authentication failed during decryption.
	ErrDecryptionFailed = errors.New("keywrap: decryption failed")

	// ErrHKDFFailure indicates HKDF key derivation failed.
	ErrHKDFFailure = errors.New("keywrap: HKDF key derivation failed")
)
