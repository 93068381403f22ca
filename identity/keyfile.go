package identity

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	"golang.org/x/crypto/argon2"

	"github.com/bitfsorg/libdfs-go/keywrap"
)

const (
	// Argon2id parameters for key file encryption.
	Argon2Time        = 3
	Argon2Memory      = 64 * 1024 // 64 MB
	Argon2Parallelism = 4
	Argon2KeyLen      = 32

	// Encryption format sizes.
	SaltLen     = 16
	NonceLen    = 12
	ChecksumLen = 4

	// keyFileExt is the extension of key files in a FileKeystore directory.
	keyFileExt = ".key"
)

// EncryptKey encrypts secret with Argon2id + AES-256-GCM.
//
// Output format: salt(16B) || nonce(12B) || AES-GCM(argon2id(password,salt), nonce, secret||checksum)
//
// The checksum is SHA256(secret)[:4] for verifying correct decryption.
func EncryptKey(secret []byte, password string) ([]byte, error) {
	if len(secret) == 0 {
		return nil, ErrNilKey
	}

	salt := make([]byte, SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("identity: failed to generate salt: %w", err)
	}

	gcm, err := passwordGCM(password, salt)
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(secret)
	plaintext := make([]byte, 0, len(secret)+ChecksumLen)
	plaintext = append(plaintext, secret...)
	plaintext = append(plaintext, sum[:ChecksumLen]...)

	nonce := make([]byte, NonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("identity: failed to generate nonce: %w", err)
	}

	out := make([]byte, 0, SaltLen+NonceLen+len(plaintext)+gcm.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, plaintext, nil), nil
}

// DecryptKey reverses EncryptKey and verifies the checksum.
func DecryptKey(encrypted []byte, password string) ([]byte, error) {
	if len(encrypted) < SaltLen+NonceLen+ChecksumLen {
		return nil, ErrDecryptionFailed
	}

	salt := encrypted[:SaltLen]
	nonce := encrypted[SaltLen : SaltLen+NonceLen]
	ciphertext := encrypted[SaltLen+NonceLen:]

	gcm, err := passwordGCM(password, salt)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil || len(plaintext) < ChecksumLen {
		return nil, ErrDecryptionFailed
	}

	secret := plaintext[:len(plaintext)-ChecksumLen]
	sum := sha256.Sum256(secret)
	if subtle.ConstantTimeCompare(sum[:ChecksumLen], plaintext[len(secret):]) != 1 {
		return nil, ErrChecksumMismatch
	}
	return secret, nil
}

func passwordGCM(password string, salt []byte) (cipher.AEAD, error) {
	derived := argon2.IDKey([]byte(password), salt, Argon2Time, Argon2Memory, Argon2Parallelism, Argon2KeyLen)
	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, fmt.Errorf("identity: AES cipher creation failed: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("identity: GCM creation failed: %w", err)
	}
	return gcm, nil
}

// FileKeystore keeps password-encrypted private keys at {dir}/{identity}.key.
type FileKeystore struct {
	dir      string
	password string
}

var _ Keystore = (*FileKeystore)(nil)

// NewFileKeystore opens a keystore directory, creating it if needed.
func NewFileKeystore(dir, password string) (*FileKeystore, error) {
	if dir == "" {
		return nil, fmt.Errorf("identity: keystore directory is empty")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("identity: create keystore directory: %w", err)
	}
	return &FileKeystore{dir: dir, password: password}, nil
}

func (ks *FileKeystore) path(id keywrap.Identity) string {
	return filepath.Join(ks.dir, string(id)+keyFileExt)
}

// Save encrypts priv and writes it to the keystore.
func (ks *FileKeystore) Save(priv *ec.PrivateKey) (keywrap.Identity, error) {
	if priv == nil {
		return "", ErrNilKey
	}
	id := keywrap.IdentityOf(priv.PubKey())
	enc, err := EncryptKey(priv.Serialize(), ks.password)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(ks.path(id), enc, 0600); err != nil {
		return "", fmt.Errorf("identity: write key file: %w", err)
	}
	return id, nil
}

// GetKey reads and decrypts the key for id.
func (ks *FileKeystore) GetKey(id keywrap.Identity) (*ec.PrivateKey, error) {
	if _, err := keywrap.ParseIdentity(string(id)); err != nil {
		return nil, err
	}
	enc, err := os.ReadFile(ks.path(id))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, id.Short())
	}
	if err != nil {
		return nil, fmt.Errorf("identity: read key file: %w", err)
	}
	secret, err := DecryptKey(enc, ks.password)
	if err != nil {
		return nil, err
	}
	priv, _ := ec.PrivateKeyFromBytes(secret)
	if keywrap.IdentityOf(priv.PubKey()) != id {
		return nil, fmt.Errorf("%w: key file %s holds a different key", ErrChecksumMismatch, id.Short())
	}
	return priv, nil
}

// List returns the identities with a key file, sorted.
func (ks *FileKeystore) List() ([]keywrap.Identity, error) {
	entries, err := os.ReadDir(ks.dir)
	if err != nil {
		return nil, fmt.Errorf("identity: read keystore directory: %w", err)
	}
	var out []keywrap.Identity
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), keyFileExt)
		if e.IsDir() || !ok {
			continue
		}
		if id, err := keywrap.ParseIdentity(name); err == nil {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}
