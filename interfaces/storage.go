package interfaces

import (
	"context"
	"errors"
	"io"
)

var (
	// ErrSecretNotFound is returned when no secret is stored under a key.
	ErrSecretNotFound = errors.New("secret not found")

	// ErrSecretExists is returned by SecretRepository.Insert when the key is
	// already taken. Secrets are write-once.
	ErrSecretExists = errors.New("secret already exists")

	// ErrInvalidSecretHeader is returned when a header or key fails validation.
	ErrInvalidSecretHeader = errors.New("invalid secret header")

	// ErrBackendUnavailable is returned when a repository is not accessible.
	ErrBackendUnavailable = errors.New("secret repository unavailable")

	// ErrInvalidLocationURI is returned when a repository or gateway URI is
	// malformed or unsupported.
	ErrInvalidLocationURI = errors.New("invalid location URI")

	// ErrDecryptionFailed is returned when a ciphertext cannot be decrypted.
	ErrDecryptionFailed = errors.New("decryption failed")

	// ErrOwnerNotFound is returned when an on-chain object has no known owner.
	ErrOwnerNotFound = errors.New("owner not found")
)

// SecretRepository persists encrypted secrets. Keys are unique within a
// namespace and the uniqueness is enforced by the backing store itself, so
// concurrent writers in different processes cannot both succeed.
type SecretRepository interface {
	io.Closer

	// Insert stores ciphertext under key. It returns ErrSecretExists if the
	// key is already present and never overwrites.
	Insert(ctx context.Context, namespace, key, ciphertext string) error

	// Get returns the ciphertext stored under key or ErrSecretNotFound.
	Get(ctx context.Context, namespace, key string) (string, error)

	// GetMany returns the ciphertexts of all present keys in one round-trip.
	// Absent keys are omitted from the result.
	GetMany(ctx context.Context, namespace string, keys []string) (map[string]string, error)

	// Exists reports whether key is present.
	Exists(ctx context.Context, namespace, key string) (bool, error)

	// Name returns identifier for logging.
	Name() string
}
