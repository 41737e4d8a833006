package secrets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ruteri/tee-secret-management-backend/interfaces"
	"github.com/ruteri/tee-secret-management-backend/metrics"
)

// Repository namespaces of the stores the service runs.
const (
	NamespaceCompute        = "compute"
	NamespaceDataset        = "dataset"
	NamespaceOwner          = "owner"
	NamespaceTaskCredential = "task-credential"
)

// Store keeps encrypted secrets addressed by keys of type K in one namespace
// of a repository.
type Store[K interfaces.SecretKey] struct {
	namespace string
	repo      interfaces.SecretRepository
	gateway   interfaces.EncryptionGateway
	cache     *ExistenceCache[K]
	log       *slog.Logger
}

// ComputeSecretStore holds application developer and requester secrets.
type ComputeSecretStore = Store[interfaces.ComputeSecretHeader]

// OwnerSecretStore holds dataset keys and owner secrets.
type OwnerSecretStore = Store[interfaces.OwnerSecretKey]

// NewStore creates a store over namespace. A nil policy selects the unbounded
// existence cache.
func NewStore[K interfaces.SecretKey](namespace string, repo interfaces.SecretRepository, gateway interfaces.EncryptionGateway, policy CachePolicy[K], log *slog.Logger) *Store[K] {
	log = log.With(slog.String("store", namespace))
	return &Store[K]{
		namespace: namespace,
		repo:      repo,
		gateway:   gateway,
		cache:     NewExistenceCache(policy, log),
		log:       log,
	}
}

func (s *Store[K]) Namespace() string { return s.namespace }

// Exists reports whether a secret is stored under key, asking the repository
// only when the cache has no answer.
func (s *Store[K]) Exists(ctx context.Context, key K) (bool, error) {
	if exists, ok := s.cache.Lookup(key); ok {
		metrics.RecordExistenceCheck(s.namespace, true)
		return exists, nil
	}
	metrics.RecordExistenceCheck(s.namespace, false)

	exists, err := s.repo.Exists(ctx, s.namespace, key.StorageKey())
	if err != nil {
		return false, err
	}
	s.cache.Put(key, exists)
	return exists, nil
}

// Get returns the secret stored under key, or nil if there is none. With
// decrypt set the returned value is the plaintext, and a decryption failure
// is returned as an error.
func (s *Store[K]) Get(ctx context.Context, key K, decrypt bool) (*interfaces.Secret[K], error) {
	ciphertext, err := s.repo.Get(ctx, s.namespace, key.StorageKey())
	if errors.Is(err, interfaces.ErrSecretNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.cache.Put(key, true)

	if !decrypt {
		return &interfaces.Secret[K]{Key: key, Value: ciphertext}, nil
	}

	plaintext, err := s.gateway.Decrypt(ctx, ciphertext)
	if err != nil {
		s.log.Error("Failed to decrypt secret", slog.String("key", key.StorageKey()), "err", err)
		return nil, fmt.Errorf("failed to decrypt secret %s: %w", key.StorageKey(), err)
	}
	return &interfaces.Secret[K]{Key: key, Value: plaintext, Decrypted: true}, nil
}

// GetMany fetches and decrypts all present keys with a single repository
// call. Absent keys are omitted and the order of the result is unspecified.
func (s *Store[K]) GetMany(ctx context.Context, keys []K) ([]interfaces.Secret[K], error) {
	byStorageKey := make(map[string]K, len(keys))
	storageKeys := make([]string, 0, len(keys))
	for _, key := range keys {
		sk := key.StorageKey()
		if _, dup := byStorageKey[sk]; dup {
			continue
		}
		byStorageKey[sk] = key
		storageKeys = append(storageKeys, sk)
	}
	if len(storageKeys) == 0 {
		return nil, nil
	}

	ciphertexts, err := s.repo.GetMany(ctx, s.namespace, storageKeys)
	if err != nil {
		return nil, err
	}

	result := make([]interfaces.Secret[K], 0, len(ciphertexts))
	for sk, ciphertext := range ciphertexts {
		key, ok := byStorageKey[sk]
		if !ok {
			continue
		}
		s.cache.Put(key, true)

		plaintext, err := s.gateway.Decrypt(ctx, ciphertext)
		if err != nil {
			s.log.Error("Failed to decrypt secret", slog.String("key", sk), "err", err)
			return nil, fmt.Errorf("failed to decrypt secret %s: %w", sk, err)
		}
		result = append(result, interfaces.Secret[K]{Key: key, Value: plaintext, Decrypted: true})
	}
	return result, nil
}

// PutIfAbsent encrypts and stores plaintext unless a secret already exists
// under key. It returns false, without error, when the key was taken, either
// according to the cache or to the repository. Other persistence failures are
// returned with false.
func (s *Store[K]) PutIfAbsent(ctx context.Context, key K, plaintext string) (bool, error) {
	exists, err := s.Exists(ctx, key)
	if err != nil {
		s.log.Error("Failed to check secret existence", slog.String("key", key.StorageKey()), "err", err)
		return false, err
	}
	if exists {
		return false, nil
	}

	ciphertext, err := s.gateway.Encrypt(ctx, plaintext)
	if err != nil {
		s.log.Error("Failed to encrypt secret", slog.String("key", key.StorageKey()), "err", err)
		return false, fmt.Errorf("failed to encrypt secret: %w", err)
	}

	err = s.repo.Insert(ctx, s.namespace, key.StorageKey(), ciphertext)
	if errors.Is(err, interfaces.ErrSecretExists) {
		s.log.Debug("Secret was added concurrently", slog.String("key", key.StorageKey()))
		s.cache.Put(key, true)
		return false, nil
	}
	if err != nil {
		s.log.Error("Failed to persist secret", slog.String("key", key.StorageKey()), "err", err)
		return false, err
	}

	s.cache.Put(key, true)
	metrics.RecordSecretAdded(s.namespace)
	s.log.Debug("Secret added", slog.String("key", key.StorageKey()))
	return true, nil
}
