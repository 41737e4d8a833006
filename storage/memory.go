package storage

import (
	"context"
	"sync"

	"github.com/ruteri/tee-secret-management-backend/interfaces"
)

// MemoryRepository keeps secrets in process memory. Nothing survives a
// restart; use it for tests and local development only.
type MemoryRepository struct {
	mu      sync.RWMutex
	secrets map[string]map[string]string
}

var _ interfaces.SecretRepository = (*MemoryRepository)(nil)

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{secrets: make(map[string]map[string]string)}
}

func (r *MemoryRepository) Name() string { return "memory" }

func (r *MemoryRepository) Close() error { return nil }

func (r *MemoryRepository) Insert(_ context.Context, namespace, key, ciphertext string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ns, ok := r.secrets[namespace]
	if !ok {
		ns = make(map[string]string)
		r.secrets[namespace] = ns
	}
	if _, exists := ns[key]; exists {
		return interfaces.ErrSecretExists
	}
	ns[key] = ciphertext
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, namespace, key string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	value, ok := r.secrets[namespace][key]
	if !ok {
		return "", interfaces.ErrSecretNotFound
	}
	return value, nil
}

func (r *MemoryRepository) GetMany(_ context.Context, namespace string, keys []string) (map[string]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]string, len(keys))
	for _, key := range keys {
		if value, ok := r.secrets[namespace][key]; ok {
			result[key] = value
		}
	}
	return result, nil
}

func (r *MemoryRepository) Exists(_ context.Context, namespace, key string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.secrets[namespace][key]
	return ok, nil
}
