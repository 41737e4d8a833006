package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/ruteri/tee-secret-management-backend/interfaces"
)

// PebbleRepository implements interfaces.SecretRepository on an embedded
// Pebble database. Pebble locks its directory, so a single process owns the
// data and the insert mutex is enough to keep keys write-once.
type PebbleRepository struct {
	db   *pebble.DB
	path string
	log  *slog.Logger

	insertMu sync.Mutex
}

var _ interfaces.SecretRepository = (*PebbleRepository)(nil)

// NewPebbleRepository opens or creates a Pebble database at path.
func NewPebbleRepository(path string, log *slog.Logger) (*PebbleRepository, error) {
	opts := &pebble.Options{
		Cache:        pebble.NewCache(8 << 20), // 8 MB cache
		MemTableSize: 4 << 20,                  // 4 MB memtable
	}

	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble database at %s: %w", path, err)
	}

	return &PebbleRepository{db: db, path: path, log: log}, nil
}

func (r *PebbleRepository) Name() string { return "pebble:" + r.path }

func (r *PebbleRepository) Close() error { return r.db.Close() }

// pebbleKey separates the namespace with a NUL byte, which never occurs in
// namespaces or escaped storage keys.
func pebbleKey(namespace, key string) []byte {
	out := make([]byte, 0, len(namespace)+1+len(key))
	out = append(out, namespace...)
	out = append(out, 0)
	return append(out, key...)
}

func (r *PebbleRepository) Insert(_ context.Context, namespace, key, ciphertext string) error {
	k := pebbleKey(namespace, key)

	r.insertMu.Lock()
	defer r.insertMu.Unlock()

	_, closer, err := r.db.Get(k)
	if err == nil {
		closer.Close()
		return interfaces.ErrSecretExists
	}
	if !errors.Is(err, pebble.ErrNotFound) {
		return fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}

	// Secrets are written once and never rewritten, so every write is synced.
	if err := r.db.Set(k, []byte(ciphertext), pebble.Sync); err != nil {
		r.log.Error("Failed to insert secret",
			slog.String("namespace", namespace),
			"err", err)
		return fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	return nil
}

func (r *PebbleRepository) Get(_ context.Context, namespace, key string) (string, error) {
	value, closer, err := r.db.Get(pebbleKey(namespace, key))
	if errors.Is(err, pebble.ErrNotFound) {
		return "", interfaces.ErrSecretNotFound
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	defer closer.Close()

	// string() copies, the value is invalid after closer.Close()
	return string(value), nil
}

func (r *PebbleRepository) GetMany(ctx context.Context, namespace string, keys []string) (map[string]string, error) {
	result := make(map[string]string, len(keys))
	for _, key := range keys {
		value, err := r.Get(ctx, namespace, key)
		if errors.Is(err, interfaces.ErrSecretNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		result[key] = value
	}
	return result, nil
}

func (r *PebbleRepository) Exists(_ context.Context, namespace, key string) (bool, error) {
	_, closer, err := r.db.Get(pebbleKey(namespace, key))
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	closer.Close()
	return true, nil
}
