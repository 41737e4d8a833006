package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	_ "github.com/lib/pq"
	"github.com/ruteri/tee-secret-management-backend/interfaces"
)

// RepositoryConfig configures NewRepository.
type RepositoryConfig struct {
	// URI selects and locates the repository.
	URI string
	// Migrate creates the schema of SQL repositories before use.
	Migrate bool
}

// NewRepository creates a secret repository from its URI.
//
// Supported schemes:
//   - postgres:// and postgresql:// - PostgreSQL, the URI is passed to lib/pq as is
//   - pebble:///path - embedded Pebble database in the given directory
//   - mem:// - process memory, nothing is persisted
//
// Returns an error if the URI is invalid, the scheme is unsupported or the
// backing store cannot be reached.
func NewRepository(ctx context.Context, cfg RepositoryConfig, log *slog.Logger) (interfaces.SecretRepository, error) {
	u, err := url.Parse(cfg.URI)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrInvalidLocationURI, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "postgres", "postgresql":
		return createPostgresRepository(ctx, cfg, log)
	case "pebble":
		return createPebbleRepository(u, log)
	case "mem":
		log.Warn("Using in-memory secret repository, secrets will not survive a restart")
		return NewMemoryRepository(), nil
	default:
		return nil, fmt.Errorf("%w: unsupported repository scheme: %s", interfaces.ErrInvalidLocationURI, u.Scheme)
	}
}

func createPostgresRepository(ctx context.Context, cfg RepositoryConfig, log *slog.Logger) (interfaces.SecretRepository, error) {
	db, err := sql.Open("postgres", cfg.URI)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrInvalidLocationURI, err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}

	if cfg.Migrate {
		if err := Migrate(ctx, db); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		log.Info("Database schema is up to date")
	}

	return NewPostgresRepository(db, log), nil
}

// createPebbleRepository creates an embedded repository.
// URI format: pebble:///var/lib/sms/secrets or pebble://relative/dir
func createPebbleRepository(u *url.URL, log *slog.Logger) (interfaces.SecretRepository, error) {
	path := u.Host + u.Path
	if path == "" {
		return nil, fmt.Errorf("%w: pebble repository requires a directory", interfaces.ErrInvalidLocationURI)
	}
	log.Debug("Creating pebble repository", slog.String("path", path))
	return NewPebbleRepository(path, log)
}
