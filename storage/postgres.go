package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lib/pq"
	"github.com/ruteri/tee-secret-management-backend/interfaces"
)

// uniqueViolation is the SQLSTATE of unique_violation.
const uniqueViolation = "23505"

// PostgresRepository implements interfaces.SecretRepository backed by PostgreSQL.
type PostgresRepository struct {
	db  *sql.DB
	log *slog.Logger
}

var _ interfaces.SecretRepository = (*PostgresRepository)(nil)

// NewPostgresRepository creates a repository using the provided database handle.
// The schema must have been created with Migrate.
func NewPostgresRepository(db *sql.DB, log *slog.Logger) *PostgresRepository {
	return &PostgresRepository{db: db, log: log}
}

func (r *PostgresRepository) Name() string { return "postgres" }

func (r *PostgresRepository) Close() error { return r.db.Close() }

// Insert stores a ciphertext, relying on the primary key to reject duplicates.
func (r *PostgresRepository) Insert(ctx context.Context, namespace, key, ciphertext string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO secrets (namespace, secret_key, ciphertext)
		VALUES ($1, $2, $3)
	`, namespace, key, ciphertext)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return interfaces.ErrSecretExists
		}
		r.log.Error("Failed to insert secret",
			slog.String("namespace", namespace),
			"err", err)
		return fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, namespace, key string) (string, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT ciphertext
		FROM secrets
		WHERE namespace = $1 AND secret_key = $2
	`, namespace, key)

	var ciphertext string
	if err := row.Scan(&ciphertext); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", interfaces.ErrSecretNotFound
		}
		return "", fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	return ciphertext, nil
}

// GetMany fetches all present keys with a single query.
func (r *PostgresRepository) GetMany(ctx context.Context, namespace string, keys []string) (map[string]string, error) {
	result := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return result, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT secret_key, ciphertext
		FROM secrets
		WHERE namespace = $1 AND secret_key = ANY($2)
	`, namespace, pq.Array(keys))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, ciphertext string
		if err := rows.Scan(&key, &ciphertext); err != nil {
			return nil, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
		}
		result[key] = ciphertext
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	return result, nil
}

func (r *PostgresRepository) Exists(ctx context.Context, namespace, key string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM secrets WHERE namespace = $1 AND secret_key = $2)
	`, namespace, key).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	return exists, nil
}
