package storage

import (
	"context"
	"database/sql"
	"fmt"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS secrets (
		namespace   TEXT NOT NULL,
		secret_key  TEXT NOT NULL,
		ciphertext  TEXT NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (namespace, secret_key)
	)`,
	`CREATE INDEX IF NOT EXISTS secrets_created_at_idx ON secrets (created_at)`,
}

// Migrate creates the schema used by PostgresRepository. It is idempotent.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
