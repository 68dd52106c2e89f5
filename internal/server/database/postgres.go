package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// migrations are applied in order and recorded in schema_migrations.
var migrations = []struct {
	Version string
	SQL     string
}{
	{
		Version: "000001_create_users",
		SQL: `
			CREATE TABLE IF NOT EXISTS users (
				id       BIGSERIAL PRIMARY KEY,
				username TEXT      NOT NULL UNIQUE,
				password TEXT      NOT NULL
			);
		`,
	},
	{
		Version: "000002_create_conversions",
		SQL: `
			CREATE TABLE IF NOT EXISTS conversions (
				id                BIGSERIAL   PRIMARY KEY,
				filename          TEXT        NOT NULL CHECK (filename <> ''),
				original_filename TEXT        NOT NULL CHECK (original_filename <> ''),
				filesize          BIGINT      NOT NULL CHECK (filesize >= 0),
				conversion_type   TEXT        NOT NULL,
				output_path       TEXT        NOT NULL CHECK (output_path <> ''),
				created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				user_id           BIGINT      REFERENCES users(id) ON DELETE SET NULL,
				metadata          JSONB
			);
			CREATE INDEX IF NOT EXISTS idx_conversions_created_at ON conversions(created_at DESC);
			CREATE INDEX IF NOT EXISTS idx_conversions_user_id ON conversions(user_id);
		`,
	},
	{
		Version: "000003_create_pending_deletions",
		SQL: `
			CREATE TABLE IF NOT EXISTS pending_deletions (
				id           BIGSERIAL   PRIMARY KEY,
				path         TEXT        NOT NULL,
				delete_after TIMESTAMPTZ NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_pending_deletions_delete_after ON pending_deletions(delete_after);
		`,
	},
}

// DB wraps a pgxpool connection pool and provides health checks and migrations.
type DB struct {
	Pool *pgxpool.Pool
}

// New creates a new database connection pool.
func New(ctx context.Context, databaseURL string) (*DB, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Info("connected to database")
	return &DB{Pool: pool}, nil
}

// RunMigrations applies all pending database migrations in order.
func (db *DB) RunMigrations(ctx context.Context) error {
	_, err := db.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	for _, m := range migrations {
		applied, err := db.applyMigration(ctx, m.Version, m.SQL)
		if err != nil {
			return err
		}
		if applied {
			slog.Info("applied migration", "version", m.Version)
		}
	}

	return nil
}

// applyMigration runs one migration inside a transaction unless it is
// already recorded. It reports whether anything was applied.
func (db *DB) applyMigration(ctx context.Context, version, sql string) (bool, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction for migration %s: %w", version, err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		"INSERT INTO schema_migrations (version) VALUES ($1) ON CONFLICT (version) DO NOTHING",
		version,
	)
	if err != nil {
		return false, fmt.Errorf("failed to record migration %s: %w", version, err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if _, err := tx.Exec(ctx, sql); err != nil {
		return false, fmt.Errorf("failed to execute migration %s: %w", version, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit migration %s: %w", version, err)
	}
	return true, nil
}

// HealthCheck verifies the database connection is alive.
func (db *DB) HealthCheck(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// Close shuts down the connection pool.
func (db *DB) Close() {
	db.Pool.Close()
}
