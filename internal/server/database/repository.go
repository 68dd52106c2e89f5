package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

var (
	ErrConversionNotFound = errors.New("conversion not found")
	ErrUserNotFound       = errors.New("user not found")
)

const conversionColumns = `id, filename, original_filename, filesize, conversion_type,
	output_path, created_at, user_id, metadata`

// Repository provides access to conversion history, users and pending
// upload deletions.
type Repository struct {
	db *DB
}

// NewRepository creates a new Repository.
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// CreateConversion inserts a record and fills in its ID and CreatedAt.
func (r *Repository) CreateConversion(ctx context.Context, c *Conversion) error {
	var metadata any
	if c.Metadata != nil {
		metadata = c.Metadata
	}

	err := r.db.Pool.QueryRow(ctx, `
		INSERT INTO conversions (
			filename, original_filename, filesize, conversion_type,
			output_path, user_id, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`,
		c.Filename,
		c.OriginalFilename,
		c.Filesize,
		string(c.ConversionType),
		c.OutputPath,
		c.UserID,
		metadata,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create conversion: %w", err)
	}
	return nil
}

// GetConversion retrieves a record by ID.
func (r *Repository) GetConversion(ctx context.Context, id int64) (*Conversion, error) {
	rows, err := r.db.Pool.Query(ctx,
		"SELECT "+conversionColumns+" FROM conversions WHERE id = $1", id)
	if err != nil {
		return nil, fmt.Errorf("failed to get conversion: %w", err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByPos[Conversion])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConversionNotFound
		}
		return nil, fmt.Errorf("failed to get conversion: %w", err)
	}
	return c, nil
}

// ListConversions returns records newest first, optionally restricted to
// one owner.
func (r *Repository) ListConversions(ctx context.Context, filter ListFilter) ([]*Conversion, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+conversionColumns+`
		FROM conversions
		WHERE ($1::bigint IS NULL OR user_id = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, filter.UserID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversions: %w", err)
	}

	conversions, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByPos[Conversion])
	if err != nil {
		return nil, fmt.Errorf("failed to scan conversions: %w", err)
	}
	return conversions, nil
}

// DeleteConversion removes a record by ID.
func (r *Repository) DeleteConversion(ctx context.Context, id int64) error {
	tag, err := r.db.Pool.Exec(ctx, "DELETE FROM conversions WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete conversion: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConversionNotFound
	}
	return nil
}

// GetStats returns totals across all records.
func (r *Repository) GetStats(ctx context.Context) (*Stats, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT conversion_type, COUNT(*), COALESCE(SUM(filesize), 0)
		FROM conversions
		GROUP BY conversion_type
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	defer rows.Close()

	stats := &Stats{ByType: make(map[ConversionType]int64)}
	for rows.Next() {
		var (
			kind  string
			count int64
			bytes int64
		)
		if err := rows.Scan(&kind, &count, &bytes); err != nil {
			return nil, fmt.Errorf("failed to scan stats: %w", err)
		}
		stats.ByType[ConversionType(kind)] = count
		stats.TotalConversions += count
		stats.StorageUsed += bytes
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	return stats, nil
}

// SchedulePendingDeletions records paths to be removed once deleteAfter
// has passed.
func (r *Repository) SchedulePendingDeletions(ctx context.Context, paths []string, deleteAfter time.Time) error {
	if len(paths) == 0 {
		return nil
	}

	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO pending_deletions (path, delete_after)
		SELECT p, $2 FROM unnest($1::text[]) AS p
	`, paths, deleteAfter)
	if err != nil {
		return fmt.Errorf("failed to schedule deletions: %w", err)
	}
	return nil
}

// DuePendingDeletions returns up to limit entries whose time has come,
// oldest first.
func (r *Repository) DuePendingDeletions(ctx context.Context, now time.Time, limit int) ([]*PendingDeletion, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, path, delete_after
		FROM pending_deletions
		WHERE delete_after <= $1
		ORDER BY delete_after
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending deletions: %w", err)
	}

	due, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByPos[PendingDeletion])
	if err != nil {
		return nil, fmt.Errorf("failed to scan pending deletions: %w", err)
	}
	return due, nil
}

// DeletePendingDeletion removes a processed entry.
func (r *Repository) DeletePendingDeletion(ctx context.Context, id int64) error {
	if _, err := r.db.Pool.Exec(ctx, "DELETE FROM pending_deletions WHERE id = $1", id); err != nil {
		return fmt.Errorf("failed to delete pending deletion: %w", err)
	}
	return nil
}

// CreateUser inserts a user with an already hashed password.
func (r *Repository) CreateUser(ctx context.Context, username, passwordHash string) (*User, error) {
	user := &User{Username: username, PasswordHash: passwordHash}
	err := r.db.Pool.QueryRow(ctx,
		"INSERT INTO users (username, password) VALUES ($1, $2) RETURNING id",
		username, passwordHash,
	).Scan(&user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// GetUserByUsername looks a user up by name.
func (r *Repository) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	user := &User{}
	err := r.db.Pool.QueryRow(ctx,
		"SELECT id, username, password FROM users WHERE username = $1", username,
	).Scan(&user.ID, &user.Username, &user.PasswordHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}
