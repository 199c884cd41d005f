// Package sqlite implements the driven persistence ports over modernc.org/sqlite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/quotapool/internal/domain/model"
	"github.com/ericfisherdev/quotapool/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.KeyUsageStore = (*KeyUsageRepo)(nil)

// KeyUsageRepo is the SQLite implementation of the KeyUsageStore port
// interface. Only usage counters and display identifiers are persisted;
// key secrets never reach the database.
type KeyUsageRepo struct {
	db *DB
}

// NewKeyUsageRepo creates a new KeyUsageRepo backed by the given DB.
func NewKeyUsageRepo(db *DB) *KeyUsageRepo {
	return &KeyUsageRepo{db: db}
}

// Get retrieves the usage record for the given key index.
// Returns (nil, nil) when no record exists for that index.
func (r *KeyUsageRepo) Get(ctx context.Context, index int) (*model.KeyUsage, error) {
	const query = `
		SELECT api_key_index, identifier, quota_used, last_reset, last_used, is_active, error_count, last_error
		FROM api_key_usage
		WHERE api_key_index = ?
	`

	usage, err := scanKeyUsage(r.db.Reader.QueryRowContext(ctx, query, index))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get key usage %d: %w", index, err)
	}
	return &usage, nil
}

// Upsert stores or replaces the usage record, keyed by its index.
func (r *KeyUsageRepo) Upsert(ctx context.Context, usage model.KeyUsage) error {
	const query = `
		INSERT OR REPLACE INTO api_key_usage
			(api_key_index, identifier, quota_used, last_reset, last_used, is_active, error_count, last_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Writer.ExecContext(ctx, query,
		usage.Index,
		usage.Identifier,
		usage.QuotaUsed,
		formatTime(usage.LastReset),
		nullableTime(usage.LastUsed),
		usage.IsActive,
		usage.ErrorCount,
		nullableTime(usage.LastError),
	)
	if err != nil {
		return fmt.Errorf("upsert key usage %d: %w", usage.Index, err)
	}
	return nil
}

// ListAll returns all usage records ordered by key index.
func (r *KeyUsageRepo) ListAll(ctx context.Context) ([]model.KeyUsage, error) {
	const query = `
		SELECT api_key_index, identifier, quota_used, last_reset, last_used, is_active, error_count, last_error
		FROM api_key_usage
		ORDER BY api_key_index
	`

	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list key usage: %w", err)
	}
	defer rows.Close()

	var usages []model.KeyUsage
	for rows.Next() {
		usage, err := scanKeyUsage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan key usage: %w", err)
		}
		usages = append(usages, usage)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate key usage: %w", err)
	}

	return usages, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows so both read paths share one
// scan routine.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanKeyUsage reads one api_key_usage row into a domain record.
func scanKeyUsage(row rowScanner) (model.KeyUsage, error) {
	var usage model.KeyUsage
	var lastReset string
	var lastUsed, lastError sql.NullString

	if err := row.Scan(
		&usage.Index,
		&usage.Identifier,
		&usage.QuotaUsed,
		&lastReset,
		&lastUsed,
		&usage.IsActive,
		&usage.ErrorCount,
		&lastError,
	); err != nil {
		return model.KeyUsage{}, err
	}

	var err error
	if usage.LastReset, err = parseTime(lastReset); err != nil {
		return model.KeyUsage{}, fmt.Errorf("parse last_reset: %w", err)
	}
	if usage.LastUsed, err = parseNullTime(lastUsed); err != nil {
		return model.KeyUsage{}, fmt.Errorf("parse last_used: %w", err)
	}
	if usage.LastError, err = parseNullTime(lastError); err != nil {
		return model.KeyUsage{}, fmt.Errorf("parse last_error: %w", err)
	}

	return usage, nil
}

// formatTime serializes a timestamp for storage. Times are stored as UTC
// RFC 3339 strings so they sort lexicographically.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// nullableTime serializes an optional timestamp; the zero time becomes NULL.
func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return formatTime(t)
}

// parseTime parses a stored timestamp, accepting both RFC 3339 and the plain
// "YYYY-MM-DD HH:MM:SS" form SQLite produces for CURRENT_TIMESTAMP defaults.
func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02 15:04:05", s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// parseNullTime parses an optional stored timestamp; NULL becomes the zero time.
func parseNullTime(s sql.NullString) (time.Time, error) {
	if !s.Valid || s.String == "" {
		return time.Time{}, nil
	}
	return parseTime(s.String)
}
