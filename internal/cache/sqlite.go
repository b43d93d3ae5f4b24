package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SQLiteStore is a durable Store over the cache_entry table. Task records
// persisted through it survive process restarts, which the task continuation
// protocol depends on.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps an opened database.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Get reads a non-expired entry. Expired rows are deleted lazily.
func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		value     []byte
		expiresAt sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT value, expires_at FROM cache_entry WHERE key = ?;", key,
	).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read cache entry: %w", err)
	}

	if expiresAt.Valid {
		exp, perr := time.Parse(time.RFC3339Nano, expiresAt.String)
		if perr == nil && time.Now().After(exp) {
			_, _ = s.db.ExecContext(ctx, "DELETE FROM cache_entry WHERE key = ?;", key)
			return nil, false, nil
		}
	}
	return value, true, nil
}

// Set upserts an entry. A ttl of zero means no expiry.
func (s *SQLiteStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	now := time.Now().UTC()
	var expiresAt any
	if ttl > 0 {
		expiresAt = now.Add(ttl).Format(time.RFC3339Nano)
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO cache_entry(key, value, expires_at, updated_at)
VALUES(?, ?, ?, ?)
ON CONFLICT(key) DO UPDATE SET
  value = excluded.value,
  expires_at = excluded.expires_at,
  updated_at = excluded.updated_at;
`, key, value, expiresAt, now.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("upsert cache entry: %w", err)
	}
	return nil
}

// Delete removes an entry.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM cache_entry WHERE key = ?;", key); err != nil {
		return fmt.Errorf("delete cache entry: %w", err)
	}
	return nil
}
