// Package recorder persists request cycles to the request_log table for
// offline inspection and replay. Recording is a development aid and is
// disabled in production deployments.
package recorder

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/addongate/addongate/internal/dispatch"
)

// Store appends RecordData rows to SQLite. *sql.DB serializes writers, so
// concurrent recording from interleaved requests is safe.
type Store struct {
	db *sql.DB
}

// NewStore wraps an opened database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Record appends one request cycle.
func (s *Store) Record(ctx context.Context, rec dispatch.RecordData) error {
	input := rec.Input
	if len(input) == 0 {
		input = []byte("null")
	}
	output := rec.Output
	if len(output) == 0 {
		output = []byte("null")
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO request_log(id, addon, action, input, output, status, created_at)
VALUES(?, ?, ?, ?, ?, ?, ?);
`, uuid.NewString(), rec.Addon, rec.Action, string(input), string(output), rec.Status,
		time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("append request log: %w", err)
	}
	return nil
}
