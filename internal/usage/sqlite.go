// Package usage stores per-user successful query counts outside the relationship graph.
package usage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS usage_counts (
	user_id       TEXT PRIMARY KEY,
	query_count   INTEGER NOT NULL DEFAULT 0,
	last_query_at INTEGER NOT NULL
)`

const upsertCount = `
INSERT INTO usage_counts (user_id, query_count, last_query_at) VALUES (?, 1, ?)
ON CONFLICT(user_id) DO UPDATE SET
	query_count = query_count + 1,
	last_query_at = excluded.last_query_at`

// SQLiteRecorder counts successful queries per user in an embedded SQLite file.
type SQLiteRecorder struct {
	db    *sql.DB
	nowFn func() time.Time
}

// OpenSQLite opens (creating when needed) the usage database at path.
func OpenSQLite(path string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open usage db %s: %w", path, err)
	}
	// one connection keeps writers serialised
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create usage schema: %w", err)
	}
	return &SQLiteRecorder{db: db, nowFn: time.Now}, nil
}

// WithClock overrides the timestamp source.
func (r *SQLiteRecorder) WithClock(nowFn func() time.Time) *SQLiteRecorder {
	if nowFn != nil {
		r.nowFn = nowFn
	}
	return r
}

// RecordSuccessfulQuery increments the counter for userKey.
func (r *SQLiteRecorder) RecordSuccessfulQuery(ctx context.Context, userKey string) error {
	if userKey == "" {
		return errors.New("user key is required")
	}
	if _, err := r.db.ExecContext(ctx, upsertCount, userKey, r.nowFn().UnixNano()); err != nil {
		return fmt.Errorf("record usage for %s: %w", userKey, err)
	}
	return nil
}

// Count returns the number of recorded queries for userKey and when the last one happened.
func (r *SQLiteRecorder) Count(ctx context.Context, userKey string) (int64, time.Time, error) {
	var count, last int64
	err := r.db.QueryRowContext(ctx,
		"SELECT query_count, last_query_at FROM usage_counts WHERE user_id = ?", userKey,
	).Scan(&count, &last)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, time.Time{}, nil
	}
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("read usage for %s: %w", userKey, err)
	}
	return count, time.Unix(0, last).UTC(), nil
}

// Ping checks the database is still usable.
func (r *SQLiteRecorder) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close releases the database handle.
func (r *SQLiteRecorder) Close() error {
	return r.db.Close()
}
