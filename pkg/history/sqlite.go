package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure-Go sqlite driver
)

const createHistoryTable = `
CREATE TABLE IF NOT EXISTS call_history (
	session_id   TEXT PRIMARY KEY,
	caller_id    TEXT NOT NULL,
	callee_id    TEXT NOT NULL,
	call_type    TEXT NOT NULL,
	purpose      TEXT NOT NULL DEFAULT '',
	ride_id      TEXT NOT NULL DEFAULT '',
	delivery_id  TEXT NOT NULL DEFAULT '',
	is_emergency INTEGER NOT NULL DEFAULT 0,
	outcome      TEXT NOT NULL DEFAULT '',
	reason       TEXT NOT NULL DEFAULT '',
	started_at   INTEGER NOT NULL,
	ended_at     INTEGER NOT NULL,
	duration_ms  INTEGER NOT NULL DEFAULT 0,
	quality      INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_call_history_started ON call_history(started_at DESC);
`

// SQLiteStore persists call records in a local SQLite database.
// Timestamps are stored as unix milliseconds.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// WAL keeps readers from blocking the writer; the busy timeout papers
	// over short lock contention instead of failing immediately.
	if _, err := db.Exec(`PRAGMA foreign_keys = ON; PRAGMA journal_mode = WAL; PRAGMA busy_timeout = 5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}

	if _, err := db.Exec(createHistoryTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Save inserts or replaces the record for rec.SessionID.
func (s *SQLiteStore) Save(ctx context.Context, rec Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO call_history (
			session_id, caller_id, callee_id, call_type, purpose,
			ride_id, delivery_id, is_emergency, outcome, reason,
			started_at, ended_at, duration_ms, quality
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID, rec.CallerID, rec.CalleeID, rec.CallType, rec.Purpose,
		rec.RideID, rec.DeliveryID, boolToInt(rec.IsEmergency), rec.Outcome, rec.Reason,
		rec.StartedAt.UnixMilli(), rec.EndedAt.UnixMilli(),
		rec.Duration.Milliseconds(), rec.Quality,
	)
	if err != nil {
		return fmt.Errorf("save record: %w", err)
	}
	return nil
}

// UpdateQuality sets the rating on an existing record.
func (s *SQLiteStore) UpdateQuality(ctx context.Context, sessionID string, rating int) error {
	if err := ValidateRating(rating); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE call_history SET quality = ? WHERE session_id = ?`,
		rating, sessionID,
	)
	if err != nil {
		return fmt.Errorf("update quality: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update quality: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns records most recent first.
func (s *SQLiteStore) List(ctx context.Context, limit, offset int) ([]Record, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, caller_id, callee_id, call_type, purpose,
		       ride_id, delivery_id, is_emergency, outcome, reason,
		       started_at, ended_at, duration_ms, quality
		FROM call_history
		ORDER BY started_at DESC, session_id
		LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec                  Record
			emergency            int64
			started, ended, durM int64
		)
		if err := rows.Scan(
			&rec.SessionID, &rec.CallerID, &rec.CalleeID, &rec.CallType, &rec.Purpose,
			&rec.RideID, &rec.DeliveryID, &emergency, &rec.Outcome, &rec.Reason,
			&started, &ended, &durM, &rec.Quality,
		); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec.IsEmergency = emergency != 0
		rec.StartedAt = time.UnixMilli(started)
		rec.EndedAt = time.UnixMilli(ended)
		rec.Duration = time.Duration(durM) * time.Millisecond
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}

	return out, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Verify SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)
