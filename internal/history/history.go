// Package history provides a SQLite-backed record of harvest run outcomes.
package history

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS runs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	started_at  DATETIME NOT NULL,
	finished_at DATETIME NOT NULL,
	status      TEXT NOT NULL,
	event_count INTEGER NOT NULL DEFAULT 0,
	reason      TEXT NOT NULL DEFAULT '',
	rolled_back INTEGER NOT NULL DEFAULT 0,
	prev_steps  INTEGER NOT NULL DEFAULT 0,
	next_steps  INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
`

// Run statuses.
const (
	StatusPublished        = "published"
	StatusSanityFailure    = "sanity_failure"
	StatusValidationFailed = "validation_failure"
	StatusError            = "error"
)

// Run is one recorded harvest outcome.
type Run struct {
	ID         int64     `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Status     string    `json:"status"`
	EventCount int       `json:"event_count"`
	Reason     string    `json:"reason,omitempty"`
	RolledBack bool      `json:"rolled_back"`
	PrevSteps  int       `json:"prev_steps"`
	NextSteps  int       `json:"next_steps"`
}

// Store is the run-history surface consumed by the web layer and the
// orchestrator; depend on this rather than *DB for testing.
type Store interface {
	Record(run Run) error
	Recent(limit int) ([]Run, error)
	Close() error
}

// DB wraps a sql.DB with run-history operations.
type DB struct {
	conn *sql.DB
}

// Verify *DB satisfies Store at compile time.
var _ Store = (*DB)(nil)

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("history: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("history: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("history: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Record inserts one run outcome.
func (db *DB) Record(run Run) error {
	_, err := db.conn.Exec(
		`INSERT INTO runs (started_at, finished_at, status, event_count, reason, rolled_back, prev_steps, next_steps)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.StartedAt.UTC(), run.FinishedAt.UTC(), run.Status, run.EventCount,
		run.Reason, boolToInt(run.RolledBack), run.PrevSteps, run.NextSteps,
	)
	if err != nil {
		return fmt.Errorf("history: record run: %w", err)
	}
	return nil
}

// Recent returns the latest runs, newest first.
func (db *DB) Recent(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(
		`SELECT id, started_at, finished_at, status, event_count, reason, rolled_back, prev_steps, next_steps
		 FROM runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: query runs: %w", err)
	}
	defer rows.Close()

	out := make([]Run, 0, limit)
	for rows.Next() {
		var r Run
		var rolled int
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.Status, &r.EventCount, &r.Reason, &rolled, &r.PrevSteps, &r.NextSteps); err != nil {
			return nil, fmt.Errorf("history: scan run: %w", err)
		}
		r.RolledBack = rolled != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
