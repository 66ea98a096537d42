// internal/state/db.go
package state

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/colebrumley/sitegen/internal/security"

	_ "modernc.org/sqlite"
)

// Build states recorded in history.
const (
	StateSuccess   = "success"
	StateFailure   = "failure"
	StateCancelled = "cancelled"
)

// maxErrorLength bounds the stored error text in bytes.
const maxErrorLength = 4096

// BuildRecord represents a single site build in the history.
type BuildRecord struct {
	ID            int64     `json:"id"`
	TriggerType   string    `json:"trigger_type"`
	TriggerDetail string    `json:"trigger_detail,omitempty"`
	State         string    `json:"state"` // success, failure, cancelled
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	DurationMs    int64     `json:"duration_ms"`
	PagesRendered int       `json:"pages_rendered"`
	FilesCopied   int       `json:"files_copied"`
	Error         string    `json:"error,omitempty"` // scrubbed of secrets
}

// DB wraps the SQLite database connection for build history.
type DB struct {
	db *sql.DB
}

const stateSchema = `
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER NOT NULL,
    applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS build_history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    trigger_type TEXT NOT NULL,
    trigger_detail TEXT,
    state TEXT NOT NULL,
    started_at INTEGER NOT NULL,
    finished_at INTEGER NOT NULL,
    duration_ms INTEGER NOT NULL,
    pages_rendered INTEGER NOT NULL DEFAULT 0,
    files_copied INTEGER NOT NULL DEFAULT 0,
    error TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_build_history_state ON build_history(state);
CREATE INDEX IF NOT EXISTS idx_build_history_started ON build_history(started_at);
`

// Open opens or creates a state database at the given path.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// the daemon and CLI may share the file; serialize writers in-process
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	if _, err := db.Exec(stateSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM schema_version").Scan(&count); err != nil {
		db.Close()
		return nil, fmt.Errorf("reading schema version: %w", err)
	}
	if count == 0 {
		if _, err := db.Exec("INSERT INTO schema_version (version) VALUES (1)"); err != nil {
			db.Close()
			return nil, fmt.Errorf("writing schema version: %w", err)
		}
	}

	return &DB{db: db}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// RecordBuild stores a build record and returns its ID.
func (d *DB) RecordBuild(rec BuildRecord) (int64, error) {
	switch rec.State {
	case StateSuccess, StateFailure, StateCancelled:
	default:
		return 0, fmt.Errorf("recording build: invalid state %q", rec.State)
	}

	errText := security.ScrubOutput(rec.Error)
	errText = security.Truncate(errText, maxErrorLength)

	result, err := d.db.Exec(`
		INSERT INTO build_history
		(trigger_type, trigger_detail, state, started_at, finished_at, duration_ms,
		 pages_rendered, files_copied, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.TriggerType, security.SanitizeValue(rec.TriggerDetail), rec.State,
		rec.StartedAt.UnixMilli(), rec.FinishedAt.UnixMilli(), rec.DurationMs,
		rec.PagesRendered, rec.FilesCopied, errText,
	)
	if err != nil {
		return 0, fmt.Errorf("recording build: %w", err)
	}
	return result.LastInsertId()
}

const selectColumns = `SELECT id, trigger_type, trigger_detail, state, started_at, finished_at,
	duration_ms, pages_rendered, files_copied, error FROM build_history`

// GetHistory retrieves build history, newest first, optionally filtered by state.
func (d *DB) GetHistory(state string, limit int) ([]BuildRecord, error) {
	query := selectColumns + " WHERE 1=1"
	var args []any

	if state != "" {
		query += " AND state = ?"
		args = append(args, state)
	}

	query += " ORDER BY started_at DESC, id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var records []BuildRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// LastBuild returns the most recent build, or nil when there is none.
func (d *DB) LastBuild() (*BuildRecord, error) {
	row := d.db.QueryRow(selectColumns + " ORDER BY started_at DESC, id DESC LIMIT 1")
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting last build: %w", err)
	}
	return &r, nil
}

// Cleanup removes build records older than the specified number of days.
func (d *DB) Cleanup(retentionDays int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	result, err := d.db.Exec(
		"DELETE FROM build_history WHERE started_at < ?", cutoff.UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("cleaning up history: %w", err)
	}
	return result.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (BuildRecord, error) {
	var r BuildRecord
	var detail, errStr sql.NullString
	var started, finished int64
	if err := s.Scan(&r.ID, &r.TriggerType, &detail, &r.State, &started, &finished,
		&r.DurationMs, &r.PagesRendered, &r.FilesCopied, &errStr); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r, err
		}
		return r, fmt.Errorf("scanning record: %w", err)
	}
	r.TriggerDetail = detail.String
	r.Error = errStr.String
	r.StartedAt = time.UnixMilli(started)
	r.FinishedAt = time.UnixMilli(finished)
	return r, nil
}
