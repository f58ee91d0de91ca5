package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/arthur-debert/modkeeper/pkg/errors"
	_ "modernc.org/sqlite"
)

// SQLiteJournal implements Journal on a SQLite database file
type SQLiteJournal struct {
	db  *sql.DB
	mu  sync.RWMutex
	now func() time.Time
}

// Open opens or creates the journal at path. ":memory:" gives a
// throwaway journal.
func Open(path string) (*SQLiteJournal, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, errors.Wrap(err, errors.ErrFileSystem, "create journal dir")
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrFileSystem, "open journal")
	}
	// one connection: an in-memory database is per connection
	db.SetMaxOpenConns(1)

	j := &SQLiteJournal{db: db, now: time.Now}
	if err := j.initialize(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, errors.ErrFileSystem, "initialize journal schema")
	}
	return j, nil
}

func (j *SQLiteJournal) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp INTEGER NOT NULL,
		kind TEXT NOT NULL,
		operation TEXT NOT NULL,
		package TEXT NOT NULL DEFAULT '',
		cycle_id TEXT NOT NULL DEFAULT '',
		outcome TEXT NOT NULL DEFAULT '',
		message TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_entries_cycle ON entries(cycle_id);
	CREATE INDEX IF NOT EXISTS idx_entries_timestamp ON entries(timestamp);
	`
	_, err := j.db.Exec(schema)
	return err
}

// Record appends an entry. A zero Time is stamped with the current time.
func (j *SQLiteJournal) Record(ctx context.Context, e Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if e.Time.IsZero() {
		e.Time = j.now()
	}
	_, err := j.db.ExecContext(ctx,
		"INSERT INTO entries (timestamp, kind, operation, package, cycle_id, outcome, message) VALUES (?, ?, ?, ?, ?, ?, ?)",
		e.Time.UnixMilli(), e.Kind, e.Operation, e.Package, e.CycleID, e.Outcome, e.Message,
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrFileSystem, "insert journal entry")
	}
	return nil
}

// Recent returns the newest entries first
func (j *SQLiteJournal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if limit <= 0 {
		limit = DefaultLimit
	}
	rows, err := j.db.QueryContext(ctx,
		"SELECT id, timestamp, kind, operation, package, cycle_id, outcome, message FROM entries ORDER BY id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrFileSystem, "query journal")
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var ts int64
		if err := rows.Scan(&e.ID, &ts, &e.Kind, &e.Operation, &e.Package, &e.CycleID, &e.Outcome, &e.Message); err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		e.Time = time.UnixMilli(ts)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal: %w", err)
	}
	return entries, nil
}

// Close closes the database
func (j *SQLiteJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.db.Close()
}
