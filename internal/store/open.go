package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration
)

const (
	// defaultBusyTimeout is how long a connection waits for the write lock
	// before failing with SQLITE_BUSY (surfaced as ErrBusy).
	defaultBusyTimeout = 5000 // milliseconds

	// maxOpenConns bounds concurrent storage operations system-wide. WAL
	// mode allows these connections to read concurrently; writes still
	// serialize on SQLite's single write lock.
	maxOpenConns = 4
)

// Store provides window and sample persistence backed by a single SQLite
// database. Safe for concurrent use by request handlers and polling jobs.
type Store struct {
	db     *sql.DB
	logger *slog.Logger

	// now is injectable for tests that simulate time.
	now func() time.Time
}

// Open opens (creating if necessary) the SQLite database at path and
// migrates the schema. Transactions begin in immediate mode so the write
// lock is taken up front, serializing concurrent create-or-extend callers
// at the database level.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("store: create directory %s: %w", dir, err)
		}
	}

	// Pragmas ride on the DSN so the driver applies them to every pooled
	// connection. busy_timeout and foreign_keys are per-connection; a
	// one-off Exec would configure only whichever connection served it,
	// leaving the rest failing instantly on a held write lock.
	dsn := fmt.Sprintf("file:%s?_txlock=immediate"+
		"&_pragma=busy_timeout(%d)"+
		"&_pragma=journal_mode(WAL)"+
		"&_pragma=foreign_keys(1)",
		path, defaultBusyTimeout)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}

	db.SetMaxOpenConns(maxOpenConns)

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, logger: logger, now: time.Now}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
