package storage

import (
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a get/rename/set-status targets a missing row.
var ErrNotFound = errors.New("storage: not found")

// ErrPortConflict is returned by operations that must never silently
// overwrite a port already owned by another row in the same project.
var ErrPortConflict = errors.New("storage: port already in use")

// Store is the per-project State Store (§4.2): one family of operations per
// entity, a transactional LoadState snapshot, and a transactional Clear.
type Store struct {
	db   *sql.DB
	path string
}

func connectionString(path string) string {
	return path +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_pragma=foreign_keys(1)" +
		"&_txlock=immediate"
}

// Open opens (creating if absent) the state store at dbPath, migrating a
// legacy state.json sitting alongside it if one is found and no state.db
// yet exists (§4.2 Migration).
func Open(dbPath string) (*Store, error) {
	firstOpen := !fileExists(dbPath)

	conn, err := sql.Open("sqlite", connectionString(dbPath))
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", dbPath, err)
	}
	conn.SetMaxOpenConns(1)

	s := &Store{db: conn, path: dbPath}
	if err := s.migrateSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("storage: schema migration: %w", err)
	}

	if firstOpen {
		if err := migrateLegacyJSON(s, dbPath); err != nil {
			conn.Close()
			return nil, fmt.Errorf("storage: legacy state migration: %w", err)
		}
	}

	return s, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// WithTransaction runs fn inside a BEGIN IMMEDIATE transaction — the
// connection DSN's _txlock=immediate makes every db.Begin() issue BEGIN
// IMMEDIATE rather than the deferred default, so the write lock is taken up
// front instead of at the first write statement — committing on success and
// rolling back on error or panic. Adapted from aristath/sentinel's
// internal/database.WithTransaction.
func (s *Store) WithTransaction(fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			err = fmt.Errorf("panic in transaction: %v", p)
		} else if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	return fn(tx)
}
