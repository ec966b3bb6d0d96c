package registry

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/agentfarm/agentfarm/pkg/types"
)

// BasePort is the lowest port block ever handed out.
const BasePort = 4200

// BlockSize is the width of one project's port range.
const BlockSize = 100

// MaxBlocks is the number of 100-port blocks between 4200 and 9999.
const MaxBlocks = 58

// ErrExhausted is returned by GetOrAllocate when all MaxBlocks blocks are taken.
var ErrExhausted = errors.New("registry: all port blocks are in use")

const timeLayout = time.RFC3339Nano

// Registry is the host-wide Port Registry store.
type Registry struct {
	db *sql.DB
}

func connectionString(path string) string {
	return path +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_txlock=immediate"
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS allocations (
	path          TEXT PRIMARY KEY,
	base_port     INTEGER NOT NULL UNIQUE,
	pid           INTEGER NOT NULL,
	registered_at TEXT NOT NULL,
	last_used_at  TEXT NOT NULL
);
`

// Open opens (creating if absent) the registry database at dbPath, typically
// ~/.agent-farm/global.db.
func Open(dbPath string) (*Registry, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("registry: create directory: %w", err)
	}

	conn, err := sql.Open("sqlite", connectionString(dbPath))
	if err != nil {
		return nil, fmt.Errorf("registry: open %s: %w", dbPath, err)
	}
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec(schemaDDL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("registry: schema migration: %w", err)
	}

	return &Registry{db: conn}, nil
}

// Close releases the underlying connection.
func (r *Registry) Close() error {
	return r.db.Close()
}

// GetOrAllocate returns the existing base port for projectPath, or allocates
// the smallest unused block and persists it atomically (§4.1).
func (r *Registry) GetOrAllocate(projectPath string, pid int) (int, error) {
	var basePort int
	err := withImmediateTx(r.db, func(tx *sql.Tx) error {
		now := time.Now().Format(timeLayout)

		row := tx.QueryRow(`SELECT base_port FROM allocations WHERE path = ?`, projectPath)
		switch err := row.Scan(&basePort); err {
		case nil:
			_, err := tx.Exec(`UPDATE allocations SET last_used_at = ?, pid = ? WHERE path = ?`, now, pid, projectPath)
			return err
		case sql.ErrNoRows:
			// fall through to allocate
		default:
			return fmt.Errorf("lookup allocation: %w", err)
		}

		used := make(map[int]bool)
		rows, err := tx.Query(`SELECT base_port FROM allocations`)
		if err != nil {
			return fmt.Errorf("scan existing allocations: %w", err)
		}
		for rows.Next() {
			var p int
			if err := rows.Scan(&p); err != nil {
				rows.Close()
				return err
			}
			used[p] = true
		}
		if err := rows.Err(); err != nil {
			return err
		}
		rows.Close()

		candidate := -1
		for i := 0; i < MaxBlocks; i++ {
			p := BasePort + i*BlockSize
			if !used[p] {
				candidate = p
				break
			}
		}
		if candidate == -1 {
			return ErrExhausted
		}

		if _, err := tx.Exec(`
			INSERT INTO allocations (path, base_port, pid, registered_at, last_used_at)
			VALUES (?, ?, ?, ?, ?)`, projectPath, candidate, pid, now, now); err != nil {
			return fmt.Errorf("insert allocation: %w", err)
		}
		basePort = candidate
		return nil
	})
	if err != nil {
		return 0, err
	}
	return basePort, nil
}

// Resolve performs a read-only lookup of projectPath's base port, returning
// 0 if no allocation exists.
func (r *Registry) Resolve(projectPath string) (int, error) {
	row := r.db.QueryRow(`SELECT base_port FROM allocations WHERE path = ?`, projectPath)
	var basePort int
	switch err := row.Scan(&basePort); err {
	case nil:
		return basePort, nil
	case sql.ErrNoRows:
		return 0, nil
	default:
		return 0, fmt.Errorf("registry: resolve %s: %w", projectPath, err)
	}
}

// List enumerates every allocation, annotated with whether the directory
// still exists on disk.
func (r *Registry) List() ([]types.PortAllocationView, error) {
	rows, err := r.db.Query(`SELECT path, base_port, pid, registered_at, last_used_at FROM allocations ORDER BY base_port`)
	if err != nil {
		return nil, fmt.Errorf("registry: list: %w", err)
	}
	defer rows.Close()

	var out []types.PortAllocationView
	for rows.Next() {
		var v types.PortAllocationView
		var registered, lastUsed string
		if err := rows.Scan(&v.Path, &v.BasePort, &v.PID, &registered, &lastUsed); err != nil {
			return nil, fmt.Errorf("registry: scan: %w", err)
		}
		v.RegisteredAt, _ = time.Parse(timeLayout, registered)
		v.LastUsedAt, _ = time.Parse(timeLayout, lastUsed)
		if info, err := os.Stat(v.Path); err == nil {
			v.Exists = info.IsDir()
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// CleanupStale deletes rows whose path no longer exists on disk.
func (r *Registry) CleanupStale() (removed []string, remaining int, err error) {
	views, err := r.List()
	if err != nil {
		return nil, 0, err
	}

	err = withImmediateTx(r.db, func(tx *sql.Tx) error {
		for _, v := range views {
			if v.Exists {
				remaining++
				continue
			}
			if _, err := tx.Exec(`DELETE FROM allocations WHERE path = ?`, v.Path); err != nil {
				return fmt.Errorf("delete stale allocation %s: %w", v.Path, err)
			}
			removed = append(removed, v.Path)
		}
		return nil
	})
	return removed, remaining, err
}

// Touch updates last-used-at and owning pid without changing the base port.
func (r *Registry) Touch(projectPath string, pid int) error {
	return withImmediateTx(r.db, func(tx *sql.Tx) error {
		res, err := tx.Exec(`UPDATE allocations SET last_used_at = ?, pid = ? WHERE path = ?`,
			time.Now().Format(timeLayout), pid, projectPath)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("registry: no allocation for %s", projectPath)
		}
		return nil
	})
}

// withImmediateTx runs fn inside a BEGIN IMMEDIATE transaction, relying on
// the connection DSN's _txlock=immediate so db.Begin() itself takes the
// write lock up front — the allocation read-then-write in GetOrAllocate is
// exactly the race two concurrent `start`s in sibling projects must not hit.
func withImmediateTx(db *sql.DB, fn func(tx *sql.Tx) error) (err error) {
	tx, err := db.Begin()
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
