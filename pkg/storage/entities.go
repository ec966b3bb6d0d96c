package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/agentfarm/agentfarm/pkg/types"
)

const timeLayout = time.RFC3339Nano

// LoadState reads architect, builders, utils, and annotations in a single
// read transaction so concurrent writers never tear the snapshot (§4.2).
func (s *Store) LoadState() (*types.State, error) {
	tx, err := s.db.BeginTx(context.Background(), &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin read transaction: %w", err)
	}
	defer tx.Rollback()

	st := &types.State{}

	arch, err := queryArchitect(tx)
	if err != nil {
		return nil, err
	}
	st.Architect = arch

	if st.Builders, err = queryBuilders(tx, ""); err != nil {
		return nil, err
	}
	if st.Utils, err = queryUtils(tx, ""); err != nil {
		return nil, err
	}
	if st.Annotations, err = queryAnnotations(tx, ""); err != nil {
		return nil, err
	}

	return st, tx.Commit()
}

// Clear drops all rows of all tables inside one transaction.
func (s *Store) Clear() error {
	return s.WithTransaction(func(tx *sql.Tx) error {
		for _, table := range []string{"architect", "builders", "utils", "annotations"} {
			if _, err := tx.Exec("DELETE FROM " + table); err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}
		return nil
	})
}

// portTaken reports whether port is already used by any row of any table,
// optionally ignoring the row identified by (skipTable, skipID) — the
// cross-table uniqueness check the caller is responsible for (§3).
func portTaken(tx *sql.Tx, port int, skipTable, skipID string) (bool, error) {
	queries := map[string]string{
		"architect":   "SELECT 1 FROM architect WHERE port = ?",
		"builders":    "SELECT 1 FROM builders WHERE port = ? AND id != ?",
		"utils":       "SELECT 1 FROM utils WHERE port = ? AND id != ?",
		"annotations": "SELECT 1 FROM annotations WHERE port = ? AND id != ?",
	}
	for table, q := range queries {
		var row *sql.Row
		if table == "architect" {
			if skipTable == "architect" {
				continue
			}
			row = tx.QueryRow(q, port)
		} else {
			id := ""
			if table == skipTable {
				id = skipID
			}
			row = tx.QueryRow(q, port, id)
		}
		var one int
		switch err := row.Scan(&one); err {
		case nil:
			return true, nil
		case sql.ErrNoRows:
			continue
		default:
			return false, fmt.Errorf("check port %d against %s: %w", port, table, err)
		}
	}
	return false, nil
}

// --- Architect ---

func queryArchitect(tx *sql.Tx) (*types.Architect, error) {
	row := tx.QueryRow(`SELECT port, pid, command, started_at, session_name FROM architect WHERE id = 1`)
	var a types.Architect
	var startedAt string
	switch err := row.Scan(&a.Port, &a.PID, &a.Command, &startedAt, &a.SessionName); err {
	case nil:
		a.StartedAt, _ = time.Parse(timeLayout, startedAt)
		return &a, nil
	case sql.ErrNoRows:
		return nil, nil
	default:
		return nil, fmt.Errorf("query architect: %w", err)
	}
}

// GetArchitect returns the singleton architect row, or ErrNotFound if none
// exists.
func (s *Store) GetArchitect() (*types.Architect, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	a, err := queryArchitect(tx)
	if err == nil && a == nil {
		return nil, ErrNotFound
	}
	return a, err
}

// SetArchitect inserts-or-replaces the singleton architect row.
func (s *Store) SetArchitect(a *types.Architect) error {
	return s.WithTransaction(func(tx *sql.Tx) error {
		taken, err := portTaken(tx, a.Port, "architect", "")
		if err != nil {
			return err
		}
		if taken {
			return ErrPortConflict
		}
		_, err = tx.Exec(`
			INSERT INTO architect (id, port, pid, command, started_at, session_name)
			VALUES (1, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				port = excluded.port, pid = excluded.pid, command = excluded.command,
				started_at = excluded.started_at, session_name = excluded.session_name`,
			a.Port, a.PID, a.Command, a.StartedAt.Format(timeLayout), a.SessionName)
		return err
	})
}

// ClearArchitect removes the singleton row (called by stop).
func (s *Store) ClearArchitect() error {
	return s.WithTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(`DELETE FROM architect WHERE id = 1`)
		return err
	})
}

// --- Builders ---

func queryBuilders(tx *sql.Tx, id string) ([]*types.Builder, error) {
	q := `SELECT id, name, port, pid, status, phase, worktree_path, branch, session_name,
		type, task_text, protocol_name, tracking_issue, created_at FROM builders`
	args := []any{}
	if id != "" {
		q += " WHERE id = ?"
		args = append(args, id)
	}
	q += " ORDER BY id"

	rows, err := tx.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("query builders: %w", err)
	}
	defer rows.Close()

	var out []*types.Builder
	for rows.Next() {
		var b types.Builder
		var createdAt string
		if err := rows.Scan(&b.ID, &b.Name, &b.Port, &b.PID, &b.Status, &b.Phase,
			&b.WorktreePath, &b.Branch, &b.SessionName, &b.Type, &b.TaskText,
			&b.ProtocolName, &b.TrackingIssue, &createdAt); err != nil {
			return nil, fmt.Errorf("scan builder: %w", err)
		}
		b.CreatedAt, _ = time.Parse(timeLayout, createdAt)
		out = append(out, &b)
	}
	return out, rows.Err()
}

// ListBuilders returns all builder rows, ordered by id.
func (s *Store) ListBuilders() ([]*types.Builder, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	return queryBuilders(tx, "")
}

// GetBuilder returns a single builder row, or ErrNotFound.
func (s *Store) GetBuilder(id string) (*types.Builder, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	rows, err := queryBuilders(tx, id)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0], nil
}

// UpsertBuilder inserts or replaces a builder row, enforcing the
// cross-table port-uniqueness check (§3).
func (s *Store) UpsertBuilder(b *types.Builder) error {
	return s.WithTransaction(func(tx *sql.Tx) error {
		taken, err := portTaken(tx, b.Port, "builders", b.ID)
		if err != nil {
			return err
		}
		if taken {
			return ErrPortConflict
		}
		_, err = tx.Exec(`
			INSERT INTO builders (id, name, port, pid, status, phase, worktree_path, branch,
				session_name, type, task_text, protocol_name, tracking_issue, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name, port = excluded.port, pid = excluded.pid,
				status = excluded.status, phase = excluded.phase,
				worktree_path = excluded.worktree_path, branch = excluded.branch,
				session_name = excluded.session_name, type = excluded.type,
				task_text = excluded.task_text, protocol_name = excluded.protocol_name,
				tracking_issue = excluded.tracking_issue`,
			b.ID, b.Name, b.Port, b.PID, b.Status, b.Phase, b.WorktreePath, b.Branch,
			b.SessionName, b.Type, b.TaskText, b.ProtocolName, b.TrackingIssue,
			b.CreatedAt.Format(timeLayout))
		return err
	})
}

// DeleteBuilder removes a builder row.
func (s *Store) DeleteBuilder(id string) error {
	return s.WithTransaction(func(tx *sql.Tx) error {
		res, err := tx.Exec(`DELETE FROM builders WHERE id = ?`, id)
		if err != nil {
			return err
		}
		return requireAffected(res)
	})
}

// RenameBuilder updates the mutable human-readable name.
func (s *Store) RenameBuilder(id, name string) error {
	return s.WithTransaction(func(tx *sql.Tx) error {
		res, err := tx.Exec(`UPDATE builders SET name = ? WHERE id = ?`, name, id)
		if err != nil {
			return err
		}
		return requireAffected(res)
	})
}

// SetBuilderStatus updates status and phase for a builder.
func (s *Store) SetBuilderStatus(id string, status types.BuilderStatus, phase string) error {
	return s.WithTransaction(func(tx *sql.Tx) error {
		res, err := tx.Exec(`UPDATE builders SET status = ?, phase = ? WHERE id = ?`, status, phase, id)
		if err != nil {
			return err
		}
		return requireAffected(res)
	})
}

// --- Utils ---

func queryUtils(tx *sql.Tx, id string) ([]*types.UtilTerminal, error) {
	q := `SELECT id, name, port, pid, session_name, worktree_path, created_at FROM utils`
	args := []any{}
	if id != "" {
		q += " WHERE id = ?"
		args = append(args, id)
	}
	q += " ORDER BY id"

	rows, err := tx.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("query utils: %w", err)
	}
	defer rows.Close()

	var out []*types.UtilTerminal
	for rows.Next() {
		var u types.UtilTerminal
		var createdAt string
		if err := rows.Scan(&u.ID, &u.Name, &u.Port, &u.PID, &u.SessionName, &u.WorktreePath, &createdAt); err != nil {
			return nil, fmt.Errorf("scan util: %w", err)
		}
		u.CreatedAt, _ = time.Parse(timeLayout, createdAt)
		out = append(out, &u)
	}
	return out, rows.Err()
}

// ListUtils returns all utility terminal rows.
func (s *Store) ListUtils() ([]*types.UtilTerminal, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	return queryUtils(tx, "")
}

// GetUtil returns a single utility terminal row, or ErrNotFound.
func (s *Store) GetUtil(id string) (*types.UtilTerminal, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	rows, err := queryUtils(tx, id)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0], nil
}

// TryAddUtil inserts a utility terminal row, returning false (not an error)
// on a port-uniqueness violation so spawn can retry with a fresh port (§4.2).
func (s *Store) TryAddUtil(u *types.UtilTerminal) (bool, error) {
	ok := true
	err := s.WithTransaction(func(tx *sql.Tx) error {
		taken, err := portTaken(tx, u.Port, "utils", u.ID)
		if err != nil {
			return err
		}
		if taken {
			ok = false
			return nil
		}
		_, err = tx.Exec(`
			INSERT INTO utils (id, name, port, pid, session_name, worktree_path, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			u.ID, u.Name, u.Port, u.PID, u.SessionName, u.WorktreePath, u.CreatedAt.Format(timeLayout))
		return err
	})
	return ok, err
}

// DeleteUtil removes a utility terminal row.
func (s *Store) DeleteUtil(id string) error {
	return s.WithTransaction(func(tx *sql.Tx) error {
		res, err := tx.Exec(`DELETE FROM utils WHERE id = ?`, id)
		if err != nil {
			return err
		}
		return requireAffected(res)
	})
}

// --- Annotations ---

func queryAnnotations(tx *sql.Tx, id string) ([]*types.Annotation, error) {
	q := `SELECT id, file_path, port, pid, parent_type, parent_id, created_at FROM annotations`
	args := []any{}
	if id != "" {
		q += " WHERE id = ?"
		args = append(args, id)
	}
	q += " ORDER BY id"

	rows, err := tx.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("query annotations: %w", err)
	}
	defer rows.Close()

	var out []*types.Annotation
	for rows.Next() {
		var a types.Annotation
		var createdAt string
		if err := rows.Scan(&a.ID, &a.FilePath, &a.Port, &a.PID, &a.ParentType, &a.ParentID, &createdAt); err != nil {
			return nil, fmt.Errorf("scan annotation: %w", err)
		}
		a.CreatedAt, _ = time.Parse(timeLayout, createdAt)
		out = append(out, &a)
	}
	return out, rows.Err()
}

// ListAnnotations returns all annotation rows.
func (s *Store) ListAnnotations() ([]*types.Annotation, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	return queryAnnotations(tx, "")
}

// GetAnnotation returns a single annotation row, or ErrNotFound.
func (s *Store) GetAnnotation(id string) (*types.Annotation, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	rows, err := queryAnnotations(tx, id)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0], nil
}

// InsertAnnotation inserts a new annotation row, enforcing port uniqueness.
func (s *Store) InsertAnnotation(a *types.Annotation) error {
	return s.WithTransaction(func(tx *sql.Tx) error {
		taken, err := portTaken(tx, a.Port, "annotations", a.ID)
		if err != nil {
			return err
		}
		if taken {
			return ErrPortConflict
		}
		_, err = tx.Exec(`
			INSERT INTO annotations (id, file_path, port, pid, parent_type, parent_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.FilePath, a.Port, a.PID, a.ParentType, a.ParentID, a.CreatedAt.Format(timeLayout))
		return err
	})
}

// DeleteAnnotation removes an annotation row.
func (s *Store) DeleteAnnotation(id string) error {
	return s.WithTransaction(func(tx *sql.Tx) error {
		res, err := tx.Exec(`DELETE FROM annotations WHERE id = ?`, id)
		if err != nil {
			return err
		}
		return requireAffected(res)
	})
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
