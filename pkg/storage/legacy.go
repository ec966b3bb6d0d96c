package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/agentfarm/agentfarm/pkg/types"
)

// legacyState mirrors the flat-file format a pre-SQLite version of the
// store would have produced: project/.agent-farm/state.json.
type legacyState struct {
	Architect   *types.Architect       `json:"architect"`
	Builders    []*types.Builder       `json:"builders"`
	Utils       []*types.UtilTerminal  `json:"utils"`
	Annotations []*types.Annotation    `json:"annotations"`
}

// migrateLegacyJSON converts project/.agent-farm/state.json into the
// transactional store, renaming it to state.json.migrated only after the
// insert transaction commits. Any failure leaves state.json untouched and
// returns an error (§4.2 Migration).
func migrateLegacyJSON(s *Store, dbPath string) error {
	legacyPath := filepath.Join(filepath.Dir(dbPath), "state.json")
	data, err := os.ReadFile(legacyPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read legacy state: %w", err)
	}

	var legacy legacyState
	if err := json.Unmarshal(data, &legacy); err != nil {
		return fmt.Errorf("parse legacy state: %w", err)
	}

	err = s.WithTransaction(func(tx *sql.Tx) error {
		now := time.Now().Format(timeLayout)

		if legacy.Architect != nil {
			a := legacy.Architect
			if _, err := tx.Exec(`
				INSERT INTO architect (id, port, pid, command, started_at, session_name)
				VALUES (1, ?, ?, ?, ?, ?)`,
				a.Port, a.PID, a.Command, timeOrNow(a.StartedAt, now), a.SessionName); err != nil {
				return fmt.Errorf("insert legacy architect: %w", err)
			}
		}
		for _, b := range legacy.Builders {
			if _, err := tx.Exec(`
				INSERT INTO builders (id, name, port, pid, status, phase, worktree_path, branch,
					session_name, type, task_text, protocol_name, tracking_issue, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				b.ID, b.Name, b.Port, b.PID, b.Status, b.Phase, b.WorktreePath, b.Branch,
				b.SessionName, b.Type, b.TaskText, b.ProtocolName, b.TrackingIssue,
				timeOrNow(b.CreatedAt, now)); err != nil {
				return fmt.Errorf("insert legacy builder %s: %w", b.ID, err)
			}
		}
		for _, u := range legacy.Utils {
			if _, err := tx.Exec(`
				INSERT INTO utils (id, name, port, pid, session_name, worktree_path, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				u.ID, u.Name, u.Port, u.PID, u.SessionName, u.WorktreePath, timeOrNow(u.CreatedAt, now)); err != nil {
				return fmt.Errorf("insert legacy util %s: %w", u.ID, err)
			}
		}
		for _, a := range legacy.Annotations {
			if _, err := tx.Exec(`
				INSERT INTO annotations (id, file_path, port, pid, parent_type, parent_id, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				a.ID, a.FilePath, a.Port, a.PID, a.ParentType, a.ParentID, timeOrNow(a.CreatedAt, now)); err != nil {
				return fmt.Errorf("insert legacy annotation %s: %w", a.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	return os.Rename(legacyPath, legacyPath+".migrated")
}

func timeOrNow(t time.Time, now string) string {
	if t.IsZero() {
		return now
	}
	return t.Format(timeLayout)
}
