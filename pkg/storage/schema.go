package storage

const schemaDDL = `
CREATE TABLE IF NOT EXISTS architect (
	id           INTEGER PRIMARY KEY CHECK (id = 1),
	port         INTEGER NOT NULL UNIQUE,
	pid          INTEGER NOT NULL,
	command      TEXT NOT NULL,
	started_at   TEXT NOT NULL,
	session_name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS builders (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	port           INTEGER NOT NULL UNIQUE,
	pid            INTEGER NOT NULL,
	status         TEXT NOT NULL CHECK (status IN ('spawning','implementing','blocked','pr-ready','complete')),
	phase          TEXT NOT NULL DEFAULT '',
	worktree_path  TEXT NOT NULL DEFAULT '',
	branch         TEXT NOT NULL DEFAULT '',
	session_name   TEXT NOT NULL,
	type           TEXT NOT NULL CHECK (type IN ('spec','task','protocol','shell','worktree')),
	task_text      TEXT NOT NULL DEFAULT '',
	protocol_name  TEXT NOT NULL DEFAULT '',
	tracking_issue INTEGER NOT NULL DEFAULT 0,
	created_at     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS utils (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	port          INTEGER NOT NULL UNIQUE,
	pid           INTEGER NOT NULL,
	session_name  TEXT NOT NULL,
	worktree_path TEXT NOT NULL DEFAULT '',
	created_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS annotations (
	id          TEXT PRIMARY KEY,
	file_path   TEXT NOT NULL,
	port        INTEGER NOT NULL UNIQUE,
	pid         INTEGER NOT NULL,
	parent_type TEXT NOT NULL CHECK (parent_type IN ('architect','builder','util')),
	parent_id   TEXT NOT NULL DEFAULT '',
	created_at  TEXT NOT NULL
);
`

func (s *Store) migrateSchema() error {
	_, err := s.db.Exec(schemaDDL)
	return err
}
