package logstore

import (
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore persists sessions and raw-line logs in a single SQLite
// database. Line order is preserved by the autoincrement rowid.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and migrates) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id          TEXT PRIMARY KEY,
		task        TEXT NOT NULL,
		status      TEXT NOT NULL,
		started_at  DATETIME,
		finished_at DATETIME,
		exit_code   INTEGER
	);

	-- Raw-line logs for replay; stream is 'primary' or 'child:<tool_use_id>'
	CREATE TABLE IF NOT EXISTS session_lines (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		stream     TEXT NOT NULL,
		line       TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,

		FOREIGN KEY (session_id) REFERENCES sessions(id)
	);

	CREATE INDEX IF NOT EXISTS idx_lines_session ON session_lines(session_id, stream, id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveMeta upserts the session row.
func (s *SQLiteStore) SaveMeta(meta *Meta) error {
	_, err := s.db.Exec(`
		INSERT INTO sessions (id, task, status, started_at, finished_at, exit_code)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			task = excluded.task,
			status = excluded.status,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at,
			exit_code = excluded.exit_code`,
		meta.ID, meta.Task, meta.Status, meta.StartedAt, meta.FinishedAt, meta.ExitCode)
	return err
}

// LoadMeta reads the session row; sql.ErrNoRows when absent.
func (s *SQLiteStore) LoadMeta(sessionID string) (*Meta, error) {
	row := s.db.QueryRow(`
		SELECT id, task, status, started_at, finished_at, exit_code
		FROM sessions WHERE id = ?`, sessionID)

	var meta Meta
	var startedAt, finishedAt sql.NullTime
	var exitCode sql.NullInt64
	if err := row.Scan(&meta.ID, &meta.Task, &meta.Status, &startedAt, &finishedAt, &exitCode); err != nil {
		return nil, err
	}
	if startedAt.Valid {
		t := startedAt.Time
		meta.StartedAt = &t
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		meta.FinishedAt = &t
	}
	if exitCode.Valid {
		code := int(exitCode.Int64)
		meta.ExitCode = &code
	}
	return &meta, nil
}

// Append adds one line to the session's primary stream.
func (s *SQLiteStore) Append(sessionID, line string) error {
	return s.appendLine(sessionID, "primary", line)
}

// AppendChild adds one line to an async sub-agent's stream.
func (s *SQLiteStore) AppendChild(sessionID, toolUseID, line string) error {
	return s.appendLine(sessionID, "child:"+toolUseID, line)
}

func (s *SQLiteStore) appendLine(sessionID, stream, line string) error {
	_, err := s.db.Exec(`
		INSERT INTO session_lines (session_id, stream, line, created_at)
		VALUES (?, ?, ?, ?)`,
		sessionID, stream, line, time.Now().UTC())
	return err
}

// ReadAll returns the primary stream's lines in insertion order.
func (s *SQLiteStore) ReadAll(sessionID string) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT line FROM session_lines
		WHERE session_id = ? AND stream = 'primary'
		ORDER BY id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// List returns all persisted session ids.
func (s *SQLiteStore) List() ([]string, error) {
	rows, err := s.db.Query(`SELECT id FROM sessions`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
