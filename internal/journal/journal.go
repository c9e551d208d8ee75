// Package journal records every emitted command message into a local SQLite
// database, a black-box recorder for post-incident review. Recording is
// best-effort: a journal failure must never delay or fail publication.
package journal

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/dmc-robo/teleop_bridge/internal/motor"
)

// DB wraps the journal database for one bridging session.
type DB struct {
	db      *sql.DB
	session string
}

// Open creates (or appends to) the journal at path. Each Open starts a new
// session id so overlapping runs stay distinguishable.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS commands (
			session_id TEXT,
			seq BIGINT,
			v_l DOUBLE,
			v_r DOUBLE,
			unit TEXT,
			deadman_ms INTEGER,
			ts_ms BIGINT,
			recorded_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_commands_session ON commands(session_id, seq);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create journal schema: %w", err)
	}

	return &DB{db: db, session: uuid.NewString()}, nil
}

// Session returns this run's session id.
func (j *DB) Session() string {
	return j.session
}

// Record inserts one command row.
func (j *DB) Record(cmd motor.Command) error {
	_, err := j.db.Exec(
		"INSERT INTO commands (session_id, seq, v_l, v_r, unit, deadman_ms, ts_ms) VALUES (?, ?, ?, ?, ?, ?, ?)",
		j.session, cmd.Seq, cmd.VL, cmd.VR, cmd.Unit, cmd.DeadmanMS, cmd.TsMS,
	)
	if err != nil {
		return fmt.Errorf("record command: %w", err)
	}
	return nil
}

// Count returns the number of rows recorded for this session.
func (j *DB) Count() (int, error) {
	var n int
	err := j.db.QueryRow("SELECT COUNT(*) FROM commands WHERE session_id = ?", j.session).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count commands: %w", err)
	}
	return n, nil
}

// Close closes the underlying database.
func (j *DB) Close() error {
	return j.db.Close()
}
