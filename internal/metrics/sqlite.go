package metrics

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS scalars (
	run_id       TEXT NOT NULL,
	step         INTEGER NOT NULL,
	name         TEXT NOT NULL,
	value        REAL NOT NULL,
	logged_at_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS scalars_run_step ON scalars (run_id, step);
`

// SQLiteSink persists scalars to a local SQLite database, one row per
// (step, name) pair, tagged with a fresh run ID per process.
type SQLiteSink struct {
	db    *sql.DB
	runID string
}

func NewSQLiteSink(path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("metrics: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("metrics: create schema: %w", err)
	}
	return &SQLiteSink{db: db, runID: uuid.NewString()}, nil
}

func (s *SQLiteSink) RunID() string {
	return s.runID
}

func (s *SQLiteSink) Write(step int, values map[string]float64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	now := time.Now().UnixMilli()
	for name, value := range values {
		if _, err := tx.Exec(
			"INSERT INTO scalars (run_id, step, name, value, logged_at_ms) VALUES (?, ?, ?, ?, ?)",
			s.runID, step, name, value, now,
		); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
