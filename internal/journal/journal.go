// Package journal keeps a small SQLite history of pipeline runs and
// per-stage outcomes. It is advisory: every failure is reported to the
// caller as an error to log, never to abort on.
package journal

import (
	"database/sql"
	"fmt"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

// FileName is the journal database inside the output root.
const FileName = "casemill.db"

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	started_at  TEXT NOT NULL,
	finished_at TEXT,
	force       INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS stage_runs (
	run_id      TEXT NOT NULL REFERENCES runs(id),
	stage       TEXT NOT NULL,
	discovered  INTEGER NOT NULL,
	processed   INTEGER NOT NULL,
	skipped     INTEGER NOT NULL,
	failed      INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL
);
`

// Journal records runs into a SQLite file.
type Journal struct {
	db      *sql.DB
	entropy *ulid.MonotonicEntropy
}

// Open creates or opens the journal database at path.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init journal schema: %w", err)
	}
	entropy := ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
	return &Journal{db: db, entropy: entropy}, nil
}

// Close releases the underlying database handle.
func (j *Journal) Close() error { return j.db.Close() }

// BeginRun inserts a new run row and returns its ULID.
func (j *Journal) BeginRun(force bool) (string, error) {
	now := time.Now()
	id := ulid.MustNew(ulid.Timestamp(now), j.entropy).String()
	_, err := j.db.Exec(
		`INSERT INTO runs (id, started_at, force) VALUES (?, ?, ?)`,
		id, now.UTC().Format(time.RFC3339), force,
	)
	if err != nil {
		return "", fmt.Errorf("record run start: %w", err)
	}
	return id, nil
}

// RecordStage appends one stage outcome to the run.
func (j *Journal) RecordStage(runID, stage string, discovered, processed, skipped, failed int64, elapsed time.Duration) error {
	_, err := j.db.Exec(
		`INSERT INTO stage_runs (run_id, stage, discovered, processed, skipped, failed, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, stage, discovered, processed, skipped, failed, elapsed.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("record stage %s: %w", stage, err)
	}
	return nil
}

// FinishRun stamps the run's completion time.
func (j *Journal) FinishRun(runID string) error {
	_, err := j.db.Exec(
		`UPDATE runs SET finished_at = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339), runID,
	)
	if err != nil {
		return fmt.Errorf("record run finish: %w", err)
	}
	return nil
}
