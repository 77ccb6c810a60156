package checkpoint

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/johndauphine/taxi-ingest/internal/driver/sqlite"
	"github.com/johndauphine/taxi-ingest/internal/logging"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id           TEXT PRIMARY KEY,
    source       TEXT NOT NULL,
    table_name   TEXT NOT NULL,
    target_type  TEXT NOT NULL,
    chunk_size   INTEGER NOT NULL,
    status       TEXT NOT NULL,
    rows_done    INTEGER NOT NULL DEFAULT 0,
    chunks_done  INTEGER NOT NULL DEFAULT 0,
    error        TEXT NOT NULL DEFAULT '',
    started_at   TEXT NOT NULL,
    completed_at TEXT
);

CREATE TABLE IF NOT EXISTS chunks (
    run_id      TEXT NOT NULL REFERENCES runs(id),
    seq         INTEGER NOT NULL,
    rows        INTEGER NOT NULL,
    inserted_at TEXT NOT NULL,
    PRIMARY KEY (run_id, seq)
);
`

const timeLayout = time.RFC3339Nano

// State is the SQLite-backed run history.
type State struct {
	db *sql.DB
}

// New opens (creating if needed) the history database at path.
func New(path string) (*State, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating state directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", sqlite.BuildDSN(path))
	if err != nil {
		return nil, fmt.Errorf("opening state database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating state schema: %w", err)
	}

	logging.Debug("Opened run history at %s", path)
	return &State{db: db}, nil
}

// Close closes the database.
func (s *State) Close() error {
	return s.db.Close()
}

// CreateRun records the start of a run.
func (s *State) CreateRun(id, source, table, targetType string, chunkSize int) error {
	_, err := s.db.Exec(`
		INSERT INTO runs (id, source, table_name, target_type, chunk_size, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, source, table, targetType, chunkSize, StatusRunning, now())
	if err != nil {
		return fmt.Errorf("creating run %s: %w", id, err)
	}
	return nil
}

// RecordChunk records a committed chunk and bumps the run's totals.
func (s *State) RecordChunk(runID string, seq int64, rows int) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`INSERT INTO chunks (run_id, seq, rows, inserted_at) VALUES (?, ?, ?, ?)`,
		runID, seq, rows, now()); err != nil {
		return fmt.Errorf("recording chunk %d of run %s: %w", seq, runID, err)
	}
	res, err := tx.Exec(`UPDATE runs SET rows_done = rows_done + ?, chunks_done = chunks_done + 1 WHERE id = ?`,
		rows, runID)
	if err != nil {
		return fmt.Errorf("updating run %s: %w", runID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s not found", runID)
	}
	return tx.Commit()
}

// CompleteRun records the final status of a run.
func (s *State) CompleteRun(id string, status string, errorMsg string) error {
	res, err := s.db.Exec(`UPDATE runs SET status = ?, error = ?, completed_at = ? WHERE id = ?`,
		status, errorMsg, now(), id)
	if err != nil {
		return fmt.Errorf("completing run %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s not found", id)
	}
	return nil
}

const runColumns = `id, source, table_name, target_type, chunk_size, status, rows_done, chunks_done, error, started_at, completed_at`

// GetAllRuns returns every run, newest first.
func (s *State) GetAllRuns() ([]Run, error) {
	rows, err := s.db.Query(`SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// GetRunByID returns a run, or nil if there is no such run.
func (s *State) GetRunByID(runID string) (*Run, error) {
	r, err := scanRun(s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, runID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

// GetRunChunks returns the chunks of a run in sequence order.
func (s *State) GetRunChunks(runID string) ([]ChunkRecord, error) {
	rows, err := s.db.Query(`SELECT run_id, seq, rows, inserted_at FROM chunks WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("listing chunks of run %s: %w", runID, err)
	}
	defer rows.Close()

	var chunks []ChunkRecord
	for rows.Next() {
		var (
			c  ChunkRecord
			ts string
		)
		if err := rows.Scan(&c.RunID, &c.Seq, &c.Rows, &ts); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		if c.InsertedAt, err = time.Parse(timeLayout, ts); err != nil {
			return nil, fmt.Errorf("parsing inserted_at: %w", err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var (
		r         Run
		started   string
		completed sql.NullString
	)
	err := sc.Scan(&r.ID, &r.Source, &r.Table, &r.TargetType, &r.ChunkSize, &r.Status,
		&r.Rows, &r.Chunks, &r.Error, &started, &completed)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scanning run: %w", err)
	}
	if r.StartedAt, err = time.Parse(timeLayout, started); err != nil {
		return nil, fmt.Errorf("parsing started_at: %w", err)
	}
	if completed.Valid {
		t, err := time.Parse(timeLayout, completed.String)
		if err != nil {
			return nil, fmt.Errorf("parsing completed_at: %w", err)
		}
		r.CompletedAt = &t
	}
	return &r, nil
}

func now() string {
	return time.Now().UTC().Format(timeLayout)
}
