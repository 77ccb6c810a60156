// Package checkpoint keeps a history of ingest runs in a local SQLite file.
package checkpoint

import (
	"time"
)

// Run statuses.
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Backend defines the interface for run history persistence.
type Backend interface {
	// Run management
	CreateRun(id, source, table, targetType string, chunkSize int) error
	RecordChunk(runID string, seq int64, rows int) error
	CompleteRun(id string, status string, errorMsg string) error

	// History
	GetAllRuns() ([]Run, error)
	GetRunByID(runID string) (*Run, error)
	GetRunChunks(runID string) ([]ChunkRecord, error)

	// Lifecycle
	Close() error
}

// Ensure State implements Backend
var _ Backend = (*State)(nil)

// Run is one invocation of the loader.
type Run struct {
	ID          string     `json:"id"`
	Source      string     `json:"source"`
	Table       string     `json:"table"`
	TargetType  string     `json:"target_type"`
	ChunkSize   int        `json:"chunk_size"`
	Status      string     `json:"status"`
	Rows        int64      `json:"rows"`
	Chunks      int64      `json:"chunks"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Duration returns how long the run took, or has taken so far.
func (r Run) Duration() time.Duration {
	if r.CompletedAt == nil {
		return time.Since(r.StartedAt)
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

// ChunkRecord is one committed chunk of a run.
type ChunkRecord struct {
	RunID      string    `json:"run_id"`
	Seq        int64     `json:"seq"`
	Rows       int       `json:"rows"`
	InsertedAt time.Time `json:"inserted_at"`
}
