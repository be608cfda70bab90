// Package state records build history in SQLite: one row per run and one
// row per source file processed in that run.
package state

import "time"

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	// RunStatusPartial means the run finished but some files failed to compile.
	RunStatusPartial RunStatus = "partial"
	RunStatusFailed  RunStatus = "failed"
)

// Run is one invocation of the build.
type Run struct {
	ID          string
	Tasks       []string
	Status      RunStatus
	StartedAt   time.Time
	CompletedAt *time.Time
	Error       string

	// Per-status file counts, filled by ListRuns and GetRun.
	Compiled  int
	Unchanged int
	Failed    int
}

// FileRecord is the outcome for one source file in a run.
type FileRecord struct {
	RunID  string
	Task   string
	Source string
	Output string
	Status string
	Hash   string
	Error  string
}

// Store is the build history interface used by the engine.
type Store interface {
	CreateRun(tasks []string) (*Run, error)
	CompleteRun(id string, status RunStatus, errMsg string) error
	RecordFiles(runID string, files []FileRecord) error
	GetRun(id string) (*Run, error)
	ListRuns(limit int) ([]*Run, error)
	FilesForRun(runID string) ([]FileRecord, error)
	// SchemaVersion is the latest applied migration.
	SchemaVersion() (int64, error)
	// Path is the database location.
	Path() string
	Close() error
}
