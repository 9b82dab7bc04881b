package stores

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a run or epoch does not exist.
var ErrNotFound = errors.New("not found")

// RunStatus represents the status of an engine session
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// EpochStatus represents the status of one Run() call of an engine
type EpochStatus string

const (
	EpochStatusRunning   EpochStatus = "running"
	EpochStatusCompleted EpochStatus = "completed"
	EpochStatusFailed    EpochStatus = "failed"
)

// Run represents one engine session: the engine and every epoch it ran
type Run struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Role        string     `json:"role"`
	Status      RunStatus  `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       *string    `json:"error,omitempty"`
	Metadata    string     `json:"metadata"` // JSON blob
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Epoch represents one pass of an engine over its data source
type Epoch struct {
	ID             int64       `json:"id"`
	RunID          string      `json:"run_id"`
	Engine         string      `json:"engine"`
	Number         int         `json:"number"`
	Batches        int         `json:"batches"`
	FirstIteration int         `json:"first_iteration"`
	LastIteration  int         `json:"last_iteration"`
	Status         EpochStatus `json:"status"`
	StartedAt      time.Time   `json:"started_at"`
	CompletedAt    *time.Time  `json:"completed_at,omitempty"`
	Error          *string     `json:"error,omitempty"`
}

// Store defines the interface for the persistence layer
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Run operations
	CreateRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	UpdateRunStatus(ctx context.Context, id string, status RunStatus, err *string) error
	ListRuns(ctx context.Context, limit, offset int) ([]*Run, error)
	DeleteRun(ctx context.Context, id string) error

	// Epoch operations
	RecordEpochStart(ctx context.Context, epoch *Epoch) error
	RecordEpochProgress(ctx context.Context, id int64, batches, lastIteration int) error
	RecordEpochEnd(ctx context.Context, id int64, status EpochStatus, batches, lastIteration int, err *string) error
	ListEpochs(ctx context.Context, runID string) ([]*Epoch, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
