package stores

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// ErrRunNotFound is returned when a run ID does not exist.
var ErrRunNotFound = errors.New("run not found")

// RunStatus represents the status of a benchmark run
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Run represents one benchmark run
type Run struct {
	ID                string        `json:"id"`
	Document          string        `json:"document"`
	Iterations        int           `json:"iterations"`
	Workers           int           `json:"workers"`
	Status            RunStatus     `json:"status"`
	Duration          time.Duration `json:"duration"`
	OpsPerSecond      float64       `json:"ops_per_second"`
	ObjectsPerClone   float64       `json:"objects_per_clone"`
	StrategyCacheSize int           `json:"strategy_cache_size"`
	Error             *string       `json:"error,omitempty"`
	StartedAt         time.Time     `json:"started_at"`
	CompletedAt       *time.Time    `json:"completed_at,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
}

// StrategyRecord is the compiled strategy of one type as seen by a run
type StrategyRecord struct {
	RunID    string   `json:"run_id"`
	TypeName string   `json:"type_name"`
	Category string   `json:"category"`
	Deep     bool     `json:"deep"`
	Walked   []string `json:"walked,omitempty"`
	Cleared  []string `json:"cleared,omitempty"`
}

// Store defines the interface for the run history
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Transaction support
	BeginTx(ctx context.Context) (*sql.Tx, error)
	CommitTx(tx *sql.Tx) error
	RollbackTx(tx *sql.Tx) error

	// Run operations
	CreateRun(ctx context.Context, run *Run) error
	FinishRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, limit, offset int) ([]*Run, error)
	DeleteRun(ctx context.Context, id string) error

	// Strategy operations
	SaveStrategies(ctx context.Context, runID string, records []StrategyRecord) error
	ListStrategies(ctx context.Context, runID string) ([]StrategyRecord, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
