package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/falabot/server/domain/entities"
)

// RunState represents the current state of a pipeline run
type RunState string

const (
	RunStateStarted   RunState = "started"
	RunStateRunning   RunState = "running"
	RunStateCompleted RunState = "completed"
	RunStateFailed    RunState = "failed"
)

// StageState represents the state of an individual stage
type StageState string

const (
	StageStatePending   StageState = "pending"
	StageStateRunning   StageState = "running"
	StageStateCompleted StageState = "completed"
	StageStateDegraded  StageState = "degraded"
	StageStateSkipped   StageState = "skipped"
	StageStateFailed    StageState = "failed"
)

// RunID uniquely identifies a pipeline run
type RunID string

// StageID uniquely identifies a stage within a pipeline
type StageID string

// Stage is one step of the audio pipeline. Execute reads and writes the
// shared Run. A plain error aborts the run; errors wrapped with Degrade are
// recorded and the run continues; ErrSkipped marks the stage as not applicable.
type Stage interface {
	ID() StageID
	Execute(ctx context.Context, run *Run) error
}

// ErrSkipped is returned by a stage that had nothing to do for this run
var ErrSkipped = errors.New("stage skipped")

// DegradedError carries a stage failure that was absorbed by a fallback value
type DegradedError struct {
	Err error
}

func (e *DegradedError) Error() string { return "degraded: " + e.Err.Error() }

func (e *DegradedError) Unwrap() error { return e.Err }

// Degrade wraps err so the runner records it without aborting the run
func Degrade(err error) error {
	if err == nil {
		return nil
	}
	return &DegradedError{Err: err}
}

// StageError reports the stage that aborted a run
type StageError struct {
	Stage StageID
	Err   error
}

func (e *StageError) Error() string { return string(e.Stage) + ": " + e.Err.Error() }

func (e *StageError) Unwrap() error { return e.Err }

// Run holds the shared data of one pipeline execution
type Run struct {
	ID        RunID                    `json:"id"`
	SenderID  string                   `json:"sender_id"`
	Audio     []byte                   `json:"-"`
	Result    *entities.PipelineResult `json:"result"`
	State     RunState                 `json:"state"`
	Stages    []StageExecution         `json:"stages"`
	StartedAt time.Time                `json:"started_at"`
	// CompletedAt is nil while the run is in progress
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// StageExecution represents the execution state of a stage
type StageExecution struct {
	ID          StageID    `json:"id"`
	State       StageState `json:"state"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// Duration returns how long the stage ran, zero if it never started
func (s StageExecution) Duration() time.Duration {
	if s.StartedAt == nil || s.CompletedAt == nil {
		return 0
	}
	return s.CompletedAt.Sub(*s.StartedAt)
}

// Event represents an event in the pipeline lifecycle
type Event struct {
	RunID     RunID         `json:"run_id"`
	StageID   StageID       `json:"stage_id,omitempty"`
	Type      string        `json:"type"`
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"duration,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// Event types
const (
	EventRunStarted     = "run_started"
	EventRunCompleted   = "run_completed"
	EventRunFailed      = "run_failed"
	EventStageStarted   = "stage_started"
	EventStageCompleted = "stage_completed"
	EventStageDegraded  = "stage_degraded"
	EventStageSkipped   = "stage_skipped"
	EventStageFailed    = "stage_failed"
)
