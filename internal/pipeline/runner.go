package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/falabot/server/domain/entities"
)

const (
	defaultTimeout = 2 * time.Minute
	historySize    = 50
)

// Runner executes stages sequentially against a Run and publishes lifecycle events
type Runner struct {
	logger    *zap.Logger
	stages    []Stage
	timeout   time.Duration
	eventChan chan Event

	mu      sync.RWMutex
	history []*Run
}

// NewRunner creates a runner for the given stages. A zero timeout uses the default.
func NewRunner(stages []Stage, timeout time.Duration, logger *zap.Logger) *Runner {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Runner{
		logger:    logger,
		stages:    stages,
		timeout:   timeout,
		eventChan: make(chan Event, 100),
	}
}

// Execute runs every stage in order for one audio message and returns the
// finished run. The returned error is a *StageError when a stage aborted.
func (r *Runner) Execute(ctx context.Context, senderID string, audio []byte) (*Run, error) {
	run := &Run{
		ID:        RunID(uuid.NewString()),
		SenderID:  senderID,
		Audio:     audio,
		Result:    &entities.PipelineResult{ContentType: entities.ContentTypeConversation},
		State:     RunStateStarted,
		Stages:    make([]StageExecution, len(r.stages)),
		StartedAt: time.Now(),
	}
	for i, stage := range r.stages {
		run.Stages[i] = StageExecution{ID: stage.ID(), State: StageStatePending}
	}
	r.emitEvent(Event{RunID: run.ID, Type: EventRunStarted, Timestamp: run.StartedAt})

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	r.setRunState(run, RunStateRunning)
	for i, stage := range r.stages {
		if err := r.executeStage(ctx, run, i, stage); err != nil {
			r.failRun(run, err)
			r.remember(run)
			return run, &StageError{Stage: stage.ID(), Err: err}
		}
	}

	r.completeRun(run)
	r.remember(run)
	return run, nil
}

func (r *Runner) executeStage(ctx context.Context, run *Run, index int, stage Stage) error {
	start := time.Now()
	r.update(func() {
		run.Stages[index].State = StageStateRunning
		run.Stages[index].StartedAt = &start
	})
	r.emitEvent(Event{RunID: run.ID, StageID: stage.ID(), Type: EventStageStarted, Timestamp: start})

	err := stage.Execute(ctx, run)

	end := time.Now()
	state, eventType := StageStateCompleted, EventStageCompleted
	var degraded *DegradedError
	switch {
	case err == nil:
	case errors.Is(err, ErrSkipped):
		state, eventType = StageStateSkipped, EventStageSkipped
	case errors.As(err, &degraded):
		state, eventType = StageStateDegraded, EventStageDegraded
	default:
		state, eventType = StageStateFailed, EventStageFailed
	}

	r.update(func() {
		run.Stages[index].State = state
		run.Stages[index].CompletedAt = &end
		if err != nil && state != StageStateSkipped {
			run.Stages[index].Error = err.Error()
		}
	})

	event := Event{RunID: run.ID, StageID: stage.ID(), Type: eventType, Timestamp: end, Duration: end.Sub(start)}
	if err != nil && state != StageStateSkipped {
		event.Error = err.Error()
	}
	r.emitEvent(event)

	switch state {
	case StageStateFailed:
		r.logger.Error("Stage failed",
			zap.String("runID", string(run.ID)),
			zap.String("stageID", string(stage.ID())),
			zap.Error(err))
		return err
	case StageStateDegraded:
		r.logger.Warn("Stage degraded",
			zap.String("runID", string(run.ID)),
			zap.String("stageID", string(stage.ID())),
			zap.Error(degraded.Err))
	default:
		r.logger.Debug("Stage finished",
			zap.String("runID", string(run.ID)),
			zap.String("stageID", string(stage.ID())),
			zap.String("state", string(state)),
			zap.Duration("duration", end.Sub(start)))
	}
	return nil
}

func (r *Runner) failRun(run *Run, err error) {
	now := time.Now()
	r.update(func() {
		run.State = RunStateFailed
		run.CompletedAt = &now
		run.Error = err.Error()
	})
	r.emitEvent(Event{RunID: run.ID, Type: EventRunFailed, Timestamp: now, Duration: now.Sub(run.StartedAt), Error: err.Error()})
}

func (r *Runner) completeRun(run *Run) {
	now := time.Now()
	r.update(func() {
		run.State = RunStateCompleted
		run.CompletedAt = &now
	})
	r.emitEvent(Event{RunID: run.ID, Type: EventRunCompleted, Timestamp: now, Duration: now.Sub(run.StartedAt)})

	r.logger.Info("Pipeline completed",
		zap.String("runID", string(run.ID)),
		zap.String("senderID", run.SenderID),
		zap.Duration("duration", now.Sub(run.StartedAt)))
}

func (r *Runner) setRunState(run *Run, state RunState) {
	r.update(func() { run.State = state })
}

func (r *Runner) update(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn()
}

func (r *Runner) remember(run *Run) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = append(r.history, run)
	if len(r.history) > historySize {
		r.history = r.history[len(r.history)-historySize:]
	}
}

// Get returns a recently finished run by ID
func (r *Runner) Get(id RunID) (Run, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, run := range r.history {
		if run.ID == id {
			return snapshot(run), true
		}
	}
	return Run{}, false
}

// Recent returns copies of the most recently finished runs, newest first
func (r *Runner) Recent() []Run {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Run, 0, len(r.history))
	for i := len(r.history) - 1; i >= 0; i-- {
		out = append(out, snapshot(r.history[i]))
	}
	return out
}

func snapshot(run *Run) Run {
	cp := *run
	cp.Audio = nil
	cp.Stages = append([]StageExecution(nil), run.Stages...)
	if run.Result != nil {
		result := *run.Result
		result.SynthesizedAudio = nil
		cp.Result = &result
	}
	return cp
}

func (r *Runner) emitEvent(event Event) {
	select {
	case r.eventChan <- event:
	default:
		r.logger.Warn("Event channel full, dropping event", zap.String("type", event.Type))
	}
}

// EventChannel returns the event channel for listening to pipeline events
func (r *Runner) EventChannel() <-chan Event {
	return r.eventChan
}

// Stages returns the configured stage IDs in execution order
func (r *Runner) Stages() []StageID {
	ids := make([]StageID, len(r.stages))
	for i, s := range r.stages {
		ids[i] = s.ID()
	}
	return ids
}
