package orchestrator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/falabot/server/domain/entities"
	"github.com/falabot/server/domain/repositories"
	"github.com/falabot/server/internal/pipeline"
	"github.com/falabot/server/internal/provider"
)

// DefaultContextWindow is the number of recent turns sent to the conversational model
const DefaultContextWindow = 4

// ContextStore is the per-sender conversation history used by the converse stage
type ContextStore interface {
	Append(senderID string, turns ...entities.ConversationTurn)
	Window(senderID string, n int) []entities.ConversationTurn
}

// Capabilities groups the provider chains the pipeline calls.
// Synthesizer may be nil, which disables audio replies.
type Capabilities struct {
	Transcriber repositories.Transcriber
	Classifier  repositories.Classifier
	Corrector   repositories.TextCorrector
	Converser   repositories.Converser
	Synthesizer repositories.Synthesizer
}

// CapabilitiesFrom adapts a resolved provider set
func CapabilitiesFrom(set *provider.Set) Capabilities {
	caps := Capabilities{
		Transcriber: set.Transcriber,
		Classifier:  set.Classifier,
		Corrector:   set.Corrector,
		Converser:   set.Converser,
	}
	if set.Synthesizer != nil {
		caps.Synthesizer = set.Synthesizer
	}
	return caps
}

// Options tunes the pipeline
type Options struct {
	EnableAudioReply bool
	ContextWindow    int
	Timeout          time.Duration
}

// Orchestrator runs transcribe, classify, correct, converse and synthesize for one audio message
type Orchestrator struct {
	runner *pipeline.Runner
	logger *zap.Logger
}

// New wires the stages in their fixed order
func New(caps Capabilities, store ContextStore, opts Options, logger *zap.Logger) *Orchestrator {
	window := opts.ContextWindow
	if window <= 0 {
		window = DefaultContextWindow
	}

	stages := []pipeline.Stage{
		&TranscribeStage{transcriber: caps.Transcriber, logger: logger},
		&ClassifyStage{classifier: caps.Classifier},
		&CorrectStage{corrector: caps.Corrector},
		&ConverseStage{converser: caps.Converser, store: store, window: window},
		&SynthesizeStage{synthesizer: caps.Synthesizer, enabled: opts.EnableAudioReply},
	}

	return &Orchestrator{
		runner: pipeline.NewRunner(stages, opts.Timeout, logger),
		logger: logger,
	}
}

// Process runs the pipeline. It fails only when transcription or correction
// exhausted every provider; the error is a *pipeline.StageError.
func (o *Orchestrator) Process(ctx context.Context, audio []byte, senderID string) (*entities.PipelineResult, error) {
	o.logger.Info("Processing audio",
		zap.String("senderID", senderID),
		zap.Int("bytes", len(audio)))

	run, err := o.runner.Execute(ctx, senderID, audio)
	if err != nil {
		return nil, err
	}

	o.logger.Info("Audio processed",
		zap.String("senderID", senderID),
		zap.String("runID", string(run.ID)),
		zap.String("contentType", string(run.Result.ContentType)),
		zap.Bool("hasCorrections", run.Result.HasCorrections),
		zap.Bool("hasAudio", run.Result.HasAudio()))
	return run.Result, nil
}

// Runner exposes the underlying pipeline runner for events and run history
func (o *Orchestrator) Runner() *pipeline.Runner {
	return o.runner
}
