package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/falabot/server/domain/entities"
	"github.com/falabot/server/domain/repositories"
	"github.com/falabot/server/internal/pipeline"
	"github.com/falabot/server/internal/provider"
)

// Stage IDs in execution order
const (
	StageTranscribe pipeline.StageID = "transcribe"
	StageClassify   pipeline.StageID = "classify"
	StageCorrect    pipeline.StageID = "correct"
	StageConverse   pipeline.StageID = "converse"
	StageSynthesize pipeline.StageID = "synthesize"
)

// TranscribeStage converts the mp3 payload to text
type TranscribeStage struct {
	transcriber repositories.Transcriber
	logger      *zap.Logger
}

func (s *TranscribeStage) ID() pipeline.StageID { return StageTranscribe }

func (s *TranscribeStage) Execute(ctx context.Context, run *pipeline.Run) error {
	text, err := s.transcriber.Transcribe(ctx, run.Audio)
	if err != nil {
		return fmt.Errorf("speech-to-text failed: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("empty transcription: %w", entities.ErrInvalidAudio)
	}

	run.Result.Transcription = text
	s.logger.Info("Speech-to-text completed",
		zap.String("senderID", run.SenderID),
		zap.String("transcription", text))
	return nil
}

// ClassifyStage labels the transcription. Failures fall back to CONVERSATION.
type ClassifyStage struct {
	classifier repositories.Classifier
}

func (s *ClassifyStage) ID() pipeline.StageID { return StageClassify }

func (s *ClassifyStage) Execute(ctx context.Context, run *pipeline.Run) error {
	run.Result.ContentType = entities.ContentTypeConversation
	if s.classifier == nil {
		return pipeline.Degrade(entities.ErrProviderUnavailable)
	}

	contentType, err := s.classifier.Classify(ctx, run.Result.Transcription)
	if err != nil {
		return pipeline.Degrade(err)
	}
	run.Result.ContentType = contentType
	return nil
}

// CorrectStage applies the grammar correction policy. Song fragments pass through untouched.
type CorrectStage struct {
	corrector repositories.TextCorrector
}

func (s *CorrectStage) ID() pipeline.StageID { return StageCorrect }

func (s *CorrectStage) Execute(ctx context.Context, run *pipeline.Run) error {
	if run.Result.ContentType == entities.ContentTypeMusic {
		run.Result.CorrectedText = provider.MusicPassThrough
		run.Result.HasCorrections = false
		return pipeline.ErrSkipped
	}

	corrected, err := s.corrector.Correct(ctx, run.Result.Transcription)
	if err != nil {
		return fmt.Errorf("text correction failed: %w", err)
	}
	corrected = strings.TrimSpace(corrected)
	run.Result.CorrectedText = corrected
	run.Result.HasCorrections = provider.HasCorrections(corrected)
	return nil
}

// ConverseStage produces the contextual reply and records the exchange
type ConverseStage struct {
	converser repositories.Converser
	store     ContextStore
	window    int
}

func (s *ConverseStage) ID() pipeline.StageID { return StageConverse }

func (s *ConverseStage) Execute(ctx context.Context, run *pipeline.Run) error {
	result := run.Result
	history := s.store.Window(run.SenderID, s.window)

	reply, err := s.converser.Converse(ctx, result.ContentType, history, result.Transcription)
	if err == nil && strings.TrimSpace(reply) == "" {
		err = fmt.Errorf("empty reply: %w", entities.ErrProviderUnavailable)
	}
	if err != nil {
		reply = provider.CannedReply(result.ContentType)
	}

	result.Reply = strings.TrimSpace(reply)
	s.store.Append(run.SenderID,
		entities.UserTurn(result.Transcription),
		entities.AssistantTurn(result.Reply))

	return pipeline.Degrade(err)
}

// SynthesizeStage speaks the corrected sentence when audio replies are enabled
type SynthesizeStage struct {
	synthesizer repositories.Synthesizer
	enabled     bool
}

func (s *SynthesizeStage) ID() pipeline.StageID { return StageSynthesize }

func (s *SynthesizeStage) Execute(ctx context.Context, run *pipeline.Run) error {
	if !s.enabled || s.synthesizer == nil || !run.Result.HasCorrections {
		return pipeline.ErrSkipped
	}

	audio, err := s.synthesizer.Synthesize(ctx, provider.SpokenCorrection(run.Result.CorrectedText))
	if err != nil {
		return pipeline.Degrade(err)
	}
	run.Result.SynthesizedAudio = audio
	return nil
}
