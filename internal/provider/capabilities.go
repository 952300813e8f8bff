package provider

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/falabot/server/domain/entities"
	"github.com/falabot/server/domain/repositories"
)

// SpeechChain transcribes mp3 audio with an ordered list of providers
type SpeechChain struct {
	providers []repositories.SpeechToText
	language  string
	logger    *zap.Logger
}

var _ repositories.Transcriber = (*SpeechChain)(nil)

func NewSpeechChain(providers []repositories.SpeechToText, language string, logger *zap.Logger) *SpeechChain {
	return &SpeechChain{providers: providers, language: language, logger: logger}
}

func (c *SpeechChain) Transcribe(ctx context.Context, audio []byte) (string, error) {
	config := repositories.AudioConfig{Encoding: "MP3", Language: c.language}
	return tryInOrder(ctx, c.logger, "speech-to-text", c.providers,
		func(ctx context.Context, p repositories.SpeechToText) (string, error) {
			return p.TranscribeAudio(ctx, audio, config)
		})
}

// Providers returns the provider names in call order
func (c *SpeechChain) Providers() []string { return names(c.providers) }

// CorrectorChain applies the correction policy with an ordered list of chat models
type CorrectorChain struct {
	models []repositories.ChatModel
	logger *zap.Logger
}

var _ repositories.TextCorrector = (*CorrectorChain)(nil)

func NewCorrectorChain(models []repositories.ChatModel, logger *zap.Logger) *CorrectorChain {
	return &CorrectorChain{models: models, logger: logger}
}

func (c *CorrectorChain) Correct(ctx context.Context, text string) (string, error) {
	messages := []repositories.ChatMessage{
		{Role: repositories.SystemRole, Content: correctionPolicy},
		{Role: repositories.UserRole, Content: text},
	}
	return tryInOrder(ctx, c.logger, "correction", c.models,
		func(ctx context.Context, m repositories.ChatModel) (string, error) {
			return m.Complete(ctx, messages, correctionOptions)
		})
}

func (c *CorrectorChain) Providers() []string { return names(c.models) }

// ConverserChain produces contextual replies with an ordered list of chat models
type ConverserChain struct {
	models []repositories.ChatModel
	logger *zap.Logger
}

var _ repositories.Converser = (*ConverserChain)(nil)

func NewConverserChain(models []repositories.ChatModel, logger *zap.Logger) *ConverserChain {
	return &ConverserChain{models: models, logger: logger}
}

func (c *ConverserChain) Converse(ctx context.Context, contentType entities.ContentType, history []entities.ConversationTurn, text string) (string, error) {
	messages := make([]repositories.ChatMessage, 0, len(history)+2)
	messages = append(messages, repositories.ChatMessage{Role: repositories.SystemRole, Content: ConversePolicy(contentType)})
	for _, turn := range history {
		role := repositories.UserRole
		if turn.Role == entities.RoleAssistant {
			role = repositories.AssistantRole
		}
		messages = append(messages, repositories.ChatMessage{Role: role, Content: turn.Text})
	}
	messages = append(messages, repositories.ChatMessage{Role: repositories.UserRole, Content: text})

	return tryInOrder(ctx, c.logger, "conversation", c.models,
		func(ctx context.Context, m repositories.ChatModel) (string, error) {
			return m.Complete(ctx, messages, converseOptions)
		})
}

func (c *ConverserChain) Providers() []string { return names(c.models) }

// ModelClassifier labels text with a single chat completion call
type ModelClassifier struct {
	model repositories.ChatModel
}

var _ repositories.Classifier = (*ModelClassifier)(nil)

func NewModelClassifier(model repositories.ChatModel) *ModelClassifier {
	return &ModelClassifier{model: model}
}

func (c *ModelClassifier) Classify(ctx context.Context, text string) (entities.ContentType, error) {
	if c.model == nil {
		return entities.ContentTypeConversation, fmt.Errorf("classification: %w", entities.ErrProviderUnavailable)
	}
	raw, err := c.model.Complete(ctx, []repositories.ChatMessage{
		{Role: repositories.SystemRole, Content: classificationPolicy},
		{Role: repositories.UserRole, Content: text},
	}, classificationOptions)
	if err != nil {
		return entities.ContentTypeConversation, fmt.Errorf("%s classification failed: %w", c.model.Name(), err)
	}
	return entities.ParseContentType(raw), nil
}

// SynthesisChain speaks text with an ordered list of TTS engines
type SynthesisChain struct {
	engines []repositories.TextToSpeech
	logger  *zap.Logger
}

var _ repositories.Synthesizer = (*SynthesisChain)(nil)

func NewSynthesisChain(engines []repositories.TextToSpeech, logger *zap.Logger) *SynthesisChain {
	return &SynthesisChain{engines: engines, logger: logger}
}

func (c *SynthesisChain) Synthesize(ctx context.Context, text string) ([]byte, error) {
	return tryInOrder(ctx, c.logger, "text-to-speech", c.engines,
		func(ctx context.Context, e repositories.TextToSpeech) ([]byte, error) {
			return e.ConvertTextToSpeech(ctx, text)
		})
}

func (c *SynthesisChain) Providers() []string { return names(c.engines) }
