package provider

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/falabot/server/domain/entities"
	"github.com/falabot/server/domain/repositories"
)

// Provider keys used in mode plans
const (
	Whisper      = "openai-whisper"
	GoogleSpeech = "google-speech"
	OpenAIChat   = "openai"
	DeepSeekChat = "deepseek"
	GeminiChat   = "gemini"
	OpenAITTS    = "openai-tts"
	ElevenLabs   = "elevenlabs"
	Polly        = "amazon-polly"
)

// Catalog holds every provider that was successfully configured, keyed by provider key
type Catalog struct {
	SpeechToText map[string]repositories.SpeechToText
	Chat         map[string]repositories.ChatModel
	TextToSpeech map[string]repositories.TextToSpeech
}

func NewCatalog() *Catalog {
	return &Catalog{
		SpeechToText: make(map[string]repositories.SpeechToText),
		Chat:         make(map[string]repositories.ChatModel),
		TextToSpeech: make(map[string]repositories.TextToSpeech),
	}
}

// plan lists preferred providers per capability, primary first
type plan struct {
	speech   []string
	classify []string
	correct  []string
	converse []string
	speak    []string
}

var plans = map[entities.ProviderMode]plan{
	entities.ProviderModePrimaryOnly: {
		speech:   []string{Whisper},
		classify: []string{OpenAIChat},
		correct:  []string{OpenAIChat},
		converse: []string{OpenAIChat},
		speak:    []string{OpenAITTS},
	},
	entities.ProviderModeHybrid: {
		speech:   []string{Whisper, GoogleSpeech},
		classify: []string{DeepSeekChat},
		correct:  []string{DeepSeekChat, OpenAIChat},
		converse: []string{DeepSeekChat, OpenAIChat},
		speak:    []string{OpenAITTS, ElevenLabs},
	},
	entities.ProviderModeCostOptimized: {
		speech:   []string{GoogleSpeech, Whisper},
		classify: []string{GeminiChat},
		correct:  []string{DeepSeekChat, OpenAIChat},
		converse: []string{GeminiChat, OpenAIChat},
		speak:    []string{Polly, OpenAITTS},
	},
}

// Set is the resolved group of capabilities for one ProviderMode
type Set struct {
	Mode        entities.ProviderMode
	Transcriber *SpeechChain
	Classifier  *ModelClassifier
	Corrector   *CorrectorChain
	Converser   *ConverserChain
	// Synthesizer is nil when no text-to-speech provider is configured
	Synthesizer *SynthesisChain
}

// Build resolves the mode plan against the catalog. In primary-only mode every
// chain has a single member; otherwise a chain holds a primary and at most one fallback.
func Build(mode entities.ProviderMode, catalog *Catalog, language string, logger *zap.Logger) (*Set, error) {
	p, ok := plans[mode]
	if !ok {
		return nil, fmt.Errorf("unknown provider mode %q", mode)
	}

	limit := 1
	if mode.AllowsFallback() {
		limit = 2
	}

	speech := resolve(p.speech, catalog.SpeechToText, limit, "speech-to-text", logger)
	if len(speech) == 0 {
		return nil, fmt.Errorf("speech-to-text: %w", entities.ErrProviderUnavailable)
	}
	correct := resolve(p.correct, catalog.Chat, limit, "correction", logger)
	if len(correct) == 0 {
		return nil, fmt.Errorf("correction: %w", entities.ErrProviderUnavailable)
	}

	classify := resolve(p.classify, catalog.Chat, 1, "classification", logger)
	if len(classify) == 0 {
		classify = correct[:1]
	}
	converse := resolve(p.converse, catalog.Chat, limit, "conversation", logger)
	if len(converse) == 0 {
		converse = correct
	}

	set := &Set{
		Mode:        mode,
		Transcriber: NewSpeechChain(speech, language, logger),
		Classifier:  NewModelClassifier(classify[0]),
		Corrector:   NewCorrectorChain(correct, logger),
		Converser:   NewConverserChain(converse, logger),
	}

	if speak := resolve(p.speak, catalog.TextToSpeech, limit, "text-to-speech", logger); len(speak) > 0 {
		set.Synthesizer = NewSynthesisChain(speak, logger)
	} else {
		logger.Warn("No text-to-speech provider configured, audio replies disabled")
	}

	logger.Info("Provider chains resolved",
		zap.String("mode", string(mode)),
		zap.Strings("speechToText", set.Transcriber.Providers()),
		zap.String("classification", classify[0].Name()),
		zap.Strings("correction", set.Corrector.Providers()),
		zap.Strings("conversation", set.Converser.Providers()))

	return set, nil
}

func resolve[P any](keys []string, available map[string]P, limit int, capability string, logger *zap.Logger) []P {
	var out []P
	for _, key := range keys {
		if len(out) == limit {
			break
		}
		member, ok := available[key]
		if !ok {
			logger.Warn("Provider not configured, skipping",
				zap.String("capability", capability),
				zap.String("provider", key))
			continue
		}
		out = append(out, member)
	}
	return out
}
