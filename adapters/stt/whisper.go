package stt

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"go.uber.org/zap"

	"github.com/falabot/server/domain/repositories"
)

const (
	defaultWhisperModel    = "whisper-1"
	defaultWhisperLanguage = "pt"
)

// WhisperConfig configures the OpenAI transcription adapter
type WhisperConfig struct {
	APIKey   string // Required
	BaseURL  string // Optional
	Model    string // Optional
	Language string // Optional, ISO-639-1
}

// WhisperSpeechToText implements SpeechToText with the OpenAI audio API
type WhisperSpeechToText struct {
	client   openai.Client
	model    string
	language string
	logger   *zap.Logger
}

var _ repositories.SpeechToText = (*WhisperSpeechToText)(nil)

func NewWhisperSpeechToText(config WhisperConfig, logger *zap.Logger) (*WhisperSpeechToText, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}

	model := config.Model
	if model == "" {
		model = defaultWhisperModel
		logger.Info("Using default whisper model", zap.String("model", model))
	}
	language := config.Language
	if language == "" {
		language = defaultWhisperLanguage
	}

	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithHTTPClient(&http.Client{Timeout: 60 * time.Second}),
		option.WithMaxRetries(0),
	}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	return &WhisperSpeechToText{
		client:   openai.NewClient(opts...),
		model:    model,
		language: language,
		logger:   logger,
	}, nil
}

func (w *WhisperSpeechToText) Name() string {
	return "openai-whisper"
}

// TranscribeAudio uploads the payload as a file and returns the plain transcript
func (w *WhisperSpeechToText) TranscribeAudio(ctx context.Context, audioData []byte, config repositories.AudioConfig) (string, error) {
	if len(audioData) == 0 {
		return "", fmt.Errorf("no audio data received")
	}

	language := w.language
	if len(config.Language) == 2 {
		language = config.Language
	}

	filename, contentType := "audio.mp3", "audio/mpeg"
	if strings.HasPrefix(strings.ToUpper(config.Encoding), "OGG") {
		filename, contentType = "audio.ogg", "audio/ogg"
	}

	resp, err := w.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		File:     openai.File(bytes.NewReader(audioData), filename, contentType),
		Model:    openai.AudioModel(w.model),
		Language: openai.String(language),
	})
	if err != nil {
		return "", fmt.Errorf("whisper transcription failed: %w", err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", fmt.Errorf("no speech detected in audio")
	}

	w.logger.Debug("Whisper transcription completed", zap.Int("chars", len(text)))
	return text, nil
}
