package tts

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"go.uber.org/zap"

	"github.com/falabot/server/domain/repositories"
)

// OpenAIConfig configures the OpenAI speech adapter
type OpenAIConfig struct {
	APIKey  string // Required
	BaseURL string // Optional
	Model   string // Optional, default tts-1
	Voice   string // Optional, default nova
}

// OpenAITTS implements TextToSpeech with the OpenAI audio speech API
type OpenAITTS struct {
	client openai.Client
	model  string
	voice  string
	logger *zap.Logger
}

var _ repositories.TextToSpeech = (*OpenAITTS)(nil)

func NewOpenAITTS(config OpenAIConfig, logger *zap.Logger) (*OpenAITTS, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}

	model := config.Model
	if model == "" {
		model = "tts-1"
		logger.Info("Using default TTS model", zap.String("model", model))
	}
	voice := config.Voice
	if voice == "" {
		voice = "nova"
		logger.Info("Using default TTS voice", zap.String("voice", voice))
	}

	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithHTTPClient(&http.Client{Timeout: 60 * time.Second}),
		option.WithMaxRetries(0),
	}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	return &OpenAITTS{
		client: openai.NewClient(opts...),
		model:  model,
		voice:  voice,
		logger: logger,
	}, nil
}

func (o *OpenAITTS) Name() string {
	return "openai-tts"
}

func (o *OpenAITTS) ConvertTextToSpeech(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	resp, err := o.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Input:          text,
		Model:          openai.SpeechModel(o.model),
		Voice:          openai.AudioSpeechNewParamsVoice(o.voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatMP3,
		Speed:          openai.Float(1.0),
	})
	if err != nil {
		return nil, fmt.Errorf("openai speech failed: %w", err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read speech audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("openai speech returned empty audio")
	}

	o.logger.Debug("OpenAI synthesis completed", zap.String("voice", o.voice), zap.Int("bytes", len(audio)))
	return audio, nil
}
