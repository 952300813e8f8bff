package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/falabot/server/domain/repositories"
)

const (
	defaultGeminiModel       = "gemini-2.0-flash"
	defaultGeminiMaxAttempts = 1
)

// GeminiConfig holds configuration for the Gemini chat adapter
type GeminiConfig struct {
	APIKey         string // Required
	BaseURL        string // Optional
	Model          string // Optional
	TimeoutSeconds int    // Optional
	MaxAttempts    int    // Optional, attempts per Complete call
}

// GeminiChat implements ChatModel using Google's Gemini API
type GeminiChat struct {
	client         *genai.Client
	logger         *zap.Logger
	model          string
	timeoutSeconds int
	maxAttempts    int
}

var _ repositories.ChatModel = (*GeminiChat)(nil)

// ValidateGeminiConfig validates the GeminiConfig
func ValidateGeminiConfig(config GeminiConfig) error {
	if config.APIKey == "" {
		return fmt.Errorf("gemini API key is required")
	}
	if config.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout must be positive, got %d", config.TimeoutSeconds)
	}
	if config.MaxAttempts < 0 {
		return fmt.Errorf("max attempts must be positive, got %d", config.MaxAttempts)
	}
	return nil
}

// NewGeminiChat creates a new Gemini chat model
func NewGeminiChat(ctx context.Context, config GeminiConfig, logger *zap.Logger) (*GeminiChat, error) {
	if err := ValidateGeminiConfig(config); err != nil {
		return nil, err
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      config.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: config.BaseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := config.Model
	if model == "" {
		model = defaultGeminiModel
		logger.Info("Using default model", zap.String("provider", "gemini"), zap.String("model", model))
	}

	timeoutSeconds := config.TimeoutSeconds
	if timeoutSeconds == 0 {
		timeoutSeconds = defaultTimeoutSeconds
	}

	maxAttempts := config.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = defaultGeminiMaxAttempts
	}

	return &GeminiChat{
		client:         client,
		logger:         logger,
		model:          model,
		timeoutSeconds: timeoutSeconds,
		maxAttempts:    maxAttempts,
	}, nil
}

func (g *GeminiChat) Name() string {
	return "gemini"
}

// Complete generates a reply. System messages become the system instruction.
func (g *GeminiChat) Complete(ctx context.Context, messages []repositories.ChatMessage, opts repositories.CompletionOptions) (string, error) {
	var systemParts []string
	var contents []*genai.Content
	for _, m := range messages {
		switch m.Role {
		case repositories.SystemRole:
			systemParts = append(systemParts, m.Content)
		case repositories.AssistantRole:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}

	config := &genai.GenerateContentConfig{}
	if len(systemParts) > 0 {
		config.SystemInstruction = genai.NewContentFromText(strings.Join(systemParts, "\n\n"), genai.RoleUser)
	}
	if opts.Temperature > 0 {
		config.Temperature = genai.Ptr(float32(opts.Temperature))
	}
	if opts.MaxTokens > 0 {
		config.MaxOutputTokens = int32(opts.MaxTokens)
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(g.timeoutSeconds)*time.Second)
	defer cancel()

	var response *genai.GenerateContentResponse
	var err error
	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		response, err = g.client.Models.GenerateContent(ctx, g.model, contents, config)
		if err == nil {
			break
		}

		g.logger.Warn("Failed to generate content, retrying",
			zap.Int("attempt", attempt+1),
			zap.Error(err))

		if attempt < g.maxAttempts-1 {
			timer := time.NewTimer(time.Duration(attempt+1) * time.Second)
			select {
			case <-ctx.Done():
				timer.Stop()
				return "", fmt.Errorf("gemini generate content failed: %w", errors.Join(err, ctx.Err()))
			case <-timer.C:
			}
		}
	}
	if err != nil {
		return "", fmt.Errorf("gemini generate content failed: %w", err)
	}

	text := strings.TrimSpace(extractText(response))
	if text == "" {
		return "", fmt.Errorf("gemini returned no content")
	}
	return text, nil
}

func extractText(response *genai.GenerateContentResponse) string {
	if response == nil || len(response.Candidates) == 0 || response.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range response.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			b.WriteString(part.Text)
		}
	}
	return b.String()
}
