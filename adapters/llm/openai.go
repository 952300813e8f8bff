package llm

import (
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
	defaultOpenAIModel    = "gpt-3.5-turbo"
	defaultTimeoutSeconds = 60
	// DeepSeekBaseURL is the OpenAI-compatible endpoint of DeepSeek
	DeepSeekBaseURL = "https://api.deepseek.com/v1"
)

// OpenAIConfig configures any OpenAI-compatible chat endpoint
type OpenAIConfig struct {
	Name           string // provider label, e.g. "openai" or "deepseek"
	APIKey         string // Required
	BaseURL        string // Optional, empty means api.openai.com
	Model          string // Optional
	TimeoutSeconds int    // Optional
}

// OpenAIChat implements ChatModel on top of the chat completions API
type OpenAIChat struct {
	name   string
	client openai.Client
	model  string
	logger *zap.Logger
}

var _ repositories.ChatModel = (*OpenAIChat)(nil)

// ValidateOpenAIConfig validates the OpenAIConfig
func ValidateOpenAIConfig(config OpenAIConfig) error {
	if config.APIKey == "" {
		return fmt.Errorf("%s API key is required", providerName(config.Name))
	}
	if config.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout must be positive, got %d", config.TimeoutSeconds)
	}
	return nil
}

// NewOpenAIChat creates a chat model for OpenAI or an OpenAI-compatible vendor
func NewOpenAIChat(config OpenAIConfig, logger *zap.Logger) (*OpenAIChat, error) {
	if err := ValidateOpenAIConfig(config); err != nil {
		return nil, err
	}

	model := config.Model
	if model == "" {
		model = defaultOpenAIModel
		logger.Info("Using default model", zap.String("provider", providerName(config.Name)), zap.String("model", model))
	}

	timeoutSeconds := config.TimeoutSeconds
	if timeoutSeconds == 0 {
		timeoutSeconds = defaultTimeoutSeconds
	}

	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithHTTPClient(&http.Client{Timeout: time.Duration(timeoutSeconds) * time.Second}),
		option.WithMaxRetries(0),
	}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	return &OpenAIChat{
		name:   providerName(config.Name),
		client: openai.NewClient(opts...),
		model:  model,
		logger: logger,
	}, nil
}

func (c *OpenAIChat) Name() string {
	return c.name
}

// Complete sends the messages to the chat completions endpoint
func (c *OpenAIChat) Complete(ctx context.Context, messages []repositories.ChatMessage, opts repositories.CompletionOptions) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: toOpenAIMessages(messages),
	}
	if opts.Temperature > 0 {
		params.Temperature = openai.Float(opts.Temperature)
	}
	if opts.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(opts.MaxTokens))
	}

	start := time.Now()
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("%s chat completion failed: %w", c.name, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s returned no choices", c.name)
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("%s returned an empty completion", c.name)
	}

	c.logger.Debug("Chat completion finished",
		zap.String("provider", c.name),
		zap.String("model", c.model),
		zap.Duration("elapsed", time.Since(start)))

	return text, nil
}

func toOpenAIMessages(messages []repositories.ChatMessage) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case repositories.SystemRole:
			out = append(out, openai.SystemMessage(m.Content))
		case repositories.AssistantRole:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

func providerName(name string) string {
	if name == "" {
		return "openai"
	}
	return name
}
