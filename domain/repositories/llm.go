package repositories

import "context"

// ChatModel abstracts any chat completion provider
type ChatModel interface {
	// Name identifies the provider in logs and chain errors
	Name() string
	// Complete returns the model's reply to the given messages
	Complete(ctx context.Context, messages []ChatMessage, opts CompletionOptions) (string, error)
}

// CompletionOptions tunes a single completion call
type CompletionOptions struct {
	Temperature float64
	MaxTokens   int
}

// ChatMessage represents a single message in a conversation
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Role defines the type of message sender
type Role string

const (
	UserRole      Role = "user"
	AssistantRole Role = "assistant"
	SystemRole    Role = "system"
)
