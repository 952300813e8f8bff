package repositories

import "context"

// MessageSender delivers outbound chat messages
type MessageSender interface {
	SendText(ctx context.Context, to, text string) error
	SendAudio(ctx context.Context, to string, audio []byte, caption string) error
}

// AudioConverter transcodes inbound voice notes and probes their length
type AudioConverter interface {
	// Convert returns mono 16kHz mp3 bytes
	Convert(ctx context.Context, audio []byte) ([]byte, error)
	// ProbeDuration returns the duration in seconds
	ProbeDuration(ctx context.Context, audio []byte) (float64, error)
}

// Counter names understood by the operational bridge
type Counter string

const (
	CounterMessagesReceived  Counter = "messagesReceived"
	CounterMessagesProcessed Counter = "messagesProcessed"
	CounterAudiosCorrected   Counter = "audiosCorrected"
	CounterErrors            Counter = "errors"
)

// OperationsSink receives counters and operational log lines
type OperationsSink interface {
	Increment(counter Counter)
	Log(level, message string)
}
