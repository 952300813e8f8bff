package repositories

import (
	"context"

	"github.com/falabot/server/domain/entities"
)

// Transcriber turns an mp3 payload into text, trying providers in order
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// Classifier labels a transcription with a content type
type Classifier interface {
	Classify(ctx context.Context, text string) (entities.ContentType, error)
}

// TextCorrector returns either the unchanged-confirmation sentinel or a corrected payload
type TextCorrector interface {
	Correct(ctx context.Context, text string) (string, error)
}

// Converser generates a contextual reply for the given content type and recent history
type Converser interface {
	Converse(ctx context.Context, contentType entities.ContentType, history []entities.ConversationTurn, text string) (string, error)
}

// Synthesizer speaks text back as mp3 audio
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}
