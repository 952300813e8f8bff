package repositories

import "context"

// TextToSpeech abstracts speech synthesis services. Implementations return mp3 audio.
type TextToSpeech interface {
	Name() string
	ConvertTextToSpeech(ctx context.Context, text string) ([]byte, error)
}
