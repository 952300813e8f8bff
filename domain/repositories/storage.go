package repositories

import (
	"context"
	"time"

	"github.com/falabot/server/domain/entities"
)

// UserRepository defines data access methods for users
type UserRepository interface {
	// Upsert creates the user if absent. A concurrent creation race surfaces as entities.ErrDuplicate.
	Upsert(ctx context.Context, user *entities.User) (*entities.User, error)
	GetByID(ctx context.Context, id string) (*entities.User, error)
	TouchLastInteraction(ctx context.Context, id string, at time.Time) error
}

// AudioRecordRepository defines data access methods for audio message metadata
type AudioRecordRepository interface {
	Insert(ctx context.Context, record *entities.AudioRecord) error
	GetByID(ctx context.Context, id string) (*entities.AudioRecord, error)
	UpdateTranscription(ctx context.Context, id, transcription, correctedText string) error
}

// ObjectStore uploads binary payloads. When overwrite is false an existing key is an error.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string, overwrite bool) (string, error)
}
