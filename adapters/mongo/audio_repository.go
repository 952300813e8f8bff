package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/falabot/server/domain/entities"
	"github.com/falabot/server/domain/repositories"
)

type AudioRecordRepository struct {
	collection *mongo.Collection
}

// NewAudioRecordRepository creates a new MongoDB audio message repository
func NewAudioRecordRepository(db *mongo.Database) repositories.AudioRecordRepository {
	return &AudioRecordRepository{
		collection: db.Collection(audioMessagesCollection),
	}
}

// Insert implements repositories.AudioRecordRepository
func (r *AudioRecordRepository) Insert(ctx context.Context, record *entities.AudioRecord) error {
	if record == nil {
		return errors.New("audio record cannot be nil")
	}
	if record.ID == "" {
		return errors.New("audio record ID cannot be empty")
	}
	if err := record.Validate(); err != nil {
		return err
	}

	now := time.Now()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = now
	}

	if _, err := r.collection.InsertOne(ctx, record); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("audio record %s: %w", record.ID, entities.ErrDuplicate)
		}
		return fmt.Errorf("failed to insert audio record: %w", err)
	}
	return nil
}

// GetByID implements repositories.AudioRecordRepository
func (r *AudioRecordRepository) GetByID(ctx context.Context, id string) (*entities.AudioRecord, error) {
	var record entities.AudioRecord
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&record)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, entities.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get audio record %s: %w", id, err)
	}
	return &record, nil
}

// UpdateTranscription implements repositories.AudioRecordRepository
func (r *AudioRecordRepository) UpdateTranscription(ctx context.Context, id, transcription, correctedText string) error {
	update := bson.M{
		"$set": bson.M{
			"transcription":  transcription,
			"corrected_text": correctedText,
			"status":         entities.AudioStatusCompleted,
			"updated_at":     time.Now(),
		},
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to update audio transcription: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("audio record %s: %w", id, entities.ErrNotFound)
	}
	return nil
}
