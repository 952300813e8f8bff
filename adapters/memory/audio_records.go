package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/falabot/server/domain/entities"
	"github.com/falabot/server/domain/repositories"
)

// AudioRecordRepository is an in-memory implementation of repositories.AudioRecordRepository
type AudioRecordRepository struct {
	mu      sync.RWMutex
	records map[string]*entities.AudioRecord
}

var _ repositories.AudioRecordRepository = (*AudioRecordRepository)(nil)

func NewAudioRecordRepository() *AudioRecordRepository {
	return &AudioRecordRepository{records: make(map[string]*entities.AudioRecord)}
}

func (m *AudioRecordRepository) Insert(ctx context.Context, record *entities.AudioRecord) error {
	if record == nil {
		return errors.New("audio record cannot be nil")
	}
	if err := record.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if _, exists := m.records[record.ID]; exists {
		return entities.ErrDuplicate
	}

	now := time.Now()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	recordCopy := *record
	m.records[record.ID] = &recordCopy
	return nil
}

func (m *AudioRecordRepository) GetByID(ctx context.Context, id string) (*entities.AudioRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	record, ok := m.records[id]
	if !ok {
		return nil, entities.ErrNotFound
	}
	recordCopy := *record
	return &recordCopy, nil
}

// UpdateTranscription stores the pipeline output and marks the record completed
func (m *AudioRecordRepository) UpdateTranscription(ctx context.Context, id, transcription, correctedText string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.records[id]
	if !ok {
		return entities.ErrNotFound
	}
	record.Transcription = transcription
	record.CorrectedText = correctedText
	record.Status = entities.AudioStatusCompleted
	record.UpdatedAt = time.Now()
	return nil
}
