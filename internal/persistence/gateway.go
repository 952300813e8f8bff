package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/falabot/server/domain/entities"
	"github.com/falabot/server/domain/repositories"
)

const (
	// AudioMimeType is the content type of stored voice notes
	AudioMimeType = "audio/ogg"

	compressionThreshold = 1 << 20
	uploadAttempts       = 3
	uploadBackoff        = time.Second
	insertAttempts       = 2
	insertBackoff        = 500 * time.Millisecond
	defaultDuration      = 10
)

// Compressor shrinks large payloads before upload
type Compressor func(audio []byte) ([]byte, error)

// Gateway stores users and audio metadata. Storage outages degrade instead of failing the caller.
type Gateway struct {
	users   repositories.UserRepository
	records repositories.AudioRecordRepository
	objects repositories.ObjectStore
	logger  *zap.Logger

	compress Compressor
	sleep    func(context.Context, time.Duration) error
	now      func() time.Time
}

// Option customises a Gateway
type Option func(*Gateway)

// WithCompressor replaces the default pass-through compressor
func WithCompressor(c Compressor) Option {
	return func(g *Gateway) { g.compress = c }
}

// WithClock overrides time and backoff sleeping, used by tests
func WithClock(now func() time.Time, sleep func(context.Context, time.Duration) error) Option {
	return func(g *Gateway) {
		g.now = now
		g.sleep = sleep
	}
}

func NewGateway(users repositories.UserRepository, records repositories.AudioRecordRepository, objects repositories.ObjectStore, logger *zap.Logger, opts ...Option) *Gateway {
	g := &Gateway{
		users:    users,
		records:  records,
		objects:  objects,
		logger:   logger,
		compress: func(audio []byte) ([]byte, error) { return audio, nil },
		sleep:    sleepContext,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// GetOrCreateUser returns the stored user, creating it on first contact.
// A concurrent creation race resolves to the row that won.
func (g *Gateway) GetOrCreateUser(ctx context.Context, userID, displayName string) (*entities.User, error) {
	now := g.now()
	candidate := &entities.User{
		ID:                userID,
		DisplayName:       displayName,
		CreatedAt:         now,
		LastInteractionAt: now,
	}
	if err := candidate.Validate(); err != nil {
		return nil, err
	}

	user, err := g.users.Upsert(ctx, candidate)
	if errors.Is(err, entities.ErrDuplicate) {
		g.logger.Debug("User created concurrently, re-reading", zap.String("userID", userID))
		user, err = g.users.GetByID(ctx, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get or create user %s: %w", userID, err)
	}

	if err := g.users.TouchLastInteraction(ctx, userID, now); err != nil {
		g.logger.Warn("Failed to update last interaction", zap.String("userID", userID), zap.Error(err))
	} else {
		user.LastInteractionAt = now
	}
	return user, nil
}

// StoreAudio uploads the payload and inserts its metadata row. It never fails:
// when storage is unavailable the returned record has status error and a nil StorageRef.
func (g *Gateway) StoreAudio(ctx context.Context, userID string, audio []byte, durationSeconds int) *entities.AudioRecord {
	if durationSeconds <= 0 {
		durationSeconds = defaultDuration
	}

	payload := audio
	if len(audio) > compressionThreshold {
		g.logger.Info("Audio file is large, attempting compression", zap.Int("bytes", len(audio)))
		compressed, err := g.compress(audio)
		if err != nil {
			g.logger.Warn("Audio compression failed, using original", zap.Error(err))
		} else {
			payload = compressed
		}
	}

	ref, err := g.upload(ctx, userID, payload)
	if err != nil {
		return g.degradedRecord(userID, payload, durationSeconds, err)
	}

	now := g.now()
	record := &entities.AudioRecord{
		ID:              uuid.NewString(),
		UserID:          userID,
		DurationSeconds: durationSeconds,
		SizeBytes:       len(payload),
		MimeType:        AudioMimeType,
		StorageRef:      &ref,
		Status:          entities.AudioStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	for attempt := 1; attempt <= insertAttempts; attempt++ {
		err = g.records.Insert(ctx, record)
		if err == nil {
			g.logger.Info("Audio message record created",
				zap.String("recordID", record.ID),
				zap.String("storageRef", ref))
			return record
		}
		g.logger.Warn("Audio record insert failed",
			zap.Int("attempt", attempt),
			zap.Int("maxAttempts", insertAttempts),
			zap.Error(err))
		if attempt < insertAttempts {
			if serr := g.sleep(ctx, insertBackoff); serr != nil {
				err = serr
				break
			}
		}
	}

	return g.degradedRecord(userID, payload, durationSeconds, err)
}

func (g *Gateway) upload(ctx context.Context, userID string, payload []byte) (string, error) {
	base := fmt.Sprintf("%s/%d_%s", storageFolder(userID), g.now().UnixMilli(), uuid.NewString()[:8])

	var err error
	for attempt := 1; attempt <= uploadAttempts; attempt++ {
		key, overwrite := base+".ogg", false
		if attempt == uploadAttempts {
			key, overwrite = base+"_retry.ogg", true
		}

		var ref string
		ref, err = g.objects.Put(ctx, key, payload, AudioMimeType, overwrite)
		if err == nil {
			return ref, nil
		}
		g.logger.Warn("Audio upload failed",
			zap.String("key", key),
			zap.Int("attempt", attempt),
			zap.Int("maxAttempts", uploadAttempts),
			zap.Error(err))

		if attempt < uploadAttempts {
			if serr := g.sleep(ctx, uploadBackoff*time.Duration(attempt)); serr != nil {
				return "", serr
			}
		}
	}
	return "", fmt.Errorf("all %d upload attempts failed: %w", uploadAttempts, err)
}

func (g *Gateway) degradedRecord(userID string, payload []byte, durationSeconds int, cause error) *entities.AudioRecord {
	now := g.now()
	g.logger.Warn("Audio persistence degraded",
		zap.String("userID", userID),
		zap.Int("bytes", len(payload)),
		zap.Error(cause))

	return &entities.AudioRecord{
		ID:              fmt.Sprintf("fallback_%d", now.UnixMilli()),
		UserID:          userID,
		DurationSeconds: durationSeconds,
		SizeBytes:       len(payload),
		MimeType:        AudioMimeType,
		Status:          entities.AudioStatusError,
		ErrorMessage:    cause.Error(),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// UpdateTranscription marks the record completed. Failures are logged only,
// and degraded records are never written back.
func (g *Gateway) UpdateTranscription(ctx context.Context, record *entities.AudioRecord, transcription, correctedText string) {
	if record == nil || record.Degraded() {
		return
	}
	if err := g.records.UpdateTranscription(ctx, record.ID, transcription, correctedText); err != nil {
		g.logger.Warn("Failed to update audio transcription",
			zap.String("recordID", record.ID),
			zap.Error(err))
		return
	}
	record.Transcription = transcription
	record.CorrectedText = correctedText
	record.Status = entities.AudioStatusCompleted
}

func storageFolder(userID string) string {
	return strings.ReplaceAll(userID, "@", "_")
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
