package entities

import (
	"errors"
	"time"
)

// User represents a chat participant, keyed by the transport sender id
type User struct {
	ID                string    `json:"id" bson:"_id"`
	DisplayName       string    `json:"display_name" bson:"display_name"`
	CreatedAt         time.Time `json:"created_at" bson:"created_at"`
	LastInteractionAt time.Time `json:"last_interaction_at" bson:"last_interaction_at"`
}

// AudioStatus is the lifecycle state of a stored audio message
type AudioStatus string

const (
	AudioStatusPending   AudioStatus = "pending"
	AudioStatusCompleted AudioStatus = "completed"
	AudioStatusError     AudioStatus = "error"
)

// AudioRecord is the metadata row kept for every inbound voice message.
// StorageRef is nil when the payload could not be uploaded.
type AudioRecord struct {
	ID              string      `json:"id" bson:"_id"`
	UserID          string      `json:"user_id" bson:"user_id"`
	DurationSeconds int         `json:"duration_seconds" bson:"duration_seconds"`
	SizeBytes       int         `json:"size_bytes" bson:"size_bytes"`
	MimeType        string      `json:"mime_type" bson:"mime_type"`
	StorageRef      *string     `json:"storage_ref" bson:"storage_ref"`
	Status          AudioStatus `json:"status" bson:"status"`
	Transcription   string      `json:"transcription,omitempty" bson:"transcription,omitempty"`
	CorrectedText   string      `json:"corrected_text,omitempty" bson:"corrected_text,omitempty"`
	ErrorMessage    string      `json:"error_message,omitempty" bson:"error_message,omitempty"`
	CreatedAt       time.Time   `json:"created_at" bson:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at" bson:"updated_at"`
}

// Degraded reports whether the record stands in for a failed persistence attempt
func (r *AudioRecord) Degraded() bool {
	return r.Status == AudioStatusError
}

// Domain validation methods
func (u *User) Validate() error {
	if u.ID == "" {
		return errors.New("user id is required")
	}
	return nil
}

func (r *AudioRecord) Validate() error {
	if r.UserID == "" {
		return errors.New("user id is required")
	}
	if r.DurationSeconds < 0 {
		return errors.New("duration must not be negative")
	}
	switch r.Status {
	case AudioStatusPending, AudioStatusCompleted, AudioStatusError:
	default:
		return errors.New("invalid audio status")
	}
	return nil
}
