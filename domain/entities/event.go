package entities

import (
	"strings"
	"time"
)

// EventKind is the payload type of an inbound chat event
type EventKind string

const (
	EventKindAudio  EventKind = "audio"
	EventKindText   EventKind = "text"
	EventKindOther  EventKind = "other"
	EventKindSystem EventKind = "system"
)

// InboundEvent is a message delivered by the chat transport. It is consumed once.
type InboundEvent struct {
	MessageID  string
	SenderID   string
	SenderName string
	Kind       EventKind
	Text       string
	Payload    []byte
	MimeType   string
	ReceivedAt time.Time
}

// FromGroup reports whether the event came from a group chat or a status broadcast
func (e InboundEvent) FromGroup() bool {
	return strings.HasSuffix(e.SenderID, "@g.us") || e.SenderID == "status@broadcast"
}
