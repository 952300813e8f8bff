package websocket

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/falabot/server/domain/entities"
)

// MessageType defines the type of a bridge frame
type MessageType string

// Supported frame types
const (
	MessageTypeMessage   MessageType = "message"
	MessageTypePing      MessageType = "ping"
	MessageTypePong      MessageType = "pong"
	MessageTypeError     MessageType = "error"
	MessageTypeSendText  MessageType = "send_text"
	MessageTypeSendAudio MessageType = "send_audio"
)

// Error codes reported back to the bridge
const (
	ErrorCodeInvalidMessage = "INVALID_MESSAGE"
	ErrorCodeInvalidAudio   = "INVALID_AUDIO"
)

// BaseMessage defines the common structure for all bridge frames
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp string      `json:"timestamp"`
}

// InboundMessage is a chat message relayed by the bridge
type InboundMessage struct {
	BaseMessage
	MessageID  string `json:"message_id"`
	SenderID   string `json:"sender_id"`
	SenderName string `json:"sender_name,omitempty"`
	Kind       string `json:"kind"`
	Text       string `json:"text,omitempty"`
	AudioData  string `json:"audio_data,omitempty"` // base64 encoded
	MimeType   string `json:"mime_type,omitempty"`
}

// Event converts the frame into a dispatcher event
func (m *InboundMessage) Event() (entities.InboundEvent, error) {
	event := entities.InboundEvent{
		MessageID:  m.MessageID,
		SenderID:   m.SenderID,
		SenderName: m.SenderName,
		Kind:       entities.EventKind(m.Kind),
		Text:       m.Text,
		MimeType:   m.MimeType,
		ReceivedAt: time.Now(),
	}
	if ts, err := time.Parse(time.RFC3339, m.Timestamp); err == nil {
		event.ReceivedAt = ts
	}

	if m.AudioData != "" {
		payload, err := base64.StdEncoding.DecodeString(m.AudioData)
		if err != nil {
			return entities.InboundEvent{}, fmt.Errorf("decode audio_data: %w", err)
		}
		event.Payload = payload
	}
	return event, nil
}

// SendTextMessage asks the bridge to deliver a text message
type SendTextMessage struct {
	BaseMessage
	To   string `json:"to"`
	Text string `json:"text"`
}

// SendAudioMessage asks the bridge to deliver a voice note
type SendAudioMessage struct {
	BaseMessage
	To        string `json:"to"`
	AudioData string `json:"audio_data"` // base64 encoded
	Caption   string `json:"caption,omitempty"`
	MimeType  string `json:"mime_type"`
}

// PingMessage represents a ping message for connection health check
type PingMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// PongMessage represents a pong response
type PongMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// ErrorMessage represents an error response
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"error_code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

const schemaBase = "https://falabot.local/schemas/"

const inboundMessageSchema = `{
	"type": "object",
	"required": ["type", "message_id", "sender_id", "kind"],
	"properties": {
		"type": {"const": "message"},
		"message_id": {"type": "string", "minLength": 1},
		"sender_id": {"type": "string", "minLength": 1},
		"sender_name": {"type": "string"},
		"kind": {"enum": ["audio", "text", "other", "system"]},
		"text": {"type": "string"},
		"audio_data": {"type": "string"},
		"mime_type": {"type": "string"},
		"timestamp": {"type": "string"}
	},
	"if": {"properties": {"kind": {"const": "audio"}}},
	"then": {"required": ["audio_data"], "properties": {"audio_data": {"minLength": 1}}}
}`

const pingSchema = `{
	"type": "object",
	"required": ["type"],
	"properties": {
		"type": {"const": "ping"},
		"data": {"type": "string"},
		"timestamp": {"type": "string"}
	}
}`

// MessageValidator checks inbound frames against their JSON schemas
type MessageValidator struct {
	schemas map[MessageType]*jsonschema.Schema
}

// NewMessageValidator compiles the frame schemas
func NewMessageValidator() *MessageValidator {
	return &MessageValidator{
		schemas: map[MessageType]*jsonschema.Schema{
			MessageTypeMessage: mustCompile(schemaBase+"inbound_message.json", inboundMessageSchema),
			MessageTypePing:    mustCompile(schemaBase+"ping.json", pingSchema),
		},
	}
}

func mustCompile(name, schema string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, strings.NewReader(schema)); err != nil {
		panic(fmt.Sprintf("add schema resource %s: %v", name, err))
	}
	compiled, err := compiler.Compile(name)
	if err != nil {
		panic(fmt.Sprintf("compile schema %s: %v", name, err))
	}
	return compiled
}

// ValidateMessage validates a raw frame and returns the typed message
func (v *MessageValidator) ValidateMessage(messageBytes []byte) (interface{}, error) {
	var base BaseMessage
	if err := json.Unmarshal(messageBytes, &base); err != nil {
		return nil, fmt.Errorf("invalid JSON format: %w", err)
	}

	schema, ok := v.schemas[base.Type]
	if !ok {
		return nil, fmt.Errorf("unsupported message type: %q", base.Type)
	}

	var payload interface{}
	if err := json.Unmarshal(messageBytes, &payload); err != nil {
		return nil, fmt.Errorf("invalid JSON format: %w", err)
	}
	if err := schema.Validate(payload); err != nil {
		return nil, fmt.Errorf("invalid %s message: %w", base.Type, err)
	}

	switch base.Type {
	case MessageTypeMessage:
		var msg InboundMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid inbound message: %w", err)
		}
		return &msg, nil
	default:
		var msg PingMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid ping message: %w", err)
		}
		return &msg, nil
	}
}

func newBase(t MessageType) BaseMessage {
	return BaseMessage{Type: t, Timestamp: time.Now().Format(time.RFC3339)}
}

// CreateErrorMessage creates a standardized error message
func CreateErrorMessage(code, message, details string) *ErrorMessage {
	return &ErrorMessage{
		BaseMessage: newBase(MessageTypeError),
		Code:        code,
		Message:     message,
		Details:     details,
	}
}

// CreatePongMessage creates a pong response message
func CreatePongMessage(data string) *PongMessage {
	return &PongMessage{
		BaseMessage: newBase(MessageTypePong),
		Data:        data,
	}
}

func CreateSendTextMessage(to, text string) *SendTextMessage {
	return &SendTextMessage{
		BaseMessage: newBase(MessageTypeSendText),
		To:          to,
		Text:        text,
	}
}

func CreateSendAudioMessage(to string, audio []byte, caption string) *SendAudioMessage {
	return &SendAudioMessage{
		BaseMessage: newBase(MessageTypeSendAudio),
		To:          to,
		AudioData:   base64.StdEncoding.EncodeToString(audio),
		Caption:     caption,
		MimeType:    "audio/mpeg",
	}
}
