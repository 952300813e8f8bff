package entities

import "errors"

var (
	// ErrInvalidAudio marks payloads that cannot be decoded or transcoded
	ErrInvalidAudio = errors.New("invalid audio file")
	// ErrAudioTooLong marks audio above the configured duration limit
	ErrAudioTooLong = errors.New("audio exceeds maximum duration")
	// ErrConnectivity marks failures reaching an external dependency
	ErrConnectivity = errors.New("connectivity failure")
	// ErrProviderUnavailable is returned when no provider is configured for a capability
	ErrProviderUnavailable = errors.New("no provider configured")
	ErrNotFound            = errors.New("not found")
	ErrDuplicate           = errors.New("duplicate")
	// ErrTransportUnavailable is returned when no chat bridge can deliver a message
	ErrTransportUnavailable = errors.New("chat transport unavailable")
)
