package entities

import (
	"fmt"
	"strings"
)

// ContentType is the classification of a transcription
type ContentType string

const (
	ContentTypeMusic        ContentType = "MUSIC"
	ContentTypeQuestion     ContentType = "QUESTION"
	ContentTypeConversation ContentType = "CONVERSATION"
)

// ParseContentType extracts a content type from free-form model output.
// Anything unrecognised maps to CONVERSATION.
func ParseContentType(raw string) ContentType {
	s := strings.ToUpper(strings.TrimSpace(raw))
	switch {
	case strings.Contains(s, string(ContentTypeMusic)):
		return ContentTypeMusic
	case strings.Contains(s, string(ContentTypeQuestion)):
		return ContentTypeQuestion
	default:
		return ContentTypeConversation
	}
}

// PipelineResult is the outcome of processing one audio message
type PipelineResult struct {
	Transcription    string      `json:"transcription"`
	CorrectedText    string      `json:"corrected_text"`
	HasCorrections   bool        `json:"has_corrections"`
	ContentType      ContentType `json:"content_type"`
	Reply            string      `json:"reply"`
	SynthesizedAudio []byte      `json:"-"`
}

// HasAudio reports whether a spoken correction was produced
func (r *PipelineResult) HasAudio() bool {
	return len(r.SynthesizedAudio) > 0
}

// ProviderMode selects primary and fallback providers per capability
type ProviderMode string

const (
	ProviderModePrimaryOnly   ProviderMode = "primary-only"
	ProviderModeHybrid        ProviderMode = "hybrid"
	ProviderModeCostOptimized ProviderMode = "cost-optimized"
)

// ParseProviderMode accepts the canonical names plus the legacy aliases
// "openai" and "enhanced".
func ParseProviderMode(s string) (ProviderMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "primary-only", "openai":
		return ProviderModePrimaryOnly, nil
	case "hybrid", "enhanced":
		return ProviderModeHybrid, nil
	case "cost-optimized", "optimized":
		return ProviderModeCostOptimized, nil
	default:
		return "", fmt.Errorf("unknown provider mode %q", s)
	}
}

// AllowsFallback reports whether a failed primary may be retried against a fallback
func (m ProviderMode) AllowsFallback() bool {
	return m == ProviderModeHybrid || m == ProviderModeCostOptimized
}
