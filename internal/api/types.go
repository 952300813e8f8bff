package api

import (
	"time"

	"github.com/falabot/server/internal/pipeline"
	"github.com/falabot/server/internal/stats"
)

// BridgeAuthRequest represents the request payload for bridge authentication
type BridgeAuthRequest struct {
	BridgeID string `json:"bridge_id"`
	Secret   string `json:"secret"`
}

// BridgeAuthResponse represents the response payload for bridge authentication
type BridgeAuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	BridgeID  string    `json:"bridge_id"`
}

// StatsResponse is the operational snapshot served to the dashboard
type StatsResponse struct {
	stats.Snapshot
	Bridges             []string `json:"bridges"`
	ActiveConversations int      `json:"active_conversations"`
	MessagesInFlight    int      `json:"messages_in_flight"`
}

// RunsResponse lists the most recent pipeline runs, newest first
type RunsResponse struct {
	Stages []pipeline.StageID `json:"stages"`
	Runs   []pipeline.Run     `json:"runs"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
