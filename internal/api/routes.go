package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/falabot/server/internal/auth"
	"github.com/falabot/server/internal/inflight"
	"github.com/falabot/server/internal/pipeline"
	"github.com/falabot/server/internal/stats"
	"github.com/falabot/server/internal/websocket"
)

// RunHistory exposes recently finished pipeline runs
type RunHistory interface {
	Get(id pipeline.RunID) (pipeline.Run, bool)
	Recent() []pipeline.Run
	Stages() []pipeline.StageID
}

// ConversationCounter reports how many senders have conversation history
type ConversationCounter interface {
	Senders() int
}

// Deps groups what the HTTP routes serve
type Deps struct {
	Hub           *websocket.Hub
	Auth          *auth.Authenticator
	Stats         *stats.Sink
	Runs          RunHistory
	Conversations ConversationCounter
	Inflight      inflight.Set
	Gatherer      prometheus.Gatherer
}

// InitRoutes initializes all API routes
func InitRoutes(e *echo.Echo, deps Deps, logger *zap.Logger) {
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":  "ok",
			"service": "falabot",
			"bridges": len(deps.Hub.ConnectedBridges()),
		})
	})

	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))

	v1 := e.Group("/api/v1")

	v1.GET("/stats", func(c echo.Context) error {
		resp := StatsResponse{
			Snapshot: deps.Stats.Snapshot(),
			Bridges:  deps.Hub.ConnectedBridges(),
		}
		if deps.Conversations != nil {
			resp.ActiveConversations = deps.Conversations.Senders()
		}
		if deps.Inflight != nil {
			resp.MessagesInFlight = deps.Inflight.Len()
		}
		return c.JSON(http.StatusOK, resp)
	})

	v1.GET("/runs", func(c echo.Context) error {
		return c.JSON(http.StatusOK, RunsResponse{
			Stages: deps.Runs.Stages(),
			Runs:   deps.Runs.Recent(),
		})
	})

	v1.GET("/runs/:id", func(c echo.Context) error {
		run, ok := deps.Runs.Get(pipeline.RunID(c.Param("id")))
		if !ok {
			return c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "not_found",
				Message: "Run not found or no longer retained",
			})
		}
		return c.JSON(http.StatusOK, run)
	})

	v1.POST("/bridge/auth", func(c echo.Context) error {
		return bridgeAuth(c, deps.Auth, logger)
	})

	// WebSocket endpoint with JWT validation
	e.GET("/ws", func(c echo.Context) error {
		return websocketWithAuth(deps.Hub, deps.Auth, c, logger)
	})
}

func bridgeAuth(c echo.Context, authenticator *auth.Authenticator, logger *zap.Logger) error {
	var req BridgeAuthRequest

	if err := c.Bind(&req); err != nil {
		logger.Error("Failed to bind bridge auth request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}

	if req.BridgeID == "" || req.Secret == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_fields",
			Message: "Bridge ID and secret are required",
		})
	}

	token, expiresAt, err := authenticator.Login(req.BridgeID, req.Secret)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		logger.Warn("Bridge authentication failed", zap.String("bridge_id", req.BridgeID))
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "authentication_failed",
			Message: "Invalid bridge credentials",
		})
	}
	if err != nil {
		logger.Error("Failed to generate bridge token",
			zap.String("bridge_id", req.BridgeID),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "token_generation_failed",
			Message: "Failed to generate authentication token",
		})
	}

	logger.Info("Bridge authenticated successfully", zap.String("bridge_id", req.BridgeID))

	return c.JSON(http.StatusOK, BridgeAuthResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		BridgeID:  req.BridgeID,
	})
}

// websocketWithAuth handles WebSocket connections with JWT authentication
func websocketWithAuth(hub *websocket.Hub, authenticator *auth.Authenticator, c echo.Context, logger *zap.Logger) error {
	token, found := strings.CutPrefix(c.Request().Header.Get("Authorization"), "Bearer ")
	if !found || token == "" {
		logger.Warn("WebSocket connection rejected: missing token")
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "missing_token",
			Message: "JWT token is required in Authorization header",
		})
	}

	claims, err := authenticator.ValidateToken(token)
	if err != nil {
		logger.Warn("WebSocket connection rejected: invalid token", zap.Error(err))
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "invalid_token",
			Message: "Invalid or expired JWT token",
		})
	}

	if claims.Role != auth.RoleBridge {
		logger.Warn("WebSocket connection rejected: invalid role", zap.String("role", claims.Role))
		return c.JSON(http.StatusForbidden, ErrorResponse{
			Error:   "invalid_role",
			Message: "Only bridge tokens are allowed for WebSocket connections",
		})
	}

	if claims.BridgeID == "" {
		logger.Error("WebSocket connection rejected: missing bridge ID in token")
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_token_claims",
			Message: "Bridge ID not found in token",
		})
	}

	logger.Info("WebSocket connection authenticated", zap.String("bridge_id", claims.BridgeID))

	return websocket.HandleWebSocket(hub, c, claims.BridgeID, logger)
}
