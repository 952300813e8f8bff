package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/falabot/server/domain/entities"
	"github.com/falabot/server/domain/repositories"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum frame size allowed from peer. Voice notes arrive base64 encoded in one frame.
	maxMessageSize = 16 * 1024 * 1024

	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// bridges authenticate with a bearer token, not cookies
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// Handler consumes chat events relayed by a bridge
type Handler interface {
	Handle(ctx context.Context, event entities.InboundEvent)
}

// Hub keeps the connected chat bridges, relays their inbound messages to the
// handler and routes outbound messages back through them.
type Hub struct {
	// Connected bridges by bridge id.
	clients map[string]*Client

	// Bridge that last delivered a message from each sender.
	routes map[string]string

	register   chan *Client
	unregister chan *Client

	// Closed when Run returns.
	done chan struct{}

	// Mutex for thread-safe access to clients and routes
	mu sync.RWMutex

	handler   Handler
	validator *MessageValidator

	// Base context of dispatched handlers, cancelled by Shutdown.
	ctx      context.Context
	cancel   context.CancelFunc
	inflight sync.WaitGroup
	// Set by Shutdown; new events are dropped. Guarded by mu.
	draining bool

	logger *zap.Logger
}

var _ repositories.MessageSender = (*Hub)(nil)

// NewHub creates a new bridge hub
func NewHub(logger *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[string]*Client),
		routes:     make(map[string]string),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		validator:  NewMessageValidator(),
		ctx:        ctx,
		cancel:     cancel,
		logger:     logger,
	}
}

// SetHandler installs the consumer of inbound events. Call it before serving connections.
func (h *Hub) SetHandler(handler Handler) {
	h.mu.Lock()
	h.handler = handler
	h.mu.Unlock()
}

// Run starts the hub's main loop and returns when ctx is done
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if previous, ok := h.clients[client.bridgeID]; ok {
				previous.close()
				h.logger.Info("Replacing bridge connection", zap.String("bridgeID", client.bridgeID))
			}
			h.clients[client.bridgeID] = client
			h.mu.Unlock()
			h.logger.Info("Bridge registered", zap.String("bridgeID", client.bridgeID))

		case client := <-h.unregister:
			h.mu.Lock()
			if current, ok := h.clients[client.bridgeID]; ok && current == client {
				delete(h.clients, client.bridgeID)
				client.close()
			}
			h.mu.Unlock()
			h.logger.Info("Bridge unregistered", zap.String("bridgeID", client.bridgeID))

		case <-ctx.Done():
			h.mu.Lock()
			for id, client := range h.clients {
				delete(h.clients, id)
				client.close()
			}
			h.mu.Unlock()
			return
		}
	}
}

// Shutdown stops dispatching new events and waits for running ones to finish,
// cancelling them when ctx expires. Bridges stay connected so the running
// handlers can still reply; stop Run afterwards to close them.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.draining = true
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		h.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.cancel()
		return nil
	case <-ctx.Done():
		h.cancel()
		return fmt.Errorf("waiting for in-flight messages: %w", ctx.Err())
	}
}

// ConnectedBridges returns the ids of the connected bridges
func (h *Hub) ConnectedBridges() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SendText delivers a text message through the bridge serving the recipient
func (h *Hub) SendText(ctx context.Context, to, text string) error {
	return h.deliver(ctx, to, CreateSendTextMessage(to, text))
}

// SendAudio delivers an mp3 voice note through the bridge serving the recipient
func (h *Hub) SendAudio(ctx context.Context, to string, audio []byte, caption string) error {
	return h.deliver(ctx, to, CreateSendAudioMessage(to, audio, caption))
}

func (h *Hub) deliver(ctx context.Context, to string, frame interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("failed to marshal frame: %w", err)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	client := h.route(to)
	if client == nil {
		return entities.ErrTransportUnavailable
	}

	select {
	case client.send <- payload:
		return nil
	default:
		return fmt.Errorf("bridge %s send buffer full: %w", client.bridgeID, entities.ErrTransportUnavailable)
	}
}

// route must be called with mu held
func (h *Hub) route(to string) *Client {
	if id, ok := h.routes[to]; ok {
		if client, ok := h.clients[id]; ok {
			return client
		}
	}
	var ids []string
	for id := range h.clients {
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil
	}
	sort.Strings(ids)
	return h.clients[ids[0]]
}

func (h *Hub) remember(senderID, bridgeID string) {
	h.mu.Lock()
	h.routes[senderID] = bridgeID
	h.mu.Unlock()
}

// dispatch hands the event to the handler on its own goroutine
func (h *Hub) dispatch(event entities.InboundEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.handler == nil {
		h.logger.Warn("No handler installed, dropping message", zap.String("messageID", event.MessageID))
		return
	}
	if h.draining {
		h.logger.Warn("Shutting down, dropping message", zap.String("messageID", event.MessageID))
		return
	}

	handler := h.handler
	h.inflight.Add(1)
	go func() {
		defer h.inflight.Done()
		defer func() {
			if r := recover(); r != nil {
				h.logger.Error("Handler panicked",
					zap.String("messageID", event.MessageID),
					zap.Any("panic", r))
			}
		}()
		handler.Handle(h.ctx, event)
	}()
}

// Client is a middleman between a bridge websocket connection and the hub.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound frames.
	send chan []byte

	// Bridge ID for this client
	bridgeID string

	// Set once send is closed. Guarded by hub.mu.
	closed bool

	logger *zap.Logger
}

// close must be called with hub.mu held
func (c *Client) close() {
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// HandleWebSocket upgrades an authenticated bridge connection
func HandleWebSocket(hub *Hub, c echo.Context, bridgeID string, logger *zap.Logger) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	client := &Client{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		bridgeID: bridgeID,
		logger:   logger.With(zap.String("bridgeID", bridgeID)),
	}

	select {
	case client.hub.register <- client:
	case <-client.hub.done:
		conn.Close()
		return fmt.Errorf("hub stopped")
	}

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.readPump()

	return nil
}

// readPump pumps frames from the websocket connection to the hub.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		switch messageType {
		case websocket.TextMessage:
			c.processMessage(message)
		default:
			c.logger.Warn("Received unsupported frame type", zap.Int("type", messageType))
			c.sendFrame(CreateErrorMessage(ErrorCodeInvalidMessage, "Only JSON text frames are supported", ""))
		}
	}
}

// writePump pumps frames from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// processMessage validates a frame from the bridge and acts on it
func (c *Client) processMessage(message []byte) {
	msg, err := c.hub.validator.ValidateMessage(message)
	if err != nil {
		c.logger.Warn("Rejected bridge frame", zap.Error(err))
		c.sendFrame(CreateErrorMessage(ErrorCodeInvalidMessage, "Invalid message", err.Error()))
		return
	}

	switch m := msg.(type) {
	case *PingMessage:
		c.sendFrame(CreatePongMessage(m.Data))

	case *InboundMessage:
		event, err := m.Event()
		if err != nil {
			c.logger.Warn("Rejected inbound message", zap.String("messageID", m.MessageID), zap.Error(err))
			c.sendFrame(CreateErrorMessage(ErrorCodeInvalidAudio, "Invalid audio payload", err.Error()))
			return
		}
		c.hub.remember(event.SenderID, c.bridgeID)
		c.logger.Debug("Inbound message relayed",
			zap.String("messageID", event.MessageID),
			zap.String("kind", string(event.Kind)))
		c.hub.dispatch(event)
	}
}

// sendFrame queues a reply to this bridge without blocking the read loop
func (c *Client) sendFrame(frame interface{}) {
	payload, err := json.Marshal(frame)
	if err != nil {
		c.logger.Error("Failed to marshal frame", zap.Error(err))
		return
	}

	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.send <- payload:
	default:
		c.logger.Warn("Send buffer full, dropping frame")
	}
}
