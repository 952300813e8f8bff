package conversation

import (
	"sync"

	"go.uber.org/zap"

	"github.com/falabot/server/domain/entities"
)

// DefaultCapacity is the number of turns kept per sender (five exchanges)
const DefaultCapacity = 10

// Store keeps a bounded, volatile conversation history per sender.
// Oldest turns are evicted first once capacity is reached.
type Store struct {
	mu       sync.RWMutex
	turns    map[string][]entities.ConversationTurn
	capacity int
	logger   *zap.Logger
}

// NewStore creates a store holding at most capacity turns per sender
func NewStore(capacity int, logger *zap.Logger) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		turns:    make(map[string][]entities.ConversationTurn),
		capacity: capacity,
		logger:   logger,
	}
}

// Append adds turns to the sender's history in order and applies the FIFO cap
func (s *Store) Append(senderID string, turns ...entities.ConversationTurn) {
	if len(turns) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	history := append(s.turns[senderID], turns...)
	if overflow := len(history) - s.capacity; overflow > 0 {
		// copy into a fresh slice so evicted turns are not pinned by the backing array
		trimmed := make([]entities.ConversationTurn, s.capacity)
		copy(trimmed, history[overflow:])
		history = trimmed
	}
	s.turns[senderID] = history
}

// Window returns up to n of the most recent turns, oldest first
func (s *Store) Window(senderID string, n int) []entities.ConversationTurn {
	if n <= 0 {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.turns[senderID]
	if n > len(history) {
		n = len(history)
	}
	window := make([]entities.ConversationTurn, n)
	copy(window, history[len(history)-n:])
	return window
}

// Clear drops the sender's history
func (s *Store) Clear(senderID string) {
	s.mu.Lock()
	delete(s.turns, senderID)
	s.mu.Unlock()

	s.logger.Info("Conversation context cleared", zap.String("senderID", senderID))
}

// Senders returns how many senders currently have history
func (s *Store) Senders() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}
