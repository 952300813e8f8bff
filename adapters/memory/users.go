package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/falabot/server/domain/entities"
	"github.com/falabot/server/domain/repositories"
)

// UserRepository is an in-memory implementation of repositories.UserRepository
type UserRepository struct {
	mu    sync.RWMutex
	users map[string]*entities.User
}

var _ repositories.UserRepository = (*UserRepository)(nil)

func NewUserRepository() *UserRepository {
	return &UserRepository{users: make(map[string]*entities.User)}
}

// Upsert stores the user if absent and returns the stored copy
func (m *UserRepository) Upsert(ctx context.Context, user *entities.User) (*entities.User, error) {
	if user == nil {
		return nil, errors.New("user cannot be nil")
	}
	if err := user.Validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.users[user.ID]; ok {
		userCopy := *existing
		return &userCopy, nil
	}

	stored := *user
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	m.users[user.ID] = &stored

	userCopy := stored
	return &userCopy, nil
}

// GetByID returns a copy of the user
func (m *UserRepository) GetByID(ctx context.Context, id string) (*entities.User, error) {
	if id == "" {
		return nil, errors.New("user ID cannot be empty")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	user, ok := m.users[id]
	if !ok {
		return nil, entities.ErrNotFound
	}
	userCopy := *user
	return &userCopy, nil
}

func (m *UserRepository) TouchLastInteraction(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[id]
	if !ok {
		return entities.ErrNotFound
	}
	user.LastInteractionAt = at
	return nil
}

// Count returns the number of stored users
func (m *UserRepository) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.users)
}
