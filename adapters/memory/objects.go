package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/falabot/server/domain/entities"
	"github.com/falabot/server/domain/repositories"
)

type object struct {
	data        []byte
	contentType string
}

// ObjectStore keeps uploaded payloads in memory
type ObjectStore struct {
	mu      sync.RWMutex
	objects map[string]object
}

var _ repositories.ObjectStore = (*ObjectStore)(nil)

func NewObjectStore() *ObjectStore {
	return &ObjectStore{objects: make(map[string]object)}
}

// Put stores a copy of data under key and returns a mem:// reference
func (m *ObjectStore) Put(ctx context.Context, key string, data []byte, contentType string, overwrite bool) (string, error) {
	if key == "" {
		return "", errors.New("object key cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.objects[key]; exists && !overwrite {
		return "", fmt.Errorf("object %s: %w", key, entities.ErrDuplicate)
	}
	m.objects[key] = object{data: append([]byte(nil), data...), contentType: contentType}
	return "mem://" + key, nil
}

// Get returns the stored payload and its content type
func (m *ObjectStore) Get(key string) ([]byte, string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[key]
	if !ok {
		return nil, "", false
	}
	return append([]byte(nil), obj.data...), obj.contentType, true
}

// Len returns the number of stored objects
func (m *ObjectStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
