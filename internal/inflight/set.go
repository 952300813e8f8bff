// Package inflight tracks message ids currently being processed so a message
// redelivered by the transport is never processed twice at the same time.
package inflight

import (
	"context"
	"sync"
)

// Set is a concurrent set of in-flight message ids
type Set interface {
	// TryAdd adds id and reports true, or reports false if id is already present
	TryAdd(ctx context.Context, id string) bool
	Remove(ctx context.Context, id string)
	// Len returns the number of ids this process is working on
	Len() int
}

// MemorySet is a process-local Set
type MemorySet struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

var _ Set = (*MemorySet)(nil)

func NewMemorySet() *MemorySet {
	return &MemorySet{ids: make(map[string]struct{})}
}

func (s *MemorySet) TryAdd(_ context.Context, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[id]; ok {
		return false
	}
	s.ids[id] = struct{}{}
	return true
}

func (s *MemorySet) Remove(_ context.Context, id string) {
	s.mu.Lock()
	delete(s.ids, id)
	s.mu.Unlock()
}

func (s *MemorySet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}
