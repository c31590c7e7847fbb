package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/okian/fedrec/internal/domain/model"
)

// MemoryStore keeps snapshots in process memory. It is the default driver
// and loses everything on restart.
type MemoryStore struct {
	mu       sync.RWMutex
	versions map[uint64]*model.GlobalModelState
	latest   *model.GlobalModelState
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{versions: make(map[uint64]*model.GlobalModelState)}
}

// Save appends a private copy of state.
func (s *MemoryStore) Save(_ context.Context, state *model.GlobalModelState) error {
	if state == nil || state.Version == 0 {
		return ErrInvalidVersion
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.versions[state.Version]; ok {
		return fmt.Errorf("%w: %d", ErrVersionExists, state.Version)
	}
	cp := model.NewGlobalModelState(state.Version, state.Weights, state.CreatedAt)
	s.versions[state.Version] = cp
	if s.latest == nil || cp.Version > s.latest.Version {
		s.latest = cp
	}
	return nil
}

// LoadLatest returns the highest stored version.
func (s *MemoryStore) LoadLatest(_ context.Context) (*model.GlobalModelState, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return nil, false, nil
	}
	return s.latest, true, nil
}

// Count returns the number of stored versions.
func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.versions), nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
