package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/depthwise/depthwise/internal/interview"
)

// InMemoryStore keeps session aggregates in process, for local/dev use and
// tests. It enforces the same optimistic version check as the postgres
// store so conflict handling is exercised everywhere.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*interview.ConversationState
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string]*interview.ConversationState)}
}

func (s *InMemoryStore) Load(_ context.Context, sessionID string) (*interview.ConversationState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	out := stored.Clone()
	if err := out.Rebuild(); err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	return out, nil
}

func (s *InMemoryStore) Save(_ context.Context, sessionID string, state *interview.ConversationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, exists := s.sessions[sessionID]
	if exists {
		if stored.Version != state.Version {
			return ErrConflict
		}
	} else if state.Version != 0 {
		return ErrConflict
	}
	state.Version++
	s.sessions[sessionID] = state.Clone()
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return ErrNotFound
	}
	delete(s.sessions, sessionID)
	return nil
}

func (s *InMemoryStore) Close() error { return nil }
