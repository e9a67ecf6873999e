// Package store persists conversation state. The store is schema-agnostic
// from the engine's point of view but must round-trip the full aggregate
// losslessly: the node arena as an ordered array, the buzzword mapping as
// an ordered array, plus the scalar counters.
package store

import (
	"context"
	"errors"
	"strings"

	"github.com/depthwise/depthwise/internal/interview"
)

var (
	ErrNotFound = errors.New("session not found in store")
	// ErrConflict means the optimistic version check failed: another
	// writer saved the session since this state was loaded.
	ErrConflict = errors.New("session version conflict")
)

// Store is the load-modify-save surface for one session's aggregate.
// Save bumps state.Version in place on success, so a saved aggregate
// round-trips identically through Load.
type Store interface {
	Load(ctx context.Context, sessionID string) (*interview.ConversationState, error)
	Save(ctx context.Context, sessionID string, state *interview.ConversationState) error
	Delete(ctx context.Context, sessionID string) error
	Close() error
}

// NewStore creates a postgres-backed store when configured, otherwise
// in-memory.
func NewStore(ctx context.Context, databaseURL string) (Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return NewInMemoryStore(), nil
	}
	return NewPostgresStore(ctx, databaseURL)
}
