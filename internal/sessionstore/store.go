// Package sessionstore is a key-value store scoped to one wizard session.
// Values live as long as the session and are namespaced so that one session can
// never read or clear another's keys.
package sessionstore

import (
	"context"
)

// Namespace is the view of the store for a single session. Get returns
// sentinel.ErrNotFound for absent keys.
type Namespace interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// Clear removes every key in the namespace.
	Clear(ctx context.Context) error
}

// Store hands out per-session namespaces.
type Store interface {
	Namespace(sessionID string) Namespace
}
