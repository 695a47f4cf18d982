package ledger

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

type InMemoryStore struct {
	mu       sync.RWMutex
	attempts []Attempt
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Record(_ context.Context, a Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.FileNames = append([]string(nil), a.FileNames...)
	a.SealedFields = append([]string(nil), a.SealedFields...)
	s.attempts = append(s.attempts, a)
	return nil
}

func (s *InMemoryStore) ListBySession(_ context.Context, sessionID uuid.UUID) ([]Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Attempt
	for _, a := range s.attempts {
		if a.SessionID == sessionID {
			out = append(out, a)
		}
	}
	return out, nil
}
