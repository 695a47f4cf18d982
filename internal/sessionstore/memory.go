package sessionstore

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"claimgate/pkg/platform/sentinel"
)

// MemoryStore keeps session values in process memory, one cache entry per
// session. Every write pushes the whole session's expiry out by the TTL, so
// keys written early never expire ahead of keys written late.
type MemoryStore struct {
	cache *gocache.Cache
	ttl   time.Duration

	// mu makes get-or-create of a session entry atomic.
	mu sync.Mutex
}

// NewMemory creates an in-memory store. ttl <= 0 keeps entries until cleared.
func NewMemory(ttl time.Duration) *MemoryStore {
	expiry := ttl
	if expiry <= 0 {
		expiry = gocache.NoExpiration
	}
	return &MemoryStore{
		cache: gocache.New(expiry, 2*time.Minute),
		ttl:   expiry,
	}
}

func (m *MemoryStore) Namespace(sessionID string) Namespace {
	return &memoryNamespace{store: m, id: sessionID}
}

type memoryBucket struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// bucket returns the session's entry. With touch set it is created when
// missing and its expiry is refreshed.
func (m *MemoryStore) bucket(id string, touch bool) *memoryBucket {
	if !touch {
		if v, ok := m.cache.Get(id); ok {
			return v.(*memoryBucket)
		}
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.cache.Get(id)
	if !ok {
		b = &memoryBucket{values: make(map[string][]byte)}
	}
	m.cache.Set(id, b, m.ttl)
	return b.(*memoryBucket)
}

type memoryNamespace struct {
	store *MemoryStore
	id    string
}

func (n *memoryNamespace) Get(_ context.Context, key string) ([]byte, error) {
	b := n.store.bucket(n.id, false)
	if b == nil {
		return nil, sentinel.ErrNotFound
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.values[key]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (n *memoryNamespace) Set(_ context.Context, key string, value []byte) error {
	stored := make([]byte, len(value))
	copy(stored, value)
	b := n.store.bucket(n.id, true)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.values[key] = stored
	return nil
}

func (n *memoryNamespace) Delete(_ context.Context, key string) error {
	if b := n.store.bucket(n.id, false); b != nil {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.values, key)
	}
	return nil
}

// Clear drops the session's entry. Other sessions are not visited.
func (n *memoryNamespace) Clear(_ context.Context) error {
	n.store.mu.Lock()
	defer n.store.mu.Unlock()
	n.store.cache.Delete(n.id)
	return nil
}
