package sessionstore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"claimgate/pkg/platform/sentinel"
)

// expiryHeader is the big-endian unix-nano deadline stored in front of each value.
const expiryHeader = 8

// LevelDBStore keeps session values in an embedded LevelDB so a single-node
// deployment survives restarts without Redis. All keys of a session carry the
// same deadline: a write re-stamps the whole namespace. Expiry is enforced on
// read and by Sweep.
type LevelDBStore struct {
	db  *leveldb.DB
	ttl time.Duration
	now func() time.Time

	// mu serialises writers so a re-stamp never resurrects a value another
	// writer just replaced or deleted.
	mu sync.Mutex
}

// OpenLevelDB opens or creates the database at path.
func OpenLevelDB(path string, ttl time.Duration) (*LevelDBStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s: %w", path, err)
	}
	return &LevelDBStore{db: db, ttl: ttl, now: time.Now}, nil
}

func (s *LevelDBStore) Close() error {
	return s.db.Close()
}

func (s *LevelDBStore) Namespace(sessionID string) Namespace {
	return &levelNamespace{store: s, prefix: []byte(sessionKeyPrefix + sessionID + ":")}
}

// Sweep deletes every expired entry and returns how many were removed.
func (s *LevelDBStore) Sweep(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteMatching(ctx, util.BytesPrefix([]byte(sessionKeyPrefix)), func(v []byte) bool {
		return s.expired(v)
	})
}

func (s *LevelDBStore) expired(v []byte) bool {
	if len(v) < expiryHeader {
		return true
	}
	deadline := int64(binary.BigEndian.Uint64(v[:expiryHeader]))
	return deadline != 0 && s.now().UnixNano() > deadline
}

func (s *LevelDBStore) deleteMatching(ctx context.Context, r *util.Range, match func([]byte) bool) (int, error) {
	iter := s.db.NewIterator(r, nil)
	batch := new(leveldb.Batch)
	for iter.Next() {
		if err := ctx.Err(); err != nil {
			iter.Release()
			return 0, err
		}
		if match == nil || match(iter.Value()) {
			batch.Delete(append([]byte(nil), iter.Key()...))
		}
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return 0, fmt.Errorf("%w: iterate: %v", sentinel.ErrUnavailable, err)
	}
	if batch.Len() == 0 {
		return 0, nil
	}
	if err := s.db.Write(batch, nil); err != nil {
		return 0, fmt.Errorf("%w: delete batch: %v", sentinel.ErrUnavailable, err)
	}
	return batch.Len(), nil
}

type levelNamespace struct {
	store  *LevelDBStore
	prefix []byte
}

func (n *levelNamespace) key(k string) []byte {
	return append(append([]byte(nil), n.prefix...), k...)
}

func (n *levelNamespace) Get(_ context.Context, key string) ([]byte, error) {
	v, err := n.store.db.Get(n.key(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %v", sentinel.ErrUnavailable, key, err)
	}
	if n.store.expired(v) {
		return nil, sentinel.ErrNotFound
	}
	return v[expiryHeader:], nil
}

// Set writes key and moves every live key of the namespace to the new
// deadline in one batch.
func (n *levelNamespace) Set(_ context.Context, key string, value []byte) error {
	n.store.mu.Lock()
	defer n.store.mu.Unlock()

	var deadline int64
	if n.store.ttl > 0 {
		deadline = n.store.now().Add(n.store.ttl).UnixNano()
	}
	batch := new(leveldb.Batch)
	iter := n.store.db.NewIterator(util.BytesPrefix(n.prefix), nil)
	for iter.Next() {
		if n.store.expired(iter.Value()) {
			batch.Delete(append([]byte(nil), iter.Key()...))
			continue
		}
		batch.Put(append([]byte(nil), iter.Key()...), stamp(deadline, iter.Value()[expiryHeader:]))
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return fmt.Errorf("%w: set %s: %v", sentinel.ErrUnavailable, key, err)
	}
	batch.Put(n.key(key), stamp(deadline, value))
	if err := n.store.db.Write(batch, nil); err != nil {
		return fmt.Errorf("%w: set %s: %v", sentinel.ErrUnavailable, key, err)
	}
	return nil
}

func stamp(deadline int64, value []byte) []byte {
	stored := make([]byte, expiryHeader+len(value))
	binary.BigEndian.PutUint64(stored, uint64(deadline))
	copy(stored[expiryHeader:], value)
	return stored
}

func (n *levelNamespace) Delete(_ context.Context, key string) error {
	n.store.mu.Lock()
	defer n.store.mu.Unlock()
	if err := n.store.db.Delete(n.key(key), nil); err != nil {
		return fmt.Errorf("%w: delete %s: %v", sentinel.ErrUnavailable, key, err)
	}
	return nil
}

func (n *levelNamespace) Clear(ctx context.Context) error {
	n.store.mu.Lock()
	defer n.store.mu.Unlock()
	_, err := n.store.deleteMatching(ctx, util.BytesPrefix(n.prefix), nil)
	return err
}
