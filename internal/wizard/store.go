// Package wizard holds the claim wizard's per-session state: four data slices,
// the receipt type, the derived user name and the eligible contract list. Each
// part is persisted under its own key in a session namespace.
package wizard

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"maps"
	"sync"

	"claimgate/internal/sessionstore"
	dErrors "claimgate/pkg/domain-errors"
	"claimgate/pkg/platform/sentinel"
)

type Store struct {
	ns     sessionstore.Namespace
	logger *slog.Logger

	mu           sync.RWMutex
	slices       map[SliceName]Slice
	receiptType  ReceiptType
	userName     string
	contracts    []Contract
	hasContracts bool
	// generation counts resets of insured and accept. Writers that started
	// before a reset compare it through SaveSliceIf.
	generation uint64
}

type Option func(*Store)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New returns an empty store persisting into ns.
func New(ns sessionstore.Namespace, opts ...Option) *Store {
	s := &Store{
		ns:     ns,
		logger: slog.Default(),
		slices: emptySlices(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func emptySlices() map[SliceName]Slice {
	out := make(map[SliceName]Slice, len(Slices))
	for _, name := range Slices {
		out[name] = Slice{}
	}
	return out
}

// SaveSlice shallow-merges partial into the named slice and persists the result.
func (s *Store) SaveSlice(ctx context.Context, name SliceName, partial Slice) Slice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mergeLocked(ctx, name, partial)
}

// Generation identifies the current reset epoch. It changes whenever insured
// and accept are cleared by a receipt-type switch or a full reset.
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// SaveSliceIf merges partial like SaveSlice, but only while the store is still
// in generation gen. A reset in between yields a conflict and nothing is written.
func (s *Store) SaveSliceIf(ctx context.Context, gen uint64, name SliceName, partial Slice) (Slice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return nil, dErrors.New(dErrors.CodeConflict, "the claim was reset while this value was being saved")
	}
	return s.mergeLocked(ctx, name, partial), nil
}

func (s *Store) mergeLocked(ctx context.Context, name SliceName, partial Slice) Slice {
	merged := s.slices[name].clone()
	maps.Copy(merged, partial)
	s.slices[name] = merged
	s.persist(ctx, string(name), merged)
	return merged.clone()
}

// Slice returns a copy of the named slice.
func (s *Store) Slice(name SliceName) Slice {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.slices[name].clone()
}

// SetReceiptType sets the type without touching any slice. Callers changing an
// existing type should use SwitchReceiptType.
func (s *Store) SetReceiptType(ctx context.Context, t ReceiptType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receiptType = t
	s.persist(ctx, keyReceiptType, t)
}

func (s *Store) ReceiptType() ReceiptType {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.receiptType
}

// ResetInsuredAndAccept clears the slices and the contract list computed under
// the current receipt type.
func (s *Store) ResetInsuredAndAccept(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetInsuredAndAcceptLocked(ctx)
}

func (s *Store) resetInsuredAndAcceptLocked(ctx context.Context) {
	s.generation++
	s.slices[SliceInsured] = Slice{}
	s.slices[SliceAccept] = Slice{}
	s.contracts = nil
	s.hasContracts = false
	s.remove(ctx, string(SliceInsured))
	s.remove(ctx, string(SliceAccept))
	s.remove(ctx, keyContractList)
}

// SwitchReceiptType sets t, first resetting insured, accept and the contract
// list when a different type was already chosen. It reports whether a reset
// happened.
func (s *Store) SwitchReceiptType(ctx context.Context, t ReceiptType) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	reset := s.receiptType != "" && s.receiptType != t
	if reset {
		s.resetInsuredAndAcceptLocked(ctx)
	}
	s.receiptType = t
	s.persist(ctx, keyReceiptType, t)
	return reset
}

func (s *Store) SetUserName(ctx context.Context, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userName == name {
		return
	}
	s.userName = name
	s.persist(ctx, keyUserName, name)
}

func (s *Store) UserName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userName
}

func (s *Store) SetContractList(ctx context.Context, contracts []Contract) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contracts = append([]Contract(nil), contracts...)
	s.hasContracts = true
	s.persist(ctx, keyContractList, s.contracts)
}

// ContractList reports false when no list has been fetched since the last reset.
func (s *Store) ContractList() ([]Contract, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.hasContracts {
		return nil, false
	}
	return append([]Contract(nil), s.contracts...), true
}

// ResetAll clears every slice and every persisted key of the session.
func (s *Store) ResetAll(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.slices = emptySlices()
	s.receiptType = ""
	s.userName = ""
	s.contracts = nil
	s.hasContracts = false
	if err := s.ns.Clear(ctx); err != nil {
		s.logger.WarnContext(ctx, "wizard reset: failed to clear persisted state", "error", err)
	}
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := Snapshot{
		Slices:       make(map[SliceName]Slice, len(s.slices)),
		ReceiptType:  s.receiptType,
		UserName:     s.userName,
		HasContracts: s.hasContracts,
	}
	for name, slice := range s.slices {
		out.Slices[name] = slice.clone()
	}
	if s.hasContracts {
		out.ContractList = append([]Contract(nil), s.contracts...)
	}
	return out
}

// persist writes v under key. Failures are logged; memory stays authoritative.
func (s *Store) persist(ctx context.Context, key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		s.logger.WarnContext(ctx, "wizard persist: encode failed", "key", key, "error", err)
		return
	}
	if err := s.ns.Set(ctx, key, raw); err != nil {
		s.logger.WarnContext(ctx, "wizard persist: write failed", "key", key, "error", err)
	}
}

func (s *Store) remove(ctx context.Context, key string) {
	if err := s.ns.Delete(ctx, key); err != nil {
		s.logger.WarnContext(ctx, "wizard persist: delete failed", "key", key, "error", err)
	}
}

// Restore rebuilds a store from the keys persisted in ns. A key that cannot be
// decoded is evicted and treated as empty.
func Restore(ctx context.Context, ns sessionstore.Namespace, opts ...Option) *Store {
	s := New(ns, opts...)
	for _, name := range Slices {
		var slice Slice
		if s.load(ctx, string(name), &slice) && slice != nil {
			s.slices[name] = slice
		}
	}
	var rt ReceiptType
	if s.load(ctx, keyReceiptType, &rt) {
		if _, err := ParseReceiptType(string(rt)); err == nil {
			s.receiptType = rt
		} else {
			s.evict(ctx, keyReceiptType, err)
		}
	}
	var name string
	if s.load(ctx, keyUserName, &name) {
		s.userName = name
	}
	var contracts []Contract
	if s.load(ctx, keyContractList, &contracts) {
		s.contracts = contracts
		s.hasContracts = true
	}
	return s
}

func (s *Store) load(ctx context.Context, key string, dst any) bool {
	raw, err := s.ns.Get(ctx, key)
	if errors.Is(err, sentinel.ErrNotFound) {
		return false
	}
	if err != nil {
		s.logger.WarnContext(ctx, "wizard restore: read failed", "key", key, "error", err)
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		s.evict(ctx, key, err)
		return false
	}
	return true
}

func (s *Store) evict(ctx context.Context, key string, cause error) {
	s.logger.WarnContext(ctx, "wizard restore: evicting corrupt entry", "key", key, "error", cause)
	s.remove(ctx, key)
}
