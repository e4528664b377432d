package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"reverie/pkg/domain"
)

// MemoryDreamStore keeps dream artifacts, states, and locks in memory. Used
// by tests and local runs; semantics mirror the Redis store, including the
// explicit expiry double-check on read.
type MemoryDreamStore struct {
	mu      sync.Mutex
	pending map[string]memoryPending
	states  map[string]domain.DreamState
	locks   map[string]memoryLock
	now     func() time.Time
}

type memoryPending struct {
	dream     domain.PendingDream
	storeTTL  time.Time
	hasExpiry bool
}

type memoryLock struct {
	artifactID string
	expiry     time.Time
}

// NewMemoryDreamStore constructs an in-memory dream store.
func NewMemoryDreamStore() *MemoryDreamStore {
	return &MemoryDreamStore{
		pending: make(map[string]memoryPending),
		states:  make(map[string]domain.DreamState),
		locks:   make(map[string]memoryLock),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SetClock pins the store's clock for expiry tests.
func (s *MemoryDreamStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

func (s *MemoryDreamStore) GetPendingDream(_ context.Context, userID string) (domain.PendingDream, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.pending[userID]
	if !ok {
		return domain.PendingDream{}, false, nil
	}
	now := s.now()
	if (entry.hasExpiry && now.After(entry.storeTTL)) || entry.dream.Expired(now) {
		delete(s.pending, userID)
		return domain.PendingDream{}, false, nil
	}
	return entry.dream, true, nil
}

func (s *MemoryDreamStore) SavePendingDream(_ context.Context, userID string, dream domain.PendingDream, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := memoryPending{dream: dream}
	if ttl > 0 {
		entry.storeTTL = s.now().Add(ttl)
		entry.hasExpiry = true
	}
	s.pending[userID] = entry
	return nil
}

func (s *MemoryDreamStore) DeletePendingDream(_ context.Context, userID string) error {
	s.mu.Lock()
	delete(s.pending, userID)
	s.mu.Unlock()
	return nil
}

func (s *MemoryDreamStore) GetDreamState(_ context.Context, userID string) (domain.DreamState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[userID]
	return state, ok, nil
}

func (s *MemoryDreamStore) SaveDreamState(_ context.Context, userID string, state domain.DreamState) error {
	s.mu.Lock()
	s.states[userID] = state
	s.mu.Unlock()
	return nil
}

func (s *MemoryDreamStore) AcquireBuildLock(_ context.Context, userID, date, artifactID string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := userID + ":" + date
	if lock, ok := s.locks[key]; ok && s.now().Before(lock.expiry) {
		return false, nil
	}
	s.locks[key] = memoryLock{artifactID: artifactID, expiry: s.now().Add(ttl)}
	return true, nil
}

func (s *MemoryDreamStore) HasBuildLock(_ context.Context, userID, date string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[userID+":"+date]
	if !ok {
		return false, nil
	}
	if s.now().After(lock.expiry) {
		delete(s.locks, userID+":"+date)
		return false, nil
	}
	return true, nil
}

// LockCount reports observable locks; used by the at-most-one-build tests.
func (s *MemoryDreamStore) LockCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, lock := range s.locks {
		if s.now().Before(lock.expiry) {
			count++
		}
	}
	return count
}

// MemoryReflectionArchive keeps reflections and the per-user time index in
// memory.
type MemoryReflectionArchive struct {
	mu      sync.Mutex
	records map[string]domain.ReflectionRecord
	index   map[string][]indexEntry
}

// indexEntry mirrors the sorted-set index: it outlives its record, the same
// way a Redis ZSET member survives deletion of the value key.
type indexEntry struct {
	id string
	at time.Time
}

// NewMemoryReflectionArchive constructs an in-memory reflection archive.
func NewMemoryReflectionArchive() *MemoryReflectionArchive {
	return &MemoryReflectionArchive{
		records: make(map[string]domain.ReflectionRecord),
		index:   make(map[string][]indexEntry),
	}
}

func (a *MemoryReflectionArchive) SaveReflection(_ context.Context, rec domain.ReflectionRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.records[rec.ID]; !ok {
		a.index[rec.OwnerID] = append(a.index[rec.OwnerID], indexEntry{id: rec.ID, at: rec.CreatedAt})
	}
	a.records[rec.ID] = rec
	return nil
}

func (a *MemoryReflectionArchive) GetReflection(_ context.Context, id string) (domain.ReflectionRecord, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	rec, ok := a.records[id]
	return rec, ok, nil
}

func (a *MemoryReflectionArchive) GetReflections(_ context.Context, ids []string) ([]domain.ReflectionRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	records := make([]domain.ReflectionRecord, 0, len(ids))
	for _, id := range ids {
		if rec, ok := a.records[id]; ok {
			records = append(records, rec)
		}
	}
	return records, nil
}

func (a *MemoryReflectionArchive) ListReflectionIDs(_ context.Context, userID string, from, to time.Time) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	entries := make([]indexEntry, 0)
	for _, e := range a.index[userID] {
		if e.at.Before(from) || e.at.After(to) {
			continue
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].at.After(entries[j].at) })
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.id)
	}
	return ids, nil
}

func (a *MemoryReflectionArchive) SetEnrichment(_ context.Context, id string, e domain.Enrichment) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	rec, ok := a.records[id]
	if !ok {
		return fmt.Errorf("reflection %s not found", id)
	}
	if rec.Enrichment != nil {
		return ErrEnrichmentExists
	}
	rec.Enrichment = &e
	a.records[id] = rec
	return nil
}

// DropReflectionRecords removes records while keeping their index entries,
// simulating a partial archive read failure in tests.
func (a *MemoryReflectionArchive) DropReflectionRecords(ids ...string) {
	a.mu.Lock()
	for _, id := range ids {
		delete(a.records, id)
	}
	a.mu.Unlock()
}
