package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"reverie/pkg/domain"
)

// RedisDreamStore keeps pending dreams, dream state, and build locks in Redis.
// Pending dreams and locks carry native TTLs; reads additionally re-check the
// artifact's explicit ExpiresAt so an un-evicted expired value is still
// treated as absent.
type RedisDreamStore struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisDreamStore builds a Redis-backed dream store.
func NewRedisDreamStore(addr, password string) *RedisDreamStore {
	return &RedisDreamStore{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
		now: func() time.Time { return time.Now().UTC() },
	}
}

// NewRedisDreamStoreWithClock is used by tests to pin the expiry clock.
func NewRedisDreamStoreWithClock(addr, password string, now func() time.Time) *RedisDreamStore {
	s := NewRedisDreamStore(addr, password)
	if now != nil {
		s.now = now
	}
	return s
}

// GetPendingDream returns the user's pending artifact, treating an expired
// one as absent and deleting it best-effort.
func (s *RedisDreamStore) GetPendingDream(ctx context.Context, userID string) (domain.PendingDream, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	raw, err := s.client.Get(ctx, pendingDreamKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.PendingDream{}, false, nil
	}
	if err != nil {
		return domain.PendingDream{}, false, err
	}
	var dream domain.PendingDream
	if err := json.Unmarshal(raw, &dream); err != nil {
		return domain.PendingDream{}, false, fmt.Errorf("unmarshal pending dream: %w", err)
	}
	if dream.Expired(s.now()) {
		_ = s.client.Del(ctx, pendingDreamKey(userID)).Err()
		return domain.PendingDream{}, false, nil
	}
	return dream, true, nil
}

// SavePendingDream stores the artifact with the given TTL, overwriting any
// previous one (last write wins on the narrow concurrent-build race).
func (s *RedisDreamStore) SavePendingDream(ctx context.Context, userID string, dream domain.PendingDream, ttl time.Duration) error {
	raw, err := json.Marshal(dream)
	if err != nil {
		return fmt.Errorf("marshal pending dream: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return s.client.Set(ctx, pendingDreamKey(userID), raw, ttl).Err()
}

// DeletePendingDream removes the user's pending artifact.
func (s *RedisDreamStore) DeletePendingDream(ctx context.Context, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return s.client.Del(ctx, pendingDreamKey(userID)).Err()
}

// GetDreamState loads the user's rolling dream memory.
func (s *RedisDreamStore) GetDreamState(ctx context.Context, userID string) (domain.DreamState, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	raw, err := s.client.Get(ctx, dreamStateKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.DreamState{}, false, nil
	}
	if err != nil {
		return domain.DreamState{}, false, err
	}
	var state domain.DreamState
	if err := json.Unmarshal(raw, &state); err != nil {
		return domain.DreamState{}, false, fmt.Errorf("unmarshal dream state: %w", err)
	}
	return state, true, nil
}

// SaveDreamState persists the user's rolling dream memory without TTL.
func (s *RedisDreamStore) SaveDreamState(ctx context.Context, userID string, state domain.DreamState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal dream state: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return s.client.Set(ctx, dreamStateKey(userID), raw, 0).Err()
}

// AcquireBuildLock creates the per-(user,date) lock via SETNX.
func (s *RedisDreamStore) AcquireBuildLock(ctx context.Context, userID, date, artifactID string, ttl time.Duration) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return s.client.SetNX(ctx, buildLockKey(userID, date), artifactID, ttl).Result()
}

// HasBuildLock reports whether a lock exists for (user, date).
func (s *RedisDreamStore) HasBuildLock(ctx context.Context, userID, date string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	n, err := s.client.Exists(ctx, buildLockKey(userID, date)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func pendingDreamKey(userID string) string {
	return fmt.Sprintf("reverie:dream:pending:%s", userID)
}

func dreamStateKey(userID string) string {
	return fmt.Sprintf("reverie:dream:state:%s", userID)
}

func buildLockKey(userID, date string) string {
	return fmt.Sprintf("reverie:dream:lock:%s:%s", userID, date)
}
