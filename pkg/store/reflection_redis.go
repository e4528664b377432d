package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"reverie/pkg/domain"
)

// RedisReflectionArchive stores reflection records as JSON values with a
// per-user sorted-set index scored by creation time (unix seconds).
type RedisReflectionArchive struct {
	client *redis.Client
}

// NewRedisReflectionArchive builds a Redis-backed reflection archive.
func NewRedisReflectionArchive(addr, password string) *RedisReflectionArchive {
	return &RedisReflectionArchive{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
	}
}

// SaveReflection writes the record and its index entry in one transaction.
func (a *RedisReflectionArchive) SaveReflection(ctx context.Context, rec domain.ReflectionRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal reflection: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	pipe := a.client.TxPipeline()
	pipe.Set(ctx, reflectionKey(rec.ID), raw, 0)
	pipe.ZAdd(ctx, reflectionIndexKey(rec.OwnerID), redis.Z{
		Score:  float64(rec.CreatedAt.Unix()),
		Member: rec.ID,
	})
	_, err = pipe.Exec(ctx)
	return err
}

// GetReflection loads a single record.
func (a *RedisReflectionArchive) GetReflection(ctx context.Context, id string) (domain.ReflectionRecord, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	raw, err := a.client.Get(ctx, reflectionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.ReflectionRecord{}, false, nil
	}
	if err != nil {
		return domain.ReflectionRecord{}, false, err
	}
	var rec domain.ReflectionRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return domain.ReflectionRecord{}, false, fmt.Errorf("unmarshal reflection: %w", err)
	}
	return rec, true, nil
}

// GetReflections resolves ids to records, skipping missing ones.
func (a *RedisReflectionArchive) GetReflections(ctx context.Context, ids []string) ([]domain.ReflectionRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, reflectionKey(id))
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	values, err := a.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	records := make([]domain.ReflectionRecord, 0, len(values))
	for _, v := range values {
		text, ok := v.(string)
		if !ok {
			continue
		}
		var rec domain.ReflectionRecord
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// ListReflectionIDs returns ids with creation time in [from, to], newest first.
func (a *RedisReflectionArchive) ListReflectionIDs(ctx context.Context, userID string, from, to time.Time) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return a.client.ZRevRangeByScore(ctx, reflectionIndexKey(userID), &redis.ZRangeBy{
		Min: strconv.FormatInt(from.Unix(), 10),
		Max: strconv.FormatInt(to.Unix(), 10),
	}).Result()
}

// SetEnrichment attaches the analysis result; a second write is rejected.
func (a *RedisReflectionArchive) SetEnrichment(ctx context.Context, id string, e domain.Enrichment) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	key := reflectionKey(id)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := a.client.Watch(ctx, func(tx *redis.Tx) error {
			raw, err := tx.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				return fmt.Errorf("reflection %s not found", id)
			}
			if err != nil {
				return err
			}
			var rec domain.ReflectionRecord
			if err := json.Unmarshal(raw, &rec); err != nil {
				return fmt.Errorf("unmarshal reflection: %w", err)
			}
			if rec.Enrichment != nil {
				return ErrEnrichmentExists
			}
			rec.Enrichment = &e
			updated, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("marshal reflection: %w", err)
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, 0)
				return nil
			})
			return err
		}, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
}

func reflectionKey(id string) string {
	return fmt.Sprintf("reverie:reflect:record:%s", id)
}

func reflectionIndexKey(userID string) string {
	return fmt.Sprintf("reverie:reflect:index:%s", userID)
}
