package availability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Cache keeps each doctor's full window list in Redis for a short TTL.
// Appointment rows are never cached; only this read-mostly data is.
//
// Every invalidation bumps a per-doctor version. A read-through fill is
// only written when the version it started from is still current, so a
// fill racing a write cannot put the old list back.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func cacheKey(doctorID uuid.UUID) string {
	return fmt.Sprintf("availability:%s", doctorID)
}

func versionKey(doctorID uuid.UUID) string {
	return fmt.Sprintf("availability:%s:version", doctorID)
}

// Get returns the cached windows and whether the key was present. An empty
// list is a valid cached value.
func (c *Cache) Get(ctx context.Context, doctorID uuid.UUID) ([]Window, bool, error) {
	data, err := c.client.Get(ctx, cacheKey(doctorID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get availability cache: %w", err)
	}

	var windows []Window
	if err := json.Unmarshal(data, &windows); err != nil {
		return nil, false, fmt.Errorf("decode availability cache: %w", err)
	}
	return windows, true, nil
}

// Version returns the doctor's current invalidation counter. Read it before
// loading from the store and pass it to Fill.
func (c *Cache) Version(ctx context.Context, doctorID uuid.UUID) (int64, error) {
	v, err := c.client.Get(ctx, versionKey(doctorID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("get availability cache version: %w", err)
	}
	return v, nil
}

// Fill stores windows unless the doctor was invalidated after version was
// read. It reports whether the value was written.
func (c *Cache) Fill(ctx context.Context, doctorID uuid.UUID, windows []Window, version int64) (bool, error) {
	if windows == nil {
		windows = []Window{}
	}
	data, err := json.Marshal(windows)
	if err != nil {
		return false, fmt.Errorf("encode availability cache: %w", err)
	}

	written := false
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, versionKey(doctorID)).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur != version {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, cacheKey(doctorID), data, c.ttl)
			return nil
		})
		if err == nil {
			written = true
		}
		return err
	}, versionKey(doctorID))
	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("fill availability cache: %w", err)
	}
	return written, nil
}

// Invalidate drops the cached list and bumps the version.
func (c *Cache) Invalidate(ctx context.Context, doctorID uuid.UUID) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, versionKey(doctorID))
		pipe.Del(ctx, cacheKey(doctorID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("invalidate availability cache: %w", err)
	}
	return nil
}
