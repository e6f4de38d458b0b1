package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// CachedAttempt is the resume state for one in-progress attempt: the last
// payload handed to the client, the draft answer map, and the questions the
// client flagged for review. It survives page reloads and is dropped only on
// successful submission.
type CachedAttempt struct {
	AttemptID string          `json:"attemptId"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Answers   map[uint]string `json:"answers,omitempty"`
	Flagged   []uint          `json:"flagged,omitempty"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// AttemptCache is the durable per-attempt resync store. Get returns
// (nil, nil) on a miss.
type AttemptCache interface {
	Get(ctx context.Context, attemptID string) (*CachedAttempt, error)
	Put(ctx context.Context, entry *CachedAttempt) error
	Clear(ctx context.Context, attemptID string) error
}

type RedisAttemptCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisAttemptCache(rdb *redis.Client, ttl time.Duration) *RedisAttemptCache {
	return &RedisAttemptCache{rdb: rdb, ttl: ttl}
}

func attemptKey(attemptID string) string {
	return fmt.Sprintf("quiz:attempt_cache:%s", attemptID)
}

func (c *RedisAttemptCache) Get(ctx context.Context, attemptID string) (*CachedAttempt, error) {
	raw, err := c.rdb.Get(ctx, attemptKey(attemptID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var entry CachedAttempt
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

func (c *RedisAttemptCache) Put(ctx context.Context, entry *CachedAttempt) error {
	entry.UpdatedAt = time.Now()
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, attemptKey(entry.AttemptID), raw, c.ttl).Err()
}

func (c *RedisAttemptCache) Clear(ctx context.Context, attemptID string) error {
	return c.rdb.Del(ctx, attemptKey(attemptID)).Err()
}

// MemoryAttemptCache is the in-process fallback used when Redis is not
// configured, and the implementation tests run against.
type MemoryAttemptCache struct {
	mu      sync.RWMutex
	entries map[string]*CachedAttempt
}

func NewMemoryAttemptCache() *MemoryAttemptCache {
	return &MemoryAttemptCache{entries: make(map[string]*CachedAttempt)}
}

func (c *MemoryAttemptCache) Get(ctx context.Context, attemptID string) (*CachedAttempt, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[attemptID]
	if !ok {
		return nil, nil
	}
	cp := *entry
	return &cp, nil
}

func (c *MemoryAttemptCache) Put(ctx context.Context, entry *CachedAttempt) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry.UpdatedAt = time.Now()
	cp := *entry
	c.entries[entry.AttemptID] = &cp
	return nil
}

func (c *MemoryAttemptCache) Clear(ctx context.Context, attemptID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, attemptID)
	return nil
}
