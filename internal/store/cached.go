package store

import (
	"context"
	"errors"
	"time"

	"quacker/backend/internal/models"
	"quacker/backend/pkg/cache"
	"quacker/backend/pkg/logger"
	"quacker/backend/shared/redis"
)

const headKey = "chat:head"

// HeadCache remembers the highest id known to be committed
type HeadCache interface {
	// Head returns the cached head; ok is false on a miss.
	Head(ctx context.Context) (id int64, ok bool, err error)
	// Raise moves the head up to id; lower values are ignored.
	Raise(ctx context.Context, id int64) error
}

// CachedLog answers polls past the known head without touching the log.
// Most polls ask for ids above the head, so this keeps the idle polling
// cost off the database.
type CachedLog struct {
	Log
	head HeadCache
	log  *logger.Logger
}

// NewCachedLog decorates next with head
func NewCachedLog(next Log, head HeadCache, log *logger.Logger) *CachedLog {
	return &CachedLog{Log: next, head: head, log: log}
}

func (c *CachedLog) Range(ctx context.Context, req models.RangeRequest) ([]models.Message, error) {
	if req.From > 0 && !req.Empty() {
		head, ok, err := c.head.Head(ctx)
		switch {
		case err != nil:
			c.log.Warn("head cache read failed", "error", err.Error())
		case ok && req.From > head:
			return []models.Message{}, nil
		}
	}

	messages, err := c.Log.Range(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(messages) > 0 {
		c.raise(ctx, messages[0].ID)
	}
	return messages, nil
}

func (c *CachedLog) Insert(ctx context.Context, author, body string) (models.Message, error) {
	msg, err := c.Log.Insert(ctx, author, body)
	if err != nil {
		return msg, err
	}
	c.raise(ctx, msg.ID)
	return msg, nil
}

func (c *CachedLog) raise(ctx context.Context, id int64) {
	if err := c.head.Raise(ctx, id); err != nil {
		c.log.Warn("head cache update failed", "id", id, "error", err.Error())
	}
}

// MemoryHeadCache keeps the head in the process-local TTL cache. Only
// correct when this process is the sole writer.
type MemoryHeadCache struct {
	c *cache.Cache
}

// NewMemoryHeadCache wraps c
func NewMemoryHeadCache(c *cache.Cache) *MemoryHeadCache {
	return &MemoryHeadCache{c: c}
}

func (m *MemoryHeadCache) Head(context.Context) (int64, bool, error) {
	v, ok := m.c.Get(headKey)
	if !ok {
		return 0, false, nil
	}
	return v.(int64), true, nil
}

func (m *MemoryHeadCache) Raise(_ context.Context, id int64) error {
	m.c.Update(headKey, func(old interface{}, found bool) interface{} {
		if found && old.(int64) >= id {
			return old
		}
		return id
	})
	return nil
}

// RedisHeadCache shares the head between server instances
type RedisHeadCache struct {
	client *redis.RedisClient
	ttl    time.Duration
}

// NewRedisHeadCache uses client; entries expire after ttl
func NewRedisHeadCache(client *redis.RedisClient, ttl time.Duration) *RedisHeadCache {
	return &RedisHeadCache{client: client, ttl: ttl}
}

func (r *RedisHeadCache) Head(ctx context.Context) (int64, bool, error) {
	id, err := r.client.GetInt64(ctx, headKey)
	if errors.Is(err, redis.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

func (r *RedisHeadCache) Raise(ctx context.Context, id int64) error {
	_, err := r.client.RaiseInt64(ctx, headKey, id, r.ttl)
	return err
}
