package trackingkey

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mmeshcher/supplier-portal/internal/model"
)

type memoryEntry struct {
	reg       model.TrackingKeyRegistry
	expiresAt time.Time
}

// MemoryCache хранит реестры в памяти процесса.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, scope string) (*model.TrackingKeyRegistry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[scope]
	if !ok || !c.now().Before(e.expiresAt) {
		return nil, nil
	}
	reg := e.reg
	return &reg, nil
}

func (c *MemoryCache) Set(_ context.Context, scope string, reg model.TrackingKeyRegistry, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[scope] = memoryEntry{reg: reg, expiresAt: c.now().Add(ttl)}
	return nil
}

// RedisCache хранит реестры в Redis, чтобы несколько экземпляров портала использовали общий результат.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisCache(client redis.UniversalClient) *RedisCache {
	return &RedisCache{client: client, prefix: "trackingkey:"}
}

func (c *RedisCache) Get(ctx context.Context, scope string) (*model.TrackingKeyRegistry, error) {
	data, err := c.client.Get(ctx, c.prefix+scope).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var reg model.TrackingKeyRegistry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("decode registry: %w", err)
	}
	return &reg, nil
}

func (c *RedisCache) Set(ctx context.Context, scope string, reg model.TrackingKeyRegistry, ttl time.Duration) error {
	data, err := json.Marshal(reg)
	if err != nil {
		return fmt.Errorf("encode registry: %w", err)
	}
	if err := c.client.Set(ctx, c.prefix+scope, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
