package platform

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"trigger-console/internal/metadata"
)

const cacheKeyPrefix = "trigger-console:"

// ErrCacheMiss is returned by a Cache when the key is absent or expired.
var ErrCacheMiss = errors.New("cache miss")

// Cache stores serialized lookup results.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Cached answers object type and class lookups from a cache before asking the
// wrapped Service. Developer name checks, fetches and writes always go
// through, since their answers change with every deployment.
type Cached struct {
	Service
	cache Cache
	ttl   time.Duration
}

// NewCached wraps svc. A zero ttl disables caching.
func NewCached(svc Service, cache Cache, ttl time.Duration) *Cached {
	return &Cached{Service: svc, cache: cache, ttl: ttl}
}

func (c *Cached) ObjectTypeExists(ctx context.Context, name string) (bool, error) {
	key := cacheKeyPrefix + "object:" + name
	var exists bool
	if c.lookup(ctx, key, &exists) {
		return exists, nil
	}
	exists, err := c.Service.ObjectTypeExists(ctx, name)
	if err != nil {
		return false, err
	}
	// Only positive answers are cached: a missing type may be deployed soon.
	if exists {
		c.store(ctx, key, exists)
	}
	return exists, nil
}

func (c *Cached) ClassDetails(ctx context.Context, className string, event metadata.EventType) (ClassDetails, error) {
	key := cacheKeyPrefix + "class:" + className + ":" + string(event)
	var details ClassDetails
	if c.lookup(ctx, key, &details) {
		return details, nil
	}
	details, err := c.Service.ClassDetails(ctx, className, event)
	if err != nil {
		return ClassDetails{}, err
	}
	if details.Usable() {
		c.store(ctx, key, details)
	}
	return details, nil
}

func (c *Cached) lookup(ctx context.Context, key string, out any) bool {
	if c.ttl <= 0 {
		return false
	}
	raw, err := c.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			log.Warnf("platform cache get %s: %v", key, err)
		}
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		log.Warnf("platform cache decode %s: %v", key, err)
		return false
	}
	return true
}

func (c *Cached) store(ctx context.Context, key string, v any) {
	if c.ttl <= 0 {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, key, raw, c.ttl); err != nil {
		log.Warnf("platform cache set %s: %v", key, err)
	}
}

// RedisCache is a Cache backed by a Redis server.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to addr and pings it.
func NewRedisCache(ctx context.Context, addr, password string, db int) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return &RedisCache{client: client}, nil
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	return raw, err
}

func (r *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

// Close releases the Redis connection pool.
func (r *RedisCache) Close() error {
	return r.client.Close()
}

// MemoryCache is an in-process Cache, used when no Redis is configured.
// Expired entries are evicted in the background until Close.
type MemoryCache struct {
	items *ttlcache.Cache[string, []byte]
}

func NewMemoryCache() *MemoryCache {
	items := ttlcache.New[string, []byte](
		ttlcache.WithDisableTouchOnHit[string, []byte](),
	)
	go items.Start()
	return &MemoryCache{items: items}
}

func (m *MemoryCache) Get(_ context.Context, key string) ([]byte, error) {
	item := m.items.Get(key)
	if item == nil || item.IsExpired() {
		return nil, ErrCacheMiss
	}
	return item.Value(), nil
}

func (m *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.items.Set(key, value, ttl)
	return nil
}

// Close stops the eviction loop.
func (m *MemoryCache) Close() error {
	m.items.Stop()
	return nil
}
