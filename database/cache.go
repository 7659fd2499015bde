/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

var ErrCacheMiss = errors.New("database: cache miss")

// PointCache holds single entities looked up by primary key. Entries are
// grouped per table under a generation; Invalidate drops every entry of a
// table at once by moving it to a new generation. A lookup reads the
// generation first and stores what it read under that same generation, so a
// row read before a concurrent write lands where no later lookup finds it.
type PointCache interface {
	Generation(ctx context.Context, table string) (string, error)
	Get(ctx context.Context, table, gen, key string, dest interface{}) error
	Set(ctx context.Context, table, gen, key string, value interface{}) error
	Invalidate(ctx context.Context, table string) error
	Close() error
}

// NewPointCache builds the cache selected by cfg, or returns nil when no
// cache type is configured.
func NewPointCache(ctx context.Context, cfg CacheConfig) (PointCache, error) {
	switch cfg.Type {
	case "":
		return nil, nil
	case "memory":
		return NewMemoryCache(cfg.TTL, cfg.CleanupInterval), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:         cfg.RedisAddr,
			Password:     cfg.RedisPassword,
			DB:           cfg.RedisDB,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		})
		c, err := NewRedisCache(ctx, client, cfg.KeyPrefix, cfg.TTL)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("%w: unsupported cache type %q", ErrConfiguration, cfg.Type)
	}
}

// MemoryCache keeps msgpack-encoded entities in process memory.
type MemoryCache struct {
	store *cache.Cache
	mu    sync.Mutex
	gens  map[string]uint64
}

func NewMemoryCache(ttl, cleanup time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	return &MemoryCache{
		store: cache.New(ttl, cleanup),
		gens:  make(map[string]uint64),
	}
}

func (c *MemoryCache) Generation(ctx context.Context, table string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return strconv.FormatUint(c.gens[table], 10), nil
}

func entryKey(table, gen, key string) string {
	return table + ":" + gen + ":" + key
}

func (c *MemoryCache) Get(ctx context.Context, table, gen, key string, dest interface{}) error {
	v, ok := c.store.Get(entryKey(table, gen, key))
	if !ok {
		return ErrCacheMiss
	}
	if err := msgpack.Unmarshal(v.([]byte), dest); err != nil {
		return fmt.Errorf("cache unmarshal error: %w", err)
	}
	return nil
}

func (c *MemoryCache) Set(ctx context.Context, table, gen, key string, value interface{}) error {
	b, err := msgpack.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal error: %w", err)
	}
	c.store.SetDefault(entryKey(table, gen, key), b)
	return nil
}

func (c *MemoryCache) Invalidate(ctx context.Context, table string) error {
	c.mu.Lock()
	c.gens[table]++
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Close() error {
	c.store.Flush()
	return nil
}

// RedisCache shares entries between processes. The generation of each table
// lives in its own counter key so invalidation is a single INCR.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache pings the server before returning.
func NewRedisCache(ctx context.Context, client *redis.Client, prefix string, ttl time.Duration) (*RedisCache, error) {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis unavailable: %w", err)
	}
	if prefix == "" {
		prefix = "typedrepo"
	}
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}, nil
}

func (c *RedisCache) genKey(table string) string {
	return c.prefix + ":gen:" + table
}

func (c *RedisCache) Generation(ctx context.Context, table string) (string, error) {
	gen, err := c.client.Get(ctx, c.genKey(table)).Result()
	if err == redis.Nil {
		return "0", nil
	}
	if err != nil {
		return "", fmt.Errorf("cache generation error: %w", err)
	}
	return gen, nil
}

func (c *RedisCache) Get(ctx context.Context, table, gen, key string, dest interface{}) error {
	b, err := c.client.Get(ctx, c.prefix+":"+entryKey(table, gen, key)).Bytes()
	if err == redis.Nil {
		return ErrCacheMiss
	}
	if err != nil {
		return fmt.Errorf("cache get error: %w", err)
	}
	if err := msgpack.Unmarshal(b, dest); err != nil {
		return fmt.Errorf("cache unmarshal error: %w", err)
	}
	return nil
}

func (c *RedisCache) Set(ctx context.Context, table, gen, key string, value interface{}) error {
	b, err := msgpack.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal error: %w", err)
	}
	if err := c.client.Set(ctx, c.prefix+":"+entryKey(table, gen, key), b, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set error: %w", err)
	}
	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context, table string) error {
	if err := c.client.Incr(ctx, c.genKey(table)).Err(); err != nil {
		return fmt.Errorf("cache invalidate error: %w", err)
	}
	return nil
}

func (c *RedisCache) Close() error { return c.client.Close() }
