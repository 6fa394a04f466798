// Copyright 2025 achetronic
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package rediscache wraps a registry.Registry with a TTL'd Redis cache of
// its lookups. It caches model metadata only — never a conversation, a
// trace, or any Controller state, which spec.md's no-persisted-state
// non-goal still forbids.
package rediscache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/achetronic/deepconf-go/registry"
)

const defaultTTL = 6 * time.Hour

// Cache implements registry.Registry by checking Redis first and falling
// back to the wrapped registry.Registry on a miss, populating Redis with
// what it found.
type Cache struct {
	client   *redis.Client
	inner    registry.Registry
	ttl      time.Duration
	keyspace string
}

// Config configures Cache.
type Config struct {
	Addr     string
	Password string
	DB       int

	// TTL is how long a cached lookup stays valid. Defaults to 6 hours.
	TTL time.Duration

	// Keyspace prefixes every Redis key Cache writes, so multiple deployed
	// registries can share one Redis instance without colliding.
	Keyspace string
}

// New connects to Redis and wraps inner with a TTL'd cache.
func New(cfg Config, inner registry.Registry) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("rediscache: failed to connect to Redis: %w", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	keyspace := cfg.Keyspace
	if keyspace == "" {
		keyspace = "deepconf:modelinfo"
	}

	return &Cache{client: client, inner: inner, ttl: ttl, keyspace: keyspace}, nil
}

type cachedInfo struct {
	ContextWindow    int `json:"context_window"`
	DefaultMaxTokens int `json:"default_max_tokens"`
}

func (c *Cache) key(modelID string) string {
	return fmt.Sprintf("%s:%s", c.keyspace, modelID)
}

// ContextWindow implements registry.Registry.
func (c *Cache) ContextWindow(modelID string) int {
	info, ok := c.lookup(modelID)
	if ok {
		return info.ContextWindow
	}
	return c.inner.ContextWindow(modelID)
}

// DefaultMaxTokens implements registry.Registry.
func (c *Cache) DefaultMaxTokens(modelID string) int {
	info, ok := c.lookup(modelID)
	if ok {
		return info.DefaultMaxTokens
	}
	return c.inner.DefaultMaxTokens(modelID)
}

// lookup checks Redis, filling it from the wrapped registry on a miss.
func (c *Cache) lookup(modelID string) (cachedInfo, bool) {
	ctx := context.Background()
	key := c.key(modelID)

	if data, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var info cachedInfo
		if err := json.Unmarshal(data, &info); err == nil {
			return info, true
		}
	}

	info := cachedInfo{
		ContextWindow:    c.inner.ContextWindow(modelID),
		DefaultMaxTokens: c.inner.DefaultMaxTokens(modelID),
	}
	data, err := json.Marshal(info)
	if err != nil {
		slog.Warn("rediscache: failed to marshal model info", "model", modelID, "error", err)
		return info, true
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		slog.Warn("rediscache: failed to populate cache", "model", modelID, "error", err)
	}
	return info, true
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}

var _ registry.Registry = (*Cache)(nil)
