// Package cache is a read-through Redis cache in front of the Store
// Gateway's GetTemplate RPC, so a hot execution with many batches doesn't
// refetch the same template row on every recipient. Any Redis failure
// degrades to a direct store fetch.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/collection-dispatcher/internal/store"
)

// TemplateLoader is the underlying source of truth the cache sits in front
// of.
type TemplateLoader interface {
	GetTemplate(ctx context.Context, id string) (*store.EmailTemplate, error)
}

// TemplateCache wraps a TemplateLoader with a Redis-backed cache. Any Redis
// failure degrades to a direct passthrough call rather than failing the
// request — a cold or unreachable cache must never block dispatch.
type TemplateCache struct {
	loader TemplateLoader
	redis  *redis.Client
	ttl    time.Duration
}

// New constructs a TemplateCache. redisClient may be nil, in which case the
// cache always passes through to the loader.
func New(loader TemplateLoader, redisClient *redis.Client, ttl time.Duration) *TemplateCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &TemplateCache{loader: loader, redis: redisClient, ttl: ttl}
}

func cacheKey(id string) string {
	return fmt.Sprintf("template:%s", id)
}

// GetTemplate returns the template for id, preferring a cached copy.
func (c *TemplateCache) GetTemplate(ctx context.Context, id string) (*store.EmailTemplate, error) {
	if c.redis == nil {
		return c.loader.GetTemplate(ctx, id)
	}

	if tmpl, ok := c.read(ctx, id); ok {
		return tmpl, nil
	}

	tmpl, err := c.loader.GetTemplate(ctx, id)
	if err != nil {
		return nil, err
	}

	c.write(ctx, id, tmpl)
	return tmpl, nil
}

// read attempts a cache hit, logging nothing on miss or error — a miss is
// the expected cold-start path and a Redis error degrades silently to the
// loader.
func (c *TemplateCache) read(ctx context.Context, id string) (*store.EmailTemplate, bool) {
	data, err := c.redis.Get(ctx, cacheKey(id)).Bytes()
	if err != nil {
		return nil, false
	}
	var tmpl store.EmailTemplate
	if err := json.Unmarshal(data, &tmpl); err != nil {
		return nil, false
	}
	return &tmpl, true
}

func (c *TemplateCache) write(ctx context.Context, id string, tmpl *store.EmailTemplate) {
	data, err := json.Marshal(tmpl)
	if err != nil {
		return
	}
	c.redis.Set(ctx, cacheKey(id), data, c.ttl)
}
