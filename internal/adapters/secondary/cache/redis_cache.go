package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jupiterclapton/cenackle/services/feed-engine/internal/core/ports"
)

var _ ports.FeedCache = (*RedisFeedCache)(nil)

// RedisFeedCache stocke les pages déjà sérialisées (GET / SET EX)
type RedisFeedCache struct {
	client redis.Cmdable
}

func NewRedisFeedCache(client redis.Cmdable) *RedisFeedCache {
	return &RedisFeedCache{client: client}
}

func (c *RedisFeedCache) Get(ctx context.Context, key string) ([]byte, error) {
	body, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ports.ErrCacheMiss
		}
		return nil, err
	}
	return body, nil
}

func (c *RedisFeedCache) Set(ctx context.Context, key string, body []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, body, ttl).Err()
}
