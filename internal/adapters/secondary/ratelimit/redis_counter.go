package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jupiterclapton/cenackle/services/feed-engine/internal/core/ports"
)

var _ ports.RateCounter = (*RedisCounter)(nil)

// RedisCounter : INCR + EXPIRE dans une transaction, partagé entre toutes les instances
type RedisCounter struct {
	client redis.Cmdable
}

func NewRedisCounter(client redis.Cmdable) *RedisCounter {
	return &RedisCounter{client: client}
}

func (c *RedisCounter) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	// La fenêtre est dans la clé, rafraîchir le TTL ne la prolonge pas
	pipe.Expire(ctx, key, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}
