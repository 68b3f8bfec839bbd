package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/jupiterclapton/cenackle/services/feed-engine/internal/core/ports"
)

var _ ports.RateLimiter = (*TokenBucket)(nil)

// maxIdentities borne la mémoire ; au-delà on purge les buckets pleins
const maxIdentities = 10_000

// TokenBucket est le limiter local utilisé quand Redis n'est pas configuré.
// Un bucket par identité, rechargé à limit/window, capacité limit.
type TokenBucket struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	every   rate.Limit
	burst   int
	now     func() time.Time
}

func NewTokenBucket(limit int, window time.Duration) *TokenBucket {
	return &TokenBucket{
		buckets: make(map[string]*rate.Limiter),
		every:   rate.Limit(float64(limit) / window.Seconds()),
		burst:   limit,
		now:     time.Now,
	}
}

func (b *TokenBucket) Allow(_ context.Context, identity string) (ports.RateDecision, error) {
	now := b.now()
	lim := b.limiterFor(identity, now)

	res := lim.ReserveN(now, 1)
	if !res.OK() {
		return ports.RateDecision{Allowed: false, RetryAfter: time.Second}, nil
	}
	if delay := res.DelayFrom(now); delay > 0 {
		// On ne consomme pas de jeton pour une requête refusée
		res.CancelAt(now)
		return ports.RateDecision{Allowed: false, RetryAfter: delay}, nil
	}

	return ports.RateDecision{Allowed: true}, nil
}

func (b *TokenBucket) limiterFor(identity string, now time.Time) *rate.Limiter {
	b.mu.Lock()
	defer b.mu.Unlock()

	if lim, ok := b.buckets[identity]; ok {
		return lim
	}
	if len(b.buckets) >= maxIdentities {
		b.evictFull(now)
	}
	lim := rate.NewLimiter(b.every, b.burst)
	b.buckets[identity] = lim
	return lim
}

// evictFull retire les buckets revenus à pleine capacité : les recréer ne change rien
func (b *TokenBucket) evictFull(now time.Time) {
	for id, lim := range b.buckets {
		if lim.TokensAt(now) >= float64(b.burst) {
			delete(b.buckets, id)
		}
	}
}
