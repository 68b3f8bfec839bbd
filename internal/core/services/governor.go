package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jupiterclapton/cenackle/services/feed-engine/internal/core/domain"
	"github.com/jupiterclapton/cenackle/services/feed-engine/internal/core/ports"
)

// Governor throttle par identité devant tout le pipeline.
// Si son backend est indisponible, il laisse passer (fail-open) : la lecture des feeds
// reste disponible même sans store de rate limit.
type Governor struct {
	limiter ports.RateLimiter // nil = pas de limite
	timeout time.Duration
}

func NewGovernor(limiter ports.RateLimiter, timeout time.Duration) *Governor {
	return &Governor{limiter: limiter, timeout: timeout}
}

// Check renvoie nil si la requête passe, un *domain.RateLimitedError sinon.
func (g *Governor) Check(ctx context.Context, identity string) error {
	if g == nil || g.limiter == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	decision, err := g.limiter.Allow(ctx, identity)
	if err != nil {
		slog.Warn("⚠️ Rate limit store unavailable, allowing request", "identity", identity, "error", err)
		return nil
	}
	if !decision.Allowed {
		return &domain.RateLimitedError{RetryAfter: decision.RetryAfter}
	}
	return nil
}

// FixedWindowLimiter compte les requêtes par (préfixe, identité, fenêtre)
// via un RateCounter atomique partagé (Redis en prod).
type FixedWindowLimiter struct {
	counter ports.RateCounter
	prefix  string
	max     int64
	window  time.Duration
	now     func() time.Time
}

func NewFixedWindowLimiter(counter ports.RateCounter, prefix string, limit int64, window time.Duration) *FixedWindowLimiter {
	return &FixedWindowLimiter{
		counter: counter,
		prefix:  prefix,
		max:     limit,
		window:  window,
		now:     time.Now,
	}
}

func (l *FixedWindowLimiter) Allow(ctx context.Context, identity string) (ports.RateDecision, error) {
	now := l.now()
	bucket := now.UnixNano() / int64(l.window)
	key := fmt.Sprintf("rl:%s:%s:%d", l.prefix, identity, bucket)

	// La clé expire avec sa fenêtre, pas besoin de nettoyage
	count, err := l.counter.Incr(ctx, key, l.window)
	if err != nil {
		return ports.RateDecision{}, fmt.Errorf("incr %s: %w", key, err)
	}

	if count > l.max {
		windowEnd := time.Unix(0, (bucket+1)*int64(l.window))
		return ports.RateDecision{Allowed: false, RetryAfter: windowEnd.Sub(now)}, nil
	}
	return ports.RateDecision{Allowed: true}, nil
}
