package services

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jupiterclapton/cenackle/services/feed-engine/internal/core/domain"
	"github.com/jupiterclapton/cenackle/services/feed-engine/internal/core/ports"
)

const cacheKeyPrefix = "feed:v1"

// CacheGateway est le cache-aside devant le store.
// Toute erreur du backend est traitée comme un miss : le cache ne fait jamais échouer une requête.
type CacheGateway struct {
	cache   ports.FeedCache // nil = cache désactivé
	ttl     time.Duration
	timeout time.Duration
}

func NewCacheGateway(cache ports.FeedCache, ttl, timeout time.Duration) *CacheGateway {
	return &CacheGateway{cache: cache, ttl: ttl, timeout: timeout}
}

func (g *CacheGateway) Enabled() bool {
	return g != nil && g.cache != nil
}

// CacheKey compose toutes les dimensions qui influencent la réponse.
// Sans le viewer dans la clé, les isLiked/isSaved d'un utilisateur fuiraient vers un autre.
func CacheKey(req domain.FeedRequest) string {
	owner := req.OwnerID
	if owner == "" {
		owner = "none"
	}
	viewer := req.ViewerID
	if viewer == "" {
		viewer = "anonymous"
	}
	cursor := req.Cursor
	if cursor == "" {
		cursor = "first"
	}
	return strings.Join([]string{
		cacheKeyPrefix,
		string(req.Type),
		owner,
		viewer,
		cursor,
		strconv.Itoa(req.PageSize),
	}, ":")
}

// Get renvoie (body, true) sur un hit ; tout le reste est un miss.
func (g *CacheGateway) Get(ctx context.Context, key string) ([]byte, bool) {
	if !g.Enabled() {
		return nil, false
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	body, err := g.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ports.ErrCacheMiss) {
			slog.Warn("⚠️ Cache read failed, falling through to store", "key", key, "error", err)
		}
		return nil, false
	}
	return body, true
}

// Set est best-effort : un échec est loggé puis ignoré.
func (g *CacheGateway) Set(ctx context.Context, key string, body []byte) {
	if !g.Enabled() {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if err := g.cache.Set(ctx, key, body, g.ttl); err != nil {
		slog.Warn("⚠️ Cache write failed", "key", key, "error", err)
	}
}
