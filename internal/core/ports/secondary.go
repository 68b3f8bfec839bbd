package ports

import (
	"context"
	"errors"
	"time"

	"github.com/jupiterclapton/cenackle/services/feed-engine/internal/core/domain"
)

// --- DRIVEN (Ce dont le service a besoin) ---

// PageQuery est tout ce dont le query builder a besoin pour une page
type PageQuery struct {
	Type     domain.FeedType
	ViewerID string
	OwnerID  string
	// Visibility n'est utilisé que par le feed profile (résolu en amont)
	Visibility []domain.Visibility
	After      *domain.Position
	// Limit est la taille de page demandée ; le store renvoie jusqu'à Limit+1 lignes
	Limit int
}

// PostStore lit les pages de posts (réplique en lecture)
type PostStore interface {
	FetchPage(ctx context.Context, q PageQuery) ([]domain.Post, error)
}

// RelationReader fournit le pré-contrôle de confidentialité du feed profile
type RelationReader interface {
	GetOwner(ctx context.Context, ownerID string) (domain.Owner, error)
	GetRelation(ctx context.Context, viewerID, ownerID string) (domain.Relation, error)
}

// EnrichmentStore : recherches ensemblistes, une requête par dimension pour toute la page
type EnrichmentStore interface {
	TaggedUsers(ctx context.Context, postIDs []string) (map[string][]domain.TaggedUser, error)
	LikedPostIDs(ctx context.Context, viewerID string, postIDs []string) (map[string]struct{}, error)
	SavedPostIDs(ctx context.Context, viewerID string, postIDs []string) (map[string]struct{}, error)
}

// ErrCacheMiss est renvoyé par FeedCache.Get quand la clé est absente
var ErrCacheMiss = errors.New("cache miss")

// FeedCache est le cache distribué (optionnel)
type FeedCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, body []byte, ttl time.Duration) error
}

// RateCounter est la primitive atomique incrément + expiration
type RateCounter interface {
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// RateLimiter décide pour une identité ; un limiter peut s'appuyer sur un RateCounter ou non
type RateLimiter interface {
	Allow(ctx context.Context, identity string) (RateDecision, error)
}

type RateDecision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// IdentityResolver traduit un token opaque en user id interne ("" = anonyme)
type IdentityResolver interface {
	Resolve(ctx context.Context, token string) (string, error)
}
