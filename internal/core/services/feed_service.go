package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/jupiterclapton/cenackle/services/feed-engine/internal/core/domain"
	"github.com/jupiterclapton/cenackle/services/feed-engine/internal/core/ports"
)

type Options struct {
	DefaultPageSize int
	MaxPageSize     int
	StoreTimeout    time.Duration
}

func DefaultOptions() Options {
	return Options{
		DefaultPageSize: domain.DefaultPageSize,
		MaxPageSize:     domain.MaxPageSize,
		StoreTimeout:    5 * time.Second,
	}
}

// FeedService orchestre le pipeline :
// governor -> cache (lecture) -> visibilité + requête -> enrichissement -> assemblage -> cache (écriture)
type FeedService struct {
	posts     ports.PostStore
	relations ports.RelationReader
	enricher  *Enricher
	cache     *CacheGateway
	governor  *Governor
	opts      Options
	tracer    trace.Tracer
}

func NewFeedService(
	posts ports.PostStore,
	relations ports.RelationReader,
	enrichment ports.EnrichmentStore,
	cache *CacheGateway,
	governor *Governor,
	opts Options,
) *FeedService {
	return &FeedService{
		posts:     posts,
		relations: relations,
		enricher:  NewEnricher(enrichment),
		cache:     cache,
		governor:  governor,
		opts:      opts,
		tracer:    otel.Tracer("feed-engine"),
	}
}

func (s *FeedService) GetFeed(ctx context.Context, req domain.FeedRequest) (*domain.Page, error) {
	ctx, span := s.tracer.Start(ctx, "feed.GetFeed", trace.WithAttributes(
		attribute.String("feed.type", string(req.Type)),
		attribute.Bool("feed.anonymous", req.Anonymous()),
	))
	defer span.End()

	page, err := s.getFeed(ctx, req)
	if err != nil && domain.KindOf(err) == domain.KindUnexpected {
		span.RecordError(err)
		span.SetStatus(codes.Error, "feed failed")
	}
	return page, err
}

func (s *FeedService) getFeed(ctx context.Context, req domain.FeedRequest) (*domain.Page, error) {
	// 1. Fail fast : validation et auth avant tout appel cache / store
	req, err := req.Normalize(s.opts.DefaultPageSize, s.opts.MaxPageSize)
	if err != nil {
		return nil, err
	}

	after, err := decodeCursorFor(req.Type, req.Cursor)
	if err != nil {
		return nil, err
	}

	// 2. Rate governor (fail-open)
	if err := s.governor.Check(ctx, rateIdentity(req)); err != nil {
		return nil, err
	}

	// 3. Cache-aside (following n'est jamais caché)
	var cacheKey string
	if req.Type.Cacheable() && s.cache.Enabled() {
		cacheKey = CacheKey(req)
		if body, ok := s.cache.Get(ctx, cacheKey); ok {
			var page domain.Page
			if err := json.Unmarshal(body, &page); err == nil {
				slog.Debug("Feed cache hit", "key", cacheKey)
				return &page, nil
			}
			slog.Warn("⚠️ Corrupted cache entry, ignoring", "key", cacheKey)
		}
	}

	// 4. Store (timeout plus long que le cache : c'est la source de vérité)
	storeCtx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	page, err := s.loadPage(storeCtx, req, after)
	if err != nil {
		return nil, err
	}

	// 5. Écriture cache
	if cacheKey != "" {
		if body, err := json.Marshal(page); err == nil {
			s.cache.Set(ctx, cacheKey, body)
		}
	}

	return page, nil
}

func (s *FeedService) loadPage(ctx context.Context, req domain.FeedRequest, after *domain.Position) (*domain.Page, error) {
	q := ports.PageQuery{
		Type:     req.Type,
		ViewerID: req.ViewerID,
		OwnerID:  req.OwnerID,
		After:    after,
		Limit:    req.PageSize,
	}

	if req.Type == domain.FeedProfile {
		decision, err := s.resolveProfile(ctx, req.ViewerID, req.OwnerID)
		if err != nil {
			return nil, err
		}
		if decision.Deny {
			return emptyPage(), nil
		}
		q.Visibility = decision.Visibility
	}

	rows, err := s.posts.FetchPage(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("fetch %s page: %w", req.Type, err)
	}

	rows, hasMore := SplitPage(rows, req.PageSize)

	items, err := s.enricher.Enrich(ctx, req.ViewerID, rows)
	if err != nil {
		return nil, fmt.Errorf("enrich %s page: %w", req.Type, err)
	}

	return AssemblePage(items, hasMore, req.Type), nil
}

// resolveProfile lance en parallèle la lecture de l'owner et la relation viewer -> owner,
// puis applique les règles de visibilité une seule fois, avant toute lecture de posts.
func (s *FeedService) resolveProfile(ctx context.Context, viewerID, ownerID string) (domain.Decision, error) {
	var (
		owner    domain.Owner
		relation domain.Relation
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		owner, err = s.relations.GetOwner(gctx, ownerID)
		if err != nil {
			return fmt.Errorf("get owner: %w", err)
		}
		return nil
	})

	if viewerID != "" && viewerID != ownerID {
		g.Go(func() error {
			var err error
			relation, err = s.relations.GetRelation(gctx, viewerID, ownerID)
			if err != nil {
				return fmt.Errorf("get relation: %w", err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return domain.Decision{}, err
	}

	owner.ID = ownerID
	return domain.ResolveVisibility(domain.VisibilityInput{
		ViewerID: viewerID,
		Owner:    owner,
		Relation: relation,
	}), nil
}

// decodeCursorFor vérifie aussi que la forme du cursor correspond à l'ordre du feed
func decodeCursorFor(feedType domain.FeedType, token string) (*domain.Position, error) {
	if token == "" {
		return nil, nil
	}

	pos, err := domain.DecodeCursor(token)
	if err != nil {
		return nil, err
	}

	switch feedType {
	case domain.FeedFollowing:
		if pos.Kind != domain.CursorCompound {
			return nil, domain.NewValidationError("cursor", "following feed expects a timestamp|id cursor")
		}
	case domain.FeedProfile:
		if pos.Kind == domain.CursorRanked {
			return nil, domain.NewValidationError("cursor", "ranked cursor not valid for profile feed")
		}
	case domain.FeedExplore:
		if pos.Kind == domain.CursorCompound {
			return nil, domain.NewValidationError("cursor", "explore feed expects a ranked cursor")
		}
	}
	return &pos, nil
}

func rateIdentity(req domain.FeedRequest) string {
	if req.ViewerID != "" {
		return "user:" + req.ViewerID
	}
	if req.ClientIP != "" {
		return "ip:" + req.ClientIP
	}
	return "anonymous"
}
