package services

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/jupiterclapton/cenackle/services/feed-engine/internal/core/domain"
	"github.com/jupiterclapton/cenackle/services/feed-engine/internal/core/ports"
)

// Enricher attache tags, likes et saves à une page en un nombre constant de requêtes
// (1 pour un anonyme, 3 sinon), lancées en parallèle. Pas de N+1.
type Enricher struct {
	store ports.EnrichmentStore
}

func NewEnricher(store ports.EnrichmentStore) *Enricher {
	return &Enricher{store: store}
}

func (e *Enricher) Enrich(ctx context.Context, viewerID string, posts []domain.Post) ([]domain.FeedItem, error) {
	if len(posts) == 0 {
		return []domain.FeedItem{}, nil
	}

	ids := make([]string, len(posts))
	for i := range posts {
		ids[i] = posts[i].ID
	}

	var (
		tags  map[string][]domain.TaggedUser
		liked map[string]struct{}
		saved map[string]struct{}
	)

	// Fan-out / fan-in : si une recherche échoue, les autres sont annulées
	// et aucun enrichissement partiel ne sort.
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		tags, err = e.store.TaggedUsers(gctx, ids)
		if err != nil {
			return fmt.Errorf("tagged users: %w", err)
		}
		return nil
	})

	if viewerID != "" {
		g.Go(func() error {
			var err error
			liked, err = e.store.LikedPostIDs(gctx, viewerID, ids)
			if err != nil {
				return fmt.Errorf("liked posts: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			var err error
			saved, err = e.store.SavedPostIDs(gctx, viewerID, ids)
			if err != nil {
				return fmt.Errorf("saved posts: %w", err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return MergeEnrichment(posts, tags, liked, saved), nil
}

// MergeEnrichment est pur : tags vides et booléens à false par défaut.
func MergeEnrichment(
	posts []domain.Post,
	tags map[string][]domain.TaggedUser,
	liked, saved map[string]struct{},
) []domain.FeedItem {
	items := make([]domain.FeedItem, len(posts))
	for i, p := range posts {
		tagged := tags[p.ID]
		if tagged == nil {
			tagged = []domain.TaggedUser{}
		}
		_, isLiked := liked[p.ID]
		_, isSaved := saved[p.ID]

		items[i] = domain.FeedItem{
			Post:        p,
			TaggedUsers: tagged,
			IsLiked:     isLiked,
			IsSaved:     isSaved,
		}
	}
	return items
}
