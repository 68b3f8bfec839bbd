package services

import "github.com/jupiterclapton/cenackle/services/feed-engine/internal/core/domain"

// SplitPage retire la ligne sentinelle : le store renvoie limit+1 lignes
// pour savoir s'il existe une page suivante sans COUNT.
func SplitPage(rows []domain.Post, limit int) ([]domain.Post, bool) {
	if len(rows) > limit {
		return rows[:limit], true
	}
	return rows, false
}

// AssemblePage construit la réponse et frappe le cursor depuis la dernière ligne.
// Déterministe pour un même état du store.
func AssemblePage(items []domain.FeedItem, hasMore bool, feedType domain.FeedType) *domain.Page {
	if items == nil {
		items = []domain.FeedItem{}
	}

	page := &domain.Page{Items: items, HasMore: hasMore}
	if hasMore && len(items) > 0 {
		token := domain.EncodeCursor(PositionFor(feedType, &items[len(items)-1].Post))
		page.NextCursor = &token
	}
	return page
}

// PositionFor donne la position de reprise d'une ligne selon l'ordre du feed
func PositionFor(feedType domain.FeedType, p *domain.Post) domain.Position {
	if feedType == domain.FeedExplore {
		return domain.RankedPosition(p.Score(), p.CreatedAt, p.ID)
	}
	return domain.CompoundPosition(p.CreatedAt, p.ID)
}

func emptyPage() *domain.Page {
	return &domain.Page{Items: []domain.FeedItem{}}
}
