package ports

import (
	"context"

	"github.com/jupiterclapton/cenackle/services/feed-engine/internal/core/domain"
)

// --- DRIVING (Ce que le service expose) ---

type FeedService interface {
	// GetFeed sert une page de feed. L'identité est déjà résolue dans req.ViewerID.
	GetFeed(ctx context.Context, req domain.FeedRequest) (*domain.Page, error)
}
