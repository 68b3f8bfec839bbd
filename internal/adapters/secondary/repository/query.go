package repository

import (
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jupiterclapton/cenackle/services/feed-engine/internal/core/domain"
	"github.com/jupiterclapton/cenackle/services/feed-engine/internal/core/ports"
)

// Projection commune : post + champs auteur dénormalisés par jointure.
// L'auteur n'est jamais stocké avec le post, une modification de profil se voit tout de suite.
const baseProjection = `
	SELECT p.id::text, p.author_id::text, p.content,
	       COALESCE(p.media_urls, '{}'), COALESCE(p.media_type, 'none'), COALESCE(p.tags, '{}'),
	       p.visibility, p.likes_count, p.comments_count, p.created_at,
	       pr.username, COALESCE(pr.full_name, ''), COALESCE(pr.avatar_url, ''),
	       pr.is_verified, pr.account_type, COALESCE(pr.business_name, '')
	FROM posts p
	JOIN profiles pr ON pr.id = p.author_id`

// Fragments réutilisés par plusieurs stratégies
const (
	notBannedAuthor = `pr.moderation_status NOT IN ('banned', 'shadow_banned')`

	notBlockedEitherWay = `NOT EXISTS (
		SELECT 1 FROM blocked_users b
		WHERE (b.blocker_id = @viewer_id AND b.blocked_id = p.author_id)
		   OR (b.blocker_id = p.author_id AND b.blocked_id = @viewer_id))`

	notMutedByViewer = `NOT EXISTS (
		SELECT 1 FROM muted_users m
		WHERE m.muter_id = @viewer_id AND m.muted_id = p.author_id)`

	viewerFollowsAuthor = `EXISTS (
		SELECT 1 FROM follows vf
		WHERE vf.follower_id = @viewer_id AND vf.following_id = p.author_id AND vf.status = 'accepted')`

	viewerSubscribedToAuthor = `EXISTS (
		SELECT 1 FROM subscriptions s
		WHERE s.subscriber_id = @viewer_id AND s.creator_id = p.author_id AND s.status = 'active')`

	createdAtDesc = `p.created_at DESC, p.id DESC`
)

// Query est une requête paramétrée prête pour pgx
type Query struct {
	SQL  string
	Args pgx.NamedArgs
}

// strategy porte ce qui diffère d'un type de feed à l'autre : prédicats, condition de cursor, ordre.
// Projection, LIMIT n+1 et assemblage sont partagés par Build.
type strategy interface {
	predicates(q ports.PageQuery, args pgx.NamedArgs) ([]string, error)
	cursorPredicate(pos domain.Position, args pgx.NamedArgs) (string, error)
	orderBy() string
}

// Builder construit la requête de page pour chaque type de feed
type Builder struct {
	strategies map[domain.FeedType]strategy
}

func NewBuilder(exploreWindow time.Duration, now func() time.Time) *Builder {
	return &Builder{
		strategies: map[domain.FeedType]strategy{
			domain.FeedFollowing: followingStrategy{},
			domain.FeedProfile:   profileStrategy{},
			domain.FeedExplore:   exploreStrategy{window: exploreWindow, now: now},
		},
	}
}

func (b *Builder) Build(q ports.PageQuery) (Query, error) {
	strat, ok := b.strategies[q.Type]
	if !ok {
		return Query{}, fmt.Errorf("no query strategy for feed type %q", q.Type)
	}
	if q.Limit <= 0 {
		return Query{}, fmt.Errorf("invalid limit %d", q.Limit)
	}

	args := pgx.NamedArgs{}
	where, err := strat.predicates(q, args)
	if err != nil {
		return Query{}, err
	}

	if q.After != nil {
		cond, err := strat.cursorPredicate(*q.After, args)
		if err != nil {
			return Query{}, err
		}
		where = append(where, cond)
	}

	// Une ligne de plus que demandé : c'est elle qui dit s'il reste une page
	args["limit"] = q.Limit + 1

	var sb strings.Builder
	sb.WriteString(baseProjection)
	if len(where) > 0 {
		sb.WriteString("\n\tWHERE ")
		sb.WriteString(strings.Join(where, "\n\t  AND "))
	}
	sb.WriteString("\n\tORDER BY ")
	sb.WriteString(strat.orderBy())
	sb.WriteString("\n\tLIMIT @limit")

	return Query{SQL: sb.String(), Args: args}, nil
}

// compoundCursor : (created_at, id) strictement inférieur, départage stable des ex-aequo
func compoundCursor(pos domain.Position, args pgx.NamedArgs) string {
	args["cursor_ts"] = pos.CreatedAt
	args["cursor_id"] = pos.ID
	return `(p.created_at, p.id) < (@cursor_ts, @cursor_id::uuid)`
}

// instantCursor : cursor historique en millisecondes, sans id
func instantCursor(pos domain.Position, args pgx.NamedArgs) string {
	args["cursor_ts"] = pos.CreatedAt
	return `p.created_at < @cursor_ts`
}

func unsupportedCursor(feedType domain.FeedType, pos domain.Position) error {
	return domain.NewValidationError("cursor", fmt.Sprintf("cursor kind %d not supported by %s feed", pos.Kind, feedType))
}
