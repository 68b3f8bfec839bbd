package repository

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jupiterclapton/cenackle/services/feed-engine/internal/core/domain"
	"github.com/jupiterclapton/cenackle/services/feed-engine/internal/core/ports"
)

// --- FOLLOWING ---

// followingStrategy : union des comptes suivis et des comptes qui suivent le viewer,
// moins les blocages, les mutes, ses propres posts, les comptes business et les bannis.
type followingStrategy struct{}

func (followingStrategy) predicates(q ports.PageQuery, args pgx.NamedArgs) ([]string, error) {
	if q.ViewerID == "" {
		return nil, domain.ErrAuthRequired
	}
	args["viewer_id"] = q.ViewerID

	return []string{
		`p.author_id IN (
		SELECT f.following_id FROM follows f WHERE f.follower_id = @viewer_id AND f.status = 'accepted'
		UNION
		SELECT f.follower_id FROM follows f WHERE f.following_id = @viewer_id AND f.status = 'accepted')`,
		`p.author_id <> @viewer_id`,
		`pr.account_type <> 'business'`,
		notBannedAuthor,
		notBlockedEitherWay,
		notMutedByViewer,
		// Compte privé : seulement si le viewer le suit vraiment (pas l'inverse)
		`(pr.is_private = false OR ` + viewerFollowsAuthor + `)`,
		`(p.visibility = 'public'
		OR (p.visibility = 'fans' AND ` + viewerFollowsAuthor + `)
		OR (p.visibility = 'subscribers' AND ` + viewerSubscribedToAuthor + `))`,
	}, nil
}

func (followingStrategy) cursorPredicate(pos domain.Position, args pgx.NamedArgs) (string, error) {
	if pos.Kind != domain.CursorCompound {
		return "", unsupportedCursor(domain.FeedFollowing, pos)
	}
	return compoundCursor(pos, args), nil
}

func (followingStrategy) orderBy() string { return createdAtDesc }

// --- PROFILE ---

// profileStrategy : les posts d'un seul owner, filtrés par l'ensemble de visibilité déjà résolu
type profileStrategy struct{}

func (profileStrategy) predicates(q ports.PageQuery, args pgx.NamedArgs) ([]string, error) {
	if q.OwnerID == "" {
		return nil, domain.NewValidationError("ownerId", "owner id is required for profile feed")
	}
	if len(q.Visibility) == 0 {
		return nil, errors.New("profile query without visibility set")
	}
	args["owner_id"] = q.OwnerID

	// Liste OR : la branche subscribers n'existe que si le resolver l'a accordée
	branches := make([]string, len(q.Visibility))
	for i, v := range q.Visibility {
		name := fmt.Sprintf("vis_%d", i)
		args[name] = string(v)
		branches[i] = "p.visibility = @" + name
	}

	return []string{
		`p.author_id = @owner_id`,
		`(` + strings.Join(branches, " OR ") + `)`,
	}, nil
}

func (profileStrategy) cursorPredicate(pos domain.Position, args pgx.NamedArgs) (string, error) {
	switch pos.Kind {
	case domain.CursorCompound:
		return compoundCursor(pos, args), nil
	case domain.CursorInstant:
		return instantCursor(pos, args), nil
	default:
		return "", unsupportedCursor(domain.FeedProfile, pos)
	}
}

func (profileStrategy) orderBy() string { return createdAtDesc }

// --- EXPLORE ---

// exploreStrategy : posts publics récents, classés par engagement.
// La fenêtre de récence évite un tri sur toute la table.
type exploreStrategy struct {
	window time.Duration
	now    func() time.Time
}

const exploreScore = `(p.likes_count + p.comments_count)`

func (s exploreStrategy) predicates(q ports.PageQuery, args pgx.NamedArgs) ([]string, error) {
	args["window_start"] = s.now().Add(-s.window).UTC()

	where := []string{
		`p.visibility = 'public'`,
		`pr.is_private = false`,
		notBannedAuthor,
		`p.created_at >= @window_start`,
	}

	if q.ViewerID != "" {
		args["viewer_id"] = q.ViewerID
		where = append(where, notBlockedEitherWay, notMutedByViewer)
	}
	return where, nil
}

func (exploreStrategy) cursorPredicate(pos domain.Position, args pgx.NamedArgs) (string, error) {
	switch pos.Kind {
	case domain.CursorRanked:
		args["cursor_score"] = pos.Score
		args["cursor_ts"] = pos.CreatedAt
		args["cursor_id"] = pos.ID
		return `(` + exploreScore + `, p.created_at, p.id) < (@cursor_score, @cursor_ts, @cursor_id::uuid)`, nil
	case domain.CursorInstant:
		return instantCursor(pos, args), nil
	default:
		return "", unsupportedCursor(domain.FeedExplore, pos)
	}
}

func (exploreStrategy) orderBy() string {
	return exploreScore + ` DESC, ` + createdAtDesc
}
