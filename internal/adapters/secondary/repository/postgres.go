package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/jupiterclapton/cenackle/services/feed-engine/internal/core/domain"
	"github.com/jupiterclapton/cenackle/services/feed-engine/internal/core/ports"
)

// Querier est le sous-ensemble de *pgxpool.Pool utilisé par le repo (lecture seule)
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Vérifie que l'adapter satisfait les ports côté lecture
var (
	_ ports.PostStore       = (*PostgresRepo)(nil)
	_ ports.RelationReader  = (*PostgresRepo)(nil)
	_ ports.EnrichmentStore = (*PostgresRepo)(nil)
)

// PostgresRepo lit le feed sur la réplique. Aucune écriture ici.
type PostgresRepo struct {
	db      Querier
	builder *Builder
}

func NewPostgresRepo(db Querier, exploreWindow time.Duration) *PostgresRepo {
	return &PostgresRepo{db: db, builder: NewBuilder(exploreWindow, time.Now)}
}

// FetchPage : PAGINATION KEYSET, jamais d'OFFSET
func (r *PostgresRepo) FetchPage(ctx context.Context, q ports.PageQuery) ([]domain.Post, error) {
	query, err := r.builder.Build(q)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, query.SQL, query.Args)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	posts := make([]domain.Post, 0, q.Limit+1)
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

// GetOwner : existence, confidentialité et modération du propriétaire du profil
func (r *PostgresRepo) GetOwner(ctx context.Context, ownerID string) (domain.Owner, error) {
	query := `SELECT is_private, moderation_status FROM profiles WHERE id = @owner_id`

	var (
		isPrivate  bool
		moderation string
	)
	err := r.db.QueryRow(ctx, query, pgx.NamedArgs{"owner_id": ownerID}).Scan(&isPrivate, &moderation)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidUUID(err) {
			return domain.Owner{ID: ownerID}, nil
		}
		return domain.Owner{}, err
	}

	return domain.Owner{
		ID:        ownerID,
		Exists:    true,
		IsPrivate: isPrivate,
		IsBanned:  moderation == "banned" || moderation == "shadow_banned",
	}, nil
}

// GetRelation : une seule requête pour les trois liens viewer -> owner
func (r *PostgresRepo) GetRelation(ctx context.Context, viewerID, ownerID string) (domain.Relation, error) {
	query := `
		SELECT
			EXISTS (SELECT 1 FROM follows
			        WHERE follower_id = @viewer_id AND following_id = @owner_id AND status = 'accepted'),
			EXISTS (SELECT 1 FROM blocked_users
			        WHERE (blocker_id = @viewer_id AND blocked_id = @owner_id)
			           OR (blocker_id = @owner_id AND blocked_id = @viewer_id)),
			EXISTS (SELECT 1 FROM subscriptions
			        WHERE subscriber_id = @viewer_id AND creator_id = @owner_id AND status = 'active')
	`

	var rel domain.Relation
	err := r.db.QueryRow(ctx, query, pgx.NamedArgs{"viewer_id": viewerID, "owner_id": ownerID}).
		Scan(&rel.Follows, &rel.Blocked, &rel.Subscribed)
	if err != nil {
		return domain.Relation{}, err
	}
	return rel, nil
}

// TaggedUsers : BATCH FETCH, WHERE post_id = ANY($1) pour toute la page
func (r *PostgresRepo) TaggedUsers(ctx context.Context, postIDs []string) (map[string][]domain.TaggedUser, error) {
	query := `
		SELECT pt.post_id::text, pr.id::text, pr.username, COALESCE(pr.full_name, ''), COALESCE(pr.avatar_url, '')
		FROM post_tags pt
		JOIN profiles pr ON pr.id = pt.tagged_user_id
		WHERE pt.post_id = ANY($1)
		ORDER BY pt.post_id, pr.username
	`

	rows, err := r.db.Query(ctx, query, postIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tags := make(map[string][]domain.TaggedUser, len(postIDs))
	for rows.Next() {
		var (
			postID string
			u      domain.TaggedUser
		)
		if err := rows.Scan(&postID, &u.ID, &u.Username, &u.FullName, &u.AvatarURL); err != nil {
			return nil, err
		}
		tags[postID] = append(tags[postID], u)
	}
	return tags, rows.Err()
}

func (r *PostgresRepo) LikedPostIDs(ctx context.Context, viewerID string, postIDs []string) (map[string]struct{}, error) {
	return r.idSet(ctx, `SELECT post_id::text FROM likes WHERE user_id = $1 AND post_id = ANY($2)`, viewerID, postIDs)
}

func (r *PostgresRepo) SavedPostIDs(ctx context.Context, viewerID string, postIDs []string) (map[string]struct{}, error) {
	return r.idSet(ctx, `SELECT post_id::text FROM saved_posts WHERE user_id = $1 AND post_id = ANY($2)`, viewerID, postIDs)
}

// --- Helpers pour éviter la duplication de code ---

func (r *PostgresRepo) idSet(ctx context.Context, query, viewerID string, postIDs []string) (map[string]struct{}, error) {
	rows, err := r.db.Query(ctx, query, viewerID, postIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	set := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		set[id] = struct{}{}
	}
	return set, rows.Err()
}

func scanPost(row pgx.Row) (domain.Post, error) {
	var (
		p                           domain.Post
		mediaKind, vis, accountType string
	)
	err := row.Scan(
		&p.ID, &p.AuthorID, &p.Content,
		&p.MediaURLs, &mediaKind, &p.Tags,
		&vis, &p.LikesCount, &p.CommentsCount, &p.CreatedAt,
		&p.Author.Username, &p.Author.FullName, &p.Author.AvatarURL,
		&p.Author.IsVerified, &accountType, &p.Author.BusinessName,
	)
	if err != nil {
		return domain.Post{}, fmt.Errorf("scan post: %w", err)
	}

	p.MediaKind = domain.MediaKind(mediaKind)
	p.Visibility = domain.Visibility(vis)
	p.Author.ID = p.AuthorID
	p.Author.AccountType = domain.AccountType(accountType)
	p.CreatedAt = p.CreatedAt.UTC()
	if p.MediaURLs == nil {
		p.MediaURLs = []string{}
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
	if p.Author.AccountType != domain.AccountBusiness {
		p.Author.BusinessName = ""
	}
	return p, nil
}

// isInvalidUUID : un id mal formé arrivé jusqu'ici équivaut à un profil inexistant
func isInvalidUUID(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "22P02"
}
