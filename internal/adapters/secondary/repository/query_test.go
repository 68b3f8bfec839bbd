package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jupiterclapton/cenackle/services/feed-engine/internal/core/domain"
	"github.com/jupiterclapton/cenackle/services/feed-engine/internal/core/ports"
)

const (
	viewerID = "11111111-1111-1111-1111-111111111111"
	ownerID  = "22222222-2222-2222-2222-222222222222"
	postID   = "33333333-3333-3333-3333-333333333333"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestBuilder() *Builder {
	return NewBuilder(30*24*time.Hour, func() time.Time { return fixedNow })
}

func TestBuildFollowingFirstPage(t *testing.T) {
	q, err := newTestBuilder().Build(ports.PageQuery{
		Type:     domain.FeedFollowing,
		ViewerID: viewerID,
		Limit:    20,
	})
	require.NoError(t, err)

	assert.Equal(t, viewerID, q.Args["viewer_id"])
	assert.Equal(t, 21, q.Args["limit"], "one extra row to detect hasMore")
	assert.NotContains(t, q.Args, "cursor_ts")

	for _, fragment := range []string{
		"FROM posts p",
		"JOIN profiles pr ON pr.id = p.author_id",
		"UNION",
		"p.author_id <> @viewer_id",
		"pr.account_type <> 'business'",
		"NOT IN ('banned', 'shadow_banned')",
		"FROM blocked_users b",
		"FROM muted_users m",
		"FROM subscriptions s",
		"ORDER BY p.created_at DESC, p.id DESC",
		"LIMIT @limit",
	} {
		assert.Contains(t, q.SQL, fragment)
	}
}

func TestBuildFollowingRequiresViewer(t *testing.T) {
	_, err := newTestBuilder().Build(ports.PageQuery{Type: domain.FeedFollowing, Limit: 20})
	assert.ErrorIs(t, err, domain.ErrAuthRequired)
}

func TestBuildFollowingWithCompoundCursor(t *testing.T) {
	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	pos := domain.CompoundPosition(ts, postID)

	q, err := newTestBuilder().Build(ports.PageQuery{
		Type:     domain.FeedFollowing,
		ViewerID: viewerID,
		After:    &pos,
		Limit:    10,
	})
	require.NoError(t, err)

	assert.Contains(t, q.SQL, "(p.created_at, p.id) < (@cursor_ts, @cursor_id::uuid)")
	assert.Equal(t, ts, q.Args["cursor_ts"])
	assert.Equal(t, postID, q.Args["cursor_id"])
}

func TestBuildFollowingRejectsInstantCursor(t *testing.T) {
	pos := domain.InstantPosition(fixedNow)
	_, err := newTestBuilder().Build(ports.PageQuery{
		Type:     domain.FeedFollowing,
		ViewerID: viewerID,
		After:    &pos,
		Limit:    10,
	})

	var vErr *domain.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "cursor", vErr.Field)
}

func TestBuildProfileVisibilityBranches(t *testing.T) {
	t.Run("public only", func(t *testing.T) {
		q, err := newTestBuilder().Build(ports.PageQuery{
			Type:       domain.FeedProfile,
			OwnerID:    ownerID,
			Visibility: []domain.Visibility{domain.VisibilityPublic},
			Limit:      20,
		})
		require.NoError(t, err)

		assert.Contains(t, q.SQL, "p.author_id = @owner_id")
		assert.Contains(t, q.SQL, "(p.visibility = @vis_0)")
		assert.Equal(t, "public", q.Args["vis_0"])
		assert.NotContains(t, q.Args, "vis_1")
		assert.NotContains(t, q.SQL, "viewer_id")
	})

	t.Run("subscriber branch only when granted", func(t *testing.T) {
		q, err := newTestBuilder().Build(ports.PageQuery{
			Type:     domain.FeedProfile,
			ViewerID: viewerID,
			OwnerID:  ownerID,
			Visibility: []domain.Visibility{
				domain.VisibilityPublic, domain.VisibilityFans, domain.VisibilitySubscribers,
			},
			Limit: 20,
		})
		require.NoError(t, err)

		assert.Contains(t, q.SQL, "(p.visibility = @vis_0 OR p.visibility = @vis_1 OR p.visibility = @vis_2)")
		assert.Equal(t, "subscribers", q.Args["vis_2"])
	})

	t.Run("empty set is a bug upstream", func(t *testing.T) {
		_, err := newTestBuilder().Build(ports.PageQuery{Type: domain.FeedProfile, OwnerID: ownerID, Limit: 20})
		assert.Error(t, err)
	})
}

func TestBuildProfileCursors(t *testing.T) {
	vis := []domain.Visibility{domain.VisibilityPublic}

	legacy := domain.InstantPosition(time.UnixMilli(1735787045000))
	q, err := newTestBuilder().Build(ports.PageQuery{
		Type: domain.FeedProfile, OwnerID: ownerID, Visibility: vis, After: &legacy, Limit: 20,
	})
	require.NoError(t, err)
	assert.Contains(t, q.SQL, "p.created_at < @cursor_ts")
	assert.NotContains(t, q.Args, "cursor_id")

	ranked := domain.RankedPosition(4, fixedNow, postID)
	_, err = newTestBuilder().Build(ports.PageQuery{
		Type: domain.FeedProfile, OwnerID: ownerID, Visibility: vis, After: &ranked, Limit: 20,
	})
	assert.Error(t, err)
}

func TestBuildExplore(t *testing.T) {
	t.Run("anonymous", func(t *testing.T) {
		q, err := newTestBuilder().Build(ports.PageQuery{Type: domain.FeedExplore, Limit: 20})
		require.NoError(t, err)

		assert.Contains(t, q.SQL, "p.visibility = 'public'")
		assert.Contains(t, q.SQL, "pr.is_private = false")
		assert.Contains(t, q.SQL, "p.created_at >= @window_start")
		assert.Contains(t, q.SQL, "ORDER BY (p.likes_count + p.comments_count) DESC, p.created_at DESC, p.id DESC")
		assert.NotContains(t, q.SQL, "blocked_users")
		assert.Equal(t, fixedNow.Add(-30*24*time.Hour), q.Args["window_start"])
	})

	t.Run("viewer exclusions", func(t *testing.T) {
		q, err := newTestBuilder().Build(ports.PageQuery{Type: domain.FeedExplore, ViewerID: viewerID, Limit: 20})
		require.NoError(t, err)

		assert.Contains(t, q.SQL, "FROM blocked_users b")
		assert.Contains(t, q.SQL, "FROM muted_users m")
		assert.Equal(t, viewerID, q.Args["viewer_id"])
	})

	t.Run("ranked cursor", func(t *testing.T) {
		pos := domain.RankedPosition(12, fixedNow.Add(-time.Hour), postID)
		q, err := newTestBuilder().Build(ports.PageQuery{Type: domain.FeedExplore, After: &pos, Limit: 20})
		require.NoError(t, err)

		assert.Contains(t, q.SQL, "((p.likes_count + p.comments_count), p.created_at, p.id) < (@cursor_score, @cursor_ts, @cursor_id::uuid)")
		assert.Equal(t, int64(12), q.Args["cursor_score"])
	})

	t.Run("compound cursor rejected", func(t *testing.T) {
		pos := domain.CompoundPosition(fixedNow, postID)
		_, err := newTestBuilder().Build(ports.PageQuery{Type: domain.FeedExplore, After: &pos, Limit: 20})
		assert.Error(t, err)
	})
}

func TestBuildIsDeterministic(t *testing.T) {
	pq := ports.PageQuery{Type: domain.FeedFollowing, ViewerID: viewerID, Limit: 5}
	a, err := newTestBuilder().Build(pq)
	require.NoError(t, err)
	b, err := newTestBuilder().Build(pq)
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestBuildRejectsUnknownTypeAndLimit(t *testing.T) {
	_, err := newTestBuilder().Build(ports.PageQuery{Type: "trending", Limit: 20})
	assert.Error(t, err)

	_, err = newTestBuilder().Build(ports.PageQuery{Type: domain.FeedExplore})
	assert.Error(t, err)
}
