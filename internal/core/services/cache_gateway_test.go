package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jupiterclapton/cenackle/services/feed-engine/internal/core/domain"
)

func TestCacheKeyIncludesEveryDimension(t *testing.T) {
	assert.Equal(t,
		"feed:v1:explore:none:anonymous:first:20",
		CacheKey(domain.FeedRequest{Type: domain.FeedExplore, PageSize: 20}),
	)
	assert.Equal(t,
		"feed:v1:profile:"+ownerID+":"+viewerA+":123:5",
		CacheKey(domain.FeedRequest{Type: domain.FeedProfile, OwnerID: ownerID, ViewerID: viewerA, Cursor: "123", PageSize: 5}),
	)

	base := domain.FeedRequest{Type: domain.FeedProfile, OwnerID: ownerID, ViewerID: viewerA, PageSize: 5}
	variants := []domain.FeedRequest{base, base, base, base, base}
	variants[1].ViewerID = viewerB
	variants[2].Cursor = "1"
	variants[3].PageSize = 6
	variants[4].OwnerID = strangerID

	seen := map[string]bool{}
	for _, v := range variants {
		seen[CacheKey(v)] = true
	}
	assert.Len(t, seen, len(variants))
}

func TestCacheGatewayDisabled(t *testing.T) {
	g := NewCacheGateway(nil, time.Second, time.Second)
	assert.False(t, g.Enabled())

	_, ok := g.Get(context.Background(), "k")
	assert.False(t, ok)
	g.Set(context.Background(), "k", []byte("v"))
}

func TestCacheGatewayRoundTripAndErrors(t *testing.T) {
	cache := newMemCache()
	g := NewCacheGateway(cache, time.Second, time.Second)

	_, ok := g.Get(context.Background(), "k")
	assert.False(t, ok)

	g.Set(context.Background(), "k", []byte("v"))
	body, ok := g.Get(context.Background(), "k")
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), body)

	cache.err = errBoom
	_, ok = g.Get(context.Background(), "k")
	assert.False(t, ok)
	g.Set(context.Background(), "k", []byte("w"))
}
