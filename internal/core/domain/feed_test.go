package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFeedType(t *testing.T) {
	got, err := ParseFeedType(" Explore ")
	require.NoError(t, err)
	assert.Equal(t, FeedExplore, got)

	_, err = ParseFeedType("trending")
	assert.Equal(t, KindValidation, KindOf(err))

	_, err = ParseFeedType("")
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestFeedRequestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		req      FeedRequest
		wantKind ErrorKind
		wantErr  bool
		wantSize int
	}{
		{
			name:     "explore anonymous gets default size",
			req:      FeedRequest{Type: FeedExplore},
			wantSize: DefaultPageSize,
		},
		{
			name:     "page size clamped",
			req:      FeedRequest{Type: FeedExplore, PageSize: 500},
			wantSize: MaxPageSize,
		},
		{
			name:     "following requires viewer",
			req:      FeedRequest{Type: FeedFollowing},
			wantErr:  true,
			wantKind: KindAuthRequired,
		},
		{
			name:     "profile requires owner",
			req:      FeedRequest{Type: FeedProfile, ViewerID: viewerID},
			wantErr:  true,
			wantKind: KindValidation,
		},
		{
			name:     "profile rejects malformed owner",
			req:      FeedRequest{Type: FeedProfile, OwnerID: "42; DROP TABLE posts"},
			wantErr:  true,
			wantKind: KindValidation,
		},
		{
			name:     "profile anonymous allowed",
			req:      FeedRequest{Type: FeedProfile, OwnerID: ownerID, PageSize: 2},
			wantSize: 2,
		},
		{
			name:     "malformed viewer id",
			req:      FeedRequest{Type: FeedFollowing, ViewerID: "not-a-uuid"},
			wantErr:  true,
			wantKind: KindValidation,
		},
		{
			name:     "literal anonymous is not a viewer id",
			req:      FeedRequest{Type: FeedExplore, ViewerID: "anonymous"},
			wantErr:  true,
			wantKind: KindValidation,
		},
		{
			name:     "viewer id with separator",
			req:      FeedRequest{Type: FeedProfile, OwnerID: ownerID, ViewerID: "x:y"},
			wantErr:  true,
			wantKind: KindValidation,
		},
		{
			name:     "following with uuid viewer",
			req:      FeedRequest{Type: FeedFollowing, ViewerID: viewerID},
			wantSize: DefaultPageSize,
		},
		{
			name:     "unknown type",
			req:      FeedRequest{Type: "trending", ViewerID: viewerID},
			wantErr:  true,
			wantKind: KindValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.req.Normalize(DefaultPageSize, MaxPageSize)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, tt.wantKind, KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSize, got.PageSize)
		})
	}
}

func TestNormalizeDropsOwnerOutsideProfile(t *testing.T) {
	got, err := FeedRequest{Type: FeedExplore, OwnerID: ownerID}.Normalize(DefaultPageSize, MaxPageSize)
	require.NoError(t, err)
	assert.Empty(t, got.OwnerID)
}

func TestRateLimitedErrorRetryAfter(t *testing.T) {
	assert.Equal(t, 1, (&RateLimitedError{}).RetryAfterSeconds())
	assert.Equal(t, 2, (&RateLimitedError{RetryAfter: 1500 * time.Millisecond}).RetryAfterSeconds())
	assert.Equal(t, 30, (&RateLimitedError{RetryAfter: 30 * time.Second}).RetryAfterSeconds())
	assert.Equal(t, KindRateLimited, KindOf(&RateLimitedError{}))
}

func TestValidateViewerIDField(t *testing.T) {
	assert.NoError(t, ValidateViewerID(""))
	assert.NoError(t, ValidateViewerID(viewerID))

	var vErr *ValidationError
	require.ErrorAs(t, ValidateViewerID("anonymous"), &vErr)
	assert.Equal(t, "viewerId", vErr.Field)
}
