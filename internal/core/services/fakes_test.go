package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/jupiterclapton/cenackle/services/feed-engine/internal/core/domain"
	"github.com/jupiterclapton/cenackle/services/feed-engine/internal/core/ports"
)

// memStore reproduit en mémoire l'ordre et les filtres du store SQL
type memStore struct {
	mu sync.Mutex

	posts     []domain.Post
	owners    map[string]domain.Owner
	relations map[[2]string]domain.Relation
	follows   map[[2]string]bool
	tags      map[string][]domain.TaggedUser
	likes     map[[2]string]bool
	saves     map[[2]string]bool

	fetchErr error

	fetchCalls    int
	ownerCalls    int
	relationCalls int
	tagCalls      int
	likeCalls     int
	saveCalls     int
}

func newMemStore() *memStore {
	return &memStore{
		owners:    map[string]domain.Owner{},
		relations: map[[2]string]domain.Relation{},
		follows:   map[[2]string]bool{},
		tags:      map[string][]domain.TaggedUser{},
		likes:     map[[2]string]bool{},
		saves:     map[[2]string]bool{},
	}
}

func (m *memStore) FetchPage(_ context.Context, q ports.PageQuery) ([]domain.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetchCalls++
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}

	allowed := map[domain.Visibility]bool{}
	for _, v := range q.Visibility {
		allowed[v] = true
	}

	var out []domain.Post
	for _, p := range m.posts {
		switch q.Type {
		case domain.FeedProfile:
			if p.AuthorID != q.OwnerID || !allowed[p.Visibility] {
				continue
			}
		case domain.FeedExplore:
			if p.Visibility != domain.VisibilityPublic {
				continue
			}
		case domain.FeedFollowing:
			if p.AuthorID == q.ViewerID || !m.follows[[2]string{q.ViewerID, p.AuthorID}] {
				continue
			}
		}
		if q.After != nil && !before(q.Type, p, *q.After) {
			continue
		}
		out = append(out, p)
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if q.Type == domain.FeedExplore && a.Score() != b.Score() {
			return a.Score() > b.Score()
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})

	if len(out) > q.Limit+1 {
		out = out[:q.Limit+1]
	}
	return out, nil
}

// before : la ligne p vient-elle strictement après la position dans l'ordre décroissant ?
func before(feedType domain.FeedType, p domain.Post, pos domain.Position) bool {
	switch pos.Kind {
	case domain.CursorInstant:
		return p.CreatedAt.Before(pos.CreatedAt)
	case domain.CursorRanked:
		if p.Score() != pos.Score {
			return p.Score() < pos.Score
		}
	}
	if !p.CreatedAt.Equal(pos.CreatedAt) {
		return p.CreatedAt.Before(pos.CreatedAt)
	}
	return p.ID < pos.ID
}

func (m *memStore) GetOwner(_ context.Context, ownerID string) (domain.Owner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ownerCalls++
	return m.owners[ownerID], nil
}

func (m *memStore) GetRelation(_ context.Context, viewerID, ownerID string) (domain.Relation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.relationCalls++
	return m.relations[[2]string{viewerID, ownerID}], nil
}

func (m *memStore) TaggedUsers(_ context.Context, postIDs []string) (map[string][]domain.TaggedUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tagCalls++
	out := map[string][]domain.TaggedUser{}
	for _, id := range postIDs {
		if tags, ok := m.tags[id]; ok {
			out[id] = tags
		}
	}
	return out, nil
}

func (m *memStore) LikedPostIDs(_ context.Context, viewerID string, postIDs []string) (map[string]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.likeCalls++
	return pick(m.likes, viewerID, postIDs), nil
}

func (m *memStore) SavedPostIDs(_ context.Context, viewerID string, postIDs []string) (map[string]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveCalls++
	return pick(m.saves, viewerID, postIDs), nil
}

func pick(set map[[2]string]bool, viewerID string, postIDs []string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, id := range postIDs {
		if set[[2]string{viewerID, id}] {
			out[id] = struct{}{}
		}
	}
	return out
}

type memCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	err     error
	gets    int
	sets    int
}

func newMemCache() *memCache {
	return &memCache{entries: map[string][]byte{}}
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	if c.err != nil {
		return nil, c.err
	}
	body, ok := c.entries[key]
	if !ok {
		return nil, ports.ErrCacheMiss
	}
	return body, nil
}

func (c *memCache) Set(_ context.Context, key string, body []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	if c.err != nil {
		return c.err
	}
	c.entries[key] = body
	return nil
}

type stubLimiter struct {
	decision ports.RateDecision
	err      error
	calls    []string
}

func (l *stubLimiter) Allow(_ context.Context, identity string) (ports.RateDecision, error) {
	l.calls = append(l.calls, identity)
	return l.decision, l.err
}

type memCounter struct {
	counts map[string]int64
	ttls   map[string]time.Duration
	err    error
}

func newMemCounter() *memCounter {
	return &memCounter{counts: map[string]int64{}, ttls: map[string]time.Duration{}}
}

func (c *memCounter) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	if c.err != nil {
		return 0, c.err
	}
	c.counts[key]++
	c.ttls[key] = ttl
	return c.counts[key], nil
}

var errBoom = errors.New("boom")
