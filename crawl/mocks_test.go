package crawl

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/researchaccelerator-hub/telegram-outreach/crawler"
	"github.com/stretchr/testify/mock"
)

// MockDiscoveryClient mocks crawler.DiscoveryClient
type MockDiscoveryClient struct {
	mock.Mock
}

func (m *MockDiscoveryClient) Resolve(ctx context.Context, username string) (crawler.InternalRef, error) {
	args := m.Called(username)
	return args.Get(0).(crawler.InternalRef), args.Error(1)
}

func (m *MockDiscoveryClient) GetRecommendations(ctx context.Context, ref *crawler.InternalRef, limit int) ([]crawler.RawChannel, error) {
	args := m.Called(ref, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]crawler.RawChannel), args.Error(1)
}

func (m *MockDiscoveryClient) SearchByKeywords(ctx context.Context, keywords []string, limit int) ([]crawler.RawChannel, error) {
	args := m.Called(keywords, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]crawler.RawChannel), args.Error(1)
}

// graphDiscovery serves recommendations from an adjacency list keyed by
// chat ID. Usernames are "<name>" and IDs are looked up in ids.
type graphDiscovery struct {
	ids      map[string]int64
	edges    map[int64][]crawler.RawChannel
	global   []crawler.RawChannel
	failing  map[int64]bool
	keywords map[string][]crawler.RawChannel

	mu           sync.Mutex
	recCalls     []int64
	keywordCalls [][]string
}

func newGraph() *graphDiscovery {
	return &graphDiscovery{
		ids:      make(map[string]int64),
		edges:    make(map[int64][]crawler.RawChannel),
		failing:  make(map[int64]bool),
		keywords: make(map[string][]crawler.RawChannel),
	}
}

// channel registers a broadcast channel and returns its raw form.
func (g *graphDiscovery) channel(id int64, username string) crawler.RawChannel {
	g.ids[username] = id
	return crawler.RawChannel{ID: id, Username: username, Title: username, IsBroadcast: true}
}

func (g *graphDiscovery) Resolve(ctx context.Context, username string) (crawler.InternalRef, error) {
	id, ok := g.ids[username]
	if !ok {
		return crawler.InternalRef{}, crawler.ErrChannelNotFound
	}
	return crawler.InternalRef{ChatID: id, Username: username}, nil
}

func (g *graphDiscovery) GetRecommendations(ctx context.Context, ref *crawler.InternalRef, limit int) ([]crawler.RawChannel, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if ref == nil {
		g.recCalls = append(g.recCalls, 0)
		return truncate(g.global, limit), nil
	}
	g.recCalls = append(g.recCalls, ref.ChatID)
	if g.failing[ref.ChatID] {
		return nil, errors.New("400 METHOD_NOT_SUPPORTED")
	}
	return truncate(g.edges[ref.ChatID], limit), nil
}

func (g *graphDiscovery) SearchByKeywords(ctx context.Context, keywords []string, limit int) ([]crawler.RawChannel, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.keywordCalls = append(g.keywordCalls, keywords)
	var out []crawler.RawChannel
	for _, kw := range keywords {
		out = append(out, g.keywords[kw]...)
	}
	return truncate(out, limit), nil
}

func truncate(in []crawler.RawChannel, limit int) []crawler.RawChannel {
	if limit > 0 && len(in) > limit {
		return in[:limit]
	}
	return in
}

// memSeen is an in-memory state.SeenStore
type memSeen struct {
	mu      sync.Mutex
	ids     map[string]bool
	added   []string
	failGet bool
}

func newMemSeen(ids ...string) *memSeen {
	s := &memSeen{ids: make(map[string]bool)}
	for _, id := range ids {
		s.ids[id] = true
	}
	return s
}

func (s *memSeen) Contains(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failGet {
		return false, errors.New("store offline")
	}
	return s.ids[id], nil
}

func (s *memSeen) AddAll(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.ids[id] = true
	}
	s.added = append(s.added, ids...)
	return nil
}

func (s *memSeen) Close() error { return nil }

// recordingSleeper counts requested delays without sleeping.
type recordingSleeper struct {
	calls  []time.Duration
	cancel context.CancelFunc
	after  int // cancel once this many calls were made, 0 = never
}

func (r *recordingSleeper) sleep(ctx context.Context, d time.Duration) error {
	r.calls = append(r.calls, d)
	if r.after > 0 && len(r.calls) >= r.after && r.cancel != nil {
		r.cancel()
	}
	return ctx.Err()
}

func newTestCrawler(d crawler.DiscoveryClient, seen *memSeen) (*Crawler, *recordingSleeper) {
	var c *Crawler
	if seen != nil {
		c = New(d, seen)
	} else {
		c = New(d, nil)
	}
	r := &recordingSleeper{}
	c.sleep = r.sleep
	return c, r
}
