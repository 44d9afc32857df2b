package standalone

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/researchaccelerator-hub/telegram-outreach/common"
	"github.com/researchaccelerator-hub/telegram-outreach/crawler"
	"github.com/researchaccelerator-hub/telegram-outreach/model"
	"github.com/researchaccelerator-hub/telegram-outreach/state"
)

type fakeClients struct {
	mu        sync.Mutex
	failing   map[string]error
	acquired  []string
	released  []string
	discarded []string
	closed    bool
}

func newFakeClients() *fakeClients {
	return &fakeClients{failing: make(map[string]error)}
}

// accountClient tags a client with its account; no TDLib method is called.
type accountClient struct {
	crawler.TDLibClient
	account string
}

func (f *fakeClients) Acquire(account string) (crawler.TDLibClient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failing[account]; err != nil {
		return nil, err
	}
	f.acquired = append(f.acquired, account)
	return &accountClient{account: account}, nil
}

func (f *fakeClients) Release(account string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, account)
}

func (f *fakeClients) Discard(account string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.discarded = append(f.discarded, account)
}

func (f *fakeClients) Close() { f.closed = true }

// fakeDiscovery serves recommendations keyed by username; "" is the
// platform-wide list.
type fakeDiscovery struct {
	ids   map[string]int64
	graph map[string][]crawler.RawChannel
}

func (d *fakeDiscovery) Resolve(ctx context.Context, username string) (crawler.InternalRef, error) {
	id, ok := d.ids[username]
	if !ok {
		return crawler.InternalRef{}, fmt.Errorf("resolve %s: %w", username, crawler.ErrChannelNotFound)
	}
	return crawler.InternalRef{ChatID: id, Username: username}, nil
}

func (d *fakeDiscovery) GetRecommendations(ctx context.Context, ref *crawler.InternalRef, limit int) ([]crawler.RawChannel, error) {
	key := ""
	if ref != nil {
		key = ref.Username
	}
	return d.graph[key], nil
}

func (d *fakeDiscovery) SearchByKeywords(ctx context.Context, keywords []string, limit int) ([]crawler.RawChannel, error) {
	return nil, errors.New("search disabled")
}

// fakeActions records every executed target per account.
type fakeActions struct {
	mu       *sync.Mutex
	account  string
	executed map[string][]string
	failWith map[string]error
}

func (a *fakeActions) Execute(ctx context.Context, action model.ActionKind, target model.ActionTarget, payload string) (crawler.ExecuteResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	name := target.Channel.NormalizedUsername()
	a.executed[a.account] = append(a.executed[a.account], name)
	if err := a.failWith[name]; err != nil {
		return crawler.ExecuteResult{}, err
	}
	return crawler.ExecuteResult{ResultID: name}, nil
}

type memStore struct {
	mu  sync.Mutex
	ids map[string]bool
}

func (s *memStore) Contains(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ids[id], nil
}

func (s *memStore) AddAll(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.ids[id] = true
	}
	return nil
}

func (s *memStore) Close() error { return nil }

type fakePublisher struct {
	mu       sync.Mutex
	crawls   []model.CrawlResult
	sessions []model.SessionResult
}

func (p *fakePublisher) PublishCrawl(ctx context.Context, account string, result model.CrawlResult) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.crawls = append(p.crawls, result)
	return nil
}

func (p *fakePublisher) PublishSession(ctx context.Context, result model.SessionResult) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessions = append(p.sessions, result)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

type testEnv struct {
	runner    *Runner
	clients   *fakeClients
	discovery *fakeDiscovery
	executed  map[string][]string
	failWith  map[string]error
	stores    map[string]*memStore
	publisher *fakePublisher
	mu        sync.Mutex
}

func testConfig(t *testing.T) common.Config {
	cfg := common.DefaultConfig()
	cfg.StorageRoot = t.TempDir()
	cfg.Crawl.RequestDelay = -1
	cfg.Crawl.MaxDepth = 1
	cfg.Dispatch.DelayBetweenActions = 0
	cfg.Dispatch.BackoffFloor = time.Millisecond
	cfg.Dispatch.BackoffCeiling = 5 * time.Millisecond
	return cfg
}

func subs(n int) *int { return &n }

func channel(id int64, username string, subscribers int) crawler.RawChannel {
	return crawler.RawChannel{ID: id, Username: username, Title: username, SubscriberCount: subs(subscribers), IsBroadcast: true}
}

func newTestEnv(cfg common.Config) *testEnv {
	env := &testEnv{
		clients: newFakeClients(),
		discovery: &fakeDiscovery{
			ids: map[string]int64{"seed_channel": 100},
			graph: map[string][]crawler.RawChannel{
				"seed_channel": {channel(1, "alpha_chan", 500), channel(2, "beta_chan", 5000)},
				"":             {channel(3, "gamma_chan", 50)},
			},
		},
		executed:  make(map[string][]string),
		failWith:  make(map[string]error),
		stores:    make(map[string]*memStore),
		publisher: &fakePublisher{},
	}

	var mu sync.Mutex
	env.runner = &Runner{
		cfg:       cfg,
		clients:   env.clients,
		publisher: env.publisher,
		newDiscovery: func(crawler.TDLibClient) crawler.DiscoveryClient {
			return env.discovery
		},
		openStore: func(namespace string) (state.SeenStore, error) {
			mu.Lock()
			defer mu.Unlock()
			if s, ok := env.stores[namespace]; ok {
				return s, nil
			}
			s := &memStore{ids: make(map[string]bool)}
			env.stores[namespace] = s
			return s, nil
		},
	}

	env.runner.newActions = func(c crawler.TDLibClient) crawler.ActionClient {
		return &fakeActions{account: c.(*accountClient).account, executed: env.executed, failWith: env.failWith, mu: &env.mu}
	}
	return env
}
