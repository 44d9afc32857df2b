package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/researchaccelerator-hub/telegram-outreach/crawler"
	"github.com/researchaccelerator-hub/telegram-outreach/model"
	"github.com/stretchr/testify/mock"
)

// MockActionClient mocks crawler.ActionClient
type MockActionClient struct {
	mock.Mock
}

func (m *MockActionClient) Execute(ctx context.Context, action model.ActionKind, target model.ActionTarget, payload string) (crawler.ExecuteResult, error) {
	args := m.Called(ctx, action, target, payload)
	return args.Get(0).(crawler.ExecuteResult), args.Error(1)
}

// MockGenerator mocks content.Generator
type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) Generate(ctx context.Context, channel model.ChannelRef) (string, error) {
	args := m.Called(channel)
	return args.String(0), args.Error(1)
}

// fakeClock advances only when the dispatcher sleeps or a test moves it.
type fakeClock struct {
	mu     sync.Mutex
	t      time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func (c *fakeClock) sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.mu.Unlock()
	c.advance(d)
	return nil
}

// memStore is an in-memory state.SeenStore
type memStore struct {
	mu      sync.Mutex
	ids     map[string]bool
	added   []string
	failGet bool
}

func newMemStore(ids ...string) *memStore {
	s := &memStore{ids: make(map[string]bool)}
	for _, id := range ids {
		s.ids[id] = true
	}
	return s
}

func (s *memStore) Contains(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failGet {
		return false, errors.New("store offline")
	}
	return s.ids[id], nil
}

func (s *memStore) AddAll(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.ids[id] = true
	}
	s.added = append(s.added, ids...)
	return nil
}

func (s *memStore) Close() error { return nil }

func newTestDispatcher(client crawler.ActionClient, gen *MockGenerator, done *memStore) (*Dispatcher, *fakeClock) {
	d := New(client, nil, nil)
	if gen != nil {
		d.generator = gen
	}
	if done != nil {
		d.done = done
	}
	clock := newFakeClock()
	d.now = clock.now
	d.sleep = clock.sleep
	return d, clock
}

func targets(names ...string) []model.ActionTarget {
	out := make([]model.ActionTarget, len(names))
	for i, n := range names {
		out[i] = model.ActionTarget{Channel: model.ChannelRef{Username: n}, Source: "test"}
	}
	return out
}

func rateLimited(after time.Duration) error {
	return &model.ActionError{Code: model.ErrorRateLimited, RetryAfter: after, Message: "slow down"}
}

func ok(id string) crawler.ExecuteResult {
	return crawler.ExecuteResult{ResultID: id}
}
