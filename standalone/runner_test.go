package standalone

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/researchaccelerator-hub/telegram-outreach/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resultFiles(t *testing.T, root, prefix string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(root, "results", prefix+"*.json"))
	require.NoError(t, err)
	return matches
}

func TestRunCrawl_SavesPublishesAndRecords(t *testing.T) {
	cfg := testConfig(t)
	cfg.Crawl.Seeds = []string{"https://t.me/seed_channel"}
	cfg.Crawl.OutputFile = filepath.Join(cfg.StorageRoot, "out", "channels.txt")
	env := newTestEnv(cfg)

	crawls, err := env.runner.RunCrawl(context.Background())
	require.NoError(t, err)

	require.Len(t, crawls, 1)
	assert.Equal(t, "@seed_channel", crawls[0].Seed)
	assert.Len(t, crawls[0].Channels, 2)
	assert.Len(t, resultFiles(t, cfg.StorageRoot, "crawl-"), 1)
	assert.Len(t, env.publisher.crawls, 1)
	assert.True(t, env.stores["seen"].ids["1"])
	assert.True(t, env.stores["seen"].ids["2"])
	assert.Equal(t, []string{DefaultAccount}, env.clients.released)

	data, err := os.ReadFile(cfg.Crawl.OutputFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "https://t.me/alpha_chan\n")
	assert.Contains(t, string(data), "https://t.me/beta_chan\n")
}

func TestRunCrawl_UnresolvableSeedSkipped(t *testing.T) {
	cfg := testConfig(t)
	cfg.Crawl.Seeds = []string{"missing_channel", "seed_channel", "bad!"}
	env := newTestEnv(cfg)

	crawls, err := env.runner.RunCrawl(context.Background())
	require.NoError(t, err)
	require.Len(t, crawls, 1)
	assert.Equal(t, "@seed_channel", crawls[0].Seed)
}

func TestRunCrawl_SeedFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.Crawl.SeedFile = filepath.Join(cfg.StorageRoot, "seeds.txt")
	require.NoError(t, os.WriteFile(cfg.Crawl.SeedFile, []byte("# seeds\n@seed_channel\n"), 0644))
	env := newTestEnv(cfg)

	seeds, err := env.runner.Seeds()
	require.NoError(t, err)
	assert.Equal(t, []string{"seed_channel"}, seeds)

	crawls, err := env.runner.RunCrawl(context.Background())
	require.NoError(t, err)
	assert.Len(t, crawls, 1)
}

func TestRunCrawl_NoSeedsUsesRecommendations(t *testing.T) {
	cfg := testConfig(t)
	env := newTestEnv(cfg)

	crawls, err := env.runner.RunCrawl(context.Background())
	require.NoError(t, err)
	require.Len(t, crawls, 1)
	assert.Empty(t, crawls[0].Seed)
	require.Len(t, crawls[0].Channels, 1)
	assert.Equal(t, "gamma_chan", crawls[0].Channels[0].Username)
}

func TestRunCrawl_ClientUnavailable(t *testing.T) {
	cfg := testConfig(t)
	env := newTestEnv(cfg)
	env.clients.failing[DefaultAccount] = errors.New("not authorized")

	_, err := env.runner.RunCrawl(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not authorized")
}

func TestRunDispatch_ShardsAcrossAccounts(t *testing.T) {
	cfg := testConfig(t)
	cfg.Accounts = []string{"acct_a", "acct_b"}
	env := newTestEnv(cfg)

	targets := []model.ActionTarget{
		{Channel: model.ChannelRef{Username: "one_chan"}},
		{Channel: model.ChannelRef{Username: "two_chan"}},
		{Channel: model.ChannelRef{Username: "three_chan"}},
		{Channel: model.ChannelRef{Username: "four_chan"}},
		{Channel: model.ChannelRef{Username: "five_chan"}},
	}
	sessions, err := env.runner.RunDispatch(context.Background(), targets)
	require.NoError(t, err)

	require.Len(t, sessions, 2)
	assert.Equal(t, []string{"one_chan", "three_chan", "five_chan"}, env.executed["acct_a"])
	assert.Equal(t, []string{"two_chan", "four_chan"}, env.executed["acct_b"])

	total := 0
	for _, s := range sessions {
		total += s.SuccessfulCount
	}
	assert.Equal(t, 5, total)
	assert.Len(t, resultFiles(t, cfg.StorageRoot, "session-"), 2)
	assert.Len(t, env.publisher.sessions, 2)
	assert.Len(t, env.stores["acted"].ids, 5)

	released := append([]string(nil), env.clients.released...)
	sort.Strings(released)
	assert.Equal(t, []string{"acct_a", "acct_b"}, released)
}

func TestRunDispatch_SkipsAlreadyActed(t *testing.T) {
	cfg := testConfig(t)
	env := newTestEnv(cfg)
	targets := []model.ActionTarget{{Channel: model.ChannelRef{Username: "one_chan"}}}

	_, err := env.runner.RunDispatch(context.Background(), targets)
	require.NoError(t, err)
	sessions, err := env.runner.RunDispatch(context.Background(), targets)
	require.NoError(t, err)

	require.Len(t, sessions, 1)
	assert.Equal(t, 1, sessions[0].SkippedCount)
	assert.Len(t, env.executed[DefaultAccount], 1)
}

func TestRunDispatch_OneAccountUnavailable(t *testing.T) {
	cfg := testConfig(t)
	cfg.Accounts = []string{"acct_a", "acct_b"}
	env := newTestEnv(cfg)
	env.clients.failing["acct_b"] = errors.New("session expired")

	targets := []model.ActionTarget{
		{Channel: model.ChannelRef{Username: "one_chan"}},
		{Channel: model.ChannelRef{Username: "two_chan"}},
	}
	sessions, err := env.runner.RunDispatch(context.Background(), targets)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "acct_b")
	assert.Contains(t, err.Error(), "session expired")

	require.Len(t, sessions, 1)
	assert.Equal(t, "acct_a", sessions[0].Account)
}

func TestRunDispatch_AbortedSessionDiscardsClient(t *testing.T) {
	cfg := testConfig(t)
	env := newTestEnv(cfg)
	env.failWith["one_chan"] = &model.ActionError{Code: model.ErrorRateLimited, RetryAfter: 2 * time.Hour}

	targets := []model.ActionTarget{
		{Channel: model.ChannelRef{Username: "one_chan"}},
		{Channel: model.ChannelRef{Username: "two_chan"}},
	}
	sessions, err := env.runner.RunDispatch(context.Background(), targets)
	require.NoError(t, err)

	require.Len(t, sessions, 1)
	assert.True(t, sessions[0].Aborted)
	assert.Equal(t, []string{DefaultAccount}, env.clients.discarded)
	assert.Empty(t, env.clients.released)
	assert.Equal(t, []string{"one_chan"}, env.executed[DefaultAccount])
}

func TestRun_CrawlThenDispatch(t *testing.T) {
	cfg := testConfig(t)
	cfg.Crawl.Seeds = []string{"seed_channel"}
	cfg.Crawl.MaxSubscribers = 1000
	env := newTestEnv(cfg)

	sessions, err := env.runner.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, sessions, 1)
	assert.Equal(t, []string{"alpha_chan"}, env.executed[DefaultAccount])
	assert.Equal(t, model.ActionJoin, sessions[0].Action)
	require.Len(t, sessions[0].Outcomes, 1)
	assert.Contains(t, sessions[0].Outcomes[0].Target.Source, "crawl:")
}

func TestRun_NothingDiscovered(t *testing.T) {
	cfg := testConfig(t)
	cfg.Crawl.Seeds = []string{"missing_channel"}
	env := newTestEnv(cfg)

	sessions, err := env.runner.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, sessions)
	assert.Empty(t, env.executed)
}

func TestLoadWorklist(t *testing.T) {
	cfg := testConfig(t)
	env := newTestEnv(cfg)
	_, err := env.runner.LoadWorklist()
	assert.Error(t, err)

	cfg.Dispatch.WorklistFile = filepath.Join(cfg.StorageRoot, "work.txt")
	require.NoError(t, os.WriteFile(cfg.Dispatch.WorklistFile, []byte("@one_chan\thello\ntwo_chan\n"), 0644))
	env = newTestEnv(cfg)

	targets, err := env.runner.LoadWorklist()
	require.NoError(t, err)
	require.Len(t, targets, 2)
	assert.Equal(t, "hello", targets[0].Payload)
	assert.Equal(t, "two_chan", targets[1].Channel.Username)
}

func TestShard(t *testing.T) {
	targets := make([]model.ActionTarget, 5)
	for i := range targets {
		targets[i].Priority = i
	}

	shards := Shard(targets, 2)
	require.Len(t, shards, 2)
	assert.Len(t, shards[0], 3)
	assert.Len(t, shards[1], 2)
	assert.Equal(t, 1, shards[1][0].Priority)

	assert.Len(t, Shard(targets, 0), 1)
	assert.Len(t, Shard(nil, 3)[2], 0)
}

func TestWorklist(t *testing.T) {
	crawls := []model.CrawlResult{
		{CrawlID: "c1", Channels: []model.ChannelRef{
			{ID: 1, Username: "small_chan", SubscriberCount: subs(10), SearchDepth: 1},
			{ID: 2, Username: "mid_chan", SubscriberCount: subs(500), SearchDepth: 1},
			{ID: 3, Username: "unknown_chan", SearchDepth: 2},
		}},
		{CrawlID: "c2", Channels: []model.ChannelRef{
			{ID: 2, Username: "mid_chan", SubscriberCount: subs(500), SearchDepth: 1},
			{ID: 4, Username: "huge_chan", SubscriberCount: subs(90000), SearchDepth: 1},
		}},
	}

	targets := Worklist(crawls, 100, 10000)
	require.Len(t, targets, 2)
	assert.Equal(t, "mid_chan", targets[0].Channel.Username)
	assert.Equal(t, "crawl:c1", targets[0].Source)
	assert.Equal(t, "unknown_chan", targets[1].Channel.Username)
	assert.Equal(t, 2, targets[1].Priority)

	assert.Len(t, Worklist(crawls, 0, 0), 4)
}

func TestWriteChannelList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "list.txt")
	crawls := []model.CrawlResult{{CrawlID: "c1", Channels: []model.ChannelRef{
		{ID: 1, Username: "alpha_chan"},
		{ID: 2},
	}}}
	require.NoError(t, WriteChannelList(path, crawls))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "# crawl c1 seed \nhttps://t.me/alpha_chan\n", string(data))
}
