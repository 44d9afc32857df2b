// Package standalone runs crawls and dispatch sessions from the command line.
package standalone

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/researchaccelerator-hub/telegram-outreach/common"
	"github.com/researchaccelerator-hub/telegram-outreach/content"
	"github.com/researchaccelerator-hub/telegram-outreach/crawl"
	"github.com/researchaccelerator-hub/telegram-outreach/crawler"
	"github.com/researchaccelerator-hub/telegram-outreach/dispatch"
	"github.com/researchaccelerator-hub/telegram-outreach/distributed"
	"github.com/researchaccelerator-hub/telegram-outreach/model"
	"github.com/researchaccelerator-hub/telegram-outreach/results"
	"github.com/researchaccelerator-hub/telegram-outreach/state"
	"github.com/researchaccelerator-hub/telegram-outreach/telegramhelper"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// DefaultAccount is used when no accounts are configured.
const DefaultAccount = "default"

// ClientSource hands out one authenticated client per account.
type ClientSource interface {
	Acquire(account string) (crawler.TDLibClient, error)
	Release(account string)
	Discard(account string)
	Close()
}

// Publisher receives finished crawl and session results.
type Publisher interface {
	PublishCrawl(ctx context.Context, account string, result model.CrawlResult) error
	PublishSession(ctx context.Context, result model.SessionResult) error
	Close() error
}

// Runner ties configuration, Telegram clients, stores and publishing together.
type Runner struct {
	cfg       common.Config
	clients   ClientSource
	generator content.Generator
	publisher Publisher

	newDiscovery func(crawler.TDLibClient) crawler.DiscoveryClient
	newActions   func(crawler.TDLibClient) crawler.ActionClient
	openStore    func(namespace string) (state.SeenStore, error)
}

// NewRunner builds a runner backed by TDLib sessions under cfg.StorageRoot.
func NewRunner(cfg common.Config) (*Runner, error) {
	service := &telegramhelper.RealTelegramService{
		Verbosity:   cfg.TDLibVerbosity,
		InitTimeout: cfg.RequestTimeout,
	}
	r := &Runner{
		cfg:     cfg,
		clients: telegramhelper.NewAccountPool(service, cfg.StorageRoot),
		newDiscovery: func(c crawler.TDLibClient) crawler.DiscoveryClient {
			return telegramhelper.NewTDLibDiscovery(c, cfg.RequestTimeout)
		},
		newActions: func(c crawler.TDLibClient) crawler.ActionClient {
			return telegramhelper.NewTDLibActionClient(c, cfg.RequestTimeout)
		},
		openStore: func(namespace string) (state.SeenStore, error) {
			return state.NewSeenStore(cfg.StateConfig(), namespace)
		},
	}

	if model.ActionKind(cfg.Dispatch.Action).NeedsPayload() {
		gen, err := content.New(cfg.Content)
		if err != nil {
			return nil, fmt.Errorf("failed to create content generator: %w", err)
		}
		r.generator = gen
	}

	if cfg.Publish.Enabled {
		pub, err := distributed.NewResultPublisher(cfg.Publish)
		if err != nil {
			return nil, fmt.Errorf("failed to create result publisher: %w", err)
		}
		r.publisher = pub
	}
	return r, nil
}

// Close releases clients and the publisher.
func (r *Runner) Close() {
	r.clients.Close()
	if r.publisher != nil {
		if err := r.publisher.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close result publisher")
		}
	}
}

func (r *Runner) accounts() []string {
	if len(r.cfg.Accounts) == 0 {
		return []string{DefaultAccount}
	}
	return r.cfg.Accounts
}

// Seeds returns the configured seeds followed by those from the seed file.
func (r *Runner) Seeds() ([]string, error) {
	var seeds []string
	for _, s := range r.cfg.Crawl.Seeds {
		username, ok := common.NormalizeUsername(s)
		if !ok {
			log.Warn().Str("seed", s).Msg("Ignoring invalid seed")
			continue
		}
		seeds = append(seeds, username)
	}
	if r.cfg.Crawl.SeedFile != "" {
		fromFile, err := common.ReadChannelsFromFile(r.cfg.Crawl.SeedFile)
		if err != nil {
			return nil, err
		}
		seeds = append(seeds, fromFile...)
	}
	return seeds, nil
}

func (r *Runner) crawlOptions() crawl.Options {
	c := r.cfg.Crawl
	return crawl.Options{
		TargetCount:      c.TargetCount,
		MaxDepth:         c.MaxDepth,
		FirstLevelLimit:  c.FirstLevelLimit,
		FanOut:           c.FanOut,
		RemoveDuplicates: c.RemoveDuplicates,
		MinSubscribers:   c.MinSubscribers,
		MaxSubscribers:   c.MaxSubscribers,
		RequestDelay:     c.RequestDelay,
		ExcludeSeen:      c.ExcludeSeen,
		RecordSeen:       c.RecordSeen,
	}
}

func (r *Runner) dispatchOptions(account string) dispatch.Options {
	d := r.cfg.Dispatch
	return dispatch.Options{
		Action:              model.ActionKind(d.Action),
		Account:             account,
		DelayBetweenActions: d.DelayBetweenActions,
		MaxPerSession:       d.MaxPerSession,
		RandomizeOrder:      d.RandomizeOrder,
		DryRun:              d.DryRun,
		SkipAlreadyDone:     d.SkipAlreadyDone,
		RecordDone:          true,
		CriticalThreshold:   d.CriticalThreshold,
		Backoff:             dispatch.Backoff{Floor: d.BackoffFloor, Ceiling: d.BackoffCeiling},
	}
}

// RunCrawl crawls every seed with the first account, or the platform-wide
// recommendations when there are no seeds. An unresolvable seed is logged
// and skipped.
func (r *Runner) RunCrawl(ctx context.Context) ([]model.CrawlResult, error) {
	seeds, err := r.Seeds()
	if err != nil {
		return nil, err
	}

	account := r.accounts()[0]
	client, err := r.clients.Acquire(account)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire client for %s: %w", account, err)
	}
	defer r.clients.Release(account)

	var seen state.SeenStore
	if r.cfg.Crawl.ExcludeSeen || r.cfg.Crawl.RecordSeen {
		seen, err = r.openStore(state.NamespaceSeen)
		if err != nil {
			return nil, fmt.Errorf("failed to open seen set: %w", err)
		}
		defer seen.Close()
	}

	discovery := r.newDiscovery(client)
	opts := r.crawlOptions()

	starts := make([]*model.ChannelRef, 0, len(seeds))
	for _, s := range seeds {
		starts = append(starts, &model.ChannelRef{Username: s})
	}
	if len(starts) == 0 {
		log.Info().Msg("No seeds configured, crawling platform-wide recommendations")
		starts = append(starts, nil)
	}

	var out []model.CrawlResult
	for i, seed := range starts {
		if ctx.Err() != nil {
			break
		}

		result, err := crawl.Crawl(ctx, discovery, seen, seed, opts)
		if err != nil {
			if errors.Is(err, crawl.ErrInvalidOptions) {
				return out, err
			}
			log.Error().Err(err).Str("seed", seedLabel(seed)).Msg("Crawl failed, continuing with next seed")
			continue
		}

		if _, err := results.Save(r.cfg.StorageRoot, fmt.Sprintf("crawl-%s-%d", result.CrawlID, i), result); err != nil {
			log.Error().Err(err).Str("crawl_id", result.CrawlID).Msg("Failed to save crawl result")
		}
		r.publishCrawl(ctx, account, result)
		out = append(out, result)
		if result.Cancelled {
			break
		}
	}

	if r.cfg.Crawl.OutputFile != "" {
		if err := WriteChannelList(r.cfg.Crawl.OutputFile, out); err != nil {
			return out, err
		}
	}
	return out, nil
}

func seedLabel(seed *model.ChannelRef) string {
	if seed == nil {
		return "<recommended>"
	}
	return seed.Key()
}

// LoadWorklist reads the configured worklist file.
func (r *Runner) LoadWorklist() ([]model.ActionTarget, error) {
	if r.cfg.Dispatch.WorklistFile == "" {
		return nil, fmt.Errorf("no worklist file configured")
	}
	return common.ReadWorklistFromFile(r.cfg.Dispatch.WorklistFile)
}

// RunDispatch splits targets across the configured accounts and runs one
// session per account concurrently. Sessions that could not start are
// reported in the returned error; the others still complete.
func (r *Runner) RunDispatch(ctx context.Context, targets []model.ActionTarget) ([]model.SessionResult, error) {
	acted, err := r.openStore(state.NamespaceActed)
	if err != nil {
		return nil, fmt.Errorf("failed to open acted store: %w", err)
	}
	defer acted.Close()

	accounts := r.accounts()
	shards := Shard(targets, len(accounts))

	var (
		mu       sync.Mutex
		sessions = make([]*model.SessionResult, len(accounts))
		failures []error
		g        errgroup.Group
	)
	for i, account := range accounts {
		if len(shards[i]) == 0 {
			continue
		}
		g.Go(func() error {
			result, err := r.dispatchAccount(ctx, account, shards[i], acted)
			if err != nil {
				log.Error().Err(err).Str("account", account).Msg("Dispatch session failed to start")
				mu.Lock()
				failures = append(failures, fmt.Errorf("account %s: %w", account, err))
				mu.Unlock()
				return nil
			}
			sessions[i] = &result
			return nil
		})
	}
	_ = g.Wait()

	var out []model.SessionResult
	for _, s := range sessions {
		if s != nil {
			out = append(out, *s)
		}
	}
	return out, errors.Join(failures...)
}

func (r *Runner) dispatchAccount(ctx context.Context, account string, targets []model.ActionTarget, acted state.SeenStore) (model.SessionResult, error) {
	client, err := r.clients.Acquire(account)
	if err != nil {
		return model.SessionResult{}, err
	}

	d := dispatch.New(r.newActions(client), r.generator, acted)
	result, err := d.Dispatch(ctx, targets, r.dispatchOptions(account))
	if err != nil {
		r.clients.Release(account)
		return model.SessionResult{}, err
	}

	// A locked-out account gets a fresh client next time.
	if result.Aborted {
		r.clients.Discard(account)
	} else {
		r.clients.Release(account)
	}

	if _, err := results.Save(r.cfg.StorageRoot, "session-"+result.SessionID, result); err != nil {
		log.Error().Err(err).Str("session_id", result.SessionID).Msg("Failed to save session result")
	}
	r.publishSession(ctx, result)
	return result, nil
}

// Run crawls, converts the discovered channels into a worklist and
// dispatches it.
func (r *Runner) Run(ctx context.Context) ([]model.SessionResult, error) {
	crawls, err := r.RunCrawl(ctx)
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	targets := Worklist(crawls, r.cfg.Crawl.MinSubscribers, r.cfg.Crawl.MaxSubscribers)
	log.Info().Int("crawls", len(crawls)).Int("targets", len(targets)).Msg("Worklist built from crawl results")
	if len(targets) == 0 {
		return nil, nil
	}
	return r.RunDispatch(ctx, targets)
}

func (r *Runner) publishCrawl(ctx context.Context, account string, result model.CrawlResult) {
	if r.publisher == nil {
		return
	}
	if err := r.publisher.PublishCrawl(context.WithoutCancel(ctx), account, result); err != nil {
		log.Warn().Err(err).Str("crawl_id", result.CrawlID).Msg("Failed to publish crawl result")
	}
}

func (r *Runner) publishSession(ctx context.Context, result model.SessionResult) {
	if r.publisher == nil {
		return
	}
	if err := r.publisher.PublishSession(context.WithoutCancel(ctx), result); err != nil {
		log.Warn().Err(err).Str("session_id", result.SessionID).Msg("Failed to publish session result")
	}
}

// Shard deals targets round-robin into n disjoint slices.
func Shard(targets []model.ActionTarget, n int) [][]model.ActionTarget {
	if n < 1 {
		n = 1
	}
	shards := make([][]model.ActionTarget, n)
	for i, t := range targets {
		shards[i%n] = append(shards[i%n], t)
	}
	return shards
}

// Worklist converts crawl results into action targets, dropping channels
// outside [minSubs, maxSubs] and channels already listed by an earlier crawl.
// Zero bounds are unbounded; unknown subscriber counts are kept.
func Worklist(crawls []model.CrawlResult, minSubs, maxSubs int) []model.ActionTarget {
	seen := make(map[string]bool)
	var targets []model.ActionTarget
	for _, c := range crawls {
		for _, ch := range c.Channels {
			if n := ch.SubscriberCount; n != nil {
				if (minSubs > 0 && *n < minSubs) || (maxSubs > 0 && *n > maxSubs) {
					continue
				}
			}
			if seen[ch.Key()] {
				continue
			}
			seen[ch.Key()] = true
			targets = append(targets, model.ActionTarget{
				Channel:  ch,
				Priority: ch.SearchDepth,
				Source:   "crawl:" + c.CrawlID,
			})
		}
	}
	return targets
}

// WriteChannelList writes the t.me links of every discovered channel with a
// username, one per line, in the format accepted by worklist files.
func WriteChannelList(path string, crawls []model.CrawlResult) error {
	var b strings.Builder
	for _, c := range crawls {
		fmt.Fprintf(&b, "# crawl %s seed %s\n", c.CrawlID, c.Seed)
		for _, ch := range c.Channels {
			if url := ch.URL(); url != "" {
				b.WriteString(url)
				b.WriteByte('\n')
			}
		}
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("failed to write channel list: %w", err)
	}
	log.Info().Str("path", path).Msg("Channel list written")
	return nil
}
