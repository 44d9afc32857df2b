// Package crawl discovers channels by walking the platform's
// channel-similarity graph breadth first.
package crawl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/researchaccelerator-hub/telegram-outreach/common"
	"github.com/researchaccelerator-hub/telegram-outreach/crawler"
	"github.com/researchaccelerator-hub/telegram-outreach/model"
	"github.com/researchaccelerator-hub/telegram-outreach/state"
	"github.com/rs/zerolog/log"
)

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// node is a channel whose recommendations are still to be fetched. A nil ref
// stands for the platform-wide recommendation list.
type node struct {
	ref *crawler.InternalRef
}

func (n node) username() string {
	if n.ref == nil {
		return ""
	}
	return n.ref.Username
}

// Crawler runs a single crawl. It owns the visited set for that crawl and
// must not be reused.
type Crawler struct {
	discovery crawler.DiscoveryClient
	seen      state.SeenStore
	sleep     Sleeper

	visited   map[int64]bool
	usernames map[string]bool
	collapsed int
	opts      Options
}

// New returns a crawler for one invocation. seen may be nil.
func New(discovery crawler.DiscoveryClient, seen state.SeenStore) *Crawler {
	return &Crawler{
		discovery: discovery,
		seen:      seen,
		sleep:     sleepCtx,
		visited:   make(map[int64]bool),
		usernames: make(map[string]bool),
	}
}

// Crawl is shorthand for New(discovery, seen).Crawl(ctx, seed, opts).
func Crawl(ctx context.Context, discovery crawler.DiscoveryClient, seen state.SeenStore, seed *model.ChannelRef, opts Options) (model.CrawlResult, error) {
	return New(discovery, seen).Crawl(ctx, seed, opts)
}

// Crawl expands seed level by level until TargetCount channels are found,
// MaxDepth is reached or a level yields nothing new. A nil seed starts from
// the platform-wide recommendations. Only an unresolvable seed is an error;
// cancellation returns the partial result with Cancelled set.
func (c *Crawler) Crawl(ctx context.Context, seed *model.ChannelRef, opts Options) (model.CrawlResult, error) {
	opts, err := opts.normalize()
	if err != nil {
		return model.CrawlResult{}, err
	}
	c.opts = opts

	result := model.CrawlResult{CrawlID: common.GenerateCrawlID()}

	start := node{}
	if seed != nil {
		result.Seed = seed.Key()
		ref, err := c.resolveSeed(ctx, seed)
		if err != nil {
			if ctx.Err() != nil {
				result.Cancelled = true
				return result, nil
			}
			return model.CrawlResult{}, err
		}
		c.visited[ref.ChatID] = true
		start.ref = &ref
	}

	log.Info().
		Str("crawl_id", result.CrawlID).
		Str("seed", result.Seed).
		Int("target_count", opts.TargetCount).
		Int("max_depth", opts.MaxDepth).
		Msg("Starting recommendation crawl")

	var found []model.ChannelRef
	frontier := []node{start}

levels:
	for depth := 1; depth <= opts.MaxDepth; depth++ {
		var fresh []model.ChannelRef

		for _, n := range frontier {
			raws, err := c.expand(ctx, n)
			if err != nil {
				result.Cancelled = true
				if len(fresh) > 0 {
					result.DepthReached = depth
				}
				break levels
			}

			for _, raw := range raws {
				ref, ok := c.accept(ctx, raw, depth)
				if !ok {
					continue
				}
				found = append(found, ref)
				fresh = append(fresh, ref)
				if len(found) >= opts.TargetCount {
					result.DepthReached = depth
					break levels
				}
			}
		}

		log.Info().
			Int("depth", depth).
			Int("frontier", len(frontier)).
			Int("new_channels", len(fresh)).
			Int("total", len(found)).
			Msg("Crawl level complete")

		if len(fresh) == 0 {
			break
		}
		result.DepthReached = depth

		frontier = c.nextFrontier(fresh)
		if len(frontier) == 0 {
			break
		}
	}

	if opts.RemoveDuplicates {
		var removed int
		found, removed = Dedup(found)
		result.DuplicatesRemoved = c.collapsed + removed
	}
	if found == nil {
		found = []model.ChannelRef{}
	}
	result.Channels = found

	if opts.RecordSeen && c.seen != nil && len(found) > 0 {
		keys := make([]string, len(found))
		for i, ch := range found {
			keys[i] = ch.Key()
		}
		if err := c.seen.AddAll(context.WithoutCancel(ctx), keys); err != nil {
			log.Error().Err(err).Str("crawl_id", result.CrawlID).Msg("Failed to record crawl results in seen set")
		}
	}

	log.Info().
		Str("crawl_id", result.CrawlID).
		Int("channels", len(result.Channels)).
		Int("depth_reached", result.DepthReached).
		Int("duplicates_removed", result.DuplicatesRemoved).
		Bool("cancelled", result.Cancelled).
		Msg("Crawl finished")

	return result, nil
}

func (c *Crawler) resolveSeed(ctx context.Context, seed *model.ChannelRef) (crawler.InternalRef, error) {
	if !seed.HasUsername() {
		if seed.ID == 0 {
			return crawler.InternalRef{}, fmt.Errorf("seed has neither id nor username: %w", crawler.ErrChannelNotFound)
		}
		return crawler.InternalRef{ChatID: seed.ID}, nil
	}

	if err := c.sleep(ctx, c.opts.RequestDelay); err != nil {
		return crawler.InternalRef{}, err
	}
	ref, err := c.discovery.Resolve(ctx, seed.NormalizedUsername())
	if err != nil {
		log.Error().Err(err).Str("seed", seed.NormalizedUsername()).Msg("Failed to resolve seed channel")
		return crawler.InternalRef{}, fmt.Errorf("resolve seed %s: %w", seed.NormalizedUsername(), err)
	}
	if ref.Username == "" {
		ref.Username = seed.NormalizedUsername()
	}
	return ref, nil
}

// expand fetches the candidates of one node, falling back to keyword search
// when the recommendation call fails. The only error is cancellation.
func (c *Crawler) expand(ctx context.Context, n node) ([]crawler.RawChannel, error) {
	if err := c.sleep(ctx, c.opts.RequestDelay); err != nil {
		return nil, err
	}

	raws, err := c.discovery.GetRecommendations(ctx, n.ref, c.opts.FirstLevelLimit)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err == nil {
		return raws, nil
	}

	log.Warn().Err(err).Str("channel", n.username()).Msg("Recommendations unavailable, falling back to keyword search")
	return c.fallback(ctx, n.username())
}

func (c *Crawler) fallback(ctx context.Context, username string) ([]crawler.RawChannel, error) {
	keywords := Keywords(username)
	if len(keywords) == 0 {
		return nil, nil
	}

	if err := c.sleep(ctx, c.opts.RequestDelay); err != nil {
		return nil, err
	}
	raws, err := c.discovery.SearchByKeywords(ctx, keywords, c.opts.FirstLevelLimit)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		log.Warn().Err(err).Strs("keywords", keywords).Msg("Keyword search failed")
		return nil, nil
	}

	broadcast := raws[:0:0]
	for _, raw := range raws {
		if raw.IsBroadcast {
			broadcast = append(broadcast, raw)
		}
	}
	return broadcast, nil
}

// accept applies the visited, seen-set and subscriber filters to a candidate.
func (c *Crawler) accept(ctx context.Context, raw crawler.RawChannel, depth int) (model.ChannelRef, bool) {
	if !raw.IsBroadcast {
		return model.ChannelRef{}, false
	}
	if raw.ID != 0 {
		if c.visited[raw.ID] {
			return model.ChannelRef{}, false
		}
		c.visited[raw.ID] = true
	}

	ref := model.ChannelRef{
		ID:              raw.ID,
		Username:        raw.Username,
		Title:           raw.Title,
		SubscriberCount: raw.SubscriberCount,
		Verified:        raw.Verified,
		SearchDepth:     depth,
	}

	if c.opts.ExcludeSeen && c.seen != nil {
		seen, err := c.seen.Contains(ctx, ref.Key())
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Warn().Err(err).Str("key", ref.Key()).Msg("Seen-set lookup failed, treating channel as new")
		}
		if seen {
			return model.ChannelRef{}, false
		}
	}

	if !c.opts.inRange(ref.SubscriberCount) {
		return model.ChannelRef{}, false
	}

	// Username twins are dropped here so they never count towards TargetCount.
	if c.opts.RemoveDuplicates && ref.HasUsername() {
		name := ref.NormalizedUsername()
		if c.usernames[name] {
			c.collapsed++
			return model.ChannelRef{}, false
		}
		c.usernames[name] = true
	}
	return ref, true
}

// nextFrontier picks the first FanOut new channels that expose a username.
func (c *Crawler) nextFrontier(fresh []model.ChannelRef) []node {
	var next []node
	for _, ch := range fresh {
		if len(next) == c.opts.FanOut {
			break
		}
		if !ch.HasUsername() {
			continue
		}
		next = append(next, node{ref: &crawler.InternalRef{ChatID: ch.ID, Username: ch.NormalizedUsername()}})
	}
	return next
}
