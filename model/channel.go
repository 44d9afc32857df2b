package model

import (
	"fmt"
	"strings"
)

// ChannelRef is a discovered or configured Telegram channel.
type ChannelRef struct {
	ID              int64  `json:"id"`
	Username        string `json:"username,omitempty"`
	Title           string `json:"title"`
	SubscriberCount *int   `json:"subscriber_count,omitempty"`
	Verified        bool   `json:"verified"`
	SearchDepth     int    `json:"search_depth"`
}

// HasUsername reports whether the channel exposes a public username.
func (c ChannelRef) HasUsername() bool {
	return strings.TrimSpace(c.Username) != ""
}

// NormalizedUsername returns the lower-cased username without a leading '@'.
func (c ChannelRef) NormalizedUsername() string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(c.Username), "@"))
}

// Key returns the identifier used by seen-set and already-acted stores.
// Channels known only by username are keyed by their normalized username.
func (c ChannelRef) Key() string {
	if c.ID != 0 {
		return fmt.Sprintf("%d", c.ID)
	}
	return "@" + c.NormalizedUsername()
}

// URL returns the public t.me link for the channel, or an empty string when
// the channel has no username.
func (c ChannelRef) URL() string {
	if !c.HasUsername() {
		return ""
	}
	return "https://t.me/" + strings.TrimPrefix(c.Username, "@")
}

// CrawlResult is the output of a single recommendation crawl.
type CrawlResult struct {
	CrawlID           string       `json:"crawl_id"`
	Seed              string       `json:"seed,omitempty"`
	Channels          []ChannelRef `json:"channels"`
	DepthReached      int          `json:"depth_reached"`
	DuplicatesRemoved int          `json:"duplicates_removed"`
	Cancelled         bool         `json:"cancelled"`
}
