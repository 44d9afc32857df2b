package crawl

import (
	"errors"
	"fmt"
	"time"
)

const (
	// MaxPageSize is the platform's own ceiling for a single recommendation page.
	MaxPageSize = 100

	DefaultFanOut       = 5
	DefaultRequestDelay = time.Second
)

// ErrInvalidOptions is returned when crawl options fail validation.
var ErrInvalidOptions = errors.New("invalid crawl options")

// Options bound a single crawl.
type Options struct {
	TargetCount      int // stop once this many unique channels are found
	MaxDepth         int // 0 means a single level
	FirstLevelLimit  int // per-call page size, clamped to MaxPageSize
	FanOut           int // channels seeding the next level
	RemoveDuplicates bool
	MinSubscribers   int           // inclusive, 0 = unbounded
	MaxSubscribers   int           // inclusive, 0 = unbounded
	RequestDelay     time.Duration // 0 means DefaultRequestDelay, negative disables

	ExcludeSeen bool // drop channels present in the seen-set store
	RecordSeen  bool // add results to the seen-set store
}

func (o Options) normalize() (Options, error) {
	if o.TargetCount < 1 {
		return o, fmt.Errorf("%w: target count must be at least 1, got %d", ErrInvalidOptions, o.TargetCount)
	}
	if o.MaxDepth < 0 {
		return o, fmt.Errorf("%w: max depth cannot be negative", ErrInvalidOptions)
	}
	if o.MinSubscribers < 0 || o.MaxSubscribers < 0 {
		return o, fmt.Errorf("%w: subscriber bounds cannot be negative", ErrInvalidOptions)
	}
	if o.MaxSubscribers > 0 && o.MinSubscribers > o.MaxSubscribers {
		return o, fmt.Errorf("%w: min subscribers %d exceeds max subscribers %d", ErrInvalidOptions, o.MinSubscribers, o.MaxSubscribers)
	}

	if o.MaxDepth == 0 {
		o.MaxDepth = 1
	}
	if o.FirstLevelLimit <= 0 || o.FirstLevelLimit > MaxPageSize {
		o.FirstLevelLimit = MaxPageSize
	}
	if o.FanOut <= 0 {
		o.FanOut = DefaultFanOut
	}
	switch {
	case o.RequestDelay == 0:
		o.RequestDelay = DefaultRequestDelay
	case o.RequestDelay < 0:
		o.RequestDelay = 0
	}
	return o, nil
}

// inRange reports whether count satisfies the subscriber bounds. Channels
// with an unknown count are kept.
func (o Options) inRange(count *int) bool {
	if count == nil {
		return true
	}
	if o.MinSubscribers > 0 && *count < o.MinSubscribers {
		return false
	}
	if o.MaxSubscribers > 0 && *count > o.MaxSubscribers {
		return false
	}
	return true
}
