package dispatch

import (
	"time"

	"github.com/researchaccelerator-hub/telegram-outreach/model"
)

// Backoff is a multiplicative-increase, multiplicative-decrease pacing
// policy. It holds no state; callers pass the current delay in.
type Backoff struct {
	Floor    time.Duration
	Ceiling  time.Duration
	Increase float64
	Decrease float64
}

// DefaultBackoff returns floor 1s, ceiling 30s, x2 on rate limits and x0.9
// on success.
func DefaultBackoff() Backoff {
	return Backoff{
		Floor:    time.Second,
		Ceiling:  30 * time.Second,
		Increase: 2,
		Decrease: 0.9,
	}
}

// withDefaults fills unset fields from DefaultBackoff.
func (b Backoff) withDefaults() Backoff {
	def := DefaultBackoff()
	if b.Floor <= 0 {
		b.Floor = def.Floor
	}
	if b.Ceiling <= 0 {
		b.Ceiling = def.Ceiling
	}
	if b.Ceiling < b.Floor {
		b.Ceiling = b.Floor
	}
	if b.Increase <= 1 {
		b.Increase = def.Increase
	}
	if b.Decrease <= 0 || b.Decrease >= 1 {
		b.Decrease = def.Decrease
	}
	return b
}

// OnSuccess returns max(Floor, d*Decrease).
func (b Backoff) OnSuccess(d time.Duration) time.Duration {
	return max(b.Floor, time.Duration(float64(d)*b.Decrease))
}

// OnRateLimit returns min(Ceiling, d*Increase).
func (b Backoff) OnRateLimit(d time.Duration) time.Duration {
	return min(b.Ceiling, time.Duration(float64(d)*b.Increase))
}

// Next applies the policy for one classified attempt. Only successes and
// rate-limited transient failures move the delay.
func (b Backoff) Next(d time.Duration, class classification) time.Duration {
	switch {
	case class.Class == model.ClassSuccess:
		return b.OnSuccess(d)
	case class.Class == model.ClassTransient && class.RateLimited:
		return b.OnRateLimit(d)
	default:
		return d
	}
}
