// Package dispatch applies one action to every target of a worklist,
// pacing itself from the success and rate-limit signals it observes.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/researchaccelerator-hub/telegram-outreach/content"
	"github.com/researchaccelerator-hub/telegram-outreach/crawler"
	"github.com/researchaccelerator-hub/telegram-outreach/model"
	"github.com/researchaccelerator-hub/telegram-outreach/results"
	"github.com/researchaccelerator-hub/telegram-outreach/state"
	"github.com/rs/zerolog/log"
)

// ErrInvalidOptions is returned when dispatch options fail validation.
var ErrInvalidOptions = errors.New("invalid dispatch options")

const dryRunResultID = "dry-run"

// Options configure one dispatch session.
type Options struct {
	Action              model.ActionKind
	Account             string
	DelayBetweenActions time.Duration // pacing floor between consecutive actions
	MaxPerSession       int           // 0 = no cap
	RandomizeOrder      bool
	DryRun              bool
	SkipAlreadyDone     bool          // consult the acted store before each session
	RecordDone          bool          // add successful targets to the acted store
	CriticalThreshold   time.Duration // rate-limit lockout that aborts the session
	ExecuteTimeout      time.Duration // 0 = rely on the action client's own timeout
	Backoff             Backoff
}

func (o Options) normalize() (Options, error) {
	switch o.Action {
	case model.ActionJoin, model.ActionMessage, model.ActionComment:
	default:
		return o, fmt.Errorf("%w: unknown action %q", ErrInvalidOptions, o.Action)
	}
	if o.MaxPerSession < 0 {
		return o, fmt.Errorf("%w: max per session cannot be negative", ErrInvalidOptions)
	}
	if o.DelayBetweenActions < 0 {
		o.DelayBetweenActions = 0
	}
	if o.CriticalThreshold <= 0 {
		o.CriticalThreshold = DefaultCriticalThreshold
	}
	o.Backoff = o.Backoff.withDefaults()
	return o, nil
}

// Dispatcher runs sessions against a single account. It holds the session's
// pacing state and must not be shared between concurrent sessions.
type Dispatcher struct {
	client    crawler.ActionClient
	generator content.Generator
	done      state.SeenStore

	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
	shuffle func(targets []model.ActionTarget)

	adaptiveDelay time.Duration
	lastActionAt  time.Time
}

// New returns a dispatcher. generator supplies text for targets without a
// payload and done is the already-acted store; both may be nil.
func New(client crawler.ActionClient, generator content.Generator, done state.SeenStore) *Dispatcher {
	return &Dispatcher{
		client:    client,
		generator: generator,
		done:      done,
		now:       time.Now,
		sleep:     sleepCtx,
		shuffle: func(targets []model.ActionTarget) {
			rand.Shuffle(len(targets), func(i, j int) { targets[i], targets[j] = targets[j], targets[i] })
		},
	}
}

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

// Dispatch executes opts.Action against targets in order, one at a time.
// Per-target failures are recorded as outcomes; a critical failure aborts
// the remaining worklist. Cancellation is observed between actions and an
// in-flight action is allowed to finish. The only error is invalid options.
func (d *Dispatcher) Dispatch(ctx context.Context, targets []model.ActionTarget, opts Options) (model.SessionResult, error) {
	opts, err := opts.normalize()
	if err != nil {
		return model.SessionResult{}, err
	}

	result := model.SessionResult{
		SessionID: uuid.NewString(),
		Account:   opts.Account,
		Action:    opts.Action,
		DryRun:    opts.DryRun,
		StartedAt: d.now(),
		Outcomes:  []model.ActionOutcome{},
	}

	work := d.plan(ctx, targets, opts, &result)
	result.TotalTargets = len(work)

	d.adaptiveDelay = opts.Backoff.Floor
	d.lastActionAt = time.Time{}

	logger := log.With().
		Str("session_id", result.SessionID).
		Str("account", opts.Account).
		Str("action", string(opts.Action)).
		Logger()
	logger.Info().
		Int("targets", len(work)).
		Int("skipped", result.SkippedCount).
		Bool("dry_run", opts.DryRun).
		Msg("Dispatch session started")

	for i, target := range work {
		if err := d.wait(ctx, opts); err != nil {
			result.Cancelled = true
			logger.Warn().Int("remaining", len(work)-i).Msg("Dispatch session cancelled")
			break
		}

		outcome, class := d.attempt(ctx, target, opts)
		result.Outcomes = append(result.Outcomes, outcome)
		d.adaptiveDelay = opts.Backoff.Next(d.adaptiveDelay, class)

		event := logger.Debug()
		if !outcome.Success {
			event = logger.Warn().Str("class", string(outcome.Class)).Str("code", string(outcome.Error.Code))
		}
		event.
			Int("index", i).
			Str("target", target.Channel.Key()).
			Dur("adaptive_delay", d.adaptiveDelay).
			Msg("Action attempted")

		switch class.Class {
		case model.ClassSuccess:
			d.recordDone(ctx, target, opts)
		case model.ClassTransient:
			retry := target
			retry.RetryCount++
			result.RetryQueue = append(result.RetryQueue, retry)
		case model.ClassCritical:
			result.Aborted = true
		}
		if result.Aborted {
			logger.Error().
				Dur("retry_after", class.Err.RetryAfter).
				Int("remaining", len(work)-i-1).
				Msg("Critical rate limit, aborting session")
			break
		}
	}

	result.FinishedAt = d.now()
	results.Finalize(&result)

	logger.Info().
		Int("successful", result.SuccessfulCount).
		Int("failed", result.FailedCount).
		Bool("aborted", result.Aborted).
		Bool("cancelled", result.Cancelled).
		Float64("success_rate", result.Summary.SuccessRate).
		Msg("Dispatch session finished")

	return result, nil
}

// plan orders, filters and caps the worklist.
func (d *Dispatcher) plan(ctx context.Context, targets []model.ActionTarget, opts Options, result *model.SessionResult) []model.ActionTarget {
	work := make([]model.ActionTarget, 0, len(targets))
	for _, t := range targets {
		if opts.SkipAlreadyDone && d.done != nil {
			done, err := d.done.Contains(ctx, actedKey(t.Channel))
			if err != nil {
				log.Warn().Err(err).Str("target", actedKey(t.Channel)).Msg("Acted-store lookup failed, keeping target")
			}
			if done {
				result.SkippedCount++
				continue
			}
		}
		work = append(work, t)
	}

	if opts.RandomizeOrder {
		d.shuffle(work)
	}
	if opts.MaxPerSession > 0 && len(work) > opts.MaxPerSession {
		work = work[:opts.MaxPerSession]
	}
	return work
}

// wait sleeps until max(DelayBetweenActions, adaptive delay) has passed
// since the previous action started.
func (d *Dispatcher) wait(ctx context.Context, opts Options) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d.lastActionAt.IsZero() {
		return nil
	}
	pause := max(opts.DelayBetweenActions, d.adaptiveDelay) - d.now().Sub(d.lastActionAt)
	if pause <= 0 {
		return nil
	}
	return d.sleep(ctx, pause)
}

// attempt runs the content and execute steps for one target and classifies
// the result.
func (d *Dispatcher) attempt(ctx context.Context, target model.ActionTarget, opts Options) (model.ActionOutcome, classification) {
	started := d.now()
	d.lastActionAt = started

	outcome := model.ActionOutcome{
		Target:     target,
		Timestamp:  started,
		RetryCount: target.RetryCount,
	}

	// The in-flight action is detached from cancellation.
	execCtx := context.WithoutCancel(ctx)
	if opts.ExecuteTimeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(execCtx, opts.ExecuteTimeout)
		defer cancel()
	}

	payload := target.Payload
	if opts.Action.NeedsPayload() && payload == "" {
		text, err := d.generate(execCtx, target)
		if err != nil {
			// Generation failures are retried like network errors but never
			// slow down pacing.
			c := classification{
				Class: model.ClassTransient,
				Err:   &model.ActionError{Code: model.ErrorContentUnavailable, Message: err.Error(), Err: err},
			}
			return fill(outcome, c, ""), c
		}
		payload = text
	}

	if opts.DryRun {
		c := classification{Class: model.ClassSuccess}
		return fill(outcome, c, dryRunResultID), c
	}

	res, err := d.client.Execute(execCtx, opts.Action, target, payload)
	c := classify(err, opts.CriticalThreshold)
	return fill(outcome, c, res.ResultID), c
}

func (d *Dispatcher) generate(ctx context.Context, target model.ActionTarget) (string, error) {
	if d.generator == nil {
		return "", errors.New("no payload and no content generator configured")
	}
	return d.generator.Generate(ctx, target.Channel)
}

func fill(o model.ActionOutcome, c classification, resultID string) model.ActionOutcome {
	o.Class = c.Class
	o.Success = c.Class == model.ClassSuccess
	if o.Success {
		o.ResultID = resultID
		return o
	}
	o.Error = &model.OutcomeError{
		Class:             c.Class,
		Code:              c.Err.Code,
		Message:           c.Err.Error(),
		RetryAfterSeconds: int(c.Err.RetryAfter / time.Second),
	}
	return o
}

func (d *Dispatcher) recordDone(ctx context.Context, target model.ActionTarget, opts Options) {
	if !opts.RecordDone || opts.DryRun || d.done == nil {
		return
	}
	if err := d.done.AddAll(context.WithoutCancel(ctx), []string{actedKey(target.Channel)}); err != nil {
		log.Warn().Err(err).Str("target", actedKey(target.Channel)).Msg("Failed to record acted target")
	}
}

// actedKey identifies a target in the acted store. Usernames are preferred
// so that worklists loaded from files and from crawls share keys.
func actedKey(ch model.ChannelRef) string {
	if ch.HasUsername() {
		return "@" + ch.NormalizedUsername()
	}
	return ch.Key()
}
