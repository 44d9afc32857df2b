package standalone

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Schedule runs job on the standard five-field cron spec until ctx is done.
// A run that is still in progress when the next one is due is skipped.
func Schedule(ctx context.Context, spec string, job func(context.Context) error) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))

	_, err := c.AddFunc(spec, func() {
		log.Info().Str("schedule", spec).Msg("Scheduled run starting")
		if err := job(ctx); err != nil {
			log.Error().Err(err).Msg("Scheduled run failed")
			return
		}
		log.Info().Msg("Scheduled run finished")
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}

	c.Start()
	log.Info().Str("schedule", spec).Msg("Scheduler started")

	<-ctx.Done()
	stopped := c.Stop()
	<-stopped.Done()
	log.Info().Msg("Scheduler stopped")
	return nil
}
