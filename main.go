package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/researchaccelerator-hub/telegram-outreach/common"
	"github.com/researchaccelerator-hub/telegram-outreach/model"
	"github.com/researchaccelerator-hub/telegram-outreach/standalone"
	"github.com/researchaccelerator-hub/telegram-outreach/telegramhelper"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "TGOUTREACH"

func main() {
	root, _ := newRootCmd()
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. The returned viper instance holds the
// flag bindings and is what loadConfig reads from.
func newRootCmd() (*cobra.Command, *viper.Viper) {
	v := viper.New()
	var cfgFile string

	root := &cobra.Command{
		Use:   "telegram-outreach",
		Short: "Discover Telegram channels and act on them at a safe pace",
		Long: `telegram-outreach walks Telegram's channel-recommendation graph from seed
channels and dispatches join, message or comment actions to the discovered
channels, backing off whenever the platform rate-limits the account.

Examples:
  # Crawl two levels of recommendations from a seed
  telegram-outreach crawl --seeds durov --max-depth 2

  # Join every channel in a worklist, spread over two accounts
  telegram-outreach dispatch --worklist channels.txt --accounts main,backup

  # Crawl then comment, every day at 09:00
  telegram-outreach run --seeds durov --action comment --schedule "0 9 * * *"`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (yaml, json or toml)")
	addConfigFlags(root.PersistentFlags(), common.DefaultConfig())
	bindFlags(v, root.PersistentFlags())

	withRunner := func(job func(context.Context, *standalone.Runner) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v, cfgFile)
			if err != nil {
				return err
			}
			common.SetupLogging(cfg.LogLevel, cfg.LogFile)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			runner, err := standalone.NewRunner(cfg)
			if err != nil {
				return err
			}
			defer runner.Close()

			if cfg.Schedule != "" {
				return standalone.Schedule(ctx, cfg.Schedule, func(ctx context.Context) error {
					return job(ctx, runner)
				})
			}
			return job(ctx, runner)
		}
	}

	crawlCmd := &cobra.Command{
		Use:   "crawl",
		Short: "Discover channels through recommendations",
		RunE: withRunner(func(ctx context.Context, r *standalone.Runner) error {
			crawls, err := r.RunCrawl(ctx)
			for _, c := range crawls {
				log.Info().Str("crawl_id", c.CrawlID).Str("seed", c.Seed).Int("channels", len(c.Channels)).Msg("Crawl result")
			}
			return err
		}),
	}

	dispatchCmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Apply the configured action to every channel in a worklist",
		RunE: withRunner(func(ctx context.Context, r *standalone.Runner) error {
			targets, err := r.LoadWorklist()
			if err != nil {
				return err
			}
			sessions, err := r.RunDispatch(ctx, targets)
			logSessions(sessions)
			return err
		}),
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Crawl, then dispatch to the discovered channels",
		RunE: withRunner(func(ctx context.Context, r *standalone.Runner) error {
			sessions, err := r.Run(ctx)
			logSessions(sessions)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}),
	}

	authCmd := &cobra.Command{
		Use:   "auth",
		Short: "Log in every configured account and store its TDLib session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v, cfgFile)
			if err != nil {
				return err
			}
			common.SetupLogging(cfg.LogLevel, cfg.LogFile)

			service := &telegramhelper.RealTelegramService{Verbosity: cfg.TDLibVerbosity, InitTimeout: cfg.RequestTimeout}
			pool := telegramhelper.NewAccountPool(service, cfg.StorageRoot)
			accounts := cfg.Accounts
			if len(accounts) == 0 {
				accounts = []string{standalone.DefaultAccount}
			}
			for _, account := range accounts {
				log.Info().Str("account", account).Msg("Authenticating account")
				if err := telegramhelper.GenCode(service, pool.SessionDir(account)); err != nil {
					return fmt.Errorf("account %s: %w", account, err)
				}
			}
			return nil
		},
	}

	root.AddCommand(crawlCmd, dispatchCmd, runCmd, authCmd)
	return root, v
}

func logSessions(sessions []model.SessionResult) {
	for _, s := range sessions {
		log.Info().
			Str("session_id", s.SessionID).
			Str("account", s.Account).
			Int("successful", s.SuccessfulCount).
			Int("failed", s.FailedCount).
			Int("skipped", s.SkippedCount).
			Bool("aborted", s.Aborted).
			Msg("Session result")
	}
}

// addConfigFlags registers one flag per configuration key, defaulting to def.
func addConfigFlags(fs *pflag.FlagSet, def common.Config) {
	fs.String("storage-root", def.StorageRoot, "root directory for sessions, seen sets and results")
	fs.String("log-level", def.LogLevel, "log level (trace, debug, info, warn, error)")
	fs.String("log-file", def.LogFile, "also write logs to this rotated file")
	fs.Int("tdlib-verbosity", def.TDLibVerbosity, "TDLib log verbosity")
	fs.Duration("request-timeout", def.RequestTimeout, "timeout for each Telegram request")
	fs.StringSlice("accounts", def.Accounts, "account session names; dispatch work is split across them")
	fs.String("schedule", def.Schedule, "cron expression; repeat the command on this schedule")

	fs.String("store", def.Store.Backend, "seen-set backend (file, sqlite, redis, dapr)")
	fs.String("redis-addr", def.Store.RedisAddr, "redis address for the redis backend")
	fs.String("dapr-state-store", def.Store.DaprStateStore, "dapr state store component")

	fs.StringSlice("seeds", def.Crawl.Seeds, "seed channels (usernames or t.me links)")
	fs.String("seed-file", def.Crawl.SeedFile, "file with one seed channel per line")
	fs.Int("target-count", def.Crawl.TargetCount, "stop after this many channels")
	fs.Int("max-depth", def.Crawl.MaxDepth, "maximum recommendation depth")
	fs.Int("first-level-limit", def.Crawl.FirstLevelLimit, "recommendations requested per channel (max 100)")
	fs.Int("fan-out", def.Crawl.FanOut, "channels expanded per level")
	fs.Bool("remove-duplicates", def.Crawl.RemoveDuplicates, "drop duplicate channels from crawl results")
	fs.Int("min-subscribers", def.Crawl.MinSubscribers, "minimum subscriber count (0 = unbounded)")
	fs.Int("max-subscribers", def.Crawl.MaxSubscribers, "maximum subscriber count (0 = unbounded)")
	fs.Duration("request-delay", def.Crawl.RequestDelay, "pause before each discovery request")
	fs.Bool("exclude-seen", def.Crawl.ExcludeSeen, "skip channels found by earlier crawls")
	fs.String("output", def.Crawl.OutputFile, "write discovered channels to this worklist file")

	fs.String("action", def.Dispatch.Action, "action to dispatch (join, message, comment)")
	fs.String("worklist", def.Dispatch.WorklistFile, "worklist file or URL")
	fs.Duration("delay", def.Dispatch.DelayBetweenActions, "minimum delay between actions")
	fs.Int("max-per-session", def.Dispatch.MaxPerSession, "maximum actions per account session (0 = no cap)")
	fs.Bool("randomize", def.Dispatch.RandomizeOrder, "shuffle the worklist")
	fs.Bool("dry-run", def.Dispatch.DryRun, "plan and generate content without acting")
	fs.Bool("skip-done", def.Dispatch.SkipAlreadyDone, "skip channels acted on in earlier sessions")
	fs.Duration("critical-threshold", def.Dispatch.CriticalThreshold, "rate-limit wait that aborts a session")

	fs.String("content-provider", def.Content.Provider, "message generator (template, anthropic, openai)")
	fs.String("content-model", def.Content.Model, "model used by the anthropic and openai generators")
	fs.String("content-template", def.Content.Template, "text/template for the template generator")

	fs.Bool("publish", def.Publish.Enabled, "publish results to dapr pub/sub")
}

// flagKeys maps flag names to configuration keys.
var flagKeys = map[string]string{
	"storage-root":       "storage_root",
	"log-level":          "log_level",
	"log-file":           "log_file",
	"tdlib-verbosity":    "tdlib_verbosity",
	"request-timeout":    "request_timeout",
	"accounts":           "accounts",
	"schedule":           "schedule",
	"store":              "store.backend",
	"redis-addr":         "store.redis_addr",
	"dapr-state-store":   "store.dapr_state_store",
	"seeds":              "crawl.seeds",
	"seed-file":          "crawl.seed_file",
	"target-count":       "crawl.target_count",
	"max-depth":          "crawl.max_depth",
	"first-level-limit":  "crawl.first_level_limit",
	"fan-out":            "crawl.fan_out",
	"remove-duplicates":  "crawl.remove_duplicates",
	"min-subscribers":    "crawl.min_subscribers",
	"max-subscribers":    "crawl.max_subscribers",
	"request-delay":      "crawl.request_delay",
	"exclude-seen":       "crawl.exclude_seen",
	"output":             "crawl.output_file",
	"action":             "dispatch.action",
	"worklist":           "dispatch.worklist_file",
	"delay":              "dispatch.delay_between_actions",
	"max-per-session":    "dispatch.max_per_session",
	"randomize":          "dispatch.randomize_order",
	"dry-run":            "dispatch.dry_run",
	"skip-done":          "dispatch.skip_already_done",
	"critical-threshold": "dispatch.critical_threshold",
	"content-provider":   "content.provider",
	"content-model":      "content.model",
	"content-template":   "content.template",
	"publish":            "publish.enabled",
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) {
	for name, key := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			log.Fatal().Err(err).Str("flag", name).Msg("Failed to bind flag")
		}
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// loadConfig merges defaults, the optional config file, TGOUTREACH_*
// environment variables and flags, in increasing precedence.
func loadConfig(v *viper.Viper, cfgFile string) (common.Config, error) {
	cfg := common.DefaultConfig()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return cfg, fmt.Errorf("reading config file: %w", err)
		}
	}

	// Registering the keys without a flag lets TGOUTREACH_* variables reach them.
	for _, key := range []string{
		"store.redis_password", "store.redis_db", "store.dapr_grpc_port",
		"crawl.record_seen",
		"dispatch.backoff_floor", "dispatch.backoff_ceiling",
		"content.api_key", "content.base_url", "content.system_prompt", "content.max_tokens",
		"publish.pubsub_component", "publish.crawl_topic", "publish.session_topic",
	} {
		v.SetDefault(key, nil)
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
