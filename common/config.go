package common

import (
	"fmt"
	"time"

	"github.com/researchaccelerator-hub/telegram-outreach/state"
)

// Config is the complete runtime configuration, populated from flags,
// the config file and TGOUTREACH_* environment variables.
type Config struct {
	StorageRoot    string        `mapstructure:"storage_root"`
	LogLevel       string        `mapstructure:"log_level"`
	LogFile        string        `mapstructure:"log_file"`
	TDLibVerbosity int           `mapstructure:"tdlib_verbosity"` // TDLib verbosity level for logging (default: 1)
	RequestTimeout time.Duration `mapstructure:"request_timeout"` // Per remote call timeout
	Accounts       []string      `mapstructure:"accounts"`        // Session directory names, one per account
	Schedule       string        `mapstructure:"schedule"`        // Cron expression for repeated runs

	Store    StoreConfig    `mapstructure:"store"`
	Crawl    CrawlConfig    `mapstructure:"crawl"`
	Dispatch DispatchConfig `mapstructure:"dispatch"`
	Content  ContentConfig  `mapstructure:"content"`
	Publish  PublishConfig  `mapstructure:"publish"`
}

// StoreConfig selects the seen-set backend.
type StoreConfig struct {
	Backend        string `mapstructure:"backend"` // file, sqlite, redis, dapr
	RedisAddr      string `mapstructure:"redis_addr"`
	RedisPassword  string `mapstructure:"redis_password"`
	RedisDB        int    `mapstructure:"redis_db"`
	DaprStateStore string `mapstructure:"dapr_state_store"`
	DaprGRPCPort   string `mapstructure:"dapr_grpc_port"`
}

// CrawlConfig configures recommendation crawls.
type CrawlConfig struct {
	Seeds            []string      `mapstructure:"seeds"`
	SeedFile         string        `mapstructure:"seed_file"`
	TargetCount      int           `mapstructure:"target_count"`
	MaxDepth         int           `mapstructure:"max_depth"`
	FirstLevelLimit  int           `mapstructure:"first_level_limit"`
	FanOut           int           `mapstructure:"fan_out"`
	RemoveDuplicates bool          `mapstructure:"remove_duplicates"`
	MinSubscribers   int           `mapstructure:"min_subscribers"`
	MaxSubscribers   int           `mapstructure:"max_subscribers"`
	RequestDelay     time.Duration `mapstructure:"request_delay"`
	ExcludeSeen      bool          `mapstructure:"exclude_seen"`
	RecordSeen       bool          `mapstructure:"record_seen"`
	OutputFile       string        `mapstructure:"output_file"`
}

// DispatchConfig configures dispatch sessions.
type DispatchConfig struct {
	Action              string        `mapstructure:"action"` // join, message, comment
	WorklistFile        string        `mapstructure:"worklist_file"`
	DelayBetweenActions time.Duration `mapstructure:"delay_between_actions"`
	MaxPerSession       int           `mapstructure:"max_per_session"`
	RandomizeOrder      bool          `mapstructure:"randomize_order"`
	DryRun              bool          `mapstructure:"dry_run"`
	SkipAlreadyDone     bool          `mapstructure:"skip_already_done"`
	CriticalThreshold   time.Duration `mapstructure:"critical_threshold"`
	BackoffFloor        time.Duration `mapstructure:"backoff_floor"`
	BackoffCeiling      time.Duration `mapstructure:"backoff_ceiling"`
}

// ContentConfig selects the message text generator.
type ContentConfig struct {
	Provider     string `mapstructure:"provider"` // template, anthropic, openai
	Template     string `mapstructure:"template"`
	APIKey       string `mapstructure:"api_key"`
	BaseURL      string `mapstructure:"base_url"`
	Model        string `mapstructure:"model"`
	SystemPrompt string `mapstructure:"system_prompt"`
	MaxTokens    int    `mapstructure:"max_tokens"`
}

// PublishConfig enables publishing results to Dapr pub/sub.
type PublishConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	PubSubComponent string `mapstructure:"pubsub_component"`
	CrawlTopic      string `mapstructure:"crawl_topic"`
	SessionTopic    string `mapstructure:"session_topic"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() Config {
	return Config{
		StorageRoot:    "/tmp/telegram-outreach",
		LogLevel:       "info",
		TDLibVerbosity: 1,
		RequestTimeout: 30 * time.Second,
		Store: StoreConfig{
			Backend:        string(state.BackendFile),
			DaprStateStore: "statestore",
		},
		Crawl: CrawlConfig{
			TargetCount:      100,
			MaxDepth:         2,
			FirstLevelLimit:  100,
			FanOut:           5,
			RemoveDuplicates: true,
			RequestDelay:     time.Second,
			ExcludeSeen:      true,
			RecordSeen:       true,
		},
		Dispatch: DispatchConfig{
			Action:              "join",
			DelayBetweenActions: 5 * time.Second,
			MaxPerSession:       50,
			SkipAlreadyDone:     true,
			CriticalThreshold:   time.Hour,
			BackoffFloor:        time.Second,
			BackoffCeiling:      30 * time.Second,
		},
		Content: ContentConfig{
			Provider:  "template",
			MaxTokens: 300,
		},
		Publish: PublishConfig{
			PubSubComponent: "pubsub",
			CrawlTopic:      "crawl-results",
			SessionTopic:    "session-results",
		},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.StorageRoot == "" {
		return fmt.Errorf("storage_root cannot be empty")
	}

	switch state.Backend(c.Store.Backend) {
	case state.BackendFile, state.BackendSQLite, state.BackendDapr:
	case state.BackendRedis:
		if c.Store.RedisAddr == "" {
			return fmt.Errorf("store.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("invalid store backend '%s', must be one of: file, sqlite, redis, dapr", c.Store.Backend)
	}

	if c.Crawl.TargetCount < 1 {
		return fmt.Errorf("crawl.target_count must be at least 1")
	}
	if c.Crawl.MaxDepth < 1 {
		return fmt.Errorf("crawl.max_depth must be at least 1")
	}
	if c.Crawl.MaxSubscribers > 0 && c.Crawl.MinSubscribers > c.Crawl.MaxSubscribers {
		return fmt.Errorf("crawl.min_subscribers cannot exceed crawl.max_subscribers")
	}

	switch c.Dispatch.Action {
	case "join", "message", "comment":
	default:
		return fmt.Errorf("invalid action '%s', must be one of: join, message, comment", c.Dispatch.Action)
	}
	if c.Dispatch.MaxPerSession < 0 {
		return fmt.Errorf("dispatch.max_per_session cannot be negative")
	}
	if c.Dispatch.CriticalThreshold <= 0 {
		return fmt.Errorf("dispatch.critical_threshold must be positive")
	}
	if c.Dispatch.BackoffCeiling < c.Dispatch.BackoffFloor {
		return fmt.Errorf("dispatch.backoff_ceiling cannot be lower than dispatch.backoff_floor")
	}

	switch c.Content.Provider {
	case "template", "anthropic", "openai":
	default:
		return fmt.Errorf("invalid content provider '%s', must be one of: template, anthropic, openai", c.Content.Provider)
	}

	return nil
}

// StateConfig converts the store section into a state.Config.
func (c *Config) StateConfig() state.Config {
	cfg := state.Config{
		Backend:     state.Backend(c.Store.Backend),
		StorageRoot: c.StorageRoot,
	}
	if c.Store.RedisAddr != "" {
		cfg.RedisConfig = &state.RedisConfig{
			Addr:     c.Store.RedisAddr,
			Password: c.Store.RedisPassword,
			DB:       c.Store.RedisDB,
		}
	}
	if cfg.Backend == state.BackendDapr {
		cfg.DaprConfig = &state.DaprConfig{
			StateStoreName: c.Store.DaprStateStore,
			GRPCPort:       c.Store.DaprGRPCPort,
		}
	}
	return cfg
}
