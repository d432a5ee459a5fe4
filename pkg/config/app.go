package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// SyncConfig controls mailbox synchronisation and queue housekeeping.
type SyncConfig struct {
	FallbackIntervalMinutes int    `mapstructure:"fallback_interval_minutes"`
	FullSyncIntervalHours   int    `mapstructure:"full_sync_interval_hours"`
	FullSyncDays            int    `mapstructure:"full_sync_days"`
	FullSyncMaxResults      int64  `mapstructure:"full_sync_max_results"`
	WatchRenewalCron        string `mapstructure:"watch_renewal_cron"`
	CleanupCron             string `mapstructure:"cleanup_cron"`
	JobRetentionDays        int    `mapstructure:"job_retention_days"`
	LeaseTimeoutMinutes     int    `mapstructure:"lease_timeout_minutes"`
}

// LeaseTimeout is how long a claimed job or a sync lease stays valid.
func (s SyncConfig) LeaseTimeout() time.Duration {
	return time.Duration(s.LeaseTimeoutMinutes) * time.Minute
}

// LLMConfig selects models and token budgets per call type.
type LLMConfig struct {
	ClassifyModel     string `mapstructure:"classify_model"`
	DraftModel        string `mapstructure:"draft_model"`
	ContextModel      string `mapstructure:"context_model"`
	MaxClassifyTokens int    `mapstructure:"max_classify_tokens"`
	MaxDraftTokens    int    `mapstructure:"max_draft_tokens"`
	MaxContextTokens  int    `mapstructure:"max_context_tokens"`
}

// WorkerConfig sizes the job worker pool.
type WorkerConfig struct {
	Concurrency  int           `mapstructure:"concurrency"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// MatchConfig lists the criteria of a routing rule. All set criteria must
// match, except forwarded_from which decides on its own.
type MatchConfig struct {
	All             bool              `mapstructure:"all"`
	SenderEmail     string            `mapstructure:"sender_email"`
	SenderDomain    string            `mapstructure:"sender_domain"`
	SubjectContains string            `mapstructure:"subject_contains"`
	HeaderMatch     map[string]string `mapstructure:"header_match"`
	ForwardedFrom   string            `mapstructure:"forwarded_from"`
}

// RoutingRule sends matching threads to a route ("pipeline" or "agent").
type RoutingRule struct {
	Name    string      `mapstructure:"name"`
	Match   MatchConfig `mapstructure:"match"`
	Route   string      `mapstructure:"route"`
	Profile string      `mapstructure:"profile"`
}

// RoutingConfig holds routing rules in evaluation order.
type RoutingConfig struct {
	Rules []RoutingRule `mapstructure:"rules"`
}

// AgentProfileConfig configures one agent profile.
type AgentProfileConfig struct {
	Name             string   `mapstructure:"name"`
	Model            string   `mapstructure:"model"`
	MaxTokens        int      `mapstructure:"max_tokens"`
	Temperature      float64  `mapstructure:"temperature"`
	MaxIterations    int      `mapstructure:"max_iterations"`
	SystemPrompt     string   `mapstructure:"system_prompt"`
	SystemPromptFile string   `mapstructure:"system_prompt_file"`
	Tools            []string `mapstructure:"tools"`
	Preprocessor     string   `mapstructure:"preprocessor"`
}

// AgentConfig holds agent profiles keyed by name.
type AgentConfig struct {
	Profiles map[string]AgentProfileConfig `mapstructure:"profiles"`
}

// AppConfig is the structured application configuration.
type AppConfig struct {
	Sync    SyncConfig    `mapstructure:"sync"`
	LLM     LLMConfig     `mapstructure:"llm"`
	Worker  WorkerConfig  `mapstructure:"worker"`
	Routing RoutingConfig `mapstructure:"routing"`
	Agent   AgentConfig   `mapstructure:"agent"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("sync.fallback_interval_minutes", 15)
	v.SetDefault("sync.full_sync_interval_hours", 24)
	v.SetDefault("sync.full_sync_days", 10)
	v.SetDefault("sync.full_sync_max_results", 50)
	v.SetDefault("sync.watch_renewal_cron", "0 3 * * *")
	v.SetDefault("sync.cleanup_cron", "30 4 * * *")
	v.SetDefault("sync.job_retention_days", 7)
	v.SetDefault("sync.lease_timeout_minutes", 10)

	v.SetDefault("llm.classify_model", "gpt-4o-mini")
	v.SetDefault("llm.draft_model", "gpt-4o")
	v.SetDefault("llm.context_model", "gpt-4o-mini")
	v.SetDefault("llm.max_classify_tokens", 256)
	v.SetDefault("llm.max_draft_tokens", 2048)
	v.SetDefault("llm.max_context_tokens", 256)

	v.SetDefault("worker.concurrency", 3)
	v.SetDefault("worker.poll_interval", "1s")
}

// LoadAppConfig reads the YAML file at path. A missing file yields the
// defaults.
func LoadAppConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		var pathErr *os.PathError
		if !errors.As(err, &notFound) && !errors.As(err, &pathErr) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	for name, p := range cfg.Agent.Profiles {
		if p.Name == "" {
			p.Name = name
		}
		if p.MaxIterations <= 0 {
			p.MaxIterations = 10
		}
		if p.MaxTokens <= 0 {
			p.MaxTokens = 4096
		}
		if !v.IsSet(fmt.Sprintf("agent.profiles.%s.temperature", name)) {
			p.Temperature = 0.3
		}
		cfg.Agent.Profiles[name] = p
	}
	for i := range cfg.Routing.Rules {
		if cfg.Routing.Rules[i].Route == "" {
			cfg.Routing.Rules[i].Route = "pipeline"
		}
	}
	return cfg, nil
}

// Default returns the configuration used when no file is present.
func Default() *AppConfig {
	cfg, _ := LoadAppConfig("")
	return cfg
}
