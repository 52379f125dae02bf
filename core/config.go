package core

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the top-level, file-loadable configuration for the kernel. It is
// composed of one sub-struct per concern, mirroring the teacher's Config
// (HTTPConfig/DiscoveryConfig/AIConfig/...). Leaf fields carry
// `toml`/`env`/`default` tags as documentation of the key, variable and
// default; only the `toml` tags are read (by the TOML decoder). Defaults come
// from DefaultConfig and environment overrides from applyEnvOverrides.
type Config struct {
	StateRoot  string           `toml:"state_root" env:"AGENTKERNEL_STATE_ROOT" default:"./state"`
	Profile    string           `toml:"profile" env:"AGENTKERNEL_PROFILE" default:"adaptive"`
	Kernel     KernelConfig     `toml:"kernel"`
	Ranker     RankerConfig     `toml:"ranker"`
	MCP        MCPConfig        `toml:"mcp"`
	Governance GovernanceConfig `toml:"governance"`
	Store      StoreConfig      `toml:"store"`
	Feedback   FeedbackConfig   `toml:"feedback"`
	Logging    LoggingConfig    `toml:"logging"`
	Observability ObservabilityConfig `toml:"observability"`
}

// KernelConfig configures task classification and profile resolution.
type KernelConfig struct {
	DefaultTaskKind string `toml:"default_task_kind" env:"AGENTKERNEL_DEFAULT_TASK_KIND" default:"other"`
	WorkerPoolSize  int    `toml:"worker_pool_size" env:"AGENTKERNEL_WORKERS" default:"0"`
	AdmissionQueue  int    `toml:"admission_queue" env:"AGENTKERNEL_QUEUE_SIZE" default:"64"`
}

// RankerConfig holds the composite scoring weights.
type RankerConfig struct {
	BaseWeight   float64 `toml:"base_weight" env:"AGENTKERNEL_RANKER_BASE_WEIGHT" default:"0.6"`
	MemoryWeight float64 `toml:"memory_weight" env:"AGENTKERNEL_RANKER_MEMORY_WEIGHT" default:"0.4"`
	TopK         int     `toml:"top_k" env:"AGENTKERNEL_RANKER_TOP_K" default:"3"`
}

// MCPConfig configures the smart router and the retry chain. FailureThreshold
// and CooldownSeconds are not read: every circuit breaker is built from
// mcp.DefaultBreakerConfig (3 failures, 300s cooldown).
type MCPConfig struct {
	AlphaIntent        float64       `toml:"alpha_intent" env:"AGENTKERNEL_MCP_ALPHA" default:"0.4"`
	BetaHistorical     float64       `toml:"beta_historical" env:"AGENTKERNEL_MCP_BETA" default:"0.3"`
	GammaLatency       float64       `toml:"gamma_latency" env:"AGENTKERNEL_MCP_GAMMA" default:"0.2"`
	DeltaCost          float64       `toml:"delta_cost" env:"AGENTKERNEL_MCP_DELTA" default:"0.1"`
	MaxRetries         int           `toml:"max_retries" env:"AGENTKERNEL_MCP_MAX_RETRIES" default:"2"`
	BackoffBase        time.Duration `toml:"backoff_base" env:"AGENTKERNEL_MCP_BACKOFF_BASE" default:"200ms"`
	BackoffFactor      float64       `toml:"backoff_factor" env:"AGENTKERNEL_MCP_BACKOFF_FACTOR" default:"2.0"`
	JitterFraction     float64       `toml:"jitter_fraction" env:"AGENTKERNEL_MCP_JITTER" default:"0.2"`
	ChainBudget        time.Duration `toml:"chain_budget" env:"AGENTKERNEL_MCP_CHAIN_BUDGET" default:"30s"`
	FailureThreshold   int           `toml:"failure_threshold" env:"AGENTKERNEL_MCP_FAILURE_THRESHOLD" default:"3"`
	CooldownSeconds    int           `toml:"cooldown_seconds" env:"AGENTKERNEL_MCP_COOLDOWN_SECONDS" default:"300"`
	RedisURL           string        `toml:"redis_url" env:"AGENTKERNEL_REDIS_URL,REDIS_URL" default:""`
}

// GovernanceConfig configures per-profile gates.
type GovernanceConfig struct {
	AllowedLayersByProfile map[string][]string `toml:"allowed_layers_by_profile"`
	BlockedMaturity        []string            `toml:"blocked_maturity" default:"experimental"`
	// BlockedStrategies and AllowedStrategies are hard strategy_id filters
	// applied at candidate generation (spec.md §4.2), distinct from the
	// Tuner's scope=strategy demote/promote overrides: a demoted strategy is
	// still selectable if nothing else qualifies, a blocked one never is.
	// AllowedStrategies, when non-empty, is an allowlist: only those
	// strategy_ids survive candidate generation.
	BlockedStrategies      []string `toml:"blocked_strategies"`
	AllowedStrategies      []string `toml:"allowed_strategies"`
	MaxRiskLevel           int      `toml:"max_risk_level" env:"AGENTKERNEL_MAX_RISK_LEVEL" default:"3"`
	RequireApprovalPublish bool     `toml:"require_approval_for_publish" env:"AGENTKERNEL_REQUIRE_APPROVAL" default:"true"`
	ApprovalSecret         string   `toml:"-" env:"AGENTKERNEL_APPROVAL_SECRET" default:""`
}

// StoreConfig selects and configures the state store backend.
type StoreConfig struct {
	Backend  string `toml:"backend" env:"AGENTKERNEL_STORE_BACKEND" default:"local"`
	RedisURL string `toml:"redis_url" env:"AGENTKERNEL_STORE_REDIS_URL,REDIS_URL" default:""`
}

// FeedbackConfig configures the policy tuner.
type FeedbackConfig struct {
	SuccessRateWeight    float64 `toml:"success_rate_weight" env:"AGENTKERNEL_FB_SUCCESS_WEIGHT" default:"0.5"`
	LatencyWeight        float64 `toml:"latency_weight" env:"AGENTKERNEL_FB_LATENCY_WEIGHT" default:"0.3"`
	FallbackWeight       float64 `toml:"fallback_weight" env:"AGENTKERNEL_FB_FALLBACK_WEIGHT" default:"0.2"`
	LatencyCeilingMS     int64   `toml:"latency_ceiling_ms" env:"AGENTKERNEL_FB_LATENCY_CEILING_MS" default:"10000"`
	WindowDays           int     `toml:"window_days" env:"AGENTKERNEL_FB_WINDOW_DAYS" default:"14"`
	CronSchedule         string  `toml:"cron_schedule" env:"AGENTKERNEL_FB_CRON" default:"0 0 * * *"`
	HighWatermark        float64 `toml:"high_watermark" env:"AGENTKERNEL_FB_HIGH_WATERMARK" default:"0.8"`
	LowWatermark         float64 `toml:"low_watermark" env:"AGENTKERNEL_FB_LOW_WATERMARK" default:"0.4"`
	MinSamples           int     `toml:"min_samples" env:"AGENTKERNEL_FB_MIN_SAMPLES" default:"5"`
	ConsecutiveWindows   int     `toml:"consecutive_windows_for_demotion" env:"AGENTKERNEL_FB_CONSECUTIVE_WINDOWS" default:"3"`
	BreachLookbackDays   int     `toml:"breach_lookback_days" env:"AGENTKERNEL_FB_BREACH_LOOKBACK_DAYS" default:"7"`
	MaxActions           int     `toml:"max_actions" env:"AGENTKERNEL_FB_MAX_ACTIONS" default:"5"`
	MinPriorityScore     float64 `toml:"min_priority_score" env:"AGENTKERNEL_FB_MIN_PRIORITY_SCORE" default:"0.1"`
}

// LoggingConfig mirrors the teacher's LoggingConfig shape.
type LoggingConfig struct {
	Level  string `toml:"level" env:"AGENTKERNEL_LOG_LEVEL" default:"info"`
	Format string `toml:"format" env:"AGENTKERNEL_LOG_FORMAT" default:"json"`
}

// ObservabilityConfig configures tracing, metrics and the diagnose report,
// mirroring the teacher's pkg/telemetry auto-configuration knobs (OTEL SDK
// enable/disable, metrics port) adapted onto this module's narrower surface
// (no OTLP exporter: spans are created and ended in-process and are not
// shipped to a collector or kept for later reading).
type ObservabilityConfig struct {
	TracingEnabled bool   `toml:"tracing_enabled" env:"AGENTKERNEL_TRACING_ENABLED" default:"true"`
	MetricsEnabled bool   `toml:"metrics_enabled" env:"AGENTKERNEL_METRICS_ENABLED" default:"true"`
	MetricsAddr    string `toml:"metrics_addr" env:"AGENTKERNEL_METRICS_ADDR" default:":9090"`
	ServiceName    string `toml:"service_name" env:"AGENTKERNEL_SERVICE_NAME" default:"agentkernel"`
	DiagnoseTopN   int    `toml:"diagnose_top_n" env:"AGENTKERNEL_DIAGNOSE_TOP_N" default:"5"`
}

// DefaultConfig returns a Config populated with the defaults documented on
// each field above. Values are filled by hand here (rather than reflected
// from the struct tags) to keep the zero-dependency hot path allocation-free;
// nothing walks the `default`/`env` tags; they repeat these values by hand.
func DefaultConfig() *Config {
	return &Config{
		StateRoot: "./state",
		Profile:   "adaptive",
		Kernel: KernelConfig{
			DefaultTaskKind: "other",
			WorkerPoolSize:  0,
			AdmissionQueue:  64,
		},
		Ranker: RankerConfig{BaseWeight: 0.6, MemoryWeight: 0.4, TopK: 3},
		MCP: MCPConfig{
			AlphaIntent: 0.4, BetaHistorical: 0.3, GammaLatency: 0.2, DeltaCost: 0.1,
			MaxRetries: 2, BackoffBase: 200 * time.Millisecond, BackoffFactor: 2.0,
			JitterFraction: 0.2, ChainBudget: 30 * time.Second,
			FailureThreshold: 3, CooldownSeconds: 300,
		},
		Governance: GovernanceConfig{
			AllowedLayersByProfile: map[string][]string{
				"strict":   {"stable"},
				"adaptive": {"stable", "beta"},
				"auto":     {"stable", "beta", "experimental"},
			},
			BlockedMaturity:        []string{"experimental"},
			MaxRiskLevel:           3,
			RequireApprovalPublish: true,
		},
		Store: StoreConfig{Backend: "local"},
		Feedback: FeedbackConfig{
			SuccessRateWeight: 0.5, LatencyWeight: 0.3, FallbackWeight: 0.2,
			LatencyCeilingMS: 10000, WindowDays: 14, CronSchedule: "0 0 * * *",
			HighWatermark: 0.8, LowWatermark: 0.4, MinSamples: 5,
			ConsecutiveWindows: 3, BreachLookbackDays: 7,
			MaxActions: 5, MinPriorityScore: 0.1,
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Observability: ObservabilityConfig{
			TracingEnabled: true, MetricsEnabled: true, MetricsAddr: ":9090",
			ServiceName: "agentkernel", DiagnoseTopN: 5,
		},
	}
}

// Option is a functional option applied after defaults and file/env loading,
// matching the teacher's core.Option shape.
type Option func(*Config) error

// LoadConfig composes defaults, an optional TOML file at path (skipped if
// path is empty or the file does not exist), environment variable overrides
// for secrets/endpoints (per spec.md §6, env overrides are limited to
// secrets and endpoints: the approval secret, the Redis URLs and the state
// root directory), and finally functional options, in that order of
// precedence (defaults < file < env < options).
func LoadConfig(path string, opts ...Option) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, cfg); err != nil {
				return nil, fmt.Errorf("decode config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("stat config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides overrides only the secret/endpoint fields (approval
// secret, Redis URLs, state root) from the environment, per spec.md §6 ("env-var override for secrets/endpoints
// only") — everything else is config-file or option driven.
func applyEnvOverrides(cfg *Config) {
	if v := firstNonEmptyEnv("AGENTKERNEL_APPROVAL_SECRET"); v != "" {
		cfg.Governance.ApprovalSecret = v
	}
	if v := firstNonEmptyEnv("AGENTKERNEL_REDIS_URL", "REDIS_URL"); v != "" {
		cfg.MCP.RedisURL = v
	}
	if v := firstNonEmptyEnv("AGENTKERNEL_STORE_REDIS_URL", "REDIS_URL"); v != "" {
		cfg.Store.RedisURL = v
	}
	if v := firstNonEmptyEnv("AGENTKERNEL_STATE_ROOT"); v != "" {
		cfg.StateRoot = v
	}
}

func firstNonEmptyEnv(names ...string) string {
	for _, n := range names {
		if v := os.Getenv(n); v != "" {
			return v
		}
	}
	return ""
}

// Validate checks cross-field invariants that struct tags can't express.
func (c *Config) Validate() error {
	switch c.Profile {
	case "strict", "adaptive", "auto":
	default:
		return NewKernelError("Config.Validate", ErrorKindContractViolation,
			fmt.Errorf("unknown profile %q", c.Profile))
	}
	if c.Ranker.BaseWeight < 0 || c.Ranker.MemoryWeight < 0 {
		return NewKernelError("Config.Validate", ErrorKindContractViolation,
			fmt.Errorf("ranker weights must be non-negative"))
	}
	if c.MCP.MaxRetries < 0 {
		return NewKernelError("Config.Validate", ErrorKindContractViolation,
			fmt.Errorf("mcp.max_retries must be >= 0"))
	}
	if c.Governance.RequireApprovalPublish && c.Governance.ApprovalSecret == "" {
		return NewKernelError("Config.Validate", ErrorKindContractViolation,
			fmt.Errorf("approval secret required when require_approval_for_publish is set"))
	}
	return nil
}

// WithProfile overrides the resolved governance profile.
func WithProfile(profile string) Option {
	return func(c *Config) error {
		c.Profile = profile
		return nil
	}
}

// WithStateRoot overrides the persisted-state directory.
func WithStateRoot(root string) Option {
	return func(c *Config) error {
		c.StateRoot = root
		return nil
	}
}
