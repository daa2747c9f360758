package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	Session    SessionConfig    `mapstructure:"session" yaml:"session"`
	Filter     FilterConfig     `mapstructure:"filter" yaml:"filter"`
	Perception PerceptionConfig `mapstructure:"perception" yaml:"perception"`
	Input      InputConfig      `mapstructure:"input" yaml:"input"`
	Safety     SafetyConfig     `mapstructure:"safety" yaml:"safety"`
	Agent      AgentConfig      `mapstructure:"agent" yaml:"agent"`
	Archive    ArchiveConfig    `mapstructure:"archive" yaml:"archive"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// SessionConfig bounds one perceive-plan-act-verify session.
type SessionConfig struct {
	// MaxIterations caps the loop; exhausting it forces FAILED.
	MaxIterations int `mapstructure:"max_iterations" yaml:"max_iterations"`
	// Budget is the wall-clock bound for the whole session.
	Budget time.Duration `mapstructure:"budget" yaml:"budget"`
	// HistoryWindow is how many prior entries the planner sees.
	HistoryWindow int `mapstructure:"history_window" yaml:"history_window"`
	// SummaryElements caps elements retained per observation summary.
	SummaryElements int `mapstructure:"summary_elements" yaml:"summary_elements"`
	// StallThreshold is how many contradicted verdicts trigger escalation.
	StallThreshold int `mapstructure:"stall_threshold" yaml:"stall_threshold"`
	// PlannerFailureBudget is the consecutive schema-error allowance.
	PlannerFailureBudget int `mapstructure:"planner_failure_budget" yaml:"planner_failure_budget"`
	// RetryMax bounds backoff retries for perception and timeouts.
	RetryMax int `mapstructure:"retry_max" yaml:"retry_max"`
	// RepeatTargetLimit escalates when the same failing target recurs.
	RepeatTargetLimit int `mapstructure:"repeat_target_limit" yaml:"repeat_target_limit"`

	PerceptionTimeout time.Duration `mapstructure:"perception_timeout" yaml:"perception_timeout"`
	PlanTimeout       time.Duration `mapstructure:"plan_timeout" yaml:"plan_timeout"`
	VerifyTimeout     time.Duration `mapstructure:"verify_timeout" yaml:"verify_timeout"`
}

// FilterConfig tunes the element filter.
type FilterConfig struct {
	// Budget is K, the maximum candidate count handed to the planner.
	Budget int `mapstructure:"budget" yaml:"budget"`
	// Strict disables constraint relaxation; an empty result is then valid.
	Strict bool `mapstructure:"strict" yaml:"strict"`
}

// PerceptionConfig configures the external detection service client.
type PerceptionConfig struct {
	Endpoint     string        `mapstructure:"endpoint" yaml:"endpoint"`
	BoxThreshold float64       `mapstructure:"box_threshold" yaml:"box_threshold"`
	IoUThreshold float64       `mapstructure:"iou_threshold" yaml:"iou_threshold"`
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxRetries   int           `mapstructure:"max_retries" yaml:"max_retries"`
}

// InputConfig tunes the action executor.
type InputConfig struct {
	// SettleDelay separates sub-steps of multi-step primitives.
	SettleDelay time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	// MoveDuration is the pointer travel time for moves and clicks.
	MoveDuration time.Duration `mapstructure:"move_duration" yaml:"move_duration"`
	// DragDuration is the pointer travel time while a button is held.
	DragDuration time.Duration `mapstructure:"drag_duration" yaml:"drag_duration"`
	// TypeInterval is the inter-character delay for text_entry.
	TypeInterval time.Duration `mapstructure:"type_interval" yaml:"type_interval"`
	// RatePerMinute caps actions over a rolling window.
	RatePerMinute int `mapstructure:"rate_per_minute" yaml:"rate_per_minute"`
	// MaxQueueWait bounds how long a rate-limited action may be delayed
	// before it fails with RATE_LIMIT_EXCEEDED.
	MaxQueueWait time.Duration `mapstructure:"max_queue_wait" yaml:"max_queue_wait"`
}

// SafetyConfig governs the confirmation gate and emergency stop.
type SafetyConfig struct {
	// SensitiveKeywords flag an intent for confirmation when matched against
	// its target description, app name or URL.
	SensitiveKeywords []string `mapstructure:"sensitive_keywords" yaml:"sensitive_keywords"`
	// SensitiveKinds flag every intent of the named action kinds for
	// confirmation regardless of target.
	SensitiveKinds []string `mapstructure:"sensitive_kinds" yaml:"sensitive_kinds"`
	// ConfirmationTimeout is the default-reject window for approvals.
	ConfirmationTimeout time.Duration `mapstructure:"confirmation_timeout" yaml:"confirmation_timeout"`
	// FailSafeMargin is the edge size, in physical pixels, of the reserved
	// top-left emergency-stop region.
	FailSafeMargin int `mapstructure:"fail_safe_margin" yaml:"fail_safe_margin"`
	// PollInterval is how often the emergency-stop monitor samples the pointer.
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	// AutoApprove approves sensitive actions without prompting. Intended for
	// unattended runs against disposable environments only.
	AutoApprove bool `mapstructure:"auto_approve" yaml:"auto_approve"`
}

// LLMProvider defines the supported LLM providers.
type LLMProvider string

const (
	ProviderGemini LLMProvider = "gemini"
)

// AgentConfig holds settings for the reasoning models.
type AgentConfig struct {
	LLM LLMRouterConfig `mapstructure:"llm" yaml:"llm"`
}

// LLMRouterConfig configures the model routing logic. DefaultFastModel and
// DefaultPowerfulModel name entries of Models.
type LLMRouterConfig struct {
	DefaultFastModel     string                    `mapstructure:"default_fast_model" yaml:"default_fast_model"`
	DefaultPowerfulModel string                    `mapstructure:"default_powerful_model" yaml:"default_powerful_model"`
	Models               map[string]LLMModelConfig `mapstructure:"models" yaml:"models"`
}

// LLMModelConfig defines the configuration for a single LLM.
type LLMModelConfig struct {
	Provider    LLMProvider   `mapstructure:"provider" yaml:"provider"`
	Model       string        `mapstructure:"model" yaml:"model"`
	APIKey      string        `mapstructure:"api_key" yaml:"-"`
	Endpoint    string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout  time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature float64       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// ArchiveConfig configures the session outcome store.
type ArchiveConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	URL     string `mapstructure:"url" yaml:"url"`
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "windows-assistant")
	v.SetDefault("logger.log_file", "wassist.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Session --
	v.SetDefault("session.max_iterations", 20)
	v.SetDefault("session.budget", "10m")
	v.SetDefault("session.history_window", 3)
	v.SetDefault("session.summary_elements", 40)
	v.SetDefault("session.stall_threshold", 3)
	v.SetDefault("session.planner_failure_budget", 3)
	v.SetDefault("session.retry_max", 3)
	v.SetDefault("session.repeat_target_limit", 2)
	v.SetDefault("session.perception_timeout", "3m")
	v.SetDefault("session.plan_timeout", "90s")
	v.SetDefault("session.verify_timeout", "60s")

	// -- Filter --
	v.SetDefault("filter.budget", 20)
	v.SetDefault("filter.strict", false)

	// -- Perception --
	v.SetDefault("perception.box_threshold", 0.05)
	v.SetDefault("perception.iou_threshold", 0.1)
	v.SetDefault("perception.timeout", "3m")
	v.SetDefault("perception.max_retries", 2)

	// -- Input --
	v.SetDefault("input.settle_delay", "200ms")
	v.SetDefault("input.move_duration", "300ms")
	v.SetDefault("input.drag_duration", "500ms")
	v.SetDefault("input.type_interval", "50ms")
	v.SetDefault("input.rate_per_minute", 30)
	v.SetDefault("input.max_queue_wait", "5s")

	// -- Safety --
	v.SetDefault("safety.sensitive_keywords", []string{
		"cmd.exe", "powershell", "regedit", "taskmgr",
		"delete", "format", "shutdown",
	})
	v.SetDefault("safety.sensitive_kinds", []string{"launch_app"})
	v.SetDefault("safety.confirmation_timeout", "30s")
	v.SetDefault("safety.fail_safe_margin", 10)
	v.SetDefault("safety.poll_interval", "100ms")
	v.SetDefault("safety.auto_approve", false)

	// -- Agent --
	v.SetDefault("agent.llm.default_fast_model", "fast")
	v.SetDefault("agent.llm.default_powerful_model", "powerful")
	v.SetDefault("agent.llm.models.fast.provider", "gemini")
	v.SetDefault("agent.llm.models.fast.model", "gemini-2.5-flash")
	v.SetDefault("agent.llm.models.fast.api_timeout", "60s")
	v.SetDefault("agent.llm.models.fast.max_tokens", 4096)
	v.SetDefault("agent.llm.models.powerful.provider", "gemini")
	v.SetDefault("agent.llm.models.powerful.model", "gemini-2.5-pro")
	v.SetDefault("agent.llm.models.powerful.api_timeout", "120s")
	v.SetDefault("agent.llm.models.powerful.max_tokens", 8192)

	// -- Archive --
	v.SetDefault("archive.enabled", false)
}

// NewConfigFromViper creates a configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Sensitive values come from the environment, never the config file.
	v.BindEnv("agent.llm.models.fast.api_key", "WA_LLM_API_KEY")
	v.BindEnv("agent.llm.models.powerful.api_key", "WA_LLM_API_KEY")
	v.BindEnv("archive.url", "WA_ARCHIVE_URL")
	v.BindEnv("perception.endpoint", "WA_PERCEPTION_ENDPOINT")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if cfg.Perception.Endpoint == "" {
		cfg.Perception.Endpoint = os.Getenv("WA_PERCEPTION_ENDPOINT")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Session.MaxIterations <= 0 {
		return fmt.Errorf("session.max_iterations must be a positive integer")
	}
	if c.Session.Budget <= 0 {
		return fmt.Errorf("session.budget must be a positive duration")
	}
	if c.Session.HistoryWindow < 0 {
		return fmt.Errorf("session.history_window must not be negative")
	}
	if c.Filter.Budget <= 0 {
		return fmt.Errorf("filter.budget must be a positive integer")
	}
	if c.Input.RatePerMinute <= 0 {
		return fmt.Errorf("input.rate_per_minute must be a positive integer")
	}
	if c.Input.MaxQueueWait < 0 {
		return fmt.Errorf("input.max_queue_wait must not be negative")
	}
	if c.Safety.ConfirmationTimeout <= 0 {
		return fmt.Errorf("safety.confirmation_timeout must be a positive duration")
	}
	if c.Safety.FailSafeMargin < 0 {
		return fmt.Errorf("safety.fail_safe_margin must not be negative")
	}
	if c.Archive.Enabled && c.Archive.URL == "" {
		return fmt.Errorf("archive.url is required when archive.enabled is set")
	}
	return nil
}
