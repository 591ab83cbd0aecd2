// ABOUTME: Configuration loading and parsing for hearth-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete hearth-gateway configuration
type Config struct {
	Backend     BackendConfig     `yaml:"backend"`
	Security    SecurityConfig    `yaml:"security"`
	Correlator  CorrelatorConfig  `yaml:"correlator"`
	Accumulator AccumulatorConfig `yaml:"accumulator"`
	Queue       QueueConfig       `yaml:"queue"`
	State       StateConfig       `yaml:"state"`
	Admin       AdminConfig       `yaml:"admin"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// BackendConfig holds connection settings for the AI backend process
type BackendConfig struct {
	BaseURL string `yaml:"base_url"`

	// EventsURL is the websocket endpoint for push events. Optional; the
	// polling correlator remains the system of record either way.
	EventsURL     string `yaml:"events_url"`
	EventsEnabled bool   `yaml:"events_enabled"`
}

// SecurityConfig holds the per-sender access policy settings
type SecurityConfig struct {
	// DMPolicy is one of: open, pairing, allowlist, disabled
	DMPolicy string `yaml:"dm_policy"`

	PairingCodeLength int           `yaml:"pairing_code_length"`
	PairingTTL        time.Duration `yaml:"-"`
	PairingTTLRaw     string        `yaml:"pairing_ttl"`

	RatePerMinute int `yaml:"rate_per_minute"`
	RatePerHour   int `yaml:"rate_per_hour"`
}

// CorrelatorConfig holds poll-based response correlation settings
type CorrelatorConfig struct {
	PollInterval    time.Duration `yaml:"-"`
	PollIntervalRaw string        `yaml:"poll_interval"`
	Timeout         time.Duration `yaml:"-"`
	TimeoutRaw      string        `yaml:"timeout"`
}

// AccumulatorConfig holds push-path buffer settings
type AccumulatorConfig struct {
	// TTL discards a session's buffered fragments when no idle or error
	// event arrives within it.
	TTL    time.Duration `yaml:"-"`
	TTLRaw string        `yaml:"ttl"`
}

// QueueConfig holds outbound delivery queue settings
type QueueConfig struct {
	MaxSize     int `yaml:"max_size"`
	Concurrency int `yaml:"concurrency"`
	MaxAttempts int `yaml:"max_attempts"`

	RetryBase    time.Duration `yaml:"-"`
	RetryBaseRaw string        `yaml:"retry_base"`
	RetryCap     time.Duration `yaml:"-"`
	RetryCapRaw  string        `yaml:"retry_cap"`
}

// StateConfig holds paths for persisted gateway state
type StateConfig struct {
	// Dir holds the flat JSON state files (sessions, pairing, allowlist).
	Dir string `yaml:"dir"`
	// AuditPath is the sqlite audit trail database. Empty disables auditing.
	AuditPath string `yaml:"audit_path"`
}

// AdminConfig holds the out-of-band admin API settings
type AdminConfig struct {
	Addr      string `yaml:"addr"`
	JWTSecret string `yaml:"jwt_secret"`
	// TokenHash is an optional bcrypt hash of a static bearer token,
	// accepted as an alternative to a JWT.
	TokenHash string `yaml:"token_hash"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults applied by Load when a field is unset.
const (
	DefaultPairingCodeLength = 8
	DefaultPairingTTL        = time.Hour
	DefaultRatePerMinute     = 10
	DefaultRatePerHour       = 100
	DefaultPollInterval      = 2 * time.Second
	DefaultCorrelateTimeout  = 2 * time.Minute
	DefaultAccumulatorTTL    = 5 * time.Minute
	DefaultQueueMaxSize      = 100
	DefaultQueueConcurrency  = 3
	DefaultQueueMaxAttempts  = 3
	DefaultRetryBase         = 500 * time.Millisecond
	DefaultRetryCap          = 30 * time.Second
)

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// ApplyDefaults fills zero-valued fields with the package defaults.
func (c *Config) ApplyDefaults() {
	if c.Security.DMPolicy == "" {
		c.Security.DMPolicy = "pairing"
	}
	if c.Security.PairingCodeLength == 0 {
		c.Security.PairingCodeLength = DefaultPairingCodeLength
	}
	if c.Security.PairingTTL == 0 {
		c.Security.PairingTTL = DefaultPairingTTL
	}
	if c.Security.RatePerMinute == 0 {
		c.Security.RatePerMinute = DefaultRatePerMinute
	}
	if c.Security.RatePerHour == 0 {
		c.Security.RatePerHour = DefaultRatePerHour
	}
	if c.Correlator.PollInterval == 0 {
		c.Correlator.PollInterval = DefaultPollInterval
	}
	if c.Correlator.Timeout == 0 {
		c.Correlator.Timeout = DefaultCorrelateTimeout
	}
	if c.Accumulator.TTL == 0 {
		c.Accumulator.TTL = DefaultAccumulatorTTL
	}
	if c.Queue.MaxSize == 0 {
		c.Queue.MaxSize = DefaultQueueMaxSize
	}
	if c.Queue.Concurrency == 0 {
		c.Queue.Concurrency = DefaultQueueConcurrency
	}
	if c.Queue.MaxAttempts == 0 {
		c.Queue.MaxAttempts = DefaultQueueMaxAttempts
	}
	if c.Queue.RetryBase == 0 {
		c.Queue.RetryBase = DefaultRetryBase
	}
	if c.Queue.RetryCap == 0 {
		c.Queue.RetryCap = DefaultRetryCap
	}
	if c.State.Dir == "" {
		c.State.Dir = "state"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url is required")
	}

	switch c.Security.DMPolicy {
	case "open", "pairing", "allowlist", "disabled":
	default:
		return fmt.Errorf("security.dm_policy must be one of open, pairing, allowlist, disabled (got %q)", c.Security.DMPolicy)
	}

	if c.Backend.EventsEnabled && c.Backend.EventsURL == "" {
		return fmt.Errorf("backend.events_url is required when backend.events_enabled is true")
	}

	if c.Admin.Addr != "" && c.Admin.JWTSecret == "" && c.Admin.TokenHash == "" {
		return fmt.Errorf("admin.jwt_secret or admin.token_hash is required when admin.addr is set")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		raw  string
		dst  *time.Duration
		name string
	}{
		{cfg.Security.PairingTTLRaw, &cfg.Security.PairingTTL, "pairing_ttl"},
		{cfg.Correlator.PollIntervalRaw, &cfg.Correlator.PollInterval, "poll_interval"},
		{cfg.Correlator.TimeoutRaw, &cfg.Correlator.Timeout, "timeout"},
		{cfg.Accumulator.TTLRaw, &cfg.Accumulator.TTL, "accumulator ttl"},
		{cfg.Queue.RetryBaseRaw, &cfg.Queue.RetryBase, "retry_base"},
		{cfg.Queue.RetryCapRaw, &cfg.Queue.RetryCap, "retry_cap"},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}
