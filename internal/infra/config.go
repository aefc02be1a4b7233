package infra

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"spread_go/internal/domain"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultUserAgent is a browser-like user agent string to avoid bot detection
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	envPrefix = "SPREAD_"
)

// VenueConfig selects one feed provider and optionally overrides its endpoints.
type VenueConfig struct {
	Name               string   `yaml:"name" toml:"name"`
	RestURL            string   `yaml:"rest_url" toml:"rest_url"`
	WSURL              string   `yaml:"ws_url" toml:"ws_url"`
	RateLimitPerSecond int      `yaml:"rate_limit_per_second" toml:"rate_limit_per_second"`
	PingIntervalSec    int      `yaml:"ping_interval_sec" toml:"ping_interval_sec"`
	ReadTimeoutSec     int      `yaml:"read_timeout_sec" toml:"read_timeout_sec"`
	Symbols            []string `yaml:"symbols" toml:"symbols"`                   // stub venues only
	TickIntervalMS     int      `yaml:"tick_interval_ms" toml:"tick_interval_ms"` // stub venues only
}

// CircuitBreakerConfig excludes a venue after repeated consecutive failures.
// MaxFailures of 0 disables the breaker.
type CircuitBreakerConfig struct {
	MaxFailures int `yaml:"max_failures" toml:"max_failures"`
	CooldownSec int `yaml:"cooldown_sec" toml:"cooldown_sec"`
}

// ScannerConfig tunes the spread engine and its outer loop.
type ScannerConfig struct {
	ThresholdPercent    float64              `yaml:"threshold_percent" toml:"threshold_percent"`
	BatchSize           int                  `yaml:"batch_size" toml:"batch_size"`
	MinRecords          int                  `yaml:"min_records" toml:"min_records"`
	MinHighSpread       int                  `yaml:"min_high_spread" toml:"min_high_spread"`
	StatusIntervalSec   int                  `yaml:"status_interval_sec" toml:"status_interval_sec"`
	StatusTopN          int                  `yaml:"status_top_n" toml:"status_top_n"`
	RecoveryPauseSec    int                  `yaml:"recovery_pause_sec" toml:"recovery_pause_sec"`
	RecoveryBackoff     string               `yaml:"recovery_backoff" toml:"recovery_backoff"` // "fixed" or "exponential"
	MaxRecoveryPauseSec int                  `yaml:"max_recovery_pause_sec" toml:"max_recovery_pause_sec"`
	VenueTimeoutMS      int                  `yaml:"venue_timeout_ms" toml:"venue_timeout_ms"`
	MaxQuoteAgeMS       int                  `yaml:"max_quote_age_ms" toml:"max_quote_age_ms"`
	FailurePolicy       string               `yaml:"failure_policy" toml:"failure_policy"` // "abort_cycle" or "isolate_venue"
	CircuitBreaker      CircuitBreakerConfig `yaml:"circuit_breaker" toml:"circuit_breaker"`
	DumpFile            string               `yaml:"dump_file" toml:"dump_file"`
}

// ChannelConfig bounds the signal channel.
type ChannelConfig struct {
	Capacity int    `yaml:"capacity" toml:"capacity"`
	Overflow string `yaml:"overflow" toml:"overflow"` // "block", "drop_oldest" or "reject"
}

// StorageConfig enables SQLite persistence of signals and catalogs.
type StorageConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
}

// RedisConfig enables publishing signal batches to Redis.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled" toml:"enabled"`
	Address  string `yaml:"address" toml:"address"`
	Password string `yaml:"password" toml:"password"`
	DB       int    `yaml:"db" toml:"db"`
	Channel  string `yaml:"channel" toml:"channel"`
	TTLSec   int    `yaml:"ttl_sec" toml:"ttl_sec"`
}

// AlertingConfig enables webhook notifications for signal batches.
type AlertingConfig struct {
	Enabled           bool   `yaml:"enabled" toml:"enabled"`
	SlackWebhookURL   string `yaml:"slack_webhook_url" toml:"slack_webhook_url"`
	DiscordWebhookURL string `yaml:"discord_webhook_url" toml:"discord_webhook_url"`
	CooldownSec       int    `yaml:"cooldown_sec" toml:"cooldown_sec"`
}

// APIConfig enables the HTTP status API when BindAddress is set.
type APIConfig struct {
	BindAddress string   `yaml:"bind_address" toml:"bind_address"`
	CORSOrigins []string `yaml:"cors_origins" toml:"cors_origins"`
}

// LoggingConfig selects log level and rotation directory.
type LoggingConfig struct {
	Level string `yaml:"level" toml:"level"`
	Dir   string `yaml:"dir" toml:"dir"`
}

// Config holds every application setting.
// LoadConfig starts from DefaultConfig, overlays the file, then environment variables.
type Config struct {
	App struct {
		Name    string `yaml:"name" toml:"name"`
		Version string `yaml:"version" toml:"version"`
	} `yaml:"app" toml:"app"`

	Venues   []VenueConfig  `yaml:"venues" toml:"venues"`
	Scanner  ScannerConfig  `yaml:"scanner" toml:"scanner"`
	Channel  ChannelConfig  `yaml:"channel" toml:"channel"`
	Storage  StorageConfig  `yaml:"storage" toml:"storage"`
	Redis    RedisConfig    `yaml:"redis" toml:"redis"`
	Alerting AlertingConfig `yaml:"alerting" toml:"alerting"`
	API      APIConfig      `yaml:"api" toml:"api"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging"`
}

// DefaultConfig returns the built-in settings.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.App.Name = "spread-go"
	cfg.App.Version = "dev"
	cfg.Venues = []VenueConfig{
		{Name: "binance"},
		{Name: "okx"},
		{Name: "bybit"},
		{Name: "bitget"},
	}
	cfg.Scanner = ScannerConfig{
		ThresholdPercent:    0.5,
		BatchSize:           3,
		MinRecords:          250,
		MinHighSpread:       3,
		StatusIntervalSec:   60,
		StatusTopN:          10,
		RecoveryPauseSec:    5,
		RecoveryBackoff:     "fixed",
		MaxRecoveryPauseSec: 60,
		FailurePolicy:       "abort_cycle",
		DumpFile:            "panic_dump.json",
	}
	cfg.Channel = ChannelConfig{Capacity: 64, Overflow: "block"}
	cfg.Redis = RedisConfig{Address: "localhost:6379", Channel: "spread:signals", TTLSec: 300}
	cfg.Alerting = AlertingConfig{CooldownSec: 300}
	cfg.API = APIConfig{CORSOrigins: []string{"http://localhost:3000"}}
	cfg.Logging = LoggingConfig{Level: "info", Dir: "logs"}
	return cfg
}

// LoadConfig reads a YAML or TOML (by extension) configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrConfigNotFound, path)
		}
		return nil, err
	}

	cfg := DefaultConfig()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	default:
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	// Secrets may live in a .env file next to the config
	loadDotEnv(filepath.Join(filepath.Dir(path), ".env"))
	overrideWithEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func loadDotEnv(path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}
	// godotenv.Load never overrides variables that are already set
	_ = godotenv.Load(path)
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if len(c.Venues) < 2 {
		return &ConfigFieldError{Field: "venues", Err: fmt.Errorf("at least two venues are required, got %d", len(c.Venues))}
	}
	seen := make(map[string]bool, len(c.Venues))
	for i, v := range c.Venues {
		name := strings.ToLower(strings.TrimSpace(v.Name))
		if name == "" {
			return &ConfigFieldError{Field: fmt.Sprintf("venues[%d].name", i), Err: errors.New("empty venue name")}
		}
		if seen[name] {
			return &ConfigFieldError{Field: "venues", Err: fmt.Errorf("duplicate venue %q", name)}
		}
		seen[name] = true
		if v.WSURL != "" && !strings.HasPrefix(v.WSURL, "ws://") && !strings.HasPrefix(v.WSURL, "wss://") {
			return &ConfigFieldError{Field: fmt.Sprintf("venues[%d].ws_url", i), Err: fmt.Errorf("invalid WS URL: %s", v.WSURL)}
		}
		c.Venues[i].Name = name
	}

	s := c.Scanner
	if s.ThresholdPercent < 0 {
		return &ConfigFieldError{Field: "scanner.threshold_percent", Err: errors.New("must not be negative")}
	}
	if s.BatchSize < 1 {
		return &ConfigFieldError{Field: "scanner.batch_size", Err: errors.New("must be positive")}
	}
	if s.MinRecords < 0 || s.MinHighSpread < 0 {
		return &ConfigFieldError{Field: "scanner.min_records", Err: errors.New("significance gates must not be negative")}
	}
	if s.StatusIntervalSec <= 0 {
		return &ConfigFieldError{Field: "scanner.status_interval_sec", Err: errors.New("must be positive")}
	}
	if s.RecoveryPauseSec <= 0 {
		return &ConfigFieldError{Field: "scanner.recovery_pause_sec", Err: errors.New("must be positive")}
	}
	switch s.RecoveryBackoff {
	case "fixed", "exponential":
	default:
		return &ConfigFieldError{Field: "scanner.recovery_backoff", Err: fmt.Errorf("unknown backoff %q", s.RecoveryBackoff)}
	}
	switch s.FailurePolicy {
	case "abort_cycle", "isolate_venue":
	default:
		return &ConfigFieldError{Field: "scanner.failure_policy", Err: fmt.Errorf("unknown policy %q", s.FailurePolicy)}
	}
	if s.CircuitBreaker.MaxFailures < 0 || s.CircuitBreaker.CooldownSec < 0 {
		return &ConfigFieldError{Field: "scanner.circuit_breaker", Err: errors.New("must not be negative")}
	}

	if c.Channel.Capacity < 1 {
		return &ConfigFieldError{Field: "channel.capacity", Err: errors.New("must be positive")}
	}
	switch c.Channel.Overflow {
	case "block", "drop_oldest", "reject":
	default:
		return &ConfigFieldError{Field: "channel.overflow", Err: fmt.Errorf("unknown overflow policy %q", c.Channel.Overflow)}
	}

	if c.Redis.Enabled && c.Redis.Address == "" {
		return &ConfigFieldError{Field: "redis.address", Err: errors.New("required when redis is enabled")}
	}

	return nil
}

// ConfigFieldError is a domain.ConfigError raised by Validate.
type ConfigFieldError = domain.ConfigError

// RecoveryPause returns the configured base pause of the Recovering state.
func (s ScannerConfig) RecoveryPause() time.Duration {
	return time.Duration(s.RecoveryPauseSec) * time.Second
}

// StatusInterval returns the minimum time between two status tables.
func (s ScannerConfig) StatusInterval() time.Duration {
	return time.Duration(s.StatusIntervalSec) * time.Second
}

// overrideWithEnv overlays SPREAD_* environment variables.
func overrideWithEnv(cfg *Config) {
	if v := os.Getenv(envPrefix + "VENUES"); v != "" {
		var venues []VenueConfig
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				venues = append(venues, VenueConfig{Name: name})
			}
		}
		cfg.Venues = venues
	}
	if v := os.Getenv(envPrefix + "LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv(envPrefix + "API_BIND"); v != "" {
		cfg.API.BindAddress = v
	}
	if v := os.Getenv(envPrefix + "REDIS_ADDRESS"); v != "" {
		cfg.Redis.Address = v
	}
	if v := os.Getenv(envPrefix + "REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv(envPrefix + "SLACK_WEBHOOK_URL"); v != "" {
		cfg.Alerting.SlackWebhookURL = v
	}
	if v := os.Getenv(envPrefix + "DISCORD_WEBHOOK_URL"); v != "" {
		cfg.Alerting.DiscordWebhookURL = v
	}
}
