package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var validLogLevels = []string{"debug", "info", "warn", "error"}

// TokenEnvVar is the environment variable that overrides the configured
// credential token.
const TokenEnvVar = "DEVBOARD_GITHUB_TOKEN"

// ErrConfigMissing marks a required credential or setting absent at startup.
// No report can be attempted without it.
var ErrConfigMissing = errors.New("required configuration missing")

// Config is the root application configuration.
type Config struct {
	Server    ServerConfig
	GitHub    GitHubConfig
	RateLimit RateLimitConfig
	Retry     RetryConfig
	Cache     CacheConfig
	Report    ReportConfig
	Telemetry TelemetryConfig
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	ListenAddr string
	LogLevel   string
}

// GitHubConfig configures origin API interactions.
type GitHubConfig struct {
	APIBaseURL     string
	Token          string
	Org            string
	Repos          []string
	RequestTimeout time.Duration
	App            AppAuthConfig
}

// AppAuthConfig configures optional GitHub App installation authentication.
// When AppID is zero, token authentication is used.
type AppAuthConfig struct {
	AppID          int64
	InstallationID int64
	PrivateKeyPath string
}

// RateLimitConfig configures rate-limit controls.
type RateLimitConfig struct {
	MinRemaining          int
	ResetBuffer           time.Duration
	SecondaryLimitBackoff time.Duration
	RequestsPerSecond     float64
}

// RetryConfig configures request retries.
type RetryConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// CacheConfig configures the two cache tiers.
type CacheConfig struct {
	Dir         string
	MemoryTTL   time.Duration
	SnapshotTTL time.Duration
	Backend     string
	RedisAddr   string
}

// ReportConfig configures aggregation scope and leaderboard shape.
type ReportConfig struct {
	Concurrency     int
	LeaderboardSize int
	DefaultPeriod   string
}

// TelemetryConfig configures tracing.
type TelemetryConfig struct {
	OTELEnabled          bool
	OTELTraceMode        string
	OTELTraceSampleRatio float64
}

// Load reads, defaults and validates configuration from YAML. The credential
// token may be supplied via the environment instead of the file.
func Load(reader io.Reader) (*Config, error) {
	decoder := yaml.NewDecoder(reader)
	decoder.KnownFields(true)

	var raw rawConfig
	if err := decoder.Decode(&raw); err != nil && err != io.EOF {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	cfg := raw.toConfig()
	applyDefaults(cfg)

	if envToken := strings.TrimSpace(os.Getenv(TokenEnvVar)); envToken != "" {
		cfg.GitHub.Token = envToken
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate validates configuration values.
func (c *Config) Validate() error {
	var errs []string

	if !slices.Contains(validLogLevels, c.Server.LogLevel) {
		errs = append(errs, "server.log_level must be one of debug|info|warn|error")
	}

	usingAppAuth := c.GitHub.App.AppID > 0
	if usingAppAuth {
		if c.GitHub.App.InstallationID <= 0 {
			errs = append(errs, "github.app.installation_id must be > 0 when github.app.app_id is set")
		}
		if c.GitHub.App.PrivateKeyPath == "" {
			errs = append(errs, "github.app.private_key_path is required when github.app.app_id is set")
		}
	} else if strings.TrimSpace(c.GitHub.Token) == "" {
		return fmt.Errorf("%w: github.token (or %s)", ErrConfigMissing, TokenEnvVar)
	}

	for i, repo := range c.GitHub.Repos {
		if !strings.Contains(repo, "/") {
			errs = append(errs, fmt.Sprintf("github.repos[%d] must be owner/name: %q", i, repo))
		}
	}

	if c.Cache.Backend != "file" && c.Cache.Backend != "redis" {
		errs = append(errs, "cache.backend must be file or redis")
	}
	if c.Cache.Backend == "redis" && c.Cache.RedisAddr == "" {
		errs = append(errs, "cache.redis_addr is required when cache.backend=redis")
	}

	if c.Report.Concurrency <= 0 {
		errs = append(errs, "report.concurrency must be > 0")
	}
	if c.Report.LeaderboardSize <= 0 {
		errs = append(errs, "report.leaderboard_size must be > 0")
	}
	switch c.Report.DefaultPeriod {
	case "daily", "weekly", "monthly":
	default:
		errs = append(errs, "report.default_period must be daily|weekly|monthly")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = "info"
	}
	if cfg.GitHub.RequestTimeout <= 0 {
		cfg.GitHub.RequestTimeout = 30 * time.Second
	}
	if cfg.RateLimit.SecondaryLimitBackoff <= 0 {
		cfg.RateLimit.SecondaryLimitBackoff = time.Minute
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = 3
	}
	if cfg.Retry.InitialBackoff <= 0 {
		cfg.Retry.InitialBackoff = time.Second
	}
	if cfg.Cache.Dir == "" {
		cfg.Cache.Dir = "data/snapshots"
	}
	if cfg.Cache.MemoryTTL <= 0 {
		cfg.Cache.MemoryTTL = 5 * time.Minute
	}
	if cfg.Cache.SnapshotTTL <= 0 {
		cfg.Cache.SnapshotTTL = time.Hour
	}
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = "file"
	}
	if cfg.Report.Concurrency <= 0 {
		cfg.Report.Concurrency = 5
	}
	if cfg.Report.LeaderboardSize <= 0 {
		cfg.Report.LeaderboardSize = 10
	}
	if cfg.Report.DefaultPeriod == "" {
		cfg.Report.DefaultPeriod = "daily"
	}
}

type duration struct {
	time.Duration
}

func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil || value.Kind == 0 || strings.TrimSpace(value.Value) == "" {
		d.Duration = 0
		return nil
	}

	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("decode duration: %w", err)
	}

	parsed, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

type rawConfig struct {
	Server    rawServer    `yaml:"server"`
	GitHub    rawGitHub    `yaml:"github"`
	RateLimit rawRateLimit `yaml:"rate_limit"`
	Retry     rawRetry     `yaml:"retry"`
	Cache     rawCache     `yaml:"cache"`
	Report    rawReport    `yaml:"report"`
	Telemetry rawTelemetry `yaml:"telemetry"`
}

type rawServer struct {
	ListenAddr string `yaml:"listen_addr"`
	LogLevel   string `yaml:"log_level"`
}

type rawGitHub struct {
	APIBaseURL     string     `yaml:"api_base_url"`
	Token          string     `yaml:"token"`
	Org            string     `yaml:"org"`
	Repos          []string   `yaml:"repos"`
	RequestTimeout duration   `yaml:"request_timeout"`
	App            rawAppAuth `yaml:"app"`
}

type rawAppAuth struct {
	AppID          int64  `yaml:"app_id"`
	InstallationID int64  `yaml:"installation_id"`
	PrivateKeyPath string `yaml:"private_key_path"`
}

type rawRateLimit struct {
	MinRemaining          int      `yaml:"min_remaining"`
	ResetBuffer           duration `yaml:"reset_buffer"`
	SecondaryLimitBackoff duration `yaml:"secondary_limit_backoff"`
	RequestsPerSecond     float64  `yaml:"requests_per_second"`
}

type rawRetry struct {
	MaxAttempts    int      `yaml:"max_attempts"`
	InitialBackoff duration `yaml:"initial_backoff"`
	MaxBackoff     duration `yaml:"max_backoff"`
}

type rawCache struct {
	Dir         string   `yaml:"dir"`
	MemoryTTL   duration `yaml:"memory_ttl"`
	SnapshotTTL duration `yaml:"snapshot_ttl"`
	Backend     string   `yaml:"backend"`
	RedisAddr   string   `yaml:"redis_addr"`
}

type rawReport struct {
	Concurrency     int    `yaml:"concurrency"`
	LeaderboardSize int    `yaml:"leaderboard_size"`
	DefaultPeriod   string `yaml:"default_period"`
}

type rawTelemetry struct {
	OTELEnabled          bool    `yaml:"otel_enabled"`
	OTELTraceMode        string  `yaml:"otel_trace_mode"`
	OTELTraceSampleRatio float64 `yaml:"otel_trace_sample_ratio"`
}

func (r rawConfig) toConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: r.Server.ListenAddr,
			LogLevel:   r.Server.LogLevel,
		},
		GitHub: GitHubConfig{
			APIBaseURL:     r.GitHub.APIBaseURL,
			Token:          r.GitHub.Token,
			Org:            r.GitHub.Org,
			Repos:          r.GitHub.Repos,
			RequestTimeout: r.GitHub.RequestTimeout.Duration,
			App: AppAuthConfig{
				AppID:          r.GitHub.App.AppID,
				InstallationID: r.GitHub.App.InstallationID,
				PrivateKeyPath: r.GitHub.App.PrivateKeyPath,
			},
		},
		RateLimit: RateLimitConfig{
			MinRemaining:          r.RateLimit.MinRemaining,
			ResetBuffer:           r.RateLimit.ResetBuffer.Duration,
			SecondaryLimitBackoff: r.RateLimit.SecondaryLimitBackoff.Duration,
			RequestsPerSecond:     r.RateLimit.RequestsPerSecond,
		},
		Retry: RetryConfig{
			MaxAttempts:    r.Retry.MaxAttempts,
			InitialBackoff: r.Retry.InitialBackoff.Duration,
			MaxBackoff:     r.Retry.MaxBackoff.Duration,
		},
		Cache: CacheConfig{
			Dir:         r.Cache.Dir,
			MemoryTTL:   r.Cache.MemoryTTL.Duration,
			SnapshotTTL: r.Cache.SnapshotTTL.Duration,
			Backend:     r.Cache.Backend,
			RedisAddr:   r.Cache.RedisAddr,
		},
		Report: ReportConfig{
			Concurrency:     r.Report.Concurrency,
			LeaderboardSize: r.Report.LeaderboardSize,
			DefaultPeriod:   r.Report.DefaultPeriod,
		},
		Telemetry: TelemetryConfig{
			OTELEnabled:          r.Telemetry.OTELEnabled,
			OTELTraceMode:        r.Telemetry.OTELTraceMode,
			OTELTraceSampleRatio: r.Telemetry.OTELTraceSampleRatio,
		},
	}
}
