package config

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	yaml := `
github:
  token: ghp_test
  org: org-a
`
	cfg, err := Load(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != "info" {
		t.Errorf("LogLevel = %q", cfg.Server.LogLevel)
	}
	if cfg.GitHub.RequestTimeout != 30*time.Second {
		t.Errorf("RequestTimeout = %v", cfg.GitHub.RequestTimeout)
	}
	if cfg.Retry.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d", cfg.Retry.MaxAttempts)
	}
	if cfg.Cache.Dir != "data/snapshots" {
		t.Errorf("Cache.Dir = %q", cfg.Cache.Dir)
	}
	if cfg.Cache.MemoryTTL != 5*time.Minute {
		t.Errorf("MemoryTTL = %v", cfg.Cache.MemoryTTL)
	}
	if cfg.Cache.SnapshotTTL != time.Hour {
		t.Errorf("SnapshotTTL = %v", cfg.Cache.SnapshotTTL)
	}
	if cfg.Cache.Backend != "file" {
		t.Errorf("Backend = %q", cfg.Cache.Backend)
	}
	if cfg.Report.Concurrency != 5 {
		t.Errorf("Concurrency = %d", cfg.Report.Concurrency)
	}
	if cfg.Report.LeaderboardSize != 10 {
		t.Errorf("LeaderboardSize = %d", cfg.Report.LeaderboardSize)
	}
	if cfg.Report.DefaultPeriod != "daily" {
		t.Errorf("DefaultPeriod = %q", cfg.Report.DefaultPeriod)
	}
}

func TestLoadParsesFullConfig(t *testing.T) {
	yaml := `
server:
  listen_addr: ":9090"
  log_level: debug
github:
  api_base_url: https://github.example.com/api/v3/
  token: ghp_test
  org: org-a
  repos:
    - org-a/repo-a
    - org-a/repo-b
  request_timeout: 10s
rate_limit:
  min_remaining: 50
  reset_buffer: 5s
  secondary_limit_backoff: 2m
  requests_per_second: 4.5
retry:
  max_attempts: 5
  initial_backoff: 500ms
  max_backoff: 30s
cache:
  dir: /tmp/snapshots
  memory_ttl: 2m
  snapshot_ttl: 30m
  backend: redis
  redis_addr: localhost:6379
report:
  concurrency: 8
  leaderboard_size: 20
  default_period: weekly
telemetry:
  otel_enabled: true
  otel_trace_mode: detailed
  otel_trace_sample_ratio: 0.5
`
	cfg, err := Load(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.ListenAddr != ":9090" || cfg.Server.LogLevel != "debug" {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.GitHub.APIBaseURL != "https://github.example.com/api/v3/" {
		t.Errorf("APIBaseURL = %q", cfg.GitHub.APIBaseURL)
	}
	if len(cfg.GitHub.Repos) != 2 {
		t.Errorf("Repos = %v", cfg.GitHub.Repos)
	}
	if cfg.GitHub.RequestTimeout != 10*time.Second {
		t.Errorf("RequestTimeout = %v", cfg.GitHub.RequestTimeout)
	}
	if cfg.RateLimit.MinRemaining != 50 || cfg.RateLimit.SecondaryLimitBackoff != 2*time.Minute {
		t.Errorf("rate limit = %+v", cfg.RateLimit)
	}
	if cfg.RateLimit.RequestsPerSecond != 4.5 {
		t.Errorf("RequestsPerSecond = %v", cfg.RateLimit.RequestsPerSecond)
	}
	if cfg.Retry.MaxAttempts != 5 || cfg.Retry.InitialBackoff != 500*time.Millisecond {
		t.Errorf("retry = %+v", cfg.Retry)
	}
	if cfg.Cache.Backend != "redis" || cfg.Cache.RedisAddr != "localhost:6379" {
		t.Errorf("cache = %+v", cfg.Cache)
	}
	if cfg.Report.Concurrency != 8 || cfg.Report.DefaultPeriod != "weekly" {
		t.Errorf("report = %+v", cfg.Report)
	}
	if !cfg.Telemetry.OTELEnabled || cfg.Telemetry.OTELTraceMode != "detailed" {
		t.Errorf("telemetry = %+v", cfg.Telemetry)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	yaml := `
github:
  token: ghp_test
  not_a_real_field: true
`
	if _, err := Load(strings.NewReader(yaml)); err == nil {
		t.Fatal("expected unknown fields to be rejected")
	}
}

func TestLoadMissingTokenIsConfigMissing(t *testing.T) {
	_, err := Load(strings.NewReader("github:\n  org: org-a\n"))
	if !errors.Is(err, ErrConfigMissing) {
		t.Fatalf("err = %v, want ErrConfigMissing", err)
	}
}

func TestLoadTokenFromEnvironment(t *testing.T) {
	t.Setenv(TokenEnvVar, "ghp_from_env")

	cfg, err := Load(strings.NewReader("github:\n  org: org-a\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GitHub.Token != "ghp_from_env" {
		t.Fatalf("Token = %q", cfg.GitHub.Token)
	}
}

func TestLoadEnvTokenOverridesFile(t *testing.T) {
	t.Setenv(TokenEnvVar, "ghp_from_env")

	cfg, err := Load(strings.NewReader("github:\n  token: ghp_from_file\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GitHub.Token != "ghp_from_env" {
		t.Fatalf("Token = %q, want the environment to win", cfg.GitHub.Token)
	}
}

func TestLoadAppAuthNeedsNoToken(t *testing.T) {
	yaml := `
github:
  org: org-a
  app:
    app_id: 123
    installation_id: 456
    private_key_path: /etc/devboard/app.pem
`
	cfg, err := Load(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GitHub.App.AppID != 123 {
		t.Fatalf("app = %+v", cfg.GitHub.App)
	}
}

func TestValidateErrors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		mutate   func(cfg *Config)
		wantPart string
	}{
		{
			name:     "bad_log_level",
			mutate:   func(cfg *Config) { cfg.Server.LogLevel = "verbose" },
			wantPart: "server.log_level",
		},
		{
			name:     "repo_without_owner",
			mutate:   func(cfg *Config) { cfg.GitHub.Repos = []string{"repo-only"} },
			wantPart: "github.repos[0]",
		},
		{
			name:     "unknown_cache_backend",
			mutate:   func(cfg *Config) { cfg.Cache.Backend = "memcached" },
			wantPart: "cache.backend",
		},
		{
			name: "redis_backend_without_addr",
			mutate: func(cfg *Config) {
				cfg.Cache.Backend = "redis"
				cfg.Cache.RedisAddr = ""
			},
			wantPart: "cache.redis_addr",
		},
		{
			name:     "bad_default_period",
			mutate:   func(cfg *Config) { cfg.Report.DefaultPeriod = "quarterly" },
			wantPart: "report.default_period",
		},
		{
			name:     "nonpositive_concurrency",
			mutate:   func(cfg *Config) { cfg.Report.Concurrency = 0 },
			wantPart: "report.concurrency",
		},
		{
			name: "app_auth_without_installation",
			mutate: func(cfg *Config) {
				cfg.GitHub.App.AppID = 123
				cfg.GitHub.App.PrivateKeyPath = "/etc/devboard/app.pem"
			},
			wantPart: "github.app.installation_id",
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg := validBaseConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected a validation error")
			}
			if !strings.Contains(err.Error(), tc.wantPart) {
				t.Fatalf("err = %v, want mention of %q", err, tc.wantPart)
			}
		})
	}
}

func TestDurationUnmarshal(t *testing.T) {
	yaml := `
github:
  token: ghp_test
  request_timeout: not-a-duration
`
	if _, err := Load(strings.NewReader(yaml)); err == nil {
		t.Fatal("expected an error for an unparseable duration")
	}
}

func validBaseConfig() *Config {
	cfg := &Config{
		GitHub: GitHubConfig{Token: "ghp_test", Org: "org-a"},
	}
	applyDefaults(cfg)
	return cfg
}
