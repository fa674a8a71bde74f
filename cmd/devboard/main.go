package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cam3ron2/devboard/internal/app"
	"github.com/cam3ron2/devboard/internal/cache"
	"github.com/cam3ron2/devboard/internal/config"
	"github.com/cam3ron2/devboard/internal/githubapi"
	"github.com/cam3ron2/devboard/internal/report"
	"github.com/cam3ron2/devboard/internal/telemetry"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := run(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "devboard: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Best effort; a missing .env is the normal production case.
	_ = godotenv.Load()

	var configPath string
	flag.StringVar(&configPath, "config", "config/local.yaml", "path to YAML config file")
	flag.Parse()

	configFile, err := os.Open(configPath)
	if err != nil {
		return fmt.Errorf("open config file: %w", err)
	}
	defer func() {
		_ = configFile.Close()
	}()

	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	loggerConfig := zap.NewProductionConfig()
	loggerConfig.Level = zap.NewAtomicLevelAt(logLevel(cfg.Server.LogLevel))
	logger, err := loggerConfig.Build()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	telemetryRuntime, err := telemetry.Setup(telemetry.Config{
		Enabled:          cfg.Telemetry.OTELEnabled,
		ServiceName:      "devboard",
		TraceMode:        cfg.Telemetry.OTELTraceMode,
		TraceSampleRatio: cfg.Telemetry.OTELTraceSampleRatio,
	})
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = telemetryRuntime.Shutdown(shutdownCtx)
	}()

	httpClient, err := buildAuthClient(cfg)
	if err != nil {
		return fmt.Errorf("build origin auth client: %w", err)
	}

	requestClient := githubapi.NewClient(httpClient, githubapi.RetryConfig{
		MaxAttempts:    cfg.Retry.MaxAttempts,
		InitialBackoff: cfg.Retry.InitialBackoff,
		MaxBackoff:     cfg.Retry.MaxBackoff,
	}, githubapi.PacingPolicy{
		MinRemaining:          cfg.RateLimit.MinRemaining,
		ResetBuffer:           cfg.RateLimit.ResetBuffer,
		SecondaryLimitBackoff: cfg.RateLimit.SecondaryLimitBackoff,
	}, cfg.RateLimit.RequestsPerSecond)

	dataClient, err := githubapi.NewDataClient(cfg.GitHub.APIBaseURL, requestClient)
	if err != nil {
		return fmt.Errorf("build origin data client: %w", err)
	}

	merger := report.NewMerger(dataClient, logger, report.MergerConfig{
		Org:         cfg.GitHub.Org,
		Repos:       cfg.GitHub.Repos,
		Concurrency: cfg.Report.Concurrency,
	})

	snapshots, err := buildSnapshotStore(cfg)
	if err != nil {
		return fmt.Errorf("build snapshot store: %w", err)
	}

	manager := cache.NewManager(merger, snapshots, logger, cache.Config{
		MemoryTTL:   cfg.Cache.MemoryTTL,
		SnapshotTTL: cfg.Cache.SnapshotTTL,
	})

	rootCtx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	for _, outcome := range manager.ReconcileStartup(rootCtx) {
		switch {
		case outcome.Err != nil:
			logger.Warn("startup snapshot reconcile failed",
				zap.String("period", string(outcome.Period)), zap.Error(outcome.Err))
		case outcome.Refreshed:
			logger.Info("startup snapshot refreshed", zap.String("period", string(outcome.Period)))
		default:
			logger.Info("startup snapshot still fresh", zap.String("period", string(outcome.Period)))
		}
	}

	metrics := app.NewMetrics()
	rateBudget := func(ctx context.Context) (githubapi.RateBudget, error) {
		return githubapi.FetchRateBudget(ctx, httpClient, cfg.GitHub.APIBaseURL)
	}
	queryServer := app.NewServer(manager, rateBudget, metrics, logger, app.ServerConfig{
		DefaultPeriod:   report.Period(cfg.Report.DefaultPeriod),
		LeaderboardSize: cfg.Report.LeaderboardSize,
	})

	server := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           queryServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.ListenAddr))
		if serveErr := server.ListenAndServe(); serveErr != nil && serveErr != http.ErrServerClosed {
			serverErrCh <- serveErr
		}
		close(serverErrCh)
	}()

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case serveErr := <-serverErrCh:
		if serveErr != nil {
			return fmt.Errorf("http server failed: %w", serveErr)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}

	logger.Info("shutdown complete")
	return nil
}

func buildAuthClient(cfg *config.Config) (*http.Client, error) {
	if cfg.GitHub.App.AppID > 0 {
		return githubapi.NewInstallationHTTPClient(githubapi.InstallationAuthConfig{
			AppID:          cfg.GitHub.App.AppID,
			InstallationID: cfg.GitHub.App.InstallationID,
			PrivateKeyPath: cfg.GitHub.App.PrivateKeyPath,
			Timeout:        cfg.GitHub.RequestTimeout,
		})
	}
	return githubapi.NewTokenHTTPClient(githubapi.TokenAuthConfig{
		Token:   cfg.GitHub.Token,
		Timeout: cfg.GitHub.RequestTimeout,
	})
}

func buildSnapshotStore(cfg *config.Config) (cache.SnapshotStore, error) {
	if cfg.Cache.Backend == "redis" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Cache.RedisAddr})
		return cache.NewRedisStore(client, cache.RedisStoreConfig{
			Expiry: cfg.Cache.SnapshotTTL * 2,
		}), nil
	}
	return cache.NewFileStore(cfg.Cache.Dir)
}

func logLevel(raw string) zapcore.Level {
	switch strings.ToLower(raw) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
