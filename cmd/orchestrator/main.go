// Package main is the entry point for the orchestrator service.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/forgeml/orchestrator/internal/api"
	"github.com/forgeml/orchestrator/internal/archive"
	"github.com/forgeml/orchestrator/internal/auth"
	"github.com/forgeml/orchestrator/internal/cache"
	"github.com/forgeml/orchestrator/internal/config"
	"github.com/forgeml/orchestrator/internal/engine"
	"github.com/forgeml/orchestrator/internal/handler"
	"github.com/forgeml/orchestrator/internal/monitor"
	"github.com/forgeml/orchestrator/internal/notify"
	"github.com/forgeml/orchestrator/internal/store"
	"github.com/forgeml/orchestrator/internal/tracing"
	"github.com/forgeml/orchestrator/internal/validator"
	"github.com/forgeml/orchestrator/pkg/types"
)

func main() {
	cfg := config.Load()

	// Structured logging
	logLevel := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	var logHandler slog.Handler
	if cfg.LogFormat == "json" {
		logHandler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	} else {
		logHandler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	}
	logger := slog.New(logHandler)
	slog.SetDefault(logger)

	logger.Info("starting orchestrator",
		slog.String("port", cfg.Port),
		slog.String("log_level", cfg.LogLevel),
	)

	ctx := context.Background()

	// Tracing
	tp, err := tracing.Init(ctx, &tracing.Config{
		ServiceName:    "forgeml-orchestrator",
		ServiceVersion: "1.0.0",
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.TracingEnabled,
		SampleRate:     cfg.TracingSampleRate,
	}, logger)
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	// Store
	var st store.Store
	switch cfg.StoreType {
	case "redis":
		redisStore, err := store.NewRedisStore(&store.RedisConfig{
			URL:                 cfg.RedisURL,
			Password:            cfg.RedisPassword,
			DB:                  cfg.RedisDB,
			TTL:                 cfg.StoreTTL,
			CheckpointRetention: cfg.CheckpointRetention,
		})
		if err != nil {
			logger.Error("failed to connect to Redis, falling back to memory store", "error", err)
			st = store.NewMemoryStore(&store.Config{
				EventMaxLen:         cfg.EventMaxLen,
				CheckpointRetention: cfg.CheckpointRetention,
				TTLSeconds:          int64(cfg.StoreTTL.Seconds()),
			})
		} else {
			st = redisStore
			logger.Info("using Redis store", slog.String("url", cfg.RedisURL))
		}
	default:
		st = store.NewMemoryStore(&store.Config{
			EventMaxLen:         cfg.EventMaxLen,
			CheckpointRetention: cfg.CheckpointRetention,
			TTLSeconds:          int64(cfg.StoreTTL.Seconds()),
		})
		logger.Info("using in-memory store")
	}
	defer st.Close()

	// Job output cache
	var jobCache cache.Cache
	switch cfg.CacheType {
	case "none":
		logger.Info("job cache disabled")
	case "redis":
		redisCache, err := cache.NewRedisCache(&cache.RedisCacheConfig{
			URL:      cfg.RedisURL,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.CacheTTL,
		})
		if err != nil {
			logger.Error("failed to create Redis cache, falling back to memory", "error", err)
			jobCache = cache.NewMemoryCache(&cache.Config{MaxEntries: cfg.CacheMaxEntries, TTL: cfg.CacheTTL})
		} else {
			jobCache = redisCache
			logger.Info("using Redis job cache")
		}
	default:
		jobCache = cache.NewMemoryCache(&cache.Config{MaxEntries: cfg.CacheMaxEntries, TTL: cfg.CacheTTL})
		logger.Info("using in-memory job cache")
	}
	if jobCache != nil {
		defer jobCache.Close()
	}

	// Resource monitor
	var mon *monitor.Monitor
	if cfg.MonitorEnabled {
		mon = monitor.New(nil, &monitor.Config{Interval: cfg.MonitorInterval}, logger)
		defer mon.Close()
	}

	// Checkpoint archive
	var archiver engine.Archiver
	if cfg.ArchiveEnabled {
		s3arc, err := archive.NewS3Archive(&archive.S3Config{
			Endpoint:        cfg.ArchiveEndpoint,
			Bucket:          cfg.ArchiveBucket,
			Region:          cfg.ArchiveRegion,
			AccessKeyID:     cfg.ArchiveAccessKey,
			SecretAccessKey: cfg.ArchiveSecretKey,
			UseSSL:          cfg.ArchiveUseSSL,
			PathPrefix:      cfg.ArchivePrefix,
		})
		if err != nil {
			logger.Error("failed to create checkpoint archive", "error", err)
		} else {
			archiver = s3arc
			logger.Info("checkpoint archive enabled", slog.String("bucket", cfg.ArchiveBucket))
		}
	}

	// Handler registry with built-in handlers. Real deployments register
	// their own job types before serving.
	registry := handler.NewRegistry()
	registerBuiltins(registry)

	// Engine
	eng := engine.New(st, jobCache, registry, mon, archiver, &engine.Options{
		Parallelism:               cfg.Parallelism,
		CancelOnCriticalViolation: cfg.CancelOnCriticalViolation,
		CheckpointInterval:        cfg.CheckpointInterval,
		CheckpointEachLevel:       cfg.CheckpointEachLevel,
		CheckpointEachJob:         cfg.CheckpointEachJob,
	}, logger)
	defer eng.Close()

	// Notifications
	notifiers := []notify.Notifier{notify.NewLogNotifier(logger)}
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, notify.NewWebhookNotifier(cfg.WebhookURL, cfg.WebhookTimeout))
		logger.Info("webhook notifications enabled", slog.String("url", cfg.WebhookURL))
	}
	eng.SetNotifier(notify.NewMulti(notifiers...))

	// Pipeline validator
	v, err := validator.New()
	if err != nil {
		logger.Error("failed to create validator", "error", err)
		v = nil
	}

	// Auth and rate limiting middleware
	var extra []mux.MiddlewareFunc
	extra = append(extra, auth.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst).Handler)
	if cfg.OIDCEnabled {
		verifier, err := auth.NewVerifier(ctx, &auth.Config{
			Issuer:   cfg.OIDCIssuer,
			ClientID: cfg.OIDCClientID,
		})
		if err != nil {
			logger.Error("failed to create OIDC verifier", "error", err)
			os.Exit(1)
		}
		extra = append(extra, auth.NewMiddleware(verifier, &auth.MiddlewareConfig{Enabled: true}).Handler)
		logger.Info("OIDC authentication enabled", slog.String("issuer", cfg.OIDCIssuer))
	}

	// API server
	handlers := api.NewHandlers(st, eng, registry, v, cfg, logger)
	server := api.NewServer(handlers, extra...)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      server.Router(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		logger.Error("tracer shutdown error", "error", err)
	}

	logger.Info("server stopped")
}

// registerBuiltins wires the handlers every deployment gets for free.
func registerBuiltins(registry *handler.Registry) {
	registry.RegisterFunc("noop", func(ctx context.Context, spec *types.JobSpec, hctx *handler.Context) (map[string]interface{}, error) {
		return map[string]interface{}{"ok": true}, nil
	}, "v1")

	// sleep pauses for config.duration_ms, useful for pipeline smoke tests.
	registry.RegisterFunc("sleep", func(ctx context.Context, spec *types.JobSpec, hctx *handler.Context) (map[string]interface{}, error) {
		ms, _ := spec.Config["duration_ms"].(float64)
		select {
		case <-time.After(time.Duration(ms) * time.Millisecond):
			return map[string]interface{}{"slept_ms": ms}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}, "v1")
}
