package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/portalgate/pkg/access"
	"github.com/platinummonkey/portalgate/pkg/api"
	"github.com/platinummonkey/portalgate/pkg/audit"
	"github.com/platinummonkey/portalgate/pkg/auth"
	"github.com/platinummonkey/portalgate/pkg/composer"
	"github.com/platinummonkey/portalgate/pkg/config"
	"github.com/platinummonkey/portalgate/pkg/httputil"
	"github.com/platinummonkey/portalgate/pkg/middleware"
	"github.com/platinummonkey/portalgate/pkg/observability"
	"github.com/platinummonkey/portalgate/pkg/pages"
	"github.com/platinummonkey/portalgate/pkg/rbac"
	"github.com/platinummonkey/portalgate/pkg/render"
)

var version = "dev"

// guestLimiter is the subset of both limiter implementations main needs
type guestLimiter interface {
	middleware.GuestLimiter
	SetLimit(limit int) error
}

func main() {
	runRetention := flag.Bool("run-retention", false, "Run audit retention once and exit")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	if err := run(cfg, logger, *runRetention); err != nil {
		logger.WithError(err).Fatal("portalgate exited with error")
	}
}

func run(cfg *config.Config, logger *logrus.Logger, retentionOnly bool) error {
	ctx := context.Background()

	// Tracing
	otelProviders, err := observability.InitOTel(ctx, cfg.Observability.OTel, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	// Database
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	if err := pages.Migrate(ctx, db); err != nil {
		return fmt.Errorf("failed to migrate page tables: %w", err)
	}
	if err := rbac.Migrate(ctx, db); err != nil {
		return fmt.Errorf("failed to migrate rbac tables: %w", err)
	}

	auditStore, err := audit.NewDBStore(db)
	if err != nil {
		return err
	}

	retention, err := newRetention(ctx, cfg, auditStore, logger)
	if err != nil {
		return err
	}
	if retentionOnly {
		return runCleanup(ctx, retention, cfg.Audit.Retention, logger)
	}

	// Metrics
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		registry := prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics = observability.NewMetrics(registry)
	}

	// Permission oracle
	var oracle rbac.Oracle = rbac.NewSQLOracle(rbac.NewStore(db))
	if cfg.Cache.PermissionSize > 0 {
		cached := rbac.NewCachedOracle(oracle, cfg.Cache.PermissionSize, cfg.Cache.PermissionTTL)
		cached.SetMetrics(metrics)
		cached.SetLookupTimeout(cfg.Cache.PermissionLookupTimeout)
		oracle = cached
	}

	// Pages
	pageStore := pages.NewDBStore(db)
	var reader pages.Reader = pageStore
	var invalidator composer.SnapshotInvalidator
	if cfg.Cache.PageSize > 0 {
		cached := pages.NewCachedStore(pageStore, cfg.Cache.PageSize, cfg.Cache.PageTTL, metrics)
		reader = cached
		invalidator = cached
	}

	// Guest rate limiter
	var redisClient *redis.Client
	var limiter guestLimiter
	if cfg.RateLimit.RedisURL != "" {
		redisClient, err = newRedisClient(cfg.RateLimit)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		limiter = middleware.NewDistributedRateLimiter(redisClient, cfg.RateLimit.Guest, cfg.RateLimit.KeyPrefix)
		logger.WithField("prefix", cfg.RateLimit.KeyPrefix).Info("Using distributed guest rate limiter")
	} else {
		local := middleware.NewRateLimiter(cfg.RateLimit.Guest, logger, middleware.WithMetrics(metrics))
		if err := local.Start(); err != nil {
			return fmt.Errorf("failed to start guest rate limiter: %w", err)
		}
		defer local.Stop()
		limiter = local
	}

	// Audit recorder
	recorderOpts := []audit.RecorderOption{
		audit.WithMetrics(metrics),
		audit.WithWriteTimeout(cfg.Audit.WriteTimeout),
	}
	if cfg.Audit.Async {
		recorderOpts = append(recorderOpts, audit.WithAsync(cfg.Audit.Workers, cfg.Audit.QueueSize))
	}
	recorder := audit.NewRecorder(auditStore, logger, recorderOpts...)

	pipeline := render.NewPipeline(render.Config{
		Pages:           reader,
		Decider:         access.NewDecider(logger, metrics),
		Filter:          access.NewFilter(access.NewEvaluator(logger, metrics)),
		Limiter:         limiter,
		Recorder:        recorder,
		Logger:          logger,
		Metrics:         metrics,
		ViewBumpTimeout: cfg.Render.ViewBumpTimeout,
	})

	// Bearer tokens
	var authenticator auth.Authenticator
	if cfg.Auth.Enabled {
		oidcAuth, err := auth.NewOIDCAuthenticator(ctx, cfg.Auth.OIDC)
		if err != nil {
			return fmt.Errorf("failed to initialize OIDC: %w", err)
		}
		authenticator = oidcAuth
	} else {
		logger.Warn("Authentication disabled, every request is anonymous")
	}

	proxies, err := httputil.ParseTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		return err
	}

	health := observability.NewHealthChecker(db, redisClient)
	health.SetVersion(version)

	server := api.NewServer(api.Deps{
		Pipeline:      pipeline,
		Composer:      composer.NewService(pageStore, pageStore, invalidator, recorder, logger),
		AuditStore:    auditStore,
		Authenticator: authenticator,
		Oracle:        oracle,
		Health:        health,
		Metrics:       metrics,
		Logger:        logger,
		MaxBodyBytes:  cfg.Server.MaxBodyBytes,

		TrustedProxies: proxies,
	})

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Scheduled retention
	scheduler := cron.New()
	if cfg.Audit.RetentionEnabled {
		_, err := scheduler.AddFunc(cfg.Audit.RetentionSchedule, func() {
			if err := runCleanup(context.Background(), retention, cfg.Audit.Retention, logger); err != nil {
				logger.WithError(err).Error("Scheduled audit retention failed")
			}
		})
		if err != nil {
			return fmt.Errorf("failed to schedule audit retention: %w", err)
		}
		scheduler.Start()
		logger.WithField("schedule", cfg.Audit.RetentionSchedule).Info("Audit retention scheduled")
	}

	// Overlay hot reload
	if cfg.OverlayPath != "" {
		watcher, err := config.WatchOverlay(cfg.OverlayPath, logger, func(o *config.Overlay) {
			if o.RateLimit.GuestLimit <= 0 {
				return
			}
			if err := limiter.SetLimit(o.RateLimit.GuestLimit); err != nil {
				logger.WithError(err).Warn("Rejected guest limit from overlay")
				return
			}
			logger.WithField("guest_limit", o.RateLimit.GuestLimit).Info("Guest rate limit updated")
		})
		if err != nil {
			return err
		}
		defer watcher.Close()
	}

	shutdown := observability.NewShutdownManager(logger, httpServer, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		select {
		case <-scheduler.Stop().Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		timeout := cfg.Server.ShutdownTimeout
		if deadline, ok := ctx.Deadline(); ok {
			timeout = time.Until(deadline)
		}
		return recorder.Close(timeout)
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, otelProviders, logger)
	})

	go func() {
		logger.WithFields(logrus.Fields{
			"addr":    httpServer.Addr,
			"version": version,
		}).Info("Starting portalgate")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("HTTP server failed")
		}
	}()

	return shutdown.WaitForShutdown()
}

func newRedisClient(cfg config.RateLimitConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	if cfg.RedisPassword != "" {
		opts.Password = cfg.RedisPassword
	}
	if cfg.RedisDB > 0 {
		opts.DB = cfg.RedisDB
	}
	return redis.NewClient(opts), nil
}

// newRetention builds the retention job, with an S3 archiver when the
// policy archives
func newRetention(ctx context.Context, cfg *config.Config, store audit.Store, logger logrus.FieldLogger) (*audit.Retention, error) {
	var archiver audit.Archiver
	if cfg.Audit.Retention.Archive && cfg.Audit.Archive.Bucket != "" {
		s3Archiver, err := audit.NewS3Archiver(ctx, cfg.Audit.Archive)
		if err != nil {
			return nil, fmt.Errorf("failed to create audit archiver: %w", err)
		}
		archiver = s3Archiver
	}
	return audit.NewRetention(store, archiver, logger), nil
}

func runCleanup(ctx context.Context, retention *audit.Retention, policy audit.RetentionPolicy, logger logrus.FieldLogger) error {
	start := time.Now()
	deleted, err := retention.Cleanup(ctx, policy)
	if err != nil {
		return fmt.Errorf("audit retention failed after deleting %d entries: %w", deleted, err)
	}
	logger.WithFields(logrus.Fields{
		"deleted":        deleted,
		"retention_days": policy.RetentionDays,
		"archived":       policy.Archive,
		"duration_ms":    time.Since(start).Milliseconds(),
	}).Info("Audit retention completed")
	return nil
}
