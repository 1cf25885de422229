// Package observability provides structured logging, Prometheus metrics,
// OpenTelemetry tracing, health checks and graceful shutdown.
//
// # Structured Logging
//
// Create logger:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("port", 8080).Info("Server started")
//
// Request-scoped logging:
//
//	ctx = observability.WithLogger(ctx, logger)
//	observability.FromContext(ctx).WithError(err).Warn("audit write failed")
//
// # Prometheus Metrics
//
//	metrics := observability.NewMetrics(prometheus.NewRegistry())
//	metrics.ObserveRender("allowed")
//	metrics.ObserveAuditWrite("dropped")
//
// Every Metrics method is safe to call on a nil *Metrics, so components can
// be built without metrics in tests.
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(db, redisClient)
//	status := checker.Check(ctx)
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, cfg, logger)
//	defer observability.ShutdownOTel(ctx, providers, logger)
//
// # Related Packages
//
//   - pkg/config: Observability configuration
//   - pkg/api: HTTP instrumentation
package observability
