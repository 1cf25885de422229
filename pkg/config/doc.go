// Package config loads portalgate configuration from environment variables.
//
// # Overview
//
// Every setting has a default; LoadConfig reads the PORTAL_* environment,
// layers the optional YAML overlay named by PORTAL_CONFIG_FILE on top and
// validates the result.
//
// # Configuration Structure
//
// Server settings:
//
//	PORTAL_HOST="0.0.0.0"
//	PORTAL_PORT="8080"
//	PORTAL_READ_TIMEOUT="15s"
//	PORTAL_WRITE_TIMEOUT="15s"
//	PORTAL_MAX_BODY_BYTES="1048576"
//
// Database and auth:
//
//	PORTAL_DATABASE_URL="postgres://localhost/portal?sslmode=disable"
//	PORTAL_AUTH_ENABLED="true"
//	PORTAL_OIDC_ISSUER_URL="https://id.example.com"
//	PORTAL_OIDC_CLIENT_ID="portal"
//
// Guest rate limiting:
//
//	PORTAL_GUEST_RATE_LIMIT="10"
//	PORTAL_GUEST_RATE_WINDOW="60s"
//	PORTAL_REDIS_URL="redis://localhost:6379/0"  # shared limiter across replicas
//
// Audit:
//
//	PORTAL_AUDIT_ASYNC="true"
//	PORTAL_AUDIT_QUEUE_SIZE="1000"
//	PORTAL_AUDIT_RETENTION_ENABLED="true"
//	PORTAL_AUDIT_RETENTION_DAYS="365"
//	PORTAL_AUDIT_RETENTION_SCHEDULE="30 3 * * *"
//	PORTAL_AUDIT_ARCHIVE_BUCKET="portal-audit"
//
// Observability:
//
//	PORTAL_LOG_LEVEL="info"
//	PORTAL_OTEL_ENABLED="false"
//	PORTAL_OTEL_ENDPOINT="localhost:4317"
//
// # Overlay
//
// The overlay file is YAML:
//
//	rate_limit:
//	  guest_limit: 20
//	audit:
//	  retention_days: 90
//
// WatchOverlay reloads it on change so the guest limit can be adjusted on a
// running process:
//
//	w, err := config.WatchOverlay(cfg.OverlayPath, logger, func(o *config.Overlay) {
//		if o.RateLimit.GuestLimit > 0 {
//			_ = limiter.SetLimit(o.RateLimit.GuestLimit)
//		}
//	})
//	defer w.Close()
package config
