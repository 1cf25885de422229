package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/portalgate/pkg/audit"
	"github.com/platinummonkey/portalgate/pkg/auth"
	"github.com/platinummonkey/portalgate/pkg/httputil"
	"github.com/platinummonkey/portalgate/pkg/middleware"
	"github.com/platinummonkey/portalgate/pkg/observability"
	"github.com/platinummonkey/portalgate/pkg/rbac"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// Auth configuration
	Auth AuthConfig

	// Guest rate limiting
	RateLimit RateLimitConfig

	// Permission and page snapshot caches
	Cache CacheConfig

	// Audit recorder and retention
	Audit AuditConfig

	// Render pipeline
	Render RenderConfig

	// Observability configuration
	Observability ObservabilityConfig

	// OverlayPath is an optional YAML file applied on top of the
	// environment and watched for guest limit changes
	OverlayPath string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64

	// TrustedProxies lists the CIDRs or addresses of load balancers whose
	// forwarding headers identify the client
	TrustedProxies []string
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// AuthConfig holds bearer token verification settings
type AuthConfig struct {
	// Enabled turns on OIDC verification. When disabled every request is
	// anonymous.
	Enabled bool
	OIDC    auth.OIDCConfig
}

// RateLimitConfig holds guest rate limiting settings
type RateLimitConfig struct {
	Guest middleware.RateLimitConfig

	// RedisURL switches to the distributed limiter when set
	RedisURL      string
	RedisPassword string
	RedisDB       int
	KeyPrefix     string
}

// CacheConfig sizes the in-process caches. A zero size disables the cache.
type CacheConfig struct {
	PermissionSize          int
	PermissionTTL           time.Duration
	// PermissionLookupTimeout bounds one shared upstream permission lookup
	PermissionLookupTimeout time.Duration
	PageSize                int
	PageTTL                 time.Duration
}

// AuditConfig holds audit recorder and retention settings
type AuditConfig struct {
	Async        bool
	Workers      int
	QueueSize    int
	WriteTimeout time.Duration

	Retention         audit.RetentionPolicy
	RetentionEnabled  bool
	RetentionSchedule string
	Archive           audit.S3ArchiveConfig
}

// RenderConfig holds render pipeline settings
type RenderConfig struct {
	ViewBumpTimeout time.Duration
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTel observability.OTelConfig
}

// LoadConfig loads configuration from environment variables and, when
// PORTAL_CONFIG_FILE is set, the YAML overlay it names
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Auth:          loadAuthConfig(),
		RateLimit:     loadRateLimitConfig(),
		Cache:         loadCacheConfig(),
		Audit:         loadAuditConfig(),
		Render:        loadRenderConfig(),
		Observability: loadObservabilityConfig(),
		OverlayPath:   getEnv("PORTAL_CONFIG_FILE", ""),
	}

	if cfg.OverlayPath != "" {
		overlay, err := LoadOverlay(cfg.OverlayPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config overlay: %w", err)
		}
		overlay.Apply(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("PORTAL_HOST", "0.0.0.0"),
		Port:            getEnv("PORTAL_PORT", "8080"),
		ReadTimeout:     getEnvDuration("PORTAL_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("PORTAL_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("PORTAL_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("PORTAL_SHUTDOWN_TIMEOUT", 30*time.Second),
		MaxBodyBytes:    getEnvInt64("PORTAL_MAX_BODY_BYTES", 1<<20),
		TrustedProxies:  getEnvList("PORTAL_TRUSTED_PROXIES"),
	}
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		URL:             getEnv("PORTAL_DATABASE_URL", ""),
		MaxOpenConns:    getEnvInt("PORTAL_DATABASE_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvInt("PORTAL_DATABASE_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvDuration("PORTAL_DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
	}
}

func loadAuthConfig() AuthConfig {
	return AuthConfig{
		Enabled: getEnvBool("PORTAL_AUTH_ENABLED", true),
		OIDC: auth.OIDCConfig{
			IssuerURL:       getEnv("PORTAL_OIDC_ISSUER_URL", ""),
			ClientID:        getEnv("PORTAL_OIDC_CLIENT_ID", ""),
			SkipIssuerCheck: getEnvBool("PORTAL_OIDC_SKIP_ISSUER_CHECK", false),
		},
	}
}

func loadRateLimitConfig() RateLimitConfig {
	guest := middleware.DefaultRateLimitConfig()
	guest.Limit = getEnvInt("PORTAL_GUEST_RATE_LIMIT", guest.Limit)
	guest.Window = getEnvDuration("PORTAL_GUEST_RATE_WINDOW", guest.Window)
	guest.SweepInterval = getEnvDuration("PORTAL_GUEST_RATE_SWEEP_INTERVAL", guest.SweepInterval)

	return RateLimitConfig{
		Guest:         guest,
		RedisURL:      getEnv("PORTAL_REDIS_URL", ""),
		RedisPassword: getEnv("PORTAL_REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("PORTAL_REDIS_DB", 0),
		KeyPrefix:     getEnv("PORTAL_REDIS_KEY_PREFIX", "portal:guest"),
	}
}

func loadCacheConfig() CacheConfig {
	return CacheConfig{
		PermissionSize:          getEnvInt("PORTAL_PERMISSION_CACHE_SIZE", 10000),
		PermissionTTL:           getEnvDuration("PORTAL_PERMISSION_CACHE_TTL", 30*time.Second),
		PermissionLookupTimeout: getEnvDuration("PORTAL_PERMISSION_LOOKUP_TIMEOUT", rbac.DefaultLookupTimeout),
		PageSize:                getEnvInt("PORTAL_PAGE_CACHE_SIZE", 1000),
		PageTTL:                 getEnvDuration("PORTAL_PAGE_CACHE_TTL", time.Minute),
	}
}

func loadAuditConfig() AuditConfig {
	retention := audit.DefaultRetentionPolicy()
	retention.RetentionDays = getEnvInt("PORTAL_AUDIT_RETENTION_DAYS", retention.RetentionDays)
	retention.Archive = getEnvBool("PORTAL_AUDIT_ARCHIVE", retention.Archive)

	return AuditConfig{
		Async:             getEnvBool("PORTAL_AUDIT_ASYNC", true),
		Workers:           getEnvInt("PORTAL_AUDIT_WORKERS", 4),
		QueueSize:         getEnvInt("PORTAL_AUDIT_QUEUE_SIZE", 1000),
		WriteTimeout:      getEnvDuration("PORTAL_AUDIT_WRITE_TIMEOUT", audit.DefaultWriteTimeout),
		Retention:         retention,
		RetentionEnabled:  getEnvBool("PORTAL_AUDIT_RETENTION_ENABLED", false),
		RetentionSchedule: getEnv("PORTAL_AUDIT_RETENTION_SCHEDULE", "30 3 * * *"),
		Archive: audit.S3ArchiveConfig{
			Bucket:       getEnv("PORTAL_AUDIT_ARCHIVE_BUCKET", ""),
			Prefix:       getEnv("PORTAL_AUDIT_ARCHIVE_PREFIX", ""),
			Region:       getEnv("PORTAL_AUDIT_ARCHIVE_REGION", "us-east-1"),
			Endpoint:     getEnv("PORTAL_AUDIT_ARCHIVE_ENDPOINT", ""),
			AccessKey:    getEnv("PORTAL_AUDIT_ARCHIVE_ACCESS_KEY", ""),
			SecretKey:    getEnv("PORTAL_AUDIT_ARCHIVE_SECRET_KEY", ""),
			UsePathStyle: getEnvBool("PORTAL_AUDIT_ARCHIVE_USE_PATH_STYLE", false),
		},
	}
}

func loadRenderConfig() RenderConfig {
	return RenderConfig{
		ViewBumpTimeout: getEnvDuration("PORTAL_VIEW_BUMP_TIMEOUT", 2*time.Second),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:       parseLogLevel(getEnv("PORTAL_LOG_LEVEL", "info")),
		MetricsEnabled: getEnvBool("PORTAL_METRICS_ENABLED", true),
		OTel: observability.OTelConfig{
			Enabled:        getEnvBool("PORTAL_OTEL_ENABLED", false),
			Endpoint:       getEnv("PORTAL_OTEL_ENDPOINT", "localhost:4317"),
			ServiceName:    getEnv("PORTAL_OTEL_SERVICE_NAME", "portalgate"),
			ServiceVersion: getEnv("PORTAL_OTEL_SERVICE_VERSION", "1.0.0"),
			Insecure:       getEnvBool("PORTAL_OTEL_INSECURE", true),
			SampleRatio:    getEnvFloat("PORTAL_OTEL_SAMPLE_RATIO", 0),
		},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Database.URL == "" {
		return fmt.Errorf("database URL is required")
	}
	if _, err := httputil.ParseTrustedProxies(c.Server.TrustedProxies); err != nil {
		return err
	}

	if c.Auth.Enabled {
		if err := c.Auth.OIDC.Validate(); err != nil {
			return fmt.Errorf("oidc: %w", err)
		}
	}

	if err := c.RateLimit.Guest.Validate(); err != nil {
		return err
	}

	if c.Audit.Async {
		if c.Audit.Workers < 1 {
			return fmt.Errorf("audit workers must be at least 1, got %d", c.Audit.Workers)
		}
		if c.Audit.QueueSize < 1 {
			return fmt.Errorf("audit queue size must be at least 1, got %d", c.Audit.QueueSize)
		}
	}
	if c.Audit.WriteTimeout <= 0 {
		return fmt.Errorf("audit write timeout must be positive")
	}

	if c.Audit.RetentionEnabled {
		if c.Audit.Retention.RetentionDays <= 0 {
			return fmt.Errorf("audit retention days must be positive, got %d", c.Audit.Retention.RetentionDays)
		}
		if _, err := cron.ParseStandard(c.Audit.RetentionSchedule); err != nil {
			return fmt.Errorf("invalid audit retention schedule %q: %w", c.Audit.RetentionSchedule, err)
		}
		if c.Audit.Retention.Archive && c.Audit.Archive.Bucket == "" {
			return fmt.Errorf("audit archive bucket is required when archiving is enabled")
		}
	}

	// Validate OpenTelemetry config
	if c.Observability.OTel.Enabled {
		if c.Observability.OTel.Endpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTel.ServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// Addr returns the HTTP listen address
func (c ServerConfig) Addr() string {
	return c.Host + ":" + c.Port
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
// getEnvList splits a comma separated variable, dropping empty items
func getEnvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float64 environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
