// Package contextkeys provides centralized context key definitions
//
// All context keys used across the service are defined here so that key
// usage is discoverable and typos cannot create parallel keys.
//
//	ctx = contextkeys.WithPrincipal(ctx, principal)
//	principal := contextkeys.GetPrincipal(ctx) // nil when anonymous
package contextkeys

import (
	"context"
	"time"

	"github.com/platinummonkey/portalgate/pkg/portal"
)

// Key is the type for context keys to prevent collisions
type Key string

const (
	// PrincipalKey contains *portal.Principal
	// Set by: middleware.Authenticate (pkg/middleware/auth.go)
	// Absent for anonymous requests
	PrincipalKey Key = "principal"

	// RequestIDKey contains request ID string (UUID)
	// Set by: api request ID middleware
	// Used by: Logger, audit metadata
	RequestIDKey Key = "request_id"

	// LoggerKey contains logrus.FieldLogger
	// Set by: api logging middleware
	LoggerKey Key = "logger"

	// ClientIPKey contains the resolved client IP string
	// Set by: api client IP middleware
	// Used by: guest rate limiting, audit metadata
	ClientIPKey Key = "client_ip"

	// UserAgentKey contains the request User-Agent string
	// Set by: api client IP middleware
	// Used by: audit metadata
	UserAgentKey Key = "user_agent"

	// RequestStartTimeKey contains the request start time.Time
	// Used by: audit duration metadata
	RequestStartTimeKey Key = "request_start_time"
)

// WithPrincipal adds the authenticated principal to the context
func WithPrincipal(ctx context.Context, principal *portal.Principal) context.Context {
	return context.WithValue(ctx, PrincipalKey, principal)
}

// GetPrincipal returns the principal or nil for anonymous requests
func GetPrincipal(ctx context.Context) *portal.Principal {
	principal, _ := ctx.Value(PrincipalKey).(*portal.Principal)
	return principal
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithLogger adds logger to the context
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// WithClientIP adds the resolved client IP to the context
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ClientIPKey, ip)
}

// GetClientIP retrieves the client IP from context
func GetClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(ClientIPKey).(string); ok {
		return ip
	}
	return ""
}

// WithUserAgent adds the request User-Agent to the context
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return context.WithValue(ctx, UserAgentKey, userAgent)
}

// GetUserAgent retrieves the User-Agent from context
func GetUserAgent(ctx context.Context) string {
	if ua, ok := ctx.Value(UserAgentKey).(string); ok {
		return ua
	}
	return ""
}

// WithRequestStartTime adds request start time to the context
func WithRequestStartTime(ctx context.Context, start time.Time) context.Context {
	return context.WithValue(ctx, RequestStartTimeKey, start)
}

// GetRequestStartTime retrieves the request start time, if set
func GetRequestStartTime(ctx context.Context) (time.Time, bool) {
	start, ok := ctx.Value(RequestStartTimeKey).(time.Time)
	return start, ok
}
