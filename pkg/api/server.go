package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/portalgate/pkg/audit"
	"github.com/platinummonkey/portalgate/pkg/auth"
	"github.com/platinummonkey/portalgate/pkg/composer"
	"github.com/platinummonkey/portalgate/pkg/contextkeys"
	"github.com/platinummonkey/portalgate/pkg/httputil"
	"github.com/platinummonkey/portalgate/pkg/middleware"
	"github.com/platinummonkey/portalgate/pkg/observability"
	"github.com/platinummonkey/portalgate/pkg/rbac"
	"github.com/platinummonkey/portalgate/pkg/render"
)

// APIPrefix is the path prefix of every portal API route
const APIPrefix = "/api/v1"

// Deps are the components the server routes to. Authenticator, Health and
// Metrics may be nil.
type Deps struct {
	Pipeline   *render.Pipeline
	Composer   *composer.Service
	AuditStore audit.Store

	// Authenticator verifies bearer tokens. When nil every request is
	// anonymous.
	Authenticator auth.Authenticator
	Oracle        rbac.Oracle

	Health  *observability.HealthChecker
	Metrics *observability.Metrics
	Logger  logrus.FieldLogger

	// MaxBodyBytes caps request bodies; 0 means 1 MiB
	MaxBodyBytes int64

	// TrustedProxies are the peers whose X-Forwarded-For and X-Real-IP
	// headers identify the client. Empty means RemoteAddr only.
	TrustedProxies httputil.TrustedProxies
}

// Server represents our API server
type Server struct {
	deps    Deps
	logger  logrus.FieldLogger
	router  *mux.Router
	handler http.Handler
}

// NewServer creates a new API server
func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = logrus.StandardLogger()
	}
	if deps.MaxBodyBytes <= 0 {
		deps.MaxBodyBytes = 1 << 20
	}

	s := &Server{
		deps:   deps,
		logger: deps.Logger.WithField("component", "api"),
		router: mux.NewRouter(),
	}
	s.setupRoutes()

	s.handler = otelhttp.NewHandler(
		httputil.Chain(
			httputil.RecoveryMiddleware(s.logger),
			httputil.RequestIDMiddleware,
			httputil.ClientIPMiddleware(deps.TrustedProxies),
			httputil.LoggingMiddleware(s.logger),
			httputil.MaxBytesMiddleware(deps.MaxBodyBytes),
		)(s.router),
		"portalgate",
	)
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	s.router.Use(s.metricsMiddleware)

	// Health and scrape endpoints
	if s.deps.Health != nil {
		s.router.HandleFunc("/healthz", s.deps.Health.Liveness).Methods("GET")
		s.router.HandleFunc("/readyz", s.deps.Health.Readiness).Methods("GET")
	}
	s.router.Handle("/metrics", s.deps.Metrics.Handler()).Methods("GET")

	api := s.router.PathPrefix(APIPrefix).Subrouter()
	if s.deps.Authenticator != nil {
		api.Use(middleware.Authenticate(s.deps.Authenticator, s.deps.Oracle, s.logger))
	}

	// Audit queries need the audit read permission
	if s.deps.AuditStore != nil {
		auditRoutes := api.NewRoute().Subrouter()
		auditRoutes.Use(middleware.RequirePermission(s.logger, rbac.PermissionAuditRead))
		audit.NewHandlers(s.deps.AuditStore, s.logger).RegisterRoutes(auditRoutes)
	}

	// Page render and guest submission
	if s.deps.Pipeline != nil {
		NewPageHandlers(s.deps.Pipeline, s.logger).RegisterRoutes(api)
	}

	// Composer mutations
	if s.deps.Composer != nil {
		NewComposerHandlers(s.deps.Composer, s.logger).RegisterRoutes(api)
	}
}

// metricsMiddleware records request counts and latency by route template
func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &httputil.StatusRecorder{ResponseWriter: w, Status: http.StatusOK}
		next.ServeHTTP(rw, r)

		route := "unmatched"
		if current := mux.CurrentRoute(r); current != nil {
			if tmpl, err := current.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		s.deps.Metrics.ObserveHTTP(r.Method, route, rw.Status, time.Since(start).Seconds())
	})
}

// requestLogger returns the request-scoped logger with trace IDs attached
func requestLogger(r *http.Request, fallback logrus.FieldLogger) logrus.FieldLogger {
	logger, ok := r.Context().Value(contextkeys.LoggerKey).(logrus.FieldLogger)
	if !ok {
		logger = fallback
	}
	return observability.WithTraceContext(r.Context(), logger)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Router returns the underlying router, for registering extra routes
func (s *Server) Router() *mux.Router {
	return s.router
}
