package observability

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Render metrics
	RenderOutcomesTotal *prometheus.CounterVec
	RenderDuration      prometheus.Histogram

	// Guest rate limiting
	GuestRateLimitedTotal prometheus.Counter
	GuestLimiterErrors    prometheus.Counter
	GuestWindowsActive    prometheus.Gauge

	// Permission resolution
	OracleFailuresTotal prometheus.Counter

	// Audit
	AuditWritesTotal *prometheus.CounterVec

	// Background page bookkeeping
	ViewBumpFailuresTotal prometheus.Counter

	// Caches
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "portal_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		RenderOutcomesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_render_outcomes_total",
				Help: "Page renders by outcome (allowed or a denial reason)",
			},
			[]string{"outcome"},
		),
		RenderDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "portal_render_duration_seconds",
				Help:    "Page render pipeline duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		GuestRateLimitedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "portal_guest_rate_limited_total",
				Help: "Anonymous requests rejected by the guest rate limiter",
			},
		),
		GuestLimiterErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "portal_guest_limiter_errors_total",
				Help: "Guest rate limiter backend errors (requests allowed)",
			},
		),
		GuestWindowsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "portal_guest_windows_active",
				Help: "Rate limit windows held in memory after the last sweep",
			},
		),
		OracleFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "portal_permission_oracle_failures_total",
				Help: "Permission lookups that failed and were treated as deny",
			},
		),
		AuditWritesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_audit_writes_total",
				Help: "Audit entry writes by status (written, failed, dropped)",
			},
			[]string{"status"},
		),
		ViewBumpFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "portal_view_bump_failures_total",
				Help: "View counter updates that failed",
			},
		),
		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_cache_hits_total",
				Help: "Cache hits by cache name",
			},
			[]string{"cache"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_cache_misses_total",
				Help: "Cache misses by cache name",
			},
			[]string{"cache"},
		),
		registry: registry,
	}

	if registry != nil {
		registry.MustRegister(
			m.HTTPRequestsTotal,
			m.HTTPRequestDuration,
			m.RenderOutcomesTotal,
			m.RenderDuration,
			m.GuestRateLimitedTotal,
			m.GuestLimiterErrors,
			m.GuestWindowsActive,
			m.OracleFailuresTotal,
			m.AuditWritesTotal,
			m.ViewBumpFailuresTotal,
			m.CacheHitsTotal,
			m.CacheMissesTotal,
		)
	}

	return m
}

// Handler returns the Prometheus scrape handler for the metrics registry
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveHTTP records a served request
func (m *Metrics) ObserveHTTP(method, route string, status int, seconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(seconds)
}

// ObserveRender records a render outcome and its duration in seconds
func (m *Metrics) ObserveRender(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.RenderOutcomesTotal.WithLabelValues(outcome).Inc()
	m.RenderDuration.Observe(seconds)
}

// IncGuestRateLimited counts a rejected guest request
func (m *Metrics) IncGuestRateLimited() {
	if m == nil {
		return
	}
	m.GuestRateLimitedTotal.Inc()
}

// IncGuestLimiterError counts a limiter backend error
func (m *Metrics) IncGuestLimiterError() {
	if m == nil {
		return
	}
	m.GuestLimiterErrors.Inc()
}

// SetGuestWindows records the number of live rate limit windows
func (m *Metrics) SetGuestWindows(n int) {
	if m == nil {
		return
	}
	m.GuestWindowsActive.Set(float64(n))
}

// IncOracleFailure counts a failed permission lookup
func (m *Metrics) IncOracleFailure() {
	if m == nil {
		return
	}
	m.OracleFailuresTotal.Inc()
}

// ObserveAuditWrite counts an audit write by status
func (m *Metrics) ObserveAuditWrite(status string) {
	if m == nil {
		return
	}
	m.AuditWritesTotal.WithLabelValues(status).Inc()
}

// IncViewBumpFailure counts a failed view counter update
func (m *Metrics) IncViewBumpFailure() {
	if m == nil {
		return
	}
	m.ViewBumpFailuresTotal.Inc()
}

// ObserveCache counts a cache hit or miss
func (m *Metrics) ObserveCache(cache string, hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHitsTotal.WithLabelValues(cache).Inc()
		return
	}
	m.CacheMissesTotal.WithLabelValues(cache).Inc()
}
