package observability

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	if metrics == nil {
		t.Fatal("NewMetrics returned nil")
	}

	metrics.ObserveRender("allowed", 0.01)
	metrics.ObserveRender("not_found", 0.02)
	metrics.ObserveRender("allowed", 0.03)

	if got := testutil.ToFloat64(metrics.RenderOutcomesTotal.WithLabelValues("allowed")); got != 2 {
		t.Errorf("allowed renders = %v, want 2", got)
	}
	if got := testutil.ToFloat64(metrics.RenderOutcomesTotal.WithLabelValues("not_found")); got != 1 {
		t.Errorf("not_found renders = %v, want 1", got)
	}
}

func TestMetrics_Counters(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())

	metrics.IncGuestRateLimited()
	metrics.IncGuestRateLimited()
	metrics.IncGuestLimiterError()
	metrics.IncOracleFailure()
	metrics.IncViewBumpFailure()
	metrics.ObserveAuditWrite("written")
	metrics.ObserveAuditWrite("dropped")
	metrics.ObserveCache("permissions", true)
	metrics.ObserveCache("permissions", false)
	metrics.ObserveCache("permissions", false)
	metrics.SetGuestWindows(7)

	tests := []struct {
		name string
		c    prometheus.Collector
		want float64
	}{
		{"guest rate limited", metrics.GuestRateLimitedTotal, 2},
		{"limiter errors", metrics.GuestLimiterErrors, 1},
		{"oracle failures", metrics.OracleFailuresTotal, 1},
		{"view bump failures", metrics.ViewBumpFailuresTotal, 1},
		{"audit written", metrics.AuditWritesTotal.WithLabelValues("written"), 1},
		{"audit dropped", metrics.AuditWritesTotal.WithLabelValues("dropped"), 1},
		{"cache hits", metrics.CacheHitsTotal.WithLabelValues("permissions"), 1},
		{"cache misses", metrics.CacheMissesTotal.WithLabelValues("permissions"), 2},
		{"guest windows", metrics.GuestWindowsActive, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := testutil.ToFloat64(tt.c); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var metrics *Metrics

	// None of these may panic
	metrics.ObserveHTTP("GET", "/", 200, 0.1)
	metrics.ObserveRender("allowed", 0.1)
	metrics.IncGuestRateLimited()
	metrics.IncGuestLimiterError()
	metrics.SetGuestWindows(1)
	metrics.IncOracleFailure()
	metrics.ObserveAuditWrite("failed")
	metrics.IncViewBumpFailure()
	metrics.ObserveCache("pages", true)

	if metrics.Handler() == nil {
		t.Error("expected default handler for nil metrics")
	}
}

func TestMetrics_Handler(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	metrics.ObserveHTTP("GET", "/api/v1/orgs/{orgID}/pages/{slug}", 200, 0.05)

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rr.Body)
	if !strings.Contains(string(body), "portal_http_requests_total") {
		t.Errorf("expected portal_http_requests_total in scrape output")
	}
	if !strings.Contains(string(body), `status="200"`) {
		t.Errorf("expected status label in scrape output")
	}
}
