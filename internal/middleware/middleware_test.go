package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/cartpulse/cartpulse/internal/config"
	"github.com/cartpulse/cartpulse/internal/metrics"
)

// Prometheus collectors register globally, so the package shares one
// metrics instance across all tests.
var testMetrics = metrics.NewMetrics("cartpulse_middleware_test")

func TestRouteLabel(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/health", "/health"},
		{"/events", "/events"},
		{"/events/bulk", "/events/bulk"},
		{"/products", "/products"},
		{"/products/categories", "/products/categories"},
		{"/products/b7f9d2a0", "/products/:id"},
		{"/analytics/products/top", "/analytics/products/top"},
		{"/analytics/products/stats", "/analytics/products/stats"},
		{"/analytics/products/b7f9d2a0/timeseries", "/analytics/products/:id/timeseries"},
		{"/analytics/overview", "/analytics/overview"},
	}
	for _, tt := range tests {
		if got := routeLabel(tt.path); got != tt.want {
			t.Errorf("routeLabel(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestLoggingMiddlewareRecordsRequestMetrics(t *testing.T) {
	lm := NewLoggingMiddleware(zap.NewNop(), testMetrics)
	handler := lm.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/products/b7f9d2a0", nil))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/products/e4c81f55", nil))

	got := testutil.ToFloat64(testMetrics.HTTPRequests.WithLabelValues("/products/:id", http.MethodPost, "201"))
	if got != 2 {
		t.Errorf("request counter = %v, want 2", got)
	}
}

func TestIsIngestRequest(t *testing.T) {
	rl := NewRateLimitMiddleware(config.RateLimitConfig{}, testMetrics, zap.NewNop())

	tests := []struct {
		method string
		path   string
		want   bool
	}{
		{http.MethodPost, "/events", true},
		{http.MethodPost, "/events/bulk", true},
		{http.MethodPost, "/events/link-session", true},
		{http.MethodPost, "/purchases", true},
		{http.MethodGet, "/purchases", false},
		{http.MethodGet, "/events", false},
		{http.MethodGet, "/analytics/overview", false},
		{http.MethodPost, "/products", false},
	}
	for _, tt := range tests {
		if got := rl.isIngestRequest(tt.method, tt.path); got != tt.want {
			t.Errorf("isIngestRequest(%s %s) = %v, want %v", tt.method, tt.path, got, tt.want)
		}
	}
}

func TestRateLimitKeepsHistoryReadsInMgmtBucket(t *testing.T) {
	cfg := config.RateLimitConfig{
		Enabled:     true,
		IngestRPS:   1000,
		IngestBurst: 1000,
		MgmtRPS:     0,
		MgmtBurst:   1,
	}
	rl := NewRateLimitMiddleware(cfg, testMetrics, zap.NewNop())
	handler := rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(method, path string) int {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
		return rec.Code
	}

	// Ingest traffic must not drain the management bucket.
	for i := 0; i < 5; i++ {
		if code := do(http.MethodPost, "/events"); code != http.StatusOK {
			t.Fatalf("POST /events = %d, want 200", code)
		}
	}

	if code := do(http.MethodGet, "/purchases"); code != http.StatusOK {
		t.Fatalf("GET /purchases = %d, want 200", code)
	}
	if code := do(http.MethodGet, "/purchases"); code != http.StatusTooManyRequests {
		t.Fatalf("second GET /purchases = %d, want 429", code)
	}

	// The purchase write still flows through the ingest bucket.
	if code := do(http.MethodPost, "/purchases"); code != http.StatusOK {
		t.Fatalf("POST /purchases = %d, want 200", code)
	}
}

func TestNewLogger(t *testing.T) {
	cfg := &config.Config{
		Server: config.ServerConfig{Env: "development"},
		Log:    config.LogConfig{Level: "debug", Format: "console"},
	}
	logger, err := NewLogger(cfg)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	if !logger.Core().Enabled(zap.DebugLevel) {
		t.Error("debug level was not applied")
	}
}
