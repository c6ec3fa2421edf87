package middleware

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/cartpulse/cartpulse/internal/config"
	"github.com/cartpulse/cartpulse/internal/metrics"
)

// RateLimitMiddleware implements token bucket rate limiting with separate
// buckets for the high-volume ingest endpoints and everything else.
type RateLimitMiddleware struct {
	cfg           config.RateLimitConfig
	logger        *zap.Logger
	metrics       *metrics.Metrics
	ingestLimiter *rate.Limiter
	mgmtLimiter   *rate.Limiter
}

func NewRateLimitMiddleware(cfg config.RateLimitConfig, m *metrics.Metrics, logger *zap.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		cfg:           cfg,
		logger:        logger,
		metrics:       m,
		ingestLimiter: rate.NewLimiter(rate.Limit(cfg.IngestRPS), cfg.IngestBurst),
		mgmtLimiter:   rate.NewLimiter(rate.Limit(cfg.MgmtRPS), cfg.MgmtBurst),
	}
}

// Handler wraps an http.Handler with rate limiting.
func (rl *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.cfg.Enabled {
			next.ServeHTTP(w, r)
			return
		}

		limiter := rl.mgmtLimiter
		endpoint := "mgmt"
		if rl.isIngestRequest(r.Method, r.URL.Path) {
			limiter = rl.ingestLimiter
			endpoint = "ingest"
		}

		if !limiter.Allow() {
			rl.metrics.RateLimitHits.WithLabelValues(endpoint).Inc()
			rl.logger.Warn("rate limit exceeded",
				zap.String("path", r.URL.Path),
				zap.String("remote_addr", r.RemoteAddr),
			)
			rl.tooManyRequests(w)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// isIngestRequest reports whether the request belongs in the high-volume
// ingest bucket. GET /purchases is the history read and stays in mgmt.
func (rl *RateLimitMiddleware) isIngestRequest(method, path string) bool {
	if method != http.MethodPost {
		return false
	}
	return strings.HasPrefix(path, "/events") || path == "/purchases"
}

func (rl *RateLimitMiddleware) tooManyRequests(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", "1")
	w.WriteHeader(http.StatusTooManyRequests)
	w.Write([]byte(`{"error":"RATE_LIMITED","message":"rate limit exceeded"}`))
}
