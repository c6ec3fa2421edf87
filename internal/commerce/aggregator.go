package commerce

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/cartpulse/cartpulse/internal/cache"
	"github.com/cartpulse/cartpulse/internal/metrics"
	"github.com/cartpulse/cartpulse/internal/models"
	"github.com/cartpulse/cartpulse/internal/storage"
)

// Aggregator recomputes the daily stats tables and invalidates the
// derived analytics cache afterwards.
type Aggregator struct {
	stats   storage.StatsRepo
	cache   cache.Cache
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewAggregator(stats storage.StatsRepo, c cache.Cache, m *metrics.Metrics, logger *zap.Logger) *Aggregator {
	return &Aggregator{stats: stats, cache: c, metrics: m, logger: logger}
}

// RunToday recomputes today's stats. trigger names what scheduled the run
// for the metrics.
func (a *Aggregator) RunToday(ctx context.Context, trigger string) error {
	return a.Run(ctx, models.Today(), trigger)
}

// Run recomputes one day's stats from the raw tables and then drops every
// cached analytics result. The recompute is a pure function of the raw
// rows; running it twice for the same day leaves identical state.
// Invalidation is best-effort: cached results expire by TTL anyway, so an
// invalidation failure only delays freshness, never correctness.
func (a *Aggregator) Run(ctx context.Context, day, trigger string) error {
	start := time.Now()
	if err := a.stats.RecomputeDay(ctx, day); err != nil {
		a.metrics.RollupFailures.Inc()
		return err
	}

	a.metrics.RecordRollup(trigger, time.Since(start))

	var invalidated int64
	for _, pattern := range cache.AnalyticsPatterns() {
		n, err := a.cache.DeleteMatching(ctx, pattern)
		invalidated += n
		if err != nil {
			a.logger.Warn("Cache invalidation failed",
				zap.String("pattern", pattern),
				zap.Error(err))
		}
	}
	if invalidated > 0 {
		a.metrics.CacheInvalidated.Add(float64(invalidated))
	}

	a.logger.Debug("Rollup complete",
		zap.String("day", day),
		zap.String("trigger", trigger),
		zap.Int64("cache_keys_invalidated", invalidated),
		zap.Duration("duration", time.Since(start)))
	return nil
}
