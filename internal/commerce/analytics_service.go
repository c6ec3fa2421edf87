package commerce

import (
	"context"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/cartpulse/cartpulse/internal/apperr"
	"github.com/cartpulse/cartpulse/internal/cache"
	"github.com/cartpulse/cartpulse/internal/config"
	"github.com/cartpulse/cartpulse/internal/metrics"
	"github.com/cartpulse/cartpulse/internal/models"
	"github.com/cartpulse/cartpulse/internal/storage"
)

const (
	// DefaultWindowDays is the window applied when the caller omits days.
	DefaultWindowDays = 7
	// MaxWindowDays caps how far back the aggregate reads (top products,
	// product stats, overview, overall timeseries) reach.
	MaxWindowDays = 90
	// DefaultHistoryDays and MaxHistoryDays bound the single-subject
	// reads (product timeseries, user summary), which may reach a full
	// year back.
	DefaultHistoryDays = 30
	MaxHistoryDays     = 365
)

// ProductStatsPage is one page of the paginated per-product stats.
type ProductStatsPage struct {
	Total int64               `json:"total"`
	Page  int                 `json:"page"`
	Limit int                 `json:"limit"`
	Items []*models.TopProduct `json:"items"`
}

// AnalyticsService serves aggregate queries from the daily stats tables
// through a read-through cache. Every read is cache-aside: check the
// cache, fall through to the store on a miss, then populate the cache.
type AnalyticsService struct {
	stats    storage.StatsRepo
	products storage.ProductRepo
	cache    cache.Cache
	ttl      config.CacheConfig
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

func NewAnalyticsService(stats storage.StatsRepo, products storage.ProductRepo, c cache.Cache, ttl config.CacheConfig, m *metrics.Metrics, logger *zap.Logger) *AnalyticsService {
	return &AnalyticsService{stats: stats, products: products, cache: c, ttl: ttl, metrics: m, logger: logger}
}

// TopProducts returns products ranked by the chosen counter over the
// window.
func (s *AnalyticsService) TopProducts(ctx context.Context, days, limit int, sortBy string) ([]*models.TopProduct, error) {
	days = clampDays(days, DefaultWindowDays, MaxWindowDays)
	if limit < 1 {
		limit = 10
	}
	if limit > 50 {
		limit = 50
	}
	column := storage.ParseSortColumn(sortBy)

	key := cache.TopProductsKey(days, limit, string(column))
	var cached []*models.TopProduct
	hit, _ := s.cache.GetJSON(ctx, key, &cached)
	s.metrics.RecordCacheRead("top_products", hit)
	if hit {
		return cached, nil
	}

	items, err := s.stats.TopProducts(ctx, days, limit, column)
	if err != nil {
		return nil, apperr.Internal("failed to query top products").WithCause(err)
	}
	if items == nil {
		items = []*models.TopProduct{}
	}

	s.store(ctx, key, items, s.ttl.TopProductsTTL)
	return items, nil
}

// ProductStats returns a paginated, sortable, searchable view of
// per-product counters over the window.
func (s *AnalyticsService) ProductStats(ctx context.Context, days, page, limit int, sortBy, sortDir, search string) (*ProductStatsPage, error) {
	days = clampDays(days, DefaultWindowDays, MaxWindowDays)
	page, limit = clampPage(page, limit, 100)
	column := storage.ParseSortColumn(sortBy)
	if sortDir != "asc" {
		sortDir = "desc"
	}

	key := cache.ProductStatsKey(days, page, limit, string(column), sortDir, search)
	var cached ProductStatsPage
	hit, _ := s.cache.GetJSON(ctx, key, &cached)
	s.metrics.RecordCacheRead("product_stats", hit)
	if hit {
		return &cached, nil
	}

	total, items, err := s.stats.ProductStats(ctx, storage.ProductStatsOptions{
		Days:    days,
		SortBy:  column,
		SortDir: sortDir,
		Limit:   limit,
		Offset:  (page - 1) * limit,
		Search:  search,
	})
	if err != nil {
		return nil, apperr.Internal("failed to query product stats").WithCause(err)
	}
	if items == nil {
		items = []*models.TopProduct{}
	}

	result := &ProductStatsPage{Total: total, Page: page, Limit: limit, Items: items}
	s.store(ctx, key, result, s.ttl.ProductStatsTTL)
	return result, nil
}

// Overview returns window totals plus percent deltas against the
// preceding window of equal length.
func (s *AnalyticsService) Overview(ctx context.Context, days int) (*models.Overview, error) {
	days = clampDays(days, DefaultWindowDays, MaxWindowDays)

	key := cache.OverviewKey(days)
	var cached models.Overview
	hit, _ := s.cache.GetJSON(ctx, key, &cached)
	s.metrics.RecordCacheRead("overview", hit)
	if hit {
		return &cached, nil
	}

	current, err := s.stats.Overview(ctx, days)
	if err != nil {
		return nil, apperr.Internal("failed to query overview").WithCause(err)
	}
	previous, err := s.stats.OverviewPrevious(ctx, days)
	if err != nil {
		return nil, apperr.Internal("failed to query overview").WithCause(err)
	}

	result := &models.Overview{
		Days:   days,
		Totals: *current,
		Deltas: models.OverviewDeltas{
			Views:          pctChange(previous.Views, current.Views),
			Clicks:         pctChange(previous.Clicks, current.Clicks),
			AddToCarts:     pctChange(previous.AddToCarts, current.AddToCarts),
			CheckoutStarts: pctChange(previous.CheckoutStarts, current.CheckoutStarts),
			Purchases:      pctChange(previous.Purchases, current.Purchases),
			Revenue:        pctChangeDecimal(previous.Revenue, current.Revenue),
		},
	}

	s.store(ctx, key, result, s.ttl.OverviewTTL)
	return result, nil
}

// OverallTimeseries returns one point per day summed across all products.
func (s *AnalyticsService) OverallTimeseries(ctx context.Context, days int) ([]*models.TimeseriesPoint, error) {
	days = clampDays(days, DefaultWindowDays, MaxWindowDays)

	key := cache.OverallTimeseriesKey(days)
	var cached []*models.TimeseriesPoint
	hit, _ := s.cache.GetJSON(ctx, key, &cached)
	s.metrics.RecordCacheRead("overall_ts", hit)
	if hit {
		return cached, nil
	}

	points, err := s.stats.OverallTimeseries(ctx, days)
	if err != nil {
		return nil, apperr.Internal("failed to query timeseries").WithCause(err)
	}
	if points == nil {
		points = []*models.TimeseriesPoint{}
	}

	s.store(ctx, key, points, s.ttl.TimeseriesTTL)
	return points, nil
}

// ProductTimeseries returns one point per day for a single product.
func (s *AnalyticsService) ProductTimeseries(ctx context.Context, productID string, days int) ([]*models.TimeseriesPoint, error) {
	days = clampDays(days, DefaultHistoryDays, MaxHistoryDays)

	product, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return nil, apperr.Internal("failed to load product").WithCause(err)
	}
	if product == nil {
		return nil, apperr.NotFound("product %s not found", productID)
	}

	key := cache.ProductTimeseriesKey(productID, days)
	var cached []*models.TimeseriesPoint
	hit, _ := s.cache.GetJSON(ctx, key, &cached)
	s.metrics.RecordCacheRead("product_ts", hit)
	if hit {
		return cached, nil
	}

	points, err := s.stats.ProductTimeseries(ctx, productID, days)
	if err != nil {
		return nil, apperr.Internal("failed to query timeseries").WithCause(err)
	}
	if points == nil {
		points = []*models.TimeseriesPoint{}
	}

	s.store(ctx, key, points, s.ttl.TimeseriesTTL)
	return points, nil
}

// UserSummary returns a user's aggregate activity over the window.
func (s *AnalyticsService) UserSummary(ctx context.Context, userID string, days int) (*models.UserSummary, error) {
	days = clampDays(days, DefaultHistoryDays, MaxHistoryDays)

	key := cache.UserSummaryKey(userID, days)
	var cached models.UserSummary
	hit, _ := s.cache.GetJSON(ctx, key, &cached)
	s.metrics.RecordCacheRead("user_summary", hit)
	if hit {
		return &cached, nil
	}

	summary, err := s.stats.UserSummary(ctx, userID, days)
	if err != nil {
		return nil, apperr.Internal("failed to query user summary").WithCause(err)
	}

	s.store(ctx, key, summary, s.ttl.UserSummaryTTL)
	return summary, nil
}

func (s *AnalyticsService) store(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	if err := s.cache.SetJSON(ctx, key, value, ttl); err != nil {
		s.logger.Warn("Failed to cache analytics result", zap.String("key", key), zap.Error(err))
	}
}

func clampDays(days, def, max int) int {
	if days < 1 {
		return def
	}
	if days > max {
		return max
	}
	return days
}

// pctChange is the period-over-period percent change, rounded to the
// nearest integer. A zero baseline yields 0 when the current value is
// also zero, and 100 otherwise.
func pctChange(prev, cur int64) int64 {
	if prev == 0 {
		if cur == 0 {
			return 0
		}
		return 100
	}
	return int64(math.Round(float64(cur-prev) / float64(prev) * 100))
}

func pctChangeDecimal(prev, cur decimal.Decimal) int64 {
	if prev.IsZero() {
		if cur.IsZero() {
			return 0
		}
		return 100
	}
	return cur.Sub(prev).Div(prev).Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}
