package commerce

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/cartpulse/cartpulse/internal/cache"
	"github.com/cartpulse/cartpulse/internal/models"
	"github.com/cartpulse/cartpulse/internal/storage"
)

func TestPctChange(t *testing.T) {
	tests := []struct {
		name string
		prev int64
		cur  int64
		want int64
	}{
		{"both zero", 0, 0, 0},
		{"from zero", 0, 5, 100},
		{"halved", 100, 50, -50},
		{"doubled", 50, 100, 100},
		{"unchanged", 42, 42, 0},
		{"rounds to nearest", 3, 4, 33},
		{"rounds up", 3, 5, 67},
		{"drop to zero", 10, 0, -100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := pctChange(tt.prev, tt.cur); got != tt.want {
				t.Errorf("pctChange(%d, %d) = %d, want %d", tt.prev, tt.cur, got, tt.want)
			}
		})
	}
}

func TestPctChangeDecimal(t *testing.T) {
	tests := []struct {
		name string
		prev string
		cur  string
		want int64
	}{
		{"both zero", "0", "0", 0},
		{"from zero", "0", "51.00", 100},
		{"halved", "100.00", "50.00", -50},
		{"up a third", "30.00", "40.00", 33},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prev := decimal.RequireFromString(tt.prev)
			cur := decimal.RequireFromString(tt.cur)
			if got := pctChangeDecimal(prev, cur); got != tt.want {
				t.Errorf("pctChangeDecimal(%s, %s) = %d, want %d", tt.prev, tt.cur, got, tt.want)
			}
		})
	}
}

func TestClampDays(t *testing.T) {
	tests := []struct {
		in   int
		def  int
		max  int
		want int
	}{
		{0, DefaultWindowDays, MaxWindowDays, DefaultWindowDays},
		{-3, DefaultWindowDays, MaxWindowDays, DefaultWindowDays},
		{1, DefaultWindowDays, MaxWindowDays, 1},
		{30, DefaultWindowDays, MaxWindowDays, 30},
		{90, DefaultWindowDays, MaxWindowDays, 90},
		{365, DefaultWindowDays, MaxWindowDays, MaxWindowDays},
		{0, DefaultHistoryDays, MaxHistoryDays, DefaultHistoryDays},
		{365, DefaultHistoryDays, MaxHistoryDays, 365},
		{400, DefaultHistoryDays, MaxHistoryDays, MaxHistoryDays},
	}
	for _, tt := range tests {
		if got := clampDays(tt.in, tt.def, tt.max); got != tt.want {
			t.Errorf("clampDays(%d, %d, %d) = %d, want %d", tt.in, tt.def, tt.max, got, tt.want)
		}
	}
}

// countingStats wraps the memory store to count how often the underlying
// top-products query actually runs.
type countingStats struct {
	*storage.MemoryStore
	topCalls int
}

func (c *countingStats) TopProducts(ctx context.Context, days, limit int, sortBy storage.SortColumn) ([]*models.TopProduct, error) {
	c.topCalls++
	return c.MemoryStore.TopProducts(ctx, days, limit, sortBy)
}

func TestTopProductsCacheAside(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	product := env.createProduct(t, "Standing Desk", "199.00")
	env.trackView(t, product.ID, "u1", time.Now().UTC())
	if err := env.agg.Run(ctx, models.Today(), "test"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	counted := &countingStats{MemoryStore: env.store}
	svc := NewAnalyticsService(counted, env.store, env.cache, testTTL, testMetrics, zap.NewNop())

	first, err := svc.TopProducts(ctx, 7, 10, "views")
	if err != nil {
		t.Fatalf("TopProducts: %v", err)
	}
	if len(first) != 1 || first[0].Views != 1 {
		t.Fatalf("unexpected first result: %+v", first)
	}

	second, err := svc.TopProducts(ctx, 7, 10, "views")
	if err != nil {
		t.Fatalf("TopProducts (cached): %v", err)
	}
	if len(second) != 1 || second[0].ProductID != first[0].ProductID {
		t.Fatalf("cached result differs: %+v", second)
	}

	if counted.topCalls != 1 {
		t.Errorf("store queried %d times, want 1", counted.topCalls)
	}

	// A different window is a different key and must hit the store.
	if _, err := svc.TopProducts(ctx, 30, 10, "views"); err != nil {
		t.Fatalf("TopProducts (30d): %v", err)
	}
	if counted.topCalls != 2 {
		t.Errorf("store queried %d times after new window, want 2", counted.topCalls)
	}
}

func TestTopProductsSortFallback(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	now := time.Now().UTC()

	a := env.createProduct(t, "Alpha", "10.00")
	b := env.createProduct(t, "Beta", "10.00")
	env.trackView(t, a.ID, "u1", now)
	env.trackView(t, a.ID, "u1", now)
	env.trackView(t, b.ID, "u1", now)
	if err := env.agg.Run(ctx, models.Today(), "test"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// An unknown sort column silently falls back to views.
	items, err := env.analytics.TopProducts(ctx, 7, 10, "1; DROP TABLE events")
	if err != nil {
		t.Fatalf("TopProducts: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	if items[0].ProductID != a.ID {
		t.Errorf("top item = %s, want the most-viewed product %s", items[0].ProductID, a.ID)
	}
}

func TestOverviewDeltas(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	now := time.Now().UTC()
	yesterday := now.AddDate(0, 0, -1)

	product := env.createProduct(t, "Armchair", "100.00")
	env.trackView(t, product.ID, "u1", yesterday)
	env.trackView(t, product.ID, "u1", yesterday)
	env.trackView(t, product.ID, "u1", now)

	if err := env.agg.Run(ctx, yesterday.Format(models.DayFormat), "test"); err != nil {
		t.Fatalf("Run(yesterday): %v", err)
	}
	if err := env.agg.Run(ctx, models.Today(), "test"); err != nil {
		t.Fatalf("Run(today): %v", err)
	}

	overview, err := env.analytics.Overview(ctx, 1)
	if err != nil {
		t.Fatalf("Overview: %v", err)
	}
	if overview.Totals.Views != 1 {
		t.Errorf("today's views = %d, want 1", overview.Totals.Views)
	}
	// 2 views yesterday down to 1 today.
	if overview.Deltas.Views != -50 {
		t.Errorf("views delta = %d, want -50", overview.Deltas.Views)
	}
	if overview.Deltas.Purchases != 0 {
		t.Errorf("purchases delta = %d, want 0", overview.Deltas.Purchases)
	}
}

func TestProductTimeseriesUnknownProduct(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.analytics.ProductTimeseries(context.Background(), "missing", 7)
	if err == nil {
		t.Fatal("expected an error for an unknown product")
	}
}

func TestUserSummaryCached(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	product := env.createProduct(t, "Side Table", "45.00")
	env.trackView(t, product.ID, "u7", time.Now().UTC())
	if _, err := env.purchases.TrackPurchase(ctx, "u7", product.ID, 1); err != nil {
		t.Fatalf("TrackPurchase: %v", err)
	}
	if err := env.agg.Run(ctx, models.Today(), "test"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	summary, err := env.analytics.UserSummary(ctx, "u7", 7)
	if err != nil {
		t.Fatalf("UserSummary: %v", err)
	}
	if summary.Views != 1 || summary.Purchases != 1 {
		t.Errorf("summary = %d views %d purchases, want 1 and 1", summary.Views, summary.Purchases)
	}
	if want := decimal.RequireFromString("45.00"); !summary.Spend.Equal(want) {
		t.Errorf("spend = %s, want %s", summary.Spend, want)
	}

	var cached models.UserSummary
	hit, _ := env.cache.GetJSON(ctx, cache.UserSummaryKey("u7", 7), &cached)
	if !hit {
		t.Error("user summary was not cached")
	}
}

func TestYearLongWindows(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	product := env.createProduct(t, "Garden Bench", "120.00")
	oldDay := time.Now().UTC().AddDate(0, 0, -180)
	env.trackView(t, product.ID, "u8", oldDay)
	env.trackView(t, product.ID, "u8", time.Now().UTC())
	for _, day := range []string{oldDay.Format(models.DayFormat), models.Today()} {
		if err := env.agg.Run(ctx, day, "test"); err != nil {
			t.Fatalf("Run(%s): %v", day, err)
		}
	}

	summary, err := env.analytics.UserSummary(ctx, "u8", 365)
	if err != nil {
		t.Fatalf("UserSummary: %v", err)
	}
	if summary.Days != 365 {
		t.Errorf("days = %d, want the full 365", summary.Days)
	}
	if summary.Views != 2 {
		t.Errorf("views over a year = %d, want 2", summary.Views)
	}

	// A 90-day window must not see the six-month-old view.
	short, err := env.analytics.UserSummary(ctx, "u8", 90)
	if err != nil {
		t.Fatalf("UserSummary: %v", err)
	}
	if short.Views != 1 {
		t.Errorf("views over 90 days = %d, want 1", short.Views)
	}

	points, err := env.analytics.ProductTimeseries(ctx, product.ID, 365)
	if err != nil {
		t.Fatalf("ProductTimeseries: %v", err)
	}
	if len(points) != 2 {
		t.Errorf("timeseries points over a year = %d, want 2", len(points))
	}

	// Beyond a year the window clamps back down.
	over, err := env.analytics.UserSummary(ctx, "u8", 4000)
	if err != nil {
		t.Fatalf("UserSummary: %v", err)
	}
	if over.Days != MaxHistoryDays {
		t.Errorf("days = %d, want %d", over.Days, MaxHistoryDays)
	}
}
