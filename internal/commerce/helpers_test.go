package commerce

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/cartpulse/cartpulse/internal/cache"
	"github.com/cartpulse/cartpulse/internal/config"
	"github.com/cartpulse/cartpulse/internal/metrics"
	"github.com/cartpulse/cartpulse/internal/models"
	"github.com/cartpulse/cartpulse/internal/queue"
	"github.com/cartpulse/cartpulse/internal/storage"
)

// Prometheus collectors register globally, so the package shares one
// metrics instance across all tests.
var testMetrics = metrics.NewMetrics("cartpulse_test")

var testTTL = config.CacheConfig{
	TopProductsTTL:  time.Minute,
	ProductTTL:      2 * time.Minute,
	UserSummaryTTL:  time.Minute,
	OverviewTTL:     time.Minute,
	TimeseriesTTL:   time.Minute,
	ProductStatsTTL: time.Minute,
}

type testEnv struct {
	store *storage.MemoryStore
	cache *cache.MemoryCache
	queue *queue.MemoryQueue

	events    *EventService
	purchases *PurchaseService
	products  *ProductService
	analytics *AnalyticsService
	agg       *Aggregator
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zap.NewNop()
	store := storage.NewMemoryStore()
	c := cache.NewMemoryCache()
	q := queue.NewMemoryQueue()

	return &testEnv{
		store:     store,
		cache:     c,
		queue:     q,
		events:    NewEventService(store, q, nil, testMetrics, logger),
		purchases: NewPurchaseService(store, store, q, testMetrics, logger),
		products:  NewProductService(store, c, testTTL, testMetrics, logger),
		analytics: NewAnalyticsService(store, store, c, testTTL, testMetrics, logger),
		agg:       NewAggregator(store, c, testMetrics, logger),
	}
}

func (env *testEnv) createProduct(t *testing.T, name, price string) *models.Product {
	t.Helper()
	p, err := env.products.CreateProduct(context.Background(), &models.Product{
		Name:   name,
		Price:  decimal.RequireFromString(price),
		Status: models.ProductActive,
	})
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}
	return p
}

func (env *testEnv) trackView(t *testing.T, productID, userID string, at time.Time) {
	t.Helper()
	uid := userID
	_, err := env.events.IngestEvent(context.Background(), &models.Event{
		UserID:    &uid,
		ProductID: productID,
		Type:      models.EventView,
		Timestamp: at,
	}, "")
	if err != nil {
		t.Fatalf("IngestEvent: %v", err)
	}
}

func strptr(s string) *string { return &s }
