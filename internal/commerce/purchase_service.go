package commerce

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/cartpulse/cartpulse/internal/apperr"
	"github.com/cartpulse/cartpulse/internal/metrics"
	"github.com/cartpulse/cartpulse/internal/models"
	"github.com/cartpulse/cartpulse/internal/queue"
	"github.com/cartpulse/cartpulse/internal/storage"
)

// PurchaseService records purchases and serves purchase history.
type PurchaseService struct {
	purchases storage.PurchaseRepo
	products  storage.ProductRepo
	queue     queue.Queue
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

func NewPurchaseService(purchases storage.PurchaseRepo, products storage.ProductRepo, q queue.Queue, m *metrics.Metrics, logger *zap.Logger) *PurchaseService {
	return &PurchaseService{purchases: purchases, products: products, queue: q, metrics: m, logger: logger}
}

// TrackPurchase records a purchase of qty units. The amount is computed
// from the catalog price at call time; clients never supply it.
func (s *PurchaseService) TrackPurchase(ctx context.Context, userID, productID string, qty int) (*models.Purchase, error) {
	if userID == "" {
		return nil, apperr.Unauthorized("authentication required")
	}
	if productID == "" {
		return nil, apperr.Validation("product_id is required")
	}
	if qty < 1 {
		return nil, apperr.Validation("qty must be at least 1")
	}

	product, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return nil, apperr.Internal("failed to load product").WithCause(err)
	}
	if product == nil {
		return nil, apperr.NotFound("product %s not found", productID)
	}
	if product.Status != models.ProductActive {
		return nil, apperr.Validation("product %s is not available for purchase", productID)
	}

	purchase := &models.Purchase{
		ID:        uuid.NewString(),
		UserID:    userID,
		ProductID: productID,
		Qty:       qty,
		Amount:    product.Price.Mul(decimal.NewFromInt(int64(qty))),
		Timestamp: time.Now().UTC(),
	}
	if err := s.purchases.InsertPurchase(ctx, purchase); err != nil {
		return nil, apperr.Internal("failed to store purchase").WithCause(err)
	}

	s.metrics.PurchasesTracked.Inc()
	s.enqueueRollup(ctx, purchase.ID)
	return purchase, nil
}

// PurchaseHistory lists a user's purchases, newest first by default.
func (s *PurchaseService) PurchaseHistory(ctx context.Context, userID string, page, limit int, sortBy, sortDir string) (int64, []*models.Purchase, error) {
	page, limit = clampPage(page, limit, 100)

	switch sortBy {
	case "ts", "amount", "qty":
	default:
		sortBy = "ts"
	}
	if sortDir != "asc" {
		sortDir = "desc"
	}

	total, items, err := s.purchases.ListByUser(ctx, userID, storage.PurchaseListOptions{
		SortBy:  sortBy,
		SortDir: sortDir,
		Limit:   limit,
		Offset:  (page - 1) * limit,
	})
	if err != nil {
		return 0, nil, apperr.Internal("failed to list purchases").WithCause(err)
	}
	return total, items, nil
}

func (s *PurchaseService) enqueueRollup(ctx context.Context, ref string) {
	job := &models.RollupJob{
		ID:         uuid.NewString(),
		Kind:       models.JobPurchase,
		Reference:  ref,
		EnqueuedAt: time.Now().UTC(),
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		s.logger.Warn("Failed to enqueue rollup job",
			zap.String("kind", string(models.JobPurchase)),
			zap.String("reference", ref),
			zap.Error(err))
		return
	}
	s.metrics.JobsEnqueued.WithLabelValues(string(models.JobPurchase)).Inc()
}

// clampPage normalizes pagination input.
func clampPage(page, limit, maxLimit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return page, limit
}
