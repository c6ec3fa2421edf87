package commerce

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/cartpulse/cartpulse/internal/apperr"
	"github.com/cartpulse/cartpulse/internal/cache"
	"github.com/cartpulse/cartpulse/internal/config"
	"github.com/cartpulse/cartpulse/internal/metrics"
	"github.com/cartpulse/cartpulse/internal/models"
	"github.com/cartpulse/cartpulse/internal/storage"
)

// ProductService manages the catalog with a read-through cache on the
// single-product lookup.
type ProductService struct {
	products storage.ProductRepo
	cache    cache.Cache
	ttl      config.CacheConfig
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

func NewProductService(products storage.ProductRepo, c cache.Cache, ttl config.CacheConfig, m *metrics.Metrics, logger *zap.Logger) *ProductService {
	return &ProductService{products: products, cache: c, ttl: ttl, metrics: m, logger: logger}
}

// ListProducts returns a filtered page of the catalog.
func (s *ProductService) ListProducts(ctx context.Context, opts storage.ProductListOptions, page, limit int) (int64, []*models.Product, error) {
	page, limit = clampPage(page, limit, 100)
	opts.Limit = limit
	opts.Offset = (page - 1) * limit

	switch opts.SortBy {
	case "name", "price", "created_at":
	default:
		opts.SortBy = "created_at"
	}
	if opts.SortDir != "asc" {
		opts.SortDir = "desc"
	}
	if opts.Status != "" && !models.ProductStatus(opts.Status).Valid() {
		return 0, nil, apperr.Validation("unknown status %q", opts.Status)
	}

	total, items, err := s.products.List(ctx, opts)
	if err != nil {
		return 0, nil, apperr.Internal("failed to list products").WithCause(err)
	}
	return total, items, nil
}

// GetProduct returns one product, served from cache when possible.
func (s *ProductService) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	key := cache.ProductKey(id)

	var cached models.Product
	hit, _ := s.cache.GetJSON(ctx, key, &cached)
	s.metrics.RecordCacheRead("product", hit)
	if hit {
		return &cached, nil
	}

	product, err := s.products.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.Internal("failed to load product").WithCause(err)
	}
	if product == nil {
		return nil, apperr.NotFound("product %s not found", id)
	}

	if err := s.cache.SetJSON(ctx, key, product, s.ttl.ProductTTL); err != nil {
		s.logger.Warn("Failed to cache product", zap.String("id", id), zap.Error(err))
	}
	return product, nil
}

// CreateProduct adds a catalog entry.
func (s *ProductService) CreateProduct(ctx context.Context, p *models.Product) (*models.Product, error) {
	if p.Name == "" {
		return nil, apperr.Validation("name is required")
	}
	if p.Price.Cmp(decimal.Zero) < 0 {
		return nil, apperr.Validation("price must not be negative")
	}
	if p.Status == "" {
		p.Status = models.ProductActive
	}
	if !p.Status.Valid() {
		return nil, apperr.Validation("unknown status %q", p.Status)
	}

	if err := s.products.Create(ctx, p); err != nil {
		return nil, apperr.Internal("failed to create product").WithCause(err)
	}
	return p, nil
}

// UpdateProduct applies a partial update and drops the cached copy so the
// next read sees the new row.
func (s *ProductService) UpdateProduct(ctx context.Context, id string, patch models.ProductPatch) (*models.Product, error) {
	if patch.Empty() {
		return nil, apperr.Validation("no fields to update")
	}
	if patch.Price != nil && patch.Price.Cmp(decimal.Zero) < 0 {
		return nil, apperr.Validation("price must not be negative")
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return nil, apperr.Validation("unknown status %q", *patch.Status)
	}

	product, err := s.products.Update(ctx, id, patch)
	if err != nil {
		return nil, apperr.Internal("failed to update product").WithCause(err)
	}
	if product == nil {
		return nil, apperr.NotFound("product %s not found", id)
	}

	s.invalidate(ctx, id)
	return product, nil
}

// DeleteProduct removes a catalog entry and its cached copy.
func (s *ProductService) DeleteProduct(ctx context.Context, id string) error {
	removed, err := s.products.Delete(ctx, id)
	if err != nil {
		return apperr.Internal("failed to delete product").WithCause(err)
	}
	if !removed {
		return apperr.NotFound("product %s not found", id)
	}

	s.invalidate(ctx, id)
	return nil
}

// ListCategories returns the distinct non-empty categories in use.
func (s *ProductService) ListCategories(ctx context.Context) ([]string, error) {
	categories, err := s.products.ListCategories(ctx)
	if err != nil {
		return nil, apperr.Internal("failed to list categories").WithCause(err)
	}
	return categories, nil
}

func (s *ProductService) invalidate(ctx context.Context, id string) {
	if _, err := s.cache.DeleteMatching(ctx, cache.ProductKey(id)); err != nil {
		s.logger.Warn("Failed to invalidate product cache", zap.String("id", id), zap.Error(err))
	}
}
