package storage

import (
	"context"
	"errors"

	"github.com/cartpulse/cartpulse/internal/models"
)

// ErrDuplicateEmail is returned by UserRepo.CreateUser when the email is
// already registered.
var ErrDuplicateEmail = errors.New("email already exists")

// =============================================
// EVENT REPOSITORY
// =============================================

// EventRepo defines operations on the raw events table.
type EventRepo interface {
	// InsertEvent persists one event and returns its id.
	InsertEvent(ctx context.Context, e *models.Event) (string, error)

	// InsertEventsBulk persists the batch all-or-nothing and returns the
	// number of rows inserted. A failure inserts zero rows.
	InsertEventsBulk(ctx context.Context, events []*models.Event) (int, error)

	// LinkSession back-fills user_id on every event of the session that
	// still has a null user_id, and returns the number of rows changed.
	// Events that already carry a user_id are never touched.
	LinkSession(ctx context.Context, sessionID, userID string) (int64, error)
}

// =============================================
// PURCHASE REPOSITORY
// =============================================

// PurchaseListOptions controls pagination and ordering of purchase lists.
type PurchaseListOptions struct {
	SortBy  string // ts | amount | qty
	SortDir string // asc | desc
	Limit   int
	Offset  int
}

// PurchaseRepo defines operations on the purchases table.
type PurchaseRepo interface {
	InsertPurchase(ctx context.Context, p *models.Purchase) error
	ListByUser(ctx context.Context, userID string, opts PurchaseListOptions) (int64, []*models.Purchase, error)
}

// =============================================
// PRODUCT REPOSITORY
// =============================================

// ProductListOptions controls filtering and pagination of the catalog.
type ProductListOptions struct {
	Status   string
	Search   string
	Category string
	SortBy   string // name | price | created_at
	SortDir  string // asc | desc
	Limit    int
	Offset   int
}

// ProductRepo defines operations on the product catalog.
type ProductRepo interface {
	List(ctx context.Context, opts ProductListOptions) (int64, []*models.Product, error)

	// GetByID returns (nil, nil) when the product does not exist.
	GetByID(ctx context.Context, id string) (*models.Product, error)

	Create(ctx context.Context, p *models.Product) error

	// Update applies the patch and returns the updated row, or (nil, nil)
	// when the product does not exist.
	Update(ctx context.Context, id string, patch models.ProductPatch) (*models.Product, error)

	// Delete reports whether a row was removed.
	Delete(ctx context.Context, id string) (bool, error)

	ListCategories(ctx context.Context) ([]string, error)
}

// =============================================
// USER REPOSITORY
// =============================================

// UserRepo defines operations on the users table.
type UserRepo interface {
	// CreateUser returns ErrDuplicateEmail when the email is taken.
	CreateUser(ctx context.Context, email, passwordHash string, role models.Role) (*models.User, error)

	// GetUserByEmail returns (nil, nil) when no such user exists.
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)

	// GetUserByID returns (nil, nil) when no such user exists.
	GetUserByID(ctx context.Context, id string) (*models.User, error)
}

// =============================================
// DAILY STATS REPOSITORY
// =============================================

// ProductStatsOptions controls the paginated product stats query.
type ProductStatsOptions struct {
	Days    int
	SortBy  SortColumn
	SortDir string // asc | desc
	Limit   int
	Offset  int
	Search  string
}

// StatsRepo defines the rollup write path and the aggregate read queries
// over the two daily stats tables.
type StatsRepo interface {
	// RecomputeDay replaces every (product, day) and (user, day) row for
	// the given day with counters freshly summed from the raw events and
	// purchases tables. Both table writes happen in one transaction. The
	// operation is a pure function of the raw rows, so re-running it is
	// idempotent and concurrent runs converge.
	RecomputeDay(ctx context.Context, day string) error

	TopProducts(ctx context.Context, days, limit int, sortBy SortColumn) ([]*models.TopProduct, error)
	ProductStats(ctx context.Context, opts ProductStatsOptions) (int64, []*models.TopProduct, error)
	Overview(ctx context.Context, days int) (*models.OverviewTotals, error)
	OverviewPrevious(ctx context.Context, days int) (*models.OverviewTotals, error)
	OverallTimeseries(ctx context.Context, days int) ([]*models.TimeseriesPoint, error)
	ProductTimeseries(ctx context.Context, productID string, days int) ([]*models.TimeseriesPoint, error)
	UserSummary(ctx context.Context, userID string, days int) (*models.UserSummary, error)

	// GetProductDay returns (nil, nil) when no row exists for the key.
	GetProductDay(ctx context.Context, productID, day string) (*models.ProductDailyStat, error)

	// GetUserDay returns (nil, nil) when no row exists for the key.
	GetUserDay(ctx context.Context, userID, day string) (*models.UserDailyStat, error)
}
