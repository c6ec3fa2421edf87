package storage

import (
	"context"
	"fmt"

	"github.com/cartpulse/cartpulse/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PostgresStatsRepo implements StatsRepo using PostgreSQL.
type PostgresStatsRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresStatsRepo(pool *pgxpool.Pool) *PostgresStatsRepo {
	return &PostgresStatsRepo{pool: pool}
}

// Events and purchases are aggregated in separate subqueries before the
// join. Joining the raw tables directly would fan out rows for products
// with both events and purchases on the same day and inflate the sums.
const recomputeProductsSQL = `
	INSERT INTO product_daily_stats
		(product_id, day, views, clicks, add_to_carts, checkout_starts, purchases, revenue)
	SELECT coalesce(ev.product_id, pu.product_id),
	       $1::date,
	       coalesce(ev.views, 0),
	       coalesce(ev.clicks, 0),
	       coalesce(ev.add_to_carts, 0),
	       coalesce(ev.checkout_starts, 0),
	       coalesce(pu.purchases, 0),
	       coalesce(pu.revenue, 0)
	FROM (
		SELECT product_id,
		       count(*) FILTER (WHERE type = 'view')           AS views,
		       count(*) FILTER (WHERE type = 'click')          AS clicks,
		       count(*) FILTER (WHERE type = 'add_to_cart')    AS add_to_carts,
		       count(*) FILTER (WHERE type = 'checkout_start') AS checkout_starts
		FROM events
		WHERE ts::date = $1::date
		GROUP BY product_id
	) ev
	FULL JOIN (
		SELECT product_id,
		       count(DISTINCT id) AS purchases,
		       sum(amount)        AS revenue
		FROM purchases
		WHERE ts::date = $1::date
		GROUP BY product_id
	) pu ON pu.product_id = ev.product_id
	ON CONFLICT (product_id, day) DO UPDATE SET
		views           = excluded.views,
		clicks          = excluded.clicks,
		add_to_carts    = excluded.add_to_carts,
		checkout_starts = excluded.checkout_starts,
		purchases       = excluded.purchases,
		revenue         = excluded.revenue`

const recomputeUsersSQL = `
	INSERT INTO user_daily_stats (user_id, day, views, purchases, spend)
	SELECT coalesce(ev.user_id, pu.user_id),
	       $1::date,
	       coalesce(ev.views, 0),
	       coalesce(pu.purchases, 0),
	       coalesce(pu.spend, 0)
	FROM (
		SELECT user_id,
		       count(*) FILTER (WHERE type = 'view') AS views
		FROM events
		WHERE ts::date = $1::date AND user_id IS NOT NULL
		GROUP BY user_id
	) ev
	FULL JOIN (
		SELECT user_id,
		       count(DISTINCT id) AS purchases,
		       sum(amount)        AS spend
		FROM purchases
		WHERE ts::date = $1::date
		GROUP BY user_id
	) pu ON pu.user_id = ev.user_id
	ON CONFLICT (user_id, day) DO UPDATE SET
		views     = excluded.views,
		purchases = excluded.purchases,
		spend     = excluded.spend`

// RecomputeDay replaces the day's rows in both stats tables inside one
// transaction. The computed values depend only on the raw tables, so the
// statement is idempotent and safe under concurrent workers: the upsert
// overwrites counters instead of incrementing them.
func (r *PostgresStatsRepo) RecomputeDay(ctx context.Context, day string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin rollup transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, recomputeProductsSQL, day); err != nil {
		return fmt.Errorf("failed to recompute product stats: %w", err)
	}
	if _, err := tx.Exec(ctx, recomputeUsersSQL, day); err != nil {
		return fmt.Errorf("failed to recompute user stats: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit rollup: %w", err)
	}
	return nil
}

func (r *PostgresStatsRepo) TopProducts(ctx context.Context, days, limit int, sortBy SortColumn) ([]*models.TopProduct, error) {
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`
		SELECT s.product_id,
		       coalesce(p.name, s.product_id::text),
		       sum(s.views),
		       sum(s.clicks),
		       sum(s.add_to_carts),
		       sum(s.checkout_starts),
		       sum(s.purchases),
		       sum(s.revenue)
		FROM product_daily_stats s
		LEFT JOIN products p ON p.id = s.product_id
		WHERE s.day >= (current_date - ($1::int - 1))
		GROUP BY s.product_id, p.name
		ORDER BY %s DESC
		LIMIT $2
	`, sortBy.Expr()), days, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top products: %w", err)
	}
	defer rows.Close()

	return scanTopProducts(rows)
}

func (r *PostgresStatsRepo) ProductStats(ctx context.Context, opts ProductStatsOptions) (int64, []*models.TopProduct, error) {
	var where string
	args := []interface{}{opts.Days}
	if opts.Search != "" {
		args = append(args, "%"+opts.Search+"%")
		where = "AND p.name ILIKE $2"
	}

	var total int64
	err := r.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT count(DISTINCT s.product_id)
		FROM product_daily_stats s
		LEFT JOIN products p ON p.id = s.product_id
		WHERE s.day >= (current_date - ($1::int - 1))
		%s
	`, where), args...).Scan(&total)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to count product stats: %w", err)
	}

	dir := "DESC"
	if opts.SortDir == "asc" {
		dir = "ASC"
	}

	args = append(args, opts.Offset, opts.Limit)
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`
		SELECT s.product_id,
		       coalesce(p.name, s.product_id::text),
		       sum(s.views),
		       sum(s.clicks),
		       sum(s.add_to_carts),
		       sum(s.checkout_starts),
		       sum(s.purchases),
		       sum(s.revenue)
		FROM product_daily_stats s
		LEFT JOIN products p ON p.id = s.product_id
		WHERE s.day >= (current_date - ($1::int - 1))
		%s
		GROUP BY s.product_id, p.name
		ORDER BY %s %s
		OFFSET $%d LIMIT $%d
	`, where, opts.SortBy.Expr(), dir, len(args)-1, len(args)), args...)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to query product stats: %w", err)
	}
	defer rows.Close()

	items, err := scanTopProducts(rows)
	if err != nil {
		return 0, nil, err
	}
	return total, items, nil
}

func (r *PostgresStatsRepo) Overview(ctx context.Context, days int) (*models.OverviewTotals, error) {
	var t models.OverviewTotals
	var revenue *decimal.Decimal
	var views, clicks, atc, cs, purchases, active *int64

	err := r.pool.QueryRow(ctx, `
		SELECT sum(views), sum(clicks), sum(add_to_carts), sum(checkout_starts),
		       sum(purchases), sum(revenue), count(DISTINCT product_id)
		FROM product_daily_stats
		WHERE day >= (current_date - ($1::int - 1))
	`, days).Scan(&views, &clicks, &atc, &cs, &purchases, &revenue, &active)
	if err != nil {
		return nil, fmt.Errorf("failed to query overview: %w", err)
	}

	t.Views = int64Val(views)
	t.Clicks = int64Val(clicks)
	t.AddToCarts = int64Val(atc)
	t.CheckoutStarts = int64Val(cs)
	t.Purchases = int64Val(purchases)
	t.Revenue = decimalVal(revenue)
	t.ActiveProducts = int64Val(active)
	return &t, nil
}

func (r *PostgresStatsRepo) OverviewPrevious(ctx context.Context, days int) (*models.OverviewTotals, error) {
	var t models.OverviewTotals
	var revenue *decimal.Decimal
	var views, clicks, atc, cs, purchases *int64

	err := r.pool.QueryRow(ctx, `
		SELECT sum(views), sum(clicks), sum(add_to_carts), sum(checkout_starts),
		       sum(purchases), sum(revenue)
		FROM product_daily_stats
		WHERE day >= (current_date - ($1::int * 2 - 1))
		  AND day <  (current_date - ($1::int - 1))
	`, days).Scan(&views, &clicks, &atc, &cs, &purchases, &revenue)
	if err != nil {
		return nil, fmt.Errorf("failed to query previous overview: %w", err)
	}

	t.Views = int64Val(views)
	t.Clicks = int64Val(clicks)
	t.AddToCarts = int64Val(atc)
	t.CheckoutStarts = int64Val(cs)
	t.Purchases = int64Val(purchases)
	t.Revenue = decimalVal(revenue)
	return &t, nil
}

func (r *PostgresStatsRepo) OverallTimeseries(ctx context.Context, days int) ([]*models.TimeseriesPoint, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT to_char(day, 'YYYY-MM-DD'),
		       sum(views), sum(clicks), sum(add_to_carts), sum(checkout_starts),
		       sum(purchases), sum(revenue)
		FROM product_daily_stats
		WHERE day >= (current_date - ($1::int - 1))
		GROUP BY day
		ORDER BY day ASC
	`, days)
	if err != nil {
		return nil, fmt.Errorf("failed to query overall timeseries: %w", err)
	}
	defer rows.Close()

	return scanTimeseries(rows)
}

func (r *PostgresStatsRepo) ProductTimeseries(ctx context.Context, productID string, days int) ([]*models.TimeseriesPoint, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT to_char(day, 'YYYY-MM-DD'),
		       views, clicks, add_to_carts, checkout_starts, purchases, revenue
		FROM product_daily_stats
		WHERE product_id = $1 AND day >= (current_date - ($2::int - 1))
		ORDER BY day ASC
	`, productID, days)
	if err != nil {
		return nil, fmt.Errorf("failed to query product timeseries: %w", err)
	}
	defer rows.Close()

	return scanTimeseries(rows)
}

func (r *PostgresStatsRepo) UserSummary(ctx context.Context, userID string, days int) (*models.UserSummary, error) {
	var views, purchases *int64
	var spend *decimal.Decimal

	err := r.pool.QueryRow(ctx, `
		SELECT sum(views), sum(purchases), sum(spend)
		FROM user_daily_stats
		WHERE user_id = $1 AND day >= (current_date - ($2::int - 1))
	`, userID, days).Scan(&views, &purchases, &spend)
	if err != nil {
		return nil, fmt.Errorf("failed to query user summary: %w", err)
	}

	return &models.UserSummary{
		UserID:    userID,
		Days:      days,
		Views:     int64Val(views),
		Purchases: int64Val(purchases),
		Spend:     decimalVal(spend),
	}, nil
}

func (r *PostgresStatsRepo) GetProductDay(ctx context.Context, productID, day string) (*models.ProductDailyStat, error) {
	var s models.ProductDailyStat
	err := r.pool.QueryRow(ctx, `
		SELECT product_id, to_char(day, 'YYYY-MM-DD'),
		       views, clicks, add_to_carts, checkout_starts, purchases, revenue
		FROM product_daily_stats
		WHERE product_id = $1 AND day = $2::date
	`, productID, day).Scan(
		&s.ProductID, &s.Day, &s.Views, &s.Clicks, &s.AddToCarts,
		&s.CheckoutStarts, &s.Purchases, &s.Revenue,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product day: %w", err)
	}
	return &s, nil
}

func (r *PostgresStatsRepo) GetUserDay(ctx context.Context, userID, day string) (*models.UserDailyStat, error) {
	var s models.UserDailyStat
	err := r.pool.QueryRow(ctx, `
		SELECT user_id, to_char(day, 'YYYY-MM-DD'), views, purchases, spend
		FROM user_daily_stats
		WHERE user_id = $1 AND day = $2::date
	`, userID, day).Scan(&s.UserID, &s.Day, &s.Views, &s.Purchases, &s.Spend)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user day: %w", err)
	}
	return &s, nil
}

func scanTopProducts(rows pgx.Rows) ([]*models.TopProduct, error) {
	var items []*models.TopProduct
	for rows.Next() {
		var tp models.TopProduct
		if err := rows.Scan(
			&tp.ProductID, &tp.ProductName, &tp.Views, &tp.Clicks,
			&tp.AddToCarts, &tp.CheckoutStarts, &tp.Purchases, &tp.Revenue,
		); err != nil {
			return nil, err
		}
		items = append(items, &tp)
	}
	return items, rows.Err()
}

func scanTimeseries(rows pgx.Rows) ([]*models.TimeseriesPoint, error) {
	var points []*models.TimeseriesPoint
	for rows.Next() {
		var p models.TimeseriesPoint
		if err := rows.Scan(
			&p.Day, &p.Views, &p.Clicks, &p.AddToCarts,
			&p.CheckoutStarts, &p.Purchases, &p.Revenue,
		); err != nil {
			return nil, err
		}
		points = append(points, &p)
	}
	return points, rows.Err()
}

func int64Val(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}

func decimalVal(v *decimal.Decimal) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return *v
}
