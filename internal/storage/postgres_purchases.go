package storage

import (
	"context"
	"fmt"

	"github.com/cartpulse/cartpulse/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresPurchaseRepo implements PurchaseRepo using PostgreSQL.
type PostgresPurchaseRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresPurchaseRepo(pool *pgxpool.Pool) *PostgresPurchaseRepo {
	return &PostgresPurchaseRepo{pool: pool}
}

func (r *PostgresPurchaseRepo) InsertPurchase(ctx context.Context, p *models.Purchase) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO purchases (id, user_id, product_id, qty, amount, ts)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, p.ID, p.UserID, p.ProductID, p.Qty, p.Amount, p.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to insert purchase: %w", err)
	}
	return nil
}

var purchaseSortCols = map[string]string{
	"ts":     "ts",
	"amount": "amount",
	"qty":    "qty",
}

func (r *PostgresPurchaseRepo) ListByUser(ctx context.Context, userID string, opts PurchaseListOptions) (int64, []*models.Purchase, error) {
	var total int64
	err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM purchases WHERE user_id = $1`, userID,
	).Scan(&total)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to count purchases: %w", err)
	}

	col, ok := purchaseSortCols[opts.SortBy]
	if !ok {
		col = "ts"
	}
	dir := "DESC"
	if opts.SortDir == "asc" {
		dir = "ASC"
	}

	rows, err := r.pool.Query(ctx, fmt.Sprintf(`
		SELECT id, user_id, product_id, qty, amount, ts
		FROM purchases WHERE user_id = $1
		ORDER BY %s %s
		OFFSET $2 LIMIT $3
	`, col, dir), userID, opts.Offset, opts.Limit)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to list purchases: %w", err)
	}
	defer rows.Close()

	var purchases []*models.Purchase
	for rows.Next() {
		var p models.Purchase
		if err := rows.Scan(&p.ID, &p.UserID, &p.ProductID, &p.Qty, &p.Amount, &p.Timestamp); err != nil {
			return 0, nil, err
		}
		purchases = append(purchases, &p)
	}

	return total, purchases, rows.Err()
}
