package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/cartpulse/cartpulse/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresProductRepo implements ProductRepo using PostgreSQL.
type PostgresProductRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresProductRepo(pool *pgxpool.Pool) *PostgresProductRepo {
	return &PostgresProductRepo{pool: pool}
}

var productSortCols = map[string]string{
	"name":       "name",
	"price":      "price",
	"created_at": "created_at",
}

func (r *PostgresProductRepo) List(ctx context.Context, opts ProductListOptions) (int64, []*models.Product, error) {
	var where []string
	var args []interface{}

	if opts.Status != "" {
		args = append(args, opts.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if opts.Search != "" {
		args = append(args, "%"+opts.Search+"%")
		where = append(where, fmt.Sprintf("name ILIKE $%d", len(args)))
	}
	if opts.Category != "" {
		args = append(args, opts.Category)
		where = append(where, fmt.Sprintf("category = $%d", len(args)))
	}

	whereSQL := ""
	if len(where) > 0 {
		whereSQL = "WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	err := r.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT count(*) FROM products %s`, whereSQL), args...,
	).Scan(&total)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to count products: %w", err)
	}

	col, ok := productSortCols[opts.SortBy]
	if !ok {
		col = "created_at"
	}
	dir := "DESC"
	if opts.SortDir == "asc" {
		dir = "ASC"
	}

	args = append(args, opts.Offset, opts.Limit)
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`
		SELECT id, name, price, status, description, image_url, category, created_at
		FROM products %s
		ORDER BY %s %s
		OFFSET $%d LIMIT $%d
	`, whereSQL, col, dir, len(args)-1, len(args)), args...)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	var products []*models.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return 0, nil, err
		}
		products = append(products, p)
	}

	return total, products, rows.Err()
}

func (r *PostgresProductRepo) GetByID(ctx context.Context, id string) (*models.Product, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, price, status, description, image_url, category, created_at
		FROM products WHERE id = $1
	`, id)

	p, err := scanProduct(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return p, nil
}

func (r *PostgresProductRepo) Create(ctx context.Context, p *models.Product) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}

	err := r.pool.QueryRow(ctx, `
		INSERT INTO products (id, name, price, status, description, image_url, category)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, p.ID, p.Name, p.Price, string(p.Status), p.Description, p.ImageURL, p.Category).Scan(&p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}
	return nil
}

func (r *PostgresProductRepo) Update(ctx context.Context, id string, patch models.ProductPatch) (*models.Product, error) {
	if patch.Empty() {
		return r.GetByID(ctx, id)
	}

	var sets []string
	var args []interface{}

	if patch.Name != nil {
		args = append(args, *patch.Name)
		sets = append(sets, fmt.Sprintf("name = $%d", len(args)))
	}
	if patch.Price != nil {
		args = append(args, *patch.Price)
		sets = append(sets, fmt.Sprintf("price = $%d", len(args)))
	}
	if patch.Status != nil {
		args = append(args, string(*patch.Status))
		sets = append(sets, fmt.Sprintf("status = $%d", len(args)))
	}
	if patch.Description != nil {
		args = append(args, *patch.Description)
		sets = append(sets, fmt.Sprintf("description = $%d", len(args)))
	}
	if patch.ImageURL != nil {
		args = append(args, *patch.ImageURL)
		sets = append(sets, fmt.Sprintf("image_url = $%d", len(args)))
	}
	if patch.Category != nil {
		args = append(args, *patch.Category)
		sets = append(sets, fmt.Sprintf("category = $%d", len(args)))
	}

	args = append(args, id)
	row := r.pool.QueryRow(ctx, fmt.Sprintf(`
		UPDATE products SET %s WHERE id = $%d
		RETURNING id, name, price, status, description, image_url, category, created_at
	`, strings.Join(sets, ", "), len(args)), args...)

	p, err := scanProduct(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update product: %w", err)
	}
	return p, nil
}

func (r *PostgresProductRepo) Delete(ctx context.Context, id string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete product: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PostgresProductRepo) ListCategories(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT category FROM products
		WHERE category <> '' ORDER BY category
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	var categories []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func scanProduct(row pgx.Row) (*models.Product, error) {
	var p models.Product
	var status string
	if err := row.Scan(&p.ID, &p.Name, &p.Price, &status, &p.Description, &p.ImageURL, &p.Category, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.Status = models.ProductStatus(status)
	return &p, nil
}
