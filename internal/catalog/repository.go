package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gudang-erp/gudang-erp/internal/shared"
)

// Repository persists products and variants in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const productColumns = `id, sku, name, uom, purchase_price, selling_price, minimum_stock, rack_location, is_active, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.UOM, &p.PurchasePrice, &p.SellingPrice, &p.MinimumStock, &p.RackLocation, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, fmt.Errorf("%w: product", shared.ErrNotFound)
	}
	return p, err
}

// uniqueViolation maps the Postgres duplicate-key error onto the shared
// sentinel so handlers answer 409.
func uniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: sku already in use", shared.ErrAlreadyExists)
	}
	return err
}

// CreateProduct inserts a product. A duplicate SKU yields ErrAlreadyExists.
func (r *Repository) CreateProduct(ctx context.Context, p Product) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO products (sku, name, uom, purchase_price, selling_price, minimum_stock, rack_location, is_active, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW(),NOW()) RETURNING id`,
		p.SKU, p.Name, p.UOM, p.PurchasePrice, p.SellingPrice, p.MinimumStock, p.RackLocation, p.IsActive).Scan(&id)
	if err != nil {
		return 0, uniqueViolation(err)
	}
	return id, nil
}

// GetProduct fetches one product.
func (r *Repository) GetProduct(ctx context.Context, id int64) (Product, error) {
	return scanProduct(r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
}

// UpdateProduct applies a column/value patch.
func (r *Repository) UpdateProduct(ctx context.Context, id int64, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	sql := `UPDATE products SET updated_at = NOW()`
	args := []any{id}
	for col, val := range updates {
		args = append(args, val)
		sql += fmt.Sprintf(", %s = $%d", col, len(args))
	}
	sql += ` WHERE id = $1`
	tag, err := r.pool.Exec(ctx, sql, args...)
	if err != nil {
		return uniqueViolation(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: product", shared.ErrNotFound)
	}
	return nil
}

// ListProducts returns products matching the filter, name order.
func (r *Repository) ListProducts(ctx context.Context, filter ProductFilter) ([]Product, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `SELECT `+productColumns+` FROM products
WHERE ($1 = '' OR name ILIKE '%' || $1 || '%' OR sku ILIKE '%' || $1 || '%')
  AND (NOT $2 OR is_active)
ORDER BY name ASC, id ASC
LIMIT $3 OFFSET $4`, filter.Search, filter.ActiveOnly, limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

// CreateVariant inserts a variant for a product.
func (r *Repository) CreateVariant(ctx context.Context, v Variant) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO product_variants (product_id, sku, name, is_active)
VALUES ($1,$2,$3,$4) RETURNING id`, v.ProductID, v.SKU, v.Name, v.IsActive).Scan(&id)
	if err != nil {
		return 0, uniqueViolation(err)
	}
	return id, nil
}

// ListVariants returns variants of a product.
func (r *Repository) ListVariants(ctx context.Context, productID int64) ([]Variant, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, product_id, sku, name, is_active
FROM product_variants WHERE product_id = $1 ORDER BY id ASC`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []Variant{}
	for rows.Next() {
		var v Variant
		if err := rows.Scan(&v.ID, &v.ProductID, &v.SKU, &v.Name, &v.IsActive); err != nil {
			return nil, err
		}
		list = append(list, v)
	}
	return list, rows.Err()
}

// DeactivateVariant switches a variant off without deleting history.
func (r *Repository) DeactivateVariant(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE product_variants SET is_active = FALSE WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: variant", shared.ErrNotFound)
	}
	return nil
}
