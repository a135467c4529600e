package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists stock movements in PostgreSQL. Rows are insert-only;
// there is no update or delete path anywhere in this package.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("ledger repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	if err := fn(ctx, NewTxRepository(tx)); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// SumQuantity returns the signed quantity sum for a product, optionally
// scoped to a variant. Zero movements yields 0.
func (r *Repository) SumQuantity(ctx context.Context, productID int64, variantID *int64) (int64, error) {
	return sumQuantity(ctx, r.pool, productID, variantID)
}

// HasMovements reports whether any movement exists for the operation.
func (r *Repository) HasMovements(ctx context.Context, operationRef uuid.UUID) (bool, error) {
	return hasMovements(ctx, r.pool, operationRef)
}

// ListMovements returns ledger entries ordered oldest first.
func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]StockMovement, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT id, product_id, variant_id, quantity, movement_type, operation_ref, note, recorded_by, recorded_at
FROM stock_movements
WHERE ($1::bigint = 0 OR product_id = $1)
  AND ($2::bigint IS NULL OR variant_id = $2)
  AND ($3::uuid IS NULL OR operation_ref = $3)
  AND recorded_at BETWEEN COALESCE($4, '-infinity') AND COALESCE($5, 'infinity')
ORDER BY recorded_at ASC, id ASC
LIMIT $6`, filter.ProductID, filter.VariantID, nullUUID(filter.OperationRef), nullTime(filter.From), nullTime(filter.To), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	movements := []StockMovement{}
	for rows.Next() {
		var m StockMovement
		if err := rows.Scan(&m.ID, &m.ProductID, &m.VariantID, &m.Quantity, &m.Type, &m.OperationRef, &m.Note, &m.RecordedBy, &m.RecordedAt); err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return movements, nil
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository wraps an open transaction so other modules can post
// movements inside their own confirmation transaction.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

func (r *txRepository) InsertMovement(ctx context.Context, m StockMovement) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_movements (product_id, variant_id, quantity, movement_type, operation_ref, note, recorded_by, recorded_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id`, m.ProductID, m.VariantID, m.Quantity, string(m.Type), m.OperationRef, m.Note, m.RecordedBy, m.RecordedAt).Scan(&id)
	return id, err
}

func (r *txRepository) SumQuantity(ctx context.Context, productID int64, variantID *int64) (int64, error) {
	return sumQuantity(ctx, r.tx, productID, variantID)
}

func (r *txRepository) HasMovements(ctx context.Context, operationRef uuid.UUID) (bool, error) {
	return hasMovements(ctx, r.tx, operationRef)
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func sumQuantity(ctx context.Context, q querier, productID int64, variantID *int64) (int64, error) {
	var total int64
	err := q.QueryRow(ctx, `SELECT COALESCE(SUM(quantity), 0) FROM stock_movements
WHERE product_id = $1 AND ($2::bigint IS NULL OR variant_id = $2)`, productID, variantID).Scan(&total)
	return total, err
}

func hasMovements(ctx context.Context, q querier, operationRef uuid.UUID) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM stock_movements WHERE operation_ref = $1)`, operationRef).Scan(&exists)
	return exists, err
}

func nullUUID(id uuid.UUID) any {
	if id == uuid.Nil {
		return nil
	}
	return id
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
