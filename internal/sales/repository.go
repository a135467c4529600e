package sales

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gudang-erp/gudang-erp/internal/ledger"
	"github.com/gudang-erp/gudang-erp/internal/orders"
	"github.com/gudang-erp/gudang-erp/internal/shared"
	"github.com/shopspring/decimal"
)

// Repository persists sales orders, items, and shipments in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx runs the callback with a sales transaction view and a ledger
// transaction view over the same database transaction, so movements, totals,
// and status all commit or roll back together.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository, ledger.TxRepository) error) error {
	if r == nil {
		return errors.New("sales repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	if err := fn(ctx, &txRepository{tx: tx}, ledger.NewTxRepository(tx)); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

const orderColumns = `id, doc_number, customer_name, status, total, note, created_by, created_at, updated_at`

func scanOrder(row pgx.Row) (SalesOrder, error) {
	var o SalesOrder
	err := row.Scan(&o.ID, &o.DocNumber, &o.CustomerName, &o.Status, &o.Total, &o.Note, &o.CreatedBy, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return SalesOrder{}, fmt.Errorf("%w: sales order", shared.ErrNotFound)
	}
	return o, err
}

// GetOrder fetches one order by id.
func (r *Repository) GetOrder(ctx context.Context, id int64) (SalesOrder, error) {
	return scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM sales_orders WHERE id = $1`, id))
}

// ListOrders returns orders newest first.
func (r *Repository) ListOrders(ctx context.Context, filter OrderFilter) ([]SalesOrder, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `SELECT `+orderColumns+` FROM sales_orders
WHERE ($1 = '' OR status = $1)
ORDER BY created_at DESC, id DESC
LIMIT $2 OFFSET $3`, string(filter.Status), limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []SalesOrder{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, o)
	}
	return list, rows.Err()
}

const itemColumns = `id, order_id, product_id, variant_id, quantity, unit_price, deleted_at`

func scanItems(rows pgx.Rows) ([]OrderItem, error) {
	defer rows.Close()
	items := []OrderItem{}
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.VariantID, &it.Quantity, &it.UnitPrice, &it.DeletedAt); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// ListItems returns items for an order, deleted ones included when asked.
func (r *Repository) ListItems(ctx context.Context, orderID int64, includeDeleted bool) ([]OrderItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+itemColumns+` FROM sales_order_items
WHERE order_id = $1 AND ($2 OR deleted_at IS NULL)
ORDER BY id ASC`, orderID, includeDeleted)
	if err != nil {
		return nil, err
	}
	return scanItems(rows)
}

// ListShipments returns shipments for an order with the confirmation flag
// derived from the ledger.
func (r *Repository) ListShipments(ctx context.Context, orderID int64) ([]Shipment, error) {
	rows, err := r.pool.Query(ctx, `SELECT s.id, s.order_id, s.doc_number, s.operation_ref, s.note, s.created_by, s.created_at,
EXISTS (SELECT 1 FROM stock_movements m WHERE m.operation_ref = s.operation_ref) AS confirmed,
(SELECT MIN(m.recorded_at) FROM stock_movements m WHERE m.operation_ref = s.operation_ref) AS confirmed_at
FROM shipments s WHERE s.order_id = $1 ORDER BY s.id ASC`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []Shipment{}
	for rows.Next() {
		var sh Shipment
		if err := rows.Scan(&sh.ID, &sh.OrderID, &sh.DocNumber, &sh.OperationRef, &sh.Note, &sh.CreatedBy, &sh.CreatedAt, &sh.Confirmed, &sh.ConfirmedAt); err != nil {
			return nil, err
		}
		list = append(list, sh)
	}
	return list, rows.Err()
}

// ListShipmentItems returns the lines of one shipment.
func (r *Repository) ListShipmentItems(ctx context.Context, shipmentID int64) ([]ShipmentItem, error) {
	return listShipmentItems(ctx, r.pool, shipmentID)
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) GetOrderForUpdate(ctx context.Context, id int64) (SalesOrder, error) {
	return scanOrder(r.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM sales_orders WHERE id = $1 FOR UPDATE`, id))
}

func (r *txRepository) InsertOrder(ctx context.Context, o SalesOrder) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO sales_orders (doc_number, customer_name, status, total, note, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$7) RETURNING id`,
		o.DocNumber, o.CustomerName, string(o.Status), o.Total, o.Note, o.CreatedBy, o.CreatedAt).Scan(&id)
	if err != nil {
		return 0, duplicateDoc(err)
	}
	return id, nil
}

func (r *txRepository) UpdateOrder(ctx context.Context, id int64, status orders.Status, total decimal.Decimal) error {
	tag, err := r.tx.Exec(ctx, `UPDATE sales_orders SET status = $2, total = $3, updated_at = NOW() WHERE id = $1`,
		id, string(status), total)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: sales order", shared.ErrNotFound)
	}
	return nil
}

// NextOrderNumber issues the next order document number for the month,
// e.g. SO-202608-0004. Runs inside the transaction so concurrent creates
// serialise on the count.
func (r *txRepository) NextOrderNumber(ctx context.Context, at time.Time) (string, error) {
	return nextDocNumber(ctx, r.tx, "sales_orders", "SO", at)
}

// NextShipmentNumber issues the next shipment document number, e.g.
// SH-202608-0002.
func (r *txRepository) NextShipmentNumber(ctx context.Context, at time.Time) (string, error) {
	return nextDocNumber(ctx, r.tx, "shipments", "SH", at)
}

func nextDocNumber(ctx context.Context, tx pgx.Tx, table, prefix string, at time.Time) (string, error) {
	stem := fmt.Sprintf("%s-%s-", prefix, at.Format("200601"))
	// Advisory lock on the month scope; without it two transactions could
	// count the same rows and both claim the same number.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, shared.DocNumberLockKey(table, stem)); err != nil {
		return "", err
	}
	var n int64
	err := tx.QueryRow(ctx, `SELECT COUNT(*) + 1 FROM `+table+` WHERE doc_number LIKE $1`, stem+"%").Scan(&n)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%04d", stem, n), nil
}

// duplicateDoc maps the Postgres duplicate-key error onto the shared
// sentinel so a doc-number collision does not surface as a 500.
func duplicateDoc(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: document number already issued", shared.ErrAlreadyExists)
	}
	return err
}

func (r *txRepository) GetItem(ctx context.Context, id int64) (OrderItem, error) {
	var it OrderItem
	err := r.tx.QueryRow(ctx, `SELECT `+itemColumns+` FROM sales_order_items WHERE id = $1`, id).
		Scan(&it.ID, &it.OrderID, &it.ProductID, &it.VariantID, &it.Quantity, &it.UnitPrice, &it.DeletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return OrderItem{}, fmt.Errorf("%w: order item", shared.ErrNotFound)
	}
	return it, err
}

func (r *txRepository) InsertItem(ctx context.Context, it OrderItem) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO sales_order_items (order_id, product_id, variant_id, quantity, unit_price)
VALUES ($1,$2,$3,$4,$5) RETURNING id`, it.OrderID, it.ProductID, it.VariantID, it.Quantity, it.UnitPrice).Scan(&id)
	return id, err
}

func (r *txRepository) UpdateItem(ctx context.Context, id, quantity int64, unitPrice decimal.Decimal) error {
	_, err := r.tx.Exec(ctx, `UPDATE sales_order_items SET quantity = $2, unit_price = $3 WHERE id = $1 AND deleted_at IS NULL`,
		id, quantity, unitPrice)
	return err
}

func (r *txRepository) SoftDeleteItem(ctx context.Context, id int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE sales_order_items SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL`, id)
	return err
}

func (r *txRepository) RestoreItem(ctx context.Context, id int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE sales_order_items SET deleted_at = NULL WHERE id = $1`, id)
	return err
}

func (r *txRepository) ListActiveItems(ctx context.Context, orderID int64) ([]OrderItem, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+itemColumns+` FROM sales_order_items
WHERE order_id = $1 AND deleted_at IS NULL ORDER BY id ASC`, orderID)
	if err != nil {
		return nil, err
	}
	return scanItems(rows)
}

func (r *txRepository) InsertShipment(ctx context.Context, sh Shipment) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO shipments (order_id, doc_number, operation_ref, note, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`, sh.OrderID, sh.DocNumber, sh.OperationRef, sh.Note, sh.CreatedBy, sh.CreatedAt).Scan(&id)
	if err != nil {
		return 0, duplicateDoc(err)
	}
	return id, nil
}

func (r *txRepository) InsertShipmentItem(ctx context.Context, it ShipmentItem) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO shipment_items (shipment_id, order_item_id, product_id, variant_id, quantity)
VALUES ($1,$2,$3,$4,$5) RETURNING id`, it.ShipmentID, it.OrderItemID, it.ProductID, it.VariantID, it.Quantity).Scan(&id)
	return id, err
}

func (r *txRepository) GetShipmentForUpdate(ctx context.Context, id int64) (Shipment, error) {
	var sh Shipment
	err := r.tx.QueryRow(ctx, `SELECT id, order_id, doc_number, operation_ref, note, created_by, created_at
FROM shipments WHERE id = $1 FOR UPDATE`, id).
		Scan(&sh.ID, &sh.OrderID, &sh.DocNumber, &sh.OperationRef, &sh.Note, &sh.CreatedBy, &sh.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Shipment{}, fmt.Errorf("%w: shipment", shared.ErrNotFound)
	}
	return sh, err
}

func (r *txRepository) ListShipmentItems(ctx context.Context, shipmentID int64) ([]ShipmentItem, error) {
	return listShipmentItems(ctx, r.tx, shipmentID)
}

// SumOrderedQuantity totals active item quantities for the order.
func (r *txRepository) SumOrderedQuantity(ctx context.Context, orderID int64) (int64, error) {
	var total int64
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(quantity), 0) FROM sales_order_items
WHERE order_id = $1 AND deleted_at IS NULL`, orderID).Scan(&total)
	return total, err
}

// SumFulfilledQuantity totals quantities across confirmed shipments only.
// Confirmation is the existence of ledger movements for the shipment's
// operation ref, so a shipment confirmed inside the current transaction
// already counts.
func (r *txRepository) SumFulfilledQuantity(ctx context.Context, orderID int64) (int64, error) {
	var total int64
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(si.quantity), 0)
FROM shipment_items si
JOIN shipments s ON s.id = si.shipment_id
WHERE s.order_id = $1
  AND EXISTS (SELECT 1 FROM stock_movements m WHERE m.operation_ref = s.operation_ref)`, orderID).Scan(&total)
	return total, err
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func listShipmentItems(ctx context.Context, q querier, shipmentID int64) ([]ShipmentItem, error) {
	rows, err := q.Query(ctx, `SELECT id, shipment_id, order_item_id, product_id, variant_id, quantity
FROM shipment_items WHERE shipment_id = $1 ORDER BY id ASC`, shipmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []ShipmentItem{}
	for rows.Next() {
		var it ShipmentItem
		if err := rows.Scan(&it.ID, &it.ShipmentID, &it.OrderItemID, &it.ProductID, &it.VariantID, &it.Quantity); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}
