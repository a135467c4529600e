package purchasing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/gudang-erp/gudang-erp/internal/ledger"
	"github.com/gudang-erp/gudang-erp/internal/orders"
	"github.com/gudang-erp/gudang-erp/internal/shared"
)

// Repository persists purchase orders, items, and receipts in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx runs the callback with a purchasing transaction view and a ledger
// transaction view over the same database transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository, ledger.TxRepository) error) error {
	if r == nil {
		return errors.New("purchasing repository not initialised")
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

const orderColumns = `id, doc_number, supplier_name, status, total, note, created_by, created_at, updated_at`

func scanOrder(row pgx.Row) (PurchaseOrder, error) {
	var o PurchaseOrder
	err := row.Scan(&o.ID, &o.DocNumber, &o.SupplierName, &o.Status, &o.Total, &o.Note, &o.CreatedBy, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return PurchaseOrder{}, fmt.Errorf("%w: purchase order", shared.ErrNotFound)
	}
	return o, err
}

// GetOrder fetches one order by id.
func (r *Repository) GetOrder(ctx context.Context, id int64) (PurchaseOrder, error) {
	return scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM purchase_orders WHERE id = $1`, id))
}

// ListOrders returns orders newest first.
func (r *Repository) ListOrders(ctx context.Context, filter OrderFilter) ([]PurchaseOrder, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `SELECT `+orderColumns+` FROM purchase_orders
WHERE ($1 = '' OR status = $1)
ORDER BY created_at DESC, id DESC
LIMIT $2 OFFSET $3`, string(filter.Status), limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []PurchaseOrder{}
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
	rows, err := r.pool.Query(ctx, `SELECT `+itemColumns+` FROM purchase_order_items
WHERE order_id = $1 AND ($2 OR deleted_at IS NULL)
ORDER BY id ASC`, orderID, includeDeleted)
	if err != nil {
		return nil, err
	}
	return scanItems(rows)
}

// ListReceipts returns receipts for an order with confirmation derived from
// the ledger.
func (r *Repository) ListReceipts(ctx context.Context, orderID int64) ([]Receipt, error) {
	rows, err := r.pool.Query(ctx, `SELECT rc.id, rc.order_id, rc.doc_number, rc.operation_ref, rc.note, rc.created_by, rc.created_at,
EXISTS (SELECT 1 FROM stock_movements m WHERE m.operation_ref = rc.operation_ref) AS confirmed,
(SELECT MIN(m.recorded_at) FROM stock_movements m WHERE m.operation_ref = rc.operation_ref) AS confirmed_at
FROM receipts rc WHERE rc.order_id = $1 ORDER BY rc.id ASC`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []Receipt{}
	for rows.Next() {
		var rc Receipt
		if err := rows.Scan(&rc.ID, &rc.OrderID, &rc.DocNumber, &rc.OperationRef, &rc.Note, &rc.CreatedBy, &rc.CreatedAt, &rc.Confirmed, &rc.ConfirmedAt); err != nil {
			return nil, err
		}
		list = append(list, rc)
	}
	return list, rows.Err()
}

// ListReceiptItems returns the lines of one receipt.
func (r *Repository) ListReceiptItems(ctx context.Context, receiptID int64) ([]ReceiptItem, error) {
	return listReceiptItems(ctx, r.pool, receiptID)
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) GetOrderForUpdate(ctx context.Context, id int64) (PurchaseOrder, error) {
	return scanOrder(r.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM purchase_orders WHERE id = $1 FOR UPDATE`, id))
}

func (r *txRepository) InsertOrder(ctx context.Context, o PurchaseOrder) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO purchase_orders (doc_number, supplier_name, status, total, note, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$7) RETURNING id`,
		o.DocNumber, o.SupplierName, string(o.Status), o.Total, o.Note, o.CreatedBy, o.CreatedAt).Scan(&id)
	if err != nil {
		return 0, duplicateDoc(err)
	}
	return id, nil
}

func (r *txRepository) UpdateOrder(ctx context.Context, id int64, status orders.Status, total decimal.Decimal) error {
	tag, err := r.tx.Exec(ctx, `UPDATE purchase_orders SET status = $2, total = $3, updated_at = NOW() WHERE id = $1`,
		id, string(status), total)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: purchase order", shared.ErrNotFound)
	}
	return nil
}

// NextOrderNumber issues the next document number for the month, e.g.
// PO-202608-0003.
func (r *txRepository) NextOrderNumber(ctx context.Context, at time.Time) (string, error) {
	return nextDocNumber(ctx, r.tx, "purchase_orders", "PO", at)
}

// NextReceiptNumber issues the next receipt document number, e.g.
// GR-202608-0001.
func (r *txRepository) NextReceiptNumber(ctx context.Context, at time.Time) (string, error) {
	return nextDocNumber(ctx, r.tx, "receipts", "GR", at)
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
	err := r.tx.QueryRow(ctx, `SELECT `+itemColumns+` FROM purchase_order_items WHERE id = $1`, id).
		Scan(&it.ID, &it.OrderID, &it.ProductID, &it.VariantID, &it.Quantity, &it.UnitPrice, &it.DeletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return OrderItem{}, fmt.Errorf("%w: order item", shared.ErrNotFound)
	}
	return it, err
}

func (r *txRepository) InsertItem(ctx context.Context, it OrderItem) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO purchase_order_items (order_id, product_id, variant_id, quantity, unit_price)
VALUES ($1,$2,$3,$4,$5) RETURNING id`, it.OrderID, it.ProductID, it.VariantID, it.Quantity, it.UnitPrice).Scan(&id)
	return id, err
}

func (r *txRepository) UpdateItem(ctx context.Context, id, quantity int64, unitPrice decimal.Decimal) error {
	_, err := r.tx.Exec(ctx, `UPDATE purchase_order_items SET quantity = $2, unit_price = $3 WHERE id = $1 AND deleted_at IS NULL`,
		id, quantity, unitPrice)
	return err
}

func (r *txRepository) SoftDeleteItem(ctx context.Context, id int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE purchase_order_items SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL`, id)
	return err
}

func (r *txRepository) RestoreItem(ctx context.Context, id int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE purchase_order_items SET deleted_at = NULL WHERE id = $1`, id)
	return err
}

func (r *txRepository) ListActiveItems(ctx context.Context, orderID int64) ([]OrderItem, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+itemColumns+` FROM purchase_order_items
WHERE order_id = $1 AND deleted_at IS NULL ORDER BY id ASC`, orderID)
	if err != nil {
		return nil, err
	}
	return scanItems(rows)
}

func (r *txRepository) InsertReceipt(ctx context.Context, rc Receipt) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO receipts (order_id, doc_number, operation_ref, note, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`, rc.OrderID, rc.DocNumber, rc.OperationRef, rc.Note, rc.CreatedBy, rc.CreatedAt).Scan(&id)
	if err != nil {
		return 0, duplicateDoc(err)
	}
	return id, nil
}

func (r *txRepository) InsertReceiptItem(ctx context.Context, it ReceiptItem) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO receipt_items (receipt_id, order_item_id, product_id, variant_id, quantity)
VALUES ($1,$2,$3,$4,$5) RETURNING id`, it.ReceiptID, it.OrderItemID, it.ProductID, it.VariantID, it.Quantity).Scan(&id)
	return id, err
}

func (r *txRepository) GetReceiptForUpdate(ctx context.Context, id int64) (Receipt, error) {
	var rc Receipt
	err := r.tx.QueryRow(ctx, `SELECT id, order_id, doc_number, operation_ref, note, created_by, created_at
FROM receipts WHERE id = $1 FOR UPDATE`, id).
		Scan(&rc.ID, &rc.OrderID, &rc.DocNumber, &rc.OperationRef, &rc.Note, &rc.CreatedBy, &rc.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Receipt{}, fmt.Errorf("%w: receipt", shared.ErrNotFound)
	}
	return rc, err
}

func (r *txRepository) ListReceiptItems(ctx context.Context, receiptID int64) ([]ReceiptItem, error) {
	return listReceiptItems(ctx, r.tx, receiptID)
}

// SumOrderedQuantity totals active item quantities for the order.
func (r *txRepository) SumOrderedQuantity(ctx context.Context, orderID int64) (int64, error) {
	var total int64
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(quantity), 0) FROM purchase_order_items
WHERE order_id = $1 AND deleted_at IS NULL`, orderID).Scan(&total)
	return total, err
}

// SumReceivedQuantity totals quantities across confirmed receipts only.
func (r *txRepository) SumReceivedQuantity(ctx context.Context, orderID int64) (int64, error) {
	var total int64
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(ri.quantity), 0)
FROM receipt_items ri
JOIN receipts rc ON rc.id = ri.receipt_id
WHERE rc.order_id = $1
  AND EXISTS (SELECT 1 FROM stock_movements m WHERE m.operation_ref = rc.operation_ref)`, orderID).Scan(&total)
	return total, err
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func listReceiptItems(ctx context.Context, q querier, receiptID int64) ([]ReceiptItem, error) {
	rows, err := q.Query(ctx, `SELECT id, receipt_id, order_item_id, product_id, variant_id, quantity
FROM receipt_items WHERE receipt_id = $1 ORDER BY id ASC`, receiptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []ReceiptItem{}
	for rows.Next() {
		var it ReceiptItem
		if err := rows.Scan(&it.ID, &it.ReceiptID, &it.OrderItemID, &it.ProductID, &it.VariantID, &it.Quantity); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}
