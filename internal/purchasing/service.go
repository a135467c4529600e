package purchasing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gudang-erp/gudang-erp/internal/ledger"
	"github.com/gudang-erp/gudang-erp/internal/orders"
	"github.com/gudang-erp/gudang-erp/internal/shared"
)

// ErrNotDraft rejects item mutations once the order left draft.
var ErrNotDraft = errors.New("purchasing: order items can only change while the order is a draft")

// ErrNotAccepting rejects receipt operations when the order status does not
// admit receiving.
var ErrNotAccepting = errors.New("purchasing: order does not accept receipts in its current status")

// TxRepository exposes purchasing persistence inside a transaction.
type TxRepository interface {
	GetOrderForUpdate(ctx context.Context, id int64) (PurchaseOrder, error)
	InsertOrder(ctx context.Context, o PurchaseOrder) (int64, error)
	UpdateOrder(ctx context.Context, id int64, status orders.Status, total decimal.Decimal) error
	NextOrderNumber(ctx context.Context, at time.Time) (string, error)
	NextReceiptNumber(ctx context.Context, at time.Time) (string, error)
	GetItem(ctx context.Context, id int64) (OrderItem, error)
	InsertItem(ctx context.Context, it OrderItem) (int64, error)
	UpdateItem(ctx context.Context, id, quantity int64, unitPrice decimal.Decimal) error
	SoftDeleteItem(ctx context.Context, id int64) error
	RestoreItem(ctx context.Context, id int64) error
	ListActiveItems(ctx context.Context, orderID int64) ([]OrderItem, error)
	InsertReceipt(ctx context.Context, rc Receipt) (int64, error)
	InsertReceiptItem(ctx context.Context, it ReceiptItem) (int64, error)
	GetReceiptForUpdate(ctx context.Context, id int64) (Receipt, error)
	ListReceiptItems(ctx context.Context, receiptID int64) ([]ReceiptItem, error)
	SumOrderedQuantity(ctx context.Context, orderID int64) (int64, error)
	SumReceivedQuantity(ctx context.Context, orderID int64) (int64, error)
}

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository, ledger.TxRepository) error) error
	GetOrder(ctx context.Context, id int64) (PurchaseOrder, error)
	ListOrders(ctx context.Context, filter OrderFilter) ([]PurchaseOrder, error)
	ListItems(ctx context.Context, orderID int64, includeDeleted bool) ([]OrderItem, error)
	ListReceipts(ctx context.Context, orderID int64) ([]Receipt, error)
	ListReceiptItems(ctx context.Context, receiptID int64) ([]ReceiptItem, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service provides business logic for purchasing operations.
type Service struct {
	repo      RepositoryPort
	audit     AuditPort
	snapshots ledger.SnapshotInvalidator
}

// NewService constructs a purchasing service.
func NewService(repo RepositoryPort, audit AuditPort, snapshots ledger.SnapshotInvalidator) *Service {
	return &Service{repo: repo, audit: audit, snapshots: snapshots}
}

// CreateOrder creates a draft purchase order, optionally with initial items.
func (s *Service) CreateOrder(ctx context.Context, actor shared.Actor, req CreateOrderRequest) (*PurchaseOrder, []OrderItem, error) {
	parsed, err := parseItemRequests(req.Items)
	if err != nil {
		return nil, nil, err
	}

	now := time.Now().UTC()
	order := PurchaseOrder{
		SupplierName: req.SupplierName,
		Status:       orders.StatusDraft,
		Note:         req.Note,
		CreatedBy:    actor.ID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	items := make([]OrderItem, 0, len(parsed))

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository, _ ledger.TxRepository) error {
		docNumber, err := tx.NextOrderNumber(ctx, now)
		if err != nil {
			return fmt.Errorf("generate doc number: %w", err)
		}
		order.DocNumber = docNumber
		order.Total = totalOf(parsed)

		id, err := tx.InsertOrder(ctx, order)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		order.ID = id

		for _, it := range parsed {
			it.OrderID = id
			itemID, err := tx.InsertItem(ctx, it)
			if err != nil {
				return fmt.Errorf("insert item: %w", err)
			}
			it.ID = itemID
			items = append(items, it)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	s.recordAudit(ctx, actor, "purchasing:create", order.ID, map[string]any{"doc_number": order.DocNumber})
	return &order, items, nil
}

// GetOrder returns the order with its items.
func (s *Service) GetOrder(ctx context.Context, id int64, includeDeleted bool) (*PurchaseOrder, []OrderItem, error) {
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	items, err := s.repo.ListItems(ctx, id, includeDeleted)
	if err != nil {
		return nil, nil, err
	}
	return &order, items, nil
}

// ListOrders returns orders matching the filter.
func (s *Service) ListOrders(ctx context.Context, filter OrderFilter) ([]PurchaseOrder, error) {
	return s.repo.ListOrders(ctx, filter)
}

// AddItem appends a line to a draft order and recomputes the cached total.
func (s *Service) AddItem(ctx context.Context, actor shared.Actor, orderID int64, req ItemRequest) (*OrderItem, error) {
	item, err := parseItemRequest(req)
	if err != nil {
		return nil, err
	}
	item.OrderID = orderID

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository, _ ledger.TxRepository) error {
		order, err := s.draftForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		item.ID, err = tx.InsertItem(ctx, item)
		if err != nil {
			return fmt.Errorf("insert item: %w", err)
		}
		return s.recomputeTotal(ctx, tx, &order)
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actor, "purchasing:item-add", orderID, map[string]any{"item_id": item.ID, "product_id": item.ProductID})
	return &item, nil
}

// UpdateItem changes quantity or unit price of a draft item.
func (s *Service) UpdateItem(ctx context.Context, actor shared.Actor, itemID int64, req UpdateItemRequest) (*OrderItem, error) {
	var item OrderItem
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository, _ ledger.TxRepository) error {
		var err error
		item, err = tx.GetItem(ctx, itemID)
		if err != nil {
			return err
		}
		if item.DeletedAt != nil {
			return fmt.Errorf("%w: order item", shared.ErrNotFound)
		}
		order, err := s.draftForUpdate(ctx, tx, item.OrderID)
		if err != nil {
			return err
		}
		if req.Quantity != nil {
			item.Quantity = *req.Quantity
		}
		if req.UnitPrice != nil {
			price, err := decimal.NewFromString(*req.UnitPrice)
			if err != nil {
				return fmt.Errorf("%w: unit price: %v", shared.ErrValidation, err)
			}
			item.UnitPrice = price
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: quantity must be positive", shared.ErrValidation)
		}
		if err := tx.UpdateItem(ctx, item.ID, item.Quantity, item.UnitPrice); err != nil {
			return fmt.Errorf("update item: %w", err)
		}
		return s.recomputeTotal(ctx, tx, &order)
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actor, "purchasing:item-update", item.OrderID, map[string]any{"item_id": item.ID})
	return &item, nil
}

// RemoveItem soft-deletes a draft item.
func (s *Service) RemoveItem(ctx context.Context, actor shared.Actor, itemID int64) error {
	var orderID int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository, _ ledger.TxRepository) error {
		item, err := tx.GetItem(ctx, itemID)
		if err != nil {
			return err
		}
		if item.DeletedAt != nil {
			return fmt.Errorf("%w: order item", shared.ErrNotFound)
		}
		orderID = item.OrderID
		order, err := s.draftForUpdate(ctx, tx, item.OrderID)
		if err != nil {
			return err
		}
		if err := tx.SoftDeleteItem(ctx, item.ID); err != nil {
			return fmt.Errorf("delete item: %w", err)
		}
		return s.recomputeTotal(ctx, tx, &order)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actor, "purchasing:item-remove", orderID, map[string]any{"item_id": itemID})
	return nil
}

// RestoreItem undoes a soft delete while the order is still a draft.
func (s *Service) RestoreItem(ctx context.Context, actor shared.Actor, itemID int64) (*OrderItem, error) {
	var item OrderItem
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository, _ ledger.TxRepository) error {
		var err error
		item, err = tx.GetItem(ctx, itemID)
		if err != nil {
			return err
		}
		if item.DeletedAt == nil {
			return fmt.Errorf("%w: item is not deleted", shared.ErrValidation)
		}
		order, err := s.draftForUpdate(ctx, tx, item.OrderID)
		if err != nil {
			return err
		}
		if err := tx.RestoreItem(ctx, item.ID); err != nil {
			return fmt.Errorf("restore item: %w", err)
		}
		item.DeletedAt = nil
		return s.recomputeTotal(ctx, tx, &order)
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actor, "purchasing:item-restore", item.OrderID, map[string]any{"item_id": item.ID})
	return &item, nil
}

// Send releases a draft order to the supplier. An order without active items
// cannot be sent.
func (s *Service) Send(ctx context.Context, actor shared.Actor, orderID int64) (*PurchaseOrder, error) {
	return s.transition(ctx, actor, orderID, orders.Purchase.Released(), true)
}

// Cancel moves the order to cancelled. Movements already recorded stay in
// the ledger.
func (s *Service) Cancel(ctx context.Context, actor shared.Actor, orderID int64) (*PurchaseOrder, error) {
	return s.transition(ctx, actor, orderID, orders.StatusCancelled, false)
}

func (s *Service) transition(ctx context.Context, actor shared.Actor, orderID int64, target orders.Status, requireItems bool) (*PurchaseOrder, error) {
	var order PurchaseOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository, _ ledger.TxRepository) error {
		var err error
		order, err = tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if err := orders.Purchase.Transition(order.Status, target); err != nil {
			return err
		}
		if requireItems {
			ordered, err := tx.SumOrderedQuantity(ctx, orderID)
			if err != nil {
				return err
			}
			if ordered == 0 {
				return fmt.Errorf("%w: order has no items", shared.ErrValidation)
			}
		}
		order.Status = target
		return tx.UpdateOrder(ctx, orderID, order.Status, order.Total)
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actor, "purchasing:status", orderID, map[string]any{"status": string(target)})
	return &order, nil
}

// CreateReceipt registers an unconfirmed goods receipt against an accepting
// order. No stock moves until the receipt is confirmed.
func (s *Service) CreateReceipt(ctx context.Context, actor shared.Actor, orderID int64, req CreateReceiptRequest) (*Receipt, []ReceiptItem, error) {
	now := time.Now().UTC()
	receipt := Receipt{
		OrderID:      orderID,
		OperationRef: uuid.New(),
		Note:         req.Note,
		CreatedBy:    actor.ID,
		CreatedAt:    now,
	}
	items := make([]ReceiptItem, 0, len(req.Items))

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository, _ ledger.TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if !orders.Purchase.Accepting(order.Status) {
			return fmt.Errorf("%w: status %s", ErrNotAccepting, order.Status)
		}

		active, err := tx.ListActiveItems(ctx, orderID)
		if err != nil {
			return err
		}
		byID := make(map[int64]OrderItem, len(active))
		for _, it := range active {
			byID[it.ID] = it
		}

		receipt.DocNumber, err = tx.NextReceiptNumber(ctx, now)
		if err != nil {
			return fmt.Errorf("generate doc number: %w", err)
		}
		receipt.ID, err = tx.InsertReceipt(ctx, receipt)
		if err != nil {
			return fmt.Errorf("insert receipt: %w", err)
		}

		for _, line := range req.Items {
			orderItem, ok := byID[line.OrderItemID]
			if !ok {
				return fmt.Errorf("%w: order item %d does not belong to order %d", shared.ErrValidation, line.OrderItemID, orderID)
			}
			item := ReceiptItem{
				ReceiptID:   receipt.ID,
				OrderItemID: orderItem.ID,
				ProductID:   orderItem.ProductID,
				VariantID:   orderItem.VariantID,
				Quantity:    line.Quantity,
			}
			item.ID, err = tx.InsertReceiptItem(ctx, item)
			if err != nil {
				return fmt.Errorf("insert receipt item: %w", err)
			}
			items = append(items, item)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	s.recordAudit(ctx, actor, "purchasing:receipt-create", orderID, map[string]any{"receipt_id": receipt.ID})
	return &receipt, items, nil
}

// ConfirmReceipt records inbound ledger movements for the receipt and
// recomputes the order status in the same transaction. Confirming twice
// fails with ledger.ErrOperationConfirmed.
func (s *Service) ConfirmReceipt(ctx context.Context, actor shared.Actor, receiptID int64) (*PurchaseOrder, []ledger.StockMovement, error) {
	var (
		order     PurchaseOrder
		movements []ledger.StockMovement
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository, ltx ledger.TxRepository) error {
		receipt, err := tx.GetReceiptForUpdate(ctx, receiptID)
		if err != nil {
			return err
		}
		order, err = tx.GetOrderForUpdate(ctx, receipt.OrderID)
		if err != nil {
			return err
		}
		if !orders.Purchase.Accepting(order.Status) {
			return fmt.Errorf("%w: status %s", ErrNotAccepting, order.Status)
		}

		items, err := tx.ListReceiptItems(ctx, receiptID)
		if err != nil {
			return err
		}
		inputs := make([]ledger.MovementInput, 0, len(items))
		for _, it := range items {
			inputs = append(inputs, ledger.MovementInput{
				ProductID: it.ProductID,
				VariantID: it.VariantID,
				Qty:       it.Quantity,
				Type:      ledger.MovementInbound,
				Note:      receipt.DocNumber,
			})
		}

		movements, err = ledger.PostMovements(ctx, ltx, receipt.OperationRef, actor.ID, inputs, ledger.Policy{})
		if err != nil {
			return err
		}

		ordered, err := tx.SumOrderedQuantity(ctx, order.ID)
		if err != nil {
			return err
		}
		received, err := tx.SumReceivedQuantity(ctx, order.ID)
		if err != nil {
			return err
		}
		order.Status = orders.Purchase.ResolveFulfillment(order.Status, ordered, received)
		return tx.UpdateOrder(ctx, order.ID, order.Status, order.Total)
	})
	if err != nil {
		return nil, nil, err
	}
	if s.snapshots != nil {
		ids := make([]int64, 0, len(movements))
		for _, m := range movements {
			ids = append(ids, m.ProductID)
		}
		s.snapshots.Invalidate(ctx, ids...)
	}
	s.recordAudit(ctx, actor, "purchasing:receipt-confirm", order.ID, map[string]any{
		"receipt_id": receiptID,
		"status":     string(order.Status),
	})
	return &order, movements, nil
}

// ListReceipts returns receipts for an order.
func (s *Service) ListReceipts(ctx context.Context, orderID int64) ([]Receipt, error) {
	return s.repo.ListReceipts(ctx, orderID)
}

// RecalculateTotals recomputes the cached total from active items. A missing
// order is a no-op.
func (s *Service) RecalculateTotals(ctx context.Context, orderID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository, _ ledger.TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		return s.recomputeTotal(ctx, tx, &order)
	})
	if errors.Is(err, shared.ErrNotFound) {
		return nil
	}
	return err
}

func (s *Service) draftForUpdate(ctx context.Context, tx TxRepository, orderID int64) (PurchaseOrder, error) {
	order, err := tx.GetOrderForUpdate(ctx, orderID)
	if err != nil {
		return PurchaseOrder{}, err
	}
	if order.Status != orders.StatusDraft {
		return PurchaseOrder{}, fmt.Errorf("%w: status %s", ErrNotDraft, order.Status)
	}
	return order, nil
}

func (s *Service) recomputeTotal(ctx context.Context, tx TxRepository, order *PurchaseOrder) error {
	active, err := tx.ListActiveItems(ctx, order.ID)
	if err != nil {
		return err
	}
	order.Total = totalOf(active)
	return tx.UpdateOrder(ctx, order.ID, order.Status, order.Total)
}

func (s *Service) recordAudit(ctx context.Context, actor shared.Actor, action string, orderID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.ID,
		Action:   action,
		Entity:   "purchase_order",
		EntityID: fmt.Sprintf("%d", orderID),
		Meta:     meta,
	})
}

func totalOf(items []OrderItem) decimal.Decimal {
	lines := make([]orders.Line, 0, len(items))
	for _, it := range items {
		lines = append(lines, orders.Line{Quantity: it.Quantity, UnitPrice: it.UnitPrice})
	}
	return orders.Total(lines)
}

func parseItemRequest(req ItemRequest) (OrderItem, error) {
	price, err := decimal.NewFromString(req.UnitPrice)
	if err != nil {
		return OrderItem{}, fmt.Errorf("%w: unit price: %v", shared.ErrValidation, err)
	}
	if price.IsNegative() {
		return OrderItem{}, fmt.Errorf("%w: unit price must not be negative", shared.ErrValidation)
	}
	return OrderItem{
		ProductID: req.ProductID,
		VariantID: req.VariantID,
		Quantity:  req.Quantity,
		UnitPrice: price,
	}, nil
}

func parseItemRequests(reqs []ItemRequest) ([]OrderItem, error) {
	items := make([]OrderItem, 0, len(reqs))
	for _, r := range reqs {
		it, err := parseItemRequest(r)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, nil
}
