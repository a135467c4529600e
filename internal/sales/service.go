package sales

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
var ErrNotDraft = errors.New("sales: order items can only change while the order is a draft")

// ErrNotAccepting rejects shipment operations when the order status does not
// admit fulfillment.
var ErrNotAccepting = errors.New("sales: order does not accept shipments in its current status")

// TxRepository exposes sales persistence inside a transaction.
type TxRepository interface {
	GetOrderForUpdate(ctx context.Context, id int64) (SalesOrder, error)
	InsertOrder(ctx context.Context, o SalesOrder) (int64, error)
	UpdateOrder(ctx context.Context, id int64, status orders.Status, total decimal.Decimal) error
	NextOrderNumber(ctx context.Context, at time.Time) (string, error)
	NextShipmentNumber(ctx context.Context, at time.Time) (string, error)
	GetItem(ctx context.Context, id int64) (OrderItem, error)
	InsertItem(ctx context.Context, it OrderItem) (int64, error)
	UpdateItem(ctx context.Context, id, quantity int64, unitPrice decimal.Decimal) error
	SoftDeleteItem(ctx context.Context, id int64) error
	RestoreItem(ctx context.Context, id int64) error
	ListActiveItems(ctx context.Context, orderID int64) ([]OrderItem, error)
	InsertShipment(ctx context.Context, sh Shipment) (int64, error)
	InsertShipmentItem(ctx context.Context, it ShipmentItem) (int64, error)
	GetShipmentForUpdate(ctx context.Context, id int64) (Shipment, error)
	ListShipmentItems(ctx context.Context, shipmentID int64) ([]ShipmentItem, error)
	SumOrderedQuantity(ctx context.Context, orderID int64) (int64, error)
	SumFulfilledQuantity(ctx context.Context, orderID int64) (int64, error)
}

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository, ledger.TxRepository) error) error
	GetOrder(ctx context.Context, id int64) (SalesOrder, error)
	ListOrders(ctx context.Context, filter OrderFilter) ([]SalesOrder, error)
	ListItems(ctx context.Context, orderID int64, includeDeleted bool) ([]OrderItem, error)
	ListShipments(ctx context.Context, orderID int64) ([]Shipment, error)
	ListShipmentItems(ctx context.Context, shipmentID int64) ([]ShipmentItem, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// NotifierPort delivers item-created events to the external webhook. Called
// after commit; delivery failures never fail the command.
type NotifierPort interface {
	ItemCreated(ctx context.Context, event ItemEvent) error
}

// Service provides business logic for sales operations.
type Service struct {
	repo      RepositoryPort
	audit     AuditPort
	notifier  NotifierPort
	snapshots ledger.SnapshotInvalidator
	policy    ledger.Policy
}

// NewService constructs a sales service.
func NewService(repo RepositoryPort, audit AuditPort, notifier NotifierPort, snapshots ledger.SnapshotInvalidator, policy ledger.Policy) *Service {
	return &Service{repo: repo, audit: audit, notifier: notifier, snapshots: snapshots, policy: policy}
}

// CreateOrder creates a draft order, optionally with initial items. Total is
// computed from the items before the first write.
func (s *Service) CreateOrder(ctx context.Context, actor shared.Actor, req CreateOrderRequest) (*SalesOrder, []OrderItem, error) {
	parsed, err := parseItemRequests(req.Items)
	if err != nil {
		return nil, nil, err
	}

	now := time.Now().UTC()
	order := SalesOrder{
		CustomerName: req.CustomerName,
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

	s.recordAudit(ctx, actor, "sales:create", order.ID, map[string]any{"doc_number": order.DocNumber})
	for _, it := range items {
		s.notifyItemCreated(ctx, order, it)
	}
	return &order, items, nil
}

// GetOrder returns the order with its items.
func (s *Service) GetOrder(ctx context.Context, id int64, includeDeleted bool) (*SalesOrder, []OrderItem, error) {
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
func (s *Service) ListOrders(ctx context.Context, filter OrderFilter) ([]SalesOrder, error) {
	return s.repo.ListOrders(ctx, filter)
}

// AddItem appends a line to a draft order and recomputes the cached total in
// the same transaction.
func (s *Service) AddItem(ctx context.Context, actor shared.Actor, orderID int64, req ItemRequest) (*OrderItem, error) {
	item, err := parseItemRequest(req)
	if err != nil {
		return nil, err
	}
	item.OrderID = orderID

	var order SalesOrder
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository, _ ledger.TxRepository) error {
		var err error
		order, err = s.draftForUpdate(ctx, tx, orderID)
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

	s.recordAudit(ctx, actor, "sales:item-add", orderID, map[string]any{"item_id": item.ID, "product_id": item.ProductID})
	s.notifyItemCreated(ctx, order, item)
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
	s.recordAudit(ctx, actor, "sales:item-update", item.OrderID, map[string]any{"item_id": item.ID})
	return &item, nil
}

// RemoveItem soft-deletes a draft item so it can be restored later.
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
	s.recordAudit(ctx, actor, "sales:item-remove", orderID, map[string]any{"item_id": itemID})
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
	s.recordAudit(ctx, actor, "sales:item-restore", item.OrderID, map[string]any{"item_id": item.ID})
	return &item, nil
}

// Approve releases a draft order for fulfillment. An order without active
// items cannot be approved.
func (s *Service) Approve(ctx context.Context, actor shared.Actor, orderID int64) (*SalesOrder, error) {
	return s.transition(ctx, actor, orderID, orders.Sales.Released(), true)
}

// Cancel moves the order to cancelled. Stock movements already recorded stay
// in the ledger; a correction is a manual adjustment, not a rollback.
func (s *Service) Cancel(ctx context.Context, actor shared.Actor, orderID int64) (*SalesOrder, error) {
	return s.transition(ctx, actor, orderID, orders.StatusCancelled, false)
}

func (s *Service) transition(ctx context.Context, actor shared.Actor, orderID int64, target orders.Status, requireItems bool) (*SalesOrder, error) {
	var order SalesOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository, _ ledger.TxRepository) error {
		var err error
		order, err = tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if err := orders.Sales.Transition(order.Status, target); err != nil {
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
	s.recordAudit(ctx, actor, "sales:status", orderID, map[string]any{"status": string(target)})
	return &order, nil
}

// CreateShipment registers an unconfirmed shipment against an accepting
// order. No stock moves until the shipment is confirmed.
func (s *Service) CreateShipment(ctx context.Context, actor shared.Actor, orderID int64, req CreateShipmentRequest) (*Shipment, []ShipmentItem, error) {
	now := time.Now().UTC()
	shipment := Shipment{
		OrderID:      orderID,
		OperationRef: uuid.New(),
		Note:         req.Note,
		CreatedBy:    actor.ID,
		CreatedAt:    now,
	}
	items := make([]ShipmentItem, 0, len(req.Items))

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository, _ ledger.TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if !orders.Sales.Accepting(order.Status) {
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

		shipment.DocNumber, err = tx.NextShipmentNumber(ctx, now)
		if err != nil {
			return fmt.Errorf("generate doc number: %w", err)
		}
		shipment.ID, err = tx.InsertShipment(ctx, shipment)
		if err != nil {
			return fmt.Errorf("insert shipment: %w", err)
		}

		for _, line := range req.Items {
			orderItem, ok := byID[line.OrderItemID]
			if !ok {
				return fmt.Errorf("%w: order item %d does not belong to order %d", shared.ErrValidation, line.OrderItemID, orderID)
			}
			item := ShipmentItem{
				ShipmentID:  shipment.ID,
				OrderItemID: orderItem.ID,
				ProductID:   orderItem.ProductID,
				VariantID:   orderItem.VariantID,
				Quantity:    line.Quantity,
			}
			item.ID, err = tx.InsertShipmentItem(ctx, item)
			if err != nil {
				return fmt.Errorf("insert shipment item: %w", err)
			}
			items = append(items, item)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	s.recordAudit(ctx, actor, "sales:shipment-create", orderID, map[string]any{"shipment_id": shipment.ID})
	return &shipment, items, nil
}

// ConfirmShipment records outbound ledger movements for the shipment and
// recomputes the order status, all in one transaction. Confirming twice
// fails with ledger.ErrOperationConfirmed; shortages surface as
// ledger.InsufficientStockError with every shortage listed.
func (s *Service) ConfirmShipment(ctx context.Context, actor shared.Actor, shipmentID int64) (*SalesOrder, []ledger.StockMovement, error) {
	var (
		order     SalesOrder
		movements []ledger.StockMovement
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository, ltx ledger.TxRepository) error {
		shipment, err := tx.GetShipmentForUpdate(ctx, shipmentID)
		if err != nil {
			return err
		}
		order, err = tx.GetOrderForUpdate(ctx, shipment.OrderID)
		if err != nil {
			return err
		}
		if !orders.Sales.Accepting(order.Status) {
			return fmt.Errorf("%w: status %s", ErrNotAccepting, order.Status)
		}

		items, err := tx.ListShipmentItems(ctx, shipmentID)
		if err != nil {
			return err
		}
		inputs := make([]ledger.MovementInput, 0, len(items))
		for _, it := range items {
			inputs = append(inputs, ledger.MovementInput{
				ProductID: it.ProductID,
				VariantID: it.VariantID,
				Qty:       it.Quantity,
				Type:      ledger.MovementOutbound,
				Note:      shipment.DocNumber,
			})
		}

		movements, err = ledger.PostMovements(ctx, ltx, shipment.OperationRef, actor.ID, inputs, s.policy)
		if err != nil {
			return err
		}

		ordered, err := tx.SumOrderedQuantity(ctx, order.ID)
		if err != nil {
			return err
		}
		fulfilled, err := tx.SumFulfilledQuantity(ctx, order.ID)
		if err != nil {
			return err
		}
		order.Status = orders.Sales.ResolveFulfillment(order.Status, ordered, fulfilled)
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
	s.recordAudit(ctx, actor, "sales:shipment-confirm", order.ID, map[string]any{
		"shipment_id": shipmentID,
		"status":      string(order.Status),
	})
	return &order, movements, nil
}

// ListShipments returns shipments for an order.
func (s *Service) ListShipments(ctx context.Context, orderID int64) ([]Shipment, error) {
	return s.repo.ListShipments(ctx, orderID)
}

// RecalculateTotals recomputes the cached total from active items. A missing
// order is a no-op so repair jobs can sweep id ranges safely.
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

func (s *Service) draftForUpdate(ctx context.Context, tx TxRepository, orderID int64) (SalesOrder, error) {
	order, err := tx.GetOrderForUpdate(ctx, orderID)
	if err != nil {
		return SalesOrder{}, err
	}
	if order.Status != orders.StatusDraft {
		return SalesOrder{}, fmt.Errorf("%w: status %s", ErrNotDraft, order.Status)
	}
	return order, nil
}

func (s *Service) recomputeTotal(ctx context.Context, tx TxRepository, order *SalesOrder) error {
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
		Entity:   "sales_order",
		EntityID: fmt.Sprintf("%d", orderID),
		Meta:     meta,
	})
}

func (s *Service) notifyItemCreated(ctx context.Context, order SalesOrder, item OrderItem) {
	if s.notifier == nil {
		return
	}
	_ = s.notifier.ItemCreated(ctx, ItemEvent{
		Event:     "sales_order.item_created",
		Timestamp: time.Now().UTC(),
		Data: ItemEventData{
			OrderID:   order.ID,
			DocNumber: order.DocNumber,
			ItemID:    item.ID,
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Subtotal:  item.Subtotal(),
		},
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
