package sales

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/gudang-erp/gudang-erp/internal/ledger"
	"github.com/gudang-erp/gudang-erp/internal/orders"
	"github.com/gudang-erp/gudang-erp/internal/shared"
)

type memoryState struct {
	orders        map[int64]SalesOrder
	items         map[int64]OrderItem
	shipments     map[int64]Shipment
	shipmentItems map[int64]ShipmentItem
	movements     []ledger.StockMovement
	nextID        int64
}

func (s *memoryState) clone() *memoryState {
	c := &memoryState{
		orders:        make(map[int64]SalesOrder, len(s.orders)),
		items:         make(map[int64]OrderItem, len(s.items)),
		shipments:     make(map[int64]Shipment, len(s.shipments)),
		shipmentItems: make(map[int64]ShipmentItem, len(s.shipmentItems)),
		movements:     append([]ledger.StockMovement{}, s.movements...),
		nextID:        s.nextID,
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.items {
		c.items[k] = v
	}
	for k, v := range s.shipments {
		c.shipments[k] = v
	}
	for k, v := range s.shipmentItems {
		c.shipmentItems[k] = v
	}
	return c
}

func (s *memoryState) next() int64 {
	s.nextID++
	return s.nextID
}

// memoryRepo implements RepositoryPort. WithTx works on a copy of the state
// and publishes it only on success, mimicking transaction rollback.
type memoryRepo struct {
	state *memoryState
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{state: &memoryState{
		orders:        map[int64]SalesOrder{},
		items:         map[int64]OrderItem{},
		shipments:     map[int64]Shipment{},
		shipmentItems: map[int64]ShipmentItem{},
	}}
}

func (r *memoryRepo) seedStock(productID, qty int64) {
	r.state.movements = append(r.state.movements, ledger.StockMovement{
		ID:           r.state.next(),
		ProductID:    productID,
		Quantity:     qty,
		Type:         ledger.MovementInbound,
		OperationRef: uuid.New(),
	})
}

func (r *memoryRepo) stock(productID int64) int64 {
	var total int64
	for _, m := range r.state.movements {
		if m.ProductID == productID {
			total += m.Quantity
		}
	}
	return total
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository, ledger.TxRepository) error) error {
	work := r.state.clone()
	if err := fn(ctx, &memoryTx{state: work}, &memoryLedgerTx{state: work}); err != nil {
		return err
	}
	r.state = work
	return nil
}

func (r *memoryRepo) GetOrder(ctx context.Context, id int64) (SalesOrder, error) {
	o, ok := r.state.orders[id]
	if !ok {
		return SalesOrder{}, fmt.Errorf("%w: sales order", shared.ErrNotFound)
	}
	return o, nil
}

func (r *memoryRepo) ListOrders(ctx context.Context, filter OrderFilter) ([]SalesOrder, error) {
	list := []SalesOrder{}
	for _, o := range r.state.orders {
		if filter.Status == "" || o.Status == filter.Status {
			list = append(list, o)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

func (r *memoryRepo) ListItems(ctx context.Context, orderID int64, includeDeleted bool) ([]OrderItem, error) {
	list := []OrderItem{}
	for _, it := range r.state.items {
		if it.OrderID == orderID && (includeDeleted || it.DeletedAt == nil) {
			list = append(list, it)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

func (r *memoryRepo) ListShipments(ctx context.Context, orderID int64) ([]Shipment, error) {
	list := []Shipment{}
	for _, sh := range r.state.shipments {
		if sh.OrderID == orderID {
			sh.Confirmed = hasMovements(r.state, sh.OperationRef)
			list = append(list, sh)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

func (r *memoryRepo) ListShipmentItems(ctx context.Context, shipmentID int64) ([]ShipmentItem, error) {
	return (&memoryTx{state: r.state}).ListShipmentItems(ctx, shipmentID)
}

func hasMovements(state *memoryState, ref uuid.UUID) bool {
	for _, m := range state.movements {
		if m.OperationRef == ref {
			return true
		}
	}
	return false
}

type memoryTx struct {
	state *memoryState
}

func (t *memoryTx) GetOrderForUpdate(ctx context.Context, id int64) (SalesOrder, error) {
	o, ok := t.state.orders[id]
	if !ok {
		return SalesOrder{}, fmt.Errorf("%w: sales order", shared.ErrNotFound)
	}
	return o, nil
}

func (t *memoryTx) InsertOrder(ctx context.Context, o SalesOrder) (int64, error) {
	o.ID = t.state.next()
	t.state.orders[o.ID] = o
	return o.ID, nil
}

func (t *memoryTx) UpdateOrder(ctx context.Context, id int64, status orders.Status, total decimal.Decimal) error {
	o, ok := t.state.orders[id]
	if !ok {
		return fmt.Errorf("%w: sales order", shared.ErrNotFound)
	}
	o.Status = status
	o.Total = total
	t.state.orders[id] = o
	return nil
}

func (t *memoryTx) NextOrderNumber(ctx context.Context, at time.Time) (string, error) {
	return fmt.Sprintf("SO-%s-%04d", at.Format("200601"), len(t.state.orders)+1), nil
}

func (t *memoryTx) NextShipmentNumber(ctx context.Context, at time.Time) (string, error) {
	return fmt.Sprintf("SH-%s-%04d", at.Format("200601"), len(t.state.shipments)+1), nil
}

func (t *memoryTx) GetItem(ctx context.Context, id int64) (OrderItem, error) {
	it, ok := t.state.items[id]
	if !ok {
		return OrderItem{}, fmt.Errorf("%w: order item", shared.ErrNotFound)
	}
	return it, nil
}

func (t *memoryTx) InsertItem(ctx context.Context, it OrderItem) (int64, error) {
	it.ID = t.state.next()
	t.state.items[it.ID] = it
	return it.ID, nil
}

func (t *memoryTx) UpdateItem(ctx context.Context, id, quantity int64, unitPrice decimal.Decimal) error {
	it, ok := t.state.items[id]
	if !ok || it.DeletedAt != nil {
		return nil
	}
	it.Quantity = quantity
	it.UnitPrice = unitPrice
	t.state.items[id] = it
	return nil
}

func (t *memoryTx) SoftDeleteItem(ctx context.Context, id int64) error {
	it, ok := t.state.items[id]
	if !ok || it.DeletedAt != nil {
		return nil
	}
	now := time.Now().UTC()
	it.DeletedAt = &now
	t.state.items[id] = it
	return nil
}

func (t *memoryTx) RestoreItem(ctx context.Context, id int64) error {
	it, ok := t.state.items[id]
	if !ok {
		return nil
	}
	it.DeletedAt = nil
	t.state.items[id] = it
	return nil
}

func (t *memoryTx) ListActiveItems(ctx context.Context, orderID int64) ([]OrderItem, error) {
	list := []OrderItem{}
	for _, it := range t.state.items {
		if it.OrderID == orderID && it.DeletedAt == nil {
			list = append(list, it)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

func (t *memoryTx) InsertShipment(ctx context.Context, sh Shipment) (int64, error) {
	sh.ID = t.state.next()
	t.state.shipments[sh.ID] = sh
	return sh.ID, nil
}

func (t *memoryTx) InsertShipmentItem(ctx context.Context, it ShipmentItem) (int64, error) {
	it.ID = t.state.next()
	t.state.shipmentItems[it.ID] = it
	return it.ID, nil
}

func (t *memoryTx) GetShipmentForUpdate(ctx context.Context, id int64) (Shipment, error) {
	sh, ok := t.state.shipments[id]
	if !ok {
		return Shipment{}, fmt.Errorf("%w: shipment", shared.ErrNotFound)
	}
	return sh, nil
}

func (t *memoryTx) ListShipmentItems(ctx context.Context, shipmentID int64) ([]ShipmentItem, error) {
	list := []ShipmentItem{}
	for _, it := range t.state.shipmentItems {
		if it.ShipmentID == shipmentID {
			list = append(list, it)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

func (t *memoryTx) SumOrderedQuantity(ctx context.Context, orderID int64) (int64, error) {
	var total int64
	for _, it := range t.state.items {
		if it.OrderID == orderID && it.DeletedAt == nil {
			total += it.Quantity
		}
	}
	return total, nil
}

func (t *memoryTx) SumFulfilledQuantity(ctx context.Context, orderID int64) (int64, error) {
	var total int64
	for _, si := range t.state.shipmentItems {
		sh, ok := t.state.shipments[si.ShipmentID]
		if !ok || sh.OrderID != orderID {
			continue
		}
		if hasMovements(t.state, sh.OperationRef) {
			total += si.Quantity
		}
	}
	return total, nil
}

type memoryLedgerTx struct {
	state *memoryState
}

func (t *memoryLedgerTx) SumQuantity(ctx context.Context, productID int64, variantID *int64) (int64, error) {
	var total int64
	for _, m := range t.state.movements {
		if m.ProductID != productID {
			continue
		}
		if variantID != nil && (m.VariantID == nil || *m.VariantID != *variantID) {
			continue
		}
		total += m.Quantity
	}
	return total, nil
}

func (t *memoryLedgerTx) InsertMovement(ctx context.Context, m ledger.StockMovement) (int64, error) {
	m.ID = t.state.next()
	t.state.movements = append(t.state.movements, m)
	return m.ID, nil
}

func (t *memoryLedgerTx) HasMovements(ctx context.Context, ref uuid.UUID) (bool, error) {
	return hasMovements(t.state, ref), nil
}

type memoryNotifier struct {
	events []ItemEvent
}

func (n *memoryNotifier) ItemCreated(ctx context.Context, event ItemEvent) error {
	n.events = append(n.events, event)
	return nil
}

func newTestService(repo *memoryRepo) (*Service, *memoryNotifier) {
	notifier := &memoryNotifier{}
	svc := NewService(repo, nil, notifier, nil, ledger.Policy{})
	return svc, notifier
}

var actor = shared.Actor{ID: 7, Name: "admin"}

func TestCreateOrderComputesTotal(t *testing.T) {
	repo := newMemoryRepo()
	svc, notifier := newTestService(repo)

	order, items, err := svc.CreateOrder(context.Background(), actor, CreateOrderRequest{
		CustomerName: "PT Maju",
		Items: []ItemRequest{
			{ProductID: 1, Quantity: 10, UnitPrice: "100"},
			{ProductID: 2, Quantity: 5, UnitPrice: "50"},
		},
	})
	require.NoError(t, err)
	require.Equal(t, orders.StatusDraft, order.Status)
	require.True(t, order.Total.Equal(decimal.NewFromInt(1250)))
	require.Len(t, items, 2)
	require.Len(t, notifier.events, 2)
	require.Equal(t, "sales_order.item_created", notifier.events[0].Event)
	require.Equal(t, order.ID, notifier.events[0].Data.OrderID)
	require.True(t, notifier.events[0].Data.Subtotal.Equal(decimal.NewFromInt(1000)))
}

func TestItemEventSerialisesEnvelope(t *testing.T) {
	event := ItemEvent{
		Event:     "sales_order.item_created",
		Timestamp: time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC),
		Data: ItemEventData{
			OrderID:   12,
			DocNumber: "SO-202608-0001",
			ItemID:    3,
			ProductID: 1,
			Quantity:  10,
			UnitPrice: decimal.NewFromInt(100),
			Subtotal:  decimal.NewFromInt(1000),
		},
	}
	body, err := json.Marshal(event)
	require.NoError(t, err)
	require.JSONEq(t, `{
		"event": "sales_order.item_created",
		"timestamp": "2026-08-28T10:00:00Z",
		"data": {
			"order_id": 12,
			"doc_number": "SO-202608-0001",
			"item_id": 3,
			"product_id": 1,
			"quantity": 10,
			"unit_price": "100",
			"subtotal": "1000"
		}
	}`, string(body))
}

func TestAddItemRecomputesTotal(t *testing.T) {
	repo := newMemoryRepo()
	svc, notifier := newTestService(repo)
	ctx := context.Background()

	order, _, err := svc.CreateOrder(ctx, actor, CreateOrderRequest{CustomerName: "PT Maju"})
	require.NoError(t, err)
	require.True(t, order.Total.Equal(decimal.Zero))

	_, err = svc.AddItem(ctx, actor, order.ID, ItemRequest{ProductID: 1, Quantity: 3, UnitPrice: "19.99"})
	require.NoError(t, err)

	got, _, err := svc.GetOrder(ctx, order.ID, false)
	require.NoError(t, err)
	require.True(t, got.Total.Equal(decimal.RequireFromString("59.97")))
	require.Len(t, notifier.events, 1)
}

func TestItemEditsRequireDraft(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)
	ctx := context.Background()

	order, items, err := svc.CreateOrder(ctx, actor, CreateOrderRequest{
		CustomerName: "PT Maju",
		Items:        []ItemRequest{{ProductID: 1, Quantity: 2, UnitPrice: "10"}},
	})
	require.NoError(t, err)
	_, err = svc.Approve(ctx, actor, order.ID)
	require.NoError(t, err)

	_, err = svc.AddItem(ctx, actor, order.ID, ItemRequest{ProductID: 2, Quantity: 1, UnitPrice: "5"})
	require.ErrorIs(t, err, ErrNotDraft)

	_, err = svc.UpdateItem(ctx, actor, items[0].ID, UpdateItemRequest{Quantity: ptr(int64(9))})
	require.ErrorIs(t, err, ErrNotDraft)

	require.ErrorIs(t, svc.RemoveItem(ctx, actor, items[0].ID), ErrNotDraft)
}

func TestRemoveAndRestoreItem(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)
	ctx := context.Background()

	order, items, err := svc.CreateOrder(ctx, actor, CreateOrderRequest{
		CustomerName: "PT Maju",
		Items: []ItemRequest{
			{ProductID: 1, Quantity: 10, UnitPrice: "100"},
			{ProductID: 2, Quantity: 5, UnitPrice: "50"},
		},
	})
	require.NoError(t, err)

	require.NoError(t, svc.RemoveItem(ctx, actor, items[1].ID))
	got, active, err := svc.GetOrder(ctx, order.ID, false)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.True(t, got.Total.Equal(decimal.NewFromInt(1000)))

	_, err = svc.RestoreItem(ctx, actor, items[1].ID)
	require.NoError(t, err)
	got, active, err = svc.GetOrder(ctx, order.ID, false)
	require.NoError(t, err)
	require.Len(t, active, 2)
	require.True(t, got.Total.Equal(decimal.NewFromInt(1250)))
}

func TestApproveRequiresItems(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)
	ctx := context.Background()

	order, _, err := svc.CreateOrder(ctx, actor, CreateOrderRequest{CustomerName: "PT Maju"})
	require.NoError(t, err)

	_, err = svc.Approve(ctx, actor, order.ID)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCancelledOrderRejectsApprove(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)
	ctx := context.Background()

	order, _, err := svc.CreateOrder(ctx, actor, CreateOrderRequest{
		CustomerName: "PT Maju",
		Items:        []ItemRequest{{ProductID: 1, Quantity: 1, UnitPrice: "10"}},
	})
	require.NoError(t, err)
	_, err = svc.Cancel(ctx, actor, order.ID)
	require.NoError(t, err)

	_, err = svc.Approve(ctx, actor, order.ID)
	var transitionErr *orders.InvalidStatusTransitionError
	require.ErrorAs(t, err, &transitionErr)
	require.Equal(t, orders.StatusCancelled, transitionErr.Current)
	require.Equal(t, orders.StatusApproved, transitionErr.Target)
}

func shippedOrder(t *testing.T, svc *Service, repo *memoryRepo, qty int64) (*SalesOrder, []OrderItem) {
	t.Helper()
	order, items, err := svc.CreateOrder(context.Background(), actor, CreateOrderRequest{
		CustomerName: "PT Maju",
		Items:        []ItemRequest{{ProductID: 1, Quantity: qty, UnitPrice: "100"}},
	})
	require.NoError(t, err)
	_, err = svc.Approve(context.Background(), actor, order.ID)
	require.NoError(t, err)
	return order, items
}

func TestConfirmShipmentMovesStockAndStatus(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)
	ctx := context.Background()
	repo.seedStock(1, 200)

	order, items := shippedOrder(t, svc, repo, 100)

	first, _, err := svc.CreateShipment(ctx, actor, order.ID, CreateShipmentRequest{
		Items: []ShipmentLineRequest{{OrderItemID: items[0].ID, Quantity: 40}},
	})
	require.NoError(t, err)

	got, movements, err := svc.ConfirmShipment(ctx, actor, first.ID)
	require.NoError(t, err)
	require.Equal(t, orders.StatusPartiallyFulfilled, got.Status)
	require.Len(t, movements, 1)
	require.Equal(t, int64(-40), movements[0].Quantity)
	require.Equal(t, int64(160), repo.stock(1))

	second, _, err := svc.CreateShipment(ctx, actor, order.ID, CreateShipmentRequest{
		Items: []ShipmentLineRequest{{OrderItemID: items[0].ID, Quantity: 60}},
	})
	require.NoError(t, err)

	got, _, err = svc.ConfirmShipment(ctx, actor, second.ID)
	require.NoError(t, err)
	require.Equal(t, orders.StatusCompleted, got.Status)
	require.Equal(t, int64(100), repo.stock(1))
}

func TestConfirmShipmentTwiceFails(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)
	ctx := context.Background()
	repo.seedStock(1, 200)

	order, items := shippedOrder(t, svc, repo, 100)
	shipment, _, err := svc.CreateShipment(ctx, actor, order.ID, CreateShipmentRequest{
		Items: []ShipmentLineRequest{{OrderItemID: items[0].ID, Quantity: 40}},
	})
	require.NoError(t, err)

	_, _, err = svc.ConfirmShipment(ctx, actor, shipment.ID)
	require.NoError(t, err)

	_, _, err = svc.ConfirmShipment(ctx, actor, shipment.ID)
	require.ErrorIs(t, err, ledger.ErrOperationConfirmed)
	require.Equal(t, int64(160), repo.stock(1))
}

func TestConfirmShipmentReportsShortageAndRollsBack(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)
	ctx := context.Background()
	repo.seedStock(1, 10)

	order, items := shippedOrder(t, svc, repo, 100)
	shipment, _, err := svc.CreateShipment(ctx, actor, order.ID, CreateShipmentRequest{
		Items: []ShipmentLineRequest{{OrderItemID: items[0].ID, Quantity: 40}},
	})
	require.NoError(t, err)

	_, _, err = svc.ConfirmShipment(ctx, actor, shipment.ID)
	var stockErr *ledger.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	require.Len(t, stockErr.Shortages, 1)
	require.Equal(t, ledger.Shortage{ProductID: 1, Required: 40, Available: 10}, stockErr.Shortages[0])

	// nothing committed
	require.Equal(t, int64(10), repo.stock(1))
	got, _, err := svc.GetOrder(ctx, order.ID, false)
	require.NoError(t, err)
	require.Equal(t, orders.StatusApproved, got.Status)
}

func TestCancelDoesNotReverseMovements(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)
	ctx := context.Background()
	repo.seedStock(1, 200)

	order, items := shippedOrder(t, svc, repo, 100)
	shipment, _, err := svc.CreateShipment(ctx, actor, order.ID, CreateShipmentRequest{
		Items: []ShipmentLineRequest{{OrderItemID: items[0].ID, Quantity: 40}},
	})
	require.NoError(t, err)
	_, _, err = svc.ConfirmShipment(ctx, actor, shipment.ID)
	require.NoError(t, err)

	got, err := svc.Cancel(ctx, actor, order.ID)
	require.NoError(t, err)
	require.Equal(t, orders.StatusCancelled, got.Status)
	require.Equal(t, int64(160), repo.stock(1))
}

func TestShipmentRequiresAcceptingStatus(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)
	ctx := context.Background()

	order, items, err := svc.CreateOrder(ctx, actor, CreateOrderRequest{
		CustomerName: "PT Maju",
		Items:        []ItemRequest{{ProductID: 1, Quantity: 5, UnitPrice: "10"}},
	})
	require.NoError(t, err)

	_, _, err = svc.CreateShipment(ctx, actor, order.ID, CreateShipmentRequest{
		Items: []ShipmentLineRequest{{OrderItemID: items[0].ID, Quantity: 5}},
	})
	require.ErrorIs(t, err, ErrNotAccepting)
}

func TestRecalculateTotalsMissingOrderIsNoop(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)

	require.NoError(t, svc.RecalculateTotals(context.Background(), 999))
}

func ptr[T any](v T) *T { return &v }
