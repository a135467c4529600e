// Package sales implements sales orders, their line items, and shipments.
// Shipping stock out goes through the ledger inside the same transaction
// that recomputes the order status.
package sales

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gudang-erp/gudang-erp/internal/orders"
)

// SalesOrder is an order placed by a customer. Total is a cached value
// recomputed from active items on every item mutation.
type SalesOrder struct {
	ID           int64           `json:"id"`
	DocNumber    string          `json:"doc_number"`
	CustomerName string          `json:"customer_name"`
	Status       orders.Status   `json:"status"`
	Total        decimal.Decimal `json:"total"`
	Note         string          `json:"note,omitempty"`
	CreatedBy    int64           `json:"created_by"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// OrderItem is one line of a sales order. Removal is a soft delete so the
// line can be restored while the order is still a draft.
type OrderItem struct {
	ID        int64           `json:"id"`
	OrderID   int64           `json:"order_id"`
	ProductID int64           `json:"product_id"`
	VariantID *int64          `json:"variant_id,omitempty"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	DeletedAt *time.Time      `json:"deleted_at,omitempty"`
}

// Subtotal is quantity × unit price.
func (i OrderItem) Subtotal() decimal.Decimal {
	return orders.Line{Quantity: i.Quantity, UnitPrice: i.UnitPrice}.Subtotal()
}

// Shipment is a delivery against a sales order. OperationRef ties it to the
// stock movements recorded at confirmation; Confirmed is derived from the
// ledger, never stored.
type Shipment struct {
	ID           int64      `json:"id"`
	OrderID      int64      `json:"order_id"`
	DocNumber    string     `json:"doc_number"`
	OperationRef uuid.UUID  `json:"operation_ref"`
	Confirmed    bool       `json:"confirmed"`
	Note         string     `json:"note,omitempty"`
	CreatedBy    int64      `json:"created_by"`
	CreatedAt    time.Time  `json:"created_at"`
	ConfirmedAt  *time.Time `json:"confirmed_at,omitempty"`
}

// ShipmentItem is the shipped quantity for one order item.
type ShipmentItem struct {
	ID          int64  `json:"id"`
	ShipmentID  int64  `json:"shipment_id"`
	OrderItemID int64  `json:"order_item_id"`
	ProductID   int64  `json:"product_id"`
	VariantID   *int64 `json:"variant_id,omitempty"`
	Quantity    int64  `json:"quantity"`
}

// ItemRequest describes one line on order creation or item addition.
type ItemRequest struct {
	ProductID int64  `json:"product_id" validate:"required,gt=0"`
	VariantID *int64 `json:"variant_id,omitempty"`
	Quantity  int64  `json:"quantity" validate:"required,gt=0"`
	UnitPrice string `json:"unit_price" validate:"required"`
}

// CreateOrderRequest creates a draft order, optionally with initial items.
type CreateOrderRequest struct {
	CustomerName string        `json:"customer_name" validate:"required,max=200"`
	Note         string        `json:"note" validate:"max=500"`
	Items        []ItemRequest `json:"items" validate:"dive"`
}

// UpdateItemRequest changes quantity and/or unit price of a draft item.
type UpdateItemRequest struct {
	Quantity  *int64  `json:"quantity,omitempty" validate:"omitempty,gt=0"`
	UnitPrice *string `json:"unit_price,omitempty"`
}

// ShipmentLineRequest is one line of a shipment.
type ShipmentLineRequest struct {
	OrderItemID int64 `json:"order_item_id" validate:"required,gt=0"`
	Quantity    int64 `json:"quantity" validate:"required,gt=0"`
}

// CreateShipmentRequest creates an unconfirmed shipment for an order.
type CreateShipmentRequest struct {
	Note  string                `json:"note" validate:"max=500"`
	Items []ShipmentLineRequest `json:"items" validate:"required,min=1,dive"`
}

// OrderFilter narrows order listings.
type OrderFilter struct {
	Status orders.Status
	Limit  int
	Offset int
}

// ItemEvent is the payload handed to the notifier when a line item is
// created. The webhook module serialises it for the external endpoint:
// an event/timestamp envelope around a data object.
type ItemEvent struct {
	Event     string        `json:"event"`
	Timestamp time.Time     `json:"timestamp"`
	Data      ItemEventData `json:"data"`
}

// ItemEventData carries the item details inside the event envelope.
type ItemEventData struct {
	OrderID   int64           `json:"order_id"`
	DocNumber string          `json:"doc_number"`
	ItemID    int64           `json:"item_id"`
	ProductID int64           `json:"product_id"`
	VariantID *int64          `json:"variant_id,omitempty"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}
