// Package purchasing implements purchase orders and goods receipts.
// Receiving stock goes through the ledger inside the same transaction that
// recomputes the order status.
package purchasing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gudang-erp/gudang-erp/internal/orders"
)

// PurchaseOrder is an order sent to a supplier. Total is a cached value
// recomputed from active items on every item mutation.
type PurchaseOrder struct {
	ID           int64           `json:"id"`
	DocNumber    string          `json:"doc_number"`
	SupplierName string          `json:"supplier_name"`
	Status       orders.Status   `json:"status"`
	Total        decimal.Decimal `json:"total"`
	Note         string          `json:"note,omitempty"`
	CreatedBy    int64           `json:"created_by"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// OrderItem is one line of a purchase order.
type OrderItem struct {
	ID        int64           `json:"id"`
	OrderID   int64           `json:"order_id"`
	ProductID int64           `json:"product_id"`
	VariantID *int64          `json:"variant_id,omitempty"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	DeletedAt *time.Time      `json:"deleted_at,omitempty"`
}

// Receipt is a goods receipt against a purchase order. OperationRef ties it
// to the stock movements recorded at confirmation; Confirmed is derived from
// the ledger.
type Receipt struct {
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

// ReceiptItem is the received quantity for one order item. Over-receipt is
// allowed; the status machine resolves it to completed.
type ReceiptItem struct {
	ID          int64  `json:"id"`
	ReceiptID   int64  `json:"receipt_id"`
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

// CreateOrderRequest creates a draft purchase order.
type CreateOrderRequest struct {
	SupplierName string        `json:"supplier_name" validate:"required,max=200"`
	Note         string        `json:"note" validate:"max=500"`
	Items        []ItemRequest `json:"items" validate:"dive"`
}

// UpdateItemRequest changes quantity and/or unit price of a draft item.
type UpdateItemRequest struct {
	Quantity  *int64  `json:"quantity,omitempty" validate:"omitempty,gt=0"`
	UnitPrice *string `json:"unit_price,omitempty"`
}

// ReceiptLineRequest is one line of a receipt.
type ReceiptLineRequest struct {
	OrderItemID int64 `json:"order_item_id" validate:"required,gt=0"`
	Quantity    int64 `json:"quantity" validate:"required,gt=0"`
}

// CreateReceiptRequest creates an unconfirmed receipt for an order.
type CreateReceiptRequest struct {
	Note  string               `json:"note" validate:"max=500"`
	Items []ReceiptLineRequest `json:"items" validate:"required,min=1,dive"`
}

// OrderFilter narrows order listings.
type OrderFilter struct {
	Status orders.Status
	Limit  int
	Offset int
}
