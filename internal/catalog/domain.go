// Package catalog manages products and variants, and exposes stock listings
// derived from the ledger.
package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a sellable or purchasable good. It never stores a stock
// quantity; stock is always derived from the movement ledger.
type Product struct {
	ID            int64           `json:"id"`
	SKU           string          `json:"sku"`
	Name          string          `json:"name"`
	UOM           string          `json:"uom"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	SellingPrice  decimal.Decimal `json:"selling_price"`
	MinimumStock  int64           `json:"minimum_stock"`
	RackLocation  string          `json:"rack_location,omitempty"`
	IsActive      bool            `json:"is_active"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Variant is a sub-item of a product, e.g. a size or colour.
type Variant struct {
	ID        int64  `json:"id"`
	ProductID int64  `json:"product_id"`
	SKU       string `json:"sku"`
	Name      string `json:"name"`
	IsActive  bool   `json:"is_active"`
}

// CreateProductRequest creates a product.
type CreateProductRequest struct {
	SKU           string `json:"sku" validate:"required,max=64"`
	Name          string `json:"name" validate:"required,max=200"`
	UOM           string `json:"uom" validate:"required,max=20"`
	PurchasePrice string `json:"purchase_price" validate:"required"`
	SellingPrice  string `json:"selling_price" validate:"required"`
	MinimumStock  int64  `json:"minimum_stock" validate:"gte=0"`
	RackLocation  string `json:"rack_location" validate:"max=50"`
}

// UpdateProductRequest patches product fields.
type UpdateProductRequest struct {
	Name          *string `json:"name,omitempty" validate:"omitempty,max=200"`
	UOM           *string `json:"uom,omitempty" validate:"omitempty,max=20"`
	PurchasePrice *string `json:"purchase_price,omitempty"`
	SellingPrice  *string `json:"selling_price,omitempty"`
	MinimumStock  *int64  `json:"minimum_stock,omitempty" validate:"omitempty,gte=0"`
	RackLocation  *string `json:"rack_location,omitempty" validate:"omitempty,max=50"`
	IsActive      *bool   `json:"is_active,omitempty"`
}

// CreateVariantRequest adds a variant to a product.
type CreateVariantRequest struct {
	SKU  string `json:"sku" validate:"required,max=64"`
	Name string `json:"name" validate:"required,max=200"`
}

// ProductFilter narrows product listings.
type ProductFilter struct {
	Search     string
	ActiveOnly bool
	Limit      int
	Offset     int
}

// StockRow is one line of the stock listing screen. Quantity comes from the
// ledger, possibly via a short-lived cache snapshot.
type StockRow struct {
	Product  Product `json:"product"`
	Quantity int64   `json:"quantity"`
	LowStock bool    `json:"low_stock"`
}
