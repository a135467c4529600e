// Package ledger implements the append-only stock movement ledger. The sum
// of signed movement quantities is the single source of truth for current
// stock; nothing else in the system stores a stock figure.
package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MovementType enumerates supported stock movements.
type MovementType string

const (
	// MovementInbound represents goods received into the warehouse.
	MovementInbound MovementType = "inbound"
	// MovementOutbound represents goods shipped out of the warehouse.
	MovementOutbound MovementType = "outbound"
	// MovementAdjustmentPlus is a manual upward correction.
	MovementAdjustmentPlus MovementType = "adjustment_plus"
	// MovementAdjustmentMinus is a manual downward correction.
	MovementAdjustmentMinus MovementType = "adjustment_minus"
)

// Sign returns +1 or -1 for the movement direction, or 0 for an unknown type.
func (t MovementType) Sign() int64 {
	switch t {
	case MovementInbound, MovementAdjustmentPlus:
		return 1
	case MovementOutbound, MovementAdjustmentMinus:
		return -1
	default:
		return 0
	}
}

// StockMovement is an immutable ledger fact. Quantity is signed: positive
// for inbound/adjustment_plus, negative for outbound/adjustment_minus.
// Movements are written once at operation confirmation and never mutated.
type StockMovement struct {
	ID           int64        `json:"id"`
	ProductID    int64        `json:"product_id"`
	VariantID    *int64       `json:"variant_id,omitempty"`
	Quantity     int64        `json:"quantity"`
	Type         MovementType `json:"type"`
	OperationRef uuid.UUID    `json:"operation_ref"`
	Note         string       `json:"note,omitempty"`
	RecordedBy   int64        `json:"recorded_by"`
	RecordedAt   time.Time    `json:"recorded_at"`
}

// MovementInput describes one movement to record. Qty is a positive
// magnitude; the sign is derived from Type.
type MovementInput struct {
	ProductID int64
	VariantID *int64
	Qty       int64
	Type      MovementType
	Note      string
}

// AvailabilityRequest asks whether RequestedQty can be shipped.
type AvailabilityRequest struct {
	ProductID    int64  `json:"product_id" validate:"required,gt=0"`
	VariantID    *int64 `json:"variant_id,omitempty"`
	RequestedQty int64  `json:"requested_qty" validate:"required,gt=0"`
}

// Shortage reports one product that cannot cover the requested quantity.
type Shortage struct {
	ProductID int64  `json:"product_id"`
	VariantID *int64 `json:"variant_id,omitempty"`
	Required  int64  `json:"required"`
	Available int64  `json:"available"`
}

// AvailabilityResult carries every shortage at once so the caller can show
// the complete picture instead of failing item by item.
type AvailabilityResult struct {
	OK        bool       `json:"ok"`
	Shortages []Shortage `json:"shortages"`
}

// Policy controls whether outbound movements may drive stock negative.
// Manual adjustments always may; they are the explicit correction path.
type Policy struct {
	AllowNegativeStock bool
}

// MovementFilter narrows movement listings.
type MovementFilter struct {
	ProductID    int64
	VariantID    *int64
	OperationRef uuid.UUID
	From         time.Time
	To           time.Time
	Limit        int
}

// InsufficientStockError reports all shortages found while confirming an
// outbound operation.
type InsufficientStockError struct {
	Shortages []Shortage
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, 0, len(e.Shortages))
	for _, s := range e.Shortages {
		parts = append(parts, fmt.Sprintf("product %d requires %d, available %d", s.ProductID, s.Required, s.Available))
	}
	return "ledger: insufficient stock: " + strings.Join(parts, "; ")
}

// LedgerWriteError wraps a failure while recording a movement batch. The
// enclosing transaction rolls back, so no partial ledger entries survive.
type LedgerWriteError struct {
	OperationRef uuid.UUID
	Err          error
}

func (e *LedgerWriteError) Error() string {
	return fmt.Sprintf("ledger: write for operation %s failed: %v", e.OperationRef, e.Err)
}

func (e *LedgerWriteError) Unwrap() error {
	return e.Err
}
