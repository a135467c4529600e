package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gudang-erp/gudang-erp/internal/shared"
)

// QuantityReader resolves the current derived stock for one product or
// variant. Both the pooled repository and its transactional wrapper satisfy
// it, so availability checks run advisory (pool) or enforcing (inside tx)
// with the same code.
type QuantityReader interface {
	SumQuantity(ctx context.Context, productID int64, variantID *int64) (int64, error)
}

// TxRepository exposes ledger operations inside a transaction.
type TxRepository interface {
	QuantityReader
	InsertMovement(ctx context.Context, movement StockMovement) (int64, error)
	HasMovements(ctx context.Context, operationRef uuid.UUID) (bool, error)
}

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	QuantityReader
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	HasMovements(ctx context.Context, operationRef uuid.UUID) (bool, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]StockMovement, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// SnapshotInvalidator drops cached stock figures after ledger writes.
// Satisfied by cache.StockSnapshot.
type SnapshotInvalidator interface {
	Invalidate(ctx context.Context, productIDs ...int64)
}

// ErrOperationConfirmed signals that movements already exist for the
// operation reference; the ledger never records a batch twice.
var ErrOperationConfirmed = errors.New("ledger: operation already confirmed")

// Service coordinates ledger reads and writes.
type Service struct {
	repo      RepositoryPort
	audit     AuditPort
	snapshots SnapshotInvalidator
	policy    Policy
}

// NewService builds Service. snapshots may be nil when no cache is wired.
func NewService(repo RepositoryPort, audit AuditPort, snapshots SnapshotInvalidator, policy Policy) *Service {
	return &Service{repo: repo, audit: audit, snapshots: snapshots, policy: policy}
}

// Policy returns the oversell policy the service enforces.
func (s *Service) Policy() Policy {
	return s.policy
}

// GetCurrentStock computes the signed sum of all movements for the product,
// optionally scoped to a variant. A product with no movements has stock 0.
func (s *Service) GetCurrentStock(ctx context.Context, productID int64, variantID *int64) (int64, error) {
	if productID <= 0 {
		return 0, fmt.Errorf("%w: product id required", shared.ErrValidation)
	}
	return s.repo.SumQuantity(ctx, productID, variantID)
}

// HasMovements reports whether an operation has been confirmed. Confirmation
// is derived from ledger rows, never stored as a flag that could drift.
func (s *Service) HasMovements(ctx context.Context, operationRef uuid.UUID) (bool, error) {
	if operationRef == uuid.Nil {
		return false, fmt.Errorf("%w: operation ref required", shared.ErrValidation)
	}
	return s.repo.HasMovements(ctx, operationRef)
}

// ListMovements returns ledger entries for reporting and document rendering.
func (s *Service) ListMovements(ctx context.Context, filter MovementFilter) ([]StockMovement, error) {
	return s.repo.ListMovements(ctx, filter)
}

// CheckAvailability compares requested outbound quantities against current
// stock. Advisory: the caller decides whether shortages block anything.
func (s *Service) CheckAvailability(ctx context.Context, requests []AvailabilityRequest) (AvailabilityResult, error) {
	return CheckAvailability(ctx, s.repo, requests)
}

// RecordMovements writes one movement per input atomically. Partial batches
// never survive: any validation or insert failure rolls the whole
// transaction back.
func (s *Service) RecordMovements(ctx context.Context, actor shared.Actor, operationRef uuid.UUID, inputs []MovementInput) ([]StockMovement, error) {
	var recorded []StockMovement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		recorded, err = PostMovements(ctx, tx, operationRef, actor.ID, inputs, s.policy)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.invalidateSnapshots(ctx, recorded)
	s.recordAudit(ctx, actor, "ledger:record", operationRef, map[string]any{"movements": len(recorded)})
	return recorded, nil
}

// AdjustmentInput describes a manual stock correction.
type AdjustmentInput struct {
	ProductID int64
	VariantID *int64
	Qty       int64
	Type      MovementType
	Note      string
}

// PostAdjustment records a single manual adjustment movement. Adjustments
// may drive stock negative regardless of the oversell policy.
func (s *Service) PostAdjustment(ctx context.Context, actor shared.Actor, input AdjustmentInput) (StockMovement, error) {
	if input.Type != MovementAdjustmentPlus && input.Type != MovementAdjustmentMinus {
		return StockMovement{}, fmt.Errorf("%w: adjustment type must be adjustment_plus or adjustment_minus", shared.ErrValidation)
	}
	operationRef := uuid.New()
	var recorded []StockMovement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		recorded, err = PostMovements(ctx, tx, operationRef, actor.ID, []MovementInput{{
			ProductID: input.ProductID,
			VariantID: input.VariantID,
			Qty:       input.Qty,
			Type:      input.Type,
			Note:      input.Note,
		}}, Policy{AllowNegativeStock: true})
		return err
	})
	if err != nil {
		return StockMovement{}, err
	}
	s.invalidateSnapshots(ctx, recorded)
	s.recordAudit(ctx, actor, "ledger:adjust", operationRef, map[string]any{
		"product_id": input.ProductID,
		"qty":        input.Qty,
		"type":       string(input.Type),
	})
	return recorded[0], nil
}

func (s *Service) invalidateSnapshots(ctx context.Context, movements []StockMovement) {
	if s.snapshots == nil || len(movements) == 0 {
		return
	}
	ids := make([]int64, 0, len(movements))
	for _, m := range movements {
		ids = append(ids, m.ProductID)
	}
	s.snapshots.Invalidate(ctx, ids...)
}

func (s *Service) recordAudit(ctx context.Context, actor shared.Actor, action string, ref uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.ID,
		Action:   action,
		Entity:   "stock_movement",
		EntityID: ref.String(),
		Meta:     meta,
	})
}

// stockKey scopes outbound demand accumulation. A nil variant maps to zero,
// which no real variant row carries.
type stockKey struct {
	productID int64
	variantID int64
}

func keyOf(input MovementInput) stockKey {
	key := stockKey{productID: input.ProductID}
	if input.VariantID != nil {
		key.variantID = *input.VariantID
	}
	return key
}

// PostMovements validates and inserts a movement batch inside the supplied
// transaction. It is shared by the ledger service and by the order modules,
// which post movements within their own confirmation transaction so ledger
// writes and status recompute commit or roll back together.
func PostMovements(ctx context.Context, tx TxRepository, operationRef uuid.UUID, actorID int64, inputs []MovementInput, policy Policy) ([]StockMovement, error) {
	if operationRef == uuid.Nil {
		return nil, &LedgerWriteError{OperationRef: operationRef, Err: errors.New("operation ref required")}
	}
	if len(inputs) == 0 {
		return nil, &LedgerWriteError{OperationRef: operationRef, Err: errors.New("at least one movement required")}
	}
	confirmed, err := tx.HasMovements(ctx, operationRef)
	if err != nil {
		return nil, &LedgerWriteError{OperationRef: operationRef, Err: err}
	}
	if confirmed {
		return nil, ErrOperationConfirmed
	}

	// Outbound demand is summed per product/variant before the check, so a
	// batch with several lines for the same product is measured against
	// current stock as a whole, not line by line.
	outbound := map[stockKey]int64{}
	for _, input := range inputs {
		if input.ProductID <= 0 {
			return nil, &LedgerWriteError{OperationRef: operationRef, Err: errors.New("product id required")}
		}
		if input.Qty <= 0 {
			return nil, &LedgerWriteError{OperationRef: operationRef, Err: fmt.Errorf("quantity must be positive, got %d", input.Qty)}
		}
		if input.Type.Sign() == 0 {
			return nil, &LedgerWriteError{OperationRef: operationRef, Err: fmt.Errorf("unknown movement type %q", input.Type)}
		}
		if input.Type == MovementOutbound && !policy.AllowNegativeStock {
			outbound[keyOf(input)] += input.Qty
		}
	}

	var shortages []Shortage
	checked := map[stockKey]bool{}
	for _, input := range inputs {
		if input.Type != MovementOutbound || policy.AllowNegativeStock {
			continue
		}
		key := keyOf(input)
		if checked[key] {
			continue
		}
		checked[key] = true
		available, err := tx.SumQuantity(ctx, input.ProductID, input.VariantID)
		if err != nil {
			return nil, &LedgerWriteError{OperationRef: operationRef, Err: err}
		}
		if available-outbound[key] < 0 {
			shortages = append(shortages, Shortage{
				ProductID: input.ProductID,
				VariantID: input.VariantID,
				Required:  outbound[key],
				Available: available,
			})
		}
	}
	if len(shortages) > 0 {
		return nil, &InsufficientStockError{Shortages: shortages}
	}

	now := time.Now().UTC()
	recorded := make([]StockMovement, 0, len(inputs))
	for _, input := range inputs {
		movement := StockMovement{
			ProductID:    input.ProductID,
			VariantID:    input.VariantID,
			Quantity:     input.Qty * input.Type.Sign(),
			Type:         input.Type,
			OperationRef: operationRef,
			Note:         input.Note,
			RecordedBy:   actorID,
			RecordedAt:   now,
		}
		id, err := tx.InsertMovement(ctx, movement)
		if err != nil {
			return nil, &LedgerWriteError{OperationRef: operationRef, Err: err}
		}
		movement.ID = id
		recorded = append(recorded, movement)
	}
	return recorded, nil
}
