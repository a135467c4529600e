package ledger

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/gudang-erp/gudang-erp/internal/shared"
)

type memoryRepo struct {
	movements []StockMovement
	nextID    int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snapshot := make([]StockMovement, len(r.movements))
	copy(snapshot, r.movements)
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.movements = snapshot
		return err
	}
	return nil
}

func (r *memoryRepo) SumQuantity(ctx context.Context, productID int64, variantID *int64) (int64, error) {
	var total int64
	for _, m := range r.movements {
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

func (r *memoryRepo) HasMovements(ctx context.Context, ref uuid.UUID) (bool, error) {
	for _, m := range r.movements {
		if m.OperationRef == ref {
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryRepo) ListMovements(ctx context.Context, filter MovementFilter) ([]StockMovement, error) {
	result := []StockMovement{}
	for _, m := range r.movements {
		if filter.ProductID != 0 && m.ProductID != filter.ProductID {
			continue
		}
		if filter.OperationRef != uuid.Nil && m.OperationRef != filter.OperationRef {
			continue
		}
		result = append(result, m)
	}
	return result, nil
}

func (tx *memoryTx) InsertMovement(ctx context.Context, m StockMovement) (int64, error) {
	tx.repo.nextID++
	m.ID = tx.repo.nextID
	tx.repo.movements = append(tx.repo.movements, m)
	return m.ID, nil
}

func (tx *memoryTx) SumQuantity(ctx context.Context, productID int64, variantID *int64) (int64, error) {
	return tx.repo.SumQuantity(ctx, productID, variantID)
}

func (tx *memoryTx) HasMovements(ctx context.Context, ref uuid.UUID) (bool, error) {
	return tx.repo.HasMovements(ctx, ref)
}

func TestCurrentStockIsSignedSum(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, Policy{AllowNegativeStock: true})
	ctx := context.Background()
	actor := shared.Actor{ID: 1}

	_, err := svc.RecordMovements(ctx, actor, uuid.New(), []MovementInput{
		{ProductID: 1, Qty: 50, Type: MovementInbound},
	})
	require.NoError(t, err)
	_, err = svc.RecordMovements(ctx, actor, uuid.New(), []MovementInput{
		{ProductID: 1, Qty: 20, Type: MovementOutbound},
	})
	require.NoError(t, err)
	_, err = svc.RecordMovements(ctx, actor, uuid.New(), []MovementInput{
		{ProductID: 1, Qty: 40, Type: MovementOutbound},
	})
	require.NoError(t, err)

	qty, err := svc.GetCurrentStock(ctx, 1, nil)
	require.NoError(t, err)
	require.Equal(t, int64(-10), qty)
}

func TestCurrentStockWithoutMovementsIsZero(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, Policy{})

	qty, err := svc.GetCurrentStock(context.Background(), 99, nil)
	require.NoError(t, err)
	require.Equal(t, int64(0), qty)
}

func TestRecordMovementsIsAtomic(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, Policy{AllowNegativeStock: true})
	ctx := context.Background()
	actor := shared.Actor{ID: 1}

	_, err := svc.RecordMovements(ctx, actor, uuid.New(), []MovementInput{
		{ProductID: 1, Qty: 10, Type: MovementInbound},
		{ProductID: 2, Qty: 0, Type: MovementInbound},
	})
	var writeErr *LedgerWriteError
	require.ErrorAs(t, err, &writeErr)

	qty, err := svc.GetCurrentStock(ctx, 1, nil)
	require.NoError(t, err)
	require.Equal(t, int64(0), qty, "no partial batch may survive")
}

func TestRecordMovementsRejectsDoubleConfirmation(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, Policy{AllowNegativeStock: true})
	ctx := context.Background()
	actor := shared.Actor{ID: 1}
	ref := uuid.New()

	_, err := svc.RecordMovements(ctx, actor, ref, []MovementInput{
		{ProductID: 1, Qty: 10, Type: MovementInbound},
	})
	require.NoError(t, err)

	_, err = svc.RecordMovements(ctx, actor, ref, []MovementInput{
		{ProductID: 1, Qty: 10, Type: MovementInbound},
	})
	require.ErrorIs(t, err, ErrOperationConfirmed)
}

func TestOutboundShortagesReportedTogether(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, Policy{AllowNegativeStock: false})
	ctx := context.Background()
	actor := shared.Actor{ID: 1}

	_, err := svc.RecordMovements(ctx, actor, uuid.New(), []MovementInput{
		{ProductID: 1, Qty: 5, Type: MovementInbound},
	})
	require.NoError(t, err)

	_, err = svc.RecordMovements(ctx, actor, uuid.New(), []MovementInput{
		{ProductID: 1, Qty: 8, Type: MovementOutbound},
		{ProductID: 2, Qty: 3, Type: MovementOutbound},
	})
	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	require.Len(t, stockErr.Shortages, 2)
	require.Equal(t, Shortage{ProductID: 1, Required: 8, Available: 5}, stockErr.Shortages[0])
	require.Equal(t, Shortage{ProductID: 2, Required: 3, Available: 0}, stockErr.Shortages[1])
}

func TestOutboundBatchCountsCumulativeDemand(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, Policy{AllowNegativeStock: false})
	ctx := context.Background()
	actor := shared.Actor{ID: 1}

	_, err := svc.RecordMovements(ctx, actor, uuid.New(), []MovementInput{
		{ProductID: 1, Qty: 40, Type: MovementInbound},
	})
	require.NoError(t, err)

	// Each line alone fits, but together they would draw the product to -20.
	_, err = svc.RecordMovements(ctx, actor, uuid.New(), []MovementInput{
		{ProductID: 1, Qty: 30, Type: MovementOutbound},
		{ProductID: 1, Qty: 30, Type: MovementOutbound},
	})
	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	require.Len(t, stockErr.Shortages, 1)
	require.Equal(t, Shortage{ProductID: 1, Required: 60, Available: 40}, stockErr.Shortages[0])

	qty, err := svc.GetCurrentStock(ctx, 1, nil)
	require.NoError(t, err)
	require.Equal(t, int64(40), qty)
}

func TestOutboundBatchDemandScopedPerVariant(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, Policy{AllowNegativeStock: false})
	ctx := context.Background()
	actor := shared.Actor{ID: 1}
	variantA := int64(10)
	variantB := int64(11)

	_, err := svc.RecordMovements(ctx, actor, uuid.New(), []MovementInput{
		{ProductID: 1, VariantID: &variantA, Qty: 30, Type: MovementInbound},
		{ProductID: 1, VariantID: &variantB, Qty: 30, Type: MovementInbound},
	})
	require.NoError(t, err)

	// Two variants of the same product do not pool their demand.
	_, err = svc.RecordMovements(ctx, actor, uuid.New(), []MovementInput{
		{ProductID: 1, VariantID: &variantA, Qty: 25, Type: MovementOutbound},
		{ProductID: 1, VariantID: &variantB, Qty: 25, Type: MovementOutbound},
	})
	require.NoError(t, err)

	qty, err := svc.GetCurrentStock(ctx, 1, nil)
	require.NoError(t, err)
	require.Equal(t, int64(10), qty)
}

func TestAdjustmentMayDriveStockNegative(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, Policy{AllowNegativeStock: false})
	ctx := context.Background()
	actor := shared.Actor{ID: 2}

	movement, err := svc.PostAdjustment(ctx, actor, AdjustmentInput{
		ProductID: 1,
		Qty:       4,
		Type:      MovementAdjustmentMinus,
		Note:      "damaged in storage",
	})
	require.NoError(t, err)
	require.Equal(t, int64(-4), movement.Quantity)

	qty, err := svc.GetCurrentStock(ctx, 1, nil)
	require.NoError(t, err)
	require.Equal(t, int64(-4), qty)
}

func TestAdjustmentRejectsNonAdjustmentType(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, Policy{})

	_, err := svc.PostAdjustment(context.Background(), shared.Actor{ID: 1}, AdjustmentInput{
		ProductID: 1,
		Qty:       1,
		Type:      MovementInbound,
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestVariantScopedStock(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, Policy{AllowNegativeStock: true})
	ctx := context.Background()
	actor := shared.Actor{ID: 1}
	variantA := int64(10)
	variantB := int64(11)

	_, err := svc.RecordMovements(ctx, actor, uuid.New(), []MovementInput{
		{ProductID: 1, VariantID: &variantA, Qty: 7, Type: MovementInbound},
		{ProductID: 1, VariantID: &variantB, Qty: 3, Type: MovementInbound},
	})
	require.NoError(t, err)

	qty, err := svc.GetCurrentStock(ctx, 1, &variantA)
	require.NoError(t, err)
	require.Equal(t, int64(7), qty)

	qty, err = svc.GetCurrentStock(ctx, 1, nil)
	require.NoError(t, err)
	require.Equal(t, int64(10), qty)
}
