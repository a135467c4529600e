package ledger

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/gudang-erp/gudang-erp/internal/shared"
)

func TestCheckAvailabilityReportsAllShortages(t *testing.T) {
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

	result, err := svc.CheckAvailability(ctx, []AvailabilityRequest{
		{ProductID: 1, RequestedQty: 5},
		{ProductID: 2, RequestedQty: 1},
	})
	require.NoError(t, err)
	require.False(t, result.OK)
	require.Len(t, result.Shortages, 2)
	require.Equal(t, Shortage{ProductID: 1, Required: 5, Available: -10}, result.Shortages[0])
	require.Equal(t, Shortage{ProductID: 2, Required: 1, Available: 0}, result.Shortages[1])
}

func TestCheckAvailabilityOK(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, Policy{})
	ctx := context.Background()

	_, err := svc.RecordMovements(ctx, shared.Actor{ID: 1}, uuid.New(), []MovementInput{
		{ProductID: 3, Qty: 12, Type: MovementInbound},
	})
	require.NoError(t, err)

	result, err := svc.CheckAvailability(ctx, []AvailabilityRequest{
		{ProductID: 3, RequestedQty: 12},
	})
	require.NoError(t, err)
	require.True(t, result.OK)
	require.Empty(t, result.Shortages)
}

func TestCheckAvailabilityValidatesInput(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, Policy{})

	_, err := svc.CheckAvailability(context.Background(), nil)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.CheckAvailability(context.Background(), []AvailabilityRequest{{ProductID: 0, RequestedQty: 1}})
	require.ErrorIs(t, err, shared.ErrValidation)
}
