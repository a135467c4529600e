package jobs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gudang-erp/gudang-erp/internal/ledger"
)

func mv(productID, qty int64, typ ledger.MovementType, at time.Time) ledger.StockMovement {
	return ledger.StockMovement{ProductID: productID, Quantity: qty, Type: typ, RecordedAt: at}
}

func TestBuildStockReportAggregatesPerProduct(t *testing.T) {
	from := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	movements := []ledger.StockMovement{
		// before the window, rolls into opening
		mv(1, 100, ledger.MovementInbound, from.AddDate(0, -2, 0)),
		mv(1, -30, ledger.MovementOutbound, from.AddDate(0, 0, -1)),
		// inside the window
		mv(1, 50, ledger.MovementInbound, from.AddDate(0, 0, 3)),
		mv(1, -20, ledger.MovementOutbound, from.AddDate(0, 0, 10)),
		mv(1, -5, ledger.MovementAdjustmentMinus, from.AddDate(0, 0, 15)),
		mv(2, 10, ledger.MovementInbound, from.AddDate(0, 0, 5)),
		// at or after `to`, ignored
		mv(1, 999, ledger.MovementInbound, to),
	}

	rows := BuildStockReport(movements, from, to)
	require.Len(t, rows, 2)

	require.Equal(t, StockReportRow{
		ProductID: 1,
		Opening:   70,
		Inbound:   50,
		Outbound:  -20,
		Adjusted:  -5,
		Closing:   95,
	}, rows[0])
	require.Equal(t, StockReportRow{
		ProductID: 2,
		Inbound:   10,
		Closing:   10,
	}, rows[1])
}

func TestBuildStockReportEmpty(t *testing.T) {
	from := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)
	require.Empty(t, BuildStockReport(nil, from, to))
}
