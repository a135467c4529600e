package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"time"

	"github.com/hibiken/asynq"

	"github.com/gudang-erp/gudang-erp/internal/ledger"
)

// TaskStockReport builds the monthly stock mutation report.
const TaskStockReport = "report:stock-monthly"

// StockReportPayload carries scheduling metadata.
type StockReportPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewStockReportTask constructs an Asynq task for the monthly report.
func NewStockReportTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(StockReportPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStockReport, body, asynq.Queue(QueueDefault)), nil
}

// StockReportRow summarises one product's mutations within the report month.
type StockReportRow struct {
	ProductID int64 `json:"product_id"`
	Opening   int64 `json:"opening"`
	Inbound   int64 `json:"inbound"`
	Outbound  int64 `json:"outbound"`
	Adjusted  int64 `json:"adjusted"`
	Closing   int64 `json:"closing"`
}

// BuildStockReport aggregates movements into per-product rows. Movements at
// or after `from` and before `to` count as the month's mutations; earlier
// ones roll into the opening balance.
func BuildStockReport(movements []ledger.StockMovement, from, to time.Time) []StockReportRow {
	byProduct := map[int64]*StockReportRow{}
	rowFor := func(productID int64) *StockReportRow {
		row, ok := byProduct[productID]
		if !ok {
			row = &StockReportRow{ProductID: productID}
			byProduct[productID] = row
		}
		return row
	}

	for _, m := range movements {
		if !m.RecordedAt.Before(to) {
			continue
		}
		row := rowFor(m.ProductID)
		if m.RecordedAt.Before(from) {
			row.Opening += m.Quantity
			continue
		}
		switch m.Type {
		case ledger.MovementInbound:
			row.Inbound += m.Quantity
		case ledger.MovementOutbound:
			row.Outbound += m.Quantity
		default:
			row.Adjusted += m.Quantity
		}
	}

	rows := make([]StockReportRow, 0, len(byProduct))
	for _, row := range byProduct {
		row.Closing = row.Opening + row.Inbound + row.Outbound + row.Adjusted
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ProductID < rows[j].ProductID })
	return rows
}

// MovementLister reads ledger entries for reporting.
type MovementLister interface {
	ListMovements(ctx context.Context, filter ledger.MovementFilter) ([]ledger.StockMovement, error)
}

// StockReporter produces the monthly report from the ledger.
type StockReporter struct {
	lister MovementLister
	logger *slog.Logger
}

// NewStockReporter constructs a StockReporter.
func NewStockReporter(lister MovementLister, logger *slog.Logger) *StockReporter {
	return &StockReporter{lister: lister, logger: logger}
}

// Handle processes TaskStockReport tasks. The window is the calendar month
// before the scheduled time.
func (r *StockReporter) Handle(ctx context.Context, t *asynq.Task) error {
	var payload StockReportPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	at := payload.ScheduledFor
	if at.IsZero() {
		at = time.Now().UTC()
	}
	to := time.Date(at.Year(), at.Month(), 1, 0, 0, 0, 0, time.UTC)
	from := to.AddDate(0, -1, 0)

	movements, err := r.lister.ListMovements(ctx, ledger.MovementFilter{To: to, Limit: 100000})
	if err != nil {
		return err
	}
	rows := BuildStockReport(movements, from, to)

	r.logger.Info("monthly stock report",
		slog.Time("from", from),
		slog.Time("to", to),
		slog.Int("products", len(rows)),
	)
	for _, row := range rows {
		r.logger.Info("stock report row",
			slog.Int64("product_id", row.ProductID),
			slog.Int64("opening", row.Opening),
			slog.Int64("inbound", row.Inbound),
			slog.Int64("outbound", row.Outbound),
			slog.Int64("adjusted", row.Adjusted),
			slog.Int64("closing", row.Closing),
		)
	}
	return nil
}
