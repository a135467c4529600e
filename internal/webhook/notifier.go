// Package webhook bridges domain events to the external notification
// endpoint via the job queue.
package webhook

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/gudang-erp/gudang-erp/internal/sales"
	"github.com/gudang-erp/gudang-erp/jobs"
)

// Notifier implements sales.NotifierPort by enqueuing delivery jobs. The
// HTTP call itself happens in the worker, never in the request path.
type Notifier struct {
	client *jobs.Client
	url    string
	logger *slog.Logger
}

// NewNotifier constructs a Notifier. With an empty URL every event is
// silently dropped, which disables the integration.
func NewNotifier(client *jobs.Client, url string, logger *slog.Logger) *Notifier {
	return &Notifier{client: client, url: url, logger: logger}
}

// ItemCreated enqueues delivery of an item-created event.
func (n *Notifier) ItemCreated(ctx context.Context, event sales.ItemEvent) error {
	if n == nil || n.client == nil || n.url == "" {
		return nil
	}
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if _, err := n.client.EnqueueWebhookDeliver(ctx, jobs.WebhookDeliverPayload{URL: n.url, Body: body}); err != nil {
		n.logger.Warn("enqueue webhook delivery",
			slog.String("event", event.Event),
			slog.Int64("order_id", event.Data.OrderID),
			slog.Any("error", err),
		)
		return err
	}
	return nil
}
