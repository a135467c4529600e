// Package jobs holds the Asynq task definitions, the worker, and the
// scheduled reports.
package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskWebhookDeliver posts an event payload to the configured webhook.
	TaskWebhookDeliver = "webhook:deliver"
)

// WebhookDeliverPayload carries the target URL and the serialized event.
type WebhookDeliverPayload struct {
	URL  string          `json:"url"`
	Body json.RawMessage `json:"body"`
}

// NewWebhookDeliverTask constructs an Asynq task for webhook delivery.
func NewWebhookDeliverTask(payload WebhookDeliverPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskWebhookDeliver, data, asynq.Queue(QueueDefault), asynq.MaxRetry(5)), nil
}

// WebhookDeliverer posts payloads to the external endpoint. The HTTP client
// carries a hard timeout so a slow receiver cannot stall a worker slot.
type WebhookDeliverer struct {
	client *http.Client
}

// NewWebhookDeliverer constructs a deliverer with a 5 second timeout.
func NewWebhookDeliverer() *WebhookDeliverer {
	return &WebhookDeliverer{client: &http.Client{Timeout: 5 * time.Second}}
}

// Handle processes TaskWebhookDeliver tasks. Non-2xx responses are returned
// as errors so Asynq retries with backoff.
func (d *WebhookDeliverer) Handle(ctx context.Context, t *asynq.Task) error {
	var payload WebhookDeliverPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.URL == "" {
		return asynq.SkipRetry
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, payload.URL, bytes.NewReader(payload.Body))
	if err != nil {
		return asynq.SkipRetry
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook deliver: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook deliver: endpoint answered %d", resp.StatusCode)
	}
	return nil
}

// Client submits jobs to the queue.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) *Client {
	return &Client{client: asynq.NewClient(redisOpts)}
}

// EnqueueWebhookDeliver enqueues a webhook delivery task.
func (c *Client) EnqueueWebhookDeliver(ctx context.Context, payload WebhookDeliverPayload) (*asynq.TaskInfo, error) {
	task, err := NewWebhookDeliverTask(payload)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task)
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}
