package jobs

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

func TestWebhookDeliverPostsPayload(t *testing.T) {
	var received []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		received, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	body, err := json.Marshal(map[string]any{
		"event": "sales_order.item_created",
		"data":  map[string]any{"order_id": 12},
	})
	require.NoError(t, err)
	task, err := NewWebhookDeliverTask(WebhookDeliverPayload{URL: srv.URL, Body: body})
	require.NoError(t, err)

	deliverer := NewWebhookDeliverer()
	require.NoError(t, deliverer.Handle(context.Background(), task))
	require.JSONEq(t, string(body), string(received))
}

func TestWebhookDeliverFailsOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	task, err := NewWebhookDeliverTask(WebhookDeliverPayload{URL: srv.URL, Body: []byte(`{}`)})
	require.NoError(t, err)

	deliverer := NewWebhookDeliverer()
	require.Error(t, deliverer.Handle(context.Background(), task))
}

func TestWebhookDeliverSkipsInvalidPayload(t *testing.T) {
	deliverer := NewWebhookDeliverer()

	err := deliverer.Handle(context.Background(), asynq.NewTask(TaskWebhookDeliver, []byte("not json")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	task, err := NewWebhookDeliverTask(WebhookDeliverPayload{URL: "", Body: []byte(`{}`)})
	require.NoError(t, err)
	require.ErrorIs(t, deliverer.Handle(context.Background(), task), asynq.SkipRetry)
}
