package sales

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/gudang-erp/gudang-erp/internal/ledger"
	"github.com/gudang-erp/gudang-erp/internal/orders"
	"github.com/gudang-erp/gudang-erp/internal/platform/httpx"
	"github.com/gudang-erp/gudang-erp/internal/shared"
)

// Handler wires HTTP endpoints for sales orders and shipments.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs sales handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers sales routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/orders", h.createOrder)
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{orderID}", h.getOrder)
	r.Post("/orders/{orderID}/items", h.addItem)
	r.Post("/orders/{orderID}/approve", h.approve)
	r.Post("/orders/{orderID}/cancel", h.cancel)
	r.Post("/orders/{orderID}/recalculate", h.recalculateTotals)
	r.Post("/orders/{orderID}/shipments", h.createShipment)
	r.Get("/orders/{orderID}/shipments", h.listShipments)
	r.Patch("/items/{itemID}", h.updateItem)
	r.Delete("/items/{itemID}", h.removeItem)
	r.Post("/items/{itemID}/restore", h.restoreItem)
	r.Post("/shipments/{shipmentID}/confirm", h.confirmShipment)
}

// respondError translates sales and ledger errors into problem responses.
func respondError(w http.ResponseWriter, err error) {
	var (
		stockErr      *ledger.InsufficientStockError
		writeErr      *ledger.LedgerWriteError
		transitionErr *orders.InvalidStatusTransitionError
	)
	switch {
	case errors.As(err, &stockErr):
		httpx.ProblemExtra(w, http.StatusUnprocessableEntity, "Insufficient Stock", stockErr.Error(),
			map[string]any{"shortages": stockErr.Shortages})
	case errors.As(err, &transitionErr):
		httpx.ProblemExtra(w, http.StatusUnprocessableEntity, "Invalid Status Transition", transitionErr.Error(),
			map[string]any{"current": transitionErr.Current, "target": transitionErr.Target})
	case errors.Is(err, ledger.ErrOperationConfirmed):
		httpx.Problem(w, http.StatusConflict, "Already Confirmed", err.Error())
	case errors.Is(err, ErrNotDraft), errors.Is(err, ErrNotAccepting):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.As(err, &writeErr):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Ledger Write Failed", writeErr.Error())
	default:
		httpx.RespondError(w, err)
	}
}

func idParam(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	order, items, err := h.service.CreateOrder(r.Context(), shared.ActorFromRequest(r), req)
	if err != nil {
		h.logger.Error("create sales order", slog.Any("error", err))
		respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"order": order, "items": items})
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	filter := OrderFilter{Status: orders.Status(r.URL.Query().Get("status"))}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Limit", "limit must be a non-negative integer")
			return
		}
		filter.Limit = limit
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Offset", "offset must be a non-negative integer")
			return
		}
		filter.Offset = offset
	}
	list, err := h.service.ListOrders(r.Context(), filter)
	if err != nil {
		h.logger.Error("list sales orders", slog.Any("error", err))
		respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"orders": list})
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := idParam(r, "orderID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Order", "order id must be a positive integer")
		return
	}
	includeDeleted := r.URL.Query().Get("include_deleted") == "true"
	order, items, err := h.service.GetOrder(r.Context(), orderID, includeDeleted)
	if err != nil {
		respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"order": order, "items": items})
}

func (h *Handler) recalculateTotals(w http.ResponseWriter, r *http.Request) {
	orderID, ok := idParam(r, "orderID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Order", "order id must be a positive integer")
		return
	}
	if err := h.service.RecalculateTotals(r.Context(), orderID); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	orderID, ok := idParam(r, "orderID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Order", "order id must be a positive integer")
		return
	}
	var req ItemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	item, err := h.service.AddItem(r.Context(), shared.ActorFromRequest(r), orderID, req)
	if err != nil {
		respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, item)
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	itemID, ok := idParam(r, "itemID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Item", "item id must be a positive integer")
		return
	}
	var req UpdateItemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	item, err := h.service.UpdateItem(r.Context(), shared.ActorFromRequest(r), itemID, req)
	if err != nil {
		respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request) {
	itemID, ok := idParam(r, "itemID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Item", "item id must be a positive integer")
		return
	}
	if err := h.service.RemoveItem(r.Context(), shared.ActorFromRequest(r), itemID); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) restoreItem(w http.ResponseWriter, r *http.Request) {
	itemID, ok := idParam(r, "itemID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Item", "item id must be a positive integer")
		return
	}
	item, err := h.service.RestoreItem(r.Context(), shared.ActorFromRequest(r), itemID)
	if err != nil {
		respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Approve)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Cancel)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn func(context.Context, shared.Actor, int64) (*SalesOrder, error)) {
	orderID, ok := idParam(r, "orderID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Order", "order id must be a positive integer")
		return
	}
	order, err := fn(r.Context(), shared.ActorFromRequest(r), orderID)
	if err != nil {
		respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) createShipment(w http.ResponseWriter, r *http.Request) {
	orderID, ok := idParam(r, "orderID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Order", "order id must be a positive integer")
		return
	}
	var req CreateShipmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	shipment, items, err := h.service.CreateShipment(r.Context(), shared.ActorFromRequest(r), orderID, req)
	if err != nil {
		respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"shipment": shipment, "items": items})
}

func (h *Handler) listShipments(w http.ResponseWriter, r *http.Request) {
	orderID, ok := idParam(r, "orderID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Order", "order id must be a positive integer")
		return
	}
	list, err := h.service.ListShipments(r.Context(), orderID)
	if err != nil {
		respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"shipments": list})
}

func (h *Handler) confirmShipment(w http.ResponseWriter, r *http.Request) {
	shipmentID, ok := idParam(r, "shipmentID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Shipment", "shipment id must be a positive integer")
		return
	}
	order, movements, err := h.service.ConfirmShipment(r.Context(), shared.ActorFromRequest(r), shipmentID)
	if err != nil {
		h.logger.Error("confirm shipment", slog.Int64("shipment_id", shipmentID), slog.Any("error", err))
		respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"order": order, "movements": movements})
}
