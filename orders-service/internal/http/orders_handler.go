package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fjod/boutique/orders-service/internal/domain"
	"github.com/fjod/boutique/orders-service/internal/service"
	"github.com/fjod/boutique/orders-service/pkg/api"
	"github.com/fjod/boutique/pkg/logger"
)

type OrderService interface {
	PlaceOrder(ctx context.Context, req *api.CreateOrderRequest) (*domain.Order, error)
	GetOrderDetail(ctx context.Context, rawID string) (*domain.OrderDetail, error)
	ListOrders(ctx context.Context, f domain.OrderFilter) ([]domain.OrderSummary, error)
	UpdateOrderStatus(ctx context.Context, id int64, next domain.OrderStatus) error
	UpdatePaymentStatus(ctx context.Context, id int64, next domain.PaymentStatus) error
	MarkSeen(ctx context.Context, id int64) error
}

type OrdersHandler struct {
	svc         OrderService
	timeout     time.Duration
	maxBodySize int64
}

func NewOrdersHandler(svc OrderService, timeout time.Duration, maxBodySize int64) *OrdersHandler {
	return &OrdersHandler{
		svc:         svc,
		timeout:     timeout,
		maxBodySize: maxBodySize,
	}
}

// POST /api/v1/orders
func (h *OrdersHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req api.CreateOrderRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxBodySize)).Decode(&req); err != nil {
		respondFailure(w, http.StatusBadRequest, msgInvalidBody)
		return
	}
	if key := r.Header.Get(api.IdempotencyHeader); key != "" {
		req.IdempotencyKey = key
	}

	order, err := h.svc.PlaceOrder(ctx, &req)
	switch {
	case err == nil:
		respondData(w, http.StatusCreated, convertAck(order))
	case errors.Is(err, service.ErrInvalidOrder), errors.Is(err, service.ErrTotalMismatch):
		respondFailure(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrIdempotencyConflict):
		respondFailure(w, http.StatusConflict, msgKeyReused)
	default:
		logger.FromContext(r.Context()).WithError(err).Error("place order failed")
		respondFailure(w, http.StatusInternalServerError, msgCreateFailed)
	}
}

// GET /api/v1/orders/detail?id=
func (h *OrdersHandler) GetOrderDetail(w http.ResponseWriter, r *http.Request) {
	h.writeDetail(w, r, r.URL.Query().Get("id"))
}

// GET /api/v1/orders/{order_id}
func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	h.writeDetail(w, r, chi.URLParam(r, "order_id"))
}

func (h *OrdersHandler) writeDetail(w http.ResponseWriter, r *http.Request, rawID string) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	detail, err := h.svc.GetOrderDetail(ctx, rawID)
	switch {
	case err == nil:
		respondData(w, http.StatusOK, convertOrderDetail(detail))
	case errors.Is(err, service.ErrMissingOrderID):
		respondFailure(w, http.StatusBadRequest, msgMissingOrderID)
	case errors.Is(err, service.ErrOrderNotFound):
		respondFailure(w, http.StatusNotFound, msgOrderNotFound)
	default:
		logger.FromContext(r.Context()).WithError(err).WithField("order_id", rawID).Error("order detail lookup failed")
		respondFailure(w, http.StatusInternalServerError, msgFetchFailed)
	}
}

// GET /api/v1/orders?status=&unseen=&limit=&offset=
func (h *OrdersHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	q := r.URL.Query()
	filter := domain.OrderFilter{Status: domain.OrderStatus(q.Get("status"))}
	filter.UnseenOnly, _ = strconv.ParseBool(q.Get("unseen"))
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))

	orders, err := h.svc.ListOrders(ctx, filter)
	if err != nil {
		if errors.Is(err, service.ErrInvalidOrder) {
			respondFailure(w, http.StatusBadRequest, err.Error())
			return
		}
		logger.FromContext(r.Context()).WithError(err).Error("list orders failed")
		respondFailure(w, http.StatusInternalServerError, msgFetchFailed)
		return
	}

	respondData(w, http.StatusOK, convertSummaries(orders))
}

// PATCH /api/v1/orders/{order_id}/status
func (h *OrdersHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := orderIDParam(w, r)
	if !ok {
		return
	}
	var req api.StatusUpdateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxBodySize)).Decode(&req); err != nil {
		respondFailure(w, http.StatusBadRequest, msgInvalidBody)
		return
	}

	h.respondUpdate(w, r, h.svc.UpdateOrderStatus(ctx, id, domain.OrderStatus(req.Status)))
}

// PATCH /api/v1/orders/{order_id}/payment
func (h *OrdersHandler) UpdatePayment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := orderIDParam(w, r)
	if !ok {
		return
	}
	var req api.PaymentUpdateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxBodySize)).Decode(&req); err != nil {
		respondFailure(w, http.StatusBadRequest, msgInvalidBody)
		return
	}

	h.respondUpdate(w, r, h.svc.UpdatePaymentStatus(ctx, id, domain.PaymentStatus(req.PaymentStatus)))
}

// POST /api/v1/orders/{order_id}/seen
func (h *OrdersHandler) MarkSeen(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := orderIDParam(w, r)
	if !ok {
		return
	}
	h.respondUpdate(w, r, h.svc.MarkSeen(ctx, id))
}

func (h *OrdersHandler) respondUpdate(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case err == nil:
		respondData(w, http.StatusOK, map[string]bool{"updated": true})
	case errors.Is(err, service.ErrOrderNotFound):
		respondFailure(w, http.StatusNotFound, msgOrderNotFound)
	case errors.Is(err, service.ErrInvalidOrder):
		respondFailure(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrIllegalTransition), errors.Is(err, service.ErrStatusConflict):
		respondFailure(w, http.StatusConflict, err.Error())
	default:
		logger.FromContext(r.Context()).WithError(err).Error("order update failed")
		respondFailure(w, http.StatusInternalServerError, msgUpdateFailed)
	}
}

func orderIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "order_id")
	if raw == "" {
		respondFailure(w, http.StatusBadRequest, msgMissingOrderID)
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		respondFailure(w, http.StatusNotFound, msgOrderNotFound)
		return 0, false
	}
	return id, true
}
