package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/fjod/boutique/orders-service/internal/domain"
	"github.com/fjod/boutique/orders-service/internal/metrics"
	"github.com/fjod/boutique/orders-service/internal/repository"
	"github.com/fjod/boutique/orders-service/pkg/api"
	"github.com/fjod/boutique/pkg/logger"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200

	detailLookupTimeout = 10 * time.Second
)

type OrderService struct {
	repo     repository.OrderRepository
	validate *validator.Validate
	sfg      singleflight.Group // collapses concurrent detail lookups of one order
	now      func() time.Time
}

func NewOrderService(repo repository.OrderRepository) *OrderService {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &OrderService{
		repo:     repo,
		validate: v,
		now:      time.Now,
	}
}

// PlaceOrder recomputes the totals, then persists the order with its item
// snapshots in one transaction. A repeated idempotency key returns the order
// created the first time.
func (s *OrderService) PlaceOrder(ctx context.Context, req *api.CreateOrderRequest) (*domain.Order, error) {
	entry := logger.FromContext(ctx)

	if err := s.validate.StructCtx(ctx, req); err != nil {
		metrics.OrdersPlaced.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("%w: %s", ErrInvalidOrder, describeValidation(err))
	}

	now := s.now().UTC()
	deliveryDate, err := time.ParseInLocation(api.DateLayout, req.DeliveryDate, time.UTC)
	// one day of slack for shoppers whose local date is behind UTC
	if err != nil || deliveryDate.Before(now.Truncate(24*time.Hour).AddDate(0, 0, -1)) {
		metrics.OrdersPlaced.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("%w: delivery_date must not be in the past", ErrInvalidOrder)
	}

	items, subtotal, err := snapshotItems(req.Items)
	if err != nil {
		metrics.OrdersPlaced.WithLabelValues("rejected").Inc()
		return nil, err
	}
	total := subtotal // no discount, free delivery
	if !req.Subtotal.Equal(subtotal) || !req.Total.Equal(total) {
		metrics.OrdersPlaced.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("%w: expected total %s, got %s", ErrTotalMismatch, total.StringFixed(2), req.Total.StringFixed(2))
	}

	fingerprint := api.Fingerprint(*req)
	if req.IdempotencyKey != "" {
		existing, err := s.repo.GetOrderByIdempotencyKey(ctx, req.IdempotencyKey)
		if err == nil {
			return s.replay(entry, req.IdempotencyKey, fingerprint, existing)
		}
		if !errors.Is(err, repository.ErrOrderNotFound) {
			metrics.OrdersPlaced.WithLabelValues("failed").Inc()
			return nil, fmt.Errorf("failed to check idempotency: %w", err)
		}
	}

	customer := customerFromRequest(req.Customer)
	address, err := s.deliveryAddress(ctx, req, customer)
	if err != nil {
		metrics.OrdersPlaced.WithLabelValues("failed").Inc()
		return nil, err
	}

	order := domain.Order{
		OrderNumber:        newOrderNumber(now),
		Subtotal:           subtotal,
		DiscountAmount:     decimal.Zero,
		DiscountPercentage: decimal.Zero,
		DeliveryCost:       decimal.Zero,
		Total:              total,
		Status:             domain.OrderStatusPending,
		DesiredDelivery:    &deliveryDate,
		PaymentStatus:      domain.PaymentStatusPending,
		PaymentMethod:      req.PaymentMethod,
		Notes:              optional(req.Notes),
		IdempotencyKey:     optional(req.IdempotencyKey),
		RequestFingerprint: &fingerprint,
		CreatedAt:          now.Truncate(time.Second),
	}
	if order.PaymentMethod == "" {
		order.PaymentMethod = domain.PaymentMethodCashOnDelivery
	}

	event, err := placedEvent(&order, customer, len(items))
	if err != nil {
		metrics.OrdersPlaced.WithLabelValues("failed").Inc()
		return nil, err
	}

	id, err := s.repo.CreateOrder(ctx, &domain.NewOrder{
		Order:           order,
		Customer:        customer,
		Items:           items,
		DeliveryAddress: address,
	}, event)
	if errors.Is(err, repository.ErrDuplicateOrder) {
		// a concurrent submission with the same key won the insert
		existing, e2 := s.repo.GetOrderByIdempotencyKey(ctx, req.IdempotencyKey)
		if e2 != nil {
			metrics.OrdersPlaced.WithLabelValues("failed").Inc()
			return nil, fmt.Errorf("load order after duplicate: %w", e2)
		}
		return s.replay(entry, req.IdempotencyKey, fingerprint, existing)
	}
	if err != nil {
		metrics.OrdersPlaced.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("create order: %w", err)
	}

	order.ID = id
	metrics.OrdersPlaced.WithLabelValues("created").Inc()
	metrics.OrderValue.Observe(total.InexactFloat64())
	entry.WithFields(log.Fields{
		"order_id":     id,
		"order_number": order.OrderNumber,
		"items":        len(items),
		"total":        total.StringFixed(2),
	}).Info("order placed")

	return &order, nil
}

// replay answers a repeated idempotency key with the order it created, as long
// as the content matches. Orders stored without a fingerprint are replayed as is.
func (s *OrderService) replay(entry *log.Entry, key, fingerprint string, existing *domain.Order) (*domain.Order, error) {
	fields := log.Fields{"idempotency_key": key, "order_number": existing.OrderNumber}
	if existing.RequestFingerprint != nil && *existing.RequestFingerprint != fingerprint {
		entry.WithFields(fields).Warn("idempotency key reused with different order content")
		metrics.OrdersPlaced.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("%w: %s", ErrIdempotencyConflict, key)
	}
	entry.WithFields(fields).Info("duplicate order submission, returning existing order")
	metrics.OrdersPlaced.WithLabelValues("replayed").Inc()
	return existing, nil
}

// GetOrderDetail resolves a raw identifier into the full order view.
// A blank id is ErrMissingOrderID; an id that cannot name an order is ErrOrderNotFound.
func (s *OrderService) GetOrderDetail(ctx context.Context, rawID string) (*domain.OrderDetail, error) {
	rawID = strings.TrimSpace(rawID)
	if rawID == "" {
		metrics.DetailLookups.WithLabelValues("missing_id").Inc()
		return nil, ErrMissingOrderID
	}
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		metrics.DetailLookups.WithLabelValues("not_found").Inc()
		return nil, ErrOrderNotFound
	}

	// the shared lookup must not inherit the cancellation of whichever caller started it
	ch := s.sfg.DoChan(strconv.FormatInt(id, 10), func() (interface{}, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), detailLookupTimeout)
		defer cancel()
		return s.repo.GetOrderDetail(lctx, id)
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		metrics.DetailLookups.WithLabelValues("error").Inc()
		return nil, ctx.Err()
	case res = <-ch:
	}
	v, err := res.Val, res.Err
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			metrics.DetailLookups.WithLabelValues("not_found").Inc()
			return nil, ErrOrderNotFound
		}
		metrics.DetailLookups.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("get order detail: %w", err)
	}

	metrics.DetailLookups.WithLabelValues("found").Inc()
	return v.(*domain.OrderDetail), nil
}

func (s *OrderService) ListOrders(ctx context.Context, f domain.OrderFilter) ([]domain.OrderSummary, error) {
	if f.Status != "" && !f.Status.IsValid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidOrder, f.Status)
	}
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return s.repo.ListOrders(ctx, f)
}

func (s *OrderService) UpdateOrderStatus(ctx context.Context, id int64, next domain.OrderStatus) error {
	if !next.IsValid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidOrder, next)
	}
	detail, err := s.repo.GetOrderDetail(ctx, id)
	if err != nil {
		return err
	}
	current := detail.Order.Status
	if !current.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, current, next)
	}
	if err := s.repo.UpdateOrderStatus(ctx, id, current, next); err != nil {
		return err
	}
	logger.FromContext(ctx).WithFields(log.Fields{
		"order_id": id,
		"from":     current,
		"to":       next,
	}).Info("order status updated")
	return nil
}

func (s *OrderService) UpdatePaymentStatus(ctx context.Context, id int64, next domain.PaymentStatus) error {
	if !next.IsValid() {
		return fmt.Errorf("%w: unknown payment status %q", ErrInvalidOrder, next)
	}
	detail, err := s.repo.GetOrderDetail(ctx, id)
	if err != nil {
		return err
	}
	current := detail.Order.PaymentStatus
	if !current.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, current, next)
	}
	return s.repo.UpdatePaymentStatus(ctx, id, current, next)
}

func (s *OrderService) MarkSeen(ctx context.Context, id int64) error {
	return s.repo.MarkSeen(ctx, id)
}

// deliveryAddress keeps an explicit recipient, and otherwise records the
// submitted address when a returning customer ships somewhere new.
func (s *OrderService) deliveryAddress(ctx context.Context, req *api.CreateOrderRequest, c domain.Customer) (*domain.DeliveryAddress, error) {
	if r := req.DeliveryAddress; r != nil {
		return &domain.DeliveryAddress{
			LastName:     r.LastName,
			FirstName:    r.FirstName,
			Phone:        optional(r.Phone),
			Address:      r.Address,
			City:         r.City,
			PostalCode:   r.PostalCode,
			Country:      r.Country,
			Instructions: optional(r.Instructions),
		}, nil
	}

	existing, err := s.repo.FindCustomerByEmail(ctx, c.Email)
	if errors.Is(err, repository.ErrCustomerNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup customer: %w", err)
	}
	if existing.FormattedAddress() == c.FormattedAddress() && existing.Country == c.Country {
		return nil, nil
	}
	return &domain.DeliveryAddress{
		LastName:   c.LastName,
		FirstName:  c.FirstName,
		Phone:      optional(c.Phone),
		Address:    c.Address,
		City:       c.City,
		PostalCode: c.PostalCode,
		Country:    c.Country,
	}, nil
}

func snapshotItems(lines []api.LineItem) ([]domain.OrderItem, decimal.Decimal, error) {
	items := make([]domain.OrderItem, 0, len(lines))
	subtotal := decimal.Zero
	for i, l := range lines {
		if !l.UnitPrice.IsPositive() {
			return nil, decimal.Zero, fmt.Errorf("%w: items[%d].unit_price must be positive", ErrInvalidOrder, i)
		}
		productID := l.ProductID
		lineSubtotal := l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
		items = append(items, domain.OrderItem{
			ProductID: &productID,
			Name:      l.Name,
			Reference: optional(l.Reference),
			UnitPrice: l.UnitPrice,
			Size:      optional(l.Size),
			Color:     optional(l.Color),
			Quantity:  l.Quantity,
			Subtotal:  lineSubtotal,
			Discount:  decimal.Zero,
			Total:     lineSubtotal,
		})
		subtotal = subtotal.Add(lineSubtotal)
	}
	return items, subtotal, nil
}

func customerFromRequest(c api.CustomerFields) domain.Customer {
	return domain.Customer{
		LastName:   strings.TrimSpace(c.LastName),
		FirstName:  strings.TrimSpace(c.FirstName),
		Email:      strings.ToLower(strings.TrimSpace(c.Email)),
		Phone:      strings.TrimSpace(c.Phone),
		Address:    strings.TrimSpace(c.Address),
		City:       strings.TrimSpace(c.City),
		PostalCode: strings.TrimSpace(c.PostalCode),
		Country:    strings.TrimSpace(c.Country),
	}
}

func placedEvent(o *domain.Order, c domain.Customer, itemCount int) (*domain.OutboxEvent, error) {
	payload, err := json.Marshal(api.OrderPlacedEvent{
		OrderNumber:     o.OrderNumber,
		Email:           c.Email,
		FirstName:       c.FirstName,
		LastName:        c.LastName,
		Total:           o.Total,
		Items:           itemCount,
		PaymentMethod:   o.PaymentMethod,
		DesiredDelivery: o.DesiredDelivery.Format(api.DateLayout),
		CreatedAt:       o.CreatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal order placed payload: %w", err)
	}
	return &domain.OutboxEvent{
		AggregateID: o.OrderNumber,
		EventType:   domain.EventOrderPlaced,
		Payload:     payload,
	}, nil
}

// newOrderNumber produces CMD-YYYYMMDD-XXXXXX.
func newOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return fmt.Sprintf("CMD-%s-%s", now.Format("20060102"), suffix)
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "CreateOrderRequest.")
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", field, fe.Tag(), fe.Param()))
			continue
		}
		msgs = append(msgs, fmt.Sprintf("%s failed %s", field, fe.Tag()))
	}
	return strings.Join(msgs, "; ")
}
