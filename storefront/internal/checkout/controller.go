// Package checkout drives the three-step checkout form and the order confirmation.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/fjod/boutique/orders-service/pkg/api"
	"github.com/fjod/boutique/pkg/logger"
	"github.com/fjod/boutique/storefront/internal/domain"
)

var (
	ErrSubmissionInProgress = errors.New("order submission already in progress")
	ErrSubmissionFailed     = errors.New("order submission failed")
	ErrMissingDeliveryDate  = errors.New("a valid delivery date is required")
	ErrEmptyCart            = errors.New("cart is empty")
	ErrIllegalTransition    = errors.New("illegal checkout transition")

	errEmptyAck = errors.New("backend returned no acknowledgment")
)

const DefaultSubmitTimeout = 15 * time.Second

// Cart is the part of the cart store the checkout reads and clears.
type Cart interface {
	Lines() []domain.CartLine
	Len() int
	Clear(ctx context.Context)
}

// Submitter sends an assembled order to the backend.
type Submitter interface {
	Submit(ctx context.Context, req api.CreateOrderRequest) (*api.OrderAck, error)
}

// Controller is the checkout state machine for one shopper.
type Controller struct {
	mu       sync.Mutex
	cart     Cart
	gateway  Submitter
	validate *validator.Validate
	timeout  time.Duration
	now      func() time.Time

	state      State
	contact    ContactInfo
	delivery   DeliveryInfo
	submitting bool
	// reused by retries while the submitted content is unchanged
	idempotencyKey string
	fingerprint    string
	ack            *api.OrderAck
	lastErr        error
}

// New starts a checkout on step 1, or in StateEmpty when the cart has no lines.
// A zero timeout means DefaultSubmitTimeout.
func New(cart Cart, gateway Submitter, timeout time.Duration) *Controller {
	if timeout <= 0 {
		timeout = DefaultSubmitTimeout
	}
	c := &Controller{
		cart:     cart,
		gateway:  gateway,
		validate: newValidator(),
		timeout:  timeout,
		now:      time.Now,
		state:    StateContact,
		delivery: DeliveryInfo{Country: DefaultCountry},
	}
	if cart.Len() == 0 {
		c.state = StateEmpty
	}
	return c
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Contact() ContactInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.contact
}

func (c *Controller) Delivery() DeliveryInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.delivery
}

// Ack is the backend acknowledgment once the order is confirmed.
func (c *Controller) Ack() *api.OrderAck {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ack
}

// LastError is the failure shown on step 3 after an unsuccessful confirmation.
func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Submitting reports whether a confirmation is outstanding.
func (c *Controller) Submitting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submitting
}

func (c *Controller) SetContact(info ContactInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.contact = ContactInfo{
		FirstName: strings.TrimSpace(info.FirstName),
		LastName:  strings.TrimSpace(info.LastName),
		Email:     strings.TrimSpace(info.Email),
		Phone:     strings.TrimSpace(info.Phone),
	}
}

// SetDelivery stores the delivery fields. An empty country keeps the current one.
func (c *Controller) SetDelivery(info DeliveryInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	country := strings.TrimSpace(info.Country)
	if country == "" {
		country = c.delivery.Country
	}
	c.delivery = DeliveryInfo{
		Address:    strings.TrimSpace(info.Address),
		City:       strings.TrimSpace(info.City),
		PostalCode: strings.TrimSpace(info.PostalCode),
		Country:    country,
		Date:       strings.TrimSpace(info.Date),
		Notes:      info.Notes,
	}
}

// Next validates the fields owned by the current step and advances one step.
func (c *Controller) Next() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateContact:
		if verr := validateFields(c.validate, c.contact); verr != nil {
			return verr
		}
		c.state = StateDelivery
	case StateDelivery:
		if verr := c.validateDelivery(); verr != nil {
			return verr
		}
		c.state = StateReview
	default:
		return fmt.Errorf("next from %s: %w", c.state, ErrIllegalTransition)
	}
	return nil
}

// Back moves one step back without clearing anything. It is a no-op on step 1.
func (c *Controller) Back() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.submitting {
		return ErrSubmissionInProgress
	}
	switch c.state {
	case StateContact:
	case StateDelivery:
		c.state = StateContact
	case StateReview, StateFailed:
		c.state = StateDelivery
	default:
		return fmt.Errorf("back from %s: %w", c.state, ErrIllegalTransition)
	}
	return nil
}

// Confirm submits the order from step 3. The cart is captured when Confirm is
// called; changes made while the submission is outstanding do not reach it.
// A second Confirm during an outstanding submission returns
// ErrSubmissionInProgress without contacting the backend. Contact or delivery
// fields that no longer validate send the checkout back to their step with a
// *ValidationError.
func (c *Controller) Confirm(ctx context.Context) (*api.OrderAck, error) {
	req, err := c.beginSubmission(ctx)
	if err != nil {
		return nil, err
	}
	entry := logger.FromContext(ctx).WithFields(log.Fields{
		"idempotency_key": req.IdempotencyKey,
		"items":           len(req.Items),
		"total":           req.Total.StringFixed(2),
	})

	sctx, cancel := context.WithTimeout(ctx, c.timeout)
	ack, err := c.gateway.Submit(sctx, req)
	cancel()
	if err == nil && ack == nil {
		err = errEmptyAck
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.submitting = false

	if err != nil {
		entry.WithError(err).Warn("order submission failed")
		c.state = StateFailed
		c.lastErr = ErrSubmissionFailed
		return nil, ErrSubmissionFailed
	}

	c.cart.Clear(ctx)
	c.ack = ack
	c.lastErr = nil
	c.state = StateConfirmed
	entry.WithField("numero_commande", ack.OrderNumber).Info("order confirmed")
	return ack, nil
}

func (c *Controller) beginSubmission(ctx context.Context) (api.CreateOrderRequest, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.submitting {
		return api.CreateOrderRequest{}, ErrSubmissionInProgress
	}
	if c.state != StateReview && c.state != StateFailed {
		return api.CreateOrderRequest{}, fmt.Errorf("confirm from %s: %w", c.state, ErrIllegalTransition)
	}

	lines := c.cart.Lines()
	if len(lines) == 0 {
		c.state = StateEmpty
		return api.CreateOrderRequest{}, ErrEmptyCart
	}

	// fields may have been edited after their step was validated
	if verr := validateFields(c.validate, c.contact); verr != nil {
		c.state = StateContact
		return api.CreateOrderRequest{}, verr
	}
	if verr := c.validateDelivery(); verr != nil {
		if _, dateOnly := verr.Fields["delivery_date"]; dateOnly && len(verr.Fields) == 1 {
			return api.CreateOrderRequest{}, ErrMissingDeliveryDate
		}
		c.state = StateDelivery
		return api.CreateOrderRequest{}, verr
	}

	req := c.buildRequest(lines)
	fp := api.Fingerprint(req)
	if c.idempotencyKey == "" || fp != c.fingerprint {
		c.idempotencyKey = uuid.NewString()
		c.fingerprint = fp
	}
	req.IdempotencyKey = c.idempotencyKey

	c.submitting = true
	logger.FromContext(ctx).WithField("state", c.state).Debug("submitting order")
	return req, nil
}

func (c *Controller) validateDelivery() *ValidationError {
	verr := validateFields(c.validate, c.delivery)
	if _, msg := parseDeliveryDate(c.delivery.Date, c.now()); msg != "" {
		if verr == nil {
			verr = &ValidationError{Fields: map[string]string{}}
		}
		verr.Fields["delivery_date"] = msg
	}
	return verr
}

func (c *Controller) buildRequest(lines []domain.CartLine) api.CreateOrderRequest {
	items := make([]api.LineItem, 0, len(lines))
	total := decimal.Zero
	for _, l := range lines {
		items = append(items, api.LineItem{
			ProductID: l.ProductID,
			Name:      l.Name,
			UnitPrice: l.UnitPrice,
			Size:      l.Size,
			Color:     l.Color,
			Quantity:  l.Quantity,
		})
		total = total.Add(l.Subtotal())
	}

	return api.CreateOrderRequest{
		Customer: api.CustomerFields{
			FirstName:  c.contact.FirstName,
			LastName:   c.contact.LastName,
			Email:      c.contact.Email,
			Phone:      c.contact.Phone,
			Address:    c.delivery.Address,
			City:       c.delivery.City,
			PostalCode: c.delivery.PostalCode,
			Country:    c.delivery.Country,
		},
		DeliveryDate: c.delivery.Date,
		Notes:        strings.TrimSpace(c.delivery.Notes),
		Items:        items,
		Subtotal:     total,
		// delivery is free
		Total: total,
	}
}
