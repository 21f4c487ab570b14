package service

import (
	"errors"

	"github.com/fjod/boutique/orders-service/internal/repository"
)

var (
	ErrMissingOrderID    = errors.New("order id is required")
	ErrOrderNotFound     = repository.ErrOrderNotFound
	ErrInvalidOrder      = errors.New("invalid order request")
	ErrTotalMismatch     = errors.New("order totals do not match line items")
	// ErrIdempotencyConflict is a reused idempotency key carrying different order content.
	ErrIdempotencyConflict = errors.New("idempotency key already used for a different order")
	ErrIllegalTransition = errors.New("illegal status transition")
	ErrStatusConflict    = repository.ErrStatusConflict
)
