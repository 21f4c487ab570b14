package repository

import (
	"context"
	"errors"

	"github.com/fjod/boutique/orders-service/internal/domain"
)

var (
	ErrOrderNotFound       = errors.New("order not found")
	ErrDuplicateOrder      = errors.New("order for this idempotency key already exists")
	ErrStatusConflict      = errors.New("order status changed concurrently")
	ErrOutboxEventNotFound = errors.New("outbox event not found")
)

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

type OrderRepository interface {
	// CreateOrder persists customer (find-or-create by email), header, items, optional
	// delivery address and an outbox event atomically, returning the new order id.
	CreateOrder(ctx context.Context, order *domain.NewOrder, event *domain.OutboxEvent) (int64, error)
	GetOrderByIdempotencyKey(ctx context.Context, key string) (*domain.Order, error)
	FindCustomerByEmail(ctx context.Context, email string) (*domain.Customer, error)
	GetOrderDetail(ctx context.Context, id int64) (*domain.OrderDetail, error)
	ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.OrderSummary, error)
	UpdateOrderStatus(ctx context.Context, id int64, from, to domain.OrderStatus) error
	UpdatePaymentStatus(ctx context.Context, id int64, from, to domain.PaymentStatus) error
	MarkSeen(ctx context.Context, id int64) error
	GetUnpublishedEvents(ctx context.Context, limit int) ([]*domain.OutboxEvent, error)
	MarkEventAsPublished(ctx context.Context, id int64) error
	RunMigrations(*Credentials) error
	Close() error
}
