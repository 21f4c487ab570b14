package service

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/fjod/boutique/orders-service/internal/domain"
	"github.com/fjod/boutique/orders-service/internal/repository"
)

// MockRepository implements repository.OrderRepository for testing
type MockRepository struct {
	mu sync.Mutex

	ByKey          map[string]*domain.Order
	GetByKeyErr    error
	Customer       *domain.Customer
	CreateErr      error
	OnCreate       func() // runs under the lock before CreateErr is returned
	CreatedOrder   *domain.NewOrder // Captures the order passed to CreateOrder
	CreatedEvent   *domain.OutboxEvent
	NextID         int64
	Detail         *domain.OrderDetail
	DetailErr      error
	DetailCalls    atomic.Int32
	DetailGate     chan struct{} // when set, GetOrderDetail blocks until closed or ctx ends
	Summaries      []domain.OrderSummary
	ListFilter     domain.OrderFilter
	StatusUpdates  [][2]domain.OrderStatus
	PaymentUpdates [][2]domain.PaymentStatus
	UpdateErr      error
	SeenIDs        []int64
}

func (m *MockRepository) CreateOrder(_ context.Context, order *domain.NewOrder, event *domain.OutboxEvent) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.OnCreate != nil {
		m.OnCreate()
	}
	if m.CreateErr != nil {
		return 0, m.CreateErr
	}
	m.CreatedOrder = order
	m.CreatedEvent = event
	m.NextID++
	return m.NextID, nil
}

func (m *MockRepository) GetOrderByIdempotencyKey(_ context.Context, key string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetByKeyErr != nil {
		return nil, m.GetByKeyErr
	}
	if o, ok := m.ByKey[key]; ok {
		return o, nil
	}
	return nil, repository.ErrOrderNotFound
}

func (m *MockRepository) FindCustomerByEmail(_ context.Context, _ string) (*domain.Customer, error) {
	if m.Customer == nil {
		return nil, repository.ErrCustomerNotFound
	}
	return m.Customer, nil
}

func (m *MockRepository) GetOrderDetail(ctx context.Context, _ int64) (*domain.OrderDetail, error) {
	m.DetailCalls.Add(1)
	if m.DetailGate != nil {
		select {
		case <-m.DetailGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return m.Detail, m.DetailErr
}

func (m *MockRepository) ListOrders(_ context.Context, f domain.OrderFilter) ([]domain.OrderSummary, error) {
	m.ListFilter = f
	return m.Summaries, nil
}

func (m *MockRepository) UpdateOrderStatus(_ context.Context, _ int64, from, to domain.OrderStatus) error {
	m.StatusUpdates = append(m.StatusUpdates, [2]domain.OrderStatus{from, to})
	return m.UpdateErr
}

func (m *MockRepository) UpdatePaymentStatus(_ context.Context, _ int64, from, to domain.PaymentStatus) error {
	m.PaymentUpdates = append(m.PaymentUpdates, [2]domain.PaymentStatus{from, to})
	return m.UpdateErr
}

func (m *MockRepository) MarkSeen(_ context.Context, id int64) error {
	m.SeenIDs = append(m.SeenIDs, id)
	return m.UpdateErr
}

func (m *MockRepository) GetUnpublishedEvents(context.Context, int) ([]*domain.OutboxEvent, error) {
	return nil, nil
}

func (m *MockRepository) MarkEventAsPublished(context.Context, int64) error {
	return nil
}

func (m *MockRepository) RunMigrations(*repository.Credentials) error {
	return nil
}

func (m *MockRepository) Close() error {
	return nil
}
