package checkout

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/fjod/boutique/orders-service/pkg/api"
	"github.com/fjod/boutique/storefront/internal/domain"
)

type MockCart struct {
	mu      sync.Mutex
	Items   []domain.CartLine
	Cleared int
}

func (m *MockCart) Lines() []domain.CartLine {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.CartLine(nil), m.Items...)
}

func (m *MockCart) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Items)
}

func (m *MockCart) Clear(context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Items = nil
	m.Cleared++
}

func (m *MockCart) add(l domain.CartLine) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Items = append(m.Items, l)
}

type MockGateway struct {
	mu       sync.Mutex
	Requests []api.CreateOrderRequest
	Ack      *api.OrderAck
	Err      error
	// Gate, when set, holds Submit until it is closed or the context ends.
	Gate    chan struct{}
	Started chan struct{}
	calls   atomic.Int32
}

func (m *MockGateway) Submit(ctx context.Context, req api.CreateOrderRequest) (*api.OrderAck, error) {
	m.calls.Add(1)
	m.mu.Lock()
	m.Requests = append(m.Requests, req)
	m.mu.Unlock()

	if m.Started != nil {
		m.Started <- struct{}{}
	}
	if m.Gate != nil {
		select {
		case <-m.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Ack, nil
}

func (m *MockGateway) requests() []api.CreateOrderRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]api.CreateOrderRequest(nil), m.Requests...)
}

func (m *MockGateway) setErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Err = err
}
