package cart

import (
	"context"
	"sync"

	"github.com/fjod/boutique/storefront/internal/storage"
)

type MockStorage struct {
	mu      sync.Mutex
	Slots   map[string][]byte
	LoadErr error
	SaveErr error
	Saves   int
}

func NewMockStorage() *MockStorage {
	return &MockStorage{Slots: map[string][]byte{}}
}

func (m *MockStorage) Load(_ context.Context, slot string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LoadErr != nil {
		return nil, m.LoadErr
	}
	v, ok := m.Slots[slot]
	if !ok {
		return nil, storage.ErrSlotEmpty
	}
	return v, nil
}

func (m *MockStorage) Save(_ context.Context, slot string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Saves++
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.Slots[slot] = append([]byte(nil), value...)
	return nil
}

func (m *MockStorage) Clear(_ context.Context, slot string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Slots, slot)
	return nil
}

func (m *MockStorage) Close() error { return nil }
