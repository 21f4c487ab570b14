package publisher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fjod/boutique/orders-service/internal/domain"
)

type MockStore struct {
	mu        sync.Mutex
	Events    []*domain.OutboxEvent
	FetchErr  error
	MarkErr   error
	Published []int64
}

func (m *MockStore) GetUnpublishedEvents(context.Context, int) ([]*domain.OutboxEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FetchErr != nil {
		return nil, m.FetchErr
	}
	var out []*domain.OutboxEvent
	for _, e := range m.Events {
		if !m.isPublished(e.ID) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MockStore) MarkEventAsPublished(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.MarkErr != nil {
		return m.MarkErr
	}
	m.Published = append(m.Published, id)
	return nil
}

func (m *MockStore) publishedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Published)
}

func (m *MockStore) isPublished(id int64) bool {
	for _, p := range m.Published {
		if p == id {
			return true
		}
	}
	return false
}

type MockWriter struct {
	Messages []kafka.Message
	Err      error
	Calls    int
}

func (w *MockWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.Calls++
	if w.Err != nil {
		return w.Err
	}
	w.Messages = append(w.Messages, msgs...)
	return nil
}

func (w *MockWriter) Close() error { return nil }

func testEvents() []*domain.OutboxEvent {
	return []*domain.OutboxEvent{
		{ID: 1, AggregateID: "CMD-20260314-AAAAAA", EventType: domain.EventOrderPlaced, Payload: []byte(`{"a":1}`)},
		{ID: 2, AggregateID: "CMD-20260314-BBBBBB", EventType: domain.EventOrderPlaced, Payload: []byte(`{"b":2}`)},
	}
}

func TestProcessUnpublishedEvents_PublishesAndMarks(t *testing.T) {
	store := &MockStore{Events: testEvents()}
	writer := &MockWriter{}
	p := NewOutboxPoller(store, writer, time.Second)

	p.processUnpublishedEvents(context.Background())

	require.Len(t, writer.Messages, 2)
	assert.Equal(t, []byte("CMD-20260314-AAAAAA"), writer.Messages[0].Key)
	assert.Equal(t, []byte(`{"a":1}`), writer.Messages[0].Value)
	assert.Equal(t, "event_type", writer.Messages[0].Headers[0].Key)
	assert.Equal(t, []byte(domain.EventOrderPlaced), writer.Messages[0].Headers[0].Value)
	assert.Equal(t, []int64{1, 2}, store.Published)

	// nothing left on the next pass
	p.processUnpublishedEvents(context.Background())
	assert.Len(t, writer.Messages, 2)
}

func TestProcessUnpublishedEvents_WriteFailureLeavesEventPending(t *testing.T) {
	store := &MockStore{Events: testEvents()[:1]}
	writer := &MockWriter{Err: errors.New("broker unavailable")}
	p := NewOutboxPoller(store, writer, time.Second)

	p.processUnpublishedEvents(context.Background())

	assert.Empty(t, store.Published)
	assert.Equal(t, 1, writer.Calls)
}

func TestProcessUnpublishedEvents_OpenBreakerStopsBatch(t *testing.T) {
	var events []*domain.OutboxEvent
	for i := int64(1); i <= 10; i++ {
		events = append(events, &domain.OutboxEvent{ID: i, AggregateID: "CMD", EventType: domain.EventOrderPlaced, Payload: []byte(`{}`)})
	}
	store := &MockStore{Events: events}
	writer := &MockWriter{Err: errors.New("broker unavailable")}
	p := NewOutboxPoller(store, writer, time.Second)

	p.processUnpublishedEvents(context.Background())

	// breaker trips after three failures and short-circuits the fourth call
	assert.Equal(t, 3, writer.Calls)
	assert.Empty(t, store.Published)
}

func TestProcessUnpublishedEvents_FetchError(t *testing.T) {
	store := &MockStore{FetchErr: errors.New("db down")}
	writer := &MockWriter{}
	p := NewOutboxPoller(store, writer, time.Second)

	p.processUnpublishedEvents(context.Background())
	assert.Equal(t, 0, writer.Calls)
}

func TestRun_StopsOnCancel(t *testing.T) {
	store := &MockStore{Events: testEvents()}
	writer := &MockWriter{}
	p := NewOutboxPoller(store, writer, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return store.publishedCount() == 2 }, time.Second, 10*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop after cancel")
	}
}
