package consumer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fjod/boutique/orders-service/pkg/api"
)

type MockReader struct {
	mu        sync.Mutex
	Messages  []kafka.Message
	FetchErr  error
	Committed []int64
	next      int
}

func (r *MockReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FetchErr != nil {
		return kafka.Message{}, r.FetchErr
	}
	if r.next >= len(r.Messages) {
		return kafka.Message{}, context.Canceled
	}
	m := r.Messages[r.next]
	r.next++
	return m, nil
}

func (r *MockReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.Committed = append(r.Committed, m.Offset)
	}
	return nil
}

func (r *MockReader) Close() error { return nil }

func (r *MockReader) committed() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.Committed...)
}

type MockNotifier struct {
	mu       sync.Mutex
	Events   []api.OrderPlacedEvent
	FailN    int
	attempts int
}

func (n *MockNotifier) OrderPlaced(_ context.Context, e api.OrderPlacedEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.attempts++
	if n.attempts <= n.FailN {
		return errors.New("smtp unavailable")
	}
	n.Events = append(n.Events, e)
	return nil
}

const placedJSON = `{"numero_commande":"CMD-20260314-ABC123","email":"jean@example.com","prenom":"Jean","nom":"Dupont","total_order":"130","items":2,"payment_method":"cash_on_delivery","date_livraison_souhaitee":"2026-03-16","date_creation_order":"2026-03-14T10:30:00Z"}`

func TestProcessMessage_NotifiesAndCommits(t *testing.T) {
	reader := &MockReader{Messages: []kafka.Message{{Offset: 7, Value: []byte(placedJSON)}}}
	notifier := &MockNotifier{}
	c := NewConsumer(reader, notifier)

	require.NoError(t, c.processMessage(context.Background()))

	require.Len(t, notifier.Events, 1)
	e := notifier.Events[0]
	assert.Equal(t, "CMD-20260314-ABC123", e.OrderNumber)
	assert.True(t, decimal.NewFromInt(130).Equal(e.Total))
	assert.Equal(t, 2, e.Items)
	assert.Equal(t, "2026-03-16", e.DesiredDelivery)
	assert.Equal(t, []int64{7}, reader.committed())
}

func TestProcessMessage_SkipsPoisonMessage(t *testing.T) {
	reader := &MockReader{Messages: []kafka.Message{
		{Offset: 1, Value: []byte("not json")},
		{Offset: 2, Value: []byte(`{"items":1}`)},
	}}
	notifier := &MockNotifier{}
	c := NewConsumer(reader, notifier)

	require.NoError(t, c.processMessage(context.Background()))
	require.NoError(t, c.processMessage(context.Background()))

	assert.Empty(t, notifier.Events)
	assert.Equal(t, []int64{1, 2}, reader.committed())
}

func TestProcessMessage_RetriesUntilNotified(t *testing.T) {
	reader := &MockReader{Messages: []kafka.Message{{Offset: 3, Value: []byte(placedJSON)}}}
	notifier := &MockNotifier{FailN: 2}
	c := NewConsumer(reader, notifier)
	c.backoff = time.Millisecond

	require.NoError(t, c.processMessage(context.Background()))

	assert.Equal(t, 3, notifier.attempts)
	assert.Len(t, notifier.Events, 1)
	assert.Equal(t, []int64{3}, reader.committed())
}

func TestProcessMessage_CancelledWhileRetryingDoesNotCommit(t *testing.T) {
	reader := &MockReader{Messages: []kafka.Message{{Offset: 3, Value: []byte(placedJSON)}}}
	notifier := &MockNotifier{FailN: 1000}
	c := NewConsumer(reader, notifier)
	c.backoff = 5 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := c.processMessage(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, reader.committed())
}

func TestProcessMessage_FetchError(t *testing.T) {
	reader := &MockReader{FetchErr: errors.New("broker down")}
	c := NewConsumer(reader, &MockNotifier{})

	assert.Error(t, c.processMessage(context.Background()))
}

func TestRun_StopsOnCancel(t *testing.T) {
	reader := &MockReader{FetchErr: errors.New("broker down")}
	c := NewConsumer(reader, &MockNotifier{})
	c.backoff = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop after cancel")
	}
}
