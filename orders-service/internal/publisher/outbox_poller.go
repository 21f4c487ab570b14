package publisher

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"

	"github.com/fjod/boutique/orders-service/internal/domain"
	"github.com/fjod/boutique/orders-service/internal/metrics"
	"github.com/fjod/boutique/pkg/circuitbreaker"
)

const batchSize = 100

type EventStore interface {
	GetUnpublishedEvents(ctx context.Context, limit int) ([]*domain.OutboxEvent, error)
	MarkEventAsPublished(ctx context.Context, id int64) error
}

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// OutboxPoller moves committed outbox rows to Kafka. Delivery is at-least-once:
// a crash between publish and mark re-publishes the event on the next tick.
type OutboxPoller struct {
	timeout   time.Duration
	eventTick time.Duration
	store     EventStore
	writer    MessageWriter
	breaker   *gobreaker.CircuitBreaker[struct{}]
}

func NewKafkaWriter(topic string, brokers ...string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{}, // same order number, same partition
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireAll,
	}
}

func NewOutboxPoller(store EventStore, writer MessageWriter, tick time.Duration) *OutboxPoller {
	return &OutboxPoller{
		timeout:   5 * time.Second,
		eventTick: tick,
		store:     store,
		writer:    writer,
		breaker:   circuitbreaker.New[struct{}](circuitbreaker.DefaultSettings("kafka-outbox")),
	}
}

func (p *OutboxPoller) Run(ctx context.Context) {
	eventTicker := time.NewTicker(p.eventTick)
	defer eventTicker.Stop()
	for {
		select {
		case <-eventTicker.C:
			p.processUnpublishedEvents(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *OutboxPoller) Close() error {
	return p.writer.Close()
}

func (p *OutboxPoller) processUnpublishedEvents(ctx context.Context) {
	events, err := p.store.GetUnpublishedEvents(ctx, batchSize)
	if err != nil {
		log.WithError(err).Error("failed to fetch outbox events")
		return
	}

	for _, event := range events {
		if err := p.publish(ctx, event); err != nil {
			metrics.OutboxPublished.WithLabelValues("failed").Inc()
			log.WithError(err).WithField("event_id", event.ID).Warn("failed to publish outbox event")
			if errors.Is(err, gobreaker.ErrOpenState) {
				// broker is down; keep the rest of the batch for later
				return
			}
			continue
		}

		if err := p.store.MarkEventAsPublished(ctx, event.ID); err != nil {
			log.WithError(err).WithField("event_id", event.ID).Error("failed to mark outbox event as published")
			continue
		}
		metrics.OutboxPublished.WithLabelValues("published").Inc()
	}
}

func (p *OutboxPoller) publish(ctx context.Context, event *domain.OutboxEvent) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(event.AggregateID), // order number for ordering
		Value: event.Payload,             // Already JSON from database
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}

	_, err := p.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, p.writer.WriteMessages(ctx, msg)
	})
	return err
}
