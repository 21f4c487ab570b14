package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"

	"github.com/fjod/boutique/orders-service/internal/metrics"
	"github.com/fjod/boutique/orders-service/pkg/api"
)

type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Notifier is told about every order placed by a shopper.
type Notifier interface {
	OrderPlaced(ctx context.Context, event api.OrderPlacedEvent) error
}

// Consumer reads orders.placed and hands each event to a Notifier. A message is
// retried until the notifier accepts it and only then committed.
type Consumer struct {
	reader   MessageReader
	notifier Notifier
	backoff  time.Duration
}

func NewKafkaReader(groupID, topic string, brokers ...string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MaxBytes: 10e6, // 10MB
	})
}

func NewConsumer(reader MessageReader, notifier Notifier) *Consumer {
	return &Consumer{reader: reader, notifier: notifier, backoff: time.Second}
}

func (c *Consumer) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := c.processMessage(ctx); err != nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.backoff):
			}
		}
	}
}

func (c *Consumer) Close() {
	if err := c.reader.Close(); err != nil {
		log.WithError(err).Warn("error closing kafka reader")
	}
}

func (c *Consumer) processMessage(ctx context.Context) error {
	m, err := c.reader.FetchMessage(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		log.WithError(err).Error("error reading message")
		return err
	}

	var event api.OrderPlacedEvent
	if err := json.Unmarshal(m.Value, &event); err != nil || event.OrderNumber == "" {
		// poison message: skip it rather than block the partition
		log.WithField("offset", m.Offset).WithError(err).Error("unparseable orders.placed message, skipping")
		metrics.PlacedNotifications.WithLabelValues("skipped").Inc()
		return c.commit(ctx, m)
	}

	for {
		err := c.notifier.OrderPlaced(ctx, event)
		if err == nil {
			break
		}
		log.WithError(err).WithField("numero_commande", event.OrderNumber).Warn("notification failed, retrying")
		metrics.PlacedNotifications.WithLabelValues("failed").Inc()
		select {
		case <-ctx.Done():
			return fmt.Errorf("notify %s: %w", event.OrderNumber, ctx.Err())
		case <-time.After(c.backoff):
		}
	}
	metrics.PlacedNotifications.WithLabelValues("notified").Inc()
	return c.commit(ctx, m)
}

func (c *Consumer) commit(ctx context.Context, m kafka.Message) error {
	if err := c.reader.CommitMessages(ctx, m); err != nil {
		log.WithError(err).WithField("offset", m.Offset).Error("failed to commit offset")
		return err
	}
	return nil
}

// LogNotifier announces new orders in the service log for the back office.
type LogNotifier struct{}

func (LogNotifier) OrderPlaced(_ context.Context, e api.OrderPlacedEvent) error {
	log.WithFields(log.Fields{
		"numero_commande": e.OrderNumber,
		"customer":        e.FirstName + " " + e.LastName,
		"email":           e.Email,
		"total_tnd":       e.Total.StringFixed(2),
		"items":           e.Items,
		"delivery_date":   e.DesiredDelivery,
	}).Info("new order placed")
	return nil
}
