package notify

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/segmentio/kafka-go"

	"github.com/tokoku/commerce/internal/domain/order"
)

var _ order.Notifier = (*KafkaDispatcher)(nil)

// KafkaDispatcher publishes transition notifications to a Kafka topic.
// Messages are keyed by order id so every notification for one order lands on
// the same partition and keeps its ordering.
type KafkaDispatcher struct {
	writer *kafka.Writer
}

// NewKafkaDispatcher creates a dispatcher writing to the given brokers and
// topic.
func NewKafkaDispatcher(brokers []string, topic string) *KafkaDispatcher {
	return &KafkaDispatcher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
		},
	}
}

// Notify publishes the notification. The caller bounds ctx; a timeout or
// broker error surfaces as a plain error for logging.
func (d *KafkaDispatcher) Notify(ctx context.Context, n order.Notification) error {
	payload, err := json.Marshal(fromNotification(n))
	if err != nil {
		return errors.Wrap(err, "marshal notification")
	}
	err = d.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(n.OrderID),
		Value: payload,
	})
	if err != nil {
		return errors.Wrap(err, "write notification")
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (d *KafkaDispatcher) Close() error {
	return d.writer.Close()
}
