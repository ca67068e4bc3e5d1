package notify

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaEmailNotifier publishes outbound mail to a Kafka topic. cmd/worker consumes the topic and
// hands each message to the mail relay.
type KafkaEmailNotifier struct {
	writer messageWriter
	topic  string
}

// NewKafkaEmailNotifier returns a notifier writing to topic on brokers. Call Close when shutting down.
func NewKafkaEmailNotifier(brokers []string, topic string) (*KafkaEmailNotifier, error) {
	if len(brokers) == 0 || topic == "" {
		return nil, errors.New("notify: kafka brokers and topic are required")
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	return &KafkaEmailNotifier{writer: writer, topic: topic}, nil
}

// SendEmail serializes msg as JSON keyed by recipient, so mail to one address stays ordered.
func (n *KafkaEmailNotifier) SendEmail(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return n.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.To),
		Value: payload,
		Time:  time.Now().UTC(),
	})
}

// Close closes the Kafka writer.
func (n *KafkaEmailNotifier) Close() error {
	if n == nil || n.writer == nil {
		return nil
	}
	return n.writer.Close()
}

// DecodeMessage parses a Kafka message value written by KafkaEmailNotifier.
func DecodeMessage(value []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(value, &msg); err != nil {
		return Message{}, err
	}
	if msg.To == "" {
		return Message{}, errors.New("notify: message without recipient")
	}
	return msg, nil
}
