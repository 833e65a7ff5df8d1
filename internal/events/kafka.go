package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// MessageWriter is the subset of *kafka.Writer the forwarder needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaForwarder copies bus events onto a Kafka topic keyed by booking id.
type KafkaForwarder struct {
	writer  MessageWriter
	timeout time.Duration
	logger  *zerolog.Logger
}

// NewKafkaWriter builds a hash-balanced writer so one booking always lands on one partition.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
}

func NewKafkaForwarder(writer MessageWriter, logger *zerolog.Logger) *KafkaForwarder {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &KafkaForwarder{writer: writer, timeout: 5 * time.Second, logger: logger}
}

// Attach subscribes the forwarder to the given event types.
func (f *KafkaForwarder) Attach(bus *EventBus, eventTypes ...string) {
	for _, t := range eventTypes {
		bus.Subscribe(t, f.Handle)
	}
}

// Handle is an EventHandler. Write failures are logged and returned.
func (f *KafkaForwarder) Handle(event *Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(messageKey(event)),
		Value: event.Payload,
		Time:  event.CreatedAt,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(event.ID)},
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}
	if err := f.writer.WriteMessages(ctx, msg); err != nil {
		f.logger.Error().Err(err).Str("event_type", event.Type).Str("event_id", event.ID).Msg("kafka forward failed")
		return fmt.Errorf("forward %s to kafka: %w", event.Type, err)
	}
	return nil
}

func (f *KafkaForwarder) Close() error {
	return f.writer.Close()
}

// messageKey is the booking id when the payload carries one, else the event id.
func messageKey(event *Event) string {
	var probe struct {
		BookingID int64  `json:"booking_id"`
		Date      string `json:"date"`
	}
	if err := json.Unmarshal(event.Payload, &probe); err == nil {
		if probe.BookingID != 0 {
			return strconv.FormatInt(probe.BookingID, 10)
		}
		if probe.Date != "" {
			return probe.Date
		}
	}
	return event.ID
}
