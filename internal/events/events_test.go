package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
)

func TestEventBus(t *testing.T) {
	bus := NewEventBus()

	var received *Event
	var callCount int

	handler := func(event *Event) error {
		received = event
		callCount++
		return nil
	}

	bus.Subscribe("test_event", handler)

	payload := map[string]string{"foo": "bar"}
	err := bus.PublishJSON("test_event", payload)
	if err != nil {
		t.Fatalf("PublishJSON failed: %v", err)
	}

	if callCount != 1 {
		t.Errorf("expected 1 call, got %d", callCount)
	}

	if received.Type != "test_event" {
		t.Errorf("expected type test_event, got %s", received.Type)
	}
	if received.ID == "" {
		t.Errorf("expected event id to be assigned")
	}

	var decoded map[string]string
	if err := json.Unmarshal(received.Payload, &decoded); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}

	if decoded["foo"] != "bar" {
		t.Errorf("expected foo=bar, got %s", decoded["foo"])
	}
}

func TestEventBusJoinsHandlerErrors(t *testing.T) {
	bus := NewEventBus()
	var count1, count2 int
	boom := errors.New("boom")

	bus.Subscribe("event", func(_ *Event) error { count1++; return boom })
	bus.Subscribe("event", func(_ *Event) error { count2++; return nil })

	err := bus.Publish(&Event{Type: "event"})

	if count1 != 1 || count2 != 1 {
		t.Errorf("expected both handlers to be called once, got %d and %d", count1, count2)
	}
	if !errors.Is(err, boom) {
		t.Errorf("expected handler error to surface, got %v", err)
	}
}

func TestEventBusNoSubscribers(t *testing.T) {
	bus := NewEventBus()
	if err := bus.Publish(&Event{Type: "unknown"}); err != nil {
		t.Errorf("Publish failed: %v", err)
	}
	if err := bus.PublishJSON("unknown", nil); err != nil {
		t.Errorf("PublishJSON failed: %v", err)
	}

	var nilBus *EventBus
	if err := nilBus.PublishJSON("unknown", nil); err != nil {
		t.Errorf("nil bus should be a no-op, got %v", err)
	}
}

func TestNewJSONEvent(t *testing.T) {
	payload := BookingEventPayload{BookingID: 123, Date: "2025-12-15", Slot: "09:00"}
	event, err := NewJSONEvent("type", payload)
	if err != nil {
		t.Fatalf("NewJSONEvent failed: %v", err)
	}

	if event.Type != "type" {
		t.Errorf("expected type, got %s", event.Type)
	}

	if event.CreatedAt.IsZero() {
		t.Errorf("expected CreatedAt to be set")
	}

	var decoded BookingEventPayload
	if err := json.Unmarshal(event.Payload, &decoded); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}

	if decoded.BookingID != 123 || decoded.Slot != "09:00" {
		t.Errorf("unexpected payload %+v", decoded)
	}
}

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaForwarder(t *testing.T) {
	bus := NewEventBus()
	writer := &fakeWriter{}
	fwd := NewKafkaForwarder(writer, nil)
	fwd.Attach(bus, EventBookingCreated, EventAvailabilityUpdated)

	if err := bus.PublishJSON(EventBookingCreated, BookingEventPayload{BookingID: 42, Date: "2025-12-15"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := bus.PublishJSON(EventAvailabilityUpdated, AvailabilityEventPayload{Date: "2025-12-24"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if len(writer.msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(writer.msgs))
	}
	if string(writer.msgs[0].Key) != "42" {
		t.Errorf("expected booking id key, got %q", writer.msgs[0].Key)
	}
	if string(writer.msgs[1].Key) != "2025-12-24" {
		t.Errorf("expected date key, got %q", writer.msgs[1].Key)
	}
	if string(writer.msgs[0].Headers[1].Value) != EventBookingCreated {
		t.Errorf("unexpected event_type header %q", writer.msgs[0].Headers[1].Value)
	}

	if err := fwd.Close(); err != nil || !writer.closed {
		t.Errorf("expected writer to be closed")
	}
}

func TestKafkaForwarderError(t *testing.T) {
	bus := NewEventBus()
	fwd := NewKafkaForwarder(&fakeWriter{err: errors.New("broker down")}, nil)
	fwd.Attach(bus, EventBookingCreated)

	err := bus.PublishJSON(EventBookingCreated, BookingEventPayload{BookingID: 1})
	if err == nil {
		t.Fatal("expected forwarding error")
	}
}

func TestNewKafkaWriter(t *testing.T) {
	w := NewKafkaWriter([]string{"localhost:9092"}, "slotbook.bookings")
	defer w.Close()

	if w.Topic != "slotbook.bookings" {
		t.Errorf("unexpected topic %s", w.Topic)
	}
	if _, ok := w.Balancer.(*kafka.Hash); !ok {
		t.Errorf("expected hash balancer, got %T", w.Balancer)
	}
}
