package events

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

const (
	EventBookingCreated = "booking_created"
	EventPaymentCharged = "payment_charged"
	EventSagaCompleted  = "saga_completed"
	EventSagaFailed     = "saga_failed"
)

// SagaEventPayload is the minimal saga snapshot handed to event consumers.
type SagaEventPayload struct {
	SagaID     string    `json:"saga_id"`
	State      string    `json:"state"`
	BookingRef string    `json:"booking_ref,omitempty"`
	PaymentID  string    `json:"payment_id,omitempty"`
	Amount     int64     `json:"amount,omitempty"`
	Currency   string    `json:"currency,omitempty"`
	FailedStep string    `json:"failed_step,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	StartAt    time.Time `json:"start_at"`
}

// Event is one published occurrence. ID is a process-local sequence number
// assigned at publish time.
type Event struct {
	ID        int64
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// Saga decodes the payload as a SagaEventPayload.
func (e *Event) Saga() (SagaEventPayload, error) {
	var p SagaEventPayload
	err := json.Unmarshal(e.Payload, &p)
	return p, err
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for saga lifecycle events.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[string][]EventHandler
	seq         atomic.Int64
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish delivers the event to every subscriber of its type. Handlers run
// synchronously; caller decides concurrency model.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	event.ID = b.seq.Add(1)
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		_ = handler(event)
	}
}

// PublishJSON serializes the payload and publishes an event. A nil bus
// swallows the publish so callers need no guard.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw})
	return nil
}
