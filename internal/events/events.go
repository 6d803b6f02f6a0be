package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	EventReservationCreated     = "reservation_created"
	EventReservationRescheduled = "reservation_rescheduled"
	EventReservationCancelled   = "reservation_cancelled"
	EventReservationCheckedIn   = "reservation_checked_in"
	EventReservationPaid        = "reservation_paid"
	EventVoucherLocked          = "voucher_locked"
	EventVoucherEdited          = "voucher_edited"
	EventVoucherCancelled       = "voucher_cancelled"
	EventVoucherPaid            = "voucher_paid"
	EventInvoiceSettled         = "invoice_settled"
	EventReconcileRequired      = "voucher_reconcile_required"
)

// ReservationEventPayload is the reservation snapshot sent to consumers.
type ReservationEventPayload struct {
	ReservationID   int64     `json:"reservation_id"`
	CourtID         int64     `json:"court_id"`
	CustomerID      int64     `json:"customer_id"`
	Status          string    `json:"status"`
	Channel         string    `json:"channel,omitempty"`
	Start           time.Time `json:"start"`
	Reason          string    `json:"reason,omitempty"`
	CancellationFee int64     `json:"cancellation_fee,omitempty"`
	ChangedBy       string    `json:"changed_by,omitempty"`
}

type VoucherEventPayload struct {
	VoucherID      int64   `json:"voucher_id"`
	ReservationID  int64   `json:"reservation_id"`
	Status         string  `json:"status"`
	Fee            int64   `json:"fee,omitempty"`
	DeletedItemIDs []int64 `json:"deleted_item_ids,omitempty"`
}

type InvoiceEventPayload struct {
	InvoiceID     int64  `json:"invoice_id"`
	ReservationID *int64 `json:"reservation_id,omitempty"`
	VoucherID     *int64 `json:"voucher_id,omitempty"`
	Amount        int64  `json:"amount"`
	Method        string `json:"method"`
}

// Event represents a lightweight domain event.
type Event struct {
	ID        string
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	wildcard    []EventHandler
	onError     func(event *Event, err error)
	mu          sync.RWMutex
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

// SubscribeAll registers a handler that receives every event.
func (b *EventBus) SubscribeAll(handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.wildcard = append(b.wildcard, handler)
}

// OnError sets the callback for handler failures.
func (b *EventBus) OnError(fn func(event *Event, err error)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onError = fn
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	handlers = append(handlers, b.wildcard...)
	onError := b.onError
	b.mu.RUnlock()

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		if err := handler(event); err != nil && onError != nil {
			onError(event, err)
		}
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	event, err := NewJSONEvent(eventType, payload)
	if err != nil {
		return err
	}

	b.Publish(&event)
	return nil
}

// NewJSONEvent builds an Event with JSON payload for manual publishing.
func NewJSONEvent(eventType string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}

	return Event{ID: uuid.NewString(), Type: eventType, Payload: raw, CreatedAt: time.Now()}, nil
}
