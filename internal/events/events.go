package events

import (
	"encoding/json"
	"sync"
	"time"

	"tablebook/internal/models"

	"github.com/rs/zerolog"
)

// Reservation lifecycle event types.
const (
	ReservationCreated       = "reservation.created"
	ReservationStatusChanged = "reservation.status_changed"
	ReservationTablesChanged = "reservation.tables_assigned"
	ConfigReloaded           = "config.reloaded"
)

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Date      time.Time
	Payload   []byte
	CreatedAt time.Time
}

// ReservationPayload is the body of reservation events.
type ReservationPayload struct {
	ID         int64         `json:"id"`
	Reference  string        `json:"reference"`
	Date       string        `json:"date"`
	Start      string        `json:"start"`
	PartySize  int           `json:"party_size"`
	Area       models.Area   `json:"area"`
	Status     models.Status `json:"status"`
	PrevStatus models.Status `json:"prev_status,omitempty"`
	TableIDs   []int64       `json:"table_ids,omitempty"`
}

// NewReservationEvent builds an event carrying r.
func NewReservationEvent(eventType string, r *models.Reservation, prev models.Status) Event {
	payload, _ := json.Marshal(ReservationPayload{
		ID:         r.ID,
		Reference:  r.Reference,
		Date:       r.Date.Format(models.DateLayout),
		Start:      r.Start.String(),
		PartySize:  r.PartySize,
		Area:       r.Area,
		Status:     r.Status,
		PrevStatus: prev,
		TableIDs:   r.TableIDs,
	})
	return Event{Type: eventType, Date: r.Date, Payload: payload}
}

// DecodeReservation unmarshals a reservation event payload.
func DecodeReservation(e Event) (ReservationPayload, error) {
	var p ReservationPayload
	err := json.Unmarshal(e.Payload, &p)
	return p, err
}

// EventHandler reacts to an event.
type EventHandler func(event Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
	logger      zerolog.Logger
}

// NewEventBus constructs an empty bus.
func NewEventBus(logger zerolog.Logger) *EventBus {
	return &EventBus{
		subscribers: make(map[string][]EventHandler),
		logger:      logger.With().Str("component", "events").Logger(),
	}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// SubscribeAll registers a handler for several event types.
func (b *EventBus) SubscribeAll(handler EventHandler, eventTypes ...string) {
	for _, t := range eventTypes {
		b.Subscribe(t, handler)
	}
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		if err := handler(event); err != nil {
			b.logger.Warn().Err(err).Str("type", event.Type).Msg("event handler failed")
		}
	}
}
