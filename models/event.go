package models

import "time"

// EventType names a realtime notification. Delivery is best effort: every
// event must also be recoverable by polling the ledger or the registry.
type EventType string

const (
	EventSeatBooked         EventType = "SEAT_BOOKED"
	EventSeatReleased       EventType = "SEAT_RELEASED"
	EventSeatChanged        EventType = "SEAT_CHANGED"
	EventSeatExtended       EventType = "SEAT_EXTENDED"
	EventSeatExpired        EventType = "SEAT_EXPIRED"
	EventSessionInvalidated EventType = "SESSION_INVALIDATED"
	EventPaymentCompleted   EventType = "PAYMENT_COMPLETED"
	EventPaymentFailed      EventType = "PAYMENT_FAILED"
	EventPaymentRefunded    EventType = "PAYMENT_REFUNDED"
)

// RealtimeEvent is the structured message published on a channel.
type RealtimeEvent struct {
	Type EventType      `json:"type"`
	At   time.Time      `json:"at"`
	Data map[string]any `json:"data,omitempty"`
}

func NewRealtimeEvent(t EventType, data map[string]any) RealtimeEvent {
	return RealtimeEvent{Type: t, At: time.Now().UTC(), Data: data}
}

// Payload flattens the event for transports that expect a plain map.
func (e RealtimeEvent) Payload() map[string]any {
	msg := map[string]any{
		"type": string(e.Type),
		"at":   e.At.Format(time.RFC3339),
	}
	for k, v := range e.Data {
		msg[k] = v
	}
	return msg
}
