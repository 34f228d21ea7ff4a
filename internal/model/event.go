package model

import (
	"encoding/json"
	"time"
)

// EventType identifies the kind of event fanned out to subscribers.
type EventType string

const (
	EventNewSignal      EventType = "new_signal"
	EventPositionClosed EventType = "position_closed"
	EventTakeProfitHit  EventType = "take_profit_hit"
	EventStopLossHit    EventType = "stop_loss_hit"
	EventWelcome        EventType = "welcome"
	EventHeartbeat      EventType = "heartbeat"
)

// Event is the typed envelope pushed to every connected subscriber.
// Delivery is best-effort per subscriber: a slow or dead subscriber
// never blocks the producing component or other subscribers.
type Event struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	TS      time.Time       `json:"ts"`
	Seq     int64           `json:"seq"`
}

// NewEvent builds an event with a marshalled payload. Marshal failures
// produce an event with an empty payload rather than an error; event
// emission must never fail the producing pipeline.
func NewEvent(typ EventType, payload interface{}) Event {
	raw, err := json.Marshal(payload)
	if err != nil {
		raw = nil
	}
	return Event{Type: typ, Payload: raw, TS: time.Now().UTC()}
}
