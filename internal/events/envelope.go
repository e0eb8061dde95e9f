package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// Envelope is what goes on the wire. Consumers deduplicate on
// (DeliveryID, Type); Sequence orders the events of one delivery.
type Envelope struct {
	EventID    string          `json:"event_id"`
	DeliveryID string          `json:"delivery_id"`
	Sequence   int             `json:"sequence"`
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// DedupeKey identifies the fact an envelope carries, independent of how
// many times it was delivered.
func (e Envelope) DedupeKey() string {
	return e.DeliveryID + "/" + e.Type
}

func (e Envelope) Decode(v Payload) error {
	if v.EventType() != e.Type {
		return fmt.Errorf("%w: want %s, got %s", ErrUnexpectedType, v.EventType(), e.Type)
	}
	return json.Unmarshal(e.Payload, v)
}
