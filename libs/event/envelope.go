package event

import "encoding/json"

// Order event types carried on the envelope.
const (
	TypeOrderCreated = "ORDER_CREATED"
	TypeOrderDeleted = "ORDER_DELETED"
)

// Envelope is the generic container published to the order-event topic.
// Data is the payload serialized to a JSON string, so the transport and the
// fan-out layer stay payload-agnostic while still routing on EventType.
type Envelope struct {
	EventType string `json:"eventType"`
	Data      string `json:"data"`
}

// Wrap serializes payload into an Envelope tagged with eventType. No check
// is made that the payload matches the tag; a consumer that unwraps with the
// wrong target type fails at deserialization, not here.
func Wrap(eventType string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{EventType: eventType, Data: string(raw)}, nil
}

// Unwrap deserializes the envelope's payload into target.
func Unwrap(env Envelope, target any) error {
	return json.Unmarshal([]byte(env.Data), target)
}
