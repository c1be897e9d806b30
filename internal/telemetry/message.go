package telemetry

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message is the unit of delivery. It is built once per publish and the same
// value is handed to every subscriber of its topic.
type Message struct {
	ID        string
	Topic     string
	Payload   Payload
	Timestamp time.Time
}

// Kind returns the payload kind, or "" for an empty message.
func (m Message) Kind() Kind {
	if m.Payload == nil {
		return ""
	}
	return m.Payload.Kind()
}

// Status returns the payload as a StatusUpdate when it is one.
func (m Message) Status() (StatusUpdate, bool) {
	s, ok := m.Payload.(StatusUpdate)
	return s, ok
}

// Usage returns the payload as a UsageUpdate when it is one.
func (m Message) Usage() (UsageUpdate, bool) {
	u, ok := m.Payload.(UsageUpdate)
	return u, ok
}

// Alert returns the payload as an AlertNotice when it is one.
func (m Message) Alert() (AlertNotice, bool) {
	a, ok := m.Payload.(AlertNotice)
	return a, ok
}

type wireMessage struct {
	ID        string          `json:"id"`
	Topic     string          `json:"topic"`
	Kind      Kind            `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"ts"`
}

// MarshalJSON encodes the message with an explicit kind tag.
func (m Message) MarshalJSON() ([]byte, error) {
	var raw json.RawMessage
	if m.Payload != nil {
		b, err := json.Marshal(m.Payload)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	return json.Marshal(wireMessage{
		ID:        m.ID,
		Topic:     m.Topic,
		Kind:      m.Kind(),
		Payload:   raw,
		Timestamp: m.Timestamp,
	})
}

// UnmarshalJSON decodes a message, choosing the payload type from its kind.
func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	p, err := DecodePayload(w.Kind, w.Payload)
	if err != nil {
		return err
	}
	*m = Message{ID: w.ID, Topic: w.Topic, Payload: p, Timestamp: w.Timestamp}
	return nil
}

// DecodePayload decodes raw JSON into the payload type named by kind.
func DecodePayload(kind Kind, raw json.RawMessage) (Payload, error) {
	switch kind {
	case KindStatus:
		var s StatusUpdate
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("decode status payload: %w", err)
		}
		return s, nil
	case KindUsage:
		var u UsageUpdate
		if err := json.Unmarshal(raw, &u); err != nil {
			return nil, fmt.Errorf("decode usage payload: %w", err)
		}
		return u, nil
	case KindAlert:
		var a AlertNotice
		if err := json.Unmarshal(raw, &a); err != nil {
			return nil, fmt.Errorf("decode alert payload: %w", err)
		}
		return a, nil
	}
	return nil, fmt.Errorf("unknown payload kind %q", kind)
}
