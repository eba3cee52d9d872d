// Package common defines the wire envelope shared by every event family.
package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrMalformed marks a message that cannot be dispatched: the body is not
// JSON, or the event tag / data body is absent. Such messages are dropped,
// never requeued.
var ErrMalformed = errors.New("malformed envelope")

// Envelope is the unit exchanged over the bus.
type Envelope struct {
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`

	// MessageID rides in the broker message properties, not the JSON body.
	// Publishers that may retry a send set it explicitly so every attempt
	// carries the same id and consumer dedup can recognize the duplicate.
	// Empty means the publisher stamps a fresh one.
	MessageID string `json:"-"`
}

// New builds an envelope around a payload and stamps the publication time.
// The timestamp is taken exactly once, here.
func New(event string, data any) (Envelope, error) {
	body, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal event data: %w", err)
	}
	return Envelope{
		Event:     event,
		Data:      body,
		Timestamp: time.Now().UTC(),
	}, nil
}

// Marshal encodes the envelope for publishing. Pure over the declared fields.
func (e Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// DecodeData unmarshals the data body into a typed payload.
func (e Envelope) DecodeData(v any) error {
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("decode %s data: %w", e.Event, err)
	}
	return nil
}

// Decode parses a raw message body. Missing optional fields resolve to zero
// values; only a body that is not JSON, or that lacks the event tag or the
// data object, yields ErrMalformed.
func Decode(body []byte) (Envelope, error) {
	var raw struct {
		Event     *string         `json:"event"`
		Data      json.RawMessage `json:"data"`
		Timestamp *time.Time      `json:"timestamp"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if raw.Event == nil || *raw.Event == "" {
		return Envelope{}, fmt.Errorf("%w: missing event tag", ErrMalformed)
	}
	if len(raw.Data) == 0 || string(raw.Data) == "null" {
		return Envelope{}, fmt.Errorf("%w: missing data body", ErrMalformed)
	}
	env := Envelope{Event: *raw.Event, Data: raw.Data}
	if raw.Timestamp != nil {
		env.Timestamp = *raw.Timestamp
	}
	return env, nil
}
