package protocol

import (
	"encoding/json"
	"fmt"
)

// Envelope is the outer JSON frame for every message on the signaling socket.
// Data holds the event-specific payload and may be absent for bare events
// such as "stop" or "doneTyping".
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode builds the wire bytes for an event. A nil payload produces a bare
// envelope with no data field.
func Encode(event string, payload any) ([]byte, error) {
	env := Envelope{Event: event}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", event, err)
		}
		env.Data = data
	}
	return json.Marshal(env)
}

// Decode parses the wire bytes into an envelope. The payload stays raw until
// the handler binds it to a concrete type.
func Decode(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Event == "" {
		return nil, fmt.Errorf("decode envelope: missing event name")
	}
	return &env, nil
}

// Bind unmarshals the envelope payload into v.
func (e *Envelope) Bind(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("bind %s: empty payload", e.Event)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("bind %s payload: %w", e.Event, err)
	}
	return nil
}

// Text returns the payload as a plain string, tolerating both JSON strings
// and raw text. Several server events ("searching", "goodBye", ...) carry a
// human-readable banner in this form.
func (e *Envelope) Text() string {
	if len(e.Data) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(e.Data, &s); err == nil {
		return s
	}
	return string(e.Data)
}
