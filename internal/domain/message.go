package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedMessage is returned when a frame is not a JSON object with a string "type".
var ErrMalformedMessage = errors.New("malformed message")

// Message is the wire envelope exchanged with the realtime backend.
// Type is the discriminant; Fields holds every other top-level key.
// Raw keeps the original frame so handlers can decode typed payloads.
type Message struct {
	Type   string
	Fields map[string]any
	Raw    json.RawMessage
}

// NewMessage builds an outbound message.
func NewMessage(msgType string, fields map[string]any) Message {
	return Message{Type: msgType, Fields: fields}
}

// ParseMessage decodes an inbound frame.
func ParseMessage(data []byte) (Message, error) {
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if obj == nil {
		return Message{}, fmt.Errorf("%w: not an object", ErrMalformedMessage)
	}

	t, ok := obj["type"].(string)
	if !ok || t == "" {
		return Message{}, fmt.Errorf("%w: missing type", ErrMalformedMessage)
	}
	delete(obj, "type")

	raw := make(json.RawMessage, len(data))
	copy(raw, data)
	return Message{Type: t, Fields: obj, Raw: raw}, nil
}

// String returns the string field key, or "" when absent or not a string.
func (m Message) String(key string) string {
	s, _ := m.Fields[key].(string)
	return s
}

// Decode unmarshals the original frame into v.
func (m Message) Decode(v any) error {
	if len(m.Raw) == 0 {
		b, err := m.MarshalJSON()
		if err != nil {
			return err
		}
		return json.Unmarshal(b, v)
	}
	return json.Unmarshal(m.Raw, v)
}

// MarshalJSON flattens the message into {"type": ..., <fields>}.
func (m Message) MarshalJSON() ([]byte, error) {
	if m.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedMessage)
	}
	out := make(map[string]any, len(m.Fields)+1)
	for k, v := range m.Fields {
		out[k] = v
	}
	out["type"] = m.Type
	return json.Marshal(out)
}

// UnmarshalJSON allows messages to be embedded in JSON documents (poll responses, request bodies).
func (m *Message) UnmarshalJSON(data []byte) error {
	parsed, err := ParseMessage(data)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
