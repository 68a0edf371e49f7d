// Package hub provides a thread-safe websocket broadcast hub
// using the idiomatic Go channel-based fan-out pattern.
package hub

import (
	"encoding/json"
	"fmt"
)

// Message types exchanged with browser clients.
const (
	TypeSnapshot = "snapshot"
	TypePlay     = "play"
	TypePause    = "pause"
	TypeState    = "state"
)

// Envelope is the JSON text frame sent to and received from clients.
type Envelope struct {
	Type   string          `json:"type"`
	Paused *bool           `json:"paused,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope builds an envelope carrying v as its data. A nil v yields a
// bare {"type": ...} frame.
func NewEnvelope(msgType string, v interface{}) (Envelope, error) {
	env := Envelope{Type: msgType}
	if v == nil {
		return env, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return Envelope{}, fmt.Errorf("hub: encode %s: %w", msgType, err)
	}
	env.Data = data
	return env, nil
}

// Decode parses an inbound frame.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("hub: decode frame: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("hub: frame has no type")
	}
	return env, nil
}
