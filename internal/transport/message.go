package transport

import (
	"fmt"

	"github.com/goccy/go-json"
)

// wireMessage frames one event on the websocket. Payload is opaque to the
// transport: envelope JSON for most channels, raw LZ4 bytes for JSON_LZ4.
type wireMessage struct {
	Event   string `json:"event"`
	Payload []byte `json:"payload,omitempty"`
}

func encodeMessage(event string, payload []byte) ([]byte, error) {
	data, err := json.Marshal(wireMessage{Event: event, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("failed to encode wire message: %w", err)
	}
	return data, nil
}

func decodeMessage(data []byte) (*wireMessage, error) {
	var msg wireMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to decode wire message: %w", err)
	}
	if msg.Event == "" {
		return nil, fmt.Errorf("wire message has no event name")
	}
	return &msg, nil
}
