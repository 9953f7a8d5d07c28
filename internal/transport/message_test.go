package transport

import (
	"bytes"
	"testing"
)

func TestMessageRoundTrip(t *testing.T) {
	payload := []byte(`{"timestamp":123}`)

	data, err := encodeMessage("image_h264", payload)
	if err != nil {
		t.Fatalf("encodeMessage() error = %v", err)
	}

	msg, err := decodeMessage(data)
	if err != nil {
		t.Fatalf("decodeMessage() error = %v", err)
	}
	if msg.Event != "image_h264" {
		t.Errorf("Event = %q, want %q", msg.Event, "image_h264")
	}
	if !bytes.Equal(msg.Payload, payload) {
		t.Errorf("Payload = %q, want %q", msg.Payload, payload)
	}
}

func TestMessageBinaryPayload(t *testing.T) {
	payload := []byte{0x00, 0x01, 0xFF, 0xFE, 0x7F}

	data, err := encodeMessage("raw", payload)
	if err != nil {
		t.Fatalf("encodeMessage() error = %v", err)
	}
	msg, err := decodeMessage(data)
	if err != nil {
		t.Fatalf("decodeMessage() error = %v", err)
	}
	if !bytes.Equal(msg.Payload, payload) {
		t.Errorf("binary payload corrupted: got %v, want %v", msg.Payload, payload)
	}
}

func TestDecodeMessageRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"not json", []byte("garbage")},
		{"missing event", []byte(`{"payload":"aGk="}`)},
		{"empty event", []byte(`{"event":"","payload":"aGk="}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := decodeMessage(tt.data); err == nil {
				t.Error("decodeMessage() expected error, got nil")
			}
		})
	}
}
