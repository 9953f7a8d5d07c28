package models

// Envelope is the wire-level message exchanged on the data namespace.
// Frame carries the encoded image payload; Width/Height and H264 accompany
// H.264 frames (the geometry is mandatory on the first frame of a stream,
// the decoder cannot be constructed without it). Error is set on envelopes
// emitted to a channel's error event.
type Envelope struct {
	Timestamp int64                  `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Frame     []byte                 `json:"frame,omitempty"`
	H264      bool                   `json:"h264,omitempty"`
	Width     int                    `json:"width,omitempty"`
	Height    int                    `json:"height,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// DecodedRecord is the normalized result handed to image channel callbacks
// after a successful decode.
type DecodedRecord struct {
	Frame     *Frame
	Timestamp int64
	Metadata  map[string]interface{}
}
