// Package channels multiplexes JSON messages and encoded video frames
// over one event transport connection. It owns the wire envelope framing,
// the per-stream codec lifecycle, back-pressure admission for droppable
// sends, and the decode/dispatch pipeline that routes inbound payloads to
// user callbacks.
package channels

import "errors"

// Namespaces and reserved event names on the wire. Data traffic rides the
// data namespace; the control namespace is reserved for the out-of-band
// command channel handled elsewhere.
const (
	DataNamespace  = "/data"
	DataErrorEvent = "data_error"

	ControlNamespace   = "/control"
	CommandEvent       = "command"
	CommandErrorEvent  = "command_error"
	CommandResultEvent = "command_result"
)

// ChannelType enumerates the payload encodings a channel can carry. The
// type is fixed per declared event name for the lifetime of the binding.
type ChannelType int

const (
	ChannelTypeJSON ChannelType = iota + 1
	ChannelTypeJPEG
	ChannelTypeH264
	ChannelTypeJSONLZ4
)

func (t ChannelType) String() string {
	switch t {
	case ChannelTypeJSON:
		return "JSON"
	case ChannelTypeJPEG:
		return "JPEG"
	case ChannelTypeH264:
		return "H264"
	case ChannelTypeJSONLZ4:
		return "JSON_LZ4"
	default:
		return "UNKNOWN"
	}
}

var (
	// ErrUnknownChannelType is returned when an operation is asked to
	// handle a channel type it does not support.
	ErrUnknownChannelType = errors.New("unknown channel type")

	// ErrConnRequired is returned by server-side sends that do not name a
	// target connection.
	ErrConnRequired = errors.New("connection id is required on the server side")

	// ErrStreamFatal wraps codec failures that exhausted the re-init
	// budget. The stream is abandoned; the caller decides whether the
	// whole connection goes with it.
	ErrStreamFatal = errors.New("stream failed permanently")
)
