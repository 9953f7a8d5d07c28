// Package transport provides the bidirectional event transport the channel
// layer rides on: named events with opaque payloads exchanged over one
// persistent connection per peer, with a bounded outbound queue whose
// depth drives back-pressure decisions upstream.
package transport

import "errors"

// ConnID identifies one low-level connection. It is stable for the
// lifetime of the connection: the server assigns one per accepted peer,
// the client carries a single id of its own across reconnects.
type ConnID string

// Handler receives one inbound event payload. from is the connection
// identity of the peer that sent it. Handlers for a given connection are
// invoked serially, in arrival order.
type Handler func(from ConnID, payload []byte)

// ErrNotConnected is returned by Emit when the target connection is not
// currently usable.
var ErrNotConnected = errors.New("peer not connected")

// Transport is the boundary the channel layer depends on.
type Transport interface {
	// Emit sends payload as the named event. to selects the peer
	// connection on the server side; the client side ignores it.
	Emit(event string, payload []byte, to ConnID) error

	// On registers the handler for an event name. One handler per event;
	// a second registration replaces the first.
	On(event string, h Handler)

	// OnDisconnect registers a hook invoked after a connection goes away.
	OnDisconnect(hook func(ConnID))

	// QueueDepth returns the current outbound queue depth for the
	// connection, the input to back-pressure admission.
	QueueDepth(to ConnID) int

	// IsConnected reports whether the connection is currently usable.
	IsConnected(to ConnID) bool

	// LocalID returns this side's own connection identity. Empty on the
	// server side, which has no singleton connection of its own.
	LocalID() ConnID
}

// Reconnector is implemented by transports that reestablish dropped
// connections on their own. Senders that block waiting for reconnection
// poll it to know when to give up.
type Reconnector interface {
	Reconnecting() bool
}
