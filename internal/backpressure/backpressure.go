// Package backpressure decides whether a droppable send is admissible
// given the transport's current outbound queue depth. It is the only
// congestion control in the channel layer: newest droppable data is shed
// first, nothing ever blocks or queues here.
package backpressure

import (
	"errors"
	"fmt"

	"edgelink/internal/transport"
)

// ErrBackPressure is returned when a droppable send must be shed. It is an
// expected outcome under congestion, not a transport failure.
var ErrBackPressure = errors.New("back pressure exceeded")

// QueueReporter exposes the outbound queue depth for a connection.
type QueueReporter interface {
	QueueDepth(to transport.ConnID) int
}

// Controller applies the admission policy.
type Controller struct {
	reporter QueueReporter
	size     int // 0 disables back pressure
}

// New creates a controller. size is the maximum tolerated queue depth; 0
// disables the check entirely, negative values are rejected.
func New(reporter QueueReporter, size int) (*Controller, error) {
	if size < 0 {
		return nil, fmt.Errorf("invalid value for back_pressure_size: %d", size)
	}
	return &Controller{reporter: reporter, size: size}, nil
}

// Enabled reports whether a threshold is configured.
func (c *Controller) Enabled() bool { return c.size > 0 }

// Admit decides whether a send may proceed. Non-droppable sends and sends
// on a disabled controller always pass. This is a point-in-time decision;
// it never blocks.
func (c *Controller) Admit(conn transport.ConnID, droppable bool) error {
	if !droppable || c.size == 0 {
		return nil
	}
	if depth := c.reporter.QueueDepth(conn); depth > c.size {
		return fmt.Errorf("%w: queue depth %d > %d", ErrBackPressure, depth, c.size)
	}
	return nil
}
