package channels

import (
	"errors"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/sirupsen/logrus"

	"edgelink/internal/registry"
	"edgelink/internal/transport"
	"edgelink/pkg/models"
)

// ClientChannels is the client-side channel set. It talks to a single
// peer, so sends never name a target connection and callbacks do not
// receive a sender identity.
type ClientChannels struct {
	*Channels
	bindings map[string]Binding
}

// NewClient registers the given bindings on the transport and returns a
// channel set ready to send and dispatch.
func NewClient(tr transport.Transport, reg *registry.Registry, bindings map[string]Binding, opts Options) (*ClientChannels, error) {
	infos := make(map[string]channelInfo, len(bindings))
	for event, b := range bindings {
		if err := b.validate(event); err != nil {
			return nil, err
		}
		infos[event] = b.info()
	}

	core, err := newChannels(tr, reg, infos, opts)
	if err != nil {
		return nil, err
	}
	cc := &ClientChannels{Channels: core, bindings: bindings}

	tr.On(DataErrorEvent, cc.handleDataError)
	for event, b := range bindings {
		event, b := event, b
		tr.On(event, func(from transport.ConnID, payload []byte) {
			cc.dispatch(event, b, from, payload)
		})
	}
	tr.OnDisconnect(func(conn transport.ConnID) {
		reg.DropConnection(conn)
	})

	return cc, nil
}

// Send emits a structured payload on the given event using the binding's
// channel type.
func (c *ClientChannels) Send(event string, data map[string]interface{}, droppable bool) (bool, error) {
	info, ok := c.info[event]
	if !ok {
		return false, fmt.Errorf("send on %q: no binding for event", event)
	}
	return c.SendData(data, event, info.Type, "", droppable)
}

// SendFrame encodes and emits a frame on the given event using the
// binding's channel type.
func (c *ClientChannels) SendFrame(event string, frame *models.Frame, timestamp int64, metadata map[string]interface{}, droppable bool, encodingOptions map[string]string) (bool, error) {
	info, ok := c.info[event]
	if !ok {
		return false, fmt.Errorf("send frame on %q: no binding for event", event)
	}
	return c.SendImage(frame, event, info.Type, timestamp, metadata, "", droppable, encodingOptions)
}

func (c *ClientChannels) dispatch(event string, b Binding, from transport.ConnID, payload []byte) {
	switch b.Type {
	case ChannelTypeJSON:
		data := make(map[string]interface{})
		if err := json.Unmarshal(payload, &data); err != nil {
			c.sendError(event, 0, fmt.Sprintf("unmarshal failed: %v", err), from)
			return
		}
		c.invoke("json", event, func() { b.JSON(data) })

	case ChannelTypeJSONLZ4:
		data := c.DecodeJSONLZ4(payload, event, from)
		if data == nil {
			return
		}
		c.invoke("json", event, func() { b.JSON(data) })

	case ChannelTypeJPEG, ChannelTypeH264:
		var env models.Envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			c.sendError(event, 0, fmt.Sprintf("unmarshal envelope failed: %v", err), from)
			return
		}
		rec, err := c.DecodeImage(&env, event, from)
		if err != nil {
			if errors.Is(err, ErrStreamFatal) {
				c.log.WithError(err).WithFields(logrus.Fields{
					"event": event,
					"conn":  from,
				}).Error("Abandoning stream")
			}
			return
		}
		if rec == nil {
			return
		}
		c.invoke("image", event, func() { b.Image(rec) })
	}
}
