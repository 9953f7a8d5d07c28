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

// ServerChannels is the server-side channel set. It serves many peers at
// once, so sends must name a target connection and callbacks receive the
// sender's connection identity.
type ServerChannels struct {
	*Channels
	bindings map[string]ServerBinding
}

// NewServer registers the given bindings on the transport and returns a
// channel set ready to send and dispatch.
func NewServer(tr transport.Transport, reg *registry.Registry, bindings map[string]ServerBinding, opts Options) (*ServerChannels, error) {
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
	sc := &ServerChannels{Channels: core, bindings: bindings}

	tr.On(DataErrorEvent, sc.handleDataError)
	for event, b := range bindings {
		event, b := event, b
		tr.On(event, func(from transport.ConnID, payload []byte) {
			sc.dispatch(event, b, from, payload)
		})
	}
	tr.OnDisconnect(func(conn transport.ConnID) {
		reg.DropConnection(conn)
	})

	return sc, nil
}

// Send emits a structured payload to the named peer using the binding's
// channel type.
func (s *ServerChannels) Send(event string, data map[string]interface{}, to transport.ConnID, droppable bool) (bool, error) {
	info, ok := s.info[event]
	if !ok {
		return false, fmt.Errorf("send on %q: no binding for event", event)
	}
	return s.SendData(data, event, info.Type, to, droppable)
}

// SendFrame encodes and emits a frame to the named peer using the
// binding's channel type.
func (s *ServerChannels) SendFrame(event string, frame *models.Frame, timestamp int64, metadata map[string]interface{}, to transport.ConnID, droppable bool, encodingOptions map[string]string) (bool, error) {
	info, ok := s.info[event]
	if !ok {
		return false, fmt.Errorf("send frame on %q: no binding for event", event)
	}
	return s.SendImage(frame, event, info.Type, timestamp, metadata, to, droppable, encodingOptions)
}

func (s *ServerChannels) dispatch(event string, b ServerBinding, from transport.ConnID, payload []byte) {
	switch b.Type {
	case ChannelTypeJSON:
		data := make(map[string]interface{})
		if err := json.Unmarshal(payload, &data); err != nil {
			s.sendError(event, 0, fmt.Sprintf("unmarshal failed: %v", err), from)
			return
		}
		s.invoke("json", event, func() { b.JSON(from, data) })

	case ChannelTypeJSONLZ4:
		data := s.DecodeJSONLZ4(payload, event, from)
		if data == nil {
			return
		}
		s.invoke("json", event, func() { b.JSON(from, data) })

	case ChannelTypeJPEG, ChannelTypeH264:
		var env models.Envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			s.sendError(event, 0, fmt.Sprintf("unmarshal envelope failed: %v", err), from)
			return
		}
		rec, err := s.DecodeImage(&env, event, from)
		if err != nil {
			if errors.Is(err, ErrStreamFatal) {
				s.log.WithError(err).WithFields(logrus.Fields{
					"event": event,
					"conn":  from,
				}).Error("Abandoning stream")
			}
			return
		}
		if rec == nil {
			return
		}
		s.invoke("image", event, func() { b.Image(from, rec) })
	}
}
