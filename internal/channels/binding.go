package channels

import (
	"fmt"

	"edgelink/internal/transport"
	"edgelink/pkg/models"
)

// Binding declares one client-side channel: its payload encoding, the
// callback that consumes decoded payloads, and the event used to report
// problems with data the peer sent on it. Exactly one of JSON or Image
// must be set, matching the channel type. Bindings are immutable after
// registration.
type Binding struct {
	Type       ChannelType
	JSON       func(data map[string]interface{})
	Image      func(rec *models.DecodedRecord)
	ErrorEvent string // defaults to DataErrorEvent
}

// ServerBinding is the server-side variant; callbacks additionally receive
// the connection identity of the sending peer.
type ServerBinding struct {
	Type       ChannelType
	JSON       func(from transport.ConnID, data map[string]interface{})
	Image      func(from transport.ConnID, rec *models.DecodedRecord)
	ErrorEvent string
}

// channelInfo is the read-only view the core pipelines need for every
// declared event, regardless of role.
type channelInfo struct {
	Type       ChannelType
	ErrorEvent string
}

func (b Binding) validate(event string) error {
	switch b.Type {
	case ChannelTypeJSON, ChannelTypeJSONLZ4:
		if b.JSON == nil {
			return fmt.Errorf("channel %q: %s binding requires a JSON callback", event, b.Type)
		}
	case ChannelTypeJPEG, ChannelTypeH264:
		if b.Image == nil {
			return fmt.Errorf("channel %q: %s binding requires an Image callback", event, b.Type)
		}
	default:
		return fmt.Errorf("channel %q: %w: %d", event, ErrUnknownChannelType, b.Type)
	}
	return nil
}

func (b ServerBinding) validate(event string) error {
	switch b.Type {
	case ChannelTypeJSON, ChannelTypeJSONLZ4:
		if b.JSON == nil {
			return fmt.Errorf("channel %q: %s binding requires a JSON callback", event, b.Type)
		}
	case ChannelTypeJPEG, ChannelTypeH264:
		if b.Image == nil {
			return fmt.Errorf("channel %q: %s binding requires an Image callback", event, b.Type)
		}
	default:
		return fmt.Errorf("channel %q: %w: %d", event, ErrUnknownChannelType, b.Type)
	}
	return nil
}

func (b Binding) info() channelInfo {
	info := channelInfo{Type: b.Type, ErrorEvent: b.ErrorEvent}
	if info.ErrorEvent == "" {
		info.ErrorEvent = DataErrorEvent
	}
	return info
}

func (b ServerBinding) info() channelInfo {
	info := channelInfo{Type: b.Type, ErrorEvent: b.ErrorEvent}
	if info.ErrorEvent == "" {
		info.ErrorEvent = DataErrorEvent
	}
	return info
}
