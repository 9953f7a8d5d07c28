package channels

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/sirupsen/logrus"

	"edgelink/internal/backpressure"
	"edgelink/internal/codec"
	"edgelink/internal/metrics"
	"edgelink/internal/registry"
	"edgelink/internal/transport"
	"edgelink/pkg/models"
)

// DefaultRecreateAttempts is the number of codec re-initializations
// allowed per stream before it is declared unrecoverable.
const DefaultRecreateAttempts = 5

// reconnectPollInterval is how often a blocked send re-checks the
// connection while the transport is reconnecting.
const reconnectPollInterval = 1 * time.Second

// Options configures a Channels instance.
type Options struct {
	// BackPressureSize is the outbound queue depth above which droppable
	// payloads are discarded. Zero disables back-pressure checks.
	BackPressureSize int

	// RecreateAttempts bounds codec re-initializations per stream.
	// Zero means DefaultRecreateAttempts.
	RecreateAttempts int

	// Stats enables recording of encoded frame sizes.
	Stats bool

	// WaitForReconnection makes sends to the default peer block while the
	// transport is actively reconnecting instead of failing immediately.
	WaitForReconnection bool

	// Metrics is optional; nil records nothing.
	Metrics *metrics.Metrics
}

// Channels owns the send and receive pipelines shared by the client and
// server variants: per-stream codec state, back-pressure admission,
// timestamp ordering and error reporting.
type Channels struct {
	tr   transport.Transport
	info map[string]channelInfo
	reg  *registry.Registry
	bp   *backpressure.Controller
	opts Options
	log  *logrus.Entry

	statsMu sync.Mutex
	sizes   []int
}

func newChannels(tr transport.Transport, reg *registry.Registry, info map[string]channelInfo, opts Options) (*Channels, error) {
	if tr == nil {
		return nil, fmt.Errorf("channels: transport is required")
	}
	if reg == nil {
		return nil, fmt.Errorf("channels: registry is required")
	}
	if opts.RecreateAttempts == 0 {
		opts.RecreateAttempts = DefaultRecreateAttempts
	}
	if opts.RecreateAttempts < 0 {
		return nil, fmt.Errorf("channels: recreate attempts must not be negative, got %d", opts.RecreateAttempts)
	}
	bp, err := backpressure.New(tr, opts.BackPressureSize)
	if err != nil {
		return nil, fmt.Errorf("channels: %w", err)
	}
	return &Channels{
		tr:   tr,
		info: info,
		reg:  reg,
		bp:   bp,
		opts: opts,
		log:  logrus.WithField("component", "channels"),
	}, nil
}

// SendImage encodes a frame with the stream's codec and emits it on the
// given event. The returned bool reports whether the payload was handed
// to the transport; (false, nil) means it was dropped by back-pressure.
func (c *Channels) SendImage(frame *models.Frame, event string, chType ChannelType, timestamp int64, metadata map[string]interface{}, to transport.ConnID, droppable bool, encodingOptions map[string]string) (bool, error) {
	if chType != ChannelTypeJPEG && chType != ChannelTypeH264 {
		return false, fmt.Errorf("send image on %q: channel type %s: %w", event, chType, ErrUnknownChannelType)
	}
	if err := frame.Validate(); err != nil {
		return false, fmt.Errorf("send image on %q: %w", event, err)
	}
	if timestamp == 0 {
		timestamp = time.Now().UnixNano()
	}

	env := models.Envelope{
		Timestamp: timestamp,
		Metadata:  metadata,
	}
	keyframe := false

	switch chType {
	case ChannelTypeH264:
		key := registry.StreamKey{Conn: to, Event: event}
		st, created, err := c.reg.GetOrCreateEncoder(key, frame.Width, frame.Height, encodingOptions)
		if err != nil {
			return false, fmt.Errorf("send image on %q: create encoder: %w", event, err)
		}
		if created {
			c.opts.Metrics.RecordStreamOpened()
			c.log.WithFields(logrus.Fields{
				"stream": key.String(),
				"width":  frame.Width,
				"height": frame.Height,
			}).Info("Created H.264 encoder")
		}

		st.Lock()
		st.Touch()
		data, err := st.Adapter.Encode(frame)
		if err != nil {
			if codec.IsCodecError(err) {
				if st.Adapter.InitCount() < c.opts.RecreateAttempts {
					c.log.WithError(err).WithField("stream", key.String()).Warn("Encoder failed, re-initializing")
					c.opts.Metrics.RecordReinit("encoder")
					if rerr := st.Adapter.Reinit(); rerr != nil {
						c.log.WithError(rerr).WithField("stream", key.String()).Error("Encoder re-initialization failed")
					}
					st.Unlock()
					return false, fmt.Errorf("send image on %q: encode: %w", event, err)
				}
				st.Unlock()
				c.opts.Metrics.RecordStreamFatal()
				return false, fmt.Errorf("send image on %q: encoder failed %d times: %w", event, c.opts.RecreateAttempts, ErrStreamFatal)
			}
			st.Unlock()
			return false, fmt.Errorf("send image on %q: encode: %w", event, err)
		}
		keyframe = st.Adapter.LastFrameIsKeyframe()
		env.Frame = data
		env.H264 = true
		env.Width = st.Adapter.Width()
		env.Height = st.Adapter.Height()
		st.Unlock()

	case ChannelTypeJPEG:
		data, err := codec.EncodeJPEG(frame)
		if err != nil {
			return false, fmt.Errorf("send image on %q: encode: %w", event, err)
		}
		env.Frame = data
	}

	c.recordSize(len(env.Frame))

	payload, err := json.Marshal(&env)
	if err != nil {
		return false, fmt.Errorf("send image on %q: marshal envelope: %w", event, err)
	}

	// A keyframe is never droppable: losing it stalls the peer's decoder
	// until the next one arrives.
	sent, err := c.emit(event, payload, to, droppable && !keyframe)
	if err != nil {
		return false, err
	}
	if sent {
		c.opts.Metrics.RecordFrameSent(event, chType.String(), len(env.Frame), keyframe)
	} else {
		c.opts.Metrics.RecordDrop(event, "back_pressure")
	}
	return sent, nil
}

// SendData serializes a structured payload and emits it on the given
// event. The returned bool reports whether the payload was handed to
// the transport; (false, nil) means it was dropped by back-pressure.
func (c *Channels) SendData(data map[string]interface{}, event string, chType ChannelType, to transport.ConnID, droppable bool) (bool, error) {
	if chType != ChannelTypeJSON && chType != ChannelTypeJSONLZ4 {
		return false, fmt.Errorf("send data on %q: channel type %s: %w", event, chType, ErrUnknownChannelType)
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return false, fmt.Errorf("send data on %q: marshal: %w", event, err)
	}
	if chType == ChannelTypeJSONLZ4 {
		payload, err = compressLZ4(payload)
		if err != nil {
			return false, fmt.Errorf("send data on %q: compress: %w", event, err)
		}
	}

	c.recordSize(len(payload))

	sent, err := c.emit(event, payload, to, droppable)
	if err != nil {
		return false, err
	}
	if sent {
		c.opts.Metrics.RecordFrameSent(event, chType.String(), len(payload), false)
	} else {
		c.opts.Metrics.RecordDrop(event, "back_pressure")
	}
	return sent, nil
}

// emit runs back-pressure admission and hands the payload to the
// transport. (false, nil) means a droppable payload was discarded.
func (c *Channels) emit(event string, payload []byte, to transport.ConnID, droppable bool) (bool, error) {
	conn := to
	if conn == "" {
		// Server-side transports have no default peer.
		conn = c.tr.LocalID()
		if conn == "" {
			return false, fmt.Errorf("emit %q: %w", event, ErrConnRequired)
		}
	}

	if err := c.bp.Admit(conn, droppable); err != nil {
		if errors.Is(err, backpressure.ErrBackPressure) {
			c.log.WithFields(logrus.Fields{
				"event": event,
				"conn":  conn,
			}).Debug("Dropping payload due to back-pressure")
			return false, nil
		}
		return false, fmt.Errorf("emit %q: %w", event, err)
	}

	// When the transport is reconnecting, hold the send until the link
	// comes back rather than failing it.
	if c.opts.WaitForReconnection && to == "" {
		rc, ok := c.tr.(transport.Reconnector)
		for ok && !c.tr.IsConnected(conn) {
			if !rc.Reconnecting() {
				break
			}
			c.log.WithField("event", event).Info("Waiting for reconnection ...")
			time.Sleep(reconnectPollInterval)
		}
	}

	if err := c.tr.Emit(event, payload, to); err != nil {
		return false, fmt.Errorf("emit %q: %w", event, err)
	}
	return true, nil
}

// DecodeImage decodes an inbound image envelope. Recoverable failures
// are reported to the sender on the stream's error event and return
// (nil, nil); a non-nil error is returned only when the stream has
// exhausted its codec re-init budget and must be abandoned.
func (c *Channels) DecodeImage(env *models.Envelope, event string, from transport.ConnID) (*models.DecodedRecord, error) {
	if len(env.Frame) == 0 {
		c.sendError(event, env.Timestamp, "envelope carries no frame data", from)
		return nil, nil
	}

	// The channel's declared type decides the decode path; the wire flag
	// only has to agree with it. Trusting the flag would let a peer route
	// JPEG channels into stateful H.264 decoding or vice versa.
	chType := ChannelTypeJPEG
	if env.H264 {
		chType = ChannelTypeH264
	}
	if info, ok := c.info[event]; ok {
		if env.H264 != (info.Type == ChannelTypeH264) {
			c.sendError(event, env.Timestamp, fmt.Sprintf("h264 flag %t does not match %s channel", env.H264, info.Type), from)
			return nil, nil
		}
		chType = info.Type
	}

	var frame *models.Frame

	if chType == ChannelTypeH264 {
		key := registry.StreamKey{Conn: from, Event: event}
		st, ok := c.reg.Decoder(key)
		if !ok {
			if env.Width <= 0 || env.Height <= 0 {
				c.sendError(event, env.Timestamp, fmt.Sprintf("cannot create decoder without frame geometry (width=%d, height=%d)", env.Width, env.Height), from)
				return nil, nil
			}
			var created bool
			var err error
			st, created, err = c.reg.GetOrCreateDecoder(key, env.Width, env.Height)
			if err != nil {
				c.sendError(event, env.Timestamp, fmt.Sprintf("failed to create decoder: %v", err), from)
				return nil, nil
			}
			if created {
				c.opts.Metrics.RecordStreamOpened()
				c.log.WithFields(logrus.Fields{
					"stream": key.String(),
					"width":  env.Width,
					"height": env.Height,
				}).Info("Created H.264 decoder")
			}
		}

		st.Lock()
		if env.Timestamp < st.LastTimestamp {
			last := st.LastTimestamp
			st.Unlock()
			c.sendError(event, env.Timestamp, fmt.Sprintf("timestamp %d is older than last decoded timestamp %d", env.Timestamp, last), from)
			c.opts.Metrics.RecordDrop(event, "ordering")
			return nil, nil
		}
		st.LastTimestamp = env.Timestamp
		st.Touch()

		var err error
		frame, err = st.Adapter.Decode(env.Frame)
		if err != nil {
			if codec.IsCodecError(err) {
				if st.Adapter.InitCount() < c.opts.RecreateAttempts {
					c.log.WithError(err).WithField("stream", key.String()).Warn("Decoder failed, re-initializing")
					c.opts.Metrics.RecordReinit("decoder")
					if rerr := st.Adapter.Reinit(); rerr != nil {
						c.log.WithError(rerr).WithField("stream", key.String()).Error("Decoder re-initialization failed")
					}
					st.Unlock()
					c.sendError(event, env.Timestamp, fmt.Sprintf("decode failed: %v", err), from)
					c.opts.Metrics.RecordDrop(event, "codec")
					return nil, nil
				}
				st.Unlock()
				c.opts.Metrics.RecordStreamFatal()
				c.sendError(event, env.Timestamp, fmt.Sprintf("decoder failed %d times, abandoning stream", c.opts.RecreateAttempts), from)
				return nil, fmt.Errorf("decode image on %q: decoder failed %d times: %w", event, c.opts.RecreateAttempts, ErrStreamFatal)
			}
			st.Unlock()
			c.sendError(event, env.Timestamp, fmt.Sprintf("decode failed: %v", err), from)
			c.opts.Metrics.RecordDrop(event, "codec")
			return nil, nil
		}
		st.Unlock()
	} else {
		var err error
		frame, err = codec.DecodeJPEG(env.Frame)
		if err != nil {
			c.sendError(event, env.Timestamp, fmt.Sprintf("decode failed: %v", err), from)
			c.opts.Metrics.RecordDrop(event, "codec")
			return nil, nil
		}
	}

	c.opts.Metrics.RecordFrameReceived(event, chType.String())

	return &models.DecodedRecord{
		Frame:     frame,
		Timestamp: env.Timestamp,
		Metadata:  env.Metadata,
	}, nil
}

// DecodeJSONLZ4 decompresses and unmarshals an LZ4-framed JSON payload.
// Failures are reported to the sender and return nil.
func (c *Channels) DecodeJSONLZ4(data []byte, event string, from transport.ConnID) map[string]interface{} {
	raw, err := decompressLZ4(data)
	if err != nil {
		c.sendError(event, 0, fmt.Sprintf("decompress failed: %v", err), from)
		return nil
	}
	out := make(map[string]interface{})
	if err := json.Unmarshal(raw, &out); err != nil {
		c.sendError(event, 0, fmt.Sprintf("unmarshal failed: %v", err), from)
		return nil
	}
	return out
}

// sendError reports a receive-side failure back to the sender on the
// stream's error event. Error envelopes are never droppable.
func (c *Channels) sendError(event string, timestamp int64, msg string, to transport.ConnID) {
	c.log.WithFields(logrus.Fields{
		"event": event,
		"conn":  to,
	}).Error(msg)

	errorEvent := DataErrorEvent
	if info, ok := c.info[event]; ok && info.ErrorEvent != "" {
		errorEvent = info.ErrorEvent
	}

	payload, err := json.Marshal(&models.Envelope{
		Timestamp: timestamp,
		Error:     msg,
	})
	if err != nil {
		c.log.WithError(err).Warn("Failed to marshal error envelope")
		return
	}
	if _, err := c.emit(errorEvent, payload, to, false); err != nil {
		c.log.WithError(err).WithField("event", errorEvent).Warn("Failed to send error envelope")
	}
}

// handleDataError logs an error envelope reported by the peer.
func (c *Channels) handleDataError(from transport.ConnID, payload []byte) {
	var env models.Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		c.log.WithError(err).Warn("Received malformed error envelope")
		return
	}
	c.opts.Metrics.RecordDataError()
	c.log.WithFields(logrus.Fields{
		"conn":      from,
		"timestamp": env.Timestamp,
	}).Errorf("Peer reported error: %s", env.Error)
}

// invoke runs a user callback, terminating the process if it panics.
// A panicking callback leaves the application in an unknown state, so
// crashing is preferable to silently swallowing it.
func (c *Channels) invoke(kind, event string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.log.WithFields(logrus.Fields{
				"callback": kind,
				"event":    event,
				"panic":    r,
			}).Errorf("Unhandled panic in callback:\n%s", debug.Stack())
			logrus.Exit(1)
		}
	}()
	fn()
}

func (c *Channels) recordSize(n int) {
	if !c.opts.Stats {
		return
	}
	c.statsMu.Lock()
	c.sizes = append(c.sizes, n)
	c.statsMu.Unlock()
}

// Sizes returns a copy of the recorded payload sizes. Empty unless
// Options.Stats is set.
func (c *Channels) Sizes() []int {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	out := make([]int, len(c.sizes))
	copy(out, c.sizes)
	return out
}
