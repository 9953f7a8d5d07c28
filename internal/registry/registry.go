// Package registry owns all per-stream codec state. Each active logical
// stream — one event name on one connection — gets its own encoder or
// decoder adapter, created lazily on first use and dropped with the
// connection.
package registry

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"edgelink/internal/codec"
	"edgelink/internal/transport"
)

// StreamKey identifies one channel instance on one connection.
type StreamKey struct {
	Conn  transport.ConnID
	Event string
}

func (k StreamKey) String() string {
	return string(k.Conn) + "/" + k.Event
}

// State holds the codec and ordering state for one stream. It is created
// once per StreamKey and mutated in place; the registry never shares it
// across keys. Callers take the lock around every adapter use so that no
// two invocations touch the same stream concurrently, while different
// streams never contend.
type State struct {
	mu            sync.Mutex
	Adapter       *codec.Adapter
	LastTimestamp int64
	lastSeen      time.Time
}

// Lock takes the stream's single-writer lock.
func (s *State) Lock() { s.mu.Lock() }

// Unlock releases the stream's single-writer lock.
func (s *State) Unlock() { s.mu.Unlock() }

// Touch records stream activity for diagnostics. Call with the lock held.
func (s *State) Touch() { s.lastSeen = time.Now() }

// Registry maps StreamKeys to their codec state.
type Registry struct {
	mu       sync.Mutex
	encoders map[StreamKey]*State
	decoders map[StreamKey]*State

	newEncoder codec.EncoderFactory
	newDecoder codec.DecoderFactory

	log *logrus.Entry
}

// New creates a registry that builds codecs through the given factories.
func New(newEncoder codec.EncoderFactory, newDecoder codec.DecoderFactory) *Registry {
	return &Registry{
		encoders:   make(map[StreamKey]*State),
		decoders:   make(map[StreamKey]*State),
		newEncoder: newEncoder,
		newDecoder: newDecoder,
		log:        logrus.WithField("component", "registry"),
	}
}

// GetOrCreateEncoder returns the encoder state for the key, constructing
// it on first use. Creation happens exactly once per key: the first
// observed geometry and options are authoritative for the stream's
// lifetime, later arguments are ignored. created reports whether this call
// performed the construction. A construction failure is fatal for this
// attempt only; it leaves no state behind and other streams are unaffected.
func (r *Registry) GetOrCreateEncoder(key StreamKey, width, height int, options map[string]string) (*State, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if st, ok := r.encoders[key]; ok {
		return st, false, nil
	}

	r.log.WithFields(logrus.Fields{
		"stream":   key.String(),
		"geometry": fmt.Sprintf("%dx%d", width, height),
	}).Info("Creating encoder")

	adapter, err := codec.NewEncoderAdapter(r.newEncoder, width, height, options)
	if err != nil {
		return nil, false, err
	}
	st := &State{Adapter: adapter, lastSeen: time.Now()}
	r.encoders[key] = st
	return st, true, nil
}

// GetOrCreateDecoder returns the decoder state for the key, constructing
// it on first use with the same exactly-once semantics as the encoder side.
func (r *Registry) GetOrCreateDecoder(key StreamKey, width, height int) (*State, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if st, ok := r.decoders[key]; ok {
		return st, false, nil
	}

	r.log.WithFields(logrus.Fields{
		"stream":   key.String(),
		"geometry": fmt.Sprintf("%dx%d", width, height),
	}).Info("Creating decoder")

	adapter, err := codec.NewDecoderAdapter(r.newDecoder, width, height)
	if err != nil {
		return nil, false, err
	}
	st := &State{Adapter: adapter, lastSeen: time.Now()}
	r.decoders[key] = st
	return st, true, nil
}

// Encoder returns the existing encoder state for the key, if any.
func (r *Registry) Encoder(key StreamKey) (*State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.encoders[key]
	return st, ok
}

// Decoder returns the existing decoder state for the key, if any.
func (r *Registry) Decoder(key StreamKey) (*State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.decoders[key]
	return st, ok
}

// DropConnection releases all codec state belonging to a connection.
// Wired as the transport's disconnect hook.
func (r *Registry) DropConnection(conn transport.ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Take each stream's lock before closing: an Encode or Decode in
	// flight on another goroutine must finish before its codec is torn
	// down.
	dropped := 0
	for key, st := range r.encoders {
		if key.Conn == conn {
			st.Lock()
			st.Adapter.Close()
			st.Unlock()
			delete(r.encoders, key)
			dropped++
		}
	}
	for key, st := range r.decoders {
		if key.Conn == conn {
			st.Lock()
			st.Adapter.Close()
			st.Unlock()
			delete(r.decoders, key)
			dropped++
		}
	}
	if dropped > 0 {
		r.log.WithFields(logrus.Fields{"conn": conn, "streams": dropped}).Info("Dropped codec state for connection")
	}
}

// StreamCount returns the number of active streams (encoders + decoders).
func (r *Registry) StreamCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.encoders) + len(r.decoders)
}

// StreamInfo is a diagnostic snapshot of one stream's codec state.
type StreamInfo struct {
	Connection    string `json:"connection"`
	Event         string `json:"event"`
	Kind          string `json:"kind"` // "encoder" or "decoder"
	Width         int    `json:"width"`
	Height        int    `json:"height"`
	LastTimestamp int64  `json:"last_timestamp"`
	InitCount     int    `json:"init_count"`
	LastSeen      string `json:"last_seen"`
}

// Snapshot lists every active stream for diagnostics.
func (r *Registry) Snapshot() []StreamInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	infos := make([]StreamInfo, 0, len(r.encoders)+len(r.decoders))
	appendInfo := func(key StreamKey, st *State, kind string) {
		st.Lock()
		infos = append(infos, StreamInfo{
			Connection:    string(key.Conn),
			Event:         key.Event,
			Kind:          kind,
			Width:         st.Adapter.Width(),
			Height:        st.Adapter.Height(),
			LastTimestamp: st.LastTimestamp,
			InitCount:     st.Adapter.InitCount(),
			LastSeen:      st.lastSeen.Format(time.RFC3339),
		})
		st.Unlock()
	}
	for key, st := range r.encoders {
		appendInfo(key, st, "encoder")
	}
	for key, st := range r.decoders {
		appendInfo(key, st, "decoder")
	}
	return infos
}
