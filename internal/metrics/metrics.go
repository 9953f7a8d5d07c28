package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the channel layer. A nil
// *Metrics is valid and records nothing, so wiring stays optional.
type Metrics struct {
	// Frame metrics
	FramesSent     *prometheus.CounterVec
	FramesReceived *prometheus.CounterVec
	FramesDropped  *prometheus.CounterVec
	FrameBytes     *prometheus.HistogramVec
	KeyFrames      prometheus.Counter

	// Codec metrics
	CodecReinits *prometheus.CounterVec
	StreamsFatal prometheus.Counter

	// Stream / connection metrics
	ActiveStreams prometheus.Gauge
	Connections   prometheus.Gauge

	// Peer-reported errors
	DataErrors prometheus.Counter
}

// New creates and registers all metrics.
func New() *Metrics {
	return &Metrics{
		FramesSent: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edgelink_frames_sent_total",
				Help: "Total number of payloads sent, per event and channel type",
			},
			[]string{"event", "type"},
		),
		FramesReceived: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edgelink_frames_received_total",
				Help: "Total number of payloads decoded successfully, per event and channel type",
			},
			[]string{"event", "type"},
		),
		FramesDropped: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edgelink_frames_dropped_total",
				Help: "Total number of payloads dropped, per event and reason",
			},
			[]string{"event", "reason"},
		),
		FrameBytes: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "edgelink_frame_size_bytes",
				Help:    "Size of encoded frames in bytes",
				Buckets: prometheus.ExponentialBuckets(1024, 2, 10), // 1KB to ~512KB
			},
			[]string{"type"},
		),
		KeyFrames: promauto.NewCounter(prometheus.CounterOpts{
			Name: "edgelink_keyframes_total",
			Help: "Total number of keyframes encoded",
		}),
		CodecReinits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edgelink_codec_reinits_total",
				Help: "Total number of codec re-initialization attempts",
			},
			[]string{"kind"}, // encoder or decoder
		),
		StreamsFatal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "edgelink_streams_fatal_total",
			Help: "Total number of streams abandoned after exhausting codec re-init attempts",
		}),
		ActiveStreams: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "edgelink_active_streams",
			Help: "Number of streams with live codec state",
		}),
		Connections: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "edgelink_connections",
			Help: "Number of currently connected peers",
		}),
		DataErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "edgelink_data_errors_total",
			Help: "Total number of error envelopes received from peers",
		}),
	}
}

// RecordFrameSent records an outbound payload.
func (m *Metrics) RecordFrameSent(event, channelType string, size int, keyframe bool) {
	if m == nil {
		return
	}
	m.FramesSent.WithLabelValues(event, channelType).Inc()
	m.FrameBytes.WithLabelValues(channelType).Observe(float64(size))
	if keyframe {
		m.KeyFrames.Inc()
	}
}

// RecordFrameReceived records a successfully decoded inbound payload.
func (m *Metrics) RecordFrameReceived(event, channelType string) {
	if m == nil {
		return
	}
	m.FramesReceived.WithLabelValues(event, channelType).Inc()
}

// RecordDrop records a dropped payload.
func (m *Metrics) RecordDrop(event, reason string) {
	if m == nil {
		return
	}
	m.FramesDropped.WithLabelValues(event, reason).Inc()
}

// RecordReinit records a codec re-initialization attempt.
func (m *Metrics) RecordReinit(kind string) {
	if m == nil {
		return
	}
	m.CodecReinits.WithLabelValues(kind).Inc()
}

// RecordStreamFatal records a stream abandoned as unrecoverable.
func (m *Metrics) RecordStreamFatal() {
	if m == nil {
		return
	}
	m.StreamsFatal.Inc()
}

// RecordStreamOpened records new codec state.
func (m *Metrics) RecordStreamOpened() {
	if m == nil {
		return
	}
	m.ActiveStreams.Inc()
}

// RecordConnection tracks peer connect/disconnect.
func (m *Metrics) RecordConnection(delta int) {
	if m == nil {
		return
	}
	m.Connections.Add(float64(delta))
}

// RecordDataError records an error envelope reported by the peer.
func (m *Metrics) RecordDataError() {
	if m == nil {
		return
	}
	m.DataErrors.Inc()
}
