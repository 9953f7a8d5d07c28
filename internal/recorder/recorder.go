// Package recorder persists periodic frame snapshots to a storage
// backend for offline inspection of live streams.
package recorder

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"edgelink/internal/codec"
	"edgelink/internal/storage"
	"edgelink/pkg/models"
)

// Recorder writes every Nth decoded frame of a stream to storage as a
// JPEG snapshot. Snapshots land under <stream>/<timestamp>.jpg.
type Recorder struct {
	store storage.Storage
	every int
	log   *logrus.Entry

	mu     sync.Mutex
	counts map[string]int
}

// New returns a recorder that snapshots one frame out of every `every`
// per stream. An `every` below 1 is rejected.
func New(store storage.Storage, every int) (*Recorder, error) {
	if store == nil {
		return nil, fmt.Errorf("recorder: storage is required")
	}
	if every < 1 {
		return nil, fmt.Errorf("recorder: snapshot interval must be at least 1, got %d", every)
	}
	return &Recorder{
		store:  store,
		every:  every,
		log:    logrus.WithField("component", "recorder"),
		counts: make(map[string]int),
	}, nil
}

// Record counts a decoded frame for the stream and persists it if it
// falls on the snapshot interval. Storage failures are logged, not
// returned: recording must never disturb the decode pipeline.
func (r *Recorder) Record(stream string, rec *models.DecodedRecord) {
	if rec == nil || rec.Frame == nil {
		return
	}

	r.mu.Lock()
	r.counts[stream]++
	n := r.counts[stream]
	r.mu.Unlock()

	if n%r.every != 0 {
		return
	}

	data, err := codec.EncodeJPEG(rec.Frame)
	if err != nil {
		r.log.WithError(err).WithField("stream", stream).Warn("Failed to encode snapshot")
		return
	}

	path := fmt.Sprintf("%s/%d.jpg", stream, rec.Timestamp)
	if err := r.store.Write(path, data); err != nil {
		r.log.WithError(err).WithField("path", path).Warn("Failed to persist snapshot")
		return
	}
	r.log.WithFields(logrus.Fields{
		"stream": stream,
		"path":   path,
	}).Debug("Persisted snapshot")
}

// Count returns how many frames have been seen for a stream.
func (r *Recorder) Count(stream string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[stream]
}
