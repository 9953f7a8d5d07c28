package codec

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"edgelink/pkg/models"
)

// Adapter wraps one encoder or decoder instance for a single stream. It
// remembers the construction arguments so the underlying codec can be
// discarded and rebuilt in place after a failure, and counts
// initializations — the initial construction included — so callers can
// enforce a retry ceiling.
//
// An Adapter is either an encoder or a decoder, never both. It is not safe
// for concurrent use; the stream registry serializes access per stream.
type Adapter struct {
	newEncoder EncoderFactory
	newDecoder DecoderFactory

	enc FrameEncoder
	dec FrameDecoder

	width   int
	height  int
	options map[string]string

	initCount    int
	lastKeyframe bool

	log *logrus.Entry
}

// NewEncoderAdapter constructs an encoder adapter. The initial construction
// counts as the first initialization.
func NewEncoderAdapter(factory EncoderFactory, width, height int, options map[string]string) (*Adapter, error) {
	enc, err := factory(width, height, options)
	if err != nil {
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}
	return &Adapter{
		newEncoder: factory,
		enc:        enc,
		width:      width,
		height:     height,
		options:    options,
		initCount:  1,
		log:        logrus.WithField("component", "codec"),
	}, nil
}

// NewDecoderAdapter constructs a decoder adapter.
func NewDecoderAdapter(factory DecoderFactory, width, height int) (*Adapter, error) {
	dec, err := factory(width, height)
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}
	return &Adapter{
		newDecoder: factory,
		dec:        dec,
		width:      width,
		height:     height,
		initCount:  1,
		log:        logrus.WithField("component", "codec"),
	}, nil
}

// Encode compresses one frame through the wrapped encoder.
func (a *Adapter) Encode(frame *models.Frame) ([]byte, error) {
	data, keyframe, err := a.enc.Encode(frame)
	if err != nil {
		return nil, err
	}
	a.lastKeyframe = keyframe
	return data, nil
}

// Decode decompresses one encoded frame through the wrapped decoder.
func (a *Adapter) Decode(data []byte) (*models.Frame, error) {
	return a.dec.Decode(data)
}

// Reinit discards the underlying codec and reconstructs it with the
// original geometry and options. Every attempt increments the init count,
// whether or not construction succeeds.
func (a *Adapter) Reinit() error {
	a.initCount++
	a.log.WithFields(logrus.Fields{
		"attempt":  a.initCount,
		"geometry": fmt.Sprintf("%dx%d", a.width, a.height),
	}).Info("Reinitializing codec")

	if a.enc != nil {
		a.enc.Close()
		enc, err := a.newEncoder(a.width, a.height, a.options)
		if err != nil {
			return fmt.Errorf("failed to recreate encoder: %w", err)
		}
		a.enc = enc
		return nil
	}

	a.dec.Close()
	dec, err := a.newDecoder(a.width, a.height)
	if err != nil {
		return fmt.Errorf("failed to recreate decoder: %w", err)
	}
	a.dec = dec
	return nil
}

// InitCount returns how many initializations have happened, the initial
// construction included. It reaches the retry ceiling after ceiling-1
// re-init attempts.
func (a *Adapter) InitCount() int { return a.initCount }

// LastFrameIsKeyframe reports whether the most recently encoded frame was
// a keyframe. Keyframes must never be dropped under back pressure.
func (a *Adapter) LastFrameIsKeyframe() bool { return a.lastKeyframe }

// Width returns the stream geometry fixed at creation.
func (a *Adapter) Width() int { return a.width }

// Height returns the stream geometry fixed at creation.
func (a *Adapter) Height() int { return a.height }

// Close releases the wrapped codec.
func (a *Adapter) Close() error {
	if a.enc != nil {
		return a.enc.Close()
	}
	return a.dec.Close()
}
