package codec

import (
	"errors"
	"fmt"

	"edgelink/pkg/models"
)

// FrameEncoder compresses raw frames for one stream. Implementations are
// stateful and must not be used concurrently.
type FrameEncoder interface {
	// Encode compresses one frame. keyframe reports whether the encoded
	// frame is self-contained (an IDR access unit for H.264).
	Encode(frame *models.Frame) (data []byte, keyframe bool, err error)
	Close() error
}

// FrameDecoder decompresses encoded frames for one stream.
type FrameDecoder interface {
	Decode(data []byte) (*models.Frame, error)
	Close() error
}

// EncoderFactory constructs a stream encoder for the given geometry.
// Options are codec-specific string pairs (e.g. x264 "preset", "tune").
type EncoderFactory func(width, height int, options map[string]string) (FrameEncoder, error)

// DecoderFactory constructs a stream decoder for the given geometry.
type DecoderFactory func(width, height int) (FrameDecoder, error)

// CodecError marks a codec-level failure during encode or decode. Callers
// apply the bounded re-initialization policy when they see one; other
// errors (construction, protocol) are not retried.
type CodecError struct {
	Op  string // "encode" or "decode"
	Err error
}

func (e *CodecError) Error() string {
	return fmt.Sprintf("codec %s: %v", e.Op, e.Err)
}

func (e *CodecError) Unwrap() error { return e.Err }

// IsCodecError reports whether err is (or wraps) a CodecError.
func IsCodecError(err error) bool {
	var ce *CodecError
	return errors.As(err, &ce)
}
