package codec

import (
	"errors"
	"testing"

	"edgelink/pkg/models"
)

// fakeEncoder fails a configurable number of times before succeeding.
type fakeEncoder struct {
	failures *int
	keyframe bool
	closed   bool
}

func (f *fakeEncoder) Encode(frame *models.Frame) ([]byte, bool, error) {
	if *f.failures > 0 {
		*f.failures--
		return nil, false, &CodecError{Op: "encode", Err: errors.New("simulated failure")}
	}
	return []byte{0xAB}, f.keyframe, nil
}

func (f *fakeEncoder) Close() error {
	f.closed = true
	return nil
}

type fakeDecoder struct {
	fail   bool
	closed bool
}

func (f *fakeDecoder) Decode(data []byte) (*models.Frame, error) {
	if f.fail {
		return nil, &CodecError{Op: "decode", Err: errors.New("simulated failure")}
	}
	return models.NewFrame(2, 2), nil
}

func (f *fakeDecoder) Close() error {
	f.closed = true
	return nil
}

func TestEncoderAdapterReinit(t *testing.T) {
	var made []*fakeEncoder
	failures := 0
	factory := func(width, height int, options map[string]string) (FrameEncoder, error) {
		enc := &fakeEncoder{failures: &failures}
		made = append(made, enc)
		return enc, nil
	}

	a, err := NewEncoderAdapter(factory, 4, 4, nil)
	if err != nil {
		t.Fatalf("NewEncoderAdapter() error = %v", err)
	}
	if a.InitCount() != 1 {
		t.Errorf("InitCount() after construction = %d, want 1", a.InitCount())
	}

	failures = 1
	frame := models.NewFrame(4, 4)
	if _, err := a.Encode(frame); err == nil {
		t.Fatal("Encode() expected error, got nil")
	} else if !IsCodecError(err) {
		t.Fatalf("Encode() error = %v, want codec error", err)
	}

	if err := a.Reinit(); err != nil {
		t.Fatalf("Reinit() error = %v", err)
	}
	if a.InitCount() != 2 {
		t.Errorf("InitCount() after reinit = %d, want 2", a.InitCount())
	}
	if len(made) != 2 {
		t.Fatalf("factory called %d times, want 2", len(made))
	}
	if !made[0].closed {
		t.Error("old encoder was not closed on reinit")
	}

	if _, err := a.Encode(frame); err != nil {
		t.Errorf("Encode() after reinit error = %v", err)
	}
}

func TestEncoderAdapterReinitCountsFailedAttempts(t *testing.T) {
	attempts := 0
	factory := func(width, height int, options map[string]string) (FrameEncoder, error) {
		attempts++
		if attempts > 1 {
			return nil, errors.New("construction failed")
		}
		failures := 0
		return &fakeEncoder{failures: &failures}, nil
	}

	a, err := NewEncoderAdapter(factory, 4, 4, nil)
	if err != nil {
		t.Fatalf("NewEncoderAdapter() error = %v", err)
	}

	if err := a.Reinit(); err == nil {
		t.Fatal("Reinit() expected error, got nil")
	}
	if a.InitCount() != 2 {
		t.Errorf("InitCount() = %d, want 2 even when reconstruction fails", a.InitCount())
	}
}

func TestEncoderAdapterTracksKeyframes(t *testing.T) {
	failures := 0
	key := false
	factory := func(width, height int, options map[string]string) (FrameEncoder, error) {
		return &fakeEncoder{failures: &failures, keyframe: key}, nil
	}

	a, err := NewEncoderAdapter(factory, 4, 4, nil)
	if err != nil {
		t.Fatalf("NewEncoderAdapter() error = %v", err)
	}

	frame := models.NewFrame(4, 4)
	if _, err := a.Encode(frame); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if a.LastFrameIsKeyframe() {
		t.Error("LastFrameIsKeyframe() = true for delta frame")
	}

	key = true
	if err := a.Reinit(); err != nil {
		t.Fatalf("Reinit() error = %v", err)
	}
	if _, err := a.Encode(frame); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if !a.LastFrameIsKeyframe() {
		t.Error("LastFrameIsKeyframe() = false for keyframe")
	}
}

func TestDecoderAdapterReinit(t *testing.T) {
	var made []*fakeDecoder
	factory := func(width, height int) (FrameDecoder, error) {
		dec := &fakeDecoder{}
		made = append(made, dec)
		return dec, nil
	}

	a, err := NewDecoderAdapter(factory, 4, 4)
	if err != nil {
		t.Fatalf("NewDecoderAdapter() error = %v", err)
	}

	made[0].fail = true
	if _, err := a.Decode([]byte{0x01}); !IsCodecError(err) {
		t.Fatalf("Decode() error = %v, want codec error", err)
	}

	if err := a.Reinit(); err != nil {
		t.Fatalf("Reinit() error = %v", err)
	}
	if !made[0].closed {
		t.Error("old decoder was not closed on reinit")
	}
	if _, err := a.Decode([]byte{0x01}); err != nil {
		t.Errorf("Decode() after reinit error = %v", err)
	}
}

func TestIsCodecError(t *testing.T) {
	codecErr := &CodecError{Op: "encode", Err: errors.New("boom")}
	if !IsCodecError(codecErr) {
		t.Error("IsCodecError() = false for *CodecError")
	}
	if !IsCodecError(errors.Join(errors.New("outer"), codecErr)) {
		t.Error("IsCodecError() = false for wrapped *CodecError")
	}
	if IsCodecError(errors.New("plain")) {
		t.Error("IsCodecError() = true for plain error")
	}
}
