package registry

import (
	"errors"
	"testing"
	"time"

	"edgelink/internal/codec"
	"edgelink/pkg/models"
)

type nopEncoder struct{ closed *bool }

func (e nopEncoder) Encode(frame *models.Frame) ([]byte, bool, error) { return []byte{0x01}, false, nil }
func (e nopEncoder) Close() error {
	*e.closed = true
	return nil
}

type nopDecoder struct{ closed *bool }

func (d nopDecoder) Decode(data []byte) (*models.Frame, error) { return models.NewFrame(2, 2), nil }
func (d nopDecoder) Close() error {
	*d.closed = true
	return nil
}

func newTestRegistry() (*Registry, *int, *[]*bool) {
	calls := 0
	var closed []*bool
	enc := func(width, height int, options map[string]string) (codec.FrameEncoder, error) {
		calls++
		c := new(bool)
		closed = append(closed, c)
		return nopEncoder{closed: c}, nil
	}
	dec := func(width, height int) (codec.FrameDecoder, error) {
		calls++
		c := new(bool)
		closed = append(closed, c)
		return nopDecoder{closed: c}, nil
	}
	return New(enc, dec), &calls, &closed
}

func TestGetOrCreateEncoderIsExactlyOnce(t *testing.T) {
	reg, calls, _ := newTestRegistry()
	key := StreamKey{Conn: "c1", Event: "image"}

	st1, created, err := reg.GetOrCreateEncoder(key, 640, 480, nil)
	if err != nil {
		t.Fatalf("GetOrCreateEncoder() error = %v", err)
	}
	if !created {
		t.Error("first call: created = false, want true")
	}

	// Later geometry is ignored: the first creation is authoritative.
	st2, created, err := reg.GetOrCreateEncoder(key, 1920, 1080, map[string]string{"preset": "slow"})
	if err != nil {
		t.Fatalf("GetOrCreateEncoder() error = %v", err)
	}
	if created {
		t.Error("second call: created = true, want false")
	}
	if st1 != st2 {
		t.Error("second call returned a different state")
	}
	if st2.Adapter.Width() != 640 || st2.Adapter.Height() != 480 {
		t.Errorf("geometry = %dx%d, want first-call 640x480", st2.Adapter.Width(), st2.Adapter.Height())
	}
	if *calls != 1 {
		t.Errorf("factory called %d times, want 1", *calls)
	}
}

func TestEncoderAndDecoderStateAreSeparate(t *testing.T) {
	reg, _, _ := newTestRegistry()
	key := StreamKey{Conn: "c1", Event: "image"}

	encSt, _, err := reg.GetOrCreateEncoder(key, 640, 480, nil)
	if err != nil {
		t.Fatalf("GetOrCreateEncoder() error = %v", err)
	}
	decSt, _, err := reg.GetOrCreateDecoder(key, 640, 480)
	if err != nil {
		t.Fatalf("GetOrCreateDecoder() error = %v", err)
	}
	if encSt == decSt {
		t.Error("encoder and decoder share state for the same key")
	}
	if reg.StreamCount() != 2 {
		t.Errorf("StreamCount() = %d, want 2", reg.StreamCount())
	}
}

func TestCreationFailureLeavesNoState(t *testing.T) {
	enc := func(width, height int, options map[string]string) (codec.FrameEncoder, error) {
		return nil, errors.New("no encoder available")
	}
	reg := New(enc, nil)
	key := StreamKey{Conn: "c1", Event: "image"}

	if _, _, err := reg.GetOrCreateEncoder(key, 640, 480, nil); err == nil {
		t.Fatal("GetOrCreateEncoder() expected error, got nil")
	}
	if _, ok := reg.Encoder(key); ok {
		t.Error("failed creation left encoder state behind")
	}
	if reg.StreamCount() != 0 {
		t.Errorf("StreamCount() = %d, want 0", reg.StreamCount())
	}
}

func TestDropConnection(t *testing.T) {
	reg, _, closed := newTestRegistry()

	if _, _, err := reg.GetOrCreateEncoder(StreamKey{Conn: "c1", Event: "a"}, 64, 48, nil); err != nil {
		t.Fatal(err)
	}
	if _, _, err := reg.GetOrCreateDecoder(StreamKey{Conn: "c1", Event: "b"}, 64, 48); err != nil {
		t.Fatal(err)
	}
	if _, _, err := reg.GetOrCreateEncoder(StreamKey{Conn: "c2", Event: "a"}, 64, 48, nil); err != nil {
		t.Fatal(err)
	}

	reg.DropConnection("c1")

	if reg.StreamCount() != 1 {
		t.Errorf("StreamCount() after drop = %d, want 1", reg.StreamCount())
	}
	if _, ok := reg.Encoder(StreamKey{Conn: "c1", Event: "a"}); ok {
		t.Error("dropped connection still has encoder state")
	}
	if _, ok := reg.Encoder(StreamKey{Conn: "c2", Event: "a"}); !ok {
		t.Error("unrelated connection lost its encoder state")
	}
	if !*(*closed)[0] || !*(*closed)[1] {
		t.Error("dropped adapters were not closed")
	}
	if *(*closed)[2] {
		t.Error("surviving adapter was closed")
	}
}

func TestDropConnectionWaitsForStreamLock(t *testing.T) {
	reg, _, closed := newTestRegistry()

	st, _, err := reg.GetOrCreateEncoder(StreamKey{Conn: "c1", Event: "a"}, 8, 8, nil)
	if err != nil {
		t.Fatal(err)
	}

	// Hold the stream lock as an in-flight Encode would; teardown must not
	// close the adapter underneath it.
	st.Lock()
	done := make(chan struct{})
	go func() {
		reg.DropConnection("c1")
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("DropConnection() finished while the stream lock was held")
	case <-time.After(50 * time.Millisecond):
	}

	st.Unlock()
	<-done

	if !*(*closed)[0] {
		t.Error("adapter was not closed after the lock was released")
	}
	if reg.StreamCount() != 0 {
		t.Errorf("StreamCount() = %d, want 0", reg.StreamCount())
	}
}

func TestSnapshot(t *testing.T) {
	reg, _, _ := newTestRegistry()

	if _, _, err := reg.GetOrCreateEncoder(StreamKey{Conn: "c1", Event: "image"}, 640, 480, nil); err != nil {
		t.Fatal(err)
	}
	st, _, err := reg.GetOrCreateDecoder(StreamKey{Conn: "c2", Event: "image"}, 320, 240)
	if err != nil {
		t.Fatal(err)
	}
	st.Lock()
	st.LastTimestamp = 42
	st.Unlock()

	infos := reg.Snapshot()
	if len(infos) != 2 {
		t.Fatalf("Snapshot() returned %d streams, want 2", len(infos))
	}

	byKind := make(map[string]StreamInfo)
	for _, info := range infos {
		byKind[info.Kind] = info
	}
	enc, ok := byKind["encoder"]
	if !ok {
		t.Fatal("Snapshot() missing encoder entry")
	}
	if enc.Connection != "c1" || enc.Width != 640 || enc.Height != 480 {
		t.Errorf("encoder info = %+v", enc)
	}
	dec, ok := byKind["decoder"]
	if !ok {
		t.Fatal("Snapshot() missing decoder entry")
	}
	if dec.LastTimestamp != 42 {
		t.Errorf("decoder LastTimestamp = %d, want 42", dec.LastTimestamp)
	}
}
