package channels

import (
	"reflect"
	"testing"

	json "github.com/goccy/go-json"

	"edgelink/internal/codec"
	"edgelink/internal/registry"
	"edgelink/internal/transport"
	"edgelink/pkg/models"
)

func newTestClient(t *testing.T, tr *fakeTransport, script *codecScript, bindings map[string]Binding, opts Options) *ClientChannels {
	t.Helper()
	cc, err := NewClient(tr, script.registry(), bindings, opts)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return cc
}

func TestClientDispatchJSON(t *testing.T) {
	tr := newFakeTransport("local-1")
	var got map[string]interface{}
	bindings := map[string]Binding{
		"results": {Type: ChannelTypeJSON, JSON: func(data map[string]interface{}) { got = data }},
	}
	newTestClient(t, tr, &codecScript{}, bindings, Options{})

	want := map[string]interface{}{"status": "ok"}
	payload, _ := json.Marshal(want)
	tr.deliver(t, "results", "server", payload)

	if !reflect.DeepEqual(got, want) {
		t.Errorf("callback received %v, want %v", got, want)
	}
}

func TestClientDispatchJSONLZ4(t *testing.T) {
	tr := newFakeTransport("local-1")
	var got map[string]interface{}
	bindings := map[string]Binding{
		"bulk": {Type: ChannelTypeJSONLZ4, JSON: func(data map[string]interface{}) { got = data }},
	}
	newTestClient(t, tr, &codecScript{}, bindings, Options{})

	want := map[string]interface{}{"batch": float64(12)}
	raw, _ := json.Marshal(want)
	payload, err := compressLZ4(raw)
	if err != nil {
		t.Fatal(err)
	}
	tr.deliver(t, "bulk", "server", payload)

	if !reflect.DeepEqual(got, want) {
		t.Errorf("callback received %v, want %v", got, want)
	}
}

func TestClientDispatchImage(t *testing.T) {
	tr := newFakeTransport("local-1")
	var got *models.DecodedRecord
	bindings := map[string]Binding{
		"image": {Type: ChannelTypeJPEG, Image: func(rec *models.DecodedRecord) { got = rec }},
	}
	newTestClient(t, tr, &codecScript{}, bindings, Options{})

	frame := models.NewFrame(16, 16)
	data, err := codec.EncodeJPEG(frame)
	if err != nil {
		t.Fatal(err)
	}
	payload, _ := json.Marshal(&models.Envelope{
		Timestamp: 99,
		Frame:     data,
		Metadata:  map[string]interface{}{"seq": float64(1)},
	})
	tr.deliver(t, "image", "server", payload)

	if got == nil {
		t.Fatal("image callback was not invoked")
	}
	if got.Timestamp != 99 {
		t.Errorf("Timestamp = %d, want 99", got.Timestamp)
	}
	if got.Frame.Width != 16 || got.Frame.Height != 16 {
		t.Errorf("geometry = %dx%d, want 16x16", got.Frame.Width, got.Frame.Height)
	}
	if got.Metadata["seq"] != float64(1) {
		t.Errorf("Metadata = %v", got.Metadata)
	}
}

func TestClientDispatchSkipsCallbackOnBadPayload(t *testing.T) {
	tr := newFakeTransport("local-1")
	called := false
	bindings := map[string]Binding{
		"image": {Type: ChannelTypeJPEG, Image: func(*models.DecodedRecord) { called = true }},
	}
	newTestClient(t, tr, &codecScript{}, bindings, Options{})

	tr.deliver(t, "image", "server", []byte("not an envelope"))

	if called {
		t.Error("callback was invoked for malformed payload")
	}
	if emits := tr.emitted(); len(emits) != 1 || emits[0].event != DataErrorEvent {
		t.Errorf("expected one error emit, got %v", emits)
	}
}

func TestClientSendUsesBindingType(t *testing.T) {
	tr := newFakeTransport("local-1")
	bindings := map[string]Binding{
		"bulk": {Type: ChannelTypeJSONLZ4, JSON: func(map[string]interface{}) {}},
	}
	cc := newTestClient(t, tr, &codecScript{}, bindings, Options{})

	sent, err := cc.Send("bulk", map[string]interface{}{"a": float64(1)}, false)
	if err != nil || !sent {
		t.Fatalf("Send() = (%v, %v)", sent, err)
	}

	// The emitted payload must be LZ4-framed, not plain JSON.
	emits := tr.emitted()
	if len(emits) != 1 {
		t.Fatalf("emitted %d messages, want 1", len(emits))
	}
	if got := cc.DecodeJSONLZ4(emits[0].payload, "bulk", "server"); got == nil {
		t.Error("emitted payload is not valid LZ4-framed JSON")
	}
}

func TestClientSendUnknownEvent(t *testing.T) {
	tr := newFakeTransport("local-1")
	cc := newTestClient(t, tr, &codecScript{}, map[string]Binding{}, Options{})

	if _, err := cc.Send("nope", nil, false); err == nil {
		t.Error("Send() expected error for unbound event")
	}
	if _, err := cc.SendFrame("nope", models.NewFrame(4, 4), 0, nil, false, nil); err == nil {
		t.Error("SendFrame() expected error for unbound event")
	}
}

func TestBindingValidation(t *testing.T) {
	tr := newFakeTransport("local-1")
	script := &codecScript{}

	tests := []struct {
		name    string
		binding Binding
	}{
		{"json without callback", Binding{Type: ChannelTypeJSON}},
		{"image without callback", Binding{Type: ChannelTypeH264}},
		{"unknown type", Binding{Type: ChannelType(42), JSON: func(map[string]interface{}) {}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClient(tr, script.registry(), map[string]Binding{"ev": tt.binding}, Options{})
			if err == nil {
				t.Error("NewClient() expected error, got nil")
			}
		})
	}
}

func TestDisconnectDropsCodecState(t *testing.T) {
	tr := newFakeTransport("local-1")
	script := &codecScript{}
	reg := script.registry()
	_, err := NewClient(tr, reg, map[string]Binding{
		"image": {Type: ChannelTypeH264, Image: func(*models.DecodedRecord) {}},
	}, Options{})
	if err != nil {
		t.Fatal(err)
	}

	if _, _, err := reg.GetOrCreateDecoder(registry.StreamKey{Conn: "server", Event: "image"}, 8, 8); err != nil {
		t.Fatal(err)
	}
	if reg.StreamCount() != 1 {
		t.Fatalf("StreamCount() = %d, want 1", reg.StreamCount())
	}

	for _, hook := range tr.hooks {
		hook("server")
	}

	if reg.StreamCount() != 0 {
		t.Errorf("StreamCount() after disconnect = %d, want 0", reg.StreamCount())
	}
}

func TestServerDispatchThreadsSender(t *testing.T) {
	tr := newFakeTransport("")
	var gotFrom transport.ConnID
	var gotData map[string]interface{}
	bindings := map[string]ServerBinding{
		"telemetry": {Type: ChannelTypeJSON, JSON: func(from transport.ConnID, data map[string]interface{}) {
			gotFrom = from
			gotData = data
		}},
	}
	_, err := NewServer(tr, (&codecScript{}).registry(), bindings, Options{})
	if err != nil {
		t.Fatal(err)
	}

	payload, _ := json.Marshal(map[string]interface{}{"cpu": float64(42)})
	tr.deliver(t, "telemetry", "peer-7", payload)

	if gotFrom != "peer-7" {
		t.Errorf("callback from = %q, want %q", gotFrom, "peer-7")
	}
	if gotData["cpu"] != float64(42) {
		t.Errorf("callback data = %v", gotData)
	}
}

func TestCustomErrorEvent(t *testing.T) {
	tr := newFakeTransport("")
	bindings := map[string]ServerBinding{
		"image": {Type: ChannelTypeJPEG, Image: func(transport.ConnID, *models.DecodedRecord) {}, ErrorEvent: "image_error"},
	}
	srv, err := NewServer(tr, (&codecScript{}).registry(), bindings, Options{})
	if err != nil {
		t.Fatal(err)
	}

	rec, err := srv.DecodeImage(&models.Envelope{Timestamp: 1}, "image", "c1")
	if err != nil || rec != nil {
		t.Fatalf("DecodeImage() = (%v, %v)", rec, err)
	}
	if emits := tr.emitted(); len(emits) != 1 || emits[0].event != "image_error" {
		t.Errorf("error went to %v, want image_error", emits)
	}
}
