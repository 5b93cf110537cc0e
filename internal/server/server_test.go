package server_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/voxsplit/voxsplit/internal/config"
	"github.com/voxsplit/voxsplit/internal/observe"
	"github.com/voxsplit/voxsplit/internal/server"
	"github.com/voxsplit/voxsplit/pkg/provider/classifier"
	"github.com/voxsplit/voxsplit/pkg/provider/classifier/mock"
	"github.com/voxsplit/voxsplit/pkg/vad"
)

// wireEvent mirrors the server's JSON event schema for decoding in tests.
type wireEvent struct {
	Type       string `json:"type"`
	DurationMs int    `json:"duration_ms"`
	Samples    int    `json:"samples"`
	Frame      int64  `json:"frame"`
	Message    string `json:"message"`
}

// testScript builds the reference scenario: 5 silent frames, 23 voiced
// frames, then silence.
func testScript() []classifier.Result {
	var sc []classifier.Result
	for i := 0; i < 5; i++ {
		sc = append(sc, classifier.Result{})
	}
	for i := 0; i < 23; i++ {
		sc = append(sc, classifier.Result{Probability: 1, IsVoice: true})
	}
	sc = append(sc, classifier.Result{})
	return sc
}

func newTestServer(t *testing.T, script []classifier.Result) *httptest.Server {
	t.Helper()

	cfg := &config.Config{
		VAD: config.VADConfig{
			MinSpeechFrames:  3,
			MinSilenceFrames: 8,
			PreSpeechPadMs:   80,
			PostSpeechPadMs:  160,
			MinSpeechMs:      150,
			NoSmoothing:      true,
		},
	}
	factory := func() (classifier.Classifier, error) {
		return &mock.Classifier{Script: script}, nil
	}

	mp := sdkmetric.NewMeterProvider()
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatal(err)
	}

	srv := server.New(cfg, factory, m, slog.Default())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/stream"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func sendJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.Write(context.Background(), websocket.MessageText, data); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func readEvent(t *testing.T, conn *websocket.Conn) wireEvent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	typ, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read event: %v", err)
	}
	if typ != websocket.MessageText {
		t.Fatalf("expected text event, got %v", typ)
	}
	var ev wireEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	return ev
}

func readBinary(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	typ, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read binary: %v", err)
	}
	if typ != websocket.MessageBinary {
		t.Fatalf("expected binary message, got %v", typ)
	}
	return data
}

func TestStream_PCMSegmentation(t *testing.T) {
	ts := newTestServer(t, testScript())
	conn := dial(t, ts)
	defer conn.Close(websocket.StatusNormalClosure, "")

	sendJSON(t, conn, map[string]any{"encoding": "pcm_s16le"})
	if ev := readEvent(t, conn); ev.Type != "ready" {
		t.Fatalf("first event = %q, want ready", ev.Type)
	}

	// 43 frames of silence-valued PCM; the scripted classifier supplies
	// the voice decisions.
	audio := make([]byte, 43*vad.FrameSize*2)
	if err := conn.Write(context.Background(), websocket.MessageBinary, audio); err != nil {
		t.Fatalf("write audio: %v", err)
	}

	if ev := readEvent(t, conn); ev.Type != "speech_start" {
		t.Fatalf("event = %q, want speech_start", ev.Type)
	}

	ev := readEvent(t, conn)
	if ev.Type != "speech_end" {
		t.Fatalf("event = %q, want speech_end", ev.Type)
	}
	wantSamples := 35 * vad.FrameSize
	if ev.Samples != wantSamples {
		t.Errorf("segment samples = %d, want %d", ev.Samples, wantSamples)
	}
	if ev.DurationMs != 560 {
		t.Errorf("segment duration = %d ms, want 560", ev.DurationMs)
	}

	seg := readBinary(t, conn)
	if len(seg) != wantSamples*2 {
		t.Errorf("segment payload = %d bytes, want %d", len(seg), wantSamples*2)
	}

	sendJSON(t, conn, map[string]string{"type": "flush"})
	if ev := readEvent(t, conn); ev.Type != "flushed" {
		t.Fatalf("event = %q, want flushed", ev.Type)
	}
}

func TestStream_FlushDrainsOpenSegment(t *testing.T) {
	// Voice forever: the segment only closes when the client flushes.
	script := []classifier.Result{{Probability: 1, IsVoice: true}}
	ts := newTestServer(t, script)
	conn := dial(t, ts)
	defer conn.Close(websocket.StatusNormalClosure, "")

	sendJSON(t, conn, map[string]any{"encoding": "pcm_s16le"})
	if ev := readEvent(t, conn); ev.Type != "ready" {
		t.Fatalf("first event = %q, want ready", ev.Type)
	}

	audio := make([]byte, 30*vad.FrameSize*2)
	if err := conn.Write(context.Background(), websocket.MessageBinary, audio); err != nil {
		t.Fatal(err)
	}
	if ev := readEvent(t, conn); ev.Type != "speech_start" {
		t.Fatalf("event = %q, want speech_start", ev.Type)
	}

	sendJSON(t, conn, map[string]string{"type": "flush"})

	ev := readEvent(t, conn)
	if ev.Type != "speech_end" {
		t.Fatalf("event = %q, want speech_end after flush", ev.Type)
	}
	readBinary(t, conn)

	if ev := readEvent(t, conn); ev.Type != "flushed" {
		t.Fatalf("event = %q, want flushed", ev.Type)
	}
}

func TestStream_RejectsUnknownEncoding(t *testing.T) {
	ts := newTestServer(t, nil)
	conn := dial(t, ts)
	defer conn.Close(websocket.StatusNormalClosure, "")

	sendJSON(t, conn, map[string]any{"encoding": "mp3"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, err := conn.Read(ctx)
	if err == nil {
		t.Fatal("expected connection close, got message")
	}
	if got := websocket.CloseStatus(err); got != websocket.StatusPolicyViolation {
		t.Errorf("close status = %v, want policy violation", got)
	}
}

func TestStream_RejectsOddPCM(t *testing.T) {
	ts := newTestServer(t, nil)
	conn := dial(t, ts)
	defer conn.Close(websocket.StatusNormalClosure, "")

	sendJSON(t, conn, map[string]any{"encoding": "pcm_s16le"})
	if ev := readEvent(t, conn); ev.Type != "ready" {
		t.Fatalf("first event = %q, want ready", ev.Type)
	}

	if err := conn.Write(context.Background(), websocket.MessageBinary, []byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}

	if ev := readEvent(t, conn); ev.Type != "error" {
		t.Fatalf("event = %q, want error", ev.Type)
	}
}

func TestStream_BinaryFirstMessageUsesDefaults(t *testing.T) {
	ts := newTestServer(t, testScript())
	conn := dial(t, ts)
	defer conn.Close(websocket.StatusNormalClosure, "")

	// Skip the handshake entirely; default config is pcm_s16le 16 kHz mono.
	audio := make([]byte, 43*vad.FrameSize*2)
	if err := conn.Write(context.Background(), websocket.MessageBinary, audio); err != nil {
		t.Fatal(err)
	}

	if ev := readEvent(t, conn); ev.Type != "ready" {
		t.Fatalf("first event = %q, want ready", ev.Type)
	}
	if ev := readEvent(t, conn); ev.Type != "speech_start" {
		t.Fatalf("event = %q, want speech_start", ev.Type)
	}
}

func TestStream_PerStreamOverrides(t *testing.T) {
	// min_speech_ms dropped to 0 keeps a short segment that the server
	// default (150 ms) would discard as a misfire.
	var script []classifier.Result
	for i := 0; i < 4; i++ {
		script = append(script, classifier.Result{Probability: 1, IsVoice: true})
	}
	script = append(script, classifier.Result{})

	ts := newTestServer(t, script)
	conn := dial(t, ts)
	defer conn.Close(websocket.StatusNormalClosure, "")

	sendJSON(t, conn, map[string]any{
		"encoding": "pcm_s16le",
		"vad": map[string]any{
			"min_speech_ms":      -1,
			"pre_speech_pad_ms":  -1,
			"post_speech_pad_ms": 32,
			"min_silence_frames": 2,
		},
	})
	if ev := readEvent(t, conn); ev.Type != "ready" {
		t.Fatalf("first event = %q, want ready", ev.Type)
	}

	audio := make([]byte, 20*vad.FrameSize*2)
	if err := conn.Write(context.Background(), websocket.MessageBinary, audio); err != nil {
		t.Fatal(err)
	}

	if ev := readEvent(t, conn); ev.Type != "speech_start" {
		t.Fatalf("event = %q, want speech_start", ev.Type)
	}
	ev := readEvent(t, conn)
	if ev.Type != "speech_end" {
		t.Fatalf("event = %q, want speech_end (misfire filter not overridden?)", ev.Type)
	}
	readBinary(t, conn)
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t, nil)

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, resp.StatusCode)
		}
	}
}
