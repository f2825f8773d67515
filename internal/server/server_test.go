package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/avatarstream/internal/pipeline"
	"github.com/normanking/avatarstream/internal/session"
	"github.com/normanking/avatarstream/internal/video"
)

func testServer(t *testing.T, maxSessions int) *Server {
	t.Helper()
	svc := pipeline.NewService(pipeline.Config{
		Width:  64,
		Height: 48,
		FPS:    30,
		Encoder: video.Config{
			BinaryPath: "/nonexistent/ffmpeg-missing",
			Timeout:    time.Second,
		},
	}, zerolog.Nop())
	t.Cleanup(func() { _ = svc.Close() })
	mgr := session.NewManager(svc, session.Config{MaxSessions: maxSessions}, zerolog.Nop())
	t.Cleanup(mgr.CloseAll)
	return New(svc, mgr, zerolog.Nop())
}

func TestHealthEndpoint(t *testing.T) {
	srv := testServer(t, 4)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Contains(t, body, "caches")
}

func TestEmotionsEndpoint(t *testing.T) {
	srv := testServer(t, 4)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/emotions", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Emotions []string `json:"emotions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body.Emotions, "neutral")
	assert.Contains(t, body.Emotions, "professional")
	assert.Len(t, body.Emotions, 7)
}

func TestRenderLipSyncFallsBackToMetadata(t *testing.T) {
	srv := testServer(t, 4)

	payload := `{
		"phonemes": [
			{"phoneme": "AA", "start": 0.0, "end": 0.1},
			{"phoneme": "P", "start": 0.1, "end": 0.2}
		],
		"emotion": "professional"
	}`
	req := httptest.NewRequest(http.MethodPost, "/render/lipsync", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("X-Processing-Time"))

	var meta video.Metadata
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &meta))
	assert.Equal(t, 7, meta.FrameCount)
	assert.Equal(t, 30, meta.FPS)
	assert.NotEmpty(t, meta.Error)
}

// A duration past the last phoneme stretches the clip: 0.3s at 30fps is
// ten frames, not the seven the phonemes alone would give.
func TestRenderLipSyncHonorsDuration(t *testing.T) {
	srv := testServer(t, 4)

	payload := `{
		"phonemes": [
			{"phoneme": "AA", "start": 0.0, "end": 0.1},
			{"phoneme": "P", "start": 0.1, "end": 0.2}
		],
		"audioUrl": "/tmp/missing-narration.wav",
		"duration": 0.3
	}`
	req := httptest.NewRequest(http.MethodPost, "/render/lipsync", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var meta video.Metadata
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &meta))
	assert.Equal(t, 10, meta.FrameCount)
}

func TestRenderLipSyncValidation(t *testing.T) {
	srv := testServer(t, 4)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/render/lipsync", bytes.NewReader(nil)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/render/lipsync",
		strings.NewReader(`{"phonemes": []}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/render/lipsync",
		strings.NewReader(`{"phonemes":[{"phoneme":"AA","start":0,"end":0.1}],"emotion":"vengeful"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "vengeful")
}

func TestWebSocketSessionOverHTTP(t *testing.T) {
	srv := testServer(t, 4)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var hello map[string]interface{}
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, "connected", hello["type"])
	assert.NotEmpty(t, hello["sessionId"])

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"type": "ready"}))
	var ack map[string]interface{}
	require.NoError(t, conn.ReadJSON(&ack))
	assert.Equal(t, "ready_ack", ack["type"])
}

func TestWebSocketAdmissionLimit(t *testing.T) {
	srv := testServer(t, 1)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	first, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer first.Close()
	var hello map[string]interface{}
	require.NoError(t, first.ReadJSON(&hello))

	second, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer second.Close()

	var refusal map[string]interface{}
	require.NoError(t, second.ReadJSON(&refusal))
	assert.Equal(t, "error", refusal["type"])
	assert.Contains(t, refusal["message"], "limit")

	// the admitted session still works
	require.NoError(t, first.WriteJSON(map[string]interface{}{"type": "ready"}))
	var ack map[string]interface{}
	require.NoError(t, first.ReadJSON(&ack))
	assert.Equal(t, "ready_ack", ack["type"])
}

func TestMetricsEndpoint(t *testing.T) {
	srv := testServer(t, 4)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "avatarstream_")
}
