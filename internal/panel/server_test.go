package panel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voxctl/voicemode/internal/health"
	"github.com/voxctl/voicemode/internal/history"
	"github.com/voxctl/voicemode/internal/micstate"
	"github.com/voxctl/voicemode/internal/speech"
)

type fakeSpeech struct {
	state *speech.State
}

func (f *fakeSpeech) Status(context.Context) speech.StatusResult {
	return speech.StatusResult{Snapshot: f.state.Snapshot(), TTSReady: true, STTReady: true}
}

func (f *fakeSpeech) SetVoice(_ context.Context, voice string) error {
	if voice == "Missing.wav" {
		return fmt.Errorf("unknown voice %q", voice)
	}
	f.state.SetVoice(voice)
	return nil
}

func (f *fakeSpeech) State() *speech.State { return f.state }
func (f *fakeSpeech) SessionID() string    { return "sess-test" }

type fakeEngine struct {
	mu      sync.Mutex
	voices  []string
	stopped int
}

func (f *fakeEngine) Voices(context.Context) ([]string, error) { return f.voices, nil }

func (f *fakeEngine) StopGeneration(context.Context) error {
	f.mu.Lock()
	f.stopped++
	f.mu.Unlock()
	return nil
}

func newTestServer(t *testing.T) (*httptest.Server, *fakeSpeech, *fakeEngine, *micstate.File, *history.InMemoryStore) {
	t.Helper()
	svc := &fakeSpeech{state: speech.NewState("Freya.wav")}
	engine := &fakeEngine{voices: []string{"Freya.wav", "Arnold.wav"}}
	mic := micstate.NewFile(t.TempDir() + "/mic_state.json")
	store := history.NewInMemoryStore()
	checker := health.NewChecker(time.Second)
	checker.Register("tts", func(context.Context) bool { return true })

	ts := httptest.NewServer(New(svc, engine, mic, store, checker).Router())
	t.Cleanup(ts.Close)
	return ts, svc, engine, mic, store
}

func TestHealthAndReady(t *testing.T) {
	ts, _, _, _, _ := newTestServer(t)

	res, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz error = %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("GET /healthz status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	res, err = http.Get(ts.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("GET /readyz status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	var payload map[string]any
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode readyz response: %v", err)
	}
	if payload["ready"] != true {
		t.Fatalf("readyz payload = %v, want ready", payload)
	}
}

func TestReadyReportsFailingProbe(t *testing.T) {
	svc := &fakeSpeech{state: speech.NewState("Freya.wav")}
	checker := health.NewChecker(time.Second)
	checker.Register("stt", func(context.Context) bool { return false })
	ts := httptest.NewServer(New(svc, &fakeEngine{}, micstate.NewFile(t.TempDir()+"/mic_state.json"), history.NewInMemoryStore(), checker).Router())
	defer ts.Close()

	res, err := http.Get(ts.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz error = %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("GET /readyz status = %d, want %d", res.StatusCode, http.StatusServiceUnavailable)
	}
}

func TestGetState(t *testing.T) {
	ts, _, _, _, _ := newTestServer(t)

	res, err := http.Get(ts.URL + "/v1/state")
	if err != nil {
		t.Fatalf("GET /v1/state error = %v", err)
	}
	defer res.Body.Close()

	var st speech.StatusResult
	if err := json.NewDecoder(res.Body).Decode(&st); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if st.Voice != "Freya.wav" || st.StreamingState != "unknown" {
		t.Fatalf("state = %+v, want defaults", st)
	}
}

func TestUpdateStateDisableAndPause(t *testing.T) {
	ts, svc, engine, mic, _ := newTestServer(t)

	body, _ := json.Marshal(map[string]any{
		"voice_mode": "disabled",
		"tts_paused": true,
	})
	res, err := http.Post(ts.URL+"/v1/state", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /v1/state error = %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("POST /v1/state status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	if !svc.state.Disabled() {
		t.Fatalf("state not disabled after update")
	}
	if !mic.TTSPaused() {
		t.Fatalf("tts_paused not persisted")
	}
	if engine.stopped == 0 {
		t.Fatalf("StopGeneration() not called on pause")
	}
}

func TestUpdateStateRejectsBadVoiceMode(t *testing.T) {
	ts, _, _, _, _ := newTestServer(t)

	body, _ := json.Marshal(map[string]string{"voice_mode": "sideways"})
	res, err := http.Post(ts.URL+"/v1/state", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /v1/state error = %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("POST /v1/state status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
}

func TestUpdateStateSetsVoice(t *testing.T) {
	ts, svc, _, _, _ := newTestServer(t)

	body, _ := json.Marshal(map[string]string{"voice": "Arnold.wav"})
	res, err := http.Post(ts.URL+"/v1/state", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /v1/state error = %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("POST /v1/state status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if got := svc.state.Voice(); got != "Arnold.wav" {
		t.Fatalf("voice = %q, want Arnold.wav", got)
	}

	body, _ = json.Marshal(map[string]string{"voice": "Missing.wav"})
	res, err = http.Post(ts.URL+"/v1/state", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /v1/state error = %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("POST /v1/state with bad voice status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
}

func TestListVoices(t *testing.T) {
	ts, _, _, _, _ := newTestServer(t)

	res, err := http.Get(ts.URL + "/v1/voices")
	if err != nil {
		t.Fatalf("GET /v1/voices error = %v", err)
	}
	defer res.Body.Close()

	var payload struct {
		Voices  []string `json:"voices"`
		Current string   `json:"current"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode voices: %v", err)
	}
	if len(payload.Voices) != 2 || payload.Current != "Freya.wav" {
		t.Fatalf("voices payload = %+v", payload)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	ts, _, _, _, store := newTestServer(t)
	err := store.SaveTurn(context.Background(), history.Turn{
		SessionID: "sess-test",
		Role:      "assistant",
		Content:   "hello",
		Path:      "streaming",
	})
	if err != nil {
		t.Fatalf("SaveTurn() unexpected error = %v", err)
	}

	res, err := http.Get(ts.URL + "/v1/history?limit=5")
	if err != nil {
		t.Fatalf("GET /v1/history error = %v", err)
	}
	defer res.Body.Close()

	var payload struct {
		Turns []history.Turn `json:"turns"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(payload.Turns) != 1 || payload.Turns[0].Content != "hello" {
		t.Fatalf("history payload = %+v", payload)
	}

	res, err = http.Get(ts.URL + "/v1/history?limit=0")
	if err != nil {
		t.Fatalf("GET /v1/history error = %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("GET /v1/history?limit=0 status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
}

func TestStateWSFeed(t *testing.T) {
	ts, svc, _, _, _ := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/state/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("ws dial error = %v", err)
	}
	defer conn.Close()

	var first speech.Snapshot
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read initial snapshot: %v", err)
	}
	if first.StreamingState != "unknown" {
		t.Fatalf("initial snapshot = %+v, want unknown streaming", first)
	}

	svc.state.SetStreaming(speech.AvailabilityUnavailable)

	var next speech.Snapshot
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&next); err != nil {
		t.Fatalf("read change snapshot: %v", err)
	}
	if next.StreamingState != "unavailable" {
		t.Fatalf("change snapshot = %+v, want unavailable streaming", next)
	}
}
