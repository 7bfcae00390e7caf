package alltalk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL, 5*time.Second, time.Second), srv
}

func TestReady(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/ready", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "Ready")
	})
	c, _ := newTestClient(t, mux)

	if !c.Ready(context.Background()) {
		t.Fatalf("Ready() = false, want true")
	}
}

func TestReadyFalseOnWrongBody(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/ready", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "Starting")
	})
	c, _ := newTestClient(t, mux)

	if c.Ready(context.Background()) {
		t.Fatalf("Ready() = true for non-Ready body, want false")
	}
}

func TestReadyFalseWhenUnreachable(t *testing.T) {
	c := New("http://127.0.0.1:1", time.Second, 200*time.Millisecond)
	if c.Ready(context.Background()) {
		t.Fatalf("Ready() = true for unreachable engine, want false")
	}
}

func TestStreamPassesParamsAndReturnsBody(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tts-generate-streaming", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("text") != "hello there" {
			t.Errorf("text = %q, want %q", q.Get("text"), "hello there")
		}
		if q.Get("voice") != "Freya.wav" {
			t.Errorf("voice = %q, want %q", q.Get("voice"), "Freya.wav")
		}
		if q.Get("language") != "en" {
			t.Errorf("language = %q, want %q", q.Get("language"), "en")
		}
		w.Write([]byte("stream-bytes"))
	})
	c, _ := newTestClient(t, mux)

	body, err := c.Stream(context.Background(), "hello there", "Freya.wav", "en")
	if err != nil {
		t.Fatalf("Stream() unexpected error = %v", err)
	}
	defer body.Close()
	b, _ := io.ReadAll(body)
	if string(b) != "stream-bytes" {
		t.Fatalf("Stream() body = %q, want %q", b, "stream-bytes")
	}
}

func TestStreamErrorIncludesStatusAndBody(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tts-generate-streaming", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "engine busy", http.StatusServiceUnavailable)
	})
	c, _ := newTestClient(t, mux)

	if _, err := c.Stream(context.Background(), "x", "v", "en"); err == nil {
		t.Fatalf("Stream() expected error for HTTP 503")
	}
}

func TestSpeechReturnsAudio(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/audio/speech", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req["input"] != "hi" || req["voice"] != "Freya.wav" {
			t.Errorf("request = %v", req)
		}
		w.Write([]byte("wav-payload"))
	})
	c, _ := newTestClient(t, mux)

	b, err := c.Speech(context.Background(), "hi", "Freya.wav")
	if err != nil {
		t.Fatalf("Speech() unexpected error = %v", err)
	}
	if string(b) != "wav-payload" {
		t.Fatalf("Speech() = %q, want %q", b, "wav-payload")
	}
}

func TestSpeechRetriesTransientStatus(t *testing.T) {
	var calls int
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/audio/speech", func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			http.Error(w, "engine busy", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("wav-payload"))
	})
	c, _ := newTestClient(t, mux)

	b, err := c.Speech(context.Background(), "hi", "Freya.wav")
	if err != nil {
		t.Fatalf("Speech() unexpected error = %v", err)
	}
	if string(b) != "wav-payload" {
		t.Fatalf("Speech() = %q, want %q", b, "wav-payload")
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}

func TestSpeechDoesNotRetryClientError(t *testing.T) {
	var calls int
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/audio/speech", func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "bad request", http.StatusBadRequest)
	})
	c, _ := newTestClient(t, mux)

	if _, err := c.Speech(context.Background(), "hi", "v"); err == nil {
		t.Fatalf("Speech() expected error for HTTP 400")
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestSpeechRejectsEmptyAudio(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/audio/speech", func(w http.ResponseWriter, r *http.Request) {})
	c, _ := newTestClient(t, mux)

	if _, err := c.Speech(context.Background(), "hi", "v"); err == nil {
		t.Fatalf("Speech() expected error for empty body")
	}
}

func TestGenerateFetchesOutputFile(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tts-generate", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.PostForm.Get("text_input") != "hi" {
			t.Errorf("text_input = %q, want %q", r.PostForm.Get("text_input"), "hi")
		}
		json.NewEncoder(w).Encode(generateResponse{
			Status:        "generate-success",
			OutputFileURL: "/audio/out.wav",
		})
	})
	mux.HandleFunc("/audio/out.wav", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("generated-wav"))
	})
	c, _ := newTestClient(t, mux)

	b, err := c.Generate(context.Background(), "hi", "Freya.wav", "en")
	if err != nil {
		t.Fatalf("Generate() unexpected error = %v", err)
	}
	if string(b) != "generated-wav" {
		t.Fatalf("Generate() = %q, want %q", b, "generated-wav")
	}
}

func TestGenerateSurfacesEngineFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tts-generate", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(generateResponse{Status: "generate-failure", Error: "bad voice"})
	})
	c, _ := newTestClient(t, mux)

	if _, err := c.Generate(context.Background(), "hi", "nope.wav", "en"); err == nil {
		t.Fatalf("Generate() expected error for generate-failure")
	}
}

func TestVoices(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/voices", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string][]string{"voices": {"Freya.wav", "Arnold.wav"}})
	})
	c, _ := newTestClient(t, mux)

	voices, err := c.Voices(context.Background())
	if err != nil {
		t.Fatalf("Voices() unexpected error = %v", err)
	}
	if len(voices) != 2 || voices[0] != "Freya.wav" {
		t.Fatalf("Voices() = %v, want [Freya.wav Arnold.wav]", voices)
	}
}

func TestStopGeneration(t *testing.T) {
	var called bool
	mux := http.NewServeMux()
	mux.HandleFunc("/api/stop-generation", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("method = %s, want PUT", r.Method)
		}
		called = true
	})
	c, _ := newTestClient(t, mux)

	if err := c.StopGeneration(context.Background()); err != nil {
		t.Fatalf("StopGeneration() unexpected error = %v", err)
	}
	if !called {
		t.Fatalf("StopGeneration() endpoint not called")
	}
}
