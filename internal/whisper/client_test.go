package whisper

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestTranscribe(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/audio/transcriptions", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(4 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if r.FormValue("language") != "en" {
			t.Errorf("language = %q, want %q", r.FormValue("language"), "en")
		}
		if r.FormValue("model") == "" {
			t.Errorf("model field missing from transcription request")
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer f.Close()
		b, _ := io.ReadAll(f)
		if len(b) <= 44 {
			t.Errorf("uploaded wav is %d bytes, want header plus payload", len(b))
		}
		json.NewEncoder(w).Encode(map[string]string{"text": "  hello world \n"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(srv.URL, "en", 5*time.Second, time.Second)
	text, err := c.Transcribe(context.Background(), make([]byte, 3200), 16000)
	if err != nil {
		t.Fatalf("Transcribe() unexpected error = %v", err)
	}
	if text != "hello world" {
		t.Fatalf("Transcribe() = %q, want %q", text, "hello world")
	}
}

func TestTranscribeEmptyAudioSkipsRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request for empty audio")
	}))
	defer srv.Close()

	c := New(srv.URL, "en", time.Second, time.Second)
	text, err := c.Transcribe(context.Background(), nil, 16000)
	if err != nil {
		t.Fatalf("Transcribe() unexpected error = %v", err)
	}
	if text != "" {
		t.Fatalf("Transcribe() = %q, want empty", text)
	}
}

func TestTranscribeSurfacesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, "en", time.Second, time.Second)
	if _, err := c.Transcribe(context.Background(), make([]byte, 64), 16000); err == nil {
		t.Fatalf("Transcribe() expected error for HTTP 500")
	}
}

func TestHealthy(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(srv.URL, "en", time.Second, time.Second)
	if !c.Healthy(context.Background()) {
		t.Fatalf("Healthy() = false, want true")
	}

	down := New("http://127.0.0.1:1", "en", time.Second, 200*time.Millisecond)
	if down.Healthy(context.Background()) {
		t.Fatalf("Healthy() = true for unreachable server, want false")
	}
}
