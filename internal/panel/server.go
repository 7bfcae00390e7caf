// Package panel is the local HTTP control surface: status, voice and pause
// controls, transcript history, and a websocket state feed for tray apps.
package panel

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/voxctl/voicemode/internal/health"
	"github.com/voxctl/voicemode/internal/history"
	"github.com/voxctl/voicemode/internal/micstate"
	"github.com/voxctl/voicemode/internal/observability"
	"github.com/voxctl/voicemode/internal/speech"
)

// Speech is the slice of the speech service the panel drives.
type Speech interface {
	Status(ctx context.Context) speech.StatusResult
	SetVoice(ctx context.Context, voice string) error
	State() *speech.State
	SessionID() string
}

// Engine is the slice of the TTS client the panel needs directly.
type Engine interface {
	Voices(ctx context.Context) ([]string, error)
	StopGeneration(ctx context.Context) error
}

type Server struct {
	svc      Speech
	engine   Engine
	mic      *micstate.File
	store    history.Store
	checker  *health.Checker
	upgrader websocket.Upgrader
}

func New(svc Speech, engine Engine, mic *micstate.File, store history.Store, checker *health.Checker) *Server {
	return &Server{
		svc:     svc,
		engine:  engine,
		mic:     mic,
		store:   store,
		checker: checker,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// The panel binds to localhost; still refuse cross-origin
				// browser connections in case it is ever exposed wider.
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Get("/v1/state", s.handleGetState)
	r.Post("/v1/state", s.handleUpdateState)
	r.Get("/v1/voices", s.handleListVoices)
	r.Get("/v1/history", s.handleHistory)
	r.Get("/v1/state/ws", s.handleStateWS)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := s.checker.Check(r.Context())
	ready := true
	for _, ok := range checks {
		if !ok {
			ready = false
		}
	}
	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, map[string]any{"ready": ready, "checks": checks})
}

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.svc.Status(r.Context()))
}

type stateUpdate struct {
	// VoiceMode accepts "enabled" or "disabled".
	VoiceMode *string `json:"voice_mode"`
	TTSPaused *bool   `json:"tts_paused"`
	Voice     *string `json:"voice"`
}

func (s *Server) handleUpdateState(w http.ResponseWriter, r *http.Request) {
	var req stateUpdate
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	if req.VoiceMode != nil {
		switch strings.ToLower(strings.TrimSpace(*req.VoiceMode)) {
		case "enabled":
			s.svc.State().Enable()
		case "disabled":
			s.svc.State().Disable()
		default:
			respondError(w, http.StatusBadRequest, "invalid_voice_mode", "voice_mode must be enabled or disabled")
			return
		}
	}

	if req.TTSPaused != nil {
		if err := s.mic.SetTTSPaused(*req.TTSPaused); err != nil {
			respondError(w, http.StatusInternalServerError, "mic_state_write_failed", err.Error())
			return
		}
		if *req.TTSPaused {
			// Pausing also stops the engine side so it does not keep
			// generating audio nobody will play.
			if err := s.engine.StopGeneration(r.Context()); err != nil {
				log.Printf("panel: stop generation on pause: %v", err)
			}
		}
	}

	if req.Voice != nil {
		if err := s.svc.SetVoice(r.Context(), *req.Voice); err != nil {
			respondError(w, http.StatusBadRequest, "invalid_voice", err.Error())
			return
		}
	}

	respondJSON(w, http.StatusOK, s.svc.Status(r.Context()))
}

func (s *Server) handleListVoices(w http.ResponseWriter, r *http.Request) {
	voices, err := s.engine.Voices(r.Context())
	if err != nil {
		respondError(w, http.StatusBadGateway, "engine_unreachable", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"voices":  voices,
		"current": s.svc.State().Voice(),
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 200 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be 1-200")
			return
		}
		limit = n
	}

	turns, err := s.store.Recent(r.Context(), s.svc.SessionID(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "history_read_failed", err.Error())
		return
	}
	if turns == nil {
		turns = []history.Turn{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"turns": turns})
}

func (s *Server) handleStateWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	feed := s.svc.State().Subscribe()

	// Reader runs only to observe the close.
	go func() {
		defer cancel()
		conn.SetReadLimit(1 << 10)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// Current state first, then deltas.
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := conn.WriteJSON(s.svc.State().Snapshot()); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-feed:
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(snap); err != nil {
				return
			}
		}
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
