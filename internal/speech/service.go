// Package speech orchestrates spoken output and microphone input: streamed
// playback with a buffered fallback, silence-endpointed capture, and the
// shared voice state the control surfaces observe.
package speech

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voxctl/voicemode/internal/capture"
	"github.com/voxctl/voicemode/internal/history"
	"github.com/voxctl/voicemode/internal/micstate"
	"github.com/voxctl/voicemode/internal/observability"
	"github.com/voxctl/voicemode/internal/playback"
)

// TTSEngine is the synthesis surface the service depends on.
type TTSEngine interface {
	Ready(ctx context.Context) bool
	Stream(ctx context.Context, text, voice, language string) (io.ReadCloser, error)
	Speech(ctx context.Context, text, voice string) ([]byte, error)
	Generate(ctx context.Context, text, voice, language string) ([]byte, error)
	Voices(ctx context.Context) ([]string, error)
	StopGeneration(ctx context.Context) error
}

// STTEngine is the transcription surface the service depends on.
type STTEngine interface {
	Healthy(ctx context.Context) bool
	Transcribe(ctx context.Context, pcm16le []byte, sampleRate int) (string, error)
}

// Options wires a Service. TTS, STT, OpenSink, OpenSource, Mic and Store are
// required; the rest default sensibly.
type Options struct {
	TTS        TTSEngine
	STT        STTEngine
	OpenSink   playback.SinkOpener
	OpenSource capture.SourceOpener
	Mic        *micstate.File
	Store      history.Store
	Metrics    *observability.Metrics

	Language    string
	CaptureRate int
	Playback    playback.Options

	ListenMaxDuration    time.Duration
	ListenSilenceTimeout time.Duration
	// Confirmation listens use their own, tighter window.
	ConfirmListenDuration time.Duration
	ConfirmSilenceTimeout time.Duration

	AllTalkURL string
	WhisperURL string
}

type Service struct {
	opts      Options
	state     *State
	sessionID string

	// speakMu serializes utterances; overlapping playback on one output
	// device is never useful.
	speakMu sync.Mutex
}

func NewService(state *State, opts Options) (*Service, error) {
	if opts.TTS == nil || opts.STT == nil {
		return nil, fmt.Errorf("speech: TTS and STT engines are required")
	}
	if opts.OpenSink == nil || opts.OpenSource == nil {
		return nil, fmt.Errorf("speech: sink and source openers are required")
	}
	if opts.Mic == nil || opts.Store == nil {
		return nil, fmt.Errorf("speech: mic state and history store are required")
	}
	if strings.TrimSpace(opts.Language) == "" {
		opts.Language = "en"
	}
	if opts.CaptureRate <= 0 {
		opts.CaptureRate = 16000
	}
	if opts.ListenMaxDuration <= 0 {
		opts.ListenMaxDuration = 10 * time.Second
	}
	if opts.ListenSilenceTimeout <= 0 {
		opts.ListenSilenceTimeout = 2 * time.Second
	}
	if opts.ConfirmListenDuration <= 0 {
		opts.ConfirmListenDuration = 8 * time.Second
	}
	if opts.ConfirmSilenceTimeout <= 0 {
		opts.ConfirmSilenceTimeout = 3 * time.Second
	}
	return &Service{
		opts:      opts,
		state:     state,
		sessionID: uuid.NewString(),
	}, nil
}

func (s *Service) State() *State     { return s.state }
func (s *Service) SessionID() string { return s.sessionID }

// StatusResult is the live view returned by Status: persistent flags plus
// fresh engine probes.
type StatusResult struct {
	Snapshot
	TTSReady   bool   `json:"tts_ready"`
	STTReady   bool   `json:"stt_ready"`
	TTSPaused  bool   `json:"tts_paused"`
	AllTalkURL string `json:"alltalk_url"`
	WhisperURL string `json:"whisper_url"`
}

func (s *Service) Status(ctx context.Context) StatusResult {
	return StatusResult{
		Snapshot:   s.state.Snapshot(),
		TTSReady:   s.opts.TTS.Ready(ctx),
		STTReady:   s.opts.STT.Healthy(ctx),
		TTSPaused:  s.opts.Mic.TTSPaused(),
		AllTalkURL: s.opts.AllTalkURL,
		WhisperURL: s.opts.WhisperURL,
	}
}

// SetVoice validates the voice against the engine's list when the engine is
// reachable, then updates the preference for subsequent utterances.
func (s *Service) SetVoice(ctx context.Context, voice string) error {
	voice = strings.TrimSpace(voice)
	if voice == "" {
		return fmt.Errorf("voice must not be empty")
	}
	if s.opts.TTS.Ready(ctx) {
		voices, err := s.opts.TTS.Voices(ctx)
		if err != nil {
			log.Printf("speech: list voices: %v", err)
		} else if len(voices) > 0 && !containsVoice(voices, voice) {
			return fmt.Errorf("unknown voice %q; engine offers %d voices", voice, len(voices))
		}
	}
	s.state.SetVoice(voice)
	return nil
}

func containsVoice(voices []string, voice string) bool {
	for _, v := range voices {
		if strings.EqualFold(strings.TrimSpace(v), voice) {
			return true
		}
	}
	return false
}

func (s *Service) recordTurn(ctx context.Context, role, content, voice, path string) {
	err := s.opts.Store.SaveTurn(ctx, history.Turn{
		SessionID: s.sessionID,
		Role:      role,
		Content:   content,
		Voice:     voice,
		Path:      path,
	})
	if err != nil {
		log.Printf("speech: save %s turn: %v", role, err)
	}
}

func (s *Service) playbackOptions() playback.Options {
	opts := s.opts.Playback
	opts.Paused = s.opts.Mic.TTSPaused
	return opts
}

func (s *Service) observePlayback(res playback.Result) {
	m := s.opts.Metrics
	if m == nil {
		return
	}
	if res.ExitReason != "" {
		m.PlaybackSessions.WithLabelValues(string(res.ExitReason)).Inc()
	}
	m.PlaybackBytes.Add(float64(res.BytesWritten))
	if res.ExitReason == playback.ExitStall {
		m.Stalls.Inc()
	}
	if res.DrainWait > 0 {
		m.ObserveDrainWait(res.DrainWait)
	}
}
