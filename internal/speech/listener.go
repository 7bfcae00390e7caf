package speech

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/voxctl/voicemode/internal/capture"
)

// ListenResult reports one microphone capture.
type ListenResult struct {
	Transcript string        `json:"transcript"`
	Duration   time.Duration `json:"-"`
	// HeardSpeech distinguishes an empty transcript of silence from a failed
	// transcription of real speech.
	HeardSpeech bool `json:"heard_speech"`
}

// Listen records from the microphone until trailing silence or the duration
// cap and returns the transcript.
func (s *Service) Listen(ctx context.Context) (ListenResult, error) {
	if s.state.Disabled() {
		return ListenResult{}, fmt.Errorf("voice mode is disabled")
	}
	if !s.opts.STT.Healthy(ctx) {
		return ListenResult{}, fmt.Errorf("transcription engine is not ready")
	}

	start := time.Now()
	pcm, heard, err := s.capture(ctx, s.opts.ListenMaxDuration, s.opts.ListenSilenceTimeout)
	duration := time.Since(start)
	if m := s.opts.Metrics; m != nil {
		m.ListenDuration.Observe(duration.Seconds())
	}
	if err != nil {
		return ListenResult{Duration: duration}, err
	}

	text, err := s.opts.STT.Transcribe(ctx, pcm, s.opts.CaptureRate)
	if err != nil {
		if m := s.opts.Metrics; m != nil {
			m.EngineErrors.WithLabelValues("stt", "transcribe").Inc()
		}
		return ListenResult{Duration: duration, HeardSpeech: heard}, fmt.Errorf("transcribe: %w", err)
	}

	res := ListenResult{
		Transcript:  strings.TrimSpace(text),
		Duration:    duration,
		HeardSpeech: heard,
	}
	if res.Transcript != "" {
		s.recordTurn(ctx, "user", res.Transcript, "", "")
	}
	return res, nil
}

// ConverseResult pairs the spoken prompt with the heard reply.
type ConverseResult struct {
	Speak      SpeakResult `json:"speak"`
	Transcript string      `json:"transcript"`
}

// Converse speaks the prompt and then listens for a reply in one round trip.
func (s *Service) Converse(ctx context.Context, text string) (ConverseResult, error) {
	spoken, err := s.Speak(ctx, text)
	if err != nil {
		return ConverseResult{Speak: spoken}, err
	}
	if s.state.Disabled() {
		return ConverseResult{Speak: spoken}, nil
	}

	heard, err := s.Listen(ctx)
	if err != nil {
		return ConverseResult{Speak: spoken}, err
	}
	return ConverseResult{Speak: spoken, Transcript: heard.Transcript}, nil
}

// listenWindow is the capture+transcribe primitive shared by Listen and the
// fallback confirmation flow.
func (s *Service) listenWindow(ctx context.Context, max, silence time.Duration) (string, error) {
	if !s.opts.STT.Healthy(ctx) {
		return "", fmt.Errorf("transcription engine is not ready")
	}
	pcm, _, err := s.capture(ctx, max, silence)
	if err != nil {
		return "", err
	}
	return s.opts.STT.Transcribe(ctx, pcm, s.opts.CaptureRate)
}

func (s *Service) capture(ctx context.Context, max, silence time.Duration) ([]byte, bool, error) {
	if s.opts.Mic.Muted() {
		return nil, false, fmt.Errorf("microphone is muted")
	}
	src, err := s.opts.OpenSource(s.opts.CaptureRate)
	if err != nil {
		return nil, false, fmt.Errorf("open microphone: %w", err)
	}
	defer src.Close()

	det := capture.NewDetector()
	pcm, err := capture.Record(ctx, src, s.opts.CaptureRate, capture.RecordOptions{
		MaxDuration:    max,
		SilenceTimeout: silence,
		Detector:       det,
	})
	if err != nil {
		return nil, det.SpeechSeen(), err
	}
	return pcm, det.SpeechSeen(), nil
}
