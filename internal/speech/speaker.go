package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/voxctl/voicemode/internal/playback"
)

// Delivery paths recorded per utterance.
const (
	PathStreaming = "streaming"
	PathSpeechAPI = "speech_api"
	PathGenerate  = "generate_api"
	PathTextOnly  = "text_only"
)

// Speak statuses, one per terminal outcome.
const (
	StatusSpoken   = "spoken"
	StatusPaused   = "paused"
	StatusRecovery = "spoken_with_recovery"
	StatusError    = "error"
)

// Fallback confirmation outcomes.
const (
	FallbackRecovered        = "recovered"
	FallbackRecoveredUnclear = "recovered_unclear"
	FallbackDisabled         = "disabled"
	FallbackNotifyFailed     = "notify_failed"
)

const (
	textOnlyInstruction = "Present the text in the chat instead."
	disabledInstruction = "Voice mode is now disabled. Check the speakers and the TTS engine, then restart the server to re-enable audio. Present the text in the chat instead."
)

const confirmPrompt = "I had trouble streaming audio, so I switched to a backup method. Can you hear me now?"

// yesWords and noWords classify the spoken confirmation. Matching is on
// whole words after lowercasing, so "I can hear you" and "yeah it works"
// both land on yes.
var (
	yesWords = []string{"yes", "yeah", "yep", "yup", "hear", "ok", "okay", "can", "working"}
	noWords  = []string{"no", "nope", "can't", "cannot", "nothing", "don't"}
)

// SpeakResult reports how one utterance was (or was not) delivered.
type SpeakResult struct {
	Spoken bool `json:"spoken"`
	// Status is one of spoken, paused, spoken_with_recovery, or error.
	Status string `json:"status"`
	Path   string `json:"path"`
	// Fallback is set when a streaming stall triggered the confirmation
	// flow during this call.
	Fallback string `json:"fallback,omitempty"`
	Detail   string `json:"detail,omitempty"`
	// Instruction tells the calling assistant what to do when the text was
	// not, or may not have been, heard.
	Instruction         string        `json:"instruction,omitempty"`
	StreamingDisabled   bool          `json:"streaming_disabled,omitempty"`
	VoiceModeDisabled   bool          `json:"voice_mode_disabled,omitempty"`
	UserConfirmedAudio  bool          `json:"user_confirmed_audio,omitempty"`
	UserResponseUnclear bool          `json:"user_response_unclear,omitempty"`
	Duration            time.Duration `json:"-"`
}

// Speak delivers one utterance. Streaming is tried while its availability is
// unknown or known-good. A detected stall permanently demotes this process
// to the buffered path and runs the spoken confirmation flow to decide
// whether audio works at all; any other streaming error falls straight
// through to the buffered path for this utterance.
func (s *Service) Speak(ctx context.Context, text string) (SpeakResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return SpeakResult{}, fmt.Errorf("nothing to speak")
	}

	s.speakMu.Lock()
	defer s.speakMu.Unlock()

	start := time.Now()
	if s.state.Disabled() {
		return SpeakResult{
			Status:            StatusError,
			Path:              PathTextOnly,
			Detail:            "voice mode is disabled",
			VoiceModeDisabled: true,
			Instruction:       textOnlyInstruction,
		}, nil
	}
	if s.opts.Mic.TTSPaused() {
		return SpeakResult{
			Status:      StatusPaused,
			Path:        PathTextOnly,
			Detail:      "playback is paused",
			Instruction: textOnlyInstruction,
		}, nil
	}
	if !s.opts.TTS.Ready(ctx) {
		return SpeakResult{
			Status:      StatusError,
			Path:        PathTextOnly,
			Detail:      "speech engine is not ready",
			Instruction: textOnlyInstruction,
		}, nil
	}

	voice := s.state.Voice()
	res := SpeakResult{}

	if prior := s.state.Streaming(); prior != AvailabilityUnavailable {
		err := s.playStream(ctx, text, voice)
		if err == nil {
			s.state.SetStreaming(AvailabilityAvailable)
			res.Spoken = true
			res.Status = StatusSpoken
			res.Path = PathStreaming
			res.Duration = time.Since(start)
			s.countPath(PathStreaming)
			s.recordTurn(ctx, "assistant", text, voice, PathStreaming)
			return res, nil
		}
		log.Printf("speech: streaming failed: %v", err)

		var stall *playback.StallError
		switch {
		case errors.As(err, &stall):
			// Audio stopped mid-utterance with the user listening. Confirm
			// that audio works at all before carrying on.
			s.state.SetStreaming(AvailabilityUnavailable)
			// Ask the engine to stop feeding a stream nobody is reading.
			if serr := s.opts.TTS.StopGeneration(ctx); serr != nil {
				log.Printf("speech: stop generation: %v", serr)
			}

			outcome := s.runFallback(ctx, voice)
			res.Fallback = outcome
			res.StreamingDisabled = true
			if m := s.opts.Metrics; m != nil {
				m.FallbackOutcomes.WithLabelValues(outcome).Inc()
			}
			switch outcome {
			case FallbackDisabled, FallbackNotifyFailed:
				s.state.Disable()
				res.Status = StatusError
				res.Path = PathTextOnly
				res.VoiceModeDisabled = true
				res.Detail = "voice mode disabled after audio could not be confirmed"
				res.Instruction = disabledInstruction
				return res, nil
			case FallbackRecovered:
				res.UserConfirmedAudio = true
			case FallbackRecoveredUnclear:
				res.UserResponseUnclear = true
			}
			// Recovered (possibly unclear): deliver the original text buffered.
		case prior == AvailabilityUnknown:
			// Streaming never worked in this process; stop probing it.
			s.state.SetStreaming(AvailabilityUnavailable)
		}
		// A failure while streaming was known-good is treated as transient:
		// availability stays available, this utterance goes out buffered.
	}

	path, err := s.playBuffered(ctx, text, voice)
	if err != nil {
		log.Printf("speech: buffered playback failed: %v", err)
		res.Status = StatusError
		res.Path = PathTextOnly
		res.Detail = "audio delivery failed: " + err.Error()
		res.Instruction = textOnlyInstruction
		return res, nil
	}
	res.Spoken = true
	res.Path = path
	if res.Fallback != "" {
		res.Status = StatusRecovery
		res.Instruction = "Streaming playback is off until the server restarts; replies keep using buffered audio."
	} else {
		res.Status = StatusSpoken
	}
	res.Duration = time.Since(start)
	s.countPath(path)
	s.recordTurn(ctx, "assistant", text, voice, path)
	return res, nil
}

func (s *Service) countPath(path string) {
	if m := s.opts.Metrics; m != nil {
		m.SpeakPath.WithLabelValues(path).Inc()
	}
}

func (s *Service) playStream(ctx context.Context, text, voice string) error {
	start := time.Now()
	body, err := s.opts.TTS.Stream(ctx, text, voice, s.opts.Language)
	if err != nil {
		if m := s.opts.Metrics; m != nil {
			m.EngineErrors.WithLabelValues("tts", "stream").Inc()
		}
		return err
	}
	defer body.Close()

	res, err := playback.Play(ctx, body, s.opts.OpenSink, s.playbackOptions())
	s.observePlayback(res)
	if m := s.opts.Metrics; m != nil && !res.FirstChunkAt.IsZero() {
		m.ObserveFirstAudioLatency(res.FirstChunkAt.Sub(start))
	}
	return err
}

// playBuffered synthesizes the whole utterance first, then plays the
// finished WAV through the same playback path. The OpenAI-style endpoint is
// preferred; the native form endpoint covers engines without it.
func (s *Service) playBuffered(ctx context.Context, text, voice string) (string, error) {
	wav, path, err := s.synthesize(ctx, text, voice)
	if err != nil {
		return "", err
	}
	res, err := playback.Play(ctx, bytes.NewReader(wav), s.opts.OpenSink, s.playbackOptions())
	s.observePlayback(res)
	if err != nil {
		return path, err
	}
	return path, nil
}

func (s *Service) synthesize(ctx context.Context, text, voice string) ([]byte, string, error) {
	wav, err := s.opts.TTS.Speech(ctx, text, voice)
	if err == nil {
		return wav, PathSpeechAPI, nil
	}
	log.Printf("speech: speech endpoint failed, trying generate: %v", err)
	if m := s.opts.Metrics; m != nil {
		m.EngineErrors.WithLabelValues("tts", "speech").Inc()
	}

	wav, err = s.opts.TTS.Generate(ctx, text, voice, s.opts.Language)
	if err != nil {
		if m := s.opts.Metrics; m != nil {
			m.EngineErrors.WithLabelValues("tts", "generate").Inc()
		}
		return nil, "", err
	}
	return wav, PathGenerate, nil
}

// runFallback plays a spoken notification over the buffered path and listens
// for the user's answer. Yes means audio works and the session continues
// buffered; no means the user hears nothing and voice mode shuts off; an
// unclear or empty answer continues buffered optimistically.
func (s *Service) runFallback(ctx context.Context, voice string) string {
	if _, err := s.playBuffered(ctx, confirmPrompt, voice); err != nil {
		log.Printf("speech: fallback notification failed: %v", err)
		return FallbackNotifyFailed
	}

	reply, err := s.listenWindow(ctx, s.opts.ConfirmListenDuration, s.opts.ConfirmSilenceTimeout)
	if err != nil {
		log.Printf("speech: fallback confirmation listen failed: %v", err)
		return FallbackRecoveredUnclear
	}
	log.Printf("speech: fallback confirmation heard %q", reply)

	switch classifyConfirmation(reply) {
	case confirmYes:
		return FallbackRecovered
	case confirmNo:
		return FallbackDisabled
	default:
		return FallbackRecoveredUnclear
	}
}

type confirmation int

const (
	confirmUnclear confirmation = iota
	confirmYes
	confirmNo
)

// classifyConfirmation scans the transcript for yes/no vocabulary. Negative
// words win over positive ones: "no, I can't" contains "can" but the intent
// is clearly negative.
func classifyConfirmation(transcript string) confirmation {
	words := splitWords(transcript)
	if len(words) == 0 {
		return confirmUnclear
	}
	for _, w := range words {
		for _, neg := range noWords {
			if w == neg {
				return confirmNo
			}
		}
	}
	for _, w := range words {
		for _, pos := range yesWords {
			if w == pos {
				return confirmYes
			}
		}
	}
	return confirmUnclear
}

func splitWords(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		if r >= 'a' && r <= 'z' {
			return false
		}
		// Keep apostrophes so "can't" survives as one word.
		return r != '\''
	})
}
