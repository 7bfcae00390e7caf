package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() unexpected error = %v", err)
	}
	if cfg.AllTalkURL != "http://127.0.0.1:7851" {
		t.Fatalf("AllTalkURL = %q, want default", cfg.AllTalkURL)
	}
	if cfg.WhisperURL != "http://127.0.0.1:8787" {
		t.Fatalf("WhisperURL = %q, want default", cfg.WhisperURL)
	}
	if cfg.StallThreshold != 10*time.Second {
		t.Fatalf("StallThreshold = %v, want 10s", cfg.StallThreshold)
	}
	if cfg.JitterAllowance != 500*time.Millisecond {
		t.Fatalf("JitterAllowance = %v, want 500ms", cfg.JitterAllowance)
	}
	if cfg.StreamChunkSize != 4096 {
		t.Fatalf("StreamChunkSize = %d, want 4096", cfg.StreamChunkSize)
	}
	if cfg.DefaultVoice != "Freya.wav" {
		t.Fatalf("DefaultVoice = %q, want Freya.wav", cfg.DefaultVoice)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ALLTALK_URL", "http://10.0.0.2:7851")
	t.Setenv("STREAM_STALL_THRESHOLD", "6s")
	t.Setenv("MIC_SAMPLE_RATE", "24000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() unexpected error = %v", err)
	}
	if cfg.AllTalkURL != "http://10.0.0.2:7851" {
		t.Fatalf("AllTalkURL = %q, want override", cfg.AllTalkURL)
	}
	if cfg.StallThreshold != 6*time.Second {
		t.Fatalf("StallThreshold = %v, want 6s", cfg.StallThreshold)
	}
	if cfg.CaptureSampleRate != 24000 {
		t.Fatalf("CaptureSampleRate = %d, want 24000", cfg.CaptureSampleRate)
	}
}

func TestLoadDrainAndConfirmOverrides(t *testing.T) {
	t.Setenv("STREAM_DRAIN_POLL", "20ms")
	t.Setenv("STREAM_LATENCY_FLOOR", "10ms")
	t.Setenv("STREAM_LATENCY_CEILING", "1s")
	t.Setenv("CONFIRM_LISTEN_DURATION", "5s")
	t.Setenv("CONFIRM_SILENCE_TIMEOUT", "2s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() unexpected error = %v", err)
	}
	if cfg.DrainPoll != 20*time.Millisecond {
		t.Fatalf("DrainPoll = %v, want 20ms", cfg.DrainPoll)
	}
	if cfg.LatencyFloor != 10*time.Millisecond || cfg.LatencyCeiling != time.Second {
		t.Fatalf("latency clamp = [%v, %v], want [10ms, 1s]", cfg.LatencyFloor, cfg.LatencyCeiling)
	}
	if cfg.ConfirmListenDuration != 5*time.Second || cfg.ConfirmSilenceTimeout != 2*time.Second {
		t.Fatalf("confirm window = %v/%v, want 5s/2s", cfg.ConfirmListenDuration, cfg.ConfirmSilenceTimeout)
	}
}

func TestLoadRejectsInvertedLatencyClamp(t *testing.T) {
	t.Setenv("STREAM_LATENCY_FLOOR", "3s")
	if _, err := Load(); err == nil {
		t.Fatalf("Load() expected error for floor above ceiling")
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("STREAM_STALL_THRESHOLD", "100ms")
	if _, err := Load(); err == nil {
		t.Fatalf("Load() expected error for sub-second stall threshold")
	}
}

func TestLoadRejectsUnparseableDuration(t *testing.T) {
	t.Setenv("LISTEN_MAX_DURATION", "soon")
	if _, err := Load(); err == nil {
		t.Fatalf("Load() expected parse error")
	}
}
