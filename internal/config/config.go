package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the voice-mode server.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllTalkURL   string
	WhisperURL   string
	DefaultVoice string
	Language     string

	HTTPTimeout   time.Duration
	HealthTimeout time.Duration

	// Streaming playback tuning. The stall threshold is derived from the
	// upstream engine's 1-5s typical generation time: a 10s gap is double the
	// worst observed case and treated as a hang, not noise.
	StreamChunkSize int
	StallThreshold  time.Duration
	JitterAllowance time.Duration
	DrainPoll       time.Duration
	LatencyFloor    time.Duration
	LatencyCeiling  time.Duration

	CaptureSampleRate    int
	ListenMaxDuration    time.Duration
	ListenSilenceTimeout time.Duration

	ConfirmListenDuration time.Duration
	ConfirmSilenceTimeout time.Duration

	MicStateFile string

	DatabaseURL string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8089"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "voicemode"),
		AllTalkURL:       envOrDefault("ALLTALK_URL", "http://127.0.0.1:7851"),
		WhisperURL:       envOrDefault("WHISPER_URL", "http://127.0.0.1:8787"),
		DefaultVoice:     envOrDefault("TTS_DEFAULT_VOICE", "Freya.wav"),
		Language:         envOrDefault("TTS_LANGUAGE", "en"),
		MicStateFile:     envOrDefault("MIC_STATE_FILE", "mic_state.json"),
		DatabaseURL:      envTrimmed("DATABASE_URL"),

		ShutdownTimeout: 15 * time.Second,
		HTTPTimeout:     30 * time.Second,
		HealthTimeout:   2 * time.Second,

		StreamChunkSize: 4096,
		StallThreshold:  10 * time.Second,
		JitterAllowance: 500 * time.Millisecond,
		DrainPoll:       50 * time.Millisecond,
		LatencyFloor:    50 * time.Millisecond,
		LatencyCeiling:  2 * time.Second,

		CaptureSampleRate:    16000,
		ListenMaxDuration:    10 * time.Second,
		ListenSilenceTimeout: 2 * time.Second,

		ConfirmListenDuration: 8 * time.Second,
		ConfirmSilenceTimeout: 3 * time.Second,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.HTTPTimeout, err = durationFromEnv("VOICE_HTTP_TIMEOUT", cfg.HTTPTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.HealthTimeout, err = durationFromEnv("VOICE_HEALTH_TIMEOUT", cfg.HealthTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.StreamChunkSize, err = intFromEnv("STREAM_CHUNK_SIZE", cfg.StreamChunkSize)
	if err != nil {
		return Config{}, err
	}
	cfg.StallThreshold, err = durationFromEnv("STREAM_STALL_THRESHOLD", cfg.StallThreshold)
	if err != nil {
		return Config{}, err
	}
	cfg.JitterAllowance, err = durationFromEnv("STREAM_JITTER_ALLOWANCE", cfg.JitterAllowance)
	if err != nil {
		return Config{}, err
	}
	cfg.DrainPoll, err = durationFromEnv("STREAM_DRAIN_POLL", cfg.DrainPoll)
	if err != nil {
		return Config{}, err
	}
	cfg.LatencyFloor, err = durationFromEnv("STREAM_LATENCY_FLOOR", cfg.LatencyFloor)
	if err != nil {
		return Config{}, err
	}
	cfg.LatencyCeiling, err = durationFromEnv("STREAM_LATENCY_CEILING", cfg.LatencyCeiling)
	if err != nil {
		return Config{}, err
	}
	cfg.ConfirmListenDuration, err = durationFromEnv("CONFIRM_LISTEN_DURATION", cfg.ConfirmListenDuration)
	if err != nil {
		return Config{}, err
	}
	cfg.ConfirmSilenceTimeout, err = durationFromEnv("CONFIRM_SILENCE_TIMEOUT", cfg.ConfirmSilenceTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.CaptureSampleRate, err = intFromEnv("MIC_SAMPLE_RATE", cfg.CaptureSampleRate)
	if err != nil {
		return Config{}, err
	}
	cfg.ListenMaxDuration, err = durationFromEnv("LISTEN_MAX_DURATION", cfg.ListenMaxDuration)
	if err != nil {
		return Config{}, err
	}
	cfg.ListenSilenceTimeout, err = durationFromEnv("LISTEN_SILENCE_TIMEOUT", cfg.ListenSilenceTimeout)
	if err != nil {
		return Config{}, err
	}

	if strings.TrimSpace(cfg.AllTalkURL) == "" {
		return Config{}, fmt.Errorf("ALLTALK_URL must not be empty")
	}
	if strings.TrimSpace(cfg.WhisperURL) == "" {
		return Config{}, fmt.Errorf("WHISPER_URL must not be empty")
	}
	if cfg.StreamChunkSize <= 0 {
		return Config{}, fmt.Errorf("STREAM_CHUNK_SIZE must be positive")
	}
	if cfg.StallThreshold < time.Second {
		return Config{}, fmt.Errorf("STREAM_STALL_THRESHOLD must be at least 1s")
	}
	if cfg.JitterAllowance <= 0 {
		return Config{}, fmt.Errorf("STREAM_JITTER_ALLOWANCE must be positive")
	}
	if cfg.DrainPoll <= 0 {
		return Config{}, fmt.Errorf("STREAM_DRAIN_POLL must be positive")
	}
	if cfg.LatencyFloor <= 0 {
		return Config{}, fmt.Errorf("STREAM_LATENCY_FLOOR must be positive")
	}
	if cfg.LatencyCeiling < cfg.LatencyFloor {
		return Config{}, fmt.Errorf("STREAM_LATENCY_CEILING must not be below STREAM_LATENCY_FLOOR")
	}
	if cfg.ConfirmListenDuration <= 0 {
		return Config{}, fmt.Errorf("CONFIRM_LISTEN_DURATION must be positive")
	}
	if cfg.ConfirmSilenceTimeout <= 0 {
		return Config{}, fmt.Errorf("CONFIRM_SILENCE_TIMEOUT must be positive")
	}
	if cfg.CaptureSampleRate <= 0 {
		return Config{}, fmt.Errorf("MIC_SAMPLE_RATE must be positive")
	}
	if cfg.ListenMaxDuration < time.Second {
		return Config{}, fmt.Errorf("LISTEN_MAX_DURATION must be at least 1s")
	}
	if cfg.ListenSilenceTimeout <= 0 {
		return Config{}, fmt.Errorf("LISTEN_SILENCE_TIMEOUT must be positive")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func envTrimmed(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}
