package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/voxctl/voicemode/internal/alltalk"
	"github.com/voxctl/voicemode/internal/capture"
	"github.com/voxctl/voicemode/internal/config"
	"github.com/voxctl/voicemode/internal/health"
	"github.com/voxctl/voicemode/internal/history"
	"github.com/voxctl/voicemode/internal/mcptools"
	"github.com/voxctl/voicemode/internal/micstate"
	"github.com/voxctl/voicemode/internal/observability"
	"github.com/voxctl/voicemode/internal/panel"
	"github.com/voxctl/voicemode/internal/playback"
	"github.com/voxctl/voicemode/internal/speech"
	"github.com/voxctl/voicemode/internal/whisper"
)

const version = "0.3.0"

func main() {
	log.SetOutput(os.Stderr)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	store, err := history.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("history store init failed: %v", err)
	}
	defer store.Close()

	tts := alltalk.New(cfg.AllTalkURL, cfg.HTTPTimeout, cfg.HealthTimeout)
	stt := whisper.New(cfg.WhisperURL, cfg.Language, cfg.HTTPTimeout, cfg.HealthTimeout)
	mic := micstate.NewFile(cfg.MicStateFile)

	state := speech.NewState(cfg.DefaultVoice)
	svc, err := speech.NewService(state, speech.Options{
		TTS:        tts,
		STT:        stt,
		OpenSink:   playback.OpenDeviceSink,
		OpenSource: capture.OpenMicrophone,
		Mic:        mic,
		Store:      store,
		Metrics:    metrics,

		Language:    cfg.Language,
		CaptureRate: cfg.CaptureSampleRate,
		Playback: playback.Options{
			ChunkSize:       cfg.StreamChunkSize,
			StallThreshold:  cfg.StallThreshold,
			JitterAllowance: cfg.JitterAllowance,
			Poll:            cfg.DrainPoll,
			LatencyFloor:    cfg.LatencyFloor,
			LatencyCeiling:  cfg.LatencyCeiling,
		},

		ListenMaxDuration:     cfg.ListenMaxDuration,
		ListenSilenceTimeout:  cfg.ListenSilenceTimeout,
		ConfirmListenDuration: cfg.ConfirmListenDuration,
		ConfirmSilenceTimeout: cfg.ConfirmSilenceTimeout,

		AllTalkURL: cfg.AllTalkURL,
		WhisperURL: cfg.WhisperURL,
	})
	if err != nil {
		log.Fatalf("speech service init failed: %v", err)
	}

	checker := health.NewChecker(cfg.HealthTimeout)
	checker.Register("tts", tts.Ready)
	checker.Register("stt", stt.Healthy)
	for name, ok := range checker.Check(ctx) {
		if ok {
			log.Printf("startup check %s: ok", name)
		} else {
			log.Printf("startup check %s: not ready; continuing, /readyz keeps probing", name)
		}
	}

	api := panel.New(svc, tts, mic, store, checker)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	go func() {
		log.Printf("control panel listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	mcpDone := make(chan error, 1)
	go func() {
		log.Printf("serving voice tools on stdio (session %s)", svc.SessionID())
		mcpDone <- mcptools.Run(runCtx, svc, version)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Printf("shutdown signal received")
	case err := <-mcpDone:
		// The assistant closing stdin is the normal end of a session.
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("stdio transport ended: %v", err)
		} else {
			log.Printf("stdio transport closed")
		}
	}

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}
