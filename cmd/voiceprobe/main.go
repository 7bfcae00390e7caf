// voiceprobe exercises the TTS engine's streaming path from the command
// line and reports per-run timing: first chunk latency, worst inter-chunk
// gap, total bytes, drain wait, and whether the stream stalled. Useful when
// diagnosing an engine without involving the assistant.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/voxctl/voicemode/internal/alltalk"
	"github.com/voxctl/voicemode/internal/audio"
	"github.com/voxctl/voicemode/internal/playback"
)

type options struct {
	baseURL  string
	text     string
	voice    string
	language string
	device   bool
	runs     int
	stall    time.Duration
	timeout  time.Duration
}

func parseFlags() (options, error) {
	var opts options
	flag.StringVar(&opts.baseURL, "url", "http://127.0.0.1:7851", "TTS engine base URL")
	flag.StringVar(&opts.text, "text", "This is a streaming playback probe.", "text to synthesize")
	flag.StringVar(&opts.voice, "voice", "Freya.wav", "voice file name")
	flag.StringVar(&opts.language, "lang", "en", "synthesis language")
	flag.BoolVar(&opts.device, "device", false, "play through the default output device instead of discarding audio")
	flag.IntVar(&opts.runs, "runs", 1, "number of streaming sessions to run")
	flag.DurationVar(&opts.stall, "stall", 10*time.Second, "inter-chunk stall threshold")
	flag.DurationVar(&opts.timeout, "timeout", 2*time.Minute, "per-run timeout")
	flag.Parse()
	if opts.runs <= 0 {
		return options{}, fmt.Errorf("runs must be > 0")
	}
	return opts, nil
}

// discardSink consumes audio at no cost, for probing the engine side alone.
type discardSink struct{ bytes int64 }

func (d *discardSink) Write(p []byte) error   { d.bytes += int64(len(p)); return nil }
func (d *discardSink) Latency() time.Duration { return 0 }
func (d *discardSink) Close() error           { return nil }

func main() {
	log.SetOutput(os.Stderr)
	opts, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "voiceprobe: %v\n", err)
		os.Exit(2)
	}

	client := alltalk.New(opts.baseURL, opts.timeout, 2*time.Second)
	readyCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	ready := client.Ready(readyCtx)
	cancel()
	if !ready {
		log.Fatalf("engine at %s is not ready", opts.baseURL)
	}

	open := playback.OpenDeviceSink
	if !opts.device {
		open = func(audio.Format) (playback.Sink, error) { return &discardSink{}, nil }
	}

	var (
		stalls   int
		worstGap time.Duration
	)
	for i := 0; i < opts.runs; i++ {
		res, err := probe(client, open, opts)
		if res.MaxGap > worstGap {
			worstGap = res.MaxGap
		}

		fmt.Printf("run %d/%d: chunks=%d bytes=%d gap=%v drain=%v exit=%s\n",
			i+1, opts.runs, res.Chunks, res.BytesWritten,
			res.MaxGap.Round(time.Millisecond), res.DrainWait.Round(time.Millisecond), res.ExitReason)

		if err != nil {
			var stall *playback.StallError
			if errors.As(err, &stall) {
				stalls++
				log.Printf("run %d stalled: %v", i+1, stall)
				continue
			}
			log.Fatalf("run %d failed: %v", i+1, err)
		}
	}

	fmt.Printf("runs:      %d\n", opts.runs)
	fmt.Printf("stalls:    %d\n", stalls)
	fmt.Printf("worst gap: %v\n", worstGap.Round(time.Millisecond))
	if stalls > 0 {
		os.Exit(1)
	}
}

func probe(client *alltalk.Client, open playback.SinkOpener, opts options) (playback.Result, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()

	start := time.Now()
	body, err := client.Stream(ctx, opts.text, opts.voice, opts.language)
	if err != nil {
		return playback.Result{}, fmt.Errorf("stream request: %w", err)
	}
	defer body.Close()

	res, err := playback.Play(ctx, body, open, playback.Options{
		StallThreshold: opts.stall,
	})

	if !res.FirstChunkAt.IsZero() {
		fmt.Printf("  format %d Hz %d ch %d bit, first chunk after %v",
			res.Format.SampleRate, res.Format.Channels, res.Format.BitsPerSample,
			res.FirstChunkAt.Sub(start).Round(time.Millisecond))
		if res.Format.BytesPerSecond() > 0 {
			audioLen := time.Duration(res.BytesWritten) * time.Second / time.Duration(res.Format.BytesPerSecond())
			fmt.Printf(", %v of audio", audioLen.Round(10*time.Millisecond))
		}
		fmt.Println()
	}
	return res, err
}
