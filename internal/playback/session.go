package playback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/voxctl/voicemode/internal/audio"
)

// ExitReason records why a playback session stopped consuming chunks.
type ExitReason string

const (
	ExitExhausted  ExitReason = "exhausted"
	ExitPaused     ExitReason = "paused"
	ExitWriteError ExitReason = "write_error"
	ExitStall      ExitReason = "stall"
)

// Options tunes one playback session. Zero values fall back to defaults that
// match the upstream engine's observed behavior.
type Options struct {
	ChunkSize int
	// StallThreshold is the maximum tolerated inter-chunk gap. The upstream
	// engine generates in 1-5s and delivers chunks every ~10ms; double the
	// worst observed case is conclusive evidence of a hang.
	StallThreshold  time.Duration
	JitterAllowance time.Duration
	Poll            time.Duration
	LatencyFloor    time.Duration
	LatencyCeiling  time.Duration
	// Paused is the external pause signal, polled and never blocking.
	Paused func() bool
}

func (o Options) withDefaults() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = 4096
	}
	if o.StallThreshold <= 0 {
		o.StallThreshold = 10 * time.Second
	}
	if o.JitterAllowance <= 0 {
		o.JitterAllowance = 500 * time.Millisecond
	}
	if o.Poll <= 0 {
		o.Poll = 50 * time.Millisecond
	}
	if o.LatencyFloor <= 0 {
		o.LatencyFloor = 50 * time.Millisecond
	}
	if o.LatencyCeiling <= 0 {
		o.LatencyCeiling = 2 * time.Second
	}
	return o
}

// Result describes one completed playback session.
type Result struct {
	Format       audio.Format
	BytesWritten int64
	Chunks       int
	FirstChunkAt time.Time
	LastChunkAt  time.Time
	// MaxGap is the worst observed wait between chunk arrivals, first chunk
	// excluded. On a stall exit it includes the gap that tripped the threshold.
	MaxGap     time.Duration
	ExitReason ExitReason
	DrainWait  time.Duration
}

type chunk struct {
	data []byte
	err  error
}

// Play drives one streaming playback session end-to-end: parse the WAV
// header from the stream head, forward frame-aligned chunks to the sink,
// watch inter-chunk gaps for stalls, then drain by the device's own reported
// latency instead of an arbitrary timeout. A detected stall is returned as
// *StallError after the drain wait so already-buffered audio finishes
// playing before the caller switches paths.
func Play(ctx context.Context, r io.Reader, open SinkOpener, opts Options) (Result, error) {
	opts = opts.withDefaults()

	var res Result

	header := make([]byte, audio.HeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return res, fmt.Errorf("read stream header: %w", err)
	}
	format, err := audio.ParseHeader(header)
	if err != nil {
		return res, err
	}
	res.Format = format
	frameSize := format.BlockAlign

	sink, err := open(format)
	if err != nil {
		return res, err
	}
	// Scoped acquisition: the sink is released on every exit path, after the
	// drain wait has run.
	closed := false
	closeSink := func() {
		if !closed {
			closed = true
			if cerr := sink.Close(); cerr != nil {
				log.Printf("playback: sink close: %v", cerr)
			}
		}
	}
	defer closeSink()

	chunks := make(chan chunk, 1)
	done := make(chan struct{})
	defer close(done)
	go func() {
		buf := make([]byte, opts.ChunkSize)
		for {
			n, rerr := r.Read(buf)
			c := chunk{err: rerr}
			if n > 0 {
				c.data = append([]byte(nil), buf[:n]...)
			}
			select {
			case chunks <- c:
			case <-done:
				return
			}
			if rerr != nil {
				return
			}
		}
	}()

	var (
		remainder []byte
		lastChunk = time.Now()
		writeErr  error
		readErr   error
	)
	res.ExitReason = ExitExhausted

	ticker := time.NewTicker(opts.Poll)
	defer ticker.Stop()

recv:
	for {
		var c chunk
	wait:
		for {
			select {
			case <-ctx.Done():
				res.ExitReason = ExitWriteError
				return res, ctx.Err()
			case c = <-chunks:
				break wait
			case <-ticker.C:
				if opts.Paused != nil && opts.Paused() {
					res.ExitReason = ExitPaused
					break recv
				}
				// The first chunk may lag by the engine's whole generation
				// time; the gap watch starts once the stream is flowing.
				if res.Chunks > 0 && time.Since(lastChunk) > opts.StallThreshold {
					log.Printf("playback: no chunk for %.1fs (after %d chunks, %d bytes), treating as stall",
						time.Since(lastChunk).Seconds(), res.Chunks, res.BytesWritten)
					if gap := time.Since(lastChunk); gap > res.MaxGap {
						res.MaxGap = gap
					}
					res.ExitReason = ExitStall
					break recv
				}
			}
		}

		if res.Chunks > 0 {
			if gap := time.Since(lastChunk); gap > res.MaxGap {
				res.MaxGap = gap
			}
		}
		lastChunk = time.Now()

		if len(c.data) > 0 {
			if opts.Paused != nil && opts.Paused() {
				res.ExitReason = ExitPaused
				break recv
			}
			data := append(remainder, c.data...)
			usable := len(data) - len(data)%frameSize
			if usable > 0 {
				if werr := sink.Write(data[:usable]); werr != nil {
					res.ExitReason = ExitWriteError
					writeErr = werr
					break recv
				}
				if res.Chunks == 0 {
					res.FirstChunkAt = time.Now()
				}
				res.BytesWritten += int64(usable)
				res.Chunks++
				res.LastChunkAt = time.Now()
			}
			remainder = data[usable:]
		}

		if c.err != nil {
			if !errors.Is(c.err, io.EOF) {
				readErr = c.err
			}
			break recv
		}
	}

	// Pad and flush the retained remainder so total bytes written is always a
	// multiple of the frame size.
	if res.ExitReason == ExitExhausted && len(remainder) > 0 && writeErr == nil {
		if pad := frameSize - len(remainder)%frameSize; pad < frameSize {
			remainder = append(remainder, make([]byte, pad)...)
		}
		if werr := sink.Write(remainder); werr != nil {
			res.ExitReason = ExitWriteError
			writeErr = werr
		} else {
			res.BytesWritten += int64(len(remainder))
		}
	}

	// Staged audio must reach the device before the drain wait is computed,
	// or the tail plays after the "device empty" estimate.
	if f, ok := sink.(interface{ Flush() error }); ok {
		if ferr := f.Flush(); ferr != nil && writeErr == nil {
			res.ExitReason = ExitWriteError
			writeErr = ferr
		}
	}

	res.DrainWait = drain(sink, opts)

	closeSink()

	switch {
	case writeErr != nil:
		return res, fmt.Errorf("sink write: %w", writeErr)
	case readErr != nil:
		return res, fmt.Errorf("stream read: %w", readErr)
	case res.ExitReason == ExitStall:
		return res, &StallError{Chunks: res.Chunks, Bytes: res.BytesWritten}
	default:
		return res, nil
	}
}

// drain sleeps until the device is certainly empty: the device's own reported
// output latency (clamped, per unreliable drivers) plus a fixed scheduling
// jitter allowance. Write blocks until the device accepts data, so this is
// the only audio that can still be unplayed after the loop ends.
func drain(sink Sink, opts Options) time.Duration {
	latency := sink.Latency()
	if latency < opts.LatencyFloor {
		latency = opts.LatencyFloor
	}
	if latency > opts.LatencyCeiling {
		latency = opts.LatencyCeiling
	}
	wait := latency + opts.JitterAllowance

	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		if opts.Paused != nil && opts.Paused() {
			break
		}
		time.Sleep(opts.Poll)
	}
	return wait
}
