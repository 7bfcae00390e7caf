// Package capture records microphone audio with silence-based endpointing.
package capture

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
)

// Source yields successive PCM16LE mono frames from a capture device.
type Source interface {
	ReadFrame() ([]byte, error)
	Close() error
}

// SourceOpener opens a Source at the given sample rate.
type SourceOpener func(sampleRate int) (Source, error)

// frameMillis is the capture frame length. 10ms frames keep the VAD
// responsive and divide the usual silence timeouts evenly.
const frameMillis = 10

var paInit sync.Once

// OpenMicrophone opens the default input device.
func OpenMicrophone(sampleRate int) (Source, error) {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	var initErr error
	paInit.Do(func() {
		initErr = portaudio.Initialize()
	})
	if initErr != nil {
		return nil, fmt.Errorf("audio init: %w", initErr)
	}

	frameSamples := sampleRate * frameMillis / 1000
	buf := make([]int16, frameSamples)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(sampleRate), frameSamples, buf)
	if err != nil {
		return nil, fmt.Errorf("open input device: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("start input device: %w", err)
	}
	return &micSource{stream: stream, buf: buf}, nil
}

type micSource struct {
	stream *portaudio.Stream
	buf    []int16
}

func (m *micSource) ReadFrame() ([]byte, error) {
	if err := m.stream.Read(); err != nil {
		return nil, err
	}
	frame := make([]byte, len(m.buf)*2)
	for i, s := range m.buf {
		binary.LittleEndian.PutUint16(frame[i*2:], uint16(s))
	}
	return frame, nil
}

func (m *micSource) Close() error {
	if err := m.stream.Stop(); err != nil {
		m.stream.Close()
		return err
	}
	return m.stream.Close()
}

// RecordOptions bounds one recording.
type RecordOptions struct {
	// MaxDuration is the hard cap on total capture time.
	MaxDuration time.Duration
	// SilenceTimeout ends the recording once speech has been heard and this
	// much trailing silence accumulates.
	SilenceTimeout time.Duration
	Detector       *Detector
}

// Record captures PCM16LE audio from src until trailing silence, the
// duration cap, or context cancellation. It returns whatever was captured;
// a recording with no detected speech still returns its audio so the caller
// can decide how to treat it.
func Record(ctx context.Context, src Source, sampleRate int, opts RecordOptions) ([]byte, error) {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = 10 * time.Second
	}
	if opts.SilenceTimeout <= 0 {
		opts.SilenceTimeout = 2 * time.Second
	}
	det := opts.Detector
	if det == nil {
		det = NewDetector()
	}
	det.Reset()

	frameDuration := frameMillis * time.Millisecond
	silenceBudget := int(opts.SilenceTimeout / frameDuration)
	if silenceBudget < 1 {
		silenceBudget = 1
	}
	det.SilenceFrames = silenceBudget

	var pcm []byte
	deadline := time.Now().Add(opts.MaxDuration)
	speaking := false

	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return pcm, ctx.Err()
		}
		frame, err := src.ReadFrame()
		if err != nil {
			return pcm, fmt.Errorf("read capture frame: %w", err)
		}
		pcm = append(pcm, frame...)

		nowSpeaking := det.Feed(frame)
		if nowSpeaking {
			speaking = true
		}
		// Endpoint: speech happened and then went quiet long enough.
		if speaking && !nowSpeaking {
			break
		}
		// No speech at all: give up after the silence timeout instead of
		// holding the mic open for the full cap.
		if !det.SpeechSeen() && det.SilenceRun() >= silenceBudget {
			break
		}
	}
	return pcm, nil
}
