package playback

import (
	"fmt"
	"time"

	"github.com/voxctl/voicemode/internal/audio"
)

// Sink is one open output-device stream for the duration of a playback
// session. Write blocks until the device has accepted the buffer; that
// blocking contract is what makes the drain wait in Play a calculated bound
// rather than a guess.
type Sink interface {
	Write(p []byte) error
	// Latency reports the device's residual buffered-but-unplayed duration.
	Latency() time.Duration
	Close() error
}

// SinkOpener opens a Sink for the given stream format. It fails with a
// *DeviceError when no output device is available or the format is
// unsupported.
type SinkOpener func(f audio.Format) (Sink, error)

// DeviceError is an audio hardware or driver fault. It is fatal to the
// current session and never retried.
type DeviceError struct {
	Op  string
	Err error
}

func (e *DeviceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("audio device error during %s", e.Op)
	}
	return fmt.Sprintf("audio device error during %s: %v", e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// StallError reports that the upstream generator hung mid-stream. It carries
// session counters for diagnostics.
type StallError struct {
	Chunks int
	Bytes  int64
}

func (e *StallError) Error() string {
	return fmt.Sprintf("streaming stalled after %d chunks, %d bytes", e.Chunks, e.Bytes)
}
