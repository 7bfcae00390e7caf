package playback

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/voxctl/voicemode/internal/audio"
)

var paInit sync.Once

// OpenDeviceSink opens the default output device for the given stream
// format. Only 16-bit PCM is supported; the upstream engines emit nothing
// else.
func OpenDeviceSink(f audio.Format) (Sink, error) {
	if f.BitsPerSample != 16 {
		return nil, &DeviceError{Op: "open", Err: fmt.Errorf("unsupported sample width %d bits", f.BitsPerSample)}
	}

	var initErr error
	paInit.Do(func() {
		initErr = portaudio.Initialize()
	})
	if initErr != nil {
		return nil, &DeviceError{Op: "init", Err: initErr}
	}

	const framesPerBuffer = 1024
	buf := make([]int16, framesPerBuffer*f.Channels)
	stream, err := portaudio.OpenDefaultStream(0, f.Channels, float64(f.SampleRate), framesPerBuffer, buf)
	if err != nil {
		return nil, &DeviceError{Op: "open", Err: err}
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, &DeviceError{Op: "start", Err: err}
	}
	return &deviceSink{stream: stream, buf: buf}, nil
}

// deviceSink adapts a portaudio stream, which consumes fixed-size sample
// buffers, to the byte-oriented Write contract. Bytes that do not fill a
// whole buffer are carried until the next Write or Flush.
type deviceSink struct {
	stream *portaudio.Stream
	buf    []int16
	// carry is the number of samples already staged in buf.
	carry int
}

func (s *deviceSink) Write(p []byte) error {
	for len(p) >= 2 {
		s.buf[s.carry] = int16(binary.LittleEndian.Uint16(p[:2]))
		s.carry++
		p = p[2:]
		if s.carry == len(s.buf) {
			if err := s.stream.Write(); err != nil {
				return &DeviceError{Op: "write", Err: err}
			}
			s.carry = 0
		}
	}
	return nil
}

func (s *deviceSink) Latency() time.Duration {
	info := s.stream.Info()
	if info == nil {
		return 0
	}
	return info.OutputLatency
}

// Flush zero-pads and pushes the staged partial buffer. The playback session
// calls this before its drain wait so the trailing audio is covered by the
// latency math.
func (s *deviceSink) Flush() error {
	if s.carry == 0 {
		return nil
	}
	for i := s.carry; i < len(s.buf); i++ {
		s.buf[i] = 0
	}
	s.carry = 0
	if err := s.stream.Write(); err != nil {
		return &DeviceError{Op: "flush", Err: err}
	}
	return nil
}

func (s *deviceSink) Close() error {
	// Catches audio staged after the session's explicit flush, e.g. on a
	// pause exit mid-write.
	if err := s.Flush(); err != nil {
		s.stream.Stop()
		s.stream.Close()
		return err
	}
	if err := s.stream.Stop(); err != nil {
		s.stream.Close()
		return &DeviceError{Op: "stop", Err: err}
	}
	if err := s.stream.Close(); err != nil {
		return &DeviceError{Op: "close", Err: err}
	}
	return nil
}
