package audio

import (
	"encoding/binary"
	"fmt"
)

// HeaderSize is the size of a canonical 44-byte WAV header.
const HeaderSize = 44

// Format describes the PCM layout negotiated in-band by a WAV stream.
type Format struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
	// BlockAlign is the frame size in bytes (channels * bytes per sample).
	// Device writes must be multiples of this.
	BlockAlign int
}

// BytesPerSecond returns the raw PCM data rate for the format.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.BlockAlign
}

// ParseHeader decodes a canonical 44-byte RIFF/WAVE header. Streaming TTS
// endpoints emit this exact layout at the head of the live stream.
func ParseHeader(header []byte) (Format, error) {
	if len(header) < HeaderSize {
		return Format{}, fmt.Errorf("wav header too short: %d bytes", len(header))
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return Format{}, fmt.Errorf("not a RIFF/WAVE header")
	}
	if string(header[12:16]) != "fmt " {
		return Format{}, fmt.Errorf("unexpected chunk %q, want fmt", header[12:16])
	}

	f := Format{
		Channels:      int(binary.LittleEndian.Uint16(header[22:24])),
		SampleRate:    int(binary.LittleEndian.Uint32(header[24:28])),
		BlockAlign:    int(binary.LittleEndian.Uint16(header[32:34])),
		BitsPerSample: int(binary.LittleEndian.Uint16(header[34:36])),
	}
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return Format{}, fmt.Errorf("invalid wav format: rate=%d channels=%d", f.SampleRate, f.Channels)
	}
	if f.BlockAlign <= 0 {
		f.BlockAlign = f.Channels * f.BitsPerSample / 8
	}
	if f.BlockAlign <= 0 {
		return Format{}, fmt.Errorf("invalid wav block align")
	}
	return f, nil
}
