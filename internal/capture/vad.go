package capture

import (
	"encoding/binary"
	"math"
)

const (
	defaultSpeechThreshold  = 0.015
	defaultSilenceThreshold = 0.008
	defaultSpeechFrames     = 3
	defaultSilenceFrames    = 30
)

// Detector is a frame-count RMS voice activity detector with hysteresis:
// speech starts only after several consecutive loud frames and ends only
// after a sustained run of quiet ones, so single pops or dropouts do not
// flip the state.
type Detector struct {
	// SpeechThreshold is the normalized RMS above which a frame counts as
	// speech; SilenceThreshold the level below which it counts as silence.
	// The gap between them is a dead zone that holds the current state.
	SpeechThreshold  float64
	SilenceThreshold float64
	SpeechFrames     int
	SilenceFrames    int

	speaking     bool
	speechRun    int
	silenceRun   int
	everSpeaking bool
}

func NewDetector() *Detector {
	return &Detector{
		SpeechThreshold:  defaultSpeechThreshold,
		SilenceThreshold: defaultSilenceThreshold,
		SpeechFrames:     defaultSpeechFrames,
		SilenceFrames:    defaultSilenceFrames,
	}
}

// RMS computes the normalized root mean square of a PCM16LE frame.
func RMS(frame []byte) float64 {
	n := len(frame) / 2
	if n == 0 {
		return 0
	}
	var sumSquares float64
	for i := 0; i < n; i++ {
		sample := int16(binary.LittleEndian.Uint16(frame[i*2:]))
		normalized := float64(sample) / 32768.0
		sumSquares += normalized * normalized
	}
	return math.Sqrt(sumSquares / float64(n))
}

// Feed advances the detector with one frame and reports the current state.
func (d *Detector) Feed(frame []byte) bool {
	rms := RMS(frame)

	switch {
	case rms >= d.SpeechThreshold:
		d.speechRun++
		d.silenceRun = 0
	case rms <= d.SilenceThreshold:
		d.silenceRun++
		d.speechRun = 0
	default:
		// Dead zone between thresholds: keep counting toward the current
		// tendency but never against it.
		d.speechRun = 0
		d.silenceRun = 0
	}

	if !d.speaking && d.speechRun >= d.SpeechFrames {
		d.speaking = true
		d.everSpeaking = true
		d.silenceRun = 0
	}
	if d.speaking && d.silenceRun >= d.SilenceFrames {
		d.speaking = false
		d.speechRun = 0
	}
	return d.speaking
}

// Speaking reports the current hysteresis state.
func (d *Detector) Speaking() bool { return d.speaking }

// SpeechSeen reports whether any speech has been detected since the last
// Reset. Listen loops use it to distinguish trailing silence from a capture
// that never heard anything.
func (d *Detector) SpeechSeen() bool { return d.everSpeaking }

// SilenceRun reports the count of consecutive quiet frames.
func (d *Detector) SilenceRun() int { return d.silenceRun }

func (d *Detector) Reset() {
	d.speaking = false
	d.speechRun = 0
	d.silenceRun = 0
	d.everSpeaking = false
}
