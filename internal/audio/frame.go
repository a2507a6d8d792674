package audio

import (
	"time"
)

// Frame is one block of mono PCM delivered by the capture layer.
// Samples are 32-bit floats in [-1, 1].
type Frame struct {
	Samples    []float32
	SampleRate int       // 0 when the rate is unknown
	Timestamp  time.Time // arrival time
}

// Duration returns the playback duration of the frame, or 0 if the sample
// rate is unknown.
func (f Frame) Duration() time.Duration {
	return SamplesDuration(len(f.Samples), f.SampleRate)
}

// Clone returns a copy of the frame that does not share the sample slice.
func (f Frame) Clone() Frame {
	samples := make([]float32, len(f.Samples))
	copy(samples, f.Samples)
	return Frame{
		Samples:    samples,
		SampleRate: f.SampleRate,
		Timestamp:  f.Timestamp,
	}
}

// SamplesDuration converts a sample count at the given rate to a duration.
func SamplesDuration(samples, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}
