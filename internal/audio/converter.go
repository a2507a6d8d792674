package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// EncodeFloat32LE serializes samples as little-endian IEEE-754 floats,
// the wire format of one binary audio message.
func EncodeFloat32LE(samples []float32) []byte {
	out := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(s))
	}
	return out
}

// DecodeFloat32LE is the inverse of EncodeFloat32LE.
func DecodeFloat32LE(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("float32 PCM data length must be a multiple of 4, got %d", len(data))
	}

	samples := make([]float32, len(data)/4)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return samples, nil
}

// Float32ToPCM16 converts float samples to 16-bit signed integers,
// clipping anything outside [-1, 1].
func Float32ToPCM16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		out[i] = floatToInt16(s)
	}
	return out
}

// PCM16ToFloat32 converts 16-bit signed integers to floats in [-1, 1).
func PCM16ToFloat32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768.0
	}
	return out
}

// Float32ToLinear16 converts float samples to little-endian PCM16 bytes.
func Float32ToLinear16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(floatToInt16(s)))
	}
	return out
}

func floatToInt16(s float32) int16 {
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	if s >= 0 {
		return int16(s * 32767)
	}
	return int16(s * 32768)
}

// Resample performs simple linear interpolation resampling.
// Good enough for speech detection; not intended for playback quality.
func Resample(samples []float32, inputRate, outputRate int) []float32 {
	if inputRate == outputRate || inputRate <= 0 || outputRate <= 0 || len(samples) == 0 {
		return samples
	}

	ratio := float64(outputRate) / float64(inputRate)
	outputLength := int(float64(len(samples)) * ratio)
	output := make([]float32, outputLength)

	for i := 0; i < outputLength; i++ {
		srcPos := float64(i) / ratio

		idx0 := int(srcPos)
		if idx0 >= len(samples) {
			idx0 = len(samples) - 1
		}
		idx1 := idx0 + 1
		if idx1 >= len(samples) {
			idx1 = len(samples) - 1
		}

		fraction := srcPos - float64(idx0)
		output[i] = float32(float64(samples[idx0])*(1.0-fraction) + float64(samples[idx1])*fraction)
	}

	return output
}

// Downmix averages interleaved channels into a mono signal.
func Downmix(interleaved []float32, channels int) []float32 {
	if channels <= 1 {
		return interleaved
	}

	frames := len(interleaved) / channels
	mono := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += interleaved[i*channels+c]
		}
		mono[i] = sum / float32(channels)
	}
	return mono
}
