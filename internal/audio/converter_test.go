package audio

import (
	"encoding/binary"
	"math"
	"testing"
)

func TestEncodeFloat32LE(t *testing.T) {
	samples := []float32{0, 0.5, -1, 1}
	data := EncodeFloat32LE(samples)

	if len(data) != len(samples)*4 {
		t.Fatalf("Expected %d bytes, got %d", len(samples)*4, len(data))
	}

	// Second sample must be the little-endian bits of 0.5
	bits := binary.LittleEndian.Uint32(data[4:8])
	if math.Float32frombits(bits) != 0.5 {
		t.Errorf("Expected 0.5 at offset 4, got %v", math.Float32frombits(bits))
	}

	decoded, err := DecodeFloat32LE(data)
	if err != nil {
		t.Fatalf("DecodeFloat32LE failed: %v", err)
	}
	for i := range samples {
		if decoded[i] != samples[i] {
			t.Errorf("Sample %d: expected %v, got %v", i, samples[i], decoded[i])
		}
	}
}

func TestDecodeFloat32LE_BadLength(t *testing.T) {
	if _, err := DecodeFloat32LE([]byte{1, 2, 3}); err == nil {
		t.Error("Expected error for truncated float data")
	}
}

func TestFloat32ToPCM16(t *testing.T) {
	got := Float32ToPCM16([]float32{0, 1, -1, 2, -2, 0.5})
	expected := []int16{0, 32767, -32768, 32767, -32768, 16383}

	for i := range expected {
		if got[i] != expected[i] {
			t.Errorf("Sample %d: expected %d, got %d", i, expected[i], got[i])
		}
	}
}

func TestPCM16ToFloat32(t *testing.T) {
	got := PCM16ToFloat32([]int16{0, -32768, 16384})
	expected := []float32{0, -1, 0.5}

	for i := range expected {
		if got[i] != expected[i] {
			t.Errorf("Sample %d: expected %v, got %v", i, expected[i], got[i])
		}
	}
}

func TestFloat32ToLinear16(t *testing.T) {
	data := Float32ToLinear16([]float32{1, -1})
	if len(data) != 4 {
		t.Fatalf("Expected 4 bytes, got %d", len(data))
	}
	if int16(binary.LittleEndian.Uint16(data[0:])) != 32767 {
		t.Errorf("Expected first sample 32767")
	}
	if int16(binary.LittleEndian.Uint16(data[2:])) != -32768 {
		t.Errorf("Expected second sample -32768")
	}
}

func TestResample(t *testing.T) {
	// 0.1 seconds at 32kHz
	samples := make([]float32, 3200)
	for i := range samples {
		samples[i] = float32(math.Sin(float64(i) / 10))
	}

	out := Resample(samples, 32000, 16000)
	if len(out) != 1600 {
		t.Errorf("Expected 1600 samples, got %d", len(out))
	}

	same := Resample(samples, 16000, 16000)
	if len(same) != len(samples) {
		t.Errorf("Expected no-op resample to keep %d samples, got %d", len(samples), len(same))
	}
}

func TestDownmix(t *testing.T) {
	mono := Downmix([]float32{1, 0, 0.5, 0.5, -1, 1}, 2)
	expected := []float32{0.5, 0.5, 0}

	if len(mono) != len(expected) {
		t.Fatalf("Expected %d samples, got %d", len(expected), len(mono))
	}
	for i := range expected {
		if mono[i] != expected[i] {
			t.Errorf("Sample %d: expected %v, got %v", i, expected[i], mono[i])
		}
	}
}
