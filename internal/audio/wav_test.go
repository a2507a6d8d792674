package audio

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestEncodeWAV_HeaderSizes(t *testing.T) {
	tests := []struct {
		name       string
		n          int
		sampleRate int
	}{
		{"empty", 0, 16000},
		{"one sample", 1, 8000},
		{"one second", 16000, 16000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodeWAV(make([]int16, tt.n), tt.sampleRate)
			if err != nil {
				t.Fatalf("EncodeWAV failed: %v", err)
			}
			if len(data) != WAVHeaderSize+tt.n*2 {
				t.Errorf("Expected %d bytes, got %d", WAVHeaderSize+tt.n*2, len(data))
			}
			if got := binary.LittleEndian.Uint32(data[4:8]); got != uint32(36+tt.n*2) {
				t.Errorf("Expected RIFF chunk size %d, got %d", 36+tt.n*2, got)
			}
			if got := binary.LittleEndian.Uint32(data[40:44]); got != uint32(tt.n*2) {
				t.Errorf("Expected data chunk size %d, got %d", tt.n*2, got)
			}
			if got := binary.LittleEndian.Uint32(data[24:28]); got != uint32(tt.sampleRate) {
				t.Errorf("Expected sample rate %d, got %d", tt.sampleRate, got)
			}
			if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" || string(data[36:40]) != "data" {
				t.Error("Missing RIFF/WAVE/data markers")
			}
		})
	}
}

func TestEncodeWAV_InvalidRate(t *testing.T) {
	if _, err := EncodeWAV([]int16{1}, 0); err == nil {
		t.Error("Expected error for zero sample rate")
	}
}

func TestWriteWAVFile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "segment.wav")

	samples := make([]float32, 1600)
	for i := range samples {
		samples[i] = float32(0.5 * math.Sin(2*math.Pi*440*float64(i)/16000))
	}

	if err := WriteWAVFile(path, samples, 16000); err != nil {
		t.Fatalf("WriteWAVFile failed: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if len(raw) != WAVHeaderSize+len(samples)*2 {
		t.Fatalf("Expected %d bytes on disk, got %d", WAVHeaderSize+len(samples)*2, len(raw))
	}
	if got := binary.LittleEndian.Uint32(raw[4:8]); got != uint32(36+len(samples)*2) {
		t.Errorf("Expected RIFF chunk size %d, got %d", 36+len(samples)*2, got)
	}
	if got := binary.LittleEndian.Uint32(raw[40:44]); got != uint32(len(samples)*2) {
		t.Errorf("Expected data chunk size %d, got %d", len(samples)*2, got)
	}

	decoded, rate, err := ReadWAVFile(path)
	if err != nil {
		t.Fatalf("ReadWAVFile failed: %v", err)
	}
	if rate != 16000 {
		t.Errorf("Expected rate 16000, got %d", rate)
	}
	if len(decoded) != len(samples) {
		t.Fatalf("Expected %d samples, got %d", len(samples), len(decoded))
	}
	for i := range samples {
		if math.Abs(float64(decoded[i]-samples[i])) > 1.0/16384 {
			t.Fatalf("Sample %d: expected %v, got %v", i, samples[i], decoded[i])
		}
	}
}

func TestReadWAVFile_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.wav")
	if err := os.WriteFile(path, []byte("not a wav file at all"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := ReadWAVFile(path); err == nil {
		t.Error("Expected error for invalid WAV file")
	}
	if _, _, err := ReadWAVFile(filepath.Join(t.TempDir(), "missing.wav")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestReadWAVFile_EightBitIsCentred(t *testing.T) {
	pcm := []byte{128, 255, 0, 64}

	var data []byte
	data = append(data, "RIFF"...)
	data = binary.LittleEndian.AppendUint32(data, uint32(36+len(pcm)))
	data = append(data, "WAVEfmt "...)
	data = binary.LittleEndian.AppendUint32(data, 16)
	data = binary.LittleEndian.AppendUint16(data, 1) // PCM
	data = binary.LittleEndian.AppendUint16(data, 1) // mono
	data = binary.LittleEndian.AppendUint32(data, 8000)
	data = binary.LittleEndian.AppendUint32(data, 8000)
	data = binary.LittleEndian.AppendUint16(data, 1)
	data = binary.LittleEndian.AppendUint16(data, 8)
	data = append(data, "data"...)
	data = binary.LittleEndian.AppendUint32(data, uint32(len(pcm)))
	data = append(data, pcm...)

	path := filepath.Join(t.TempDir(), "u8.wav")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	samples, rate, err := ReadWAVFile(path)
	if err != nil {
		t.Fatalf("ReadWAVFile failed: %v", err)
	}
	if rate != 8000 {
		t.Errorf("Expected rate 8000, got %d", rate)
	}
	want := []float32{0, 127.0 / 128, -1, -0.5}
	if len(samples) != len(want) {
		t.Fatalf("Expected %d samples, got %d", len(want), len(samples))
	}
	for i := range want {
		if math.Abs(float64(samples[i]-want[i])) > 1e-6 {
			t.Errorf("Sample %d: expected %f, got %f", i, want[i], samples[i])
		}
	}
}
