package capture

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/speech-streamer/internal/audio"
)

func collect(t *testing.T, frames <-chan audio.Frame) []audio.Frame {
	t.Helper()
	var out []audio.Frame
	timeout := time.After(5 * time.Second)
	for {
		select {
		case f, ok := <-frames:
			if !ok {
				return out
			}
			out = append(out, f)
		case <-timeout:
			t.Fatal("Timed out waiting for frames")
			return out
		}
	}
}

func writeTestWAV(t *testing.T, n, rate int) string {
	t.Helper()
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = 0.25
	}
	path := filepath.Join(t.TempDir(), "input.wav")
	if err := audio.WriteWAVFile(path, samples, rate); err != nil {
		t.Fatalf("WriteWAVFile failed: %v", err)
	}
	return path
}

func TestWAVSource_ResamplesAndFrames(t *testing.T) {
	path := writeTestWAV(t, 1000, 32000)
	src := NewWAVSource(path, 16000, 160, false, zerolog.Nop())

	frames, err := src.Start(context.Background())
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	got := collect(t, frames)

	wantSizes := []int{160, 160, 160, 20}
	if len(got) != len(wantSizes) {
		t.Fatalf("Expected %d frames, got %d", len(wantSizes), len(got))
	}
	for i, f := range got {
		if len(f.Samples) != wantSizes[i] {
			t.Errorf("Frame %d: expected %d samples, got %d", i, wantSizes[i], len(f.Samples))
		}
		if f.SampleRate != 16000 {
			t.Errorf("Frame %d: expected rate 16000, got %d", i, f.SampleRate)
		}
	}

	step := got[1].Timestamp.Sub(got[0].Timestamp)
	if step != 10*time.Millisecond {
		t.Errorf("Expected frames 10ms apart, got %v", step)
	}

	if err := src.Stop(); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
}

func TestWAVSource_StartErrors(t *testing.T) {
	missing := NewWAVSource(filepath.Join(t.TempDir(), "missing.wav"), 16000, 160, false, zerolog.Nop())
	if _, err := missing.Start(context.Background()); err == nil {
		t.Error("Expected error for missing file")
	}

	path := writeTestWAV(t, 320, 16000)
	src := NewWAVSource(path, 16000, 160, false, zerolog.Nop())
	frames, err := src.Start(context.Background())
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if _, err := src.Start(context.Background()); !errors.Is(err, ErrSourceStarted) {
		t.Errorf("Expected ErrSourceStarted, got %v", err)
	}
	collect(t, frames)
}

func TestWAVSource_StopWhileRealtime(t *testing.T) {
	// 10 seconds of audio paced in real time
	path := writeTestWAV(t, 160000, 16000)
	src := NewWAVSource(path, 16000, 1600, true, zerolog.Nop())

	frames, err := src.Start(context.Background())
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	select {
	case <-frames:
	case <-time.After(2 * time.Second):
		t.Fatal("Expected a frame")
	}

	if err := src.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := src.Stop(); err != nil {
		t.Fatalf("Second Stop failed: %v", err)
	}

	remaining := collect(t, frames)
	if len(remaining) > frameBufferSize {
		t.Errorf("Expected delivery to stop, got %d more frames", len(remaining))
	}
}

func TestReaderSource_Frames(t *testing.T) {
	samples := []float32{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0}
	data := audio.EncodeFloat32LE(samples)
	// Trailing partial sample is discarded
	data = append(data, 0x01, 0x02)

	src := NewReaderSource(bytes.NewReader(data), 16000, 4, zerolog.Nop())
	frames, err := src.Start(context.Background())
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	got := collect(t, frames)

	if len(got) != 3 {
		t.Fatalf("Expected 3 frames, got %d", len(got))
	}
	if len(got[2].Samples) != 2 {
		t.Errorf("Expected last frame of 2 samples, got %d", len(got[2].Samples))
	}
	if got[0].Samples[0] != 0.1 || got[2].Samples[1] != 1.0 {
		t.Errorf("Unexpected sample values: %v ... %v", got[0].Samples, got[2].Samples)
	}
	if src.SampleRate() != 16000 || src.FrameSize() != 4 {
		t.Errorf("Expected 16000/4, got %d/%d", src.SampleRate(), src.FrameSize())
	}
}

func TestReaderSource_CancelledContext(t *testing.T) {
	data := audio.EncodeFloat32LE(make([]float32, 4096))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := NewReaderSource(bytes.NewReader(data), 16000, 4, zerolog.Nop())
	frames, err := src.Start(ctx)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	// The channel must close even though the input was not exhausted
	got := collect(t, frames)
	if len(got) >= 1024 {
		t.Errorf("Expected cancellation to cut input short, got %d frames", len(got))
	}
}
