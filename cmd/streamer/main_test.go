package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/speech-streamer/internal/config"
	"github.com/lexiqai/speech-streamer/internal/session"
	"github.com/lexiqai/speech-streamer/internal/transport"
)

type idleUplink struct{}

func (idleUplink) Connect(ctx context.Context) error         { return nil }
func (idleUplink) SendAudio([]float32) bool                  { return false }
func (idleUplink) SendControl(transport.ControlMessage) bool { return false }
func (idleUplink) Disconnect() error                         { return nil }
func (idleUplink) State() transport.State                    { return transport.Disconnected }

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv failed: %v", err)
	}
	return cfg
}

func TestPrintModels(t *testing.T) {
	var buf bytes.Buffer
	printModels(&buf, transport.ModelList{
		Supported: []string{"tiny", "base"},
		Installed: []string{"base"},
		Current:   "base",
		Default:   "tiny",
	})

	want := "current: base\ndefault: tiny\n    tiny\n  * base\n"
	if buf.String() != want {
		t.Errorf("Expected %q, got %q", want, buf.String())
	}
}

func TestSessionConfig_FromConfig(t *testing.T) {
	cfg := testConfig(t)
	sc := sessionConfig(cfg)

	if sc.Detector.WindowSize != cfg.FFTSize {
		t.Errorf("Expected window %d, got %d", cfg.FFTSize, sc.Detector.WindowSize)
	}
	if sc.Detector.Machine.MinSilence != cfg.MinSilence {
		t.Errorf("Expected min silence %v, got %v", cfg.MinSilence, sc.Detector.Machine.MinSilence)
	}
	if sc.Segmenter.PreRoll != 200*time.Millisecond {
		t.Errorf("Expected pre-roll 200ms, got %v", sc.Segmenter.PreRoll)
	}
}

func TestStreamConfig_ClampsParams(t *testing.T) {
	cfg := testConfig(t)
	cfg.ServerWindow = 60
	cfg.ServerInterval = 0.01

	sc := streamConfig(cfg)
	if sc.Params.Window != 10 || sc.Params.Interval != 0.2 {
		t.Errorf("Expected clamped window 10 and interval 0.2, got %+v", sc.Params)
	}
	if sc.BackoffFloor != time.Second || sc.BackoffCap != 5*time.Second {
		t.Errorf("Expected backoff 1s..5s, got %v..%v", sc.BackoffFloor, sc.BackoffCap)
	}
}

func TestDiagnosticsServer(t *testing.T) {
	cfg := testConfig(t)
	sess, err := session.New(sessionConfig(cfg), nil, func(transport.Observer) session.Uplink {
		return idleUplink{}
	}, session.WithLogger(zerolog.Nop()))
	if err != nil {
		t.Fatalf("session.New failed: %v", err)
	}

	ts := httptest.NewServer(newDiagnosticsServer(cfg, sess).Handler)
	defer ts.Close()

	tests := []struct {
		path     string
		wantCode int
		contains string
	}{
		{"/health", http.StatusOK, "healthy"},
		{"/ready", http.StatusServiceUnavailable, "uplink is disconnected"},
		{"/transcripts", http.StatusOK, `"finals":[]`},
		{"/models", http.StatusNotFound, ""},
		{"/segments/last.wav", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := http.Get(ts.URL + tt.path)
			if err != nil {
				t.Fatalf("GET failed: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.wantCode {
				t.Errorf("Expected %d, got %d", tt.wantCode, resp.StatusCode)
			}
			var body bytes.Buffer
			body.ReadFrom(resp.Body)
			if tt.contains != "" && !strings.Contains(body.String(), tt.contains) {
				t.Errorf("Expected body to contain %q, got %s", tt.contains, body.String())
			}
		})
	}
}
