package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("UPLINK_BACKEND", "")
	os.Unsetenv("UPLINK_BACKEND")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Expected default Port '8080', got '%s'", cfg.Port)
	}
	if cfg.UplinkBackend != BackendStream {
		t.Errorf("Expected default backend '%s', got '%s'", BackendStream, cfg.UplinkBackend)
	}
	if cfg.ServerURL != "ws://127.0.0.1:8000/stream" {
		t.Errorf("Expected default ServerURL, got '%s'", cfg.ServerURL)
	}
	if cfg.ServerWindow != 4 || cfg.ServerInterval != 0.5 || cfg.ServerMinSeconds != 0.5 {
		t.Errorf("Expected server params 4/0.5/0.5, got %g/%g/%g", cfg.ServerWindow, cfg.ServerInterval, cfg.ServerMinSeconds)
	}
	if cfg.SampleRate != 16000 {
		t.Errorf("Expected default SampleRate 16000, got %d", cfg.SampleRate)
	}
	if cfg.FFTSize != 1024 {
		t.Errorf("Expected default FFTSize 1024, got %d", cfg.FFTSize)
	}
	if cfg.MinSilence != 500*time.Millisecond {
		t.Errorf("Expected balanced MinSilence 500ms, got %v", cfg.MinSilence)
	}
	if cfg.MinSpeak() != 150*time.Millisecond {
		t.Errorf("Expected MinSpeak 150ms, got %v", cfg.MinSpeak())
	}
	if cfg.PreRoll() != 200*time.Millisecond {
		t.Errorf("Expected PreRoll 200ms, got %v", cfg.PreRoll())
	}
	if cfg.MaxSegment() != 10*time.Second {
		t.Errorf("Expected MaxSegment 10s, got %v", cfg.MaxSegment())
	}
	if cfg.BackoffFloor() != time.Second || cfg.BackoffCap() != 5*time.Second {
		t.Errorf("Expected backoff 1s..5s, got %v..%v", cfg.BackoffFloor(), cfg.BackoffCap())
	}
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	t.Setenv("SERVER_URL", "ws://example.test/stream")
	t.Setenv("VAD_PROFILE", "fast")
	t.Setenv("PRE_ROLL_MS", "300")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() failed: %v", err)
	}

	if cfg.ServerURL != "ws://example.test/stream" {
		t.Errorf("Expected overridden ServerURL, got '%s'", cfg.ServerURL)
	}
	if cfg.MinSilence != 80*time.Millisecond {
		t.Errorf("Expected fast MinSilence 80ms, got %v", cfg.MinSilence)
	}
	if cfg.PreRoll() != 300*time.Millisecond {
		t.Errorf("Expected PreRoll 300ms, got %v", cfg.PreRoll())
	}
}

func TestLoad_DeepgramRequiresKey(t *testing.T) {
	t.Setenv("UPLINK_BACKEND", BackendDeepgram)
	t.Setenv("DEEPGRAM_API_KEY", "")

	if _, err := LoadFromEnv(); err == nil {
		t.Error("Expected error when DEEPGRAM_API_KEY is missing")
	}

	t.Setenv("DEEPGRAM_API_KEY", "test-deepgram-key")
	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() failed: %v", err)
	}
	if cfg.DeepgramModel != "nova-2" {
		t.Errorf("Expected default DeepgramModel 'nova-2', got '%s'", cfg.DeepgramModel)
	}
}

func validConfig(t *testing.T) Config {
	t.Helper()
	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() failed: %v", err)
	}
	return *cfg
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"unknown backend", func(c *Config) { c.UplinkBackend = "carrier-pigeon" }},
		{"fft not power of two", func(c *Config) { c.FFTSize = 1000 }},
		{"zero sample rate", func(c *Config) { c.SampleRate = 0 }},
		{"smoothing of one", func(c *Config) { c.VADSmoothing = 1 }},
		{"negative smoothing", func(c *Config) { c.VADSmoothing = -0.1 }},
		{"zero noise adaptation", func(c *Config) { c.VADNoiseAdaptation = 0 }},
		{"zero max segment", func(c *Config) { c.MaxSegmentMs = 0 }},
		{"cap below floor", func(c *Config) { c.ReconnectBackoffCapMs = 500 }},
		{"unknown profile", func(c *Config) { c.VADProfile = "lecture" }},
		{"missing profile file", func(c *Config) { c.VADProfileFile = "/nonexistent/profiles.yaml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestValidate_ProfileFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	content := "profiles:\n  meeting:\n    min_silence_ms: 700\n  fast:\n    min_silence_ms: 120\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write profile file: %v", err)
	}

	cfg := validConfig(t)
	cfg.VADProfileFile = path
	cfg.VADProfile = "meeting"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() failed: %v", err)
	}
	if cfg.MinSilence != 700*time.Millisecond {
		t.Errorf("Expected 700ms, got %v", cfg.MinSilence)
	}

	cfg.VADProfile = "fast"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() failed: %v", err)
	}
	if cfg.MinSilence != 120*time.Millisecond {
		t.Errorf("Expected overridden fast profile 120ms, got %v", cfg.MinSilence)
	}

	cfg.VADProfile = "dictation"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() failed: %v", err)
	}
	if cfg.MinSilence != time.Second {
		t.Errorf("Expected built-in dictation profile 1s, got %v", cfg.MinSilence)
	}
}

func TestLoadProfiles_Invalid(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.yaml")
	os.WriteFile(bad, []byte("profiles: [not, a, map]\n"), 0o644)
	if _, err := LoadProfiles(bad); err == nil {
		t.Error("Expected parse error")
	}

	zero := filepath.Join(dir, "zero.yaml")
	os.WriteFile(zero, []byte("profiles:\n  quick:\n    min_silence_ms: 0\n"), 0o644)
	if _, err := LoadProfiles(zero); err == nil {
		t.Error("Expected error for non-positive min_silence_ms")
	}
}

func TestGetEnv(t *testing.T) {
	t.Setenv("TEST_KEY", "test-value")

	value := GetEnv("TEST_KEY", "default")
	if value != "test-value" {
		t.Errorf("Expected 'test-value', got '%s'", value)
	}

	value = GetEnv("NON_EXISTENT_KEY", "default")
	if value != "default" {
		t.Errorf("Expected 'default', got '%s'", value)
	}
}
