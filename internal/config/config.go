package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Uplink backends
const (
	BackendStream   = "stream"
	BackendDeepgram = "deepgram"
)

// Config holds all configuration for the speech streamer
type Config struct {
	// Diagnostics server configuration
	Port           string `envconfig:"PORT" default:"8080"`
	GRPCHealthAddr string `envconfig:"GRPC_HEALTH_ADDR" default:""` // Empty disables the gRPC health service

	// Uplink configuration
	UplinkBackend string `envconfig:"UPLINK_BACKEND" default:"stream"` // stream, deepgram

	// Transcription server configuration
	ServerURL               string  `envconfig:"SERVER_URL" default:"ws://127.0.0.1:8000/stream"`
	ServerModel             string  `envconfig:"SERVER_MODEL" default:""` // Sent with select_model when set
	ServerLanguage          string  `envconfig:"SERVER_LANGUAGE" default:""`
	ServerWindow            float64 `envconfig:"SERVER_WINDOW" default:"4"`     // seconds
	ServerInterval          float64 `envconfig:"SERVER_INTERVAL" default:"0.5"` // seconds
	ServerMinSeconds        float64 `envconfig:"SERVER_MIN_SECONDS" default:"0.5"`
	ServerPartialInterval   float64 `envconfig:"SERVER_PARTIAL_INTERVAL" default:"0"`
	DialTimeoutSeconds      int     `envconfig:"DIAL_TIMEOUT" default:"10"`
	WriteTimeoutSeconds     int     `envconfig:"WRITE_TIMEOUT" default:"5"`
	ReconnectBackoffFloorMs int     `envconfig:"RECONNECT_BACKOFF_FLOOR" default:"1000"`
	ReconnectBackoffCapMs   int     `envconfig:"RECONNECT_BACKOFF_CAP" default:"5000"`

	// Deepgram STT API configuration
	DeepgramAPIKey         string `envconfig:"DEEPGRAM_API_KEY" default:""` // Required when UPLINK_BACKEND=deepgram
	DeepgramModel          string `envconfig:"DEEPGRAM_MODEL" default:"nova-2"`
	DeepgramLanguage       string `envconfig:"DEEPGRAM_LANGUAGE" default:"en"`
	DeepgramUtteranceEndMs int    `envconfig:"DEEPGRAM_UTTERANCE_END_MS" default:"1000"`

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery

	// Audio configuration
	SampleRate int `envconfig:"SAMPLE_RATE" default:"16000"`
	FrameSize  int `envconfig:"FRAME_SIZE" default:"512"` // Samples per capture frame
	FFTSize    int `envconfig:"FFT_SIZE" default:"1024"`  // Must be a power of two

	// VAD configuration
	VADProfile         string  `envconfig:"VAD_PROFILE" default:"balanced"` // fast, balanced, dictation
	VADProfileFile     string  `envconfig:"VAD_PROFILE_FILE" default:""`
	VADRMSThreshold    float64 `envconfig:"VAD_RMS_THRESHOLD" default:"0.0015"`
	VADSpeechThreshold float64 `envconfig:"VAD_SPEECH_THRESHOLD" default:"15"`
	VADSmoothing       float64 `envconfig:"VAD_SMOOTHING" default:"0.6"`
	VADMinSpeakMs      int     `envconfig:"VAD_MIN_SPEAK_MS" default:"150"`
	VADDebounceMs      int     `envconfig:"VAD_DEBOUNCE_MS" default:"40"`
	VADNoiseFloor      float64 `envconfig:"VAD_NOISE_FLOOR" default:"0.01"`
	VADNoiseAdaptation float64 `envconfig:"VAD_NOISE_ADAPTATION" default:"0.05"`

	// Segmentation configuration
	PreRollMs      int    `envconfig:"PRE_ROLL_MS" default:"200"`
	MaxSegmentMs   int    `envconfig:"MAX_SEGMENT_MS" default:"10000"`
	SegmentDumpDir string `envconfig:"SEGMENT_DUMP_DIR" default:""`

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics

	// MinSilence is resolved from VADProfile by Validate
	MinSilence time.Duration `ignored:"true"`
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()
	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks value ranges and resolves the VAD profile
func (c *Config) Validate() error {
	switch c.UplinkBackend {
	case BackendStream:
		if c.ServerURL == "" {
			return fmt.Errorf("SERVER_URL is required")
		}
	case BackendDeepgram:
		if c.DeepgramAPIKey == "" {
			return fmt.Errorf("DEEPGRAM_API_KEY is required for the deepgram backend")
		}
	default:
		return fmt.Errorf("unknown UPLINK_BACKEND %q", c.UplinkBackend)
	}

	if c.SampleRate <= 0 {
		return fmt.Errorf("SAMPLE_RATE must be positive, got %d", c.SampleRate)
	}
	if c.FrameSize <= 0 {
		return fmt.Errorf("FRAME_SIZE must be positive, got %d", c.FrameSize)
	}
	if c.FFTSize <= 0 || c.FFTSize&(c.FFTSize-1) != 0 {
		return fmt.Errorf("FFT_SIZE must be a power of two, got %d", c.FFTSize)
	}
	if c.VADSmoothing < 0 || c.VADSmoothing >= 1 {
		return fmt.Errorf("VAD_SMOOTHING must be in [0,1), got %g", c.VADSmoothing)
	}
	if c.VADNoiseAdaptation <= 0 || c.VADNoiseAdaptation > 1 {
		return fmt.Errorf("VAD_NOISE_ADAPTATION must be in (0,1], got %g", c.VADNoiseAdaptation)
	}
	if c.VADMinSpeakMs < 0 || c.VADDebounceMs < 0 || c.PreRollMs < 0 {
		return fmt.Errorf("VAD and pre-roll durations must not be negative")
	}
	if c.MaxSegmentMs <= 0 {
		return fmt.Errorf("MAX_SEGMENT_MS must be positive, got %d", c.MaxSegmentMs)
	}
	if c.ReconnectBackoffFloorMs <= 0 || c.ReconnectBackoffCapMs < c.ReconnectBackoffFloorMs {
		return fmt.Errorf("reconnect backoff floor must be positive and not exceed the cap")
	}

	profiles := DefaultProfiles()
	if c.VADProfileFile != "" {
		loaded, err := LoadProfiles(c.VADProfileFile)
		if err != nil {
			return err
		}
		profiles = profiles.Merge(loaded)
	}
	minSilence, err := profiles.MinSilence(c.VADProfile)
	if err != nil {
		return err
	}
	c.MinSilence = minSilence

	return nil
}

// MinSpeak returns the minimum speech duration before speech starts
func (c *Config) MinSpeak() time.Duration {
	return time.Duration(c.VADMinSpeakMs) * time.Millisecond
}

// Debounce returns the hysteresis applied to condition flips
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.VADDebounceMs) * time.Millisecond
}

// PreRoll returns the amount of audio kept before speech starts
func (c *Config) PreRoll() time.Duration {
	return time.Duration(c.PreRollMs) * time.Millisecond
}

// MaxSegment returns the forced cut length of a segment
func (c *Config) MaxSegment() time.Duration {
	return time.Duration(c.MaxSegmentMs) * time.Millisecond
}

// DialTimeout returns the websocket dial timeout
func (c *Config) DialTimeout() time.Duration {
	return time.Duration(c.DialTimeoutSeconds) * time.Second
}

// WriteTimeout returns the websocket write timeout
func (c *Config) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutSeconds) * time.Second
}

// BackoffFloor returns the initial reconnect delay
func (c *Config) BackoffFloor() time.Duration {
	return time.Duration(c.ReconnectBackoffFloorMs) * time.Millisecond
}

// BackoffCap returns the maximum reconnect delay
func (c *Config) BackoffCap() time.Duration {
	return time.Duration(c.ReconnectBackoffCapMs) * time.Millisecond
}

// BreakerResetTimeout returns how long the circuit stays open
func (c *Config) BreakerResetTimeout() time.Duration {
	return time.Duration(c.CircuitBreakerResetTimeout) * time.Second
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
