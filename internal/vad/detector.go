package vad

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/speech-streamer/internal/audio"
)

// Config holds everything needed to build a Detector.
type Config struct {
	WindowSize      int
	Scorer          ScorerConfig
	Machine         MachineConfig
	NoiseFloor      float64
	NoiseAdaptation float64
}

// DefaultConfig returns a balanced-profile configuration
func DefaultConfig() Config {
	return Config{
		WindowSize:      audio.DefaultWindowSize,
		Scorer:          DefaultScorerConfig(),
		Machine:         DefaultMachineConfig(),
		NoiseFloor:      DefaultNoiseFloor,
		NoiseAdaptation: DefaultNoiseAdaptation,
	}
}

// Result is the per-frame outcome of the detector.
type Result struct {
	Features   audio.FeatureSet
	Score      Score
	NoiseFloor float64
	State      ActivityState
	Event      *Event
}

// Detector runs one frame at a time through feature extraction, scoring,
// the activity state machine and noise floor tracking.
type Detector struct {
	extractor *audio.FeatureExtractor
	scorer    *SpeechScorer
	machine   *ActivityStateMachine
	noise     *NoiseFloorTracker
	logger    zerolog.Logger
	now       func() time.Time
}

// NewDetector creates a detector. observer may be nil.
func NewDetector(config Config, observer StatsObserver, logger zerolog.Logger) (*Detector, error) {
	extractor, err := audio.NewFeatureExtractor(config.WindowSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create feature extractor: %w", err)
	}

	return &Detector{
		extractor: extractor,
		scorer:    NewSpeechScorer(config.Scorer, observer),
		machine:   NewActivityStateMachine(config.Machine),
		noise:     NewNoiseFloorTracker(config.NoiseFloor, config.NoiseAdaptation),
		logger:    logger.With().Str("component", "vad").Logger(),
		now:       time.Now,
	}, nil
}

// Process classifies one frame. Frames without a timestamp are stamped
// with the wall clock.
func (d *Detector) Process(frame audio.Frame) Result {
	now := frame.Timestamp
	if now.IsZero() {
		now = d.now()
	}

	features := d.extractor.Extract(frame)
	score := d.scorer.Score(features, d.noise.Value())

	result := Result{Features: features, Score: score}
	if ev, ok := d.machine.Update(score.IsSpeech, now); ok {
		result.Event = &ev
		d.logTransition(ev, score)
	}

	result.State = d.machine.State()
	if result.State == StateSilent {
		d.noise.Update(features.RMS)
	}
	result.NoiseFloor = d.noise.Value()
	return result
}

func (d *Detector) logTransition(ev Event, score Score) {
	entry := d.logger.Debug().
		Str("event", ev.Type.String()).
		Float64("score", score.Smoothed).
		Float64("noise_floor", d.noise.Value())
	switch ev.Type {
	case SpeechStarted:
		entry = entry.Dur("silence_duration", ev.SilenceDuration)
	case SpeechEnded:
		entry = entry.Dur("trigger_duration", ev.TriggerDuration)
	}
	entry.Msg("Activity state changed")
}

// State returns the current activity state
func (d *Detector) State() ActivityState {
	return d.machine.State()
}

// NoiseFloor returns the current noise floor estimate
func (d *Detector) NoiseFloor() float64 {
	return d.noise.Value()
}

// Stats returns the scorer's running statistics
func (d *Detector) Stats() RunningStats {
	return d.scorer.Stats()
}

// Reset returns the detector to its initial state. The noise floor
// estimate is kept.
func (d *Detector) Reset() {
	d.scorer.Reset()
	d.machine.Reset()
}
