package vad

import (
	"math"

	"github.com/lexiqai/speech-streamer/internal/audio"
)

const (
	// DefaultRMSThreshold normalizes RMS above the noise floor.
	DefaultRMSThreshold = 0.0015
	// DefaultSpeechThreshold is the smoothed score above which a frame is speech.
	DefaultSpeechThreshold = 15.0
	// DefaultSmoothing is the weight kept from the previous smoothed score.
	DefaultSmoothing = 0.6

	epsilon = 1e-6

	voiceBandWeight = 5.0
	rmsWeight       = 2.0
)

// ScorerConfig holds the speech scoring constants
type ScorerConfig struct {
	RMSThreshold    float64
	SpeechThreshold float64
	Smoothing       float64 // in [0, 1)
}

// DefaultScorerConfig returns the default scoring constants
func DefaultScorerConfig() ScorerConfig {
	return ScorerConfig{
		RMSThreshold:    DefaultRMSThreshold,
		SpeechThreshold: DefaultSpeechThreshold,
		Smoothing:       DefaultSmoothing,
	}
}

// Score is the outcome of scoring one frame.
type Score struct {
	Raw           float64
	Smoothed      float64
	NormalizedRMS float64
	IsSpeech      bool
}

// RunningStats tracks per-frame volume for diagnostics.
type RunningStats struct {
	MinVolume  float64 // smallest non-zero volume seen
	MaxVolume  float64
	AvgVolume  float64
	AvgDiff    float64 // running mean of |volume - previous volume|
	LastVolume float64
	Frames     int64
}

func (s *RunningStats) observe(volume float64) {
	s.Frames++
	if volume > 0 && (s.MinVolume == 0 || volume < s.MinVolume) {
		s.MinVolume = volume
	}
	if volume > s.MaxVolume {
		s.MaxVolume = volume
	}
	s.AvgVolume += (volume - s.AvgVolume) / float64(s.Frames)
	if s.Frames > 1 {
		diff := math.Abs(volume - s.LastVolume)
		s.AvgDiff += (diff - s.AvgDiff) / float64(s.Frames-1)
	}
	s.LastVolume = volume
}

// StatsSnapshot is the telemetry emitted after each scored frame.
type StatsSnapshot struct {
	Stats      RunningStats
	Features   audio.FeatureSet
	Score      Score
	NoiseFloor float64
}

// StatsObserver receives a snapshot for every scored frame. It has no
// effect on detection.
type StatsObserver interface {
	OnStats(snapshot StatsSnapshot)
}

// StatsObserverFunc adapts a function to StatsObserver
type StatsObserverFunc func(StatsSnapshot)

// OnStats calls f(snapshot)
func (f StatsObserverFunc) OnStats(snapshot StatsSnapshot) { f(snapshot) }

// SpeechScorer turns a FeatureSet and the noise floor into a smoothed
// speech confidence score.
type SpeechScorer struct {
	config   ScorerConfig
	observer StatsObserver

	smoothed float64
	seeded   bool
	stats    RunningStats
}

// NewSpeechScorer creates a scorer. observer may be nil.
func NewSpeechScorer(config ScorerConfig, observer StatsObserver) *SpeechScorer {
	if config.RMSThreshold <= 0 {
		config.RMSThreshold = DefaultRMSThreshold
	}
	if config.Smoothing < 0 || config.Smoothing >= 1 {
		config.Smoothing = DefaultSmoothing
	}
	return &SpeechScorer{config: config, observer: observer}
}

// Score scores one frame against the given noise floor.
func (s *SpeechScorer) Score(features audio.FeatureSet, noiseFloor float64) Score {
	normalized := math.Max((features.RMS-noiseFloor)/(s.config.RMSThreshold+epsilon), 0)
	raw := features.VoiceBandRatio*voiceBandWeight + normalized*rmsWeight

	if !s.seeded {
		s.smoothed = raw
		s.seeded = true
	} else {
		s.smoothed = s.smoothed*s.config.Smoothing + raw*(1-s.config.Smoothing)
	}

	score := Score{
		Raw:           raw,
		Smoothed:      s.smoothed,
		NormalizedRMS: normalized,
		IsSpeech:      s.smoothed > s.config.SpeechThreshold,
	}

	s.stats.observe(features.RMS)
	if s.observer != nil {
		s.observer.OnStats(StatsSnapshot{
			Stats:      s.stats,
			Features:   features,
			Score:      score,
			NoiseFloor: noiseFloor,
		})
	}
	return score
}

// Stats returns a copy of the running statistics
func (s *SpeechScorer) Stats() RunningStats {
	return s.stats
}

// Reset clears the smoothed score and statistics
func (s *SpeechScorer) Reset() {
	s.smoothed = 0
	s.seeded = false
	s.stats = RunningStats{}
}
