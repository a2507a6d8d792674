package vad

import (
	"math"
	"testing"

	"github.com/lexiqai/speech-streamer/internal/audio"
)

func TestNoiseFloorTracker_Converges(t *testing.T) {
	n := NewNoiseFloorTracker(DefaultNoiseFloor, DefaultNoiseAdaptation)
	target := 0.002

	prev := n.Value()
	for i := 0; i < 1000; i++ {
		v := n.Update(target)
		if v > prev+1e-15 {
			t.Fatalf("Update %d: floor moved away from target (%v -> %v)", i, prev, v)
		}
		prev = v
	}
	if math.Abs(prev-target) > 1e-12 {
		t.Errorf("Expected floor to converge to %v, got %v", target, prev)
	}
}

func TestNoiseFloorTracker_Defaults(t *testing.T) {
	n := NewNoiseFloorTracker(-1, 0)
	if n.Value() != DefaultNoiseFloor {
		t.Errorf("Expected default floor, got %v", n.Value())
	}
	got := n.Update(0)
	if math.Abs(got-DefaultNoiseFloor*(1-DefaultNoiseAdaptation)) > 1e-15 {
		t.Errorf("Expected default adaptation, got %v", got)
	}
}

func TestSpeechScorer_Formula(t *testing.T) {
	s := NewSpeechScorer(DefaultScorerConfig(), nil)

	// First frame seeds the smoothed score
	first := s.Score(audio.FeatureSet{RMS: 0.01 + 0.003, VoiceBandRatio: 0.5}, 0.01)
	wantNorm := 0.003 / (DefaultRMSThreshold + 1e-6)
	wantRaw := 0.5*5 + wantNorm*2
	if math.Abs(first.NormalizedRMS-wantNorm) > 1e-9 {
		t.Errorf("Expected normalized RMS %v, got %v", wantNorm, first.NormalizedRMS)
	}
	if math.Abs(first.Raw-wantRaw) > 1e-9 {
		t.Errorf("Expected raw %v, got %v", wantRaw, first.Raw)
	}
	if first.Smoothed != first.Raw {
		t.Errorf("Expected first frame to seed smoothed score, got %v", first.Smoothed)
	}

	second := s.Score(audio.FeatureSet{RMS: 0, VoiceBandRatio: 1}, 0.01)
	if second.NormalizedRMS != 0 {
		t.Errorf("Expected RMS under the floor to clip to 0, got %v", second.NormalizedRMS)
	}
	wantSmoothed := first.Smoothed*0.6 + 5*0.4
	if math.Abs(second.Smoothed-wantSmoothed) > 1e-9 {
		t.Errorf("Expected smoothed %v, got %v", wantSmoothed, second.Smoothed)
	}
}

func TestSpeechScorer_Threshold(t *testing.T) {
	s := NewSpeechScorer(DefaultScorerConfig(), nil)

	quiet := s.Score(audio.FeatureSet{RMS: 0.01, VoiceBandRatio: 1}, 0.01)
	if quiet.IsSpeech {
		t.Errorf("Expected score %v to be below threshold", quiet.Smoothed)
	}

	s.Reset()
	loud := s.Score(audio.FeatureSet{RMS: 0.1, VoiceBandRatio: 0.9}, 0.01)
	if !loud.IsSpeech {
		t.Errorf("Expected score %v to be speech", loud.Smoothed)
	}
}

func TestSpeechScorer_RunningStats(t *testing.T) {
	var snapshots []StatsSnapshot
	s := NewSpeechScorer(DefaultScorerConfig(), StatsObserverFunc(func(snap StatsSnapshot) {
		snapshots = append(snapshots, snap)
	}))

	for _, rms := range []float64{0, 0.2, 0.1, 0} {
		s.Score(audio.FeatureSet{RMS: rms}, 0.01)
	}

	stats := s.Stats()
	if stats.Frames != 4 {
		t.Errorf("Expected 4 frames, got %d", stats.Frames)
	}
	if stats.MinVolume != 0.1 {
		t.Errorf("Expected min volume to skip zeros, got %v", stats.MinVolume)
	}
	if stats.MaxVolume != 0.2 {
		t.Errorf("Expected max volume 0.2, got %v", stats.MaxVolume)
	}
	if math.Abs(stats.AvgVolume-0.075) > 1e-12 {
		t.Errorf("Expected avg volume 0.075, got %v", stats.AvgVolume)
	}
	// diffs: 0.2, 0.1, 0.1
	if math.Abs(stats.AvgDiff-0.4/3) > 1e-12 {
		t.Errorf("Expected avg diff %v, got %v", 0.4/3, stats.AvgDiff)
	}
	if stats.LastVolume != 0 {
		t.Errorf("Expected last volume 0, got %v", stats.LastVolume)
	}

	if len(snapshots) != 4 {
		t.Fatalf("Expected a snapshot per frame, got %d", len(snapshots))
	}
	if snapshots[1].Stats.MaxVolume != 0.2 || snapshots[1].NoiseFloor != 0.01 {
		t.Errorf("Unexpected snapshot contents: %+v", snapshots[1])
	}
}
