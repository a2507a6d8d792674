package vad

const (
	// DefaultNoiseFloor is the starting ambient RMS estimate.
	DefaultNoiseFloor = 0.01
	// DefaultNoiseAdaptation is the EMA weight of each new silent frame.
	DefaultNoiseAdaptation = 0.05
)

// NoiseFloorTracker keeps a slow exponential estimate of ambient RMS.
// Callers must only feed it frames classified as silence.
type NoiseFloorTracker struct {
	floor float64
	alpha float64
}

// NewNoiseFloorTracker creates a tracker. Out-of-range values fall back to
// the defaults.
func NewNoiseFloorTracker(initial, alpha float64) *NoiseFloorTracker {
	if initial < 0 {
		initial = DefaultNoiseFloor
	}
	if alpha <= 0 || alpha > 1 {
		alpha = DefaultNoiseAdaptation
	}
	return &NoiseFloorTracker{floor: initial, alpha: alpha}
}

// Update folds rms into the estimate and returns the new floor.
func (n *NoiseFloorTracker) Update(rms float64) float64 {
	n.floor = n.floor*(1-n.alpha) + rms*n.alpha
	return n.floor
}

// Value returns the current floor
func (n *NoiseFloorTracker) Value() float64 {
	return n.floor
}
