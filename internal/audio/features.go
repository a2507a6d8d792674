package audio

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// DefaultWindowSize is the FFT analysis window in samples.
const DefaultWindowSize = 1024

// ErrInvalidWindow is returned for analysis windows that are not a power of two.
var ErrInvalidWindow = errors.New("analysis window must be a power of two >= 2")

// FeatureSet is derived fresh for every frame and never retained.
type FeatureSet struct {
	RMS            float64
	ZCR            float64
	VoiceBandRatio float64
	TotalEnergy    float64
}

// FeatureExtractor computes per-frame loudness, zero-crossing and spectral
// features. It reuses its FFT plan and scratch buffers, so a single
// extractor must not be shared between goroutines.
type FeatureExtractor struct {
	windowSize int
	fft        *fourier.FFT
	window     []float64
	coeffs     []complex128
}

// NewFeatureExtractor creates an extractor with the given analysis window.
func NewFeatureExtractor(windowSize int) (*FeatureExtractor, error) {
	if windowSize < 2 || windowSize&(windowSize-1) != 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidWindow, windowSize)
	}
	return &FeatureExtractor{
		windowSize: windowSize,
		fft:        fourier.NewFFT(windowSize),
		window:     make([]float64, windowSize),
		coeffs:     make([]complex128, windowSize/2+1),
	}, nil
}

// WindowSize returns the analysis window length in samples.
func (e *FeatureExtractor) WindowSize() int {
	return e.windowSize
}

// Extract computes the FeatureSet for one frame. A frame without a known
// sample rate still gets RMS and ZCR; its spectral fields are zero.
func (e *FeatureExtractor) Extract(frame Frame) FeatureSet {
	features := FeatureSet{
		RMS: CalculateRMS(frame.Samples),
		ZCR: ZeroCrossingRate(frame.Samples),
	}
	if frame.SampleRate <= 0 || len(frame.Samples) == 0 {
		return features
	}

	e.fillWindow(frame.Samples)
	bands := BandEnergies(e.fft, e.window, e.coeffs, frame.SampleRate)
	features.TotalEnergy = bands.Total
	features.VoiceBandRatio = bands.Ratio()
	return features
}

// fillWindow copies the most recent windowSize samples, zero-padding short frames.
func (e *FeatureExtractor) fillWindow(samples []float32) {
	if len(samples) > e.windowSize {
		samples = samples[len(samples)-e.windowSize:]
	}
	n := copy32to64(e.window, samples)
	for i := n; i < e.windowSize; i++ {
		e.window[i] = 0
	}
}

func copy32to64(dst []float64, src []float32) int {
	n := len(src)
	if n > len(dst) {
		n = len(dst)
	}
	for i := 0; i < n; i++ {
		dst[i] = float64(src[i])
	}
	return n
}

// CalculateRMS calculates the root mean square of float samples.
func CalculateRMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0.0
	}

	sum := 0.0
	for _, sample := range samples {
		v := float64(sample)
		sum += v * v
	}

	return math.Sqrt(sum / float64(len(samples)))
}

// ZeroCrossingRate returns the fraction of adjacent sample pairs whose sign
// differs. Frames shorter than two samples have a rate of 0.
func ZeroCrossingRate(samples []float32) float64 {
	if len(samples) < 2 {
		return 0
	}

	crossings := 0
	for i := 1; i < len(samples); i++ {
		if (samples[i-1] >= 0) != (samples[i] >= 0) {
			crossings++
		}
	}
	return float64(crossings) / float64(len(samples)-1)
}
