package audio

import (
	"gonum.org/v1/gonum/dsp/fourier"
)

// Frequency bands used for the voice-band ratio.
const (
	TotalBandLowHz  = 50.0
	TotalBandHighHz = 8000.0
	VoiceBandLowHz  = 300.0
	VoiceBandHighHz = 3400.0
)

// BandEnergy holds the squared-magnitude sums for the analysed bands.
type BandEnergy struct {
	Voice float64
	Total float64
}

// Ratio returns Voice/Total, or 0 when there is no energy in the total band.
func (b BandEnergy) Ratio() float64 {
	if b.Total <= 0 {
		return 0
	}
	return b.Voice / b.Total
}

// BandEnergies transforms one analysis window and sums |X_k|^2 over the
// total and voice bands. window must have the length fft was built for.
// The function only reads its inputs and writes coeffs, so it can be
// handed to a dedicated worker as-is.
func BandEnergies(fft *fourier.FFT, window []float64, coeffs []complex128, sampleRate int) BandEnergy {
	if sampleRate <= 0 || len(window) < 2 {
		return BandEnergy{}
	}

	coeffs = fft.Coefficients(coeffs, window)

	n := len(window)
	nyquist := float64(sampleRate) / 2
	resolution := nyquist / float64(n/2)

	var out BandEnergy
	for k, c := range coeffs {
		freq := float64(k) * resolution
		if freq < TotalBandLowHz || freq > TotalBandHighHz {
			continue
		}
		power := real(c)*real(c) + imag(c)*imag(c)
		out.Total += power
		if freq >= VoiceBandLowHz && freq <= VoiceBandHighHz {
			out.Voice += power
		}
	}
	return out
}
