// Package dsp implements the spectral frontend: PCM samples in, a
// log-magnitude spectrogram out. It leans on the same external FFT
// kernel the teacher's pipeline variants reached for
// (github.com/mjibson/go-dsp/fft) rather than a hand-rolled
// Cooley-Tukey transform, since the specification treats the FFT as an
// external library collaborator.
package dsp

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"

	"soundmark/internal/config"
	"soundmark/internal/errs"
)

// Spectrogram is a time-major log-magnitude matrix: Frames[t][f] is the
// dB magnitude (referenced to the spectrogram's own maximum) of frequency
// bin f in frame t. Bins run 0..NFFT/2 inclusive.
type Spectrogram struct {
	Frames [][]float64
	Bins   int
	SR     int
	Hop    int
}

const epsilon = 1e-12

// hannWindow returns a Hann window of length n.
func hannWindow(n int) []float64 {
	w := make([]float64, n)
	if n == 1 {
		w[0] = 1
		return w
	}
	for i := 0; i < n; i++ {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
	}
	return w
}

// Compute runs an STFT over samples using p.NFFT/p.Hop and a Hann
// window, returning a dB-normalized-to-max spectrogram. It fails with
// ShortInput if samples is shorter than one window and with
// InvalidAudio if any sample is non-finite.
func Compute(samples []float32, sr int, p config.Params) (*Spectrogram, error) {
	n := p.NFFT
	if len(samples) < n {
		return nil, errs.ShortInput(nil)
	}
	for _, s := range samples {
		if math.IsNaN(float64(s)) || math.IsInf(float64(s), 0) {
			return nil, errs.InvalidAudio(nil)
		}
	}

	window := hannWindow(n)
	nBins := n/2 + 1
	nFrames := (len(samples)-n)/p.Hop + 1

	frames := make([][]float64, nFrames)
	globalMax := math.Inf(-1)

	windowed := make([]float64, n)
	for t := 0; t < nFrames; t++ {
		start := t * p.Hop
		for i := 0; i < n; i++ {
			windowed[i] = float64(samples[start+i]) * window[i]
		}
		spectrum := fft.FFTReal(windowed)

		row := make([]float64, nBins)
		for f := 0; f < nBins; f++ {
			mag := cmplx.Abs(spectrum[f])
			db := 20 * math.Log10(mag+epsilon)
			row[f] = db
			if db > globalMax {
				globalMax = db
			}
		}
		frames[t] = row
	}

	// Normalize so the spectrogram's maximum cell is 0 dB.
	if !math.IsInf(globalMax, -1) {
		for t := range frames {
			for f := range frames[t] {
				frames[t][f] -= globalMax
			}
		}
	}

	return &Spectrogram{Frames: frames, Bins: nBins, SR: sr, Hop: p.Hop}, nil
}
