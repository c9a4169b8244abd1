package peaks_test

import (
	"math"
	"testing"

	"soundmark/internal/config"
	"soundmark/internal/dsp"
	"soundmark/internal/peaks"
)

func sineWave(freq float64, sr, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		t := float64(i) / float64(sr)
		out[i] = float32(math.Sin(2 * math.Pi * freq * t))
	}
	return out
}

func TestExtractFindsPeaks(t *testing.T) {
	sr := 44100
	samples := sineWave(1000, sr, sr)
	p := config.Default()

	spec, err := dsp.Compute(samples, sr, p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pts := peaks.Extract(spec, p)
	if len(pts) == 0 {
		t.Fatal("expected at least one peak for a pure tone")
	}
	for _, pk := range pts {
		if pk.T < 0 || pk.T >= len(spec.Frames) {
			t.Errorf("peak T out of range: %d", pk.T)
		}
		if pk.F < 0 || pk.F >= spec.Bins {
			t.Errorf("peak F out of range: %d", pk.F)
		}
	}
}

func TestExtractSortedByTimeThenFreq(t *testing.T) {
	sr := 44100
	samples := sineWave(440, sr, sr)
	p := config.Default()

	spec, err := dsp.Compute(samples, sr, p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pts := peaks.Extract(spec, p)

	for i := 1; i < len(pts); i++ {
		prev, cur := pts[i-1], pts[i]
		if cur.T < prev.T || (cur.T == prev.T && cur.F < prev.F) {
			t.Fatalf("peaks not sorted at index %d: %+v then %+v", i, prev, cur)
		}
	}
}

func TestExtractRespectsDensityCap(t *testing.T) {
	sr := 44100
	samples := sineWave(440, sr, sr)
	p := config.Default()
	p.PeaksPerSecond = 5

	spec, err := dsp.Compute(samples, sr, p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pts := peaks.Extract(spec, p)

	durationSec := float64(len(spec.Frames)*p.Hop) / float64(sr)
	cap := int(p.PeaksPerSecond*durationSec) + 1 // tolerate rounding at the boundary
	if len(pts) > cap {
		t.Errorf("expected at most ~%d peaks, got %d", cap, len(pts))
	}
}

func TestExtractEmptySpectrogram(t *testing.T) {
	spec := &dsp.Spectrogram{Frames: nil, Bins: 0, SR: 44100, Hop: 512}
	p := config.Default()

	pts := peaks.Extract(spec, p)
	if len(pts) != 0 {
		t.Errorf("expected no peaks from an empty spectrogram, got %d", len(pts))
	}
}

func BenchmarkExtract(b *testing.B) {
	sr := 44100
	samples := sineWave(1000, sr, sr)
	p := config.Default()
	spec, _ := dsp.Compute(samples, sr, p)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		peaks.Extract(spec, p)
	}
}
