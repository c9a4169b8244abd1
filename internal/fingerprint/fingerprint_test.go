package fingerprint_test

import (
	"testing"

	"soundmark/internal/config"
	"soundmark/internal/fingerprint"
	"soundmark/internal/peaks"
)

func TestPackUnpackRoundTrip(t *testing.T) {
	tests := []struct {
		name       string
		f1, f2, dt int
	}{
		{"zeros", 0, 0, 0},
		{"max values", 1023, 1023, 4095},
		{"typical", 200, 350, 42},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			pts := []peaks.Peak{
				{F: tc.f1, T: 0},
				{F: tc.f2, T: tc.dt},
			}
			p := config.Default()
			p.DtMin = 0
			p.DtMax = 4095
			p.FanOut = 1

			pairs := fingerprint.Generate(pts, p)
			if len(pairs) != 1 {
				t.Fatalf("expected exactly 1 pair, got %d", len(pairs))
			}
			gotF1, gotF2, gotDt := fingerprint.Unpack(pairs[0].Hash)
			if gotF1 != tc.f1 || gotF2 != tc.f2 || gotDt != tc.dt {
				t.Errorf("round trip mismatch: got (%d,%d,%d), want (%d,%d,%d)", gotF1, gotF2, gotDt, tc.f1, tc.f2, tc.dt)
			}
		})
	}
}

func TestGenerateRespectsFanOut(t *testing.T) {
	p := config.Default()
	p.DtMin = 1
	p.DtMax = 200
	p.FanOut = 3

	pts := make([]peaks.Peak, 0, 10)
	for i := 0; i < 10; i++ {
		pts = append(pts, peaks.Peak{F: 10 + i, T: i})
	}

	pairs := fingerprint.Generate(pts, p)
	counts := make(map[int]int)
	for _, pr := range pairs {
		counts[pr.Offset]++
	}
	for offset, c := range counts {
		if c > p.FanOut {
			t.Errorf("anchor at offset %d fanned out to %d targets, want <= %d", offset, c, p.FanOut)
		}
	}
}

func TestGenerateRespectsDtWindow(t *testing.T) {
	p := config.Default()
	p.DtMin = 5
	p.DtMax = 10
	p.FanOut = 50

	pts := []peaks.Peak{
		{F: 1, T: 0},
		{F: 2, T: 3},  // dt=3, below DtMin
		{F: 3, T: 7},  // dt=7, in window
		{F: 4, T: 9},  // dt=9, in window
		{F: 5, T: 15}, // dt=15, above DtMax
	}

	pairs := fingerprint.Generate(pts, p)
	for _, pr := range pairs {
		_, _, dt := fingerprint.Unpack(pr.Hash)
		if dt < p.DtMin || dt > p.DtMax {
			t.Errorf("pair with dt=%d outside window [%d,%d]", dt, p.DtMin, p.DtMax)
		}
	}
	// Anchor T=0 pairs with T=7 and T=9; anchors T=3, T=7 and T=9 each
	// pair with one later peak (dt=6, dt=8, dt=6).
	if len(pairs) != 5 {
		t.Fatalf("expected 5 pairs (2 from anchor at T=0, 1 each from T=3, T=7, T=9), got %d", len(pairs))
	}
}

func TestGenerateEmptyInput(t *testing.T) {
	p := config.Default()
	pairs := fingerprint.Generate(nil, p)
	if len(pairs) != 0 {
		t.Errorf("expected no pairs from empty input, got %d", len(pairs))
	}
}

func TestPackClampsOverflow(t *testing.T) {
	pts := []peaks.Peak{
		{F: 5000, T: 0},
		{F: 6000, T: 1},
	}
	p := config.Default()
	p.DtMin = 0
	p.DtMax = 10
	p.FanOut = 5

	pairs := fingerprint.Generate(pts, p)
	if len(pairs) != 1 {
		t.Fatalf("expected 1 pair, got %d", len(pairs))
	}
	f1, f2, _ := fingerprint.Unpack(pairs[0].Hash)
	if f1 > 1023 || f2 > 1023 {
		t.Errorf("expected frequency bins clamped to 10 bits, got f1=%d f2=%d", f1, f2)
	}
}

func BenchmarkGenerate(b *testing.B) {
	p := config.Default()
	pts := make([]peaks.Peak, 0, 1000)
	for i := 0; i < 1000; i++ {
		pts = append(pts, peaks.Peak{F: i % 1024, T: i})
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		fingerprint.Generate(pts, p)
	}
}
