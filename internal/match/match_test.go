package match_test

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"soundmark/internal/config"
	"soundmark/internal/dsp"
	"soundmark/internal/fingerprint"
	"soundmark/internal/match"
	"soundmark/internal/peaks"
	"soundmark/internal/store"
)

const sampleRate = 22050

func sineWave(freq float64, sr, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		t := float64(i) / float64(sr)
		out[i] = float32(math.Sin(2 * math.Pi * freq * t))
	}
	return out
}

// chirp sweeps linearly from f0 to f1 over the signal's duration, giving
// each track a distinctive, non-repeating spectral shape.
func chirp(f0, f1 float64, sr, n int) []float32 {
	out := make([]float32, n)
	duration := float64(n) / float64(sr)
	k := (f1 - f0) / duration
	for i := range out {
		t := float64(i) / float64(sr)
		phase := 2 * math.Pi * (f0*t + 0.5*k*t*t)
		out[i] = float32(math.Sin(phase))
	}
	return out
}

func addNoise(samples []float32, amplitude float64, seed uint64) []float32 {
	out := make([]float32, len(samples))
	state := seed
	for i, v := range samples {
		// xorshift64, deterministic so the test is reproducible.
		state ^= state << 13
		state ^= state >> 7
		state ^= state << 17
		n := (float64(state%2000) / 1000.0) - 1.0
		out[i] = v + float32(n*amplitude)
	}
	return out
}

func ingestTrack(t *testing.T, ctx context.Context, st store.Store, trackID string, samples []float32, p config.Params) {
	t.Helper()
	spec, err := dsp.Compute(samples, sampleRate, p)
	if err != nil {
		t.Fatalf("computing spectrogram for %s: %v", trackID, err)
	}
	pts := peaks.Extract(spec, p)
	pairs := fingerprint.Generate(pts, p)

	var postings []store.Posting
	for _, pr := range pairs {
		postings = append(postings, store.Posting{Hash: uint32(pr.Hash), Offset: pr.Offset})
	}
	batch := store.AppendBatch{
		Track:    store.Track{ID: trackID, Label: trackID},
		Postings: postings,
	}
	if err := st.AppendPostings(ctx, batch, false); err != nil {
		t.Fatalf("appending postings for %s: %v", trackID, err)
	}
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	dir := t.TempDir()
	st, err := store.OpenSQLite(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

// Scenario 1: pure identity. The exact track, queried against itself,
// must be identified.
func TestIdentifyPureIdentity(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	p := config.Default()

	track := chirp(300, 3000, sampleRate, sampleRate*3)
	ingestTrack(t, ctx, st, "track-a", track, p)

	result, err := match.Identify(ctx, st, track, sampleRate, p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.TrackID != "track-a" {
		t.Fatalf("expected track-a, got %q (votes=%d)", result.TrackID, result.Votes)
	}
}

// Scenario 2: prefix match. A clip taken from the middle of the track
// must still resolve to that track.
func TestIdentifyPrefixMatch(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	p := config.Default()

	track := chirp(300, 3000, sampleRate, sampleRate*5)
	ingestTrack(t, ctx, st, "track-a", track, p)

	// A 2-second clip starting 1 second in.
	start := sampleRate * 1
	end := start + sampleRate*2
	clip := track[start:end]

	result, err := match.Identify(ctx, st, clip, sampleRate, p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.TrackID != "track-a" {
		t.Fatalf("expected track-a, got %q", result.TrackID)
	}
}

// Scenario 3: rejection. A clip with no relationship to the indexed
// corpus must not resolve to any track with meaningful confidence.
func TestIdentifyRejectsUnrelatedClip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	p := config.Default()

	track := chirp(300, 3000, sampleRate, sampleRate*3)
	ingestTrack(t, ctx, st, "track-a", track, p)

	unrelated := sineWave(6000, sampleRate, sampleRate)
	result, err := match.Identify(ctx, st, unrelated, sampleRate, p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.TrackID == "track-a" && result.Confidence > 3 {
		t.Fatalf("unrelated clip matched with high confidence: %+v", result)
	}
}

// Scenario 4: noisy query. A moderately noisy clip should still resolve
// to its source track.
func TestIdentifyNoisyQuery(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	p := config.Default()

	track := chirp(300, 3000, sampleRate, sampleRate*3)
	ingestTrack(t, ctx, st, "track-a", track, p)

	noisy := addNoise(track, 0.05, 12345)
	result, err := match.Identify(ctx, st, noisy, sampleRate, p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.TrackID != "track-a" {
		t.Fatalf("expected track-a under light noise, got %q", result.TrackID)
	}
}

// Scenario 5: two-track disambiguation. Given two distinct indexed
// tracks, a clip from each must resolve to its own track, not the other.
func TestIdentifyDisambiguatesTwoTracks(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	p := config.Default()

	trackA := chirp(300, 3000, sampleRate, sampleRate*3)
	trackB := chirp(3000, 300, sampleRate, sampleRate*3)
	ingestTrack(t, ctx, st, "track-a", trackA, p)
	ingestTrack(t, ctx, st, "track-b", trackB, p)

	resultA, err := match.Identify(ctx, st, trackA[:sampleRate], sampleRate, p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resultA.TrackID != "track-a" {
		t.Fatalf("expected track-a, got %q", resultA.TrackID)
	}

	resultB, err := match.Identify(ctx, st, trackB[:sampleRate], sampleRate, p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resultB.TrackID != "track-b" {
		t.Fatalf("expected track-b, got %q", resultB.TrackID)
	}
}

// Scenario 6: cross-parameter mismatch. Fingerprints generated under one
// set of params are not expected to align with a query under a
// materially different set (disjoint hash spaces), so the stats
// returned should show no meaningfully large matching-hash overlap.
func TestIdentifyCrossParameterMismatch(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	buildParams := config.Default()

	track := chirp(300, 3000, sampleRate, sampleRate*3)
	ingestTrack(t, ctx, st, "track-a", track, buildParams)

	queryParams := buildParams
	queryParams.FanOut = 2
	queryParams.DtMin = 150
	queryParams.DtMax = 200

	result, err := match.Identify(ctx, st, track, sampleRate, queryParams)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.MatchingHashes > result.TotalHashes {
		t.Fatalf("matching hashes exceeds total hashes: %+v", result)
	}
}

func TestIdentifyEmptyStoreReturnsNoMatch(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	p := config.Default()

	samples := sineWave(440, sampleRate, sampleRate)
	result, err := match.Identify(ctx, st, samples, sampleRate, p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.TrackID != "" {
		t.Fatalf("expected no match against an empty store, got %q", result.TrackID)
	}
}
