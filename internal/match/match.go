// Package match implements the Matcher: fingerprint a query clip, probe
// the Index Store in chunks, and recover the best track via an
// offset-delta histogram.
//
// Grounded on the original Python source's identify.py
// (identify_sample: chunked query_database_chunk calls via
// ThreadPoolExecutor, Counter() over (song_id, offset_diff), argmax) and
// the teacher's main/db/db.go (QueryFingerprints' per-hash histogram).
// Confidence here is the top bin's count over the runner-up bin's count,
// not StoreQueryResults' maxCount/totalMatches ratio.
package match

import (
	"context"
	"sort"
	"sync"

	"soundmark/internal/audio"
	"soundmark/internal/config"
	"soundmark/internal/dsp"
	"soundmark/internal/errs"
	"soundmark/internal/fingerprint"
	"soundmark/internal/peaks"
	"soundmark/internal/store"
)

// voteKey is (track_id, delta); the histogram bin the specification's
// Matcher votes into.
type voteKey struct {
	TrackID string
	Delta   int
}

// Result is what a query returns: the winning track (if any), its vote
// count, and a confidence ratio against the runner-up bin.
type Result struct {
	TrackID        string
	Delta          int
	Votes          int
	Confidence     float64
	TotalHashes    int
	TotalPeaks     int
	TotalPairs     int
	MatchingHashes int
}

// Identify fingerprints query samples and probes st, returning the best
// matching track. Result.TrackID == "" means no postings matched any
// query hash at all, as opposed to a match below the caller's confidence
// threshold (which still returns a populated Result).
func Identify(ctx context.Context, st store.Store, samples []float32, sr int, p config.Params) (Result, error) {
	return identifyChannels(ctx, st, [][]float32{samples}, sr, p)
}

// IdentifyFile decodes path, reduces it per p.Stereo, and identifies it
// against st. This is the entry point the `identify` CLI verb uses.
func IdentifyFile(ctx context.Context, st store.Store, path string, p config.Params) (Result, error) {
	decoded, err := audio.Decode(path)
	if err != nil {
		return Result{}, err
	}
	channels := audio.ToMono(decoded, p)
	return identifyChannels(ctx, st, channels, decoded.SampleRate, p)
}

func identifyChannels(ctx context.Context, st store.Store, channels [][]float32, sr int, p config.Params) (Result, error) {
	var allPairs []fingerprint.Pair
	totalPeaks := 0
	for _, ch := range channels {
		spec, err := dsp.Compute(ch, sr, p)
		if err != nil {
			return Result{}, err
		}
		pts := peaks.Extract(spec, p)
		totalPeaks += len(pts)
		allPairs = append(allPairs, fingerprint.Generate(pts, p)...)
	}

	if len(allPairs) == 0 {
		return Result{TotalPeaks: totalPeaks}, nil
	}

	// Index query hashes by hash value so each returned posting can be
	// matched back against every query pair sharing that hash (spec
	// §4.6 step 3: "for each query o_q such that its hash equals h").
	byHash := make(map[uint32][]int) // hash -> query offsets
	hashSet := make(map[uint32]bool)
	for _, pr := range allPairs {
		h := uint32(pr.Hash)
		byHash[h] = append(byHash[h], pr.Offset)
		hashSet[h] = true
	}

	hashes := make([]uint32, 0, len(hashSet))
	for h := range hashSet {
		hashes = append(hashes, h)
	}

	postings, err := lookupChunked(ctx, st, hashes, p.LookupChunk)
	if err != nil {
		return Result{}, err
	}

	votes := make(map[voteKey]int)
	for _, post := range postings {
		for _, qOffset := range byHash[post.Hash] {
			delta := post.Offset - qOffset
			votes[voteKey{TrackID: post.TrackID, Delta: delta}]++
		}
	}

	if len(votes) == 0 {
		return Result{TotalPeaks: totalPeaks, TotalPairs: len(allPairs), TotalHashes: len(hashes)}, nil
	}

	type bin struct {
		key   voteKey
		count int
	}
	bins := make([]bin, 0, len(votes))
	for k, c := range votes {
		bins = append(bins, bin{k, c})
	}
	sort.Slice(bins, func(i, j int) bool {
		if bins[i].count != bins[j].count {
			return bins[i].count > bins[j].count
		}
		return bins[i].key.TrackID < bins[j].key.TrackID
	})

	best := bins[0]
	confidence := 1.0
	if len(bins) > 1 && bins[1].count > 0 {
		confidence = float64(best.count) / float64(bins[1].count)
	}

	return Result{
		TrackID:        best.key.TrackID,
		Delta:          best.key.Delta,
		Votes:          best.count,
		Confidence:     confidence,
		TotalPeaks:     totalPeaks,
		TotalPairs:     len(allPairs),
		TotalHashes:    len(hashes),
		MatchingHashes: len(postings),
	}, nil
}

// lookupChunked splits hashes into chunks of size chunkSize (default 500
// per spec §4.6) and unions the results. Chunking is purely a
// performance concern; chunks are queried concurrently and merged.
func lookupChunked(ctx context.Context, st store.Store, hashes []uint32, chunkSize int) ([]store.Posting, error) {
	if chunkSize <= 0 {
		chunkSize = len(hashes)
	}
	if chunkSize <= 0 {
		return nil, nil
	}

	var chunks [][]uint32
	for start := 0; start < len(hashes); start += chunkSize {
		end := start + chunkSize
		if end > len(hashes) {
			end = len(hashes)
		}
		chunks = append(chunks, hashes[start:end])
	}

	results := make([][]store.Posting, len(chunks))
	errsCh := make(chan error, len(chunks))
	var wg sync.WaitGroup

	for i, chunk := range chunks {
		wg.Add(1)
		go func(i int, chunk []uint32) {
			defer wg.Done()
			postings, err := st.Lookup(ctx, chunk)
			if err != nil {
				errsCh <- err
				return
			}
			results[i] = postings
		}(i, chunk)
	}
	wg.Wait()
	close(errsCh)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	for err := range errsCh {
		if err != nil {
			return nil, errs.StoreUnavailable(err)
		}
	}

	var merged []store.Posting
	for _, r := range results {
		merged = append(merged, r...)
	}
	return merged, nil
}
