// Package peaks extracts the constellation map from a spectrogram: the
// set of (frequency-bin, frame) points that are local maxima within a
// 3x3 neighborhood and within threshold_dB of that neighborhood's peak.
//
// The algorithm is the one in the original Python source's
// builddb_threading.py (scipy.ndimage.maximum_filter with a (3,3)
// neighborhood and a dB threshold), not the band-max heuristic some of
// the Go reference variants use — no library in the reference corpus
// implements a generic small-neighborhood maximum filter, so this is a
// direct nested-loop reimplementation of the same shape as
// DanielCarmel-media-luna's isLocalPeak.
package peaks

import (
	"sort"

	"soundmark/internal/config"
	"soundmark/internal/dsp"
)

// Peak is one constellation point: frequency bin f and frame index t.
type Peak struct {
	F     int
	T     int
	MagDB float64
}

// Extract returns the peaks of spec, sorted by T then F, with density
// capped at peaks_per_second * duration. An empty spectrogram yields an
// empty (not error) peak list.
func Extract(spec *dsp.Spectrogram, p config.Params) []Peak {
	nFrames := len(spec.Frames)
	if nFrames == 0 {
		return nil
	}
	nBins := spec.Bins

	var raw []Peak
	for t := 0; t < nFrames; t++ {
		for f := 0; f < nBins; f++ {
			cell := spec.Frames[t][f]
			neighborMax := cell
			tiedEarlier := false
			for dt := -1; dt <= 1; dt++ {
				tt := t + dt
				if tt < 0 || tt >= nFrames {
					continue
				}
				for df := -1; df <= 1; df++ {
					ff := f + df
					if ff < 0 || ff >= nBins {
						continue
					}
					v := spec.Frames[tt][ff]
					if v > neighborMax {
						neighborMax = v
					}
					if v == cell && (df < 0 || (df == 0 && dt < 0)) {
						tiedEarlier = true
					}
				}
			}
			// A cell is a peak iff it equals the neighborhood max, no
			// equal-valued neighbor comes before it in (f, t) order (so
			// only the lexicographically-first cell of a tie is reported),
			// and it is within threshold_dB of that max.
			if cell == neighborMax && !tiedEarlier && (neighborMax-cell) <= p.ThresholdDB {
				raw = append(raw, Peak{F: f, T: t, MagDB: cell})
			}
		}
	}

	durationSec := float64(nFrames*spec.Hop) / float64(spec.SR)
	ceiling := int(p.PeaksPerSecond * durationSec)
	if ceiling > 0 && len(raw) > ceiling {
		sorted := make([]Peak, len(raw))
		copy(sorted, raw)
		sort.Slice(sorted, func(i, j int) bool {
			if sorted[i].MagDB != sorted[j].MagDB {
				return sorted[i].MagDB > sorted[j].MagDB
			}
			if sorted[i].T != sorted[j].T {
				return sorted[i].T < sorted[j].T
			}
			return sorted[i].F < sorted[j].F
		})
		raw = sorted[:ceiling]
	}

	sort.Slice(raw, func(i, j int) bool {
		if raw[i].T != raw[j].T {
			return raw[i].T < raw[j].T
		}
		return raw[i].F < raw[j].F
	})

	return raw
}
