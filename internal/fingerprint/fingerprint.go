// Package fingerprint turns a constellation of peaks into (hash, offset)
// pairs via combinatorial fan-out pairing, following the same overall
// shape as the teacher's core/fingerprinting.go (Fingerprint/
// createAddress) but packing bits in the specification's canonical
// 10/10/12 split rather than the teacher's 9/9/14 split.
package fingerprint

import (
	"soundmark/internal/config"
	"soundmark/internal/peaks"
)

const (
	freqBits  = 10
	freqMask  = (1 << freqBits) - 1
	deltaBits = 12
	deltaMask = (1 << deltaBits) - 1
)

// Hash packs (f1, f2, dt) into a single uint32: f1 in the top 10 bits,
// f2 in the next 10, dt in the bottom 12.
type Hash uint32

// Pair is one emitted (hash, anchor-offset) fingerprint.
type Pair struct {
	Hash   Hash
	Offset int // anchor frame index t1, in hop-units
}

// pack encodes the anchor/target frequency bins and the time delta into
// a single Hash. Frequency bins beyond what 10 bits can hold are clamped
// rather than wrapped, since silently aliasing two different bins into
// the same hash space would corrupt the index.
func pack(f1, f2, dt int) Hash {
	if f1 > freqMask {
		f1 = freqMask
	}
	if f2 > freqMask {
		f2 = freqMask
	}
	if dt > deltaMask {
		dt = deltaMask
	}
	return Hash(uint32(f1&freqMask)<<22 | uint32(f2&freqMask)<<12 | uint32(dt&deltaMask))
}

// Unpack reverses pack, mostly useful for debugging and tests.
func Unpack(h Hash) (f1, f2, dt int) {
	v := uint32(h)
	f1 = int((v >> 22) & freqMask)
	f2 = int((v >> 12) & freqMask)
	dt = int(v & deltaMask)
	return
}

// Generate performs the fan-out pairing described in the specification:
// for each anchor peak, pair it with up to FanOut subsequent peaks whose
// time delta falls in [DtMin, DtMax]. The input peak list MUST already
// be sorted by (T, F); peaks.Extract guarantees this.
func Generate(pts []peaks.Peak, p config.Params) []Pair {
	n := len(pts)
	out := make([]Pair, 0, n*p.FanOut)

	for i := 0; i < n; i++ {
		anchor := pts[i]
		fanned := 0
		for j := i + 1; j < n && fanned < p.FanOut; j++ {
			target := pts[j]
			dt := target.T - anchor.T
			if dt < p.DtMin {
				continue
			}
			if dt > p.DtMax {
				break // peaks are time-sorted; no later j can satisfy dt<=DtMax
			}
			h := pack(anchor.F, target.F, dt)
			out = append(out, Pair{Hash: h, Offset: anchor.T})
			fanned++
		}
	}
	return out
}
