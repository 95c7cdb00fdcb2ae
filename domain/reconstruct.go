package domain

import "github.com/gravsim/gravsim/peano"

// reconstruct rebuilds a full tiling of the Peano-Hilbert curve from the
// bunches a previous decomposition left behind. A decomposition only
// records the leaves that were ever visited; between sync points some
// of those leaves get consumed into finer bunches by the next refine
// loop and leave gaps elsewhere on the curve. reconstruct walks every
// adjacent pair of previous bunches and synthesizes whatever siblings
// are missing between them, so the returned list tiles [0, MaxShortKey]
// exactly with no gap or overlap, ready to be handed to the refine loop
// as its starting point.
//
// Ported from the original decomposition's bunch-list reset: for each
// adjacent pair (a, b), find the shallowest level where their paths
// diverge, fill the missing siblings along a's path down to that level,
// fill the missing siblings at the divergence level itself, then fill
// the missing siblings along b's path back down from that level.
func reconstruct(prev []Bunch) []Bunch {
	if len(prev) == 0 {
		return []Bunch{{Key: peano.MaxShortKey, Level: 0, Target: -1}}
	}

	out := make([]Bunch, 0, len(prev)*2)
	out = append(out, fillGap(Bunch{Key: 0, Level: 0, Target: -1}, prev[0])...)
	out = append(out, resetTransient(prev[0]))

	for i := 0; i+1 < len(prev); i++ {
		a, b := prev[i], prev[i+1]
		out = append(out, fillGap(a, b)...)
		out = append(out, resetTransient(b))
	}

	if prev[len(prev)-1].Key != peano.MaxShortKey {
		last := prev[len(prev)-1]
		out = append(out, fillGap(last, Bunch{Key: peano.MaxShortKey, Level: 0})...)
	}

	sortBunchesByKey(out)
	return out
}

// resetTransient clears the per-iteration accumulators on a bunch
// carried over from the previous decomposition, keeping only its
// identity (Key, Level) and assignment (Target).
func resetTransient(b Bunch) Bunch {
	return Bunch{Key: b.Key, Level: b.Level, Target: b.Target}
}

// fillGap returns the synthetic sibling bunches needed to tile the key
// range strictly between a and b.
func fillGap(a, b Bunch) []Bunch {
	top := 1
	for top <= a.Level && top <= b.Level && triplet(a.Key, top) == triplet(b.Key, top) {
		top++
	}

	var filled []Bunch

	// Fill upwards: siblings of a's path past a's own branch, for every
	// level from a's own depth back up to just past the divergence.
	// childTemplate re-derives the shared ancestor prefix from a.Key
	// itself, so no separate prefix needs computing here.
	for j := a.Level; j > top; j-- {
		own := triplet(a.Key, j)
		for v := own + 1; v <= 7; v++ {
			filled = append(filled, Bunch{
				Key:    childTemplate(a.Key, j-1, v),
				Level:  j,
				Target: defaultFillTarget(a, b),
			})
		}
	}

	// Fill at the divergence level itself, between a's and b's branch. A
	// level-0 bound (the start or end of the curve) leaves that side of
	// the level open, so the fill runs to the first or last octant.
	if top <= a.Level || top <= b.Level {
		lo, hi, parent := uint8(0), uint8(8), b.Key
		if top <= a.Level {
			lo, parent = triplet(a.Key, top)+1, a.Key
		}
		if top <= b.Level {
			hi = triplet(b.Key, top)
		}
		for v := lo; v < hi; v++ {
			filled = append(filled, Bunch{
				Key:    childTemplate(parent, top-1, v),
				Level:  top,
				Target: defaultFillTarget(a, b),
			})
		}
	}

	// Fill downwards: siblings of b's path before b's own branch, for
	// every level from just past the divergence down to b's own depth.
	for j := top + 1; j <= b.Level; j++ {
		own := triplet(b.Key, j)
		for v := uint8(0); v < own; v++ {
			filled = append(filled, Bunch{
				Key:    childTemplate(b.Key, j-1, v),
				Level:  j,
				Target: defaultFillTarget(a, b),
			})
		}
	}

	return filled
}

// defaultFillTarget assigns a newly synthesized gap bunch to whichever
// of its two bracketing bunches already belongs to a local rank,
// preferring a. A gap bunch inherits no particles of its own until the
// next count pass runs, so its Target is only a placeholder until then.
func defaultFillTarget(a, b Bunch) int {
	if a.Target >= 0 {
		return a.Target
	}
	return b.Target
}
