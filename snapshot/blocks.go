package snapshot

import (
	"github.com/bits-and-blooms/bitset"

	"github.com/gravsim/gravsim/particle"
)

// blockLabel is a 4-character block identifier, e.g. "POS ", "VEL ".
type blockLabel string

const (
	labelPos   blockLabel = "POS "
	labelVel   blockLabel = "VEL "
	labelID    blockLabel = "ID  "
	labelMass  blockLabel = "MASS"
	labelTBin  blockLabel = "TBIN"
	labelIDPos blockLabel = "IDPS"
	labelIKPos blockLabel = "IKPS"
)

// typeMask returns the bitset of particle types carried by a block,
// consulting Header.NPart. MASS is special: it only carries types whose
// MassPerType entry is zero (a shared, non-zero mass_per_type means every
// particle of that species has the same mass, so it is omitted from the
// block and restored from the header at read time).
func typeMask(label blockLabel, h Header) *bitset.BitSet {
	mask := bitset.New(uint(particle.NumTypes))
	for t := 0; t < int(particle.NumTypes); t++ {
		if h.NPart[t] == 0 {
			continue
		}
		if label == labelMass && h.MassPerType[t] != 0 {
			continue
		}
		mask.Set(uint(t))
	}
	return mask
}

// blockCount returns how many particle slots a block spans, by summing
// NPart over the types typeMask selects.
func blockCount(label blockLabel, h Header) int {
	mask := typeMask(label, h)
	n := 0
	for t := 0; t < int(particle.NumTypes); t++ {
		if mask.Test(uint(t)) {
			n += int(h.NPart[t])
		}
	}
	return n
}

// allBlocks lists every data block in write order, following the HEAD
// block. TBIN/IDPS/IKPS carry restart-time integration state (spec §6's
// start-flag 1, "resume from restart") that a plain initial-conditions
// file omits; WriteSnapshot writes them only when its restart argument
// is set.
var allBlocks = []blockLabel{labelPos, labelVel, labelID, labelMass, labelTBin, labelIDPos, labelIKPos}
