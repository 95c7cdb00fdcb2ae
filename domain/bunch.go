// Package domain implements the Peano-Hilbert bunch decomposition that
// splits a sorted particle store into contiguous key ranges ("bunches")
// and assigns each one to an owning rank, balancing both particle count
// and accumulated interaction cost across ranks.
//
// The decomposition runs in two stages: an iterative refine loop that
// starts from a single bunch covering the whole box and repeatedly
// splits overloaded leaves into their eight children, and a conversion
// step that turns the final bunch list into TopNode records the tree
// builder consumes. The two are distinct struct types with an explicit
// conversion function between them, not a shared memory layout
// reinterpreted in place.
package domain

import (
	"github.com/gravsim/gravsim/particle"
	"github.com/gravsim/gravsim/peano"
)

// Bunch is one contiguous Peano-Hilbert key range during decomposition.
// Key holds the largest key inside the bunch's range: its top Level
// triplets are the bunch's fixed path from the root, and every triplet
// below that is forced to all-ones, so the bunch's range is exactly
// (prefixOf(Key, Level) - 1, Key] on the curve. Level counts how many
// triplets have been fixed (0 is the single root bunch spanning the
// whole box, peano.ShortTriplets is the finest possible bunch).
type Bunch struct {
	Key   peano.ShortKey
	Level int

	FirstPart int
	NPart     int
	Cost      float64

	// Target is the owning rank, or -(rank+1) for a bunch whose
	// particles are not local, mirroring the sign-encoded convention
	// the original decomposition used for remote ownership.
	Target int

	// Modify marks a bunch for splitting into its eight children at the
	// start of the next refine iteration.
	Modify bool
}

// IsLocal reports whether Target names a rank this process owns.
func (b Bunch) IsLocal(rank int) bool { return b.Target == rank }

// TopNode is a finished bunch, enriched with the geometric and mass
// summary the tree builder needs to treat a remote/foreign bunch as a
// single pseudo-particle. It is produced once per decomposition by
// BuildTopNodes and never mutated by the refine loop itself.
type TopNode struct {
	Key   peano.ShortKey
	Level int

	FirstPart int
	NPart     int
	Cost      float64
	Target    int

	Pos  particle.Vec3
	Size float64

	COM  particle.Vec3
	Mass float64

	// TreeStart is the index of this top node's root in the tree node
	// arena. BuildTopNodes sets it to -1 and tree.Build does not write it
	// back; the built index is held in tree.Forest.TopStart. It is
	// its own field, not a reinterpretation of Target or FirstPart, so
	// that a tagged union never has to be unpacked by the reader.
	TreeStart int
}

// childTemplate returns the largest-key value for the given octant
// child of a bunch currently at parentLevel: every triplet already
// fixed in parent is preserved, the new (parentLevel+1)'th triplet is
// set to child, and every triplet deeper than that is set to all-ones
// so the result is the maximal key in the child's range.
func childTemplate(parent peano.ShortKey, parentLevel int, child uint8) peano.ShortKey {
	childLevel := parentLevel + 1
	shift := uint(3 * (peano.ShortTriplets - childLevel))
	prefix := prefixOf(parent, parentLevel)
	lowOnes := (peano.ShortKey(1) << shift) - 1
	return prefix | (peano.ShortKey(child) << shift) | lowOnes
}

// triplet extracts the 3-bit octant index a key holds at the given
// 1-based refinement level (level 1 is the shallowest fixed triplet).
func triplet(key peano.ShortKey, level int) uint8 {
	return key.Triplet(peano.ShortTriplets - level)
}

// prefixOf masks key down to its top `level` triplets, zeroing
// everything deeper: the smallest key reachable below a bunch whose
// path is fixed through level. level 0 yields zero (the root's lower
// bound).
func prefixOf(key peano.ShortKey, level int) peano.ShortKey {
	if level <= 0 {
		return 0
	}
	shift := uint(3 * (peano.ShortTriplets - level))
	return key &^ ((peano.ShortKey(1) << shift) - 1)
}
