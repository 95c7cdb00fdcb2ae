// Package tree builds the oct-tree of mass used by the gravity walker.
//
// One subtree is built per local top node, under the Peano-Hilbert order
// the particle store already carries (domain decomposition runs first and
// leaves particles sorted). Each node is stored in a single flat backing
// array, addressed by arena-style signed offsets rather than pointers:
// DNext is the offset to the next node to visit when this one is not
// descended into (positive; on a subtree root it is the subtree's node
// count, so the root's index plus its DNext marks the subtree's end), or a
// leaf encoding (negative, pointing at the particle range the leaf
// bundles). No node carries a zero DNext. DUp is the offset back to this
// node's parent.
//
// The original decomposition's build_subtree grows the tree incrementally,
// particle by particle, fixing up DNext with a backward per-level-stack
// pass once every particle has been placed (original_source/src/Gravity/
// tree_build.c). That file does not compile as written (undefined
// identifiers `level`, `offset`, `dz`, a Node_Set call with the wrong
// argument order) and is closer to a design sketch than working code, so
// this package builds the same flat, offset-encoded structure a different
// way: particles are already Peano-Hilbert sorted, so a contiguous range
// sharing a triplet prefix splits into at most eight contiguous
// sub-ranges by the next triplet, found with binary search rather than a
// linear on-the-fly walk. The two approaches produce the same tree shape
// (same triplet-prefix grouping, same leaf bound, same bitfield/offset
// encoding); building it by recursive partition sidesteps the original's
// incremental bookkeeping bugs entirely.
package tree

import "github.com/gravsim/gravsim/particle"

const (
	bitfieldLevelMask    = 0x3F // bits 0-5
	bitfieldTripletMask  = 0x7 << 6
	bitfieldTripletShift = 6
	bitfieldTopBit       = 1 << 9
)

// Node is one element of a subtree's flat backing array.
type Node struct {
	// DNext is positive (offset to the next node outside this one's own
	// subtree; on the subtree root, the subtree's node count) or negative
	// (this is a leaf; -DNext-1 is the index of its first particle in the
	// Peano-Hilbert-sorted store). It is never zero.
	DNext int32
	// DUp is the offset back to the parent node; zero at the subtree root.
	DUp int32

	NPart int32
	Mass  float64
	COM   particle.Vec3

	// Pos is the node's geometric center, halved down from the parent on
	// each recursion step. Unlike the original, which re-derives a node's
	// center from Domain.Origin and its encoded level against a single
	// global box, this package's top nodes carry their own
	// particle-bounding-box geometry (see domain/topnode.go) -- a
	// deliberate earlier design choice to avoid needing a Hilbert-curve
	// decoder anywhere in the system. Every subtree is consequently
	// scaled to its own top node's cell rather than a shared global grid,
	// so Size must be carried alongside Pos rather than inferred from a
	// global root size and the bitfield level.
	//
	// octantSign picks a child's offset from the parent's Pos by reading
	// the child's Peano-Hilbert triplet as if it were a Morton (x/y/z
	// sign-bit) index. The two orderings only agree for some rotations of
	// the curve, so Pos lands in a consistent octant -- the recursive
	// halving never puts a child outside its parent's cell -- but not
	// reliably the *same* octant the Hilbert-sorted particles actually
	// occupy. COM has no such issue: it is summed directly from particle
	// positions and carries no Hilbert/Morton labeling at all. Any
	// geometric "is this particle inside the node" test must compare
	// against COM, not Pos; Pos exists only to drive the recursive size
	// halving during the build.
	Size float64

	// Bitfield packs Level (bits 0-5), the node's own Peano-Hilbert
	// triplet (bits 6-8), and IsTop (bit 9) into one word, matching the
	// original's cache-footprint-motivated bit-packing (kept packed
	// rather than split into separate fields, per the expanded spec's
	// explicit instruction).
	Bitfield uint32
}

// Level returns the node's depth in Peano-Hilbert triplets from the box
// root (bits 0-5 of Bitfield).
func (n *Node) Level() int { return int(n.Bitfield & bitfieldLevelMask) }

// Triplet returns the 3-bit octant index this node occupies under its
// parent (bits 6-8 of Bitfield).
func (n *Node) Triplet() uint8 {
	return uint8((n.Bitfield & bitfieldTripletMask) >> bitfieldTripletShift)
}

// IsTop reports whether this node is a subtree root attached directly to
// a top node (bit 9 of Bitfield).
func (n *Node) IsTop() bool { return n.Bitfield&bitfieldTopBit != 0 }

// IsLeaf reports whether DNext encodes a leaf (negative).
func (n *Node) IsLeaf() bool { return n.DNext < 0 }

// LeafFirst returns the index of the first particle a leaf node bundles.
// Only meaningful when IsLeaf reports true.
func (n *Node) LeafFirst() int { return int(-n.DNext - 1) }

func setBitfield(level int, triplet uint8, isTop bool) uint32 {
	b := uint32(level) & bitfieldLevelMask
	b |= (uint32(triplet) << bitfieldTripletShift) & bitfieldTripletMask
	if isTop {
		b |= bitfieldTopBit
	}
	return b
}

func encodeLeaf(first int) int32 { return int32(-first - 1) }
