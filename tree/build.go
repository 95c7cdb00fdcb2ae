package tree

import (
	"math"
	"sort"

	"github.com/gravsim/gravsim/domain"
	"github.com/gravsim/gravsim/particle"
	"github.com/gravsim/gravsim/peano"
	"github.com/gravsim/gravsim/workerpool"
)

// DefaultMaxLeaf is L_leaf, the largest particle count a leaf node may
// bundle before it must be split.
const DefaultMaxLeaf = 8

// Config tunes one tree build.
type Config struct {
	// MaxLeaf is L_leaf; zero selects DefaultMaxLeaf.
	MaxLeaf int
	// NodesPerParticle is the per-subtree node-array over-allocation
	// factor (k_n in the expanded spec), matching the original's
	// NODES_PER_PARTICLE constant; zero selects 0.55.
	NodesPerParticle float64
	Workers          int
}

// DefaultConfig returns the original's defaults: an 8-particle leaf bound
// and a 0.55 nodes-per-particle over-allocation factor.
func DefaultConfig() Config {
	return Config{MaxLeaf: DefaultMaxLeaf, NodesPerParticle: 0.55}
}

// Stats accumulates the counters the expanded spec's metrics section
// wires a tree build into: nodes allocated, leaves that bundle more than
// one particle, and leaves forced open by Peano-Hilbert resolution
// exhaustion.
type Stats struct {
	NodesAllocated      int
	LeavesCollapsed     int
	ResolutionExhausted int
}

// Forest is the set of subtrees built for one sync point, one per local
// top node.
type Forest struct {
	Nodes []Node
	// TopStart[i] is the index of top node i's subtree root in Nodes, or
	// -1 for a remote top node (Target < 0) or an empty one, which carry
	// no subtree.
	TopStart []int
	Stats    Stats
}

// SubtreeEnd returns the index one past the last node of the subtree
// rooted at treeStart -- the boundary a walk over that subtree runs
// until, per the expanded spec's walk termination rule.
func (f *Forest) SubtreeEnd(treeStart int) int {
	if f.Nodes[treeStart].IsLeaf() {
		return treeStart + 1
	}
	return treeStart + int(f.Nodes[treeStart].DNext)
}

func tripletAt(key peano.LongKey, level int) uint8 {
	return key.Triplet(peano.LongTriplets - 1 - level)
}

// Build constructs one subtree per local top node under the particle
// store's current Peano-Hilbert order (the domain decomposition and
// particle.SortByPeanoKey must already have run). Every particle's
// TreeParent is written to the tree node that directly owns it.
func Build(store *particle.Store, topNodes []domain.TopNode, cfg Config) *Forest {
	if cfg.MaxLeaf <= 0 {
		cfg.MaxLeaf = DefaultMaxLeaf
	}
	if cfg.NodesPerParticle <= 0 {
		cfg.NodesPerParticle = 0.55
	}

	reserve := make([]int, len(topNodes))
	offsets := make([]int, len(topNodes))
	cursor := 0
	for i, t := range topNodes {
		if t.Target < 0 || t.NPart == 0 {
			continue
		}
		n := int(math.Ceil(float64(t.NPart)*cfg.NodesPerParticle)) + 1
		reserve[i] = n
		offsets[i] = cursor
		cursor += n
	}

	nodes := make([]Node, cursor)
	starts := make([]int, len(topNodes))
	used := make([]int, len(topNodes))
	stats := make([]Stats, len(topNodes))

	pool := workerpool.New(cfg.Workers)
	pool.ForEachRange(workerpool.Partition(len(topNodes), pool.Workers), func(lo, hi int) {
		for i := lo; i < hi; i++ {
			t := topNodes[i]
			if t.Target < 0 || t.NPart == 0 {
				starts[i] = -1
				continue
			}
			start := offsets[i]
			starts[i] = start
			b := &builder{
				nodes:   nodes[start : start+reserve[i]],
				store:   store,
				base:    start,
				maxLeaf: cfg.MaxLeaf,
			}
			b.buildRoot(t)
			used[i] = b.n
			stats[i] = b.stats
		}
	})

	// Every subtree's reserved window is sized by the over-allocation
	// factor, not an exact count, so pack the used prefixes back to back.
	// DNext/DUp are offsets relative to each node's own index, so
	// compaction never touches them; only the absolute TopStart and
	// per-particle TreeParent indices need remapping.
	compacted := make([]Node, 0, cursor)
	var agg Stats
	for i, t := range topNodes {
		if starts[i] < 0 {
			continue
		}
		oldStart, n := starts[i], used[i]
		newStart := len(compacted)
		compacted = append(compacted, nodes[oldStart:oldStart+n]...)
		if newStart != oldStart {
			for p := t.FirstPart; p < t.FirstPart+t.NPart; p++ {
				store.TreeParent[p] += newStart - oldStart
			}
		}
		starts[i] = newStart
		agg.NodesAllocated += n
		agg.LeavesCollapsed += stats[i].LeavesCollapsed
		agg.ResolutionExhausted += stats[i].ResolutionExhausted
	}

	return &Forest{Nodes: compacted, TopStart: starts, Stats: agg}
}

// builder holds the mutable state of a single subtree build: a reserved,
// fixed-length window of the global node array (so node pointers taken
// mid-recursion stay valid), the particle store, and this subtree's base
// offset into that window for TreeParent bookkeeping.
type builder struct {
	nodes   []Node
	store   *particle.Store
	base    int
	maxLeaf int
	n       int
	stats   Stats
}

func (b *builder) alloc() int {
	idx := b.n
	b.n++
	return idx
}

func (b *builder) buildRoot(t domain.TopNode) {
	half := t.Size / 2
	center := t.Pos.Add(particle.Vec3{half, half, half})
	root := b.alloc()
	b.buildRange(root, t.FirstPart, t.FirstPart+t.NPart, t.Level, center, t.Size, true)
	b.nodes[root].DUp = 0
}

// buildRange fills nodes[idx] as the node covering the Peano-Hilbert-
// sorted particle range [lo,hi) at the given level, then appends its
// children (if any) immediately afterward -- every subtree is stored
// depth-first preorder, so each node's DNext (the offset to the node
// immediately past its own subtree) can be read off directly once
// recursion returns, with no separate backward fix-up pass.
//
// Particles already share every triplet up to level (by construction: a
// parent only ever calls this on a contiguous sub-range selected by
// matching triplet), so partitioning by the next triplet is a handful of
// binary searches over the sorted key range rather than a linear scan.
func (b *builder) buildRange(idx, lo, hi, level int, center particle.Vec3, size float64, isTop bool) {
	node := &b.nodes[idx]
	node.Pos = center
	node.Size = size
	node.Bitfield = setBitfield(level, 0, isTop)
	node.NPart = int32(hi - lo)

	exhausted := level >= peano.LongTriplets
	if hi-lo <= b.maxLeaf || exhausted {
		if exhausted && hi-lo > b.maxLeaf {
			b.stats.ResolutionExhausted++
		}
		if hi-lo > 1 {
			b.stats.LeavesCollapsed++
		}
		var mass float64
		var com particle.Vec3
		for p := lo; p < hi; p++ {
			mass += b.store.Mass[p]
			com = com.Add(b.store.Pos[p].Scale(b.store.Mass[p]))
			b.store.TreeParent[p] = b.base + idx
		}
		node.Mass = mass
		if mass > 0 {
			node.COM = com.Scale(1 / mass)
		}
		node.DNext = encodeLeaf(lo)
		return
	}

	keys := b.store.PeanoKey
	childLo := lo
	var mass float64
	var com particle.Vec3
	for child := uint8(0); child < 8; child++ {
		childHi := childLo + sort.Search(hi-childLo, func(k int) bool {
			return tripletAt(keys[childLo+k], level) > child
		})
		if childHi == childLo {
			continue
		}
		childIdx := b.alloc()
		b.nodes[childIdx].DUp = int32(childIdx - idx)

		childSize := size / 2
		sign := octantSign(child)
		childCenter := particle.Vec3{
			center[0] + sign[0]*childSize/2,
			center[1] + sign[1]*childSize/2,
			center[2] + sign[2]*childSize/2,
		}
		b.buildRange(childIdx, childLo, childHi, level+1, childCenter, childSize, false)
		b.nodes[childIdx].Bitfield = setBitfield(level+1, child, false)

		mass += b.nodes[childIdx].Mass
		com = com.Add(b.nodes[childIdx].COM.Scale(b.nodes[childIdx].Mass))
		childLo = childHi
	}
	node.Mass = mass
	if mass > 0 {
		node.COM = com.Scale(1 / mass)
	}
	node.DNext = int32(b.n - idx)
}

// octantSign maps a 3-bit child index to the +-1 sign of each axis
// offset from its parent's center, bit 0 -> x, bit 1 -> y, bit 2 -> z.
func octantSign(child uint8) particle.Vec3 {
	sign := func(bit uint8) float64 {
		if child&bit != 0 {
			return 1
		}
		return -1
	}
	return particle.Vec3{sign(1), sign(2), sign(4)}
}
