package gravity

import (
	"math"
	"sync/atomic"

	"github.com/gravsim/gravsim/domain"
	"github.com/gravsim/gravsim/particle"
	"github.com/gravsim/gravsim/timeline"
	"github.com/gravsim/gravsim/tree"
	"github.com/gravsim/gravsim/workerpool"
)

// insideFactor is the fraction of a node's size used by both the
// close-without-descent box test on top nodes and the "is the particle
// geometrically inside this node" descend-forcing test inside a
// subtree, matching the original's 0.6 constant in both places.
const insideFactor = 0.6

// Config tunes one tree walk.
type Config struct {
	G float64

	// ThetaBH is theta_BH^2 (Tree_Open_Param_BH), consumed directly by
	// BarnesHutOpen.
	ThetaBH float64
	// ThetaRel is theta_rel (Tree_Open_Param_Rel).
	ThetaRel float64

	// UseRelative selects the Springel relative opening criterion over
	// Barnes-Hut; false on the first step, when no particle has a prior
	// acceleration to drive it.
	UseRelative bool

	// Softening holds Grav_Softening[type], the per-species Plummer-
	// equivalent softening length.
	Softening [particle.NumTypes]float64

	// MaxLeafDirect is the top-node particle-count threshold below which
	// a top node is enumerated as direct particle-particle interactions
	// rather than descended into its subtree (L_leaf in the expanded
	// spec, default 8).
	MaxLeafDirect int

	Workers int
}

// DefaultConfig returns G=1 and the original's default opening and leaf
// thresholds; callers still must set Softening and ThetaBH/ThetaRel from
// the resolved parameter file.
func DefaultConfig() Config {
	return Config{G: 1, ThetaBH: 0.3 * 0.3, ThetaRel: 0.005, MaxLeafDirect: tree.DefaultMaxLeaf}
}

// Result summarizes one walk's side effects that are not per-particle
// accelerations.
type Result struct {
	// ExportedRemote counts particle-export events to a remote top
	// node's owning rank. The reduced, single-rank implementation never
	// actually transfers anything; this is a no-op stub that still
	// counts what a multi-rank run would have exported, so the metric
	// is meaningful even though the RPC itself is absent (open question
	// resolution: single-rank behavior is complete, the cross-rank
	// protocol is not implemented).
	ExportedRemote int64
}

// Walk computes the softened gravitational acceleration of every active
// particle by traversing the top-node set and, for top nodes that are
// neither closed outright nor small enough to enumerate directly, the
// subtree the tree package built for it. Potential, when non-nil, must
// be sized to store.N and receives each active particle's potential;
// nil skips the (optional) potential accumulation entirely.
func Walk(store *particle.Store, active *timeline.ActiveSet, topNodes []domain.TopNode, forest *tree.Forest, cfg Config, potential []float64) Result {
	if cfg.MaxLeafDirect <= 0 {
		cfg.MaxLeafDirect = tree.DefaultMaxLeaf
	}

	indices := active.Indices()
	var exported int64

	pool := workerpool.New(cfg.Workers)
	pool.ForEachIndex(len(indices), func(lo, hi int) {
		var localExported int64
		for k := lo; k < hi; k++ {
			i := indices[k]
			acc, pot, n := walkOne(store, i, topNodes, forest, cfg)
			store.Acc[i] = acc
			if potential != nil {
				potential[i] = pot
			}
			localExported += n
		}
		atomic.AddInt64(&exported, localExported)
	})

	return Result{ExportedRemote: exported}
}

func walkOne(store *particle.Store, i int, topNodes []domain.TopNode, forest *tree.Forest, cfg Config) (acc particle.Vec3, pot float64, exported int64) {
	prevMag := math.Sqrt(store.Acc[i].Norm2())
	iEps := cfg.Softening[store.Type[i]]

	for ti := range topNodes {
		top := &topNodes[ti]
		if top.NPart == 0 {
			continue
		}

		center := top.Pos.Add(particle.Vec3{top.Size / 2, top.Size / 2, top.Size / 2})
		if outsideBox(store.Pos[i], center, top.Size) {
			drCOM := store.Pos[i].Sub(top.COM)
			r2 := drCOM.Norm2()
			if cfg.open(top.Mass, top.Size*top.Size, r2, prevMag) {
				r := math.Sqrt(r2)
				Interact(cfg.G, top.Mass, drCOM, r, iEps, (*[3]float64)(&acc))
				pot -= cfg.G * top.Mass * Potential(r, iEps)
				continue
			}
		}

		if top.NPart <= cfg.MaxLeafDirect {
			interactDirect(store, i, top.FirstPart, top.FirstPart+top.NPart, iEps, cfg, &acc, &pot)
			continue
		}

		if top.Target < 0 {
			exported++
			continue
		}

		start := forest.TopStart[ti]
		if start < 0 {
			continue
		}
		walkSubtree(store, i, forest, start, iEps, prevMag, cfg, &acc, &pot)
	}
	return acc, pot, exported
}

func walkSubtree(store *particle.Store, i int, forest *tree.Forest, start int, iEps, prevMag float64, cfg Config, acc *particle.Vec3, pot *float64) {
	end := forest.SubtreeEnd(start)
	for node := start; node < end; {
		n := &forest.Nodes[node]
		if n.IsLeaf() {
			first := n.LeafFirst()
			interactDirect(store, i, first, first+int(n.NPart), iEps, cfg, acc, pot)
			node++
			continue
		}

		dr := store.Pos[i].Sub(n.COM)
		r2 := dr.Norm2()
		if cfg.open(n.Mass, n.Size*n.Size, r2, prevMag) && !insideNode(store.Pos[i], n.COM, n.Size) {
			r := math.Sqrt(r2)
			Interact(cfg.G, n.Mass, dr, r, iEps, (*[3]float64)(acc))
			*pot -= cfg.G * n.Mass * Potential(r, iEps)
			node += int(n.DNext)
			continue
		}

		node++
	}
}

// interactDirect enumerates particles [lo,hi), skipping i itself, as
// direct particle-particle interactions. Each pair's softening is the
// larger of the two particles' own species softenings, not a single
// value resolved up front, since a leaf or small top node can mix
// species.
func interactDirect(store *particle.Store, i, lo, hi int, iEps float64, cfg Config, acc *particle.Vec3, pot *float64) {
	for p := lo; p < hi; p++ {
		if p == i {
			continue
		}
		dr := store.Pos[i].Sub(store.Pos[p])
		r := math.Sqrt(dr.Norm2())
		eps := Softening(iEps, cfg.Softening[store.Type[p]])
		Interact(cfg.G, store.Mass[p], dr, r, eps, (*[3]float64)(acc))
		*pot -= cfg.G * store.Mass[p] * Potential(r, eps)
	}
}

func (cfg Config) open(mass, size2, r2, prevMag float64) bool {
	if cfg.UseRelative {
		return RelativeOpen(mass, size2, r2, prevMag, cfg.G, cfg.ThetaRel)
	}
	return BarnesHutOpen(size2, r2, cfg.ThetaBH)
}

// outsideBox tests a particle against a top node's true bounding-box
// center, which domain.BuildTopNodes derives directly from the
// particles it contains (see domain/topnode.go) rather than from any
// Hilbert/Morton child labeling, so center here is exact geometry.
func outsideBox(pos, center particle.Vec3, size float64) bool {
	for axis := 0; axis < 3; axis++ {
		if abs(pos[axis]-center[axis]) < insideFactor*size {
			return false
		}
	}
	return true
}

// insideNode tests a particle against a subtree node's center of mass,
// not its geometric Pos (see the Node.Pos doc comment): COM is exact,
// Pos is only the recursive build's size-halving bookkeeping and is not
// reliably the octant the node's particles actually occupy.
func insideNode(pos, com particle.Vec3, size float64) bool {
	for axis := 0; axis < 3; axis++ {
		if abs(pos[axis]-com[axis]) < insideFactor*size {
			return true
		}
	}
	return false
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
