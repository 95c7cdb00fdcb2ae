// Package particle implements the columnar particle store and the
// Peano-Hilbert permutation sorter.
//
// The store follows the teacher's structure-of-arrays idiom (see the
// teacher's core/rawdb freezer tables, which store one column per field in
// a contiguous array rather than one struct per record): every attribute is
// its own slice indexed by particle slot, so a sync-point rebuild can
// re-derive totals (mass, center of mass) with a single linear pass over a
// handful of cache-friendly arrays instead of walking an array of structs.
package particle

import (
	"fmt"

	"github.com/gravsim/gravsim/peano"
)

// Type is the small species enum carried by every particle.
type Type uint8

const (
	TypeGas Type = iota
	TypeHalo
	TypeDisk
	TypeBulge
	TypeStars
	TypeBndry
	NumTypes
)

func (t Type) String() string {
	names := [NumTypes]string{"gas", "halo", "disk", "bulge", "stars", "bndry"}
	if int(t) < len(names) {
		return names[t]
	}
	return fmt.Sprintf("type(%d)", t)
}

// Vec3 is a 3-component real vector. It is stored as a single array element
// per particle (one attribute), not as three separate per-axis
// columns.
type Vec3 [3]float64

// Add returns the component-wise sum of v and w.
func (v Vec3) Add(w Vec3) Vec3 {
	return Vec3{v[0] + w[0], v[1] + w[1], v[2] + w[2]}
}

// Scale returns v scaled by s.
func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{v[0] * s, v[1] * s, v[2] * s}
}

// Sub returns v - w.
func (v Vec3) Sub(w Vec3) Vec3 {
	return Vec3{v[0] - w[0], v[1] - w[1], v[2] - w[2]}
}

// Dot returns the dot product of v and w.
func (v Vec3) Dot(w Vec3) float64 {
	return v[0]*w[0] + v[1]*w[1] + v[2]*w[2]
}

// Norm2 returns the squared Euclidean length of v.
func (v Vec3) Norm2() float64 { return v.Dot(v) }

// Store is the column-major particle array. Every field below is a
// contiguous slice of length N indexed by particle slot; slot i's
// attributes are Type[i], ID[i], Mass[i], and so on. The store owns its
// memory and is mutated only by the step controller, integrator, domain
// sorter, and tree builder.
type Store struct {
	N int

	Type []Type
	ID   []uint64
	Mass []float64

	Pos []Vec3
	Vel []Vec3
	Acc []Vec3

	// TimeBin is in [0, B) where B = 8*sizeof(integer time) -- see
	// timeline.Bins.
	TimeBin []int

	// ItDriftPos and ItKickPos are the integer-timeline positions where
	// Pos and Vel currently sit.
	ItDriftPos []int64
	ItKickPos  []int64

	// PeanoKey is recomputed every sync point from Pos (after normalizing
	// into the current domain box) and drives both the sort and the tree
	// build.
	PeanoKey []peano.LongKey

	// Cost is the workload estimate (interaction count proxy) used by the
	// domain decomposer's load balance and accumulated during the tree
	// walk.
	Cost []float64

	// TreeParent indexes into the tree node array built for the subtree
	// that currently owns this particle.
	TreeParent []int
}

// New allocates a Store with n particle slots, all fields zero-valued.
func New(n int) *Store {
	return &Store{
		N:          n,
		Type:       make([]Type, n),
		ID:         make([]uint64, n),
		Mass:       make([]float64, n),
		Pos:        make([]Vec3, n),
		Vel:        make([]Vec3, n),
		Acc:        make([]Vec3, n),
		TimeBin:    make([]int, n),
		ItDriftPos: make([]int64, n),
		ItKickPos:  make([]int64, n),
		PeanoKey:   make([]peano.LongKey, n),
		Cost:       make([]float64, n),
		TreeParent: make([]int, n),
	}
}

// TotalMass sums Mass over all particles. Re-derivable from the store per
// the columnar invariant; used as a cross-check after domain decomposition
// (testable property, scenario S3).
func (s *Store) TotalMass() float64 {
	var total float64
	for _, m := range s.Mass {
		total += m
	}
	return total
}

// CenterOfMass returns the mass-weighted centroid of all particles.
func (s *Store) CenterOfMass() Vec3 {
	var com Vec3
	total := 0.0
	for i := 0; i < s.N; i++ {
		com = com.Add(s.Pos[i].Scale(s.Mass[i]))
		total += s.Mass[i]
	}
	if total == 0 {
		return Vec3{}
	}
	return com.Scale(1 / total)
}

// TotalMomentum sums Mass[i]*Vel[i] over all particles. Used by the
// momentum-drift probe.
func (s *Store) TotalMomentum() Vec3 {
	var p Vec3
	for i := 0; i < s.N; i++ {
		p = p.Add(s.Vel[i].Scale(s.Mass[i]))
	}
	return p
}

// BoundingCube returns the origin and size of a cube centered on the
// particles' mean position, with an edge twice the largest per-axis
// distance from that mean, enlarged by the given factor to avoid
// Peano-Hilbert rounding at the boundary.
func (s *Store) BoundingCube(enlarge float64) (origin Vec3, size float64) {
	if s.N == 0 {
		return Vec3{}, 1
	}
	maxAbs := 0.0
	var center Vec3
	for i := 0; i < s.N; i++ {
		center = center.Add(s.Pos[i])
	}
	center = center.Scale(1 / float64(s.N))
	for i := 0; i < s.N; i++ {
		d := s.Pos[i].Sub(center)
		for axis := 0; axis < 3; axis++ {
			if a := abs64(d[axis]); a > maxAbs {
				maxAbs = a
			}
		}
	}
	size = enlarge * 2 * maxAbs
	if size <= 0 {
		size = 1
	}
	origin = center.Sub(Vec3{size / 2, size / 2, size / 2})
	return origin, size
}

func abs64(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
