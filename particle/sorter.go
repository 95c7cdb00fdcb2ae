package particle

import (
	"sort"

	"github.com/gravsim/gravsim/peano"
	"github.com/gravsim/gravsim/workerpool"
)

// ComputeKeys normalizes every particle position into the box
// [origin, origin+size)^3 and recomputes its Peano-Hilbert key. Points that
// land exactly on the upper boundary are nudged in, matching the
// enlarged-box convention that exists precisely to avoid this case.
func (s *Store) ComputeKeys(origin Vec3, size float64) {
	const epsNudge = 1e-15
	for i := 0; i < s.N; i++ {
		x := (s.Pos[i][0] - origin[0]) / size
		y := (s.Pos[i][1] - origin[1]) / size
		z := (s.Pos[i][2] - origin[2]) / size
		x = clampUnit(x, epsNudge)
		y = clampUnit(y, epsNudge)
		z = clampUnit(z, epsNudge)
		s.PeanoKey[i] = peano.EncodeLong(x, y, z)
	}
}

func clampUnit(v, eps float64) float64 {
	if v < 0 {
		return 0
	}
	if v >= 1 {
		return 1 - eps
	}
	return v
}

// SortPermutation returns the index permutation that puts PeanoKey into
// non-decreasing order, computed with a parallel merge sort: the
// key slice is split into nWorkers contiguous partitions, each partition is
// sorted concurrently, and the partitions are merged sequentially.
func (s *Store) SortPermutation(nWorkers int) []int {
	n := s.N
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	if n < 2 || nWorkers < 2 {
		sort.Slice(idx, func(i, j int) bool { return s.PeanoKey[idx[i]].Less(s.PeanoKey[idx[j]]) })
		return idx
	}

	chunks := workerpool.Partition(n, nWorkers)
	pool := workerpool.New(len(chunks))
	pool.ForEachRange(chunks, func(lo, hi int) {
		part := idx[lo:hi]
		sort.Slice(part, func(i, j int) bool { return s.PeanoKey[part[i]].Less(s.PeanoKey[part[j]]) })
	})

	for len(chunks) > 1 {
		merged := make([]int, 0, n)
		var nextChunks []workerpool.Range
		for i := 0; i+1 < len(chunks); i += 2 {
			a, b := chunks[i], chunks[i+1]
			start := len(merged)
			merged = append(merged, mergeByKey(idx[a.Lo:a.Hi], idx[b.Lo:b.Hi], s.PeanoKey)...)
			nextChunks = append(nextChunks, workerpool.Range{Lo: start, Hi: len(merged)})
		}
		if len(chunks)%2 == 1 {
			last := chunks[len(chunks)-1]
			start := len(merged)
			merged = append(merged, idx[last.Lo:last.Hi]...)
			nextChunks = append(nextChunks, workerpool.Range{Lo: start, Hi: len(merged)})
		}
		idx = merged
		chunks = nextChunks
	}
	return idx
}

func mergeByKey(a, b []int, keys []peano.LongKey) []int {
	out := make([]int, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if keys[a[i]].Less(keys[b[j]]) || !keys[b[j]].Less(keys[a[i]]) {
			out = append(out, a[i])
			i++
		} else {
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out
}

// ApplyPermutation rearranges every column in place so that column[i] after
// the call equals column[perm[i]] before, using cycle-following with one
// temporary record per cycle so peak extra memory is independent of
// N. Cycles are disjoint by construction, so distributing them across
// nWorkers goroutines requires no synchronization between workers; each
// column is still touched by exactly one worker at a time per cycle.
func (s *Store) ApplyPermutation(perm []int, nWorkers int) {
	cycles := decomposeCycles(perm)

	pool := workerpool.New(nWorkers)
	pool.ForEachRange(workerpool.Partition(len(cycles), nWorkers), func(lo, hi int) {
		for _, cyc := range cycles[lo:hi] {
			applyCycle(s.Type, cyc)
			applyCycle(s.ID, cyc)
			applyCycle(s.Mass, cyc)
			applyCycle(s.Pos, cyc)
			applyCycle(s.Vel, cyc)
			applyCycle(s.Acc, cyc)
			applyCycle(s.TimeBin, cyc)
			applyCycle(s.ItDriftPos, cyc)
			applyCycle(s.ItKickPos, cyc)
			applyCycle(s.PeanoKey, cyc)
			applyCycle(s.Cost, cyc)
			applyCycle(s.TreeParent, cyc)
		}
	})
}

// decomposeCycles splits a permutation into its disjoint cycles. perm[i] is
// the source slot that should end up at destination slot i.
func decomposeCycles(perm []int) [][]int {
	n := len(perm)
	visited := make([]bool, n)
	var cycles [][]int
	for i := 0; i < n; i++ {
		if visited[i] || perm[i] == i {
			visited[i] = true
			continue
		}
		var cyc []int
		for j := i; !visited[j]; j = perm[j] {
			visited[j] = true
			cyc = append(cyc, j)
		}
		if len(cyc) > 1 {
			cycles = append(cycles, cyc)
		}
	}
	return cycles
}

// applyCycle permutes a single column along one cycle using one temporary
// element, generic over the column's element type.
func applyCycle[T any](col []T, cyc []int) {
	// cyc lists destination slots dest_0, dest_1, ..., dest_{k-1} where
	// perm[dest_i] == dest_{i+1 mod k}: walking it backwards moves each
	// value into its destination using a single spare slot.
	tmp := col[cyc[0]]
	for i := 0; i < len(cyc)-1; i++ {
		col[cyc[i]] = col[cyc[i+1]]
	}
	col[cyc[len(cyc)-1]] = tmp
}

// SortByPeanoKey re-sorts every column into Peano-Hilbert order using
// ComputeKeys' current PeanoKey column. The permutation is not returned;
// TreeParent moves with its particle, since ApplyPermutation treats it as
// just another column.
func (s *Store) SortByPeanoKey(nWorkers int) {
	perm := s.SortPermutation(nWorkers)
	s.ApplyPermutation(perm, nWorkers)
}
