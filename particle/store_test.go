package particle

import (
	"math/rand"
	"sort"
	"testing"
)

func randomStore(n int, seed int64) *Store {
	rng := rand.New(rand.NewSource(seed))
	s := New(n)
	for i := 0; i < n; i++ {
		s.ID[i] = uint64(i)
		s.Mass[i] = 1.0
		s.Pos[i] = Vec3{rng.Float64()*2 - 1, rng.Float64()*2 - 1, rng.Float64()*2 - 1}
	}
	return s
}

// TestSortByPeanoKeyOrders checks testable property 1: after sorting, keys
// are non-decreasing.
func TestSortByPeanoKeyOrders(t *testing.T) {
	s := randomStore(500, 1)
	origin, size := s.BoundingCube(2.05)
	s.ComputeKeys(origin, size)
	s.SortByPeanoKey(4)

	for i := 1; i < s.N; i++ {
		if s.PeanoKey[i].Less(s.PeanoKey[i-1]) {
			t.Fatalf("key[%d] < key[%d]: order violated", i, i-1)
		}
	}
}

// TestSortByPeanoKeyPreservesIdentity verifies every particle (by ID) still
// exists exactly once after the in-place reorder, and that every field
// travels together (no column desync).
func TestSortByPeanoKeyPreservesIdentity(t *testing.T) {
	s := randomStore(200, 2)
	for i := 0; i < s.N; i++ {
		s.Mass[i] = float64(s.ID[i]) * 3.5 // derivable tag to cross-check column coherence
	}
	origin, size := s.BoundingCube(2.05)
	s.ComputeKeys(origin, size)
	s.SortByPeanoKey(3)

	seenIDs := make(map[uint64]bool, s.N)
	for i := 0; i < s.N; i++ {
		if seenIDs[s.ID[i]] {
			t.Fatalf("duplicate ID %d after sort", s.ID[i])
		}
		seenIDs[s.ID[i]] = true
		if s.Mass[i] != float64(s.ID[i])*3.5 {
			t.Fatalf("column desync at slot %d: ID=%d but Mass=%g", i, s.ID[i], s.Mass[i])
		}
	}
	if len(seenIDs) != s.N {
		t.Fatalf("got %d distinct IDs, want %d", len(seenIDs), s.N)
	}
}

func TestSortPermutationMatchesStdlibSort(t *testing.T) {
	s := randomStore(300, 3)
	origin, size := s.BoundingCube(2.05)
	s.ComputeKeys(origin, size)

	got := s.SortPermutation(4)

	want := make([]int, s.N)
	for i := range want {
		want[i] = i
	}
	sort.SliceStable(want, func(i, j int) bool { return s.PeanoKey[want[i]].Less(s.PeanoKey[want[j]]) })

	// Keys at the same rank must be equal even if tie order differs
	// between the two sorts.
	for i := 0; i < s.N; i++ {
		if s.PeanoKey[got[i]].Cmp(s.PeanoKey[want[i]]) != 0 {
			t.Fatalf("rank %d key mismatch: got %v want %v", i, s.PeanoKey[got[i]], s.PeanoKey[want[i]])
		}
	}
}

func TestApplyPermutationIdentityIsNoop(t *testing.T) {
	s := randomStore(50, 4)
	before := append([]Vec3(nil), s.Pos...)
	perm := make([]int, s.N)
	for i := range perm {
		perm[i] = i
	}
	s.ApplyPermutation(perm, 4)
	for i := range before {
		if s.Pos[i] != before[i] {
			t.Fatalf("identity permutation mutated slot %d", i)
		}
	}
}

func TestTotalMassAndMomentum(t *testing.T) {
	s := New(3)
	s.Mass[0], s.Mass[1], s.Mass[2] = 1, 2, 3
	s.Vel[0] = Vec3{1, 0, 0}
	s.Vel[1] = Vec3{0, 1, 0}
	s.Vel[2] = Vec3{0, 0, 1}

	if got := s.TotalMass(); got != 6 {
		t.Fatalf("TotalMass = %g, want 6", got)
	}
	p := s.TotalMomentum()
	want := Vec3{1, 2, 3}
	if p != want {
		t.Fatalf("TotalMomentum = %v, want %v", p, want)
	}
}
