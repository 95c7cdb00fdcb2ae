package timeline

import (
	"math"
	"testing"

	"github.com/gravsim/gravsim/particle"
)

func TestSystemStepRespectsTrailingZeros(t *testing.T) {
	// current = 12 (0b1100) has two trailing zero bits, so the step
	// can be at most 4 regardless of a looser binMin bound.
	step := SystemStep(12, 1<<20, 10)
	if step != 4 {
		t.Fatalf("SystemStep = %d, want 4", step)
	}
}

func TestSystemStepBoundedByEnd(t *testing.T) {
	step := SystemStep(0, 100, 10)
	if step != 100 {
		t.Fatalf("SystemStep = %d, want 100 (end-current bound)", step)
	}
}

func TestAssignBinNeverExceedsFloor(t *testing.T) {
	if got := AssignBin(2, 5, 3); got != 2 {
		t.Fatalf("AssignBin(2,5,3) = %d, want 2 (binWant wins)", got)
	}
	if got := AssignBin(8, 5, 3); got != 5 {
		t.Fatalf("AssignBin(8,5,3) = %d, want 5 (floor wins)", got)
	}
}

func TestBinWantZeroAccelIsCoarsest(t *testing.T) {
	if got := BinWant(0, 0.01, 0.1, 0, 1<<30); got != Bins-1 {
		t.Fatalf("BinWant with zero accel = %d, want coarsest bin %d", got, Bins-1)
	}
}

func TestBinWantMonotonicWithAcceleration(t *testing.T) {
	small := BinWant(1e-6, 0.01, 0.1, 0, 1<<30)
	large := BinWant(1e6, 0.01, 0.1, 0, 1<<30)
	if large >= small {
		t.Fatalf("expected stronger acceleration to demand a finer (smaller) bin: small=%d large=%d", small, large)
	}
}

func TestStepMaxPhysNewtonian(t *testing.T) {
	c := NewClock(false)
	c.SetPhysicalRange(0.5, 2.5)
	if got := c.StepMaxPhys(); got != 2 {
		t.Fatalf("StepMaxPhys() = %v, want 2 (PhysEnd-PhysBegin)", got)
	}
}

func TestStepMaxPhysComoving(t *testing.T) {
	c := NewClock(true)
	c.SetPhysicalRange(0.1, 1.0)
	want := math.Log(1.0) - math.Log(0.1)
	if got := c.StepMaxPhys(); math.Abs(got-want) > 1e-12 {
		t.Fatalf("StepMaxPhys() = %v, want %v (log span)", got, want)
	}
}

func TestMaxActiveBinTrailingZeros(t *testing.T) {
	if got := MaxActiveBin(8); got != 3 {
		t.Fatalf("MaxActiveBin(8) = %d, want 3", got)
	}
	if got := MaxActiveBin(0); got != Bins-1 {
		t.Fatalf("MaxActiveBin(0) = %d, want %d", got, Bins-1)
	}
}

func TestActiveSetMembership(t *testing.T) {
	s := particle.New(5)
	s.TimeBin = []int{0, 2, 5, 1, 9}
	as := BuildActiveSet(s, 2)

	want := map[int]bool{0: true, 1: true, 2: false, 3: true, 4: false}
	for i, expect := range want {
		if as.Contains(i) != expect {
			t.Fatalf("Contains(%d) = %v, want %v", i, as.Contains(i), expect)
		}
	}
	if as.Count() != 3 {
		t.Fatalf("Count() = %d, want 3", as.Count())
	}
	idx := as.Indices()
	if len(idx) != 3 {
		t.Fatalf("Indices() length = %d, want 3", len(idx))
	}
}

func TestPhysicalTimeNewtonianLinear(t *testing.T) {
	c := NewClock(false)
	c.SetPhysicalRange(10, 20)
	if got := c.PhysicalTime(c.Begin); got != 10 {
		t.Fatalf("PhysicalTime(Begin) = %v, want 10", got)
	}
	if got := c.PhysicalTime(c.End); math.Abs(got-20) > 1e-9 {
		t.Fatalf("PhysicalTime(End) = %v, want 20", got)
	}
	mid := c.Begin + (c.End-c.Begin)/2
	if got := c.PhysicalTime(mid); math.Abs(got-15) > 1e-6 {
		t.Fatalf("PhysicalTime(mid) = %v, want ~15", got)
	}
}

func TestPhysicalTimeComovingExponential(t *testing.T) {
	c := NewClock(true)
	c.SetPhysicalRange(0.5, 1.0)
	if got := c.PhysicalTime(c.Begin); math.Abs(got-0.5) > 1e-9 {
		t.Fatalf("PhysicalTime(Begin) = %v, want 0.5", got)
	}
	if got := c.PhysicalTime(c.End); math.Abs(got-1.0) > 1e-6 {
		t.Fatalf("PhysicalTime(End) = %v, want 1.0", got)
	}
}

func TestClockAtSyncPointAndAdvance(t *testing.T) {
	c := NewClock(false)
	if !c.AtSyncPoint() {
		t.Fatal("fresh clock should start at its own sync point")
	}
	c.AdvanceSyncPoint(4)
	if c.NextSyncPoint != 16 {
		t.Fatalf("NextSyncPoint = %d, want 16", c.NextSyncPoint)
	}
	if c.AtSyncPoint() {
		t.Fatal("current should no longer equal the advanced sync point")
	}
}
