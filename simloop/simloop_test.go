package simloop

import (
	"math"
	"testing"

	"github.com/gravsim/gravsim/particle"
	"github.com/gravsim/gravsim/simcontext"
	"github.com/gravsim/gravsim/timeline"
)

// twoBody builds a symmetric two-particle store in mutual circular-ish
// orbit: equal masses, opposite positions and velocities, so the system's
// total momentum starts at zero and BoundingCube never degenerates to a
// point.
func twoBody() *particle.Store {
	store := particle.New(2)
	store.Type[0], store.Type[1] = particle.TypeHalo, particle.TypeHalo
	store.ID[0], store.ID[1] = 1, 2
	store.Mass[0], store.Mass[1] = 1, 1
	store.Pos[0] = particle.Vec3{1, 0, 0}
	store.Pos[1] = particle.Vec3{-1, 0, 0}
	store.Vel[0] = particle.Vec3{0, 0.5, 0}
	store.Vel[1] = particle.Vec3{0, -0.5, 0}
	return store
}

func testConfig() simcontext.Config {
	cfg := simcontext.DefaultConfig()
	cfg.InputFile = "ic.dat"
	cfg.OutputFileBase = "snap"
	cfg.NumOutputFiles = 1
	cfg.Workers = 1
	cfg.TimeBegin = 0
	cfg.TimeEnd = 1
	for t := range cfg.Softening {
		cfg.Softening[t] = 0.05
	}
	return cfg
}

func TestNewBuildsFirstStepContext(t *testing.T) {
	store := twoBody()
	e := New(testConfig(), store, 1)

	if !e.Ctx.Sig.FirstStep {
		t.Fatal("a freshly built Engine should start at FirstStep")
	}
	if e.Ctx.Sim.NTotal != 2 {
		t.Fatalf("Sim.NTotal = %d, want 2", e.Ctx.Sim.NTotal)
	}
	if got := e.Clock.PhysicalTime(e.Clock.Begin); got != 0 {
		t.Fatalf("PhysicalTime(Begin) = %v, want 0", got)
	}
	if got := e.Clock.PhysicalTime(e.Clock.End); math.Abs(got-1) > 1e-9 {
		t.Fatalf("PhysicalTime(End) = %v, want 1", got)
	}
}

func TestStepAdvancesTimelineAndAppliesForces(t *testing.T) {
	store := twoBody()
	e := New(testConfig(), store, 1)

	for iter := 0; iter < 3; iter++ {
		before := e.Clock.Current
		done, err := e.Step()
		if err != nil {
			t.Fatalf("Step %d: %v", iter, err)
		}
		if e.Clock.Current <= before && !done {
			t.Fatalf("Step %d: clock.Current did not advance (%d -> %d)", iter, before, e.Clock.Current)
		}
		if e.Ctx.Sig.FirstStep {
			t.Fatalf("Step %d: FirstStep should clear after the first call", iter)
		}
		if done {
			break
		}
	}

	if e.Ctx.Iteration == 0 {
		t.Fatal("Iteration should have advanced at least once")
	}

	// Two equal, opposite masses pulling on each other must accelerate
	// toward one another; the attractive force should have bent each
	// particle's velocity back toward the other.
	if store.Acc[0][0] >= 0 {
		t.Fatalf("particle 0 should accelerate toward particle 1 (negative x), got %v", store.Acc[0])
	}
	if store.Acc[1][0] <= 0 {
		t.Fatalf("particle 1 should accelerate toward particle 0 (positive x), got %v", store.Acc[1])
	}
}

func TestRunStopsAtTimelineEnd(t *testing.T) {
	store := twoBody()
	cfg := testConfig()
	// A single coarse bin and a generous timestep ceiling keep this run
	// short: SystemStep can take the full remaining span in one sync
	// iteration once every particle settles on the coarsest bin.
	cfg.MaxTimestep = 10
	e := New(cfg, store, 1)

	snaps := 0
	err := e.Run(func(*Engine) error {
		snaps++
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !e.Ctx.Sig.Endrun {
		t.Fatal("Sig.Endrun should be set once Run returns")
	}
	if e.Clock.Current < e.Clock.End {
		t.Fatalf("Clock.Current = %d, want >= %d", e.Clock.Current, e.Clock.End)
	}
	if snaps == 0 {
		t.Fatal("expected at least one snapshot hook call (the final iteration always syncs)")
	}
}

func TestAssignBinsUsesPhysicalStepMax(t *testing.T) {
	store := twoBody()
	cfg := testConfig()
	e := New(cfg, store, 1)
	// With maxActiveBin at the coarsest bin, AssignBin's cap (see
	// timeline.AssignBin) lets the bin assignBins computes from BinWant
	// through unchanged, so it is directly observable.
	e.maxActiveBin = timeline.Bins - 1
	store.Acc[0] = particle.Vec3{1, 0, 0}
	store.Acc[1] = particle.Vec3{-1, 0, 0}

	e.assignBins()

	for i := 0; i < store.N; i++ {
		if store.TimeBin[i] == 0 {
			t.Fatalf("particle %d: TimeBin clamped to the finest bin for a modest acceleration -- "+
				"assignBins is likely dividing dt by the integer timeline's own span instead of "+
				"the physical one", i)
		}
	}
}

func TestEngineSysTracksIterationAndProgress(t *testing.T) {
	store := twoBody()
	cfg := testConfig()
	e := New(cfg, store, 1)

	if got := e.Sys.ActiveWorkers(); got != cfg.Workers {
		t.Fatalf("Sys.ActiveWorkers() = %d, want %d", got, cfg.Workers)
	}
	if err := e.Run(func(*Engine) error { return nil }); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := e.Sys.SyncIteration(); got != uint64(e.Ctx.Iteration) {
		t.Fatalf("Sys.SyncIteration() = %d, want %d", got, e.Ctx.Iteration)
	}
	if got := e.Sys.TimelineProgress(); got != 1.0 {
		t.Fatalf("Sys.TimelineProgress() = %v, want 1.0 after the run reaches Clock.End", got)
	}
}

func TestCheckMomentumFeedsEWMA(t *testing.T) {
	store := twoBody()
	e := New(testConfig(), store, 1)

	active := timeline.BuildActiveSet(store, timeline.Bins-1)
	e.checkMomentum(active)
	if e.prevMomentum == (particle.Vec3{}) {
		// Equal-and-opposite velocities start this at exactly zero,
		// which is a valid and expected reading -- just confirm the
		// call didn't panic and left a deterministic zero rather than
		// NaN from a divide against the drift floor.
		for _, c := range e.prevMomentum {
			if math.IsNaN(c) {
				t.Fatal("prevMomentum contains NaN")
			}
		}
	}
}
