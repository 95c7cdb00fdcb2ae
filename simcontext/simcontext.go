// Package simcontext replaces the original implementation's global mutable
// state (Sim, Task, Sig, Time, Int_Time) with explicit values threaded
// through phase entry points. Nothing here is a process-level singleton;
// every sync iteration reads and writes one *Context owned by the caller.
package simcontext

import (
	"runtime"

	"github.com/gravsim/gravsim/particle"
)

// Config holds the run's fixed, parameter-file-resolved settings: the
// values that do not change once the run starts, as opposed to Sig/Time
// below which advance every iteration.
type Config struct {
	InputFile      string
	OutputFileBase string
	NumIOTasks     int
	NumOutputFiles int

	// MaxMemSize and BufferSize are MiB ceilings for the particle arena
	// and the per-thread scratch block respectively (memory.c's sizing
	// diagnostics, §3 of the expanded spec).
	MaxMemSize int
	BufferSize int

	RuntimeLimitSeconds int64

	MaxTimestep float64
	MinTimestep float64

	// Softening holds Grav_Softening[type], consumed by gravity.Walk
	// when selecting epsilon for a pair.
	Softening [particle.NumTypes]float64

	TimeIntAccuracy   float64
	TreeOpenParamBH   float64
	TreeOpenParamRel  float64

	// Comoving selects the cosmological integer-timeline conversion
	// (begin*exp(t*step_min)) over the Newtonian one (t*step_min+begin).
	Comoving bool

	TimeBegin float64
	TimeEnd   float64

	// PeriodicBoxSize wraps particle positions back into [0, size) on
	// every axis after a drift when positive; zero disables wrapping for
	// an isolated (non-periodic) system. No Ewald correction is applied
	// either way (spec Non-goals).
	PeriodicBoxSize float64

	Workers int
}

// DefaultConfig returns a Config with GOMAXPROCS workers and the original
// single-rank defaults for the tunables spec §6 does not require every
// parameter file to set.
func DefaultConfig() Config {
	return Config{
		MaxMemSize:       2048,
		BufferSize:       64,
		MaxTimestep:      1,
		MinTimestep:      0,
		TimeIntAccuracy:  0.025,
		TreeOpenParamBH:  0.3 * 0.3,
		TreeOpenParamRel: 0.005,
		TimeBegin:        0,
		TimeEnd:          1,
		Workers:          runtime.GOMAXPROCS(0),
	}
}

// Validate checks the cross-field constraints §7's Configuration error
// kind calls out explicitly: a scratch buffer that does not fit inside
// the arena, and a non-positive output-file count.
func (c Config) Validate() error {
	if c.BufferSize > c.MaxMemSize {
		return Configuration("Buffer_Size", "exceeds Max_Mem_Size")
	}
	if c.NumOutputFiles <= 0 {
		return Configuration("Num_Output_Files", "must be positive")
	}
	if c.MinTimestep > 0 && c.MaxTimestep > 0 && c.MinTimestep > c.MaxTimestep {
		return Configuration("Min_Timestep", "exceeds Max_Timestep")
	}
	return nil
}

// recommendedBufferMultiple is the scratch-buffer-to-thread-block ratio
// the original's memory.c recommended; a configured buffer below this
// multiple of Workers still runs, but logs a Resource warning (§7,
// non-fatal) rather than proceeding silently.
const recommendedBufferMultiple = 4

// BufferWarning returns a non-empty diagnostic when BufferSize is smaller
// than the recommended multiple of the per-thread scratch block, or ""
// when sizing looks adequate. Callers log the message at WARN and keep
// running; this is a Resource warning, not a Configuration error.
func (c Config) BufferWarning() string {
	recommended := recommendedBufferMultiple * c.Workers
	if c.Workers > 0 && c.BufferSize < recommended {
		return "configured Buffer_Size is below the recommended per-thread multiple"
	}
	return ""
}

// Sim holds the run's global invariants, stable once the initial
// conditions are loaded: total particle count, rank/thread topology, box
// size, and total mass. Exposed to collaborators per §6.
type Sim struct {
	NTotal   int
	NRanks   int
	NThreads int

	BoxSide   float64
	TotalMass float64
}

// Sig is the set of per-iteration booleans the step controller and
// engine consult to decide what work a sync iteration performs.
type Sig struct {
	FirstStep        bool
	SyncPoint        bool
	DomainUpdate     bool
	TreeUpdate       bool
	RestartWriteFile bool
	Endrun           bool
}

// Context is the explicit simulation state threaded through every phase
// entry point, replacing the original's Sim/Task/Sig/Time/Int_Time
// globals. A *Context is owned by the caller (engine package) for the
// whole run; phases take it as a parameter rather than reaching for
// package-level state.
type Context struct {
	Config Config
	Sim    Sim
	Sig    Sig

	// NActiveParticles and ActiveParticleList mirror §6's
	// "state exposed to collaborators": indices of particles stepping
	// this iteration, recomputed every iteration from the active set.
	NActiveParticles  int
	ActiveParticleList []int

	// Iteration counts completed sync iterations, used for logging and
	// the SyncIterations metric.
	Iteration int
}

// New builds a Context for a freshly loaded particle store: Sim's
// invariants are derived from the store, Sig.FirstStep is set, and the
// active-particle list is empty until the first step assigns bins.
func New(cfg Config, store *particle.Store, ranks int) *Context {
	origin, size := store.BoundingCube(1.0)
	_ = origin
	return &Context{
		Config: cfg,
		Sim: Sim{
			NTotal:    store.N,
			NRanks:    ranks,
			NThreads:  cfg.Workers,
			BoxSide:   size,
			TotalMass: store.TotalMass(),
		},
		Sig: Sig{FirstStep: true},
	}
}

// SetActive records this iteration's active-particle list and count,
// matching §6's exposed NActive_Particles / Active_Particle_List.
func (c *Context) SetActive(indices []int) {
	c.ActiveParticleList = indices
	c.NActiveParticles = len(indices)
}
