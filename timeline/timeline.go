// Package timeline implements the power-of-two integer timeline and the
// per-particle time-bin step controller: bin assignment from a desired
// step size, global step selection across all active particles,
// sync-point detection, and the active-particle membership set.
package timeline

import (
	"math"
	"math/bits"

	"github.com/bits-and-blooms/bitset"

	"github.com/gravsim/gravsim/particle"
)

// Bins is B, the number of time bins: the integer timeline spans
// [0, 1<<(Bins-1)] and every TimeBin value lies in [0, Bins). Kept at
// 63 rather than a round 64 so the top of the range, 1<<(Bins-1), still
// fits in a signed int64 (1<<63 would overflow into the sign bit).
const Bins = 63

// Clock holds the integer timeline's current state. Begin and End bound
// the integer timeline itself (always [0, 1<<(Bins-1)]) and are fixed
// for the whole run; Current, Next, and NextSyncPoint advance as steps
// are taken. PhysBegin/PhysEnd are a separate, independently-fixed
// range: the physical time (Newtonian mode) or scale factor (comoving
// mode) that integer position Begin/End maps onto, set via
// SetPhysicalRange once Time_Begin/Time_End are known from the
// parameter file.
type Clock struct {
	Begin, End    int64
	Current       int64
	Next          int64
	NextSyncPoint int64
	Comoving      bool

	PhysBegin, PhysEnd float64
	StepMin            float64 // (log(PhysEnd)-log(PhysBegin))/(End-Begin), comoving mode only
}

// NewClock builds a clock spanning the full integer timeline, with the
// default [0,1) physical range PhysicalTime needs to return something
// sane before SetPhysicalRange is called.
func NewClock(comoving bool) *Clock {
	end := int64(1) << (Bins - 1)
	return &Clock{
		Begin:         0,
		End:           end,
		Current:       0,
		Next:          0,
		NextSyncPoint: 0,
		Comoving:      comoving,
		PhysBegin:     0,
		PhysEnd:       1,
	}
}

// SetPhysicalRange fixes the physical time (or, in comoving mode, scale
// factor) range the integer timeline maps onto and recomputes StepMin.
// Callers that only drive the step controller in integer ticks -- most
// unit tests -- can skip this and keep the default [0,1) range.
func (c *Clock) SetPhysicalRange(begin, end float64) {
	c.PhysBegin = begin
	c.PhysEnd = end
	if c.Comoving && begin > 0 {
		c.StepMin = (math.Log(end) - math.Log(begin)) / float64(c.End-c.Begin)
	}
}

// StepMaxPhys returns the physical span BinWant's stepMax argument must
// be measured against: Time_End-Time_Begin in Newtonian mode, or the
// total log(a) span in comoving mode, matching the original's
// Time.Step_Max (timestep.c:133), which is always set from the
// physical time/scale-factor range, never the integer timeline's own
// [0,1<<(Bins-1)) span.
func (c *Clock) StepMaxPhys() float64 {
	if c.Comoving {
		return math.Log(c.PhysEnd) - math.Log(c.PhysBegin)
	}
	return c.PhysEnd - c.PhysBegin
}

// PhysicalTime converts an integer timeline position to physical time:
// linear in Newtonian mode, exponential in comoving mode.
func (c *Clock) PhysicalTime(t int64) float64 {
	if !c.Comoving {
		if c.End == c.Begin {
			return c.PhysBegin
		}
		span := c.PhysEnd - c.PhysBegin
		return c.PhysBegin + float64(t)*span/float64(c.End-c.Begin)
	}
	return c.PhysBegin * math.Exp(float64(t)*c.StepMin)
}

// BinWant computes the desired time bin for a particle with the given
// acceleration magnitude, softening length, and accuracy parameter,
// following dt_want = accuracy*sqrt(2*softening/|a|) and
// bin_want = (Bins-1) - ceil(log2(stepMax/dt)) - 1. accelMag == 0 maps
// to the coarsest bin (Bins-1): a particle feeling no force has no
// reason to step finely. stepMax is the physical time span (Clock's
// StepMaxPhys, equivalent to the original's Time.Step_Max) the
// controller divides dt into -- not the integer timeline's own span,
// which is a fixed power of two unrelated to physical units.
func BinWant(accelMag, softening, accuracy, dtMax, stepMax float64) int {
	if accelMag <= 0 {
		return Bins - 1
	}
	dt := accuracy * math.Sqrt(2*softening/accelMag)
	if dtMax > 0 && dt > dtMax {
		dt = dtMax
	}
	if dt <= 0 {
		return 0
	}
	ratio := stepMax / dt
	if ratio <= 1 {
		return Bins - 1
	}
	binWant := (Bins - 1) - int(math.Ceil(math.Log2(ratio))) - 1
	if binWant < 0 {
		binWant = 0
	}
	if binWant > Bins-1 {
		binWant = Bins - 1
	}
	return binWant
}

// AssignBin applies the monotonic-increase rule: a particle's bin may
// only move to a finer (smaller) value relative to what sync already
// committed to, clamped by maxActiveBin and the particle's previous
// bin.
func AssignBin(binWant, maxActiveBin, previousBin int) int {
	floor := maxActiveBin
	if previousBin > floor {
		floor = previousBin
	}
	if binWant > floor {
		return floor
	}
	return binWant
}

// SystemStep picks the global step for this iteration: the smallest of
// end-current, 1<<binMin, and 1<<(trailing zero bits of current) (so the
// step only ever lands on a position the current timeline already
// supports).
func SystemStep(current, end int64, binMin int) int64 {
	step := end - current
	if bound := int64(1) << uint(binMin); bound < step {
		step = bound
	}
	if current > 0 {
		if tz := trailingZeroStep(current); tz < step {
			step = tz
		}
	}
	if step < 1 {
		step = 1
	}
	return step
}

func trailingZeroStep(current int64) int64 {
	if current == 0 {
		return math.MaxInt64
	}
	return int64(1) << uint(bits.TrailingZeros64(uint64(current)))
}

// MaxActiveBin returns trailing_zeros(next), the highest bin active
// this iteration.
func MaxActiveBin(next int64) int {
	if next == 0 {
		return Bins - 1
	}
	return bits.TrailingZeros64(uint64(next))
}

// AtSyncPoint reports whether current has reached the next scheduled
// sync point.
func (c *Clock) AtSyncPoint() bool { return c.Current == c.NextSyncPoint }

// AdvanceSyncPoint pushes NextSyncPoint forward by 1<<binMax, the
// coarsest bin touched this iteration (MPI-reduced max in a
// multi-rank run; this implementation runs single-process so it is
// simply the local maximum).
func (c *Clock) AdvanceSyncPoint(binMax int) {
	c.NextSyncPoint += int64(1) << uint(binMax)
}

// ActiveSet tracks which particle slots are active this iteration:
// time_bin[i] <= maxActiveBin. Backed by a bitset rather than a bool
// slice so membership tests and rebuilds stay compact even at large N.
type ActiveSet struct {
	bits *bitset.BitSet
	n    uint
}

// BuildActiveSet scans every particle's TimeBin and marks it active
// when it does not exceed maxActiveBin.
func BuildActiveSet(store *particle.Store, maxActiveBin int) *ActiveSet {
	as := &ActiveSet{bits: bitset.New(uint(store.N)), n: uint(store.N)}
	for i := 0; i < store.N; i++ {
		if store.TimeBin[i] <= maxActiveBin {
			as.bits.Set(uint(i))
		}
	}
	return as
}

// Contains reports whether particle slot i is active.
func (a *ActiveSet) Contains(i int) bool { return a.bits.Test(uint(i)) }

// Count returns the number of active particles.
func (a *ActiveSet) Count() int { return int(a.bits.Count()) }

// Indices returns every active particle's index in ascending order.
func (a *ActiveSet) Indices() []int {
	out := make([]int, 0, a.bits.Count())
	for i, ok := a.bits.NextSet(0); ok; i, ok = a.bits.NextSet(i + 1) {
		out = append(out, int(i))
	}
	return out
}
