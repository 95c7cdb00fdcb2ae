// Package integrate implements the Kick-Drift-Kick leapfrog integrator:
// per-particle position and velocity updates driven by the integer
// timeline, each tracking its own last-applied timeline position so a
// particle that skipped several sync points still advances by the
// correct accumulated physical time rather than one step's worth.
//
// Grounded on original_source/src/drift.c (Drift_To_Sync_Point,
// Drift_To_Snaptime) for the drift side -- dt computed from a physical-
// time difference rather than a fixed step, and the explicit
// out-of-sync/resync handling a snapshot-time drift leaves behind.
// original_source has no separate kick routine; the per-particle kick
// contract (dt from it_kick_pos to a caller-supplied target, symmetric
// to drift) follows directly from the individual-timestep leapfrog
// original_source/src/timestep.c documents (It_Drift_Pos/It_Kick_Pos
// exist precisely because a particle's own elapsed time between
// kicks/drifts is not a fixed multiple of the smallest timestep).
package integrate

import (
	"github.com/gravsim/gravsim/particle"
	"github.com/gravsim/gravsim/timeline"
	"github.com/gravsim/gravsim/workerpool"
)

// Drift advances particle i's position using its velocity and the
// physical time elapsed between its current ItDriftPos and targetIt,
// then records targetIt as its new ItDriftPos. periodicSize > 0 wraps
// the result back into [0, periodicSize) on every axis.
func Drift(store *particle.Store, clock *timeline.Clock, i int, targetIt int64, periodicSize float64) {
	dt := clock.PhysicalTime(targetIt) - clock.PhysicalTime(store.ItDriftPos[i])
	store.Pos[i] = store.Pos[i].Add(store.Vel[i].Scale(dt))
	store.ItDriftPos[i] = targetIt
	if periodicSize > 0 {
		for axis := 0; axis < 3; axis++ {
			store.Pos[i][axis] = wrap(store.Pos[i][axis], periodicSize)
		}
	}
}

// Kick advances particle i's velocity using its acceleration and the
// physical time elapsed between its current ItKickPos and targetIt,
// then records targetIt as its new ItKickPos.
func Kick(store *particle.Store, clock *timeline.Clock, i int, targetIt int64) {
	dt := clock.PhysicalTime(targetIt) - clock.PhysicalTime(store.ItKickPos[i])
	store.Vel[i] = store.Vel[i].Add(store.Acc[i].Scale(dt))
	store.ItKickPos[i] = targetIt
}

// DriftAll drifts every particle in the store to targetIt in parallel.
// Every sync step drifts the whole store (including inactive
// particles, whose velocity has not changed since their own last kick
// and so can be linearly extrapolated across the full step), matching
// Drift_To_Sync_Point's unconditional loop over Task.NpartTotal.
func DriftAll(store *particle.Store, clock *timeline.Clock, targetIt int64, periodicSize float64, workers int) {
	pool := workerpool.New(workers)
	pool.ForEachIndex(store.N, func(lo, hi int) {
		for i := lo; i < hi; i++ {
			Drift(store, clock, i, targetIt, periodicSize)
		}
	})
}

// KickActive kicks every active particle in parallel. target is called
// once per active particle so each can be advanced to its own next
// kick position (e.g. clock.Current + its own timebin's step), rather
// than a single target shared by every particle.
func KickActive(store *particle.Store, clock *timeline.Clock, active *timeline.ActiveSet, target func(i int) int64, workers int) {
	indices := active.Indices()
	pool := workerpool.New(workers)
	pool.ForEachIndex(len(indices), func(lo, hi int) {
		for k := lo; k < hi; k++ {
			i := indices[k]
			Kick(store, clock, i, target(i))
		}
	})
}

// DriftToPhysicalTime drifts every particle to an arbitrary physical
// time that need not land on the integer timeline (a snapshot dump
// time, per Drift_To_Snaptime), without advancing ItDriftPos: the
// store is left out of sync with its own bookkeeping on purpose, to be
// corrected by the next ordinary DriftAll call. The original signals
// the pending resync with Sig.Synchronize_Drift; that flag belongs to
// simcontext/simloop, not this package.
func DriftToPhysicalTime(store *particle.Store, clock *timeline.Clock, physicalTime, periodicSize float64, workers int) {
	pool := workerpool.New(workers)
	pool.ForEachIndex(store.N, func(lo, hi int) {
		for i := lo; i < hi; i++ {
			dt := physicalTime - clock.PhysicalTime(store.ItDriftPos[i])
			store.Pos[i] = store.Pos[i].Add(store.Vel[i].Scale(dt))
			if periodicSize > 0 {
				for axis := 0; axis < 3; axis++ {
					store.Pos[i][axis] = wrap(store.Pos[i][axis], periodicSize)
				}
			}
		}
	})
}

func wrap(x, size float64) float64 {
	x = mod(x, size)
	if x < 0 {
		x += size
	}
	return x
}

func mod(x, size float64) float64 {
	q := int64(x / size)
	return x - float64(q)*size
}
