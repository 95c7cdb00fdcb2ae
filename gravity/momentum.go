package gravity

import (
	"math"

	"github.com/gravsim/gravsim/particle"
)

// reduceOp combines one partial momentum sum per rank into the run
// total. The single-rank implementation always passes a length-1 slice,
// so reduceSum and the historical reduceMin agree there; reduceMin only
// diverges once more than one partial is reduced, which is exactly the
// multi-rank case the original bug shipped in.
type reduceOp func(partials []particle.Vec3) particle.Vec3

func reduceSum(partials []particle.Vec3) particle.Vec3 {
	var total particle.Vec3
	for _, p := range partials {
		total = total.Add(p)
	}
	return total
}

// reduceMin reproduces the original momentum monitor's bug: each axis
// was reduced independently with MPI_MIN instead of MPI_SUM, so the
// reported "total" momentum was the component-wise minimum across ranks
// rather than their sum -- meaningless as a conservation check once a
// run used more than one rank. Kept only for
// TestMomentumDriftHistoricalMinBug, which demonstrates the drift this
// silently tolerated; MomentumDrift itself always reduces with
// reduceSum.
func reduceMin(partials []particle.Vec3) particle.Vec3 {
	if len(partials) == 0 {
		return particle.Vec3{}
	}
	min := partials[0]
	for _, p := range partials[1:] {
		for axis := 0; axis < 3; axis++ {
			if p[axis] < min[axis] {
				min[axis] = p[axis]
			}
		}
	}
	return min
}

// MomentumDrift reduces the per-rank partial total-momentum sums with
// reduceSum and returns the reduced total alongside its relative change
// from the previous sync point's reduced total:
// norm(current-previous)/max(norm(previous), floor). floor avoids a
// division blowup for a system that started at rest.
func MomentumDrift(partials []particle.Vec3, previous particle.Vec3, floor float64) (current particle.Vec3, relative float64) {
	current = reduceSum(partials)
	denom := math.Sqrt(previous.Norm2())
	if denom < floor {
		denom = floor
	}
	relative = math.Sqrt(current.Sub(previous).Norm2()) / denom
	return current, relative
}
