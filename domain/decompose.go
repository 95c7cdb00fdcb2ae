package domain

import (
	"sort"

	"github.com/gravsim/gravsim/particle"
	"github.com/gravsim/gravsim/peano"
	"github.com/gravsim/gravsim/workerpool"
)

// Config tunes the refine loop's stopping thresholds. Field names and
// defaults follow the original decomposition's DOMAIN_SPLIT_MEM_THRES /
// DOMAIN_NBUNCHES_PER_THREAD constants.
type Config struct {
	// MemThreshold is the relative particle-count imbalance above which
	// a bunch is marked for splitting.
	MemThreshold float64

	// BunchesPerRank is the target bunch count per rank: the refine
	// loop keeps splitting until at least Ranks*BunchesPerRank bunches
	// exist, so there is enough granularity to load-balance with.
	BunchesPerRank int

	Ranks int

	// MaxBunchesPerRank bounds total bunch count at Ranks*MaxBunchesPerRank;
	// past that, splitting stops regardless of imbalance, matching the
	// original's "too deep" escape hatch.
	MaxBunchesPerRank int

	InitialCapacity int
	GrowthFactor    float64

	Workers int
}

// DefaultConfig returns thresholds matching the original single-rank
// defaults: 10% memory imbalance tolerance, four bunches of headroom
// per worker, capped at sixteen bunches per worker before giving up.
func DefaultConfig(ranks int) Config {
	return Config{
		MemThreshold:      0.1,
		BunchesPerRank:    4,
		Ranks:             ranks,
		MaxBunchesPerRank: 16,
		InitialCapacity:   4096,
		GrowthFactor:      1.2,
		Workers:           0,
	}
}

// Decomposer runs the iterative bunch-refine loop over a sorted
// particle store, optionally seeded with the bunch list from a
// previous decomposition.
type Decomposer struct {
	cfg Config

	// OnGrow, when set, is called whenever the bunch store exceeds its
	// current capacity and must reallocate; tests and callers that want
	// to observe growth events can hook it, production code typically
	// routes it to a logger.
	OnGrow func(newCap int)
}

func New(cfg Config) *Decomposer {
	return &Decomposer{cfg: cfg}
}

// Decompose builds a balanced bunch list for store, starting from the
// previous decomposition's bunches (pass nil for a first call, which
// seeds a single root bunch spanning the whole key space). store must
// already be sorted by PeanoKey.
func (d *Decomposer) Decompose(store *particle.Store, prev []Bunch) []Bunch {
	bs := newBunchStore(d.cfg.InitialCapacity, d.cfg.GrowthFactor, d.OnGrow)
	bs.reset(reconstruct(prev))

	target := float64(store.N) / float64(d.cfg.Ranks*d.cfg.BunchesPerRank)
	if target < 1 {
		target = 1
	}

	for {
		sortBunchesByKey(bs.items)
		d.assignParticleRanges(bs.items, store)
		bs.items = removeEmpty(bs.items)

		stop := d.markSplits(bs.items, target)
		if stop {
			break
		}

		split := d.splitMarked(bs.items)
		bs.reset(split)
	}

	return bs.items
}

// assignParticleRanges fills FirstPart, NPart and Cost for every bunch
// by locating its key range within store's Peano-Hilbert-sorted
// particles. Every bunch's range is independent, so the scan runs
// across workers.
func (d *Decomposer) assignParticleRanges(bunches []Bunch, store *particle.Store) {
	shorts := make([]peano.ShortKey, store.N)
	for i := 0; i < store.N; i++ {
		shorts[i] = store.PeanoKey[i].ShortPrefix()
	}

	pool := workerpool.New(d.cfg.Workers)
	pool.ForEachRange(workerpool.Partition(len(bunches), pool.Workers), func(lo, hi int) {
		for i := lo; i < hi; i++ {
			b := &bunches[i]
			low := prefixOf(b.Key, b.Level)
			high := b.Key + 1 // Key is the inclusive upper bound of its range

			first := sort.Search(len(shorts), func(j int) bool { return shorts[j] >= low })
			end := sort.Search(len(shorts), func(j int) bool { return shorts[j] >= high })

			b.FirstPart = first
			b.NPart = end - first

			var cost float64
			for j := first; j < end; j++ {
				cost += store.Cost[j]
			}
			b.Cost = cost
		}
	})
}

// removeEmpty drops bunches with no particles, matching the original's
// treatment of empty leaves as not worth tracking.
func removeEmpty(bs []Bunch) []Bunch {
	out := bs[:0]
	for _, b := range bs {
		if b.NPart > 0 {
			out = append(out, b)
		}
	}
	return out
}

// markSplits flags every bunch whose load is out of balance, and
// reports whether the loop has converged (no bunch marked).
func (d *Decomposer) markSplits(bs []Bunch, target float64) (stop bool) {
	stop = true
	heavyLeaves := len(bs)
	tooDeep := len(bs) > d.cfg.Ranks*d.cfg.MaxBunchesPerRank

	for i := range bs {
		b := &bs[i]
		b.Modify = false

		if tooDeep || b.Level >= peano.ShortTriplets {
			continue
		}

		relMemLoad := (float64(b.NPart) - target) / target

		switch {
		case relMemLoad > d.cfg.MemThreshold:
			b.Modify = true
		case heavyLeaves < d.cfg.Ranks*d.cfg.BunchesPerRank:
			b.Modify = true
		default:
			continue
		}
		stop = false
	}
	return stop
}

// splitMarked replaces every Modify-flagged bunch with its eight
// children, carrying over its Target as the children's provisional
// assignment until the next count pass redistributes load.
func (d *Decomposer) splitMarked(bs []Bunch) []Bunch {
	out := make([]Bunch, 0, len(bs))
	for _, b := range bs {
		if !b.Modify {
			out = append(out, b)
			continue
		}
		for child := uint8(0); child < 8; child++ {
			out = append(out, Bunch{
				Key:    childTemplate(b.Key, b.Level, child),
				Level:  b.Level + 1,
				Target: b.Target,
			})
		}
	}
	return out
}
