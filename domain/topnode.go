package domain

import (
	"github.com/gravsim/gravsim/particle"
	"github.com/gravsim/gravsim/workerpool"
)

// BuildTopNodes converts a finished bunch list into the TopNode records
// the tree builder consumes, computing each one's bounding geometry and
// mass summary from the particles it owns. This is the explicit
// conversion step between the transient Bunch representation and the
// tree-ready TopNode representation; nothing is reinterpreted in place.
func BuildTopNodes(bunches []Bunch, store *particle.Store, workers int) []TopNode {
	nodes := make([]TopNode, len(bunches))
	pool := workerpool.New(workers)
	pool.ForEachRange(workerpool.Partition(len(bunches), pool.Workers), func(lo, hi int) {
		for i := lo; i < hi; i++ {
			nodes[i] = summarize(bunches[i], store)
		}
	})
	return nodes
}

// summarize computes one TopNode's bounding cube, center of mass, and
// total mass from its particle range.
func summarize(b Bunch, store *particle.Store) TopNode {
	node := TopNode{
		Key:       b.Key,
		Level:     b.Level,
		FirstPart: b.FirstPart,
		NPart:     b.NPart,
		Cost:      b.Cost,
		Target:    b.Target,
		TreeStart: -1,
	}
	if b.NPart == 0 {
		return node
	}

	lo, hi := b.FirstPart, b.FirstPart+b.NPart
	min := store.Pos[lo]
	max := store.Pos[lo]
	var com particle.Vec3
	var mass float64
	for i := lo; i < hi; i++ {
		p := store.Pos[i]
		for axis := 0; axis < 3; axis++ {
			if p[axis] < min[axis] {
				min[axis] = p[axis]
			}
			if p[axis] > max[axis] {
				max[axis] = p[axis]
			}
		}
		com = com.Add(p.Scale(store.Mass[i]))
		mass += store.Mass[i]
	}

	size := 0.0
	for axis := 0; axis < 3; axis++ {
		if d := max[axis] - min[axis]; d > size {
			size = d
		}
	}
	if size == 0 {
		size = 1e-12
	}

	node.Pos = min
	node.Size = size
	node.Mass = mass
	if mass > 0 {
		node.COM = com.Scale(1 / mass)
	} else {
		node.COM = min.Add(max).Scale(0.5)
	}
	return node
}
