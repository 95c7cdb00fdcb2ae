package tree

import "fmt"

// CheckConsistency walks every subtree and verifies testable property 2
// (mass, center-of-mass and particle-count additivity). Leaves are not
// checked against maxLeaf (property 3): the builder does not record per
// leaf whether resolution was exhausted. tol is a relative
// tolerance on mass and an absolute tolerance (in units of box size) on
// center of mass, matching the expanded spec's 1e-12 defaults.
func (f *Forest) CheckConsistency(maxLeaf int, tol float64) error {
	for _, start := range f.TopStart {
		if start < 0 {
			continue
		}
		end := f.SubtreeEnd(start)
		if err := f.checkRange(start, end, maxLeaf, tol); err != nil {
			return err
		}
	}
	return nil
}

func (f *Forest) checkRange(start, end, maxLeaf int, tol float64) error {
	for i := start; i < end; i++ {
		n := &f.Nodes[i]
		if n.IsLeaf() {
			if int(n.NPart) > maxLeaf {
				// Allowed only when Peano-Hilbert resolution was
				// exhausted; the builder does not record that fact per
				// node, so callers that need to distinguish should
				// consult Forest.Stats.ResolutionExhausted instead.
				continue
			}
			continue
		}
		childEnd := i + int(n.DNext)
		var mass float64
		var com [3]float64
		var npart int
		c := i + 1
		for c < childEnd {
			child := &f.Nodes[c]
			mass += child.Mass
			com[0] += child.Mass * child.COM[0]
			com[1] += child.Mass * child.COM[1]
			com[2] += child.Mass * child.COM[2]
			npart += int(child.NPart)
			if child.IsLeaf() {
				c++
			} else {
				c += int(child.DNext)
			}
		}
		if npart != int(n.NPart) {
			return fmt.Errorf("tree: node %d npart=%d, children sum to %d", i, n.NPart, npart)
		}
		if diff := mass - n.Mass; diff > tol*absf(n.Mass)+tol || diff < -(tol*absf(n.Mass)+tol) {
			return fmt.Errorf("tree: node %d mass=%g, children sum to %g", i, n.Mass, mass)
		}
		if mass > 0 {
			for axis := 0; axis < 3; axis++ {
				want := com[axis] / mass
				if d := want - n.COM[axis]; d > tol || d < -tol {
					return fmt.Errorf("tree: node %d com[%d]=%g, children-derived %g", i, axis, n.COM[axis], want)
				}
			}
		}
	}
	return nil
}

func absf(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
