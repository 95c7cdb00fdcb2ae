package gravity

// BarnesHutOpen applies the Barnes-Hut opening criterion: a node may be
// treated as a single monopole source when size^2 <= r2 * thetaBH,
// where thetaBH is the square of the usual opening angle theta (the
// expanded spec's Tree_Open_Param_BH parameter). Used on the first
// step, when no particle has a previously computed acceleration to
// drive the relative criterion.
func BarnesHutOpen(size2, r2, thetaBH float64) bool {
	return size2 <= r2*thetaBH
}

// RelativeOpen applies the Springel (2005) relative opening criterion:
// a node may be closed when mass*size^2 <= r^4*(|a_prev|/g)*thetaRel.
// g is passed explicitly rather than hardcoded, per the expanded spec's
// resolution of the open question over the original's division by the
// gravitational constant.
func RelativeOpen(mass, size2, r2, prevAccelMag, g, thetaRel float64) bool {
	if g <= 0 {
		return false
	}
	return mass*size2 <= r2*r2*(prevAccelMag/g)*thetaRel
}
