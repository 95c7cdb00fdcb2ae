// Package peano implements the Peano-Hilbert space-filling-curve key used to
// order particles for the domain decomposition and the gravity tree build.
//
// Coordinates are assumed normalized into [0,1)^3 before encoding; see
// EncodeShortChecked/EncodeLongChecked for the validating entry points used
// outside hot loops. Keys are stored in reversed-triplet order: the
// least-significant three bits hold the triplet at the deepest refinement
// level, so key.Triplet(0) always yields the finest-level octant index.
//
// The algorithm follows Skilling, "Programming the Hilbert Curve" (AIP 707,
// 381, 2004): transpose the coordinates into a 3-wide bit array, undo the
// inverse Gray code in place, then interleave the transposed lanes back into
// a single scalar three bits at a time, most-significant triplet first.
package peano

import (
	"fmt"

	"github.com/holiman/uint256"
)

const (
	// ShortTriplets is the refinement depth of the 63-bit key form.
	ShortTriplets = 21
	// LongTriplets is the refinement depth of the 126-bit key form.
	LongTriplets = 42

	// ShortBits and LongBits are the number of meaningful low bits in each
	// key form.
	ShortBits = 3 * ShortTriplets
	LongBits  = 3 * LongTriplets
)

// ShortKey is a 63-bit (21-triplet) Peano-Hilbert index.
type ShortKey uint64

// LongKey is a 126-bit (42-triplet) Peano-Hilbert index, held in a uint256
// so tree and domain code can do plain shift/mask arithmetic on it without
// reaching for math/big.
type LongKey struct {
	v uint256.Int
}

// outOfRange reports whether any of x, y, z falls outside [0,1).
func outOfRange(x, y, z float64) bool {
	return x < 0 || x >= 1 || y < 0 || y >= 1 || z < 0 || z >= 1
}

// EncodeShortChecked validates its input is in [0,1)^3 before encoding.
// Use this at the boundary (particle store normalization); use EncodeShort
// in the hot paths where the caller has already normalized.
func EncodeShortChecked(x, y, z float64) (ShortKey, error) {
	if outOfRange(x, y, z) {
		return 0, fmt.Errorf("peano: coordinate (%g,%g,%g) out of range [0,1)", x, y, z)
	}
	return EncodeShort(x, y, z), nil
}

// EncodeLongChecked is the 126-bit counterpart of EncodeShortChecked.
func EncodeLongChecked(x, y, z float64) (LongKey, error) {
	if outOfRange(x, y, z) {
		return LongKey{}, fmt.Errorf("peano: coordinate (%g,%g,%g) out of range [0,1)", x, y, z)
	}
	return EncodeLong(x, y, z), nil
}

// hilbertLanes runs Skilling's inverse-undo plus Gray-decode on the
// transposed coordinate lanes and returns them ready for bit interleaving.
// X is ordered {y, z, x}*2^63, matching the original formulation: the axis
// permutation only changes which physical axis maps to which bit-plane and
// has no bearing on the order-preserving property.
func hilbertLanes(x, y, z float64) [3]uint64 {
	const m = uint64(1) << 63

	X := [3]uint64{
		uint64(y * float64(m)),
		uint64(z * float64(m)),
		uint64(x * float64(m)),
	}

	// Inverse undo: walk the mask from MSB to LSB, conditionally inverting
	// lane 0 or exchanging bits between lane 0 and lanes 1/2.
	for q := m; q > 1; q >>= 1 {
		p := q - 1
		if X[0]&q != 0 {
			X[0] ^= p
		}
		for i := 1; i < 3; i++ {
			if X[i]&q != 0 {
				X[0] ^= p
			} else {
				t := (X[0] ^ X[i]) & p
				X[0] ^= t
				X[i] ^= t
			}
		}
	}

	// Gray-decode inverse.
	for i := 1; i < 3; i++ {
		X[i] ^= X[i-1]
	}
	t := X[2]
	for i := uint(1); i < 64; i <<= 1 {
		X[2] ^= X[2] >> i
	}
	t ^= X[2]
	for i := 1; i >= 0; i-- {
		X[i] ^= t
	}

	return X
}

// interleave extracts n triplets from the transposed lanes, most-significant
// triplet first, and returns them packed into a 64-bit accumulator along
// with the lanes advanced past the consumed bits.
func interleave(X [3]uint64, n int) (key uint64, rest [3]uint64) {
	for i := 0; i < n; i++ {
		col := ((X[0] & 0x8000000000000000) |
			(X[1] & 0x4000000000000000) |
			(X[2] & 0x2000000000000000)) >> 61

		key <<= 3
		X[0] <<= 1
		X[1] <<= 1
		X[2] <<= 1
		key |= col
	}
	return key, X
}

// EncodeShort computes the 63-bit Peano-Hilbert key of a point already
// known to lie in [0,1)^3.
func EncodeShort(x, y, z float64) ShortKey {
	X := hilbertLanes(x, y, z)
	X[1] >>= 1
	X[2] >>= 2

	// 22 interleave rounds deliberately overflow the low 64 bits by one
	// triplet: the first (most significant) triplet produced is shifted
	// out, leaving exactly the 21 triplets (63 bits) of the short key.
	key, _ := interleave(X, ShortTriplets+1)
	return ShortKey(key)
}

// EncodeLong computes the 126-bit Peano-Hilbert key of a point already
// known to lie in [0,1)^3.
func EncodeLong(x, y, z float64) LongKey {
	X := hilbertLanes(x, y, z)
	X[1] >>= 1
	X[2] >>= 2

	// The high part is exactly EncodeShort's key; the low part carries the
	// next ShortTriplets triplets, packed directly below it.
	hi, X := interleave(X, ShortTriplets+1)
	lo, _ := interleave(X, ShortTriplets)

	var v uint256.Int
	v.SetUint64(hi)
	v.Lsh(&v, ShortBits)
	var loWide uint256.Int
	loWide.SetUint64(lo)
	v.Or(&v, &loWide)
	return LongKey{v: v}
}

// Triplet returns the 3-bit octant index at the given depth, where depth 0
// is the finest (deepest) refinement level and depth ShortTriplets-1 is the
// coarsest.
func (k ShortKey) Triplet(depth int) uint8 {
	return uint8((uint64(k) >> uint(3*depth)) & 0x7)
}

// Uint64 returns the raw 63-bit key value.
func (k ShortKey) Uint64() uint64 { return uint64(k) }

// Less reports whether k sorts before other in Hilbert-curve order, which
// for this encoding is the same as plain numeric order.
func (k ShortKey) Less(other ShortKey) bool { return k < other }

// Triplet returns the 3-bit octant index at the given depth (0 = finest,
// LongTriplets-1 = coarsest) of a 126-bit key.
func (k LongKey) Triplet(depth int) uint8 {
	var shifted uint256.Int
	shifted.Rsh(&k.v, uint(3*depth))
	return uint8(shifted[0] & 0x7)
}

// Cmp returns -1, 0, or +1 as k is less than, equal to, or greater than
// other, which for this encoding is the same as plain numeric order.
func (k LongKey) Cmp(other LongKey) int { return k.v.Cmp(&other.v) }

// Less reports whether k sorts before other.
func (k LongKey) Less(other LongKey) bool { return k.Cmp(other) < 0 }

// String renders the key in hex, matching the debug dumps the original
// implementation printed bit-by-bit.
func (k LongKey) String() string { return k.v.Hex() }

// ShortPrefix returns the coarse 63-bit key formed by this key's top
// ShortBits bits. Because EncodeLong derives its high word from the
// exact same Skilling core call as EncodeShort, ShortPrefix(EncodeLong(x,
// y, z)) always equals EncodeShort(x, y, z): the short key is a genuine
// prefix of the long one, not an independent encoding. Domain bunch
// boundaries are expressed in this coarser key space, so this is the
// bridge used to place a particle's long key within a bunch's range.
func (k LongKey) ShortPrefix() ShortKey {
	var hi uint256.Int
	hi.Rsh(&k.v, uint(LongBits-ShortBits))
	return ShortKey(hi.Uint64())
}

// MaxShortKey is the all-ones sentinel used to seed the single bunch that
// initially covers the whole box.
const MaxShortKey = ShortKey((uint64(1) << ShortBits) - 1)

// MaxLongKey is the 126-bit all-ones sentinel, the LongKey analogue of
// MaxShortKey.
func MaxLongKey() LongKey {
	var v uint256.Int
	v.SetAllOne()
	v.Rsh(&v, 256-LongBits)
	return LongKey{v: v}
}
