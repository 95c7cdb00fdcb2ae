package simcontext

import (
	"errors"
	"fmt"
)

// Sentinel errors for each of §7's error kinds. Call sites wrap one of
// these with fmt.Errorf("%w: ...") so callers can still errors.Is against
// the kind without parsing message text.
var (
	// ErrConfiguration marks a missing parameter key or a contradictory
	// value (buffer larger than arena, NSnap <= 0).
	ErrConfiguration = errors.New("configuration error")

	// ErrResource marks arena or top-node store exhaustion.
	ErrResource = errors.New("resource error")

	// ErrTimeline marks a requested dt below the integer-timeline
	// resolution.
	ErrTimeline = errors.New("timeline error")

	// ErrSnapshot marks a label-not-found, Fortran-record-inconsistent,
	// or header/block size mismatch condition.
	ErrSnapshot = errors.New("snapshot error")

	// ErrNumerical marks a non-finite acceleration or position.
	ErrNumerical = errors.New("numerical error")
)

// Configuration wraps ErrConfiguration with the offending key name.
func Configuration(key, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrConfiguration, key, reason)
}

// Resource wraps ErrResource with a reported request size.
func Resource(what string, requested int64) error {
	return fmt.Errorf("%w: %s (requested %d)", ErrResource, what, requested)
}

// Timeline wraps ErrTimeline with the offending particle id and
// acceleration magnitude, matching §7's "dt below integer-timeline
// resolution" report.
func Timeline(particleID uint64, accelMag float64) error {
	return fmt.Errorf("%w: particle %d accel=%g", ErrTimeline, particleID, accelMag)
}

// Snapshot wraps ErrSnapshot with a free-form reason (label, record
// marker mismatch, or size mismatch description).
func Snapshot(reason string) error {
	return fmt.Errorf("%w: %s", ErrSnapshot, reason)
}

// Numerical wraps ErrNumerical with the offending particle id.
func Numerical(particleID uint64) error {
	return fmt.Errorf("%w: particle %d", ErrNumerical, particleID)
}
