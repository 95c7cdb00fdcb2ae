package metrics

// Pre-defined metrics for the gravsim N-body engine. All metrics live in
// DefaultRegistry so they are globally accessible without passing a
// registry around.

var (
	// ---- Domain decomposition metrics ----

	// BunchCount tracks the number of bunches after the latest decomposition.
	BunchCount = DefaultRegistry.Gauge("domain.bunch_count")
	// BunchSplits counts bunch-split events across the whole run.
	BunchSplits = DefaultRegistry.Counter("domain.bunch_splits")
	// DomainDecomposeTime records wall-clock time of one decomposition call
	// in milliseconds.
	DomainDecomposeTime = DefaultRegistry.Histogram("domain.decompose_ms")

	// ---- Tree build metrics ----

	// TreeNodesAllocated counts tree nodes allocated across every subtree
	// build.
	TreeNodesAllocated = DefaultRegistry.Counter("tree.nodes_allocated")
	// TreeLeavesCollapsed counts leaf-bundle collapse events (§4.5 step 4).
	TreeLeavesCollapsed = DefaultRegistry.Counter("tree.leaves_collapsed")
	// TreeResolutionExhausted counts particles that fell through to the
	// deepest Peano-Hilbert level without further refinement.
	TreeResolutionExhausted = DefaultRegistry.Counter("tree.resolution_exhausted")
	// TreeBuildTime records one Build call's wall-clock time in milliseconds.
	TreeBuildTime = DefaultRegistry.Histogram("tree.build_ms")

	// ---- Gravity walk metrics ----

	// WalkTime records one Walk call's wall-clock time in milliseconds.
	WalkTime = DefaultRegistry.Histogram("gravity.walk_ms")
	// ExportedRemote counts particle-export events to a remote top node's
	// owning rank (a no-op stub in the single-rank implementation; see
	// gravity.Result.ExportedRemote).
	ExportedRemote = DefaultRegistry.Counter("gravity.exported_remote")

	// ---- Timeline / integrator metrics ----

	// SyncIterations counts completed sync-point iterations.
	SyncIterations = DefaultRegistry.Counter("timeline.sync_iterations")
	// ActiveParticles tracks the active-particle count of the current
	// iteration.
	ActiveParticles = DefaultRegistry.Gauge("timeline.active_particles")
	// MomentumDriftRelative is an EWMA of the relative momentum-drift
	// reported by the momentum check (§4.6 testable property 5), so a
	// single noisy iteration does not dominate the reported trend.
	MomentumDriftRelative = NewEWMA5()

	// ---- Snapshot I/O metrics ----

	// SnapshotsWritten counts completed snapshot writes.
	SnapshotsWritten = DefaultRegistry.Counter("snapshot.written")
	// SnapshotsRead counts completed snapshot reads.
	SnapshotsRead = DefaultRegistry.Counter("snapshot.read")
)
