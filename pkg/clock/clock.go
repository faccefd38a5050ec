// Package clock models the external scheduler the reconciler is built
// against (spec.md §6): an injected clock plus a cooperative yield
// primitive and a callback/microtask queuing facility. The reconciler core
// never spawns goroutines or sleeps on its own; it only calls through this
// trait, which is the seam a host (browser event loop, a terminal
// scheduler, a test harness) plugs into.
package clock

import "time"

// Priority mirrors the host scheduler's priority levels, used when
// translating a lane's priority class into a scheduled-callback priority
// (spec.md §4.4).
type Priority uint8

const (
	ImmediatePriority Priority = iota
	UserBlockingPriority
	NormalPriority
	LowPriority
	IdlePriority
)

// Handle identifies a scheduled callback so it can later be cancelled.
type Handle interface{}

// Clock is the host-provided scheduling primitive. Implementations must be
// safe to call from the single mutator goroutine; nothing in this package
// requires concurrent access from the reconciler's perspective (spec.md §5
// — the only concurrent producer is the enqueue path, which lives in
// internal/update, not here).
type Clock interface {
	// Now returns the current time, used for expiration bookkeeping.
	Now() time.Time
	// ShouldYield reports whether the work loop has used up its time slice
	// and should return control to the host before continuing.
	ShouldYield() bool
	// ScheduleCallback arranges for fn to run later at the given priority,
	// returning a handle that can be passed to CancelCallback.
	ScheduleCallback(priority Priority, fn func()) Handle
	// CancelCallback cancels a previously scheduled callback. Cancelling an
	// already-run or already-cancelled handle is a no-op.
	CancelCallback(h Handle)
	// ScheduleMicrotask queues fn to run at the next microtask checkpoint,
	// ahead of any macrotask-level callback. Used to coalesce repeated
	// ensure_root_is_scheduled calls within one synchronous burst of
	// enqueues (spec.md §4.4).
	ScheduleMicrotask(fn func())
	// SupportsMicrotasks reports whether ScheduleMicrotask is meaningfully
	// distinct from ScheduleCallback(ImmediatePriority, fn); if false, the
	// root scheduler falls back to an immediate-priority callback.
	SupportsMicrotasks() bool
}
