package fiber

import (
	"time"

	"github.com/recera/reconcile/internal/lane"
)

// Root is the per-tree container (spec.md §3 FiberRoot). It owns the arena
// and every piece of per-root lane bookkeeping the scheduler and work loop
// consult.
type Root struct {
	Tree *Tree

	ContainerInfo any // opaque handle passed to the host adapter
	Current       ID  // the committed tree's root fiber

	PendingLanes   lane.Set
	SuspendedLanes lane.Set
	PingedLanes    lane.Set
	ExpiredLanes   lane.Set
	EntangledLanes lane.Set

	Expiration  *lane.ExpirationTracker
	Entangle    *lane.EntanglementMap

	CallbackNode     any // scheduler handle of the currently armed callback, if any
	CallbackPriority lane.Set

	// Scheduled reports whether this root is currently a member of
	// internal/rootsched's intrusive scheduled-root list (spec.md §4.4);
	// the scheduler sets/clears it instead of scanning the list to test
	// membership.
	Scheduled bool
	// MightHavePendingSyncWork is set optimistically by
	// ensure_root_is_scheduled and lets flush_sync_work_across_roots skip
	// a GetNextLanes computation for roots that were never marked for sync
	// work in the first place.
	MightHavePendingSyncWork bool

	Context        any
	PendingContext any

	TimeoutHandle       any
	CancelPendingCommit func()

	OnRecoverableError func(err error)
	OnUncaughtError     func(err error)
	OnCaughtError       func(err error, boundary ID)

	Next *Root // scheduler-list membership link
}

// NewRoot creates a fresh root with an empty HostRoot current fiber.
func NewRoot(containerInfo any, mode Mode) *Root {
	tr := NewTree()
	rootFiberID := tr.NewRootFiber(mode)
	r := &Root{
		Tree:          tr,
		ContainerInfo: containerInfo,
		Current:       rootFiberID,
		Expiration:    lane.NewExpirationTracker(),
		Entangle:      lane.NewEntanglementMap(),
	}
	tr.Get(rootFiberID).StateNode = r
	return r
}

// MarkRootUpdated folds a newly scheduled lane into the root's pending set
// and records its expiration deadline if it doesn't already have one.
func (r *Root) MarkRootUpdated(l lane.Set, now time.Time) {
	r.PendingLanes = lane.Merge(r.PendingLanes, l)
	r.Expiration.MarkPending(l, now)
}

// MarkStarvedLanesAsExpired moves any lane whose deadline has passed into
// ExpiredLanes (spec.md §4.1).
func (r *Root) MarkStarvedLanesAsExpired(now time.Time) {
	r.ExpiredLanes = lane.Merge(r.ExpiredLanes, r.Expiration.Starved(r.PendingLanes, now))
}

// GetNextLanes computes the lane set to render next given the root's
// current bookkeeping.
func (r *Root) GetNextLanes(wipRenderLanes lane.Set) lane.Set {
	next := lane.GetNextLanes(r.PendingLanes, r.SuspendedLanes, r.PingedLanes, r.ExpiredLanes, wipRenderLanes)
	return r.Entangle.Expand(next)
}

// MarkLanesSettled clears bookkeeping for lanes that have fully committed:
// pending, suspended, pinged, expired, and entanglements.
func (r *Root) MarkLanesSettled(l lane.Set) {
	r.PendingLanes = lane.Remove(r.PendingLanes, l)
	r.SuspendedLanes = lane.Remove(r.SuspendedLanes, l)
	r.PingedLanes = lane.Remove(r.PingedLanes, l)
	r.ExpiredLanes = lane.Remove(r.ExpiredLanes, l)
	r.Expiration.Clear(l)
	r.Entangle.Clear(l)
}

// MarkSuspended records that l cannot make progress until pinged.
func (r *Root) MarkSuspended(l lane.Set) {
	r.SuspendedLanes = lane.Merge(r.SuspendedLanes, l)
	r.PingedLanes = lane.Remove(r.PingedLanes, l)
}

// Ping records that a previously suspended lane set may now be retried.
func (r *Root) Ping(l lane.Set) {
	r.PingedLanes = lane.Merge(r.PingedLanes, l)
}
