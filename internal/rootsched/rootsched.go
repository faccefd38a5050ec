// Package rootsched implements the root scheduler (spec.md §4.4, C4): the
// single process-wide intrusive list of roots carrying pending work, the
// microtask-coalescing debounce that keeps a burst of update_container
// calls from arming more than one scheduling pass, and the translation of a
// root's highest pending lane into a host scheduler priority.
//
// The package owns a single dirty-root queue: mark a root dirty, coalesce
// the wakeups a burst of marks produces into one scheduling pass, then drain
// the queue in priority order. Rather than a goroutine/channel pair, the
// injected pkg/clock trait gives the scheduler no thread of its own — it
// only ever runs inside a clock callback or microtask.
package rootsched

import (
	"time"

	"github.com/recera/reconcile/internal/fiber"
	"github.com/recera/reconcile/internal/lane"
	"github.com/recera/reconcile/pkg/clock"
)

// PerformWorkFunc is how the scheduler hands a root off to the work loop
// once it has decided what lanes to render and at what urgency. It is
// injected (rather than imported) so this package never depends on
// internal/workloop, which itself depends on this package to re-arm a root
// after a render.
type PerformWorkFunc func(root *fiber.Root, lanes lane.Set, forceSync bool)

// RenderState answers the two questions scheduleTaskForRootDuringMicrotask
// needs about a render that may already be in progress, without rootsched
// having to know what a work loop is. A zero-value RenderState (returned by
// NoRenderState) reports no render in progress and no pending commit,
// correct for a scheduler used standalone (e.g. in tests of this package).
type RenderState interface {
	// WipLanesForRoot returns the lanes currently being rendered for root
	// if a render for exactly this root is in progress, else lane.NoLanes.
	WipLanesForRoot(root *fiber.Root) lane.Set
	// HasPendingCommit reports whether root has a completed work-in-progress
	// tree that has not yet been committed.
	HasPendingCommit(root *fiber.Root) bool
}

// NoRenderState is the trivial RenderState: no render ever in progress, no
// commit ever pending. Useful for driving this package's own tests and as
// a safe zero value before a work loop registers itself.
type NoRenderState struct{}

func (NoRenderState) WipLanesForRoot(*fiber.Root) lane.Set { return lane.NoLanes }
func (NoRenderState) HasPendingCommit(*fiber.Root) bool    { return false }

// Scheduler owns the intrusive scheduled-root list and the microtask
// debounce flag. There is exactly one per process (spec.md §4.4 "single
// per-process intrusive list"), but nothing here enforces that beyond
// convention — callers construct one and share it.
type Scheduler struct {
	clk         clock.Clock
	performWork PerformWorkFunc
	renderState RenderState

	firstRoot *fiber.Root
	lastRoot  *fiber.Root

	didScheduleMicrotask bool
	isFlushingWork       bool

	// inRenderOrCommit is consulted by EnsureRootIsScheduled to decide
	// whether a microtask is safe to arm right now, per spec.md §4.4
	// "fall back to an immediate-priority scheduler callback if ... the
	// current execution context is render/commit". internal/workloop
	// toggles this around each render/commit pass via SetRenderOrCommit.
	inRenderOrCommit bool
}

// New builds a root scheduler driven by clk, handing off actual rendering
// to performWork. renderState may be nil, in which case NoRenderState is
// used (correct until a work loop registers a real one via SetRenderState).
func New(clk clock.Clock, performWork PerformWorkFunc, renderState RenderState) *Scheduler {
	if renderState == nil {
		renderState = NoRenderState{}
	}
	return &Scheduler{clk: clk, performWork: performWork, renderState: renderState}
}

// SetRenderState swaps in the work loop's real render-state view once one
// exists, breaking the would-be import cycle at construction time instead
// of at compile time.
func (s *Scheduler) SetRenderState(rs RenderState) { s.renderState = rs }

// SetRenderOrCommit is called by internal/workloop around each render or
// commit pass so EnsureRootIsScheduled knows not to arm a microtask from
// inside one (spec.md §4.4).
func (s *Scheduler) SetRenderOrCommit(active bool) { s.inRenderOrCommit = active }

// appendRoot adds root to the tail of the intrusive list if it isn't
// already a member.
func (s *Scheduler) appendRoot(root *fiber.Root) {
	if root.Scheduled {
		return
	}
	root.Scheduled = true
	root.Next = nil
	if s.lastRoot == nil {
		s.firstRoot = root
		s.lastRoot = root
		return
	}
	s.lastRoot.Next = root
	s.lastRoot = root
}

// removeRoot drops root from the intrusive list, per scheduleTaskForRoot's
// "next_lanes == 0: ... remove from list" and flushSyncWorkAcrossRoots'
// "remove a root once it has nothing left to do" paths.
func (s *Scheduler) removeRoot(root *fiber.Root) {
	if !root.Scheduled {
		return
	}
	root.Scheduled = false
	var prev *fiber.Root
	for r := s.firstRoot; r != nil; r = r.Next {
		if r == root {
			if prev == nil {
				s.firstRoot = r.Next
			} else {
				prev.Next = r.Next
			}
			if s.lastRoot == r {
				s.lastRoot = prev
			}
			root.Next = nil
			return
		}
		prev = r
	}
}

// EnsureRootIsScheduled appends root to the scheduled-root list if it
// isn't already there, marks it as possibly carrying sync work, and arms
// (or relies on an already-armed) microtask to process the whole list.
func (s *Scheduler) EnsureRootIsScheduled(root *fiber.Root) {
	s.appendRoot(root)
	root.MightHavePendingSyncWork = true

	if s.didScheduleMicrotask {
		return
	}
	s.didScheduleMicrotask = true

	if s.clk.SupportsMicrotasks() && !s.inRenderOrCommit {
		s.clk.ScheduleMicrotask(s.processRootScheduleInMicrotask)
	} else {
		s.clk.ScheduleCallback(clock.ImmediatePriority, s.processRootScheduleInMicrotask)
	}
}

// processRootScheduleInMicrotask clears the debounce flag, then visits
// every scheduled root once. If the pass leaves any root with Sync pending,
// it flushes those roots synchronously before returning, matching spec.md
// §4.4's "after the microtask returns, flush_sync_work_across_roots
// processes these roots inline".
func (s *Scheduler) processRootScheduleInMicrotask() {
	s.didScheduleMicrotask = false
	now := s.clk.Now()

	sawSync := false
	for r := s.firstRoot; r != nil; {
		next := r.Next
		if s.scheduleTaskForRootDuringMicrotask(r, now) == lane.SyncLane {
			sawSync = true
		}
		r = next
	}
	if sawSync {
		s.FlushSyncWorkAcrossRoots()
	}
}

// scheduleTaskForRootDuringMicrotask computes what root should do next and
// arranges it: cancels stale callbacks, removes roots with nothing pending,
// arms a sync flush, or schedules perform_work_on_root at the mapped
// priority. It returns lane.SyncLane when the root was armed for a sync
// flush, so the caller knows to invoke FlushSyncWorkAcrossRoots.
func (s *Scheduler) scheduleTaskForRootDuringMicrotask(root *fiber.Root, now time.Time) lane.Set {
	root.MarkStarvedLanesAsExpired(now)

	wipLanes := s.renderState.WipLanesForRoot(root)
	nextLanes := root.GetNextLanes(wipLanes)

	if nextLanes == lane.NoLanes {
		s.cancelCallback(root)
		s.removeRoot(root)
		return lane.NoLanes
	}

	if lane.IncludesBlockingLane(nextLanes) || nextLanes&root.ExpiredLanes != 0 {
		s.cancelCallback(root)
		root.CallbackPriority = lane.SyncLane
		root.CallbackNode = nil
		return lane.SyncLane
	}

	priority := schedulerPriorityFor(nextLanes)
	if root.CallbackNode != nil && root.CallbackPriority == priorityAsLane(priority) {
		return lane.NoLanes
	}
	s.cancelCallback(root)
	root.CallbackPriority = priorityAsLane(priority)
	root.CallbackNode = s.clk.ScheduleCallback(priority, func() {
		s.performWorkOnRootViaSchedulerTask(root, nextLanes)
	})
	return lane.NoLanes
}

func (s *Scheduler) cancelCallback(root *fiber.Root) {
	if root.CallbackNode != nil {
		s.clk.CancelCallback(root.CallbackNode)
		root.CallbackNode = nil
	}
}

// performWorkOnRootViaSchedulerTask is the callback body armed by
// scheduleTaskForRootDuringMicrotask: it hands the root to the work loop
// and, once that returns, re-examines the root for follow-up lanes exactly
// as a fresh update_container call would.
func (s *Scheduler) performWorkOnRootViaSchedulerTask(root *fiber.Root, lanes lane.Set) {
	root.CallbackNode = nil
	s.performWork(root, lanes, false)
	s.EnsureRootIsScheduled(root)
}

// FlushSyncWorkAcrossRoots repeatedly scans the scheduled-root list for
// roots whose next lanes include Sync (or have expired) and renders them
// inline, looping until a full pass performs no work. Re-entrant calls are
// no-ops, matching spec.md §4.4's "guarded by is_flushing_work".
func (s *Scheduler) FlushSyncWorkAcrossRoots() {
	if s.isFlushingWork {
		return
	}
	s.isFlushingWork = true
	defer func() { s.isFlushingWork = false }()

	for {
		didPerformWork := false
		now := s.clk.Now()
		for r := s.firstRoot; r != nil; {
			next := r.Next
			if !r.MightHavePendingSyncWork {
				r = next
				continue
			}
			r.MarkStarvedLanesAsExpired(now)
			lanes := r.GetNextLanes(s.renderState.WipLanesForRoot(r))
			if lanes == lane.NoLanes {
				r = next
				continue
			}
			if lane.IncludesBlockingLane(lanes) || lanes&r.ExpiredLanes != 0 {
				s.cancelCallback(r)
				r.MightHavePendingSyncWork = false
				s.performWork(r, lanes, true)
				didPerformWork = true
				if r.GetNextLanes(lane.NoLanes) == lane.NoLanes {
					s.removeRoot(r)
				}
			}
			r = next
		}
		if !didPerformWork {
			return
		}
	}
}

// schedulerPriorityFor maps a lane set's highest-priority class onto the
// host scheduler's priority levels (spec.md §4.4).
func schedulerPriorityFor(lanes lane.Set) clock.Priority {
	highest := lane.Highest(lanes)
	switch {
	case highest == lane.SyncLane, highest == lane.InputContinuousLane:
		return clock.UserBlockingPriority
	case highest == lane.DefaultLane:
		return clock.NormalPriority
	case highest&lane.TransitionLanes != 0:
		return clock.NormalPriority
	case highest&lane.RetryLanes != 0:
		return clock.NormalPriority
	case highest == lane.IdleLane:
		return clock.IdlePriority
	default:
		return clock.NormalPriority
	}
}

// priorityAsLane gives CallbackPriority a lane.Set-shaped value to compare
// against even for non-sync priorities, where any stable, comparable value
// distinguishing one priority tier from another is sufficient — we reuse
// the lane whose class maps to that priority as the representative.
func priorityAsLane(p clock.Priority) lane.Set {
	switch p {
	case clock.UserBlockingPriority:
		return lane.InputContinuousLane
	case clock.NormalPriority:
		return lane.DefaultLane
	case clock.IdlePriority:
		return lane.IdleLane
	default:
		return lane.DefaultLane
	}
}
