package workloop

import (
	"github.com/recera/reconcile/internal/fiber"
	"github.com/recera/reconcile/internal/lane"
	"github.com/recera/reconcile/internal/suspend"
	"github.com/recera/reconcile/internal/update"
	"github.com/recera/reconcile/pkg/element"
)

// completeUnitOfWork implements spec.md §4.5's complete_unit_of_work:
// complete_work on wip, then walk back up through parents that have no
// further sibling, until either a sibling is found (the new unit of work) or
// the HostRoot itself completes (the render is done).
func (e *Engine) completeUnitOfWork(rc *rootCtx, root *fiber.Root, wip fiber.ID) {
	tree := root.Tree
	rs := rc.rs
	node := wip

	for {
		w := tree.Get(node)
		current := w.Alternate

		if w.HasFlag(fiber.Incomplete) {
			e.unwindUnitOfWork(rc, root, node)
			return
		}

		if err := rc.dctx.CompleteWork(current, node); err != nil {
			e.throwAndUnwindWorkLoop(rc, root, node, err)
			return
		}

		if sib := w.NextSibling; sib != 0 {
			rs.wipNode = sib
			return
		}
		if w.Parent == 0 {
			rs.wipNode = 0
			rs.finishedWork = node
			rs.exitStatus = RootCompleted
			return
		}
		node = w.Parent
	}
}

// unwindUnitOfWork walks back up from a fiber already marked ShouldCapture
// or Incomplete, popping any context a ContextProvider along the way pushed,
// until it finds the fiber that ShouldCapture was actually set on (the
// boundary throwAndUnwindWorkLoop located) — at which point that fiber is
// re-entered as a fresh unit of work so begin_work can render its
// fallback/error state.
func (e *Engine) unwindUnitOfWork(rc *rootCtx, root *fiber.Root, from fiber.ID) {
	tree := root.Tree
	rs := rc.rs
	node := from

	for {
		w := tree.Get(node)
		if w.Tag == fiber.ContextProvider {
			rc.dctx.PopProviderForUnwind()
		}
		if w.HasFlag(fiber.ShouldCapture) {
			rs.wipNode = node
			return
		}
		w.Flags |= fiber.Incomplete
		if w.Parent == 0 {
			rs.wipNode = 0
			rs.exitStatus = RootFatalErrored
			return
		}
		node = w.Parent
	}
}

// throwAndUnwindWorkLoop implements spec.md §4.5's throw_and_unwind_work_loop:
// a begin_work or complete_work call raised err (either a suspend.Signal
// thrown by a suspending component, or a plain render error). Find the
// nearest fiber that can capture it — a SuspenseComponent for a suspend
// signal, a ClassComponent implementing element.ErrorBoundary for anything
// else — mark it, and resume the work loop there. If no such ancestor
// exists, the whole render is fatal.
func (e *Engine) throwAndUnwindWorkLoop(rc *rootCtx, root *fiber.Root, wip fiber.ID, err error) {
	tree := root.Tree
	rs := rc.rs

	if sig, ok := suspend.AsSignal(err); ok {
		boundary := findNearestSuspenseBoundary(tree, wip)
		if boundary == 0 {
			rs.wipNode = 0
			rs.exitStatus = RootFatalErrored
			rs.thrownValue = err
			return
		}
		e.unwindToBoundary(rc, root, wip, boundary)

		b := tree.Get(boundary)
		// Suspense capture is a direct flag the boundary's own begin_work
		// checks (dispatch.beginSuspense), not an update-queue round trip:
		// there is no component state involved in "show the fallback".
		b.Flags |= fiber.DidCapture

		lanes := rs.wipRenderLanes
		sig.Value.OnSettled(func() {
			e.clk.ScheduleMicrotask(func() { e.onPing(root, lanes) })
		})

		rs.suspendedReason = SuspendedOnData
		rs.wipNode = boundary
		return
	}

	boundary := findNearestErrorBoundary(tree, wip)
	if boundary == 0 {
		rs.wipNode = 0
		rs.exitStatus = RootFatalErrored
		rs.thrownValue = err
		return
	}
	e.unwindToBoundary(rc, root, wip, boundary)

	b := tree.Get(boundary)
	b.Flags |= fiber.ShouldCapture
	if b.UpdateQueue == nil {
		b.UpdateQueue = update.NewQueue(b.MemoizedState, nil)
	}
	inst, _ := b.StateNode.(element.Instance)
	caught := err
	capture := update.NewUpdate(rs.rootRenderLanes)
	capture.Tag = update.CaptureUpdate
	capture.Payload = update.Payload{Fn: func(prevState, nextProps any) any {
		if eb, ok := inst.(element.ErrorBoundary); ok {
			return eb.GetDerivedStateFromError(caught)
		}
		return prevState
	}}
	b.UpdateQueue.Enqueue(capture)

	rs.suspendedReason = SuspendedOnError
	rs.recoverableErrors = append(rs.recoverableErrors, err)
	rs.wipNode = boundary

	if root.OnCaughtError != nil {
		root.OnCaughtError(err, boundary)
	}
}

// unwindToBoundary marks every fiber strictly between from and boundary
// Incomplete (popping context providers along the way), then discards
// whatever work-in-progress children boundary itself had already built this
// render — it is about to be re-entered from begin_work with DidCapture/
// ShouldCapture set, and a stale partial child chain would otherwise leak
// orphaned WIP fibers the arena never reclaims.
func (e *Engine) unwindToBoundary(rc *rootCtx, root *fiber.Root, from, boundary fiber.ID) {
	tree := root.Tree
	node := from
	for node != boundary && node != 0 {
		w := tree.Get(node)
		if w.Tag == fiber.ContextProvider {
			rc.dctx.PopProviderForUnwind()
		}
		w.Flags |= fiber.Incomplete
		node = w.Parent
	}
	b := tree.Get(boundary)
	if b.FirstChild != 0 {
		root.Tree.FreeSubtree(b.FirstChild)
		b.FirstChild = 0
	}
}

func findNearestSuspenseBoundary(tree *fiber.Tree, wip fiber.ID) fiber.ID {
	for id := tree.Get(wip).Parent; id != 0; id = tree.Get(id).Parent {
		if tree.Get(id).Tag == fiber.SuspenseComponent {
			return id
		}
	}
	return 0
}

func findNearestErrorBoundary(tree *fiber.Tree, wip fiber.ID) fiber.ID {
	for id := tree.Get(wip).Parent; id != 0; id = tree.Get(id).Parent {
		w := tree.Get(id)
		if w.Tag != fiber.ClassComponent {
			continue
		}
		if inst, ok := w.StateNode.(element.Instance); ok {
			if _, ok := inst.(element.ErrorBoundary); ok {
				return id
			}
		}
	}
	return 0
}

// onPing implements spec.md §4.5's ping handling: once a suspended
// boundary's awaited thenable settles, fold its lane back into the root's
// pending set (entangled lanes stay suspended elsewhere) and re-arm the
// scheduler. The render that suspended is not resumed in place — its
// half-built WIP tree was already discarded when the boundary captured — a
// fresh render_root pass starts over, and this time the LazyComponent's
// cache already holds the resolution so it renders through instead of
// suspending again.
func (e *Engine) onPing(root *fiber.Root, lanes lane.Set) {
	if lanes == lane.NoLanes {
		lanes = lane.NextRetryLane()
	}
	root.Ping(lanes)
	root.MarkRootUpdated(lanes, e.clk.Now())
	e.scheduler.EnsureRootIsScheduled(root)
}
