// Package workloop implements spec.md §4.5 (C5): the work loop that actually
// renders a root's fiber tree one unit of work at a time, in either
// concurrent (time-sliced, yields between units) or synchronous (runs to
// completion) mode, and commits the result.
//
// The loop walks a tree depth-first, rendering one fiber at a time and
// recovering from a panic so one bad component can't take the whole engine
// down. A ShouldYield check between units lets a render pause and resume
// across multiple host callbacks instead of running unconditionally to
// completion, and the suspend/error paths drive the unwind state machine
// spec.md §4.5 and §7 describe.
package workloop

import (
	"fmt"
	"sync"

	"github.com/recera/reconcile/internal/commit"
	"github.com/recera/reconcile/internal/dispatch"
	"github.com/recera/reconcile/internal/fiber"
	"github.com/recera/reconcile/internal/lane"
	"github.com/recera/reconcile/internal/rootsched"
	"github.com/recera/reconcile/internal/suspend"
	"github.com/recera/reconcile/pkg/clock"
	"github.com/recera/reconcile/pkg/host"
)

// ExitStatus is what one renderRootConcurrent/renderRootSync pass returns.
//
// spec.md distinguishes Errored (a recoverable error an external store can
// still retry) from FatalErrored (nothing left to retry). This reconciler
// has no external-store-tearing concept (no useSyncExternalStore
// equivalent), so there is nothing that would ever make the Errored/
// FatalErrored distinction observably different here — PerformWorkOnRoot
// always retries a fatal render exactly once, synchronously, before giving
// up, so a single ExitStatus covers both cases.
type ExitStatus uint8

const (
	RootInProgress ExitStatus = iota
	RootCompleted
	RootFatalErrored
)

// SuspendedReason records why the current render isn't proceeding straight
// through, for observability only (spec.md §4.5's SuspendedReason enum).
// Unlike the source material this reconciler has no hydration, actions, or
// resource-preload capability (spec.md's hydration Non-goal, and no host
// adapter method models either of the others), so those variants — spec.md's
// SuspendedOnHydration/SuspendedOnAction/SuspendedOnImmediate/
// SuspendedOnInstance/SuspendedOnDeprecatedThrowPromise — have no Go-side
// producer and are omitted rather than carried as permanently-unreachable
// stubs.
type SuspendedReason uint8

const (
	NotSuspended SuspendedReason = iota
	SuspendedOnData
	SuspendedOnError
)

// renderState is the per-root render-in-progress bookkeeping a concurrent
// render must persist across host callbacks (spec.md §4.5's WIP globals,
// generalized from package-level variables into one struct per root since a
// process may own several roots).
type renderState struct {
	wipNode      fiber.ID // current unit of work; 0 means "no render in flight"
	finishedWork fiber.ID // the completed HostRoot WIP fiber, valid once exitStatus == RootCompleted

	wipRenderLanes  lane.Set
	rootRenderLanes lane.Set

	exitStatus      ExitStatus
	suspendedReason SuspendedReason
	thrownValue     any

	recoverableErrors []error
}

func (rs *renderState) reset() {
	*rs = renderState{}
}

// rootCtx bundles the per-root collaborators a render/commit pass needs:
// the dispatch context (render-phase state, bound to this root's tree and
// adapter) and the commit driver (bound to the same pair).
type rootCtx struct {
	dctx   *dispatch.Context
	driver *commit.Driver
	rs     *renderState
}

// Engine drives every registered root's render/commit cycle. One Engine is
// shared by every root in a process, mirroring rootsched.Scheduler's
// single-per-process intrusive list (spec.md §4.4/§4.5 are two halves of the
// same process-wide loop).
type Engine struct {
	clk       clock.Clock
	scheduler *rootsched.Scheduler

	mu    sync.Mutex
	roots map[*fiber.Root]*rootCtx
}

// New builds an Engine and the rootsched.Scheduler it drives, wiring
// PerformWorkOnRoot as the scheduler's PerformWorkFunc and the Engine itself
// as its RenderState — the dependency-injection seam that avoids a rootsched
// <-> workloop import cycle.
func New(clk clock.Clock) *Engine {
	e := &Engine{clk: clk, roots: make(map[*fiber.Root]*rootCtx)}
	e.scheduler = rootsched.New(clk, e.PerformWorkOnRoot, e)
	return e
}

// Scheduler returns the root scheduler this engine drives, for callers
// (pkg/reconciler) that need to call EnsureRootIsScheduled/FlushSyncWorkAcrossRoots.
func (e *Engine) Scheduler() *rootsched.Scheduler { return e.scheduler }

// RegisterRoot wires a freshly constructed root into this engine, giving it
// its own dispatch context and commit driver bound to adapter. Must be
// called once per root before it is ever scheduled.
func (e *Engine) RegisterRoot(root *fiber.Root, adapter host.Adapter) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.roots[root] = &rootCtx{
		dctx:   dispatch.NewContext(root.Tree, adapter),
		driver: commit.NewDriver(root.Tree, adapter),
		rs:     &renderState{},
	}
}

func (e *Engine) rootCtxFor(root *fiber.Root) *rootCtx {
	e.mu.Lock()
	defer e.mu.Unlock()
	rc := e.roots[root]
	if rc == nil {
		panic("workloop: root was never registered via Engine.RegisterRoot")
	}
	return rc
}

func (e *Engine) peekRootCtx(root *fiber.Root) (*rootCtx, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rc, ok := e.roots[root]
	return rc, ok
}

// WipLanesForRoot implements rootsched.RenderState.
func (e *Engine) WipLanesForRoot(root *fiber.Root) lane.Set {
	rc, ok := e.peekRootCtx(root)
	if !ok || rc.rs.wipNode == 0 {
		return lane.NoLanes
	}
	return rc.rs.wipRenderLanes
}

// HasPendingCommit implements rootsched.RenderState. This engine always
// commits synchronously at the end of PerformWorkOnRoot, so a completed
// render is never left waiting for a separate commit pass.
func (e *Engine) HasPendingCommit(root *fiber.Root) bool { return false }

// PerformWorkOnRoot implements spec.md §4.5's perform_work_on_root: render
// (synchronously if forceSync or lanes include a blocking lane, otherwise
// concurrently) and, once the render completes, commit it.
func (e *Engine) PerformWorkOnRoot(root *fiber.Root, lanes lane.Set, forceSync bool) {
	rc := e.rootCtxFor(root)

	e.scheduler.SetRenderOrCommit(true)
	defer e.scheduler.SetRenderOrCommit(false)

	sync := forceSync || lane.IncludesBlockingLane(lanes)

	var status ExitStatus
	if sync {
		status = e.renderRootSync(rc, root, lanes)
	} else {
		status = e.renderRootConcurrent(rc, root, lanes)
	}

	switch status {
	case RootInProgress:
		return

	case RootFatalErrored:
		// Retry once, synchronously, from a clean stack — spec.md §7's
		// error table calls for recovery where possible; one retry catches
		// the common case of a transient render-phase panic without
		// looping forever on a persistently broken tree.
		rc.rs.reset()
		status = e.renderRootSync(rc, root, lanes)
		if status != RootCompleted {
			if root.OnUncaughtError != nil {
				root.OnUncaughtError(asError(rc.rs.thrownValue))
			}
			root.MarkLanesSettled(lanes)
			rc.rs.reset()
			return
		}
		e.commitFinishedWork(rc, root, lanes)

	case RootCompleted:
		e.commitFinishedWork(rc, root, lanes)
	}
}

func (e *Engine) commitFinishedWork(rc *rootCtx, root *fiber.Root, lanes lane.Set) {
	rs := rc.rs
	finished := rs.finishedWork

	if rs.suspendedReason == SuspendedOnData {
		root.MarkSuspended(lanes)
	}

	passives, err := rc.driver.CommitRoot(root, finished)
	if err != nil && root.OnUncaughtError != nil {
		root.OnUncaughtError(err)
	}

	if root.OnRecoverableError != nil {
		for _, recErr := range rs.recoverableErrors {
			root.OnRecoverableError(recErr)
		}
	}

	root.MarkLanesSettled(lanes)
	rc.rs.reset()

	if len(passives) > 0 {
		e.clk.ScheduleCallback(clock.NormalPriority, func() {
			e.flushPassiveEffects(root, passives)
		})
	}
}

func asError(v any) error {
	if err, ok := v.(error); ok {
		return err
	}
	return fmt.Errorf("workloop: %v", v)
}

// prepareFreshStack implements spec.md §4.5's prepare_fresh_stack: allocate
// (or reuse) a work-in-progress HostRoot fiber and reset the per-root render
// bookkeeping, discarding any half-finished previous attempt at these lanes.
func (e *Engine) prepareFreshStack(rc *rootCtx, root *fiber.Root, lanes lane.Set) {
	wip := root.Tree.CreateWorkInProgress(root.Current, nil)
	rc.rs.reset()
	rc.rs.wipNode = wip
	rc.rs.wipRenderLanes = lanes
	rc.rs.rootRenderLanes = lanes
}

// renderRootConcurrent implements spec.md §4.5's render_root_concurrent:
// (re)enter the work loop, yielding control back to the caller whenever the
// clock says the current time slice is spent.
func (e *Engine) renderRootConcurrent(rc *rootCtx, root *fiber.Root, lanes lane.Set) ExitStatus {
	if rc.rs.wipNode == 0 || rc.rs.wipRenderLanes != lanes {
		e.prepareFreshStack(rc, root, lanes)
	}
	return e.workLoopConcurrent(rc, root)
}

// renderRootSync implements spec.md §4.5's render_root_sync: run the work
// loop to completion, ignoring ShouldYield.
func (e *Engine) renderRootSync(rc *rootCtx, root *fiber.Root, lanes lane.Set) ExitStatus {
	if rc.rs.wipNode == 0 || rc.rs.wipRenderLanes != lanes {
		e.prepareFreshStack(rc, root, lanes)
	}
	return e.workLoopSync(rc, root)
}

func (e *Engine) workLoopConcurrent(rc *rootCtx, root *fiber.Root) ExitStatus {
	rs := rc.rs
	for rs.wipNode != 0 {
		if e.clk.ShouldYield() {
			return RootInProgress
		}
		e.performUnitOfWork(rc, root)
	}
	return rs.exitStatus
}

func (e *Engine) workLoopSync(rc *rootCtx, root *fiber.Root) ExitStatus {
	rs := rc.rs
	for rs.wipNode != 0 {
		e.performUnitOfWork(rc, root)
	}
	return rs.exitStatus
}

// performUnitOfWork implements spec.md §4.5's perform_unit_of_work:
// begin_work on the current unit, advancing to its first child, or — if it
// has none — completing it (and every ancestor that has no further sibling).
func (e *Engine) performUnitOfWork(rc *rootCtx, root *fiber.Root) {
	rs := rc.rs
	wip := rs.wipNode
	current := root.Tree.Get(wip).Alternate

	next, err := e.beginSafely(rc, current, wip)
	if err != nil {
		e.throwAndUnwindWorkLoop(rc, root, wip, err)
		return
	}
	if next != 0 {
		rs.wipNode = next
		return
	}
	e.completeUnitOfWork(rc, root, wip)
}

// beginSafely is the recover boundary spec.md §4.6 calls for: a panicked
// suspend.Signal or plain error from inside render is turned into a returned
// error instead of unwinding the Go call stack, so the work loop (not a
// user's render function) decides what happens next.
func (e *Engine) beginSafely(rc *rootCtx, current, wip fiber.ID) (next fiber.ID, err error) {
	defer func() {
		if r := recover(); r != nil {
			if sig, ok := suspend.AsSignal(r); ok {
				err = sig
				return
			}
			if asErr, ok := r.(error); ok {
				err = asErr
				return
			}
			err = fmt.Errorf("workloop: panic during render: %v", r)
		}
	}()
	return rc.dctx.BeginWork(current, wip, rc.rs.wipRenderLanes, rc.rs.rootRenderLanes)
}
