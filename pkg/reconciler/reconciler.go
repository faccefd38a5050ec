// Package reconciler is the public entry point spec.md §6 describes:
// create_container, update_container, flush_sync, batched_updates,
// discrete_updates. Everything under internal/ is reachable only through
// this package — a caller never constructs a fiber.Root or calls
// workloop.Engine directly.
//
// One struct (Reconciler) holds the process's mutable scheduling state, and
// New()+methods over it is the whole surface a caller ever touches; the
// batching and priority helpers in context.go (BatchedUpdates,
// DiscreteUpdates, StartTransition, FlushSync) nest the same way around
// that shared state.
package reconciler

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/recera/reconcile/internal/dispatch"
	"github.com/recera/reconcile/internal/fiber"
	"github.com/recera/reconcile/internal/lane"
	"github.com/recera/reconcile/internal/update"
	"github.com/recera/reconcile/internal/workloop"
	"github.com/recera/reconcile/pkg/clock"
	"github.com/recera/reconcile/pkg/element"
	"github.com/recera/reconcile/pkg/host"
)

// FatalError is raised for the programming-bug class of failure spec.md §7
// lists as "thrown fatal" rather than recoverable: an unknown fiber tag, a
// root used before CreateContainer, or flush_sync re-entered from inside
// itself. It sits at the public API surface, not behind the panic/recover
// boundary that guards one fiber's render, since these are caller misuse,
// not render-phase errors an error boundary could ever meaningfully catch.
type FatalError struct {
	Op  string
	Err error
}

func (e *FatalError) Error() string { return fmt.Sprintf("reconciler: %s: %v", e.Op, e.Err) }
func (e *FatalError) Unwrap() error { return e.Err }

var errNestedFlushSync = errors.New("flush_sync called re-entrantly from within a flush_sync callback")
var errRootNotCreated = errors.New("root was never created via Reconciler.CreateContainer")

// ErrorCallbacks carries the three error hooks spec.md §6's create_container
// accepts, invoked by the work loop during a render/commit pass
// (workloop.Engine's PerformWorkOnRoot, commitFinishedWork and
// throwAndUnwindWorkLoop reach these through fiber.Root's own fields;
// internal/commit never calls them).
type ErrorCallbacks struct {
	OnUncaughtError    func(err error)
	OnRecoverableError func(err error)
	OnCaughtError      func(err error, boundary fiber.ID)
}

// Reconciler owns the process-wide scheduling state spec.md §4.4/§6
// describe as process-wide variables: the root scheduler/work loop engine,
// and the current-update-priority / current-event-transition-lane pair
// request_update_lane reads. Scoped to an instance rather than true package
// globals so a test can run several independent reconcilers (each against
// its own clock.Virtual) without cross-talk — see DESIGN.md's Open
// Question resolution for this package.
type Reconciler struct {
	engine *workloop.Engine
	clk    clock.Clock

	mu                         sync.Mutex
	currentUpdatePriority      lane.Set
	currentEventTransitionLane lane.Set
	flushingSync               bool
	batch                      *pendingBatch
}

// New builds a Reconciler driven by clk. One Reconciler can own any number
// of containers (spec.md's "single per-process" scheduler list is this
// instance's internal/rootsched.Scheduler).
func New(clk clock.Clock) *Reconciler {
	return &Reconciler{engine: workloop.New(clk), clk: clk}
}

// CreateContainer implements spec.md §6's create_container, minus the
// hydrate/identifier_prefix/initial_form_state parameters: hydration and
// server-rendered forms are out of scope (spec.md §1's Non-goals), and
// identifier_prefix only exists to namespace ids hydration needs to match
// against pre-rendered markup. adapter is the host binding this container
// renders against; mode carries ConcurrentMode/StrictMode/ProfileMode.
func (r *Reconciler) CreateContainer(containerInfo any, adapter host.Adapter, mode fiber.Mode, cbs ErrorCallbacks) *fiber.Root {
	root := fiber.NewRoot(containerInfo, mode)
	rootNode := root.Tree.Get(root.Current)
	rootNode.UpdateQueue = update.NewQueue(nil, nil)

	onUncaught := cbs.OnUncaughtError
	root.OnUncaughtError = func(err error) {
		if errors.Is(err, dispatch.ErrUnknownTag) {
			err = &FatalError{Op: "unknown fiber tag", Err: err}
		}
		if onUncaught != nil {
			onUncaught(err)
			return
		}
		panic(err)
	}
	root.OnRecoverableError = cbs.OnRecoverableError
	root.OnCaughtError = cbs.OnCaughtError

	r.engine.RegisterRoot(root, adapter)
	return root
}

// UpdateContainer implements spec.md §6's update_container: compute the
// request lane from the priority channel (§6 "Priority channel"), enqueue a
// ReplaceState update carrying el as the new root element, and ensure the
// root is scheduled. Returns the lane the update was enqueued at.
func (r *Reconciler) UpdateContainer(el *element.Element, root *fiber.Root, callback func()) lane.Set {
	rootNode := root.Tree.Get(root.Current)
	if rootNode == nil || rootNode.UpdateQueue == nil {
		panic(&FatalError{Op: "update_container", Err: errRootNotCreated})
	}

	l := r.RequestUpdateLane(root)

	u := update.NewUpdate(l)
	u.Tag = update.ReplaceState
	u.Payload = update.Payload{Value: el}
	u.Callback = callback
	rootNode.UpdateQueue.Enqueue(u)

	root.MarkRootUpdated(l, r.clk.Now())

	r.mu.Lock()
	b := r.batch
	if b != nil {
		b.roots[root] = struct{}{}
	}
	r.mu.Unlock()

	if b == nil {
		r.engine.Scheduler().EnsureRootIsScheduled(root)
	}
	return l
}

// RequestUpdateLane implements spec.md §6's priority channel: an explicit
// current_update_priority wins; failing that, an enclosing StartTransition
// scope supplies its one allocated lane; otherwise DefaultLane.
func (r *Reconciler) RequestUpdateLane(root *fiber.Root) lane.Set {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.currentUpdatePriority != lane.NoLanes {
		return r.currentUpdatePriority
	}
	if r.currentEventTransitionLane != lane.NoLanes {
		return r.currentEventTransitionLane
	}
	return lane.DefaultLane
}

// Engine exposes the underlying work-loop engine for callers that need
// direct scheduler access (internal/livebridge's telemetry reads pending
// lanes off the roots this reconciler owns).
func (r *Reconciler) Engine() *workloop.Engine { return r.engine }

// Now is a thin passthrough to the injected clock, for callers timestamping
// telemetry against the same clock the reconciler renders against.
func (r *Reconciler) Now() time.Time { return r.clk.Now() }
