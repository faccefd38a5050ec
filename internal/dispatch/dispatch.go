// Package dispatch implements spec.md §4.6: per-tag begin_work/complete_work
// dispatch and child reconciliation. Child reconciliation uses a key-to-old-
// fiber map plus a "matched" set of old fiber IDs to diff a fiber's current
// sibling chain against a []*element.Element list, turning the comparison
// into Placement/ChildDeletion flags on a fresh work-in-progress chain.
package dispatch

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/recera/reconcile/internal/fiber"
	"github.com/recera/reconcile/internal/lane"
	"github.com/recera/reconcile/internal/update"
	"github.com/recera/reconcile/pkg/element"
	"github.com/recera/reconcile/pkg/host"
)

// Context is the per-render dispatch state: the fiber arena being built,
// the host adapter (used by complete_work to create host instances, append
// initial children, and prepare update payloads — mutating the live host
// tree is internal/commit's job), and the context-provider stack.
// Spec.md §9 groups per-render mutable state into one object rather than
// scattering package-level globals; Context is that object for begin/complete.
type Context struct {
	Tree    *fiber.Tree
	Adapter host.Adapter

	providerStack []providerFrame
	lazyCache     map[*element.LazyLoader]*lazyState

	// lazySem bounds how many LazyLoader.Load calls run at once: a tree
	// that suspends on dozens of LazyComponents in the same render would
	// otherwise spawn a goroutine per loader with no ceiling.
	lazySem *semaphore.Weighted
}

const maxConcurrentLazyLoads = 8

type providerFrame struct {
	cell  *element.Context
	value any
}

// lazyState caches one LazyLoader's resolution across renders (so a retried
// render doesn't call Load again) and the in-flight goroutine's result,
// guarded by mu since Load runs on its own goroutine while the single
// work-loop goroutine reads it through snapshot.
type lazyState struct {
	mu       sync.Mutex
	started  bool
	pending  bool
	resolved *element.Element
	err      error
	thenable *lazyThenable
}

func (s *lazyState) start(loader *element.LazyLoader, sem *semaphore.Weighted) *lazyThenable {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return s.thenable
	}
	s.started = true
	s.pending = true
	s.thenable = &lazyThenable{}
	t := s.thenable
	s.mu.Unlock()

	go func() {
		// Acquire blocks the goroutine (not the render loop, which never
		// waits on this) until fewer than maxConcurrentLazyLoads other
		// loaders are in flight.
		_ = sem.Acquire(context.Background(), 1)
		defer sem.Release(1)

		resolved, err := loader.Load()
		s.mu.Lock()
		s.pending = false
		s.resolved, s.err = resolved, err
		s.mu.Unlock()
		t.settle()
	}()
	return t
}

func (s *lazyState) snapshot() (started, pending bool, resolved *element.Element, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started, s.pending, s.resolved, s.err
}

// lazyThenable is the suspend.Thenable a LazyComponent throws: OnSettled
// callbacks registered by the work loop's suspend handler are invoked once
// (from the loader's goroutine) when Load returns.
type lazyThenable struct {
	mu      sync.Mutex
	settled bool
	waiters []func()
}

func (t *lazyThenable) OnSettled(fn func()) {
	t.mu.Lock()
	if t.settled {
		t.mu.Unlock()
		fn()
		return
	}
	t.waiters = append(t.waiters, fn)
	t.mu.Unlock()
}

func (t *lazyThenable) settle() {
	t.mu.Lock()
	t.settled = true
	w := t.waiters
	t.waiters = nil
	t.mu.Unlock()
	for _, fn := range w {
		fn()
	}
}

// NewContext creates dispatch state for one reconciler instance.
func NewContext(tree *fiber.Tree, adapter host.Adapter) *Context {
	return &Context{
		Tree:      tree,
		Adapter:   adapter,
		lazyCache: make(map[*element.LazyLoader]*lazyState),
		lazySem:   semaphore.NewWeighted(maxConcurrentLazyLoads),
	}
}

// readContext resolves the current value of cell, walking the provider
// stack from the top (nearest ancestor) down, falling back to cell.Default.
func (c *Context) readContext(cell *element.Context) any {
	for i := len(c.providerStack) - 1; i >= 0; i-- {
		if c.providerStack[i].cell == cell {
			return c.providerStack[i].value
		}
	}
	return cell.Default
}

func (c *Context) pushProvider(cell *element.Context, value any) {
	c.providerStack = append(c.providerStack, providerFrame{cell: cell, value: value})
}

func (c *Context) popProvider() {
	c.providerStack = c.providerStack[:len(c.providerStack)-1]
}

// PopProviderForUnwind undoes a ContextProvider fiber's push during the
// unwind path (spec.md §4.5's unwind_unit_of_work), mirroring what
// completeWork's normal ContextProvider case does on the happy path — the
// provider stack has to stay balanced whichever way a fiber leaves begin/complete.
func (c *Context) PopProviderForUnwind() {
	c.popProvider()
}

// ErrUnknownTag is returned (wrapped) when a fiber's Tag has no dispatch
// case, which only happens if a caller constructs a fiber by hand instead of
// through createFiberForElement.
var ErrUnknownTag = fmt.Errorf("dispatch: unrecognized fiber tag")

func propsEqualShallow(a, b element.Props) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		bv, ok := b[k]
		if !ok {
			return false
		}
		if fmt.Sprintf("%#v", v) != fmt.Sprintf("%#v", bv) {
			return false
		}
	}
	return true
}

// applyUpdateQueue runs a fiber's pending update queue (if any) against
// renderLanes, folding the result into wip's state and effect flags, per
// spec.md §4.3/§4.6's "process_update_queue, then fold flags".
func applyUpdateQueue(wip *fiber.Node, nextProps any, renderLanes, rootRenderLanes lane.Set) update.Result {
	if wip.UpdateQueue == nil {
		return update.Result{State: wip.MemoizedState}
	}
	res := wip.UpdateQueue.ProcessUpdateQueue(nextProps, renderLanes, rootRenderLanes)
	wip.Lanes = lane.Merge(lane.Remove(wip.Lanes, renderLanes), res.Lanes)
	wip.MemoizedState = res.State
	if res.SawCapture {
		wip.Flags = (wip.Flags &^ fiber.ShouldCapture) | fiber.DidCapture
	}
	if res.HasCallback {
		wip.Flags |= fiber.Callback
	}
	if res.HiddenCallback {
		wip.Flags |= fiber.Visibility
	}
	return res
}
