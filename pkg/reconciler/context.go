package reconciler

import (
	"github.com/recera/reconcile/internal/fiber"
	"github.com/recera/reconcile/internal/lane"
)

// pendingBatch collects the roots UpdateContainer touched during a
// BatchedUpdates call, deferring EnsureRootIsScheduled until the batch
// closure returns — adapted from pkg/reactive/signal.go's Batch, which
// collects dirty fibers the same way and fires scheduler.MarkDirty once at
// Commit instead of once per Set call.
type pendingBatch struct {
	roots map[*fiber.Root]struct{}
}

// BatchedUpdates implements spec.md §6's batched_updates: every
// UpdateContainer call made (directly or transitively) inside fn is
// recorded but not scheduled until fn returns, at which point each distinct
// touched root is scheduled exactly once. Nested BatchedUpdates calls are
// fine — the inner call's roots simply join the outer batch instead of
// scheduling early, mirroring signal.go's oldBatch/batchContext.Swap
// restore-on-defer pattern.
func (r *Reconciler) BatchedUpdates(fn func()) {
	r.mu.Lock()
	outer := r.batch
	b := &pendingBatch{roots: make(map[*fiber.Root]struct{})}
	r.batch = b
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.batch = outer
		roots := b.roots
		r.mu.Unlock()

		for root := range roots {
			if outer != nil {
				// Still inside an enclosing batch: hand the roots up
				// instead of scheduling now.
				r.mu.Lock()
				outer.roots[root] = struct{}{}
				r.mu.Unlock()
				continue
			}
			r.engine.Scheduler().EnsureRootIsScheduled(root)
		}
	}()
	fn()
}

// DiscreteUpdates implements spec.md §6's discrete_updates: updates
// enqueued inside fn request InputContinuousLane (the lane class
// internal/rootsched maps onto UserBlockingPriority), matching a host
// event the user is actively waiting on — a click or keystroke — rather
// than DefaultLane's background urgency.
func (r *Reconciler) DiscreteUpdates(fn func()) {
	r.mu.Lock()
	prev := r.currentUpdatePriority
	r.currentUpdatePriority = lane.InputContinuousLane
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.currentUpdatePriority = prev
		r.mu.Unlock()
	}()
	fn()
}

// StartTransition implements the transition half of spec.md §6's priority
// channel: allocates one fresh transition lane for the whole call to fn, so
// every UpdateContainer inside it (even across multiple roots) lands on the
// same lane and therefore renders, suspends, and commits together.
func (r *Reconciler) StartTransition(fn func()) {
	r.mu.Lock()
	prevPriority := r.currentUpdatePriority
	prevTransition := r.currentEventTransitionLane
	r.currentUpdatePriority = lane.NoLanes
	r.currentEventTransitionLane = lane.NextTransitionLane()
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.currentUpdatePriority = prevPriority
		r.currentEventTransitionLane = prevTransition
		r.mu.Unlock()
	}()
	fn()
}

// FlushSync implements spec.md §6's flush_sync: updates enqueued inside fn
// request SyncLane, and once fn returns every root with pending sync work
// is rendered and committed inline before FlushSync returns (rather than
// waiting for the next microtask), via the same
// FlushSyncWorkAcrossRoots internal/rootsched already runs after its own
// coalescing microtask.
//
// Calling FlushSync again from inside a FlushSync callback is caller
// misuse (spec.md §7's "nested render/commit entry" — this reconciler has
// no true re-entrant render/commit to guard since the engine is single-
// goroutine by contract, so re-entrant FlushSync is the reachable
// equivalent) and panics with a *FatalError rather than silently
// deadlocking or double-flushing.
func (r *Reconciler) FlushSync(fn func()) {
	r.mu.Lock()
	if r.flushingSync {
		r.mu.Unlock()
		panic(&FatalError{Op: "flush_sync", Err: errNestedFlushSync})
	}
	r.flushingSync = true
	prevPriority := r.currentUpdatePriority
	r.currentUpdatePriority = lane.SyncLane
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.currentUpdatePriority = prevPriority
		r.flushingSync = false
		r.mu.Unlock()
		r.engine.Scheduler().FlushSyncWorkAcrossRoots()
	}()
	fn()
}
