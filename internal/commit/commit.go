// Package commit implements spec.md §4.7: the three-phase commit driver
// (BeforeMutation / Mutation / Layout) plus the asynchronous passive-effect
// pass, as three masked sweeps over a finished fiber tree.
package commit

import (
	"fmt"

	"github.com/recera/reconcile/internal/fiber"
	"github.com/recera/reconcile/pkg/host"
)

// debugLog is set by callers that want commit tracing.
var debugLog func(args ...any)

// SetDebugLog installs (or clears, with nil) a trace hook.
func SetDebugLog(fn func(args ...any)) { debugLog = fn }

func logf(format string, args ...any) {
	if debugLog != nil {
		debugLog(fmt.Sprintf(format, args...))
	}
}

// PendingPassiveEffect is queued by CommitRoot whenever a completed fiber
// carries the Passive flag; the caller (internal/workloop) is responsible
// for flushing these from a NormalPriority scheduler callback per spec.md
// §4.7's "passive effects run
// asynchronously, after paint".
//
// For a mount (Mount==true) FiberID is valid: the fiber survives commit
// (only deleted subtrees are freed), so the flush can read its live
// Node.Effect/EffectCleanup fields when it finally runs. For an unmount
// (Mount==false) Cleanup is captured eagerly at collection time, before
// Mutation frees the deleted fiber's arena slot out from under FiberID.
type PendingPassiveEffect struct {
	FiberID fiber.ID
	Mount   bool
	Cleanup func()
}

// Driver walks one finished work tree and commits it, via the host adapter
// supplied at construction.
type Driver struct {
	Tree    *fiber.Tree
	Adapter host.Adapter

	// containerInfo is scratch state for the duration of one CommitRoot
	// call — the work loop commits one root at a time (spec.md §5's single
	// writer invariant), so there is no concurrent-commit hazard in reusing
	// it across calls.
	containerInfo any
}

// NewDriver builds a commit driver bound to one tree/adapter pair.
func NewDriver(tree *fiber.Tree, adapter host.Adapter) *Driver {
	return &Driver{Tree: tree, Adapter: adapter}
}

// CommitRoot runs all three synchronous phases against finishedWork (the
// just-completed work-in-progress HostRoot fiber), flips root.Current to
// finishedWork once the host tree reflects it, and returns the passive
// effects that still need to run. Passive effects, including the cleanups of
// deleted subtrees, are collected before the mutation phase; the deletions
// themselves are processed inside the mutation phase, and the collected
// cleanups run only when the caller flushes the returned effects, after the
// removed host instances are already detached.
func (d *Driver) CommitRoot(root *fiber.Root, finishedWork fiber.ID) ([]PendingPassiveEffect, error) {
	w := d.Tree.Get(finishedWork)
	if w == nil {
		return nil, fmt.Errorf("commit: finishedWork %d not found", finishedWork)
	}
	d.containerInfo = root.ContainerInfo

	logf("CommitRoot: beginning before-mutation phase")
	d.commitBeforeMutation(w)

	// Passive effects must be collected before Mutation frees any deleted
	// subtree's arena slots, even though they are not flushed until
	// internal/workloop's passive-effect callback runs. collectPassiveEffects interleaves
	// unmounts and mounts per fiber as it walks the tree; partitionPassive
	// reorders the result so every unmount across the whole committed tree
	// runs before any mount, per spec.md's unmount-all-then-mount-all rule.
	passive := partitionPassive(d.collectPassiveEffects(w, nil))

	restoreState := d.Adapter.PrepareForCommit(root.ContainerInfo)
	logf("CommitRoot: beginning mutation phase")
	d.commitMutation(w)
	d.Adapter.ResetAfterCommit(root.ContainerInfo, restoreState)

	logf("CommitRoot: beginning layout phase")
	d.commitLayout(w)

	walkClear(d.Tree, w)
	root.Current = finishedWork
	return passive, nil
}

// partitionPassive reorders effects so every unmount runs before any mount,
// preserving each group's relative order. collectPassiveEffects produces
// them interleaved per fiber (a sibling's deletion unmount can land between
// another sibling's own unmount and mount), which is the wrong order for
// spec.md's "unmount all deleted effects, then mount all new ones, both in
// post-order" rule.
func partitionPassive(effects []PendingPassiveEffect) []PendingPassiveEffect {
	out := make([]PendingPassiveEffect, 0, len(effects))
	for _, e := range effects {
		if !e.Mount {
			out = append(out, e)
		}
	}
	for _, e := range effects {
		if e.Mount {
			out = append(out, e)
		}
	}
	return out
}

// clearEffectFlags resets one fiber's per-render flags to the static
// subset, per spec.md §4.2 invariant 4 — a committed fiber's Flags must not
// accumulate across renders, or bubbleProperties on a later
// fully-bailed-out ancestor would re-surface stale effects.
func clearEffectFlags(w *fiber.Node) {
	w.Flags &= fiber.StaticMask
	w.SubtreeFlags = fiber.NoFlags
	w.Deletions = nil
}

func walkClear(tree *fiber.Tree, w *fiber.Node) {
	clearEffectFlags(w)
	for c := w.FirstChild; c != 0; c = tree.Get(c).NextSibling {
		walkClear(tree, tree.Get(c))
	}
}
