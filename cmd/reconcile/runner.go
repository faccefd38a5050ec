package main

import (
	"fmt"
	"time"

	"github.com/recera/reconcile/internal/devconfig"
	"github.com/recera/reconcile/internal/fiber"
	"github.com/recera/reconcile/internal/livebridge"
	"github.com/recera/reconcile/pkg/clock"
	"github.com/recera/reconcile/pkg/element"
	"github.com/recera/reconcile/pkg/host/memadapter"
	"github.com/recera/reconcile/pkg/reconciler"
)

// Runner replays one devconfig scenario against a single container, driven
// by a clock.Virtual so every step's "at" offset lands deterministically
// regardless of how long ResolveTree or the commit itself actually takes.
//
// Grounded on cmd/vango/dev.go's devServer: one long-lived struct holding
// the process's mutable run state (there, a build cache and live server;
// here, a reconciler and its one container), with a single entry point
// (there runDev, here Replay) that drives it to completion.
type Runner struct {
	cfg      *devconfig.Config
	clk      *clock.Virtual
	rec      *reconciler.Reconciler
	adapter  *memadapter.Adapter
	root     *fiber.Root
	bridge   *livebridge.Bridge
	traceLen int
}

// NewRunner builds a Runner for cfg. bridge may be nil, in which case no
// telemetry is published.
func NewRunner(cfg *devconfig.Config, bridge *livebridge.Bridge) *Runner {
	clk := clock.NewVirtual(time.Unix(0, 0))
	rec := reconciler.New(clk)
	adapter := memadapter.New()
	root := rec.CreateContainer(adapter.Root, adapter, fiber.ConcurrentMode, reconciler.ErrorCallbacks{
		OnUncaughtError: func(err error) {
			fmt.Println("reconcile: uncaught error:", err)
		},
	})

	return &Runner{cfg: cfg, clk: clk, rec: rec, adapter: adapter, root: root, bridge: bridge}
}

// Replay runs every scenario step in order, advancing the virtual clock to
// each step's offset before enqueuing its update, then draining microtasks
// and due callbacks so the commit that update produces happens before the
// next step fires — matching a single-root, single-tab host exactly as
// spec.md §8's scenarios assume.
func (r *Runner) Replay() error {
	var elapsed time.Duration
	for i, step := range r.cfg.Scenario.Steps {
		offset, err := step.Offset()
		if err != nil {
			return err
		}
		if offset > elapsed {
			r.clk.Advance(offset - elapsed)
			elapsed = offset
		}

		tree, err := ResolveTree(step.Tree)
		if err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}

		r.dispatch(step.Priority, tree)

		r.clk.RunMicrotasks()
		r.clk.RunDue()
		r.publish()
	}
	return nil
}

// dispatch enqueues tree at root under the priority scope "priority" names,
// mirroring spec.md §6's priority channel: "sync" flushes inline via
// FlushSync, "continuous" requests InputContinuousLane via DiscreteUpdates,
// "transition" allocates a shared transition lane via StartTransition, and
// anything else (including "default", "idle", "retry" — the latter two have
// no user-facing priority-scope equivalent since suspense/retry lanes are
// allocated internally, not requested by a caller) goes through
// UpdateContainer directly and lands on DefaultLane.
func (r *Runner) dispatch(priority string, tree *element.Element) {
	switch priority {
	case "sync":
		r.rec.FlushSync(func() {
			r.rec.UpdateContainer(tree, r.root, nil)
		})
	case "continuous":
		r.rec.DiscreteUpdates(func() {
			r.rec.UpdateContainer(tree, r.root, nil)
		})
	case "transition":
		r.rec.StartTransition(func() {
			r.rec.UpdateContainer(tree, r.root, nil)
		})
	default:
		r.rec.UpdateContainer(tree, r.root, nil)
	}
}

// publish reports every host-adapter trace entry recorded since the last
// publish, plus the root's current lane state, to the bridge (a no-op when
// no dashboard is attached).
func (r *Runner) publish() {
	if r.bridge == nil {
		return
	}
	fresh := r.adapter.Trace[r.traceLen:]
	r.traceLen = len(r.adapter.Trace)
	r.bridge.PublishCommit(r.cfg.Scenario.Name, fresh, r.root.PendingLanes, r.root.SuspendedLanes, r.root.ExpiredLanes, r.clk.Now())
}

// Dump renders the container's final host tree, for `reconcile run`'s
// summary output.
func (r *Runner) Dump() string {
	return r.adapter.Root.Dump()
}
