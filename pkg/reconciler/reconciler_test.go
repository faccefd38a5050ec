package reconciler

import (
	"testing"
	"time"

	"github.com/recera/reconcile/internal/lane"
	"github.com/recera/reconcile/pkg/clock"
	"github.com/recera/reconcile/pkg/element"
	"github.com/recera/reconcile/pkg/host/memadapter"
)

func newTestReconciler() (*Reconciler, *clock.Virtual) {
	vc := clock.NewVirtual(time.Unix(0, 0))
	return New(vc), vc
}

func TestCreateAndUpdateContainerMountsTree(t *testing.T) {
	r, vc := newTestReconciler()
	adapter := memadapter.New()
	root := r.CreateContainer(adapter.Root, adapter, 0, ErrorCallbacks{})

	l := r.UpdateContainer(element.Host("div", element.Props{"id": "a"}, element.Text("hi")), root, nil)
	if l != lane.DefaultLane {
		t.Fatalf("expected DefaultLane outside any priority scope, got %v", l)
	}

	vc.RunMicrotasks()
	vc.RunDue()

	if len(adapter.Root.Children) != 1 || adapter.Root.Children[0].Tag != "div" {
		t.Fatalf("expected <div> mounted, got %s", adapter.Root.Dump())
	}
}

func TestFlushSyncCommitsImmediatelyAtSyncLane(t *testing.T) {
	r, _ := newTestReconciler()
	adapter := memadapter.New()
	root := r.CreateContainer(adapter.Root, adapter, 0, ErrorCallbacks{})

	var gotLane lane.Set
	r.FlushSync(func() {
		gotLane = r.UpdateContainer(element.Host("span", nil), root, nil)
	})

	if gotLane != lane.SyncLane {
		t.Fatalf("expected SyncLane inside FlushSync, got %v", gotLane)
	}
	if len(adapter.Root.Children) != 1 || adapter.Root.Children[0].Tag != "span" {
		t.Fatalf("expected FlushSync to commit inline, got %s", adapter.Root.Dump())
	}
}

func TestNestedFlushSyncPanicsFatal(t *testing.T) {
	r, _ := newTestReconciler()
	adapter := memadapter.New()
	root := r.CreateContainer(adapter.Root, adapter, 0, ErrorCallbacks{})

	defer func() {
		rec := recover()
		if rec == nil {
			t.Fatal("expected a panic from the re-entrant FlushSync call")
		}
		if _, ok := rec.(*FatalError); !ok {
			t.Fatalf("expected *FatalError, got %T: %v", rec, rec)
		}
	}()

	r.FlushSync(func() {
		r.FlushSync(func() {
			r.UpdateContainer(element.Host("span", nil), root, nil)
		})
	})
}

func TestBatchedUpdatesSchedulesEachRootOnce(t *testing.T) {
	r, vc := newTestReconciler()
	a1, a2 := memadapter.New(), memadapter.New()
	root1 := r.CreateContainer(a1.Root, a1, 0, ErrorCallbacks{})
	root2 := r.CreateContainer(a2.Root, a2, 0, ErrorCallbacks{})

	r.BatchedUpdates(func() {
		r.UpdateContainer(element.Host("a", element.Props{"id": "x"}), root1, nil)
		r.UpdateContainer(element.Host("a", element.Props{"id": "y"}), root1, nil)
		r.UpdateContainer(element.Host("b", nil), root2, nil)
	})

	vc.RunMicrotasks()
	vc.RunDue()

	if len(a1.Root.Children) != 1 || a1.Root.Children[0].Props["id"] != "y" {
		t.Fatalf("expected root1's second update to win, got %s", a1.Root.Dump())
	}
	if len(a2.Root.Children) != 1 || a2.Root.Children[0].Tag != "b" {
		t.Fatalf("expected root2 mounted, got %s", a2.Root.Dump())
	}
}

func TestStartTransitionSharesOneLaneAcrossUpdates(t *testing.T) {
	r, _ := newTestReconciler()
	adapter := memadapter.New()
	root := r.CreateContainer(adapter.Root, adapter, 0, ErrorCallbacks{})

	var first, second lane.Set
	r.StartTransition(func() {
		first = r.UpdateContainer(element.Host("a", nil), root, nil)
		second = r.UpdateContainer(element.Host("b", nil), root, nil)
	})

	if first == lane.DefaultLane || first == lane.NoLanes {
		t.Fatalf("expected a transition lane, got %v", first)
	}
	if first != second {
		t.Fatalf("expected both updates in one transition to share a lane, got %v and %v", first, second)
	}
}

func TestDiscreteUpdatesUsesInputContinuousLane(t *testing.T) {
	r, _ := newTestReconciler()
	adapter := memadapter.New()
	root := r.CreateContainer(adapter.Root, adapter, 0, ErrorCallbacks{})

	var got lane.Set
	r.DiscreteUpdates(func() {
		got = r.UpdateContainer(element.Host("a", nil), root, nil)
	})

	if got != lane.InputContinuousLane {
		t.Fatalf("expected InputContinuousLane, got %v", got)
	}
}

func TestUpdateContainerOnUnregisteredRootPanicsFatal(t *testing.T) {
	r, _ := newTestReconciler()

	defer func() {
		rec := recover()
		if rec == nil {
			t.Fatal("expected a panic for a root never passed through CreateContainer")
		}
		if _, ok := rec.(*FatalError); !ok {
			t.Fatalf("expected *FatalError, got %T: %v", rec, rec)
		}
	}()

	bareAdapter := memadapter.New()
	bareRoot := New(clock.NewVirtual(time.Unix(0, 0))).CreateContainer(bareAdapter.Root, bareAdapter, 0, ErrorCallbacks{})
	// Simulate a root whose UpdateQueue was never installed (e.g. hand-built
	// outside CreateContainer) by clearing it back out.
	bareRoot.Tree.Get(bareRoot.Current).UpdateQueue = nil
	r.UpdateContainer(element.Host("a", nil), bareRoot, nil)
}
