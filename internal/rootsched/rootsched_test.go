package rootsched

import (
	"testing"
	"time"

	"github.com/recera/reconcile/internal/fiber"
	"github.com/recera/reconcile/internal/lane"
	"github.com/recera/reconcile/pkg/clock"
)

func newTestRoot() *fiber.Root {
	return fiber.NewRoot(nil, 0)
}

func TestEnsureRootIsScheduledCoalescesMicrotasks(t *testing.T) {
	vc := clock.NewVirtual(time.Unix(0, 0))
	var performed int
	s := New(vc, func(root *fiber.Root, lanes lane.Set, forceSync bool) {
		performed++
	}, nil)

	root := newTestRoot()
	root.MarkRootUpdated(lane.DefaultLane, vc.Now())
	s.EnsureRootIsScheduled(root)
	root.MarkRootUpdated(lane.DefaultLane, vc.Now())
	s.EnsureRootIsScheduled(root) // second call within the same burst must not arm a second microtask

	if !s.didScheduleMicrotask {
		t.Fatal("expected a microtask to be armed")
	}

	vc.RunMicrotasks()
	if s.didScheduleMicrotask {
		t.Error("expected debounce flag cleared after the microtask ran")
	}
	vc.RunDue()

	if performed != 1 {
		t.Fatalf("expected exactly one performWork call, got %d", performed)
	}
}

func TestScheduleTaskForRootRemovesSettledRoot(t *testing.T) {
	vc := clock.NewVirtual(time.Unix(0, 0))
	s := New(vc, func(root *fiber.Root, lanes lane.Set, forceSync bool) {
		root.MarkLanesSettled(lanes)
	}, nil)

	root := newTestRoot()
	root.MarkRootUpdated(lane.DefaultLane, vc.Now())
	s.EnsureRootIsScheduled(root)

	if !root.Scheduled {
		t.Fatal("expected root to be in the scheduled list")
	}

	// First pass renders and settles the lanes; the follow-up
	// EnsureRootIsScheduled call re-arms a microtask to check for new
	// work, which the second pass finds none of and removes the root.
	vc.RunMicrotasks()
	vc.RunDue()
	vc.RunMicrotasks()

	if root.Scheduled {
		t.Error("expected root to be removed from the list once its lanes settled with nothing left pending")
	}
}

func TestSyncLaneFlushesInline(t *testing.T) {
	vc := clock.NewVirtual(time.Unix(0, 0))
	var sawForceSync bool
	s := New(vc, func(root *fiber.Root, lanes lane.Set, forceSync bool) {
		sawForceSync = forceSync
		root.MarkLanesSettled(lanes)
	}, nil)

	root := newTestRoot()
	root.MarkRootUpdated(lane.SyncLane, vc.Now())
	s.EnsureRootIsScheduled(root)

	vc.RunMicrotasks() // the microtask itself should flush sync work inline, no RunDue needed

	if !sawForceSync {
		t.Error("expected the sync lane to be flushed with forceSync=true before the microtask returns")
	}
	if root.Scheduled {
		t.Error("expected the root to be fully settled and removed after the sync flush")
	}
}

func TestExpiredLaneForcesSyncFlush(t *testing.T) {
	vc := clock.NewVirtual(time.Unix(0, 0))
	var performedForce bool
	s := New(vc, func(root *fiber.Root, lanes lane.Set, forceSync bool) {
		performedForce = forceSync
		root.MarkLanesSettled(lanes)
	}, nil)

	root := newTestRoot()
	root.MarkRootUpdated(lane.DefaultLane, vc.Now())
	s.EnsureRootIsScheduled(root)

	vc.Advance(10 * time.Second) // past DefaultLane's 5s expiration budget
	vc.RunMicrotasks()

	if !performedForce {
		t.Error("expected the starved DefaultLane to expire and flush synchronously")
	}
}

func TestFlushSyncWorkAcrossRootsIsReentrantSafe(t *testing.T) {
	vc := clock.NewVirtual(time.Unix(0, 0))
	depth := 0
	var s *Scheduler
	s = New(vc, func(root *fiber.Root, lanes lane.Set, forceSync bool) {
		depth++
		if depth == 1 {
			s.FlushSyncWorkAcrossRoots() // re-entrant call must be a no-op
		}
		root.MarkLanesSettled(lanes)
	}, nil)

	root := newTestRoot()
	root.MarkRootUpdated(lane.SyncLane, vc.Now())
	s.EnsureRootIsScheduled(root)
	vc.RunMicrotasks()

	if depth != 1 {
		t.Errorf("expected performWork to run exactly once despite the re-entrant flush, got %d", depth)
	}
}
