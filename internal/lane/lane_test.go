package lane

import (
	"testing"
	"time"
)

func TestMergeRemoveIntersect(t *testing.T) {
	tests := []struct {
		name string
		a, b Set
		want Set
		op   func(a, b Set) Set
	}{
		{"merge disjoint", SyncLane, DefaultLane, SyncLane | DefaultLane, Merge},
		{"merge overlapping", SyncLane | DefaultLane, DefaultLane, SyncLane | DefaultLane, Merge},
		{"remove present", SyncLane | DefaultLane, DefaultLane, SyncLane, Remove},
		{"remove absent", SyncLane, DefaultLane, SyncLane, Remove},
		{"intersect shared", SyncLane | DefaultLane, DefaultLane | IdleLane, DefaultLane, Intersect},
		{"intersect none", SyncLane, DefaultLane, NoLanes, Intersect},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.op(tt.a, tt.b); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsSubset(t *testing.T) {
	if !IsSubset(SyncLane, SyncLane|DefaultLane) {
		t.Errorf("expected SyncLane to be a subset")
	}
	if IsSubset(SyncLane|IdleLane, SyncLane) {
		t.Errorf("did not expect SyncLane|IdleLane to be a subset of SyncLane")
	}
}

func TestHighestPriorityLane(t *testing.T) {
	if got := Highest(DefaultLane | SyncLane); got != SyncLane {
		t.Errorf("got %v, want SyncLane", got)
	}
	if got := Highest(NoLanes); got != NoLanes {
		t.Errorf("got %v, want NoLanes", got)
	}
}

func TestGetNextLanes(t *testing.T) {
	t.Run("sync preferred over default", func(t *testing.T) {
		got := GetNextLanes(SyncLane|DefaultLane, NoLanes, NoLanes, NoLanes, NoLanes)
		if got != SyncLane {
			t.Errorf("got %v, want SyncLane", got)
		}
	})

	t.Run("suspended lanes excluded unless pinged", func(t *testing.T) {
		got := GetNextLanes(DefaultLane, DefaultLane, NoLanes, NoLanes, NoLanes)
		if got != NoLanes {
			t.Errorf("got %v, want NoLanes (suspended with no ping)", got)
		}
		got = GetNextLanes(DefaultLane, DefaultLane, DefaultLane, NoLanes, NoLanes)
		if got != DefaultLane {
			t.Errorf("got %v, want DefaultLane (pinged)", got)
		}
	})

	t.Run("expired always included", func(t *testing.T) {
		got := GetNextLanes(TransitionLane1, NoLanes, NoLanes, TransitionLane1, NoLanes)
		if got&TransitionLane1 == 0 {
			t.Errorf("expired lane must be included, got %v", got)
		}
	})

	t.Run("whole transition class included together", func(t *testing.T) {
		pending := TransitionLane1 | TransitionLane2 | DefaultLane
		got := GetNextLanes(pending, NoLanes, NoLanes, NoLanes, NoLanes)
		// DefaultLane outranks transitions, so only it should be selected.
		if got != DefaultLane {
			t.Errorf("got %v, want DefaultLane", got)
		}
		got = GetNextLanes(TransitionLane1|TransitionLane2, NoLanes, NoLanes, NoLanes, NoLanes)
		if got != TransitionLane1|TransitionLane2 {
			t.Errorf("got %v, want both transition lanes together", got)
		}
	})
}

func TestExpirationTracker(t *testing.T) {
	now := time.Unix(0, 0)
	tr := NewExpirationTracker()
	tr.MarkPending(DefaultLane, now)

	if s := tr.Starved(DefaultLane, now); s != NoLanes {
		t.Errorf("lane should not be starved immediately, got %v", s)
	}

	later := now.Add(6 * time.Second)
	if s := tr.Starved(DefaultLane, later); s != DefaultLane {
		t.Errorf("lane should be starved after its budget elapses, got %v", s)
	}

	tr.Clear(DefaultLane)
	if s := tr.Starved(DefaultLane, later); s != NoLanes {
		t.Errorf("cleared lane should not report starved, got %v", s)
	}
}

func TestEntanglementExpand(t *testing.T) {
	e := NewEntanglementMap()
	e.Entangle(TransitionLane1, TransitionLane2)
	e.Entangle(TransitionLane2, TransitionLane3)

	got := e.Expand(TransitionLane1)
	want := TransitionLane1 | TransitionLane2 | TransitionLane3
	if got != want {
		t.Errorf("got %v, want %v", got, want)
	}

	e.Clear(TransitionLanes)
	if got := e.Expand(TransitionLane1); got != TransitionLane1 {
		t.Errorf("expected entanglements cleared, got %v", got)
	}
}
