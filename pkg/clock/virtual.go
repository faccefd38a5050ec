package clock

import (
	"sort"
	"time"
)

// Virtual is a fully deterministic Clock for tests and scenario replay: time
// only advances when Advance is called, ShouldYield only returns true when
// the test asks it to, and both microtasks and scheduled callbacks are
// queued for the caller to flush explicitly via RunMicrotasks / RunDue.
type Virtual struct {
	now         time.Time
	yieldNow    bool
	microtasks  []func()
	callbacks   []*virtualCallback
	nextHandle  int
}

type virtualCallback struct {
	handle   int
	priority Priority
	due      time.Time
	fn       func()
	fired    bool
	canceled bool
}

// NewVirtual creates a virtual clock starting at t0.
func NewVirtual(t0 time.Time) *Virtual {
	return &Virtual{now: t0}
}

func (v *Virtual) Now() time.Time { return v.now }

// Advance moves the clock forward by d without running anything; callers
// then invoke RunDue to fire whatever became ready.
func (v *Virtual) Advance(d time.Duration) { v.now = v.now.Add(d) }

// SetShouldYield forces the next ShouldYield() calls to return y, modeling
// a host whose time-slice has (or hasn't) run out.
func (v *Virtual) SetShouldYield(y bool) { v.yieldNow = y }

func (v *Virtual) ShouldYield() bool { return v.yieldNow }

func (v *Virtual) ScheduleCallback(priority Priority, fn func()) Handle {
	v.nextHandle++
	cb := &virtualCallback{handle: v.nextHandle, priority: priority, due: v.now.Add(priorityOrder(priority)), fn: fn}
	v.callbacks = append(v.callbacks, cb)
	return cb
}

// priorityOrder gives virtual callbacks a stable relative ordering without
// claiming to model real host latency.
func priorityOrder(p Priority) time.Duration {
	return time.Duration(p) * time.Nanosecond
}

func (v *Virtual) CancelCallback(h Handle) {
	if cb, ok := h.(*virtualCallback); ok {
		cb.canceled = true
	}
}

func (v *Virtual) ScheduleMicrotask(fn func()) {
	v.microtasks = append(v.microtasks, fn)
}

func (v *Virtual) SupportsMicrotasks() bool { return true }

// RunMicrotasks drains every queued microtask, including ones newly queued
// by an already-draining microtask (FIFO to exhaustion), matching a real
// microtask checkpoint.
func (v *Virtual) RunMicrotasks() {
	for len(v.microtasks) > 0 {
		fn := v.microtasks[0]
		v.microtasks = v.microtasks[1:]
		fn()
	}
}

// RunDue fires every non-canceled scheduled callback whose due time has
// passed, in due-time order (ties broken by registration order), draining
// the microtasks each one queues before moving to the next. Since
// ScheduleCallback's due times are only relatively ordered by priority (a
// few nanoseconds apart, not real wall-clock deltas — see priorityOrder),
// RunDue first advances the virtual clock itself to the furthest currently
// pending due time, establishing this call's horizon, rather than requiring
// the caller to Advance by just the right amount.
//
// A fired callback's own nested ScheduleCallback/ScheduleMicrotask calls
// (the common "scheduler callback re-arms itself" pattern) are picked up too
// — but only if due at or before this call's horizon. A callback scheduled
// for later than that (e.g. a still-yielding root re-arming itself) is left
// for the next RunDue call, matching one real event-loop turn; without this
// bound a root that keeps re-arming itself every tick would make a single
// RunDue call loop forever.
func (v *Virtual) RunDue() {
	var horizon time.Time
	hasPending := false
	for _, cb := range v.callbacks {
		if cb.canceled || cb.fired {
			continue
		}
		hasPending = true
		if cb.due.After(horizon) {
			horizon = cb.due
		}
	}
	if !hasPending {
		return
	}
	if horizon.After(v.now) {
		v.now = horizon
	}

	for {
		sort.SliceStable(v.callbacks, func(i, j int) bool {
			return v.callbacks[i].due.Before(v.callbacks[j].due)
		})

		fired := false
		for _, cb := range v.callbacks {
			if cb.canceled || cb.fired || cb.due.After(v.now) {
				continue
			}
			cb.fired = true
			fired = true
			cb.fn()
			v.RunMicrotasks()
		}

		remaining := v.callbacks[:0]
		for _, cb := range v.callbacks {
			if !cb.fired && !cb.canceled {
				remaining = append(remaining, cb)
			}
		}
		v.callbacks = remaining

		if !fired {
			return
		}
	}
}
