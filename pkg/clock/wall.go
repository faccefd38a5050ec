package clock

import (
	"sync"
	"sync/atomic"
	"time"
)

// priorityDelay approximates a cooperative scheduler's priority queue with
// a simple priority→delay mapping, the way a single-threaded host without a
// true priority runqueue would: higher-priority callbacks simply get a
// shorter artificial delay before the host gets around to them.
var priorityDelay = map[Priority]time.Duration{
	ImmediatePriority:    0,
	UserBlockingPriority: time.Millisecond,
	NormalPriority:       5 * time.Millisecond,
	LowPriority:          10 * time.Millisecond,
	IdlePriority:         50 * time.Millisecond,
}

// sliceBudget is how long a single time-sliced work-loop turn may run
// before ShouldYield reports true, mirroring spec.md §4.5's yieldAfter
// window (25ms for non-idle lanes; wallClock uses a single budget and
// lets the caller re-arm it per render via Reset).
const sliceBudget = 5 * time.Millisecond

// WallClock is the real-time Clock implementation: ScheduleCallback uses
// time.AfterFunc, ScheduleMicrotask drains on a dedicated goroutine loop the
// way pkg/scheduler/scheduler.go's Scheduler.loop drains its wake channel.
type WallClock struct {
	mu         sync.Mutex
	queue      chan func()
	sliceStart atomic.Int64 // unix nanos; 0 means "no active slice"
}

// NewWallClock starts the microtask-drain goroutine and returns a ready
// Clock.
func NewWallClock() *WallClock {
	c := &WallClock{queue: make(chan func(), 256)}
	go c.drain()
	return c
}

func (c *WallClock) drain() {
	for fn := range c.queue {
		fn()
	}
}

func (c *WallClock) Now() time.Time { return time.Now() }

// StartSlice marks the beginning of a time-sliced work loop turn; call it
// once per performWorkOnRoot entry so ShouldYield has a baseline.
func (c *WallClock) StartSlice() {
	c.sliceStart.Store(time.Now().UnixNano())
}

func (c *WallClock) ShouldYield() bool {
	start := c.sliceStart.Load()
	if start == 0 {
		return false
	}
	return time.Since(time.Unix(0, start)) >= sliceBudget
}

func (c *WallClock) ScheduleCallback(priority Priority, fn func()) Handle {
	timer := time.AfterFunc(priorityDelay[priority], fn)
	return timer
}

func (c *WallClock) CancelCallback(h Handle) {
	if timer, ok := h.(*time.Timer); ok {
		timer.Stop()
	}
}

func (c *WallClock) ScheduleMicrotask(fn func()) {
	c.queue <- fn
}

func (c *WallClock) SupportsMicrotasks() bool { return true }

// Close stops the drain goroutine. Safe to call once, at process/root
// teardown.
func (c *WallClock) Close() {
	close(c.queue)
}
