package workloop

import (
	"errors"
	"testing"
	"time"

	"github.com/recera/reconcile/internal/fiber"
	"github.com/recera/reconcile/internal/lane"
	"github.com/recera/reconcile/internal/suspend"
	"github.com/recera/reconcile/internal/update"
	"github.com/recera/reconcile/pkg/clock"
	"github.com/recera/reconcile/pkg/element"
	"github.com/recera/reconcile/pkg/host/memadapter"
)

func newTestEngine() (*Engine, *clock.Virtual) {
	vc := clock.NewVirtual(time.Unix(0, 0))
	return New(vc), vc
}

// setRootQueue mirrors internal/commit's own test helper: enqueue a
// ReplaceState update carrying next as the HostRoot's new element tree.
func setRootQueue(t *testing.T, rootFiber *fiber.Node, next *element.Element) {
	t.Helper()
	q := update.NewQueue(nil, nil)
	u := update.NewUpdate(lane.DefaultLane)
	u.Tag = update.ReplaceState
	u.Payload = update.Payload{Value: next}
	q.Enqueue(u)
	rootFiber.UpdateQueue = q
}

// renderUpdate drives one update_container-equivalent cycle to completion:
// enqueue next on the root, mark it updated, ask the scheduler to run it,
// then flush the virtual clock's microtasks and due callbacks until the
// render/commit pass has actually happened.
func renderUpdate(t *testing.T, e *Engine, vc *clock.Virtual, root *fiber.Root, next *element.Element) {
	t.Helper()
	setRootQueue(t, root.Tree.Get(root.Current), next)
	root.MarkRootUpdated(lane.DefaultLane, vc.Now())
	e.Scheduler().EnsureRootIsScheduled(root)
	vc.RunMicrotasks()
	vc.RunDue()
}

func TestMountAndUpdate(t *testing.T) {
	e, vc := newTestEngine()
	adapter := memadapter.New()
	root := fiber.NewRoot(adapter.Root, 0)
	e.RegisterRoot(root, adapter)

	renderUpdate(t, e, vc, root, element.Host("div", element.Props{"id": "a"},
		element.Host("span", nil, element.Text("hi")),
	))

	if len(adapter.Root.Children) != 1 || adapter.Root.Children[0].Tag != "div" {
		t.Fatalf("expected <div> mounted under root, got %s", adapter.Root.Dump())
	}
	div := adapter.Root.Children[0]
	if div.Props["id"] != "a" {
		t.Fatalf("expected id=a, got %+v", div.Props)
	}
	if len(div.Children) != 1 || div.Children[0].Children[0].Text != "hi" {
		t.Fatalf("expected span/text grandchild, got %s", adapter.Root.Dump())
	}

	renderUpdate(t, e, vc, root, element.Host("div", element.Props{"id": "b"}))

	div = adapter.Root.Children[0]
	if div.Props["id"] != "b" {
		t.Fatalf("expected updated id=b, got %+v", div.Props)
	}
	if len(div.Children) != 0 {
		t.Fatalf("expected span child removed on update, got %s", adapter.Root.Dump())
	}
}

func TestConcurrentRenderYieldsAndResumes(t *testing.T) {
	e, vc := newTestEngine()
	adapter := memadapter.New()
	root := fiber.NewRoot(adapter.Root, 0)
	e.RegisterRoot(root, adapter)

	kids := make([]*element.Element, 5)
	for i := range kids {
		kids[i] = element.Host("li", nil)
	}
	tree := element.Host("ul", nil, kids...)

	setRootQueue(t, root.Tree.Get(root.Current), tree)
	root.MarkRootUpdated(lane.DefaultLane, vc.Now())
	e.Scheduler().EnsureRootIsScheduled(root)

	vc.SetShouldYield(true)
	vc.RunMicrotasks()
	vc.RunDue()

	if len(adapter.Root.Children) != 0 {
		t.Fatalf("expected nothing committed while the host says yield, got %s", adapter.Root.Dump())
	}
	rc := e.rootCtxFor(root)
	if rc.rs.wipNode == 0 {
		t.Fatalf("expected an in-progress work-in-progress fiber to survive the yield")
	}

	vc.SetShouldYield(false)
	vc.RunMicrotasks()
	vc.RunDue()

	if len(adapter.Root.Children) != 1 || len(adapter.Root.Children[0].Children) != 5 {
		t.Fatalf("expected the full <ul> committed once yielding stopped, got %s", adapter.Root.Dump())
	}
}

// manualThenable is a suspend.Thenable driven entirely by the test goroutine,
// used instead of the real element.Lazy/LazyLoader path so the suspense test
// stays single-goroutine and deterministic — dispatch.go's real lazyState
// resolves on its own goroutine, which would race clock.Virtual's
// unsynchronized callback/microtask slices if driven here.
type manualThenable struct {
	settled bool
	waiters []func()
}

func (m *manualThenable) OnSettled(fn func()) {
	if m.settled {
		fn()
		return
	}
	m.waiters = append(m.waiters, fn)
}

func (m *manualThenable) settle() {
	m.settled = true
	w := m.waiters
	m.waiters = nil
	for _, fn := range w {
		fn()
	}
}

func TestSuspenseCaptureAndReplay(t *testing.T) {
	e, vc := newTestEngine()
	adapter := memadapter.New()
	root := fiber.NewRoot(adapter.Root, 0)
	e.RegisterRoot(root, adapter)

	th := &manualThenable{}
	ready := false

	child := element.Function(func(props element.Props) *element.Element {
		if !ready {
			panic(&suspend.Signal{Value: th})
		}
		return element.Text("loaded")
	}, "", nil)

	renderUpdate(t, e, vc, root, element.Suspense(element.Text("loading"), child))

	if len(adapter.Root.Children) != 1 || adapter.Root.Children[0].Text != "loading" {
		t.Fatalf("expected fallback committed while suspended, got %s", adapter.Root.Dump())
	}

	ready = true
	th.settle()
	vc.RunMicrotasks()
	vc.RunDue()

	if len(adapter.Root.Children) != 1 || adapter.Root.Children[0].Text != "loaded" {
		t.Fatalf("expected real content committed once the thenable settled, got %s", adapter.Root.Dump())
	}
}

// errorBoundaryInstance implements both element.Instance and
// element.ErrorBoundary: it renders its child until a descendant's render
// panics, at which point GetDerivedStateFromError flips it to fallback state.
type errorBoundaryInstance struct{}

func (b *errorBoundaryInstance) Render(props element.Props, state any) *element.Element {
	if st, ok := state.(map[string]any); ok && st["hasError"] == true {
		return element.Text("fallback")
	}
	return props["child"].(*element.Element)
}

func (b *errorBoundaryInstance) GetDerivedStateFromError(err error) any {
	return map[string]any{"hasError": true}
}

func TestErrorBoundaryCapturesDescendantPanic(t *testing.T) {
	e, vc := newTestEngine()
	adapter := memadapter.New()
	root := fiber.NewRoot(adapter.Root, 0)
	e.RegisterRoot(root, adapter)

	boom := element.Function(func(props element.Props) *element.Element {
		panic(errors.New("boom"))
	}, "", nil)

	desc := &element.ClassDescriptor{
		Name: "Boundary",
		New:  func(props element.Props) element.Instance { return &errorBoundaryInstance{} },
	}

	renderUpdate(t, e, vc, root, element.Class(desc, "", element.Props{"child": boom}))

	if len(adapter.Root.Children) != 1 || adapter.Root.Children[0].Text != "fallback" {
		t.Fatalf("expected error boundary fallback committed, got %s", adapter.Root.Dump())
	}
}
