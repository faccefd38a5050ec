package dispatch

import (
	"testing"

	"github.com/recera/reconcile/internal/fiber"
	"github.com/recera/reconcile/internal/lane"
	"github.com/recera/reconcile/internal/update"
	"github.com/recera/reconcile/pkg/element"
	"github.com/recera/reconcile/pkg/host/memadapter"
)

func newRootPair(t *testing.T) (*fiber.Tree, *Context, fiber.ID) {
	t.Helper()
	tree := fiber.NewTree()
	rootID := tree.NewRootFiber(0)
	ctx := NewContext(tree, memadapter.New())
	return tree, ctx, rootID
}

func render(t *testing.T, tree *fiber.Tree, ctx *Context, current fiber.ID, root *element.Element) fiber.ID {
	t.Helper()
	wip := tree.CreateWorkInProgress(current, root)
	var walk func(cur, w fiber.ID)
	walk = func(cur, w fiber.ID) {
		next, err := ctx.BeginWork(cur, w, lane.DefaultLane, lane.DefaultLane)
		if err != nil {
			t.Fatalf("BeginWork: %v", err)
		}
		// Descend into every freshly produced child; each child's Alternate
		// (set by CreateWorkInProgress when an old fiber was reused) is its
		// matching current fiber, or 0 for a brand new mount.
		for c := next; c != 0; c = tree.Get(c).NextSibling {
			walk(tree.Get(c).Alternate, c)
		}
		if err := ctx.CompleteWork(cur, w); err != nil {
			t.Fatalf("CompleteWork: %v", err)
		}
	}
	walk(current, wip)
	return wip
}

func TestMountHostTree(t *testing.T) {
	tree, ctx, rootID := newRootPair(t)
	rootFiber := tree.Get(rootID)
	rootFiber.UpdateQueue = newRootQueue(t, element.Host("div", nil,
		element.Host("span", nil, element.Text("hi")),
	))

	wip := render(t, tree, ctx, rootID, nil)
	w := tree.Get(wip)
	if w.FirstChild == 0 {
		t.Fatal("expected root to have a child")
	}
	div := tree.Get(w.FirstChild)
	if div.Tag != fiber.HostComponent || div.Type != "div" {
		t.Fatalf("expected div host fiber, got %+v", div)
	}
	if !div.HasFlag(fiber.Placement) {
		t.Error("freshly mounted div should carry Placement")
	}
	span := tree.Get(div.FirstChild)
	if span == nil || span.Type != "span" {
		t.Fatalf("expected span child, got %+v", span)
	}
	text := tree.Get(span.FirstChild)
	if text == nil || text.Tag != fiber.HostText {
		t.Fatalf("expected text grandchild, got %+v", text)
	}
}

func TestKeyedReorderFlagsMovedChild(t *testing.T) {
	tree, ctx, rootID := newRootPair(t)
	rootFiber := tree.Get(rootID)

	mk := func(keys ...string) *element.Element {
		kids := make([]*element.Element, len(keys))
		for i, k := range keys {
			kids[i] = element.Host("li", element.Props{"key": k})
		}
		return element.Host("ul", nil, kids...)
	}

	rootFiber.UpdateQueue = newRootQueue(t, mk("a", "b", "c"))
	wip1 := render(t, tree, ctx, rootID, nil)
	commitAsCurrent(tree, rootID, wip1)

	rootFiber = tree.Get(rootID)
	rootFiber.UpdateQueue = newRootQueue(t, mk("c", "a", "b"))
	wip2 := render(t, tree, ctx, rootID, nil)

	ul := tree.Get(tree.Get(wip2).FirstChild)
	var order []string
	var moved []string
	for ch := ul.FirstChild; ch != 0; ch = tree.Get(ch).NextSibling {
		n := tree.Get(ch)
		order = append(order, n.Key)
		if n.HasFlag(fiber.Placement) {
			moved = append(moved, n.Key)
		}
	}
	if len(order) != 3 || order[0] != "c" || order[1] != "a" || order[2] != "b" {
		t.Fatalf("unexpected order: %v", order)
	}
	// "c" (old index 2) is placed first and stays put, raising the last
	// placed index to 2. "a" (old index 0) and "b" (old index 1) now sit
	// after it but had lower old indices, so both are flagged as moved.
	if len(moved) != 2 || moved[0] != "a" || moved[1] != "b" {
		t.Fatalf("expected a and b flagged as moved, got %v", moved)
	}
}

func TestUnmatchedChildIsDeleted(t *testing.T) {
	tree, ctx, rootID := newRootPair(t)
	rootFiber := tree.Get(rootID)

	withKeys := element.Host("ul", nil,
		element.Host("li", element.Props{"key": "a"}),
		element.Host("li", element.Props{"key": "b"}),
	)
	rootFiber.UpdateQueue = newRootQueue(t, withKeys)
	wip1 := render(t, tree, ctx, rootID, nil)
	commitAsCurrent(tree, rootID, wip1)

	rootFiber = tree.Get(rootID)
	onlyA := element.Host("ul", nil, element.Host("li", element.Props{"key": "a"}))
	rootFiber.UpdateQueue = newRootQueue(t, onlyA)
	wip2 := render(t, tree, ctx, rootID, nil)

	ul := tree.Get(tree.Get(wip2).FirstChild)
	if len(ul.Deletions) != 1 {
		t.Fatalf("expected exactly one deletion, got %d", len(ul.Deletions))
	}
	if !ul.HasSubtreeFlag(fiber.ChildDeletion) {
		t.Error("expected ChildDeletion to bubble onto parent's SubtreeFlags")
	}
}

func TestFunctionComponentBailsOutOnIdenticalProps(t *testing.T) {
	tree, ctx, rootID := newRootPair(t)
	rootFiber := tree.Get(rootID)

	calls := 0
	greet := func(props element.Props) *element.Element {
		calls++
		return element.Text("hi")
	}
	same := element.Props{"n": 1}
	el := element.Function(greet, "", same)
	rootFiber.UpdateQueue = newRootQueue(t, el)

	wip1 := render(t, tree, ctx, rootID, nil)
	commitAsCurrent(tree, rootID, wip1)
	if calls != 1 {
		t.Fatalf("expected 1 call after mount, got %d", calls)
	}

	rootFiber = tree.Get(rootID)
	rootFiber.UpdateQueue = newRootQueue(t, element.Function(greet, "", same))
	render(t, tree, ctx, rootID, nil)
	if calls != 1 {
		t.Fatalf("expected bailout to skip the second render, call count stayed at 1, got %d", calls)
	}
}

// newRootQueue builds a one-shot update queue whose single pending update's
// payload replaces the root's state with root, the shape beginHostRoot
// expects (HostRoot's MemoizedState is the last-rendered *element.Element).
func newRootQueue(t *testing.T, root *element.Element) *update.Queue {
	t.Helper()
	q := update.NewQueue(nil, nil)
	u := update.NewUpdate(lane.DefaultLane)
	u.Tag = update.ReplaceState
	u.Payload = update.Payload{Value: root}
	q.Enqueue(u)
	return q
}

// commitAsCurrent promotes wip into rootID's slot as a stand-in for
// internal/commit (not yet wired into this package's tests), preserving the
// double-buffer Alternate links both ways.
func commitAsCurrent(tree *fiber.Tree, rootID, wip fiber.ID) {
	w := tree.Get(wip)
	cur := tree.Get(rootID)
	*cur = *w
	cur.ID = rootID
	cur.Alternate = wip
	tree.Get(wip).Alternate = rootID
}
