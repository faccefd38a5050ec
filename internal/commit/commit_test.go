package commit

import (
	"strings"
	"testing"

	"github.com/recera/reconcile/internal/dispatch"
	"github.com/recera/reconcile/internal/fiber"
	"github.com/recera/reconcile/internal/lane"
	"github.com/recera/reconcile/internal/update"
	"github.com/recera/reconcile/pkg/element"
	"github.com/recera/reconcile/pkg/host/memadapter"
)

// renderTree mirrors internal/dispatch's own test helper: walk BeginWork
// down, CompleteWork back up, over the whole tree rooted at wip.
func renderTree(t *testing.T, tree *fiber.Tree, ctx *dispatch.Context, current, wip fiber.ID) {
	t.Helper()
	next, err := ctx.BeginWork(current, wip, lane.DefaultLane, lane.DefaultLane)
	if err != nil {
		t.Fatalf("BeginWork: %v", err)
	}
	for c := next; c != 0; c = tree.Get(c).NextSibling {
		renderTree(t, tree, ctx, tree.Get(c).Alternate, c)
	}
	if err := ctx.CompleteWork(current, wip); err != nil {
		t.Fatalf("CompleteWork: %v", err)
	}
}

func setRootQueue(t *testing.T, rootFiber *fiber.Node, root *element.Element) {
	t.Helper()
	q := update.NewQueue(nil, nil)
	u := update.NewUpdate(lane.DefaultLane)
	u.Tag = update.ReplaceState
	u.Payload = update.Payload{Value: root}
	q.Enqueue(u)
	rootFiber.UpdateQueue = q
}

// renderAndCommit runs one full render+commit cycle against root's current
// tree and returns the newly committed fiber ID (== root.Current).
func renderAndCommit(t *testing.T, root *fiber.Root, dctx *dispatch.Context, driver *Driver, next *element.Element) fiber.ID {
	t.Helper()
	tree := root.Tree
	setRootQueue(t, tree.Get(root.Current), next)
	wip := tree.CreateWorkInProgress(root.Current, nil)
	renderTree(t, tree, dctx, root.Current, wip)
	if _, err := driver.CommitRoot(root, wip); err != nil {
		t.Fatalf("CommitRoot: %v", err)
	}
	return root.Current
}

func TestCommitRootMountsHostTree(t *testing.T) {
	adapter := memadapter.New()
	root := fiber.NewRoot(adapter.Root, 0)
	dctx := dispatch.NewContext(root.Tree, adapter)
	driver := NewDriver(root.Tree, adapter)

	finished := renderAndCommit(t, root, dctx, driver, element.Host("div", element.Props{"id": "a"},
		element.Host("span", nil, element.Text("hi")),
	))

	if len(adapter.Root.Children) != 1 || adapter.Root.Children[0].Tag != "div" {
		t.Fatalf("expected div appended to root, got %s", adapter.Root.Dump())
	}
	div := adapter.Root.Children[0]
	if div.Props["id"] != "a" {
		t.Fatalf("expected div props to carry id=a, got %+v", div.Props)
	}
	if len(div.Children) != 1 || div.Children[0].Tag != "span" {
		t.Fatalf("expected span child, got %s", adapter.Root.Dump())
	}
	span := div.Children[0]
	if len(span.Children) != 1 || span.Children[0].Text != "hi" {
		t.Fatalf("expected text grandchild 'hi', got %s", adapter.Root.Dump())
	}

	// The finished tree's flags must be cleared post-commit so a later
	// bailout doesn't re-surface this render's effects.
	finishedNode := root.Tree.Get(finished)
	if finishedNode.SubtreeFlags != fiber.NoFlags {
		t.Errorf("expected SubtreeFlags cleared after commit, got %v", finishedNode.SubtreeFlags)
	}
}

func TestCommitRootUpdatesAndDeletes(t *testing.T) {
	adapter := memadapter.New()
	root := fiber.NewRoot(adapter.Root, 0)
	dctx := dispatch.NewContext(root.Tree, adapter)
	driver := NewDriver(root.Tree, adapter)

	mk := func(keys ...string) *element.Element {
		kids := make([]*element.Element, len(keys))
		for i, k := range keys {
			kids[i] = element.Host("li", element.Props{"key": k})
		}
		return element.Host("ul", nil, kids...)
	}

	renderAndCommit(t, root, dctx, driver, mk("a", "b"))
	ul := adapter.Root.Children[0]
	if len(ul.Children) != 2 {
		t.Fatalf("expected 2 li after first commit, got %s", adapter.Root.Dump())
	}

	renderAndCommit(t, root, dctx, driver, mk("b"))
	ul = adapter.Root.Children[0]
	if len(ul.Children) != 1 {
		t.Fatalf("expected exactly 1 li to remain, got %s", adapter.Root.Dump())
	}

	sawRemove := false
	for _, e := range adapter.Trace {
		if strings.HasPrefix(e, "remove_child") {
			sawRemove = true
		}
	}
	if !sawRemove {
		t.Errorf("expected a remove_child trace entry, got %v", adapter.Trace)
	}
}

// TestCommitRootOrdersUnmountsBeforeMounts exercises a single commit with
// three sibling branches: the first and third each lose an effect-bearing
// child (an unmount), while the middle gains one (a mount). Walked in tree
// order that interleaves as [unmount, mount, unmount]; CommitRoot must still
// return every unmount ahead of every mount.
func TestCommitRootOrdersUnmountsBeforeMounts(t *testing.T) {
	adapter := memadapter.New()
	root := fiber.NewRoot(adapter.Root, 0)
	dctx := dispatch.NewContext(root.Tree, adapter)
	driver := NewDriver(root.Tree, adapter)

	noop := func() (cleanup func()) { return nil }

	branch := func(key string, withSpan bool) *element.Element {
		kids := []*element.Element{}
		if withSpan {
			kids = append(kids, element.Host("span", nil).WithEffect(noop))
		}
		return element.Host("div", element.Props{"key": key}, kids...)
	}

	mkRow := func(x, y, z bool) *element.Element {
		return element.Host("ul", nil, branch("x", x), branch("y", y), branch("z", z))
	}

	// Render 1: x and z carry the effect-bearing span, y does not.
	setRootQueue(t, root.Tree.Get(root.Current), mkRow(true, false, true))
	wip := root.Tree.CreateWorkInProgress(root.Current, nil)
	renderTree(t, root.Tree, dctx, root.Current, wip)
	if _, err := driver.CommitRoot(root, wip); err != nil {
		t.Fatalf("CommitRoot (render 1): %v", err)
	}

	// Render 2: x and z lose their span (unmount), y gains one (mount).
	setRootQueue(t, root.Tree.Get(root.Current), mkRow(false, true, false))
	wip = root.Tree.CreateWorkInProgress(root.Current, nil)
	renderTree(t, root.Tree, dctx, root.Current, wip)
	effects, err := driver.CommitRoot(root, wip)
	if err != nil {
		t.Fatalf("CommitRoot (render 2): %v", err)
	}

	if len(effects) != 3 {
		t.Fatalf("expected 3 passive effects (2 unmounts + 1 mount), got %d: %+v", len(effects), effects)
	}
	lastUnmount := -1
	firstMount := len(effects)
	for i, e := range effects {
		if !e.Mount {
			lastUnmount = i
		} else if firstMount == len(effects) {
			firstMount = i
		}
	}
	if lastUnmount > firstMount {
		t.Fatalf("expected every unmount before every mount, got %+v", effects)
	}
}
