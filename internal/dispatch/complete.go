package dispatch

import (
	"fmt"

	"github.com/recera/reconcile/internal/fiber"
	"github.com/recera/reconcile/internal/lane"
	"github.com/recera/reconcile/pkg/element"
)

// CompleteWork implements spec.md §4.6's complete_work: once every child of
// wip has itself completed, create/update this fiber's host instance (for
// HostComponent/HostText), pop any context this fiber pushed, and bubble
// child flags and lanes up onto wip. Called bottom-up by the work loop as
// complete_unit_of_work walks back up the tree.
func (c *Context) CompleteWork(current, wip fiber.ID) error {
	tree := c.Tree
	w := tree.Get(wip)

	switch w.Tag {
	case fiber.HostComponent:
		if err := c.completeHostComponent(current, w); err != nil {
			return err
		}
	case fiber.HostText:
		c.completeHostText(current, w)
	case fiber.ContextProvider:
		c.popProvider()
	case fiber.LazyComponent:
		// nothing to attach: a lazy fiber's resolved children already
		// completed as this fiber's own subtree.
	}

	bubbleProperties(tree, w)
	return nil
}

func (c *Context) completeHostComponent(current fiber.ID, w *fiber.Node) error {
	wrapped, _ := w.PendingProps.(Props)
	typ, _ := w.Type.(string)
	attrs := rawProps(wrapped.Attrs)

	if current == 0 || w.StateNode == nil {
		inst, err := c.Adapter.CreateInstance(typ, attrs, nil, nil)
		if err != nil {
			return fmt.Errorf("dispatch: create host instance %q: %w", typ, err)
		}
		w.StateNode = inst
		appendCreatedChildren(c, w, inst)
		if needsCommit := c.Adapter.FinalizeInitialChildren(inst, typ, attrs); needsCommit {
			w.Flags |= fiber.Update_
		}
		return nil
	}

	cur := c.Tree.Get(current)
	curWrapped, _ := cur.MemoizedProps.(Props)
	w.StateNode = cur.StateNode
	if payload, changed := c.Adapter.PrepareUpdate(w.StateNode, typ, rawProps(curWrapped.Attrs), attrs); changed {
		w.MemoizedState = payload // stashed for internal/commit's CommitUpdate call
		w.Flags |= fiber.Update_
	}
	return nil
}

// rawProps strips element.Props's named-type wrapper down to the plain
// map[string]any host.Adapter implementations type-assert against, since
// pkg/host must not import pkg/element (spec.md §6's adapter boundary is
// deliberately opaque to the descriptor factory's own types).
func rawProps(p element.Props) map[string]any {
	if p == nil {
		return nil
	}
	return map[string]any(p)
}

func (c *Context) completeHostText(current fiber.ID, w *fiber.Node) {
	text, _ := w.PendingProps.(string)
	if current == 0 || w.StateNode == nil {
		inst, _ := c.Adapter.CreateTextInstance(text, nil, nil)
		w.StateNode = inst
		return
	}
	cur := c.Tree.Get(current)
	w.StateNode = cur.StateNode
	oldText, _ := cur.PendingProps.(string)
	if oldText != text {
		w.Flags |= fiber.Update_
	}
}

// appendCreatedChildren walks wip's already-completed children and appends
// their host instances as initial children of a freshly created parent
// instance, per spec.md §4.7's "initial mount appends happen during
// complete_work, not during the commit's mutation phase" (the whole
// uncommitted subtree is built off-screen first).
func appendCreatedChildren(c *Context, w *fiber.Node, parentInst any) {
	for ch := w.FirstChild; ch != 0; ch = c.Tree.Get(ch).NextSibling {
		child := c.Tree.Get(ch)
		switch child.Tag {
		case fiber.HostComponent, fiber.HostText:
			if child.StateNode != nil {
				c.Adapter.AppendInitialChild(parentInst, child.StateNode)
			}
		default:
			appendCreatedChildren(c, child, parentInst)
		}
	}
}

// bubbleProperties folds every child's Flags/SubtreeFlags/Lanes up onto the
// parent, per spec.md §4.6 invariant "SubtreeFlags summarizes every flag
// below, so the commit driver can skip whole clean subtrees in O(1)".
func bubbleProperties(tree *fiber.Tree, w *fiber.Node) {
	var subtreeFlags fiber.Flags
	childLanes := lane.NoLanes
	for ch := w.FirstChild; ch != 0; ch = tree.Get(ch).NextSibling {
		c := tree.Get(ch)
		subtreeFlags |= c.Flags | c.SubtreeFlags
		childLanes = lane.Merge(childLanes, lane.Merge(c.Lanes, c.ChildLanes))
	}
	w.SubtreeFlags |= subtreeFlags
	w.ChildLanes = childLanes
}
