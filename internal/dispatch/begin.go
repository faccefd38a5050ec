package dispatch

import (
	"fmt"

	"github.com/recera/reconcile/internal/fiber"
	"github.com/recera/reconcile/internal/lane"
	"github.com/recera/reconcile/internal/suspend"
	"github.com/recera/reconcile/pkg/element"
)

// BeginWork implements spec.md §4.6's begin_work: render wip (a fresh
// work-in-progress fiber already populated by fiber.CreateWorkInProgress)
// and return its first child as the next unit of work, or 0 if wip bailed
// out entirely (nothing below it needs visiting this render).
//
// renderLanes is the lane set this render is rendering; rootRenderLanes is
// the whole root's render-lane set (needed for Offscreen-originated updates,
// per update.ProcessUpdateQueue's hidden-subtree rule).
func (c *Context) BeginWork(current, wip fiber.ID, renderLanes, rootRenderLanes lane.Set) (next fiber.ID, err error) {
	tree := c.Tree
	w := tree.Get(wip)

	// HostRoot never takes the early bailout: a root update arrives through
	// the root fiber's update queue and root.PendingLanes, not through the
	// fiber's own Lanes, so a rendered root always processes its queue.
	if current != 0 && w.Tag != fiber.HostRoot {
		cur := tree.Get(current)
		if bail, childNeedsWork := c.attemptEarlyBailout(cur, w, renderLanes); bail {
			if !childNeedsWork {
				return 0, nil
			}
			return w.FirstChild, nil
		}
	}

	switch w.Tag {
	case fiber.HostRoot:
		return c.beginHostRoot(current, w, renderLanes, rootRenderLanes)
	case fiber.HostComponent:
		return c.beginHostComponent(w, renderLanes)
	case fiber.HostText:
		// Text fibers have no children to reconcile; complete_work sets the
		// text payload.
		return 0, nil
	case fiber.Fragment:
		p, _ := w.PendingProps.(Props)
		w.MemoizedProps = p
		c.reconcileChildren(tree, w, firstChildOf(tree, current), p.Children, w.Mode)
		return w.FirstChild, nil
	case fiber.FunctionComponent:
		return c.beginFunctionComponent(current, w, renderLanes, rootRenderLanes)
	case fiber.ClassComponent:
		return c.beginClassComponent(current, w, renderLanes, rootRenderLanes)
	case fiber.MemoComponent, fiber.SimpleMemoComponent:
		return c.beginMemoComponent(current, w, renderLanes, rootRenderLanes)
	case fiber.ForwardRef:
		return c.beginForwardRef(w, renderLanes)
	case fiber.ContextProvider:
		return c.beginContextProvider(current, w, renderLanes)
	case fiber.ContextConsumer:
		return c.beginContextConsumer(w, renderLanes)
	case fiber.SuspenseComponent:
		return c.beginSuspense(current, w, renderLanes, rootRenderLanes)
	case fiber.OffscreenComponent:
		p, _ := w.PendingProps.(Props)
		w.MemoizedProps = p
		c.reconcileChildren(tree, w, firstChildOf(tree, current), p.Children, w.Mode)
		return w.FirstChild, nil
	case fiber.LazyComponent:
		return c.beginLazyComponent(current, w, renderLanes, rootRenderLanes)
	case fiber.Portal:
		p, _ := w.PendingProps.(Props)
		w.MemoizedProps = p
		c.reconcileChildren(tree, w, firstChildOf(tree, current), p.Children, w.Mode)
		return w.FirstChild, nil
	case fiber.Profiler:
		p, _ := w.PendingProps.(Props)
		w.MemoizedProps = p
		c.reconcileChildren(tree, w, firstChildOf(tree, current), p.Children, w.Mode)
		return w.FirstChild, nil
	case fiber.ThrowFiber:
		return 0, fmt.Errorf("dispatch: ThrowFiber reached begin_work without being unwound")
	default:
		return 0, fmt.Errorf("%w: %v", ErrUnknownTag, w.Tag)
	}
}

func firstChildOf(tree *fiber.Tree, current fiber.ID) fiber.ID {
	if current == 0 {
		return 0
	}
	return tree.Get(current).FirstChild
}

// attemptEarlyBailout mirrors React's bailoutOnAlreadyFinishedWork: if props
// are unchanged and no update is scheduled on this fiber for renderLanes, the
// render can be skipped. When even the subtree below has no pending work in
// renderLanes, the whole subtree bails (childNeedsWork=false); otherwise the
// children are cloned without re-invoking render so the loop can still
// descend into whichever grandchild does need work.
func (c *Context) attemptEarlyBailout(cur, wip *fiber.Node, renderLanes lane.Set) (bail, childNeedsWork bool) {
	if wip.HasFlag(fiber.DidCapture) {
		return false, false
	}
	if !propsIdentical(cur.MemoizedProps, wip.PendingProps) {
		return false, false
	}
	if lane.Intersect(cur.Lanes, renderLanes) != lane.NoLanes {
		return false, false
	}
	if lane.Intersect(cur.ChildLanes, renderLanes) == lane.NoLanes {
		cloneWholeSubtree(c.Tree, cur, wip)
		return true, false
	}
	cloneChildFibers(c.Tree, cur, wip)
	return true, true
}

func propsIdentical(a, b any) bool {
	ap, aok := a.(Props)
	bp, bok := b.(Props)
	if aok && bok {
		return propsEqualShallow(ap.Attrs, bp.Attrs) && sameElementSlice(ap.Children, bp.Children)
	}
	return fmt.Sprintf("%#v", a) == fmt.Sprintf("%#v", b)
}

// sameElementSlice reports whether two child-descriptor slices are
// identical element-for-element by pointer, the cheapest sound test for
// "the parent produced exactly the same children this render" without
// recursively diffing descriptor trees just to decide whether to bail out.
func sameElementSlice(a, b []*element.Element) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// cloneWholeSubtree makes wip share current's child chain verbatim (no new
// work-in-progress fibers allocated below wip at all).
func cloneWholeSubtree(tree *fiber.Tree, cur, wip *fiber.Node) {
	wip.FirstChild = cur.FirstChild
	wip.SubtreeFlags = fiber.NoFlags
	wip.Deletions = nil
}

// cloneChildFibers allocates a work-in-progress alternate for every current
// child (without touching their PendingProps) so the loop can keep
// descending looking for the lanes that do need to render.
func cloneChildFibers(tree *fiber.Tree, cur, wip *fiber.Node) {
	var first, prev fiber.ID
	for c := cur.FirstChild; c != 0; c = tree.Get(c).NextSibling {
		old := tree.Get(c)
		childID := tree.CreateWorkInProgress(c, old.PendingProps)
		child := tree.Get(childID)
		child.Parent = wip.ID
		if first == 0 {
			first = childID
		} else {
			tree.Get(prev).NextSibling = childID
		}
		prev = childID
	}
	wip.FirstChild = first
}

func (c *Context) beginHostRoot(current fiber.ID, w *fiber.Node, renderLanes, rootRenderLanes lane.Set) (fiber.ID, error) {
	res := applyUpdateQueue(w, nil, renderLanes, rootRenderLanes)
	root, _ := res.State.(*element.Element)
	c.reconcileChildren(c.Tree, w, firstChildOf(c.Tree, current), childrenOf(root), w.Mode)
	return w.FirstChild, nil
}

func (c *Context) beginHostComponent(w *fiber.Node, renderLanes lane.Set) (fiber.ID, error) {
	wrapped, _ := w.PendingProps.(Props)
	w.MemoizedProps = wrapped
	c.reconcileChildren(c.Tree, w, w.FirstChild, wrapped.Children, w.Mode)
	return w.FirstChild, nil
}

func (c *Context) beginFunctionComponent(current fiber.ID, w *fiber.Node, renderLanes, rootRenderLanes lane.Set) (fiber.ID, error) {
	fn, ok := w.Type.(element.RenderFunc)
	if !ok {
		return 0, fmt.Errorf("dispatch: FunctionComponent fiber has non-RenderFunc Type %T", w.Type)
	}
	wrapped, _ := w.PendingProps.(Props)
	props := wrapped.Attrs
	applyUpdateQueue(w, props, renderLanes, rootRenderLanes)

	child := c.renderGuarded(func() *element.Element { return fn(props) })
	w.MemoizedProps = wrapped
	c.reconcileChildren(c.Tree, w, firstChildOf(c.Tree, current), childrenOf(child), w.Mode)
	return w.FirstChild, nil
}

func (c *Context) beginClassComponent(current fiber.ID, w *fiber.Node, renderLanes, rootRenderLanes lane.Set) (fiber.ID, error) {
	desc, ok := w.Type.(*element.ClassDescriptor)
	if !ok {
		return 0, fmt.Errorf("dispatch: ClassComponent fiber has non-*ClassDescriptor Type %T", w.Type)
	}
	wrapped, _ := w.PendingProps.(Props)
	props := wrapped.Attrs

	var inst element.Instance
	if current == 0 {
		inst = desc.New(props)
		w.StateNode = inst
	} else {
		inst, _ = w.StateNode.(element.Instance)
		if inst == nil {
			inst = desc.New(props)
			w.StateNode = inst
		}
	}

	res := applyUpdateQueue(w, props, renderLanes, rootRenderLanes)

	if su, ok := inst.(element.ShouldUpdater); ok && current != 0 && !res.HasForceUpdate {
		if !su.ShouldComponentUpdate(props, res.State) {
			cur := c.Tree.Get(current)
			cloneWholeSubtree(c.Tree, cur, w)
			w.MemoizedProps = wrapped
			return 0, nil
		}
	}

	child := c.renderGuarded(func() *element.Element { return inst.Render(props, res.State) })
	w.MemoizedProps = wrapped
	c.reconcileChildren(c.Tree, w, firstChildOf(c.Tree, current), childrenOf(child), w.Mode)
	return w.FirstChild, nil
}

// beginMemoComponent bails out the same way attemptEarlyBailout does but
// using the Memo's own comparator (or shallow equality) instead of pointer
// identity, per spec.md §4.6's MemoComponent/SimpleMemoComponent note that a
// memoized component's bailout test is "the memo's comparator, not the
// fiber's normal prop-identity test".
func (c *Context) beginMemoComponent(current fiber.ID, w *fiber.Node, renderLanes, rootRenderLanes lane.Set) (fiber.ID, error) {
	mt, ok := w.Type.(*element.MemoType)
	if !ok {
		return 0, fmt.Errorf("dispatch: MemoComponent fiber has non-*element.MemoType Type %T", w.Type)
	}
	wrapped, _ := w.PendingProps.(Props)
	props := wrapped.Attrs

	if current != 0 {
		cur := c.Tree.Get(current)
		curWrapped, _ := cur.MemoizedProps.(Props)
		equal := mt.Equal
		if equal == nil {
			equal = propsEqualShallow
		}
		noLaneScheduled := lane.Intersect(cur.Lanes, renderLanes) == lane.NoLanes
		if noLaneScheduled && equal(curWrapped.Attrs, props) && !w.HasFlag(fiber.DidCapture) {
			cloneWholeSubtree(c.Tree, cur, w)
			w.MemoizedProps = wrapped
			return 0, nil
		}
	}

	child := c.renderGuarded(func() *element.Element { return mt.Render(props) })
	w.MemoizedProps = wrapped
	c.reconcileChildren(c.Tree, w, firstChildOf(c.Tree, current), childrenOf(child), w.Mode)
	return w.FirstChild, nil
}

func (c *Context) beginForwardRef(w *fiber.Node, renderLanes lane.Set) (fiber.ID, error) {
	fn, ok := w.Type.(element.ForwardRenderFunc)
	if !ok {
		return 0, fmt.Errorf("dispatch: ForwardRef fiber has non-ForwardRenderFunc Type %T", w.Type)
	}
	wrapped, _ := w.PendingProps.(Props)
	props := wrapped.Attrs
	child := c.renderGuarded(func() *element.Element { return fn(props, w.Ref) })
	w.MemoizedProps = wrapped
	c.reconcileChildren(c.Tree, w, w.FirstChild, childrenOf(child), w.Mode)
	return w.FirstChild, nil
}

func (c *Context) beginContextProvider(current fiber.ID, w *fiber.Node, renderLanes lane.Set) (fiber.ID, error) {
	cell, ok := w.Type.(*element.Context)
	if !ok {
		return 0, fmt.Errorf("dispatch: ContextProvider fiber has non-*element.Context Type %T", w.Type)
	}
	wrapped, _ := w.PendingProps.(Props)
	c.pushProvider(cell, wrapped.Attrs["value"])
	w.MemoizedProps = wrapped
	c.reconcileChildren(c.Tree, w, firstChildOf(c.Tree, current), wrapped.Children, w.Mode)
	return w.FirstChild, nil
}

func (c *Context) beginContextConsumer(w *fiber.Node, renderLanes lane.Set) (fiber.ID, error) {
	cell, ok := w.Type.(*element.Context)
	if !ok {
		return 0, fmt.Errorf("dispatch: ContextConsumer fiber has non-*element.Context Type %T", w.Type)
	}
	wrapped, _ := w.PendingProps.(Props)
	render, _ := wrapped.Attrs["render"].(element.ConsumerFunc)
	value := c.readContext(cell)
	child := c.renderGuarded(func() *element.Element { return render(value) })
	w.MemoizedProps = wrapped
	c.reconcileChildren(c.Tree, w, w.FirstChild, childrenOf(child), w.Mode)
	return w.FirstChild, nil
}

// beginSuspense renders primary children normally; if the render phase
// already recorded that this boundary took DidCapture (set by the work loop
// when a descendant suspended and unwound to here, per spec.md §4.6), it
// shows the fallback subtree instead.
func (c *Context) beginSuspense(current fiber.ID, w *fiber.Node, renderLanes, rootRenderLanes lane.Set) (fiber.ID, error) {
	wrapped, _ := w.PendingProps.(Props)
	fallback, _ := wrapped.Attrs["fallback"].(*element.Element)
	w.MemoizedProps = wrapped

	if w.HasFlag(fiber.DidCapture) {
		w.Flags &^= fiber.DidCapture
		c.reconcileChildren(c.Tree, w, 0, childrenOf(fallback), w.Mode)
		return w.FirstChild, nil
	}

	c.reconcileChildren(c.Tree, w, firstChildOf(c.Tree, current), wrapped.Children, w.Mode)
	return w.FirstChild, nil
}

func (c *Context) beginLazyComponent(current fiber.ID, w *fiber.Node, renderLanes, rootRenderLanes lane.Set) (fiber.ID, error) {
	loader, ok := w.Type.(*element.LazyLoader)
	if !ok {
		return 0, fmt.Errorf("dispatch: LazyComponent fiber has non-*element.LazyLoader Type %T", w.Type)
	}
	st := c.lazyCache[loader]
	if st == nil {
		st = &lazyState{}
		c.lazyCache[loader] = st
	}
	started, pending, resolved, err := st.snapshot()
	if !started {
		t := st.start(loader, c.lazySem)
		panic(&suspend.Signal{Value: t})
	}
	if pending {
		panic(&suspend.Signal{Value: st.thenable})
	}
	if err != nil {
		panic(err)
	}
	wrapped, _ := w.PendingProps.(Props)
	w.MemoizedProps = wrapped
	c.reconcileChildren(c.Tree, w, firstChildOf(c.Tree, current), childrenOf(resolved), w.Mode)
	return w.FirstChild, nil
}

func childrenOf(el *element.Element) []*element.Element {
	if el == nil {
		return nil
	}
	if el.Kind == element.KindFragment {
		return el.Children
	}
	return []*element.Element{el}
}

// renderGuarded is the single call site every component render passes
// through. It does not recover: a suspend.Signal or plain error panicked by
// render propagates straight up to the work loop's per-unit recover
// boundary, which is where spec.md §4.6 says suspension and render errors
// are actually handled.
func (c *Context) renderGuarded(render func() *element.Element) *element.Element {
	return render()
}
