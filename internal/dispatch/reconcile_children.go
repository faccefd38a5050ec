package dispatch

import (
	"reflect"

	"github.com/recera/reconcile/internal/fiber"
	"github.com/recera/reconcile/pkg/element"
)

// reconcileChildren diffs wip's new child Elements against current's child
// fiber chain (oldFirst), wiring wip.FirstChild to a fresh sibling chain and
// recording deletions, per spec.md §4.6's child reconciliation. mode is
// inherited by freshly created fibers.
//
// Matching strategy (grounded on vdom/diff.go's diffKeyedChildren): build a
// key->old-fiber map for every old child that has a key; walk the new list
// in order, matching each element either by key or — if unkeyed — by
// position among the unkeyed old children not yet matched. Unmatched old
// fibers are deleted. A matched fiber whose position moved earlier relative
// to the last fiber placed in sequence is flagged Placement (a "move"); this
// is the fiber-tree equivalent of vdom/diff.go's OpMoveNode patch.
func (c *Context) reconcileChildren(tree *fiber.Tree, wip *fiber.Node, oldFirst fiber.ID, children []*element.Element, mode fiber.Mode) {
	if oldFirst == 0 {
		wip.FirstChild = c.mountChildren(tree, wip.ID, children, mode)
		return
	}
	if len(children) == 0 {
		c.deleteRemainingChildren(tree, wip, oldFirst)
		wip.FirstChild = 0
		return
	}

	oldByKey := make(map[string]fiber.ID)
	var oldUnkeyed []fiber.ID
	matched := make(map[fiber.ID]bool)
	for oc := oldFirst; oc != 0; oc = tree.Get(oc).NextSibling {
		n := tree.Get(oc)
		if n.Key != "" {
			oldByKey[n.Key] = oc
		} else {
			oldUnkeyed = append(oldUnkeyed, oc)
		}
	}
	unkeyedCursor := 0

	var newFirst, newPrev fiber.ID
	lastPlacedIndex := -1

	for idx, el := range children {
		var oldID fiber.ID
		if el.Key != "" {
			if id, ok := oldByKey[el.Key]; ok && !matched[id] {
				oldID = id
			}
		} else if unkeyedCursor < len(oldUnkeyed) {
			oldID = oldUnkeyed[unkeyedCursor]
			unkeyedCursor++
		}

		var childID fiber.ID
		if oldID != 0 {
			matched[oldID] = true
			old := tree.Get(oldID)
			if sameType(old, el) {
				childID = tree.CreateWorkInProgress(oldID, el.Props)
				updateFiberFromElement(tree.Get(childID), el)
				oldIndex := old.Index
				if oldIndex < lastPlacedIndex {
					tree.Get(childID).Flags |= fiber.Placement
				} else {
					lastPlacedIndex = oldIndex
				}
			} else {
				// type changed under the same key: delete old, mount new
				wip.Deletions = append(wip.Deletions, oldID)
				wip.SubtreeFlags |= fiber.ChildDeletion
				childID = c.createFiberForElement(tree, el, mode)
				tree.Get(childID).Flags |= fiber.Placement
			}
		} else {
			childID = c.createFiberForElement(tree, el, mode)
			tree.Get(childID).Flags |= fiber.Placement
		}

		child := tree.Get(childID)
		child.Parent = wip.ID
		child.Index = idx
		if newFirst == 0 {
			newFirst = childID
		} else {
			tree.Get(newPrev).NextSibling = childID
		}
		newPrev = childID
	}
	if newPrev != 0 {
		tree.Get(newPrev).NextSibling = 0
	}

	for oc := oldFirst; oc != 0; {
		n := tree.Get(oc)
		next := n.NextSibling
		if !matched[oc] {
			wip.Deletions = append(wip.Deletions, oc)
			wip.SubtreeFlags |= fiber.ChildDeletion
		}
		oc = next
	}

	wip.FirstChild = newFirst
}

func (c *Context) mountChildren(tree *fiber.Tree, parent fiber.ID, children []*element.Element, mode fiber.Mode) fiber.ID {
	var first, prev fiber.ID
	for idx, el := range children {
		childID := c.createFiberForElement(tree, el, mode)
		child := tree.Get(childID)
		child.Parent = parent
		child.Index = idx
		child.Flags |= fiber.Placement
		if first == 0 {
			first = childID
		} else {
			tree.Get(prev).NextSibling = childID
		}
		prev = childID
	}
	return first
}

func (c *Context) deleteRemainingChildren(tree *fiber.Tree, wip *fiber.Node, oldFirst fiber.ID) {
	for oc := oldFirst; oc != 0; oc = tree.Get(oc).NextSibling {
		wip.Deletions = append(wip.Deletions, oc)
	}
	if oldFirst != 0 {
		wip.SubtreeFlags |= fiber.ChildDeletion
	}
}

// sameType reports whether an existing fiber can be reused (rather than
// remounted) for el, mirroring vdom/diff.go's "different node types ->
// replace" check generalized from VNode.Kind/Tag to fiber.Tag/Type.
// Function types (RenderFunc, ForwardRenderFunc) are not comparable with ==,
// so they are matched by code pointer.
func sameType(old *fiber.Node, el *element.Element) bool {
	tag, typ := tagAndTypeFor(el)
	if old.Tag != tag {
		return false
	}
	a, b := reflect.ValueOf(old.ElementType), reflect.ValueOf(typ)
	if a.Kind() == reflect.Func && b.Kind() == reflect.Func {
		return a.Pointer() == b.Pointer()
	}
	return old.ElementType == typ
}

// Props is the uniform shape every non-text fiber's PendingProps/MemoizedProps
// carries: the element's own prop bag plus its structural children, kept
// together so begin_work never has to guess where a tag's children live
// (HostComponent's are logically attributes-plus-kids same as Fragment's).
// HostText fibers are the one exception: their PendingProps is the raw
// string, since a text node has neither props nor children.
type Props struct {
	Attrs    element.Props
	Children []*element.Element
}

func propsOf(el *element.Element) any {
	if el.Kind == element.KindText {
		return el.Text
	}
	return Props{Attrs: el.Props, Children: el.Children}
}

func updateFiberFromElement(n *fiber.Node, el *element.Element) {
	n.Key = el.Key
	n.ElementType = typeOf(el)
	n.PendingProps = propsOf(el)
	n.Ref = el.Ref
	if el.Ref != nil {
		n.Flags |= fiber.Ref
	}
	n.Effect = el.Effect
	if el.Effect != nil {
		n.Flags |= fiber.Passive
	}
}

func typeOf(el *element.Element) any {
	return el.Type
}

func tagAndTypeFor(el *element.Element) (fiber.Tag, any) {
	switch el.Kind {
	case element.KindHost:
		return fiber.HostComponent, el.Type
	case element.KindText:
		return fiber.HostText, nil
	case element.KindFragment:
		return fiber.Fragment, nil
	case element.KindFunction:
		return fiber.FunctionComponent, el.Type
	case element.KindClass:
		return fiber.ClassComponent, el.Type
	case element.KindContextProvider:
		return fiber.ContextProvider, el.Type
	case element.KindContextConsumer:
		return fiber.ContextConsumer, el.Type
	case element.KindMemo:
		return fiber.MemoComponent, el.Type
	case element.KindForwardRef:
		return fiber.ForwardRef, el.Type
	case element.KindSuspense:
		return fiber.SuspenseComponent, nil
	case element.KindLazy:
		return fiber.LazyComponent, el.Type
	case element.KindPortal:
		return fiber.Portal, el.PortalTarget
	default:
		return fiber.Fragment, nil
	}
}

func (c *Context) createFiberForElement(tree *fiber.Tree, el *element.Element, mode fiber.Mode) fiber.ID {
	tag, typ := tagAndTypeFor(el)
	id := tree.CreateChildFiber(tag, typ, typ, el.Key, mode, propsOf(el))
	n := tree.Get(id)
	n.ElementType = typ
	n.Ref = el.Ref
	if el.Ref != nil {
		n.Flags |= fiber.Ref
	}
	n.Effect = el.Effect
	if el.Effect != nil {
		n.Flags |= fiber.Passive
	}
	return id
}
