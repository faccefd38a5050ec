package commit

import (
	"github.com/recera/reconcile/internal/fiber"
)

// commitBeforeMutation runs the BeforeMutationMask pass. The reconciler core
// has no concrete snapshot API of its own, so the pass only walks the
// flagged subtrees; it invokes no hook and changes no state.
// Recursion is pruned at any fiber whose SubtreeFlags has nothing in the
// mask, mirroring scheduler.go's dirty-bit short-circuit.
func (d *Driver) commitBeforeMutation(w *fiber.Node) {
	if !w.HasSubtreeFlag(fiber.BeforeMutationMask) && !w.HasFlag(fiber.BeforeMutationMask) {
		return
	}
	for c := w.FirstChild; c != 0; c = d.Tree.Get(c).NextSibling {
		d.commitBeforeMutation(d.Tree.Get(c))
	}
}

// commitMutation walks the finished tree depth-first, processing deletions
// recorded on each fiber before descending into its surviving children, then
// applying this fiber's own Placement/Update effects on the way back up —
// matching spec.md §4.7's "mutation phase order: deletions, then
// placements/updates, bottom-up".
func (d *Driver) commitMutation(w *fiber.Node) {
	if !w.HasSubtreeFlag(fiber.MutationMask) && !w.HasFlag(fiber.MutationMask) {
		return
	}

	for _, delID := range w.Deletions {
		d.commitDeletion(delID, d.hostInstanceAtOrAbove(w))
	}

	for c := w.FirstChild; c != 0; c = d.Tree.Get(c).NextSibling {
		d.commitMutation(d.Tree.Get(c))
	}

	if w.HasFlag(fiber.Placement) {
		d.commitPlacement(w)
	}
	if w.HasFlag(fiber.Update_) {
		d.commitUpdate(w)
	}
	if w.HasFlag(fiber.ContentReset) {
		// A host binding that supports ContentReset would clear text content
		// on StateNode here; memadapter has no concept of mixed text+element
		// children to reset, so there is nothing to do for it.
		logf("commitMutation: ContentReset on fiber %d (no-op for this adapter)", w.ID)
	}
}

func (d *Driver) commitUpdate(w *fiber.Node) {
	switch w.Tag {
	case fiber.HostComponent:
		typ, _ := w.Type.(string)
		d.Adapter.CommitUpdate(w.StateNode, w.MemoizedState, typ, nil, nil)
	case fiber.HostText:
		text, _ := w.PendingProps.(string)
		var oldText string
		if cur := d.Tree.Get(w.Alternate); cur != nil {
			oldText, _ = cur.PendingProps.(string)
		}
		d.Adapter.CommitTextUpdate(w.StateNode, oldText, text)
	}
}

// commitPlacement inserts w's host instance(s) into the live host tree. w
// itself need not be a host fiber (a FunctionComponent can carry Placement);
// every host-typed descendant reachable without crossing another host
// boundary is inserted at this fiber's position.
func (d *Driver) commitPlacement(w *fiber.Node) {
	parent := d.nearestHostParentInstance(w)
	if parent == nil {
		return
	}
	before := d.nearestHostSiblingInstance(w)
	for _, inst := range hostDescendants(d.Tree, w) {
		if before != nil {
			d.Adapter.InsertBefore(parent, inst, before)
		} else {
			d.Adapter.AppendChild(parent, inst)
		}
	}
}

// hostInstanceAtOrAbove returns w's own host instance if w is itself a host
// fiber (or the container, if w is the HostRoot), otherwise the nearest host
// ancestor's instance. Used for w.Deletions: the children being removed
// were, in the old tree, directly inside whatever host instance w owns.
func (d *Driver) hostInstanceAtOrAbove(w *fiber.Node) any {
	switch w.Tag {
	case fiber.HostComponent:
		return w.StateNode
	case fiber.HostRoot:
		return d.rootContainer(w)
	}
	return d.nearestHostParentInstance(w)
}

// rootContainer prefers the *fiber.Root's own ContainerInfo (the real
// topology once pkg/reconciler.CreateContainer builds one via
// fiber.NewRoot), falling back to the containerInfo CommitRoot was called
// with — tests that build a bare HostRoot fiber directly (skipping
// fiber.NewRoot) never populate StateNode, so this fallback is what makes
// those trees committable at all.
func (d *Driver) rootContainer(hostRoot *fiber.Node) any {
	if root, ok := hostRoot.StateNode.(*fiber.Root); ok && root != nil {
		return root.ContainerInfo
	}
	return d.containerInfo
}

// nearestHostParentInstance walks up from w (exclusive) to the nearest
// HostComponent's StateNode, or the root's ContainerInfo if w is directly
// under the HostRoot.
func (d *Driver) nearestHostParentInstance(w *fiber.Node) any {
	for p := w.Parent; p != 0; {
		n := d.Tree.Get(p)
		if n == nil {
			return nil
		}
		switch n.Tag {
		case fiber.HostComponent:
			return n.StateNode
		case fiber.HostRoot:
			return d.rootContainer(n)
		}
		p = n.Parent
	}
	return nil
}

// nearestHostSiblingInstance looks forward through w's own later siblings
// for the first host instance an insert should precede. The later siblings
// of w's ancestors are not searched. A nil return means "append at the end."
func (d *Driver) nearestHostSiblingInstance(w *fiber.Node) any {
	for s := w.NextSibling; s != 0; s = d.Tree.Get(s).NextSibling {
		sib := d.Tree.Get(s)
		if insts := hostDescendants(d.Tree, sib); len(insts) > 0 {
			return insts[0]
		}
	}
	return nil
}

// hostDescendants collects every HostComponent/HostText instance reachable
// from w without crossing into a nested HostComponent/HostText's own
// subtree (those are already attached to their own parent instance).
func hostDescendants(tree *fiber.Tree, w *fiber.Node) []any {
	if w.Tag == fiber.HostComponent || w.Tag == fiber.HostText {
		if w.StateNode == nil {
			return nil
		}
		return []any{w.StateNode}
	}
	var out []any
	for c := w.FirstChild; c != 0; c = tree.Get(c).NextSibling {
		out = append(out, hostDescendants(tree, tree.Get(c))...)
	}
	return out
}
