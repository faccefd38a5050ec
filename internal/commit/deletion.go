package commit

import (
	"github.com/recera/reconcile/internal/fiber"
)

// commitDeletion tears down the current-tree subtree rooted at id: detaches
// refs, removes each host instance reachable from id from the live host
// tree, then frees the whole subtree's arena slots. hostParent is the
// instance the deleted subtree's host roots are currently attached to.
func (d *Driver) commitDeletion(id fiber.ID, hostParent any) {
	w := d.Tree.Get(id)
	if w == nil {
		return
	}

	d.detachRefs(w)

	if hostParent != nil {
		for _, inst := range hostDescendants(d.Tree, w) {
			d.Adapter.RemoveChild(hostParent, inst)
		}
	}

	if alt := w.Alternate; alt != 0 {
		d.Tree.FreeSubtree(alt)
	}
	d.Tree.FreeSubtree(id)
}

// detachRefs walks w's whole subtree running any attached ref's cleanup,
// per spec.md §9 "Ref cleanup" — refs below a deleted ancestor never get
// their own individual Update/Placement flags, so this must recurse
// unconditionally rather than checking HasFlag(Ref) per node.
func (d *Driver) detachRefs(w *fiber.Node) {
	if w.RefCleanup != nil {
		w.RefCleanup()
		w.RefCleanup = nil
	}
	for c := w.FirstChild; c != 0; c = d.Tree.Get(c).NextSibling {
		d.detachRefs(d.Tree.Get(c))
	}
}
