package commit

import (
	"github.com/recera/reconcile/internal/fiber"
	"github.com/recera/reconcile/pkg/host"
)

// commitLayout runs the synchronous, post-mutation pass: ref attachment
// (the host tree is now in its final shape, so refs must point at it here
// rather than during Mutation) and draining any callbacks an update queue
// collected during this render (spec.md §4.7's Layout phase).
func (d *Driver) commitLayout(w *fiber.Node) {
	if !w.HasSubtreeFlag(fiber.LayoutMask) && !w.HasFlag(fiber.LayoutMask) {
		return
	}

	for c := w.FirstChild; c != 0; c = d.Tree.Get(c).NextSibling {
		d.commitLayout(d.Tree.Get(c))
	}

	if w.HasFlag(fiber.Ref) && w.Ref != nil {
		d.attachRef(w)
	}
	if w.HasFlag(fiber.Callback) && w.UpdateQueue != nil {
		for _, cb := range w.UpdateQueue.DrainCallbacks() {
			cb()
		}
	}
}

func (d *Driver) attachRef(w *fiber.Node) {
	switch r := w.Ref.(type) {
	case host.Ref:
		w.RefCleanup = r.Attach(w.StateNode)
	case func(any):
		w.RefCleanup = host.CallbackRef(r).Attach(w.StateNode)
	}
}
