package commit

import "github.com/recera/reconcile/internal/fiber"

// collectPassiveEffects walks the finished tree gathering every fiber that
// needs a passive-effect run (mount) or, for a just-deleted subtree, a
// cleanup (unmount) — per spec.md §4.7's "passive effects flush
// asynchronously, after the browser paints". internal/workloop is
// responsible for actually invoking them, from a NormalPriority scheduler
// callback it schedules after the commit.
func (d *Driver) collectPassiveEffects(w *fiber.Node, out []PendingPassiveEffect) []PendingPassiveEffect {
	if !w.HasSubtreeFlag(fiber.PassiveMask) && !w.HasFlag(fiber.PassiveMask) {
		return out
	}

	for _, delID := range w.Deletions {
		out = d.collectPassiveUnmounts(delID, out)
	}

	for c := w.FirstChild; c != 0; c = d.Tree.Get(c).NextSibling {
		out = d.collectPassiveEffects(d.Tree.Get(c), out)
	}

	if w.HasFlag(fiber.Passive) {
		out = append(out, PendingPassiveEffect{FiberID: w.ID, Mount: true})
	}
	return out
}

// collectPassiveUnmounts walks a deleted subtree (by its current-tree id,
// since the deletion already severed it from the new tree) queuing a
// cleanup entry for every fiber that had a passive effect attached.
func (d *Driver) collectPassiveUnmounts(id fiber.ID, out []PendingPassiveEffect) []PendingPassiveEffect {
	w := d.Tree.Get(id)
	if w == nil {
		return out
	}
	if w.Effect != nil {
		out = append(out, PendingPassiveEffect{Mount: false, Cleanup: w.EffectCleanup})
	}
	for c := w.FirstChild; c != 0; c = d.Tree.Get(c).NextSibling {
		out = d.collectPassiveUnmounts(c, out)
	}
	return out
}
