package workloop

import (
	"github.com/recera/reconcile/internal/commit"
	"github.com/recera/reconcile/internal/fiber"
)

// flushPassiveEffects runs the passive effects internal/commit collected
// during the last CommitRoot call, per spec.md §4.7's "passive effects run
// asynchronously, after paint". Unmount entries run their eagerly-captured
// Cleanup directly; mount entries look the fiber back up by ID (safe since
// only deleted subtrees are freed at commit, and a surviving fiber's Effect/
// EffectCleanup fields are exactly what this render left there) and run the
// previous cleanup (if any) before re-invoking the effect.
func (e *Engine) flushPassiveEffects(root *fiber.Root, pending []commit.PendingPassiveEffect) {
	for _, p := range pending {
		if !p.Mount {
			if p.Cleanup != nil {
				p.Cleanup()
			}
			continue
		}
		w := root.Tree.Get(p.FiberID)
		if w == nil || w.Effect == nil {
			continue
		}
		if w.EffectCleanup != nil {
			w.EffectCleanup()
			w.EffectCleanup = nil
		}
		w.EffectCleanup = w.Effect()
	}
}
