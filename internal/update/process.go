package update

import "github.com/recera/reconcile/internal/lane"

// Result is what applying a queue's base list at a given render-lane set
// produces: the new state plus bookkeeping the caller (internal/dispatch)
// folds into fiber flags and lanes.
type Result struct {
	State any
	// Lanes is the union of every update's lane that was *skipped* this
	// pass; the caller ORs this into wip.Lanes so the root knows to
	// re-render it later (mark_skipped_update_lanes).
	Lanes lane.Set
	// HasForceUpdate means a ForceUpdate update applied (state unchanged,
	// but a re-render must not be bailed out of).
	HasForceUpdate bool
	// SawCapture means at least one CaptureUpdate applied; the caller
	// clears ShouldCapture and sets DidCapture on the fiber.
	SawCapture bool
	// HasCallback means at least one applied update carried a callback;
	// the caller sets the Callback effect flag.
	HasCallback bool
	// HiddenCallback means a callback was recorded while the update was
	// rendering in a hidden (Offscreen) subtree; the caller also sets the
	// Visibility effect flag, per spec.md §4.3 step 2.
	HiddenCallback bool
}

// spliceSharedPending moves the circular pending ring onto the tail of the
// linear base list, turning it linear in the process. Spec.md §4.3 step 1.
func (q *Queue) spliceSharedPending() {
	if q.pending == nil {
		return
	}
	tail := q.pending
	head := tail.next
	tail.next = nil
	if q.lastBase == nil {
		q.firstBase = head
	} else {
		q.lastBase.next = head
	}
	q.lastBase = tail
	q.pending = nil
}

// ProcessUpdateQueue drains and rebases the queue's base list against
// renderLanes (the lanes this render is rendering), applying updates whose
// lane is included and re-queuing (cloned) the ones that are skipped, per
// spec.md §4.3's rebase discipline. wipRootRenderLanes is used for updates
// that originated in a hidden (Offscreen) subtree, whose skip test is
// against the whole root render rather than this fiber's render lanes.
func (q *Queue) ProcessUpdateQueue(nextProps any, renderLanes, wipRootRenderLanes lane.Set) Result {
	q.spliceSharedPending()

	var (
		newBaseFirst, newBaseLast *Update
		newState                  = q.BaseState
		res                       Result
		baseStateCaptured         bool
	)

	appendBase := func(u *Update) {
		if newBaseLast == nil {
			newBaseFirst = u
		} else {
			newBaseLast.next = u
		}
		newBaseLast = u
	}

	for u := q.firstBase; u != nil; u = u.next {
		updateLane := lane.Remove(u.Lane, lane.OffscreenLane)
		isHidden := updateLane != u.Lane

		var shouldSkip bool
		if isHidden {
			shouldSkip = !lane.IsSubset(updateLane, wipRootRenderLanes)
		} else {
			shouldSkip = !lane.IsSubset(updateLane, renderLanes)
		}

		if shouldSkip {
			clone := &Update{Lane: u.Lane, Tag: u.Tag, Payload: u.Payload, Callback: u.Callback}
			appendBase(clone)
			res.Lanes = lane.Merge(res.Lanes, u.Lane)
			if !baseStateCaptured {
				q.BaseState = newState
				baseStateCaptured = true
			}
			continue
		}

		if baseStateCaptured {
			// Every applied update after the first skip must still be
			// replayed when the skipped lane eventually renders, but its
			// commit callback already fired once conceptually this pass is
			// the "preview" — so the clone drops it (matches CaptureUpdate
			// getting the same treatment per SPEC_FULL.md open question 2).
			clone := &Update{Lane: lane.NoLanes, Tag: u.Tag, Payload: u.Payload}
			appendBase(clone)
		}

		switch u.Tag {
		case UpdateState:
			if partial := u.Payload.resolve(newState, nextProps); partial != nil {
				newState = q.merge(newState, partial)
			}
		case ReplaceState:
			newState = u.Payload.resolve(newState, nextProps)
		case CaptureUpdate:
			res.SawCapture = true
			if partial := u.Payload.resolve(newState, nextProps); partial != nil {
				newState = q.merge(newState, partial)
			}
		case ForceUpdate:
			res.HasForceUpdate = true
		}

		if u.Callback != nil {
			res.HasCallback = true
			if isHidden {
				res.HiddenCallback = true
			}
			q.AppendCallback(u.Callback)
		}
	}

	if !baseStateCaptured {
		q.BaseState = newState
	}

	q.firstBase = newBaseFirst
	q.lastBase = newBaseLast
	res.State = newState
	return res
}

// ShareBaseListWith makes other's base list structurally share this queue's
// tail, per spec.md §4.3's "if current.alternate has a diverged
// last_base_update, update it to reference the same tail". Nothing else in
// the module calls it: fiber.CreateWorkInProgress shares one *Queue between
// current and work-in-progress, so both already observe the same splice.
func (q *Queue) ShareBaseListWith(other *Queue) {
	if other.lastBase != q.lastBase {
		other.lastBase = q.lastBase
	}
	if other.firstBase == nil {
		other.firstBase = q.firstBase
	}
}
