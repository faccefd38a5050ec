// Package update implements the per-fiber pending-mutation queue and its
// rebase discipline (spec.md §4.3, C3). The queue is generic over no
// particular state type: state is carried as `any` and merged via a
// pluggable Merge function, matching spec.md §9's note that shallow-merge
// semantics should be a Merge operation the host defines rather than an
// inherited language-level object-spread.
package update

import "github.com/recera/reconcile/internal/lane"

// Tag identifies the kind of mutation an Update carries.
type Tag uint8

const (
	UpdateState Tag = iota
	ReplaceState
	ForceUpdate
	CaptureUpdate
)

// Payload computes the next partial state. If Fn is nil, Value is used
// directly (a plain value update); otherwise Fn(prevState, nextProps) is
// called, mirroring the source's "value or function" payload shape.
type Payload struct {
	Value any
	Fn    func(prevState, nextProps any) any
}

func (p Payload) resolve(prevState, nextProps any) any {
	if p.Fn != nil {
		return p.Fn(prevState, nextProps)
	}
	return p.Value
}

// Update is a single pending state mutation.
type Update struct {
	Lane     lane.Set
	Tag      Tag
	Payload  Payload
	Callback func()

	next *Update // base-list link; unexported, queue-owned
}

// NewUpdate constructs an Update at the given lane. Tag defaults to
// UpdateState; set Tag explicitly for Replace/Force/Capture updates.
func NewUpdate(l lane.Set) *Update {
	return &Update{Lane: l, Tag: UpdateState}
}

// MergeFunc computes the shallow field-wise union of prev and partial for
// UpdateState application. The default (DefaultMerge) handles
// map[string]any; callers with struct-shaped state should supply their own.
type MergeFunc func(prev, partial any) any

// DefaultMerge shallow-unions two map[string]any values, new fields
// overwriting old ones. A nil partial is a no-op, matching spec.md §4.3's
// "a null/undefined partial is a no-op". Non-map values fall back to
// replacement, since there is no generic shallow-merge for arbitrary Go
// values without reflection-based field copying the corpus doesn't model.
func DefaultMerge(prev, partial any) any {
	if partial == nil {
		return prev
	}
	prevMap, prevOK := prev.(map[string]any)
	partMap, partOK := partial.(map[string]any)
	if prevOK && partOK {
		merged := make(map[string]any, len(prevMap)+len(partMap))
		for k, v := range prevMap {
			merged[k] = v
		}
		for k, v := range partMap {
			merged[k] = v
		}
		return merged
	}
	return partial
}

// Queue is the per-fiber update queue: a persisted base list plus a
// circular pending list that producers append to.
type Queue struct {
	BaseState any

	firstBase *Update
	lastBase  *Update

	pending *Update // tail of the circular pending ring; pending.next is the head

	callbacks []func()

	merge MergeFunc
}

// NewQueue creates a queue seeded with baseState, using merge for
// UpdateState application (DefaultMerge if merge is nil).
func NewQueue(baseState any, merge MergeFunc) *Queue {
	if merge == nil {
		merge = DefaultMerge
	}
	return &Queue{BaseState: baseState, merge: merge}
}

// Enqueue appends u to the circular pending list. Safe for a single
// producer interleaving with the (single) consumer drain, per spec.md §5 —
// it only ever mutates the pending ring, never the base list.
func (q *Queue) Enqueue(u *Update) {
	if q.pending == nil {
		u.next = u
	} else {
		u.next = q.pending.next
		q.pending.next = u
	}
	q.pending = u
}

// CloneSharedPending returns q's pending ring tail so another queue can
// point at the same nodes, modeling spec.md §4.3's "the two queues structurally share the linked
// nodes" when current.alternate's base list has diverged from q's.
func (q *Queue) CloneSharedPending() *Update {
	return q.pending
}

// AppendCallback records a commit-time callback, run after this queue's
// updates are applied during commit's Layout phase.
func (q *Queue) AppendCallback(cb func()) {
	if cb != nil {
		q.callbacks = append(q.callbacks, cb)
	}
}

// DrainCallbacks returns and clears the queue's pending commit callbacks.
func (q *Queue) DrainCallbacks() []func() {
	cbs := q.callbacks
	q.callbacks = nil
	return cbs
}
