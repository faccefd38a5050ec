// Package fiber implements the reconciler's double-buffered tree of work
// nodes (spec.md §3, §4.2, C2). Fibers live in an arena owned by the
// FiberRoot: all intra-tree links are arena indices (ID), not pointers, so
// the alternate/parent/child cycles spec.md §9 describes never become Go
// reference cycles and "at most two versions of any fiber" is an allocator
// invariant rather than a convention.
package fiber

import (
	"github.com/recera/reconcile/internal/lane"
	"github.com/recera/reconcile/internal/update"
)

// ID is an arena index. The zero ID means "no fiber" (nil).
type ID uint32

// Tag discriminates what kind of unit of work a fiber represents.
type Tag uint8

const (
	FunctionComponent Tag = iota
	ClassComponent
	HostRoot
	HostComponent
	HostText
	Fragment
	ContextProvider
	ContextConsumer
	MemoComponent
	SimpleMemoComponent
	ForwardRef
	SuspenseComponent
	OffscreenComponent
	Portal
	Profiler
	LazyComponent
	ThrowFiber
)

// Mode is a bitmask of rendering modes.
type Mode uint8

const (
	ConcurrentMode Mode = 1 << iota
	StrictMode
	ProfileMode
)

// Flags is the effect bitmask applied at commit (spec.md §3).
type Flags uint32

const NoFlags Flags = 0

const (
	Placement Flags = 1 << iota
	Update_         // avoid clashing with update package name
	ChildDeletion
	ContentReset
	Ref
	Snapshot
	Passive
	Visibility
	Callback
	DidCapture
	ShouldCapture
	Hydrating
	Incomplete
	ForceClientRender
	FormReset
	RefCleanupFlag
)

// StaticMask is the subset of flags that persists across clones (spec.md
// §4.2, invariant 4). Per-render effect bits (Placement, Update_, Passive,
// ContentReset and the rest) are cleared on every clone; only structural
// "this fiber is permanently special" bits belong here — in this
// reconciler that's just ref ownership (Ref and RefCleanupFlag).
const StaticMask = Ref | RefCleanupFlag

// BeforeMutationMask is the set of flags BeforeMutation inspects.
const BeforeMutationMask = Snapshot | Update_ | ChildDeletion | Visibility

// MutationMask is the set of flags the Mutation phase inspects.
const MutationMask = Placement | Update_ | ChildDeletion | ContentReset | Ref | Hydrating | Visibility | FormReset

// LayoutMask is the set of flags the Layout phase inspects.
const LayoutMask = Update_ | Callback | Ref | Visibility

// PassiveMask is the set of flags the passive-effect pass inspects.
const PassiveMask = Passive | Visibility | ChildDeletion

// Node is a single fiber. Tree links are arena IDs, not pointers.
type Node struct {
	ID ID

	Tag         Tag
	Type        any // component identity: function ref, class descriptor, host tag
	ElementType any // unresolved form, for memoization / lazy unwrapping
	Key         string
	Mode        Mode

	StateNode any // host resource handle or class instance

	Parent      ID
	FirstChild  ID
	NextSibling ID
	Index       int

	PendingProps  any
	MemoizedProps any
	MemoizedState any
	UpdateQueue   *update.Queue
	Dependencies  *Dependencies

	Flags        Flags
	SubtreeFlags Flags
	Deletions    []ID

	Lanes      lane.Set
	ChildLanes lane.Set

	Alternate ID

	Ref        any
	RefCleanup func()

	// Effect is a passive side effect to run after commit (spec.md §4.7's
	// Passive-masked pass), set from an element.Effect by
	// internal/dispatch's reconcileChildren the same way Ref is wired.
	// EffectCleanup holds whatever the last run returned, invoked before
	// the next Mount or on unmount.
	Effect        func() (cleanup func())
	EffectCleanup func()
}

// Dependencies tracks context reads a fiber made during render, cloned (not
// shared) into the work-in-progress fiber per spec.md §4.2.
type Dependencies struct {
	Lanes   lane.Set
	Context []any // opaque context cell identities this fiber subscribes to
}

// Clone produces a deep-enough copy: render mutates the WIP's Dependencies
// without disturbing the current tree's.
func (d *Dependencies) Clone() *Dependencies {
	if d == nil {
		return nil
	}
	ctx := make([]any, len(d.Context))
	copy(ctx, d.Context)
	return &Dependencies{Lanes: d.Lanes, Context: ctx}
}

// HasFlag reports whether any bit of f is set on the node's Flags.
func (n *Node) HasFlag(f Flags) bool { return n.Flags&f != 0 }

// HasSubtreeFlag reports whether any bit of f is set on SubtreeFlags.
func (n *Node) HasSubtreeFlag(f Flags) bool { return n.SubtreeFlags&f != 0 }
