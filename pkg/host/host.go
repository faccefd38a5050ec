// Package host defines the reconciler's only boundary to the platform: the
// host adapter trait from spec.md §6. The core reconciler (internal/...)
// never imports a concrete adapter — it is handed one through
// pkg/reconciler.CreateContainer and calls it only through this interface.
package host

// Adapter is implemented by a platform binding (a browser DOM, an in-memory
// tree for tests, a terminal renderer, …). Every method corresponds
// directly to an operation named in spec.md §6.
type Adapter interface {
	CreateInstance(typ string, props any, rootContainer any, hostContext any) (any, error)
	CreateTextInstance(text string, rootContainer any, hostContext any) (any, error)
	AppendInitialChild(parent, child any)
	// FinalizeInitialChildren returns whether the host still needs a
	// commit-time callback for this instance (e.g. autofocus).
	FinalizeInitialChildren(instance any, typ string, props any) (needsCommit bool)
	// PrepareUpdate computes an opaque update payload, or (nil, false) if
	// nothing needs to change at commit time.
	PrepareUpdate(instance any, typ string, oldProps, newProps any) (payload any, changed bool)
	CommitUpdate(instance any, payload any, typ string, oldProps, newProps any)
	CommitTextUpdate(textInstance any, oldText, newText string)

	AppendChild(parent, child any)
	InsertBefore(parent, child, before any)
	RemoveChild(parent, child any)

	// PrepareForCommit is called once before the Mutation phase begins; its
	// return value (e.g. focused-element bookkeeping) is handed back to
	// ResetAfterCommit once Mutation finishes.
	PrepareForCommit(container any) (restoreState any)
	ResetAfterCommit(container any, restoreState any)

	GetRootHostContext(container any) any
	GetChildHostContext(parentContext any, typ string) any
}

// Ref is the interface an imperative ref target may implement, used by the
// commit driver's Ref-attach/detach step (spec.md §4.7, §9 "Ref cleanup").
type Ref interface {
	Attach(instance any) (cleanup func())
}

// CallbackRef adapts a plain callback-style ref (`func(any)`) to the Ref
// interface: on attach it is called with the instance; on detach (if it
// never returned a cleanup) it is called with nil.
type CallbackRef func(any)

func (f CallbackRef) Attach(instance any) (cleanup func()) {
	f(instance)
	return func() { f(nil) }
}
