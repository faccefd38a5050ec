// Package element defines the immutable descriptor tree user code builds
// and hands to the reconciler. Spec.md §1 places the descriptor factory
// (JSX-like element construction) out of scope as "a thin record builder";
// this package is that thin record, covering the full element vocabulary
// the reconciler's fiber tags require (host, text, fragment, portal, and
// the component variants below).
package element

// Kind discriminates what an Element represents.
type Kind uint8

const (
	KindHost Kind = iota
	KindText
	KindFragment
	KindPortal
	KindFunction
	KindClass
	KindContextProvider
	KindContextConsumer
	KindMemo
	KindForwardRef
	KindSuspense
	KindLazy
)

// Props is the property bag passed to a component or host element.
// "children" is handled structurally (via Children below), not as a prop
// key, and key/ref live as dedicated Element fields rather than Props
// entries, so nothing diffing a host element's props ever needs to
// special-case or filter out key/ref by name.
type Props map[string]any

// Element is one immutable node in the descriptor tree (spec.md's
// "tree of immutable view descriptors produced by user code").
type Element struct {
	Kind Kind

	// Type is the component identity: a host tag name (KindHost), a
	// RenderFunc (KindFunction), a *ClassDescriptor (KindClass), a
	// *LazyLoader (KindLazy), or the wrapped type for Memo/ForwardRef.
	Type any

	Key string

	Props    Props
	Children []*Element

	Text string // KindText only

	PortalTarget any // KindPortal only: opaque host container handle

	// Ref is an imperative ref target: a host.Ref implementation or a plain
	// func(any) callback, attached by internal/commit's Layout phase once
	// this element's host instance exists.
	Ref any

	// Effect is a passive side effect (spec.md §4.7): run asynchronously
	// once this element's fiber has committed, after the host tree is
	// live. Its return value, if non-nil, is called as a cleanup before
	// the next run or on unmount — the same shape as React's useEffect,
	// attached per-element rather than via a hook since this reconciler
	// has no hook call-order bookkeeping (spec.md's scope is the
	// reconciler core, not a component-authoring API).
	Effect func() (cleanup func())
}

// WithRef attaches ref to an already-built element and returns it, a
// builder-style setter so the Host/Function/Class/ForwardRef constructors
// don't all need a ref parameter threaded through every call site.
func (e *Element) WithRef(ref any) *Element {
	e.Ref = ref
	return e
}

// WithEffect attaches a passive effect to an already-built element and
// returns it.
func (e *Element) WithEffect(effect func() (cleanup func())) *Element {
	e.Effect = effect
	return e
}

// RenderFunc is a function component: it renders once per call with its
// current props and returns the element tree it produced.
type RenderFunc func(props Props) *Element

// ClassDescriptor groups a class-like component's construction and render
// hooks, mirroring spec.md §3's ClassLike fibers (the lifecycle methods a
// class component form needs, generalized from any specific host
// framework's class component API).
type ClassDescriptor struct {
	Name string
	// New constructs a fresh instance for a first mount.
	New func(props Props) Instance
}

// Instance is a class component instance: state plus lifecycle hooks.
// All hooks are optional (nil means "not implemented").
type Instance interface {
	Render(props Props, state any) *Element
}

// ShouldUpdater is implemented by instances that want to veto a re-render
// when neither props nor state materially changed.
type ShouldUpdater interface {
	ShouldComponentUpdate(nextProps Props, nextState any) bool
}

// ErrorBoundary is implemented by class instances that want to catch a
// render error thrown by a descendant (spec.md §7's "unwound until an
// error boundary sets ShouldCapture"). GetDerivedStateFromError computes
// the fallback state to render instead of re-throwing; internal/workloop
// calls it once per caught error, on the nearest ancestor implementing
// this interface.
type ErrorBoundary interface {
	GetDerivedStateFromError(err error) any
}

// Host builds a host-element descriptor.
func Host(tag string, props Props, children ...*Element) *Element {
	return &Element{Kind: KindHost, Type: tag, Key: keyOf(props), Props: props, Children: children}
}

// Text builds a text descriptor.
func Text(s string) *Element {
	return &Element{Kind: KindText, Text: s}
}

// Memo wraps a function component so the reconciler can bail out of
// re-rendering it when its props are shallow-equal to last time (spec.md
// §4.6's MemoComponent/SimpleMemoComponent distinction: equal is an
// optional custom comparator; nil means shallow prop equality).
func Memo(fn RenderFunc, equal func(prev, next Props) bool, key string, props Props) *Element {
	return &Element{Kind: KindMemo, Type: &MemoType{Render: fn, Equal: equal}, Key: key, Props: props}
}

// MemoType is the Type carried by a KindMemo element: the wrapped render
// function plus an optional custom prop comparator (nil means shallow
// equality).
type MemoType struct {
	Render RenderFunc
	Equal  func(prev, next Props) bool
}

// ForwardRef wraps a function component that additionally receives the
// element's ref value as a second argument.
type ForwardRenderFunc func(props Props, ref any) *Element

func ForwardRef(fn ForwardRenderFunc, key string, props Props) *Element {
	return &Element{Kind: KindForwardRef, Type: fn, Key: key, Props: props}
}

// Suspense builds a suspense-boundary descriptor: children render normally
// until one of them suspends, at which point fallback is shown instead.
func Suspense(fallback *Element, children ...*Element) *Element {
	return &Element{Kind: KindSuspense, Props: Props{"fallback": fallback}, Children: children}
}

// LazyLoader resolves to an Element asynchronously the first time it is
// rendered, suspending the nearest boundary until Load completes.
// internal/dispatch caches the resolution keyed by the loader's identity so
// a retried render doesn't call Load again.
type LazyLoader struct {
	Load func() (*Element, error)
}

// Lazy builds a lazy-component descriptor.
func Lazy(loader *LazyLoader, key string, props Props) *Element {
	return &Element{Kind: KindLazy, Type: loader, Key: key, Props: props}
}

// Fragment builds a fragment descriptor (children, no host node).
func Fragment(children ...*Element) *Element {
	return &Element{Kind: KindFragment, Children: children}
}

// Function builds a function-component descriptor.
func Function(fn RenderFunc, key string, props Props) *Element {
	return &Element{Kind: KindFunction, Type: fn, Key: key, Props: props}
}

// Class builds a class-component descriptor.
func Class(desc *ClassDescriptor, key string, props Props) *Element {
	return &Element{Kind: KindClass, Type: desc, Key: key, Props: props}
}

// Context is an opaque context cell identity: its pointer value, not its
// contents, is what internal/dispatch's provider/consumer stack keys on.
type Context struct {
	Name    string
	Default any
}

// NewContext creates a context cell with a default value used when no
// Provider ancestor exists.
func NewContext(name string, def any) *Context {
	return &Context{Name: name, Default: def}
}

// Provider builds a context-provider descriptor: Value is pushed onto the
// stack internal/dispatch maintains for c while descending into children.
func (c *Context) Provider(value any, children ...*Element) *Element {
	return &Element{Kind: KindContextProvider, Type: c, Props: Props{"value": value}, Children: children}
}

// ConsumerFunc renders using whatever value is currently provided for a
// context (or its Default, if no Provider ancestor exists).
type ConsumerFunc func(value any) *Element

// Consumer builds a context-consumer descriptor.
func (c *Context) Consumer(render ConsumerFunc) *Element {
	return &Element{Kind: KindContextConsumer, Type: c, Props: Props{"render": render}}
}

func keyOf(props Props) string {
	if props == nil {
		return ""
	}
	if k, ok := props["key"].(string); ok {
		return k
	}
	return ""
}
