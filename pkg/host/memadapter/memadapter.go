// Package memadapter is a reference host.Adapter implementation backed by a
// plain in-memory tree. It exists so the reconciler's own tests (and
// spec.md §8's end-to-end scenarios) have something concrete to commit
// against without a browser.
package memadapter

import (
	"fmt"
	"sort"
	"strings"

	"github.com/recera/reconcile/pkg/host"
)

// Instance is an in-memory element or text node.
type Instance struct {
	Tag      string // "" for text instances
	Text     string
	Props    map[string]any
	Parent   *Instance
	Children []*Instance
}

// Adapter is a host.Adapter that mutates an in-memory tree, recording a
// trace of every call it receives so tests can assert on host-event order
// (spec.md §8's scenarios all describe expected "host events").
type Adapter struct {
	Root  *Instance
	Trace []string
}

// New creates an adapter whose container is an empty root instance.
func New() *Adapter {
	return &Adapter{Root: &Instance{Tag: "#root"}}
}

func (a *Adapter) log(format string, args ...any) {
	a.Trace = append(a.Trace, fmt.Sprintf(format, args...))
}

func (a *Adapter) CreateInstance(typ string, props any, rootContainer any, hostContext any) (any, error) {
	a.log("create_instance(%s)", typ)
	p, _ := props.(map[string]any)
	return &Instance{Tag: typ, Props: p}, nil
}

func (a *Adapter) CreateTextInstance(text string, rootContainer any, hostContext any) (any, error) {
	a.log("create_text_instance(%q)", text)
	return &Instance{Text: text}, nil
}

func (a *Adapter) AppendInitialChild(parent, child any) {
	p := parent.(*Instance)
	c := child.(*Instance)
	a.log("append_initial_child(%s) under %s", describe(c), describe(p))
	c.Parent = p
	p.Children = append(p.Children, c)
}

func (a *Adapter) FinalizeInitialChildren(instance any, typ string, props any) bool {
	return false
}

func (a *Adapter) PrepareUpdate(instance any, typ string, oldProps, newProps any) (any, bool) {
	oldMap, _ := oldProps.(map[string]any)
	newMap, _ := newProps.(map[string]any)
	if propsEqual(oldMap, newMap) {
		return nil, false
	}
	return newMap, true
}

func (a *Adapter) CommitUpdate(instance any, payload any, typ string, oldProps, newProps any) {
	inst := instance.(*Instance)
	a.log("commit_update(%s)", describe(inst))
	inst.Props, _ = payload.(map[string]any)
}

func (a *Adapter) CommitTextUpdate(textInstance any, oldText, newText string) {
	inst := textInstance.(*Instance)
	a.log("commit_text_update(%q -> %q)", oldText, newText)
	inst.Text = newText
}

func (a *Adapter) AppendChild(parent, child any) {
	p := parent.(*Instance)
	c := child.(*Instance)
	a.log("append_child(%s, %s)", describe(p), describe(c))
	removeChild(p, c)
	c.Parent = p
	p.Children = append(p.Children, c)
}

func (a *Adapter) InsertBefore(parent, child, before any) {
	p := parent.(*Instance)
	c := child.(*Instance)
	b, _ := before.(*Instance)
	if b == nil {
		a.AppendChild(parent, child)
		return
	}
	a.log("insert_before(%s, %s, %s)", describe(p), describe(c), describe(b))
	removeChild(p, c)
	idx := indexOf(p, b)
	c.Parent = p
	p.Children = append(p.Children, nil)
	copy(p.Children[idx+1:], p.Children[idx:])
	p.Children[idx] = c
}

func (a *Adapter) RemoveChild(parent, child any) {
	p := parent.(*Instance)
	c := child.(*Instance)
	a.log("remove_child(%s, %s)", describe(p), describe(c))
	removeChild(p, c)
	c.Parent = nil
}

func (a *Adapter) PrepareForCommit(container any) any { return nil }
func (a *Adapter) ResetAfterCommit(container any, restoreState any) {}

func (a *Adapter) GetRootHostContext(container any) any { return nil }
func (a *Adapter) GetChildHostContext(parentContext any, typ string) any { return parentContext }

var _ host.Adapter = (*Adapter)(nil)

func describe(i *Instance) string {
	if i == nil {
		return "<nil>"
	}
	if i.Tag == "" {
		return fmt.Sprintf("text(%q)", i.Text)
	}
	return i.Tag
}

func removeChild(p, c *Instance) {
	idx := indexOf(p, c)
	if idx < 0 {
		return
	}
	p.Children = append(p.Children[:idx], p.Children[idx+1:]...)
}

func indexOf(p, c *Instance) int {
	for i, ch := range p.Children {
		if ch == c {
			return i
		}
	}
	return -1
}

func propsEqual(a, b map[string]any) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || fmt.Sprintf("%v", v) != fmt.Sprintf("%v", bv) {
			return false
		}
	}
	return true
}

// Dump renders the tree as an indented outline, handy for test failure
// messages and the dashboard's tree view.
func (i *Instance) Dump() string {
	var sb strings.Builder
	i.dump(&sb, 0)
	return sb.String()
}

func (i *Instance) dump(sb *strings.Builder, depth int) {
	sb.WriteString(strings.Repeat("  ", depth))
	if i.Tag == "" {
		fmt.Fprintf(sb, "%q\n", i.Text)
		return
	}
	keys := make([]string, 0, len(i.Props))
	for k := range i.Props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintf(sb, "<%s", i.Tag)
	for _, k := range keys {
		fmt.Fprintf(sb, " %s=%v", k, i.Props[k])
	}
	sb.WriteString(">\n")
	for _, c := range i.Children {
		c.dump(sb, depth+1)
	}
}
