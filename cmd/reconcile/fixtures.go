package main

import (
	"fmt"
	"strings"

	"github.com/recera/reconcile/pkg/element"
)

// ResolveTree maps a devconfig scenario step's Tree name onto a concrete
// element tree. This resolution table lives in cmd/reconcile rather than
// internal/devconfig because pkg/element sits above devconfig in the import
// graph (devconfig is loaded before any element-producing code exists).
//
// A handful of named fixtures cover the simplest shapes spec.md §8's
// scenarios exercise (an empty tree, a mount, a text update);
// "text:"/"div:"/"list:" prefixes let a scenario file describe the rest,
// such as prop updates and keyed lists, without needing a new Go fixture
// per tree.
func ResolveTree(name string) (*element.Element, error) {
	switch name {
	case "empty":
		return element.Fragment(), nil
	case "initial":
		return element.Host("div", element.Props{"id": "app"}, element.Text("hello")), nil
	case "update-1":
		return element.Host("div", element.Props{"id": "app"}, element.Text("updated")), nil
	}

	switch {
	case strings.HasPrefix(name, "text:"):
		return element.Host("div", nil, element.Text(strings.TrimPrefix(name, "text:"))), nil
	case strings.HasPrefix(name, "div:"):
		id := strings.TrimPrefix(name, "div:")
		return element.Host("div", element.Props{"id": id}), nil
	case strings.HasPrefix(name, "list:"):
		return listTree(strings.TrimPrefix(name, "list:")), nil
	}

	return nil, fmt.Errorf("cmd/reconcile: unknown fixture tree %q", name)
}

// listTree builds a keyed <ul> from a comma-separated item list, e.g.
// "list:a,b,c" — useful for exercising internal/dispatch's keyed
// reconciliation from a scenario file without writing Go.
func listTree(items string) *element.Element {
	var children []*element.Element
	for _, item := range strings.Split(items, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		children = append(children, element.Host("li", element.Props{"key": item}, element.Text(item)))
	}
	return element.Host("ul", nil, children...)
}
