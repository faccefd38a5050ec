package main

import (
	"testing"

	"github.com/recera/reconcile/pkg/element"
)

func TestResolveTreeNamedFixtures(t *testing.T) {
	tree, err := ResolveTree("initial")
	if err != nil {
		t.Fatalf("ResolveTree: %v", err)
	}
	if tree.Kind != element.KindHost || tree.Type != "div" {
		t.Fatalf("expected a <div>, got %+v", tree)
	}
}

func TestResolveTreeListPrefixBuildsKeyedChildren(t *testing.T) {
	tree, err := ResolveTree("list:a,b,c")
	if err != nil {
		t.Fatalf("ResolveTree: %v", err)
	}
	if len(tree.Children) != 3 {
		t.Fatalf("expected 3 <li> children, got %d", len(tree.Children))
	}
	if tree.Children[1].Key != "b" {
		t.Fatalf("expected second child keyed %q, got %q", "b", tree.Children[1].Key)
	}
}

func TestResolveTreeUnknownNameErrors(t *testing.T) {
	if _, err := ResolveTree("nope"); err == nil {
		t.Fatal("expected an error for an unknown fixture name")
	}
}
