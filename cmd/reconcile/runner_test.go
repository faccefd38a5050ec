package main

import (
	"strings"
	"testing"

	"github.com/recera/reconcile/internal/devconfig"
)

func TestRunnerReplayMountsAndUpdates(t *testing.T) {
	cfg := &devconfig.Config{
		Adapter: "memory",
		Scenario: devconfig.ScenarioConfig{
			Name: "basic",
			Steps: []devconfig.StepConfig{
				{At: "0s", Priority: "sync", Tree: "initial"},
				{At: "10ms", Priority: "default", Tree: "update-1"},
			},
		},
	}

	r := NewRunner(cfg, nil)
	if err := r.Replay(); err != nil {
		t.Fatalf("Replay: %v", err)
	}

	dump := r.Dump()
	if !strings.Contains(dump, "updated") {
		t.Fatalf("expected the second step's text to have committed, got:\n%s", dump)
	}
	if strings.Contains(dump, "\"hello\"") {
		t.Fatalf("expected the first step's text to have been replaced, got:\n%s", dump)
	}
}

func TestRunnerReplayRejectsUnknownTree(t *testing.T) {
	cfg := &devconfig.Config{
		Scenario: devconfig.ScenarioConfig{
			Steps: []devconfig.StepConfig{{At: "0s", Tree: "does-not-exist"}},
		},
	}

	r := NewRunner(cfg, nil)
	if err := r.Replay(); err == nil {
		t.Fatal("expected an error for an unresolvable fixture tree")
	}
}
