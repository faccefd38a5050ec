// Package devconfig loads the YAML scenario/priority-budget file
// cmd/reconcile drives a reconciler run against: which host adapter to
// mount, what sequence of UpdateContainer calls to replay and at what
// simulated offsets and priorities, and optional overrides for the lane
// expiration budgets spec.md §4.1 names.
//
// Config is unmarshalled with every field left at its YAML-provided value;
// defaults are filled in afterward by applyDefaults rather than via struct
// tags, so a zero value and an explicit "use the default" are the same
// thing to the YAML decoder and only applyDefaults has to reconcile them.
package devconfig

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/recera/reconcile/internal/lane"
)

// Config is the top-level scenario file shape.
type Config struct {
	// Adapter selects the host binding a scenario run mounts against.
	// "memory" (pkg/host/memadapter) is the only implementation today.
	Adapter string `yaml:"adapter,omitempty"`

	Scenario  ScenarioConfig  `yaml:"scenario"`
	Budgets   BudgetConfig    `yaml:"budgets,omitempty"`
	Dashboard DashboardConfig `yaml:"dashboard,omitempty"`
}

// ScenarioConfig is the ordered list of updates a `reconcile run`/`bench`
// replays against one container.
type ScenarioConfig struct {
	Name  string        `yaml:"name,omitempty"`
	Steps []StepConfig  `yaml:"steps"`
}

// StepConfig is one scheduled update: render Tree at Priority, At a
// simulated offset from the scenario's start (parsed with
// time.ParseDuration — "0s", "10ms", "250ms", ...).
type StepConfig struct {
	At       string `yaml:"at"`
	Priority string `yaml:"priority,omitempty"`
	// Tree names an entry in the scenario's fixture table that cmd/reconcile
	// resolves to an *element.Element; devconfig only carries the string,
	// since pkg/element (and the fixtures built from it) sit above this
	// package in the import graph.
	Tree string `yaml:"tree"`
}

// Offset parses At, defaulting to zero (fire immediately) when unset.
func (s StepConfig) Offset() (time.Duration, error) {
	if s.At == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s.At)
	if err != nil {
		return 0, fmt.Errorf("devconfig: step %q: bad \"at\" duration: %w", s.Tree, err)
	}
	return d, nil
}

// Lane resolves Priority to a lane.Set, defaulting to DefaultLane.
func (s StepConfig) Lane() (lane.Set, error) {
	return resolvePriority(s.Priority)
}

// BudgetConfig overrides spec.md §4.1's per-class expiration budgets.
// Zero fields keep internal/lane's built-in defaults.
type BudgetConfig struct {
	ContinuousMS int `yaml:"continuousMs,omitempty"`
	DefaultMS    int `yaml:"defaultMs,omitempty"`
	TransitionMS int `yaml:"transitionMs,omitempty"`
	RetryMS      int `yaml:"retryMs,omitempty"`
}

// DashboardConfig controls the optional live TUI/websocket telemetry.
type DashboardConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr,omitempty"`
}

func resolvePriority(name string) (lane.Set, error) {
	switch name {
	case "", "default":
		return lane.DefaultLane, nil
	case "sync":
		return lane.SyncLane, nil
	case "continuous":
		return lane.InputContinuousLane, nil
	case "transition":
		return lane.NextTransitionLane(), nil
	case "retry":
		return lane.NextRetryLane(), nil
	case "idle":
		return lane.IdleLane, nil
	default:
		return lane.NoLanes, fmt.Errorf("devconfig: unknown priority %q", name)
	}
}

// Load reads and parses a scenario file, applying defaults to any field
// the file left zero-valued. A missing file is not an error: it returns
// DefaultConfig(), matching cmd/vango/internal/config.Load's "no vango.json
// yet" behavior.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("devconfig: reading %s: %w", path, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("devconfig: parsing %s: %w", path, err)
	}
	applyDefaults(cfg)
	return cfg, nil
}

// Save writes cfg back out as YAML, e.g. for `reconcile bench --save`.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("devconfig: marshaling: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// DefaultConfig returns the configuration an empty or missing scenario
// file is equivalent to: the in-memory adapter, no steps, built-in lane
// budgets, dashboard off.
func DefaultConfig() *Config {
	return &Config{
		Adapter:  "memory",
		Scenario: ScenarioConfig{Name: "default"},
		Dashboard: DashboardConfig{
			Enabled: false,
			Addr:    "localhost:7777",
		},
	}
}

func applyDefaults(cfg *Config) {
	defaults := DefaultConfig()
	if cfg.Adapter == "" {
		cfg.Adapter = defaults.Adapter
	}
	if cfg.Scenario.Name == "" {
		cfg.Scenario.Name = defaults.Scenario.Name
	}
	if cfg.Dashboard.Addr == "" {
		cfg.Dashboard.Addr = defaults.Dashboard.Addr
	}
}

// Validate checks a loaded scenario for the mistakes a hand-edited YAML
// file is likely to contain: an unknown adapter, a step with no tree, or a
// malformed "at"/"priority" field.
func (c *Config) Validate() error {
	switch c.Adapter {
	case "", "memory":
	default:
		return fmt.Errorf("devconfig: unknown adapter %q", c.Adapter)
	}

	for i, step := range c.Scenario.Steps {
		if step.Tree == "" {
			return fmt.Errorf("devconfig: scenario step %d: \"tree\" is required", i)
		}
		if _, err := step.Offset(); err != nil {
			return err
		}
		if _, err := step.Lane(); err != nil {
			return fmt.Errorf("devconfig: scenario step %d: %w", i, err)
		}
	}
	return nil
}

// ContinuousBudget, DefaultBudget, TransitionBudget, and RetryBudget
// resolve an override (if set) or fall back to d, the internal/lane
// package's own built-in default for that class. Nothing in cmd/reconcile
// calls them: a run always uses internal/lane's built-in budgets
// (internal/lane.Budget itself is a pure function of lane class, not a
// config target, so an override takes effect only where a caller consults
// these directly).
func (b BudgetConfig) ContinuousBudget(d time.Duration) time.Duration {
	return overrideMS(b.ContinuousMS, d)
}

func (b BudgetConfig) DefaultBudget(d time.Duration) time.Duration {
	return overrideMS(b.DefaultMS, d)
}

func (b BudgetConfig) TransitionBudget(d time.Duration) time.Duration {
	return overrideMS(b.TransitionMS, d)
}

func (b BudgetConfig) RetryBudget(d time.Duration) time.Duration {
	return overrideMS(b.RetryMS, d)
}

func overrideMS(ms int, fallback time.Duration) time.Duration {
	if ms <= 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}
