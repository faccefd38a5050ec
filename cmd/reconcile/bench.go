package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/recera/reconcile/internal/devconfig"
)

func newBenchCommand() *cobra.Command {
	var configPath string
	var iterations int
	var save bool

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Replay a scenario file repeatedly and report wall-clock timing",
		RunE: func(cmd *cobra.Command, args []string) error {
			return benchScenario(configPath, iterations, save)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "scenario.yaml", "Path to the scenario YAML file")
	cmd.Flags().IntVarP(&iterations, "iterations", "n", 50, "Number of replay iterations")
	cmd.Flags().BoolVar(&save, "save", false, "Write the resolved configuration (with defaults filled in) back to --config")

	return cmd
}

func benchScenario(configPath string, iterations int, save bool) error {
	cfg, err := devconfig.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if save {
		if err := devconfig.Save(cfg, configPath); err != nil {
			return fmt.Errorf("reconcile bench: saving resolved config: %w", err)
		}
	}

	if iterations <= 0 {
		iterations = 1
	}

	var total time.Duration
	var worst time.Duration
	for i := 0; i < iterations; i++ {
		runner := NewRunner(cfg, nil)
		start := time.Now()
		if err := runner.Replay(); err != nil {
			return fmt.Errorf("iteration %d: %w", i, err)
		}
		elapsed := time.Since(start)
		total += elapsed
		if elapsed > worst {
			worst = elapsed
		}
	}

	avg := total / time.Duration(iterations)
	fmt.Printf("scenario %q: %d iterations, %d steps each\n", cfg.Scenario.Name, iterations, len(cfg.Scenario.Steps))
	fmt.Printf("  total:   %v\n", total)
	fmt.Printf("  average: %v\n", avg)
	fmt.Printf("  worst:   %v\n", worst)
	return nil
}
