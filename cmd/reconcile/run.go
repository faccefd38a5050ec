package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/recera/reconcile/internal/devconfig"
	"github.com/recera/reconcile/internal/livebridge"
)

func newRunCommand() *cobra.Command {
	var configPath string
	var dashboard bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Replay a scenario file once and print the resulting host tree",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenario(configPath, dashboard)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "scenario.yaml", "Path to the scenario YAML file")
	cmd.Flags().BoolVar(&dashboard, "dashboard", false, "Serve live telemetry over websocket while replaying")

	return cmd
}

func runScenario(configPath string, forceDashboard bool) error {
	cfg, err := devconfig.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	var bridge *livebridge.Bridge
	if forceDashboard || cfg.Dashboard.Enabled {
		server := livebridge.NewServer()
		bridge = livebridge.NewBridge(server)
		addr := cfg.Dashboard.Addr

		mux := http.NewServeMux()
		mux.HandleFunc("/ws", server.HandleWebSocket)

		go func() {
			log.Printf("reconcile: dashboard websocket listening on ws://%s/ws", addr)
			if err := http.ListenAndServe(addr, mux); err != nil {
				log.Printf("reconcile: dashboard server stopped: %v", err)
			}
		}()
	}

	runner := NewRunner(cfg, bridge)
	if err := runner.Replay(); err != nil {
		return fmt.Errorf("replaying scenario %q: %w", cfg.Scenario.Name, err)
	}

	fmt.Printf("scenario %q: %d steps replayed\n\n", cfg.Scenario.Name, len(cfg.Scenario.Steps))
	fmt.Print(runner.Dump())
	return nil
}
