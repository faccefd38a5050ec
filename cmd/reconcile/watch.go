package main

import (
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

func newWatchCommand() *cobra.Command {
	var configPath string
	var dashboard bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-run a scenario file every time it changes on disk",
		RunE: func(cmd *cobra.Command, args []string) error {
			return watchScenario(configPath, dashboard)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "scenario.yaml", "Path to the scenario YAML file")
	cmd.Flags().BoolVar(&dashboard, "dashboard", false, "Serve live telemetry over websocket while replaying")

	return cmd
}

// watchScenario re-replays configPath every time it changes, debounced the
// same way cmd/vango/dev.go's watchFiles debounces a burst of editor saves
// into a single rebuild.
func watchScenario(configPath string, dashboard bool) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("reconcile watch: creating file watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(configPath)
	if dir == "" {
		dir = "."
	}
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("reconcile watch: watching %s: %w", dir, err)
	}

	log.Printf("reconcile watch: watching %s for changes to %s", dir, filepath.Base(configPath))
	if err := runScenario(configPath, dashboard); err != nil {
		log.Printf("reconcile watch: initial run failed: %v", err)
	}

	debounce := time.NewTimer(0)
	<-debounce.C

	var pending bool
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != filepath.Base(configPath) {
				continue
			}
			pending = true
			debounce.Reset(100 * time.Millisecond)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Println("reconcile watch: watcher error:", err)

		case <-debounce.C:
			if !pending {
				continue
			}
			pending = false
			log.Printf("reconcile watch: %s changed, re-running", configPath)
			if err := runScenario(configPath, dashboard); err != nil {
				log.Printf("reconcile watch: run failed: %v", err)
			}
		}
	}
}
