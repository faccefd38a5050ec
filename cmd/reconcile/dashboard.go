package main

import (
	"github.com/spf13/cobra"

	"github.com/recera/reconcile/cmd/reconcile/internal/dashboard"
)

func newDashboardCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Attach a live TUI to a running `reconcile run --dashboard` / `reconcile watch --dashboard`",
		RunE: func(cmd *cobra.Command, args []string) error {
			return dashboard.Run("ws://" + addr + "/ws")
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "localhost:7777", "Address of the dashboard websocket to attach to")
	return cmd
}
