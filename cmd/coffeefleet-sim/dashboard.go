package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"coffeefleet-sim/internal/dashboard"
)

var (
	dashboardOut           string
	dashboardDatasourceUID string
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Render the Grafana dashboard for the GreptimeDB tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := dashboard.Render(dashboardOut, dashboardDatasourceUID)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Dashboard written to", path)
		return nil
	},
}

func init() {
	dashboardCmd.Flags().StringVar(&dashboardOut, "out", "grafana", "Output directory")
	dashboardCmd.Flags().StringVar(&dashboardDatasourceUID, "datasource-uid", "", "Grafana datasource UID (defaults to $"+dashboard.DatasourceEnv+")")
}
