package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"coffeefleet-sim/internal/config"
)

var (
	validateConfigPath string
	validateSchemaPath string
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a fleet configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if validateConfigPath == "" {
			return errors.New("--config is required")
		}
		cfg, err := config.Load(validateConfigPath, validateSchemaPath)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s is valid: %d machines, %d simulated\n",
			validateConfigPath, len(cfg.Machines), len(cfg.SimulatedMachineIDs()))
		return nil
	},
}

func init() {
	validateCmd.Flags().StringVar(&validateConfigPath, "config", "", "Path to fleet configuration YAML")
	validateCmd.Flags().StringVar(&validateSchemaPath, "schema", "", "Path to CUE schema file (embedded schema when empty)")
}
