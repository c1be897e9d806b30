package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"coffeefleet-sim/internal/admin"
	"coffeefleet-sim/internal/config"
	"coffeefleet-sim/internal/logging"
	"coffeefleet-sim/internal/monitor"
	"coffeefleet-sim/internal/sim"
)

var (
	simConfigPath string
	simSchemaPath string
	simTick       time.Duration
	simOutput     string
	simPrintOnly  bool
	simLogFile    string
	simLogOutput  string
	simAdminAddr  string
	simTUI        bool
	simNoConnect  bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run the real-time fleet simulator",
	Long:  "simulate connects the in-process broker and publishes machine status, usage and alert telemetry until interrupted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(simConfigPath, simSchemaPath)
		if err != nil {
			return err
		}
		if err := applyTickOverride(cmd, cfg); err != nil {
			return err
		}
		if cmd.Flags().Changed("admin-addr") {
			cfg.Admin.Addr = simAdminAddr
		}

		tui := simTUI && term.IsTerminal(int(os.Stdout.Fd()))
		if simTUI && !tui {
			fmt.Fprintln(os.Stderr, "stdout is not a terminal, falling back to plain output")
		}
		logOut, closeLog, err := logDestination(simLogOutput, tui)
		if err != nil {
			return err
		}
		defer closeLog()
		logger := logging.NewWithOptions(logOut, cfg.Log.Level, cfg.Log.Format)
		slog.SetDefault(logger)

		output := simOutput
		if tui {
			output = outputNone
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		ctx = logging.NewContext(ctx, logger)
		return runSimulation(ctx, cfg, logger, output, tui)
	},
}

func applyTickOverride(cmd *cobra.Command, cfg *config.FleetConfig) error {
	if cmd.Flags().Changed("tick") {
		cfg.Simulation.TickInterval = simTick
	}
	if envTick := os.Getenv("TICK_INTERVAL"); envTick != "" {
		d, err := time.ParseDuration(envTick)
		if err != nil {
			return fmt.Errorf("invalid TICK_INTERVAL: %w", err)
		}
		cfg.Simulation.TickInterval = d
	}
	if cfg.Simulation.TickInterval <= 0 {
		return fmt.Errorf("tick interval must be positive")
	}
	return nil
}

// logDestination keeps log lines off the terminal while the monitor owns it.
func logDestination(path string, tui bool) (io.Writer, func(), error) {
	switch {
	case path != "":
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, err
		}
		return f, func() { _ = f.Close() }, nil
	case tui:
		return io.Discard, func() {}, nil
	default:
		return os.Stderr, func() {}, nil
	}
}

func runSimulation(ctx context.Context, cfg *config.FleetConfig, logger *slog.Logger, output string, tui bool) error {
	writer, cleanup, err := newWriter(cfg, output, simPrintOnly, simLogFile, logger)
	if err != nil {
		return err
	}
	rt := newFleetRuntime(cfg, logger, writer, cleanup)
	defer rt.Close()
	client, driver, reg := rt.client, rt.driver, rt.reg
	topics, ids := cfg.Topics(), cfg.SimulatedMachineIDs()

	errCh := make(chan error, 1)
	if cfg.Admin.Addr != "" {
		srv := admin.NewServer(admin.Options{
			Conn:        client,
			Catalog:     rt.catalog,
			LiveTopics:  driver.Topics(),
			Gatherer:    reg,
			Logger:      logger,
			PingMessage: os.Getenv("PING_MESSAGE"),
		})
		go func() {
			if err := srv.Start(ctx, cfg.Admin.Addr); err != nil {
				errCh <- fmt.Errorf("admin server: %w", err)
			}
		}()
	}

	if !simNoConnect {
		go func() {
			if err := client.Connect(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("broker connect failed", "err", err)
			}
		}()
	}

	logger.Info("simulation running", "machines", ids, "tick_interval", cfg.Simulation.TickInterval)
	if tui {
		err := monitor.New(client, topics, ids).Run(ctx)
		logger.Info("fleet simulation stopped")
		return err
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}
	logger.Info("fleet simulation stopped")
	return nil
}

func init() {
	simulateCmd.Flags().StringVar(&simConfigPath, "config", "", "Path to fleet configuration YAML (defaults when empty)")
	simulateCmd.Flags().StringVar(&simSchemaPath, "schema", "", "Path to CUE schema file (embedded schema when empty)")
	simulateCmd.Flags().DurationVar(&simTick, "tick", sim.DefaultTickInterval, "Telemetry tick interval (e.g. 500ms, 3s)")
	simulateCmd.Flags().StringVar(&simOutput, "output", outputJSON, "STDOUT output: json, console or none")
	simulateCmd.Flags().BoolVar(&simPrintOnly, "print-only", false, "Never write to GreptimeDB, even when GREPTIMEDB_ENDPOINT is set")
	simulateCmd.Flags().StringVar(&simLogFile, "log-file", "", "Path to export telemetry as JSONL (alerts go to <path>.alerts)")
	simulateCmd.Flags().StringVar(&simLogOutput, "log-output", "", "Write process logs to this file instead of STDERR")
	simulateCmd.Flags().StringVar(&simAdminAddr, "admin-addr", ":8080", "Admin HTTP listen address, overrides admin.addr (empty disables it)")
	simulateCmd.Flags().BoolVar(&simTUI, "tui", false, "Show the terminal monitor instead of printing telemetry")
	simulateCmd.Flags().BoolVar(&simNoConnect, "no-connect", false, "Start disconnected; connect from the admin API or monitor")
}
