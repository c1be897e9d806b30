package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"

	"coffeefleet-sim/internal/broker"
	"coffeefleet-sim/internal/config"
	"coffeefleet-sim/internal/logging"
	"coffeefleet-sim/internal/sim"
	"coffeefleet-sim/internal/telemetry"
)

var (
	replayInput      string
	replayConfigPath string
	replaySpeed      float64
	replayOutput     string
	replayPrintOnly  bool
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay recorded telemetry through the broker",
	Long:  "replay publishes a JSONL telemetry log through a connected broker, keeping the recorded spacing scaled by --speed.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if replayInput == "" {
			return errors.New("--input is required")
		}
		cfg, err := config.Load(replayConfigPath, "")
		if err != nil {
			return err
		}
		logger := logging.NewWithOptions(os.Stderr, cfg.Log.Level, cfg.Log.Format)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		topics, err := logTopics(replayInput)
		if err != nil {
			return err
		}

		client := broker.NewClient(broker.Options{Logger: logger})
		if err := client.Connect(ctx); err != nil {
			return err
		}
		defer client.Disconnect()

		writer, cleanup, err := newWriter(cfg, replayOutput, replayPrintOnly, "", logger)
		if err != nil {
			return err
		}
		defer cleanup()
		recorder := sim.NewRecorder(client, "replay", writer, topics, logger, nil)
		defer recorder.Close()

		n, err := sim.ReplayLogFile(ctx, replayInput, client, sim.ReplayOptions{Speed: replaySpeed})
		logger.Info("replay finished", "messages", n)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

// logTopics lists the distinct topics found in a JSONL log.
func logTopics(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	seen := make(map[string]struct{})
	dec := json.NewDecoder(f)
	for {
		var msg telemetry.Message
		if err := dec.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		seen[msg.Topic] = struct{}{}
	}
	topics := make([]string, 0, len(seen))
	for t := range seen {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics, nil
}

func init() {
	replayCmd.Flags().StringVar(&replayInput, "input", "", "Path to a JSONL telemetry log")
	replayCmd.Flags().StringVar(&replayConfigPath, "config", "", "Path to fleet configuration YAML")
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", 1, "Playback speed multiplier (0 replays without delay)")
	replayCmd.Flags().StringVar(&replayOutput, "output", outputJSON, "STDOUT output: json, console or none")
	replayCmd.Flags().BoolVar(&replayPrintOnly, "print-only", false, "Never write to GreptimeDB, even when GREPTIMEDB_ENDPOINT is set")
}
