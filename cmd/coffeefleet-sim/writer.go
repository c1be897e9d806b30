package main

import (
	"fmt"
	"log/slog"
	"os"

	"coffeefleet-sim/internal/config"
	"coffeefleet-sim/internal/sim"
)

// Output modes for telemetry printed to STDOUT.
const (
	outputJSON    = "json"
	outputConsole = "console"
	outputNone    = "none"
)

// newWriter builds the sink chain from flags and env vars: a STDOUT writer
// for output, GreptimeDB when GREPTIMEDB_ENDPOINT is set and printOnly is
// false, and a JSONL log (alerts in logFile+".alerts") when logFile is set.
// The cleanup function closes any files and must always be called.
func newWriter(cfg *config.FleetConfig, output string, printOnly bool, logFile string, log *slog.Logger) (sim.MessageWriter, func(), error) {
	var writers []sim.MessageWriter
	switch output {
	case outputJSON, "":
		writers = append(writers, sim.NewJSONStdoutWriter())
	case outputConsole:
		writers = append(writers, sim.NewColorStdoutWriter(cfg))
	case outputNone:
	default:
		return nil, nil, fmt.Errorf("unknown output %q (want json, console or none)", output)
	}

	if endpoint := os.Getenv("GREPTIMEDB_ENDPOINT"); endpoint != "" && !printOnly {
		database := os.Getenv("GREPTIMEDB_DATABASE")
		if database == "" {
			database = "public"
		}
		gw, err := sim.NewGreptimeDBWriter(endpoint, database, log)
		if err != nil {
			return nil, nil, err
		}
		log.Info("writing telemetry to GreptimeDB", "endpoint", endpoint, "database", database)
		writers = append(writers, gw)
	}

	if logFile != "" {
		fw, err := sim.NewFileWriter(logFile, logFile+".alerts")
		if err != nil {
			return nil, nil, err
		}
		writers = append(writers, fw)
	}

	mw := sim.NewMultiWriter(writers...)
	return mw, func() { _ = mw.Close() }, nil
}
