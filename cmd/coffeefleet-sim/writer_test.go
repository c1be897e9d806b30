package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coffeefleet-sim/internal/config"
	"coffeefleet-sim/internal/logging"
	"coffeefleet-sim/internal/telemetry"
)

func TestNewWriterRejectsUnknownOutput(t *testing.T) {
	_, _, err := newWriter(config.Defaults(), "xml", true, "", logging.Discard())
	require.Error(t, err)
}

func TestNewWriterLogFile(t *testing.T) {
	t.Setenv("GREPTIMEDB_ENDPOINT", "")
	path := filepath.Join(t.TempDir(), "telemetry.jsonl")
	w, cleanup, err := newWriter(config.Defaults(), outputNone, false, path, logging.Discard())
	require.NoError(t, err)

	ts := time.Unix(100, 0).UTC()
	require.NoError(t, w.Write(telemetry.Message{
		ID: "1", Topic: "coffee/machines/A-001/status", Timestamp: ts,
		Payload: telemetry.StatusUpdate{MachineID: "A-001", Status: telemetry.StatusOperational},
	}))
	require.NoError(t, w.Write(telemetry.Message{
		ID: "2", Topic: "coffee/alerts", Timestamp: ts,
		Payload: telemetry.AlertNotice{MachineID: "A-001", Supply: telemetry.SupplyMilk, Level: 4},
	}))
	cleanup()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"machineId":"A-001"`)
	assert.NotContains(t, string(data), `"supply"`)

	alerts, err := os.ReadFile(path + ".alerts")
	require.NoError(t, err)
	assert.Contains(t, string(alerts), `"supply":"milk"`)
}

func TestNewWriterPrintOnlySkipsGreptime(t *testing.T) {
	t.Setenv("GREPTIMEDB_ENDPOINT", "bad-endpoint:notaport")
	_, cleanup, err := newWriter(config.Defaults(), outputNone, true, "", logging.Discard())
	require.NoError(t, err)
	cleanup()

	_, _, err = newWriter(config.Defaults(), outputNone, false, "", logging.Discard())
	require.Error(t, err)
}

func TestLogTopics(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.jsonl")
	w, cleanup, err := newWriter(config.Defaults(), outputNone, true, path, logging.Discard())
	require.NoError(t, err)
	for _, id := range []string{"B-001", "A-001", "B-001"} {
		require.NoError(t, w.Write(telemetry.Message{
			ID: id, Topic: "coffee/machines/" + id + "/status", Timestamp: time.Unix(1, 0),
			Payload: telemetry.StatusUpdate{MachineID: id},
		}))
	}
	cleanup()

	topics, err := logTopics(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"coffee/machines/A-001/status", "coffee/machines/B-001/status"}, topics)
}

func TestApplyTickOverrideFromEnv(t *testing.T) {
	cfg := config.Defaults()
	t.Setenv("TICK_INTERVAL", "250ms")
	require.NoError(t, applyTickOverride(simulateCmd, cfg))
	assert.Equal(t, 250*time.Millisecond, cfg.Simulation.TickInterval)

	t.Setenv("TICK_INTERVAL", "soon")
	require.Error(t, applyTickOverride(simulateCmd, cfg))
}
