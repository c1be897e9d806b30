package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"coffeefleet-sim/internal/broker"
	"coffeefleet-sim/internal/telemetry"
)

func writeTemp(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fleet.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func TestLoadConfig_Valid(t *testing.T) {
	path := writeTemp(t, `
simulation:
  tick_interval: 500ms
  topic_domain: fleet
  alerts_topic: alerts
  alert_probability: 0.5
  seed: 7
machines:
  - id: "10"
    machine_id: E-1
    location: Plant
    office: Ops
    supplies: {coffee: 10, water: 20, milk: 30, sugar: 40}
`)
	cfg, err := Load(path, "")
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Simulation.TickInterval != 500*time.Millisecond {
		t.Errorf("tick interval = %v", cfg.Simulation.TickInterval)
	}
	if cfg.Simulation.ConnectDelay != time.Second {
		t.Errorf("connect delay should keep its default, got %v", cfg.Simulation.ConnectDelay)
	}
	if cfg.Simulation.UsageProbability != 0.2 {
		t.Errorf("usage probability should keep its default, got %v", cfg.Simulation.UsageProbability)
	}
	if len(cfg.Machines) != 1 || cfg.Machines[0].MachineID != "E-1" {
		t.Fatalf("unexpected machines: %+v", cfg.Machines)
	}
	if ids := cfg.SimulatedMachineIDs(); len(ids) != 1 || ids[0] != "E-1" {
		t.Errorf("simulated ids = %v", ids)
	}
	if got := cfg.Topics().Status("E-1"); got != "fleet/E-1/status" {
		t.Errorf("status topic = %s", got)
	}
}

func TestLoadSampleConfig(t *testing.T) {
	cfg, err := Load("../../config/fleet.yaml", "")
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if len(cfg.Machines) != 3 {
		t.Fatalf("expected 3 machines, got %d", len(cfg.Machines))
	}
	if cfg.Machines[0].Alerts[0].Timestamp.IsZero() {
		t.Errorf("expected alert timestamp to be parsed")
	}
}

func TestLoadConfig_SchemaViolations(t *testing.T) {
	cases := map[string]string{
		"probability": "simulation:\n  alert_probability: 1.5\n",
		"duration":    "simulation:\n  tick_interval: soon\n",
		"level":       "machines:\n  - {id: \"1\", machine_id: X, location: L, office: O, supplies: {water: 140}}\n",
		"unknown key": "simulashun:\n  seed: 1\n",
		"missing id":  "machines:\n  - {machine_id: X, location: L, office: O}\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeTemp(t, body), ""); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestLoadConfig_DuplicateMachine(t *testing.T) {
	path := writeTemp(t, `
machines:
  - {id: "1", machine_id: A, location: L, office: O}
  - {id: "1", machine_id: B, location: L, office: O}
`)
	if _, err := Load(path, ""); err == nil {
		t.Fatalf("expected duplicate id error")
	}
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("", "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Simulation.TickInterval != 3*time.Second || cfg.Simulation.AlertProbability != 0.05 {
		t.Errorf("unexpected defaults: %+v", cfg.Simulation)
	}
	if cfg.Simulation.ConnectDelay != broker.DefaultConnectDelay {
		t.Errorf("connect delay = %v, want %v", cfg.Simulation.ConnectDelay, broker.DefaultConnectDelay)
	}
	if cfg.Simulation.UsageProbability != telemetry.DefaultUsageProbability {
		t.Errorf("usage probability = %v", cfg.Simulation.UsageProbability)
	}
	ids := cfg.SimulatedMachineIDs()
	if len(ids) != 3 || ids[0] != "A-001" || ids[2] != "B-001" {
		t.Errorf("default machine ids = %v", ids)
	}
}

func TestGeneratorBandsOverride(t *testing.T) {
	cfg := Defaults()
	cfg.Simulation.Bands.Temperature = &Band{Min: 80, Max: 85}
	b := cfg.GeneratorBands()
	if b.Temperature.Min != 80 || b.Temperature.Max != 85 {
		t.Errorf("temperature band not overridden: %+v", b.Temperature)
	}
	if b.Pressure.Min != 13 {
		t.Errorf("pressure band should keep default: %+v", b.Pressure)
	}
}
