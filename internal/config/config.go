// YAML config loader with CUE validation integration
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"coffeefleet-sim/internal/broker"
	"coffeefleet-sim/internal/telemetry"
)

// Band is a [min, max) range for a generated value.
type Band struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// Bands overrides the generator's value ranges. Nil entries keep defaults.
type Bands struct {
	Temperature *Band `yaml:"temperature"`
	Pressure    *Band `yaml:"pressure"`
	PowerUsage  *Band `yaml:"power_usage"`
	Water       *Band `yaml:"water"`
	Milk        *Band `yaml:"milk"`
	CoffeeBeans *Band `yaml:"coffee_beans"`
	Sugar       *Band `yaml:"sugar"`
}

// Simulation configures the telemetry driver and the broker connection.
type Simulation struct {
	TickInterval           time.Duration `yaml:"tick_interval"`
	ConnectDelay           time.Duration `yaml:"connect_delay"`
	TopicDomain            string        `yaml:"topic_domain"`
	AlertsTopic            string        `yaml:"alerts_topic"`
	MachineIDs             []string      `yaml:"machine_ids"`
	MaintenanceProbability float64       `yaml:"maintenance_probability"`
	UsageProbability       float64       `yaml:"usage_probability"`
	AlertProbability       float64       `yaml:"alert_probability"`
	OrderProbability       float64       `yaml:"order_probability"`
	Seed                   int64         `yaml:"seed"`
	Bands                  Bands         `yaml:"bands"`
}

// Supplies are catalog supply levels in percent.
type Supplies struct {
	Coffee int `yaml:"coffee"`
	Water  int `yaml:"water"`
	Milk   int `yaml:"milk"`
	Sugar  int `yaml:"sugar"`
}

// Usage holds catalog usage counters.
type Usage struct {
	DailyCups  int `yaml:"daily_cups"`
	WeeklyCups int `yaml:"weekly_cups"`
}

// Alert is a catalog alert entry.
type Alert struct {
	ID        string    `yaml:"id"`
	Type      string    `yaml:"type"`
	Supply    string    `yaml:"supply"`
	Message   string    `yaml:"message"`
	Priority  string    `yaml:"priority"`
	Resolved  bool      `yaml:"resolved"`
	Timestamp time.Time `yaml:"timestamp"`
}

// Machine seeds one catalog entry.
type Machine struct {
	ID          string   `yaml:"id"`
	MachineID   string   `yaml:"machine_id"`
	Name        string   `yaml:"name"`
	Location    string   `yaml:"location"`
	Office      string   `yaml:"office"`
	Floor       string   `yaml:"floor"`
	PowerStatus string   `yaml:"power_status"`
	Status      string   `yaml:"status"`
	Supplies    Supplies `yaml:"supplies"`
	Usage       Usage    `yaml:"usage"`
	Notes       string   `yaml:"notes"`
	Alerts      []Alert  `yaml:"alerts"`
}

// Admin configures the HTTP dashboard API.
type Admin struct {
	Addr string `yaml:"addr"`
}

// Log configures the process logger.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// FleetConfig is the root configuration.
type FleetConfig struct {
	Simulation         Simulation `yaml:"simulation"`
	Machines           []Machine  `yaml:"machines"`
	LowSupplyThreshold int        `yaml:"low_supply_threshold"`
	Admin              Admin      `yaml:"admin"`
	Log                Log        `yaml:"log"`
}

// Default machine identifiers driven by the simulator.
var DefaultMachineIDs = []string{"A-001", "A-002", "B-001"}

// Defaults returns the configuration used when no file is given.
func Defaults() *FleetConfig {
	return &FleetConfig{
		Simulation: Simulation{
			TickInterval:           3 * time.Second,
			ConnectDelay:           broker.DefaultConnectDelay,
			TopicDomain:            telemetry.DefaultDomain,
			AlertsTopic:            telemetry.DefaultAlertsTopic,
			MaintenanceProbability: 0.1,
			UsageProbability:       telemetry.DefaultUsageProbability,
			AlertProbability:       telemetry.DefaultAlertProbability,
			OrderProbability:       0.3,
		},
		Machines:           DefaultMachines(),
		LowSupplyThreshold: 30,
		Admin:              Admin{Addr: ":8080"},
		Log:                Log{Level: "info", Format: "text"},
	}
}

// DefaultMachines is the demo catalog: one entry per simulated machine.
func DefaultMachines() []Machine {
	return []Machine{
		{
			ID: "1", MachineID: "A-001", Name: "Coffee Machine Alpha",
			Location: "Tech Tower", Office: "Engineering", Floor: "Floor 3",
			PowerStatus: "online", Status: "operational",
			Supplies: Supplies{Coffee: 85, Water: 92, Milk: 78, Sugar: 65},
			Usage:    Usage{DailyCups: 127, WeeklyCups: 890},
			Notes:    "Machine running smoothly. Recent cleaning completed on schedule.",
			Alerts: []Alert{{
				ID: "alert-1", Type: "maintenance", Message: "Filter replacement due in 3 days",
				Priority: "medium", Timestamp: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
			}},
		},
		{
			ID: "2", MachineID: "A-002", Name: "Coffee Machine Beta",
			Location: "Tech Tower", Office: "Engineering", Floor: "Floor 2",
			PowerStatus: "online", Status: "operational",
			Supplies: Supplies{Coffee: 92, Water: 88, Milk: 45, Sugar: 78},
			Usage:    Usage{DailyCups: 98, WeeklyCups: 686},
			Notes:    "High performance. Minor calibration needed.",
		},
		{
			ID: "3", MachineID: "B-001", Name: "Coffee Machine Gamma",
			Location: "Harbor Point", Office: "Finance", Floor: "Floor 1",
			PowerStatus: "online", Status: "operational",
			Supplies: Supplies{Coffee: 40, Water: 25, Milk: 60, Sugar: 70},
			Usage:    Usage{DailyCups: 64, WeeklyCups: 402},
		},
	}
}

// Load loads YAML config and validates it against a CUE schema. An empty
// configPath returns Defaults; an empty cueSchemaPath uses the embedded
// schema. Values missing from the file keep their defaults.
func Load(configPath, cueSchemaPath string) (*FleetConfig, error) {
	cfg := Defaults()
	if configPath == "" {
		return cfg, nil
	}
	if err := ValidateWithCue(configPath, cueSchemaPath); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the constraints CUE cannot express on its own.
func (c *FleetConfig) Validate() error {
	if c.Simulation.TickInterval <= 0 {
		return fmt.Errorf("simulation.tick_interval must be positive")
	}
	seen := make(map[string]bool)
	for _, m := range c.Machines {
		if seen[m.ID] {
			return fmt.Errorf("duplicate machine id %q", m.ID)
		}
		seen[m.ID] = true
	}
	return nil
}

// SimulatedMachineIDs returns simulation.machine_ids, or the catalog's
// machine ids when that list is empty.
func (c *FleetConfig) SimulatedMachineIDs() []string {
	if len(c.Simulation.MachineIDs) > 0 {
		return c.Simulation.MachineIDs
	}
	ids := make([]string, 0, len(c.Machines))
	for _, m := range c.Machines {
		ids = append(ids, m.MachineID)
	}
	if len(ids) == 0 {
		return DefaultMachineIDs
	}
	return ids
}

// Topics returns the topic layout configured for the simulation.
func (c *FleetConfig) Topics() telemetry.Topics {
	return telemetry.Topics{Domain: c.Simulation.TopicDomain, Alerts: c.Simulation.AlertsTopic}
}

// GeneratorBands merges configured band overrides into the defaults.
func (c *FleetConfig) GeneratorBands() telemetry.Bands {
	b := telemetry.DefaultBands()
	set := func(dst *telemetry.Band, src *Band) {
		if src != nil {
			*dst = telemetry.Band{Min: src.Min, Max: src.Max}
		}
	}
	o := c.Simulation.Bands
	set(&b.Temperature, o.Temperature)
	set(&b.Pressure, o.Pressure)
	set(&b.PowerUsage, o.PowerUsage)
	set(&b.Water, o.Water)
	set(&b.Milk, o.Milk)
	set(&b.CoffeeBeans, o.CoffeeBeans)
	set(&b.Sugar, o.Sugar)
	return b
}
