package telemetry

import (
	"math"
	"math/rand"
)

// Band is an inclusive-exclusive range [Min, Max) for a generated value.
type Band struct {
	Min float64
	Max float64
}

func (b Band) sample(r *rand.Rand) float64 {
	return b.Min + r.Float64()*(b.Max-b.Min)
}

// Contains reports whether v lies inside the band.
func (b Band) Contains(v float64) bool {
	return v >= b.Min && v <= b.Max
}

// Bands holds the value ranges used for each status field.
type Bands struct {
	Temperature Band
	Pressure    Band
	PowerUsage  Band
	Water       Band
	Milk        Band
	CoffeeBeans Band
	Sugar       Band
}

// DefaultBands mirrors the dashboard's demo values.
func DefaultBands() Bands {
	return Bands{
		Temperature: Band{88, 96},
		Pressure:    Band{13, 17},
		PowerUsage:  Band{70, 90},
		Water:       Band{50, 100},
		Milk:        Band{30, 100},
		CoffeeBeans: Band{40, 100},
		Sugar:       Band{60, 100},
	}
}

// Per-tick probabilities of a usage update for each machine and of one
// fleet-wide alert.
const (
	DefaultUsageProbability = 0.2
	DefaultAlertProbability = 0.05
)

// Orders are the drinks a machine may report as its current order.
var Orders = []string{"Espresso", "Latte", "Cappuccino"}

const (
	maxQueueLength  = 5
	maxAlertLevel   = 20
	lowSupplyNotice = "Supply level is critically low"
)

// Generator produces bounded pseudo-random payloads for simulated machines.
type Generator struct {
	Bands                  Bands
	MaintenanceProbability float64
	OrderProbability       float64
	rand                   *rand.Rand
}

// NewGenerator creates a generator drawing from r.
func NewGenerator(r *rand.Rand) *Generator {
	return &Generator{
		Bands:                  DefaultBands(),
		MaintenanceProbability: 0.1,
		OrderProbability:       0.3,
		rand:                   r,
	}
}

// Float64 exposes the generator's random source for probability checks.
func (g *Generator) Float64() float64 {
	return g.rand.Float64()
}

// GenerateStatus returns a fresh status update for machineID.
func (g *Generator) GenerateStatus(machineID string) StatusUpdate {
	status := StatusOperational
	if g.rand.Float64() < g.MaintenanceProbability {
		status = StatusMaintenance
	}
	s := StatusUpdate{
		MachineID:        machineID,
		Status:           status,
		Temperature:      round1(g.Bands.Temperature.sample(g.rand)),
		Pressure:         round1(g.Bands.Pressure.sample(g.rand)),
		PowerUsage:       round1(g.Bands.PowerUsage.sample(g.rand)),
		WaterLevel:       ClampLevel(g.Bands.Water.sample(g.rand)),
		MilkLevel:        ClampLevel(g.Bands.Milk.sample(g.rand)),
		CoffeeBeansLevel: ClampLevel(g.Bands.CoffeeBeans.sample(g.rand)),
		SugarLevel:       ClampLevel(g.Bands.Sugar.sample(g.rand)),
		QueueLength:      g.rand.Intn(maxQueueLength),
	}
	if g.rand.Float64() < g.OrderProbability {
		s.CurrentOrder = Orders[g.rand.Intn(len(Orders))]
	}
	return s
}

// GenerateUsage returns a usage update for machineID.
func (g *Generator) GenerateUsage(machineID string) UsageUpdate {
	return UsageUpdate{
		MachineID:    machineID,
		CupsToday:    100 + g.rand.Intn(50),
		Revenue:      300 + g.rand.Intn(200),
		LastActivity: "Just now",
	}
}

// GenerateAlert picks one machine and one supply and reports it as low.
// machineIDs must not be empty.
func (g *Generator) GenerateAlert(machineIDs []string) AlertNotice {
	return AlertNotice{
		Type:      AlertLowSupply,
		MachineID: machineIDs[g.rand.Intn(len(machineIDs))],
		Supply:    Supplies[g.rand.Intn(len(Supplies))],
		Level:     g.rand.Intn(maxAlertLevel),
		Message:   lowSupplyNotice,
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
