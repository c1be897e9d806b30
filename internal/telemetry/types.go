// Payload types carried on the fleet topics
package telemetry

// Kind identifies the payload variant carried by a Message.
type Kind string

const (
	KindStatus Kind = "status"
	KindUsage  Kind = "usage"
	KindAlert  Kind = "alert"
)

// Payload is the tagged union of message bodies. Topics only route; the
// payload's Kind tells consumers what they hold.
type Payload interface {
	Kind() Kind
}

// MachineStatus is the operational state reported by a machine.
type MachineStatus string

// Machine status constants.
const (
	StatusOperational MachineStatus = "operational"
	StatusMaintenance MachineStatus = "maintenance"
	StatusOffline     MachineStatus = "offline"
)

// Supply names a consumable tracked per machine.
type Supply string

const (
	SupplyWater       Supply = "water"
	SupplyMilk        Supply = "milk"
	SupplyCoffeeBeans Supply = "coffee_beans"
	SupplySugar       Supply = "sugar"
)

// Supplies lists every supply in a stable order.
var Supplies = []Supply{SupplyWater, SupplyMilk, SupplyCoffeeBeans, SupplySugar}

// AlertLowSupply is the only alert type the simulator emits.
const AlertLowSupply = "low_supply"

// StatusUpdate is the per-tick synthetic telemetry for one machine.
type StatusUpdate struct {
	MachineID        string        `json:"machineId"`
	Status           MachineStatus `json:"status"`
	Temperature      float64       `json:"temperature"`
	Pressure         float64       `json:"pressure"`
	PowerUsage       float64       `json:"powerUsage"`
	WaterLevel       float64       `json:"waterLevel"`
	MilkLevel        float64       `json:"milkLevel"`
	CoffeeBeansLevel float64       `json:"coffeeBeansLevel"`
	SugarLevel       float64       `json:"sugarLevel"`
	CurrentOrder     string        `json:"currentOrder,omitempty"`
	QueueLength      int           `json:"queueLength"`
}

func (StatusUpdate) Kind() Kind { return KindStatus }

// Level returns the reported level for a supply.
func (s StatusUpdate) Level(sup Supply) float64 {
	switch sup {
	case SupplyWater:
		return s.WaterLevel
	case SupplyMilk:
		return s.MilkLevel
	case SupplyCoffeeBeans:
		return s.CoffeeBeansLevel
	case SupplySugar:
		return s.SugarLevel
	}
	return 0
}

// UsageUpdate reports consumption counters for one machine.
type UsageUpdate struct {
	MachineID    string `json:"machineId"`
	CupsToday    int    `json:"cupsToday"`
	Revenue      int    `json:"revenue"`
	LastActivity string `json:"lastActivity"`
}

func (UsageUpdate) Kind() Kind { return KindUsage }

// AlertNotice is a fleet-wide alert naming one machine and one supply.
type AlertNotice struct {
	Type      string `json:"type"`
	MachineID string `json:"machineId"`
	Supply    Supply `json:"supply"`
	Level     int    `json:"level"`
	Message   string `json:"message"`
}

func (AlertNotice) Kind() Kind { return KindAlert }

// ClampLevel bounds a supply level to [0, 100].
func ClampLevel(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
