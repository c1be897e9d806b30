// Package fleet keeps the in-memory machine catalog behind the dashboard's
// location, office and machine views.
package fleet

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"coffeefleet-sim/internal/config"
)

var (
	// ErrNotFound is returned when no machine matches the lookup.
	ErrNotFound = errors.New("machine not found")
	// ErrInvalidLevel is returned for supply levels outside [0, 100].
	ErrInvalidLevel = errors.New("supply level must be between 0 and 100")
)

// DefaultLowSupplyThreshold is the level below which a supply counts as low.
const DefaultLowSupplyThreshold = 30

// Supplies are supply levels in percent.
type Supplies struct {
	Coffee int `json:"coffee"`
	Water  int `json:"water"`
	Milk   int `json:"milk"`
	Sugar  int `json:"sugar"`
}

func (s Supplies) levels() []int {
	return []int{s.Coffee, s.Water, s.Milk, s.Sugar}
}

// Usage holds consumption counters.
type Usage struct {
	DailyCups  int `json:"dailyCups"`
	WeeklyCups int `json:"weeklyCups"`
	Revenue    int `json:"revenue,omitempty"`
}

// Alert is an alert attached to a machine.
type Alert struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Supply    string    `json:"supply,omitempty"`
	Message   string    `json:"message"`
	Priority  string    `json:"priority"`
	Resolved  bool      `json:"resolved"`
	Timestamp time.Time `json:"timestamp"`
}

// Live holds the latest telemetry folded in from the broker.
type Live struct {
	Temperature  float64   `json:"temperature"`
	Pressure     float64   `json:"pressure"`
	PowerUsage   float64   `json:"powerUsage"`
	CurrentOrder string    `json:"currentOrder,omitempty"`
	QueueLength  int       `json:"queueLength"`
	LastActivity string    `json:"lastActivity,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Machine is one catalog entry.
type Machine struct {
	ID          string   `json:"id"`
	MachineID   string   `json:"machineId"`
	Name        string   `json:"name"`
	Location    string   `json:"location"`
	Office      string   `json:"office"`
	Floor       string   `json:"floor"`
	PowerStatus string   `json:"powerStatus"`
	Status      string   `json:"status"`
	Supplies    Supplies `json:"supplies"`
	Usage       Usage    `json:"usage"`
	Notes       string   `json:"notes,omitempty"`
	Alerts      []Alert  `json:"alerts"`
	Live        *Live    `json:"live,omitempty"`
}

func (m Machine) clone() Machine {
	out := m
	out.Alerts = append([]Alert(nil), m.Alerts...)
	if out.Alerts == nil {
		out.Alerts = []Alert{}
	}
	if m.Live != nil {
		l := *m.Live
		out.Live = &l
	}
	return out
}

// NeedsMaintenance reports whether the machine is in maintenance or has an
// unresolved alert.
func (m Machine) NeedsMaintenance() bool {
	if m.Status == "maintenance" {
		return true
	}
	for _, a := range m.Alerts {
		if !a.Resolved {
			return true
		}
	}
	return false
}

// LowSupply reports whether any supply is below threshold.
func (m Machine) LowSupply(threshold int) bool {
	for _, l := range m.Supplies.levels() {
		if l < threshold {
			return true
		}
	}
	return false
}

// Patch is a partial machine update. Nil fields are left unchanged.
type Patch struct {
	Name        *string `json:"name,omitempty"`
	Location    *string `json:"location,omitempty"`
	Office      *string `json:"office,omitempty"`
	Floor       *string `json:"floor,omitempty"`
	PowerStatus *string `json:"powerStatus,omitempty"`
	Status      *string `json:"status,omitempty"`
	Notes       *string `json:"notes,omitempty"`
}

// SupplyLevels is a partial supply update. Nil fields are left unchanged.
type SupplyLevels struct {
	Coffee *int `json:"coffee,omitempty"`
	Water  *int `json:"water,omitempty"`
	Milk   *int `json:"milk,omitempty"`
	Sugar  *int `json:"sugar,omitempty"`
}

// Catalog is a concurrency-safe in-memory machine store.
type Catalog struct {
	mu        sync.RWMutex
	machines  map[string]*Machine
	order     []string
	threshold int
}

// NewCatalog builds a catalog from configured machines.
func NewCatalog(machines []config.Machine, lowSupplyThreshold int) *Catalog {
	if lowSupplyThreshold <= 0 {
		lowSupplyThreshold = DefaultLowSupplyThreshold
	}
	c := &Catalog{machines: make(map[string]*Machine), threshold: lowSupplyThreshold}
	for _, cm := range machines {
		m := &Machine{
			ID:          cm.ID,
			MachineID:   cm.MachineID,
			Name:        cm.Name,
			Location:    cm.Location,
			Office:      cm.Office,
			Floor:       cm.Floor,
			PowerStatus: cm.PowerStatus,
			Status:      cm.Status,
			Supplies:    Supplies(cm.Supplies),
			Usage:       Usage{DailyCups: cm.Usage.DailyCups, WeeklyCups: cm.Usage.WeeklyCups},
			Notes:       cm.Notes,
		}
		if m.Status == "" {
			m.Status = "operational"
		}
		if m.PowerStatus == "" {
			m.PowerStatus = "online"
		}
		for _, a := range cm.Alerts {
			m.Alerts = append(m.Alerts, Alert(a))
		}
		c.machines[m.ID] = m
		c.order = append(c.order, m.ID)
	}
	return c
}

// LowSupplyThreshold returns the configured threshold.
func (c *Catalog) LowSupplyThreshold() int { return c.threshold }

// List returns all machines in catalog order.
func (c *Catalog) List() []Machine {
	return c.filter(func(Machine) bool { return true })
}

// Get returns the machine with catalog id id.
func (c *Catalog) Get(id string) (Machine, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.machines[id]
	if !ok {
		return Machine{}, fmt.Errorf("id %q: %w", id, ErrNotFound)
	}
	return m.clone(), nil
}

// GetByMachineID returns the machine with the given device identifier.
func (c *Catalog) GetByMachineID(machineID string) (Machine, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if m := c.byMachineIDLocked(machineID); m != nil {
		return m.clone(), nil
	}
	return Machine{}, fmt.Errorf("machine id %q: %w", machineID, ErrNotFound)
}

func (c *Catalog) byMachineIDLocked(machineID string) *Machine {
	for _, id := range c.order {
		if m := c.machines[id]; m.MachineID == machineID {
			return m
		}
	}
	return nil
}

// Update applies p to the machine with catalog id id.
func (c *Catalog) Update(id string, p Patch) (Machine, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.machines[id]
	if !ok {
		return Machine{}, fmt.Errorf("id %q: %w", id, ErrNotFound)
	}
	apply := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	apply(&m.Name, p.Name)
	apply(&m.Location, p.Location)
	apply(&m.Office, p.Office)
	apply(&m.Floor, p.Floor)
	apply(&m.PowerStatus, p.PowerStatus)
	apply(&m.Status, p.Status)
	apply(&m.Notes, p.Notes)
	return m.clone(), nil
}

// UpdateSupplies merges levels into the machine's supplies. Every provided
// level must be within [0, 100]; otherwise nothing changes.
func (c *Catalog) UpdateSupplies(id string, levels SupplyLevels) (Machine, error) {
	for _, l := range []*int{levels.Coffee, levels.Water, levels.Milk, levels.Sugar} {
		if l != nil && (*l < 0 || *l > 100) {
			return Machine{}, fmt.Errorf("level %d: %w", *l, ErrInvalidLevel)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.machines[id]
	if !ok {
		return Machine{}, fmt.Errorf("id %q: %w", id, ErrNotFound)
	}
	set := func(dst *int, src *int) {
		if src != nil {
			*dst = *src
		}
	}
	set(&m.Supplies.Coffee, levels.Coffee)
	set(&m.Supplies.Water, levels.Water)
	set(&m.Supplies.Milk, levels.Milk)
	set(&m.Supplies.Sugar, levels.Sugar)
	return m.clone(), nil
}

// ResolveAlert marks an alert on a machine as resolved.
func (c *Catalog) ResolveAlert(id, alertID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.machines[id]
	if !ok {
		return fmt.Errorf("id %q: %w", id, ErrNotFound)
	}
	for i := range m.Alerts {
		if m.Alerts[i].ID == alertID {
			m.Alerts[i].Resolved = true
			return nil
		}
	}
	return fmt.Errorf("alert %q on %q: %w", alertID, id, ErrNotFound)
}

// Locations lists distinct locations in first-seen order.
func (c *Catalog) Locations() []string {
	return c.distinct(func(m *Machine) (string, bool) { return m.Location, true })
}

// Offices lists distinct offices, restricted to location when it is set.
func (c *Catalog) Offices(location string) []string {
	return c.distinct(func(m *Machine) (string, bool) {
		return m.Office, location == "" || m.Location == location
	})
}

// Floors lists distinct floors, restricted by location and office when set.
func (c *Catalog) Floors(location, office string) []string {
	return c.distinct(func(m *Machine) (string, bool) {
		return m.Floor, (location == "" || m.Location == location) && (office == "" || m.Office == office)
	})
}

// Filter returns machines matching every non-empty argument.
func (c *Catalog) Filter(location, office, floor string) []Machine {
	return c.filter(func(m Machine) bool {
		return (location == "" || m.Location == location) &&
			(office == "" || m.Office == office) &&
			(floor == "" || m.Floor == floor)
	})
}

// LowSupply returns machines with any supply below the threshold.
func (c *Catalog) LowSupply() []Machine {
	return c.filter(func(m Machine) bool { return m.LowSupply(c.threshold) })
}

// MaintenanceNeeded returns machines in maintenance or with open alerts.
func (c *Catalog) MaintenanceNeeded() []Machine {
	return c.filter(Machine.NeedsMaintenance)
}

// Summary counts machines by state for the overview page.
type Summary struct {
	Total       int `json:"total"`
	Operational int `json:"operational"`
	Maintenance int `json:"maintenance"`
	Offline     int `json:"offline"`
	LowSupply   int `json:"lowSupply"`
	OpenAlerts  int `json:"openAlerts"`
}

// Summary aggregates the catalog.
func (c *Catalog) Summary() Summary {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var s Summary
	for _, m := range c.machines {
		s.Total++
		switch m.Status {
		case "maintenance":
			s.Maintenance++
		case "offline":
			s.Offline++
		default:
			s.Operational++
		}
		if m.LowSupply(c.threshold) {
			s.LowSupply++
		}
		for _, a := range m.Alerts {
			if !a.Resolved {
				s.OpenAlerts++
			}
		}
	}
	return s
}

func (c *Catalog) filter(keep func(Machine) bool) []Machine {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := []Machine{}
	for _, id := range c.order {
		m := c.machines[id]
		if keep(*m) {
			out = append(out, m.clone())
		}
	}
	return out
}

func (c *Catalog) distinct(pick func(*Machine) (string, bool)) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	seen := make(map[string]bool)
	out := []string{}
	for _, id := range c.order {
		v, ok := pick(c.machines[id])
		if !ok || v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
