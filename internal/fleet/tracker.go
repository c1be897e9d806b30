package fleet

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"coffeefleet-sim/internal/broker"
	"coffeefleet-sim/internal/telemetry"
)

// Tracker folds live telemetry into the catalog for as long as it is bound.
type Tracker struct {
	catalog *Catalog
	scope   *broker.Scope
}

// Track binds the status, usage and alert topics of machineIDs to c.
func Track(sub broker.Subscriber, c *Catalog, topics telemetry.Topics, machineIDs []string) *Tracker {
	t := &Tracker{catalog: c, scope: broker.NewScope(sub)}
	for _, id := range machineIDs {
		t.scope.Bind(topics.Status(id), t.onStatus)
		t.scope.Bind(topics.Usage(id), t.onUsage)
	}
	t.scope.Bind(topics.Alerts, t.onAlert)
	return t
}

// Close unbinds every topic.
func (t *Tracker) Close() { t.scope.Close() }

func (t *Tracker) onStatus(_ context.Context, msg telemetry.Message) error {
	s, ok := msg.Status()
	if !ok {
		return fmt.Errorf("unexpected %q payload on %s", msg.Kind(), msg.Topic)
	}
	return t.catalog.ApplyStatus(s, msg.Timestamp)
}

func (t *Tracker) onUsage(_ context.Context, msg telemetry.Message) error {
	u, ok := msg.Usage()
	if !ok {
		return fmt.Errorf("unexpected %q payload on %s", msg.Kind(), msg.Topic)
	}
	return t.catalog.ApplyUsage(u, msg.Timestamp)
}

func (t *Tracker) onAlert(_ context.Context, msg telemetry.Message) error {
	a, ok := msg.Alert()
	if !ok {
		return fmt.Errorf("unexpected %q payload on %s", msg.Kind(), msg.Topic)
	}
	return t.catalog.ApplyAlert(a, msg.Timestamp)
}

// ApplyStatus records a status update on the machine it names.
func (c *Catalog) ApplyStatus(s telemetry.StatusUpdate, at time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.byMachineIDLocked(s.MachineID)
	if m == nil {
		return fmt.Errorf("status for %q: %w", s.MachineID, ErrNotFound)
	}
	m.Status = string(s.Status)
	m.Supplies = Supplies{
		Coffee: int(s.CoffeeBeansLevel),
		Water:  int(s.WaterLevel),
		Milk:   int(s.MilkLevel),
		Sugar:  int(s.SugarLevel),
	}
	for i := range m.Alerts {
		a := &m.Alerts[i]
		if !a.Resolved && a.Supply != "" && s.Level(telemetry.Supply(a.Supply)) >= float64(c.threshold) {
			a.Resolved = true
		}
	}
	live := m.live()
	live.Temperature = s.Temperature
	live.Pressure = s.Pressure
	live.PowerUsage = s.PowerUsage
	live.CurrentOrder = s.CurrentOrder
	live.QueueLength = s.QueueLength
	live.UpdatedAt = at
	return nil
}

// ApplyUsage records a usage update on the machine it names.
func (c *Catalog) ApplyUsage(u telemetry.UsageUpdate, at time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.byMachineIDLocked(u.MachineID)
	if m == nil {
		return fmt.Errorf("usage for %q: %w", u.MachineID, ErrNotFound)
	}
	m.Usage.DailyCups = u.CupsToday
	m.Usage.Revenue = u.Revenue
	live := m.live()
	live.LastActivity = u.LastActivity
	live.UpdatedAt = at
	return nil
}

// MaxAlerts bounds the alerts kept per machine. Resolved alerts are dropped
// oldest first once it is exceeded.
const MaxAlerts = 20

// ApplyAlert opens an alert on the machine it names. An open alert for the
// same type and supply is refreshed in place instead of duplicated. A later
// status update reporting the supply at or above the low-supply threshold
// resolves it.
func (c *Catalog) ApplyAlert(a telemetry.AlertNotice, at time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.byMachineIDLocked(a.MachineID)
	if m == nil {
		return fmt.Errorf("alert for %q: %w", a.MachineID, ErrNotFound)
	}
	msg := fmt.Sprintf("%s: %s at %d%%", a.Message, a.Supply, a.Level)
	for i := range m.Alerts {
		open := &m.Alerts[i]
		if !open.Resolved && open.Type == a.Type && open.Supply == string(a.Supply) {
			open.Message = msg
			open.Timestamp = at
			return nil
		}
	}
	m.Alerts = append(m.Alerts, Alert{
		ID:        uuid.NewString(),
		Type:      a.Type,
		Supply:    string(a.Supply),
		Message:   msg,
		Priority:  "high",
		Timestamp: at,
	})
	m.Alerts = pruneResolved(m.Alerts, MaxAlerts)
	return nil
}

// pruneResolved drops the oldest resolved alerts until at most limit remain.
// Open alerts are always kept.
func pruneResolved(alerts []Alert, limit int) []Alert {
	excess := len(alerts) - limit
	if excess <= 0 {
		return alerts
	}
	kept := alerts[:0]
	for _, a := range alerts {
		if a.Resolved && excess > 0 {
			excess--
			continue
		}
		kept = append(kept, a)
	}
	return kept
}

func (m *Machine) live() *Live {
	if m.Live == nil {
		m.Live = &Live{}
	}
	return m.Live
}
