package fleet

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coffeefleet-sim/internal/broker"
	"coffeefleet-sim/internal/clock"
	"coffeefleet-sim/internal/logging"
	"coffeefleet-sim/internal/telemetry"
)

func TestTrackerFoldsTelemetry(t *testing.T) {
	fc := clock.NewFake(time.Unix(1_700_000_000, 0))
	client := broker.NewClient(broker.Options{Clock: fc, Logger: logging.Discard()})
	require.NoError(t, client.Connect(context.Background()))

	c := newCatalog()
	topics := telemetry.DefaultTopics()
	tr := Track(client, c, topics, []string{"A-001", "A-002", "B-001"})
	assert.Equal(t, 7, client.Registry().Len())

	ctx := context.Background()
	require.NoError(t, client.Publish(ctx, topics.Status("B-001"), telemetry.StatusUpdate{
		MachineID: "B-001", Status: telemetry.StatusMaintenance,
		Temperature: 90.5, Pressure: 14, PowerUsage: 75,
		WaterLevel: 12.7, MilkLevel: 80, CoffeeBeansLevel: 66, SugarLevel: 99,
		CurrentOrder: "Espresso", QueueLength: 3,
	}))
	require.NoError(t, client.Publish(ctx, topics.Usage("B-001"), telemetry.UsageUpdate{
		MachineID: "B-001", CupsToday: 140, Revenue: 333, LastActivity: "Just now",
	}))
	require.NoError(t, client.Publish(ctx, topics.Alerts, telemetry.AlertNotice{
		Type: telemetry.AlertLowSupply, MachineID: "A-002", Supply: telemetry.SupplySugar,
		Level: 4, Message: "Supply level is critically low",
	}))

	b, err := c.GetByMachineID("B-001")
	require.NoError(t, err)
	assert.Equal(t, "maintenance", b.Status)
	assert.Equal(t, Supplies{Coffee: 66, Water: 12, Milk: 80, Sugar: 99}, b.Supplies)
	require.NotNil(t, b.Live)
	assert.Equal(t, "Espresso", b.Live.CurrentOrder)
	assert.Equal(t, 140, b.Usage.DailyCups)
	assert.Equal(t, "Just now", b.Live.LastActivity)
	assert.True(t, b.Live.UpdatedAt.Equal(fc.Now()))

	a, err := c.GetByMachineID("A-002")
	require.NoError(t, err)
	require.Len(t, a.Alerts, 1)
	assert.Contains(t, a.Alerts[0].Message, "sugar at 4%")
	assert.False(t, a.Alerts[0].Resolved)
	assert.Contains(t, ids(c.MaintenanceNeeded()), "2")

	tr.Close()
	assert.Zero(t, client.Registry().Len())
}

func TestApplyUnknownMachine(t *testing.T) {
	c := newCatalog()
	err := c.ApplyStatus(telemetry.StatusUpdate{MachineID: "Z-1"}, time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
}

func lowSugar(level int) telemetry.AlertNotice {
	return telemetry.AlertNotice{
		Type: telemetry.AlertLowSupply, MachineID: "A-002", Supply: telemetry.SupplySugar,
		Level: level, Message: "Supply level is critically low",
	}
}

func TestApplyAlertRefreshesOpenAlert(t *testing.T) {
	c := newCatalog()
	first := time.Unix(100, 0)
	require.NoError(t, c.ApplyAlert(lowSugar(9), first))
	require.NoError(t, c.ApplyAlert(lowSugar(3), first.Add(time.Minute)))

	a, err := c.GetByMachineID("A-002")
	require.NoError(t, err)
	require.Len(t, a.Alerts, 1)
	assert.Equal(t, "sugar", a.Alerts[0].Supply)
	assert.Contains(t, a.Alerts[0].Message, "sugar at 3%")
	assert.True(t, a.Alerts[0].Timestamp.Equal(first.Add(time.Minute)))

	milk := lowSugar(5)
	milk.Supply = telemetry.SupplyMilk
	require.NoError(t, c.ApplyAlert(milk, first))
	a, _ = c.GetByMachineID("A-002")
	assert.Len(t, a.Alerts, 2)
}

func TestStatusResolvesRefilledSupply(t *testing.T) {
	c := newCatalog()
	require.NoError(t, c.ApplyAlert(lowSugar(4), time.Unix(1, 0)))
	assert.Contains(t, ids(c.MaintenanceNeeded()), "2")

	status := telemetry.StatusUpdate{
		MachineID: "A-002", Status: telemetry.StatusOperational,
		WaterLevel: 90, MilkLevel: 90, CoffeeBeansLevel: 90, SugarLevel: 10,
	}
	require.NoError(t, c.ApplyStatus(status, time.Unix(2, 0)))
	a, _ := c.GetByMachineID("A-002")
	assert.False(t, a.Alerts[0].Resolved, "sugar still below threshold")

	status.SugarLevel = 80
	require.NoError(t, c.ApplyStatus(status, time.Unix(3, 0)))
	a, _ = c.GetByMachineID("A-002")
	assert.True(t, a.Alerts[0].Resolved)
	assert.NotContains(t, ids(c.MaintenanceNeeded()), "2")
}

func TestAlertsStayBounded(t *testing.T) {
	c := newCatalog()
	refill := telemetry.StatusUpdate{
		MachineID: "A-002", Status: telemetry.StatusOperational,
		WaterLevel: 90, MilkLevel: 90, CoffeeBeansLevel: 90, SugarLevel: 90,
	}
	for i := 0; i < 500; i++ {
		at := time.Unix(int64(i), 0)
		require.NoError(t, c.ApplyAlert(lowSugar(i%20), at))
		require.NoError(t, c.ApplyStatus(refill, at))
	}
	a, err := c.GetByMachineID("A-002")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(a.Alerts), MaxAlerts)
	assert.Contains(t, a.Alerts[len(a.Alerts)-1].Message, "sugar at 19%")
}
