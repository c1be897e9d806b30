package monitor

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coffeefleet-sim/internal/broker"
	"coffeefleet-sim/internal/clock"
	"coffeefleet-sim/internal/logging"
	"coffeefleet-sim/internal/telemetry"
)

type fakeProgram struct {
	mu   sync.Mutex
	msgs []tea.Msg
}

func (f *fakeProgram) Send(msg tea.Msg) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
}

func newClient(t *testing.T) *broker.Client {
	t.Helper()
	return broker.NewClient(broker.Options{Clock: clock.NewFake(time.Unix(0, 0)), Logger: logging.Discard()})
}

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, m model, msg tea.Msg) (model, tea.Cmd) {
	t.Helper()
	mi, cmd := m.Update(msg)
	return mi.(model), cmd
}

func TestMonitorRunBindsForLifetime(t *testing.T) {
	c := newClient(t)
	require.NoError(t, c.Connect(context.Background()))
	topics := telemetry.DefaultTopics()
	p := &fakeProgram{}
	mon := &Monitor{conn: c, topics: topics.ForMachines([]string{"A-001"}), program: p, quit: func() {}}
	mon.run = func() (tea.Model, error) {
		assert.Equal(t, 3, c.Registry().Len())
		require.NoError(t, c.Publish(context.Background(), topics.Status("A-001"), telemetry.StatusUpdate{MachineID: "A-001"}))
		require.NoError(t, c.Publish(context.Background(), topics.Alerts, telemetry.AlertNotice{MachineID: "A-001"}))
		return nil, nil
	}

	require.NoError(t, mon.Run(context.Background()))
	assert.Zero(t, c.Registry().Len())
	require.Len(t, p.msgs, 2)
	_, ok := p.msgs[0].(statusMsg)
	assert.True(t, ok)
	_, ok = p.msgs[1].(alertMsg)
	assert.True(t, ok)
}

func TestMonitorQuitsOnContextDone(t *testing.T) {
	c := newClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	quit := make(chan struct{})
	mon := &Monitor{conn: c, program: &fakeProgram{}, quit: func() { close(quit) }}
	mon.run = func() (tea.Model, error) {
		<-quit
		return nil, nil
	}
	done := make(chan error, 1)
	go func() { done <- mon.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not quit")
	}
}

func TestModelStatusAndAlerts(t *testing.T) {
	m := newModel(newClient(t), []string{"A-001", "B-001"})
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})
	m, _ = update(t, m, statusMsg{at: time.Unix(10, 0), StatusUpdate: telemetry.StatusUpdate{
		MachineID: "A-001", Status: telemetry.StatusOperational, Temperature: 91.3,
		WaterLevel: 20, MilkLevel: 80, CoffeeBeansLevel: 50, SugarLevel: 70, CurrentOrder: "Latte",
	}})
	m, _ = update(t, m, usageMsg{at: time.Unix(11, 0), UsageUpdate: telemetry.UsageUpdate{MachineID: "A-001", CupsToday: 130}})
	m, _ = update(t, m, alertMsg{at: time.Unix(12, 0), AlertNotice: telemetry.AlertNotice{
		MachineID: "B-001", Supply: telemetry.SupplyWater, Level: 3, Message: "Supply level is critically low",
	}})

	rows := m.table.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, "91.3", rows[0][2])
	assert.Equal(t, "!20%", rows[0][5])
	assert.Equal(t, "Latte", rows[0][10])
	assert.Equal(t, "130", rows[0][11])
	assert.Equal(t, "waiting", rows[1][1])
	assert.Equal(t, 3, m.received)

	view := m.View()
	assert.Contains(t, view, "Coffee Fleet Monitor")
	assert.Contains(t, view, "B-001 water at 3%")
}

func TestModelAddsUnknownMachine(t *testing.T) {
	m := newModel(newClient(t), []string{"A-001"})
	m, _ = update(t, m, statusMsg{at: time.Unix(1, 0), StatusUpdate: telemetry.StatusUpdate{MachineID: "Z-9"}})
	require.Len(t, m.table.Rows(), 2)
	assert.Equal(t, "Z-9", m.table.Rows()[1][0])
}

func TestModelToggleConnection(t *testing.T) {
	c := newClient(t)
	m := newModel(c, []string{"A-001"})

	m, cmd := update(t, m, key("c"))
	require.NotNil(t, cmd)
	assert.True(t, m.toggling)
	_, again := update(t, m, key("c"))
	assert.Nil(t, again, "second toggle while one is pending is ignored")

	m, _ = update(t, m, cmd())
	assert.False(t, m.toggling)
	assert.Equal(t, broker.Connected, m.state)
	assert.True(t, c.IsConnected())

	m, cmd = update(t, m, key("c"))
	m, _ = update(t, m, cmd())
	assert.Equal(t, broker.Disconnected, m.state)
	assert.False(t, c.IsConnected())
}

func TestModelInitReportsState(t *testing.T) {
	c := newClient(t)
	require.NoError(t, c.Connect(context.Background()))
	m := newModel(c, nil)
	msg := m.Init()()
	assert.Equal(t, connStateMsg{state: broker.Connected}, msg)
}

func TestModelKeys(t *testing.T) {
	m := newModel(newClient(t), []string{"A-001"})
	_, cmd := update(t, m, key("q"))
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())

	m, _ = update(t, m, key("w"))
	assert.True(t, m.wrap)
	m, _ = update(t, m, key("s"))
	assert.False(t, m.autoscroll)
	m, _ = update(t, m, key("h"))
	assert.True(t, strings.HasPrefix(m.View(), "Key Bindings:"))
	m, _ = update(t, m, key("h"))
	assert.False(t, m.help)
}

func TestModelWrapsAlerts(t *testing.T) {
	m := newModel(newClient(t), nil)
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 30, Height: 40})
	m, _ = update(t, m, key("w"))
	m, _ = update(t, m, alertMsg{at: time.Unix(0, 0), AlertNotice: telemetry.AlertNotice{
		MachineID: "A-001", Supply: telemetry.SupplyCoffeeBeans, Level: 1,
		Message: "Supply level is critically low and needs a refill soon",
	}})
	assert.Greater(t, m.alerts.TotalLineCount(), 1)
}
