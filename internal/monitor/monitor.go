// Package monitor renders live fleet telemetry in the terminal.
package monitor

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"coffeefleet-sim/internal/broker"
	"coffeefleet-sim/internal/telemetry"
)

// teaProgram abstracts bubbletea.Program for testing.
type teaProgram interface {
	Send(tea.Msg)
}

// Connection is the broker surface the monitor binds to and toggles.
type Connection interface {
	broker.Subscriber
	Connect(ctx context.Context) error
	Disconnect()
	State() broker.State
}

// Monitor subscribes to the fleet topics for the lifetime of its bubbletea
// program and forwards every message to the model.
type Monitor struct {
	conn    Connection
	topics  []string
	program teaProgram
	run     func() (tea.Model, error)
	quit    func()
	scope   *broker.Scope
}

// New prepares a monitor for machineIDs. Nothing is subscribed until Run.
func New(conn Connection, topics telemetry.Topics, machineIDs []string) *Monitor {
	model := newModel(conn, machineIDs)
	p := tea.NewProgram(model, tea.WithAltScreen())
	return &Monitor{
		conn:    conn,
		topics:  topics.ForMachines(machineIDs),
		program: p,
		run:     p.Run,
		quit:    p.Quit,
	}
}

// Run binds the topics and blocks until the user quits or ctx is done.
// The subscriptions end when Run returns.
func (m *Monitor) Run(ctx context.Context) error {
	m.scope = broker.NewScope(m.conn)
	defer m.scope.Close()
	for _, t := range m.topics {
		m.scope.Bind(t, m.handle)
	}
	stop := context.AfterFunc(ctx, m.quit)
	defer stop()
	_, err := m.run()
	return err
}

func (m *Monitor) handle(_ context.Context, msg telemetry.Message) error {
	switch p := msg.Payload.(type) {
	case telemetry.StatusUpdate:
		m.program.Send(statusMsg{at: msg.Timestamp, StatusUpdate: p})
	case telemetry.UsageUpdate:
		m.program.Send(usageMsg{at: msg.Timestamp, UsageUpdate: p})
	case telemetry.AlertNotice:
		m.program.Send(alertMsg{at: msg.Timestamp, AlertNotice: p})
	default:
		return fmt.Errorf("monitor: unexpected payload on %s", msg.Topic)
	}
	return nil
}

type statusMsg struct {
	at time.Time
	telemetry.StatusUpdate
}

type usageMsg struct {
	at time.Time
	telemetry.UsageUpdate
}

type alertMsg struct {
	at time.Time
	telemetry.AlertNotice
}

// connStateMsg reports the broker state after a toggle.
type connStateMsg struct {
	state broker.State
	err   error
}
