package monitor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"coffeefleet-sim/internal/broker"
	"coffeefleet-sim/internal/telemetry"
)

const (
	maxAlertLines   = 200
	lowSupplyLevel  = 30
	alertPaneHeight = 8
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("180"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

type machineRow struct {
	status telemetry.StatusUpdate
	usage  telemetry.UsageUpdate
	seen   time.Time
}

type model struct {
	conn       Connection
	ids        []string
	machines   map[string]*machineRow
	table      table.Model
	alerts     viewport.Model
	alertLog   []string
	state      broker.State
	toggling   bool
	lastErr    string
	wrap       bool
	autoscroll bool
	help       bool
	width      int
	height     int
	received   int
}

func newModel(conn Connection, ids []string) model {
	cols := []table.Column{
		{Title: "Machine", Width: 9},
		{Title: "Status", Width: 12},
		{Title: "Temp", Width: 6},
		{Title: "Press", Width: 6},
		{Title: "Power", Width: 6},
		{Title: "Water", Width: 6},
		{Title: "Milk", Width: 6},
		{Title: "Beans", Width: 6},
		{Title: "Sugar", Width: 6},
		{Title: "Queue", Width: 5},
		{Title: "Order", Width: 11},
		{Title: "Cups", Width: 5},
	}
	m := model{
		conn:       conn,
		ids:        append([]string(nil), ids...),
		machines:   make(map[string]*machineRow),
		table:      table.New(table.WithColumns(cols), table.WithHeight(len(ids)+1)),
		alerts:     viewport.New(0, alertPaneHeight),
		autoscroll: true,
	}
	m.refreshTable()
	m.refreshAlerts()
	return m
}

// Init reports the connection state the program starts with.
func (m model) Init() tea.Cmd {
	conn := m.conn
	return func() tea.Msg { return connStateMsg{state: conn.State()} }
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.table.SetWidth(msg.Width)
		m.alerts.Width = msg.Width
		m.refreshAlerts()
	case tea.KeyMsg:
		if m.help {
			switch msg.String() {
			case "h", "?", "esc", "q":
				m.help = false
			}
			return m, nil
		}
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "c":
			if m.toggling {
				return m, nil
			}
			m.toggling = true
			return m, m.toggleConnection()
		case "w":
			m.wrap = !m.wrap
			m.refreshAlerts()
		case "s":
			m.autoscroll = !m.autoscroll
			if m.autoscroll {
				m.alerts.GotoBottom()
			}
		case "h", "?":
			m.help = true
		default:
			if !m.autoscroll {
				var cmd tea.Cmd
				m.alerts, cmd = m.alerts.Update(msg)
				return m, cmd
			}
		}
	case connStateMsg:
		m.toggling = false
		m.state = msg.state
		m.lastErr = ""
		if msg.err != nil {
			m.lastErr = msg.err.Error()
		}
	case statusMsg:
		r := m.row(msg.MachineID)
		r.status = msg.StatusUpdate
		r.seen = msg.at
		m.received++
		m.refreshTable()
	case usageMsg:
		r := m.row(msg.MachineID)
		r.usage = msg.UsageUpdate
		r.seen = msg.at
		m.received++
		m.refreshTable()
	case alertMsg:
		m.received++
		line := fmt.Sprintf("%s %s %s %s at %d%%: %s",
			dimStyle.Render(msg.at.Format(time.TimeOnly)),
			errStyle.Render("ALERT"),
			msg.MachineID, msg.Supply, msg.Level, msg.Message)
		m.alertLog = append(m.alertLog, line)
		if len(m.alertLog) > maxAlertLines {
			m.alertLog = m.alertLog[len(m.alertLog)-maxAlertLines:]
		}
		m.refreshAlerts()
	}
	return m, nil
}

// toggleConnection runs off the event loop; Connect waits for the handshake
// delay and Disconnect waits for a running tick.
func (m model) toggleConnection() tea.Cmd {
	conn := m.conn
	return func() tea.Msg {
		if conn.State() == broker.Disconnected {
			err := conn.Connect(context.Background())
			return connStateMsg{state: conn.State(), err: err}
		}
		conn.Disconnect()
		return connStateMsg{state: conn.State()}
	}
}

func (m *model) row(id string) *machineRow {
	r, ok := m.machines[id]
	if !ok {
		r = &machineRow{}
		m.machines[id] = r
		known := false
		for _, k := range m.ids {
			if k == id {
				known = true
				break
			}
		}
		if !known {
			m.ids = append(m.ids, id)
			m.table.SetHeight(len(m.ids) + 1)
		}
	}
	return r
}

func (m *model) refreshTable() {
	rows := make([]table.Row, 0, len(m.ids))
	for _, id := range m.ids {
		r, ok := m.machines[id]
		if !ok || r.seen.IsZero() {
			rows = append(rows, table.Row{id, "waiting", "-", "-", "-", "-", "-", "-", "-", "-", "-", "-"})
			continue
		}
		s := r.status
		order := s.CurrentOrder
		if order == "" {
			order = "-"
		}
		rows = append(rows, table.Row{
			id,
			string(s.Status),
			fmt.Sprintf("%.1f", s.Temperature),
			fmt.Sprintf("%.1f", s.Pressure),
			fmt.Sprintf("%.1f", s.PowerUsage),
			level(s.WaterLevel),
			level(s.MilkLevel),
			level(s.CoffeeBeansLevel),
			level(s.SugarLevel),
			fmt.Sprintf("%d", s.QueueLength),
			order,
			fmt.Sprintf("%d", r.usage.CupsToday),
		})
	}
	m.table.SetRows(rows)
}

func level(v float64) string {
	s := fmt.Sprintf("%.0f%%", v)
	if v < lowSupplyLevel {
		return "!" + s
	}
	return s
}

func (m *model) refreshAlerts() {
	content := dimStyle.Render("no alerts")
	if len(m.alertLog) > 0 {
		lines := m.alertLog
		if m.wrap && m.alerts.Width > 0 {
			lines = make([]string, len(m.alertLog))
			for i, l := range m.alertLog {
				lines[i] = wordwrap.String(l, m.alerts.Width)
			}
		}
		content = strings.Join(lines, "\n")
	}
	m.alerts.SetContent(content)
	if m.autoscroll {
		m.alerts.GotoBottom()
	}
}

func (m model) View() string {
	if m.help {
		return m.renderHelp()
	}
	divider := strings.Repeat("─", max(m.width, 20))
	return strings.Join([]string{
		m.renderHeader(),
		divider,
		m.table.View(),
		divider,
		titleStyle.Render("Alerts"),
		m.alerts.View(),
		divider,
		m.renderFooter(),
	}, "\n")
}

func (m model) renderHeader() string {
	var st string
	switch m.state {
	case broker.Connected:
		st = okStyle.Render("● connected")
	case broker.Connecting:
		st = warnStyle.Render("● connecting")
	default:
		st = errStyle.Render("● disconnected")
	}
	if m.toggling {
		st += dimStyle.Render(" …")
	}
	header := lipgloss.JoinHorizontal(lipgloss.Top,
		titleStyle.Render("Coffee Fleet Monitor"), "  ", st,
		dimStyle.Render(fmt.Sprintf("  messages=%d", m.received)))
	if m.lastErr != "" {
		header += "\n" + errStyle.Render(m.lastErr)
	}
	return header
}

func indicator(on bool) string {
	if on {
		return okStyle.Render("●")
	}
	return errStyle.Render("●")
}

func (m model) renderFooter() string {
	return fmt.Sprintf("c connect/disconnect | Wrap %s | Scroll %s | h help | q quit",
		indicator(m.wrap), indicator(m.autoscroll))
}

func (m model) renderHelp() string {
	return strings.Join([]string{
		"Key Bindings:",
		" c  connect or disconnect the broker",
		" w  toggle wrap for the alert log",
		" s  toggle auto-scroll",
		" h/? toggle this help view",
		" q  quit",
		"",
		"When auto-scroll is disabled:",
		" j/k or up/down    scroll one line",
		" pgdown/pgup       scroll a page",
	}, "\n")
}
