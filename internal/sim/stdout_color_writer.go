// ColorStdoutWriter prints human-friendly, colorized telemetry to STDOUT.
package sim

import (
	"fmt"
	"io"
	"os"
	"sync"
	"text/tabwriter"
	"time"

	"coffeefleet-sim/internal/config"
	"coffeefleet-sim/internal/telemetry"
)

const (
	colorReset   = "\x1b[0m"
	colorRed     = "\x1b[31m"
	colorGreen   = "\x1b[32m"
	colorYellow  = "\x1b[33m"
	colorBlue    = "\x1b[34m"
	colorMagenta = "\x1b[35m"
	colorCyan    = "\x1b[36m"
	colorGray    = "\x1b[90m"
)

var machinePalette = []string{colorGreen, colorYellow, colorBlue, colorMagenta, colorCyan}

// ColorStdoutWriter prints messages using ANSI colors, one line each. The
// configured catalog is printed once before the first message.
type ColorStdoutWriter struct {
	cfg *config.FleetConfig
	out io.Writer

	once          sync.Once
	mu            sync.Mutex
	machineColors map[string]string
}

// NewColorStdoutWriter creates a ColorStdoutWriter writing to os.Stdout.
func NewColorStdoutWriter(cfg *config.FleetConfig) *ColorStdoutWriter {
	return NewColorWriter(cfg, os.Stdout)
}

// NewColorWriter creates a ColorStdoutWriter writing to out.
func NewColorWriter(cfg *config.FleetConfig, out io.Writer) *ColorStdoutWriter {
	return &ColorStdoutWriter{cfg: cfg, out: out, machineColors: make(map[string]string)}
}

func (w *ColorStdoutWriter) machineColor(id string) string {
	if c, ok := w.machineColors[id]; ok {
		return c
	}
	c := machinePalette[len(w.machineColors)%len(machinePalette)]
	w.machineColors[id] = c
	return c
}

func (w *ColorStdoutWriter) printOverview() {
	if w.cfg == nil {
		return
	}
	s := w.cfg.Simulation
	fmt.Fprintln(w.out, "Simulation Configuration:")
	tw := tabwriter.NewWriter(w.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Tick Interval:\t%s\n", s.TickInterval)
	fmt.Fprintf(tw, "Connect Delay:\t%s\n", s.ConnectDelay)
	fmt.Fprintf(tw, "Usage Probability:\t%.2f\n", s.UsageProbability)
	fmt.Fprintf(tw, "Alert Probability:\t%.2f\n", s.AlertProbability)
	fmt.Fprintf(tw, "Topic Domain:\t%s\n", s.TopicDomain)
	fmt.Fprintf(tw, "Alerts Topic:\t%s\n", s.AlertsTopic)
	tw.Flush()

	fmt.Fprintln(w.out, "\nMachines:")
	tw = tabwriter.NewWriter(w.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Machine\tName\tLocation\tOffice\tFloor\n")
	for _, m := range w.cfg.Machines {
		col := w.machineColor(m.MachineID)
		fmt.Fprintf(tw, "%s%s%s\t%s\t%s\t%s\t%s\n", col, m.MachineID, colorReset, m.Name, m.Location, m.Office, m.Floor)
	}
	tw.Flush()
	fmt.Fprintln(w.out)
}

// Write outputs a single message in colorized format.
func (w *ColorStdoutWriter) Write(msg telemetry.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.once.Do(w.printOverview)

	fmt.Fprintf(w.out, "%s[%s]%s ", colorGray, msg.Timestamp.Format(time.RFC3339), colorReset)
	switch p := msg.Payload.(type) {
	case telemetry.StatusUpdate:
		statusColor := colorGreen
		switch p.Status {
		case telemetry.StatusMaintenance:
			statusColor = colorYellow
		case telemetry.StatusOffline:
			statusColor = colorRed
		}
		fmt.Fprintf(w.out, "%smachine=%s%s ", w.machineColor(p.MachineID), p.MachineID, colorReset)
		fmt.Fprintf(w.out, "%sstatus=%s%s ", statusColor, p.Status, colorReset)
		fmt.Fprintf(w.out, "%stemp=%.1f%s ", colorMagenta, p.Temperature, colorReset)
		fmt.Fprintf(w.out, "%spress=%.1f%s ", colorBlue, p.Pressure, colorReset)
		fmt.Fprintf(w.out, "%spower=%.1f%s ", colorYellow, p.PowerUsage, colorReset)
		fmt.Fprintf(w.out, "%swater=%.0f milk=%.0f beans=%.0f sugar=%.0f%s ", colorCyan,
			p.WaterLevel, p.MilkLevel, p.CoffeeBeansLevel, p.SugarLevel, colorReset)
		fmt.Fprintf(w.out, "queue=%d", p.QueueLength)
		if p.CurrentOrder != "" {
			fmt.Fprintf(w.out, " %sorder=%s%s", colorGreen, p.CurrentOrder, colorReset)
		}
	case telemetry.UsageUpdate:
		fmt.Fprintf(w.out, "%sUSAGE%s %smachine=%s%s cups=%d revenue=%d",
			colorBlue, colorReset, w.machineColor(p.MachineID), p.MachineID, colorReset, p.CupsToday, p.Revenue)
	case telemetry.AlertNotice:
		fmt.Fprintf(w.out, "%sALERT%s machine=%s supply=%s level=%d %s",
			colorRed, colorReset, p.MachineID, p.Supply, p.Level, p.Message)
	default:
		fmt.Fprintf(w.out, "topic=%s", msg.Topic)
	}
	fmt.Fprintln(w.out)
	return nil
}

// WriteBatch outputs multiple messages.
func (w *ColorStdoutWriter) WriteBatch(msgs []telemetry.Message) error {
	for _, m := range msgs {
		_ = w.Write(m)
	}
	return nil
}
