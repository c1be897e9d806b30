package sim

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	greptime "github.com/GreptimeTeam/greptimedb-ingester-go"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table/types"

	"coffeefleet-sim/internal/telemetry"
)

// Default GreptimeDB table names.
const (
	StatusTable = "machine_status"
	UsageTable  = "machine_usage"
	AlertTable  = "machine_alerts"
)

type greptimeClient interface {
	Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error)
}

// GreptimeDBWriter writes telemetry to GreptimeDB via the ingester client,
// one table per payload kind.
type GreptimeDBWriter struct {
	client      greptimeClient
	statusTable string
	usageTable  string
	alertTable  string
	timeout     time.Duration
	log         *slog.Logger
}

// NewGreptimeDBWriter connects to endpoint ("host" or "host:port") and
// writes into database. Tables are created by GreptimeDB on first insert.
func NewGreptimeDBWriter(endpoint, database string, log *slog.Logger) (*GreptimeDBWriter, error) {
	host, port, err := splitEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	cfg := greptime.NewConfig(host).WithDatabase(database)
	if port > 0 {
		cfg = cfg.WithPort(port)
	}
	client, err := greptime.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("greptimedb client: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &GreptimeDBWriter{
		client:      client,
		statusTable: StatusTable,
		usageTable:  UsageTable,
		alertTable:  AlertTable,
		timeout:     5 * time.Second,
		log:         log,
	}, nil
}

func splitEndpoint(endpoint string) (string, int, error) {
	if endpoint == "" {
		return "", 0, fmt.Errorf("greptimedb endpoint is empty")
	}
	host, portStr, err := net.SplitHostPort(endpoint)
	if err != nil {
		// No port given.
		return endpoint, 0, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("greptimedb endpoint %q: invalid port: %w", endpoint, err)
	}
	return host, port, nil
}

// Write inserts a single message.
func (w *GreptimeDBWriter) Write(msg telemetry.Message) error {
	return w.WriteBatch([]telemetry.Message{msg})
}

// WriteBatch inserts messages, grouped into one table per payload kind.
func (w *GreptimeDBWriter) WriteBatch(msgs []telemetry.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	var status, usage, alerts *table.Table
	var err error
	for _, m := range msgs {
		switch p := m.Payload.(type) {
		case telemetry.StatusUpdate:
			if status == nil {
				if status, err = w.newStatusTable(); err != nil {
					return err
				}
			}
			err = status.AddRow(p.MachineID, string(p.Status), p.Temperature, p.Pressure, p.PowerUsage,
				p.WaterLevel, p.MilkLevel, p.CoffeeBeansLevel, p.SugarLevel, p.CurrentOrder,
				int64(p.QueueLength), m.Timestamp)
		case telemetry.UsageUpdate:
			if usage == nil {
				if usage, err = w.newUsageTable(); err != nil {
					return err
				}
			}
			err = usage.AddRow(p.MachineID, int64(p.CupsToday), int64(p.Revenue), p.LastActivity, m.Timestamp)
		case telemetry.AlertNotice:
			if alerts == nil {
				if alerts, err = w.newAlertTable(); err != nil {
					return err
				}
			}
			err = alerts.AddRow(p.MachineID, p.Type, string(p.Supply), int64(p.Level), p.Message, m.Timestamp)
		default:
			err = fmt.Errorf("unsupported payload kind %q", m.Kind())
		}
		if err != nil {
			return fmt.Errorf("greptimedb row for %s: %w", m.Topic, err)
		}
	}

	var tables []*table.Table
	for _, t := range []*table.Table{status, usage, alerts} {
		if t != nil {
			tables = append(tables, t)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()
	if _, err := w.client.Write(ctx, tables...); err != nil {
		w.log.Error("greptimedb write failed", "rows", len(msgs), "err", err)
		return err
	}
	w.log.Debug("greptimedb write", "rows", len(msgs))
	return nil
}

func (w *GreptimeDBWriter) newStatusTable() (*table.Table, error) {
	t, err := table.New(w.statusTable)
	if err != nil {
		return nil, err
	}
	return t, firstErr(
		t.AddTagColumn("machine_id", types.STRING),
		t.AddFieldColumn("status", types.STRING),
		t.AddFieldColumn("temperature", types.FLOAT64),
		t.AddFieldColumn("pressure", types.FLOAT64),
		t.AddFieldColumn("power_usage", types.FLOAT64),
		t.AddFieldColumn("water_level", types.FLOAT64),
		t.AddFieldColumn("milk_level", types.FLOAT64),
		t.AddFieldColumn("coffee_beans_level", types.FLOAT64),
		t.AddFieldColumn("sugar_level", types.FLOAT64),
		t.AddFieldColumn("current_order", types.STRING),
		t.AddFieldColumn("queue_length", types.INT64),
		t.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND),
	)
}

func (w *GreptimeDBWriter) newUsageTable() (*table.Table, error) {
	t, err := table.New(w.usageTable)
	if err != nil {
		return nil, err
	}
	return t, firstErr(
		t.AddTagColumn("machine_id", types.STRING),
		t.AddFieldColumn("cups_today", types.INT64),
		t.AddFieldColumn("revenue", types.INT64),
		t.AddFieldColumn("last_activity", types.STRING),
		t.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND),
	)
}

func (w *GreptimeDBWriter) newAlertTable() (*table.Table, error) {
	t, err := table.New(w.alertTable)
	if err != nil {
		return nil, err
	}
	return t, firstErr(
		t.AddTagColumn("machine_id", types.STRING),
		t.AddTagColumn("type", types.STRING),
		t.AddFieldColumn("supply", types.STRING),
		t.AddFieldColumn("level", types.INT64),
		t.AddFieldColumn("message", types.STRING),
		t.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND),
	)
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
