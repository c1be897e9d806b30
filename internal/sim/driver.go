// Simulation driver publishing synthetic machine telemetry on a fixed interval
package sim

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"coffeefleet-sim/internal/broker"
	"coffeefleet-sim/internal/clock"
	"coffeefleet-sim/internal/telemetry"
)

// DefaultTickInterval is the time between telemetry rounds.
const DefaultTickInterval = 3 * time.Second

// Options configures a Driver. A zero Clock, Interval, Topics, Generator,
// Logger or Metrics falls back to its default. The probabilities are taken
// as given, so zero disables usage updates or alerts.
type Options struct {
	Clock            clock.Clock
	Interval         time.Duration
	Topics           telemetry.Topics
	MachineIDs       []string
	UsageProbability float64
	AlertProbability float64
	Generator        *telemetry.Generator
	Logger           *slog.Logger
	Metrics          *Metrics
}

// Driver publishes one round of telemetry per interval while started. The
// broker client starts it on connect and stops it on disconnect.
type Driver struct {
	pub   broker.Publisher
	clock clock.Clock
	opts  Options
	log   *slog.Logger

	mu     sync.Mutex
	ticker clock.Ticker

	// tickMu serializes rounds; the generator's random source is not
	// safe for concurrent use.
	tickMu sync.Mutex
	gen    *telemetry.Generator
}

// NewDriver creates a stopped driver publishing through pub.
func NewDriver(pub broker.Publisher, opts Options) *Driver {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultTickInterval
	}
	if opts.Topics.Domain == "" {
		opts.Topics.Domain = telemetry.DefaultDomain
	}
	if opts.Topics.Alerts == "" {
		opts.Topics.Alerts = telemetry.DefaultAlertsTopic
	}
	if opts.Generator == nil {
		opts.Generator = telemetry.NewGenerator(rand.New(rand.NewSource(time.Now().UnixNano())))
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}
	opts.MachineIDs = append([]string(nil), opts.MachineIDs...)
	return &Driver{
		pub:   pub,
		clock: opts.Clock,
		opts:  opts,
		log:   opts.Logger,
		gen:   opts.Generator,
	}
}

// Start begins ticking. Calling Start on a running driver does nothing.
func (d *Driver) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ticker != nil {
		return
	}
	d.ticker = d.clock.Every(d.opts.Interval, func(time.Time) { d.Tick(ctx) })
	d.opts.Metrics.Running.Set(1)
	d.log.Info("starting simulation driver", "tick_interval", d.opts.Interval, "machines", len(d.opts.MachineIDs))
}

// Stop cancels the interval timer and waits for a running tick to finish.
// No tick starts after Stop returns. It must not be called from code that
// runs inside a tick.
func (d *Driver) Stop() {
	d.mu.Lock()
	t := d.ticker
	d.ticker = nil
	d.mu.Unlock()
	if t == nil {
		return
	}
	t.Stop()
	d.opts.Metrics.Running.Set(0)
	d.log.Info("stopped simulation driver")
}

// Running reports whether the interval timer is active.
func (d *Driver) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ticker != nil
}

// MachineIDs returns the simulated machine identifiers.
func (d *Driver) MachineIDs() []string {
	return append([]string(nil), d.opts.MachineIDs...)
}

// Topics returns every topic the driver can publish on.
func (d *Driver) Topics() []string {
	return d.opts.Topics.ForMachines(d.opts.MachineIDs)
}

// Tick publishes one round: a status update per machine, a usage update per
// machine with the usage probability, then at most one fleet alert.
func (d *Driver) Tick(ctx context.Context) {
	d.tickMu.Lock()
	defer d.tickMu.Unlock()
	d.opts.Metrics.Ticks.Inc()

	for _, id := range d.opts.MachineIDs {
		if !d.publish(ctx, d.opts.Topics.Status(id), d.gen.GenerateStatus(id)) {
			return
		}
		if d.gen.Float64() < d.opts.UsageProbability {
			if !d.publish(ctx, d.opts.Topics.Usage(id), d.gen.GenerateUsage(id)) {
				return
			}
		}
	}
	if len(d.opts.MachineIDs) > 0 && d.gen.Float64() < d.opts.AlertProbability {
		d.publish(ctx, d.opts.Topics.Alerts, d.gen.GenerateAlert(d.opts.MachineIDs))
	}
}

// publish reports whether the round should continue.
func (d *Driver) publish(ctx context.Context, topic string, p telemetry.Payload) bool {
	err := d.pub.Publish(ctx, topic, p)
	if err == nil {
		return true
	}
	if errors.Is(err, broker.ErrNotConnected) {
		// Disconnect raced with this tick; the rest of the round is dropped.
		d.log.Debug("tick interrupted by disconnect", "topic", topic)
		return false
	}
	d.opts.Metrics.PublishErrors.Inc()
	d.log.Warn("publish failed", "topic", topic, "err", err)
	return true
}
