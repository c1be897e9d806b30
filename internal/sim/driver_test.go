package sim

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coffeefleet-sim/internal/broker"
	"coffeefleet-sim/internal/clock"
	"coffeefleet-sim/internal/logging"
	"coffeefleet-sim/internal/telemetry"
)

const testInterval = 3 * time.Second

type harness struct {
	client  *broker.Client
	clock   *clock.Fake
	driver  *Driver
	metrics *Metrics
}

func newHarness(t *testing.T, connectDelay time.Duration, opts Options) *harness {
	t.Helper()
	fc := clock.NewFake(time.Unix(1_700_000_000, 0))
	c := broker.NewClient(broker.Options{
		Clock:        fc,
		ConnectDelay: connectDelay,
		Logger:       logging.Discard(),
		Metrics:      broker.NewMetrics(prometheus.NewRegistry()),
	})
	m := NewMetrics(prometheus.NewRegistry())
	opts.Clock = fc
	opts.Interval = testInterval
	opts.Logger = logging.Discard()
	opts.Metrics = m
	if opts.Generator == nil {
		opts.Generator = telemetry.NewGenerator(rand.New(rand.NewSource(42)))
	}
	d := NewDriver(c, opts)
	c.SetDriver(d)
	t.Cleanup(c.Disconnect)
	return &harness{client: c, clock: fc, driver: d, metrics: m}
}

func counter(n *atomic.Int64) broker.Handler {
	return func(context.Context, telemetry.Message) error {
		n.Add(1)
		return nil
	}
}

func TestDriverSingleTickScenario(t *testing.T) {
	h := newHarness(t, 0, Options{
		Topics:     telemetry.Topics{Domain: "fleet", Alerts: "alerts"},
		MachineIDs: []string{"E-1"},
	})
	var got []telemetry.Message
	h.client.Subscribe("fleet/E-1/status", func(_ context.Context, m telemetry.Message) error {
		got = append(got, m)
		return nil
	})

	require.NoError(t, h.client.Connect(context.Background()))
	h.clock.Advance(testInterval)

	require.Len(t, got, 1)
	s, ok := got[0].Status()
	require.True(t, ok)
	bands := telemetry.DefaultBands()
	assert.Equal(t, "E-1", s.MachineID)
	assert.True(t, bands.Temperature.Contains(s.Temperature), "temperature %v", s.Temperature)
	assert.True(t, bands.Pressure.Contains(s.Pressure), "pressure %v", s.Pressure)
	for _, sup := range telemetry.Supplies {
		assert.GreaterOrEqual(t, s.Level(sup), 0.0)
		assert.LessOrEqual(t, s.Level(sup), 100.0)
	}
}

func TestDriverNoTicksAfterDisconnect(t *testing.T) {
	h := newHarness(t, 0, Options{MachineIDs: []string{"A-001"}})
	var n atomic.Int64
	h.client.Subscribe(telemetry.DefaultTopics().Status("A-001"), counter(&n))

	require.NoError(t, h.client.Connect(context.Background()))
	h.clock.Advance(2 * testInterval)
	require.EqualValues(t, 2, n.Load())

	h.client.Disconnect()
	assert.False(t, h.driver.Running())
	assert.Zero(t, h.clock.Tickers())

	h.clock.Advance(10 * testInterval)
	assert.EqualValues(t, 2, n.Load())
	assert.Equal(t, 0.0, testutil.ToFloat64(h.metrics.Running))
}

func TestDriverConcurrentConnectSingleTimer(t *testing.T) {
	h := newHarness(t, time.Second, Options{MachineIDs: []string{"A-001", "B-001"}})
	var n atomic.Int64
	for _, id := range []string{"A-001", "B-001"} {
		h.client.Subscribe(telemetry.DefaultTopics().Status(id), counter(&n))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = h.client.Connect(ctx)
		}()
	}
	require.NoError(t, h.clock.BlockUntilSleepers(ctx, 1))
	h.clock.Advance(time.Second)
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, 1, h.clock.Tickers())

	// 10 intervals with two machines is 20 status updates from one driver.
	h.clock.Advance(10 * testInterval)
	assert.EqualValues(t, 20, n.Load())
	assert.Equal(t, 10.0, testutil.ToFloat64(h.metrics.Ticks))
}

func TestDriverStartStopIdempotent(t *testing.T) {
	h := newHarness(t, 0, Options{MachineIDs: []string{"A-001"}})
	ctx := context.Background()
	h.driver.Start(ctx)
	h.driver.Start(ctx)
	assert.Equal(t, 1, h.clock.Tickers())
	h.driver.Stop()
	h.driver.Stop()
	assert.Zero(t, h.clock.Tickers())
}

func TestDriverSupplyBoundsOverThousandTicks(t *testing.T) {
	ids := []string{"A-001", "A-002", "B-001"}
	h := newHarness(t, 0, Options{MachineIDs: ids})
	var statuses int
	for _, id := range ids {
		h.client.Subscribe(telemetry.DefaultTopics().Status(id), func(_ context.Context, m telemetry.Message) error {
			s, ok := m.Status()
			require.True(t, ok)
			for _, sup := range telemetry.Supplies {
				v := s.Level(sup)
				if v < 0 || v > 100 {
					t.Errorf("%s %s level %v out of range", s.MachineID, sup, v)
				}
			}
			assert.GreaterOrEqual(t, s.QueueLength, 0)
			assert.Less(t, s.QueueLength, 5)
			statuses++
			return nil
		})
	}

	require.NoError(t, h.client.Connect(context.Background()))
	h.clock.Advance(1000 * testInterval)
	assert.Equal(t, 3000, statuses)
}

func TestDriverAlertsOverTenThousandTicks(t *testing.T) {
	ids := []string{"A-001", "A-002", "B-001"}
	h := newHarness(t, 0, Options{
		Topics:           telemetry.Topics{Domain: "fleet", Alerts: "alerts"},
		MachineIDs:       ids,
		AlertProbability: telemetry.DefaultAlertProbability,
	})
	valid := map[telemetry.Supply]bool{}
	for _, s := range telemetry.Supplies {
		valid[s] = true
	}
	var alerts []telemetry.AlertNotice
	h.client.Subscribe("alerts", func(_ context.Context, m telemetry.Message) error {
		a, ok := m.Alert()
		require.True(t, ok)
		alerts = append(alerts, a)
		return nil
	})

	require.NoError(t, h.client.Connect(context.Background()))
	h.clock.Advance(10_000 * testInterval)

	require.NotEmpty(t, alerts)
	for _, a := range alerts {
		assert.True(t, valid[a.Supply], "unexpected supply %q", a.Supply)
		assert.Contains(t, ids, a.MachineID)
		assert.Equal(t, telemetry.AlertLowSupply, a.Type)
	}
}

func TestDriverUsageProbability(t *testing.T) {
	h := newHarness(t, 0, Options{MachineIDs: []string{"A-001"}, UsageProbability: 1})
	var n atomic.Int64
	h.client.Subscribe(telemetry.DefaultTopics().Usage("A-001"), counter(&n))
	require.NoError(t, h.client.Connect(context.Background()))
	h.clock.Advance(3 * testInterval)
	assert.EqualValues(t, 3, n.Load())
}

func TestDriverTickWhileDisconnectedPublishesNothing(t *testing.T) {
	h := newHarness(t, 0, Options{MachineIDs: []string{"A-001"}, UsageProbability: 1, AlertProbability: 1})
	var n atomic.Int64
	for _, topic := range h.driver.Topics() {
		h.client.Subscribe(topic, counter(&n))
	}
	h.driver.Tick(context.Background())
	assert.Zero(t, n.Load())
	assert.Zero(t, testutil.ToFloat64(h.metrics.PublishErrors))
}

func TestDriverZeroProbabilitiesPublishStatusOnly(t *testing.T) {
	h := newHarness(t, 0, Options{MachineIDs: []string{"A-001"}})
	var status, other atomic.Int64
	topics := telemetry.DefaultTopics()
	h.client.Subscribe(topics.Status("A-001"), counter(&status))
	h.client.Subscribe(topics.Usage("A-001"), counter(&other))
	h.client.Subscribe(topics.Alerts, counter(&other))

	require.NoError(t, h.client.Connect(context.Background()))
	h.clock.Advance(50 * testInterval)
	assert.EqualValues(t, 50, status.Load())
	assert.Zero(t, other.Load())
}
