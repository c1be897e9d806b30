package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"coffeefleet-sim/internal/clock"
	"coffeefleet-sim/internal/logging"
	"coffeefleet-sim/internal/telemetry"
)

var (
	// ErrNotConnected is returned by Publish while the client is not
	// connected. The publish is dropped; it is not a failure of the caller.
	ErrNotConnected = errors.New("broker: not connected")
	// ErrConnectAborted is returned by Connect when Disconnect cancels a
	// pending connection attempt.
	ErrConnectAborted = errors.New("broker: connect aborted")
	// ErrNilPayload is returned by Publish when payload is nil.
	ErrNilPayload = errors.New("broker: nil payload")
)

// DefaultConnectDelay matches the simulated broker handshake.
const DefaultConnectDelay = time.Second

// State is the connection state of a Client.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Driver is started when the client connects and stopped when it
// disconnects. Start and Stop must be idempotent.
type Driver interface {
	Start(ctx context.Context)
	Stop()
}

// Options configures a Client.
type Options struct {
	Clock        clock.Clock
	ConnectDelay time.Duration
	Logger       *slog.Logger
	Metrics      *Metrics
}

// Client is the simulated MQTT client: a topic registry, a connection gate
// for publishing and the owner of the simulation driver.
type Client struct {
	reg     *Registry
	clock   clock.Clock
	delay   time.Duration
	log     *slog.Logger
	metrics *Metrics

	// lifecycle serializes the transitions that start or stop the driver.
	lifecycle sync.Mutex

	mu      sync.Mutex
	state   State
	pending *attempt
	driver  Driver
	lastTS  time.Time
}

type attempt struct {
	done   chan struct{}
	cancel context.CancelFunc
	err    error
	// waiters counts callers still blocked on done.
	waiters int
}

// NewClient creates a disconnected client.
func NewClient(opts Options) *Client {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.ConnectDelay < 0 {
		opts.ConnectDelay = 0
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}
	c := &Client{
		reg:     NewRegistry(),
		clock:   opts.Clock,
		delay:   opts.ConnectDelay,
		log:     opts.Logger,
		metrics: opts.Metrics,
	}
	c.reg.onChange = func(n int) { c.metrics.Subscriptions.Set(float64(n)) }
	c.metrics.RecordState(Disconnected)
	return c
}

// Registry exposes the client's topic registry.
func (c *Client) Registry() *Registry { return c.reg }

// SetDriver attaches the driver the client starts on connect. If the client
// is already connected the driver is started immediately.
func (c *Client) SetDriver(d Driver) {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()
	c.mu.Lock()
	old := c.driver
	c.driver = d
	connected := c.state == Connected
	c.mu.Unlock()
	if old != nil && old != d {
		old.Stop()
	}
	if connected && d != nil {
		d.Start(logging.NewContext(context.Background(), c.log))
	}
}

// Subscribe registers h on topic. It works in any connection state.
func (c *Client) Subscribe(topic string, h Handler) *Subscription {
	sub := c.reg.Subscribe(topic, h)
	c.log.Debug("subscribed", "topic", topic)
	return sub
}

// Unsubscribe removes sub. Unknown subscriptions are ignored.
func (c *Client) Unsubscribe(sub *Subscription) {
	c.reg.Unsubscribe(sub)
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected reports whether publishes are currently accepted.
func (c *Client) IsConnected() bool {
	return c.State() == Connected
}

// Connect moves the client to connected after the configured delay and starts
// the driver. Concurrent callers share one attempt; calling it while connected
// returns nil without restarting the driver. A caller whose ctx ends stops
// waiting with ctx.Err(); the attempt itself is abandoned only once every
// waiting caller has given up, or when Disconnect aborts it.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case Connected:
		c.mu.Unlock()
		return nil
	case Connecting:
		a := c.pending
		a.waiters++
		c.mu.Unlock()
		return c.await(ctx, a)
	}
	actx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a := &attempt{done: make(chan struct{}), cancel: cancel, waiters: 1}
	c.pending = a
	c.setStateLocked(Connecting)
	c.mu.Unlock()
	c.metrics.ConnectAttempts.Inc()
	c.log.Info("connecting to broker", "delay", c.delay)

	go c.dial(actx, a)
	return c.await(ctx, a)
}

// dial completes attempt a once the connect delay has passed.
func (c *Client) dial(ctx context.Context, a *attempt) {
	err := c.clock.Sleep(ctx, c.delay)
	a.cancel()

	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending != a {
		// Disconnect or the last waiter already resolved this attempt.
		return
	}
	c.pending = nil
	if err != nil {
		a.err = fmt.Errorf("connect: %w", err)
		c.setStateLocked(Disconnected)
		close(a.done)
		c.log.Warn("connect failed", "err", err)
		return
	}
	c.setStateLocked(Connected)
	if c.driver != nil {
		c.driver.Start(logging.NewContext(context.WithoutCancel(ctx), c.log))
	}
	close(a.done)
	c.log.Info("connected to broker")
}

// await waits for a to resolve or for ctx to end.
func (c *Client) await(ctx context.Context, a *attempt) error {
	select {
	case <-a.done:
		return a.err
	case <-ctx.Done():
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending != a {
		// resolved while we were giving up
		return a.err
	}
	err := fmt.Errorf("connect: %w", ctx.Err())
	a.waiters--
	if a.waiters == 0 {
		c.pending = nil
		a.err = err
		a.cancel()
		c.setStateLocked(Disconnected)
		close(a.done)
		c.log.Warn("connect abandoned", "err", ctx.Err())
	}
	return err
}

// Disconnect aborts a pending connect, stops the driver and marks the client
// disconnected. It is safe to call in any state. Because it waits for an
// in-flight tick to finish, it must not be called synchronously from a
// handler running on the driver's tick.
func (c *Client) Disconnect() {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	c.mu.Lock()
	if a := c.pending; a != nil {
		c.pending = nil
		a.err = ErrConnectAborted
		a.cancel()
		close(a.done)
	}
	was := c.state
	c.setStateLocked(Disconnected)
	d := c.driver
	c.mu.Unlock()

	if d != nil {
		d.Stop()
	}
	if was != Disconnected {
		c.log.Info("disconnected from broker")
	}
}

// Publish delivers payload to the subscribers of topic in registration
// order. Handler failures are logged and do not reach the caller. While the
// client is not connected the message is dropped and ErrNotConnected is
// returned. A nil payload is rejected with ErrNilPayload.
func (c *Client) Publish(ctx context.Context, topic string, payload telemetry.Payload) error {
	if payload == nil {
		return ErrNilPayload
	}
	c.mu.Lock()
	if c.state != Connected {
		c.mu.Unlock()
		c.metrics.Rejected.Inc()
		c.log.Warn("cannot publish, not connected to broker", "topic", topic)
		return ErrNotConnected
	}
	now := c.clock.Now()
	if now.Before(c.lastTS) {
		now = c.lastTS
	}
	c.lastTS = now
	c.mu.Unlock()

	msg := telemetry.Message{
		ID:        uuid.NewString(),
		Topic:     topic,
		Payload:   payload,
		Timestamp: now,
	}
	c.metrics.RecordPublished(payload.Kind())
	c.deliver(ctx, msg)
	return nil
}

func (c *Client) deliver(ctx context.Context, msg telemetry.Message) {
	for _, sub := range c.reg.Subscriptions(msg.Topic) {
		if err := invoke(ctx, sub.handler, msg); err != nil {
			c.metrics.HandlerFailures.Inc()
			c.log.Error("message handler failed", "topic", msg.Topic, "subscription", sub.id, "err", err)
			continue
		}
		c.metrics.Delivered.Inc()
	}
}

// invoke runs h and turns a panic into an error.
func invoke(ctx context.Context, h Handler, msg telemetry.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v\n%s", r, debug.Stack())
		}
	}()
	return h(ctx, msg)
}

func (c *Client) setStateLocked(s State) {
	c.state = s
	c.metrics.RecordState(s)
}
