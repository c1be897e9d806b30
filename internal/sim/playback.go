package sim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"coffeefleet-sim/internal/broker"
	"coffeefleet-sim/internal/clock"
	"coffeefleet-sim/internal/telemetry"
)

// ReplayOptions configures ReplayLog.
type ReplayOptions struct {
	// Speed > 0 scales the recorded gaps (2 replays twice as fast). If
	// Speed <= 0, no artificial delay is inserted.
	Speed   float64
	Clock   clock.Clock
	Metrics *Metrics
}

// ReplayLog re-publishes the JSONL messages in r on their recorded topics
// and returns how many were published.
func ReplayLog(ctx context.Context, r io.Reader, pub broker.Publisher, opts ReplayOptions) (int, error) {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}
	dec := json.NewDecoder(r)
	var prev time.Time
	n := 0
	for {
		var msg telemetry.Message
		if err := dec.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				return n, nil
			}
			return n, fmt.Errorf("replay message %d: %w", n+1, err)
		}
		if !prev.IsZero() && opts.Speed > 0 {
			diff := msg.Timestamp.Sub(prev)
			if opts.Speed != 1 {
				diff = time.Duration(float64(diff) / opts.Speed)
			}
			if diff > 0 {
				if err := opts.Clock.Sleep(ctx, diff); err != nil {
					return n, err
				}
			}
		}
		if err := pub.Publish(ctx, msg.Topic, msg.Payload); err != nil {
			return n, fmt.Errorf("replay %s: %w", msg.Topic, err)
		}
		opts.Metrics.Replayed.Inc()
		n++
		prev = msg.Timestamp
	}
}

// ReplayLogFile opens a file and replays its messages.
func ReplayLogFile(ctx context.Context, path string, pub broker.Publisher, opts ReplayOptions) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return ReplayLog(ctx, f, pub, opts)
}
