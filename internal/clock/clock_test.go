package clock

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestFakeEveryRunsOnAdvance(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	var calls []time.Time
	tk := f.Every(time.Second, func(now time.Time) { calls = append(calls, now) })

	f.Advance(999 * time.Millisecond)
	if len(calls) != 0 {
		t.Fatalf("ticked early: %v", calls)
	}
	f.Advance(2 * time.Second)
	if len(calls) != 2 {
		t.Fatalf("expected 2 ticks, got %d", len(calls))
	}
	if !calls[0].Equal(time.Unix(1, 0)) || !calls[1].Equal(time.Unix(2, 0)) {
		t.Fatalf("unexpected tick times %v", calls)
	}

	tk.Stop()
	tk.Stop()
	f.Advance(10 * time.Second)
	if len(calls) != 2 {
		t.Fatalf("ticker fired after stop: %d", len(calls))
	}
	if f.Tickers() != 0 {
		t.Fatalf("expected no tickers, got %d", f.Tickers())
	}
}

func TestFakeStopFromCallback(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	var n int
	var tk Ticker
	tk = f.Every(time.Second, func(time.Time) {
		n++
		tk.Stop()
	})
	f.Advance(5 * time.Second)
	if n != 1 {
		t.Fatalf("expected one call, got %d", n)
	}
}

func TestFakeSleep(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	errc := make(chan error, 1)
	go func() { errc <- f.Sleep(ctx, time.Second) }()
	if err := f.BlockUntilSleepers(ctx, 1); err != nil {
		t.Fatalf("sleeper never registered: %v", err)
	}
	f.Advance(time.Second)
	if err := <-errc; err != nil {
		t.Fatalf("sleep returned %v", err)
	}
}

func TestFakeSleepCancelled(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := f.Sleep(ctx, time.Hour); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRealTickerStopWaits(t *testing.T) {
	var n atomic.Int32
	tk := New().Every(time.Millisecond, func(time.Time) { n.Add(1) })
	time.Sleep(20 * time.Millisecond)
	tk.Stop()
	after := n.Load()
	time.Sleep(20 * time.Millisecond)
	if n.Load() != after {
		t.Fatalf("ticks continued after Stop: %d -> %d", after, n.Load())
	}
}
