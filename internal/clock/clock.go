// Package clock abstracts time so simulation ticks can be driven by tests.
package clock

import (
	"context"
	"sync"
	"time"
)

// Clock is the time source used by the broker and the simulation driver.
type Clock interface {
	Now() time.Time
	// Every calls fn every d until the returned Ticker is stopped.
	Every(d time.Duration, fn func(time.Time)) Ticker
	// Sleep blocks for d or until ctx is done.
	Sleep(ctx context.Context, d time.Duration) error
}

// Ticker is a handle to a periodic callback.
type Ticker interface {
	// Stop cancels the callback. When Stop returns no further call to fn
	// starts, and a call already running has finished.
	Stop()
}

// Real is the wall clock.
type Real struct{}

// New returns the wall clock.
func New() Clock { return Real{} }

func (Real) Now() time.Time { return time.Now() }

func (Real) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (Real) Every(d time.Duration, fn func(time.Time)) Ticker {
	rt := &realTicker{
		ticker: time.NewTicker(d),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go rt.loop(fn)
	return rt
}

type realTicker struct {
	ticker *time.Ticker
	quit   chan struct{}
	done   chan struct{}
	once   sync.Once
}

func (t *realTicker) loop(fn func(time.Time)) {
	defer close(t.done)
	for {
		select {
		case now := <-t.ticker.C:
			// quit wins over a tick that became ready at the same time
			select {
			case <-t.quit:
				return
			default:
			}
			fn(now)
		case <-t.quit:
			return
		}
	}
}

func (t *realTicker) Stop() {
	t.once.Do(func() {
		t.ticker.Stop()
		close(t.quit)
	})
	<-t.done
}
