package clock

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Fake is a manually advanced clock. Periodic callbacks run on the goroutine
// that calls Advance, so tests observe their effects as soon as Advance
// returns. Stopping a fake ticker does not wait for a callback that another
// goroutine is running through Advance.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	nextID  int
	tickers map[int]*fakeTicker
	sleeps  []*fakeSleep
	changed chan struct{}
}

type fakeTicker struct {
	id     int
	period time.Duration
	next   time.Time
	fn     func(time.Time)
	clock  *Fake
}

type fakeSleep struct {
	until time.Time
	done  chan struct{}
}

// NewFake returns a fake clock starting at start.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start, tickers: make(map[int]*fakeTicker), changed: make(chan struct{})}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) Every(d time.Duration, fn func(time.Time)) Ticker {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	t := &fakeTicker{id: f.nextID, period: d, next: f.now.Add(d), fn: fn, clock: f}
	f.tickers[t.id] = t
	f.notifyLocked()
	return t
}

func (t *fakeTicker) Stop() {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	delete(t.clock.tickers, t.id)
	t.clock.notifyLocked()
}

func (f *Fake) Sleep(ctx context.Context, d time.Duration) error {
	f.mu.Lock()
	if d <= 0 {
		f.mu.Unlock()
		return nil
	}
	s := &fakeSleep{until: f.now.Add(d), done: make(chan struct{})}
	f.sleeps = append(f.sleeps, s)
	f.notifyLocked()
	f.mu.Unlock()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		f.mu.Lock()
		for i, o := range f.sleeps {
			if o == s {
				f.sleeps = append(f.sleeps[:i], f.sleeps[i+1:]...)
				break
			}
		}
		f.notifyLocked()
		f.mu.Unlock()
		return ctx.Err()
	}
}

// Advance moves the clock forward by d, waking sleepers and running every
// ticker callback that falls due, in time order.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)
	f.mu.Unlock()

	for {
		f.mu.Lock()
		t := f.nextDueLocked(target)
		if t == nil {
			f.now = target
			f.wakeSleepersLocked()
			f.mu.Unlock()
			return
		}
		f.now = t.next
		t.next = t.next.Add(t.period)
		f.wakeSleepersLocked()
		fn, at := t.fn, f.now
		f.mu.Unlock()

		fn(at)
	}
}

func (f *Fake) nextDueLocked(target time.Time) *fakeTicker {
	var due []*fakeTicker
	for _, t := range f.tickers {
		if !t.next.After(target) {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].next.Equal(due[j].next) {
			return due[i].id < due[j].id
		}
		return due[i].next.Before(due[j].next)
	})
	return due[0]
}

func (f *Fake) wakeSleepersLocked() {
	kept := f.sleeps[:0]
	for _, s := range f.sleeps {
		if !s.until.After(f.now) {
			close(s.done)
			continue
		}
		kept = append(kept, s)
	}
	f.sleeps = kept
	f.notifyLocked()
}

// Tickers reports how many periodic callbacks are registered.
func (f *Fake) Tickers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tickers)
}

// BlockUntilSleepers waits until at least n goroutines are blocked in Sleep
// or ctx is done.
func (f *Fake) BlockUntilSleepers(ctx context.Context, n int) error {
	for {
		f.mu.Lock()
		if len(f.sleeps) >= n {
			f.mu.Unlock()
			return nil
		}
		ch := f.changed
		f.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (f *Fake) notifyLocked() {
	close(f.changed)
	f.changed = make(chan struct{})
}
