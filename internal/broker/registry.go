// Package broker is an in-process publish/subscribe client that stands in
// for an MQTT connection. Topics are matched exactly.
package broker

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"coffeefleet-sim/internal/telemetry"
)

// Handler receives a delivered message. A returned error or a panic is
// logged by the publisher and does not stop delivery to other handlers.
type Handler func(ctx context.Context, msg telemetry.Message) error

// Subscriber registers handlers on topics.
type Subscriber interface {
	Subscribe(topic string, h Handler) *Subscription
}

// Publisher delivers payloads to the current subscribers of a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload telemetry.Payload) error
}

// Subscription is the handle returned by Subscribe. Close removes it.
type Subscription struct {
	id      uint64
	topic   string
	handler Handler
	reg     *Registry
	closed  atomic.Bool
}

// Topic returns the topic the subscription listens on.
func (s *Subscription) Topic() string { return s.topic }

// Active reports whether the subscription is still registered.
func (s *Subscription) Active() bool { return !s.closed.Load() }

// Close unregisters the subscription. Closing twice is a no-op.
func (s *Subscription) Close() {
	if s == nil || s.reg == nil {
		return
	}
	s.reg.Unsubscribe(s)
}

// Registry maps topics to subscriptions in registration order.
type Registry struct {
	mu     sync.RWMutex
	topics map[string][]*Subscription
	nextID uint64
	// onChange is called with the number of live subscriptions after every
	// change, outside the lock.
	onChange func(int)
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{topics: make(map[string][]*Subscription)}
}

// Subscribe registers h under topic. The same handler may be registered more
// than once; each registration is delivered to independently.
func (r *Registry) Subscribe(topic string, h Handler) *Subscription {
	r.mu.Lock()
	r.nextID++
	sub := &Subscription{id: r.nextID, topic: topic, handler: h, reg: r}
	r.topics[topic] = append(r.topics[topic], sub)
	n := r.lenLocked()
	r.mu.Unlock()
	r.changed(n)
	return sub
}

// Unsubscribe removes sub from its topic. Unknown or already removed
// subscriptions are ignored. Topics left without subscribers are pruned.
func (r *Registry) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	r.mu.Lock()
	subs := r.topics[sub.topic]
	removed := false
	for i, s := range subs {
		if s == sub {
			subs = append(subs[:i:i], subs[i+1:]...)
			removed = true
			break
		}
	}
	if !removed {
		r.mu.Unlock()
		return
	}
	sub.closed.Store(true)
	if len(subs) == 0 {
		delete(r.topics, sub.topic)
	} else {
		r.topics[sub.topic] = subs
	}
	n := r.lenLocked()
	r.mu.Unlock()
	r.changed(n)
}

// Subscriptions returns a snapshot of the subscriptions on topic in
// registration order.
func (r *Registry) Subscriptions(topic string) []*Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()
	subs := r.topics[topic]
	if len(subs) == 0 {
		return nil
	}
	out := make([]*Subscription, len(subs))
	copy(out, subs)
	return out
}

// Topics lists topics that currently have subscribers, sorted.
func (r *Registry) Topics() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.topics))
	for t := range r.topics {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of live subscriptions across all topics.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lenLocked()
}

func (r *Registry) lenLocked() int {
	n := 0
	for _, subs := range r.topics {
		n += len(subs)
	}
	return n
}

func (r *Registry) changed(n int) {
	if r.onChange != nil {
		r.onChange(n)
	}
}
