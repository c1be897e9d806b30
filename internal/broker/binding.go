package broker

import "sync"

// Binding ties one subscription to a consumer's active lifetime. Activate
// registers exactly once and Deactivate unregisters exactly once, however
// often either is called.
type Binding struct {
	subscriber Subscriber

	mu      sync.Mutex
	topic   string
	handler Handler
	sub     *Subscription
}

// NewBinding creates an inactive binding.
func NewBinding(s Subscriber, topic string, h Handler) *Binding {
	return &Binding{subscriber: s, topic: topic, handler: h}
}

// Activate subscribes the binding if it is not already active.
func (b *Binding) Activate() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sub != nil {
		return
	}
	b.sub = b.subscriber.Subscribe(b.topic, b.handler)
}

// Deactivate unsubscribes the binding if it is active.
func (b *Binding) Deactivate() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sub == nil {
		return
	}
	b.sub.Close()
	b.sub = nil
}

// Rebind swaps the topic and handler. An active binding drops its old
// subscription before registering the new one.
func (b *Binding) Rebind(topic string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.topic, b.handler = topic, h
	if b.sub == nil {
		return
	}
	b.sub.Close()
	b.sub = b.subscriber.Subscribe(topic, h)
}

// Active reports whether the binding currently holds a subscription.
func (b *Binding) Active() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sub != nil
}

// Topic returns the bound topic.
func (b *Binding) Topic() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.topic
}

// Scope groups the bindings of one consumer. Closing the scope deactivates
// every binding it created; bindings added after Close are never activated.
type Scope struct {
	subscriber Subscriber

	mu       sync.Mutex
	bindings []*Binding
	closed   bool
}

// NewScope returns an open scope over s.
func NewScope(s Subscriber) *Scope {
	return &Scope{subscriber: s}
}

// Bind creates and activates a binding owned by the scope.
func (sc *Scope) Bind(topic string, h Handler) *Binding {
	b := NewBinding(sc.subscriber, topic, h)
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.closed {
		return b
	}
	b.Activate()
	sc.bindings = append(sc.bindings, b)
	return b
}

// Len returns the number of bindings owned by the scope.
func (sc *Scope) Len() int {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return len(sc.bindings)
}

// Close deactivates all bindings. It is idempotent.
func (sc *Scope) Close() {
	sc.mu.Lock()
	bindings := sc.bindings
	sc.bindings = nil
	sc.closed = true
	sc.mu.Unlock()
	for _, b := range bindings {
		b.Deactivate()
	}
}
