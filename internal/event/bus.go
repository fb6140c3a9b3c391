// Package event provides a synchronous publish/subscribe bus with derived
// (filtered and mapped) streams.
//
// Publish calls listeners on the publishing goroutine, in registration order,
// over a snapshot of the subscriber list taken when the call starts. Listeners
// may subscribe, unsubscribe or publish again from inside a callback.
package event

import "sync"

// Listener is a subscription identity. The same listener may be registered
// more than once; Unsubscribe removes every registration of it.
type Listener[T any] struct {
	fn func(T)
}

// NewListener wraps fn in a Listener.
func NewListener[T any](fn func(T)) *Listener[T] {
	return &Listener[T]{fn: fn}
}

// SubscribeOption configures a registration.
type SubscribeOption func(*subscribeConfig)

type subscribeConfig struct {
	once bool
}

// Once removes the registration right before its first invocation.
func Once() SubscribeOption {
	return func(c *subscribeConfig) {
		c.once = true
	}
}

type registration[T any] struct {
	listener *Listener[T]
	once     bool
	// removed is set under the bus lock; a once registration is claimed by
	// whichever publish removes it first.
	removed bool
}

// Bus is a synchronous event stream of values of type T.
type Bus[T any] struct {
	mu   sync.Mutex
	regs []*registration[T]

	// attach and detach are set on derived buses. They run under mu when
	// the subscriber count moves 0->1 and 1->0, and only ever lock the
	// parent bus.
	attach func()
	detach func()
}

// NewBus creates an empty bus.
func NewBus[T any]() *Bus[T] {
	return &Bus[T]{}
}

// Subscribe registers l and returns it for later Unsubscribe.
func (b *Bus[T]) Subscribe(l *Listener[T], opts ...SubscribeOption) *Listener[T] {
	var cfg subscribeConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.regs) == 0 && b.attach != nil {
		b.attach()
	}
	b.regs = append(b.regs, &registration[T]{listener: l, once: cfg.once})
	return l
}

// SubscribeFunc wraps fn in a new listener and registers it.
func (b *Bus[T]) SubscribeFunc(fn func(T), opts ...SubscribeOption) *Listener[T] {
	return b.Subscribe(NewListener(fn), opts...)
}

// Unsubscribe removes all registrations of l.
func (b *Bus[T]) Unsubscribe(l *Listener[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()
	before := len(b.regs)
	kept := b.regs[:0:0]
	for _, r := range b.regs {
		if r.listener == l {
			r.removed = true
			continue
		}
		kept = append(kept, r)
	}
	b.regs = kept
	if before > 0 && len(kept) == 0 && b.detach != nil {
		b.detach()
	}
}

// Len returns the number of current registrations.
func (b *Bus[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.regs)
}

// Publish delivers v to every listener registered when the call starts.
// A panicking listener aborts delivery to the rest of the snapshot and the
// panic propagates to the caller; once registrations are already gone.
func (b *Bus[T]) Publish(v T) {
	b.mu.Lock()
	snapshot := make([]*registration[T], len(b.regs))
	copy(snapshot, b.regs)
	b.mu.Unlock()

	for _, r := range snapshot {
		if r.once && !b.claim(r) {
			continue
		}
		r.listener.fn(v)
	}
}

// claim removes a once registration, reporting false if a nested publish or
// an Unsubscribe got to it first.
func (b *Bus[T]) claim(r *registration[T]) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if r.removed {
		return false
	}
	r.removed = true
	for i, x := range b.regs {
		if x == r {
			b.regs = append(b.regs[:i:i], b.regs[i+1:]...)
			break
		}
	}
	if len(b.regs) == 0 && b.detach != nil {
		b.detach()
	}
	return true
}
