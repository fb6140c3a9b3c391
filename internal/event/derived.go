package event

// Filter returns a bus that republishes values of b for which pred holds.
// The derived bus is attached to b only while it has subscribers.
func (b *Bus[T]) Filter(pred func(T) bool) *Bus[T] {
	child := NewBus[T]()
	forward := NewListener(func(v T) {
		if pred(v) {
			child.Publish(v)
		}
	})
	link(b, child, forward)
	return child
}

// Map returns a bus that publishes fn(v) for every value v of parent.
// The derived bus is attached to parent only while it has subscribers.
func Map[T, U any](parent *Bus[T], fn func(T) U) *Bus[U] {
	child := NewBus[U]()
	forward := NewListener(func(v T) {
		child.Publish(fn(v))
	})
	link(parent, child, forward)
	return child
}

func link[T, U any](parent *Bus[T], child *Bus[U], forward *Listener[T]) {
	child.attach = func() {
		parent.Subscribe(forward)
	}
	child.detach = func() {
		parent.Unsubscribe(forward)
	}
}
