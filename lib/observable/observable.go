// Package observable provides an ordered multi-subscriber broadcast
// primitive. Subscribers are invoked synchronously in registration order and
// may safely subscribe or unsubscribe from inside a handler.
package observable

import "sync"

// UnsubscribeFunc removes a subscription. Safe to call more than once.
type UnsubscribeFunc func()

type handler[T any] struct {
	fn      func(T)
	removed bool
}

// Observable delivers fired values to every current subscriber in the order
// the subscriptions were made.
type Observable[T any] struct {
	mu       sync.Mutex
	handlers []*handler[T]
}

func New[T any]() *Observable[T] {
	return &Observable[T]{}
}

// Subscribe registers fn and returns an idempotent unsubscribe.
func (o *Observable[T]) Subscribe(fn func(T)) UnsubscribeFunc {
	h := &handler[T]{fn: fn}
	o.mu.Lock()
	o.handlers = append(o.handlers, h)
	o.mu.Unlock()

	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if h.removed {
			return
		}
		h.removed = true
		for i, cur := range o.handlers {
			if cur == h {
				o.handlers = append(o.handlers[:i], o.handlers[i+1:]...)
				break
			}
		}
	}
}

// Fire delivers value to every subscriber registered at the time of the
// call. Handlers added during delivery are not invoked by this Fire;
// handlers removed during delivery are skipped.
func (o *Observable[T]) Fire(value T) {
	o.mu.Lock()
	snapshot := make([]*handler[T], len(o.handlers))
	copy(snapshot, o.handlers)
	o.mu.Unlock()

	for _, h := range snapshot {
		o.mu.Lock()
		removed := h.removed
		o.mu.Unlock()
		if removed {
			continue
		}
		h.fn(value)
	}
}

// RemoveAll drops every subscription without invoking any handler.
func (o *Observable[T]) RemoveAll() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, h := range o.handlers {
		h.removed = true
	}
	o.handlers = nil
}

// Len reports the current number of subscribers.
func (o *Observable[T]) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.handlers)
}
