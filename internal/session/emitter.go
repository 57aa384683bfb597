package session

import "sync"

// Subscription is the token returned by Subscribe. Unsubscribe is safe to call
// more than once.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// Unsubscribe removes the handler.
func (s *Subscription) Unsubscribe() {
	if s == nil || s.cancel == nil {
		return
	}
	s.once.Do(s.cancel)
}

// Emitter fans a value out to registered handlers. Handler order is not
// defined.
type Emitter[T any] struct {
	mu       sync.Mutex
	next     uint64
	handlers map[uint64]func(T)
}

// Subscribe registers fn.
func (e *Emitter[T]) Subscribe(fn func(T)) *Subscription {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.handlers == nil {
		e.handlers = make(map[uint64]func(T))
	}
	id := e.next
	e.next++
	e.handlers[id] = fn
	return &Subscription{cancel: func() {
		e.mu.Lock()
		delete(e.handlers, id)
		e.mu.Unlock()
	}}
}

// Emit calls every handler registered at the time of the call, outside the
// emitter lock so handlers may subscribe or unsubscribe.
func (e *Emitter[T]) Emit(v T) {
	e.mu.Lock()
	snapshot := make([]func(T), 0, len(e.handlers))
	for _, fn := range e.handlers {
		snapshot = append(snapshot, fn)
	}
	e.mu.Unlock()
	for _, fn := range snapshot {
		fn(v)
	}
}

// Len returns the number of registered handlers.
func (e *Emitter[T]) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.handlers)
}
