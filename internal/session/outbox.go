package session

import (
	"log/slog"
	"sync"
)

// Outbox runs posted tasks one at a time on its own goroutine, after the
// posting call has returned. Flush blocks until every posted task has run.
type Outbox struct {
	logger *slog.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []func()
	running bool
	closed  bool
}

// NewOutbox starts an Outbox.
func NewOutbox(logger *slog.Logger) *Outbox {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Outbox{logger: logger}
	o.cond = sync.NewCond(&o.mu)
	go o.run()
	return o
}

// Post queues fn. It reports false when the outbox has been closed.
func (o *Outbox) Post(fn func()) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return false
	}
	o.queue = append(o.queue, fn)
	o.cond.Broadcast()
	return true
}

// Flush waits until the queue is empty and no task is running.
func (o *Outbox) Flush() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for len(o.queue) > 0 || o.running {
		o.cond.Wait()
	}
}

// Close rejects further posts. Tasks already queued still run.
func (o *Outbox) Close() {
	o.mu.Lock()
	o.closed = true
	o.cond.Broadcast()
	o.mu.Unlock()
}

func (o *Outbox) run() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for {
		for len(o.queue) == 0 && !o.closed {
			o.cond.Wait()
		}
		if len(o.queue) == 0 {
			return
		}
		fn := o.queue[0]
		o.queue = o.queue[1:]
		o.running = true
		o.mu.Unlock()
		o.exec(fn)
		o.mu.Lock()
		o.running = false
		o.cond.Broadcast()
	}
}

func (o *Outbox) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("session outbox task panicked", slog.Any("panic", r))
		}
	}()
	fn()
}
