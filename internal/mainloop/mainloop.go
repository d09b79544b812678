// Package mainloop provides the interactive context: a FIFO of closures
// executed one at a time on a single goroutine.
package mainloop

import (
	"context"
	"errors"
	"sync"

	"peekraw/internal/logging"
)

// ErrStopped is returned by Call once the loop has stopped.
var ErrStopped = errors.New("main loop stopped")

// Loop runs dispatched closures in order on the goroutine that calls Run.
type Loop struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []func()
	stopped bool
	running bool
	done    chan struct{}
}

// New creates a loop. Nothing runs until Run is called.
func New() *Loop {
	l := &Loop{done: make(chan struct{})}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// Dispatch queues fn and returns immediately. Closures dispatched after the
// loop stopped are dropped.
func (l *Loop) Dispatch(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return
	}
	l.queue = append(l.queue, fn)
	l.cond.Signal()
}

// Call runs fn on the loop and waits for it to finish, the loop to stop, or
// ctx to end.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return ErrStopped
	}
	l.queue = append(l.queue, func() {
		defer close(done)
		fn()
	})
	l.cond.Signal()
	l.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-l.done:
		// The closure may have run just before the loop exited.
		select {
		case <-done:
			return nil
		default:
			return ErrStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes queued closures until ctx is canceled or Stop is called.
// Closures still queued at that point are discarded.
func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()
	if l.running || l.stopped {
		l.mu.Unlock()
		return errors.New("main loop already started")
	}
	l.running = true
	l.mu.Unlock()

	defer close(l.done)

	stop := context.AfterFunc(ctx, l.Stop)
	defer stop()

	for {
		l.mu.Lock()
		for len(l.queue) == 0 && !l.stopped {
			l.cond.Wait()
		}
		if l.stopped {
			dropped := len(l.queue)
			l.queue = nil
			l.mu.Unlock()
			if dropped > 0 {
				logging.Debug("Main loop stopped with %d closures queued", dropped)
			}
			return ctx.Err()
		}
		fn := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		l.invoke(fn)
	}
}

func (l *Loop) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error("Main loop closure panicked: %v", r)
		}
	}()
	fn()
}

// Stop ends Run after the closure currently executing. It is safe to call
// more than once and from any goroutine.
func (l *Loop) Stop() {
	l.mu.Lock()
	l.stopped = true
	l.cond.Broadcast()
	l.mu.Unlock()
}

// Done is closed when Run returns.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}
