// Package actor runs the state of one connection on a single goroutine.
//
// Every mutation of connection state is posted to a Loop as a closure and executed in posting
// order. Timers created with Loop.AfterFunc run their callback on the loop as well, so callers
// never need a mutex around loop-owned state.
package actor

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrStopped is returned when work is submitted to a stopped loop.
var ErrStopped = errors.New("actor: loop stopped")

// Loop is a serialized executor. The zero value is not usable, create it with New.
type Loop struct {
	tasks    chan func()
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	startMu  sync.Once
}

// New creates a loop whose inbox holds up to buffer pending closures before Post blocks.
func New(buffer int) *Loop {
	if buffer < 1 {
		buffer = 1
	}

	return &Loop{
		tasks: make(chan func(), buffer),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// Start runs the loop on a new goroutine. Calling Start more than once has no effect.
func (l *Loop) Start() {
	l.startMu.Do(func() {
		go l.run()
	})
}

func (l *Loop) run() {
	defer close(l.done)

	for {
		select {
		case <-l.quit:
			return
		case fn := <-l.tasks:
			fn()
		}
	}
}

// Stop asks the loop to exit after the closure currently running. Pending closures are dropped.
// Stop does not wait; use Done for that. It is safe to call Stop from the loop itself.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		close(l.quit)
		// a loop that was never started has nothing to wait for
		l.startMu.Do(func() { close(l.done) })
	})
}

// Done is closed once the loop goroutine has exited.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Stopped reports whether Stop has been called.
func (l *Loop) Stopped() bool {
	select {
	case <-l.quit:
		return true
	default:
		return false
	}
}

// Post queues fn for execution on the loop. It returns false if the loop was stopped.
// Post must not be called from the loop goroutine while the inbox may be full.
func (l *Loop) Post(fn func()) bool {
	if l.Stopped() {
		return false
	}

	select {
	case l.tasks <- fn:
		return true
	case <-l.quit:
		return false
	}
}

// Call runs fn on the loop and waits for its result.
//
// It returns ErrStopped if the loop stops before fn runs, or ctx.Err() if ctx is done first.
// In the latter case fn may still run later.
func (l *Loop) Call(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	if !l.Post(func() { result <- fn() }) {
		return ErrStopped
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		select {
		case err := <-result:
			return err
		default:
			return ErrStopped
		}
	}
}

// Timer is a one-shot timer whose callback runs on the loop.
//
// Stop and the callback both run on the loop, so once Stop returns the callback is
// guaranteed not to run, even if the underlying timer already fired.
type Timer struct {
	timer   *time.Timer
	stopped bool
	fired   bool
}

// AfterFunc arms a one-shot timer calling fn on the loop after d.
// The returned Timer must only be stopped from the loop goroutine.
func (l *Loop) AfterFunc(d time.Duration, fn func()) *Timer {
	t := &Timer{}
	t.timer = time.AfterFunc(d, func() {
		l.Post(func() {
			if t.stopped {
				return
			}
			t.fired = true
			fn()
		})
	})

	return t
}

// Stop cancels the timer. It returns false if the callback already ran or the timer was
// already stopped. A nil Timer is ignored.
func (t *Timer) Stop() bool {
	if t == nil || t.stopped || t.fired {
		return false
	}
	t.stopped = true
	t.timer.Stop()

	return true
}

// Active reports whether the timer is armed and has neither fired nor been stopped.
func (t *Timer) Active() bool {
	return t != nil && !t.stopped && !t.fired
}
