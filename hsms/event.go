package hsms

import (
	"sync"

	"github.com/fabwire/go-secs/internal/queue"
	"github.com/fabwire/go-secs/logger"
)

// Event is a notification from a connection. The set of events is closed:
// ConnectedEvent, DisconnectedEvent, SelectedEvent, DeselectedEvent, MessageEvent and ErrorEvent.
type Event interface {
	isEvent()
}

// ConnectedEvent reports that the transport is up.
type ConnectedEvent struct {
	RemoteAddr string
}

// DisconnectedEvent reports that the transport is gone. Err is nil for a requested close.
type DisconnectedEvent struct {
	Err error
}

// SelectedEvent reports that the session entered the Selected state.
type SelectedEvent struct{}

// DeselectedEvent reports that the session left the Selected state but the transport is up.
type DeselectedEvent struct{}

// MessageEvent carries an inbound data message that did not resolve a pending transaction.
type MessageEvent struct {
	Msg *DataMessage
}

// ErrorEvent reports an asynchronous failure: timer expiry, an undecodable frame,
// a protocol violation.
type ErrorEvent struct {
	Err error
}

func (ConnectedEvent) isEvent()    {}
func (DisconnectedEvent) isEvent() {}
func (SelectedEvent) isEvent()     {}
func (DeselectedEvent) isEvent()   {}
func (MessageEvent) isEvent()      {}
func (ErrorEvent) isEvent()        {}

// EventHandler receives connection events.
type EventHandler func(Event)

// EventDispatcher delivers events to handlers in order on its own goroutine.
//
// Emit never blocks, so the connection loop can publish events while a handler is busy,
// and a handler may call back into the connection, e.g. to reply to a message.
type EventDispatcher struct {
	queue  *queue.LockFreeQueue[Event]
	logger logger.Logger

	mu       sync.Mutex
	handlers []EventHandler
	closed   bool
	quit     chan struct{}
	done     chan struct{}

	// held while a handler runs, Close acquires it to wait for that handler
	running sync.Mutex
}

// NewEventDispatcher creates a dispatcher. Call Run to start delivering events.
func NewEventDispatcher(l logger.Logger) *EventDispatcher {
	return &EventDispatcher{
		queue:  queue.NewLockFreeQueue[Event](),
		logger: l,
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// AddHandler appends handlers to the chain.
func (d *EventDispatcher) AddHandler(handlers ...EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	merged := make([]EventHandler, 0, len(d.handlers)+len(handlers))
	merged = append(merged, d.handlers...)
	d.handlers = append(merged, handlers...)
}

// Emit queues ev for delivery. Events emitted after Close are dropped.
func (d *EventDispatcher) Emit(ev Event) {
	if d.isClosed() {
		return
	}
	d.queue.Enqueue(ev)
}

// Run delivers events until Close is called. It is meant to run on its own goroutine.
func (d *EventDispatcher) Run() {
	defer close(d.done)

	for {
		select {
		case <-d.quit:
			return
		case <-d.queue.Signal():
			for {
				ev, ok := d.queue.Dequeue()
				if !ok {
					break
				}
				if !d.deliver(ev) {
					return
				}
			}
		}
	}
}

func (d *EventDispatcher) deliver(ev Event) bool {
	d.mu.Lock()
	handlers := d.handlers
	d.mu.Unlock()

	for _, h := range handlers {
		if !d.invokeOpen(h, ev) {
			return false
		}
	}

	return !d.isClosed()
}

// invokeOpen runs h unless the dispatcher is closed. The closed check and the call happen
// under running, so a Close that returned has no handler left to start.
func (d *EventDispatcher) invokeOpen(h EventHandler, ev Event) bool {
	d.running.Lock()
	defer d.running.Unlock()

	if d.isClosed() {
		return false
	}
	d.invoke(h, ev)

	return true
}

func (d *EventDispatcher) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.closed
}

func (d *EventDispatcher) invoke(h EventHandler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("panic in event handler", "event", ev, "panic", r)
		}
	}()

	h(ev)
}

// Close stops delivery and waits for a running handler to return, so no handler runs after
// Close returns. A handler must not call Close itself; it can call it on a new goroutine.
func (d *EventDispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.quit)
	}
	d.mu.Unlock()

	d.running.Lock()
	d.running.Unlock() //nolint:staticcheck // waits for the running handler
}

// Done is closed once Run returned.
func (d *EventDispatcher) Done() <-chan struct{} {
	return d.done
}
