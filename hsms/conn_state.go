package hsms

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/looplab/fsm"
)

// ConnState represents the state of an HSMS connection.
type ConnState uint32

const (
	// NotConnectedState indicates that there is no transport.
	NotConnectedState ConnState = iota
	// ConnectedState indicates that the transport is up but the session is not selected.
	// Only control messages may be exchanged.
	ConnectedState
	// SelectedState indicates that the session is selected and data messages may be exchanged.
	SelectedState
)

// IsNotConnected returns if the current state is not connected.
func (cs ConnState) IsNotConnected() bool { return cs == NotConnectedState }

// IsConnected returns if the transport is up, selected or not.
func (cs ConnState) IsConnected() bool { return cs == ConnectedState || cs == SelectedState }

// IsSelected returns if the current state is selected.
func (cs ConnState) IsSelected() bool { return cs == SelectedState }

func (cs ConnState) String() string {
	switch cs {
	case NotConnectedState:
		return "not-connected"
	case ConnectedState:
		return "connected"
	case SelectedState:
		return "selected"
	default:
		return "unknown"
	}
}

func parseConnState(s string) ConnState {
	switch s {
	case "connected":
		return ConnectedState
	case "selected":
		return SelectedState
	default:
		return NotConnectedState
	}
}

// state machine events
const (
	evConnect    = "connect"
	evSelect     = "select"
	evDeselect   = "deselect"
	evDisconnect = "disconnect"
)

// ConnStateChangeHandler is invoked synchronously on every state transition.
// It must not trigger another transition.
type ConnStateChangeHandler func(prevState ConnState, newState ConnState)

// ConnStateMgr runs the HSMS connection state machine:
//
//	NotConnected --connect--> Connected --select--> Selected
//	Selected --deselect--> Connected
//	Connected, Selected --disconnect--> NotConnected
//
// Transitions are made by the connection's event loop. State and WaitState may be called from
// any goroutine.
type ConnStateMgr struct {
	fsm      *fsm.FSM
	state    atomic.Uint32
	mu       sync.Mutex
	changed  chan struct{} // closed and replaced on every transition
	handlers []ConnStateChangeHandler
}

// NewConnStateMgr creates a state machine in NotConnectedState.
func NewConnStateMgr(handlers ...ConnStateChangeHandler) *ConnStateMgr {
	cs := &ConnStateMgr{
		changed:  make(chan struct{}),
		handlers: handlers,
	}

	cs.fsm = fsm.NewFSM(
		NotConnectedState.String(),
		fsm.Events{
			{Name: evConnect, Src: []string{NotConnectedState.String()}, Dst: ConnectedState.String()},
			{Name: evSelect, Src: []string{ConnectedState.String()}, Dst: SelectedState.String()},
			{Name: evDeselect, Src: []string{SelectedState.String()}, Dst: ConnectedState.String()},
			{Name: evDisconnect, Src: []string{ConnectedState.String(), SelectedState.String()}, Dst: NotConnectedState.String()},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				cs.onEnter(parseConnState(e.Src), parseConnState(e.Dst))
			},
		},
	)

	return cs
}

func (cs *ConnStateMgr) onEnter(prev, next ConnState) {
	cs.state.Store(uint32(next))

	cs.mu.Lock()
	close(cs.changed)
	cs.changed = make(chan struct{})
	handlers := cs.handlers
	cs.mu.Unlock()

	for _, h := range handlers {
		h(prev, next)
	}
}

// AddHandler adds handlers invoked on every subsequent transition.
func (cs *ConnStateMgr) AddHandler(handlers ...ConnStateChangeHandler) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	merged := make([]ConnStateChangeHandler, 0, len(cs.handlers)+len(handlers))
	merged = append(merged, cs.handlers...)
	cs.handlers = append(merged, handlers...)
}

// State returns the current state.
func (cs *ConnStateMgr) State() ConnState {
	return ConnState(cs.state.Load())
}

// WaitState blocks until the state equals state or ctx is done.
func (cs *ConnStateMgr) WaitState(ctx context.Context, state ConnState) error {
	for {
		cs.mu.Lock()
		changed := cs.changed
		cs.mu.Unlock()

		if cs.State() == state {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		}
	}
}

func (cs *ConnStateMgr) transit(event string) error {
	err := cs.fsm.Event(context.Background(), event)
	if err == nil {
		return nil
	}

	var noTransition fsm.NoTransitionError
	if errors.As(err, &noTransition) {
		return nil
	}

	return ErrInvalidTransition
}

// ToConnected moves NotConnected to Connected.
func (cs *ConnStateMgr) ToConnected() error {
	return cs.transit(evConnect)
}

// ToSelected moves Connected to Selected.
func (cs *ConnStateMgr) ToSelected() error {
	return cs.transit(evSelect)
}

// ToDeselected moves Selected back to Connected.
func (cs *ConnStateMgr) ToDeselected() error {
	return cs.transit(evDeselect)
}

// ToNotConnected moves any connected state to NotConnected. It is a no-op when already
// not connected.
func (cs *ConnStateMgr) ToNotConnected() {
	if cs.State().IsNotConnected() {
		return
	}
	_ = cs.transit(evDisconnect)
}
