package secs1

import (
	"context"
	"errors"

	"github.com/looplab/fsm"
)

// LineState is the state of the block-transfer protocol.
type LineState string

const (
	// Idle: the line is free. Queued messages are sent from here.
	Idle LineState = "idle"
	// WaitEOT: ENQ sent, waiting for the remote to grant the line.
	WaitEOT LineState = "wait_eot"
	// WaitACK: a block was sent, waiting for its acknowledgement.
	WaitACK LineState = "wait_ack"
	// WaitBlockLength: EOT sent, waiting for the length byte of the next block.
	WaitBlockLength LineState = "wait_block_length"
	// WaitBlockData: waiting for the header, body and checksum of a block.
	WaitBlockData LineState = "wait_block_data"
)

func (s LineState) String() string { return string(s) }

// line state machine events
const (
	evSendENQ      = "send_enq"
	evRecvEOT      = "recv_eot"
	evSendDone     = "send_done"
	evRecvENQ      = "recv_enq"
	evRecvLength   = "recv_length"
	evRecvBlock    = "recv_block"
	evReset        = "reset"
	lineEnterState = "enter_state"
)

// lineFSM runs the line state machine:
//
//	idle --send_enq--> wait_eot --recv_eot--> wait_ack --send_done--> idle
//	idle, wait_eot --recv_enq--> wait_block_length --recv_length--> wait_block_data
//	wait_block_data --recv_block--> wait_block_length
//	any --reset--> idle
//
// It is owned by the connection loop.
type lineFSM struct {
	fsm *fsm.FSM
}

func newLineFSM(onChange func(prev, next LineState)) *lineFSM {
	all := []string{Idle.String(), WaitEOT.String(), WaitACK.String(), WaitBlockLength.String(), WaitBlockData.String()}

	return &lineFSM{
		fsm: fsm.NewFSM(
			Idle.String(),
			fsm.Events{
				{Name: evSendENQ, Src: []string{Idle.String()}, Dst: WaitEOT.String()},
				{Name: evRecvEOT, Src: []string{WaitEOT.String()}, Dst: WaitACK.String()},
				{Name: evSendDone, Src: []string{WaitACK.String()}, Dst: Idle.String()},
				{Name: evRecvENQ, Src: []string{Idle.String(), WaitEOT.String()}, Dst: WaitBlockLength.String()},
				{Name: evRecvLength, Src: []string{WaitBlockLength.String()}, Dst: WaitBlockData.String()},
				{Name: evRecvBlock, Src: []string{WaitBlockData.String()}, Dst: WaitBlockLength.String()},
				{Name: evReset, Src: all, Dst: Idle.String()},
			},
			fsm.Callbacks{
				lineEnterState: func(_ context.Context, e *fsm.Event) {
					if onChange != nil {
						onChange(LineState(e.Src), LineState(e.Dst))
					}
				},
			},
		),
	}
}

func (l *lineFSM) current() LineState {
	return LineState(l.fsm.Current())
}

// fire runs event. A transition to the current state is not an error.
func (l *lineFSM) fire(event string) error {
	err := l.fsm.Event(context.Background(), event)

	var noTransition fsm.NoTransitionError
	if err == nil || errors.As(err, &noTransition) {
		return nil
	}

	return err
}

// receiving reports whether a block is being received.
func (l *lineFSM) receiving() bool {
	s := l.current()
	return s == WaitBlockLength || s == WaitBlockData
}
