package hsms

import (
	"context"

	"github.com/fabwire/go-secs/logger"
	"github.com/fabwire/go-secs/secs2"
)

// Connection is the part of the API shared by HSMS-SS and SECS-I connections.
type Connection interface {
	// Open starts the connection: dialing for the active role, listening for the passive role.
	// If waitSelected is true it blocks until the session is selected or ctx is done.
	Open(ctx context.Context, waitSelected bool) error

	// Close tears the connection down. Pending transactions fail with ErrConnClosed and no
	// event handler is invoked after Close returns. Close waits for a running event handler,
	// so a handler that closes the connection does it on a new goroutine.
	Close() error

	// State returns the current connection state.
	State() ConnState

	// Session returns the session used to exchange data messages.
	Session() Session

	// GetLogger returns the logger of the connection.
	GetLogger() logger.Logger
}

// DataMessageHandler handles an inbound data message that did not resolve a pending
// transaction, typically a primary message to reply to.
type DataMessageHandler func(msg *DataMessage, session Session)

// Session sends and receives data messages over a connection.
type Session interface {
	// ID returns the device id used for outgoing messages.
	ID() uint16

	// SendMessage sends a data message. A primary message is assigned fresh system bytes.
	// If the W-bit is set it blocks until the reply arrives, T3 expires, ctx is done or the
	// connection closes; otherwise it returns a nil reply once the message was handed to the
	// transport.
	SendMessage(ctx context.Context, msg *DataMessage) (*DataMessage, error)

	// SendSECS2Message sends a transport independent SECS-II message, see SendMessage.
	SendSECS2Message(ctx context.Context, msg secs2.SECS2Message) (*DataMessage, error)

	// SendDataMessage builds and sends a primary message, see SendMessage.
	SendDataMessage(ctx context.Context, stream byte, function byte, replyExpected bool, item secs2.Item) (*DataMessage, error)

	// Reply sends a message with the given stream and function, echoing the device id and
	// system bytes of primaryMsg.
	Reply(ctx context.Context, primaryMsg *DataMessage, stream byte, function byte, item secs2.Item) error

	// ReplyDataMessage replies to primaryMsg with function code primary+1.
	ReplyDataMessage(ctx context.Context, primaryMsg *DataMessage, item secs2.Item) error

	// AddEventHandler adds handlers receiving every connection event.
	AddEventHandler(handlers ...EventHandler)

	// AddDataMessageHandler adds handlers receiving the data messages of MessageEvent.
	AddDataMessageHandler(handlers ...DataMessageHandler)
}

// SessionBackend is what a connection provides to a BaseSession.
type SessionBackend interface {
	// DeviceID returns the configured device id.
	DeviceID() uint16
	// Send transmits a primary message with fresh system bytes and waits for the reply if the
	// W-bit is set.
	Send(ctx context.Context, msg *DataMessage) (*DataMessage, error)
	// SendReply transmits msg keeping its system bytes.
	SendReply(ctx context.Context, msg *DataMessage) error
	// AddEventHandler registers handlers on the connection's dispatcher.
	AddEventHandler(handlers ...EventHandler)
}

// BaseSession implements Session on top of a SessionBackend.
type BaseSession struct {
	backend SessionBackend
}

var _ Session = (*BaseSession)(nil)

// NewBaseSession creates a session sending through backend.
func NewBaseSession(backend SessionBackend) *BaseSession {
	return &BaseSession{backend: backend}
}

func (s *BaseSession) ID() uint16 {
	return s.backend.DeviceID()
}

func (s *BaseSession) SendMessage(ctx context.Context, msg *DataMessage) (*DataMessage, error) {
	if !msg.IsPrimary() {
		return nil, ErrInvalidReqMsg
	}

	return s.backend.Send(ctx, msg)
}

func (s *BaseSession) SendSECS2Message(ctx context.Context, msg secs2.SECS2Message) (*DataMessage, error) {
	dataMsg, err := NewDataMessageFrom(msg, s.ID(), 0)
	if err != nil {
		return nil, err
	}

	return s.SendMessage(ctx, dataMsg)
}

func (s *BaseSession) SendDataMessage(ctx context.Context, stream byte, function byte, replyExpected bool, item secs2.Item) (*DataMessage, error) {
	msg, err := NewDataMessage(stream, function, replyExpected, s.ID(), 0, item)
	if err != nil {
		return nil, err
	}

	return s.SendMessage(ctx, msg)
}

func (s *BaseSession) Reply(ctx context.Context, primaryMsg *DataMessage, stream byte, function byte, item secs2.Item) error {
	replyMsg, err := NewReplyDataMessage(primaryMsg, stream, function, item)
	if err != nil {
		return err
	}

	return s.backend.SendReply(ctx, replyMsg)
}

func (s *BaseSession) ReplyDataMessage(ctx context.Context, primaryMsg *DataMessage, item secs2.Item) error {
	if !primaryMsg.IsPrimary() || primaryMsg.FunctionCode() == 255 {
		return ErrInvalidReqMsg
	}

	return s.Reply(ctx, primaryMsg, primaryMsg.StreamCode(), primaryMsg.FunctionCode()+1, item)
}

func (s *BaseSession) AddEventHandler(handlers ...EventHandler) {
	s.backend.AddEventHandler(handlers...)
}

func (s *BaseSession) AddDataMessageHandler(handlers ...DataMessageHandler) {
	for _, handler := range handlers {
		s.backend.AddEventHandler(func(ev Event) {
			if msgEv, ok := ev.(MessageEvent); ok {
				handler(msgEv.Msg, s)
			}
		})
	}
}
