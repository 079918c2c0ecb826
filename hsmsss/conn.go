package hsmsss

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fabwire/go-secs/gem"
	"github.com/fabwire/go-secs/hsms"
	"github.com/fabwire/go-secs/internal/actor"
	"github.com/fabwire/go-secs/logger"
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
)

const protocolName = "hsms-ss"

// loopInboxSize is the number of closures the connection loop buffers before posters block.
const loopInboxSize = 256

// Connection represents an HSMS-SS (Single Session) connection, implementing the hsms.Connection
// interface.
//
// All protocol state lives on one event loop: inbound bytes, timer expiries and send requests are
// posted to it and run in order. Send calls block the caller only while waiting for a reply.
type Connection struct {
	pctx   context.Context
	cfg    *ConnectionConfig
	logger logger.Logger
	tracer logger.Tracer
	id     string

	loop       *actor.Loop
	stateMgr   *hsms.ConnStateMgr
	dispatcher *hsms.EventDispatcher
	taskMgr    *hsms.TaskManager
	session    *hsms.BaseSession
	sysBytes   hsms.SystemBytesGenerator

	opened   atomic.Bool
	closed   atomic.Bool
	openMu   sync.Mutex
	listenAt atomic.Pointer[string]

	// loop owned
	live       *link
	txTable    *hsms.TransactionTable
	selectID   uint32
	deselectID uint32
	linktestID uint32
	heartbeat  *actor.Timer

	// held passive candidates, keyed by link id
	candidates *xsync.MapOf[string, *link]

	metrics ConnectionMetrics
}

var (
	_ hsms.Connection     = (*Connection)(nil)
	_ hsms.SessionBackend = (*Connection)(nil)
)

// link is one transport with its own accumulator and timers.
type link struct {
	id        string
	transport hsms.Transport
	reader    frameReader
	t7        *actor.Timer
	t8        *actor.Timer
	closed    chan struct{}
	closeOnce sync.Once
}

func (l *link) markClosed() {
	l.closeOnce.Do(func() { close(l.closed) })
}

// startable is implemented by transports that push inbound bytes themselves.
type startable interface {
	Start(onData func([]byte), onClosed func(error))
}

// NewConnection creates a new HSMS-SS Connection with the given context and configuration.
// The context bounds every goroutine of the connection.
func NewConnection(ctx context.Context, cfg *ConnectionConfig) (*Connection, error) {
	if cfg == nil {
		return nil, hsms.ErrConnConfigNil
	}

	role := "host"
	if cfg.isEquip {
		role = "equipment"
	}
	mode := "passive"
	if cfg.isActive {
		mode = "active"
	}

	id := uuid.NewString()
	l := cfg.logger.With("method", protocolName, "role", role, "mode", mode, "conn_id", id)

	conn := &Connection{
		pctx:       ctx,
		cfg:        cfg,
		logger:     l,
		tracer:     cfg.tracer,
		id:         id,
		loop:       actor.New(loopInboxSize),
		dispatcher: hsms.NewEventDispatcher(l),
		taskMgr:    hsms.NewTaskManager(ctx, l),
		candidates: xsync.NewMapOf[string, *link](),
	}

	conn.txTable = hsms.NewTransactionTable(func(d time.Duration, fn func()) hsms.TimerStopper {
		return conn.loop.AfterFunc(d, fn)
	})
	conn.stateMgr = hsms.NewConnStateMgr(conn.traceStateChange)
	conn.session = hsms.NewBaseSession(conn)

	return conn, nil
}

// GetLogger returns the logger associated with the HSMS-SS connection.
func (c *Connection) GetLogger() logger.Logger {
	return c.logger
}

// Metrics returns the metrics associated with the HSMS-SS connection.
func (c *Connection) Metrics() *ConnectionMetrics {
	return &c.metrics
}

// Session returns the single session of the connection.
func (c *Connection) Session() hsms.Session {
	return c.session
}

// State returns the current connection state.
func (c *Connection) State() hsms.ConnState {
	return c.stateMgr.State()
}

// WaitState blocks until the connection reaches state or ctx is done.
func (c *Connection) WaitState(ctx context.Context, state hsms.ConnState) error {
	return c.stateMgr.WaitState(ctx, state)
}

// ListenAddr returns the address the passive role listens on, or "" while not listening.
func (c *Connection) ListenAddr() string {
	if addr := c.listenAt.Load(); addr != nil {
		return *addr
	}

	return ""
}

// HeldConnections returns the number of passive connections held while another is live.
func (c *Connection) HeldConnections() int {
	return c.candidates.Size()
}

// AddEventHandler registers handlers receiving every connection event, in order.
func (c *Connection) AddEventHandler(handlers ...hsms.EventHandler) {
	c.dispatcher.AddHandler(handlers...)
}

// AddStateChangeHandler registers handlers invoked on every state transition. They run on the
// connection loop and must not block or call back into the connection.
func (c *Connection) AddStateChangeHandler(handlers ...hsms.ConnStateChangeHandler) {
	c.stateMgr.AddHandler(handlers...)
}

// DeviceID returns the configured device id.
func (c *Connection) DeviceID() uint16 {
	return c.cfg.deviceID
}

// Open starts the connection. The active role dials the remote and selects the session,
// reconnecting after T5 whenever the transport is lost. The passive role listens and accepts.
//
// If waitSelected is true, Open blocks until the session is selected or ctx is done.
func (c *Connection) Open(ctx context.Context, waitSelected bool) error {
	if c.closed.Load() {
		return hsms.ErrConnClosed
	}

	c.openMu.Lock()
	if !c.opened.Load() {
		c.start()

		var err error
		if c.cfg.isActive {
			err = c.taskMgr.Go("connectLoop", c.connectLoop)
		} else {
			err = c.taskMgr.Go("listenLoop", c.listenLoop)
		}
		if err != nil {
			c.openMu.Unlock()
			return err
		}
	}
	c.openMu.Unlock()

	if waitSelected {
		return c.stateMgr.WaitState(ctx, hsms.SelectedState)
	}

	return nil
}

// start runs the loop and the event dispatcher.
func (c *Connection) start() {
	if !c.opened.CompareAndSwap(false, true) {
		return
	}

	c.loop.Start()
	go c.dispatcher.Run()
}

// Close tears the connection down. A selected session is separated first. Pending transactions
// fail with hsms.ErrConnClosed and no event handler is invoked after Close returns.
//
// A closed connection can't be opened again.
func (c *Connection) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	c.logger.Debug("close connection")
	c.taskMgr.Stop()

	if c.opened.Load() {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.closeConnTimeout)
		defer cancel()

		err := c.loop.Call(ctx, func() error {
			if c.live != nil && c.stateMgr.State().IsSelected() {
				c.writeControl(c.live, hsms.NewSeparateReq(c.sysBytes.Next()))
			}
			if c.live != nil {
				c.teardown(c.live, nil)
			}
			c.candidates.Range(func(_ string, l *link) bool {
				c.closeCandidate(l, nil)
				return true
			})

			return nil
		})
		if err != nil {
			c.logger.Warn("close on loop failed", "error", err)
		}

		c.dispatcher.Close()
		c.loop.Stop()

		done := make(chan error, 1)
		go func() { done <- c.taskMgr.Wait() }()

		select {
		case err := <-done:
			if err != nil {
				c.logger.Debug("task terminated with error", "error", err)
			}
		case <-ctx.Done():
			c.logger.Error("close timeout", "timeout", c.cfg.closeConnTimeout)
		}
	} else {
		c.dispatcher.Close()
		c.loop.Stop()
	}

	c.logger.Debug("connection closed")

	return nil
}

func (c *Connection) traceStateChange(prev hsms.ConnState, next hsms.ConnState) {
	c.logger.Debug("connection state changes", "prev_state", prev, "state", next)
	c.tracer.State(protocolName, prev.String(), next.String(), "conn_id", c.id)
}

// attach makes tr the live transport, or holds it as a candidate if the passive role already
// has one. Runs on the loop.
func (c *Connection) attach(tr hsms.Transport) *link {
	l := &link{
		id:        uuid.NewString(),
		transport: tr,
		closed:    make(chan struct{}),
	}

	if c.closed.Load() {
		_ = tr.Close()
		l.markClosed()

		return l
	}

	if c.live == nil {
		c.makeLive(l)
	} else {
		c.holdCandidate(l)
	}

	if s, ok := tr.(startable); ok {
		s.Start(
			func(p []byte) { c.loop.Post(func() { c.onData(l, p) }) },
			func(err error) { c.loop.Post(func() { c.onTransportClosed(l, err) }) },
		)
	}

	return l
}

func (c *Connection) makeLive(l *link) {
	c.live = l
	l.reader.Reset()

	if err := c.stateMgr.ToConnected(); err != nil {
		c.logger.Error("failed to enter connected state", "error", err)
	}

	c.logger.Info("connected", "remote_addr", l.transport.RemoteAddr(), "link_id", l.id)
	c.dispatcher.Emit(hsms.ConnectedEvent{RemoteAddr: l.transport.RemoteAddr()})
	c.armT7(l)

	if c.cfg.isActive {
		c.sendSelectReq(l)
	}
}

func (c *Connection) armT7(l *link) {
	l.t7.Stop()
	l.t7 = c.loop.AfterFunc(c.cfg.t7Timeout, func() {
		if c.live != l || c.stateMgr.State().IsSelected() {
			return
		}
		c.logger.Warn("T7 timeout, not selected", "timeout", c.cfg.t7Timeout)
		c.teardown(l, hsms.ErrT7Timeout)
	})
}

func (c *Connection) onData(l *link, p []byte) {
	switch {
	case l == c.live:
	case c.isCandidate(l):
	default:
		return
	}

	l.reader.Feed(p)

	for {
		payload, ok, err := l.reader.Next()
		if err != nil {
			c.logger.Error("invalid frame", "error", err)
			c.failLink(l, err)

			return
		}
		if !ok {
			break
		}

		c.tracer.Bytes(logger.DirRecv, protocolName, payload, "conn_id", c.id)

		if l == c.live {
			c.handleFrame(l, payload)
		} else {
			c.handleCandidateFrame(l, payload)
		}

		// the frame may have closed or promoted the link
		if l != c.live && !c.isCandidate(l) {
			return
		}
	}

	l.t8.Stop()
	if l.reader.Pending() {
		l.t8 = c.loop.AfterFunc(c.cfg.t8Timeout, func() {
			c.logger.Warn("T8 timeout, partial frame", "timeout", c.cfg.t8Timeout)
			c.failLink(l, hsms.ErrT8Timeout)
		})
	}
}

func (c *Connection) onTransportClosed(l *link, err error) {
	switch {
	case l == c.live:
		c.teardown(l, err)
	case c.isCandidate(l):
		c.closeCandidate(l, err)
	}
}

// failLink closes l because of a protocol fault.
func (c *Connection) failLink(l *link, err error) {
	if l == c.live {
		c.teardown(l, err)
	} else {
		c.closeCandidate(l, err)
	}
}

// teardown closes the live link: timers stop, pending transactions fail, the state returns
// to NotConnected. A nil err is a requested close.
func (c *Connection) teardown(l *link, err error) {
	if l != c.live {
		return
	}

	c.live = nil
	c.selectID, c.deselectID, c.linktestID = 0, 0, 0
	l.t7.Stop()
	l.t8.Stop()
	c.heartbeat.Stop()
	l.reader.Reset()

	if cerr := l.transport.Close(); cerr != nil {
		c.logger.Debug("close transport", "error", cerr)
	}

	c.txTable.FailAll(hsms.ErrConnClosed)
	c.metrics.DataMsgInflightCount.Store(0)
	c.stateMgr.ToNotConnected()

	if err != nil {
		c.logger.Warn("disconnected", "link_id", l.id, "error", err)
		c.dispatcher.Emit(hsms.ErrorEvent{Err: err})
	} else {
		c.logger.Info("disconnected", "link_id", l.id)
	}
	c.dispatcher.Emit(hsms.DisconnectedEvent{Err: err})

	l.markClosed()
}

func (c *Connection) handleFrame(l *link, payload []byte) {
	msg, decodeErr := hsms.DecodeMessage(payload)
	if msg == nil {
		c.failLink(l, decodeErr)
		return
	}

	if dataMsg, ok := msg.ToDataMessage(); ok {
		c.handleDataMessage(l, dataMsg, decodeErr)
		return
	}

	ctrlMsg, _ := msg.ToControlMessage()
	c.metrics.incControlMsgRecvCount()
	c.logger.Debug("control message received", hsms.MsgInfo(ctrlMsg, "state", c.stateMgr.State())...)

	switch ctrlMsg.Type() {
	case hsms.SelectReqType:
		c.onSelectReq(l, ctrlMsg)

	case hsms.SelectRspType:
		if !c.resolveControl(l, ctrlMsg) {
			return
		}
		if ctrlMsg.ID() == c.selectID {
			c.selectID = 0
			c.onSelectRsp(l, ctrlMsg)
		}

	case hsms.DeselectReqType:
		if !c.stateMgr.State().IsSelected() {
			c.replyControl(l, ctrlMsg, hsms.NewDeselectRsp, hsms.DeselectStatusNotReady)
			return
		}
		c.replyControl(l, ctrlMsg, hsms.NewDeselectRsp, hsms.DeselectStatusSuccess)
		c.toDeselected(l)

	case hsms.DeselectRspType:
		if !c.resolveControl(l, ctrlMsg) {
			return
		}
		if ctrlMsg.ID() == c.deselectID {
			c.deselectID = 0
			if ctrlMsg.Status() == hsms.DeselectStatusSuccess && c.stateMgr.State().IsSelected() {
				c.toDeselected(l)
			}
		}

	case hsms.LinkTestReqType:
		rsp, _ := hsms.NewLinktestRsp(ctrlMsg)
		c.writeControl(l, rsp)

	case hsms.LinkTestRspType:
		if c.resolveControl(l, ctrlMsg) && ctrlMsg.ID() == c.linktestID {
			c.linktestID = 0
		}

	case hsms.RejectReqType:
		reason := ctrlMsg.Status()
		c.logger.Warn("reject received", "reason", hsms.RejectReasonString(reason), "id", ctrlMsg.ID())
		c.txTable.Fail(ctrlMsg.ID(), &hsms.RejectError{Reason: reason, ID: ctrlMsg.ID()})

	case hsms.SeparateReqType:
		c.logger.Info("separate.req received")
		c.teardown(l, nil)

	default:
		c.rejectUnsupported(l, ctrlMsg)
	}
}

func (c *Connection) handleDataMessage(l *link, msg *hsms.DataMessage, decodeErr error) {
	c.metrics.incDataMsgRecvCount()

	if !c.stateMgr.State().IsSelected() {
		c.logger.Warn("reject data message, not selected", hsms.MsgInfo(msg, "state", c.stateMgr.State())...)
		c.writeReject(l, msg, hsms.RejectNotSelected)

		return
	}

	if decodeErr != nil {
		c.metrics.incDataMsgErrCount()
		c.logger.Error("failed to decode data message", hsms.MsgInfo(msg, "error", decodeErr)...)
		c.dispatcher.Emit(hsms.ErrorEvent{Err: decodeErr})
		c.reportS9(l, gem.S9F7(msg.Header()))

		return
	}

	c.tracer.Message(logger.DirRecv, msg.ToSML())

	if c.s9Enabled() && msg.DeviceID() != c.cfg.deviceID {
		c.logger.Warn("unrecognized device id", hsms.MsgInfo(msg)...)
		c.reportS9(l, gem.S9F1(msg.Header()))

		return
	}

	if c.txTable.Resolve(msg) {
		c.metrics.decDataMsgInflightCount()
		return
	}

	c.dispatcher.Emit(hsms.MessageEvent{Msg: msg})
}

func (c *Connection) onSelectReq(l *link, req *hsms.ControlMessage) {
	if c.stateMgr.State().IsSelected() {
		c.replyControl(l, req, hsms.NewSelectRsp, hsms.SelectStatusAlreadyActive)
		return
	}

	c.replyControl(l, req, hsms.NewSelectRsp, hsms.SelectStatusSuccess)
	if c.live == l {
		c.toSelected(l)
	}
}

func (c *Connection) onSelectRsp(l *link, rsp *hsms.ControlMessage) {
	switch rsp.Status() {
	case hsms.SelectStatusSuccess, hsms.SelectStatusAlreadyActive:
		if !c.stateMgr.State().IsSelected() {
			c.toSelected(l)
		}
	default:
		c.logger.Warn("select rejected by remote", "status", rsp.Status())
		c.teardown(l, fmt.Errorf("%w: status %d", hsms.ErrSelectFailed, rsp.Status()))
	}
}

func (c *Connection) toSelected(l *link) {
	if err := c.stateMgr.ToSelected(); err != nil {
		c.logger.Error("failed to enter selected state", "error", err)
		return
	}
	l.t7.Stop()

	c.dispatcher.Emit(hsms.SelectedEvent{})
	c.scheduleHeartbeat(l)
}

func (c *Connection) toDeselected(l *link) {
	if err := c.stateMgr.ToDeselected(); err != nil {
		c.logger.Error("failed to leave selected state", "error", err)
		return
	}
	c.heartbeat.Stop()

	c.dispatcher.Emit(hsms.DeselectedEvent{})
	c.armT7(l)
}

// resolveControl completes the control transaction answered by rsp. An unmatched response is
// rejected with TransactionNotOpen.
func (c *Connection) resolveControl(l *link, rsp *hsms.ControlMessage) bool {
	if c.txTable.Resolve(rsp) {
		return true
	}

	c.logger.Warn("response without open transaction", hsms.MsgInfo(rsp)...)
	c.writeReject(l, rsp, hsms.RejectTransactionNotOpen)

	return false
}

func (c *Connection) rejectUnsupported(l *link, msg *hsms.ControlMessage) {
	if msg.PType() != 0 {
		c.writeReject(l, msg, hsms.RejectPTypeNotSupported)
	} else {
		c.writeReject(l, msg, hsms.RejectSTypeNotSupported)
	}
}

func (c *Connection) replyControl(
	l *link,
	req *hsms.ControlMessage,
	newRsp func(hsms.HSMSMessage, byte) (*hsms.ControlMessage, error),
	status byte,
) {
	rsp, err := newRsp(req, status)
	if err != nil {
		c.logger.Error("failed to build response", "error", err)
		return
	}
	c.writeControl(l, rsp)
}

func (c *Connection) writeReject(l *link, msg hsms.HSMSMessage, reason byte) {
	c.metrics.incRejectSendCount()
	c.writeControl(l, hsms.NewRejectReq(msg, reason))
}

// writeControl writes a control message from the loop. A write failure tears the link down.
func (c *Connection) writeControl(l *link, msg *hsms.ControlMessage) {
	c.metrics.incControlMsgSendCount()
	_ = c.writeFrame(l, msg.ToBytes())
}

func (c *Connection) writeFrame(l *link, frame []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.t8Timeout)
	defer cancel()

	c.tracer.Bytes(logger.DirSend, protocolName, frame[hsms.LengthFieldSize:], "conn_id", c.id)

	if err := l.transport.Write(ctx, frame); err != nil {
		c.logger.Warn("failed to write frame", "error", err)
		c.failLink(l, err)

		return err
	}

	return nil
}

// startControlTx registers a control transaction bounded by T6. Expiry tears the link down.
func (c *Connection) startControlTx(l *link, id uint32) *hsms.Transaction {
	timeoutErr := &hsms.TimeoutError{Timer: hsms.T6, ID: id}

	return c.txTable.Add(id, c.cfg.t6Timeout, timeoutErr, func(*hsms.Transaction) {
		c.logger.Warn("T6 timeout, control transaction", "id", id)
		if c.live == l {
			c.teardown(l, timeoutErr)
		}
	})
}

func (c *Connection) sendSelectReq(l *link) {
	id := c.sysBytes.Next()
	c.selectID = id
	c.startControlTx(l, id)
	c.writeControl(l, hsms.NewSelectReq(id))
}

func (c *Connection) scheduleHeartbeat(l *link) {
	c.heartbeat.Stop()
	if !c.cfg.isActive || c.cfg.linktestInterval <= 0 {
		return
	}

	c.heartbeat = c.loop.AfterFunc(c.cfg.linktestInterval, func() {
		if c.live != l || !c.stateMgr.State().IsSelected() {
			return
		}

		if c.linktestID == 0 {
			id := c.sysBytes.Next()
			c.linktestID = id
			c.metrics.incLinktestSendCount()
			tx := c.startControlTx(l, id)
			go c.watchLinktest(tx)
			c.writeControl(l, hsms.NewLinktestReq(id))
		}

		if c.live == l {
			c.scheduleHeartbeat(l)
		}
	})
}

func (c *Connection) watchLinktest(tx *hsms.Transaction) {
	res := <-tx.Result()
	if res.Err != nil && !errors.Is(res.Err, hsms.ErrConnClosed) {
		c.metrics.incLinktestErrCount()
	}
}

func (c *Connection) s9Enabled() bool {
	return c.cfg.isEquip && c.cfg.s9Reporting
}

// reportS9 sends a Stream 9 report when the equipment role enables it.
func (c *Connection) reportS9(l *link, report *gem.Message) {
	if !c.s9Enabled() || c.live != l || !c.stateMgr.State().IsSelected() {
		return
	}

	msg, err := hsms.NewDataMessageFrom(report, c.cfg.deviceID, c.sysBytes.Next())
	if err != nil {
		c.logger.Error("failed to build S9 report", "error", err)
		return
	}

	frame, err := msg.MarshalBinary()
	if err != nil {
		c.logger.Error("failed to encode S9 report", "error", err)
		return
	}

	c.tracer.Message(logger.DirSend, msg.ToSML())
	if c.writeFrame(l, frame) == nil {
		c.metrics.incDataMsgSendCount()
	}
}

// onReplyTimeout handles a T3 expiry on the loop.
func (c *Connection) onReplyTimeout(msg *hsms.DataMessage) func(*hsms.Transaction) {
	return func(*hsms.Transaction) {
		c.metrics.incT3TimeoutCount()
		c.metrics.decDataMsgInflightCount()
		c.logger.Warn("T3 timeout", hsms.MsgInfo(msg, "timeout", c.cfg.t3Timeout)...)

		if c.live != nil {
			c.reportS9(c.live, gem.S9F9(msg.Header()))
		}
	}
}

// stateError describes why a message can't be sent right now. Runs on the loop.
func (c *Connection) stateError(op string, needSelected bool) error {
	if c.live == nil {
		return &hsms.StateError{State: hsms.ErrNotConnected.State, Op: op}
	}

	if needSelected && !c.stateMgr.State().IsSelected() {
		return &hsms.StateError{State: hsms.ErrNotSelected.State, Op: op}
	}

	return nil
}

// call runs fn on the loop, mapping a stopped or unopened loop to hsms.ErrConnClosed or
// hsms.ErrNotConnected.
func (c *Connection) call(ctx context.Context, fn func() error) error {
	if c.closed.Load() {
		return hsms.ErrConnClosed
	}

	if !c.opened.Load() {
		return hsms.ErrNotConnected
	}

	err := c.loop.Call(ctx, fn)
	if errors.Is(err, actor.ErrStopped) {
		return hsms.ErrConnClosed
	}

	return err
}

// awaitTx waits for tx. When ctx ends first the transaction is dropped.
func (c *Connection) awaitTx(ctx context.Context, tx *hsms.Transaction) (hsms.HSMSMessage, error) {
	select {
	case res := <-tx.Result():
		return res.Msg, res.Err

	case <-ctx.Done():
		c.loop.Post(func() { c.txTable.Remove(tx.ID()) })
		return nil, ctx.Err()

	case <-c.loop.Done():
		return nil, hsms.ErrConnClosed
	}
}

// controlRequest sends a control request created by newReq and waits for its response.
func (c *Connection) controlRequest(
	ctx context.Context,
	op string,
	needSelected bool,
	newReq func(id uint32) *hsms.ControlMessage,
	register func(id uint32),
) (*hsms.ControlMessage, error) {
	var tx *hsms.Transaction

	err := c.call(ctx, func() error {
		if err := c.stateError(op, needSelected); err != nil {
			return err
		}

		l := c.live
		id := c.sysBytes.Next()
		tx = c.startControlTx(l, id)
		if register != nil {
			register(id)
		}

		return c.writeFrameControl(l, newReq(id))
	})
	if err != nil {
		return nil, err
	}

	rsp, err := c.awaitTx(ctx, tx)
	if err != nil {
		return nil, err
	}

	ctrl, ok := rsp.ToControlMessage()
	if !ok {
		return nil, hsms.ErrInvalidRspMsg
	}

	return ctrl, nil
}

func (c *Connection) writeFrameControl(l *link, msg *hsms.ControlMessage) error {
	c.metrics.incControlMsgSendCount()
	return c.writeFrame(l, msg.ToBytes())
}

// Linktest sends Linktest.req and waits for the response. A response missing for T6 tears the
// transport down.
func (c *Connection) Linktest(ctx context.Context) error {
	c.metrics.incLinktestSendCount()

	_, err := c.controlRequest(ctx, "linktest", false, hsms.NewLinktestReq, nil)
	if err != nil {
		c.metrics.incLinktestErrCount()
	}

	return err
}

// Deselect ends the selected session while keeping the transport. The connection returns to
// Connected and T7 starts again.
func (c *Connection) Deselect(ctx context.Context) error {
	rsp, err := c.controlRequest(ctx, "deselect", true, hsms.NewDeselectReq, func(id uint32) {
		c.deselectID = id
	})
	if err != nil {
		return err
	}

	if rsp.Status() != hsms.DeselectStatusSuccess {
		return fmt.Errorf("%w: status %d", hsms.ErrDeselectFailed, rsp.Status())
	}

	return nil
}

// Separate sends Separate.req and closes the transport. The active role reconnects after T5.
func (c *Connection) Separate(ctx context.Context) error {
	return c.call(ctx, func() error {
		if err := c.stateError("separate", true); err != nil {
			return err
		}

		l := c.live
		if err := c.writeFrameControl(l, hsms.NewSeparateReq(c.sysBytes.Next())); err != nil {
			return err
		}
		c.teardown(l, nil)

		return nil
	})
}
