package secs1

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
	"github.com/fabwire/go-secs/internal/queue"
	"github.com/fabwire/go-secs/logger"
	"github.com/google/uuid"
)

const protocolName = "secs-i"

const loopInboxSize = 256

// errRefused closes a passive connection accepted while another one is live.
var errRefused = errors.New("secs1: refused, a connection is already live")

// Connection represents a SECS-I connection carried over a TCP byte stream, implementing the
// hsms.Connection interface.
//
// The block-transfer protocol runs on one event loop: inbound bytes, timer expiries and send
// requests are posted to it and run in order. Outgoing messages wait in a queue and are sent
// one at a time whenever the line is idle.
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
	line     atomic.Value // LineState, mirrored for LineState()

	// loop owned
	live     *link
	fsm      *lineFSM
	rx       []byte
	recv     receiveState
	queue    *queue.SliceQueue[*sendJob]
	current  *sendJob
	blockIdx int
	retries  int
	t1       *actor.Timer
	t2       *actor.Timer
	t4       *actor.Timer
	txTable  *hsms.TransactionTable

	metrics ConnectionMetrics
}

var (
	_ hsms.Connection     = (*Connection)(nil)
	_ hsms.SessionBackend = (*Connection)(nil)
)

type link struct {
	id        string
	transport hsms.Transport
	closed    chan struct{}
	closeOnce sync.Once
}

func (l *link) markClosed() {
	l.closeOnce.Do(func() { close(l.closed) })
}

type startable interface {
	Start(onData func([]byte), onClosed func(error))
}

// receiveState collects the blocks of the message being received.
type receiveState struct {
	length int
	blocks []*Block
	last   *Block
}

// sendJob is one queued outgoing message. done is nil for reports the connection sends itself.
type sendJob struct {
	msg      *hsms.DataMessage
	blocks   []*Block
	done     chan error
	tx       *hsms.Transaction
	canceled bool
}

func (j *sendJob) finish(err error) {
	if j.done != nil {
		j.done <- err
		j.done = nil
	}
}

// NewConnection creates a new SECS-I Connection with the given context and configuration.
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
		queue:      queue.NewSliceQueue[*sendJob](8),
	}

	conn.line.Store(Idle)
	conn.fsm = newLineFSM(conn.traceLineChange)
	conn.txTable = hsms.NewTransactionTable(func(d time.Duration, fn func()) hsms.TimerStopper {
		return conn.loop.AfterFunc(d, fn)
	})
	conn.stateMgr = hsms.NewConnStateMgr(conn.traceStateChange)
	conn.session = hsms.NewBaseSession(conn)

	return conn, nil
}

// GetLogger returns the logger associated with the SECS-I connection.
func (c *Connection) GetLogger() logger.Logger {
	return c.logger
}

// Metrics returns the metrics associated with the SECS-I connection.
func (c *Connection) Metrics() *ConnectionMetrics {
	return &c.metrics
}

// Session returns the session of the connection.
func (c *Connection) Session() hsms.Session {
	return c.session
}

// State returns the current connection state. SECS-I has no select procedure: a connected
// transport is Selected right away.
func (c *Connection) State() hsms.ConnState {
	return c.stateMgr.State()
}

// LineState returns the current state of the block-transfer protocol.
func (c *Connection) LineState() LineState {
	s, _ := c.line.Load().(LineState)
	return s
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

// AddEventHandler registers handlers receiving every connection event, in order.
func (c *Connection) AddEventHandler(handlers ...hsms.EventHandler) {
	c.dispatcher.AddHandler(handlers...)
}

// AddStateChangeHandler registers handlers invoked on every connection state transition.
func (c *Connection) AddStateChangeHandler(handlers ...hsms.ConnStateChangeHandler) {
	c.stateMgr.AddHandler(handlers...)
}

// DeviceID returns the configured device id.
func (c *Connection) DeviceID() uint16 {
	return c.cfg.deviceID
}

// Open starts the connection. The active role dials the remote and reconnects with an
// exponential backoff whenever the transport is lost. The passive role listens and accepts a
// single remote at a time.
//
// If waitSelected is true, Open blocks until a transport is connected or ctx is done.
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

func (c *Connection) start() {
	if !c.opened.CompareAndSwap(false, true) {
		return
	}

	c.loop.Start()
	go c.dispatcher.Run()
}

// Close tears the connection down. Queued messages and pending transactions fail with
// hsms.ErrConnClosed and no event handler is invoked after Close returns.
//
// A closed connection can't be opened again.
func (c *Connection) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	c.logger.Debug("close connection")
	c.taskMgr.Stop()

	if !c.opened.Load() {
		c.dispatcher.Close()
		c.loop.Stop()

		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.closeTimeout)
	defer cancel()

	err := c.loop.Call(ctx, func() error {
		if c.live != nil {
			c.teardown(c.live, nil)
		}
		c.failQueued(hsms.ErrConnClosed)

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
		c.logger.Error("close timeout", "timeout", c.cfg.closeTimeout)
	}

	c.logger.Debug("connection closed")

	return nil
}

func (c *Connection) traceStateChange(prev hsms.ConnState, next hsms.ConnState) {
	c.logger.Debug("connection state changes", "prev_state", prev, "state", next)
	c.tracer.State(protocolName, prev.String(), next.String(), "conn_id", c.id)
}

func (c *Connection) traceLineChange(prev, next LineState) {
	c.line.Store(next)
	c.tracer.State(protocolName+"/line", prev.String(), next.String(), "conn_id", c.id)
}

// attach makes tr the live transport. A second transport while one is live is closed.
// Runs on the loop.
func (c *Connection) attach(tr hsms.Transport) *link {
	l := &link{
		id:        uuid.NewString(),
		transport: tr,
		closed:    make(chan struct{}),
	}

	if c.closed.Load() || c.live != nil {
		if c.live != nil {
			c.logger.Warn("connection refused", "remote_addr", tr.RemoteAddr(), "error", errRefused)
		}
		_ = tr.Close()
		l.markClosed()

		return l
	}

	c.live = l
	c.rx = c.rx[:0]
	c.resetLine()

	if err := c.stateMgr.ToConnected(); err != nil {
		c.logger.Error("failed to enter connected state", "error", err)
	}
	c.logger.Info("connected", "remote_addr", tr.RemoteAddr(), "link_id", l.id)
	c.dispatcher.Emit(hsms.ConnectedEvent{RemoteAddr: tr.RemoteAddr()})

	if err := c.stateMgr.ToSelected(); err != nil {
		c.logger.Error("failed to enter selected state", "error", err)
	}
	c.dispatcher.Emit(hsms.SelectedEvent{})

	if s, ok := tr.(startable); ok {
		s.Start(
			func(p []byte) { c.loop.Post(func() { c.onData(l, p) }) },
			func(err error) { c.loop.Post(func() { c.teardown(l, err) }) },
		)
	}

	c.pump()

	return l
}

// teardown closes the live link. The current and queued messages and every pending transaction
// fail with hsms.ErrConnClosed. A nil err is a requested close.
func (c *Connection) teardown(l *link, err error) {
	if l != c.live {
		return
	}

	c.live = nil
	c.resetLine()
	c.rx = nil

	if cerr := l.transport.Close(); cerr != nil {
		c.logger.Debug("close transport", "error", cerr)
	}

	if job := c.current; job != nil {
		c.current = nil
		job.finish(hsms.ErrConnClosed)
	}
	c.failQueued(hsms.ErrConnClosed)
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

func (c *Connection) failQueued(err error) {
	for _, job := range c.queue.Drain() {
		job.finish(err)
	}
}

// resetLine returns the line to Idle and drops a partially received message.
func (c *Connection) resetLine() {
	c.t1.Stop()
	c.t2.Stop()
	c.t4.Stop()
	c.recv = receiveState{}
	c.fire(evReset)
}

func (c *Connection) fire(event string) {
	if err := c.fsm.fire(event); err != nil {
		c.logger.Error("invalid line transition", "event", event, "state", c.fsm.current(), "error", err)
	}
}

func (c *Connection) onData(l *link, p []byte) {
	if l != c.live {
		return
	}

	c.tracer.Bytes(logger.DirRecv, protocolName, p, "conn_id", c.id)
	c.rx = append(c.rx, p...)

	if c.fsm.receiving() {
		c.armT1()
	}

	c.process()
}

// process consumes buffered bytes according to the line state.
func (c *Connection) process() {
	for len(c.rx) > 0 && c.live != nil {
		switch c.fsm.current() {
		case Idle:
			if b := c.nextByte(); b == ENQ {
				c.acceptENQ()
			} else {
				c.logger.Debug("byte ignored on idle line", "byte", b)
			}

		case WaitEOT:
			switch b := c.nextByte(); {
			case b == EOT:
				c.t2.Stop()
				c.fire(evRecvEOT)
				c.writeBlock()
			case b == ENQ && !c.cfg.IsMaster():
				c.yield()
			case b == ENQ:
				c.logger.Debug("contention, keep the line as master")
			default:
				c.logger.Debug("byte ignored while waiting for EOT", "byte", b)
			}

		case WaitACK:
			switch b := c.nextByte(); b {
			case ACK:
				c.onACK()
			case NAK:
				c.logger.Warn("block not acknowledged", "block", c.blockIdx+1)
				c.retry()
			default:
				c.logger.Debug("byte ignored while waiting for ACK", "byte", b)
			}

		case WaitBlockLength:
			c.t4.Stop()
			n := int(c.nextByte())
			if n < MinBlockLength || n > MaxBlockLength {
				c.logger.Debug("invalid length byte discarded", "length", n)
				continue
			}
			c.recv.length = n
			c.fire(evRecvLength)
			c.armT1()

		case WaitBlockData:
			need := c.recv.length + checksumSize
			if len(c.rx) < need {
				return
			}

			frame := make([]byte, 1+need)
			frame[0] = byte(c.recv.length)
			copy(frame[1:], c.rx[:need])
			c.rx = c.rx[need:]

			c.t1.Stop()
			c.onBlock(frame)
		}
	}
}

func (c *Connection) nextByte() byte {
	b := c.rx[0]
	c.rx = c.rx[1:]

	return b
}

// acceptENQ grants the line to the remote.
func (c *Connection) acceptENQ() {
	c.fire(evRecvENQ)
	c.recv = receiveState{}
	c.armT1()
	_ = c.writeRaw([]byte{EOT})
}

// yield gives the line to the master after contention. The current message goes back to the
// head of the queue with its retries reset.
func (c *Connection) yield() {
	c.t2.Stop()
	c.logger.Debug("contention, yield the line to the master")

	if job := c.current; job != nil {
		c.current = nil
		c.queue.PushFront(job)
	}

	c.acceptENQ()
}

func (c *Connection) armT1() {
	c.t1.Stop()
	c.t1 = c.loop.AfterFunc(c.cfg.t1Timeout, func() {
		if !c.fsm.receiving() {
			return
		}
		c.logger.Warn("T1 timeout, inter-character", "timeout", c.cfg.t1Timeout)
		c.resetLine()
		c.dispatcher.Emit(hsms.ErrorEvent{Err: hsms.ErrT1Timeout})
		c.pump()
	})
}

func (c *Connection) armT2() {
	c.t2.Stop()
	c.t2 = c.loop.AfterFunc(c.cfg.t2Timeout, func() {
		c.logger.Warn("T2 timeout, protocol", "timeout", c.cfg.t2Timeout, "state", c.fsm.current())
		c.retry()
	})
}

func (c *Connection) armT4() {
	c.t4.Stop()
	c.t4 = c.loop.AfterFunc(c.cfg.t4Timeout, func() {
		c.logger.Warn("T4 timeout, inter-block", "timeout", c.cfg.t4Timeout)
		c.resetLine()
		c.dispatcher.Emit(hsms.ErrorEvent{Err: hsms.ErrT4Timeout})
		c.pump()
	})
}

// pump starts the next queued message if the line is idle.
func (c *Connection) pump() {
	if c.live == nil || c.current != nil || c.fsm.current() != Idle {
		return
	}

	for {
		job, ok := c.queue.Dequeue()
		if !ok {
			return
		}
		if job.canceled {
			continue
		}

		c.current = job
		c.blockIdx = 0
		c.retries = 0
		c.tracer.Message(logger.DirSend, job.msg.ToSML())

		c.fire(evSendENQ)
		c.armT2()
		_ = c.writeRaw([]byte{ENQ})

		return
	}
}

func (c *Connection) writeBlock() {
	blk := c.current.blocks[c.blockIdx]
	c.armT2()
	_ = c.writeRaw(blk.Bytes())
}

func (c *Connection) onACK() {
	c.t2.Stop()
	c.metrics.incBlockSendCount()
	c.retries = 0
	c.blockIdx++

	job := c.current
	if c.blockIdx < len(job.blocks) {
		c.writeBlock()
		return
	}

	c.current = nil
	c.fire(evSendDone)
	c.metrics.incDataMsgSendCount()

	if job.msg.WaitBit() && !job.canceled {
		id := job.msg.ID()
		timeoutErr := &hsms.TimeoutError{Timer: hsms.T3, ID: id}
		job.tx = c.txTable.Add(id, c.cfg.t3Timeout, timeoutErr, c.onReplyTimeout(job.msg, job.blocks[0].Header))
		c.metrics.incDataMsgInflightCount()
	}
	job.finish(nil)

	c.pump()
}

// retry sends the ENQ or the current block again after a T2 timeout or a NAK. When the
// retries are exhausted the message fails and the line returns to Idle.
func (c *Connection) retry() {
	job := c.current
	if job == nil {
		return
	}

	c.retries++
	if c.retries > c.cfg.retryCount {
		c.current = nil
		c.resetLine()
		c.metrics.incDataMsgErrCount()

		err := fmt.Errorf("%w: %s after %d retries", hsms.ErrRetryLimitExceeded, job.msg.SMLHeader(), c.cfg.retryCount)
		c.logger.Error("failed to send message", hsms.MsgInfo(job.msg, "error", err)...)
		if job.done == nil {
			c.dispatcher.Emit(hsms.ErrorEvent{Err: err})
		}
		job.finish(err)

		c.pump()

		return
	}

	c.metrics.incBlockRetryCount()

	switch c.fsm.current() {
	case WaitEOT:
		c.armT2()
		_ = c.writeRaw([]byte{ENQ})
	case WaitACK:
		c.writeBlock()
	}
}

func (c *Connection) onBlock(frame []byte) {
	blk, err := DecodeBlock(frame)
	if err != nil {
		c.rejectBlock(err)
		return
	}

	if c.cfg.duplicateDetection && c.recv.last != nil && blk.Header == c.recv.last.Header {
		c.logger.Debug("duplicate block discarded", "block", blk.BlockNumber())
		if c.writeRaw([]byte{ACK}) != nil {
			return
		}
		c.fire(evRecvBlock)
		c.armT4()

		return
	}

	if expected := len(c.recv.blocks) + 1; int(blk.BlockNumber()) != expected {
		c.rejectBlock(hsms.NewProtocolError(hsms.SequenceMismatch,
			"block number %d, expected %d", blk.BlockNumber(), expected))

		return
	}

	if len(c.recv.blocks) > 0 && !sameMessage(c.recv.blocks[0], blk) {
		c.rejectBlock(hsms.NewProtocolError(hsms.SequenceMismatch,
			"block %d does not belong to the message", blk.BlockNumber()))

		return
	}

	c.metrics.incBlockRecvCount()
	if c.writeRaw([]byte{ACK}) != nil {
		return
	}

	c.recv.blocks = append(c.recv.blocks, blk)
	c.recv.last = blk

	if !blk.EBit() {
		c.fire(evRecvBlock)
		c.armT4()

		return
	}

	blocks := c.recv.blocks
	c.resetLine()
	c.deliver(blocks)
	c.pump()
}

func (c *Connection) rejectBlock(err error) {
	c.metrics.incNakSendCount()
	c.logger.Warn("invalid block", "error", err)

	if c.writeRaw([]byte{NAK}) != nil {
		return
	}

	c.resetLine()
	c.dispatcher.Emit(hsms.ErrorEvent{Err: err})
	c.pump()
}

func (c *Connection) deliver(blocks []*Block) {
	msg, err := AssembleMessage(blocks)
	if msg == nil {
		c.logger.Error("failed to assemble message", "error", err)
		c.dispatcher.Emit(hsms.ErrorEvent{Err: err})

		return
	}

	c.metrics.incDataMsgRecvCount()
	head := blocks[0].Header

	if err != nil {
		c.metrics.incDataMsgErrCount()
		c.logger.Error("failed to decode data message", hsms.MsgInfo(msg, "error", err)...)
		c.dispatcher.Emit(hsms.ErrorEvent{Err: err})
		c.reportS9(gem.S9F7(head[:]))

		return
	}

	c.tracer.Message(logger.DirRecv, msg.ToSML())

	if c.s9Enabled() && msg.DeviceID() != c.cfg.deviceID {
		c.logger.Warn("unrecognized device id", hsms.MsgInfo(msg)...)
		c.reportS9(gem.S9F1(head[:]))

		return
	}

	if c.txTable.Resolve(msg) {
		c.metrics.decDataMsgInflightCount()
		return
	}

	c.dispatcher.Emit(hsms.MessageEvent{Msg: msg})
}

// writeRaw writes from the loop, bounded by T2. A write failure tears the link down.
func (c *Connection) writeRaw(p []byte) error {
	l := c.live
	if l == nil {
		return hsms.ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.t2Timeout)
	defer cancel()

	c.tracer.Bytes(logger.DirSend, protocolName, p, "conn_id", c.id)

	if err := l.transport.Write(ctx, p); err != nil {
		c.logger.Warn("failed to write", "error", err)
		c.teardown(l, err)

		return err
	}

	return nil
}

func (c *Connection) s9Enabled() bool {
	return c.cfg.isEquip && c.cfg.s9Reporting
}

// reportS9 queues a Stream 9 report when the equipment role enables it.
func (c *Connection) reportS9(report *gem.Message) {
	if !c.s9Enabled() || c.live == nil {
		return
	}

	msg, err := hsms.NewDataMessageFrom(report, c.cfg.deviceID, c.sysBytes.Next())
	if err != nil {
		c.logger.Error("failed to build S9 report", "error", err)
		return
	}

	blocks, err := SplitMessage(msg, c.cfg.isEquip)
	if err != nil {
		c.logger.Error("failed to encode S9 report", "error", err)
		return
	}

	c.queue.Enqueue(&sendJob{msg: msg, blocks: blocks})
	c.pump()
}

// onReplyTimeout handles a T3 expiry on the loop.
func (c *Connection) onReplyTimeout(msg *hsms.DataMessage, head [HeaderSize]byte) func(*hsms.Transaction) {
	return func(*hsms.Transaction) {
		c.metrics.incT3TimeoutCount()
		c.metrics.decDataMsgInflightCount()
		c.logger.Warn("T3 timeout", hsms.MsgInfo(msg, "timeout", c.cfg.t3Timeout)...)
		c.reportS9(gem.S9F9(head[:]))
	}
}

func (c *Connection) stateError(op string) error {
	if c.live == nil || !c.stateMgr.State().IsSelected() {
		return &hsms.StateError{State: hsms.ErrNotConnected.State, Op: op}
	}

	return nil
}

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
