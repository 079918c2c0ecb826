package hsmsss

import (
	"context"
	"errors"
	"net"

	"github.com/fabwire/go-secs/hsms"
	"github.com/fabwire/go-secs/internal/pool"
)

// errReplaced closes a live transport that never got selected when a held connection selects.
var errReplaced = errors.New("hsms-ss: replaced by a newly selected connection")

// listenLoop listens and accepts until the connection closes. A failed listen, or a listener
// that stops accepting, is retried after the rebind interval.
func (c *Connection) listenLoop(ctx context.Context) error {
	for ctx.Err() == nil {
		if err := c.serve(ctx); err != nil {
			c.logger.Warn("listener failed, rebind later", "error", err, "interval", c.cfg.rebindInterval)
		}

		if pool.Sleep(ctx, c.cfg.rebindInterval) != nil {
			return nil
		}
	}

	return nil
}

func (c *Connection) serve(ctx context.Context) error {
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", c.cfg.Address())
	if err != nil {
		return err
	}

	stop := context.AfterFunc(ctx, func() { _ = listener.Close() })
	defer stop()
	defer listener.Close()

	addr := listener.Addr().String()
	c.listenAt.Store(&addr)
	defer c.listenAt.Store(nil)

	c.logger.Info("listening", "address", addr)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			return err
		}

		c.logger.Debug("connection accepted", "remote_addr", conn.RemoteAddr().String())

		tr := hsms.NewStreamTransport(conn, c.cfg.t8Timeout)
		if !c.loop.Post(func() { c.attach(tr) }) {
			_ = tr.Close()
			return nil
		}
	}
}

func (c *Connection) isCandidate(l *link) bool {
	_, ok := c.candidates.Load(l.id)
	return ok
}

// holdCandidate keeps l in a pre-selected holding state while another connection is live.
// It is promoted when it selects and the live connection isn't selected; otherwise it stays
// held until it leaves or its own T7 fires.
func (c *Connection) holdCandidate(l *link) {
	c.logger.Info("connection held, another connection is live",
		"remote_addr", l.transport.RemoteAddr(), "link_id", l.id)

	c.candidates.Store(l.id, l)
	l.t7 = c.loop.AfterFunc(c.cfg.t7Timeout, func() {
		c.closeCandidate(l, hsms.ErrT7Timeout)
	})
}

func (c *Connection) closeCandidate(l *link, err error) {
	if _, ok := c.candidates.LoadAndDelete(l.id); !ok {
		return
	}

	l.t7.Stop()
	l.t8.Stop()
	_ = l.transport.Close()
	l.markClosed()

	if err != nil {
		c.logger.Warn("held connection closed", "link_id", l.id, "error", err)
	} else {
		c.logger.Debug("held connection closed", "link_id", l.id)
	}
}

func (c *Connection) handleCandidateFrame(l *link, payload []byte) {
	msg, decodeErr := hsms.DecodeMessage(payload)
	if msg == nil {
		c.closeCandidate(l, decodeErr)
		return
	}

	if msg.IsDataMessage() {
		c.writeReject(l, msg, hsms.RejectNotSelected)
		return
	}

	ctrlMsg, _ := msg.ToControlMessage()
	c.metrics.incControlMsgRecvCount()

	switch ctrlMsg.Type() {
	case hsms.SelectReqType:
		if c.live != nil && c.stateMgr.State().IsSelected() {
			c.logger.Warn("select.req from held connection, session already used", "link_id", l.id)
			c.replyControl(l, ctrlMsg, hsms.NewSelectRsp, hsms.SelectStatusAlreadyUsed)

			return
		}

		c.promote(l)
		c.onSelectReq(l, ctrlMsg)

	case hsms.LinkTestReqType:
		rsp, _ := hsms.NewLinktestRsp(ctrlMsg)
		c.writeControl(l, rsp)

	case hsms.DeselectReqType:
		c.replyControl(l, ctrlMsg, hsms.NewDeselectRsp, hsms.DeselectStatusNotReady)

	case hsms.SelectRspType, hsms.DeselectRspType, hsms.LinkTestRspType:
		c.writeReject(l, ctrlMsg, hsms.RejectTransactionNotOpen)

	case hsms.SeparateReqType:
		c.closeCandidate(l, nil)

	case hsms.RejectReqType:
		c.logger.Debug("reject.req from held connection", "link_id", l.id, "reason", ctrlMsg.Status())

	default:
		c.rejectUnsupported(l, ctrlMsg)
	}
}

// promote replaces a live connection that is not selected with the held link l.
func (c *Connection) promote(l *link) {
	c.candidates.Delete(l.id)
	l.t7.Stop()

	if c.live != nil {
		c.logger.Warn("live connection not selected, replace it", "link_id", c.live.id, "new_link_id", l.id)
		c.teardown(c.live, errReplaced)
	}

	c.makeLive(l)
}
