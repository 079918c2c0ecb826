package hsmsss

import (
	"context"

	"github.com/fabwire/go-secs/hsms"
	"github.com/fabwire/go-secs/logger"
)

// Send transmits a primary data message with fresh system bytes.
//
// The transaction is registered before the frame is written, so a fast reply can't be missed.
// If the W-bit is set, Send waits for the reply, T3, ctx or the end of the connection.
// It fails with hsms.ErrNotSelected without writing anything if the session isn't selected.
func (c *Connection) Send(ctx context.Context, msg *hsms.DataMessage) (*hsms.DataMessage, error) {
	var (
		tx    *hsms.Transaction
		l     *link
		frame []byte
		id    uint32
	)

	err := c.call(ctx, func() error {
		if err := c.stateError("send", true); err != nil {
			return err
		}

		id = c.sysBytes.Next()
		msg = msg.WithSystemBytes(id)

		var err error
		frame, err = msg.MarshalBinary()
		if err != nil {
			return err
		}

		if msg.WaitBit() {
			timeoutErr := &hsms.TimeoutError{Timer: hsms.T3, ID: id}
			tx = c.txTable.Add(id, c.cfg.t3Timeout, timeoutErr, c.onReplyTimeout(msg))
			c.metrics.incDataMsgInflightCount()
		}
		l = c.live

		return nil
	})
	if err != nil {
		c.logger.Debug("failed to send message", "error", err, "sml_header", msg.SMLHeader())
		return nil, err
	}

	if err := c.writeData(ctx, l, msg, frame); err != nil {
		if tx != nil {
			c.loop.Post(func() {
				if c.txTable.Has(id) {
					c.metrics.decDataMsgInflightCount()
				}
				c.txTable.Remove(id)
			})
		}

		return nil, err
	}

	if tx == nil {
		return nil, nil //nolint:nilnil
	}

	reply, err := c.awaitTx(ctx, tx)
	if err != nil {
		return nil, err
	}

	dataMsg, ok := reply.ToDataMessage()
	if !ok {
		return nil, hsms.ErrInvalidRspMsg
	}

	return dataMsg, nil
}

// SendReply transmits a reply keeping the system bytes of msg.
func (c *Connection) SendReply(ctx context.Context, msg *hsms.DataMessage) error {
	var l *link

	err := c.call(ctx, func() error {
		if err := c.stateError("reply", true); err != nil {
			return err
		}
		l = c.live

		return nil
	})
	if err != nil {
		return err
	}

	frame, err := msg.MarshalBinary()
	if err != nil {
		return err
	}

	return c.writeData(ctx, l, msg, frame)
}

// writeData writes a data frame outside the loop. The transport serializes concurrent writers.
// A failed write may leave part of the frame on the stream, so the link is torn down.
func (c *Connection) writeData(ctx context.Context, l *link, msg *hsms.DataMessage, frame []byte) error {
	writeCtx, cancel := context.WithTimeout(ctx, c.cfg.t8Timeout)
	defer cancel()

	c.tracer.Bytes(logger.DirSend, protocolName, frame[hsms.LengthFieldSize:], "conn_id", c.id)
	c.tracer.Message(logger.DirSend, msg.ToSML())

	if err := l.transport.Write(writeCtx, frame); err != nil {
		c.metrics.incDataMsgErrCount()
		c.logger.Warn("failed to write data message", hsms.MsgInfo(msg, "error", err)...)
		c.loop.Post(func() { c.failLink(l, err) })

		return err
	}
	c.metrics.incDataMsgSendCount()

	return nil
}
