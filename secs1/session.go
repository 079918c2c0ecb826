package secs1

import (
	"context"

	"github.com/fabwire/go-secs/hsms"
)

// Send queues a primary data message with fresh system bytes and waits until its last block is
// acknowledged. If the W-bit is set, Send then waits for the reply, T3, ctx or the end of the
// connection. T3 starts once the message is on the wire.
func (c *Connection) Send(ctx context.Context, msg *hsms.DataMessage) (*hsms.DataMessage, error) {
	var job *sendJob

	err := c.call(ctx, func() error {
		if err := c.stateError("send"); err != nil {
			return err
		}

		msg = msg.WithSystemBytes(c.sysBytes.Next())

		var err error
		job, err = c.enqueue(msg)

		return err
	})
	if err != nil {
		c.logger.Debug("failed to send message", "error", err, "sml_header", msg.SMLHeader())
		return nil, err
	}

	if err := c.awaitJob(ctx, job); err != nil {
		return nil, err
	}

	if job.tx == nil {
		return nil, nil //nolint:nilnil
	}

	reply, err := c.awaitTx(ctx, job.tx)
	if err != nil {
		return nil, err
	}

	dataMsg, ok := reply.ToDataMessage()
	if !ok {
		return nil, hsms.ErrInvalidRspMsg
	}

	return dataMsg, nil
}

// SendReply queues a reply keeping the system bytes of msg and waits until it is sent.
func (c *Connection) SendReply(ctx context.Context, msg *hsms.DataMessage) error {
	var job *sendJob

	err := c.call(ctx, func() error {
		if err := c.stateError("reply"); err != nil {
			return err
		}

		var err error
		job, err = c.enqueue(msg)

		return err
	})
	if err != nil {
		return err
	}

	return c.awaitJob(ctx, job)
}

// enqueue splits msg into blocks and queues it. Runs on the loop.
func (c *Connection) enqueue(msg *hsms.DataMessage) (*sendJob, error) {
	blocks, err := SplitMessage(msg, c.cfg.isEquip)
	if err != nil {
		return nil, err
	}

	job := &sendJob{msg: msg, blocks: blocks, done: make(chan error, 1)}
	c.queue.Enqueue(job)
	c.pump()

	return job, nil
}

// awaitJob waits until job is sent or fails. When ctx ends first, a job still queued is
// dropped; one already on the wire completes without reply tracking.
func (c *Connection) awaitJob(ctx context.Context, job *sendJob) error {
	select {
	case err := <-job.done:
		return err

	case <-ctx.Done():
		c.loop.Post(func() { job.canceled = true })
		return ctx.Err()

	case <-c.loop.Done():
		return hsms.ErrConnClosed
	}
}

// awaitTx waits for tx. When ctx ends first the transaction is dropped.
func (c *Connection) awaitTx(ctx context.Context, tx *hsms.Transaction) (hsms.HSMSMessage, error) {
	select {
	case res := <-tx.Result():
		return res.Msg, res.Err

	case <-ctx.Done():
		c.loop.Post(func() {
			if c.txTable.Has(tx.ID()) {
				c.metrics.decDataMsgInflightCount()
			}
			c.txTable.Remove(tx.ID())
		})

		return nil, ctx.Err()

	case <-c.loop.Done():
		return nil, hsms.ErrConnClosed
	}
}
