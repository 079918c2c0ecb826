package hsmsss

import (
	"context"
	"net"
	"time"

	"github.com/fabwire/go-secs/hsms"
	"github.com/fabwire/go-secs/internal/pool"
)

// connectLoop dials the remote until the connection closes. After a transport is lost it waits
// T5 before the next attempt.
func (c *Connection) connectLoop(ctx context.Context) error {
	for ctx.Err() == nil {
		conn, err := c.dial(ctx)
		if err != nil {
			c.metrics.incConnRetryGauge()
			c.logger.Debug("failed to connect to remote", "address", c.cfg.Address(), "error", err,
				"retry", c.metrics.ConnRetryGauge.Load())

			if pool.Sleep(ctx, c.cfg.t5Timeout) != nil {
				return nil
			}

			continue
		}
		c.metrics.resetConnRetryGauge()

		tr := hsms.NewStreamTransport(conn, c.cfg.t8Timeout)
		linkCh := make(chan *link, 1)
		if !c.loop.Post(func() { linkCh <- c.attach(tr) }) {
			_ = tr.Close()
			return nil
		}

		var l *link
		select {
		case l = <-linkCh:
		case <-ctx.Done():
			_ = tr.Close()
			return nil
		case <-c.loop.Done():
			_ = tr.Close()
			return nil
		}

		select {
		case <-l.closed:
		case <-ctx.Done():
			return nil
		}

		if pool.Sleep(ctx, c.cfg.t5Timeout) != nil {
			return nil
		}
	}

	return nil
}

func (c *Connection) dial(ctx context.Context) (net.Conn, error) {
	dialer := &net.Dialer{KeepAlive: 30 * time.Second}

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.connectRemoteTimeout)
	defer cancel()

	conn, err := dialer.DialContext(dialCtx, "tcp", c.cfg.Address())
	if err != nil {
		return nil, err
	}

	c.logger.Debug("connected to the remote",
		"local_addr", conn.LocalAddr().String(),
		"remote_addr", conn.RemoteAddr().String(),
	)

	return conn, nil
}
