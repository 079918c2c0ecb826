package secs1

import (
	"context"
	"net"
	"time"

	"github.com/fabwire/go-secs/hsms"
	"github.com/fabwire/go-secs/internal/pool"
)

const (
	initialRetryDelay = 100 * time.Millisecond
	retryDelayFactor  = 2
	maxRetryDelay     = 30 * time.Second
)

// connectLoop dials the remote until the connection closes. Failed dials back off
// exponentially from initialRetryDelay up to maxRetryDelay; a lost transport is dialed again
// after initialRetryDelay.
func (c *Connection) connectLoop(ctx context.Context) error {
	delay := initialRetryDelay

	for ctx.Err() == nil {
		conn, err := c.dial(ctx)
		if err != nil {
			c.metrics.incConnRetryGauge()
			c.logger.Debug("failed to connect to remote", "address", c.cfg.Address(), "error", err,
				"retry", c.metrics.ConnRetryGauge.Load(), "delay", delay)

			if pool.Sleep(ctx, delay) != nil {
				return nil
			}

			delay = min(delay*retryDelayFactor, maxRetryDelay)

			continue
		}
		c.metrics.resetConnRetryGauge()
		delay = initialRetryDelay

		tr := hsms.NewStreamTransport(conn, c.cfg.t2Timeout)
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

		if pool.Sleep(ctx, delay) != nil {
			return nil
		}
	}

	return nil
}

func (c *Connection) dial(ctx context.Context) (net.Conn, error) {
	dialer := &net.Dialer{KeepAlive: 30 * time.Second}

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.connectTimeout)
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
