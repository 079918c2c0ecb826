package secs1

import (
	"context"
	"net"

	"github.com/fabwire/go-secs/hsms"
	"github.com/fabwire/go-secs/internal/pool"
)

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

// serve accepts remotes on one listener. Only one of them is live at a time, attach closes
// the others.
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

		tr := hsms.NewStreamTransport(conn, c.cfg.t2Timeout)
		if !c.loop.Post(func() { c.attach(tr) }) {
			_ = tr.Close()
			return nil
		}
	}
}
