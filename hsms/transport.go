package hsms

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"
)

// Transport is the byte stream under a connection: a TCP socket, or anything else that moves
// bytes in both directions.
//
// Inbound bytes are not read through this interface; the transport pushes them to the
// connection as they arrive, in arbitrary chunks.
type Transport interface {
	// Write hands p to the stream. It returns once all of p was accepted or an error occurred.
	Write(ctx context.Context, p []byte) error
	// Close closes the stream. Pending and later writes fail.
	Close() error
	// RemoteAddr describes the peer.
	RemoteAddr() string
}

// StreamTransport is a Transport over a net.Conn.
type StreamTransport struct {
	conn         net.Conn
	writeTimeout time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

var _ Transport = (*StreamTransport)(nil)

// NewStreamTransport wraps conn. writeTimeout bounds every Write; zero means no bound
// beyond the context deadline.
func NewStreamTransport(conn net.Conn, writeTimeout time.Duration) *StreamTransport {
	return &StreamTransport{conn: conn, writeTimeout: writeTimeout}
}

// Start reads from the connection on a new goroutine. onData receives each chunk read, the
// slice is owned by the callee. onClosed is called once when reading stops, with nil for a
// clean EOF or a local Close.
func (t *StreamTransport) Start(onData func([]byte), onClosed func(error)) {
	go func() {
		buf := make([]byte, 32*1024)
		for {
			n, err := t.conn.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				onData(chunk)
			}

			if err != nil {
				if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
					err = nil
				} else {
					err = &TransportError{Op: "read", Err: err}
				}
				onClosed(err)

				return
			}
		}
	}()
}

func (t *StreamTransport) Write(ctx context.Context, p []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	deadline, ok := ctx.Deadline()
	if t.writeTimeout > 0 {
		if d := time.Now().Add(t.writeTimeout); !ok || d.Before(deadline) {
			deadline, ok = d, true
		}
	}

	if ok {
		_ = t.conn.SetWriteDeadline(deadline)
	} else {
		_ = t.conn.SetWriteDeadline(time.Time{})
	}

	stop := context.AfterFunc(ctx, func() {
		_ = t.conn.SetWriteDeadline(time.Now())
	})
	defer stop()

	for len(p) > 0 {
		n, err := t.conn.Write(p)
		if err != nil {
			if ctx.Err() != nil {
				return &TransportError{Op: "write", Err: ctx.Err()}
			}

			return &TransportError{Op: "write", Err: err}
		}
		p = p[n:]
	}

	return nil
}

func (t *StreamTransport) Close() error {
	t.closeOnce.Do(func() {
		t.closeErr = t.conn.Close()
	})

	return t.closeErr
}

func (t *StreamTransport) RemoteAddr() string {
	if addr := t.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}

	return ""
}
