package hsms

import "sync/atomic"

// SystemBytesGenerator hands out system bytes for the requests of one connection.
//
// The counter starts at zero, so the first value is 1, and wraps modulo 2^32. A wrapped value
// that collides with a still pending transaction is not detected.
type SystemBytesGenerator struct {
	id atomic.Uint32
}

// Next returns the next system bytes value.
func (g *SystemBytesGenerator) Next() uint32 {
	return g.id.Add(1)
}

// Reset restarts the counter at zero.
func (g *SystemBytesGenerator) Reset() {
	g.id.Store(0)
}
