package logger

import (
	"encoding/hex"
)

// Direction tells whether traced data was sent or received.
type Direction string

const (
	DirSend Direction = "send"
	DirRecv Direction = "recv"
)

// Tracer is the audit sink for protocol traffic. Connections call it for every raw frame or
// block, every rendered message and every state transition. A Tracer must not block.
type Tracer interface {
	// Bytes records a raw frame or block exchanged on the wire.
	Bytes(dir Direction, protocol string, raw []byte, keyValues ...any)
	// Message records the SML rendering of a message.
	Message(dir Direction, text string)
	// State records a state transition of a protocol state machine.
	State(protocol string, previous string, next string, keyValues ...any)
}

type logTracer struct {
	logger Logger
}

// NewTracer returns a Tracer logging every notification at debug level through l.
func NewTracer(l Logger) Tracer {
	return &logTracer{logger: l}
}

func (t *logTracer) enabled() bool {
	return t.logger.Level() <= DebugLevel
}

func (t *logTracer) Bytes(dir Direction, protocol string, raw []byte, keyValues ...any) {
	if !t.enabled() {
		return
	}

	args := make([]any, 0, len(keyValues)+6)
	args = append(args, "dir", string(dir), "protocol", protocol, "raw", hex.EncodeToString(raw))
	args = append(args, keyValues...)
	t.logger.Debug("trace bytes", args...)
}

func (t *logTracer) Message(dir Direction, text string) {
	if !t.enabled() {
		return
	}
	t.logger.Debug("trace message", "dir", string(dir), "sml", text)
}

func (t *logTracer) State(protocol string, previous string, next string, keyValues ...any) {
	if !t.enabled() {
		return
	}

	args := make([]any, 0, len(keyValues)+6)
	args = append(args, "protocol", protocol, "prev", previous, "next", next)
	args = append(args, keyValues...)
	t.logger.Debug("trace state", args...)
}

type nopTracer struct{}

// NopTracer returns a Tracer that drops everything.
func NopTracer() Tracer { return nopTracer{} }

func (nopTracer) Bytes(Direction, string, []byte, ...any) {}
func (nopTracer) Message(Direction, string)               {}
func (nopTracer) State(string, string, string, ...any)    {}
