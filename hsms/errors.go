package hsms

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidStreamCode indicates that a stream code above 127 was provided.
	ErrInvalidStreamCode = errors.New("invalid stream code, should be in range of [0, 127]")

	// ErrInvalidReqMsg indicates that the message is not a valid request/primary message.
	ErrInvalidReqMsg = errors.New("message is not a valid request/primary message")

	// ErrInvalidRspMsg indicates that the message is not a valid response/secondary message.
	ErrInvalidRspMsg = errors.New("message is not a valid response/secondary message")
)

var (
	// ErrConnConfigNil indicates that a nil ConnectionConfig was provided.
	ErrConnConfigNil = errors.New("connection config is nil")

	// ErrConnClosed indicates that the connection was closed or torn down while the operation
	// was pending.
	ErrConnClosed = errors.New("connection closed")

	// ErrSelectFailed indicates that Select.rsp carried a non-success status.
	ErrSelectFailed = errors.New("select failed")

	// ErrDeselectFailed indicates that Deselect.rsp carried a non-success status.
	ErrDeselectFailed = errors.New("deselect failed")

	// ErrRetryLimitExceeded indicates that a SECS-I message exhausted its block retries.
	ErrRetryLimitExceeded = errors.New("retry limit exceeded")

	// ErrInvalidTransition is returned when a connection state transition is not allowed from
	// the current state.
	ErrInvalidTransition = errors.New("invalid state transition")
)

// ConstructionError reports a message built with out-of-range header fields.
type ConstructionError struct {
	Field string
	Value int
	Err   error
}

func (e *ConstructionError) Error() string {
	return fmt.Sprintf("hsms: invalid %s %d: %v", e.Field, e.Value, e.Err)
}

func (e *ConstructionError) Unwrap() error { return e.Err }

// ProtocolErrorKind classifies a ProtocolError.
type ProtocolErrorKind int

const (
	// FramingTooShort means an HSMS length prefix below the 10-byte header size.
	FramingTooShort ProtocolErrorKind = iota + 1
	// ChecksumMismatch means a SECS-I block failed checksum verification.
	ChecksumMismatch
	// SequenceMismatch means a SECS-I block arrived out of order or with a foreign header.
	SequenceMismatch
	// ReassemblyGap means a SECS-I block list has a missing block or no end block.
	ReassemblyGap
)

func (k ProtocolErrorKind) String() string {
	switch k {
	case FramingTooShort:
		return "framing too short"
	case ChecksumMismatch:
		return "checksum mismatch"
	case SequenceMismatch:
		return "sequence mismatch"
	case ReassemblyGap:
		return "reassembly gap"
	default:
		return "unknown"
	}
}

var (
	ErrFramingTooShort  = &ProtocolError{Kind: FramingTooShort}
	ErrChecksumMismatch = &ProtocolError{Kind: ChecksumMismatch}
	ErrSequenceMismatch = &ProtocolError{Kind: SequenceMismatch}
	ErrReassemblyGap    = &ProtocolError{Kind: ReassemblyGap}
)

// ProtocolError reports a violation of the HSMS framing or the SECS-I block protocol.
// errors.Is matches any ProtocolError of the same Kind, e.g. errors.Is(err, ErrChecksumMismatch).
type ProtocolError struct {
	Kind   ProtocolErrorKind
	Detail string
}

// NewProtocolError creates a ProtocolError with a formatted detail.
func NewProtocolError(kind ProtocolErrorKind, format string, args ...any) *ProtocolError {
	return &ProtocolError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

func (e *ProtocolError) Error() string {
	if e.Detail == "" {
		return "protocol error: " + e.Kind.String()
	}

	return "protocol error: " + e.Kind.String() + ": " + e.Detail
}

func (e *ProtocolError) Is(target error) bool {
	t, ok := target.(*ProtocolError)
	return ok && t.Kind == e.Kind
}

// Timer names a protocol timer.
type Timer int

const (
	T1 Timer = iota + 1
	T2
	T3
	T4
	T5
	T6
	T7
	T8
)

func (t Timer) String() string {
	return fmt.Sprintf("T%d", int(t))
}

var (
	ErrT1Timeout = &TimeoutError{Timer: T1}
	ErrT2Timeout = &TimeoutError{Timer: T2}
	ErrT3Timeout = &TimeoutError{Timer: T3}
	ErrT4Timeout = &TimeoutError{Timer: T4}
	ErrT5Timeout = &TimeoutError{Timer: T5}
	ErrT6Timeout = &TimeoutError{Timer: T6}
	ErrT7Timeout = &TimeoutError{Timer: T7}
	ErrT8Timeout = &TimeoutError{Timer: T8}
)

// TimeoutError reports the expiry of a protocol timer. errors.Is matches any TimeoutError of
// the same Timer, e.g. errors.Is(err, ErrT3Timeout).
type TimeoutError struct {
	Timer Timer
	// ID is the system bytes of the affected transaction, if any.
	ID uint32
}

func (e *TimeoutError) Error() string {
	if e.ID != 0 {
		return fmt.Sprintf("%s timeout, id: %d", e.Timer, e.ID)
	}

	return e.Timer.String() + " timeout"
}

func (e *TimeoutError) Is(target error) bool {
	t, ok := target.(*TimeoutError)
	return ok && t.Timer == e.Timer
}

// Timeout reports true, as net.Error does.
func (e *TimeoutError) Timeout() bool { return true }

var (
	// ErrNotSelected is returned when a data message is sent while the connection is not Selected.
	ErrNotSelected = &StateError{State: "not-selected"}
	// ErrNotConnected is returned when an operation needs a connected transport.
	ErrNotConnected = &StateError{State: "not-connected"}
)

// StateError reports an operation attempted in a state that does not permit it.
// No transmission is attempted when it is returned.
type StateError struct {
	State string
	Op    string
}

func (e *StateError) Error() string {
	if e.Op == "" {
		return "invalid state: " + e.State
	}

	return e.Op + ": invalid state: " + e.State
}

func (e *StateError) Is(target error) bool {
	t, ok := target.(*StateError)
	return ok && t.State == e.State
}

// TransportError wraps an error from the underlying byte stream.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return "transport " + e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error { return e.Err }

// RejectError is returned to the sender of a message answered with Reject.req.
type RejectError struct {
	Reason byte
	ID     uint32
}

func (e *RejectError) Error() string {
	return fmt.Sprintf("message rejected, reason: %s, id: %d", RejectReasonString(e.Reason), e.ID)
}
