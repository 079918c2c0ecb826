package hsmsss

import (
	"encoding/binary"
	"fmt"

	"github.com/fabwire/go-secs/hsms"
)

// frameReader accumulates inbound bytes and cuts them into HSMS frames.
//
// The byte stream may arrive in chunks of any size. Feed appends a chunk and Next returns the
// complete frames in arrival order. It is owned by the connection loop and not goroutine-safe.
type frameReader struct {
	buf []byte
}

// Feed appends p to the accumulator.
func (r *frameReader) Feed(p []byte) {
	r.buf = append(r.buf, p...)
}

// Next returns the payload (header and body, without the length field) of the next complete
// frame, or ok=false if no complete frame is buffered.
//
// A length prefix below the header size fails with hsms.ErrFramingTooShort, a prefix above
// hsms.MaxFrameLength fails as well. Both are fatal for the stream: the accumulator can't
// resynchronize and must be discarded.
func (r *frameReader) Next() (payload []byte, ok bool, err error) {
	if len(r.buf) < hsms.LengthFieldSize {
		return nil, false, nil
	}

	length := binary.BigEndian.Uint32(r.buf)
	if length < hsms.HeaderSize {
		return nil, false, hsms.NewProtocolError(hsms.FramingTooShort, "length prefix %d", length)
	}

	if length > hsms.MaxFrameLength {
		return nil, false, fmt.Errorf("hsms: length prefix %d exceeds %d", length, hsms.MaxFrameLength)
	}

	end := hsms.LengthFieldSize + int(length)
	if len(r.buf) < end {
		return nil, false, nil
	}

	payload = make([]byte, length)
	copy(payload, r.buf[hsms.LengthFieldSize:end])

	// shift the remainder to the front so the buffer doesn't grow without bound
	n := copy(r.buf, r.buf[end:])
	r.buf = r.buf[:n]

	return payload, true, nil
}

// Pending reports whether a partial frame is buffered.
func (r *frameReader) Pending() bool {
	return len(r.buf) > 0
}

// Reset drops buffered bytes.
func (r *frameReader) Reset() {
	r.buf = r.buf[:0]
}
