package secs2

// SECS2Message is the transport independent part of a SECS-II message: stream, function,
// wait bit and body. Message builders such as the gem package return it, and both the HSMS and
// SECS-I connections accept it.
type SECS2Message interface {
	// StreamCode returns the stream code, 0..127.
	StreamCode() uint8

	// FunctionCode returns the function code.
	FunctionCode() uint8

	// WaitBit reports whether a reply is expected.
	WaitBit() bool

	// Item returns the message body.
	Item() Item
}
