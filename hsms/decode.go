package hsms

import (
	"encoding/binary"
	"fmt"

	"github.com/fabwire/go-secs/secs2"
)

// MaxFrameLength is the largest length prefix accepted by the frame accumulator.
const MaxFrameLength = HeaderSize + secs2.MaxByteSize

// DecodeFrame decodes a complete HSMS frame: the 4-byte length field, the header and the body.
func DecodeFrame(frame []byte) (HSMSMessage, error) {
	if len(frame) < LengthFieldSize {
		return nil, NewProtocolError(FramingTooShort, "frame of %d bytes has no length field", len(frame))
	}

	length := binary.BigEndian.Uint32(frame)
	if length < HeaderSize {
		return nil, NewProtocolError(FramingTooShort, "length prefix %d", length)
	}

	if int(length) != len(frame)-LengthFieldSize {
		return nil, fmt.Errorf("hsms: length prefix %d does not match payload of %d bytes", length, len(frame)-LengthFieldSize)
	}

	return DecodeMessage(frame[LengthFieldSize:])
}

// DecodeMessage decodes the payload of a frame, i.e. the header and the body without the
// length field.
//
// A data message whose body fails to decode is returned together with the error, carrying
// the decoded header and an empty body, so the caller can still answer or report it.
// Control messages with an unknown PType or SType are returned without error; their Type
// is UndefinedMsgType.
func DecodeMessage(payload []byte) (HSMSMessage, error) {
	if len(payload) < HeaderSize {
		return nil, NewProtocolError(FramingTooShort, "payload of %d bytes", len(payload))
	}

	header := payload[:HeaderSize]
	if header[4] != 0 || header[5] != DataMsgType {
		return NewControlMessage(header)
	}

	msg := &DataMessage{
		deviceID:    binary.BigEndian.Uint16(header[0:2]),
		stream:      header[2] & 0x7F,
		waitBit:     header[2]&0x80 != 0,
		function:    header[3],
		systemBytes: binary.BigEndian.Uint32(header[6:10]),
		item:        secs2.NewEmptyItem(),
	}

	item, err := secs2.DecodeAll(payload[HeaderSize:])
	if err != nil {
		return msg, fmt.Errorf("hsms: decode body of %s: %w", msg.SMLHeader(), err)
	}
	msg.item = item

	return msg, nil
}
