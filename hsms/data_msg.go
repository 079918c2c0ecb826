package hsms

import (
	"encoding/binary"
	"strconv"
	"strings"

	"github.com/fabwire/go-secs/secs2"
)

// DataMessage represents a SECS-II data message: stream, function, wait bit, device id,
// system bytes and body. SECS-I connections use the same type.
//
// It implements the HSMSMessage and secs2.SECS2Message interfaces.
type DataMessage struct {
	item        secs2.Item
	systemBytes uint32
	deviceID    uint16
	stream      byte
	function    byte
	waitBit     bool
}

var (
	_ HSMSMessage        = (*DataMessage)(nil)
	_ secs2.SECS2Message = (*DataMessage)(nil)
)

// NewDataMessage creates a new data message.
//
// stream must be in range of [0, 127]. replyExpected sets the W-bit and is only allowed on
// a primary message (odd function code). A nil item is a header-only message.
//
// An out-of-range argument, or an item that recorded a creation error, is reported as
// *ConstructionError.
func NewDataMessage(stream byte, function byte, replyExpected bool, deviceID uint16, systemBytes uint32, item secs2.Item) (*DataMessage, error) {
	if stream > 127 {
		return nil, &ConstructionError{Field: "stream", Value: int(stream), Err: ErrInvalidStreamCode}
	}

	if replyExpected && function%2 == 0 {
		return nil, &ConstructionError{Field: "function", Value: int(function), Err: ErrInvalidRspMsg}
	}

	if item == nil {
		item = secs2.NewEmptyItem()
	}

	if err := item.Error(); err != nil {
		return nil, &ConstructionError{Field: "item", Err: err}
	}

	return &DataMessage{
		stream:      stream,
		function:    function,
		waitBit:     replyExpected,
		deviceID:    deviceID,
		systemBytes: systemBytes,
		item:        item,
	}, nil
}

// NewDataMessageFrom creates a data message from a transport independent SECS-II message.
func NewDataMessageFrom(msg secs2.SECS2Message, deviceID uint16, systemBytes uint32) (*DataMessage, error) {
	if dm, ok := msg.(*DataMessage); ok {
		return dm.WithDeviceID(deviceID).WithSystemBytes(systemBytes), nil
	}

	return NewDataMessage(msg.StreamCode(), msg.FunctionCode(), msg.WaitBit(), deviceID, systemBytes, msg.Item())
}

// NewReplyDataMessage creates the reply to primaryMsg: same device id and system bytes,
// W-bit cleared.
func NewReplyDataMessage(primaryMsg *DataMessage, stream byte, function byte, item secs2.Item) (*DataMessage, error) {
	return NewDataMessage(stream, function, false, primaryMsg.deviceID, primaryMsg.systemBytes, item)
}

// WithSystemBytes returns a copy of msg carrying the given system bytes.
func (msg *DataMessage) WithSystemBytes(systemBytes uint32) *DataMessage {
	cloned := *msg
	cloned.systemBytes = systemBytes

	return &cloned
}

// WithDeviceID returns a copy of msg carrying the given device id.
func (msg *DataMessage) WithDeviceID(deviceID uint16) *DataMessage {
	cloned := *msg
	cloned.deviceID = deviceID

	return &cloned
}

func (msg *DataMessage) Type() int { return DataMsgType }

// SessionID returns the device id. It is the same as DeviceID.
func (msg *DataMessage) SessionID() uint16 { return msg.deviceID }

// DeviceID returns the device id of the message.
func (msg *DataMessage) DeviceID() uint16 { return msg.deviceID }

func (msg *DataMessage) ID() uint32 { return msg.systemBytes }

func (msg *DataMessage) SystemBytes() []byte { return ToSystemBytes(msg.systemBytes) }

func (msg *DataMessage) StreamCode() uint8 { return msg.stream }

func (msg *DataMessage) FunctionCode() uint8 { return msg.function }

func (msg *DataMessage) WaitBit() bool { return msg.waitBit }

// Item returns the message body. A header-only message returns an *secs2.EmptyItem.
func (msg *DataMessage) Item() secs2.Item { return msg.item }

// IsPrimary reports whether the function code is odd.
func (msg *DataMessage) IsPrimary() bool { return msg.function%2 == 1 }

func (msg *DataMessage) Header() []byte {
	header := make([]byte, HeaderSize)
	msg.putHeader(header)

	return header
}

func (msg *DataMessage) putHeader(header []byte) {
	binary.BigEndian.PutUint16(header[0:2], msg.deviceID)

	header[2] = msg.stream
	if msg.waitBit {
		header[2] |= 0x80
	}
	header[3] = msg.function

	// PType and SType are zero for data messages
	header[4] = 0
	header[5] = DataMsgType
	binary.BigEndian.PutUint32(header[6:10], msg.systemBytes)
}

// MarshalBinary returns the complete HSMS frame. It fails with *secs2.EncodeError if the
// body cannot be encoded or is longer than secs2.MaxByteSize, the largest frame a receiver
// accepts.
func (msg *DataMessage) MarshalBinary() ([]byte, error) {
	body, err := secs2.Encode(msg.item)
	if err != nil {
		return nil, err
	}

	// the receiving accumulator rejects anything longer
	if HeaderSize+len(body) > MaxFrameLength {
		return nil, &secs2.EncodeError{Kind: secs2.LengthOverflow, Type: "HSMS body", Length: len(body), Limit: secs2.MaxByteSize}
	}

	frame := make([]byte, MinFrameSize, MinFrameSize+len(body))
	binary.BigEndian.PutUint32(frame[0:4], uint32(HeaderSize+len(body))) //nolint:gosec
	msg.putHeader(frame[4:MinFrameSize])

	return append(frame, body...), nil
}

func (msg *DataMessage) ToBytes() []byte {
	frame, err := msg.MarshalBinary()
	if err != nil {
		return nil
	}

	return frame
}

func (msg *DataMessage) IsControlMessage() bool { return false }

func (msg *DataMessage) ToControlMessage() (*ControlMessage, bool) { return nil, false }

func (msg *DataMessage) IsDataMessage() bool { return true }

func (msg *DataMessage) ToDataMessage() (*DataMessage, bool) { return msg, true }

// SMLHeader returns the message header in SML, e.g. "S6F11 W".
func (msg *DataMessage) SMLHeader() string {
	header := "S" + strconv.Itoa(int(msg.stream)) + "F" + strconv.Itoa(int(msg.function))
	if msg.waitBit {
		header += " W"
	}

	return header
}

// ToSML renders the message as SML:
//
//	S1F2
//	<L[2]
//	  <A[6] "MDLN-A">
//	  <A[9] "SOFTREV-1">
//	>
//	.
func (msg *DataMessage) ToSML() string {
	header := msg.SMLHeader()
	if msg.item == nil || msg.item.IsEmpty() {
		return header + "\n."
	}

	body := msg.item.ToSML()

	var sb strings.Builder
	sb.Grow(len(header) + len(body) + 3)
	sb.WriteString(header)
	sb.WriteByte('\n')
	sb.WriteString(body)
	sb.WriteString("\n.")

	return sb.String()
}
