package hsms

import (
	"encoding"
	"encoding/binary"

	"github.com/fabwire/go-secs/secs2"
)

// Message type constants, the SType values of the HSMS header.
const (
	UndefinedMsgType = -1 // unknown PType or SType
	DataMsgType      = 0  // data message containing SECS-II data
	SelectReqType    = 1
	SelectRspType    = 2
	DeselectReqType  = 3
	DeselectRspType  = 4
	LinkTestReqType  = 5
	LinkTestRspType  = 6
	RejectReqType    = 7
	SeparateReqType  = 9
)

const (
	// HeaderSize is the size of the HSMS message header in bytes.
	HeaderSize = 10
	// LengthFieldSize is the size of the message length field in bytes.
	LengthFieldSize = 4
	// MinFrameSize is the minimum size of an HSMS frame (length field + header).
	MinFrameSize = LengthFieldSize + HeaderSize
	// ControlSessionID is the session id carried by control messages.
	ControlSessionID = 0xFFFF
)

var hsmsMsgTypeMap = map[int]string{
	DataMsgType:      "data.msg",
	SelectReqType:    "select.req",
	SelectRspType:    "select.rsp",
	DeselectReqType:  "deselect.req",
	DeselectRspType:  "deselect.rsp",
	LinkTestReqType:  "linktest.req",
	LinkTestRspType:  "linktest.rsp",
	RejectReqType:    "reject.req",
	SeparateReqType:  "separate.req",
	UndefinedMsgType: "undefined",
}

// MsgTypeName returns the name of an HSMS message type, e.g. "select.req".
func MsgTypeName(msgType int) string {
	if name, ok := hsmsMsgTypeMap[msgType]; ok {
		return name
	}

	return "undefined"
}

// HSMSMessage is a data or control message as carried in an HSMS frame.
//
// Messages are immutable once constructed. The With* methods of DataMessage return copies.
type HSMSMessage interface {
	encoding.BinaryMarshaler
	secs2.SECS2Message

	// Type returns the HSMS message type, one of the *Type constants.
	Type() int

	// SessionID returns header bytes 0-1: the device id of a data message, or the session id of
	// a control message.
	SessionID() uint16

	// ID returns the system bytes as a number. It is the correlation key between a request
	// and its reply.
	ID() uint32

	// SystemBytes returns the 4-byte system bytes.
	SystemBytes() []byte

	// Header returns a copy of the 10-byte HSMS header.
	Header() []byte

	// ToBytes returns the complete frame: length field, header and body.
	// It returns nil if the body cannot be encoded, see MarshalBinary.
	ToBytes() []byte

	IsControlMessage() bool
	ToControlMessage() (*ControlMessage, bool)
	IsDataMessage() bool
	ToDataMessage() (*DataMessage, bool)
}

// ToSystemBytes converts id to 4-byte big-endian system bytes.
func ToSystemBytes(id uint32) []byte {
	systemBytes := make([]byte, 4)
	binary.BigEndian.PutUint32(systemBytes, id)

	return systemBytes
}

// MsgInfo returns key/values describing msg for structured logging.
func MsgInfo(msg HSMSMessage, keyValues ...any) []any {
	info := []any{
		"id", msg.ID(),
		"type", MsgTypeName(msg.Type()),
		"s", msg.StreamCode(),
		"f", msg.FunctionCode(),
	}

	result := make([]any, 0, len(keyValues)+len(info))
	result = append(result, keyValues...)
	result = append(result, info...)

	return result
}
