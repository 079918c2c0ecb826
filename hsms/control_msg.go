package hsms

import (
	"encoding/binary"
	"errors"

	"github.com/fabwire/go-secs/secs2"
)

// Select and Deselect status codes, carried in header byte 3 of the responses.
const (
	SelectStatusSuccess       = 0
	SelectStatusAlreadyActive = 1
	SelectStatusNotReady      = 2
	SelectStatusAlreadyUsed   = 3
	SelectStatusUnknown       = 0xFF

	DeselectStatusSuccess  = 0
	DeselectStatusNotReady = 2
)

// Reject reason codes, carried in header byte 3 of Reject.req.
const (
	RejectSTypeNotSupported  = 1 // received message's sType is not supported
	RejectPTypeNotSupported  = 2 // received message's pType is not supported
	RejectTransactionNotOpen = 3 // response message was received without an open request
	RejectNotSelected        = 4 // data message was received in non-selected state
	RejectUnknown            = 0xFF
)

// RejectReasonString returns the name of a reject reason code.
func RejectReasonString(reason byte) string {
	switch reason {
	case RejectSTypeNotSupported:
		return "stype-not-supported"
	case RejectPTypeNotSupported:
		return "ptype-not-supported"
	case RejectTransactionNotOpen:
		return "transaction-not-open"
	case RejectNotSelected:
		return "not-selected"
	default:
		return "unknown"
	}
}

// ControlMessage represents a HSMS control message. It has a header and no body.
//
// It implements the HSMSMessage and secs2.SECS2Message interfaces.
type ControlMessage struct {
	header [HeaderSize]byte
}

var (
	_ HSMSMessage        = (*ControlMessage)(nil)
	_ secs2.SECS2Message = (*ControlMessage)(nil)
)

// NewControlMessage creates a control message from a 10-byte header. Headers with an unknown
// PType or SType are kept as is; their Type is UndefinedMsgType.
func NewControlMessage(header []byte) (*ControlMessage, error) {
	if len(header) != HeaderSize {
		return nil, errors.New("hsms: control message header must be 10 bytes")
	}

	msg := &ControlMessage{}
	copy(msg.header[:], header)

	return msg, nil
}

func newControlMessage(sessionID uint16, sType byte, systemBytes uint32) *ControlMessage {
	msg := &ControlMessage{}
	binary.BigEndian.PutUint16(msg.header[0:2], sessionID)
	msg.header[5] = sType
	binary.BigEndian.PutUint32(msg.header[6:10], systemBytes)

	return msg
}

// newControlRsp creates a response mirroring the session id and system bytes of req.
func newControlRsp(req HSMSMessage, reqType int, sType byte, status byte) (*ControlMessage, error) {
	if req.Type() != reqType {
		return nil, errors.New("hsms: expected " + MsgTypeName(reqType) + " message")
	}

	msg := newControlMessage(req.SessionID(), sType, req.ID())
	msg.header[3] = status

	return msg, nil
}

// Type returns the control message type, or UndefinedMsgType for an unknown PType or SType.
func (msg *ControlMessage) Type() int {
	if msg.header[4] != 0 {
		return UndefinedMsgType
	}

	sType := int(msg.header[5])
	if _, ok := hsmsMsgTypeMap[sType]; !ok || sType == DataMsgType {
		return UndefinedMsgType
	}

	return sType
}

// PType returns header byte 4.
func (msg *ControlMessage) PType() byte { return msg.header[4] }

// SType returns header byte 5.
func (msg *ControlMessage) SType() byte { return msg.header[5] }

// Status returns header byte 3: the select/deselect status of a response, or the reason code
// of a Reject.req.
func (msg *ControlMessage) Status() byte { return msg.header[3] }

// RejectedType returns header byte 2 of a Reject.req: the PType or SType of the rejected message.
func (msg *ControlMessage) RejectedType() byte { return msg.header[2] }

func (msg *ControlMessage) SessionID() uint16 {
	return binary.BigEndian.Uint16(msg.header[0:2])
}

func (msg *ControlMessage) ID() uint32 {
	return binary.BigEndian.Uint32(msg.header[6:10])
}

func (msg *ControlMessage) SystemBytes() []byte {
	return ToSystemBytes(msg.ID())
}

func (msg *ControlMessage) Header() []byte {
	header := make([]byte, HeaderSize)
	copy(header, msg.header[:])

	return header
}

func (msg *ControlMessage) MarshalBinary() ([]byte, error) {
	return msg.ToBytes(), nil
}

func (msg *ControlMessage) ToBytes() []byte {
	result := make([]byte, 0, MinFrameSize)
	result = append(result, 0, 0, 0, HeaderSize)
	result = append(result, msg.header[:]...)

	return result
}

// StreamCode returns header byte 2.
func (msg *ControlMessage) StreamCode() uint8 { return msg.header[2] }

// FunctionCode returns header byte 3.
func (msg *ControlMessage) FunctionCode() uint8 { return msg.header[3] }

// WaitBit reports whether the control message is a request that expects a response.
func (msg *ControlMessage) WaitBit() bool {
	switch msg.Type() {
	case SelectReqType, DeselectReqType, LinkTestReqType:
		return true
	default:
		return false
	}
}

// Item returns an empty item, control messages have no body.
func (msg *ControlMessage) Item() secs2.Item { return secs2.NewEmptyItem() }

func (msg *ControlMessage) IsControlMessage() bool { return true }

func (msg *ControlMessage) ToControlMessage() (*ControlMessage, bool) { return msg, true }

func (msg *ControlMessage) IsDataMessage() bool { return false }

func (msg *ControlMessage) ToDataMessage() (*DataMessage, bool) { return nil, false }

// NewSelectReq creates a Select.req control message.
func NewSelectReq(systemBytes uint32) *ControlMessage {
	return newControlMessage(ControlSessionID, SelectReqType, systemBytes)
}

// NewSelectRsp creates the Select.rsp answering selectReq with the given status.
func NewSelectRsp(selectReq HSMSMessage, status byte) (*ControlMessage, error) {
	return newControlRsp(selectReq, SelectReqType, SelectRspType, status)
}

// NewDeselectReq creates a Deselect.req control message.
func NewDeselectReq(systemBytes uint32) *ControlMessage {
	return newControlMessage(ControlSessionID, DeselectReqType, systemBytes)
}

// NewDeselectRsp creates the Deselect.rsp answering deselectReq with the given status.
func NewDeselectRsp(deselectReq HSMSMessage, status byte) (*ControlMessage, error) {
	return newControlRsp(deselectReq, DeselectReqType, DeselectRspType, status)
}

// NewLinktestReq creates a Linktest.req control message.
func NewLinktestReq(systemBytes uint32) *ControlMessage {
	return newControlMessage(ControlSessionID, LinkTestReqType, systemBytes)
}

// NewLinktestRsp creates the Linktest.rsp answering linktestReq.
func NewLinktestRsp(linktestReq HSMSMessage) (*ControlMessage, error) {
	return newControlRsp(linktestReq, LinkTestReqType, LinkTestRspType, 0)
}

// NewRejectReq creates a Reject.req for recvMsg.
//
// Header byte 2 mirrors the PType of recvMsg when reason is RejectPTypeNotSupported,
// and its SType otherwise. Session id and system bytes are copied from recvMsg.
func NewRejectReq(recvMsg HSMSMessage, reason byte) *ControlMessage {
	msg := newControlMessage(recvMsg.SessionID(), RejectReqType, recvMsg.ID())

	if ctrl, ok := recvMsg.ToControlMessage(); ok {
		if reason == RejectPTypeNotSupported {
			msg.header[2] = ctrl.PType()
		} else {
			msg.header[2] = ctrl.SType()
		}
	}
	// pType and sType of a data message are both zero
	msg.header[3] = reason

	return msg
}

// NewSeparateReq creates a Separate.req control message.
func NewSeparateReq(systemBytes uint32) *ControlMessage {
	return newControlMessage(ControlSessionID, SeparateReqType, systemBytes)
}
