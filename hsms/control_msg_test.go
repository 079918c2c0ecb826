package hsms

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestControlMessage_SelectReq(t *testing.T) {
	require := require.New(t)

	msg := NewSelectReq(0x11223344)
	require.Equal(SelectReqType, msg.Type())
	require.Equal(uint16(0xFFFF), msg.SessionID())
	require.Equal(uint32(0x11223344), msg.ID())
	require.True(msg.WaitBit())
	require.True(msg.IsControlMessage())
	require.True(msg.Item().IsEmpty())
	require.Equal([]byte{
		0, 0, 0, 10,
		0xFF, 0xFF, 0, 0, 0, 1, 0x11, 0x22, 0x33, 0x44,
	}, msg.ToBytes())

	frame, err := msg.MarshalBinary()
	require.NoError(err)
	require.Equal(msg.ToBytes(), frame)
}

func TestControlMessage_Responses(t *testing.T) {
	require := require.New(t)

	req := NewSelectReq(42)
	rsp, err := NewSelectRsp(req, SelectStatusAlreadyActive)
	require.NoError(err)
	require.Equal(SelectRspType, rsp.Type())
	require.Equal(uint32(42), rsp.ID())
	require.Equal(req.SessionID(), rsp.SessionID())
	require.Equal(byte(SelectStatusAlreadyActive), rsp.Status())
	require.False(rsp.WaitBit())

	_, err = NewSelectRsp(NewLinktestReq(1), SelectStatusSuccess)
	require.Error(err)

	dreq := NewDeselectReq(7)
	drsp, err := NewDeselectRsp(dreq, DeselectStatusNotReady)
	require.NoError(err)
	require.Equal(DeselectRspType, drsp.Type())
	require.Equal(byte(DeselectStatusNotReady), drsp.Status())

	lreq := NewLinktestReq(9)
	require.Equal(LinkTestReqType, lreq.Type())
	lrsp, err := NewLinktestRsp(lreq)
	require.NoError(err)
	require.Equal(LinkTestRspType, lrsp.Type())
	require.Equal(uint32(9), lrsp.ID())

	sep := NewSeparateReq(3)
	require.Equal(SeparateReqType, sep.Type())
	require.False(sep.WaitBit())
}

func TestControlMessage_RejectReq(t *testing.T) {
	require := require.New(t)

	dataMsg, err := NewDataMessage(1, 1, true, 0x0102, 77, nil)
	require.NoError(err)

	rej := NewRejectReq(dataMsg, RejectNotSelected)
	require.Equal(RejectReqType, rej.Type())
	require.Equal(uint16(0x0102), rej.SessionID())
	require.Equal(uint32(77), rej.ID())
	require.Equal(byte(0), rej.RejectedType())
	require.Equal(byte(RejectNotSelected), rej.Status())

	unknown, err := NewControlMessage([]byte{0xFF, 0xFF, 0, 0, 0, 8, 0, 0, 0, 5})
	require.NoError(err)
	require.Equal(UndefinedMsgType, unknown.Type())
	rej = NewRejectReq(unknown, RejectSTypeNotSupported)
	require.Equal(byte(8), rej.RejectedType())

	badPType, err := NewControlMessage([]byte{0xFF, 0xFF, 0, 0, 3, 1, 0, 0, 0, 6})
	require.NoError(err)
	require.Equal(UndefinedMsgType, badPType.Type())
	rej = NewRejectReq(badPType, RejectPTypeNotSupported)
	require.Equal(byte(3), rej.RejectedType())
	require.Equal(uint32(6), rej.ID())
}

func TestNewControlMessage_InvalidHeader(t *testing.T) {
	_, err := NewControlMessage([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestRejectReasonString(t *testing.T) {
	require.Equal(t, "not-selected", RejectReasonString(RejectNotSelected))
	require.Equal(t, "transaction-not-open", RejectReasonString(RejectTransactionNotOpen))
	require.Equal(t, "unknown", RejectReasonString(0x42))
}
