package hsmsss

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fabwire/go-secs/hsms"
	"github.com/fabwire/go-secs/secs2"
	"github.com/stretchr/testify/require"
)

func newDataFrame(t *testing.T, stream, function byte, wait bool, id uint32, item secs2.Item) []byte {
	t.Helper()

	msg, err := hsms.NewDataMessage(stream, function, wait, 0, id, item)
	require.NoError(t, err)

	return msg.ToBytes()
}

func TestConnection_PassiveSelect(t *testing.T) {
	require := require.New(t)

	conn, rec := newTestConn(t, WithPassive())
	l, tr := attachFake(t, conn)
	require.Equal(hsms.ConnectedState, conn.State())

	selectPassive(t, conn, l, tr)

	// a second Select.req on a selected session is answered AlreadyActive
	feed(t, conn, l, hsms.NewSelectReq(1001).ToBytes())
	rsp := tr.nextControl(t)
	require.Equal(hsms.SelectRspType, rsp.Type())
	require.Equal(uint32(1001), rsp.ID())
	require.Equal(byte(hsms.SelectStatusAlreadyActive), rsp.Status())
	require.Equal(hsms.SelectedState, conn.State())

	require.Eventually(func() bool {
		return rec.count(func(ev hsms.Event) bool { _, ok := ev.(hsms.SelectedEvent); return ok }) == 1
	}, waitTimeout, 5*time.Millisecond)
}

func TestConnection_ActiveSelect(t *testing.T) {
	require := require.New(t)

	conn, _ := newTestConn(t, WithActive())
	l, tr := attachFake(t, conn)

	req := tr.nextControl(t)
	require.Equal(hsms.SelectReqType, req.Type())
	require.Equal(uint32(1), req.ID())

	rsp, err := hsms.NewSelectRsp(req, hsms.SelectStatusSuccess)
	require.NoError(err)
	feed(t, conn, l, rsp.ToBytes())
	require.Equal(hsms.SelectedState, conn.State())
}

func TestConnection_ActiveSelectRejected(t *testing.T) {
	require := require.New(t)

	conn, rec := newTestConn(t, WithActive())
	l, tr := attachFake(t, conn)

	req := tr.nextControl(t)
	rsp, err := hsms.NewSelectRsp(req, hsms.SelectStatusAlreadyUsed)
	require.NoError(err)
	feed(t, conn, l, rsp.ToBytes())

	require.Equal(hsms.NotConnectedState, conn.State())
	require.True(tr.closed.Load())
	require.Eventually(func() bool { return rec.hasError(hsms.ErrSelectFailed) }, waitTimeout, 5*time.Millisecond)
}

func TestConnection_T7Timeout(t *testing.T) {
	require := require.New(t)

	conn, rec := newTestConn(t, WithPassive(), WithT7Timeout(50*time.Millisecond))
	_, tr := attachFake(t, conn)

	require.Eventually(func() bool { return conn.State() == hsms.NotConnectedState }, waitTimeout, 5*time.Millisecond)
	require.True(tr.closed.Load())
	require.Eventually(func() bool { return rec.hasError(hsms.ErrT7Timeout) }, waitTimeout, 5*time.Millisecond)
}

func TestConnection_SelectCancelsT7(t *testing.T) {
	require := require.New(t)

	conn, rec := newTestConn(t, WithPassive(), WithT7Timeout(80*time.Millisecond))
	l, tr := attachFake(t, conn)
	selectPassive(t, conn, l, tr)

	time.Sleep(200 * time.Millisecond)
	require.Equal(hsms.SelectedState, conn.State())
	require.False(tr.closed.Load())
	require.False(rec.hasError(hsms.ErrT7Timeout))
}

func TestConnection_DeselectRearmsT7(t *testing.T) {
	require := require.New(t)

	conn, rec := newTestConn(t, WithPassive(), WithT7Timeout(80*time.Millisecond))
	l, tr := attachFake(t, conn)
	selectPassive(t, conn, l, tr)

	feed(t, conn, l, hsms.NewDeselectReq(7).ToBytes())
	rsp := tr.nextControl(t)
	require.Equal(hsms.DeselectRspType, rsp.Type())
	require.Equal(byte(hsms.DeselectStatusSuccess), rsp.Status())
	require.Equal(hsms.ConnectedState, conn.State())

	require.Eventually(func() bool { return tr.closed.Load() }, waitTimeout, 5*time.Millisecond)
	require.Equal(hsms.NotConnectedState, conn.State())
	require.Eventually(func() bool { return rec.hasError(hsms.ErrT7Timeout) }, waitTimeout, 5*time.Millisecond)
}

func TestConnection_DeselectNotSelected(t *testing.T) {
	require := require.New(t)

	conn, _ := newTestConn(t, WithPassive())
	l, tr := attachFake(t, conn)

	feed(t, conn, l, hsms.NewDeselectReq(3).ToBytes())
	rsp := tr.nextControl(t)
	require.Equal(hsms.DeselectRspType, rsp.Type())
	require.Equal(byte(hsms.DeselectStatusNotReady), rsp.Status())
	require.Equal(hsms.ConnectedState, conn.State())
}

func TestConnection_T8PartialFrame(t *testing.T) {
	require := require.New(t)

	conn, rec := newTestConn(t, WithPassive(), WithT8Timeout(50*time.Millisecond))
	l, tr := attachFake(t, conn)

	frame := hsms.NewSelectReq(1).ToBytes()
	feed(t, conn, l, frame[:6])

	require.Eventually(func() bool { return tr.closed.Load() }, waitTimeout, 5*time.Millisecond)
	require.Equal(hsms.NotConnectedState, conn.State())
	require.Eventually(func() bool { return rec.hasError(hsms.ErrT8Timeout) }, waitTimeout, 5*time.Millisecond)
}

func TestConnection_ChunkedFrames(t *testing.T) {
	require := require.New(t)

	conn, _ := newTestConn(t, WithPassive(), WithT8Timeout(time.Second))
	l, tr := attachFake(t, conn)

	// one Select.req split byte by byte, followed by a Linktest.req in the same chunk as its tail
	frame := hsms.NewSelectReq(1).ToBytes()
	for _, b := range frame[:len(frame)-1] {
		feed(t, conn, l, []byte{b})
	}
	tail := append([]byte{frame[len(frame)-1]}, hsms.NewLinktestReq(2).ToBytes()...)
	feed(t, conn, l, tail)

	require.Equal(hsms.SelectRspType, tr.nextControl(t).Type())
	rsp := tr.nextControl(t)
	require.Equal(hsms.LinkTestRspType, rsp.Type())
	require.Equal(uint32(2), rsp.ID())
	require.Equal(hsms.SelectedState, conn.State())
}

func TestConnection_FramingTooShort(t *testing.T) {
	require := require.New(t)

	conn, rec := newTestConn(t, WithPassive())
	l, tr := attachFake(t, conn)

	feed(t, conn, l, []byte{0, 0, 0, 5, 1, 2, 3, 4, 5})

	require.True(tr.closed.Load())
	require.Equal(hsms.NotConnectedState, conn.State())
	require.Eventually(func() bool {
		for _, err := range rec.errors() {
			var pe *hsms.ProtocolError
			if errors.As(err, &pe) && pe.Kind == hsms.FramingTooShort {
				return true
			}
		}
		return false
	}, waitTimeout, 5*time.Millisecond)
}

func TestConnection_RejectDataNotSelected(t *testing.T) {
	require := require.New(t)

	conn, rec := newTestConn(t, WithPassive())
	l, tr := attachFake(t, conn)

	feed(t, conn, l, newDataFrame(t, 1, 1, true, 55, nil))

	rej := tr.nextControl(t)
	require.Equal(hsms.RejectReqType, rej.Type())
	require.Equal(uint32(55), rej.ID())
	require.Equal(byte(hsms.RejectNotSelected), rej.Status())
	require.Zero(rej.RejectedType())

	time.Sleep(20 * time.Millisecond)
	require.Empty(rec.messages())
	require.Equal(hsms.ConnectedState, conn.State())
}

func TestConnection_RejectUnsupportedType(t *testing.T) {
	require := require.New(t)

	conn, _ := newTestConn(t, WithPassive())
	l, tr := attachFake(t, conn)

	// SType 8 is not defined
	frame := []byte{0, 0, 0, 10, 0xFF, 0xFF, 0, 0, 0, 8, 0, 0, 0, 9}
	feed(t, conn, l, frame)
	rej := tr.nextControl(t)
	require.Equal(byte(hsms.RejectSTypeNotSupported), rej.Status())
	require.Equal(byte(8), rej.RejectedType())
	require.Equal(uint32(9), rej.ID())

	// PType 3 is not SECS-II
	frame = []byte{0, 0, 0, 10, 0xFF, 0xFF, 0, 0, 3, 1, 0, 0, 0, 10}
	feed(t, conn, l, frame)
	rej = tr.nextControl(t)
	require.Equal(byte(hsms.RejectPTypeNotSupported), rej.Status())
	require.Equal(byte(3), rej.RejectedType())

	require.Equal(hsms.ConnectedState, conn.State())
}

func TestConnection_UnmatchedResponse(t *testing.T) {
	require := require.New(t)

	conn, _ := newTestConn(t, WithPassive())
	l, tr := attachFake(t, conn)
	selectPassive(t, conn, l, tr)

	rsp, err := hsms.NewLinktestRsp(hsms.NewLinktestReq(4242))
	require.NoError(err)
	feed(t, conn, l, rsp.ToBytes())

	rej := tr.nextControl(t)
	require.Equal(hsms.RejectReqType, rej.Type())
	require.Equal(byte(hsms.RejectTransactionNotOpen), rej.Status())
	require.Equal(uint32(4242), rej.ID())
	require.Equal(hsms.SelectedState, conn.State())
}

func TestConnection_SendCorrelatesBySystemBytes(t *testing.T) {
	require := require.New(t)

	conn, rec := newTestConn(t, WithPassive())
	l, tr := attachFake(t, conn)
	selectPassive(t, conn, l, tr)

	type result struct {
		reply *hsms.DataMessage
		err   error
	}
	done := make(chan result, 1)
	go func() {
		reply, err := conn.Session().SendDataMessage(context.Background(), 1, 1, true, nil)
		done <- result{reply, err}
	}()

	primary, ok := tr.next(t).ToDataMessage()
	require.True(ok)
	require.True(primary.WaitBit())
	require.Equal(1, pendingTx(t, conn))

	// a secondary with other system bytes is not the reply
	other := newDataFrame(t, 1, 2, false, primary.ID()+100, nil)
	feed(t, conn, l, other)
	require.Eventually(func() bool { return len(rec.messages()) == 1 }, waitTimeout, 5*time.Millisecond)

	item := secs2.NewListItem(secs2.NewASCIIItem("MDLN-A"), secs2.NewASCIIItem("SOFTREV-1"))
	feed(t, conn, l, newDataFrame(t, 1, 2, false, primary.ID(), item))

	select {
	case res := <-done:
		require.NoError(res.err)
		require.Equal(primary.ID(), res.reply.ID())
		require.Equal(item.ToSML(), res.reply.Item().ToSML())
	case <-time.After(waitTimeout):
		t.Fatal("send did not complete")
	}

	require.Zero(conn.Metrics().DataMsgInflightCount.Load())
}

func TestConnection_SendNotSelected(t *testing.T) {
	require := require.New(t)

	conn, _ := newTestConn(t, WithPassive())
	_, tr := attachFake(t, conn)

	_, err := conn.Session().SendDataMessage(context.Background(), 1, 1, true, nil)
	require.ErrorIs(err, hsms.ErrNotSelected)
	tr.requireNoWrite(t, 20*time.Millisecond)
}

func TestConnection_SendNotOpened(t *testing.T) {
	require := require.New(t)

	cfg, err := NewConnectionConfig("127.0.0.1", 0)
	require.NoError(err)
	conn, err := NewConnection(context.Background(), cfg)
	require.NoError(err)

	_, err = conn.Session().SendDataMessage(context.Background(), 1, 1, true, nil)
	require.ErrorIs(err, hsms.ErrNotConnected)

	require.NoError(conn.Close())
	_, err = conn.Session().SendDataMessage(context.Background(), 1, 1, true, nil)
	require.ErrorIs(err, hsms.ErrConnClosed)
}

func TestConnection_SendWithoutReply(t *testing.T) {
	require := require.New(t)

	conn, _ := newTestConn(t, WithPassive())
	l, tr := attachFake(t, conn)
	selectPassive(t, conn, l, tr)

	reply, err := conn.Session().SendDataMessage(context.Background(), 6, 11, false, secs2.NewUintItem(4, 1))
	require.NoError(err)
	require.Nil(reply)

	msg, ok := tr.next(t).ToDataMessage()
	require.True(ok)
	require.False(msg.WaitBit())
	require.Equal(uint8(6), msg.StreamCode())
	require.Zero(pendingTx(t, conn))
}

func TestConnection_T3Timeout(t *testing.T) {
	require := require.New(t)

	conn, _ := newTestConn(t, WithPassive(), WithEquipRole(), WithS9Reporting(true), WithT3Timeout(80*time.Millisecond))
	l, tr := attachFake(t, conn)
	selectPassive(t, conn, l, tr)

	_, err := conn.Session().SendDataMessage(context.Background(), 6, 11, true, nil)
	require.ErrorIs(err, hsms.ErrT3Timeout)
	require.Equal(uint64(1), conn.Metrics().T3TimeoutCount.Load())

	primary, ok := tr.next(t).ToDataMessage()
	require.True(ok)

	report, ok := tr.next(t).ToDataMessage()
	require.True(ok)
	require.Equal(uint8(9), report.StreamCode())
	require.Equal(uint8(9), report.FunctionCode())
	require.Equal(secs2.NewBinaryItem(primary.Header()).ToSML(), report.Item().ToSML())

	// the session survives a reply timeout
	require.Equal(hsms.SelectedState, conn.State())
}

func TestConnection_RejectFailsTransaction(t *testing.T) {
	require := require.New(t)

	conn, _ := newTestConn(t, WithPassive())
	l, tr := attachFake(t, conn)
	selectPassive(t, conn, l, tr)

	errCh := make(chan error, 1)
	go func() {
		_, err := conn.Session().SendDataMessage(context.Background(), 99, 1, true, nil)
		errCh <- err
	}()

	primary := tr.next(t)
	feed(t, conn, l, hsms.NewRejectReq(primary, hsms.RejectSTypeNotSupported).ToBytes())

	err := <-errCh
	var rejectErr *hsms.RejectError
	require.ErrorAs(err, &rejectErr)
	require.Equal(byte(hsms.RejectSTypeNotSupported), rejectErr.Reason)
	require.Equal(primary.ID(), rejectErr.ID)
}

func TestConnection_CloseFailsPending(t *testing.T) {
	require := require.New(t)

	conn, rec := newTestConn(t, WithPassive())
	l, tr := attachFake(t, conn)
	selectPassive(t, conn, l, tr)

	errCh := make(chan error, 1)
	go func() {
		_, err := conn.Session().SendDataMessage(context.Background(), 1, 1, true, nil)
		errCh <- err
	}()
	_ = tr.next(t)

	require.NoError(conn.Close())
	require.ErrorIs(<-errCh, hsms.ErrConnClosed)
	require.True(tr.closed.Load())

	// a selected session is separated before the transport closes
	sep := tr.nextControl(t)
	require.Equal(hsms.SeparateReqType, sep.Type())

	n := len(rec.errors())
	time.Sleep(20 * time.Millisecond)
	require.Len(rec.errors(), n, "no events after Close")
}

func TestConnection_SendBodyTooLarge(t *testing.T) {
	require := require.New(t)

	conn, _ := newTestConn(t, WithPassive())
	l, tr := attachFake(t, conn)
	selectPassive(t, conn, l, tr)

	half := secs2.NewBinaryItem(make([]byte, 1<<23))
	msg, err := hsms.NewDataMessage(6, 11, true, 0, 0, secs2.NewListItem(half, half))
	require.NoError(err)

	_, err = conn.Send(context.Background(), msg)
	require.ErrorIs(err, secs2.ErrLengthOverflow)

	tr.requireNoWrite(t, 50*time.Millisecond)
	require.Equal(hsms.SelectedState, conn.State())
	require.Zero(conn.Metrics().DataMsgInflightCount.Load())
}

func TestConnection_WriteFailureTearsDown(t *testing.T) {
	require := require.New(t)

	conn, rec := newTestConn(t, WithPassive())
	l, tr := attachFake(t, conn)
	selectPassive(t, conn, l, tr)

	pending := make(chan error, 1)
	go func() {
		_, err := conn.Session().SendDataMessage(context.Background(), 1, 1, true, nil)
		pending <- err
	}()
	_ = tr.next(t)

	tr.failData.Store(true)
	_, err := conn.Session().SendDataMessage(context.Background(), 1, 3, true, nil)
	require.ErrorIs(err, errFakeWrite)

	select {
	case err := <-pending:
		require.ErrorIs(err, hsms.ErrConnClosed)
	case <-time.After(waitTimeout):
		t.Fatal("pending transaction not failed")
	}

	require.Eventually(func() bool { return conn.State() == hsms.NotConnectedState }, waitTimeout, 5*time.Millisecond)
	require.True(tr.closed.Load())
	require.Eventually(func() bool { return rec.hasError(errFakeWrite) }, waitTimeout, 5*time.Millisecond)
}

func TestConnection_SeparateReceived(t *testing.T) {
	require := require.New(t)

	conn, rec := newTestConn(t, WithPassive())
	l, tr := attachFake(t, conn)
	selectPassive(t, conn, l, tr)

	feed(t, conn, l, hsms.NewSeparateReq(77).ToBytes())

	require.True(tr.closed.Load())
	require.Equal(hsms.NotConnectedState, conn.State())
	require.Eventually(func() bool {
		return rec.count(func(ev hsms.Event) bool {
			d, ok := ev.(hsms.DisconnectedEvent)
			return ok && d.Err == nil
		}) == 1
	}, waitTimeout, 5*time.Millisecond)
}

func TestConnection_DeselectRequest(t *testing.T) {
	require := require.New(t)

	conn, rec := newTestConn(t, WithPassive())
	l, tr := attachFake(t, conn)
	selectPassive(t, conn, l, tr)

	errCh := make(chan error, 1)
	go func() { errCh <- conn.Deselect(context.Background()) }()

	req := tr.nextControl(t)
	require.Equal(hsms.DeselectReqType, req.Type())

	rsp, err := hsms.NewDeselectRsp(req, hsms.DeselectStatusSuccess)
	require.NoError(err)
	feed(t, conn, l, rsp.ToBytes())

	require.NoError(<-errCh)
	require.Equal(hsms.ConnectedState, conn.State())
	require.Eventually(func() bool {
		return rec.count(func(ev hsms.Event) bool { _, ok := ev.(hsms.DeselectedEvent); return ok }) == 1
	}, waitTimeout, 5*time.Millisecond)
}

func TestConnection_LinktestRequest(t *testing.T) {
	require := require.New(t)

	conn, _ := newTestConn(t, WithPassive(), WithT6Timeout(80*time.Millisecond))
	l, tr := attachFake(t, conn)

	errCh := make(chan error, 1)
	go func() { errCh <- conn.Linktest(context.Background()) }()

	req := tr.nextControl(t)
	require.Equal(hsms.LinkTestReqType, req.Type())
	rsp, err := hsms.NewLinktestRsp(req)
	require.NoError(err)
	feed(t, conn, l, rsp.ToBytes())
	require.NoError(<-errCh)

	// no response within T6 tears the transport down
	err = conn.Linktest(context.Background())
	require.ErrorIs(err, hsms.ErrT6Timeout)
	require.Eventually(func() bool { return conn.State() == hsms.NotConnectedState }, waitTimeout, 5*time.Millisecond)
	require.Equal(uint64(1), conn.Metrics().LinktestErrCount.Load())
}

func TestConnection_Heartbeat(t *testing.T) {
	require := require.New(t)

	conn, _ := newTestConn(t, WithActive(), WithLinktestInterval(30*time.Millisecond))
	l, tr := attachFake(t, conn)

	req := tr.nextControl(t)
	rsp, err := hsms.NewSelectRsp(req, hsms.SelectStatusSuccess)
	require.NoError(err)
	feed(t, conn, l, rsp.ToBytes())

	for range 2 {
		lt := tr.nextControl(t)
		require.Equal(hsms.LinkTestReqType, lt.Type())
		ltRsp, err := hsms.NewLinktestRsp(lt)
		require.NoError(err)
		feed(t, conn, l, ltRsp.ToBytes())
	}

	require.Equal(hsms.SelectedState, conn.State())
	require.GreaterOrEqual(conn.Metrics().LinktestSendCount.Load(), uint64(2))
}

func TestConnection_S9Reports(t *testing.T) {
	require := require.New(t)

	conn, rec := newTestConn(t, WithPassive(), WithEquipRole(), WithS9Reporting(true), WithDeviceID(1))
	l, tr := attachFake(t, conn)
	selectPassive(t, conn, l, tr)

	// unknown device id
	msg, err := hsms.NewDataMessage(1, 1, true, 2, 20, nil)
	require.NoError(err)
	feed(t, conn, l, msg.ToBytes())

	report, ok := tr.next(t).ToDataMessage()
	require.True(ok)
	require.Equal(uint8(9), report.StreamCode())
	require.Equal(uint8(1), report.FunctionCode())

	// undecodable body: an item with a truncated length
	frame := []byte{0, 0, 0, 13, 0, 1, 1, 3, 0, 0, 0, 0, 0, 21, 0x41, 0x05, 'a'}
	feed(t, conn, l, frame)

	report, ok = tr.next(t).ToDataMessage()
	require.True(ok)
	require.Equal(uint8(9), report.StreamCode())
	require.Equal(uint8(7), report.FunctionCode())

	require.Eventually(func() bool { return len(rec.errors()) == 1 }, waitTimeout, 5*time.Millisecond)
	require.Empty(rec.messages())
	require.Equal(hsms.SelectedState, conn.State())
}

func TestConnection_HeldCandidateAlreadyUsed(t *testing.T) {
	require := require.New(t)

	conn, _ := newTestConn(t, WithPassive())
	l1, tr1 := attachFake(t, conn)
	selectPassive(t, conn, l1, tr1)

	l2, tr2 := attachFake(t, conn)
	require.Equal(1, conn.HeldConnections())

	// held connections are never selected while the live session is
	feed(t, conn, l2, hsms.NewSelectReq(5).ToBytes())
	rsp := tr2.nextControl(t)
	require.Equal(hsms.SelectRspType, rsp.Type())
	require.Equal(byte(hsms.SelectStatusAlreadyUsed), rsp.Status())
	require.Equal(1, conn.HeldConnections())

	feed(t, conn, l2, newDataFrame(t, 1, 1, true, 6, nil))
	rej := tr2.nextControl(t)
	require.Equal(byte(hsms.RejectNotSelected), rej.Status())

	feed(t, conn, l2, hsms.NewLinktestReq(8).ToBytes())
	require.Equal(hsms.LinkTestRspType, tr2.nextControl(t).Type())

	// the selected session is untouched
	require.False(tr1.closed.Load())
	require.Equal(hsms.SelectedState, conn.State())

	feed(t, conn, l2, hsms.NewSeparateReq(9).ToBytes())
	require.True(tr2.closed.Load())
	require.Zero(conn.HeldConnections())
}

func TestConnection_HeldCandidateReplacesStalled(t *testing.T) {
	require := require.New(t)

	conn, rec := newTestConn(t, WithPassive())
	_, tr1 := attachFake(t, conn)
	l2, tr2 := attachFake(t, conn)
	require.Equal(1, conn.HeldConnections())

	selectPassive(t, conn, l2, tr2)

	require.True(tr1.closed.Load())
	require.False(tr2.closed.Load())
	require.Zero(conn.HeldConnections())
	require.Eventually(func() bool { return rec.hasError(errReplaced) }, waitTimeout, 5*time.Millisecond)
}

func TestConnection_HeldCandidateT7(t *testing.T) {
	require := require.New(t)

	conn, _ := newTestConn(t, WithPassive(), WithT7Timeout(60*time.Millisecond))
	l1, tr1 := attachFake(t, conn)
	selectPassive(t, conn, l1, tr1)

	_, tr2 := attachFake(t, conn)
	require.Eventually(func() bool { return tr2.closed.Load() }, waitTimeout, 5*time.Millisecond)
	require.Zero(conn.HeldConnections())
	require.Equal(hsms.SelectedState, conn.State())
}

func pendingTx(t *testing.T, conn *Connection) int {
	t.Helper()

	var n int
	onLoop(t, conn, func() { n = conn.txTable.Len() })

	return n
}
