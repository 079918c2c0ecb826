package secs1

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/fabwire/go-secs/hsms"
	"github.com/fabwire/go-secs/secs2"
	"github.com/stretchr/testify/require"
)

func newPrimary(t *testing.T, stream, function byte, wbit bool, item secs2.Item) *hsms.DataMessage {
	t.Helper()

	msg, err := hsms.NewDataMessage(stream, function, wbit, 0, 0, item)
	require.NoError(t, err)

	return msg
}

func TestConnection_AttachSelects(t *testing.T) {
	require := require.New(t)

	conn, _ := newTestConn(t)
	attachFake(t, conn)

	require.Equal(hsms.SelectedState, conn.State())
	require.Equal(Idle, conn.LineState())
}

func TestConnection_SendAndReply(t *testing.T) {
	require := require.New(t)

	conn, _ := newTestConn(t)
	l, tr := attachFake(t, conn)

	res := sendAsync(conn, newPrimary(t, 1, 1, true, nil))

	tr.expect(t, ENQ)
	require.Equal(WaitEOT, conn.LineState())

	feed(t, conn, l, EOT)
	blk := tr.nextBlock(t)
	require.Equal(uint8(1), blk.StreamCode())
	require.Equal(uint8(1), blk.FunctionCode())
	require.True(blk.WBit())
	require.True(blk.EBit())
	require.False(blk.RBit(), "the host sends with R-bit cleared")
	require.Equal(WaitACK, conn.LineState())

	feed(t, conn, l, ACK)
	require.Equal(Idle, conn.LineState())

	reply := secs2.NewListItem(secs2.NewASCIIItem("MDLN"), secs2.NewASCIIItem("1.0"))
	receive(t, conn, l, tr, remoteFrames(t, 1, 2, false, blk.SystemBytes(), reply, true))

	r := waitResult(t, res)
	require.NoError(r.err)
	require.Equal(uint8(2), r.reply.FunctionCode())
	require.Equal(reply.ToSML(), r.reply.Item().ToSML())

	m := conn.Metrics()
	require.Equal(uint64(1), m.BlockSendCount.Load())
	require.Equal(uint64(1), m.BlockRecvCount.Load())
	require.Equal(uint64(1), m.DataMsgSendCount.Load())
	require.Equal(uint64(1), m.DataMsgRecvCount.Load())
	require.Zero(m.DataMsgInflightCount.Load())
}

func TestConnection_SendMultiBlock(t *testing.T) {
	require := require.New(t)

	conn, _ := newTestConn(t)
	l, tr := attachFake(t, conn)

	res := sendAsync(conn, newPrimary(t, 6, 11, false, secs2.NewBinaryItem(make([]byte, 600))))

	tr.expect(t, ENQ)
	feed(t, conn, l, EOT)

	for i := 1; i <= 3; i++ {
		blk := tr.nextBlock(t)
		require.Equal(uint16(i), blk.BlockNumber())
		require.Equal(i == 3, blk.EBit())
		feed(t, conn, l, ACK)
	}

	r := waitResult(t, res)
	require.NoError(r.err)
	require.Nil(r.reply)
	require.Equal(uint64(3), conn.Metrics().BlockSendCount.Load())
	require.Equal(Idle, conn.LineState())
}

func TestConnection_MessagesSentInOrder(t *testing.T) {
	require := require.New(t)

	conn, _ := newTestConn(t)
	l, tr := attachFake(t, conn)

	first := sendAsync(conn, newPrimary(t, 5, 1, false, nil))
	tr.expect(t, ENQ)

	second := sendAsync(conn, newPrimary(t, 6, 1, false, nil))
	tr.requireNoWrite(t, 50*time.Millisecond)

	feed(t, conn, l, EOT)
	require.Equal(uint8(5), tr.nextBlock(t).StreamCode())
	feed(t, conn, l, ACK)
	require.NoError(waitResult(t, first).err)

	tr.expect(t, ENQ)
	feed(t, conn, l, EOT)
	require.Equal(uint8(6), tr.nextBlock(t).StreamCode())
	feed(t, conn, l, ACK)
	require.NoError(waitResult(t, second).err)
}

func TestConnection_T2RetryLimit(t *testing.T) {
	require := require.New(t)

	conn, _ := newTestConn(t, WithT2Timeout(MinT2Timeout), WithRetryCount(1))
	_, tr := attachFake(t, conn)

	res := sendAsync(conn, newPrimary(t, 1, 1, false, nil))

	tr.expect(t, ENQ)
	tr.expect(t, ENQ)

	r := waitResult(t, res)
	require.ErrorIs(r.err, hsms.ErrRetryLimitExceeded)
	require.Equal(Idle, conn.LineState())
	require.Equal(uint64(1), conn.Metrics().BlockRetryCount.Load())
	require.Equal(uint64(1), conn.Metrics().DataMsgErrCount.Load())
}

func TestConnection_T2ResendsBlock(t *testing.T) {
	require := require.New(t)

	conn, _ := newTestConn(t, WithT2Timeout(MinT2Timeout))
	l, tr := attachFake(t, conn)

	res := sendAsync(conn, newPrimary(t, 1, 1, false, nil))
	tr.expect(t, ENQ)
	feed(t, conn, l, EOT)

	first := tr.nextBlock(t)
	again := tr.nextBlock(t)
	require.Equal(first.Header, again.Header)

	feed(t, conn, l, ACK)
	require.NoError(waitResult(t, res).err)
}

func TestConnection_NAKResendsBlock(t *testing.T) {
	require := require.New(t)

	conn, _ := newTestConn(t)
	l, tr := attachFake(t, conn)

	res := sendAsync(conn, newPrimary(t, 1, 1, false, nil))
	tr.expect(t, ENQ)
	feed(t, conn, l, EOT)

	first := tr.nextBlock(t)
	feed(t, conn, l, NAK)
	again := tr.nextBlock(t)
	require.Equal(first.Header, again.Header)

	feed(t, conn, l, ACK)
	require.NoError(waitResult(t, res).err)
	require.Equal(uint64(1), conn.Metrics().BlockRetryCount.Load())
}

func TestConnection_ReceivePrimary(t *testing.T) {
	require := require.New(t)

	conn, rec := newTestConn(t)
	l, tr := attachFake(t, conn)

	item := secs2.NewBinaryItem(make([]byte, 300))
	receive(t, conn, l, tr, remoteFrames(t, 6, 11, false, 42, item, true))

	require.Eventually(func() bool { return len(rec.messages()) == 1 }, waitTimeout, 5*time.Millisecond)
	msg := rec.messages()[0]
	require.Equal(uint32(42), msg.ID())
	require.Equal(item.ToSML(), msg.Item().ToSML())
	require.Equal(Idle, conn.LineState())
}

func TestConnection_ChecksumError(t *testing.T) {
	require := require.New(t)

	conn, rec := newTestConn(t)
	l, tr := attachFake(t, conn)

	frame := remoteFrames(t, 1, 1, false, 1, secs2.NewASCIIItem("abc"), true)[0]
	frame[len(frame)-1] ^= 0xFF

	feed(t, conn, l, ENQ)
	tr.expect(t, EOT)
	feed(t, conn, l, frame...)
	tr.expect(t, NAK)

	require.Equal(Idle, conn.LineState())
	require.Equal(uint64(1), conn.Metrics().NakSendCount.Load())
	require.Eventually(func() bool { return rec.hasError(hsms.ErrChecksumMismatch) }, waitTimeout, 5*time.Millisecond)
	require.Empty(rec.messages())
}

func TestConnection_AnyByteCorruptedIsNAKed(t *testing.T) {
	valid := remoteFrames(t, 1, 1, false, 1, secs2.NewASCIIItem("abc"), true)[0]

	for i := 1; i < len(valid); i++ {
		t.Run(fmt.Sprintf("byte %d", i), func(t *testing.T) {
			require := require.New(t)

			conn, rec := newTestConn(t)
			l, tr := attachFake(t, conn)

			frame := append([]byte(nil), valid...)
			frame[i] ^= 0xFF

			feed(t, conn, l, ENQ)
			tr.expect(t, EOT)
			feed(t, conn, l, frame...)
			tr.expect(t, NAK)

			require.Equal(Idle, conn.LineState())
			require.Empty(rec.messages())
		})
	}
}

func TestConnection_ChunkedBlock(t *testing.T) {
	require := require.New(t)

	conn, rec := newTestConn(t)
	l, tr := attachFake(t, conn)

	frame := remoteFrames(t, 1, 1, false, 1, secs2.NewASCIIItem("chunked"), true)[0]

	feed(t, conn, l, ENQ)
	tr.expect(t, EOT)
	for _, b := range frame {
		feed(t, conn, l, b)
	}
	tr.expect(t, ACK)

	require.Eventually(func() bool { return len(rec.messages()) == 1 }, waitTimeout, 5*time.Millisecond)
}

func TestConnection_NoiseDiscarded(t *testing.T) {
	require := require.New(t)

	conn, rec := newTestConn(t)
	l, tr := attachFake(t, conn)

	feed(t, conn, l, 0x00, ACK, NAK, 0xFF)
	tr.requireNoWrite(t, 50*time.Millisecond)
	require.Equal(Idle, conn.LineState())

	feed(t, conn, l, ENQ)
	tr.expect(t, EOT)

	feed(t, conn, l, 3, 255)
	require.Equal(WaitBlockLength, conn.LineState())

	feed(t, conn, l, remoteFrames(t, 1, 1, false, 1, nil, true)[0]...)
	tr.expect(t, ACK)
	require.Eventually(func() bool { return len(rec.messages()) == 1 }, waitTimeout, 5*time.Millisecond)
}

func TestConnection_T1Timeout(t *testing.T) {
	require := require.New(t)

	conn, rec := newTestConn(t, WithT1Timeout(MinT1Timeout))
	l, tr := attachFake(t, conn)

	feed(t, conn, l, ENQ)
	tr.expect(t, EOT)
	feed(t, conn, l, 20, 0, 0)

	require.Eventually(func() bool { return rec.hasError(hsms.ErrT1Timeout) }, waitTimeout, 5*time.Millisecond)
	require.Equal(Idle, conn.LineState())
}

func TestConnection_T4Timeout(t *testing.T) {
	require := require.New(t)

	conn, rec := newTestConn(t, WithT4Timeout(MinT4Timeout))
	l, tr := attachFake(t, conn)

	frames := remoteFrames(t, 6, 11, false, 1, secs2.NewBinaryItem(make([]byte, 300)), true)
	require.Len(frames, 2)

	receive(t, conn, l, tr, frames[:1])
	require.Equal(WaitBlockLength, conn.LineState())

	require.Eventually(func() bool { return rec.hasError(hsms.ErrT4Timeout) }, waitTimeout, 10*time.Millisecond)
	require.Equal(Idle, conn.LineState())
	require.Empty(rec.messages())
}

func TestConnection_DuplicateBlock(t *testing.T) {
	require := require.New(t)

	conn, rec := newTestConn(t)
	l, tr := attachFake(t, conn)

	item := secs2.NewBinaryItem(make([]byte, 600))
	frames := remoteFrames(t, 6, 11, false, 9, item, true)
	require.Len(frames, 3)

	receive(t, conn, l, tr, [][]byte{frames[0], frames[0], frames[1], frames[2]})

	require.Eventually(func() bool { return len(rec.messages()) == 1 }, waitTimeout, 5*time.Millisecond)
	require.Equal(item.ToSML(), rec.messages()[0].Item().ToSML())
}

func TestConnection_DuplicateDetectionDisabled(t *testing.T) {
	require := require.New(t)

	conn, rec := newTestConn(t, WithDuplicateDetection(false))
	l, tr := attachFake(t, conn)

	frames := remoteFrames(t, 6, 11, false, 9, secs2.NewBinaryItem(make([]byte, 600)), true)

	receive(t, conn, l, tr, frames[:1])
	feed(t, conn, l, frames[0]...)
	tr.expect(t, NAK)

	require.Equal(Idle, conn.LineState())
	require.Eventually(func() bool { return rec.hasError(hsms.ErrSequenceMismatch) }, waitTimeout, 5*time.Millisecond)
}

func TestConnection_BlockOutOfSequence(t *testing.T) {
	require := require.New(t)

	conn, rec := newTestConn(t)
	l, tr := attachFake(t, conn)

	frames := remoteFrames(t, 6, 11, false, 9, secs2.NewBinaryItem(make([]byte, 600)), true)

	feed(t, conn, l, ENQ)
	tr.expect(t, EOT)
	feed(t, conn, l, frames[1]...)
	tr.expect(t, NAK)

	require.Equal(Idle, conn.LineState())
	require.Eventually(func() bool { return rec.hasError(hsms.ErrSequenceMismatch) }, waitTimeout, 5*time.Millisecond)
}

func TestConnection_HeaderMismatch(t *testing.T) {
	require := require.New(t)

	conn, rec := newTestConn(t)
	l, tr := attachFake(t, conn)

	first := remoteFrames(t, 6, 11, false, 9, secs2.NewBinaryItem(make([]byte, 600)), true)
	other := remoteFrames(t, 6, 11, false, 10, secs2.NewBinaryItem(make([]byte, 600)), true)

	receive(t, conn, l, tr, first[:1])
	feed(t, conn, l, other[1]...)
	tr.expect(t, NAK)

	require.Eventually(func() bool { return rec.hasError(hsms.ErrSequenceMismatch) }, waitTimeout, 5*time.Millisecond)
	require.Empty(rec.messages())
}

func TestConnection_ContentionSlaveYields(t *testing.T) {
	require := require.New(t)

	conn, rec := newTestConn(t, WithHostRole())
	l, tr := attachFake(t, conn)

	res := sendAsync(conn, newPrimary(t, 1, 1, false, nil))
	tr.expect(t, ENQ)

	// both ends bid for the line, the host gives way
	receive(t, conn, l, tr, remoteFrames(t, 5, 1, false, 77, nil, true))
	require.Eventually(func() bool { return len(rec.messages()) == 1 }, waitTimeout, 5*time.Millisecond)

	tr.expect(t, ENQ)
	feed(t, conn, l, EOT)
	blk := tr.nextBlock(t)
	require.Equal(uint8(1), blk.StreamCode())
	feed(t, conn, l, ACK)

	require.NoError(waitResult(t, res).err)
}

func TestConnection_ContentionMasterKeepsLine(t *testing.T) {
	require := require.New(t)

	conn, _ := newTestConn(t, WithEquipRole())
	l, tr := attachFake(t, conn)

	res := sendAsync(conn, newPrimary(t, 5, 1, false, nil))
	tr.expect(t, ENQ)

	feed(t, conn, l, ENQ)
	tr.requireNoWrite(t, 50*time.Millisecond)
	require.Equal(WaitEOT, conn.LineState())

	feed(t, conn, l, EOT)
	blk := tr.nextBlock(t)
	require.True(blk.RBit(), "the equipment sends with R-bit set")
	feed(t, conn, l, ACK)

	require.NoError(waitResult(t, res).err)
}

func TestConnection_T3TimeoutReportsS9F9(t *testing.T) {
	require := require.New(t)

	conn, _ := newTestConn(t, WithEquipRole(), WithS9Reporting(true), WithT3Timeout(MinT3Timeout))
	l, tr := attachFake(t, conn)

	res := sendAsync(conn, newPrimary(t, 6, 11, true, secs2.NewUintItem(4, 1)))
	tr.expect(t, ENQ)
	feed(t, conn, l, EOT)
	primary := tr.nextBlock(t)
	feed(t, conn, l, ACK)

	r := waitResult(t, res)
	require.ErrorIs(r.err, hsms.ErrT3Timeout)
	require.Equal(uint64(1), conn.Metrics().T3TimeoutCount.Load())

	tr.expect(t, ENQ)
	feed(t, conn, l, EOT)
	report := tr.nextBlock(t)
	feed(t, conn, l, ACK)

	require.Equal(uint8(9), report.StreamCode())
	require.Equal(uint8(9), report.FunctionCode())
	body, err := secs2.Encode(secs2.NewBinaryItem(primary.Header[:]))
	require.NoError(err)
	require.Equal(body, report.Body)
}

func TestConnection_UnknownDeviceReportsS9F1(t *testing.T) {
	require := require.New(t)

	conn, rec := newTestConn(t, WithEquipRole(), WithS9Reporting(true), WithDeviceID(1))
	l, tr := attachFake(t, conn)

	frames := remoteFrames(t, 1, 1, true, 5, nil, false) // device id 0
	receive(t, conn, l, tr, frames)

	tr.expect(t, ENQ)
	feed(t, conn, l, EOT)
	report := tr.nextBlock(t)
	require.Equal(uint8(9), report.StreamCode())
	require.Equal(uint8(1), report.FunctionCode())
	require.Equal(uint16(1), report.DeviceID())
	feed(t, conn, l, ACK)

	require.Empty(rec.messages())
}

func TestConnection_UndecodableReportsS9F7(t *testing.T) {
	require := require.New(t)

	conn, rec := newTestConn(t, WithEquipRole(), WithS9Reporting(true))
	l, tr := attachFake(t, conn)

	blk := &Block{Body: []byte{0x41, 0x05, 'a'}}
	blk.SetStreamCode(1)
	blk.SetFunctionCode(3)
	blk.SetBlockNumber(1)
	blk.SetEBit(true)
	blk.SetSystemBytes(21)

	receive(t, conn, l, tr, [][]byte{blk.Bytes()})

	tr.expect(t, ENQ)
	feed(t, conn, l, EOT)
	report := tr.nextBlock(t)
	require.Equal(uint8(9), report.StreamCode())
	require.Equal(uint8(7), report.FunctionCode())
	feed(t, conn, l, ACK)

	require.Equal(uint64(1), conn.Metrics().DataMsgErrCount.Load())
	require.Empty(rec.messages())
}

func TestConnection_SendBodyTooLarge(t *testing.T) {
	require := require.New(t)

	conn, _ := newTestConn(t)
	_, tr := attachFake(t, conn)

	msg := newPrimary(t, 6, 11, true, secs2.NewBinaryItem(make([]byte, MaxBodySize)))
	r := waitResult(t, sendAsync(conn, msg))
	require.ErrorIs(r.err, secs2.ErrLengthOverflow)

	tr.requireNoWrite(t, 50*time.Millisecond)
	require.Equal(Idle, conn.LineState())
	require.Equal(hsms.SelectedState, conn.State())
}

func TestConnection_SendNotConnected(t *testing.T) {
	require := require.New(t)

	cfg, err := NewConnectionConfig("127.0.0.1", 0)
	require.NoError(err)
	conn, err := NewConnection(t.Context(), cfg)
	require.NoError(err)

	_, err = conn.Send(t.Context(), newPrimary(t, 1, 1, true, nil))
	require.ErrorIs(err, hsms.ErrNotConnected)

	conn.start()
	_, err = conn.Send(t.Context(), newPrimary(t, 1, 1, true, nil))
	require.ErrorIs(err, hsms.ErrNotConnected)

	require.NoError(conn.Close())
	_, err = conn.Send(t.Context(), newPrimary(t, 1, 1, true, nil))
	require.ErrorIs(err, hsms.ErrConnClosed)
}

func TestConnection_TeardownFailsPending(t *testing.T) {
	require := require.New(t)

	conn, rec := newTestConn(t)
	l, tr := attachFake(t, conn)

	first := sendAsync(conn, newPrimary(t, 1, 1, true, nil))
	tr.expect(t, ENQ)
	second := sendAsync(conn, newPrimary(t, 2, 1, false, nil))
	require.Eventually(func() bool {
		n := 0
		onLoop(t, conn, func() { n = conn.queue.Length() })
		return n == 1
	}, waitTimeout, 5*time.Millisecond)

	errLost := errors.New("line lost")
	onLoop(t, conn, func() { conn.teardown(l, errLost) })

	require.ErrorIs(waitResult(t, first).err, hsms.ErrConnClosed)
	require.ErrorIs(waitResult(t, second).err, hsms.ErrConnClosed)
	require.Equal(hsms.NotConnectedState, conn.State())
	require.Equal(Idle, conn.LineState())
	require.True(tr.closed.Load())
	require.Eventually(func() bool { return rec.hasError(errLost) }, waitTimeout, 5*time.Millisecond)
}

func TestConnection_SendCanceledWhileQueued(t *testing.T) {
	require := require.New(t)

	conn, _ := newTestConn(t)
	l, tr := attachFake(t, conn)

	first := sendAsync(conn, newPrimary(t, 1, 1, false, nil))
	tr.expect(t, ENQ)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := conn.Send(ctx, newPrimary(t, 2, 1, false, nil))
		done <- err
	}()
	require.Eventually(func() bool {
		n := 0
		onLoop(t, conn, func() { n = conn.queue.Length() })
		return n == 1
	}, waitTimeout, 5*time.Millisecond)

	cancel()
	require.ErrorIs(<-done, context.Canceled)

	feed(t, conn, l, EOT)
	tr.nextBlock(t)
	feed(t, conn, l, ACK)
	require.NoError(waitResult(t, first).err)

	tr.requireNoWrite(t, 50*time.Millisecond)
}

func TestConnection_SecondTransportRefused(t *testing.T) {
	require := require.New(t)

	conn, _ := newTestConn(t, WithPassive())
	attachFake(t, conn)

	l2, tr2 := attachFake(t, conn)
	require.True(tr2.closed.Load())

	select {
	case <-l2.closed:
	default:
		t.Fatal("refused link not marked closed")
	}
	require.Equal(hsms.SelectedState, conn.State())
}

func TestConnection_WriteFailureTearsDown(t *testing.T) {
	require := require.New(t)

	conn, _ := newTestConn(t)
	_, tr := attachFake(t, conn)
	_ = tr.Close()

	r := waitResult(t, sendAsync(conn, newPrimary(t, 1, 1, false, nil)))
	require.True(errors.Is(r.err, hsms.ErrConnClosed), "got %v", r.err)
	require.Equal(hsms.NotConnectedState, conn.State())
}
