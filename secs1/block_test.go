package secs1

import (
	"errors"
	"fmt"
	"testing"

	"github.com/fabwire/go-secs/hsms"
	"github.com/stretchr/testify/require"
)

func TestBlock_HeaderBits(t *testing.T) {
	require := require.New(t)

	var b Block
	b.SetRBit(true)
	b.SetDeviceID(0xFFFF)
	require.True(b.RBit())
	require.Equal(uint16(0x7FFF), b.DeviceID())

	b.SetDeviceID(1000)
	require.True(b.RBit(), "device id keeps the R-bit")
	require.Equal(uint16(1000), b.DeviceID())

	b.SetWBit(true)
	b.SetStreamCode(0xFF)
	require.True(b.WBit())
	require.Equal(uint8(0x7F), b.StreamCode())
	b.SetStreamCode(6)
	require.True(b.WBit(), "stream keeps the W-bit")
	require.Equal(uint8(6), b.StreamCode())

	b.SetFunctionCode(11)
	require.Equal(uint8(11), b.FunctionCode())

	b.SetEBit(true)
	b.SetBlockNumber(300)
	require.True(b.EBit(), "block number keeps the E-bit")
	require.Equal(uint16(300), b.BlockNumber())

	b.SetSystemBytes(0x01020304)
	require.Equal(uint32(0x01020304), b.SystemBytes())
	require.Equal([]byte{1, 2, 3, 4}, b.Header[6:10])

	b.SetRBit(false)
	b.SetWBit(false)
	b.SetEBit(false)
	require.False(b.RBit())
	require.False(b.WBit())
	require.False(b.EBit())
	require.Equal(uint16(1000), b.DeviceID())
}

func TestBlock_AreYouThereWireForm(t *testing.T) {
	require := require.New(t)

	var b Block
	b.SetDeviceID(1)
	b.SetStreamCode(1)
	b.SetWBit(true)
	b.SetFunctionCode(1)
	b.SetBlockNumber(1)
	b.SetEBit(true)
	b.SetSystemBytes(1)

	want := []byte{0x0A, 0x00, 0x01, 0x81, 0x01, 0x80, 0x01, 0x00, 0x00, 0x00, 0x01, 0x01, 0x05}
	require.Equal(want, b.Bytes())
	require.Equal(10, b.Length())
	require.Equal(uint16(0x0105), b.Checksum())
	require.True(IsValidFrame(want))
}

func TestBlock_ChecksumWraps(t *testing.T) {
	require := require.New(t)

	b := Block{Body: make([]byte, MaxBlockBodySize)}
	for i := range b.Header {
		b.Header[i] = 0xFF
	}
	for i := range b.Body {
		b.Body[i] = 0xFF
	}

	require.Equal(uint16((MaxBlockLength*0xFF)&0xFFFF), b.Checksum())
}

func TestDecodeBlock_RoundTrip(t *testing.T) {
	require := require.New(t)

	body := make([]byte, MaxBlockBodySize)
	for i := range body {
		body[i] = byte(i)
	}

	b := &Block{Body: body}
	b.SetDeviceID(7)
	b.SetStreamCode(6)
	b.SetFunctionCode(11)
	b.SetBlockNumber(2)
	b.SetSystemBytes(99)

	frame := b.Bytes()
	require.Len(frame, 1+MaxBlockLength+2)
	require.Equal(byte(MaxBlockLength), frame[0])

	got, err := DecodeBlock(frame)
	require.NoError(err)
	require.Equal(b.Header, got.Header)
	require.Equal(body, got.Body)
}

func TestDecodeBlock_Invalid(t *testing.T) {
	valid := (&Block{Body: []byte{0x41, 0x00}}).Bytes()

	corrupted := append([]byte(nil), valid...)
	corrupted[11] ^= 0x01

	tests := []struct {
		name   string
		frame  []byte
		target error
	}{
		{"empty", nil, hsms.ErrSequenceMismatch},
		{"length too small", []byte{9, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}, hsms.ErrSequenceMismatch},
		{"length too large", append([]byte{255}, make([]byte, 257)...), hsms.ErrSequenceMismatch},
		{"truncated", valid[:len(valid)-1], hsms.ErrSequenceMismatch},
		{"corrupted body", corrupted, hsms.ErrChecksumMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)

			_, err := DecodeBlock(tt.frame)
			require.Error(err)
			require.True(errors.Is(err, tt.target), "got %v", err)
			require.False(IsValidFrame(tt.frame))
		})
	}
}

func TestDecodeBlock_AnyByteCorrupted(t *testing.T) {
	b := &Block{Body: []byte{0x41, 0x03, 'a', 'b', 'c'}}
	b.SetDeviceID(1)
	b.SetWBit(true)
	b.SetStreamCode(1)
	b.SetFunctionCode(1)
	b.SetBlockNumber(1)
	b.SetEBit(true)
	b.SetSystemBytes(0x01020304)
	valid := b.Bytes()

	// the length byte is framing, every later byte is covered by the checksum
	for i := 1; i < len(valid); i++ {
		t.Run(fmt.Sprintf("byte %d", i), func(t *testing.T) {
			require := require.New(t)

			frame := append([]byte(nil), valid...)
			frame[i] ^= 0xFF

			_, err := DecodeBlock(frame)
			require.ErrorIs(err, hsms.ErrChecksumMismatch)
			require.False(IsValidFrame(frame))
		})
	}
}

func TestSameMessage(t *testing.T) {
	require := require.New(t)

	a := &Block{}
	a.SetDeviceID(1)
	a.SetStreamCode(6)
	a.SetFunctionCode(11)
	a.SetSystemBytes(5)
	a.SetBlockNumber(1)

	b := &Block{Header: a.Header}
	b.SetBlockNumber(2)
	b.SetEBit(true)
	require.True(sameMessage(a, b), "block fields are not part of the identity")

	b.SetWBit(true)
	require.False(sameMessage(a, b))

	b.SetWBit(false)
	b.SetSystemBytes(6)
	require.False(sameMessage(a, b))
}
