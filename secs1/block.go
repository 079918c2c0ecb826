package secs1

import (
	"encoding/binary"

	"github.com/fabwire/go-secs/hsms"
)

const (
	// MaxBlockBodySize is the maximum number of SECS-II bytes carried by one block.
	MaxBlockBodySize = 244

	// MinBlockLength is the smallest valid length byte, a header without body.
	MinBlockLength = HeaderSize

	// MaxBlockLength is the largest valid length byte, a header with a full body.
	MaxBlockLength = HeaderSize + MaxBlockBodySize

	// MaxBlockNumber is the largest block number, the field has 15 bits.
	MaxBlockNumber = 0x7FFF

	// MaxBodySize is the largest SECS-II body one message can carry.
	MaxBodySize = MaxBlockNumber * MaxBlockBodySize

	// HeaderSize is the size of the block header.
	HeaderSize = 10

	checksumSize = 2
)

// Handshake characters exchanged outside block framing.
const (
	ENQ byte = 0x05 // request to send
	EOT byte = 0x04 // ready to receive
	ACK byte = 0x06 // correct reception
	NAK byte = 0x15 // incorrect reception
)

// Block is one SECS-I block.
//
// On the wire a block is [length][header][body][checksum], where length counts the header and
// body bytes and the checksum is the 16-bit big-endian sum of the header and body bytes.
//
// Header layout:
//
//	byte 0-1  R-bit | 15-bit device id
//	byte 2    W-bit | stream
//	byte 3    function
//	byte 4-5  E-bit | 15-bit block number
//	byte 6-9  system bytes
type Block struct {
	Header [HeaderSize]byte
	Body   []byte
}

func setBit(b *byte, v bool) {
	if v {
		*b |= 0x80
	} else {
		*b &^= 0x80
	}
}

// RBit reports the reverse bit: set for messages sent by the equipment.
func (b *Block) RBit() bool { return b.Header[0]&0x80 != 0 }

// SetRBit sets the reverse bit.
func (b *Block) SetRBit(v bool) { setBit(&b.Header[0], v) }

// DeviceID returns the 15-bit device id.
func (b *Block) DeviceID() uint16 {
	return binary.BigEndian.Uint16(b.Header[0:2]) & 0x7FFF
}

// SetDeviceID sets the device id, keeping the R-bit.
func (b *Block) SetDeviceID(id uint16) {
	r := b.Header[0] & 0x80
	binary.BigEndian.PutUint16(b.Header[0:2], id&0x7FFF)
	b.Header[0] |= r
}

// WBit reports whether a reply is expected.
func (b *Block) WBit() bool { return b.Header[2]&0x80 != 0 }

// SetWBit sets the wait bit.
func (b *Block) SetWBit(v bool) { setBit(&b.Header[2], v) }

// StreamCode returns the 7-bit stream code.
func (b *Block) StreamCode() uint8 { return b.Header[2] & 0x7F }

// SetStreamCode sets the stream code, keeping the W-bit.
func (b *Block) SetStreamCode(s uint8) {
	b.Header[2] = b.Header[2]&0x80 | s&0x7F
}

// FunctionCode returns the function code.
func (b *Block) FunctionCode() uint8 { return b.Header[3] }

// SetFunctionCode sets the function code.
func (b *Block) SetFunctionCode(f uint8) { b.Header[3] = f }

// EBit reports whether this is the last block of its message.
func (b *Block) EBit() bool { return b.Header[4]&0x80 != 0 }

// SetEBit sets the end bit.
func (b *Block) SetEBit(v bool) { setBit(&b.Header[4], v) }

// BlockNumber returns the 15-bit block number.
func (b *Block) BlockNumber() uint16 {
	return binary.BigEndian.Uint16(b.Header[4:6]) & 0x7FFF
}

// SetBlockNumber sets the block number, keeping the E-bit.
func (b *Block) SetBlockNumber(n uint16) {
	e := b.Header[4] & 0x80
	binary.BigEndian.PutUint16(b.Header[4:6], n&0x7FFF)
	b.Header[4] |= e
}

// SystemBytes returns the system bytes as an integer.
func (b *Block) SystemBytes() uint32 {
	return binary.BigEndian.Uint32(b.Header[6:10])
}

// SetSystemBytes sets the system bytes.
func (b *Block) SetSystemBytes(id uint32) {
	binary.BigEndian.PutUint32(b.Header[6:10], id)
}

// Length returns the value of the length byte.
func (b *Block) Length() int {
	return HeaderSize + len(b.Body)
}

// Checksum returns the 16-bit sum of the header and body bytes.
func (b *Block) Checksum() uint16 {
	return checksum(b.Header[:]) + checksum(b.Body)
}

func checksum(p []byte) uint16 {
	var sum uint16
	for _, v := range p {
		sum += uint16(v)
	}

	return sum
}

// Bytes returns the wire form of the block: length byte, header, body and checksum.
func (b *Block) Bytes() []byte {
	n := b.Length()
	frame := make([]byte, 1+n+checksumSize)

	frame[0] = byte(n)
	copy(frame[1:], b.Header[:])
	copy(frame[1+HeaderSize:], b.Body)
	binary.BigEndian.PutUint16(frame[1+n:], b.Checksum())

	return frame
}

// IsValidFrame reports whether frame is a complete block with a valid length byte and a
// matching checksum.
func IsValidFrame(frame []byte) bool {
	_, err := DecodeBlock(frame)
	return err == nil
}

// DecodeBlock decodes the wire form of a block.
//
// A length byte outside [MinBlockLength, MaxBlockLength] or a frame of the wrong size fails
// with hsms.ErrSequenceMismatch, a checksum that does not match with hsms.ErrChecksumMismatch.
func DecodeBlock(frame []byte) (*Block, error) {
	if len(frame) == 0 {
		return nil, hsms.NewProtocolError(hsms.SequenceMismatch, "empty block")
	}

	n := int(frame[0])
	if n < MinBlockLength || n > MaxBlockLength {
		return nil, hsms.NewProtocolError(hsms.SequenceMismatch, "invalid length byte %d", n)
	}

	if len(frame) != 1+n+checksumSize {
		return nil, hsms.NewProtocolError(hsms.SequenceMismatch,
			"block of %d bytes, length byte %d", len(frame), n)
	}

	blk := &Block{}
	copy(blk.Header[:], frame[1:1+HeaderSize])
	if n > HeaderSize {
		blk.Body = make([]byte, n-HeaderSize)
		copy(blk.Body, frame[1+HeaderSize:1+n])
	}

	want := binary.BigEndian.Uint16(frame[1+n:])
	if got := blk.Checksum(); got != want {
		return nil, hsms.NewProtocolError(hsms.ChecksumMismatch, "checksum 0x%04X, computed 0x%04X", want, got)
	}

	return blk, nil
}

// sameMessage reports whether two blocks carry the same message identity: device id, R-bit,
// W-bit, stream, function and system bytes.
func sameMessage(a, b *Block) bool {
	return a.Header[0] == b.Header[0] &&
		a.Header[1] == b.Header[1] &&
		a.Header[2] == b.Header[2] &&
		a.Header[3] == b.Header[3] &&
		a.SystemBytes() == b.SystemBytes()
}
