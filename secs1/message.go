package secs1

import (
	"github.com/fabwire/go-secs/hsms"
	"github.com/fabwire/go-secs/secs2"
)

// SplitMessage cuts msg into blocks of at most MaxBlockBodySize body bytes.
//
// Block numbers count from 1, only the last block has the E-bit set, and every block carries
// the system bytes of msg. A message without body is a single block numbered 1. The R-bit
// is set when isEquip is true. A body above MaxBodySize fails with a secs2.EncodeError of
// kind LengthOverflow.
func SplitMessage(msg *hsms.DataMessage, isEquip bool) ([]*Block, error) {
	body, err := secs2.Encode(msg.Item())
	if err != nil {
		return nil, err
	}

	if len(body) > MaxBodySize {
		return nil, &secs2.EncodeError{Kind: secs2.LengthOverflow, Type: "SECS-I body", Length: len(body), Limit: MaxBodySize}
	}

	count := (len(body) + MaxBlockBodySize - 1) / MaxBlockBodySize
	if count == 0 {
		count = 1
	}

	blocks := make([]*Block, 0, count)
	for i := range count {
		start := i * MaxBlockBodySize
		end := min(start+MaxBlockBodySize, len(body))

		blk := &Block{}
		blk.SetDeviceID(msg.DeviceID())
		blk.SetRBit(isEquip)
		blk.SetStreamCode(msg.StreamCode())
		blk.SetWBit(msg.WaitBit())
		blk.SetFunctionCode(msg.FunctionCode())
		blk.SetBlockNumber(uint16(i + 1)) //nolint:gosec // count <= MaxBlockNumber
		blk.SetEBit(i == count-1)
		blk.SetSystemBytes(msg.ID())

		if end > start {
			blk.Body = make([]byte, end-start)
			copy(blk.Body, body[start:end])
		}

		blocks = append(blocks, blk)
	}

	return blocks, nil
}

// AssembleMessage joins the blocks of one message and decodes the body.
//
// The block numbers must run from 1 without gap, and the E-bit must be set on the last block
// and only there; otherwise the result is hsms.ErrReassemblyGap. When the body fails to decode,
// the message is returned with an empty body together with the decode error, so the caller can
// still report it.
func AssembleMessage(blocks []*Block) (*hsms.DataMessage, error) {
	if len(blocks) == 0 {
		return nil, hsms.NewProtocolError(hsms.ReassemblyGap, "no blocks")
	}

	size := 0
	for i, blk := range blocks {
		if int(blk.BlockNumber()) != i+1 {
			return nil, hsms.NewProtocolError(hsms.ReassemblyGap,
				"block %d at position %d", blk.BlockNumber(), i+1)
		}

		if blk.EBit() != (i == len(blocks)-1) {
			return nil, hsms.NewProtocolError(hsms.ReassemblyGap, "misplaced end bit on block %d", i+1)
		}

		size += len(blk.Body)
	}

	// rebuild the payload in HSMS layout: R-bit and block fields cleared
	first := blocks[0]
	payload := make([]byte, hsms.HeaderSize, hsms.HeaderSize+size)
	copy(payload, first.Header[:])
	payload[0] &= 0x7F
	payload[4], payload[5] = 0, 0

	for _, blk := range blocks {
		payload = append(payload, blk.Body...)
	}

	msg, err := hsms.DecodeMessage(payload)
	if msg == nil {
		return nil, err
	}

	dataMsg, _ := msg.ToDataMessage()

	return dataMsg, err
}
