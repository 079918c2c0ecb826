package gem

import "github.com/fabwire/go-secs/secs2"

// Message is a transport independent GEM message. It implements secs2.SECS2Message.
type Message struct {
	item secs2.Item
	s    uint8
	f    uint8
	w    bool
}

var _ secs2.SECS2Message = (*Message)(nil)

// NewMessage creates a Message with stream s, function f, wait bit w and body item.
// A nil item is a header-only message.
func NewMessage(s uint8, f uint8, w bool, item secs2.Item) *Message {
	if item == nil {
		item = secs2.NewEmptyItem()
	}

	return &Message{s: s, f: f, w: w, item: item}
}

// StreamCode returns the stream code.
func (msg *Message) StreamCode() uint8 { return msg.s & 0x7F }

// FunctionCode returns the function code.
func (msg *Message) FunctionCode() uint8 { return msg.f }

// WaitBit returns the W-bit.
func (msg *Message) WaitBit() bool { return msg.w }

// Item returns the body.
func (msg *Message) Item() secs2.Item { return msg.item }
