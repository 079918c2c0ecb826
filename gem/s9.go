package gem

import "github.com/fabwire/go-secs/secs2"

// MHEADSize is the size of the message header carried by most S9 reports.
const MHEADSize = 10

func s9mhead(f uint8, mhead []byte) *Message {
	header := make([]byte, MHEADSize)
	copy(header, mhead)

	return NewMessage(9, f, false, secs2.NewBinaryItem(header))
}

// S9F1 creates an S9F1 (Unrecognized Device ID) report carrying the offending message header.
func S9F1(mhead []byte) *Message { return s9mhead(1, mhead) }

// S9F3 creates an S9F3 (Unrecognized Stream Type) report.
func S9F3(mhead []byte) *Message { return s9mhead(3, mhead) }

// S9F5 creates an S9F5 (Unrecognized Function Type) report.
func S9F5(mhead []byte) *Message { return s9mhead(5, mhead) }

// S9F7 creates an S9F7 (Illegal Data) report.
func S9F7(mhead []byte) *Message { return s9mhead(7, mhead) }

// S9F9 creates an S9F9 (Transaction Timer Timeout) report. The body is the SHEAD, the header
// of the primary message whose reply did not arrive.
func S9F9(shead []byte) *Message { return s9mhead(9, shead) }

// S9F11 creates an S9F11 (Data Too Long) report.
func S9F11(mhead []byte) *Message { return s9mhead(11, mhead) }

// S9F13 creates an S9F13 (Conversation Timeout) report: <L[2] <A MEXP> <A EDID>>.
func S9F13(mexp string, edid string) *Message {
	return NewMessage(9, 13, false, secs2.NewListItem(
		secs2.NewASCIIItem(mexp),
		secs2.NewASCIIItem(edid),
	))
}
