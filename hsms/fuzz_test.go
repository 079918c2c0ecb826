package hsms

import (
	"testing"

	"github.com/fabwire/go-secs/secs2"
)

func FuzzDecodeMessage(f *testing.F) {
	msg, _ := NewDataMessage(1, 2, false, 0, 1, secs2.NewListItem(secs2.NewASCIIItem("MDLN"), secs2.NewUintItem(2, 1, 2)))
	f.Add(msg.ToBytes()[LengthFieldSize:])
	f.Add(NewSelectReq(1).Header())
	f.Add([]byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 1, 0x01, 0x03})

	f.Fuzz(func(t *testing.T, payload []byte) {
		decoded, err := DecodeMessage(payload)
		if err != nil {
			return
		}

		dataMsg, ok := decoded.ToDataMessage()
		if !ok {
			return
		}

		reencoded, err := dataMsg.MarshalBinary()
		if err != nil {
			t.Fatalf("re-encode decoded message: %v", err)
		}

		again, err := DecodeFrame(reencoded)
		if err != nil {
			t.Fatalf("decode re-encoded frame: %v", err)
		}
		if again.ID() != decoded.ID() {
			t.Fatalf("system bytes changed: %d != %d", again.ID(), decoded.ID())
		}
	})
}
