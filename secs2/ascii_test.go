package secs2

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestASCIIItem(t *testing.T) {
	tests := []struct {
		description     string
		input           string
		expectedToBytes []byte
		expectedToSML   string
	}{
		{description: "empty", input: "", expectedToBytes: []byte{0x41, 0x00}, expectedToSML: "<A[0]>"},
		{description: "text", input: "MDLN", expectedToBytes: []byte{0x41, 0x04, 'M', 'D', 'L', 'N'}, expectedToSML: `<A[4] "MDLN">`},
		{description: "quote", input: `a"b`, expectedToBytes: []byte{0x41, 0x03, 'a', '"', 'b'}, expectedToSML: `<A[3] "a\"b">`},
		{description: "control chars", input: "ab\n", expectedToBytes: []byte{0x41, 0x03, 'a', 'b', '\n'}, expectedToSML: `<A[3] "ab" 0x0A>`},
		{description: "leading control char", input: "\tx", expectedToBytes: []byte{0x41, 0x02, '\t', 'x'}, expectedToSML: `<A[2] 0x09 "x">`},
	}

	require := require.New(t)

	for i, test := range tests {
		t.Logf("Test #%d: %s", i, test.description)
		item := NewASCIIItem(test.input)
		require.NoError(item.Error())
		require.True(item.IsASCII())
		require.Equal(len(test.input), item.Size())
		require.Equal(test.expectedToBytes, item.ToBytes())
		require.Equal(test.expectedToSML, item.ToSML())
		require.Equal(test.input, item.Values())

		clone := item.Clone()
		require.Equal(item, clone)
	}
}

func TestASCIIItem_NonASCII(t *testing.T) {
	require := require.New(t)

	item := NewASCIIItem("café")
	require.Error(item.Error())

	_, err := Encode(item)
	require.ErrorIs(err, ErrInvalidValue)
}
