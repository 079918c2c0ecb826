package secs2

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// ASCIIItem represents a 7-bit ASCII string in a SECS-II message.
//
// Its size is the string length in bytes. The string is encoded as raw bytes without terminator.
type ASCIIItem struct {
	baseItem
	value string
}

// NewASCIIItem creates a new ASCIIItem. Characters above 0x7F or a string longer than
// MaxByteSize record an error on the item.
func NewASCIIItem(value string) Item {
	item := &ASCIIItem{value: value}

	if len(value) > MaxByteSize {
		item.setError(newItemError("string length %d exceeds %d", len(value), MaxByteSize))
		return item
	}

	for i := range len(value) {
		if value[i] > unicode.MaxASCII {
			item.setError(newItemError("non-ASCII byte 0x%02x at %d", value[i], i))
			return item
		}
	}

	return item
}

func (item *ASCIIItem) Get(indices ...int) (Item, error) {
	return notList(item, indices)
}

// ToASCII returns the string value.
func (item *ASCIIItem) ToASCII() (string, error) {
	return item.value, nil
}

// Values returns the string value.
func (item *ASCIIItem) Values() any {
	return item.value
}

func (item *ASCIIItem) Size() int {
	return len(item.value)
}

func (item *ASCIIItem) ToBytes() []byte {
	data, err := Encode(item)
	if err != nil {
		return nil
	}

	return data
}

func (item *ASCIIItem) appendBytes(dst []byte) ([]byte, error) {
	if item.itemErr != nil {
		return dst, &EncodeError{Kind: InvalidValue, Type: ASCIIType, Err: item.itemErr}
	}

	dst, err := appendHeader(dst, ASCIIType, len(item.value))
	if err != nil {
		return dst, err
	}

	return append(dst, item.value...), nil
}

// ToSML renders the item as <A[n] "text">. Control characters are rendered as hex values
// outside the quoted runs, e.g. <A[3] "ab" 0x0A>.
func (item *ASCIIItem) ToSML() string {
	if item.value == "" {
		return "<A[0]>"
	}

	var sb strings.Builder
	sb.Grow(len(item.value) + 10)

	sb.WriteString("<A[")
	sb.WriteString(strconv.Itoa(len(item.value)))
	sb.WriteByte(']')

	inRun := false
	for i := range len(item.value) {
		ch := item.value[i]
		printable := ch >= 0x20 && ch != 0x7F

		switch {
		case printable && !inRun:
			sb.WriteString(` "`)
			inRun = true
		case !printable && inRun:
			sb.WriteByte('"')
			inRun = false
		}

		switch {
		case !printable:
			fmt.Fprintf(&sb, " 0x%02X", ch)
		case ch == '"':
			sb.WriteString(`\"`)
		default:
			sb.WriteByte(ch)
		}
	}

	if inRun {
		sb.WriteByte('"')
	}
	sb.WriteByte('>')

	return sb.String()
}

func (item *ASCIIItem) Clone() Item {
	return &ASCIIItem{value: item.value}
}

func (item *ASCIIItem) Type() string { return ASCIIType }

func (item *ASCIIItem) IsASCII() bool { return true }
