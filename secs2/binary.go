package secs2

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fabwire/go-secs/internal/util"
)

// BinaryItem represents a sequence of bytes in a SECS-II message.
type BinaryItem struct {
	baseItem
	values []byte
}

// NewBinaryItem creates a new BinaryItem.
//
// Each value can be a byte, a []byte, or an int/[]int whose elements lie in 0..255.
// Other types or out-of-range values record an error on the item.
func NewBinaryItem(values ...any) Item {
	item := &BinaryItem{values: make([]byte, 0, len(values))}

	for _, value := range values {
		switch v := value.(type) {
		case byte:
			item.values = append(item.values, v)
		case []byte:
			item.values = append(item.values, v...)
		case int:
			if !item.appendInt(v) {
				return item
			}
		case []int:
			for _, n := range v {
				if !item.appendInt(n) {
					return item
				}
			}
		default:
			item.setError(newItemError("invalid binary value type %T", value))
			return item
		}
	}

	if len(item.values) > MaxByteSize {
		item.setError(newItemError("binary size %d exceeds %d", len(item.values), MaxByteSize))
	}

	return item
}

func (item *BinaryItem) appendInt(v int) bool {
	if v < 0 || v > 0xFF {
		item.setError(newItemError("binary value %d out of range", v))
		return false
	}
	item.values = append(item.values, byte(v))

	return true
}

func (item *BinaryItem) Get(indices ...int) (Item, error) {
	return notList(item, indices)
}

// ToBinary returns the byte values.
func (item *BinaryItem) ToBinary() ([]byte, error) {
	return item.values, nil
}

// Values returns the byte values as []byte.
func (item *BinaryItem) Values() any {
	return item.values
}

func (item *BinaryItem) Size() int {
	return len(item.values)
}

func (item *BinaryItem) ToBytes() []byte {
	data, err := Encode(item)
	if err != nil {
		return nil
	}

	return data
}

func (item *BinaryItem) appendBytes(dst []byte) ([]byte, error) {
	if item.itemErr != nil {
		return dst, &EncodeError{Kind: InvalidValue, Type: BinaryType, Err: item.itemErr}
	}

	dst, err := appendHeader(dst, BinaryType, len(item.values))
	if err != nil {
		return dst, err
	}

	return append(dst, item.values...), nil
}

// ToSML renders the item as <B[n] 0x01 0xFF>.
func (item *BinaryItem) ToSML() string {
	if len(item.values) == 0 {
		return "<B[0]>"
	}

	var sb strings.Builder
	sb.Grow(len(item.values)*5 + 8)

	sb.WriteString("<B[")
	sb.WriteString(strconv.Itoa(len(item.values)))
	sb.WriteByte(']')
	for _, v := range item.values {
		fmt.Fprintf(&sb, " 0x%02X", v)
	}
	sb.WriteByte('>')

	return sb.String()
}

func (item *BinaryItem) Clone() Item {
	return &BinaryItem{values: util.CloneSlice(item.values, 0)}
}

func (item *BinaryItem) Type() string { return BinaryType }

func (item *BinaryItem) IsBinary() bool { return true }
