package secs2

import (
	"encoding/binary"
	"math"
	"strconv"

	"github.com/fabwire/go-secs/internal/util"
)

// IntItem represents signed integers (I1, I2, I4 or I8) in a SECS-II message.
//
// Values are held as int64 whatever the element width, so I8 keeps its full 64-bit range.
type IntItem struct {
	baseItem
	byteSize int
	values   []int64
}

// NewIntItem creates a new IntItem whose elements are byteSize (1, 2, 4 or 8) bytes wide.
//
// Each value can be a signed or unsigned Go integer, a slice of them, or a string holding an
// integer literal. A value outside the range of byteSize records an error on the item;
// values are never truncated.
func NewIntItem(byteSize int, values ...any) Item {
	item := &IntItem{byteSize: byteSize, values: []int64{}}

	if !validIntSize(byteSize) {
		item.setError(newItemError("invalid byte size %d for signed integer", byteSize))
		return item
	}

	ints, err := collectInts(values)
	if err != nil {
		item.setError(err)
		return item
	}

	minVal, maxVal := intRange(byteSize)
	for _, v := range ints {
		if v < minVal || v > maxVal {
			item.setError(newItemError("value %d out of range for I%d", v, byteSize))
			return item
		}
	}
	item.values = ints

	if len(ints)*byteSize > MaxByteSize {
		item.setError(newItemError("I%d size %d exceeds limit", byteSize, len(ints)))
	}

	return item
}

func validIntSize(byteSize int) bool {
	return byteSize == 1 || byteSize == 2 || byteSize == 4 || byteSize == 8
}

func intRange(byteSize int) (int64, int64) {
	if byteSize == 8 {
		return math.MinInt64, math.MaxInt64
	}
	shift := byteSize*8 - 1

	return -1 << shift, 1<<shift - 1
}

func (item *IntItem) Get(indices ...int) (Item, error) {
	return notList(item, indices)
}

// ToInt returns the values as int64.
func (item *IntItem) ToInt() ([]int64, error) {
	return item.values, nil
}

// Values returns the values as []int64.
func (item *IntItem) Values() any {
	return item.values
}

func (item *IntItem) Size() int {
	return len(item.values)
}

func (item *IntItem) ToBytes() []byte {
	data, err := Encode(item)
	if err != nil {
		return nil
	}

	return data
}

func (item *IntItem) appendBytes(dst []byte) ([]byte, error) {
	if !validIntSize(item.byteSize) {
		return dst, &EncodeError{Kind: UnsupportedKind, Type: "I" + strconv.Itoa(item.byteSize)}
	}

	if item.itemErr != nil {
		return dst, &EncodeError{Kind: InvalidValue, Type: item.Type(), Err: item.itemErr}
	}

	dst, err := appendHeader(dst, item.Type(), len(item.values)*item.byteSize)
	if err != nil {
		return dst, err
	}

	for _, v := range item.values {
		switch item.byteSize {
		case 1:
			dst = append(dst, byte(v))
		case 2:
			dst = binary.BigEndian.AppendUint16(dst, uint16(v)) //nolint:gosec
		case 4:
			dst = binary.BigEndian.AppendUint32(dst, uint32(v)) //nolint:gosec
		default:
			dst = binary.BigEndian.AppendUint64(dst, uint64(v)) //nolint:gosec
		}
	}

	return dst, nil
}

// ToSML renders the item as <I4[2] 1 -2>.
func (item *IntItem) ToSML() string {
	return numericSML("I", item.byteSize, item.values, func(b []byte, v int64) []byte {
		return strconv.AppendInt(b, v, 10)
	})
}

func (item *IntItem) Clone() Item {
	return &IntItem{byteSize: item.byteSize, values: util.CloneSlice(item.values, 0)}
}

// Type returns "i1", "i2", "i4" or "i8".
func (item *IntItem) Type() string {
	switch item.byteSize {
	case 1:
		return Int8Type
	case 2:
		return Int16Type
	case 4:
		return Int32Type
	case 8:
		return Int64Type
	default:
		return ""
	}
}

func (item *IntItem) IsInt8() bool  { return item.byteSize == 1 }
func (item *IntItem) IsInt16() bool { return item.byteSize == 2 }
func (item *IntItem) IsInt32() bool { return item.byteSize == 4 }
func (item *IntItem) IsInt64() bool { return item.byteSize == 8 }
