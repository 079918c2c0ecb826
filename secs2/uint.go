package secs2

import (
	"encoding/binary"
	"strconv"

	"github.com/fabwire/go-secs/internal/util"
)

// UintItem represents unsigned integers (U1, U2, U4 or U8) in a SECS-II message.
//
// Values are held as uint64, so U8 keeps its full 64-bit range.
type UintItem struct {
	baseItem
	byteSize int
	values   []uint64
}

// NewUintItem creates a new UintItem whose elements are byteSize (1, 2, 4 or 8) bytes wide.
//
// Each value can be a Go integer, a slice of them, or a string holding an integer literal.
// Negative values and values above the range of byteSize record an error on the item.
func NewUintItem(byteSize int, values ...any) Item {
	item := &UintItem{byteSize: byteSize, values: []uint64{}}

	if !validIntSize(byteSize) {
		item.setError(newItemError("invalid byte size %d for unsigned integer", byteSize))
		return item
	}

	uints, err := collectUints(values)
	if err != nil {
		item.setError(err)
		return item
	}

	if byteSize < 8 {
		maxVal := uint64(1)<<(byteSize*8) - 1
		for _, v := range uints {
			if v > maxVal {
				item.setError(newItemError("value %d out of range for U%d", v, byteSize))
				return item
			}
		}
	}
	item.values = uints

	if len(uints)*byteSize > MaxByteSize {
		item.setError(newItemError("U%d size %d exceeds limit", byteSize, len(uints)))
	}

	return item
}

func (item *UintItem) Get(indices ...int) (Item, error) {
	return notList(item, indices)
}

// ToUint returns the values as uint64.
func (item *UintItem) ToUint() ([]uint64, error) {
	return item.values, nil
}

// Values returns the values as []uint64.
func (item *UintItem) Values() any {
	return item.values
}

func (item *UintItem) Size() int {
	return len(item.values)
}

func (item *UintItem) ToBytes() []byte {
	data, err := Encode(item)
	if err != nil {
		return nil
	}

	return data
}

func (item *UintItem) appendBytes(dst []byte) ([]byte, error) {
	if !validIntSize(item.byteSize) {
		return dst, &EncodeError{Kind: UnsupportedKind, Type: "U" + strconv.Itoa(item.byteSize)}
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
			dst = binary.BigEndian.AppendUint64(dst, v)
		}
	}

	return dst, nil
}

// ToSML renders the item as <U4[2] 1 2>.
func (item *UintItem) ToSML() string {
	return numericSML("U", item.byteSize, item.values, func(b []byte, v uint64) []byte {
		return strconv.AppendUint(b, v, 10)
	})
}

func (item *UintItem) Clone() Item {
	return &UintItem{byteSize: item.byteSize, values: util.CloneSlice(item.values, 0)}
}

// Type returns "u1", "u2", "u4" or "u8".
func (item *UintItem) Type() string {
	switch item.byteSize {
	case 1:
		return Uint8Type
	case 2:
		return Uint16Type
	case 4:
		return Uint32Type
	case 8:
		return Uint64Type
	default:
		return ""
	}
}

func (item *UintItem) IsUint8() bool  { return item.byteSize == 1 }
func (item *UintItem) IsUint16() bool { return item.byteSize == 2 }
func (item *UintItem) IsUint32() bool { return item.byteSize == 4 }
func (item *UintItem) IsUint64() bool { return item.byteSize == 8 }
