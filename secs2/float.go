package secs2

import (
	"encoding/binary"
	"math"
	"strconv"

	"github.com/fabwire/go-secs/internal/util"
)

// FloatItem represents IEEE-754 floats (F4 or F8) in a SECS-II message.
type FloatItem struct {
	baseItem
	byteSize int
	values   []float64
}

// NewFloatItem creates a new FloatItem whose elements are byteSize (4 or 8) bytes wide.
//
// Each value can be a float32/float64, an integer, a slice of them, or a string holding a float
// literal. F4 values are rounded to float32 precision; a finite value beyond the float32 range
// records an error on the item.
func NewFloatItem(byteSize int, values ...any) Item {
	item := &FloatItem{byteSize: byteSize, values: []float64{}}

	if byteSize != 4 && byteSize != 8 {
		item.setError(newItemError("invalid byte size %d for float", byteSize))
		return item
	}

	floats, err := collectFloats(values)
	if err != nil {
		item.setError(err)
		return item
	}

	if byteSize == 4 {
		for i, v := range floats {
			if !math.IsInf(v, 0) && !math.IsNaN(v) && math.Abs(v) > math.MaxFloat32 {
				item.setError(newItemError("value %g out of range for F4", v))
				return item
			}
			// keep the value F4 will actually carry on the wire
			floats[i] = float64(float32(v))
		}
	}
	item.values = floats

	if len(floats)*byteSize > MaxByteSize {
		item.setError(newItemError("F%d size %d exceeds limit", byteSize, len(floats)))
	}

	return item
}

func (item *FloatItem) Get(indices ...int) (Item, error) {
	return notList(item, indices)
}

// ToFloat returns the values as float64.
func (item *FloatItem) ToFloat() ([]float64, error) {
	return item.values, nil
}

// Values returns the values as []float64.
func (item *FloatItem) Values() any {
	return item.values
}

func (item *FloatItem) Size() int {
	return len(item.values)
}

func (item *FloatItem) ToBytes() []byte {
	data, err := Encode(item)
	if err != nil {
		return nil
	}

	return data
}

func (item *FloatItem) appendBytes(dst []byte) ([]byte, error) {
	if item.byteSize != 4 && item.byteSize != 8 {
		return dst, &EncodeError{Kind: UnsupportedKind, Type: "F" + strconv.Itoa(item.byteSize)}
	}

	if item.itemErr != nil {
		return dst, &EncodeError{Kind: InvalidValue, Type: item.Type(), Err: item.itemErr}
	}

	dst, err := appendHeader(dst, item.Type(), len(item.values)*item.byteSize)
	if err != nil {
		return dst, err
	}

	for _, v := range item.values {
		if item.byteSize == 4 {
			dst = binary.BigEndian.AppendUint32(dst, math.Float32bits(float32(v)))
		} else {
			dst = binary.BigEndian.AppendUint64(dst, math.Float64bits(v))
		}
	}

	return dst, nil
}

// ToSML renders the item as <F8[2] 1.5 -2>.
func (item *FloatItem) ToSML() string {
	bitSize := item.byteSize * 8

	return numericSML("F", item.byteSize, item.values, func(b []byte, v float64) []byte {
		return strconv.AppendFloat(b, v, 'g', -1, bitSize)
	})
}

func (item *FloatItem) Clone() Item {
	return &FloatItem{byteSize: item.byteSize, values: util.CloneSlice(item.values, 0)}
}

// Type returns "f4" or "f8".
func (item *FloatItem) Type() string {
	switch item.byteSize {
	case 4:
		return Float32Type
	case 8:
		return Float64Type
	default:
		return ""
	}
}

func (item *FloatItem) IsFloat32() bool { return item.byteSize == 4 }
func (item *FloatItem) IsFloat64() bool { return item.byteSize == 8 }
