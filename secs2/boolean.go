package secs2

import (
	"strconv"
	"strings"

	"github.com/fabwire/go-secs/internal/util"
)

const (
	booleanTrue  byte = 0xFF
	booleanFalse byte = 0x00
)

// BooleanItem represents one or more boolean values in a SECS-II message.
//
// Each value is encoded as a full byte, 0xFF for true and 0x00 for false. Any non-zero byte
// decodes as true.
type BooleanItem struct {
	baseItem
	values []bool
}

// NewBooleanItem creates a new BooleanItem. Each value can be a bool or a []bool.
func NewBooleanItem(values ...any) Item {
	item := &BooleanItem{values: make([]bool, 0, len(values))}

	for _, value := range values {
		switch v := value.(type) {
		case bool:
			item.values = append(item.values, v)
		case []bool:
			item.values = append(item.values, v...)
		default:
			item.setError(newItemError("invalid boolean value type %T", value))
			return item
		}
	}

	if len(item.values) > MaxByteSize {
		item.setError(newItemError("boolean size %d exceeds %d", len(item.values), MaxByteSize))
	}

	return item
}

func (item *BooleanItem) Get(indices ...int) (Item, error) {
	return notList(item, indices)
}

// ToBoolean returns the boolean values.
func (item *BooleanItem) ToBoolean() ([]bool, error) {
	return item.values, nil
}

// Values returns the boolean values as []bool.
func (item *BooleanItem) Values() any {
	return item.values
}

func (item *BooleanItem) Size() int {
	return len(item.values)
}

func (item *BooleanItem) ToBytes() []byte {
	data, err := Encode(item)
	if err != nil {
		return nil
	}

	return data
}

func (item *BooleanItem) appendBytes(dst []byte) ([]byte, error) {
	if item.itemErr != nil {
		return dst, &EncodeError{Kind: InvalidValue, Type: BooleanType, Err: item.itemErr}
	}

	dst, err := appendHeader(dst, BooleanType, len(item.values))
	if err != nil {
		return dst, err
	}

	for _, v := range item.values {
		if v {
			dst = append(dst, booleanTrue)
		} else {
			dst = append(dst, booleanFalse)
		}
	}

	return dst, nil
}

// ToSML renders the item as <BOOLEAN[n] T F>.
func (item *BooleanItem) ToSML() string {
	if len(item.values) == 0 {
		return "<BOOLEAN[0]>"
	}

	var sb strings.Builder
	sb.Grow(len(item.values)*2 + 14)

	sb.WriteString("<BOOLEAN[")
	sb.WriteString(strconv.Itoa(len(item.values)))
	sb.WriteByte(']')
	for _, v := range item.values {
		if v {
			sb.WriteString(" T")
		} else {
			sb.WriteString(" F")
		}
	}
	sb.WriteByte('>')

	return sb.String()
}

func (item *BooleanItem) Clone() Item {
	return &BooleanItem{values: util.CloneSlice(item.values, 0)}
}

func (item *BooleanItem) Type() string { return BooleanType }

func (item *BooleanItem) IsBoolean() bool { return true }
