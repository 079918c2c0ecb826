package secs2

import (
	"errors"
	"fmt"
)

// MaxByteSize defines the maximum length value a SECS-II item header can carry.
const MaxByteSize = 1<<24 - 1

const (
	EmptyType   = "empty"
	ListType    = "list"
	BinaryType  = "binary"
	BooleanType = "boolean"
	ASCIIType   = "ascii"
	Int8Type    = "i1"
	Int16Type   = "i2"
	Int32Type   = "i4"
	Int64Type   = "i8"
	Uint8Type   = "u1"
	Uint16Type  = "u2"
	Uint32Type  = "u4"
	Uint64Type  = "u8"
	Float32Type = "f4"
	Float64Type = "f8"
)

// FormatCode is the 6-bit SECS-II format code, written in octal by the standard.
type FormatCode = int

const (
	ListFormatCode    FormatCode = 0o00
	BinaryFormatCode  FormatCode = 0o10
	BooleanFormatCode FormatCode = 0o11
	ASCIIFormatCode   FormatCode = 0o20
	Int64FormatCode   FormatCode = 0o30
	Int8FormatCode    FormatCode = 0o31
	Int16FormatCode   FormatCode = 0o32
	Int32FormatCode   FormatCode = 0o34
	Float64FormatCode FormatCode = 0o40
	Float32FormatCode FormatCode = 0o44
	Uint64FormatCode  FormatCode = 0o50
	Uint8FormatCode   FormatCode = 0o51
	Uint16FormatCode  FormatCode = 0o52
	Uint32FormatCode  FormatCode = 0o54
)

// ItemType describes the format code and element width of an item type.
type ItemType struct {
	FormatCode FormatCode
	Size       int
}

var itemTypeMap = map[string]ItemType{
	ListType:    {FormatCode: ListFormatCode, Size: 1},
	BinaryType:  {FormatCode: BinaryFormatCode, Size: 1},
	BooleanType: {FormatCode: BooleanFormatCode, Size: 1},
	ASCIIType:   {FormatCode: ASCIIFormatCode, Size: 1},
	Int64Type:   {FormatCode: Int64FormatCode, Size: 8},
	Int8Type:    {FormatCode: Int8FormatCode, Size: 1},
	Int16Type:   {FormatCode: Int16FormatCode, Size: 2},
	Int32Type:   {FormatCode: Int32FormatCode, Size: 4},
	Float64Type: {FormatCode: Float64FormatCode, Size: 8},
	Float32Type: {FormatCode: Float32FormatCode, Size: 4},
	Uint64Type:  {FormatCode: Uint64FormatCode, Size: 8},
	Uint8Type:   {FormatCode: Uint8FormatCode, Size: 1},
	Uint16Type:  {FormatCode: Uint16FormatCode, Size: 2},
	Uint32Type:  {FormatCode: Uint32FormatCode, Size: 4},
}

// LookupItemType returns the ItemType of the given type name, e.g. "u4".
func LookupItemType(typeName string) (ItemType, bool) {
	t, ok := itemTypeMap[typeName]
	return t, ok
}

// ErrItemType is returned by the typed accessors when the item holds another variant.
var ErrItemType = errors.New("item type mismatch")

// Item represents an immutable SECS-II data item.
//
// The set of variants is closed: list, ASCII, binary, boolean, signed and unsigned integers of
// 1, 2, 4 and 8 bytes, and 4 or 8 byte floats. EmptyItem stands for an absent message body.
//
// An item created with invalid arguments carries the failure in Error(); encoding such an item
// fails with an *EncodeError.
type Item interface {
	// Get retrieves a nested Item at the specified indices.
	// Without indices it returns the item itself.
	Get(indices ...int) (Item, error)

	ToList() ([]Item, error)
	ToBinary() ([]byte, error)
	ToBoolean() ([]bool, error)
	ToASCII() (string, error)
	ToInt() ([]int64, error)
	ToUint() ([]uint64, error)
	ToFloat() ([]float64, error)

	// Values returns the value(s) held by the item. The concrete type depends on the variant.
	Values() any

	// Size returns the number of values held by the item. For a list it is the number of
	// direct children.
	Size() int

	// ToBytes returns the encoded bytes of the item, or nil if the item cannot be encoded.
	// Use Encode to get the failure reason.
	ToBytes() []byte

	// ToSML renders the item in SML notation.
	ToSML() string

	// Clone returns a deep copy of the item.
	Clone() Item

	// Error returns the error recorded while the item was created.
	Error() error

	// Type returns the type name, e.g. "list", "ascii", "u4".
	Type() string

	IsEmpty() bool
	IsList() bool
	IsBinary() bool
	IsBoolean() bool
	IsASCII() bool
	IsInt8() bool
	IsInt16() bool
	IsInt32() bool
	IsInt64() bool
	IsUint8() bool
	IsUint16() bool
	IsUint32() bool
	IsUint64() bool
	IsFloat32() bool
	IsFloat64() bool

	// appendBytes appends the encoded item to dst.
	appendBytes(dst []byte) ([]byte, error)
}

// ItemError records a failed item creation.
type ItemError struct {
	err error
}

func newItemError(format string, args ...any) *ItemError {
	return &ItemError{err: fmt.Errorf(format, args...)}
}

func (e *ItemError) Error() string { return e.err.Error() }

func (e *ItemError) Unwrap() error { return e.err }

// EmptyItem represents an absent item, e.g. the body of a header-only message.
// It encodes to zero bytes.
type EmptyItem struct {
	baseItem
}

// NewEmptyItem creates a new empty item.
func NewEmptyItem() Item {
	return &EmptyItem{}
}

func (item *EmptyItem) Get(indices ...int) (Item, error) {
	if len(indices) != 0 {
		return nil, newItemError("item is not a list, indices %v", indices)
	}

	return item, nil
}

func (item *EmptyItem) Size() int       { return 0 }
func (item *EmptyItem) Values() any     { return nil }
func (item *EmptyItem) ToBytes() []byte { return []byte{} }
func (item *EmptyItem) ToSML() string   { return "" }
func (item *EmptyItem) Clone() Item     { return &EmptyItem{} }
func (item *EmptyItem) Type() string    { return EmptyType }
func (item *EmptyItem) IsEmpty() bool   { return true }

func (item *EmptyItem) appendBytes(dst []byte) ([]byte, error) {
	return dst, nil
}

// baseItem provides the accessor defaults and the creation error shared by all variants.
type baseItem struct {
	itemErr error
}

func (item *baseItem) ToList() ([]Item, error)     { return nil, ErrItemType }
func (item *baseItem) ToBinary() ([]byte, error)   { return nil, ErrItemType }
func (item *baseItem) ToBoolean() ([]bool, error)  { return nil, ErrItemType }
func (item *baseItem) ToASCII() (string, error)    { return "", ErrItemType }
func (item *baseItem) ToInt() ([]int64, error)     { return nil, ErrItemType }
func (item *baseItem) ToUint() ([]uint64, error)   { return nil, ErrItemType }
func (item *baseItem) ToFloat() ([]float64, error) { return nil, ErrItemType }

func (item *baseItem) Error() error { return item.itemErr }

func (item *baseItem) IsEmpty() bool   { return false }
func (item *baseItem) IsList() bool    { return false }
func (item *baseItem) IsBinary() bool  { return false }
func (item *baseItem) IsBoolean() bool { return false }
func (item *baseItem) IsASCII() bool   { return false }
func (item *baseItem) IsInt8() bool    { return false }
func (item *baseItem) IsInt16() bool   { return false }
func (item *baseItem) IsInt32() bool   { return false }
func (item *baseItem) IsInt64() bool   { return false }
func (item *baseItem) IsUint8() bool   { return false }
func (item *baseItem) IsUint16() bool  { return false }
func (item *baseItem) IsUint32() bool  { return false }
func (item *baseItem) IsUint64() bool  { return false }
func (item *baseItem) IsFloat32() bool { return false }
func (item *baseItem) IsFloat64() bool { return false }

func (item *baseItem) setError(err error) {
	item.itemErr = errors.Join(item.itemErr, &ItemError{err: err})
}

// notList is shared by the scalar variants for Get with indices.
func notList(self Item, indices []int) (Item, error) {
	if len(indices) != 0 {
		return nil, newItemError("item %s is not a list, indices %v", self.Type(), indices)
	}

	return self, nil
}

// headerLenByteCount returns the minimal number of length bytes for length.
func headerLenByteCount(length int) int {
	switch {
	case length <= 0xFF:
		return 1
	case length <= 0xFFFF:
		return 2
	default:
		return 3
	}
}

// appendHeader appends the format byte and the minimal length bytes for an item of the
// given type whose header length value is length.
func appendHeader(dst []byte, typeName string, length int) ([]byte, error) {
	itemType, ok := itemTypeMap[typeName]
	if !ok {
		return dst, &EncodeError{Kind: UnsupportedKind, Type: typeName}
	}

	if length > MaxByteSize {
		return dst, &EncodeError{Kind: LengthOverflow, Type: typeName, Length: length}
	}

	n := headerLenByteCount(length)
	dst = append(dst, byte(itemType.FormatCode<<2|n))
	switch n {
	case 1:
		dst = append(dst, byte(length))
	case 2:
		dst = append(dst, byte(length>>8), byte(length))
	default:
		dst = append(dst, byte(length>>16), byte(length>>8), byte(length))
	}

	return dst, nil
}
