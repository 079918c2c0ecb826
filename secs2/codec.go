package secs2

import (
	"encoding/binary"
	"math"
)

// MaxListDepth is the maximum list nesting accepted by Decode.
const MaxListDepth = 64

// Encode serializes the item into its SECS-II binary form.
//
// Every item starts with a format byte, (formatCode << 2) | n, followed by n (1 to 3) big-endian
// length bytes, n being the smallest count that holds the length. The length of a list is the
// number of its direct children; for every other type it is the payload size in bytes.
//
// EmptyItem encodes to zero bytes. Encode is safe for concurrent use.
func Encode(item Item) ([]byte, error) {
	if item == nil {
		return []byte{}, nil
	}

	return item.appendBytes(make([]byte, 0, 64))
}

// Decode decodes one item from the start of data and returns it together with the number of
// bytes consumed. Trailing bytes are left untouched.
//
// Empty input decodes to an EmptyItem consuming zero bytes. Failures are reported as *DecodeError.
// Decode is safe for concurrent use.
func Decode(data []byte) (Item, int, error) {
	if len(data) == 0 {
		return NewEmptyItem(), 0, nil
	}

	d := decoder{input: data}
	item, err := d.decodeItem()
	if err != nil {
		return nil, d.pos, err
	}

	return item, d.pos, nil
}

// DecodeAll decodes data that must hold exactly one item, e.g. a complete message body.
func DecodeAll(data []byte) (Item, error) {
	item, n, err := Decode(data)
	if err != nil {
		return nil, err
	}

	if n != len(data) {
		return nil, newDecodeError(MalformedLength, n, "%d trailing bytes after item", len(data)-n)
	}

	return item, nil
}

type decoder struct {
	input []byte
	pos   int
	depth int
}

func (d *decoder) remaining() int {
	return len(d.input) - d.pos
}

func (d *decoder) read(length int) ([]byte, error) {
	if length > d.remaining() {
		return nil, newDecodeError(TruncatedBuffer, d.pos, "need %d bytes, have %d", length, d.remaining())
	}
	result := d.input[d.pos : d.pos+length]
	d.pos += length

	return result, nil
}

func (d *decoder) decodeItem() (Item, error) { //nolint:cyclop
	start := d.pos

	header, err := d.read(1)
	if err != nil {
		return nil, err
	}
	formatCode := FormatCode(header[0] >> 2)

	lenBytesCount := int(header[0] & 0x3)
	if lenBytesCount == 0 {
		return nil, newDecodeError(MalformedLength, start, "format byte 0x%02x has no length bytes", header[0])
	}

	lenBytes, err := d.read(lenBytesCount)
	if err != nil {
		return nil, err
	}

	length := 0
	for _, b := range lenBytes {
		length = length<<8 | int(b)
	}

	switch formatCode {
	case ListFormatCode:
		return d.decodeList(start, length)

	case ASCIIFormatCode:
		data, err := d.read(length)
		if err != nil {
			return nil, err
		}

		return &ASCIIItem{value: string(data)}, nil

	case BinaryFormatCode:
		data, err := d.read(length)
		if err != nil {
			return nil, err
		}

		return &BinaryItem{values: append(make([]byte, 0, len(data)), data...)}, nil

	case BooleanFormatCode:
		data, err := d.read(length)
		if err != nil {
			return nil, err
		}
		values := make([]bool, len(data))
		for i, v := range data {
			values[i] = v != 0
		}

		return &BooleanItem{values: values}, nil

	case Int8FormatCode:
		return d.decodeInt(1, length)
	case Int16FormatCode:
		return d.decodeInt(2, length)
	case Int32FormatCode:
		return d.decodeInt(4, length)
	case Int64FormatCode:
		return d.decodeInt(8, length)

	case Uint8FormatCode:
		return d.decodeUint(1, length)
	case Uint16FormatCode:
		return d.decodeUint(2, length)
	case Uint32FormatCode:
		return d.decodeUint(4, length)
	case Uint64FormatCode:
		return d.decodeUint(8, length)

	case Float32FormatCode:
		return d.decodeFloat(4, length)
	case Float64FormatCode:
		return d.decodeFloat(8, length)

	default:
		return nil, newDecodeError(UnknownType, start, "format code 0o%o", formatCode)
	}
}

func (d *decoder) decodeList(start int, count int) (Item, error) {
	d.depth++
	if d.depth > MaxListDepth {
		return nil, newDecodeError(NestingTooDeep, start, "depth exceeds %d", MaxListDepth)
	}

	// every child needs at least a format byte and one length byte
	if count*2 > d.remaining() {
		return nil, newDecodeError(TruncatedBuffer, start, "list declares %d items, %d bytes remaining", count, d.remaining())
	}

	values := make([]Item, 0, count)
	for range count {
		child, err := d.decodeItem()
		if err != nil {
			return nil, err
		}
		values = append(values, child)
	}
	d.depth--

	return &ListItem{values: values}, nil
}

func (d *decoder) payload(typeName string, byteSize int, length int) ([]byte, error) {
	if length%byteSize != 0 {
		return nil, newDecodeError(MalformedLength, d.pos, "length %d is not a multiple of %d for %s", length, byteSize, typeName)
	}

	return d.read(length)
}

func (d *decoder) decodeInt(byteSize int, length int) (Item, error) {
	item := &IntItem{byteSize: byteSize}
	data, err := d.payload(item.Type(), byteSize, length)
	if err != nil {
		return nil, err
	}

	item.values = make([]int64, 0, length/byteSize)
	for i := 0; i < len(data); i += byteSize {
		switch byteSize {
		case 1:
			item.values = append(item.values, int64(int8(data[i])))
		case 2:
			item.values = append(item.values, int64(int16(binary.BigEndian.Uint16(data[i:])))) //nolint:gosec
		case 4:
			item.values = append(item.values, int64(int32(binary.BigEndian.Uint32(data[i:])))) //nolint:gosec
		default:
			item.values = append(item.values, int64(binary.BigEndian.Uint64(data[i:]))) //nolint:gosec
		}
	}

	return item, nil
}

func (d *decoder) decodeUint(byteSize int, length int) (Item, error) {
	item := &UintItem{byteSize: byteSize}
	data, err := d.payload(item.Type(), byteSize, length)
	if err != nil {
		return nil, err
	}

	item.values = make([]uint64, 0, length/byteSize)
	for i := 0; i < len(data); i += byteSize {
		switch byteSize {
		case 1:
			item.values = append(item.values, uint64(data[i]))
		case 2:
			item.values = append(item.values, uint64(binary.BigEndian.Uint16(data[i:])))
		case 4:
			item.values = append(item.values, uint64(binary.BigEndian.Uint32(data[i:])))
		default:
			item.values = append(item.values, binary.BigEndian.Uint64(data[i:]))
		}
	}

	return item, nil
}

func (d *decoder) decodeFloat(byteSize int, length int) (Item, error) {
	item := &FloatItem{byteSize: byteSize}
	data, err := d.payload(item.Type(), byteSize, length)
	if err != nil {
		return nil, err
	}

	item.values = make([]float64, 0, length/byteSize)
	for i := 0; i < len(data); i += byteSize {
		if byteSize == 4 {
			item.values = append(item.values, float64(math.Float32frombits(binary.BigEndian.Uint32(data[i:]))))
		} else {
			item.values = append(item.values, math.Float64frombits(binary.BigEndian.Uint64(data[i:])))
		}
	}

	return item, nil
}
