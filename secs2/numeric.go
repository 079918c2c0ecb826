package secs2

import (
	"math"
	"strconv"
	"strings"

	"github.com/fabwire/go-secs/internal/util"
)

// collectInts flattens the supported integer inputs into an int64 slice.
// uint64 values above math.MaxInt64 are rejected.
func collectInts(values []any) ([]int64, error) { //nolint:cyclop
	result := make([]int64, 0, len(values))
	for _, value := range values {
		switch v := value.(type) {
		case int:
			result = append(result, int64(v))
		case int8:
			result = append(result, int64(v))
		case int16:
			result = append(result, int64(v))
		case int32:
			result = append(result, int64(v))
		case int64:
			result = append(result, v)
		case uint8:
			result = append(result, int64(v))
		case uint16:
			result = append(result, int64(v))
		case uint32:
			result = append(result, int64(v))
		case uint:
			if uint64(v) > math.MaxInt64 {
				return nil, newItemError("value %d overflows int64", v)
			}
			result = append(result, int64(v)) //nolint:gosec
		case uint64:
			if v > math.MaxInt64 {
				return nil, newItemError("value %d overflows int64", v)
			}
			result = append(result, int64(v)) //nolint:gosec
		case []int:
			result = util.AppendInt64Slice(result, v)
		case []int8:
			result = util.AppendInt64Slice(result, v)
		case []int16:
			result = util.AppendInt64Slice(result, v)
		case []int32:
			result = util.AppendInt64Slice(result, v)
		case []int64:
			result = append(result, v...)
		case []uint16:
			result = util.AppendInt64Slice(result, v)
		case []uint32:
			result = util.AppendInt64Slice(result, v)
		case string:
			n, err := strconv.ParseInt(v, 0, 64)
			if err != nil {
				return nil, newItemError("invalid integer %q: %w", v, err)
			}
			result = append(result, n)
		default:
			return nil, newItemError("invalid integer value type %T", value)
		}
	}

	return result, nil
}

// collectUints flattens the supported integer inputs into a uint64 slice.
// Negative values are rejected.
func collectUints(values []any) ([]uint64, error) { //nolint:cyclop
	result := make([]uint64, 0, len(values))
	for _, value := range values {
		switch v := value.(type) {
		case uint:
			result = append(result, uint64(v))
		case uint8:
			result = append(result, uint64(v))
		case uint16:
			result = append(result, uint64(v))
		case uint32:
			result = append(result, uint64(v))
		case uint64:
			result = append(result, v)
		case []uint:
			result = util.AppendUint64Slice(result, v)
		case []uint8:
			result = util.AppendUint64Slice(result, v)
		case []uint16:
			result = util.AppendUint64Slice(result, v)
		case []uint32:
			result = util.AppendUint64Slice(result, v)
		case []uint64:
			result = append(result, v...)
		case string:
			n, err := strconv.ParseUint(v, 0, 64)
			if err != nil {
				return nil, newItemError("invalid unsigned integer %q: %w", v, err)
			}
			result = append(result, n)
		default:
			ints, err := collectInts([]any{value})
			if err != nil {
				return nil, newItemError("invalid unsigned integer value type %T", value)
			}
			for _, n := range ints {
				if n < 0 {
					return nil, newItemError("negative value %d for unsigned item", n)
				}
				result = append(result, uint64(n))
			}
		}
	}

	return result, nil
}

// collectFloats flattens float and integer inputs into a float64 slice.
func collectFloats(values []any) ([]float64, error) {
	result := make([]float64, 0, len(values))
	for _, value := range values {
		switch v := value.(type) {
		case float32:
			result = append(result, float64(v))
		case float64:
			result = append(result, v)
		case []float32:
			result = util.AppendFloat64Slice(result, v)
		case []float64:
			result = append(result, v...)
		case string:
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, newItemError("invalid float %q: %w", v, err)
			}
			result = append(result, f)
		default:
			ints, err := collectInts([]any{value})
			if err != nil {
				return nil, newItemError("invalid float value type %T", value)
			}
			result = util.AppendFloat64Slice(result, ints)
		}
	}

	return result, nil
}

// numericSML renders <{prefix}{byteSize}[n] v1 v2 ...>.
func numericSML[T any](prefix string, byteSize int, values []T, format func([]byte, T) []byte) string {
	var sb strings.Builder
	sb.Grow(len(values)*8 + 10)

	sb.WriteByte('<')
	sb.WriteString(prefix)
	sb.WriteString(strconv.Itoa(byteSize))
	sb.WriteByte('[')
	sb.WriteString(strconv.Itoa(len(values)))
	sb.WriteByte(']')

	var buf [32]byte
	for _, v := range values {
		sb.WriteByte(' ')
		sb.Write(format(buf[:0], v))
	}
	sb.WriteByte('>')

	return sb.String()
}
