// Package util holds small generic helpers shared by the item and connection packages.
package util

// CloneSlice returns a copy of src. A positive cloneSize sets the length of the copy,
// otherwise len(src) is used.
func CloneSlice[T any](src []T, cloneSize int) []T {
	if cloneSize <= 0 {
		cloneSize = len(src)
	}
	clone := make([]T, cloneSize)
	copy(clone, src)

	return clone
}

type signed interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64
}

type unsigned interface {
	~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

// AppendInt64Slice appends values converted to int64. Callers make sure unsigned inputs fit.
func AppendInt64Slice[T signed | ~uint8 | ~uint16 | ~uint32](target []int64, values []T) []int64 {
	for _, v := range values {
		target = append(target, int64(v))
	}

	return target
}

// AppendUint64Slice appends values converted to uint64. Callers make sure signed inputs are
// not negative.
func AppendUint64Slice[T signed | unsigned](target []uint64, values []T) []uint64 {
	for _, v := range values {
		target = append(target, uint64(v)) //nolint:gosec
	}

	return target
}

// AppendFloat64Slice appends values converted to float64.
func AppendFloat64Slice[T signed | unsigned | ~float32 | ~float64](target []float64, values []T) []float64 {
	for _, v := range values {
		target = append(target, float64(v))
	}

	return target
}
