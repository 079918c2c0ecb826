package secs2

import (
	"errors"
	"fmt"
)

// EncodeErrorKind classifies an encode failure.
type EncodeErrorKind int

const (
	// LengthOverflow means the item length does not fit in a 3-byte length field.
	LengthOverflow EncodeErrorKind = iota + 1
	// UnsupportedKind means the item has no valid SECS-II format, e.g. a 3-byte integer.
	UnsupportedKind
	// InvalidValue means the item recorded a creation error.
	InvalidValue
)

var (
	ErrLengthOverflow  = errors.New("item length exceeds 0xFFFFFF")
	ErrUnsupportedKind = errors.New("unsupported item kind")
	ErrInvalidValue    = errors.New("invalid item value")
)

// EncodeError is returned when an item cannot be encoded.
type EncodeError struct {
	Kind   EncodeErrorKind
	Type   string
	Length int
	Limit  int // LengthOverflow bound, MaxByteSize when zero
	Err    error
}

func (e *EncodeError) Error() string {
	switch e.Kind {
	case LengthOverflow:
		limit := e.Limit
		if limit == 0 {
			limit = MaxByteSize
		}

		return fmt.Sprintf("secs2: encode %s: length %d exceeds %d", e.Type, e.Length, limit)
	case UnsupportedKind:
		return fmt.Sprintf("secs2: encode %s: unsupported item kind", e.Type)
	default:
		return fmt.Sprintf("secs2: encode %s: %v", e.Type, e.Err)
	}
}

func (e *EncodeError) Unwrap() []error {
	errs := []error{e.kindErr()}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}

	return errs
}

func (e *EncodeError) kindErr() error {
	switch e.Kind {
	case LengthOverflow:
		return ErrLengthOverflow
	case UnsupportedKind:
		return ErrUnsupportedKind
	default:
		return ErrInvalidValue
	}
}

// DecodeErrorKind classifies a decode failure.
type DecodeErrorKind int

const (
	// UnknownType means the format code is not a SECS-II item type.
	UnknownType DecodeErrorKind = iota + 1
	// MalformedLength means a numeric payload is not a multiple of its element width,
	// or a format byte declares zero length bytes.
	MalformedLength
	// TruncatedBuffer means the declared length exceeds the remaining input.
	TruncatedBuffer
	// NestingTooDeep means lists are nested deeper than MaxListDepth.
	NestingTooDeep
)

var (
	ErrUnknownType     = errors.New("unknown item type")
	ErrMalformedLength = errors.New("malformed item length")
	ErrTruncatedBuffer = errors.New("truncated buffer")
	ErrNestingTooDeep  = errors.New("list nesting too deep")
)

// DecodeError is returned when bytes cannot be decoded into an item.
type DecodeError struct {
	Kind   DecodeErrorKind
	Offset int
	Msg    string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("secs2: decode at offset %d: %v: %s", e.Offset, e.kindErr(), e.Msg)
}

func (e *DecodeError) Unwrap() error { return e.kindErr() }

func (e *DecodeError) kindErr() error {
	switch e.Kind {
	case UnknownType:
		return ErrUnknownType
	case MalformedLength:
		return ErrMalformedLength
	case TruncatedBuffer:
		return ErrTruncatedBuffer
	default:
		return ErrNestingTooDeep
	}
}

func newDecodeError(kind DecodeErrorKind, offset int, format string, args ...any) *DecodeError {
	return &DecodeError{Kind: kind, Offset: offset, Msg: fmt.Sprintf(format, args...)}
}
