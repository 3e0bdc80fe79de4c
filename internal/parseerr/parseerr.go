// Package parseerr defines the error taxonomy shared by every bitstream
// component. Callers distinguish failure modes with errors.Is against the
// sentinels, or with KindOf when a classification is needed (for example
// when scoring diagnostics).
package parseerr

import (
	"errors"
	"fmt"
)

// Sentinel errors for bitstream parsing.
var (
	ErrEmpty               = errors.New("empty input")
	ErrInvalidFormat       = errors.New("invalid format")
	ErrInvalid             = errors.New("invalid field value")
	ErrOutOfRange          = errors.New("value out of range")
	ErrTooLong             = errors.New("input too long")
	ErrUnexpectedEOF       = errors.New("unexpected end of data")
	ErrInvalidUnitType     = errors.New("invalid unit type")
	ErrMissingParameterSet = errors.New("missing parameter set")
)

// Kind is the taxonomy class of an error.
type Kind int

const (
	KindUnknown Kind = iota
	KindEmpty
	KindInvalidFormat
	KindInvalid
	KindOutOfRange
	KindTooLong
	KindUnexpectedEOF
	KindInvalidUnitType
	KindMissingParameterSet
	KindParse
)

var kindNames = [...]string{
	KindUnknown:             "unknown",
	KindEmpty:               "empty",
	KindInvalidFormat:       "invalid_format",
	KindInvalid:             "invalid",
	KindOutOfRange:          "out_of_range",
	KindTooLong:             "too_long",
	KindUnexpectedEOF:       "unexpected_eof",
	KindInvalidUnitType:     "invalid_unit_type",
	KindMissingParameterSet: "missing_parameter_set",
	KindParse:               "parse",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return kindNames[KindUnknown]
	}
	return kindNames[k]
}

// ParseError is a structural violation found at an exact byte offset.
type ParseError struct {
	Offset int
	Msg    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at offset %d: %s", e.Offset, e.Msg)
}

// Parse returns a *ParseError for offset.
func Parse(offset int, msg string) error {
	return &ParseError{Offset: offset, Msg: msg}
}

// FieldError records which syntax element was being read when Err occurred.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// Field wraps err with the name of the syntax element being decoded. A nil
// err yields nil.
func Field(name string, err error) error {
	if err == nil {
		return nil
	}
	return &FieldError{Field: name, Err: err}
}

// MissingParameterSetError names the parameter-set class and id that a
// header referenced but the supplied table did not contain.
type MissingParameterSetError struct {
	Class string
	ID    uint32
}

func (e *MissingParameterSetError) Error() string {
	return fmt.Sprintf("missing parameter set: %s id %d", e.Class, e.ID)
}

func (e *MissingParameterSetError) Is(target error) bool {
	return target == ErrMissingParameterSet
}

// KindOf classifies err through any wrapping. A nil error is KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var pe *ParseError
	if errors.As(err, &pe) {
		return KindParse
	}
	switch {
	case errors.Is(err, ErrUnexpectedEOF):
		return KindUnexpectedEOF
	case errors.Is(err, ErrInvalidUnitType):
		return KindInvalidUnitType
	case errors.Is(err, ErrMissingParameterSet):
		return KindMissingParameterSet
	case errors.Is(err, ErrEmpty):
		return KindEmpty
	case errors.Is(err, ErrInvalidFormat):
		return KindInvalidFormat
	case errors.Is(err, ErrInvalid):
		return KindInvalid
	case errors.Is(err, ErrOutOfRange):
		return KindOutOfRange
	case errors.Is(err, ErrTooLong):
		return KindTooLong
	}
	return KindUnknown
}
