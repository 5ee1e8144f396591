package ply

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedHeader = errors.New("malformed ply header")
	ErrMalformedRecord = errors.New("malformed ply record")
)

// MalformedHeaderError reports a header whose schema cannot be determined.
type MalformedHeaderError struct {
	Line   int // 1-based, 0 when the input ended
	Text   string
	Reason string
}

func (e *MalformedHeaderError) Error() string {
	if e.Line == 0 {
		return fmt.Sprintf("%v: %s", ErrMalformedHeader, e.Reason)
	}
	return fmt.Sprintf("%v: line %d %q: %s", ErrMalformedHeader, e.Line, e.Text, e.Reason)
}

func (e *MalformedHeaderError) Is(target error) bool {
	return target == ErrMalformedHeader
}

// MalformedRecordError reports a payload that does not match the header.
type MalformedRecordError struct {
	Element  string
	Index    int
	Property string
	Err      error
}

func (e *MalformedRecordError) Error() string {
	msg := fmt.Sprintf("%v: %s[%d]", ErrMalformedRecord, e.Element, e.Index)
	if e.Property != "" {
		msg += "." + e.Property
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedRecordError) Is(target error) bool {
	return target == ErrMalformedRecord
}

func (e *MalformedRecordError) Unwrap() error {
	return e.Err
}
