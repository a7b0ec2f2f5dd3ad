package dv

import (
	"errors"
	"fmt"
)

var (
	// ErrTruncated means a chain or data field ran past the end of the buffer.
	ErrTruncated = errors.New("record truncated")
	// ErrUnknownEncoding means the record uses a code this decoder does not support.
	ErrUnknownEncoding = errors.New("unknown encoding")
	// ErrInvalidBCD means a BCD nibble held a value above 9.
	ErrInvalidBCD = errors.New("invalid BCD digit")
	// ErrNotNumeric means the record has no numeric value to extract.
	ErrNotNumeric = errors.New("record is not numeric")
)

// ParseError locates a scan failure inside the record buffer.
type ParseError struct {
	Offset int
	What   string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("offset 0x%02x: %s: %v", e.Offset, e.What, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func truncated(offset int, what string) error {
	return &ParseError{Offset: offset, What: what, Err: ErrTruncated}
}

func unknownEncoding(offset int, what string) error {
	return &ParseError{Offset: offset, What: what, Err: ErrUnknownEncoding}
}
