package bencode

import (
	"errors"
	"fmt"
)

// ErrMalformedEncoding is wrapped by every decode failure.
var ErrMalformedEncoding = errors.New("malformed bencode")

// SyntaxError describes where and why decoding stopped.
type SyntaxError struct {
	Offset  int
	Reason  string
	Context string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("bencode decode error at offset %d: %s (context %q)", e.Offset, e.Reason, e.Context)
}

func (e *SyntaxError) Unwrap() error {
	return ErrMalformedEncoding
}

func syntaxError(data []byte, offset int, format string, args ...interface{}) error {
	end := offset + 20
	if end > len(data) {
		end = len(data)
	}
	start := offset
	if start > len(data) {
		start = len(data)
	}
	return &SyntaxError{
		Offset:  offset,
		Reason:  fmt.Sprintf(format, args...),
		Context: string(data[start:end]),
	}
}
