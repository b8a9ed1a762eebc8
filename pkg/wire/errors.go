package wire

import (
	"fmt"

	"github.com/woozymasta/mcquery/pkg/mcerr"
)

// FormatError reports a primitive that could not be decoded.
type FormatError struct {
	Reason string // what was wrong
	Offset int    // byte offset in the decoded buffer
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("wire: bad primitive at offset %d: %s", e.Offset, e.Reason)
}

// Unwrap makes every FormatError match mcerr.ErrMalformedPrimitive.
func (e *FormatError) Unwrap() error {
	return mcerr.ErrMalformedPrimitive
}

func formatErr(off int, format string, args ...any) error {
	return &FormatError{Offset: off, Reason: fmt.Sprintf(format, args...)}
}
