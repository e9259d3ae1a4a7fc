package ogg

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidSync         = errors.New("ogg: capture pattern not found")
	ErrMalformedHeader     = errors.New("ogg: malformed page header")
	ErrChecksumMismatch    = errors.New("ogg: expected and actual checksum do not match")
	ErrSegmentOverflow     = errors.New("ogg: segment table exceeds page data")
	ErrStreamInconsistency = errors.New("ogg: stream inconsistency")
	ErrUnsupportedStream   = errors.New("ogg: unsupported stream")
	ErrCommentTooLarge     = errors.New("ogg: comment too large for stream kind")
)

// PageError locates a failure at a given page of a physical stream.
type PageError struct {
	Offset int64
	Serial uint32
	Err    error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("page at offset %d (serial %08x): %s", e.Offset, e.Serial, e.Err.Error())
}

func (e *PageError) Unwrap() error {
	return e.Err
}

// Warning is a non-fatal problem found while scanning. Scanning either
// skipped the offending data or stopped right before it.
type Warning struct {
	Offset int64
	Serial uint32
	Err    error
}

func (w Warning) String() string {
	return fmt.Sprintf("offset %d (serial %08x): %s", w.Offset, w.Serial, w.Err.Error())
}

func inconsistency(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrStreamInconsistency, fmt.Sprintf(format, args...))
}

func isPageError(err error) bool {
	return errors.Is(err, ErrInvalidSync) ||
		errors.Is(err, ErrMalformedHeader) ||
		errors.Is(err, ErrChecksumMismatch) ||
		errors.Is(err, ErrSegmentOverflow)
}
