package canonical

import (
	"errors"
	"fmt"
)

// FailureReason classifies a document-level failure.
type FailureReason uint8

const (
	ReasonMalformed FailureReason = iota + 1
	ReasonNoPatient
	ReasonEmpty
	ReasonUnsupportedFormat
)

func (r FailureReason) String() string {
	switch r {
	case ReasonMalformed:
		return "malformed"
	case ReasonNoPatient:
		return "no patient"
	case ReasonEmpty:
		return "empty document"
	case ReasonUnsupportedFormat:
		return "unsupported format"
	}
	return "unknown"
}

// FatalParseError is the only error a document-level parse returns. Faults
// inside individual sections or entries never surface as errors; they lower
// the affected record's completeness instead.
type FatalParseError struct {
	Format SourceFormat
	Reason FailureReason
	Err    error
}

func (e *FatalParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s document: %s: %v", e.Format, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s document: %s", e.Format, e.Reason)
}

func (e *FatalParseError) Unwrap() error { return e.Err }

// NewFatal builds a FatalParseError.
func NewFatal(format SourceFormat, reason FailureReason, err error) *FatalParseError {
	return &FatalParseError{Format: format, Reason: reason, Err: err}
}

// IsFatal reports whether err is, or wraps, a FatalParseError.
func IsFatal(err error) bool {
	var fe *FatalParseError
	return errors.As(err, &fe)
}
