package convert

import (
	"errors"
	"fmt"
	"strings"
)

// Severity of a conversion issue.
type Severity string

const (
	SeverityError       Severity = "ERROR"
	SeverityWarning     Severity = "WARNING"
	SeverityInformation Severity = "INFORMATION"
)

// Issue codes.
const (
	CodeParseFailure         = "PARSE_FAILURE"
	CodeSegmentError         = "SEGMENT_ERROR"
	CodeFieldError           = "FIELD_ERROR"
	CodeResourceConversion   = "RESOURCE_CONVERSION_ERROR"
	CodeNoConverter          = "NO_CONVERTER"
	CodeWarning              = "WARNING"
	CodeValidationWarning    = "VALIDATION_WARNING"
	CodeInvalidInput         = "INVALID_INPUT"
	CodeSerializationFailure = "SERIALIZATION_FAILURE"
	CodeHeaderFailure        = "HEADER_FAILURE"
	CodeAmbiguousPlacement   = "AMBIGUOUS_SEGMENT_PLACEMENT"
	CodeUnmappedSegment      = "UNMAPPED_SEGMENT"
	CodeCancelled            = "CANCELLED"
)

// Issue is one error, warning or informational note raised during a
// conversion. Segment, SegmentIndex and Field locate it on the wire when
// known; ResourceType and ResourceID locate it in the bundle.
type Issue struct {
	Segment       string   `json:"segment,omitempty"`
	SegmentIndex  int      `json:"segmentIndex"`
	Field         int      `json:"field,omitempty"`
	Code          string   `json:"code"`
	Message       string   `json:"message"`
	Severity      Severity `json:"severity"`
	ExceptionType string   `json:"exceptionType,omitempty"`
	ResourceType  string   `json:"resourceType,omitempty"`
	ResourceID    string   `json:"resourceId,omitempty"`
}

// Location renders the wire position, e.g. "AL1[2]-6", or the resource
// reference.
func (i Issue) Location() string {
	switch {
	case i.Segment != "" && i.Field > 0:
		return fmt.Sprintf("%s[%d]-%d", i.Segment, i.SegmentIndex, i.Field)
	case i.Segment != "":
		return fmt.Sprintf("%s[%d]", i.Segment, i.SegmentIndex)
	case i.ResourceType != "":
		return strings.TrimSuffix(i.ResourceType+"/"+i.ResourceID, "/")
	}
	return ""
}

func (i Issue) String() string {
	if loc := i.Location(); loc != "" {
		return fmt.Sprintf("%s %s at %s: %s", i.Severity, i.Code, loc, i.Message)
	}
	return fmt.Sprintf("%s %s: %s", i.Severity, i.Code, i.Message)
}

// LocatedError is returned by a converter for one bad segment occurrence.
type LocatedError struct {
	Segment      string
	SegmentIndex int
	Field        int
	Code         string
	Err          error
}

func (e *LocatedError) Error() string {
	if e.Field > 0 {
		return fmt.Sprintf("%s[%d]-%d: %v", e.Segment, e.SegmentIndex, e.Field, e.Err)
	}
	return fmt.Sprintf("%s[%d]: %v", e.Segment, e.SegmentIndex, e.Err)
}

func (e *LocatedError) Unwrap() error { return e.Err }

// SegmentError reports a missing or unusable segment occurrence.
func SegmentError(segment string, index int, format string, args ...interface{}) *LocatedError {
	return &LocatedError{Segment: segment, SegmentIndex: index, Code: CodeSegmentError, Err: fmt.Errorf(format, args...)}
}

// FieldError reports a bad value in one field.
func FieldError(segment string, index, field int, err error) *LocatedError {
	return &LocatedError{Segment: segment, SegmentIndex: index, Field: field, Code: CodeFieldError, Err: err}
}

// PanicError carries a value recovered from a converter panic.
type PanicError struct {
	Value interface{}
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }

// ExceptionType names the Go type behind err, looking through a recovered
// panic to the panic value.
func ExceptionType(err error) string {
	var pe *PanicError
	if errors.As(err, &pe) {
		return fmt.Sprintf("%T", pe.Value)
	}
	return fmt.Sprintf("%T", err)
}
