package convert

import (
	"github.com/ehr/hl7bridge/internal/platform/fhir"
)

// Direction of a conversion.
type Direction string

const (
	HL7ToFHIR Direction = "hl7-to-fhir"
	FHIRToHL7 Direction = "fhir-to-hl7"
)

// Result is the outcome of one conversion. Output is nil when nothing usable
// was produced.
type Result struct {
	TransactionID string         `json:"transactionId"`
	Direction     Direction      `json:"direction"`
	MessageType   string         `json:"messageType,omitempty"`
	Output        []byte         `json:"-"`
	Errors        []Issue        `json:"errors"`
	Warnings      []Issue        `json:"warnings"`
	SuccessCount  int            `json:"successCount"`
	FailCount     int            `json:"failCount"`
	Counts        map[string]int `json:"counts,omitempty"`
}

// NewResult starts an empty result.
func NewResult(direction Direction) *Result {
	return &Result{Direction: direction, Errors: []Issue{}, Warnings: []Issue{}, Counts: map[string]int{}}
}

// Fail builds a top-level failure result carrying one error.
func Fail(direction Direction, transactionID, code, msg string, exceptionType string) *Result {
	r := NewResult(direction)
	r.TransactionID = transactionID
	r.Errors = append(r.Errors, Issue{Code: code, Message: msg, Severity: SeverityError, ExceptionType: exceptionType})
	r.FailCount = 1
	return r
}

// AddIssues splits issues into errors and warnings. Informational issues
// travel with the warnings.
func (r *Result) AddIssues(issues []Issue) {
	for _, i := range issues {
		if i.Severity == SeverityError {
			r.Errors = append(r.Errors, i)
			r.FailCount++
		} else {
			r.Warnings = append(r.Warnings, i)
		}
	}
}

// IsFullSuccess reports output present and no errors.
func (r *Result) IsFullSuccess() bool { return r.Output != nil && len(r.Errors) == 0 }

// IsPartialSuccess reports output present despite errors.
func (r *Result) IsPartialSuccess() bool { return r.Output != nil && len(r.Errors) > 0 }

// IsFailure reports that no output was produced.
func (r *Result) IsFailure() bool { return r.Output == nil }

// Status is "full", "partial" or "failed".
func (r *Result) Status() string {
	switch {
	case r.IsFullSuccess():
		return "full"
	case r.IsPartialSuccess():
		return "partial"
	}
	return "failed"
}

// OperationOutcome renders every error and warning as an OperationOutcome.
func (r *Result) OperationOutcome() *fhir.OperationOutcome {
	b := fhir.NewOutcomeBuilder()
	for _, list := range [][]Issue{r.Errors, r.Warnings} {
		for _, i := range list {
			var loc []string
			if l := i.Location(); l != "" {
				loc = []string{l}
			}
			b.AddCodedIssue(outcomeSeverity(i.Severity), outcomeType(i.Code), IssueCodeSystem, i.Code, i.Message, loc)
		}
	}
	return b.Build()
}

// IssueCodeSystem qualifies issue codes in OperationOutcome details.
const IssueCodeSystem = "urn:hl7bridge:issue-code"

func outcomeSeverity(s Severity) string {
	switch s {
	case SeverityError:
		return fhir.IssueSeverityError
	case SeverityWarning:
		return fhir.IssueSeverityWarning
	}
	return fhir.IssueSeverityInformation
}

func outcomeType(code string) string {
	switch code {
	case CodeParseFailure, CodeInvalidInput:
		return fhir.IssueTypeStructure
	case CodeSegmentError:
		return fhir.IssueTypeRequired
	case CodeFieldError:
		return fhir.IssueTypeValue
	case CodeNoConverter:
		return fhir.IssueTypeNotSupported
	case CodeValidationWarning:
		return fhir.IssueTypeInvalid
	case CodeSerializationFailure, CodeHeaderFailure, CodeCancelled:
		return fhir.IssueTypeException
	case CodeUnmappedSegment:
		return fhir.IssueTypeInformational
	}
	return fhir.IssueTypeProcessing
}
