package convert

import (
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ehr/hl7bridge/internal/platform/fhir"
	"github.com/ehr/hl7bridge/internal/platform/hl7v2"
)

func sequentialIDs() IDGenerator {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func TestNewContext_FromMessage(t *testing.T) {
	msg, err := hl7v2.Parse([]byte("MSH|^~\\&|A|B|C|D|20240101||ORU^R01|CTRL9|P|2.5.1"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	c := NewContext("acme", msg, sequentialIDs(), zerolog.Nop())
	if c.TenantID != "acme" || c.TransactionID != "CTRL9" {
		t.Errorf("unexpected context ids: %q / %q", c.TenantID, c.TransactionID)
	}
	if c.MessageCode != "ORU" || c.TriggerEvent != "R01" || c.Structure != "ORU_R01" {
		t.Errorf("unexpected event: %s %s %s", c.MessageCode, c.TriggerEvent, c.Structure)
	}
}

func TestLink_ResolveByPlacerOrFiller(t *testing.T) {
	c := NewContext("t", nil, sequentialIDs(), zerolog.Nop())
	sr := ResourceRef{Type: "ServiceRequest", ID: "sr-1"}
	c.Link(sr, Placer("P1"), Filler("F1"), Placer(""))

	if got, ok := c.Resolve("ServiceRequest", Filler("F1")); !ok || got != sr {
		t.Errorf("expected filler lookup to resolve, got %v %v", got, ok)
	}
	if got, ok := c.Resolve("ServiceRequest", Placer("missing"), Placer("P1")); !ok || got != sr {
		t.Errorf("expected second key to resolve, got %v %v", got, ok)
	}
	if _, ok := c.Resolve("MedicationRequest", Placer("P1")); ok {
		t.Error("expected type filter to reject")
	}
	if _, ok := c.Resolve("ServiceRequest", LinkKey{}); ok {
		t.Error("expected zero key to miss")
	}
	if Placer("P1").String() != "PLACER:P1" {
		t.Errorf("unexpected key rendering %q", Placer("P1").String())
	}
}

func TestPractitionerID_Stable(t *testing.T) {
	c := NewContext("t", nil, sequentialIDs(), zerolog.Nop())
	a, existed := c.PractitionerID("NPI|1")
	if existed {
		t.Error("expected first allocation")
	}
	b, existed := c.PractitionerID("NPI|1")
	if !existed || a != b {
		t.Errorf("expected same id, got %q and %q", a, b)
	}
	if len(c.PractitionerKeys()) != 1 {
		t.Errorf("expected 1 key")
	}
}

func TestGroupResults(t *testing.T) {
	c := NewContext("t", nil, sequentialIDs(), zerolog.Nop())
	c.AddGroupResult("ORDER_OBSERVATION", 0, ResourceRef{Type: "Observation", ID: "o1"})
	c.AddGroupResult("ORDER_OBSERVATION", 1, ResourceRef{Type: "Observation", ID: "o2"})
	c.AddGroupResult("ORDER_OBSERVATION", 1, ResourceRef{Type: "Specimen", ID: "s1"})

	got := c.GroupResults("ORDER_OBSERVATION", 1, "Observation")
	if len(got) != 1 || got[0].ID != "o2" {
		t.Errorf("unexpected group results %v", got)
	}
	if len(c.GroupResults("ORDER_OBSERVATION", 5, "")) != 0 {
		t.Error("expected empty results for unknown repetition")
	}
}

func TestRecordError_KeepsLocation(t *testing.T) {
	c := NewContext("t", nil, sequentialIDs(), zerolog.Nop())
	c.RecordError(FieldError("AL1", 2, 6, errors.New("bad date")), CodeSegmentError)
	c.RecordError(errors.New("boom"), CodeResourceConversion)

	issues := c.Issues()
	if len(issues) != 2 {
		t.Fatalf("expected 2 issues, got %d", len(issues))
	}
	if issues[0].Code != CodeFieldError || issues[0].Location() != "AL1[2]-6" {
		t.Errorf("unexpected located issue %+v", issues[0])
	}
	if issues[1].Code != CodeResourceConversion || issues[1].Severity != SeverityError {
		t.Errorf("unexpected fallback issue %+v", issues[1])
	}
}

// ===== Result =====

func TestResult_StatusPredicates(t *testing.T) {
	r := NewResult(HL7ToFHIR)
	if !r.IsFailure() || r.Status() != "failed" {
		t.Error("expected empty result to be a failure")
	}

	r.Output = []byte("{}")
	if !r.IsFullSuccess() || r.Status() != "full" {
		t.Error("expected full success")
	}

	r.AddIssues([]Issue{
		{Code: CodeFieldError, Severity: SeverityError, Message: "x"},
		{Code: CodeWarning, Severity: SeverityWarning, Message: "y"},
		{Code: CodeUnmappedSegment, Severity: SeverityInformation, Message: "z"},
	})
	if !r.IsPartialSuccess() || r.Status() != "partial" {
		t.Error("expected partial success")
	}
	if r.FailCount != 1 || len(r.Warnings) != 2 {
		t.Errorf("unexpected split: fail=%d warnings=%d", r.FailCount, len(r.Warnings))
	}
}

func TestResult_OperationOutcome(t *testing.T) {
	r := Fail(FHIRToHL7, "tx", CodeInvalidInput, "not a bundle", "")
	oo := r.OperationOutcome()
	if len(oo.Issue) != 1 {
		t.Fatalf("expected 1 issue, got %d", len(oo.Issue))
	}
	issue := oo.Issue[0]
	if issue.Severity != fhir.IssueSeverityError || issue.Code != fhir.IssueTypeStructure {
		t.Errorf("unexpected issue %+v", issue)
	}
	if issue.Details == nil || issue.Details.Coding[0].Code != CodeInvalidInput {
		t.Errorf("expected detail code %s", CodeInvalidInput)
	}

	ok := NewResult(HL7ToFHIR)
	ok.Output = []byte("{}")
	if oo := ok.OperationOutcome(); len(oo.Issue) != 1 || oo.Issue[0].Severity != fhir.IssueSeverityInformation {
		t.Errorf("expected single informational issue for a clean result")
	}
}
