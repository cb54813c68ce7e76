package engine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ehr/hl7bridge/internal/mapping/convert"
)

const adtSmith = "MSH|^~\\&|HIS|RIH|EKG|EKG|20240101120000||ADT^A01|MSG-1|P|2.5.1\r" +
	"EVN|A01|20240101120000\r" +
	"PID|1||MRN-1^^^RIH^MR||SMITH^JOHN||19700101|M\r" +
	"PV1|1|I|W1^101^A"

const bundleSmith = `{"resourceType":"Bundle","type":"message","entry":[` +
	`{"resource":{"resourceType":"Patient","id":"p1","name":[{"family":"SMITH","given":["JOHN"]}]}},` +
	`{"resource":{"resourceType":"Encounter","id":"e1","status":"in-progress","class":{"code":"I"}}}]}`

func newEngine() *Engine {
	return New(Options{Logger: zerolog.Nop()})
}

// ===== String API =====

func TestConvertHL7ToFHIR(t *testing.T) {
	out, err := newEngine().ConvertHL7ToFHIR("acme", adtSmith)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if !strings.Contains(out, `"resourceType":"Patient"`) || !strings.Contains(out, "SMITH") {
		t.Errorf("expected a patient bundle, got %s", out)
	}
}

func TestConvertHL7ToFHIR_Failure(t *testing.T) {
	_, err := newEngine().ConvertHL7ToFHIR("acme", "")
	var ce *ConversionError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConversionError, got %v", err)
	}
	if !errors.Is(err, ErrEmptyInput) {
		t.Errorf("expected ErrEmptyInput, got %v", err)
	}
	if ce.Result.Errors[0].Code != convert.CodeInvalidInput {
		t.Errorf("expected INVALID_INPUT, got %s", ce.Result.Errors[0].Code)
	}
	if !strings.Contains(err.Error(), convert.CodeInvalidInput) {
		t.Errorf("expected code in message, got %q", err.Error())
	}
}

func TestConvertFHIRToHL7(t *testing.T) {
	out, err := newEngine().ConvertFHIRToHL7("acme", bundleSmith)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if !strings.HasPrefix(out, "MSH|") || !strings.Contains(out, "SMITH^JOHN") || !strings.Contains(out, "PV1|1|I") {
		t.Errorf("expected MSH, PID and inpatient PV1, got %q", out)
	}
}

func TestConvertFHIRToHL7_Failure(t *testing.T) {
	e := newEngine()
	_, err := e.ConvertFHIRToHL7("acme", `{"resourceType":"Patient"}`)
	if !errors.Is(err, ErrNotBundle) {
		t.Errorf("expected ErrNotBundle, got %v", err)
	}
	_, err = e.ConvertFHIRToHL7("acme", `{"resourceType":"Bundle","type":"searchset"}`)
	if !errors.Is(err, ErrUnsupportedBundleType) {
		t.Errorf("expected ErrUnsupportedBundleType, got %v", err)
	}
	_, err = e.ConvertFHIRToHL7("acme", "")
	if !errors.Is(err, ErrEmptyInput) {
		t.Errorf("expected ErrEmptyInput, got %v", err)
	}
}

func TestRoundTrip(t *testing.T) {
	e := newEngine()
	bundle, err := e.ConvertHL7ToFHIR("acme", adtSmith)
	if err != nil {
		t.Fatalf("inbound failed: %v", err)
	}
	hl7, err := e.ConvertFHIRToHL7("acme", bundle)
	if err != nil {
		t.Fatalf("outbound failed: %v", err)
	}
	if !strings.Contains(hl7, "SMITH^JOHN") || !strings.Contains(hl7, "MRN-1") {
		t.Errorf("expected patient name and MRN to survive, got %q", hl7)
	}
}

// ===== Result API =====

func TestResultAPI_StrictOverride(t *testing.T) {
	bad := `{"resourceType":"Bundle","type":"message","entry":[{"resource":{"resourceType":"Patient","id":"p1","shoeSize":9}}]}`
	e := newEngine()
	if r := e.ConvertFHIRToHL7Result("acme", bad, CallOptions{}); r.IsFailure() {
		t.Errorf("expected lenient call to produce output, got %v", r.Errors)
	}
	if r := e.ConvertFHIRToHL7Result("acme", bad, CallOptions{Strict: true}); !r.IsFailure() {
		t.Errorf("expected strict call to withhold output")
	}
}

func TestConvert_UnknownDirection(t *testing.T) {
	r := newEngine().Convert("acme", convert.Direction("sideways"), "x", CallOptions{})
	if !r.IsFailure() || r.Errors[0].Code != convert.CodeInvalidInput {
		t.Errorf("expected INVALID_INPUT, got %v", r.Errors)
	}
}

// ===== Batch =====

func TestBatch_ResultsByIndex(t *testing.T) {
	items := []BatchItem{
		{TenantID: "acme", Direction: convert.HL7ToFHIR, Payload: adtSmith},
		{TenantID: "acme", Direction: convert.FHIRToHL7, Payload: bundleSmith},
		{TenantID: "acme", Direction: convert.HL7ToFHIR, Payload: ""},
		{TenantID: "acme", Direction: convert.FHIRToHL7, Payload: bundleSmith},
		{TenantID: "acme", Direction: convert.HL7ToFHIR, Payload: adtSmith},
	}
	results := newEngine().Batch(context.Background(), items, 2)
	if len(results) != len(items) {
		t.Fatalf("expected %d results, got %d", len(items), len(results))
	}
	for i, r := range results {
		if r == nil {
			t.Fatalf("expected result %d", i)
		}
		if r.Direction != items[i].Direction {
			t.Errorf("result %d: expected direction %s, got %s", i, items[i].Direction, r.Direction)
		}
	}
	if !results[2].IsFailure() {
		t.Errorf("expected the empty item to fail")
	}
	if results[0].TransactionID != "MSG-1" || results[4].TransactionID != "MSG-1" {
		t.Errorf("expected inbound results in place, got %q %q", results[0].TransactionID, results[4].TransactionID)
	}
	if results[1].IsFailure() || results[3].IsFailure() {
		t.Errorf("expected outbound items to convert")
	}
}

func TestBatch_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	items := []BatchItem{
		{TenantID: "acme", Direction: convert.HL7ToFHIR, Payload: adtSmith},
		{TenantID: "acme", Direction: convert.FHIRToHL7, Payload: bundleSmith},
	}
	for i, r := range newEngine().Batch(ctx, items, 1) {
		if !r.IsFailure() || r.Errors[0].Code != convert.CodeCancelled {
			t.Errorf("item %d: expected CANCELLED, got %v", i, r.Errors)
		}
	}
}

func TestBatch_Empty(t *testing.T) {
	if got := newEngine().Batch(context.Background(), nil, 0); len(got) != 0 {
		t.Errorf("expected no results, got %d", len(got))
	}
}
