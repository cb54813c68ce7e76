package hl7tofhir

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ehr/hl7bridge/internal/mapping/convert"
	"github.com/ehr/hl7bridge/internal/platform/fhir"
)

func sequentialIDs() convert.IDGenerator {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func testOptions() Options {
	return Options{TenantID: "acme", NewID: sequentialIDs(), Logger: zerolog.Nop()}
}

// segment builds a segment from field number to value; gaps stay empty.
func segment(name string, fields map[int]string) string {
	max := 0
	for n := range fields {
		if n > max {
			max = n
		}
	}
	parts := make([]string, max+1)
	parts[0] = name
	for n, v := range fields {
		parts[n] = v
	}
	return strings.Join(parts, "|")
}

func message(segments ...string) []byte {
	return []byte(strings.Join(segments, "\r"))
}

func mustBundle(t *testing.T, r *convert.Result) *fhir.Bundle {
	t.Helper()
	if r.Output == nil {
		t.Fatalf("expected output, got failure: %v", r.Errors)
	}
	b, err := fhir.ParseBundle(r.Output)
	if err != nil {
		t.Fatalf("output is not a bundle: %v", err)
	}
	return b
}

const adtDoe = "MSH|^~\\&|HIS|RIH|EKG|EkG|199904140038||ADT^A01|1001|P|2.5\r" +
	"PID|1||100||DOE^JOHN||19700101|M"

// ===== Header and patient =====

func TestConvert_ADTPatientScenario(t *testing.T) {
	r := Convert([]byte(adtDoe), testOptions())
	if !r.IsFullSuccess() {
		t.Fatalf("expected full success, got errors %v", r.Errors)
	}
	b := mustBundle(t, r)
	if b.ID != "1001" || r.TransactionID != "1001" {
		t.Errorf("expected bundle id 1001, got %q (tx %q)", b.ID, r.TransactionID)
	}
	if b.Type != fhir.BundleTypeTransaction {
		t.Errorf("expected transaction bundle, got %q", b.Type)
	}
	if b.Timestamp != "1999-04-14T00:38:00Z" {
		t.Errorf("expected timestamp from MSH-7, got %q", b.Timestamp)
	}

	patients := b.ResourcesOfType("Patient")
	if len(patients) != 1 {
		t.Fatalf("expected 1 Patient, got %d", len(patients))
	}
	p := patients[0]
	name := fhir.First(p, "name")
	if fhir.GetString(name, "family") != "DOE" {
		t.Errorf("expected family DOE, got %q", fhir.GetString(name, "family"))
	}
	if given := fhir.GetStrings(name, "given"); len(given) != 1 || given[0] != "JOHN" {
		t.Errorf("expected given JOHN, got %v", given)
	}
	if fhir.GetString(p, "gender") != "male" {
		t.Errorf("expected gender male, got %q", fhir.GetString(p, "gender"))
	}
	if fhir.GetString(p, "birthDate") != "1970-01-01" {
		t.Errorf("expected birthDate 1970-01-01, got %q", fhir.GetString(p, "birthDate"))
	}
}

func TestConvert_EntriesArePutRequests(t *testing.T) {
	b := mustBundle(t, Convert([]byte(adtDoe), testOptions()))
	for _, e := range b.Entry {
		if e.Request == nil || e.Request.Method != "PUT" || e.Request.URL != e.Resource.Ref() {
			t.Errorf("expected PUT %s, got %+v", e.Resource.Ref(), e.Request)
		}
		if e.FullURL != "urn:uuid:"+e.Resource.ID() {
			t.Errorf("unexpected fullUrl %q", e.FullURL)
		}
		tag := fhir.First(fhir.GetMap(e.Resource, "meta"), "tag")
		if fhir.GetString(tag, "code") != "acme" || fhir.GetString(tag, "system") != TenantTagSystem {
			t.Errorf("expected tenant tag on %s, got %v", e.Resource.Ref(), tag)
		}
	}
}

func TestConvert_ProvenanceTargetsEveryEntry(t *testing.T) {
	b := mustBundle(t, Convert([]byte(adtDoe), testOptions()))
	prov := b.ResourcesOfType("Provenance")
	if len(prov) != 1 {
		t.Fatalf("expected 1 Provenance, got %d", len(prov))
	}
	targets := fhir.GetArray(prov[0], "target")
	if len(targets) != len(b.Entry)-1 {
		t.Errorf("expected %d targets, got %d", len(b.Entry)-1, len(targets))
	}
	if fhir.GetString(prov[0], "recorded") != "1999-04-14T00:38:00Z" {
		t.Errorf("expected recorded from MSH-7, got %q", fhir.GetString(prov[0], "recorded"))
	}
	if b.Entry[len(b.Entry)-1].Resource.Type() != "Provenance" {
		t.Error("expected Provenance to be the last entry")
	}
}

func TestConvert_MissingControlIDGeneratesBundleID(t *testing.T) {
	raw := "MSH|^~\\&|HIS|RIH|EKG|EkG|199904140038||ADT^A04||P|2.5\rPID|1||100||DOE^JOHN"
	r := Convert([]byte(raw), testOptions())
	b := mustBundle(t, r)
	if b.ID != "id-1" {
		t.Errorf("expected generated id id-1, got %q", b.ID)
	}
	if len(r.Warnings) == 0 || r.Warnings[0].Field != 10 {
		t.Errorf("expected MSH-10 warning, got %v", r.Warnings)
	}
}

func TestConvert_UnknownGenderWarns(t *testing.T) {
	raw := "MSH|^~\\&|A|B|C|D|20240101||ADT^A01|9|P|2.5.1\rPID|1||100||DOE^JOHN||bad|X"
	r := Convert([]byte(raw), testOptions())
	b := mustBundle(t, r)
	p := b.ResourcesOfType("Patient")[0]
	if fhir.GetString(p, "gender") != "unknown" {
		t.Errorf("expected unknown gender, got %q", fhir.GetString(p, "gender"))
	}
	if _, ok := p["birthDate"]; ok {
		t.Error("expected invalid birth date to be dropped")
	}
	if len(r.Errors) != 0 || len(r.Warnings) != 2 {
		t.Errorf("expected 2 warnings and no errors, got %v / %v", r.Errors, r.Warnings)
	}
}

// ===== Failures =====

func TestConvert_EmptyInput(t *testing.T) {
	r := Convert([]byte("  \r\n"), testOptions())
	if !r.IsFailure() || r.Errors[0].Code != convert.CodeInvalidInput {
		t.Errorf("expected INVALID_INPUT failure, got %+v", r.Errors)
	}
}

func TestConvert_ParseFailure(t *testing.T) {
	r := Convert([]byte("PID|1||100"), testOptions())
	if !r.IsFailure() {
		t.Fatal("expected failure")
	}
	if len(r.Errors) != 1 || r.Errors[0].Code != convert.CodeParseFailure {
		t.Errorf("expected one PARSE_FAILURE, got %+v", r.Errors)
	}
}

func TestConvert_PartialFailureKeepsEarlierAllergies(t *testing.T) {
	raw := message(
		"MSH|^~\\&|HIS|RIH|EKG|EKG|20240101||ADT^A01|AL|P|2.5.1",
		"PID|1||100||DOE^JOHN||19700101|M",
		"AL1|1|DA|PCN^Penicillin|SV|Hives|20200101",
		"AL1|2|FA|PEANUT^Peanut|MO|Rash|20190505",
		"AL1|3|DA|ASA^Aspirin|MI|Nausea|notadate",
	)
	r := Convert(raw, testOptions())
	if !r.IsPartialSuccess() {
		t.Fatalf("expected partial success, got %s", r.Status())
	}
	b := mustBundle(t, r)
	if n := len(b.ResourcesOfType("AllergyIntolerance")); n != 2 {
		t.Errorf("expected 2 allergies, got %d", n)
	}
	if len(r.Errors) != 1 {
		t.Fatalf("expected exactly 1 error, got %v", r.Errors)
	}
	e := r.Errors[0]
	if e.Segment != "AL1" || e.SegmentIndex != 2 || e.Field != 6 || e.Code != convert.CodeFieldError {
		t.Errorf("expected FIELD_ERROR at AL1[2]-6, got %s", e)
	}
	if len(b.ResourcesOfType("Patient")) != 1 {
		t.Error("expected the patient to survive the allergy failure")
	}
}

type panicConverter struct{}

func (panicConverter) Name() string { return "Panicky" }
func (panicConverter) Convert(Accessor, *BundleBuilder, *convert.Context) ([]fhir.Resource, error) {
	var m map[string]int
	m["boom"]++
	return nil, nil
}

func TestConvert_ConverterPanicIsContained(t *testing.T) {
	opts := testOptions()
	opts.Converters = []Converter{panicConverter{}, PatientConverter{}}
	r := Convert([]byte(adtDoe), opts)
	if !r.IsPartialSuccess() {
		t.Fatalf("expected partial success, got %s", r.Status())
	}
	if r.Errors[0].ExceptionType == "" || !strings.Contains(r.Errors[0].Message, "Panicky") {
		t.Errorf("expected panic issue naming the converter, got %+v", r.Errors[0])
	}
	if len(mustBundle(t, r).ResourcesOfType("Patient")) != 1 {
		t.Error("expected later converters to run")
	}
}

type invalidConverter struct{}

func (invalidConverter) Name() string { return "Invalid" }
func (invalidConverter) Convert(_ Accessor, _ *BundleBuilder, cctx *convert.Context) ([]fhir.Resource, error) {
	return []fhir.Resource{{"resourceType": "Patient", "id": cctx.NewID(), "bogus": true}}, nil
}

func TestConvert_ValidationWarningAndStrictMode(t *testing.T) {
	opts := testOptions()
	opts.Converters = []Converter{invalidConverter{}}
	r := Convert([]byte(adtDoe), opts)
	if !r.IsFullSuccess() {
		t.Fatalf("expected validation problems to stay warnings, got %v", r.Errors)
	}
	found := false
	for _, w := range r.Warnings {
		if w.Code == convert.CodeValidationWarning && w.ResourceType == "Patient" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected VALIDATION_WARNING, got %v", r.Warnings)
	}

	opts = testOptions()
	opts.Converters = []Converter{invalidConverter{}}
	opts.Strict = true
	r = Convert([]byte(adtDoe), opts)
	if !r.IsFailure() || r.Errors[0].Code != convert.CodeValidationWarning {
		t.Errorf("expected strict mode to withhold output, got %s %v", r.Status(), r.Errors)
	}
}

func TestConvert_ZSegmentReportedAsUnmapped(t *testing.T) {
	raw := adtDoe + "\rZPI|1|custom\rZPI|2|more"
	r := Convert([]byte(raw), testOptions())
	var z []convert.Issue
	for _, w := range r.Warnings {
		if w.Code == convert.CodeUnmappedSegment {
			z = append(z, w)
		}
	}
	if len(z) != 2 || z[1].SegmentIndex != 1 || z[0].Severity != convert.SeverityInformation {
		t.Errorf("expected two informational ZPI issues, got %v", z)
	}
	if !r.IsFullSuccess() {
		t.Error("expected unmapped segments not to affect success")
	}
}

// ===== Linking =====

func TestConvert_ReportLinksToOrderByFiller(t *testing.T) {
	raw := message(
		"MSH|^~\\&|LAB|HOSP|EHR|HOSP|20240301120000||ORU^R01|MSG1|P|2.5.1",
		"PID|1||555^^^HOSP^MR||DOE^JANE||19800202|F",
		"ORC|RE|P1|F1",
		segment("OBR", map[int]string{1: "1", 2: "P1", 3: "F1", 4: "CBC^Complete blood count^L", 7: "20240301110000", 25: "F"}),
		"OBX|1|NM|718-7^Hemoglobin^LN||13.5|g/dL^^UCUM|12-16|N|||F",
	)
	r := Convert(raw, testOptions())
	if !r.IsFullSuccess() {
		t.Fatalf("expected full success, got %v", r.Errors)
	}
	b := mustBundle(t, r)

	srs := b.ResourcesOfType("ServiceRequest")
	reports := b.ResourcesOfType("DiagnosticReport")
	obs := b.ResourcesOfType("Observation")
	if len(srs) != 1 || len(reports) != 1 || len(obs) != 1 {
		t.Fatalf("expected 1 of each, got sr=%d dr=%d obs=%d", len(srs), len(reports), len(obs))
	}
	basedOn := fhir.GetString(fhir.First(reports[0], "basedOn"), "reference")
	if basedOn != srs[0].Ref() {
		t.Errorf("expected basedOn %s, got %q", srs[0].Ref(), basedOn)
	}
	if b.Resolve(basedOn) == nil {
		t.Error("expected basedOn to resolve inside the bundle")
	}
	result := fhir.GetString(fhir.First(reports[0], "result"), "reference")
	if result != obs[0].Ref() {
		t.Errorf("expected result %s, got %q", obs[0].Ref(), result)
	}
	if fhir.GetString(reports[0], "status") != "final" || fhir.GetString(srs[0], "status") != "completed" {
		t.Errorf("unexpected statuses dr=%s sr=%s", fhir.GetString(reports[0], "status"), fhir.GetString(srs[0], "status"))
	}
	q := fhir.GetMap(obs[0], "valueQuantity")
	if v, _ := fhir.GetNumber(q, "value"); v != 13.5 {
		t.Errorf("expected 13.5, got %v", q)
	}
}

func TestConvert_AdministrationLinksToMedicationOrder(t *testing.T) {
	raw := message(
		"MSH|^~\\&|PHARM|HOSP|EHR|HOSP|20240301120000||RDE^O11|MSG2|P|2.5.1",
		"PID|1||777||ROE^RICHARD||19600101|M",
		segment("ORC", map[int]string{1: "NW", 2: "P100", 3: "F100", 9: "20240301", 12: "1234^WELBY^MARCUS"}),
		segment("RXE", map[int]string{1: "1^BID", 2: "00069015001^Amoxicillin 500mg^NDC", 3: "500", 5: "mg^^UCUM", 10: "20", 11: "CAP", 12: "2"}),
		"RXR|PO^Oral^HL70162",
		segment("RXA", map[int]string{1: "0", 2: "1", 3: "20240302080000", 5: "00069015001^Amoxicillin^NDC", 6: "500", 7: "mg^^UCUM", 20: "CP"}),
	)
	r := Convert(raw, testOptions())
	if !r.IsFullSuccess() {
		t.Fatalf("expected full success, got %v", r.Errors)
	}
	b := mustBundle(t, r)
	mrs := b.ResourcesOfType("MedicationRequest")
	mas := b.ResourcesOfType("MedicationAdministration")
	if len(mrs) != 1 || len(mas) != 1 {
		t.Fatalf("expected 1 request and 1 administration, got %d/%d", len(mrs), len(mas))
	}
	if ref := fhir.GetString(fhir.GetMap(mas[0], "request"), "reference"); ref != mrs[0].Ref() {
		t.Errorf("expected request %s, got %q", mrs[0].Ref(), ref)
	}
	if len(b.ResourcesOfType("Immunization")) != 0 {
		t.Error("expected NDC administration not to become an Immunization")
	}

	practitioners := b.ResourcesOfType("Practitioner")
	if len(practitioners) != 1 {
		t.Fatalf("expected 1 Practitioner, got %d", len(practitioners))
	}
	requester := fhir.GetString(fhir.GetMap(mrs[0], "requester"), "reference")
	if requester != practitioners[0].Ref() {
		t.Errorf("expected requester %s, got %q", practitioners[0].Ref(), requester)
	}
}

func TestConvert_AmbiguousPlacementPrefersRoot(t *testing.T) {
	raw := message(
		"MSH|^~\\&|LAB|HOSP|EHR|HOSP|20240301120000||ORU^R01|MSG3|P|2.5.1",
		"PID|1||555||DOE^JANE",
		"OBX|1|ST|NOTE^Note||root value",
		"ORC|RE|P2|F2",
		"OBR|1|P2|F2|GLU^Glucose",
		"OBX|1|NM|2345-7^Glucose^LN||95|mg/dL",
	)
	r := Convert(raw, testOptions())
	b := mustBundle(t, r)
	obs := b.ResourcesOfType("Observation")
	if len(obs) != 1 || fhir.GetString(obs[0], "valueString") != "root value" {
		t.Errorf("expected the root observation only, got %v", obs)
	}
	count := 0
	for _, w := range r.Warnings {
		if w.Code == convert.CodeAmbiguousPlacement {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected one ambiguity warning, got %d", count)
	}
}

// ===== Determinism =====

func TestConvert_Idempotent(t *testing.T) {
	raw := message(
		"MSH|^~\\&|LAB|HOSP|EHR|HOSP|20240301120000||ORU^R01|MSG1|P|2.5.1",
		"PID|1||555^^^HOSP^MR||DOE^JANE||19800202|F|||1 Main St^^Springfield^IL^62701",
		"PV1|1|I|W1^101^A|||||1234^WELBY^MARCUS",
		"ORC|RE|P1|F1",
		"OBR|1|P1|F1|CBC^Complete blood count^L",
		"OBX|1|NM|718-7^Hemoglobin^LN||13.5|g/dL|12-16|N|||F",
		"OBX|2|ST|NOTE^Comment||looks fine||||||F",
	)
	first := Convert(raw, testOptions())
	second := Convert(raw, testOptions())
	if first.Output == nil || !bytes.Equal(first.Output, second.Output) {
		t.Error("expected byte-identical output for identical input and ids")
	}
}
