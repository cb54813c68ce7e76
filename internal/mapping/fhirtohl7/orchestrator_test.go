package fhirtohl7

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/hl7bridge/internal/mapping/convert"
	"github.com/ehr/hl7bridge/internal/platform/fhir"
	"github.com/ehr/hl7bridge/internal/platform/hl7v2"
)

func sequentialIDs() convert.IDGenerator {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func testOptions() Options {
	return Options{
		TenantID: "acme",
		NewID:    sequentialIDs(),
		Logger:   zerolog.Nop(),
		Now:      func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) },
	}
}

// bundle wraps entry resources (JSON objects) in a message bundle.
func bundle(resources ...string) []byte {
	entries := make([]string, len(resources))
	for i, r := range resources {
		entries[i] = `{"resource":` + r + `}`
	}
	return []byte(`{"resourceType":"Bundle","type":"message","entry":[` + strings.Join(entries, ",") + `]}`)
}

func mustMessage(t *testing.T, r *convert.Result) *hl7v2.Message {
	t.Helper()
	if r.Output == nil {
		t.Fatalf("expected output, got failure: %v", r.Errors)
	}
	msg, err := hl7v2.Parse(r.Output)
	if err != nil {
		t.Fatalf("output does not parse: %v\n%s", err, r.Output)
	}
	return msg
}

func segmentNames(msg *hl7v2.Message) string {
	names := make([]string, len(msg.Segments))
	for i, s := range msg.Segments {
		names[i] = s.Name
	}
	return strings.Join(names, " ")
}

func hasIssue(issues []convert.Issue, code string) bool {
	for _, i := range issues {
		if i.Code == code {
			return true
		}
	}
	return false
}

const (
	patientSmith   = `{"resourceType":"Patient","id":"p1","name":[{"family":"SMITH","given":["JOHN"]}],"gender":"male","birthDate":"1970-01-01"}`
	inpatientVisit = `{"resourceType":"Encounter","id":"e1","status":"in-progress","class":{"system":"http://terminology.hl7.org/CodeSystem/v3-ActCode","code":"I"},"subject":{"reference":"Patient/p1"}}`
)

// ===== Scenario =====

func TestConvert_PatientEncounterScenario(t *testing.T) {
	r := Convert(bundle(patientSmith, inpatientVisit), testOptions())
	if !r.IsFullSuccess() {
		t.Fatalf("expected full success, got errors %v", r.Errors)
	}
	out := string(r.Output)
	if !strings.HasPrefix(out, "MSH|^~\\&|") {
		t.Errorf("expected MSH first, got %q", out)
	}
	if !strings.Contains(out, "SMITH^JOHN") {
		t.Errorf("expected PID with SMITH^JOHN, got %q", out)
	}
	if !strings.Contains(out, "PV1|1|I") {
		t.Errorf("expected inpatient PV1, got %q", out)
	}

	msg := mustMessage(t, r)
	if got := segmentNames(msg); got != "MSH EVN PID PV1" {
		t.Errorf("expected MSH EVN PID PV1, got %q", got)
	}
	pid := msg.GetSegment("PID")
	if pid.GetField(7) != "19700101" || pid.GetField(8) != "M" {
		t.Errorf("expected birth date and gender, got %q %q", pid.GetField(7), pid.GetField(8))
	}
	if pid.GetField(3) != "p1" {
		t.Errorf("expected resource id as PID-3 fallback, got %q", pid.GetField(3))
	}
	if r.SuccessCount != 2 {
		t.Errorf("expected 2 converted resources, got %d", r.SuccessCount)
	}
	if r.Counts["PID"] != 1 || r.Counts["PV1"] != 1 {
		t.Errorf("expected segment counts, got %v", r.Counts)
	}
}

// ===== Header =====

func TestConvert_HeaderDefaults(t *testing.T) {
	r := Convert(bundle(patientSmith), testOptions())
	msg := mustMessage(t, r)
	msh := msg.Segments[0]
	if msh.GetField(3) != DefaultSendingApplication || msh.GetField(4) != DefaultSendingFacility {
		t.Errorf("expected default sender, got %q %q", msh.GetField(3), msh.GetField(4))
	}
	if msh.GetField(7) != "20240501120000+0000" {
		t.Errorf("expected current time in MSH-7, got %q", msh.GetField(7))
	}
	if msh.GetComponent(9, 1) != "ADT" || msh.GetComponent(9, 3) != "ADT_A01" {
		t.Errorf("expected ADT message type, got %q", msh.Value(9, 0, 1, 1))
	}
	if msh.GetField(10) != "id-1" || r.TransactionID != "id-1" {
		t.Errorf("expected generated control id, got %q (tx %q)", msh.GetField(10), r.TransactionID)
	}
	if msh.GetField(11) != "P" || msh.GetField(12) != "2.5.1" {
		t.Errorf("expected P 2.5.1, got %q %q", msh.GetField(11), msh.GetField(12))
	}
}

func TestConvert_HeaderFromMessageHeader(t *testing.T) {
	header := `{"resourceType":"MessageHeader","id":"mh-77","eventCoding":{"code":"ADT^A08"},` +
		`"source":{"name":"EPIC","endpoint":"urn:epic"},` +
		`"sender":{"reference":"Organization/o1"},` +
		`"destination":[{"name":"LAB","endpoint":"urn:lab","receiver":{"display":"City Lab"}}]}`
	org := `{"resourceType":"Organization","id":"o1","name":"General Hospital"}`
	data := []byte(`{"resourceType":"Bundle","id":"b-1","type":"message","timestamp":"2023-02-03T04:05:06Z","entry":[` +
		`{"resource":` + header + `},{"resource":` + org + `},{"resource":` + patientSmith + `}]}`)

	r := Convert(data, testOptions())
	msg := mustMessage(t, r)
	msh := msg.Segments[0]
	if msh.GetField(3) != "EPIC" || msh.GetField(4) != "General Hospital" {
		t.Errorf("expected sender from header, got %q %q", msh.GetField(3), msh.GetField(4))
	}
	if msh.GetField(5) != "LAB" || msh.GetField(6) != "City Lab" {
		t.Errorf("expected receiver from destination, got %q %q", msh.GetField(5), msh.GetField(6))
	}
	if msh.GetField(7) != "20230203040506+0000" {
		t.Errorf("expected bundle timestamp, got %q", msh.GetField(7))
	}
	if msh.GetComponent(9, 2) != "A08" {
		t.Errorf("expected trigger A08, got %q", msh.GetComponent(9, 2))
	}
	if msh.GetField(10) != "mh-77" {
		t.Errorf("expected control id from MessageHeader, got %q", msh.GetField(10))
	}
	if evn := msg.GetSegment("EVN"); evn == nil || evn.GetField(1) != "A08" {
		t.Errorf("expected EVN with trigger, got %v", evn)
	}
	if hasIssue(r.Warnings, convert.CodeNoConverter) {
		t.Errorf("expected no NO_CONVERTER for header and organization, got %v", r.Warnings)
	}
}

func TestConvert_InvalidTimestampWarns(t *testing.T) {
	data := []byte(`{"resourceType":"Bundle","type":"message","timestamp":"yesterday","entry":[{"resource":` + patientSmith + `}]}`)
	r := Convert(data, testOptions())
	msg := mustMessage(t, r)
	if msg.Segments[0].GetField(7) != "20240501120000+0000" {
		t.Errorf("expected fallback to current time, got %q", msg.Segments[0].GetField(7))
	}
	if !hasIssue(r.Warnings, convert.CodeWarning) {
		t.Errorf("expected a warning, got %v", r.Warnings)
	}
}

// ===== Precondition =====

func TestConvert_Precondition(t *testing.T) {
	cases := map[string]string{
		"empty":      "   ",
		"not bundle": patientSmith,
		"collection": `{"resourceType":"Bundle","type":"collection","entry":[]}`,
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			r := Convert([]byte(input), testOptions())
			if !r.IsFailure() {
				t.Fatalf("expected failure, got output %q", r.Output)
			}
			if len(r.Errors) != 1 || r.Errors[0].Code != convert.CodeInvalidInput {
				t.Errorf("expected one INVALID_INPUT error, got %v", r.Errors)
			}
		})
	}
}

func TestConvert_MalformedJSON(t *testing.T) {
	r := Convert([]byte(`{"resourceType":`), testOptions())
	if !r.IsFailure() || r.Errors[0].Code != convert.CodeParseFailure {
		t.Errorf("expected PARSE_FAILURE, got %v", r.Errors)
	}
}

func TestConvert_TransactionBundleAccepted(t *testing.T) {
	data := []byte(`{"resourceType":"Bundle","type":"transaction","entry":[{"resource":` + patientSmith + `}]}`)
	r := Convert(data, testOptions())
	if r.IsFailure() {
		t.Errorf("expected transaction bundle to convert, got %v", r.Errors)
	}
}

// ===== Dispatch =====

func TestConvert_NoConverterWarning(t *testing.T) {
	goal := `{"resourceType":"Goal","id":"g1"}`
	practitioner := `{"resourceType":"Practitioner","id":"dr1"}`
	r := Convert(bundle(patientSmith, goal, practitioner), testOptions())
	if !r.IsFullSuccess() {
		t.Fatalf("expected full success, got errors %v", r.Errors)
	}
	var found *convert.Issue
	for i := range r.Warnings {
		if r.Warnings[i].Code == convert.CodeNoConverter {
			if found != nil {
				t.Errorf("expected a single NO_CONVERTER, got %v", r.Warnings)
			}
			found = &r.Warnings[i]
		}
	}
	if found == nil || found.ResourceType != "Goal" || found.ResourceID != "g1" {
		t.Errorf("expected NO_CONVERTER for Goal/g1, got %v", r.Warnings)
	}
	if !strings.Contains(string(r.Output), "SMITH^JOHN") {
		t.Errorf("expected the patient to convert, got %q", r.Output)
	}
}

func TestConvert_NoWriterAcceptsWarning(t *testing.T) {
	contact := `{"resourceType":"RelatedPerson","id":"rp1","patient":{"reference":"Patient/p1"},"name":[{"family":"SMITH","given":["JANE"]}],"relationship":[{"coding":[{"system":"http://terminology.hl7.org/CodeSystem/v3-RoleCode","code":"SPS"}]}]}`
	opts := testOptions()
	opts.Registry = NewRegistry(PIDWriter{}, GT1Writer{})
	r := Convert(bundle(patientSmith, contact), opts)
	if !r.IsFullSuccess() {
		t.Fatalf("expected full success, got errors %v", r.Errors)
	}
	var found *convert.Issue
	for i := range r.Warnings {
		if r.Warnings[i].Code == convert.CodeNoConverter {
			found = &r.Warnings[i]
		}
	}
	if found == nil || found.ResourceType != "RelatedPerson" || found.ResourceID != "rp1" {
		t.Fatalf("expected NO_CONVERTER for RelatedPerson/rp1, got %v", r.Warnings)
	}
	if found.Severity != convert.SeverityWarning {
		t.Errorf("expected warning severity, got %s", found.Severity)
	}
	if strings.Contains(segmentNames(mustMessage(t, r)), "GT1") {
		t.Error("expected no GT1 for a non-guarantor")
	}

	r = Convert(bundle(patientSmith, contact), testOptions())
	if hasIssue(r.Warnings, convert.CodeNoConverter) {
		t.Errorf("expected NK1 to accept the contact, got %v", r.Warnings)
	}
}

type panickyWriter struct{}

func (panickyWriter) Name() string                  { return "BOOM" }
func (panickyWriter) ResourceTypes() []string       { return []string{"Patient"} }
func (panickyWriter) CanConvert(fhir.Resource) bool { return true }
func (panickyWriter) Convert(fhir.Resource, *MessageBuilder, Accessor) error {
	panic("writer exploded")
}

func TestConvert_WriterPanicContained(t *testing.T) {
	opts := testOptions()
	opts.Registry = NewRegistry(panickyWriter{}, PIDWriter{})
	r := Convert(bundle(patientSmith), opts)
	if !r.IsPartialSuccess() {
		t.Fatalf("expected partial success, got output=%v errors=%v", r.Output != nil, r.Errors)
	}
	if len(r.Errors) != 1 {
		t.Fatalf("expected one error, got %v", r.Errors)
	}
	e := r.Errors[0]
	if e.Code != convert.CodeResourceConversion || e.ResourceType != "Patient" || e.ResourceID != "p1" {
		t.Errorf("expected RESOURCE_CONVERSION_ERROR on Patient/p1, got %+v", e)
	}
	if !strings.Contains(e.Message, "writer exploded") {
		t.Errorf("expected panic value in message, got %q", e.Message)
	}
	if !strings.Contains(string(r.Output), "SMITH^JOHN") {
		t.Errorf("expected PID from the healthy writer, got %q", r.Output)
	}
}

func TestConvert_WriterErrorKeepsOthers(t *testing.T) {
	noCode := `{"resourceType":"Condition","id":"c1","subject":{"reference":"Patient/p1"}}`
	withCode := `{"resourceType":"Condition","id":"c2","code":{"coding":[{"system":"http://hl7.org/fhir/sid/icd-10-cm","code":"I10","display":"Hypertension"}]}}`
	r := Convert(bundle(patientSmith, noCode, withCode), testOptions())
	msg := mustMessage(t, r)
	if len(r.Errors) != 1 || r.Errors[0].ResourceID != "c1" {
		t.Errorf("expected one error on c1, got %v", r.Errors)
	}
	dg1 := msg.GetSegments("DG1")
	if len(dg1) != 1 || dg1[0].GetComponent(3, 1) != "I10" || dg1[0].GetField(1) != "1" {
		t.Errorf("expected one DG1 for I10 with set id 1, got %v", dg1)
	}
}

func TestConvert_StrictWithholdsInvalidBundle(t *testing.T) {
	bad := `{"resourceType":"Patient","id":"p1","name":[{"family":"SMITH"}],"favouriteColour":"blue"}`
	opts := testOptions()
	r := Convert(bundle(bad), opts)
	if r.Output == nil || !hasIssue(r.Warnings, convert.CodeValidationWarning) {
		t.Errorf("expected output with a validation warning, got %v", r.Warnings)
	}

	opts = testOptions()
	opts.Strict = true
	r = Convert(bundle(bad), opts)
	if r.Output != nil || !hasIssue(r.Errors, convert.CodeValidationWarning) {
		t.Errorf("expected strict mode to withhold output, got %v", r.Errors)
	}
}

// ===== Orders and results =====

const (
	cbcOrder = `{"resourceType":"ServiceRequest","id":"sr1","status":"active","intent":"order",` +
		`"identifier":[{"type":{"coding":[{"code":"PLAC"}]},"value":"ORD-1"}],` +
		`"code":{"coding":[{"system":"http://loinc.org","code":"58410-2","display":"CBC"}]},` +
		`"subject":{"reference":"Patient/p1"},"authoredOn":"2024-04-30T08:00:00Z"}`
	cbcReport = `{"resourceType":"DiagnosticReport","id":"dr1","status":"final","basedOn":[{"reference":"ServiceRequest/sr1"}],` +
		`"code":{"coding":[{"system":"http://loinc.org","code":"58410-2"}]},"issued":"2024-04-30T10:00:00Z",` +
		`"result":[{"reference":"Observation/o1"}]}`
	hemoglobin = `{"resourceType":"Observation","id":"o1","status":"final",` +
		`"code":{"coding":[{"system":"http://loinc.org","code":"718-7","display":"Hemoglobin"}]},` +
		`"valueQuantity":{"value":13.5,"unit":"g/dL","system":"http://unitsofmeasure.org","code":"g/dL"},` +
		`"referenceRange":[{"low":{"value":12},"high":{"value":16}}]}`
)

func TestConvert_ResultsMessage(t *testing.T) {
	r := Convert(bundle(hemoglobin, cbcReport, patientSmith, cbcOrder), testOptions())
	if !r.IsFullSuccess() {
		t.Fatalf("expected full success, got errors %v", r.Errors)
	}
	msg := mustMessage(t, r)
	if got := segmentNames(msg); got != "MSH PID ORC OBR OBX" {
		t.Errorf("expected MSH PID ORC OBR OBX, got %q", got)
	}
	if msg.Segments[0].GetComponent(9, 1) != "ORU" {
		t.Errorf("expected ORU for a report bundle, got %q", msg.Segments[0].GetComponent(9, 1))
	}
	orc := msg.GetSegment("ORC")
	if orc.GetField(1) != "RE" || orc.GetField(2) != "ORD-1" {
		t.Errorf("expected ORC RE with placer ORD-1, got %q %q", orc.GetField(1), orc.GetField(2))
	}
	obr := msg.GetSegment("OBR")
	if obr.GetField(1) != "1" || obr.GetComponent(4, 1) != "58410-2" || obr.GetField(25) != "F" {
		t.Errorf("expected OBR 1 for 58410-2 final, got %q %q %q", obr.GetField(1), obr.GetComponent(4, 1), obr.GetField(25))
	}
	if obr.GetField(22) != "20240430100000+0000" {
		t.Errorf("expected issued in OBR-22, got %q", obr.GetField(22))
	}
	obx := msg.GetSegment("OBX")
	if obx.GetField(2) != "NM" || obx.GetField(5) != "13.5" || obx.GetField(6) != "g/dL" {
		t.Errorf("expected NM 13.5 g/dL, got %q %q %q", obx.GetField(2), obx.GetField(5), obx.GetField(6))
	}
	if obx.GetField(7) != "12-16" || obx.GetField(11) != "F" {
		t.Errorf("expected range 12-16 and status F, got %q %q", obx.GetField(7), obx.GetField(11))
	}
}

func TestConvert_StandaloneObservations(t *testing.T) {
	text := `{"resourceType":"Observation","id":"o2","status":"preliminary","code":{"text":"Comment"},"valueString":"line one\nline two"}`
	coded := `{"resourceType":"Observation","id":"o3","status":"final","code":{"coding":[{"code":"X"}]},` +
		`"valueCodeableConcept":{"coding":[{"system":"http://snomed.info/sct","code":"260385009","display":"Negative"}]}}`
	r := Convert(bundle(patientSmith, text, coded), testOptions())
	msg := mustMessage(t, r)
	obx := msg.GetSegments("OBX")
	if len(obx) != 2 {
		t.Fatalf("expected 2 OBX, got %d", len(obx))
	}
	if obx[0].GetField(1) != "1" || obx[1].GetField(1) != "2" {
		t.Errorf("expected set ids 1 and 2, got %q %q", obx[0].GetField(1), obx[1].GetField(1))
	}
	if obx[0].GetField(2) != "TX" || obx[0].Repetitions(5) != 2 || obx[0].Value(5, 1, 1, 1) != "line two" {
		t.Errorf("expected TX with one repetition per line, got %q", obx[0].GetField(2))
	}
	if obx[1].GetField(2) != "CWE" || obx[1].GetComponent(5, 1) != "260385009" {
		t.Errorf("expected coded value, got %q %q", obx[1].GetField(2), obx[1].GetComponent(5, 1))
	}
}

// ===== Scheduling and documents =====

func TestConvert_Appointment(t *testing.T) {
	appt := `{"resourceType":"Appointment","id":"a1","status":"booked","start":"2024-05-01T09:00:00Z","minutesDuration":30,` +
		`"serviceType":[{"coding":[{"code":"CONSULT","display":"Consultation"}]}],` +
		`"participant":[{"actor":{"reference":"Patient/p1"},"status":"accepted"},{"actor":{"reference":"Practitioner/dr1"},"status":"accepted"}]}`
	dr := `{"resourceType":"Practitioner","id":"dr1","name":[{"family":"HOUSE","given":["GREGORY"]}]}`
	r := Convert(bundle(appt, dr, patientSmith), testOptions())
	if !r.IsFullSuccess() {
		t.Fatalf("expected full success, got errors %v", r.Errors)
	}
	msg := mustMessage(t, r)
	if got := segmentNames(msg); got != "MSH SCH PID RGS AIS AIP" {
		t.Errorf("expected MSH SCH PID RGS AIS AIP, got %q", got)
	}
	sch := msg.GetSegment("SCH")
	if sch.GetField(1) != "a1" || sch.GetField(9) != "30" || sch.GetField(10) != "min" {
		t.Errorf("expected SCH placer a1 and 30 min, got %q %q %q", sch.GetField(1), sch.GetField(9), sch.GetField(10))
	}
	if sch.GetComponent(11, 4) != "20240501090000+0000" {
		t.Errorf("expected start in SCH-11.4, got %q", sch.GetComponent(11, 4))
	}
	if aip := msg.GetSegment("AIP"); aip.GetComponent(3, 2) != "HOUSE" || aip.GetComponent(3, 3) != "GREGORY" {
		t.Errorf("expected AIP for HOUSE^GREGORY, got %q", aip.GetComponent(3, 2))
	}
	if ais := msg.GetSegment("AIS"); ais.GetComponent(3, 1) != "CONSULT" || ais.GetField(7) != "30" {
		t.Errorf("expected AIS CONSULT 30, got %q %q", ais.GetComponent(3, 1), ais.GetField(7))
	}
}

func TestConvert_DocumentBody(t *testing.T) {
	doc := `{"resourceType":"DocumentReference","id":"d1","status":"current",` +
		`"type":{"coding":[{"system":"http://loinc.org","code":"11506-3","display":"Progress note"}]},` +
		`"date":"2024-05-01T10:00:00Z",` +
		`"content":[{"attachment":{"contentType":"text/plain","data":"TGluZSBvbmUKTGluZSB0d28="}}]}`
	r := Convert(bundle(patientSmith, doc), testOptions())
	msg := mustMessage(t, r)
	if msg.Segments[0].GetComponent(9, 1) != "MDM" {
		t.Errorf("expected MDM, got %q", msg.Segments[0].GetComponent(9, 1))
	}
	txa := msg.GetSegment("TXA")
	if txa == nil || txa.GetComponent(2, 1) != "11506-3" || txa.GetField(3) != "TX" {
		t.Fatalf("expected TXA for 11506-3, got %v", txa)
	}
	obx := msg.GetSegments("OBX")
	if len(obx) != 2 || obx[0].GetField(5) != "Line one" || obx[1].GetField(5) != "Line two" {
		t.Errorf("expected one TX OBX per line, got %d", len(obx))
	}
}

func TestBodySegments_BinaryAndURL(t *testing.T) {
	ed := bodySegments(map[string]interface{}{"contentType": "application/pdf", "data": "JVBERi0="})
	if len(ed) != 1 || ed[0].GetField(2) != "ED" {
		t.Fatalf("expected one ED segment, got %v", ed)
	}
	if ed[0].GetComponent(5, 2) != "application" || ed[0].GetComponent(5, 3) != "pdf" || ed[0].GetComponent(5, 4) != "Base64" {
		t.Errorf("expected application^pdf^Base64, got %q", ed[0].GetComponent(5, 2))
	}
	url := bodySegments(map[string]interface{}{"url": "https://docs.example.org/1"})
	if len(url) != 1 || url[0].GetField(2) != "ST" || url[0].GetField(5) != "https://docs.example.org/1" {
		t.Errorf("expected ST with the url, got %v", url)
	}
	if got := bodySegments(nil); got != nil {
		t.Errorf("expected nothing for a missing attachment, got %v", got)
	}
}

// ===== Pharmacy =====

func TestConvert_ImmunizationWithoutDose(t *testing.T) {
	imm := `{"resourceType":"Immunization","id":"i1","status":"completed","primarySource":true,` +
		`"vaccineCode":{"coding":[{"system":"http://hl7.org/fhir/sid/cvx","code":"08","display":"Hep B"}]},` +
		`"occurrenceDateTime":"2024-03-01","lotNumber":"LOT42",` +
		`"route":{"coding":[{"code":"IM"}]}}`
	r := Convert(bundle(patientSmith, imm), testOptions())
	msg := mustMessage(t, r)
	rxa := msg.GetSegment("RXA")
	if rxa == nil {
		t.Fatalf("expected RXA, got %q", r.Output)
	}
	if rxa.GetField(3) != "20240301" || rxa.GetComponent(5, 1) != "08" {
		t.Errorf("expected date and vaccine, got %q %q", rxa.GetField(3), rxa.GetComponent(5, 1))
	}
	if rxa.GetField(6) != unknownDose {
		t.Errorf("expected unknown dose marker, got %q", rxa.GetField(6))
	}
	if rxa.GetComponent(9, 1) != "00" || rxa.GetField(15) != "LOT42" || rxa.GetField(20) != "CP" {
		t.Errorf("expected source 00, lot and CP, got %q %q %q", rxa.GetComponent(9, 1), rxa.GetField(15), rxa.GetField(20))
	}
	if rxr := msg.GetSegment("RXR"); rxr == nil || rxr.GetComponent(1, 1) != "IM" {
		t.Errorf("expected RXR route IM, got %v", rxr)
	}
}
