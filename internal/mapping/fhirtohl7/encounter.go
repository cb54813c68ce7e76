package fhirtohl7

import (
	"strings"

	"github.com/ehr/hl7bridge/internal/mapping/datatype"
	"github.com/ehr/hl7bridge/internal/mapping/tables"
	"github.com/ehr/hl7bridge/internal/platform/fhir"
	"github.com/ehr/hl7bridge/internal/platform/hl7v2"
)

// participantFields places Encounter participants by their type code.
var participantFields = []struct {
	code  string
	field int
}{
	{"ATND", 7},
	{"REF", 8},
	{"CON", 9},
	{"ADM", 17},
}

// PV1Writer writes the first Encounter as PV1.
type PV1Writer struct{}

func (PV1Writer) Name() string                  { return "PV1" }
func (PV1Writer) ResourceTypes() []string       { return []string{"Encounter"} }
func (PV1Writer) CanConvert(fhir.Resource) bool { return true }

func (PV1Writer) Convert(enc fhir.Resource, out *MessageBuilder, acc Accessor) error {
	if out.Count("PV1") > 0 {
		acc.Warn(enc, "message already carries a visit; %s not written", enc.Ref())
		return nil
	}
	pv1 := hl7v2.NewSegment("PV1")

	class := fhir.GetString(fhir.GetMap(enc, "class"), "code")
	pv1.Set(2, 0, 1, 1, patientClass(class))

	if loc := fhir.First(enc, "location"); loc != nil {
		setPointOfCare(pv1, 3, fhir.GetMap(loc, "location"), acc)
	}
	if t := fhir.First(enc, "type"); t != nil {
		datatype.SetCWE(pv1, 4, 0, t)
	}
	hosp := fhir.GetMap(enc, "hospitalization")
	if pre := fhir.GetMap(hosp, "preAdmissionIdentifier"); pre != nil {
		datatype.SetCX(pv1, 5, 0, pre)
	}

	reps := map[int]int{}
	for _, p := range fhir.GetArray(enc, "participant") {
		field := participantField(p)
		if setPerson(pv1, field, reps[field], fhir.GetMap(p, "individual"), acc) {
			reps[field]++
		}
	}

	datatype.SetCWE(pv1, 10, 0, fhir.GetMap(enc, "serviceType"))
	datatype.SetCWE(pv1, 14, 0, fhir.GetMap(hosp, "admitSource"))
	if id := visitNumber(enc); id != nil {
		datatype.SetCX(pv1, 19, 0, id)
	}
	datatype.SetCWE(pv1, 36, 0, fhir.GetMap(hosp, "dischargeDisposition"))

	start, end := period(enc, "period")
	setTS(pv1, 44, 1, start, enc, acc)
	setTS(pv1, 45, 1, end, enc, acc)

	out.Add(pv1)
	return nil
}

// participantField picks the PV1 field for a participant, the attending
// doctor when untyped.
func participantField(p map[string]interface{}) int {
	for _, t := range fhir.GetArray(p, "type") {
		for _, pf := range participantFields {
			if hasCode(t, pf.code) {
				return pf.field
			}
		}
	}
	return 7
}

// patientClass maps Encounter.class to table 0004. A class that already is
// a v2 patient class passes through; unknown classes become outpatient.
func patientClass(code string) string {
	if code == "" {
		return "U"
	}
	if v := mapCode(tables.PatientClass, code); v != "" {
		return v
	}
	return "O"
}

// visitNumber prefers the identifier typed VN.
func visitNumber(enc fhir.Resource) map[string]interface{} {
	ids := fhir.GetArray(enc, "identifier")
	for _, id := range ids {
		if fhir.Code(id, "type") == "VN" {
			return id
		}
	}
	if len(ids) > 0 {
		return ids[0]
	}
	return nil
}

// setPointOfCare writes a Location as PL: unit, room and bed from the
// hyphenated name according to the physical type, facility from the
// description.
func setPointOfCare(seg *hl7v2.Segment, field int, ref map[string]interface{}, acc Accessor) {
	loc := acc.Resolve(fhir.GetString(ref, "reference"))
	if loc == nil {
		if d := fhir.GetString(ref, "display"); d != "" {
			seg.Set(field, 0, 1, 1, d)
		}
		return
	}
	name := fhir.GetString(loc, "name")
	parts := []string{name}
	want := map[string]int{"wa": 1, "ro": 2, "bd": 3}[fhir.Code(loc, "physicalType")]
	if split := strings.Split(name, "-"); want > 1 && len(split) == want {
		parts = split
	}
	seg.SetComponents(field, 0, parts...)
	if d := fhir.GetString(loc, "description"); d != "" {
		seg.Set(field, 0, 4, 1, d)
	}
}

// PV2Writer writes the visit reason as PV2.
type PV2Writer struct{}

func (PV2Writer) Name() string            { return "PV2" }
func (PV2Writer) ResourceTypes() []string { return []string{"Encounter"} }

func (PV2Writer) CanConvert(enc fhir.Resource) bool {
	return len(fhir.GetArray(enc, "reasonCode")) > 0
}

func (PV2Writer) Convert(enc fhir.Resource, out *MessageBuilder, acc Accessor) error {
	if out.Count("PV2") > 0 {
		return nil
	}
	pv2 := hl7v2.NewSegment("PV2")
	datatype.SetCWE(pv2, 3, 0, fhir.First(enc, "reasonCode"))
	out.Add(pv2)
	return nil
}
