package fhirtohl7

import (
	"strconv"

	"github.com/ehr/hl7bridge/internal/mapping/datatype"
	"github.com/ehr/hl7bridge/internal/mapping/tables"
	"github.com/ehr/hl7bridge/internal/platform/fhir"
	"github.com/ehr/hl7bridge/internal/platform/hl7v2"
	fm "github.com/ehr/hl7bridge/pkg/fhirmodels"
)

const (
	ssnSystem         = "http://hl7.org/fhir/sid/us-ssn"
	mothersMaidenName = "http://hl7.org/fhir/StructureDefinition/patient-mothersMaidenName"
)

// PIDWriter writes the first Patient as PID. A message identifies one
// patient; later patients are reported and skipped.
type PIDWriter struct{}

func (PIDWriter) Name() string                  { return "PID" }
func (PIDWriter) ResourceTypes() []string       { return []string{"Patient"} }
func (PIDWriter) CanConvert(fhir.Resource) bool { return true }

func (PIDWriter) Convert(p fhir.Resource, out *MessageBuilder, acc Accessor) error {
	if out.Count("PID") > 0 {
		acc.Warn(p, "message already identifies a patient; %s not written", p.Ref())
		return nil
	}
	pid := hl7v2.NewSegment("PID")

	rep := 0
	for _, id := range fhir.GetArray(p, "identifier") {
		if fhir.Code(id, "type") == "SS" || fhir.GetString(id, "system") == ssnSystem {
			pid.Set(19, 0, 1, 1, fhir.GetString(id, "value"))
			continue
		}
		if fhir.GetString(id, "value") == "" {
			continue
		}
		datatype.SetCX(pid, 3, rep, id)
		rep++
	}
	if rep == 0 && p.ID() != "" {
		pid.Set(3, 0, 1, 1, p.ID())
	}

	for i, name := range fhir.GetArray(p, "name") {
		datatype.SetXPN(pid, 5, i, name)
	}
	for _, ext := range fhir.GetArray(p, "extension") {
		if fhir.GetString(ext, "url") == mothersMaidenName {
			pid.Set(6, 0, 1, 1, fhir.GetString(ext, "valueString"))
		}
	}
	setTS(pid, 7, 1, fhir.GetString(p, "birthDate"), p, acc)
	if g := fhir.GetString(p, "gender"); g != "" {
		pid.Set(8, 0, 1, 1, tables.Gender.ToV2Or(g, "U"))
	}
	for i, addr := range fhir.GetArray(p, "address") {
		datatype.SetXAD(pid, 11, i, addr)
	}

	telecoms := fhir.GetArray(p, "telecom")
	datatype.SetTelecoms(pid, 13, telecoms, func(use string) bool { return use != "work" })
	datatype.SetTelecoms(pid, 14, telecoms, func(use string) bool { return use == "work" })

	if comm := fhir.First(p, "communication"); comm != nil {
		datatype.SetCWE(pid, 15, 0, fhir.GetMap(comm, "language"))
	}
	if ms := fhir.GetMap(p, "maritalStatus"); ms != nil {
		if code := tableCode(tables.MaritalStatus, ms); code != "" {
			pid.Set(16, 0, 1, 1, code)
		} else {
			datatype.SetCWE(pid, 16, 0, ms)
		}
	}

	if b, ok := fhir.GetBool(p, "multipleBirthBoolean"); ok {
		pid.Set(24, 0, 1, 1, yesNo(b))
	}
	if n, ok := fhir.GetNumber(p, "multipleBirthInteger"); ok {
		pid.Set(24, 0, 1, 1, "Y")
		pid.Set(25, 0, 1, 1, strconv.Itoa(int(n)))
	}
	if dt := fhir.GetString(p, "deceasedDateTime"); dt != "" {
		setTS(pid, 29, 1, dt, p, acc)
		pid.Set(30, 0, 1, 1, "Y")
	} else if b, ok := fhir.GetBool(p, "deceasedBoolean"); ok {
		pid.Set(30, 0, 1, 1, yesNo(b))
	}

	out.Add(pid)
	return nil
}

// NK1Writer writes Patient.contact entries and non-guarantor RelatedPersons
// as NK1.
type NK1Writer struct{}

func (NK1Writer) Name() string            { return "NK1" }
func (NK1Writer) ResourceTypes() []string { return []string{"Patient", "RelatedPerson"} }

func (NK1Writer) CanConvert(res fhir.Resource) bool {
	if res.Type() == "Patient" {
		return len(fhir.GetArray(res, "contact")) > 0
	}
	return !isGuarantor(res)
}

func (NK1Writer) Convert(res fhir.Resource, out *MessageBuilder, acc Accessor) error {
	if res.Type() == "RelatedPerson" {
		out.Add(nextOfKin(fhir.First(res, "name"), fhir.GetArray(res, "relationship"),
			fhir.First(res, "address"), fhir.GetArray(res, "telecom")))
		return nil
	}
	for _, c := range fhir.GetArray(res, "contact") {
		out.Add(nextOfKin(fhir.GetMap(c, "name"), fhir.GetArray(c, "relationship"),
			fhir.GetMap(c, "address"), fhir.GetArray(c, "telecom")))
	}
	return nil
}

// nextOfKin builds one NK1. Relationship concepts coded in table 0131 are
// contact roles (NK1-7); the rest are relationships (NK1-3).
func nextOfKin(name map[string]interface{}, relationships []map[string]interface{}, addr map[string]interface{}, telecoms []map[string]interface{}) *hl7v2.Segment {
	nk1 := hl7v2.NewSegment("NK1")
	datatype.SetXPN(nk1, 2, 0, name)
	for _, rel := range relationships {
		if role := fhir.CodingWithSystem(rel, fm.SystemV2Prefix+"0131"); role != nil {
			nk1.SetComponents(7, 0, fhir.GetString(role, "code"), fhir.GetString(role, "display"), "HL70131")
			continue
		}
		if nk1.GetField(3) != "" {
			continue
		}
		if code := tableCode(tables.Relationship, rel); code != "" {
			nk1.SetComponents(3, 0, code, fhir.GetString(fhir.FirstCoding(rel), "display"), "HL70063")
		} else {
			datatype.SetCWE(nk1, 3, 0, rel)
		}
	}
	datatype.SetXAD(nk1, 4, 0, addr)
	datatype.SetTelecoms(nk1, 5, telecoms, func(use string) bool { return use != "work" })
	datatype.SetTelecoms(nk1, 6, telecoms, func(use string) bool { return use == "work" })
	return nk1
}

// GT1Writer writes guarantor RelatedPersons as GT1.
type GT1Writer struct{}

func (GT1Writer) Name() string                      { return "GT1" }
func (GT1Writer) ResourceTypes() []string           { return []string{"RelatedPerson"} }
func (GT1Writer) CanConvert(res fhir.Resource) bool { return isGuarantor(res) }

func (GT1Writer) Convert(rp fhir.Resource, out *MessageBuilder, acc Accessor) error {
	name := fhir.First(rp, "name")
	if name == nil {
		return errMissing(rp, "name")
	}
	gt1 := hl7v2.NewSegment("GT1")
	if id := fhir.First(rp, "identifier"); id != nil {
		datatype.SetCX(gt1, 2, 0, id)
	}
	datatype.SetXPN(gt1, 3, 0, name)
	datatype.SetXAD(gt1, 5, 0, fhir.First(rp, "address"))
	telecoms := fhir.GetArray(rp, "telecom")
	datatype.SetTelecoms(gt1, 6, telecoms, func(use string) bool { return use != "work" })
	datatype.SetTelecoms(gt1, 7, telecoms, func(use string) bool { return use == "work" })
	setTS(gt1, 8, 1, fhir.GetString(rp, "birthDate"), rp, acc)
	if g := fhir.GetString(rp, "gender"); g != "" {
		gt1.Set(9, 0, 1, 1, tables.Gender.ToV2Or(g, "U"))
	}
	for _, rel := range fhir.GetArray(rp, "relationship") {
		if code := tableCode(tables.Relationship, rel); code != "" {
			gt1.Set(11, 0, 1, 1, code)
			break
		}
	}
	out.Add(gt1)
	return nil
}

func isGuarantor(rp fhir.Resource) bool {
	for _, rel := range fhir.GetArray(rp, "relationship") {
		if hasCode(rel, "GUAR") {
			return true
		}
	}
	return false
}
