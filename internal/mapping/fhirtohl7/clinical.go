package fhirtohl7

import (
	"github.com/ehr/hl7bridge/internal/mapping/datatype"
	"github.com/ehr/hl7bridge/internal/mapping/tables"
	"github.com/ehr/hl7bridge/internal/platform/fhir"
	"github.com/ehr/hl7bridge/internal/platform/hl7v2"
	fm "github.com/ehr/hl7bridge/pkg/fhirmodels"
)

// DG1Writer writes Conditions as DG1.
type DG1Writer struct{}

func (DG1Writer) Name() string                  { return "DG1" }
func (DG1Writer) ResourceTypes() []string       { return []string{"Condition"} }
func (DG1Writer) CanConvert(fhir.Resource) bool { return true }

func (DG1Writer) Convert(c fhir.Resource, out *MessageBuilder, acc Accessor) error {
	code := fhir.GetMap(c, "code")
	if code == nil {
		return errMissing(c, "code")
	}
	dg1 := hl7v2.NewSegment("DG1")
	datatype.SetCWE(dg1, 3, 0, code)
	if text := fhir.GetString(code, "text"); text != "" {
		dg1.Set(4, 0, 1, 1, text)
	} else {
		dg1.Set(4, 0, 1, 1, fhir.GetString(fhir.FirstCoding(code), "display"))
	}
	onset, _ := period(c, "onset")
	setTS(dg1, 5, 1, onset, c, acc)

	dxType := extensionCode(c, "diagnosis-type")
	if dxType == "" {
		dxType = tableCode(tables.DiagnosisType, fhir.GetMap(c, "verificationStatus"))
	}
	if dxType == "" {
		dxType = "F"
	}
	dg1.Set(6, 0, 1, 1, dxType)

	asserter := fhir.GetMap(c, "asserter")
	if asserter == nil {
		asserter = fhir.GetMap(c, "recorder")
	}
	setPerson(dg1, 16, 0, asserter, acc)

	out.Add(dg1)
	return nil
}

// AL1Writer writes AllergyIntolerances as AL1.
type AL1Writer struct{}

func (AL1Writer) Name() string                  { return "AL1" }
func (AL1Writer) ResourceTypes() []string       { return []string{"AllergyIntolerance"} }
func (AL1Writer) CanConvert(fhir.Resource) bool { return true }

func (AL1Writer) Convert(a fhir.Resource, out *MessageBuilder, acc Accessor) error {
	code := fhir.GetMap(a, "code")
	if code == nil {
		return errMissing(a, "code")
	}
	al1 := hl7v2.NewSegment("AL1")

	allergen := extensionCode(a, "allergen-type")
	if allergen == "" {
		for _, cat := range fhir.GetStrings(a, "category") {
			if v, ok := tables.AllergenType.ToV2(cat); ok {
				allergen = v
				break
			}
		}
	}
	if allergen != "" {
		al1.Set(2, 0, 1, 1, allergen)
	}
	datatype.SetCWE(al1, 3, 0, code)

	reaction := fhir.First(a, "reaction")
	if sev, ok := tables.AllergySeverity.ToV2(fhir.GetString(reaction, "severity")); ok {
		al1.Set(4, 0, 1, 1, sev)
	} else if fhir.GetString(a, "criticality") == fm.AllergyCriticalityHigh {
		al1.Set(4, 0, 1, 1, "SV")
	}
	rep := 0
	for _, m := range fhir.GetArray(reaction, "manifestation") {
		if fhir.GetString(fhir.FirstCoding(m), "code") == "unspecified" {
			continue
		}
		datatype.SetCWE(al1, 5, rep, m)
		rep++
	}

	onset := fhir.GetString(a, "onsetDateTime")
	if onset == "" {
		onset = fhir.GetString(a, "recordedDate")
	}
	setTS(al1, 6, 1, onset, a, acc)

	out.Add(al1)
	return nil
}

// PR1Writer writes Procedures as PR1.
type PR1Writer struct{}

func (PR1Writer) Name() string                  { return "PR1" }
func (PR1Writer) ResourceTypes() []string       { return []string{"Procedure"} }
func (PR1Writer) CanConvert(fhir.Resource) bool { return true }

func (PR1Writer) Convert(p fhir.Resource, out *MessageBuilder, acc Accessor) error {
	code := fhir.GetMap(p, "code")
	if code == nil {
		return errMissing(p, "code")
	}
	pr1 := hl7v2.NewSegment("PR1")
	datatype.SetCWE(pr1, 3, 0, code)
	if text := fhir.GetString(code, "text"); text != "" {
		pr1.Set(4, 0, 1, 1, text)
	}
	performed, _ := period(p, "performed")
	setTS(pr1, 5, 1, performed, p, acc)
	if cat := fhir.GetMap(p, "category"); cat != nil {
		if c := fhir.CodingWithSystem(cat, fm.SystemV2Prefix+"0230"); c != nil {
			pr1.Set(6, 0, 1, 1, fhir.GetString(c, "code"))
		} else {
			datatype.SetCWE(pr1, 6, 0, cat)
		}
	}

	reps := map[int]int{}
	for _, perf := range fhir.GetArray(p, "performer") {
		field := 11
		if hasCode(fhir.GetMap(perf, "function"), "PPRF") {
			field = 12
		}
		if setPerson(pr1, field, reps[field], fhir.GetMap(perf, "actor"), acc) {
			reps[field]++
		}
	}

	out.Add(pr1)
	return nil
}
