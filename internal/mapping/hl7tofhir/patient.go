package hl7tofhir

import (
	"github.com/ehr/hl7bridge/internal/mapping/convert"
	"github.com/ehr/hl7bridge/internal/mapping/datatype"
	"github.com/ehr/hl7bridge/internal/mapping/tables"
	"github.com/ehr/hl7bridge/internal/platform/fhir"
	fm "github.com/ehr/hl7bridge/pkg/fhirmodels"
)

// PatientConverter maps the first PID, with NK1 next of kin as contacts.
type PatientConverter struct{}

func (PatientConverter) Name() string { return "Patient" }

func (PatientConverter) Convert(acc Accessor, b *BundleBuilder, cctx *convert.Context) ([]fhir.Resource, error) {
	pid, ok := First(acc, cctx, "PID")
	if !ok {
		return nil, nil
	}
	var out []fhir.Resource
	err := guard(pid, func(o Occurrence) error {
		p := newResource(cctx, "Patient")

		ids := datatype.Identifiers(o.Segment, 3)
		if ssn := o.Field(19); ssn != "" {
			ids = append(ids, map[string]interface{}{
				"system": "http://hl7.org/fhir/sid/us-ssn",
				"value":  ssn,
				"type":   concept(fm.SystemIdentifierType, "SS", "Social Security number"),
			})
		}
		setIf(p, "identifier", ids)
		setIf(p, "name", datatype.HumanNames(o.Segment, 5))

		if maiden := o.Comp(6, 1); maiden != "" {
			addExtension(p, map[string]interface{}{
				"url":         "http://hl7.org/fhir/StructureDefinition/patient-mothersMaidenName",
				"valueString": maiden,
			})
		}

		if raw := o.Comp(7, 1); raw != "" {
			if birth, err := dateField(o, 7); err != nil {
				cctx.Warn(convert.CodeWarning, o.Name, o.Index, 7, "invalid birth date "+quote(raw)+"; value dropped")
			} else {
				p["birthDate"] = birth
			}
		}

		if g := o.Field(8); g != "" {
			gender, ok := tables.Gender.ToFHIR(g)
			if !ok {
				gender = fm.GenderUnknown
				cctx.Warn(convert.CodeWarning, o.Name, o.Index, 8, "unknown administrative sex "+quote(g)+"; mapped to unknown")
			}
			p["gender"] = gender
		}

		setIf(p, "address", datatype.Addresses(o.Segment, 11))
		telecom := datatype.ContactPoints(o.Segment, 13, "home")
		telecom = append(telecom, datatype.ContactPoints(o.Segment, 14, "work")...)
		setIf(p, "telecom", telecom)

		if lang := codeable(o, 15); lang != nil {
			p["communication"] = []interface{}{map[string]interface{}{"language": lang}}
		}
		if ms := o.Field(16); ms != "" {
			p["maritalStatus"] = datatype.TableConcept(ms, o.Comp(16, 2), fm.SystemMaritalStatus, tables.MaritalStatus)
		}

		switch o.Field(24) {
		case "Y":
			if order := o.Field(25); order != "" {
				if n, ok := atoi(order); ok {
					p["multipleBirthInteger"] = n
					break
				}
			}
			p["multipleBirthBoolean"] = true
		case "N":
			p["multipleBirthBoolean"] = false
		}

		if died := optionalDateTime(o, 29, cctx); died != "" {
			p["deceasedDateTime"] = died
		} else if o.Field(30) == "Y" {
			p["deceasedBoolean"] = true
		} else if o.Field(30) == "N" {
			p["deceasedBoolean"] = false
		}

		contacts := nextOfKin(acc, cctx)
		setIf(p, "contact", contacts)

		cctx.PatientID = p.ID()
		out = append(out, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func nextOfKin(acc Accessor, cctx *convert.Context) []interface{} {
	var contacts []interface{}
	Each(acc, cctx, "NK1", func(o Occurrence) error {
		c := map[string]interface{}{}
		setIf(c, "name", datatype.HumanName(o.Segment, 2, 0))
		var rel []interface{}
		if code := o.Comp(3, 1); code != "" {
			if v3, ok := tables.Relationship.ToFHIR(code); ok {
				rel = append(rel, concept(fm.SystemRoleCode, v3, o.Comp(3, 2)))
			} else {
				rel = append(rel, v2Concept("0063", code, o.Comp(3, 2)))
			}
		}
		if role := o.Comp(7, 1); role != "" {
			rel = append(rel, v2Concept("0131", role, o.Comp(7, 2)))
		}
		setIf(c, "relationship", rel)
		setIf(c, "address", datatype.Address(o.Segment, 4, 0))
		telecom := datatype.ContactPoints(o.Segment, 5, "home")
		telecom = append(telecom, datatype.ContactPoints(o.Segment, 6, "work")...)
		setIf(c, "telecom", telecom)
		if len(c) == 0 {
			return nil
		}
		contacts = append(contacts, c)
		return nil
	})
	return contacts
}
