package hl7tofhir

import (
	"github.com/ehr/hl7bridge/internal/mapping/convert"
	"github.com/ehr/hl7bridge/internal/mapping/datatype"
	"github.com/ehr/hl7bridge/internal/mapping/tables"
	"github.com/ehr/hl7bridge/internal/platform/fhir"
	fm "github.com/ehr/hl7bridge/pkg/fhirmodels"
)

// AllergyConverter maps AL1 and IAM segments to AllergyIntolerance.
type AllergyConverter struct{}

func (AllergyConverter) Name() string { return "AllergyIntolerance" }

func (AllergyConverter) Convert(acc Accessor, b *BundleBuilder, cctx *convert.Context) ([]fhir.Resource, error) {
	var out []fhir.Resource
	Each(acc, cctx, "AL1", func(o Occurrence) error {
		a, err := allergy(o, cctx, allergyFields{typ: 2, code: 3, severity: 4, reaction: 5, onset: 6})
		if err != nil {
			return err
		}
		out = append(out, a)
		return nil
	})
	Each(acc, cctx, "IAM", func(o Occurrence) error {
		a, err := allergy(o, cctx, allergyFields{typ: 2, code: 3, severity: 4, reaction: 5, onset: 11})
		if err != nil {
			return err
		}
		out = append(out, a)
		return nil
	})
	return out, nil
}

// allergyFields locates the allergy fields, which differ between AL1 and IAM.
type allergyFields struct {
	typ, code, severity, reaction, onset int
}

func allergy(o Occurrence, cctx *convert.Context, f allergyFields) (fhir.Resource, error) {
	code := codeable(o, f.code)
	if code == nil {
		return nil, o.SegmentErr("%s-%d allergen is required", o.Name, f.code)
	}
	onset, err := dateTimeField(o, f.onset)
	if err != nil {
		return nil, err
	}

	a := newResource(cctx, "AllergyIntolerance")
	a["code"] = code
	a["clinicalStatus"] = concept(fm.SystemAllergyClinical, "active", "Active")
	a["verificationStatus"] = concept(fm.SystemAllergyVer, "confirmed", "Confirmed")
	a["type"] = "allergy"
	setSubject(a, "patient", cctx)
	setEncounter(a, "encounter", cctx)

	if t := o.Field(f.typ); t != "" {
		if cat, ok := tables.AllergenType.ToFHIR(t); ok {
			a["category"] = []interface{}{cat}
		} else {
			addExtension(a, extension("allergen-type", "valueCode", t))
		}
	}

	reaction := map[string]interface{}{}
	if raw := o.Field(f.severity); raw != "" {
		if sev, ok := tables.SeverityToFHIR(raw); ok {
			reaction["severity"] = sev
			if sev == fm.AllergySeveritySevere {
				a["criticality"] = fm.AllergyCriticalityHigh
			} else {
				a["criticality"] = fm.AllergyCriticalityLow
			}
		} else {
			keepUnmapped(a, cctx, fieldOf(o, f.severity, tables.AllergySeverity, "allergy-severity"), raw, "")
		}
	}
	var manifestations []interface{}
	for r := 0; r < datatype.Repetitions(o.Segment, f.reaction); r++ {
		text := o.Value(f.reaction, r, 1, 1)
		if text == "" {
			continue
		}
		if cc := datatype.CodeableConcept(o.Segment, f.reaction, r); cc != nil && o.Value(f.reaction, r, 3, 1) != "" {
			manifestations = append(manifestations, cc)
		} else {
			manifestations = append(manifestations, map[string]interface{}{"text": text})
		}
	}
	setIf(reaction, "manifestation", manifestations)
	if len(reaction) > 0 {
		if _, ok := reaction["manifestation"]; !ok {
			reaction["manifestation"] = []interface{}{map[string]interface{}{"text": "unspecified"}}
		}
		a["reaction"] = []interface{}{reaction}
	}
	setIf(a, "onsetDateTime", onset)
	return a, nil
}
