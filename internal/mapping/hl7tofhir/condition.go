package hl7tofhir

import (
	"github.com/ehr/hl7bridge/internal/mapping/convert"
	"github.com/ehr/hl7bridge/internal/mapping/datatype"
	"github.com/ehr/hl7bridge/internal/mapping/tables"
	"github.com/ehr/hl7bridge/internal/platform/fhir"
	fm "github.com/ehr/hl7bridge/pkg/fhirmodels"
)

// ConditionConverter maps DG1 diagnoses and PRB problems.
type ConditionConverter struct{}

func (ConditionConverter) Name() string { return "Condition" }

func (ConditionConverter) Convert(acc Accessor, b *BundleBuilder, cctx *convert.Context) ([]fhir.Resource, error) {
	var out []fhir.Resource
	Each(acc, cctx, "DG1", func(o Occurrence) error {
		c, err := diagnosis(o, cctx)
		if err != nil {
			return err
		}
		out = append(out, c)
		return nil
	})
	Each(acc, cctx, "PRB", func(o Occurrence) error {
		c, err := problem(o, cctx)
		if err != nil {
			return err
		}
		out = append(out, c)
		return nil
	})
	return out, nil
}

func diagnosis(o Occurrence, cctx *convert.Context) (fhir.Resource, error) {
	code := codeable(o, 3)
	if code == nil {
		if text := o.Field(4); text != "" {
			code = map[string]interface{}{"text": text}
		} else {
			return nil, o.SegmentErr("DG1-3 diagnosis code is required")
		}
	}
	onset, err := dateTimeField(o, 5)
	if err != nil {
		return nil, err
	}

	c := newResource(cctx, "Condition")
	c["code"] = code
	c["clinicalStatus"] = concept(fm.SystemCondClinical, fm.ConditionActive, "Active")
	verification := fm.ConditionConfirmed
	if v, ok := tables.DiagnosisType.ToFHIR(o.Field(6)); ok {
		verification = v
	}
	c["verificationStatus"] = concept(fm.SystemCondVerStatus, verification, "")
	c["category"] = []interface{}{concept(fm.SystemCondCategory, fm.ConditionEncounterDx, "Encounter Diagnosis")}
	setSubject(c, "subject", cctx)
	setEncounter(c, "encounter", cctx)
	setIf(c, "onsetDateTime", onset)
	if ref := practitionerRef(cctx, datatype.XCN(o.Segment, 16, 0)); ref != nil {
		c["asserter"] = ref
	}
	if t := o.Field(6); t != "" {
		addExtension(c, extension("diagnosis-type", "valueCode", t))
	}
	return c, nil
}

func problem(o Occurrence, cctx *convert.Context) (fhir.Resource, error) {
	code := codeable(o, 3)
	if code == nil {
		return nil, o.SegmentErr("PRB-3 problem id is required")
	}
	onset, err := dateTimeField(o, 16)
	if err != nil {
		return nil, err
	}
	c := newResource(cctx, "Condition")
	c["code"] = code
	clinical := fm.ConditionActive
	switch o.Field(14) {
	case "I", "INACTIVE":
		clinical = fm.ConditionInactive
	case "R", "RESOLVED":
		clinical = fm.ConditionResolved
	}
	c["clinicalStatus"] = concept(fm.SystemCondClinical, clinical, "")
	c["category"] = []interface{}{concept(fm.SystemCondCategory, fm.ConditionProblemListItem, "Problem List Item")}
	setSubject(c, "subject", cctx)
	setIf(c, "onsetDateTime", onset)
	setIf(c, "recordedDate", optionalDateTime(o, 2, cctx))
	if id := datatype.EntityIdentifier(o.Segment, 4, ""); id != nil {
		c["identifier"] = []interface{}{id}
	}
	return c, nil
}
