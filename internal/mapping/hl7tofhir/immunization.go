package hl7tofhir

import (
	"github.com/ehr/hl7bridge/internal/mapping/convert"
	"github.com/ehr/hl7bridge/internal/mapping/datatype"
	"github.com/ehr/hl7bridge/internal/mapping/tables"
	"github.com/ehr/hl7bridge/internal/platform/fhir"
	fm "github.com/ehr/hl7bridge/pkg/fhirmodels"
)

// ImmunizationConverter maps vaccination RXA segments: every RXA of a VXU,
// or one coded in CVX.
type ImmunizationConverter struct{}

func (ImmunizationConverter) Name() string { return "Immunization" }

func (ImmunizationConverter) Convert(acc Accessor, b *BundleBuilder, cctx *convert.Context) ([]fhir.Resource, error) {
	var out []fhir.Resource
	Each(acc, cctx, "RXA", func(o Occurrence) error {
		if !isVaccine(o, cctx) {
			return nil
		}
		imm, err := immunization(acc, o, cctx)
		if err != nil {
			return err
		}
		out = append(out, imm)
		return nil
	})
	return out, nil
}

func immunization(acc Accessor, o Occurrence, cctx *convert.Context) (fhir.Resource, error) {
	vaccine := codeable(o, 5)
	if vaccine == nil {
		return nil, o.SegmentErr("RXA-5 administered code is required")
	}
	occurred, err := dateTimeField(o, 3)
	if err != nil {
		return nil, err
	}
	if occurred == "" {
		return nil, o.SegmentErr("RXA-3 administration date is required")
	}

	imm := newResource(cctx, "Immunization")
	imm["status"] = fieldCode(imm, o, cctx, 20, tables.ImmunizationStatus, "completion-status", fm.EventStatusCompleted)
	imm["vaccineCode"] = vaccine
	imm["occurrenceDateTime"] = occurred
	setSubject(imm, "patient", cctx)
	setEncounter(imm, "encounter", cctx)

	if amount := o.Field(6); amount != "999" {
		if q, ok := datatype.Quantity(amount, o.Segment, 7, 0); ok {
			imm["doseQuantity"] = q
		}
	}
	setIf(imm, "lotNumber", o.Field(15))
	if exp, err := dateField(o, 16); err == nil {
		setIf(imm, "expirationDate", exp)
	} else {
		cctx.Warn(convert.CodeWarning, o.Name, o.Index, 16, err.Error()+"; value dropped")
	}
	if mvx := o.Field(17); mvx != "" {
		mfr := map[string]interface{}{
			"identifier": map[string]interface{}{"system": fm.SystemMVX, "value": mvx},
		}
		setIf(mfr, "display", o.Comp(17, 2))
		imm["manufacturer"] = mfr
	}
	if rxr := sameGroupSegment(acc, o, "RXR"); rxr != nil {
		if route := datatype.CodeableConcept(rxr, 1, 0); route != nil {
			imm["route"] = route
		}
		if site := datatype.CodeableConcept(rxr, 2, 0); site != nil {
			imm["site"] = site
		}
	}
	if reason := codeable(o, 18); reason != nil {
		imm["statusReason"] = reason
	}

	source := o.Field(9)
	imm["primarySource"] = source == "" || source == "00"
	if source != "" && source != "00" {
		imm["reportOrigin"] = datatype.CodeableConcept(o.Segment, 9, 0)
	}
	if ref := practitionerRef(cctx, datatype.XCN(o.Segment, 10, 0)); ref != nil {
		imm["performer"] = []interface{}{map[string]interface{}{
			"function": v2Concept("0443", "AP", "Administering Provider"),
			"actor":    ref,
		}}
	}
	return imm, nil
}
