package hl7tofhir

import (
	"github.com/ehr/hl7bridge/internal/mapping/convert"
	"github.com/ehr/hl7bridge/internal/mapping/datatype"
	"github.com/ehr/hl7bridge/internal/mapping/tables"
	"github.com/ehr/hl7bridge/internal/platform/fhir"
	"github.com/ehr/hl7bridge/internal/platform/hl7v2"
	fm "github.com/ehr/hl7bridge/pkg/fhirmodels"
)

// MedicationRequestConverter maps pharmacy orders: RXE when present, else
// RXO, each with the ORC of its order group.
type MedicationRequestConverter struct{}

func (MedicationRequestConverter) Name() string { return "MedicationRequest" }

// rxFields locates the order fields, which differ between RXE and RXO.
type rxFields struct {
	code, doseMin, doseUnits, form, dispense, dispenseUnits, refills int
}

var (
	rxeFields = rxFields{code: 2, doseMin: 3, doseUnits: 5, form: 6, dispense: 10, dispenseUnits: 11, refills: 12}
	rxoFields = rxFields{code: 1, doseMin: 2, doseUnits: 4, form: 5, dispense: 11, dispenseUnits: 12, refills: 13}
)

func (MedicationRequestConverter) Convert(acc Accessor, b *BundleBuilder, cctx *convert.Context) ([]fhir.Resource, error) {
	name, fields := "RXE", rxeFields
	if len(Occurrences(acc, cctx, "RXE")) == 0 {
		name, fields = "RXO", rxoFields
	}
	var out []fhir.Resource
	Each(acc, cctx, name, func(o Occurrence) error {
		mr, err := medicationRequest(acc, o, fields, cctx)
		if err != nil {
			return err
		}
		out = append(out, mr)
		return nil
	})
	return out, nil
}

// orderIndex numbers orders by group repetition, else by occurrence.
func orderIndex(o Occurrence) int {
	if o.Group != "" {
		return o.GroupRep
	}
	return o.Index
}

func medicationRequest(acc Accessor, o Occurrence, f rxFields, cctx *convert.Context) (fhir.Resource, error) {
	code := codeable(o, f.code)
	if code == nil {
		return nil, o.SegmentErr("%s-%d give code is required", o.Name, f.code)
	}
	orc := orderSegment(acc, o)

	mr := newResource(cctx, "MedicationRequest")
	mr["status"] = requestStatus(mr, orc, o, cctx)
	mr["intent"] = fm.RequestIntentOrder
	mr["medicationCodeableConcept"] = code
	setSubject(mr, "subject", cctx)
	setEncounter(mr, "encounter", cctx)

	placer, filler := placerFiller(orc, o, 0, 0)
	setIf(mr, "identifier", orderIdentifiers(placer, filler))
	if authored, err := hl7v2.ParseDateTime(datatype.Component(orc, 9, 0, 1)); err == nil {
		mr["authoredOn"] = authored.FHIR()
	}
	if ref := practitionerRef(cctx, datatype.XCN(orc, 12, 0)); ref != nil {
		mr["requester"] = ref
	}

	dosage := map[string]interface{}{}
	if q, ok := datatype.Quantity(o.Field(f.doseMin), o.Segment, f.doseUnits, 0); ok {
		dosage["doseAndRate"] = []interface{}{map[string]interface{}{"doseQuantity": q}}
	}
	if rxr := sameGroupSegment(acc, o, "RXR"); rxr != nil {
		if route := datatype.CodeableConcept(rxr, 1, 0); route != nil {
			dosage["route"] = route
		}
		if site := datatype.CodeableConcept(rxr, 2, 0); site != nil {
			dosage["site"] = site
		}
	}
	if form := o.Field(f.form); form != "" {
		dosage["text"] = form
	}
	if len(dosage) > 0 {
		mr["dosageInstruction"] = []interface{}{dosage}
	}

	dispense := map[string]interface{}{}
	if q, ok := datatype.Quantity(o.Field(f.dispense), o.Segment, f.dispenseUnits, 0); ok {
		dispense["quantity"] = q
	}
	if n, ok := atoi(o.Field(f.refills)); ok {
		dispense["numberOfRepeatsAllowed"] = n
	}
	if len(dispense) > 0 {
		mr["dispenseRequest"] = dispense
	}

	cctx.Link(refOf(mr), convert.Placer(placer), convert.Filler(filler), convert.Index("MedicationRequest", orderIndex(o)))
	return mr, nil
}

// MedicationAdministrationConverter maps RXA segments that are not
// vaccinations, linking each to the MedicationRequest of its order.
type MedicationAdministrationConverter struct{}

func (MedicationAdministrationConverter) Name() string { return "MedicationAdministration" }

func (MedicationAdministrationConverter) Convert(acc Accessor, b *BundleBuilder, cctx *convert.Context) ([]fhir.Resource, error) {
	var out []fhir.Resource
	Each(acc, cctx, "RXA", func(o Occurrence) error {
		if isVaccine(o, cctx) {
			return nil
		}
		ma, err := administration(acc, o, cctx)
		if err != nil {
			return err
		}
		out = append(out, ma)
		return nil
	})
	return out, nil
}

func administration(acc Accessor, o Occurrence, cctx *convert.Context) (fhir.Resource, error) {
	start, err := dateTimeField(o, 3)
	if err != nil {
		return nil, err
	}
	if start == "" {
		return nil, o.SegmentErr("RXA-3 administration start is required")
	}
	end, err := dateTimeField(o, 4)
	if err != nil {
		return nil, err
	}
	code := codeable(o, 5)
	if code == nil {
		return nil, o.SegmentErr("RXA-5 administered code is required")
	}

	ma := newResource(cctx, "MedicationAdministration")
	ma["status"] = fieldCode(ma, o, cctx, 20, tables.CompletionStatus, "completion-status", fm.EventStatusCompleted)
	ma["medicationCodeableConcept"] = code
	setSubject(ma, "subject", cctx)
	setEncounter(ma, "context", cctx)
	if end != "" && end != start {
		ma["effectivePeriod"] = map[string]interface{}{"start": start, "end": end}
	} else {
		ma["effectiveDateTime"] = start
	}

	dosage := map[string]interface{}{}
	if q, ok := datatype.Quantity(o.Field(6), o.Segment, 7, 0); ok && o.Field(6) != "999" {
		dosage["dose"] = q
	}
	if rxr := sameGroupSegment(acc, o, "RXR"); rxr != nil {
		if route := datatype.CodeableConcept(rxr, 1, 0); route != nil {
			dosage["route"] = route
		}
	}
	if len(dosage) > 0 {
		ma["dosage"] = dosage
	}
	if ref := practitionerRef(cctx, datatype.XCN(o.Segment, 10, 0)); ref != nil {
		ma["performer"] = []interface{}{map[string]interface{}{"actor": ref}}
	}
	if reason := codeable(o, 18); reason != nil {
		ma["statusReason"] = []interface{}{reason}
	}

	orc := orderSegment(acc, o)
	placer, filler := placerFiller(orc, o, 0, 0)
	if req, ok := cctx.Resolve("MedicationRequest", convert.Placer(placer), convert.Filler(filler), convert.Index("MedicationRequest", orderIndex(o))); ok {
		ma["request"] = reference(req)
	}
	return ma, nil
}
