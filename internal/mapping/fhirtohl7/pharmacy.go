package fhirtohl7

import (
	"strconv"

	"github.com/ehr/hl7bridge/internal/mapping/datatype"
	"github.com/ehr/hl7bridge/internal/mapping/tables"
	"github.com/ehr/hl7bridge/internal/platform/fhir"
	"github.com/ehr/hl7bridge/internal/platform/hl7v2"
	fm "github.com/ehr/hl7bridge/pkg/fhirmodels"
)

// unknownDose is the RXA-6 value for an amount that was not recorded.
const unknownDose = "999"

// RXEWriter writes MedicationRequests as an order group: ORC, RXE and RXR.
type RXEWriter struct{}

func (RXEWriter) Name() string                  { return "ORC/RXE" }
func (RXEWriter) ResourceTypes() []string       { return []string{"MedicationRequest"} }
func (RXEWriter) CanConvert(fhir.Resource) bool { return true }

func (RXEWriter) Convert(mr fhir.Resource, out *MessageBuilder, acc Accessor) error {
	code := medicationCode(mr, acc)
	if code == nil {
		return errMissing(mr, "medication")
	}
	orc := orcSegment("", mr, acc)

	rxe := hl7v2.NewSegment("RXE")
	datatype.SetCWE(rxe, 2, 0, code)
	dosage := fhir.First(mr, "dosageInstruction")
	if dr := fhir.First(dosage, "doseAndRate"); dr != nil {
		datatype.SetQuantity(rxe, 3, 5, fhir.GetMap(dr, "doseQuantity"))
	}
	if text := fhir.GetString(dosage, "text"); text != "" {
		rxe.Set(6, 0, 1, 1, text)
	}
	dispense := fhir.GetMap(mr, "dispenseRequest")
	datatype.SetQuantity(rxe, 10, 11, fhir.GetMap(dispense, "quantity"))
	if n, ok := fhir.GetNumber(dispense, "numberOfRepeatsAllowed"); ok {
		rxe.Set(12, 0, 1, 1, strconv.Itoa(int(n)))
	}

	g := out.NewGroup("ORDER")
	g.Add(orc, rxe)
	if rxr := routeSegment(dosage); rxr != nil {
		g.Add(rxr)
	}
	out.Bind(mr, g)
	return nil
}

// RXAWriter writes MedicationAdministrations as RXA and RXR. An
// administration of an order already in the message joins the order's group.
type RXAWriter struct{}

func (RXAWriter) Name() string                  { return "RXA" }
func (RXAWriter) ResourceTypes() []string       { return []string{"MedicationAdministration"} }
func (RXAWriter) CanConvert(fhir.Resource) bool { return true }

func (RXAWriter) Convert(ma fhir.Resource, out *MessageBuilder, acc Accessor) error {
	code := medicationCode(ma, acc)
	if code == nil {
		return errMissing(ma, "medication")
	}
	start, end := period(ma, "effective")
	if start == "" {
		return errMissing(ma, "effective time")
	}

	rxa := newRXA()
	setTS(rxa, 3, 1, start, ma, acc)
	setTS(rxa, 4, 1, end, ma, acc)
	datatype.SetCWE(rxa, 5, 0, code)
	dosage := fhir.GetMap(ma, "dosage")
	if dose := fhir.GetMap(dosage, "dose"); dose != nil {
		datatype.SetQuantity(rxa, 6, 7, dose)
	} else {
		rxa.Set(6, 0, 1, 1, unknownDose)
	}
	if perf := fhir.First(ma, "performer"); perf != nil {
		setPerson(rxa, 10, 0, fhir.GetMap(perf, "actor"), acc)
	}
	if reason := fhir.First(ma, "statusReason"); reason != nil {
		datatype.SetCWE(rxa, 18, 0, reason)
	}
	rxa.Set(20, 0, 1, 1, tables.CompletionStatus.ToV2Or(fhir.GetString(ma, "status"), "CP"))

	g, ok := out.Bound(acc.Resolve(fhir.GetString(fhir.GetMap(ma, "request"), "reference")))
	if !ok {
		g = out.NewGroup("ORDER")
		g.Add(orcSegment("RE", ma, acc))
	}
	g.Add(rxa)
	if rxr := routeSegment(dosage); rxr != nil {
		g.Add(rxr)
	}
	return nil
}

// ImmunizationWriter writes Immunizations as an order group: ORC, RXA and
// RXR.
type ImmunizationWriter struct{}

func (ImmunizationWriter) Name() string                  { return "ORC/RXA" }
func (ImmunizationWriter) ResourceTypes() []string       { return []string{"Immunization"} }
func (ImmunizationWriter) CanConvert(fhir.Resource) bool { return true }

func (ImmunizationWriter) Convert(imm fhir.Resource, out *MessageBuilder, acc Accessor) error {
	vaccine := fhir.GetMap(imm, "vaccineCode")
	if vaccine == nil {
		return errMissing(imm, "vaccineCode")
	}
	when := fhir.GetString(imm, "occurrenceDateTime")
	if when == "" {
		when = fhir.GetString(imm, "recorded")
	}
	if when == "" {
		return errMissing(imm, "occurrence")
	}

	rxa := newRXA()
	setTS(rxa, 3, 1, when, imm, acc)
	datatype.SetCWE(rxa, 5, 0, vaccine)
	if dose := fhir.GetMap(imm, "doseQuantity"); dose != nil {
		datatype.SetQuantity(rxa, 6, 7, dose)
	} else {
		rxa.Set(6, 0, 1, 1, unknownDose)
	}
	if primary, ok := fhir.GetBool(imm, "primarySource"); ok && primary {
		rxa.SetComponents(9, 0, "00", "New immunization record", "NIP001")
	} else if origin := fhir.GetMap(imm, "reportOrigin"); origin != nil {
		datatype.SetCWE(rxa, 9, 0, origin)
	}
	if perf := fhir.First(imm, "performer"); perf != nil {
		setPerson(rxa, 10, 0, fhir.GetMap(perf, "actor"), acc)
	}
	rxa.Set(15, 0, 1, 1, fhir.GetString(imm, "lotNumber"))
	setTS(rxa, 16, 1, fhir.GetString(imm, "expirationDate"), imm, acc)
	setManufacturer(rxa, 17, fhir.GetMap(imm, "manufacturer"), acc)
	if reason := fhir.GetMap(imm, "statusReason"); reason != nil {
		datatype.SetCWE(rxa, 18, 0, reason)
	}
	rxa.Set(20, 0, 1, 1, tables.ImmunizationStatus.ToV2Or(fhir.GetString(imm, "status"), "CP"))

	g := out.NewGroup("ORDER")
	g.Add(orcSegment("RE", imm, acc), rxa)
	if rxr := routeSegment(imm); rxr != nil {
		g.Add(rxr)
	}
	return nil
}

// newRXA starts an RXA with the sub-id counters and action code filled.
func newRXA() *hl7v2.Segment {
	rxa := hl7v2.NewSegment("RXA")
	rxa.Set(1, 0, 1, 1, "0")
	rxa.Set(2, 0, 1, 1, "1")
	rxa.Set(21, 0, 1, 1, "A")
	return rxa
}

// setManufacturer writes the vaccine manufacturer as CWE, preferring its
// MVX identifier.
func setManufacturer(seg *hl7v2.Segment, field int, ref map[string]interface{}, acc Accessor) {
	if ref == nil {
		return
	}
	org := acc.Resolve(fhir.GetString(ref, "reference"))
	name := fhir.GetString(org, "name")
	if name == "" {
		name = fhir.GetString(ref, "display")
	}
	code := ""
	for _, id := range fhir.GetArray(org, "identifier") {
		if fhir.GetString(id, "system") == fm.SystemMVX {
			code = fhir.GetString(id, "value")
		}
	}
	if id := fhir.GetMap(ref, "identifier"); code == "" && fhir.GetString(id, "system") == fm.SystemMVX {
		code = fhir.GetString(id, "value")
	}
	if code == "" && name == "" {
		return
	}
	system := ""
	if code != "" {
		system = "MVX"
	}
	seg.SetComponents(field, 0, code, name, system)
}
