package fhirtohl7

import (
	"fmt"
	"strings"

	"github.com/ehr/hl7bridge/internal/mapping/datatype"
	"github.com/ehr/hl7bridge/internal/mapping/tables"
	"github.com/ehr/hl7bridge/internal/platform/fhir"
	"github.com/ehr/hl7bridge/internal/platform/hl7v2"
	fm "github.com/ehr/hl7bridge/pkg/fhirmodels"
)

// concept returns the CodeableConcept at key, or the first one when key
// holds a list.
func concept(m map[string]interface{}, key string) map[string]interface{} {
	if cc := fhir.GetMap(m, key); cc != nil {
		return cc
	}
	return fhir.First(m, key)
}

// tableCode maps a CodeableConcept onto a v2 table: a coding already in the
// table's v2 code system wins, then the reverse map of the first coding.
func tableCode(cm *tables.CodeMap, cc map[string]interface{}) string {
	if c := fhir.CodingWithSystem(cc, fm.SystemV2Prefix+cm.Name()); c != nil {
		return fhir.GetString(c, "code")
	}
	return mapCode(cm, fhir.GetString(fhir.FirstCoding(cc), "code"))
}

// mapCode maps a FHIR code through cm. A value that already is a v2 code of
// the table passes through.
func mapCode(cm *tables.CodeMap, code string) string {
	if code == "" {
		return ""
	}
	if v, ok := cm.ToV2(code); ok {
		return v
	}
	if _, ok := cm.ToFHIR(code); ok {
		return strings.ToUpper(code)
	}
	return ""
}

// extensionCode reads the valueCode of one of our own extensions.
func extensionCode(res fhir.Resource, name string) string {
	for _, ext := range fhir.GetArray(res, "extension") {
		if fhir.GetString(ext, "url") == tables.ExtensionBase+name {
			return fhir.GetString(ext, "valueCode")
		}
	}
	return ""
}

// setTS writes a FHIR date into an HL7 timestamp, warning on bad values.
func setTS(seg *hl7v2.Segment, field, comp int, value string, res fhir.Resource, acc Accessor) {
	if err := datatype.SetTS(seg, field, comp, value); err != nil {
		acc.Warn(res, "%s-%d: %v; value dropped", seg.Name, field, err)
	}
}

// setPerson writes the practitioner a reference points at, falling back to
// the reference display.
func setPerson(seg *hl7v2.Segment, field, rep int, ref map[string]interface{}, acc Accessor) bool {
	if ref == nil {
		return false
	}
	who := acc.Resolve(fhir.GetString(ref, "reference"))
	if who != nil && who.Type() == "PractitionerRole" {
		who = acc.Resolve(fhir.GetString(fhir.GetMap(who, "practitioner"), "reference"))
	}
	display := fhir.GetString(ref, "display")
	if who == nil && display == "" {
		return false
	}
	datatype.SetXCN(seg, field, rep, who, display)
	return true
}

// setPeople writes each reference into consecutive repetitions.
func setPeople(seg *hl7v2.Segment, field int, refs []map[string]interface{}, acc Accessor) {
	rep := 0
	for _, ref := range refs {
		if setPerson(seg, field, rep, ref, acc) {
			rep++
		}
	}
}

// orderNumbers returns the placer and filler identifiers of an order-like
// resource. The resource id stands in for a missing placer number.
func orderNumbers(res fhir.Resource) (placer, filler map[string]interface{}) {
	for _, id := range fhir.GetArray(res, "identifier") {
		switch fhir.Code(id, "type") {
		case "PLAC":
			if placer == nil {
				placer = id
			}
		case "FILL":
			if filler == nil {
				filler = id
			}
		}
	}
	if placer == nil && res.ID() != "" {
		placer = map[string]interface{}{"value": res.ID()}
	}
	return placer, filler
}

// orcSegment writes the common order segment for an order-like resource.
func orcSegment(control string, res fhir.Resource, acc Accessor) *hl7v2.Segment {
	orc := hl7v2.NewSegment("ORC")
	status := fhir.GetString(res, "status")
	if control == "" {
		control = tables.OrderControl.ToV2Or(status, "NW")
	}
	orc.Set(1, 0, 1, 1, control)
	placer, filler := orderNumbers(res)
	datatype.SetEI(orc, 2, placer)
	datatype.SetEI(orc, 3, filler)
	if s, ok := tables.OrderStatus.ToV2(status); ok {
		orc.Set(5, 0, 1, 1, s)
	}
	setTS(orc, 9, 1, fhir.GetString(res, "authoredOn"), res, acc)
	setPerson(orc, 12, 0, fhir.GetMap(res, "requester"), acc)
	return orc
}

// orderGroupName is the order group of the message structure in progress.
func orderGroupName(out *MessageBuilder) string {
	if out.Structure() == "ORU_R01" {
		return "ORDER_OBSERVATION"
	}
	return "ORDER"
}

// routeSegment writes RXR from a dosage, or returns nil without a route.
func routeSegment(dosage map[string]interface{}) *hl7v2.Segment {
	route, site := fhir.GetMap(dosage, "route"), fhir.GetMap(dosage, "site")
	if route == nil {
		return nil
	}
	rxr := hl7v2.NewSegment("RXR")
	datatype.SetCWE(rxr, 1, 0, route)
	datatype.SetCWE(rxr, 2, 0, site)
	return rxr
}

// medicationCode returns the medication concept, following a Medication
// reference when the code is not inline.
func medicationCode(res fhir.Resource, acc Accessor) map[string]interface{} {
	if cc := fhir.GetMap(res, "medicationCodeableConcept"); cc != nil {
		return cc
	}
	if med := acc.Resolve(fhir.GetString(fhir.GetMap(res, "medicationReference"), "reference")); med != nil {
		return fhir.GetMap(med, "code")
	}
	return nil
}

// period returns start and end of a Period, or the dateTime alternative.
func period(res fhir.Resource, prefix string) (start, end string) {
	if dt := fhir.GetString(res, prefix+"DateTime"); dt != "" {
		return dt, ""
	}
	p := fhir.GetMap(res, prefix+"Period")
	return fhir.GetString(p, "start"), fhir.GetString(p, "end")
}

func yesNo(b bool) string {
	if b {
		return "Y"
	}
	return "N"
}

// hasCode reports whether any coding of cc carries code.
func hasCode(cc map[string]interface{}, code string) bool {
	for _, c := range fhir.GetArray(cc, "coding") {
		if fhir.GetString(c, "code") == code {
			return true
		}
	}
	return false
}

// errMissing reports a resource lacking an element its segment requires.
func errMissing(res fhir.Resource, element string) error {
	return fmt.Errorf("%s has no %s", res.Ref(), element)
}
