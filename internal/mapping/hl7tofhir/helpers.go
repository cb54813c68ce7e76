package hl7tofhir

import (
	"fmt"
	"strconv"

	"github.com/ehr/hl7bridge/internal/mapping/convert"
	"github.com/ehr/hl7bridge/internal/mapping/datatype"
	"github.com/ehr/hl7bridge/internal/mapping/tables"
	"github.com/ehr/hl7bridge/internal/platform/fhir"
	"github.com/ehr/hl7bridge/internal/platform/hl7v2"
	fm "github.com/ehr/hl7bridge/pkg/fhirmodels"
)

func newResource(cctx *convert.Context, resourceType string) fhir.Resource {
	return fhir.Resource{"resourceType": resourceType, "id": cctx.NewID()}
}

func refOf(r fhir.Resource) convert.ResourceRef {
	return convert.ResourceRef{Type: r.Type(), ID: r.ID()}
}

func reference(ref convert.ResourceRef) map[string]interface{} {
	return map[string]interface{}{"reference": ref.Reference()}
}

func setSubject(r fhir.Resource, key string, cctx *convert.Context) {
	if cctx.PatientID != "" {
		r[key] = map[string]interface{}{"reference": "Patient/" + cctx.PatientID}
	}
}

func setEncounter(r fhir.Resource, key string, cctx *convert.Context) {
	if cctx.EncounterID != "" {
		r[key] = map[string]interface{}{"reference": "Encounter/" + cctx.EncounterID}
	}
}

func setIf(r map[string]interface{}, key string, value interface{}) {
	switch v := value.(type) {
	case nil:
		return
	case string:
		if v == "" {
			return
		}
	case map[string]interface{}:
		if v == nil {
			return
		}
	case []interface{}:
		if len(v) == 0 {
			return
		}
	}
	r[key] = value
}

// practitionerRef returns a reference to the Practitioner allocated for an
// XCN, or nil for an empty XCN.
func practitionerRef(cctx *convert.Context, p datatype.Person) map[string]interface{} {
	if p.Empty() {
		return nil
	}
	id, _ := cctx.PractitionerID(p.Key())
	ref := map[string]interface{}{"reference": "Practitioner/" + id}
	if d := p.Display(); d != "" {
		ref["display"] = d
	}
	return ref
}

// dateTimeField parses a TS field as a FHIR dateTime. Absent values return
// "" and no error.
func dateTimeField(o Occurrence, field int) (string, error) {
	raw := o.Comp(field, 1)
	if raw == "" {
		return "", nil
	}
	dt, err := hl7v2.ParseDateTime(raw)
	if err != nil {
		return "", o.FieldErr(field, "invalid date/time %q", raw)
	}
	return dt.FHIR(), nil
}

// dateField parses a DT/TS field as a FHIR date.
func dateField(o Occurrence, field int) (string, error) {
	raw := o.Comp(field, 1)
	if raw == "" {
		return "", nil
	}
	dt, err := hl7v2.ParseDateTime(raw)
	if err != nil {
		return "", o.FieldErr(field, "invalid date %q", raw)
	}
	return dt.FHIRDate(), nil
}

// optionalDateTime is dateTimeField for fields whose bad values are
// dropped with a warning instead of failing the occurrence.
func optionalDateTime(o Occurrence, field int, cctx *convert.Context) string {
	v, err := dateTimeField(o, field)
	if err != nil {
		cctx.Warn(convert.CodeWarning, o.Name, o.Index, field, err.Error()+"; value dropped")
		return ""
	}
	return v
}

func codeable(o Occurrence, field int) map[string]interface{} {
	return datatype.CodeableConcept(o.Segment, field, 0)
}

func codeables(o Occurrence, field int) []interface{} {
	var out []interface{}
	for r := 0; r < datatype.Repetitions(o.Segment, field); r++ {
		if cc := datatype.CodeableConcept(o.Segment, field, r); cc != nil {
			out = append(out, cc)
		}
	}
	return out
}

func v2Concept(table, code, display string) map[string]interface{} {
	if code == "" {
		return nil
	}
	c := map[string]interface{}{"system": fm.SystemV2Prefix + table, "code": code}
	if display != "" {
		c["display"] = display
	}
	return map[string]interface{}{"coding": []interface{}{c}}
}

func codingOf(system, code, display string) map[string]interface{} {
	c := map[string]interface{}{"system": system, "code": code}
	if display != "" {
		c["display"] = display
	}
	return c
}

func concept(system, code, display string) map[string]interface{} {
	return map[string]interface{}{"coding": []interface{}{codingOf(system, code, display)}}
}

func extension(name string, valueKey string, value interface{}) map[string]interface{} {
	return map[string]interface{}{"url": tables.ExtensionBase + name, valueKey: value}
}

func addExtension(r map[string]interface{}, ext map[string]interface{}) {
	list, _ := r["extension"].([]interface{})
	r["extension"] = append(list, ext)
}

func placerFiller(orc *hl7v2.Segment, o Occurrence, placerField, fillerField int) (string, string) {
	placer := datatype.Component(orc, 2, 0, 1)
	filler := datatype.Component(orc, 3, 0, 1)
	if placer == "" && placerField > 0 {
		placer = o.Comp(placerField, 1)
	}
	if filler == "" && fillerField > 0 {
		filler = o.Comp(fillerField, 1)
	}
	return placer, filler
}

func orderIdentifiers(placer, filler string) []interface{} {
	var ids []interface{}
	if placer != "" {
		ids = append(ids, map[string]interface{}{
			"type":  concept(fm.SystemIdentifierType, "PLAC", "Placer Identifier"),
			"value": placer,
		})
	}
	if filler != "" {
		ids = append(ids, map[string]interface{}{
			"type":  concept(fm.SystemIdentifierType, "FILL", "Filler Identifier"),
			"value": filler,
		})
	}
	return ids
}

// codeField locates a coded v2 field for mappedCode.
type codeField struct {
	segment string
	index   int
	field   int
	table   *tables.CodeMap
	ext     string
}

func fieldOf(o Occurrence, n int, table *tables.CodeMap, ext string) codeField {
	return codeField{segment: o.Name, index: o.Index, field: n, table: table, ext: ext}
}

// keepUnmapped records a present v2 code its table does not know: the raw
// code goes on r as a v2 coding extension and a warning names what was used
// in its place.
func keepUnmapped(r map[string]interface{}, cctx *convert.Context, f codeField, raw, used string) {
	system := fm.SystemV2Prefix + f.table.Name()
	addExtension(r, extension(f.ext, "valueCoding", codingOf(system, raw, "")))
	msg := fmt.Sprintf("%s-%d code %q is not in table %s; kept as extension %s", f.segment, f.field, raw, f.table.Name(), f.ext)
	if used != "" {
		msg += fmt.Sprintf(", %s used", used)
	}
	cctx.Warn(convert.CodeWarning, f.segment, f.index, f.field, msg)
}

// mappedCode maps a coded field, returning def for an absent code and for an
// unknown one, which keepUnmapped preserves.
func mappedCode(r map[string]interface{}, cctx *convert.Context, f codeField, raw, def string) string {
	if raw == "" {
		return def
	}
	if v, ok := f.table.ToFHIR(raw); ok {
		return v
	}
	keepUnmapped(r, cctx, f, raw, def)
	return def
}

// fieldCode is mappedCode over field n of o.
func fieldCode(r map[string]interface{}, o Occurrence, cctx *convert.Context, n int, table *tables.CodeMap, ext, def string) string {
	return mappedCode(r, cctx, fieldOf(o, n, table, ext), o.Field(n), def)
}

// requestStatus derives a request status from ORC-1 and ORC-5, ORC-5
// winning when both are known. Unknown codes are kept on r; the ORC is
// located by the order index of o.
func requestStatus(r map[string]interface{}, orc *hl7v2.Segment, o Occurrence, cctx *convert.Context) string {
	control := datatype.Component(orc, 1, 0, 1)
	orderStatus := datatype.Component(orc, 5, 0, 1)
	loc := codeField{segment: "ORC", index: orderIndex(o)}

	status, known := fm.RequestStatusActive, false
	if s, ok := tables.OrderControl.ToFHIR(control); ok {
		status, known = s, true
	}
	if s, ok := tables.OrderStatus.ToFHIR(orderStatus); ok {
		status, known = s, true
	}
	used := ""
	if !known {
		used = status
	}
	if _, ok := tables.OrderControl.ToFHIR(control); control != "" && !ok {
		loc.field, loc.table, loc.ext = 1, tables.OrderControl, "order-control"
		keepUnmapped(r, cctx, loc, control, used)
	}
	if _, ok := tables.OrderStatus.ToFHIR(orderStatus); orderStatus != "" && !ok {
		loc.field, loc.table, loc.ext = 5, tables.OrderStatus, "order-status"
		keepUnmapped(r, cctx, loc, orderStatus, used)
	}
	return status
}

// orderSegment finds the ORC governing o: the first ORC of its group, or the
// root ORC with the same repetition index.
func orderSegment(acc Accessor, o Occurrence) *hl7v2.Segment {
	if o.Group != "" {
		return acc.Segment(hl7v2.Path{Segment: "ORC", Group: o.Group, GroupRep: o.GroupRep})
	}
	return acc.Segment(hl7v2.Path{Segment: "ORC", Rep: o.Index})
}

func isVaccine(o Occurrence, cctx *convert.Context) bool {
	return cctx.MessageCode == "VXU" || o.Value(5, 0, 3, 1) == "CVX"
}

func quote(s string) string { return strconv.Quote(s) }

func atoi(s string) (int, bool) {
	n, err := strconv.Atoi(s)
	return n, err == nil
}
