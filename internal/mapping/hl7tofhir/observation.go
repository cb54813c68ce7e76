package hl7tofhir

import (
	"strconv"
	"strings"

	"github.com/ehr/hl7bridge/internal/mapping/convert"
	"github.com/ehr/hl7bridge/internal/mapping/datatype"
	"github.com/ehr/hl7bridge/internal/mapping/tables"
	"github.com/ehr/hl7bridge/internal/platform/fhir"
	"github.com/ehr/hl7bridge/internal/platform/hl7v2"
	fm "github.com/ehr/hl7bridge/pkg/fhirmodels"
)

// ObservationConverter maps every OBX outside document messages, where OBX
// carries the document body instead.
type ObservationConverter struct{}

func (ObservationConverter) Name() string { return "Observation" }

// LOINC codes reported under the vital-signs category.
var vitalSigns = map[string]bool{
	"8867-4": true, "8310-5": true, "9279-1": true, "8480-6": true, "8462-4": true,
	"2708-6": true, "59408-5": true, "29463-7": true, "8302-2": true, "39156-5": true,
	"85354-9": true, "8287-5": true,
}

func (ObservationConverter) Convert(acc Accessor, b *BundleBuilder, cctx *convert.Context) ([]fhir.Resource, error) {
	if cctx.MessageCode == "MDM" {
		return nil, nil
	}
	var out []fhir.Resource
	Each(acc, cctx, "OBX", func(o Occurrence) error {
		obs, err := observation(acc, o, cctx)
		if err != nil {
			return err
		}
		cctx.AddGroupResult(o.Group, groupRep(o), refOf(obs))
		out = append(out, obs)
		return nil
	})
	return out, nil
}

func observation(acc Accessor, o Occurrence, cctx *convert.Context) (fhir.Resource, error) {
	code := codeable(o, 3)
	if code == nil {
		return nil, o.SegmentErr("OBX-3 observation identifier is required")
	}
	obs := newResource(cctx, "Observation")
	obs["status"] = fieldCode(obs, o, cctx, 11, tables.ObservationResultStatus, "observation-result-status", fm.ReportStatusFinal)
	obs["code"] = code
	setSubject(obs, "subject", cctx)
	setEncounter(obs, "encounter", cctx)

	loinc := fhir.GetString(fhir.CodingWithSystem(code, fm.SystemLOINC), "code")
	switch {
	case vitalSigns[loinc]:
		obs["category"] = []interface{}{concept(fm.SystemObsCategory, fm.ObsCategoryVitalSigns, "Vital Signs")}
	case cctx.MessageCode == "ORU":
		obs["category"] = []interface{}{concept(fm.SystemObsCategory, fm.ObsCategoryLaboratory, "Laboratory")}
	}

	if err := observationValue(o, obs); err != nil {
		return nil, err
	}

	if rr := referenceRange(o.Field(7)); rr != nil {
		obs["referenceRange"] = []interface{}{rr}
	}
	var interp []interface{}
	for r := 0; r < datatype.Repetitions(o.Segment, 8); r++ {
		flag := o.Value(8, r, 1, 1)
		if flag == "" {
			continue
		}
		if c, ok := tables.AbnormalFlag.ToFHIR(flag); ok {
			interp = append(interp, concept(fm.SystemInterpretation, c, ""))
		} else {
			interp = append(interp, v2Concept("0078", flag, ""))
		}
	}
	setIf(obs, "interpretation", interp)

	effective, err := dateTimeField(o, 14)
	if err != nil {
		return nil, err
	}
	if effective == "" {
		if obr := sameGroupSegment(acc, o, "OBR"); obr != nil {
			if dt, err := hl7v2.ParseDateTime(datatype.Component(obr, 7, 0, 1)); err == nil {
				effective = dt.FHIR()
			}
		}
	}
	setIf(obs, "effectiveDateTime", effective)

	var performers []interface{}
	for r := 0; r < datatype.Repetitions(o.Segment, 16); r++ {
		if ref := practitionerRef(cctx, datatype.XCN(o.Segment, 16, r)); ref != nil {
			performers = append(performers, ref)
		}
	}
	setIf(obs, "performer", performers)

	if m := codeable(o, 17); m != nil {
		obs["method"] = m
	}
	return obs, nil
}

// observationValue sets value[x] from OBX-5 according to the OBX-2 type.
func observationValue(o Occurrence, obs fhir.Resource) error {
	raw := o.Value(5, 0, 1, 1)
	if raw == "" && o.Value(5, 0, 2, 1) == "" {
		return nil
	}
	switch strings.ToUpper(o.Field(2)) {
	case "NM":
		q, ok := datatype.Quantity(raw, o.Segment, 6, 0)
		if !ok {
			return o.FieldErr(5, "numeric value expected, got %q", raw)
		}
		obs["valueQuantity"] = q
	case "CE", "CWE", "CNE":
		if cc := datatype.CodeableConcept(o.Segment, 5, 0); cc != nil {
			obs["valueCodeableConcept"] = cc
		}
	case "DT", "TS", "DTM":
		dt, err := hl7v2.ParseDateTime(raw)
		if err != nil {
			return o.FieldErr(5, "invalid date/time %q", raw)
		}
		obs["valueDateTime"] = dt.FHIR()
	case "SN":
		return structuredNumeric(o, obs)
	default:
		obs["valueString"] = joinRepetitions(o, 5)
	}
	return nil
}

// structuredNumeric maps SN: comparator^num1^separator^num2.
func structuredNumeric(o Occurrence, obs fhir.Resource) error {
	comparator, n1, sep, n2 := o.Comp(5, 1), o.Comp(5, 2), o.Comp(5, 3), o.Comp(5, 4)
	num := func(s string) (map[string]interface{}, error) {
		q, ok := datatype.Quantity(s, o.Segment, 6, 0)
		if !ok {
			return nil, o.FieldErr(5, "structured numeric part %q is not a number", s)
		}
		return q, nil
	}
	switch sep {
	case "-":
		low, err := num(n1)
		if err != nil {
			return err
		}
		high, err := num(n2)
		if err != nil {
			return err
		}
		obs["valueRange"] = map[string]interface{}{"low": low, "high": high}
	case ":", "/":
		num1, err := num(n1)
		if err != nil {
			return err
		}
		den, err := num(n2)
		if err != nil {
			return err
		}
		obs["valueRatio"] = map[string]interface{}{"numerator": num1, "denominator": den}
	default:
		q, err := num(n1)
		if err != nil {
			return err
		}
		switch comparator {
		case "<", "<=", ">", ">=":
			q["comparator"] = comparator
		}
		obs["valueQuantity"] = q
	}
	return nil
}

func joinRepetitions(o Occurrence, field int) string {
	var parts []string
	for r := 0; r < datatype.Repetitions(o.Segment, field); r++ {
		if v := o.Value(field, r, 1, 1); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, "\n")
}

// referenceRange parses "low-high", "<x", ">x" or free text.
func referenceRange(s string) map[string]interface{} {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	number := func(v string) (map[string]interface{}, bool) {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, false
		}
		return map[string]interface{}{"value": f}, true
	}
	switch {
	case strings.HasPrefix(s, "<"):
		if high, ok := number(strings.TrimLeft(s, "<=")); ok {
			return map[string]interface{}{"high": high, "text": s}
		}
	case strings.HasPrefix(s, ">"):
		if low, ok := number(strings.TrimLeft(s, ">=")); ok {
			return map[string]interface{}{"low": low, "text": s}
		}
	default:
		if i := strings.Index(s[1:], "-"); i >= 0 {
			low, okLow := number(s[:i+1])
			high, okHigh := number(s[i+2:])
			if okLow && okHigh {
				return map[string]interface{}{"low": low, "high": high, "text": s}
			}
		}
	}
	return map[string]interface{}{"text": s}
}
