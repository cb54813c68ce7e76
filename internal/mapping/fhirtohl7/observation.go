package fhirtohl7

import (
	"strings"

	"github.com/ehr/hl7bridge/internal/mapping/datatype"
	"github.com/ehr/hl7bridge/internal/mapping/tables"
	"github.com/ehr/hl7bridge/internal/platform/fhir"
	"github.com/ehr/hl7bridge/internal/platform/hl7v2"
)

// OBXWriter writes Observations as OBX. Observations listed in a
// DiagnosticReport's results are written by the report instead. An
// observation based on an order already in the message joins that order's
// group.
type OBXWriter struct{}

func (OBXWriter) Name() string                  { return "OBX" }
func (OBXWriter) ResourceTypes() []string       { return []string{"Observation"} }
func (OBXWriter) CanConvert(fhir.Resource) bool { return true }

func (OBXWriter) Convert(obs fhir.Resource, out *MessageBuilder, acc Accessor) error {
	if acc.ReportedBy(obs) != nil {
		return nil
	}
	obx, err := obxSegment(obs, acc)
	if err != nil {
		return err
	}
	for _, ref := range fhir.GetArray(obs, "basedOn") {
		if g, ok := out.Bound(acc.Resolve(fhir.GetString(ref, "reference"))); ok {
			g.Add(obx)
			return nil
		}
	}
	out.Add(obx)
	return nil
}

// obxSegment writes one Observation. The value type follows value[x].
func obxSegment(obs fhir.Resource, acc Accessor) (*hl7v2.Segment, error) {
	code := fhir.GetMap(obs, "code")
	if code == nil {
		return nil, errMissing(obs, "code")
	}
	obx := hl7v2.NewSegment("OBX")
	datatype.SetCWE(obx, 3, 0, code)
	setObservationValue(obx, obs, acc)

	if rr := fhir.First(obs, "referenceRange"); rr != nil {
		obx.Set(7, 0, 1, 1, referenceRange(rr))
	}
	rep := 0
	for _, interp := range fhir.GetArray(obs, "interpretation") {
		if c := fhir.GetString(fhir.FirstCoding(interp), "code"); c != "" {
			obx.Set(8, rep, 1, 1, tables.AbnormalFlag.ToV2Or(c, c))
			rep++
		}
	}
	obx.Set(11, 0, 1, 1, tables.ObservationResultStatus.ToV2Or(fhir.GetString(obs, "status"), "F"))

	start, _ := period(obs, "effective")
	setTS(obx, 14, 1, start, obs, acc)
	setPeople(obx, 16, fhir.GetArray(obs, "performer"), acc)
	datatype.SetCWE(obx, 17, 0, fhir.GetMap(obs, "method"))
	return obx, nil
}

func setObservationValue(obx *hl7v2.Segment, obs fhir.Resource, acc Accessor) {
	switch {
	case fhir.GetMap(obs, "valueQuantity") != nil:
		q := fhir.GetMap(obs, "valueQuantity")
		datatype.SetQuantity(obx, 5, 6, q)
		if cmp := fhir.GetString(q, "comparator"); cmp != "" {
			v, _ := fhir.GetNumber(q, "value")
			obx.Set(2, 0, 1, 1, "SN")
			obx.SetComponents(5, 0, cmp, datatype.FormatNumber(v))
		} else {
			obx.Set(2, 0, 1, 1, "NM")
		}
	case fhir.GetMap(obs, "valueCodeableConcept") != nil:
		obx.Set(2, 0, 1, 1, "CWE")
		datatype.SetCWE(obx, 5, 0, fhir.GetMap(obs, "valueCodeableConcept"))
	case fhir.GetMap(obs, "valueRatio") != nil:
		r := fhir.GetMap(obs, "valueRatio")
		n, _ := fhir.GetNumber(fhir.GetMap(r, "numerator"), "value")
		d, _ := fhir.GetNumber(fhir.GetMap(r, "denominator"), "value")
		obx.Set(2, 0, 1, 1, "SN")
		obx.SetComponents(5, 0, "", datatype.FormatNumber(n), ":", datatype.FormatNumber(d))
	case fhir.GetMap(obs, "valueRange") != nil:
		r := fhir.GetMap(obs, "valueRange")
		lo, _ := fhir.GetNumber(fhir.GetMap(r, "low"), "value")
		hi, _ := fhir.GetNumber(fhir.GetMap(r, "high"), "value")
		obx.Set(2, 0, 1, 1, "SN")
		obx.SetComponents(5, 0, "", datatype.FormatNumber(lo), "-", datatype.FormatNumber(hi))
	case fhir.GetString(obs, "valueDateTime") != "":
		obx.Set(2, 0, 1, 1, "DTM")
		setTS(obx, 5, 1, fhir.GetString(obs, "valueDateTime"), obs, acc)
	case fhir.GetString(obs, "valueString") != "":
		v := fhir.GetString(obs, "valueString")
		typ := "ST"
		if len(v) > 199 || strings.Contains(v, "\n") {
			typ = "TX"
		}
		obx.Set(2, 0, 1, 1, typ)
		for i, line := range strings.Split(v, "\n") {
			obx.Set(5, i, 1, 1, line)
		}
	default:
		if n, ok := fhir.GetNumber(obs, "valueInteger"); ok {
			obx.Set(2, 0, 1, 1, "NM")
			obx.Set(5, 0, 1, 1, datatype.FormatNumber(n))
		} else if b, ok := fhir.GetBool(obs, "valueBoolean"); ok {
			obx.Set(2, 0, 1, 1, "ST")
			obx.Set(5, 0, 1, 1, yesNo(b))
		}
	}
}

// referenceRange renders a range as "low-high", "<high", ">low" or its text.
func referenceRange(rr map[string]interface{}) string {
	lo, hasLo := fhir.GetNumber(fhir.GetMap(rr, "low"), "value")
	hi, hasHi := fhir.GetNumber(fhir.GetMap(rr, "high"), "value")
	switch {
	case hasLo && hasHi:
		return datatype.FormatNumber(lo) + "-" + datatype.FormatNumber(hi)
	case hasHi:
		return "<" + datatype.FormatNumber(hi)
	case hasLo:
		return ">" + datatype.FormatNumber(lo)
	}
	return fhir.GetString(rr, "text")
}
