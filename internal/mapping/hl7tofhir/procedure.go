package hl7tofhir

import (
	"github.com/ehr/hl7bridge/internal/mapping/convert"
	"github.com/ehr/hl7bridge/internal/mapping/datatype"
	"github.com/ehr/hl7bridge/internal/platform/fhir"
	fm "github.com/ehr/hl7bridge/pkg/fhirmodels"
)

// ProcedureConverter maps PR1 segments.
type ProcedureConverter struct{}

func (ProcedureConverter) Name() string { return "Procedure" }

var procedurePerformers = []struct {
	field int
	code  string
	label string
}{
	{11, "SPRF", "secondary performer"},
	{12, "PPRF", "primary performer"},
}

func (ProcedureConverter) Convert(acc Accessor, b *BundleBuilder, cctx *convert.Context) ([]fhir.Resource, error) {
	var out []fhir.Resource
	Each(acc, cctx, "PR1", func(o Occurrence) error {
		code := codeable(o, 3)
		if code == nil {
			if text := o.Field(4); text != "" {
				code = map[string]interface{}{"text": text}
			} else {
				return o.SegmentErr("PR1-3 procedure code is required")
			}
		} else if text := o.Field(4); text != "" {
			if _, ok := code["text"]; !ok {
				code["text"] = text
			}
		}
		performed, err := dateTimeField(o, 5)
		if err != nil {
			return err
		}

		p := newResource(cctx, "Procedure")
		p["status"] = fm.EventStatusCompleted
		p["code"] = code
		setSubject(p, "subject", cctx)
		setEncounter(p, "encounter", cctx)
		setIf(p, "performedDateTime", performed)

		var performers []interface{}
		for _, pf := range procedurePerformers {
			for r := 0; r < datatype.Repetitions(o.Segment, pf.field); r++ {
				if ref := practitionerRef(cctx, datatype.XCN(o.Segment, pf.field, r)); ref != nil {
					performers = append(performers, map[string]interface{}{
						"function": concept(fm.SystemParticipantType, pf.code, pf.label),
						"actor":    ref,
					})
				}
			}
		}
		setIf(p, "performer", performers)
		if t := o.Field(6); t != "" {
			p["category"] = v2Concept("0230", t, o.Comp(6, 2))
		}
		out = append(out, p)
		return nil
	})
	return out, nil
}
