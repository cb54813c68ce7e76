package hl7tofhir

import (
	"github.com/ehr/hl7bridge/internal/mapping/convert"
	"github.com/ehr/hl7bridge/internal/mapping/datatype"
	"github.com/ehr/hl7bridge/internal/mapping/tables"
	"github.com/ehr/hl7bridge/internal/platform/fhir"
	"github.com/ehr/hl7bridge/internal/platform/hl7v2"
	fm "github.com/ehr/hl7bridge/pkg/fhirmodels"
)

// ServiceRequestConverter maps OBR with its ORC. Orders repeated under the
// same placer or filler number produce one ServiceRequest.
type ServiceRequestConverter struct{}

func (ServiceRequestConverter) Name() string { return "ServiceRequest" }

func (ServiceRequestConverter) Convert(acc Accessor, b *BundleBuilder, cctx *convert.Context) ([]fhir.Resource, error) {
	var out []fhir.Resource
	Each(acc, cctx, "OBR", func(o Occurrence) error {
		orc := orderSegment(acc, o)
		placer, filler := placerFiller(orc, o, 2, 3)
		if existing, ok := cctx.Resolve("ServiceRequest", convert.Placer(placer), convert.Filler(filler)); ok {
			cctx.Link(existing, convert.Index("ServiceRequest", o.Index))
			return nil
		}
		code := codeable(o, 4)
		if code == nil {
			return o.SegmentErr("OBR-4 universal service identifier is required")
		}

		sr := newResource(cctx, "ServiceRequest")
		sr["status"] = serviceRequestStatus(sr, o, orc, cctx)
		sr["intent"] = fm.RequestIntentOrder
		sr["code"] = code
		setSubject(sr, "subject", cctx)
		setEncounter(sr, "encounter", cctx)
		setIf(sr, "identifier", orderIdentifiers(placer, filler))
		setIf(sr, "priority", orderPriority(acc, o))

		requester := practitionerRef(cctx, datatype.XCN(orc, 12, 0))
		if requester == nil {
			requester = practitionerRef(cctx, datatype.XCN(o.Segment, 16, 0))
		}
		if requester != nil {
			sr["requester"] = requester
		}

		if authored, err := hl7v2.ParseDateTime(datatype.Component(orc, 9, 0, 1)); err == nil {
			sr["authoredOn"] = authored.FHIR()
		} else {
			setIf(sr, "authoredOn", optionalDateTime(o, 6, cctx))
		}
		setIf(sr, "reasonCode", codeables(o, 31))

		cctx.Link(refOf(sr), convert.Placer(placer), convert.Filler(filler), convert.Index("ServiceRequest", o.Index))
		out = append(out, sr)
		return nil
	})
	return out, nil
}

func serviceRequestStatus(sr fhir.Resource, o Occurrence, orc *hl7v2.Segment, cctx *convert.Context) string {
	if cctx.MessageCode == "ORU" && o.Field(25) == "F" {
		return fm.RequestStatusCompleted
	}
	return requestStatus(sr, orc, o, cctx)
}

// orderPriority reads OBR-27.6, then TQ1-9, then OBR-5.
func orderPriority(acc Accessor, o Occurrence) string {
	raw := o.Comp(27, 6)
	if raw == "" {
		if tq1 := sameGroupSegment(acc, o, "TQ1"); tq1 != nil {
			raw = datatype.Component(tq1, 9, 0, 1)
		}
	}
	if raw == "" {
		raw = o.Field(5)
	}
	p, _ := tables.Priority.ToFHIR(raw)
	return p
}

// DiagnosticReportConverter maps result OBRs: every OBR of an ORU, or any OBR
// carrying a result status. The report gathers the Observations of its own
// order group.
type DiagnosticReportConverter struct{}

func (DiagnosticReportConverter) Name() string { return "DiagnosticReport" }

func (DiagnosticReportConverter) Convert(acc Accessor, b *BundleBuilder, cctx *convert.Context) ([]fhir.Resource, error) {
	var out []fhir.Resource
	Each(acc, cctx, "OBR", func(o Occurrence) error {
		if cctx.MessageCode != "ORU" && o.Field(25) == "" {
			return nil
		}
		code := codeable(o, 4)
		if code == nil {
			return nil
		}

		dr := newResource(cctx, "DiagnosticReport")
		dr["status"] = fieldCode(dr, o, cctx, 25, tables.ResultStatus, "result-status", fm.ReportStatusUnknown)
		dr["code"] = code
		setSubject(dr, "subject", cctx)
		setEncounter(dr, "encounter", cctx)

		if section := o.Field(24); section != "" {
			dr["category"] = []interface{}{v2Concept("0074", section, "")}
		} else if cctx.MessageCode == "ORU" {
			dr["category"] = []interface{}{v2Concept("0074", "LAB", "Laboratory")}
		}
		setIf(dr, "effectiveDateTime", optionalDateTime(o, 7, cctx))
		setIf(dr, "issued", optionalDateTime(o, 22, cctx))

		orc := orderSegment(acc, o)
		placer, filler := placerFiller(orc, o, 2, 3)
		if filler != "" {
			dr["identifier"] = orderIdentifiers("", filler)
		}
		if sr, ok := cctx.Resolve("ServiceRequest", convert.Placer(placer), convert.Filler(filler), convert.Index("ServiceRequest", o.Index)); ok {
			dr["basedOn"] = []interface{}{reference(sr)}
		}

		var results []interface{}
		for _, ref := range cctx.GroupResults(o.Group, groupRep(o), "Observation") {
			results = append(results, reference(ref))
		}
		setIf(dr, "result", results)
		out = append(out, dr)
		return nil
	})
	return out, nil
}
