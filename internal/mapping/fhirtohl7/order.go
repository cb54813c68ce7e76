package fhirtohl7

import (
	"github.com/ehr/hl7bridge/internal/mapping/datatype"
	"github.com/ehr/hl7bridge/internal/mapping/tables"
	"github.com/ehr/hl7bridge/internal/platform/fhir"
	"github.com/ehr/hl7bridge/internal/platform/hl7v2"
	fm "github.com/ehr/hl7bridge/pkg/fhirmodels"
)

// ServiceRequestWriter opens an order group (ORC, OBR) per ServiceRequest.
// Reports and observations based on the request join the group.
type ServiceRequestWriter struct{}

func (ServiceRequestWriter) Name() string                  { return "ORC/OBR" }
func (ServiceRequestWriter) ResourceTypes() []string       { return []string{"ServiceRequest"} }
func (ServiceRequestWriter) CanConvert(fhir.Resource) bool { return true }

func (ServiceRequestWriter) Convert(sr fhir.Resource, out *MessageBuilder, acc Accessor) error {
	code := fhir.GetMap(sr, "code")
	if code == nil {
		return errMissing(sr, "code")
	}
	control := ""
	if acc.MessageType().Code == "ORU" {
		control = "RE"
	}
	orc := orcSegment(control, sr, acc)

	obr := hl7v2.NewSegment("OBR")
	placer, filler := orderNumbers(sr)
	datatype.SetEI(obr, 2, placer)
	datatype.SetEI(obr, 3, filler)
	datatype.SetCWE(obr, 4, 0, code)
	if p, ok := tables.Priority.ToV2(fhir.GetString(sr, "priority")); ok {
		obr.Set(5, 0, 1, 1, p)
		obr.Set(27, 0, 6, 1, p)
	}
	setTS(obr, 6, 1, fhir.GetString(sr, "authoredOn"), sr, acc)
	occurrence, _ := period(sr, "occurrence")
	setTS(obr, 7, 1, occurrence, sr, acc)
	setPerson(obr, 16, 0, fhir.GetMap(sr, "requester"), acc)
	if reason := fhir.First(sr, "reasonCode"); reason != nil {
		datatype.SetCWE(obr, 31, 0, reason)
	}

	g := out.NewGroup(orderGroupName(out))
	g.Add(orc, obr)
	out.Bind(sr, g)
	return nil
}

// DiagnosticReportWriter writes a report as OBR plus one OBX per result. A
// report based on a request already in the message completes that request's
// OBR; otherwise it opens its own group with ORC control RE.
type DiagnosticReportWriter struct{}

func (DiagnosticReportWriter) Name() string                  { return "OBR/OBX" }
func (DiagnosticReportWriter) ResourceTypes() []string       { return []string{"DiagnosticReport"} }
func (DiagnosticReportWriter) CanConvert(fhir.Resource) bool { return true }

func (DiagnosticReportWriter) Convert(dr fhir.Resource, out *MessageBuilder, acc Accessor) error {
	code := fhir.GetMap(dr, "code")
	if code == nil {
		return errMissing(dr, "code")
	}

	var g *Group
	var obr *hl7v2.Segment
	for _, ref := range fhir.GetArray(dr, "basedOn") {
		if bound, ok := out.Bound(acc.Resolve(fhir.GetString(ref, "reference"))); ok {
			g = bound
			obr = lastSegment(g, "OBR")
			break
		}
	}
	if obr == nil {
		orc := orcSegment("RE", dr, acc)
		obr = hl7v2.NewSegment("OBR")
		placer, filler := orderNumbers(dr)
		datatype.SetEI(obr, 2, placer)
		datatype.SetEI(obr, 3, filler)
		datatype.SetCWE(obr, 4, 0, code)
		g = out.NewGroup(orderGroupName(out))
		g.Add(orc, obr)
	}

	effective, _ := period(dr, "effective")
	setTS(obr, 7, 1, effective, dr, acc)
	setTS(obr, 22, 1, fhir.GetString(dr, "issued"), dr, acc)
	if cat := fhir.First(dr, "category"); cat != nil {
		if c := fhir.CodingWithSystem(cat, fm.SystemV2Prefix+"0074"); c != nil {
			obr.Set(24, 0, 1, 1, fhir.GetString(c, "code"))
		} else if c := fhir.FirstCoding(cat); c != nil {
			obr.Set(24, 0, 1, 1, fhir.GetString(c, "code"))
		}
	}
	obr.Set(25, 0, 1, 1, tables.ResultStatus.ToV2Or(fhir.GetString(dr, "status"), "F"))
	out.Bind(dr, g)

	for _, ref := range fhir.GetArray(dr, "result") {
		obs := acc.Resolve(fhir.GetString(ref, "reference"))
		if obs == nil {
			acc.Warn(dr, "result %s is not in the bundle", fhir.GetString(ref, "reference"))
			continue
		}
		if by := acc.ReportedBy(obs); by != nil && identity(by) != identity(dr) {
			continue
		}
		obx, err := obxSegment(obs, acc)
		if err != nil {
			acc.Warn(dr, "result %s skipped: %v", fhir.GetString(ref, "reference"), err)
			continue
		}
		g.Add(obx)
	}
	return nil
}

func lastSegment(g *Group, name string) *hl7v2.Segment {
	segs := g.Segments()
	for i := len(segs) - 1; i >= 0; i-- {
		if segs[i].Name == name {
			return segs[i]
		}
	}
	return nil
}
