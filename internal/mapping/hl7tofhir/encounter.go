package hl7tofhir

import (
	"strings"

	"github.com/ehr/hl7bridge/internal/mapping/convert"
	"github.com/ehr/hl7bridge/internal/mapping/datatype"
	"github.com/ehr/hl7bridge/internal/mapping/tables"
	"github.com/ehr/hl7bridge/internal/platform/fhir"
	fm "github.com/ehr/hl7bridge/pkg/fhirmodels"
)

// EncounterConverter maps PV1 and PV2. The assigned location becomes a
// Location entry referenced from Encounter.location.
type EncounterConverter struct{}

func (EncounterConverter) Name() string { return "Encounter" }

var encounterParticipants = []struct {
	field int
	code  string
	label string
}{
	{7, fm.ParticipantAttender, "attender"},
	{8, fm.ParticipantReferrer, "referrer"},
	{9, fm.ParticipantConsultant, "consultant"},
	{17, fm.ParticipantAdmitter, "admitter"},
}

func (EncounterConverter) Convert(acc Accessor, b *BundleBuilder, cctx *convert.Context) ([]fhir.Resource, error) {
	pv1, ok := First(acc, cctx, "PV1")
	if !ok {
		return nil, nil
	}
	var out []fhir.Resource
	err := guard(pv1, func(o Occurrence) error {
		e := newResource(cctx, "Encounter")
		e["status"] = encounterStatus(o, cctx)

		class := o.Field(2)
		if code, ok := tables.PatientClass.ToFHIR(class); ok {
			e["class"] = codingOf(fm.SystemActCode, code, "")
		} else if class != "" {
			e["class"] = codingOf(fm.SystemV2Prefix+"0004", class, "")
		} else {
			e["class"] = codingOf(fm.SystemActCode, fm.EncounterClassAmbulatory, "")
		}

		if vn := datatype.Identifier(o.Segment, 19, 0); vn != nil {
			if _, typed := vn["type"]; !typed {
				vn["type"] = concept(fm.SystemIdentifierType, "VN", "Visit number")
			}
			e["identifier"] = []interface{}{vn}
		}
		if t := o.Field(4); t != "" {
			e["type"] = []interface{}{v2Concept("0007", t, o.Comp(4, 2))}
		}
		if svc := o.Field(10); svc != "" {
			e["serviceType"] = v2Concept("0069", svc, o.Comp(10, 2))
		}
		setSubject(e, "subject", cctx)

		var participants []interface{}
		for _, pd := range encounterParticipants {
			for r := 0; r < datatype.Repetitions(o.Segment, pd.field); r++ {
				ref := practitionerRef(cctx, datatype.XCN(o.Segment, pd.field, r))
				if ref == nil {
					continue
				}
				participants = append(participants, map[string]interface{}{
					"type":       []interface{}{concept(fm.SystemParticipantType, pd.code, pd.label)},
					"individual": ref,
				})
			}
		}
		setIf(e, "participant", participants)

		period := map[string]interface{}{}
		setIf(period, "start", optionalDateTime(o, 44, cctx))
		setIf(period, "end", optionalDateTime(o, 45, cctx))
		if len(period) > 0 {
			e["period"] = period
		}

		hosp := map[string]interface{}{}
		if src := o.Field(14); src != "" {
			hosp["admitSource"] = v2Concept("0023", src, o.Comp(14, 2))
		}
		if disp := o.Field(36); disp != "" {
			hosp["dischargeDisposition"] = v2Concept("0112", disp, o.Comp(36, 2))
		}
		if pre := datatype.Identifier(o.Segment, 5, 0); pre != nil {
			hosp["preAdmissionIdentifier"] = pre
		}
		if len(hosp) > 0 {
			e["hospitalization"] = hosp
		}

		if loc := locationFrom(o, 3, cctx); loc != nil {
			b.Add(loc)
			e["location"] = []interface{}{map[string]interface{}{
				"location": map[string]interface{}{"reference": loc.Ref(), "display": loc["name"]},
			}}
		}

		if pv2 := sameGroupSegment(acc, o, "PV2"); pv2 != nil {
			if reason := datatype.CodeableConcept(pv2, 3, 0); reason != nil {
				e["reasonCode"] = []interface{}{reason}
			}
		}

		cctx.EncounterID = e.ID()
		out = append(out, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// encounterStatus follows the trigger for ADT, else the discharge time.
func encounterStatus(o Occurrence, cctx *convert.Context) string {
	if cctx.MessageCode == "ADT" {
		return tables.EncounterStatusForTrigger(cctx.TriggerEvent)
	}
	if o.Field(45) != "" {
		return fm.EncounterStatusFinished
	}
	return fm.EncounterStatusInProgress
}

// locationFrom builds a Location from a PL field: point of care, room and
// bed joined into the name.
func locationFrom(o Occurrence, field int, cctx *convert.Context) fhir.Resource {
	unit, room, bed := o.Comp(field, 1), o.Comp(field, 2), o.Comp(field, 3)
	facility := o.Comp(field, 4)
	var parts []string
	for _, s := range []string{unit, room, bed} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return nil
	}
	loc := newResource(cctx, "Location")
	loc["status"] = "active"
	loc["name"] = strings.Join(parts, "-")
	loc["mode"] = "instance"

	kind, label := "wa", "Ward"
	switch {
	case bed != "":
		kind, label = "bd", "Bed"
	case room != "":
		kind, label = "ro", "Room"
	}
	loc["physicalType"] = concept("http://terminology.hl7.org/CodeSystem/location-physical-type", kind, label)
	if facility != "" {
		loc["description"] = facility
	}
	return loc
}
