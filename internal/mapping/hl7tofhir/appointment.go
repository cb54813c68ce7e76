package hl7tofhir

import (
	"time"

	"github.com/ehr/hl7bridge/internal/mapping/convert"
	"github.com/ehr/hl7bridge/internal/mapping/datatype"
	"github.com/ehr/hl7bridge/internal/mapping/tables"
	"github.com/ehr/hl7bridge/internal/platform/fhir"
	"github.com/ehr/hl7bridge/internal/platform/hl7v2"
	fm "github.com/ehr/hl7bridge/pkg/fhirmodels"
)

// AppointmentConverter maps SCH with its resource groups (AIS, AIP, AIL).
type AppointmentConverter struct{}

func (AppointmentConverter) Name() string { return "Appointment" }

// triggerStatus gives the Appointment status implied by SIU triggers when
// SCH-25 is absent.
var triggerStatus = map[string]string{
	"S12": fm.AppointmentBooked,
	"S13": fm.AppointmentBooked,
	"S14": fm.AppointmentBooked,
	"S15": fm.AppointmentCancelled,
	"S17": fm.AppointmentEnteredInError,
	"S26": fm.AppointmentNoShow,
}

func (AppointmentConverter) Convert(acc Accessor, b *BundleBuilder, cctx *convert.Context) ([]fhir.Resource, error) {
	sch, ok := First(acc, cctx, "SCH")
	if !ok {
		return nil, nil
	}
	var out []fhir.Resource
	err := guard(sch, func(o Occurrence) error {
		a := newResource(cctx, "Appointment")

		status := fm.AppointmentBooked
		if s, ok := tables.FillerStatus.ToFHIR(o.Field(25)); ok {
			status = s
		} else if s, ok := triggerStatus[cctx.TriggerEvent]; ok {
			status = s
		}
		a["status"] = status

		var ids []interface{}
		if id := datatype.EntityIdentifier(o.Segment, 1, "PLAC"); id != nil {
			ids = append(ids, id)
		}
		if id := datatype.EntityIdentifier(o.Segment, 2, "FILL"); id != nil {
			ids = append(ids, id)
		}
		setIf(a, "identifier", ids)
		if reason := codeable(o, 7); reason != nil {
			a["reasonCode"] = []interface{}{reason}
		}
		if t := codeable(o, 8); t != nil {
			a["appointmentType"] = t
		}

		ais := Occurrences(acc, cctx, "AIS")
		begin, err := componentTime(o, 11, 4)
		if err != nil {
			return err
		}
		finish, err := componentTime(o, 11, 5)
		if err != nil {
			return err
		}
		if begin == nil && len(ais) > 0 {
			if begin, err = componentTime(ais[0], 4, 1); err != nil {
				return err
			}
		}

		minutes, ok := atoi(o.Field(9))
		if !ok && len(ais) > 0 {
			minutes, ok = atoi(ais[0].Field(7))
		}
		if ok {
			a["minutesDuration"] = minutes
		}
		if begin != nil {
			a["start"] = instant(begin.Time)
			if finish == nil && ok {
				a["end"] = instant(begin.Time.Add(time.Duration(minutes) * time.Minute))
			}
		}
		if finish != nil {
			a["end"] = instant(finish.Time)
		}

		var services []interface{}
		for _, s := range ais {
			if cc := codeable(s, 3); cc != nil {
				services = append(services, cc)
			}
		}
		setIf(a, "serviceType", services)
		setIf(a, "comment", o.Field(6))

		var participants []interface{}
		if cctx.PatientID != "" {
			participants = append(participants, participant("Patient/"+cctx.PatientID, ""))
		}
		for _, aip := range Occurrences(acc, cctx, "AIP") {
			if ref := practitionerRef(cctx, datatype.XCN(aip.Segment, 3, 0)); ref != nil {
				participants = append(participants, participant(ref["reference"].(string), fhir.GetString(ref, "display")))
			}
		}
		for _, ail := range Occurrences(acc, cctx, "AIL") {
			if loc := locationFrom(ail, 3, cctx); loc != nil {
				b.Add(loc)
				participants = append(participants, participant(loc.Ref(), fhir.GetString(loc, "name")))
			}
		}
		if len(participants) == 0 {
			return o.SegmentErr("appointment has no participant")
		}
		a["participant"] = participants

		out = append(out, a)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// componentTime parses a TS held in one component of a field, or returns
// nil when it is absent.
func componentTime(o Occurrence, field, comp int) (*hl7v2.DateTime, error) {
	raw := o.Comp(field, comp)
	if raw == "" {
		return nil, nil
	}
	dt, err := hl7v2.ParseDateTime(raw)
	if err != nil {
		return nil, o.FieldErr(field, "invalid date/time %q", raw)
	}
	return &dt, nil
}

// instant renders Appointment.start/end, which must carry a time and zone.
func instant(t time.Time) string { return t.Format(time.RFC3339) }

func participant(ref, display string) map[string]interface{} {
	actor := map[string]interface{}{"reference": ref}
	setIf(actor, "display", display)
	return map[string]interface{}{"actor": actor, "status": "accepted"}
}
