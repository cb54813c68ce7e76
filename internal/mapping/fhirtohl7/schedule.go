package fhirtohl7

import (
	"strconv"

	"github.com/ehr/hl7bridge/internal/mapping/datatype"
	"github.com/ehr/hl7bridge/internal/mapping/tables"
	"github.com/ehr/hl7bridge/internal/platform/fhir"
	"github.com/ehr/hl7bridge/internal/platform/hl7v2"
)

// SCHWriter writes the first Appointment as SCH.
type SCHWriter struct{}

func (SCHWriter) Name() string                  { return "SCH" }
func (SCHWriter) ResourceTypes() []string       { return []string{"Appointment"} }
func (SCHWriter) CanConvert(fhir.Resource) bool { return true }

func (SCHWriter) Convert(appt fhir.Resource, out *MessageBuilder, acc Accessor) error {
	if out.Count("SCH") > 0 {
		acc.Warn(appt, "only one appointment is carried per message")
		return nil
	}
	sch := hl7v2.NewSegment("SCH")
	placer, filler := orderNumbers(appt)
	datatype.SetEI(sch, 1, placer)
	datatype.SetEI(sch, 2, filler)
	sch.Set(6, 0, 1, 1, fhir.GetString(appt, "comment"))
	if reason := fhir.First(appt, "reasonCode"); reason != nil {
		datatype.SetCWE(sch, 7, 0, reason)
	}
	datatype.SetCWE(sch, 8, 0, fhir.GetMap(appt, "appointmentType"))
	if n, ok := fhir.GetNumber(appt, "minutesDuration"); ok {
		sch.Set(9, 0, 1, 1, strconv.Itoa(int(n)))
		sch.Set(10, 0, 1, 1, "min")
	}
	setTS(sch, 11, 4, fhir.GetString(appt, "start"), appt, acc)
	setTS(sch, 11, 5, fhir.GetString(appt, "end"), appt, acc)
	if s, ok := tables.FillerStatus.ToV2(fhir.GetString(appt, "status")); ok {
		sch.Set(25, 0, 1, 1, s)
	}
	out.Add(sch)
	return nil
}

// ResourcesWriter writes the scheduled resources of an Appointment as a
// RESOURCES group: RGS, then AIS for the service, AIP per practitioner and
// AIL per location.
type ResourcesWriter struct{}

func (ResourcesWriter) Name() string            { return "RGS/AIS/AIP/AIL" }
func (ResourcesWriter) ResourceTypes() []string { return []string{"Appointment"} }

func (ResourcesWriter) CanConvert(appt fhir.Resource) bool {
	if len(fhir.GetArray(appt, "serviceType")) > 0 {
		return true
	}
	for _, p := range fhir.GetArray(appt, "participant") {
		if kind, _ := fhir.SplitReference(fhir.GetString(fhir.GetMap(p, "actor"), "reference")); kind == "Practitioner" || kind == "Location" {
			return true
		}
	}
	return false
}

func (ResourcesWriter) Convert(appt fhir.Resource, out *MessageBuilder, acc Accessor) error {
	if out.Count("RGS") > 0 {
		return nil
	}
	g := out.NewGroup("RESOURCES")
	g.Add(hl7v2.NewSegment("RGS"))

	start := fhir.GetString(appt, "start")
	minutes, hasMinutes := fhir.GetNumber(appt, "minutesDuration")
	for _, st := range fhir.GetArray(appt, "serviceType") {
		ais := hl7v2.NewSegment("AIS")
		datatype.SetCWE(ais, 3, 0, st)
		setTS(ais, 4, 1, start, appt, acc)
		if hasMinutes {
			ais.Set(7, 0, 1, 1, strconv.Itoa(int(minutes)))
			ais.Set(8, 0, 1, 1, "min")
		}
		g.Add(ais)
	}

	for _, p := range fhir.GetArray(appt, "participant") {
		actor := fhir.GetMap(p, "actor")
		kind, _ := fhir.SplitReference(fhir.GetString(actor, "reference"))
		switch kind {
		case "Practitioner", "PractitionerRole":
			aip := hl7v2.NewSegment("AIP")
			if setPerson(aip, 3, 0, actor, acc) {
				setTS(aip, 6, 1, start, appt, acc)
				g.Add(aip)
			}
		case "Location":
			ail := hl7v2.NewSegment("AIL")
			setPointOfCare(ail, 3, actor, acc)
			if len(ail.Fields) >= 3 {
				setTS(ail, 6, 1, start, appt, acc)
				g.Add(ail)
			}
		}
	}
	return nil
}
