package fhirtohl7

import (
	"strconv"

	"github.com/ehr/hl7bridge/internal/mapping/datatype"
	"github.com/ehr/hl7bridge/internal/mapping/tables"
	"github.com/ehr/hl7bridge/internal/platform/fhir"
	"github.com/ehr/hl7bridge/internal/platform/hl7v2"
	fm "github.com/ehr/hl7bridge/pkg/fhirmodels"
)

// IN1Writer writes Coverages as IN1, reading the insurer from the payor.
type IN1Writer struct{}

func (IN1Writer) Name() string                  { return "IN1" }
func (IN1Writer) ResourceTypes() []string       { return []string{"Coverage"} }
func (IN1Writer) CanConvert(fhir.Resource) bool { return true }

func (IN1Writer) Convert(cov fhir.Resource, out *MessageBuilder, acc Accessor) error {
	payorRef := fhir.First(cov, "payor")
	payor := acc.Resolve(fhir.GetString(payorRef, "reference"))
	payorName := fhir.GetString(payor, "name")
	if payorName == "" {
		payorName = fhir.GetString(payorRef, "display")
	}
	payorID := fhir.First(payor, "identifier")
	if payorName == "" && payorID == nil {
		return errMissing(cov, "payor")
	}

	in1 := hl7v2.NewSegment("IN1")
	for _, class := range fhir.GetArray(cov, "class") {
		switch fhir.Code(class, "type") {
		case "plan":
			in1.SetComponents(2, 0, fhir.GetString(class, "value"), fhir.GetString(class, "name"))
		case "group":
			in1.Set(8, 0, 1, 1, fhir.GetString(class, "value"))
			in1.Set(9, 0, 1, 1, fhir.GetString(class, "name"))
		}
	}
	if payorID != nil {
		datatype.SetCX(in1, 3, 0, payorID)
	}
	in1.Set(4, 0, 1, 1, payorName)
	datatype.SetXAD(in1, 5, 0, fhir.First(payor, "address"))
	datatype.SetTelecoms(in1, 7, fhir.GetArray(payor, "telecom"), nil)

	p := fhir.GetMap(cov, "period")
	setTS(in1, 12, 1, fhir.GetString(p, "start"), cov, acc)
	setTS(in1, 13, 1, fhir.GetString(p, "end"), cov, acc)
	if t := fhir.GetMap(cov, "type"); t != nil {
		datatype.SetCWE(in1, 15, 0, t)
	}

	if sub := acc.Resolve(fhir.GetString(fhir.GetMap(cov, "subscriber"), "reference")); sub != nil {
		datatype.SetXPN(in1, 16, 0, fhir.First(sub, "name"))
	}
	if rel := fhir.GetMap(cov, "relationship"); rel != nil {
		code := ""
		if c := fhir.CodingWithSystem(rel, fm.SystemSubscriberRel); c != nil {
			code, _ = tables.SubscriberRelationship.ToV2(fhir.GetString(c, "code"))
		}
		if code == "" {
			code = tableCode(tables.SubscriberRelationship, rel)
		}
		in1.Set(17, 0, 1, 1, code)
	}
	if n, ok := fhir.GetNumber(cov, "order"); ok {
		in1.Set(22, 0, 1, 1, strconv.Itoa(int(n)))
	}

	member := ""
	for _, id := range fhir.GetArray(cov, "identifier") {
		if fhir.Code(id, "type") == "MB" || member == "" {
			member = fhir.GetString(id, "value")
		}
	}
	subscriberID := fhir.GetString(cov, "subscriberId")
	if member == "" {
		member = subscriberID
	}
	in1.Set(36, 0, 1, 1, member)
	if subscriberID != "" && subscriberID != member {
		in1.Set(49, 0, 1, 1, subscriberID)
	}

	out.Add(in1)
	return nil
}
