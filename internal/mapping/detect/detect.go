// Package detect chooses the HL7 message structure for an outbound bundle
// and reads the event of an inbound message.
package detect

import (
	"regexp"
	"strings"

	"github.com/ehr/hl7bridge/internal/mapping/tables"
	"github.com/ehr/hl7bridge/internal/platform/fhir"
	"github.com/ehr/hl7bridge/internal/platform/hl7v2"
	fm "github.com/ehr/hl7bridge/pkg/fhirmodels"
)

// How an outbound message type was chosen.
const (
	SourceMessageHeader = "message-header"
	SourceContent       = "content"
	SourceDefault       = "default"
)

// MessageType is the chosen outbound structure.
type MessageType struct {
	Code      string
	Trigger   string
	Structure string
	Source    string
}

// String renders "ADT^A01".
func (m MessageType) String() string { return m.Code + "^" + m.Trigger }

var (
	adtTrigger = regexp.MustCompile(`A\d\d`)

	// headerRules are tried in order against the MessageHeader event.
	headerRules = []struct {
		needles []string
		mt      MessageType
	}{
		{[]string{"ORU", "R01"}, MessageType{Code: "ORU", Trigger: "R01", Structure: "ORU_R01"}},
		{[]string{"ORM", "O01"}, MessageType{Code: "ORM", Trigger: "O01", Structure: "ORM_O01"}},
		{[]string{"SIU", "S12"}, MessageType{Code: "SIU", Trigger: "S12", Structure: "SIU_S12"}},
		{[]string{"MDM", "T02"}, MessageType{Code: "MDM", Trigger: "T02", Structure: "MDM_T02"}},
		{[]string{"ADT"}, MessageType{Code: "ADT", Structure: "ADT_A01"}},
	}

	// contentRules are tried in order against the bundle's resource types.
	contentRules = []struct {
		types []string
		mt    MessageType
	}{
		{[]string{"DiagnosticReport"}, MessageType{Code: "ORU", Trigger: "R01", Structure: "ORU_R01"}},
		{[]string{"DocumentReference"}, MessageType{Code: "MDM", Trigger: "T02", Structure: "MDM_T02"}},
		{[]string{"Appointment"}, MessageType{Code: "SIU", Trigger: "S12", Structure: "SIU_S12"}},
		{[]string{"ServiceRequest", "MedicationRequest", "CarePlan"}, MessageType{Code: "ORM", Trigger: "O01", Structure: "ORM_O01"}},
		{[]string{"Patient", "Encounter"}, MessageType{Code: "ADT", Structure: "ADT_A01"}},
	}
)

// Outbound picks the message type for a bundle: the MessageHeader event
// first, then a fixed precedence over the resource types present, else ADT.
func Outbound(b *fhir.Bundle) MessageType {
	present := map[string]bool{}
	var header fhir.Resource
	for _, r := range b.Resources() {
		present[r.Type()] = true
		if header == nil && r.Type() == "MessageHeader" {
			header = r
		}
	}

	if header != nil {
		event := strings.ToUpper(fhir.GetString(fhir.GetMap(header, "eventCoding"), "code"))
		if event == "" {
			event = strings.ToUpper(fhir.GetString(header, "eventUri"))
		}
		if event != "" {
			for _, rule := range headerRules {
				if containsAny(event, rule.needles) {
					mt := rule.mt
					mt.Source = SourceMessageHeader
					if mt.Code == "ADT" {
						mt.Trigger = adtTriggerFor(event, b)
					}
					return mt
				}
			}
			if trig := adtTrigger.FindString(event); trig != "" {
				return MessageType{Code: "ADT", Trigger: trig, Structure: "ADT_A01", Source: SourceMessageHeader}
			}
		}
	}

	for _, rule := range contentRules {
		for _, t := range rule.types {
			if present[t] {
				mt := rule.mt
				mt.Source = SourceContent
				if mt.Code == "ADT" {
					mt.Trigger = adtTriggerFor("", b)
				}
				return mt
			}
		}
	}
	return MessageType{Code: "ADT", Trigger: adtTriggerFor("", b), Structure: "ADT_A01", Source: SourceDefault}
}

// adtTriggerFor takes the trigger from the event code when it names one,
// else derives it from the first Encounter's status.
func adtTriggerFor(event string, b *fhir.Bundle) string {
	if trig := adtTrigger.FindString(event); trig != "" {
		return trig
	}
	encounters := b.ResourcesOfType("Encounter")
	if len(encounters) == 0 {
		return "A04"
	}
	switch fhir.GetString(encounters[0], "status") {
	case fm.EncounterStatusFinished:
		return "A03"
	case fm.EncounterStatusPlanned:
		return "A05"
	}
	return "A01"
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// Event is the inbound message event.
type Event struct {
	Code      string
	Trigger   string
	Structure string
}

// Inbound reads MSH-9 and resolves the structure descriptor id.
func Inbound(m *hl7v2.Message) Event {
	return Event{Code: m.Type, Trigger: m.Trigger, Structure: m.Structure().ID}
}

// EncounterStatus maps an ADT trigger to Encounter.status, defaulting to
// in-progress.
func EncounterStatus(trigger string) string {
	return tables.EncounterStatusForTrigger(trigger)
}
