// Package tables holds the HL7 v2 table to FHIR value set mappings used in
// both conversion directions.
package tables

import (
	"strings"

	fm "github.com/ehr/hl7bridge/pkg/fhirmodels"
)

// CodeMap is a bidirectional code table. Lookups are case-insensitive on the
// v2 side. Reverse entries override the inverted forward map when several
// v2 codes share a FHIR code.
type CodeMap struct {
	name    string
	forward map[string]string
	reverse map[string]string
}

// NewCodeMap builds a table from a v2 to FHIR map and explicit reverse
// overrides. FHIR codes not covered by overrides map back to the first v2
// code (in sorted order) that produces them.
func NewCodeMap(name string, forward map[string]string, reverse map[string]string) *CodeMap {
	cm := &CodeMap{
		name:    name,
		forward: make(map[string]string, len(forward)),
		reverse: make(map[string]string, len(forward)),
	}
	for k, v := range forward {
		cm.forward[strings.ToUpper(k)] = v
	}
	for k, v := range forward {
		if cur, ok := cm.reverse[v]; !ok || k < cur {
			cm.reverse[v] = k
		}
	}
	for k, v := range reverse {
		cm.reverse[k] = v
	}
	return cm
}

// Name returns the table name.
func (c *CodeMap) Name() string { return c.name }

// ToFHIR maps a v2 code.
func (c *CodeMap) ToFHIR(v2 string) (string, bool) {
	v, ok := c.forward[strings.ToUpper(strings.TrimSpace(v2))]
	return v, ok
}

// ToV2 maps a FHIR code.
func (c *CodeMap) ToV2(code string) (string, bool) {
	v, ok := c.reverse[strings.TrimSpace(code)]
	return v, ok
}

// ToFHIROr maps a v2 code, returning def when it is unknown.
func (c *CodeMap) ToFHIROr(v2, def string) string {
	if v, ok := c.ToFHIR(v2); ok {
		return v
	}
	return def
}

// ToV2Or maps a FHIR code, returning def when it is unknown.
func (c *CodeMap) ToV2Or(code, def string) string {
	if v, ok := c.ToV2(code); ok {
		return v
	}
	return def
}

// Gender is HL7 table 0001 against AdministrativeGender.
var Gender = NewCodeMap("0001", map[string]string{
	"M": fm.GenderMale,
	"F": fm.GenderFemale,
	"O": fm.GenderOther,
	"A": fm.GenderOther,
	"N": fm.GenderOther,
	"U": fm.GenderUnknown,
}, map[string]string{
	fm.GenderOther: "O",
})

// MaritalStatus is HL7 table 0002 against v3-MaritalStatus.
var MaritalStatus = NewCodeMap("0002", map[string]string{
	"S": "S",
	"M": "M",
	"D": "D",
	"W": "W",
	"A": "L",
	"E": "L",
	"N": "A",
	"I": "I",
	"P": "T",
	"R": "T",
	"C": "T",
	"G": "T",
	"B": "U",
	"U": "UNK",
	"T": "UNK",
}, map[string]string{
	"L":   "E",
	"A":   "N",
	"T":   "P",
	"U":   "B",
	"UNK": "U",
})

// PatientClass is HL7 table 0004 against v3-ActCode encounter classes.
var PatientClass = NewCodeMap("0004", map[string]string{
	"E": fm.EncounterClassEmergency,
	"I": fm.EncounterClassInpatient,
	"O": fm.EncounterClassAmbulatory,
	"P": fm.EncounterClassPreAdmission,
	"R": fm.EncounterClassAmbulatory,
	"B": fm.EncounterClassObstetric,
}, map[string]string{
	fm.EncounterClassAmbulatory: "O",
	fm.EncounterClassShortStay:  "O",
	fm.EncounterClassVirtual:    "O",
	fm.EncounterClassHomeHealth: "O",
	fm.EncounterClassAcute:      "I",
	fm.EncounterClassNonAcute:   "I",
})

// AllergenType is HL7 table 0127 against AllergyIntolerance.category.
var AllergenType = NewCodeMap("0127", map[string]string{
	"DA": fm.AllergyCategoryMedication,
	"FA": fm.AllergyCategoryFood,
	"EA": fm.AllergyCategoryEnvironment,
	"LA": fm.AllergyCategoryEnvironment,
	"AA": fm.AllergyCategoryEnvironment,
	"PA": fm.AllergyCategoryEnvironment,
	"MA": fm.AllergyCategoryMedication,
	"MC": fm.AllergyCategoryMedication,
}, map[string]string{
	fm.AllergyCategoryMedication:  "DA",
	fm.AllergyCategoryEnvironment: "EA",
	fm.AllergyCategoryBiologic:    "MA",
})

// AllergySeverity maps HL7 table 0128 (matched on its first two letters) to
// AllergyIntolerance reaction severity.
var AllergySeverity = NewCodeMap("0128", map[string]string{
	"SV": fm.AllergySeveritySevere,
	"SE": fm.AllergySeveritySevere,
	"MO": fm.AllergySeverityModerate,
	"MI": fm.AllergySeverityMild,
}, map[string]string{
	fm.AllergySeveritySevere: "SV",
})

// SeverityToFHIR accepts both the table codes and spelled-out severities
// ("SEVERE", "Moderate").
func SeverityToFHIR(v2 string) (string, bool) {
	v2 = strings.ToUpper(strings.TrimSpace(v2))
	if len(v2) < 2 {
		return "", false
	}
	return AllergySeverity.ToFHIR(v2[:2])
}

// DiagnosisType is HL7 table 0052 against Condition verificationStatus.
var DiagnosisType = NewCodeMap("0052", map[string]string{
	"A": fm.ConditionProvisional,
	"W": fm.ConditionProvisional,
	"F": fm.ConditionConfirmed,
}, map[string]string{
	fm.ConditionProvisional:             "W",
	fm.ConditionDifferential:            "W",
	fm.ConditionVerificationUnconfirmed: "W",
})

// OrderControl is HL7 table 0119 against request status.
var OrderControl = NewCodeMap("0119", map[string]string{
	"NW": fm.RequestStatusActive,
	"OK": fm.RequestStatusActive,
	"SC": fm.RequestStatusActive,
	"XO": fm.RequestStatusActive,
	"RE": fm.RequestStatusActive,
	"CA": fm.RequestStatusRevoked,
	"OC": fm.RequestStatusRevoked,
	"CR": fm.RequestStatusRevoked,
	"DC": fm.RequestStatusStopped,
	"OD": fm.RequestStatusStopped,
	"HD": fm.RequestStatusOnHold,
	"OH": fm.RequestStatusOnHold,
	"CM": fm.RequestStatusCompleted,
}, map[string]string{
	fm.RequestStatusActive:    "NW",
	fm.RequestStatusDraft:     "NW",
	fm.RequestStatusRevoked:   "CA",
	fm.RequestStatusCancelled: "CA",
	fm.RequestStatusStopped:   "DC",
	fm.RequestStatusOnHold:    "HD",
	fm.RequestStatusCompleted: "OK",
})

// OrderStatus is HL7 table 0038 (ORC-5) against request status.
var OrderStatus = NewCodeMap("0038", map[string]string{
	"IP": fm.RequestStatusActive,
	"SC": fm.RequestStatusActive,
	"A":  fm.RequestStatusActive,
	"CM": fm.RequestStatusCompleted,
	"CA": fm.RequestStatusRevoked,
	"DC": fm.RequestStatusStopped,
	"HD": fm.RequestStatusOnHold,
	"ER": fm.RequestStatusUnknown,
}, map[string]string{
	fm.RequestStatusActive:    "IP",
	fm.RequestStatusRevoked:   "CA",
	fm.RequestStatusCancelled: "CA",
})

// ResultStatus is HL7 table 0123 (OBR-25) against DiagnosticReport.status.
var ResultStatus = NewCodeMap("0123", map[string]string{
	"O": fm.ReportStatusRegistered,
	"I": fm.ReportStatusRegistered,
	"S": fm.ReportStatusPartial,
	"A": fm.ReportStatusPartial,
	"R": fm.ReportStatusPartial,
	"P": fm.ReportStatusPreliminary,
	"C": fm.ReportStatusCorrected,
	"F": fm.ReportStatusFinal,
	"X": fm.ReportStatusCancelled,
}, map[string]string{
	fm.ReportStatusRegistered:     "I",
	fm.ReportStatusPartial:        "A",
	fm.ReportStatusAmended:        "C",
	fm.ReportStatusEnteredInError: "X",
})

// ObservationResultStatus is HL7 table 0085 (OBX-11) against
// Observation.status.
var ObservationResultStatus = NewCodeMap("0085", map[string]string{
	"F": fm.ReportStatusFinal,
	"P": fm.ReportStatusPreliminary,
	"R": fm.ReportStatusPreliminary,
	"S": fm.ReportStatusPreliminary,
	"C": fm.ReportStatusCorrected,
	"X": fm.ReportStatusCancelled,
	"D": fm.ReportStatusEnteredInError,
	"W": fm.ReportStatusEnteredInError,
	"I": fm.ReportStatusRegistered,
}, map[string]string{
	fm.ReportStatusPreliminary:    "P",
	fm.ReportStatusEnteredInError: "W",
	fm.ReportStatusAmended:        "C",
})

// AbnormalFlag is HL7 table 0078 against v3-ObservationInterpretation.
var AbnormalFlag = NewCodeMap("0078", map[string]string{
	"H":  "H",
	"L":  "L",
	"HH": "HH",
	"LL": "LL",
	"N":  "N",
	"A":  "A",
	"AA": "AA",
	"<":  "<",
	">":  ">",
	"S":  "S",
	"R":  "R",
	"I":  "I",
}, nil)

// Priority is HL7 table 0027 (TQ1-9, ORC-7.6, OBR-27.6) against request
// priority.
var Priority = NewCodeMap("0027", map[string]string{
	"S":   fm.PriorityStat,
	"A":   fm.PriorityASAP,
	"R":   fm.PriorityRoutine,
	"T":   fm.PriorityUrgent,
	"P":   fm.PriorityRoutine,
	"C":   fm.PriorityUrgent,
	"PRN": fm.PriorityRoutine,
}, map[string]string{
	fm.PriorityRoutine: "R",
	fm.PriorityUrgent:  "T",
})

// CompletionStatus is HL7 table 0322 (RXA-20) against
// MedicationAdministration.status.
var CompletionStatus = NewCodeMap("0322", map[string]string{
	"CP": fm.EventStatusCompleted,
	"PA": fm.EventStatusStopped,
	"RE": fm.EventStatusNotDone,
	"NA": fm.EventStatusNotDone,
}, map[string]string{
	fm.EventStatusCompleted:  "CP",
	fm.EventStatusInProgress: "CP",
	fm.EventStatusNotDone:    "NA",
})

// ImmunizationStatus maps RXA-20 to Immunization.status, which has no
// stopped state.
var ImmunizationStatus = NewCodeMap("0322", map[string]string{
	"CP": fm.EventStatusCompleted,
	"PA": fm.EventStatusCompleted,
	"RE": fm.EventStatusNotDone,
	"NA": fm.EventStatusNotDone,
}, map[string]string{
	fm.EventStatusCompleted: "CP",
	fm.EventStatusNotDone:   "RE",
})

// FillerStatus is HL7 table 0278 (SCH-25) against Appointment.status.
var FillerStatus = NewCodeMap("0278", map[string]string{
	"BOOKED":    fm.AppointmentBooked,
	"OVERBOOK":  fm.AppointmentBooked,
	"CANCELLED": fm.AppointmentCancelled,
	"COMPLETE":  fm.AppointmentFulfilled,
	"NOSHOW":    fm.AppointmentNoShow,
	"PENDING":   fm.AppointmentPending,
	"WAITLIST":  fm.AppointmentWaitlist,
	"STARTED":   fm.AppointmentArrived,
	"DELETED":   fm.AppointmentEnteredInError,
	"BLOCKED":   fm.AppointmentBooked,
}, map[string]string{
	fm.AppointmentBooked:         "Booked",
	fm.AppointmentCancelled:      "Cancelled",
	fm.AppointmentFulfilled:      "Complete",
	fm.AppointmentNoShow:         "Noshow",
	fm.AppointmentPending:        "Pending",
	fm.AppointmentProposed:       "Pending",
	fm.AppointmentWaitlist:       "Waitlist",
	fm.AppointmentArrived:        "Started",
	fm.AppointmentEnteredInError: "Deleted",
})

// Relationship is HL7 table 0063 against v3-RoleCode, used by NK1 and GT1.
var Relationship = NewCodeMap("0063", map[string]string{
	"SEL": "ONESELF",
	"SPO": "SPS",
	"DOM": "DOMPART",
	"CHD": "CHILD",
	"PAR": "PRN",
	"MTH": "MTH",
	"FTH": "FTH",
	"SIB": "SIB",
	"BRO": "BRO",
	"SIS": "SIS",
	"GRD": "GUARD",
	"FND": "FRND",
	"EXF": "EXT",
	"GCH": "GRNDCHILD",
	"GRP": "GRPRN",
	"OTH": "O",
	"UNK": "U",
	"EMC": "ECON",
	"EME": "EMP",
	"ASC": "ASSOC",
}, nil)

// SubscriberRelationship is HL7 table 0063 against the FHIR
// subscriber-relationship codes used by Coverage.relationship.
var SubscriberRelationship = NewCodeMap("0063", map[string]string{
	"SEL": "self",
	"SPO": "spouse",
	"DOM": "common",
	"CHD": "child",
	"PAR": "parent",
	"MTH": "parent",
	"FTH": "parent",
	"OTH": "other",
	"UNK": "other",
}, map[string]string{
	"parent": "PAR",
	"other":  "OTH",
})

// NameType is HL7 table 0200 against HumanName.use.
var NameType = NewCodeMap("0200", map[string]string{
	"L": "official",
	"D": "usual",
	"M": "maiden",
	"N": "nickname",
	"A": "anonymous",
	"S": "anonymous",
	"T": "temp",
	"C": "old",
	"B": "old",
}, map[string]string{
	"anonymous": "A",
	"old":       "C",
})

// AddressType is HL7 table 0190 against Address.use.
var AddressType = NewCodeMap("0190", map[string]string{
	"H":  "home",
	"B":  "work",
	"O":  "work",
	"C":  "temp",
	"BA": "old",
	"M":  "home",
}, map[string]string{
	"home": "H",
	"work": "B",
})

// AddressKind is HL7 table 0190 against Address.type where the use does not
// carry the meaning.
var AddressKind = NewCodeMap("0190", map[string]string{
	"M":   "postal",
	"BDL": "physical",
}, nil)

// TelecomUse is HL7 table 0201 against ContactPoint.use.
var TelecomUse = NewCodeMap("0201", map[string]string{
	"PRN": "home",
	"ORN": "home",
	"VHN": "home",
	"WPN": "work",
	"BPN": "work",
	"EMR": "work",
	"ASN": "work",
	"NET": "home",
	"PRS": "mobile",
}, map[string]string{
	"home":   "PRN",
	"work":   "WPN",
	"mobile": "PRS",
	"temp":   "ORN",
	"old":    "ORN",
})

// TelecomEquipment is HL7 table 0202 against ContactPoint.system.
var TelecomEquipment = NewCodeMap("0202", map[string]string{
	"PH":       "phone",
	"CP":       "phone",
	"FX":       "fax",
	"INTERNET": "email",
	"X.400":    "email",
	"BP":       "pager",
	"MD":       "other",
	"TDD":      "other",
	"TTY":      "other",
}, map[string]string{
	"phone": "PH",
	"email": "Internet",
	"other": "MD",
	"url":   "Internet",
	"sms":   "CP",
})

// IdentifierType is HL7 table 0203. The FHIR side keeps the v2 code under the
// v2-0203 system, so only the display text is looked up.
var IdentifierType = NewCodeMap("0203", map[string]string{
	"MR":   "Medical record number",
	"PI":   "Patient internal identifier",
	"PT":   "Patient external identifier",
	"SS":   "Social Security number",
	"DL":   "Driver's license number",
	"PPN":  "Passport number",
	"AN":   "Account number",
	"VN":   "Visit number",
	"NPI":  "National provider identifier",
	"PRN":  "Provider number",
	"MB":   "Member number",
	"SN":   "Subscriber Number",
	"PLAC": "Placer Identifier",
	"FILL": "Filler Identifier",
}, nil)

// DocumentStatus is HL7 table 0271 (TXA-17) against
// DocumentReference.docStatus.
var DocumentStatus = NewCodeMap("0271", map[string]string{
	"AU": fm.DocStatusFinal,
	"LA": fm.DocStatusFinal,
	"DI": fm.DocStatusPreliminary,
	"DO": fm.DocStatusPreliminary,
	"IP": fm.DocStatusPreliminary,
	"IN": fm.DocStatusPreliminary,
	"PA": fm.DocStatusPreliminary,
	"AM": fm.DocStatusAmended,
}, map[string]string{
	fm.DocStatusFinal:       "AU",
	fm.DocStatusPreliminary: "IP",
	fm.DocStatusAmended:     "AU",
})

// EncounterStatusForTrigger derives Encounter.status from the ADT trigger
// event.
func EncounterStatusForTrigger(trigger string) string {
	switch strings.ToUpper(trigger) {
	case "A03":
		return fm.EncounterStatusFinished
	case "A05", "A14":
		return fm.EncounterStatusPlanned
	case "A11", "A27":
		return fm.EncounterStatusCancelled
	default:
		return fm.EncounterStatusInProgress
	}
}
