package fhirmodels

// FHIR R4 value set constants and code system URIs shared by the converters.

// Code system URIs.
const (
	SystemLOINC           = "http://loinc.org"
	SystemSNOMED          = "http://snomed.info/sct"
	SystemICD10CM         = "http://hl7.org/fhir/sid/icd-10-cm"
	SystemICD9CM          = "http://hl7.org/fhir/sid/icd-9-cm"
	SystemRxNorm          = "http://www.nlm.nih.gov/research/umls/rxnorm"
	SystemCVX             = "http://hl7.org/fhir/sid/cvx"
	SystemMVX             = "http://hl7.org/fhir/sid/mvx"
	SystemNDC             = "http://hl7.org/fhir/sid/ndc"
	SystemCPT             = "http://www.ama-assn.org/go/cpt"
	SystemUCUM            = "http://unitsofmeasure.org"
	SystemV2Prefix        = "http://terminology.hl7.org/CodeSystem/v2-"
	SystemActCode         = "http://terminology.hl7.org/CodeSystem/v3-ActCode"
	SystemMaritalStatus   = "http://terminology.hl7.org/CodeSystem/v3-MaritalStatus"
	SystemRoleCode        = "http://terminology.hl7.org/CodeSystem/v3-RoleCode"
	SystemInterpretation  = "http://terminology.hl7.org/CodeSystem/v3-ObservationInterpretation"
	SystemParticipantType = "http://terminology.hl7.org/CodeSystem/v3-ParticipationType"
	SystemObsCategory     = "http://terminology.hl7.org/CodeSystem/observation-category"
	SystemCondCategory    = "http://terminology.hl7.org/CodeSystem/condition-category"
	SystemCondClinical    = "http://terminology.hl7.org/CodeSystem/condition-clinical"
	SystemCondVerStatus   = "http://terminology.hl7.org/CodeSystem/condition-ver-status"
	SystemAllergyClinical = "http://terminology.hl7.org/CodeSystem/allergyintolerance-clinical"
	SystemAllergyVer      = "http://terminology.hl7.org/CodeSystem/allergyintolerance-verification"
	SystemSubscriberRel   = "http://terminology.hl7.org/CodeSystem/subscriber-relationship"
	SystemCoverageClass   = "http://terminology.hl7.org/CodeSystem/coverage-class"
	SystemIdentifierType  = "http://terminology.hl7.org/CodeSystem/v2-0203"
	SystemLanguage        = "urn:ietf:bcp:47"
)

// EncounterStatus values per FHIR R4.
const (
	EncounterStatusPlanned        = "planned"
	EncounterStatusArrived        = "arrived"
	EncounterStatusInProgress     = "in-progress"
	EncounterStatusFinished       = "finished"
	EncounterStatusCancelled      = "cancelled"
	EncounterStatusEnteredInError = "entered-in-error"
	EncounterStatusUnknown        = "unknown"
)

// EncounterClass codes per FHIR R4 v3-ActCode.
const (
	EncounterClassAmbulatory   = "AMB"
	EncounterClassEmergency    = "EMER"
	EncounterClassInpatient    = "IMP"
	EncounterClassShortStay    = "SS"
	EncounterClassVirtual      = "VR"
	EncounterClassHomeHealth   = "HH"
	EncounterClassObstetric    = "OBSENC"
	EncounterClassAcute        = "ACUTE"
	EncounterClassNonAcute     = "NONAC"
	EncounterClassPreAdmission = "PRENC"
)

// ParticipantType codes.
const (
	ParticipantAttender   = "ATND"
	ParticipantAdmitter   = "ADM"
	ParticipantConsultant = "CON"
	ParticipantReferrer   = "REF"
)

// ObservationCategory codes.
const (
	ObsCategoryVitalSigns = "vital-signs"
	ObsCategoryLaboratory = "laboratory"
	ObsCategoryImaging    = "imaging"
)

// Condition statuses and categories.
const (
	ConditionActive                  = "active"
	ConditionInactive                = "inactive"
	ConditionResolved                = "resolved"
	ConditionConfirmed               = "confirmed"
	ConditionProvisional             = "provisional"
	ConditionDifferential            = "differential"
	ConditionEncounterDx             = "encounter-diagnosis"
	ConditionProblemListItem         = "problem-list-item"
	ConditionEnteredInError          = "entered-in-error"
	ConditionVerificationUnconfirmed = "unconfirmed"
)

// AdministrativeGender codes.
const (
	GenderMale    = "male"
	GenderFemale  = "female"
	GenderOther   = "other"
	GenderUnknown = "unknown"
)

// AllergyIntolerance categories and criticality.
const (
	AllergyCategoryFood        = "food"
	AllergyCategoryMedication  = "medication"
	AllergyCategoryEnvironment = "environment"
	AllergyCategoryBiologic    = "biologic"
	AllergyCriticalityLow      = "low"
	AllergyCriticalityHigh     = "high"
	AllergySeverityMild        = "mild"
	AllergySeverityModerate    = "moderate"
	AllergySeveritySevere      = "severe"
)

// Request status, intent and priority (MedicationRequest, ServiceRequest).
const (
	RequestStatusDraft     = "draft"
	RequestStatusActive    = "active"
	RequestStatusOnHold    = "on-hold"
	RequestStatusRevoked   = "revoked"
	RequestStatusCompleted = "completed"
	RequestStatusStopped   = "stopped"
	RequestStatusCancelled = "cancelled"
	RequestStatusUnknown   = "unknown"
	RequestIntentOrder     = "order"
	PriorityRoutine        = "routine"
	PriorityUrgent         = "urgent"
	PriorityASAP           = "asap"
	PriorityStat           = "stat"
)

// DiagnosticReport and Observation status codes.
const (
	ReportStatusRegistered     = "registered"
	ReportStatusPartial        = "partial"
	ReportStatusPreliminary    = "preliminary"
	ReportStatusFinal          = "final"
	ReportStatusAmended        = "amended"
	ReportStatusCorrected      = "corrected"
	ReportStatusCancelled      = "cancelled"
	ReportStatusEnteredInError = "entered-in-error"
	ReportStatusUnknown        = "unknown"
)

// Event status codes (Procedure, MedicationAdministration, Immunization).
const (
	EventStatusInProgress = "in-progress"
	EventStatusNotDone    = "not-done"
	EventStatusStopped    = "stopped"
	EventStatusCompleted  = "completed"
	EventStatusUnknown    = "unknown"
)

// AppointmentStatus codes.
const (
	AppointmentProposed       = "proposed"
	AppointmentPending        = "pending"
	AppointmentBooked         = "booked"
	AppointmentArrived        = "arrived"
	AppointmentFulfilled      = "fulfilled"
	AppointmentCancelled      = "cancelled"
	AppointmentNoShow         = "noshow"
	AppointmentWaitlist       = "waitlist"
	AppointmentEnteredInError = "entered-in-error"
)

// DocumentReference statuses.
const (
	DocumentStatusCurrent    = "current"
	DocumentStatusSuperseded = "superseded"
	DocStatusPreliminary     = "preliminary"
	DocStatusFinal           = "final"
	DocStatusAmended         = "amended"
)
