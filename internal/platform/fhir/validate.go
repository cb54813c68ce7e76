package fhir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"

	fm "github.com/samply/golang-fhir-models/fhir-models/fhir"
)

// structuralTypes maps resourceType to the typed R4 model used for
// structural checks. Types not listed pass through unchecked.
var structuralTypes = map[string]reflect.Type{
	"Patient":                  reflect.TypeOf(fm.Patient{}),
	"Practitioner":             reflect.TypeOf(fm.Practitioner{}),
	"Organization":             reflect.TypeOf(fm.Organization{}),
	"Location":                 reflect.TypeOf(fm.Location{}),
	"RelatedPerson":            reflect.TypeOf(fm.RelatedPerson{}),
	"Encounter":                reflect.TypeOf(fm.Encounter{}),
	"Observation":              reflect.TypeOf(fm.Observation{}),
	"Condition":                reflect.TypeOf(fm.Condition{}),
	"AllergyIntolerance":       reflect.TypeOf(fm.AllergyIntolerance{}),
	"MedicationRequest":        reflect.TypeOf(fm.MedicationRequest{}),
	"MedicationAdministration": reflect.TypeOf(fm.MedicationAdministration{}),
	"Procedure":                reflect.TypeOf(fm.Procedure{}),
	"ServiceRequest":           reflect.TypeOf(fm.ServiceRequest{}),
	"DiagnosticReport":         reflect.TypeOf(fm.DiagnosticReport{}),
	"Immunization":             reflect.TypeOf(fm.Immunization{}),
	"Appointment":              reflect.TypeOf(fm.Appointment{}),
	"Coverage":                 reflect.TypeOf(fm.Coverage{}),
	"DocumentReference":        reflect.TypeOf(fm.DocumentReference{}),
	"Provenance":               reflect.TypeOf(fm.Provenance{}),
	"MessageHeader":            reflect.TypeOf(fm.MessageHeader{}),
}

// StructuralProblem describes one resource that did not decode into its
// typed R4 model.
type StructuralProblem struct {
	ResourceType string
	ID           string
	Detail       string
}

func (p StructuralProblem) String() string {
	return fmt.Sprintf("%s/%s: %s", p.ResourceType, p.ID, p.Detail)
}

// ValidateStructure decodes r into the typed R4 model for its resourceType,
// rejecting unknown elements and out-of-value-set codes. It is a structural
// check only; cardinality and profiles are not enforced.
func ValidateStructure(r Resource) *StructuralProblem {
	t, ok := structuralTypes[r.Type()]
	if !ok {
		return nil
	}

	body := make(map[string]interface{}, len(r))
	for k, v := range r {
		if k != "resourceType" {
			body[k] = v
		}
	}
	data, err := json.Marshal(body)
	if err != nil {
		return &StructuralProblem{ResourceType: r.Type(), ID: r.ID(), Detail: err.Error()}
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(reflect.New(t).Interface()); err != nil {
		return &StructuralProblem{ResourceType: r.Type(), ID: r.ID(), Detail: err.Error()}
	}
	return nil
}

// ValidateBundle checks every entry resource and returns the problems found.
func ValidateBundle(b *Bundle) []StructuralProblem {
	var problems []StructuralProblem
	for _, e := range b.Entry {
		if e.Resource == nil {
			continue
		}
		if p := ValidateStructure(e.Resource); p != nil {
			problems = append(problems, *p)
		}
	}
	return problems
}
