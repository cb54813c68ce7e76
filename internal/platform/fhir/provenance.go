package fhir

import (
	"time"
)

const (
	ProvenanceParticipantTypeSystem = "http://terminology.hl7.org/CodeSystem/provenance-participant-type"
	DataOperationSystem             = "http://terminology.hl7.org/CodeSystem/v3-DataOperation"
	ProvenanceEntityRoleSource      = "source"
)

// ProvenanceRecord holds the data for a Provenance resource that records
// which message produced a set of resources.
type ProvenanceRecord struct {
	ID              string
	Targets         []string
	Recorded        time.Time
	AgentDisplay    string
	AgentType       string
	ActivityCode    string
	ActivityDisplay string
	SourceID        string // identifier of the source message
	SourceDisplay   string
	Reason          string
}

// ToFHIR converts the record to a Provenance resource.
func (r ProvenanceRecord) ToFHIR() Resource {
	targets := make([]map[string]interface{}, 0, len(r.Targets))
	for _, t := range r.Targets {
		targets = append(targets, map[string]interface{}{"reference": t})
	}

	result := Resource{
		"resourceType": "Provenance",
		"id":           r.ID,
		"target":       targets,
		"recorded":     r.Recorded.Format(time.RFC3339),
		"agent": []map[string]interface{}{
			{
				"type": map[string]interface{}{
					"coding": []map[string]interface{}{
						{
							"system":  ProvenanceParticipantTypeSystem,
							"code":    r.AgentType,
							"display": r.AgentType,
						},
					},
				},
				"who": map[string]interface{}{
					"display": r.AgentDisplay,
				},
			},
		},
		"activity": map[string]interface{}{
			"coding": []map[string]interface{}{
				{
					"system":  DataOperationSystem,
					"code":    r.ActivityCode,
					"display": r.ActivityDisplay,
				},
			},
		},
	}

	if r.SourceID != "" {
		result["entity"] = []map[string]interface{}{
			{
				"role": ProvenanceEntityRoleSource,
				"what": map[string]interface{}{
					"identifier": map[string]interface{}{"value": r.SourceID},
					"display":    r.SourceDisplay,
				},
			},
		}
	}
	if r.Reason != "" {
		result["reason"] = []map[string]interface{}{
			{"text": r.Reason},
		}
	}
	return result
}
