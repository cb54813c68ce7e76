package hl7tofhir

import (
	"strings"
	"time"

	"github.com/ehr/hl7bridge/internal/mapping/convert"
	"github.com/ehr/hl7bridge/internal/platform/fhir"
)

// ProvenanceConverter records which message produced the bundle. It runs
// last and targets every entry added before it.
type ProvenanceConverter struct {
	Now func() time.Time
}

func (ProvenanceConverter) Name() string { return "Provenance" }

func (p ProvenanceConverter) Convert(acc Accessor, b *BundleBuilder, cctx *convert.Context) ([]fhir.Resource, error) {
	entries := b.Entries()
	if len(entries) == 0 || cctx.Raw == nil {
		return nil, nil
	}
	targets := make([]string, 0, len(entries))
	for _, r := range entries {
		targets = append(targets, r.Ref())
	}

	recorded := cctx.Raw.Timestamp
	if recorded.IsZero() {
		if p.Now != nil {
			recorded = p.Now()
		} else {
			recorded = time.Now().UTC()
		}
	}

	agent := strings.Trim(cctx.Raw.SendingApp+"^"+cctx.Raw.SendingFac, "^")
	if agent == "" {
		agent = "unknown sender"
	}
	rec := fhir.ProvenanceRecord{
		ID:              cctx.NewID(),
		Targets:         targets,
		Recorded:        recorded,
		AgentDisplay:    agent,
		AgentType:       "author",
		ActivityCode:    "CREATE",
		ActivityDisplay: "create",
		SourceID:        cctx.Raw.ControlID,
		SourceDisplay:   cctx.Raw.Type + "^" + cctx.Raw.Trigger,
		Reason:          "HL7 v2 to FHIR conversion",
	}
	return []fhir.Resource{rec.ToFHIR()}, nil
}
