// Package fhirtohl7 writes a FHIR bundle out as one HL7 v2 message. Each
// resource kind is served by one or more segment writers, dispatched through
// a capability table built once at startup.
package fhirtohl7

import (
	"fmt"
	"reflect"

	"github.com/ehr/hl7bridge/internal/mapping/convert"
	"github.com/ehr/hl7bridge/internal/mapping/detect"
	"github.com/ehr/hl7bridge/internal/platform/fhir"
)

// SegmentWriter turns one resource into segments of the message in progress.
// A resource kind may be served by several writers; each decides through
// CanConvert whether it has something to write.
type SegmentWriter interface {
	Name() string
	ResourceTypes() []string
	CanConvert(res fhir.Resource) bool
	Convert(res fhir.Resource, out *MessageBuilder, acc Accessor) error
}

// Accessor gives writers read access to the rest of the bundle.
type Accessor interface {
	// Resolve follows a reference by "Type/id" or fullUrl.
	Resolve(ref string) fhir.Resource
	ResourcesOfType(resourceType string) []fhir.Resource
	// ReportedBy returns the DiagnosticReport listing obs among its results.
	ReportedBy(obs fhir.Resource) fhir.Resource
	MessageType() detect.MessageType
	// Warn records a non-fatal problem with res.
	Warn(res fhir.Resource, format string, args ...interface{})
}

// Registry is the capability table: resource kind to the writers serving it,
// in registration order.
type Registry struct {
	writers []SegmentWriter
	byType  map[string][]SegmentWriter
}

// NewRegistry builds the table. Writers are invoked in the order given.
func NewRegistry(writers ...SegmentWriter) *Registry {
	r := &Registry{writers: writers, byType: map[string][]SegmentWriter{}}
	for _, w := range writers {
		for _, t := range w.ResourceTypes() {
			r.byType[t] = append(r.byType[t], w)
		}
	}
	return r
}

// DefaultRegistry registers every writer of this package.
func DefaultRegistry() *Registry {
	return NewRegistry(
		PIDWriter{},
		NK1Writer{},
		GT1Writer{},
		PV1Writer{},
		PV2Writer{},
		OBXWriter{},
		DG1Writer{},
		AL1Writer{},
		PR1Writer{},
		IN1Writer{},
		ServiceRequestWriter{},
		DiagnosticReportWriter{},
		RXEWriter{},
		RXAWriter{},
		ImmunizationWriter{},
		SCHWriter{},
		ResourcesWriter{},
		TXAWriter{},
	)
}

// For returns the writers registered for a resource kind.
func (r *Registry) For(resourceType string) []SegmentWriter {
	return r.byType[resourceType]
}

// Types lists every resource kind with at least one writer.
func (r *Registry) Types() []string {
	out := make([]string, 0, len(r.byType))
	for _, w := range r.writers {
		for _, t := range w.ResourceTypes() {
			if len(r.byType[t]) > 0 && !contains(out, t) {
				out = append(out, t)
			}
		}
	}
	return out
}

// Kinds never warned about: supporting kinds are read through references,
// consumed kinds feed the header and audit.
var (
	supportingKinds = map[string]bool{"Practitioner": true, "PractitionerRole": true, "Organization": true, "Location": true}
	consumedKinds   = map[string]bool{"MessageHeader": true, "Provenance": true}
)

// bundleAccessor implements Accessor over one parsed bundle.
type bundleAccessor struct {
	bundle *fhir.Bundle
	mt     detect.MessageType
	cctx   *convert.Context
	// reports maps an Observation (by map identity) to the report carrying it.
	reports map[uintptr]fhir.Resource
}

func newAccessor(b *fhir.Bundle, mt detect.MessageType, cctx *convert.Context) *bundleAccessor {
	a := &bundleAccessor{bundle: b, mt: mt, cctx: cctx, reports: map[uintptr]fhir.Resource{}}
	for _, dr := range b.ResourcesOfType("DiagnosticReport") {
		for _, ref := range fhir.GetArray(dr, "result") {
			if obs := b.Resolve(fhir.GetString(ref, "reference")); obs != nil {
				if _, seen := a.reports[identity(obs)]; !seen {
					a.reports[identity(obs)] = dr
				}
			}
		}
	}
	return a
}

func (a *bundleAccessor) Resolve(ref string) fhir.Resource { return a.bundle.Resolve(ref) }

func (a *bundleAccessor) ResourcesOfType(t string) []fhir.Resource {
	return a.bundle.ResourcesOfType(t)
}

func (a *bundleAccessor) ReportedBy(obs fhir.Resource) fhir.Resource {
	return a.reports[identity(obs)]
}

func (a *bundleAccessor) MessageType() detect.MessageType { return a.mt }

func (a *bundleAccessor) Warn(res fhir.Resource, format string, args ...interface{}) {
	a.cctx.AddIssue(convert.Issue{
		Code:         convert.CodeWarning,
		Message:      fmt.Sprintf(format, args...),
		Severity:     convert.SeverityWarning,
		ResourceType: res.Type(),
		ResourceID:   res.ID(),
	})
}

// identity keys a resource by its map header, so entries without an id are
// still told apart.
func identity(r fhir.Resource) uintptr {
	return reflect.ValueOf(r).Pointer()
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
