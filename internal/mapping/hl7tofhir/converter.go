// Package hl7tofhir converts parsed HL7 v2 messages into FHIR R4
// transaction bundles, one converter per clinical concept.
package hl7tofhir

import (
	"fmt"

	"github.com/ehr/hl7bridge/internal/mapping/convert"
	"github.com/ehr/hl7bridge/internal/mapping/datatype"
	"github.com/ehr/hl7bridge/internal/platform/fhir"
	"github.com/ehr/hl7bridge/internal/platform/hl7v2"
)

// Accessor is the path-addressed view of a message the converters read
// through. *hl7v2.Terser satisfies it.
type Accessor interface {
	Get(p hl7v2.Path) (string, bool)
	Segment(p hl7v2.Path) *hl7v2.Segment
	Set(p hl7v2.Path, value string) error
	HasGroup(name string, rep int) bool
	Structure() hl7v2.Structure
}

// Converter produces the resources for one clinical concept. Secondary
// resources (a Location for the point of care, a payor Organization) are
// added to the bundle directly; primary resources are returned.
type Converter interface {
	Name() string
	Convert(acc Accessor, b *BundleBuilder, cctx *convert.Context) ([]fhir.Resource, error)
}

// BundleBuilder accumulates the entries of the bundle in progress.
type BundleBuilder struct {
	bundle *fhir.Bundle
	counts map[string]int
}

// NewBundleBuilder starts a transaction bundle.
func NewBundleBuilder(id, timestamp string) *BundleBuilder {
	b := fhir.NewBundle(fhir.BundleTypeTransaction)
	b.ID = id
	b.Timestamp = timestamp
	return &BundleBuilder{bundle: b, counts: map[string]int{}}
}

// Add appends a resource as a PUT entry addressed by its id.
func (b *BundleBuilder) Add(r fhir.Resource) {
	b.bundle.Entry = append(b.bundle.Entry, fhir.BundleEntry{
		FullURL:  "urn:uuid:" + r.ID(),
		Resource: r,
		Request:  &fhir.BundleRequest{Method: "PUT", URL: r.Ref()},
	})
	b.counts[r.Type()]++
}

// Find returns the entry resource with the given reference.
func (b *BundleBuilder) Find(ref string) fhir.Resource {
	return b.bundle.Resolve(ref)
}

// Entries returns the resources added so far.
func (b *BundleBuilder) Entries() []fhir.Resource { return b.bundle.Resources() }

// Counts returns the number of entries per resourceType.
func (b *BundleBuilder) Counts() map[string]int { return b.counts }

// Bundle returns the bundle being built.
func (b *BundleBuilder) Bundle() *fhir.Bundle { return b.bundle }

// Occurrence is one segment found by a scan.
type Occurrence struct {
	*hl7v2.Segment
	Index    int    // position among all occurrences returned by the scan
	Group    string // empty at root level
	GroupRep int
}

// Value reads a leaf of the occurrence, "" for absent or HL7 null.
func (o Occurrence) Value(field, rep, comp, sub int) string {
	return datatype.Value(o.Segment, field, rep, comp, sub)
}

// Field reads the first component of a field.
func (o Occurrence) Field(n int) string { return o.Value(n, 0, 1, 1) }

// Comp reads a component of the first repetition of a field.
func (o Occurrence) Comp(n, c int) string { return o.Value(n, 0, c, 1) }

// FieldErr locates an error at a field of this occurrence.
func (o Occurrence) FieldErr(field int, format string, args ...interface{}) error {
	return convert.FieldError(o.Name, o.Index, field, fmt.Errorf(format, args...))
}

// SegmentErr locates an error at this occurrence.
func (o Occurrence) SegmentErr(format string, args ...interface{}) error {
	return convert.SegmentError(o.Name, o.Index, format, args...)
}

// Occurrences collects the occurrences of a segment: root level first, then
// every group that may hold it. Each scan stops at the first absent
// repetition. Root and grouped results are each capped at
// hl7v2.MaxRepetitions in total. When both root and group
// placements hold the segment, the root ones are used and a warning is
// recorded.
func Occurrences(acc Accessor, cctx *convert.Context, name string) []Occurrence {
	var root []Occurrence
	for rep := 0; rep < hl7v2.MaxRepetitions; rep++ {
		seg := acc.Segment(hl7v2.Path{Segment: name, Rep: rep})
		if seg == nil {
			break
		}
		root = append(root, Occurrence{Segment: seg, Index: rep})
	}

	var grouped []Occurrence
scan:
	for _, g := range acc.Structure().Groups {
		if !hasMember(g, name) {
			continue
		}
		for grep := 0; grep < hl7v2.MaxRepetitions && acc.HasGroup(g.Name, grep); grep++ {
			for rep := 0; rep < hl7v2.MaxRepetitions; rep++ {
				if len(grouped) >= hl7v2.MaxRepetitions {
					break scan
				}
				seg := acc.Segment(hl7v2.Path{Segment: name, Group: g.Name, GroupRep: grep, Rep: rep})
				if seg == nil {
					break
				}
				grouped = append(grouped, Occurrence{Segment: seg, Index: len(grouped), Group: g.Name, GroupRep: grep})
			}
		}
	}

	if len(root) > 0 && len(grouped) > 0 {
		if cctx.Once("ambiguous:" + name) {
			cctx.Warn(convert.CodeAmbiguousPlacement, name, 0, 0,
				fmt.Sprintf("%s found at root level and in group %s; using the %d root occurrence(s)", name, grouped[0].Group, len(root)))
		}
		return root
	}
	if len(root) > 0 {
		return root
	}
	return grouped
}

func hasMember(g hl7v2.GroupDef, name string) bool {
	for _, m := range g.Members {
		if m == name {
			return true
		}
	}
	return false
}

// First returns the first occurrence of a segment, if any.
func First(acc Accessor, cctx *convert.Context, name string) (Occurrence, bool) {
	occ := Occurrences(acc, cctx, name)
	if len(occ) == 0 {
		return Occurrence{}, false
	}
	return occ[0], true
}

// Each runs fn over the occurrences of a segment in order. The first error
// or panic is recorded against its occurrence and ends the scan; what fn
// produced for earlier occurrences is kept.
func Each(acc Accessor, cctx *convert.Context, name string, fn func(o Occurrence) error) {
	for _, o := range Occurrences(acc, cctx, name) {
		if err := guard(o, fn); err != nil {
			cctx.RecordError(err, convert.CodeSegmentError)
			return
		}
	}
}

func guard(o Occurrence, fn func(o Occurrence) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &convert.LocatedError{
				Segment:      o.Name,
				SegmentIndex: o.Index,
				Code:         convert.CodeSegmentError,
				Err:          &convert.PanicError{Value: r},
			}
		}
	}()
	return fn(o)
}

// sameGroupSegment returns the first segment named name in the same group
// repetition as o, or at root level when o is at root level.
func sameGroupSegment(acc Accessor, o Occurrence, name string) *hl7v2.Segment {
	if o.Group == "" {
		return acc.Segment(hl7v2.Path{Segment: name})
	}
	return acc.Segment(hl7v2.Path{Segment: name, Group: o.Group, GroupRep: o.GroupRep})
}

// groupRep is the group repetition used for per-group result indexing; -1
// for root level.
func groupRep(o Occurrence) int {
	if o.Group == "" {
		return -1
	}
	return o.GroupRep
}
