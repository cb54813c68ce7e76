// Package convert holds the per-call conversion state shared by the
// converters of one message, and the issue and result model both
// directions report through.
package convert

import (
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/hl7bridge/internal/platform/hl7v2"
)

// LinkKind tags a link key.
type LinkKind string

const (
	LinkPlacer LinkKind = "PLACER"
	LinkFiller LinkKind = "FILLER"
	LinkIndex  LinkKind = "INDEX"
)

// LinkKey joins an order-like resource to the resources fulfilling it.
type LinkKey struct {
	Kind  LinkKind
	Value string
}

func (k LinkKey) String() string { return string(k.Kind) + ":" + k.Value }

// Placer, Filler and Index build link keys. Placer and Filler return the
// zero key for an empty order number.
func Placer(n string) LinkKey {
	if n == "" {
		return LinkKey{}
	}
	return LinkKey{Kind: LinkPlacer, Value: n}
}

func Filler(n string) LinkKey {
	if n == "" {
		return LinkKey{}
	}
	return LinkKey{Kind: LinkFiller, Value: n}
}

// Index keys an order by resource type and position when no order numbers
// were sent.
func Index(resourceType string, n int) LinkKey {
	return LinkKey{Kind: LinkIndex, Value: fmt.Sprintf("%s#%d", resourceType, n)}
}

// ResourceRef points at a resource produced in this conversion.
type ResourceRef struct {
	Type string
	ID   string
}

// Reference renders "Type/id".
func (r ResourceRef) Reference() string { return r.Type + "/" + r.ID }

// IDGenerator produces resource ids. Tests inject a deterministic one.
type IDGenerator func() string

// NewUUID is the default IDGenerator.
func NewUUID() string { return uuid.NewString() }

// Context is the mutable state of one conversion call. It is created per
// call and never shared between calls.
type Context struct {
	TenantID      string
	TransactionID string
	PatientID     string
	EncounterID   string
	MessageCode   string
	TriggerEvent  string
	Structure     string
	Raw           *hl7v2.Message
	Logger        zerolog.Logger

	newID         IDGenerator
	links         map[LinkKey][]ResourceRef
	practitioners map[string]string
	groupResults  map[string]map[int][]ResourceRef
	seen          map[string]bool
	issues        []Issue
}

// NewContext creates the context for one call. raw may be nil in the FHIR
// to HL7 direction.
func NewContext(tenantID string, raw *hl7v2.Message, newID IDGenerator, logger zerolog.Logger) *Context {
	if newID == nil {
		newID = NewUUID
	}
	c := &Context{
		TenantID:      tenantID,
		Raw:           raw,
		Logger:        logger,
		newID:         newID,
		links:         map[LinkKey][]ResourceRef{},
		practitioners: map[string]string{},
		groupResults:  map[string]map[int][]ResourceRef{},
		seen:          map[string]bool{},
	}
	if raw != nil {
		c.MessageCode = raw.Type
		c.TriggerEvent = raw.Trigger
		c.TransactionID = raw.ControlID
		c.Structure = raw.Structure().ID
	}
	return c
}

// NewID allocates a resource id.
func (c *Context) NewID() string { return c.newID() }

// Link registers ref under every non-zero key.
func (c *Context) Link(ref ResourceRef, keys ...LinkKey) {
	for _, k := range keys {
		if k.Value == "" {
			continue
		}
		c.links[k] = append(c.links[k], ref)
	}
}

// Resolve returns the first resource of resourceType registered under any
// of keys, tried in order.
func (c *Context) Resolve(resourceType string, keys ...LinkKey) (ResourceRef, bool) {
	for _, k := range keys {
		if k.Value == "" {
			continue
		}
		for _, ref := range c.links[k] {
			if resourceType == "" || ref.Type == resourceType {
				return ref, true
			}
		}
	}
	return ResourceRef{}, false
}

// PractitionerID returns the id allocated for an XCN key, allocating one on
// first use. The boolean reports whether the id already existed.
func (c *Context) PractitionerID(key string) (string, bool) {
	if id, ok := c.practitioners[key]; ok {
		return id, true
	}
	id := c.NewID()
	c.practitioners[key] = id
	return id, false
}

// PractitionerKeys returns the allocated practitioner keys in sorted order.
func (c *Context) PractitionerKeys() []string {
	keys := make([]string, 0, len(c.practitioners))
	for k := range c.practitioners {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// AddGroupResult records a resource produced from a segment group
// repetition. Group "" with rep -1 is the root level.
func (c *Context) AddGroupResult(group string, rep int, ref ResourceRef) {
	m := c.groupResults[group]
	if m == nil {
		m = map[int][]ResourceRef{}
		c.groupResults[group] = m
	}
	m[rep] = append(m[rep], ref)
}

// GroupResults returns the resources of type resourceType recorded for a
// group repetition.
func (c *Context) GroupResults(group string, rep int, resourceType string) []ResourceRef {
	var out []ResourceRef
	for _, ref := range c.groupResults[group][rep] {
		if resourceType == "" || ref.Type == resourceType {
			out = append(out, ref)
		}
	}
	return out
}

// Once reports true the first time key is seen during this call.
func (c *Context) Once(key string) bool {
	if c.seen[key] {
		return false
	}
	c.seen[key] = true
	return true
}

// AddIssue records an issue and logs it.
func (c *Context) AddIssue(i Issue) {
	c.issues = append(c.issues, i)
	ev := c.Logger.Warn()
	if i.Severity == SeverityInformation {
		ev = c.Logger.Debug()
	}
	ev.Str("code", i.Code).
		Str("segment", i.Segment).
		Int("segment_index", i.SegmentIndex).
		Int("field", i.Field).
		Msg(i.Message)
}

// Error records an ERROR issue.
func (c *Context) Error(code, segment string, index, field int, msg string) {
	c.AddIssue(Issue{Code: code, Segment: segment, SegmentIndex: index, Field: field, Message: msg, Severity: SeverityError})
}

// Warn records a WARNING issue.
func (c *Context) Warn(code, segment string, index, field int, msg string) {
	c.AddIssue(Issue{Code: code, Segment: segment, SegmentIndex: index, Field: field, Message: msg, Severity: SeverityWarning})
}

// Info records an INFORMATION issue.
func (c *Context) Info(code, segment string, index int, msg string) {
	c.AddIssue(Issue{Code: code, Segment: segment, SegmentIndex: index, Message: msg, Severity: SeverityInformation})
}

// RecordError translates a converter error into an ERROR issue, keeping the
// location of a *LocatedError.
func (c *Context) RecordError(err error, fallbackCode string) {
	var le *LocatedError
	if errors.As(err, &le) {
		c.AddIssue(Issue{
			Segment:       le.Segment,
			SegmentIndex:  le.SegmentIndex,
			Field:         le.Field,
			Code:          le.Code,
			Message:       le.Err.Error(),
			Severity:      SeverityError,
			ExceptionType: ExceptionType(le.Err),
		})
		return
	}
	c.AddIssue(Issue{Code: fallbackCode, Message: err.Error(), Severity: SeverityError, ExceptionType: ExceptionType(err)})
}

// Issues returns every recorded issue in order.
func (c *Context) Issues() []Issue { return c.issues }
