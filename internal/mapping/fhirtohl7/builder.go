package fhirtohl7

import (
	"sort"
	"strconv"

	"github.com/ehr/hl7bridge/internal/platform/fhir"
	"github.com/ehr/hl7bridge/internal/platform/hl7v2"
)

// rootOrder is the segment template of each outbound structure. Root
// segments are emitted in this order; names missing from the template
// follow in the order they were added. Groups come after every root segment.
var rootOrder = map[string][]string{
	"ADT_A01": {"MSH", "EVN", "PID", "PD1", "NK1", "PV1", "PV2", "OBX", "AL1", "DG1", "PR1", "GT1", "IN1", "IN2"},
	"ORM_O01": {"MSH", "PID", "NK1", "PV1", "PV2", "IN1", "GT1", "AL1", "DG1", "PR1", "OBX"},
	"ORU_R01": {"MSH", "PID", "NK1", "PV1", "PV2", "AL1", "DG1", "PR1", "IN1", "OBX"},
	"SIU_S12": {"MSH", "SCH", "NTE", "PID", "NK1", "PV1", "PV2", "OBX", "AL1", "DG1", "PR1", "IN1"},
	"MDM_T02": {"MSH", "EVN", "PID", "NK1", "PV1", "PV2", "TXA", "OBX", "AL1", "DG1", "PR1", "IN1"},
}

// Segments carrying a set id in field 1. Root and group segments are
// numbered within their scope; message-scoped ones count across groups.
var (
	setIDSegments = map[string]bool{
		"PID": true, "NK1": true, "PV1": true, "OBX": true, "DG1": true, "AL1": true, "PR1": true,
		"IN1": true, "GT1": true, "OBR": true, "RGS": true, "AIS": true, "AIP": true, "AIL": true, "TXA": true,
	}
	messageScoped = map[string]bool{"OBR": true, "RGS": true}
)

// Group is one repeating block, such as an order (ORC...) or a scheduled
// resource set (RGS...).
type Group struct {
	Name     string
	builder  *MessageBuilder
	segments []*hl7v2.Segment
	counters map[string]int
}

// Add appends segments to the group, numbering set ids.
func (g *Group) Add(segs ...*hl7v2.Segment) {
	for _, s := range segs {
		g.builder.number(s, g.counters)
		g.segments = append(g.segments, s)
	}
}

// Segments returns the group's segments in order.
func (g *Group) Segments() []*hl7v2.Segment { return g.segments }

// MessageBuilder is the message in progress. Writers add root segments or
// open groups; the builder orders them on Message.
type MessageBuilder struct {
	structure string
	rank      map[string]int
	msh       *hl7v2.Segment
	root      []*hl7v2.Segment
	groups    []*Group
	bound     map[uintptr]*Group
	counters  map[string]int
	delims    hl7v2.Delimiters
}

// NewMessageBuilder starts a message of the given structure, e.g. "ORU_R01".
func NewMessageBuilder(structure string) *MessageBuilder {
	b := &MessageBuilder{
		structure: structure,
		rank:      map[string]int{},
		bound:     map[uintptr]*Group{},
		counters:  map[string]int{},
		delims:    hl7v2.DefaultDelimiters,
	}
	for i, name := range rootOrder[structure] {
		b.rank[name] = i
	}
	msg := hl7v2.NewMessage(b.delims)
	b.msh = msg.Segments[0]
	return b
}

// Structure returns the structure id the builder orders by.
func (b *MessageBuilder) Structure() string { return b.structure }

// MSH returns the header segment.
func (b *MessageBuilder) MSH() *hl7v2.Segment { return b.msh }

// Add appends root segments, numbering set ids.
func (b *MessageBuilder) Add(segs ...*hl7v2.Segment) {
	for _, s := range segs {
		b.number(s, b.counters)
		b.root = append(b.root, s)
	}
}

// NewGroup opens a group after the existing ones.
func (b *MessageBuilder) NewGroup(name string) *Group {
	g := &Group{Name: name, builder: b, counters: map[string]int{}}
	b.groups = append(b.groups, g)
	return g
}

// Bind remembers the group written for a resource, so writers of resources
// referring to it can attach to the same group.
func (b *MessageBuilder) Bind(res fhir.Resource, g *Group) {
	b.bound[identity(res)] = g
}

// Bound returns the group bound to res, if any.
func (b *MessageBuilder) Bound(res fhir.Resource) (*Group, bool) {
	if res == nil {
		return nil, false
	}
	g, ok := b.bound[identity(res)]
	return g, ok
}

// Count reports how many segments named name have been added, root and
// groups together.
func (b *MessageBuilder) Count(name string) int {
	n := 0
	for _, s := range b.root {
		if s.Name == name {
			n++
		}
	}
	for _, g := range b.groups {
		for _, s := range g.segments {
			if s.Name == name {
				n++
			}
		}
	}
	return n
}

// Message assembles the ordered message: MSH, root segments by template
// rank, then groups in creation order.
func (b *MessageBuilder) Message() *hl7v2.Message {
	root := make([]*hl7v2.Segment, len(b.root))
	copy(root, b.root)
	sort.SliceStable(root, func(i, j int) bool {
		return b.rankOf(root[i].Name) < b.rankOf(root[j].Name)
	})

	msg := hl7v2.NewMessage(b.delims)
	msg.Segments[0] = b.msh
	msg.Segments = append(msg.Segments, root...)
	for _, g := range b.groups {
		msg.Segments = append(msg.Segments, g.segments...)
	}
	return msg
}

func (b *MessageBuilder) rankOf(name string) int {
	if r, ok := b.rank[name]; ok {
		return r
	}
	return len(b.rank)
}

// number fills field 1 of a set-id segment when the writer left it empty.
func (b *MessageBuilder) number(s *hl7v2.Segment, scope map[string]int) {
	if !setIDSegments[s.Name] {
		return
	}
	counters := scope
	if messageScoped[s.Name] {
		counters = b.counters
	}
	counters[s.Name]++
	if s.GetField(1) == "" {
		s.Set(1, 0, 1, 1, strconv.Itoa(counters[s.Name]))
	}
}
