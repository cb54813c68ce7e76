package hl7v2

import (
	"fmt"
)

// MaxRepetitions bounds every scan over segment, group or field repetitions.
const MaxRepetitions = 50

// Path addresses a value inside a message. Repetition indexes are 0-based;
// field, component and subcomponent numbers are 1-based, with 0 meaning the
// first component or subcomponent.
type Path struct {
	Segment      string
	Group        string // empty for root-level segments
	GroupRep     int
	Rep          int // segment repetition, within the group when Group is set
	Field        int
	FieldRep     int
	Component    int
	Subcomponent int
}

func (p Path) String() string {
	s := fmt.Sprintf("%s(%d)-%d(%d)", p.Segment, p.Rep, p.Field, p.FieldRep)
	if p.Group != "" {
		s = fmt.Sprintf("%s(%d)/%s", p.Group, p.GroupRep, s)
	}
	if p.Component > 0 {
		s += fmt.Sprintf(".%d", p.Component)
	}
	if p.Subcomponent > 0 {
		s += fmt.Sprintf(".%d", p.Subcomponent)
	}
	return s
}

func (p Path) check() {
	if p.GroupRep < 0 || p.Rep < 0 || p.Field < 0 || p.FieldRep < 0 || p.Component < 0 || p.Subcomponent < 0 {
		panic(fmt.Sprintf("hl7v2: negative index in path %s", p))
	}
}

type groupInstance struct {
	seen     map[string]bool
	segments []*Segment
}

// Terser is a path-addressed reader and writer over one message. A Terser
// is not safe for concurrent use.
type Terser struct {
	msg       *Message
	structure Structure
	root      []*Segment
	groups    map[string][]*groupInstance
}

// NewTerser indexes the message against its structure descriptor.
func NewTerser(m *Message) *Terser {
	t := &Terser{msg: m, structure: m.Structure()}
	t.reindex()
	return t
}

// Message returns the underlying message.
func (t *Terser) Message() *Message { return t.msg }

// Structure returns the descriptor the message was indexed with.
func (t *Terser) Structure() Structure { return t.structure }

func (t *Terser) reindex() {
	t.root = nil
	t.groups = map[string][]*groupInstance{}

	var cur *groupInstance
	var curDef GroupDef
	for _, seg := range t.msg.Segments {
		if cur != nil && curDef.isMember(seg.Name) && !(curDef.isAnchor(seg.Name) && cur.seen[seg.Name]) {
			cur.segments = append(cur.segments, seg)
			cur.seen[seg.Name] = true
			continue
		}
		cur = nil
		for _, g := range t.structure.Groups {
			if g.isAnchor(seg.Name) {
				cur = &groupInstance{seen: map[string]bool{seg.Name: true}, segments: []*Segment{seg}}
				curDef = g
				t.groups[g.Name] = append(t.groups[g.Name], cur)
				break
			}
		}
		if cur == nil {
			t.root = append(t.root, seg)
		}
	}
}

func nth(segs []*Segment, name string, rep int) (*Segment, int) {
	n := 0
	for _, s := range segs {
		if s.Name != name {
			continue
		}
		if n == rep {
			return s, n
		}
		n++
	}
	return nil, n
}

// Segment returns the addressed segment, or nil when it is absent.
func (t *Terser) Segment(p Path) *Segment {
	p.check()
	if p.Group == "" {
		seg, _ := nth(t.root, p.Segment, p.Rep)
		return seg
	}
	inst := t.groups[p.Group]
	if p.GroupRep >= len(inst) {
		return nil
	}
	seg, _ := nth(inst[p.GroupRep].segments, p.Segment, p.Rep)
	return seg
}

// HasGroup reports whether the given group repetition exists.
func (t *Terser) HasGroup(name string, rep int) bool {
	if rep < 0 {
		panic(fmt.Sprintf("hl7v2: negative group repetition for %s", name))
	}
	return rep < len(t.groups[name])
}

// Get returns the addressed value. Absent paths, empty values and the HL7
// null ("") all report false.
func (t *Terser) Get(p Path) (string, bool) {
	p.check()
	if p.Field == 0 {
		panic(fmt.Sprintf("hl7v2: path %s has no field number", p))
	}
	seg := t.Segment(p)
	if seg == nil {
		return "", false
	}
	v := seg.Value(p.Field, p.FieldRep, p.Component, p.Subcomponent)
	if v == "" || v == `""` {
		return "", false
	}
	return v, true
}

// Set writes the addressed value. A root-level segment one past the last
// existing repetition is appended to the message; grouped segments must
// already exist.
func (t *Terser) Set(p Path, value string) error {
	p.check()
	if p.Field == 0 {
		return fmt.Errorf("hl7v2: path %s has no field number", p)
	}
	if p.Segment == "MSH" && p.Field <= 2 {
		return fmt.Errorf("hl7v2: MSH-1 and MSH-2 are derived from the delimiters")
	}

	seg := t.Segment(p)
	if seg == nil {
		if p.Group != "" {
			return fmt.Errorf("hl7v2: %s does not exist", p)
		}
		_, count := nth(t.root, p.Segment, p.Rep)
		if p.Rep != count {
			return fmt.Errorf("hl7v2: cannot create %s with %d existing repetitions", p, count)
		}
		seg = NewSegment(p.Segment)
		t.msg.Segments = append(t.msg.Segments, seg)
		t.root = append(t.root, seg)
	}
	seg.Set(p.Field, p.FieldRep, p.Component, p.Subcomponent, value)
	return nil
}
