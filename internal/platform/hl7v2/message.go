package hl7v2

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrEmptyMessage = errors.New("hl7v2: message is empty")
	ErrNoMSH        = errors.New("hl7v2: first segment must be MSH")
	ErrMalformedMSH = errors.New("hl7v2: malformed MSH segment")
)

// Delimiters are the encoding characters declared in MSH-1 and MSH-2.
type Delimiters struct {
	Field        byte
	Component    byte
	Repetition   byte
	Escape       byte
	Subcomponent byte
}

// DefaultDelimiters is the conventional |^~\& set.
var DefaultDelimiters = Delimiters{Field: '|', Component: '^', Repetition: '~', Escape: '\\', Subcomponent: '&'}

// EncodingCharacters renders MSH-2 for these delimiters.
func (d Delimiters) EncodingCharacters() string {
	return string([]byte{d.Component, d.Repetition, d.Escape, d.Subcomponent})
}

// Message represents a parsed HL7v2 message.
type Message struct {
	Delims       Delimiters
	Type         string    // MSH-9.1 message code (e.g. "ADT")
	Trigger      string    // MSH-9.2 trigger event (e.g. "A01")
	StructureID  string    // MSH-9.3 message structure (e.g. "ADT_A01"), often empty
	ControlID    string    // MSH-10
	Version      string    // MSH-12 (e.g. "2.5.1")
	Timestamp    time.Time // MSH-7
	RawTimestamp string    // MSH-7 as sent
	SendingApp   string    // MSH-3
	SendingFac   string    // MSH-4
	ReceivingApp string    // MSH-5
	ReceivingFac string    // MSH-6
	Segments     []*Segment
}

// Segment is a named record. Fields[0] holds field 1; for MSH that is the
// field separator itself and Fields[1] the literal encoding characters.
type Segment struct {
	Name   string
	Fields []Field
}

// Field is the ordered list of repetitions of one field.
type Field []Repetition

// Repetition is one occurrence of a field, split into components.
type Repetition []Component

// Component holds its subcomponents. Values are stored unescaped.
type Component []string

// NewMessage returns an empty message whose first segment is an MSH carrying
// the given delimiters.
func NewMessage(d Delimiters) *Message {
	msh := NewSegment("MSH")
	msh.Fields = []Field{
		{{{string(d.Field)}}},
		{{{d.EncodingCharacters()}}},
	}
	return &Message{Delims: d, Segments: []*Segment{msh}}
}

// NewSegment returns an empty segment with the given name.
func NewSegment(name string) *Segment {
	return &Segment{Name: name}
}

// Parse parses raw HL7v2 message bytes into a structured Message.
// It supports \r, \n, and \r\n line endings for segment separation.
func Parse(raw []byte) (*Message, error) {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil, ErrEmptyMessage
	}

	text := string(raw)
	text = strings.ReplaceAll(text, "\r\n", "\r")
	text = strings.ReplaceAll(text, "\n", "\r")

	var lines []string
	for _, line := range strings.Split(text, "\r") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return nil, ErrEmptyMessage
	}
	if !strings.HasPrefix(lines[0], "MSH") {
		return nil, fmt.Errorf("%w, got %q", ErrNoMSH, lines[0][:min(3, len(lines[0]))])
	}

	delims, err := discoverDelimiters(lines[0])
	if err != nil {
		return nil, err
	}

	msg := &Message{Delims: delims}
	for i, line := range lines {
		seg, err := parseSegment(line, delims)
		if err != nil {
			return nil, fmt.Errorf("hl7v2: segment %d: %w", i+1, err)
		}
		msg.Segments = append(msg.Segments, seg)
	}

	msg.extractMSHFields()
	return msg, nil
}

// discoverDelimiters reads MSH-1 and MSH-2 from the header line.
func discoverDelimiters(line string) (Delimiters, error) {
	if len(line) < 8 {
		return Delimiters{}, fmt.Errorf("%w: header too short", ErrMalformedMSH)
	}
	d := Delimiters{
		Field:        line[3],
		Component:    line[4],
		Repetition:   line[5],
		Escape:       line[6],
		Subcomponent: line[7],
	}
	// MSH-2 may omit the subcomponent separator in very old feeds.
	if d.Subcomponent == d.Field {
		d.Subcomponent = DefaultDelimiters.Subcomponent
	}
	seen := map[byte]bool{}
	for _, c := range []byte{d.Field, d.Component, d.Repetition, d.Escape, d.Subcomponent} {
		if seen[c] || c == '\r' || c == '\n' {
			return Delimiters{}, fmt.Errorf("%w: invalid encoding characters %q", ErrMalformedMSH, line[3:8])
		}
		seen[c] = true
	}
	return d, nil
}

func validSegmentName(name string) bool {
	if len(name) != 3 {
		return false
	}
	for i := 0; i < 3; i++ {
		c := name[i]
		if !(c >= 'A' && c <= 'Z') && !(c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}

// parseSegment parses a single segment line.
func parseSegment(line string, d Delimiters) (*Segment, error) {
	fs := string(d.Field)

	if strings.HasPrefix(line, "MSH") {
		seg := &Segment{Name: "MSH"}
		parts := strings.Split(line[4:], fs)
		seg.Fields = append(seg.Fields, Field{{{fs}}}, Field{{{parts[0]}}})
		for _, part := range parts[1:] {
			seg.Fields = append(seg.Fields, parseField(part, d))
		}
		return seg, nil
	}

	parts := strings.Split(line, fs)
	if !validSegmentName(parts[0]) {
		return nil, fmt.Errorf("invalid segment id %q", parts[0])
	}
	seg := &Segment{Name: parts[0]}
	for _, part := range parts[1:] {
		seg.Fields = append(seg.Fields, parseField(part, d))
	}
	return seg, nil
}

// parseField splits a raw field into repetitions, components and
// subcomponents, unescaping every leaf.
func parseField(raw string, d Delimiters) Field {
	if raw == "" {
		return nil
	}
	var f Field
	for _, rep := range strings.Split(raw, string(d.Repetition)) {
		var r Repetition
		for _, comp := range strings.Split(rep, string(d.Component)) {
			var c Component
			for _, sub := range strings.Split(comp, string(d.Subcomponent)) {
				c = append(c, Unescape(sub, d))
			}
			r = append(r, c)
		}
		f = append(f, r)
	}
	return f
}

// extractMSHFields copies commonly used MSH fields into the Message struct.
func (m *Message) extractMSHFields() {
	msh := m.Segments[0]

	m.SendingApp = msh.Value(3, 0, 1, 1)
	m.SendingFac = msh.Value(4, 0, 1, 1)
	m.ReceivingApp = msh.Value(5, 0, 1, 1)
	m.ReceivingFac = msh.Value(6, 0, 1, 1)

	m.RawTimestamp = msh.Value(7, 0, 1, 1)
	if m.RawTimestamp != "" {
		if dt, err := ParseDateTime(m.RawTimestamp); err == nil {
			m.Timestamp = dt.Time
		}
	}

	m.Type = msh.Value(9, 0, 1, 1)
	m.Trigger = msh.Value(9, 0, 2, 1)
	m.StructureID = msh.Value(9, 0, 3, 1)
	m.ControlID = msh.Value(10, 0, 1, 1)
	m.Version = msh.Value(12, 0, 1, 1)
}

// MessageType renders MSH-9 as code^trigger.
func (m *Message) MessageType() string {
	if m.Trigger == "" {
		return m.Type
	}
	return m.Type + "^" + m.Trigger
}

// GetSegment returns the first segment with the given name, or nil if not found.
func (m *Message) GetSegment(name string) *Segment {
	for _, seg := range m.Segments {
		if seg.Name == name {
			return seg
		}
	}
	return nil
}

// GetSegments returns all segments with the given name.
func (m *Message) GetSegments(name string) []*Segment {
	var result []*Segment
	for _, seg := range m.Segments {
		if seg.Name == name {
			result = append(result, seg)
		}
	}
	return result
}

// Repetitions returns how many repetitions field n (1-based) carries.
func (s *Segment) Repetitions(n int) int {
	if n < 1 || n > len(s.Fields) {
		return 0
	}
	return len(s.Fields[n-1])
}

// Value returns the unescaped leaf at field (1-based), field repetition
// (0-based), component and subcomponent (1-based). Component or subcomponent
// 0 address the first one. Missing positions yield "".
func (s *Segment) Value(field, rep, comp, sub int) string {
	if field < 1 || field > len(s.Fields) {
		return ""
	}
	f := s.Fields[field-1]
	if rep < 0 || rep >= len(f) {
		return ""
	}
	if comp == 0 {
		comp = 1
	}
	if sub == 0 {
		sub = 1
	}
	r := f[rep]
	if comp > len(r) {
		return ""
	}
	c := r[comp-1]
	if sub > len(c) {
		return ""
	}
	return c[sub-1]
}

// GetField returns the first component of field n.
func (s *Segment) GetField(n int) string {
	return s.Value(n, 0, 1, 1)
}

// GetComponent returns component c of the first repetition of field n.
func (s *Segment) GetComponent(n, c int) string {
	return s.Value(n, 0, c, 1)
}

// Set writes value at the given position, growing the segment as needed.
func (s *Segment) Set(field, rep, comp, sub int, value string) {
	if field < 1 || rep < 0 || comp < 0 || sub < 0 {
		panic(fmt.Sprintf("hl7v2: invalid position %s-%d(%d).%d.%d", s.Name, field, rep, comp, sub))
	}
	if comp == 0 {
		comp = 1
	}
	if sub == 0 {
		sub = 1
	}
	for len(s.Fields) < field {
		s.Fields = append(s.Fields, nil)
	}
	f := s.Fields[field-1]
	for len(f) <= rep {
		f = append(f, nil)
	}
	r := f[rep]
	for len(r) < comp {
		r = append(r, nil)
	}
	c := r[comp-1]
	for len(c) < sub {
		c = append(c, "")
	}
	c[sub-1] = value
	r[comp-1] = c
	f[rep] = r
	s.Fields[field-1] = f
}

// SetComponents writes a whole repetition from the given component values.
func (s *Segment) SetComponents(field, rep int, comps ...string) {
	for i, v := range comps {
		if v != "" {
			s.Set(field, rep, i+1, 1, v)
		}
	}
}
