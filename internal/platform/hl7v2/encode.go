package hl7v2

import (
	"encoding/hex"
	"strings"
)

// Unescape decodes HL7 escape sequences in a single leaf value. Unknown
// sequences are kept verbatim.
func Unescape(s string, d Delimiters) string {
	esc := string(d.Escape)
	if !strings.Contains(s, esc) {
		return s
	}

	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != d.Escape {
			b.WriteByte(s[i])
			continue
		}
		end := strings.IndexByte(s[i+1:], d.Escape)
		if end < 0 {
			b.WriteString(s[i:])
			break
		}
		seq := s[i+1 : i+1+end]
		switch {
		case seq == "F":
			b.WriteByte(d.Field)
		case seq == "S":
			b.WriteByte(d.Component)
		case seq == "R":
			b.WriteByte(d.Repetition)
		case seq == "E":
			b.WriteByte(d.Escape)
		case seq == "T":
			b.WriteByte(d.Subcomponent)
		case seq == ".br":
			b.WriteByte('\n')
		case len(seq) > 1 && seq[0] == 'X':
			raw, err := hex.DecodeString(seq[1:])
			if err != nil {
				b.WriteString(s[i : i+2+end])
			} else {
				b.Write(raw)
			}
		default:
			b.WriteString(s[i : i+2+end])
		}
		i += end + 1
	}
	return b.String()
}

// Escape encodes delimiter characters and line breaks in a leaf value.
func Escape(s string, d Delimiters) string {
	if !strings.ContainsAny(s, string([]byte{d.Field, d.Component, d.Repetition, d.Escape, d.Subcomponent, '\r', '\n'})) {
		return s
	}
	e := string(d.Escape)
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case d.Escape:
			b.WriteString(e + "E" + e)
		case d.Field:
			b.WriteString(e + "F" + e)
		case d.Component:
			b.WriteString(e + "S" + e)
		case d.Repetition:
			b.WriteString(e + "R" + e)
		case d.Subcomponent:
			b.WriteString(e + "T" + e)
		case '\n':
			b.WriteString(e + ".br" + e)
		case '\r':
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// Encode serializes the message with \r segment terminators between
// segments. Trailing empty fields, components and subcomponents are trimmed.
func Encode(m *Message) []byte {
	lines := make([]string, 0, len(m.Segments))
	for _, seg := range m.Segments {
		lines = append(lines, encodeSegment(seg, m.Delims))
	}
	return []byte(strings.Join(lines, "\r"))
}

// String returns the encoded message.
func (m *Message) String() string {
	return string(Encode(m))
}

func encodeSegment(seg *Segment, d Delimiters) string {
	fs := string(d.Field)
	var parts []string
	start := 0
	if seg.Name == "MSH" {
		enc := d.EncodingCharacters()
		if v := seg.Value(2, 0, 1, 1); v != "" {
			enc = v
		}
		parts = append(parts, "MSH"+fs+enc)
		start = 2
	} else {
		parts = append(parts, seg.Name)
	}

	fields := make([]string, 0, len(seg.Fields))
	for i := start; i < len(seg.Fields); i++ {
		fields = append(fields, encodeField(seg.Fields[i], d))
	}
	for len(fields) > 0 && fields[len(fields)-1] == "" {
		fields = fields[:len(fields)-1]
	}
	return strings.Join(append(parts, fields...), fs)
}

func encodeField(f Field, d Delimiters) string {
	reps := make([]string, len(f))
	for i, r := range f {
		comps := make([]string, len(r))
		for j, c := range r {
			subs := make([]string, len(c))
			for k, v := range c {
				subs[k] = Escape(v, d)
			}
			comps[j] = trimJoin(subs, d.Subcomponent)
		}
		reps[i] = trimJoin(comps, d.Component)
	}
	for len(reps) > 0 && reps[len(reps)-1] == "" {
		reps = reps[:len(reps)-1]
	}
	return strings.Join(reps, string(d.Repetition))
}

func trimJoin(parts []string, sep byte) string {
	for len(parts) > 0 && parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	return strings.Join(parts, string(sep))
}
