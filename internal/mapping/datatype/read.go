// Package datatype maps HL7 v2 composite data types (XPN, XAD, XTN, CX, CWE,
// XCN, CQ) to FHIR complex types and back.
package datatype

import (
	"strconv"
	"strings"

	"github.com/ehr/hl7bridge/internal/mapping/tables"
	"github.com/ehr/hl7bridge/internal/platform/hl7v2"
	fm "github.com/ehr/hl7bridge/pkg/fhirmodels"
)

// Value returns a trimmed leaf, treating the HL7 null ("") as empty.
func Value(seg *hl7v2.Segment, field, rep, comp, sub int) string {
	if seg == nil {
		return ""
	}
	v := strings.TrimSpace(seg.Value(field, rep, comp, sub))
	if v == `""` {
		return ""
	}
	return v
}

// Component is Value for the first subcomponent.
func Component(seg *hl7v2.Segment, field, rep, comp int) string {
	return Value(seg, field, rep, comp, 1)
}

// Repetitions counts the repetitions of a field, capped at
// hl7v2.MaxRepetitions.
func Repetitions(seg *hl7v2.Segment, field int) int {
	if seg == nil {
		return 0
	}
	n := seg.Repetitions(field)
	if n > hl7v2.MaxRepetitions {
		n = hl7v2.MaxRepetitions
	}
	return n
}

// HumanName reads an XPN repetition. It returns nil when neither family nor
// given name is present.
func HumanName(seg *hl7v2.Segment, field, rep int) map[string]interface{} {
	family := Component(seg, field, rep, 1)
	given := Component(seg, field, rep, 2)
	middle := Component(seg, field, rep, 3)
	if family == "" && given == "" {
		return nil
	}
	name := map[string]interface{}{}
	if family != "" {
		name["family"] = family
	}
	var givens []interface{}
	if given != "" {
		givens = append(givens, given)
	}
	if middle != "" {
		givens = append(givens, middle)
	}
	if len(givens) > 0 {
		name["given"] = givens
	}
	if s := Component(seg, field, rep, 4); s != "" {
		name["suffix"] = []interface{}{s}
	}
	if p := Component(seg, field, rep, 5); p != "" {
		name["prefix"] = []interface{}{p}
	}
	if use, ok := tables.NameType.ToFHIR(Component(seg, field, rep, 7)); ok {
		name["use"] = use
	}
	return name
}

// HumanNames reads every XPN repetition of a field.
func HumanNames(seg *hl7v2.Segment, field int) []interface{} {
	var out []interface{}
	for r := 0; r < Repetitions(seg, field); r++ {
		if n := HumanName(seg, field, r); n != nil {
			out = append(out, n)
		}
	}
	return out
}

// Address reads an XAD repetition, or nil when it is empty.
func Address(seg *hl7v2.Segment, field, rep int) map[string]interface{} {
	addr := map[string]interface{}{}
	var lines []interface{}
	if l := Component(seg, field, rep, 1); l != "" {
		lines = append(lines, l)
	}
	if l := Component(seg, field, rep, 2); l != "" {
		lines = append(lines, l)
	}
	if len(lines) > 0 {
		addr["line"] = lines
	}
	setIf(addr, "city", Component(seg, field, rep, 3))
	setIf(addr, "state", Component(seg, field, rep, 4))
	setIf(addr, "postalCode", Component(seg, field, rep, 5))
	setIf(addr, "country", Component(seg, field, rep, 6))
	setIf(addr, "district", Component(seg, field, rep, 9))
	if len(addr) == 0 {
		return nil
	}
	kind := Component(seg, field, rep, 7)
	if use, ok := tables.AddressType.ToFHIR(kind); ok {
		addr["use"] = use
	}
	if t, ok := tables.AddressKind.ToFHIR(kind); ok {
		addr["type"] = t
	}
	return addr
}

// Addresses reads every XAD repetition of a field.
func Addresses(seg *hl7v2.Segment, field int) []interface{} {
	var out []interface{}
	for r := 0; r < Repetitions(seg, field); r++ {
		if a := Address(seg, field, r); a != nil {
			out = append(out, a)
		}
	}
	return out
}

// ContactPoint reads an XTN repetition. The value comes from XTN-4 for
// email, the structured XTN-5..8 phone parts when present, else XTN-1.
func ContactPoint(seg *hl7v2.Segment, field, rep int, defaultUse string) map[string]interface{} {
	equip := Component(seg, field, rep, 3)
	system, ok := tables.TelecomEquipment.ToFHIR(equip)
	if !ok {
		system = "phone"
	}

	value := ""
	if email := Component(seg, field, rep, 4); email != "" && (system == "email" || equip == "") {
		value = email
		system = "email"
	}
	if value == "" {
		area := Component(seg, field, rep, 6)
		local := Component(seg, field, rep, 7)
		if local != "" {
			value = local
			if area != "" {
				value = "(" + area + ")" + local
			}
			if cc := Component(seg, field, rep, 5); cc != "" {
				value = "+" + cc + " " + value
			}
			if ext := Component(seg, field, rep, 8); ext != "" {
				value += " x" + ext
			}
		}
	}
	if value == "" {
		value = Component(seg, field, rep, 1)
	}
	if value == "" {
		return nil
	}

	cp := map[string]interface{}{"system": system, "value": value}
	if use, ok := tables.TelecomUse.ToFHIR(Component(seg, field, rep, 2)); ok {
		cp["use"] = use
	} else if defaultUse != "" {
		cp["use"] = defaultUse
	}
	return cp
}

// ContactPoints reads every XTN repetition of a field.
func ContactPoints(seg *hl7v2.Segment, field int, defaultUse string) []interface{} {
	var out []interface{}
	for r := 0; r < Repetitions(seg, field); r++ {
		if cp := ContactPoint(seg, field, r, defaultUse); cp != nil {
			out = append(out, cp)
		}
	}
	return out
}

// Identifier reads a CX repetition, or nil when CX-1 is empty.
func Identifier(seg *hl7v2.Segment, field, rep int) map[string]interface{} {
	value := Component(seg, field, rep, 1)
	if value == "" {
		return nil
	}
	id := map[string]interface{}{"value": value}
	if sys := tables.IdentifierSystem(Value(seg, field, rep, 4, 1), Value(seg, field, rep, 4, 2)); sys != "" {
		id["system"] = sys
	}
	if typ := Component(seg, field, rep, 5); typ != "" {
		coding := map[string]interface{}{"system": fm.SystemIdentifierType, "code": typ}
		if display, ok := tables.IdentifierType.ToFHIR(typ); ok {
			coding["display"] = display
		}
		id["type"] = map[string]interface{}{"coding": []interface{}{coding}}
	}
	return id
}

// Identifiers reads every CX repetition of a field.
func Identifiers(seg *hl7v2.Segment, field int) []interface{} {
	var out []interface{}
	for r := 0; r < Repetitions(seg, field); r++ {
		if id := Identifier(seg, field, r); id != nil {
			out = append(out, id)
		}
	}
	return out
}

// EntityIdentifier reads an EI (placer/filler number) as an Identifier with
// the given type code.
func EntityIdentifier(seg *hl7v2.Segment, field int, typeCode string) map[string]interface{} {
	value := Component(seg, field, 0, 1)
	if value == "" {
		return nil
	}
	id := map[string]interface{}{"value": value}
	if sys := tables.IdentifierSystem(Component(seg, field, 0, 2), Component(seg, field, 0, 3)); sys != "" {
		id["system"] = sys
	}
	if typeCode != "" {
		id["type"] = map[string]interface{}{"coding": []interface{}{
			map[string]interface{}{"system": fm.SystemIdentifierType, "code": typeCode},
		}}
	}
	return id
}

// CodeableConcept reads a CWE/CE repetition: the primary triplet, the
// alternate triplet and the original text. Unknown coding systems are kept
// under urn:id:. It returns nil when nothing is present.
func CodeableConcept(seg *hl7v2.Segment, field, rep int) map[string]interface{} {
	return codeableFrom(seg, field, rep, 1)
}

// codeableFrom reads a CWE starting at component base, so CWE-typed
// components of larger types can be read in place.
func codeableFrom(seg *hl7v2.Segment, field, rep, base int) map[string]interface{} {
	var codings []interface{}
	if c := coding(Component(seg, field, rep, base), Component(seg, field, rep, base+1), Component(seg, field, rep, base+2)); c != nil {
		codings = append(codings, c)
	}
	if c := coding(Component(seg, field, rep, base+3), Component(seg, field, rep, base+4), Component(seg, field, rep, base+5)); c != nil {
		codings = append(codings, c)
	}
	text := Component(seg, field, rep, base+8)
	if text == "" {
		text = Component(seg, field, rep, base+1)
	}
	if len(codings) == 0 && text == "" {
		return nil
	}
	cc := map[string]interface{}{}
	if len(codings) > 0 {
		cc["coding"] = codings
	}
	if text != "" {
		cc["text"] = text
	}
	return cc
}

func coding(code, display, system string) map[string]interface{} {
	if code == "" {
		return nil
	}
	c := map[string]interface{}{"code": code}
	if uri := tables.SystemURI(system); uri != "" {
		c["system"] = uri
	}
	if display != "" {
		c["display"] = display
	}
	return c
}

// TableConcept builds a CodeableConcept for a value from an HL7 table,
// mapped through cm when it knows the code, else kept under the v2 table
// system.
func TableConcept(v2Code, display, fhirSystem string, cm *tables.CodeMap) map[string]interface{} {
	if v2Code == "" {
		return nil
	}
	if code, ok := cm.ToFHIR(v2Code); ok {
		c := map[string]interface{}{"system": fhirSystem, "code": code}
		if display != "" {
			c["display"] = display
		}
		return map[string]interface{}{"coding": []interface{}{c}}
	}
	c := map[string]interface{}{"system": fm.SystemV2Prefix + cm.Name(), "code": v2Code}
	if display != "" {
		c["display"] = display
	}
	return map[string]interface{}{"coding": []interface{}{c}, "text": firstNonEmpty(display, v2Code)}
}

// Person is an XCN value.
type Person struct {
	ID        string
	Family    string
	Given     string
	Middle    string
	Suffix    string
	Prefix    string
	Degree    string
	Authority string
	Universal string
	IDType    string
}

// Key identifies the person across a message: the id under its authority,
// else the name.
func (p Person) Key() string {
	if p.ID != "" {
		return p.Authority + "|" + p.ID
	}
	return "name|" + strings.ToUpper(p.Family) + "^" + strings.ToUpper(p.Given)
}

// Empty reports whether the XCN carried neither an id nor a name.
func (p Person) Empty() bool {
	return p.ID == "" && p.Family == "" && p.Given == ""
}

// Display renders "Given Family".
func (p Person) Display() string {
	return strings.TrimSpace(strings.Join(nonEmpty(p.Prefix, p.Given, p.Middle, p.Family, p.Suffix), " "))
}

// XCN reads an extended composite id and name.
func XCN(seg *hl7v2.Segment, field, rep int) Person {
	return Person{
		ID:        Component(seg, field, rep, 1),
		Family:    Component(seg, field, rep, 2),
		Given:     Component(seg, field, rep, 3),
		Middle:    Component(seg, field, rep, 4),
		Suffix:    Component(seg, field, rep, 5),
		Prefix:    Component(seg, field, rep, 6),
		Degree:    Component(seg, field, rep, 7),
		Authority: Value(seg, field, rep, 9, 1),
		Universal: Value(seg, field, rep, 9, 2),
		IDType:    Component(seg, field, rep, 13),
	}
}

// Name renders the person as a HumanName.
func (p Person) Name() map[string]interface{} {
	if p.Family == "" && p.Given == "" {
		return nil
	}
	name := map[string]interface{}{}
	if p.Family != "" {
		name["family"] = p.Family
	}
	if g := nonEmpty(p.Given, p.Middle); len(g) > 0 {
		given := make([]interface{}, len(g))
		for i, s := range g {
			given[i] = s
		}
		name["given"] = given
	}
	if p.Prefix != "" {
		name["prefix"] = []interface{}{p.Prefix}
	}
	if s := nonEmpty(p.Suffix, p.Degree); len(s) > 0 {
		suffix := make([]interface{}, len(s))
		for i, v := range s {
			suffix[i] = v
		}
		name["suffix"] = suffix
	}
	return name
}

// Identifier renders the person id as an Identifier, or nil without an id.
func (p Person) Identifier() map[string]interface{} {
	if p.ID == "" {
		return nil
	}
	id := map[string]interface{}{"value": p.ID}
	if sys := tables.IdentifierSystem(p.Authority, p.Universal); sys != "" {
		id["system"] = sys
	}
	if p.IDType != "" {
		id["type"] = map[string]interface{}{"coding": []interface{}{
			map[string]interface{}{"system": fm.SystemIdentifierType, "code": p.IDType},
		}}
	}
	return id
}

// Quantity reads a numeric value with a CWE unit at unitField. ok is false
// when value is not a number.
func Quantity(value string, seg *hl7v2.Segment, unitField, unitRep int) (map[string]interface{}, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, false
	}
	n, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, false
	}
	q := map[string]interface{}{"value": n}
	unit := Component(seg, unitField, unitRep, 1)
	if unit != "" {
		q["code"] = unit
		q["unit"] = firstNonEmpty(Component(seg, unitField, unitRep, 2), unit)
		sys := Component(seg, unitField, unitRep, 3)
		if sys == "" || strings.EqualFold(sys, "UCUM") || strings.EqualFold(sys, "ISO+") || strings.EqualFold(sys, "ANSI+") {
			q["system"] = fm.SystemUCUM
		} else {
			q["system"] = tables.SystemURI(sys)
		}
	}
	return q, true
}

func setIf(m map[string]interface{}, key, value string) {
	if value != "" {
		m[key] = value
	}
}

func nonEmpty(values ...string) []string {
	var out []string
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
