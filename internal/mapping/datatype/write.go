package datatype

import (
	"strconv"
	"strings"

	"github.com/ehr/hl7bridge/internal/mapping/tables"
	"github.com/ehr/hl7bridge/internal/platform/fhir"
	"github.com/ehr/hl7bridge/internal/platform/hl7v2"
)

// SetXPN writes a HumanName into an XPN repetition.
func SetXPN(seg *hl7v2.Segment, field, rep int, name map[string]interface{}) {
	if name == nil {
		return
	}
	given := fhir.GetStrings(name, "given")
	family := fhir.GetString(name, "family")
	if family == "" && len(given) == 0 {
		if text := fhir.GetString(name, "text"); text != "" {
			seg.Set(field, rep, 1, 1, text)
		}
		return
	}
	comps := make([]string, 7)
	comps[0] = family
	if len(given) > 0 {
		comps[1] = given[0]
	}
	if len(given) > 1 {
		comps[2] = strings.Join(given[1:], " ")
	}
	if s := fhir.GetStrings(name, "suffix"); len(s) > 0 {
		comps[3] = s[0]
	}
	if p := fhir.GetStrings(name, "prefix"); len(p) > 0 {
		comps[4] = p[0]
	}
	if use, ok := tables.NameType.ToV2(fhir.GetString(name, "use")); ok {
		comps[6] = use
	}
	seg.SetComponents(field, rep, comps...)
}

// SetXAD writes an Address into an XAD repetition.
func SetXAD(seg *hl7v2.Segment, field, rep int, addr map[string]interface{}) {
	if addr == nil {
		return
	}
	lines := fhir.GetStrings(addr, "line")
	comps := make([]string, 9)
	if len(lines) > 0 {
		comps[0] = lines[0]
	}
	if len(lines) > 1 {
		comps[1] = strings.Join(lines[1:], ", ")
	}
	comps[2] = fhir.GetString(addr, "city")
	comps[3] = fhir.GetString(addr, "state")
	comps[4] = fhir.GetString(addr, "postalCode")
	comps[5] = fhir.GetString(addr, "country")
	if fhir.GetString(addr, "type") == "postal" {
		comps[6] = "M"
	} else if use, ok := tables.AddressType.ToV2(fhir.GetString(addr, "use")); ok {
		comps[6] = use
	}
	comps[8] = fhir.GetString(addr, "district")
	seg.SetComponents(field, rep, comps...)
}

// SetXTN writes a ContactPoint into an XTN repetition. The value goes to
// XTN-1, and to XTN-4 for email.
func SetXTN(seg *hl7v2.Segment, field, rep int, cp map[string]interface{}) {
	value := fhir.GetString(cp, "value")
	if value == "" {
		return
	}
	system := fhir.GetString(cp, "system")
	comps := make([]string, 4)
	comps[0] = value
	comps[1] = tables.TelecomUse.ToV2Or(fhir.GetString(cp, "use"), "")
	comps[2] = tables.TelecomEquipment.ToV2Or(system, "")
	if system == "email" {
		comps[0] = ""
		comps[3] = value
		if comps[1] == "" || comps[1] == "PRN" {
			comps[1] = "NET"
		}
	}
	seg.SetComponents(field, rep, comps...)
}

// SetTelecoms writes the ContactPoints matching use into consecutive
// repetitions of field. An empty use matches every ContactPoint.
func SetTelecoms(seg *hl7v2.Segment, field int, telecoms []map[string]interface{}, match func(use string) bool) {
	rep := 0
	for _, cp := range telecoms {
		if match != nil && !match(fhir.GetString(cp, "use")) {
			continue
		}
		if fhir.GetString(cp, "value") == "" {
			continue
		}
		SetXTN(seg, field, rep, cp)
		rep++
	}
}

// SetCX writes an Identifier into a CX repetition.
func SetCX(seg *hl7v2.Segment, field, rep int, id map[string]interface{}) {
	value := fhir.GetString(id, "value")
	if value == "" {
		return
	}
	seg.Set(field, rep, 1, 1, value)
	if sys := fhir.GetString(id, "system"); sys != "" {
		if strings.HasPrefix(sys, "urn:oid:") {
			seg.Set(field, rep, 4, 2, strings.TrimPrefix(sys, "urn:oid:"))
			seg.Set(field, rep, 4, 3, "ISO")
		} else {
			seg.Set(field, rep, 4, 1, tables.AuthorityName(sys))
		}
	}
	if typ := fhir.Code(id, "type"); typ != "" {
		seg.Set(field, rep, 5, 1, typ)
	}
}

// SetEI writes an Identifier as an entity identifier (placer/filler number).
func SetEI(seg *hl7v2.Segment, field int, id map[string]interface{}) {
	value := fhir.GetString(id, "value")
	if value == "" {
		return
	}
	seg.Set(field, 0, 1, 1, value)
	if sys := fhir.GetString(id, "system"); sys != "" {
		seg.Set(field, 0, 2, 1, tables.AuthorityName(sys))
	}
}

// SetCWE writes a CodeableConcept into a CWE repetition: the first two
// codings as primary and alternate triplets, text as original text.
func SetCWE(seg *hl7v2.Segment, field, rep int, cc map[string]interface{}) {
	setCWEAt(seg, field, rep, 1, cc)
}

func setCWEAt(seg *hl7v2.Segment, field, rep, base int, cc map[string]interface{}) {
	if cc == nil {
		return
	}
	codings := fhir.GetArray(cc, "coding")
	text := fhir.GetString(cc, "text")
	for i, c := range codings {
		if i > 1 {
			break
		}
		off := base + i*3
		if code := fhir.GetString(c, "code"); code != "" {
			seg.Set(field, rep, off, 1, code)
		}
		if d := fhir.GetString(c, "display"); d != "" {
			seg.Set(field, rep, off+1, 1, d)
		} else if i == 0 && text != "" {
			seg.Set(field, rep, off+1, 1, text)
		}
		if sys := tables.SystemName(fhir.GetString(c, "system")); sys != "" {
			seg.Set(field, rep, off+2, 1, sys)
		}
	}
	if len(codings) == 0 && text != "" {
		seg.Set(field, rep, base+1, 1, text)
	}
	if text != "" && len(codings) > 0 {
		seg.Set(field, rep, base+8, 1, text)
	}
}

// SetCode writes a bare code into a component.
func SetCode(seg *hl7v2.Segment, field, comp int, code string) {
	if code != "" {
		seg.Set(field, 0, comp, 1, code)
	}
}

// SetXCN writes a practitioner-like resource (or a bare display) into an
// XCN repetition.
func SetXCN(seg *hl7v2.Segment, field, rep int, who fhir.Resource, display string) {
	if who == nil {
		if display == "" {
			return
		}
		parts := strings.Fields(display)
		if len(parts) == 0 {
			return
		}
		family := parts[len(parts)-1]
		given := strings.Join(parts[:len(parts)-1], " ")
		seg.SetComponents(field, rep, "", family, given)
		return
	}
	comps := make([]string, 9)
	if id := fhir.First(who, "identifier"); id != nil {
		comps[0] = fhir.GetString(id, "value")
		if sys := fhir.GetString(id, "system"); sys != "" {
			comps[8] = tables.AuthorityName(sys)
		}
	}
	if comps[0] == "" {
		comps[0] = who.ID()
	}
	if name := fhir.First(who, "name"); name != nil {
		comps[1] = fhir.GetString(name, "family")
		given := fhir.GetStrings(name, "given")
		if len(given) > 0 {
			comps[2] = given[0]
		}
		if len(given) > 1 {
			comps[3] = strings.Join(given[1:], " ")
		}
		if s := fhir.GetStrings(name, "suffix"); len(s) > 0 {
			comps[4] = s[0]
		}
		if p := fhir.GetStrings(name, "prefix"); len(p) > 0 {
			comps[5] = p[0]
		}
	} else if n := fhir.GetString(who, "name"); n != "" {
		comps[1] = n
	}
	seg.SetComponents(field, rep, comps...)
}

// SetQuantity writes a Quantity's value, and its unit as a CWE at unitField
// when present.
func SetQuantity(seg *hl7v2.Segment, valueField, unitField int, q map[string]interface{}) {
	if q == nil {
		return
	}
	if v, ok := fhir.GetNumber(q, "value"); ok {
		seg.Set(valueField, 0, 1, 1, FormatNumber(v))
	}
	unit := fhir.GetString(q, "code")
	if unit == "" {
		unit = fhir.GetString(q, "unit")
	}
	if unit != "" && unitField > 0 {
		seg.Set(unitField, 0, 1, 1, unit)
		if u := fhir.GetString(q, "unit"); u != "" && u != unit {
			seg.Set(unitField, 0, 2, 1, u)
		}
		if sys := fhir.GetString(q, "system"); sys != "" {
			seg.Set(unitField, 0, 3, 1, tables.SystemName(sys))
		}
	}
}

// FormatNumber renders a float without a trailing ".0".
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// SetTS writes a FHIR date/dateTime as an HL7 TS. Unparseable values are
// skipped and reported.
func SetTS(seg *hl7v2.Segment, field, comp int, value string) error {
	if value == "" {
		return nil
	}
	ts, err := hl7v2.FormatFHIR(value)
	if err != nil {
		return err
	}
	seg.Set(field, 0, comp, 1, ts)
	return nil
}
