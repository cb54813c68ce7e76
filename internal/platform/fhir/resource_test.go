package fhir

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestGetArray_BothShapes(t *testing.T) {
	built := Resource{
		"name": []map[string]interface{}{{"family": "Doe"}},
	}
	var parsed Resource
	if err := json.Unmarshal([]byte(`{"name":[{"family":"Doe"},"junk"]}`), &parsed); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	for label, r := range map[string]Resource{"built": built, "parsed": parsed} {
		names := GetArray(r, "name")
		if len(names) != 1 {
			t.Fatalf("%s: expected 1 name, got %d", label, len(names))
		}
		if GetString(names[0], "family") != "Doe" {
			t.Errorf("%s: expected Doe, got %q", label, GetString(names[0], "family"))
		}
	}
}

func TestCodeHelpers(t *testing.T) {
	r := Resource{
		"class": map[string]interface{}{"code": "IMP"},
		"code": map[string]interface{}{
			"coding": []interface{}{
				map[string]interface{}{"system": "http://snomed.info/sct", "code": "1"},
				map[string]interface{}{"system": "http://loinc.org", "code": "718-7"},
			},
		},
	}
	if got := Code(r, "code"); got != "1" {
		t.Errorf("expected first code 1, got %q", got)
	}
	if got := GetString(CodingWithSystem(GetMap(r, "code"), "http://loinc.org"), "code"); got != "718-7" {
		t.Errorf("expected 718-7, got %q", got)
	}
}

func TestSplitReference(t *testing.T) {
	tests := map[string][2]string{
		"Patient/123":                       {"Patient", "123"},
		"http://example.org/fhir/Patient/9": {"Patient", "9"},
		"urn:uuid:abc":                      {"", "urn:uuid:abc"},
	}
	for in, want := range tests {
		typ, id := SplitReference(in)
		if typ != want[0] || id != want[1] {
			t.Errorf("SplitReference(%q): expected %v, got %s %s", in, want, typ, id)
		}
	}
}

func TestParseBundle(t *testing.T) {
	b, err := ParseBundle([]byte(`{"resourceType":"Bundle","type":"message","entry":[
		{"fullUrl":"urn:uuid:p1","resource":{"resourceType":"Patient","id":"p1"}},
		{"resource":{"resourceType":"Encounter","id":"e1","subject":{"reference":"Patient/p1"}}}]}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(b.ResourcesOfType("Encounter")) != 1 {
		t.Fatal("expected one Encounter")
	}
	if b.Resolve("Patient/p1") == nil || b.Resolve("urn:uuid:p1") == nil {
		t.Error("expected both reference forms to resolve")
	}
	if b.Resolve("Patient/none") != nil {
		t.Error("expected unknown reference to resolve to nil")
	}

	if _, err := ParseBundle([]byte(`{"resourceType":"Patient"}`)); !errors.Is(err, ErrNotBundle) {
		t.Errorf("expected ErrNotBundle, got %v", err)
	}
	if _, err := ParseBundle([]byte(`{not json`)); err == nil {
		t.Error("expected error for invalid JSON")
	}
}
