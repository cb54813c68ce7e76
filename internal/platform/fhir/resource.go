package fhir

import (
	"strings"
)

// Resource is a FHIR resource held as decoded JSON. Converters build
// resources as map literals; parsed resources arrive with []interface{}
// arrays, so readers go through the Get* helpers, which accept both shapes.
type Resource map[string]interface{}

// Type returns the resourceType.
func (r Resource) Type() string { return GetString(r, "resourceType") }

// ID returns the logical id.
func (r Resource) ID() string { return GetString(r, "id") }

// Ref returns the relative reference "Type/id".
func (r Resource) Ref() string { return r.Type() + "/" + r.ID() }

// Coding is a code from a code system.
type Coding struct {
	System  string `json:"system,omitempty"`
	Code    string `json:"code,omitempty"`
	Display string `json:"display,omitempty"`
}

// CodeableConcept is a set of codings plus free text.
type CodeableConcept struct {
	Coding []Coding `json:"coding,omitempty"`
	Text   string   `json:"text,omitempty"`
}

// GetString returns m[key] when it is a string.
func GetString(m map[string]interface{}, key string) string {
	if m == nil {
		return ""
	}
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// GetBool returns m[key] when it is a bool.
func GetBool(m map[string]interface{}, key string) (bool, bool) {
	if m == nil {
		return false, false
	}
	v, ok := m[key].(bool)
	return v, ok
}

// GetNumber returns m[key] as float64 for any JSON or Go numeric value.
func GetNumber(m map[string]interface{}, key string) (float64, bool) {
	if m == nil {
		return 0, false
	}
	switch v := m[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// GetMap returns m[key] when it is an object.
func GetMap(m map[string]interface{}, key string) map[string]interface{} {
	if m == nil {
		return nil
	}
	return asMap(m[key])
}

func asMap(v interface{}) map[string]interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return t
	case Resource:
		return t
	}
	return nil
}

// GetArray returns the objects in m[key], whether it holds []interface{} or
// []map[string]interface{}. Non-object elements are skipped.
func GetArray(m map[string]interface{}, key string) []map[string]interface{} {
	if m == nil {
		return nil
	}
	switch v := m[key].(type) {
	case []map[string]interface{}:
		return v
	case []interface{}:
		out := make([]map[string]interface{}, 0, len(v))
		for _, item := range v {
			if mm := asMap(item); mm != nil {
				out = append(out, mm)
			}
		}
		return out
	}
	return nil
}

// GetStrings returns the strings in m[key].
func GetStrings(m map[string]interface{}, key string) []string {
	if m == nil {
		return nil
	}
	switch v := m[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return []string{v}
	}
	return nil
}

// First returns the first object in m[key].
func First(m map[string]interface{}, key string) map[string]interface{} {
	arr := GetArray(m, key)
	if len(arr) == 0 {
		return nil
	}
	return arr[0]
}

// FirstCoding returns the first coding of a CodeableConcept.
func FirstCoding(cc map[string]interface{}) map[string]interface{} {
	return First(cc, "coding")
}

// CodingWithSystem returns the first coding whose system matches.
func CodingWithSystem(cc map[string]interface{}, system string) map[string]interface{} {
	for _, c := range GetArray(cc, "coding") {
		if GetString(c, "system") == system {
			return c
		}
	}
	return nil
}

// Code returns the first coding's code of the CodeableConcept at m[key].
func Code(m map[string]interface{}, key string) string {
	return GetString(FirstCoding(GetMap(m, key)), "code")
}

// SplitReference splits "Type/id" (or an absolute URL ending in it).
func SplitReference(ref string) (typ, id string) {
	ref = strings.TrimSuffix(ref, "/")
	parts := strings.Split(ref, "/")
	if len(parts) < 2 {
		return "", ref
	}
	return parts[len(parts)-2], parts[len(parts)-1]
}
