package fhir

import (
	"encoding/json"
	"errors"
	"fmt"
)

// FHIRContentType is the FHIR JSON content type with charset.
const FHIRContentType = "application/fhir+json; charset=utf-8"

// Bundle types accepted or produced by the converters.
const (
	BundleTypeMessage     = "message"
	BundleTypeTransaction = "transaction"
	BundleTypeCollection  = "collection"
)

var ErrNotBundle = errors.New("fhir: root resource is not a Bundle")

// Bundle represents a FHIR Bundle resource.
type Bundle struct {
	ResourceType string                 `json:"resourceType"`
	ID           string                 `json:"id,omitempty"`
	Meta         map[string]interface{} `json:"meta,omitempty"`
	Type         string                 `json:"type"`
	Timestamp    string                 `json:"timestamp,omitempty"`
	Entry        []BundleEntry          `json:"entry,omitempty"`
}

type BundleEntry struct {
	FullURL  string         `json:"fullUrl,omitempty"`
	Resource Resource       `json:"resource,omitempty"`
	Request  *BundleRequest `json:"request,omitempty"`
}

type BundleRequest struct {
	Method string `json:"method"`
	URL    string `json:"url"`
}

// NewBundle returns an empty bundle of the given type.
func NewBundle(bundleType string) *Bundle {
	return &Bundle{ResourceType: "Bundle", Type: bundleType}
}

// Resources returns the entry resources in order.
func (b *Bundle) Resources() []Resource {
	out := make([]Resource, 0, len(b.Entry))
	for _, e := range b.Entry {
		if e.Resource != nil {
			out = append(out, e.Resource)
		}
	}
	return out
}

// ResourcesOfType returns the entry resources with the given resourceType.
func (b *Bundle) ResourcesOfType(resourceType string) []Resource {
	var out []Resource
	for _, e := range b.Entry {
		if e.Resource != nil && e.Resource.Type() == resourceType {
			out = append(out, e.Resource)
		}
	}
	return out
}

// Resolve finds the entry a reference points at, by "Type/id" or by fullUrl.
func (b *Bundle) Resolve(ref string) Resource {
	if ref == "" {
		return nil
	}
	typ, id := SplitReference(ref)
	for _, e := range b.Entry {
		if e.Resource == nil {
			continue
		}
		if e.FullURL != "" && e.FullURL == ref {
			return e.Resource
		}
		if e.Resource.Type() == typ && e.Resource.ID() == id {
			return e.Resource
		}
	}
	return nil
}

// ParseBundle decodes a Bundle and checks the root resourceType.
func ParseBundle(data []byte) (*Bundle, error) {
	var probe struct {
		ResourceType string `json:"resourceType"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("fhir: invalid JSON: %w", err)
	}
	if probe.ResourceType != "Bundle" {
		return nil, fmt.Errorf("%w (got %q)", ErrNotBundle, probe.ResourceType)
	}

	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("fhir: decode bundle: %w", err)
	}
	return &b, nil
}
