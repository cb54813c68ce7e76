package fhirtohl7

import (
	"encoding/base64"
	"strings"

	"github.com/ehr/hl7bridge/internal/mapping/datatype"
	"github.com/ehr/hl7bridge/internal/mapping/tables"
	"github.com/ehr/hl7bridge/internal/platform/fhir"
	"github.com/ehr/hl7bridge/internal/platform/hl7v2"
)

// TXAWriter writes the first DocumentReference as TXA, with the document
// body in OBX segments.
type TXAWriter struct{}

func (TXAWriter) Name() string                  { return "TXA/OBX" }
func (TXAWriter) ResourceTypes() []string       { return []string{"DocumentReference"} }
func (TXAWriter) CanConvert(fhir.Resource) bool { return true }

func (TXAWriter) Convert(doc fhir.Resource, out *MessageBuilder, acc Accessor) error {
	docType := fhir.GetMap(doc, "type")
	if docType == nil {
		return errMissing(doc, "type")
	}
	if out.Count("TXA") > 0 {
		acc.Warn(doc, "only one document is carried per message")
		return nil
	}

	txa := hl7v2.NewSegment("TXA")
	if c := fhir.FirstCoding(docType); c != nil {
		txa.SetComponents(2, 0, fhir.GetString(c, "code"), fhir.GetString(c, "display"))
	} else {
		txa.Set(2, 0, 1, 1, fhir.GetString(docType, "text"))
	}
	txa.Set(3, 0, 1, 1, "TX")
	setTS(txa, 4, 1, fhir.GetString(doc, "date"), doc, acc)
	setPeople(txa, 9, fhir.GetArray(doc, "author"), acc)
	datatype.SetEI(txa, 12, fhir.GetMap(doc, "masterIdentifier"))
	placer, _ := orderNumbers(doc)
	if fhir.Code(placer, "type") == "PLAC" {
		datatype.SetEI(txa, 14, placer)
	}
	if s, ok := tables.DocumentStatus.ToV2(fhir.GetString(doc, "docStatus")); ok {
		txa.Set(17, 0, 1, 1, s)
	}
	out.Add(txa)

	att := fhir.GetMap(fhir.First(doc, "content"), "attachment")
	for _, obx := range bodySegments(att) {
		out.Add(obx)
	}
	return nil
}

// bodySegments writes an attachment as OBX values: plain text one line per
// segment, other content as base64 ED, and a bare URL as ST.
func bodySegments(att map[string]interface{}) []*hl7v2.Segment {
	data := fhir.GetString(att, "data")
	contentType := fhir.GetString(att, "contentType")
	if data == "" {
		if url := fhir.GetString(att, "url"); url != "" {
			return []*hl7v2.Segment{bodySegment("ST", url)}
		}
		return nil
	}

	if contentType == "" || strings.HasPrefix(contentType, "text/plain") {
		if text, err := base64.StdEncoding.DecodeString(data); err == nil {
			var segs []*hl7v2.Segment
			for _, line := range strings.Split(strings.TrimRight(string(text), "\n"), "\n") {
				segs = append(segs, bodySegment("TX", strings.TrimSuffix(line, "\r")))
			}
			return segs
		}
	}

	typ, sub := "application", "octet-stream"
	if contentType != "" {
		typ, sub, _ = strings.Cut(contentType, "/")
	}
	obx := hl7v2.NewSegment("OBX")
	obx.Set(2, 0, 1, 1, "ED")
	obx.SetComponents(5, 0, "", typ, sub, "Base64", data)
	obx.Set(11, 0, 1, 1, "F")
	return []*hl7v2.Segment{obx}
}

func bodySegment(valueType, value string) *hl7v2.Segment {
	obx := hl7v2.NewSegment("OBX")
	obx.Set(2, 0, 1, 1, valueType)
	obx.Set(5, 0, 1, 1, value)
	obx.Set(11, 0, 1, 1, "F")
	return obx
}
