package hl7tofhir

import (
	"encoding/base64"
	"strings"

	"github.com/ehr/hl7bridge/internal/mapping/convert"
	"github.com/ehr/hl7bridge/internal/mapping/datatype"
	"github.com/ehr/hl7bridge/internal/mapping/tables"
	"github.com/ehr/hl7bridge/internal/platform/fhir"
	fm "github.com/ehr/hl7bridge/pkg/fhirmodels"
)

// DocumentConverter maps TXA to DocumentReference. In MDM messages the OBX
// values are the document body.
type DocumentConverter struct{}

func (DocumentConverter) Name() string { return "DocumentReference" }

func (DocumentConverter) Convert(acc Accessor, b *BundleBuilder, cctx *convert.Context) ([]fhir.Resource, error) {
	txa, ok := First(acc, cctx, "TXA")
	if !ok {
		return nil, nil
	}
	var out []fhir.Resource
	err := guard(txa, func(o Occurrence) error {
		docType := o.Field(2)
		if docType == "" {
			return o.SegmentErr("TXA-2 document type is required")
		}
		d := newResource(cctx, "DocumentReference")
		d["status"] = fm.DocumentStatusCurrent
		if ds, ok := tables.DocumentStatus.ToFHIR(o.Field(17)); ok {
			d["docStatus"] = ds
		}
		d["type"] = v2Concept("0270", docType, o.Comp(2, 2))
		setSubject(d, "subject", cctx)
		if cctx.EncounterID != "" {
			d["context"] = map[string]interface{}{
				"encounter": []interface{}{map[string]interface{}{"reference": "Encounter/" + cctx.EncounterID}},
			}
		}
		if id := datatype.EntityIdentifier(o.Segment, 12, ""); id != nil {
			d["masterIdentifier"] = id
		}
		if id := datatype.EntityIdentifier(o.Segment, 14, "PLAC"); id != nil {
			d["identifier"] = []interface{}{id}
		}

		date := optionalDateTime(o, 4, cctx)
		if date == "" {
			date = optionalDateTime(o, 6, cctx)
		}
		setIf(d, "date", date)

		var authors []interface{}
		for _, field := range []int{9, 5} {
			for r := 0; r < datatype.Repetitions(o.Segment, field); r++ {
				if ref := practitionerRef(cctx, datatype.XCN(o.Segment, field, r)); ref != nil {
					authors = append(authors, ref)
				}
			}
			if len(authors) > 0 {
				break
			}
		}
		setIf(d, "author", authors)

		title := o.Comp(2, 2)
		if title == "" {
			title = docType
		}
		d["description"] = title
		d["content"] = []interface{}{map[string]interface{}{"attachment": documentBody(acc, cctx, title)}}

		out = append(out, d)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// documentBody builds the attachment from the OBX values: ED values carry
// their own content type and base64 data, text values are joined as
// text/plain.
func documentBody(acc Accessor, cctx *convert.Context, title string) map[string]interface{} {
	att := map[string]interface{}{"title": title}
	var lines []string
	for _, o := range Occurrences(acc, cctx, "OBX") {
		if strings.EqualFold(o.Field(2), "ED") {
			if data := o.Value(5, 0, 5, 1); data != "" {
				if !strings.EqualFold(o.Value(5, 0, 4, 1), "Base64") {
					data = base64.StdEncoding.EncodeToString([]byte(data))
				}
				att["contentType"] = edContentType(o)
				att["data"] = data
				return att
			}
		}
		if text := joinRepetitions(o, 5); text != "" {
			lines = append(lines, text)
		}
	}
	if len(lines) > 0 {
		att["contentType"] = "text/plain"
		att["data"] = base64.StdEncoding.EncodeToString([]byte(strings.Join(lines, "\n")))
	}
	return att
}

func edContentType(o Occurrence) string {
	typ, sub := strings.ToLower(o.Value(5, 0, 2, 1)), strings.ToLower(o.Value(5, 0, 3, 1))
	switch {
	case typ != "" && sub != "" && strings.Contains(sub, "/"):
		return sub
	case typ == "application" || typ == "text" || typ == "image" || typ == "audio" || typ == "video":
		if sub != "" {
			return typ + "/" + sub
		}
	case sub == "pdf":
		return "application/pdf"
	}
	return "application/octet-stream"
}
