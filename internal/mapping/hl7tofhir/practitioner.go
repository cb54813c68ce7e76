package hl7tofhir

import (
	"github.com/ehr/hl7bridge/internal/mapping/convert"
	"github.com/ehr/hl7bridge/internal/mapping/datatype"
	"github.com/ehr/hl7bridge/internal/platform/fhir"
)

// PractitionerConverter emits one Practitioner per distinct person named in
// the XCN fields below. Ids match the references the other converters
// already wrote, since both go through Context.PractitionerID.
type PractitionerConverter struct{}

func (PractitionerConverter) Name() string { return "Practitioner" }

var practitionerFields = []struct {
	segment string
	fields  []int
}{
	{"PV1", []int{7, 8, 9, 17}},
	{"ORC", []int{12}},
	{"OBR", []int{16}},
	{"OBX", []int{16}},
	{"DG1", []int{16}},
	{"RXA", []int{10}},
	{"PR1", []int{11, 12}},
	{"AIP", []int{3}},
	{"TXA", []int{5, 9}},
}

func (PractitionerConverter) Convert(acc Accessor, b *BundleBuilder, cctx *convert.Context) ([]fhir.Resource, error) {
	var out []fhir.Resource
	emitted := map[string]bool{}
	for _, sf := range practitionerFields {
		Each(acc, cctx, sf.segment, func(o Occurrence) error {
			for _, field := range sf.fields {
				for r := 0; r < datatype.Repetitions(o.Segment, field); r++ {
					p := datatype.XCN(o.Segment, field, r)
					if p.Empty() || emitted[p.Key()] {
						continue
					}
					emitted[p.Key()] = true
					out = append(out, practitioner(p, cctx))
				}
			}
			return nil
		})
	}
	return out, nil
}

func practitioner(p datatype.Person, cctx *convert.Context) fhir.Resource {
	id, _ := cctx.PractitionerID(p.Key())
	r := fhir.Resource{"resourceType": "Practitioner", "id": id}
	if ident := p.Identifier(); ident != nil {
		r["identifier"] = []interface{}{ident}
	}
	if name := p.Name(); name != nil {
		r["name"] = []interface{}{name}
	}
	return r
}
