package fhirtohl7

import (
	"testing"

	"github.com/ehr/hl7bridge/internal/mapping/tables"
	"github.com/ehr/hl7bridge/internal/platform/fhir"
	"github.com/ehr/hl7bridge/internal/platform/hl7v2"
)

// ===== MessageBuilder =====

func TestMessageBuilder_RootOrderFollowsTemplate(t *testing.T) {
	b := NewMessageBuilder("ADT_A01")
	b.Add(hl7v2.NewSegment("OBX"), hl7v2.NewSegment("ZZ1"), hl7v2.NewSegment("PV1"), hl7v2.NewSegment("PID"))
	msg := b.Message()
	if got := segmentNames(msg); got != "MSH PID PV1 OBX ZZ1" {
		t.Errorf("expected MSH PID PV1 OBX ZZ1, got %q", got)
	}
}

func TestMessageBuilder_GroupsFollowRoot(t *testing.T) {
	b := NewMessageBuilder("ORU_R01")
	g := b.NewGroup("ORDER_OBSERVATION")
	g.Add(hl7v2.NewSegment("ORC"), hl7v2.NewSegment("OBR"))
	b.Add(hl7v2.NewSegment("PID"))
	if got := segmentNames(b.Message()); got != "MSH PID ORC OBR" {
		t.Errorf("expected MSH PID ORC OBR, got %q", got)
	}
}

func TestMessageBuilder_SetIDs(t *testing.T) {
	b := NewMessageBuilder("ORU_R01")
	dg1a, dg1b := hl7v2.NewSegment("DG1"), hl7v2.NewSegment("DG1")
	b.Add(dg1a, dg1b)
	if dg1a.GetField(1) != "1" || dg1b.GetField(1) != "2" {
		t.Errorf("expected DG1 1 and 2, got %q %q", dg1a.GetField(1), dg1b.GetField(1))
	}

	var obrs, obxs []*hl7v2.Segment
	for i := 0; i < 2; i++ {
		g := b.NewGroup("ORDER_OBSERVATION")
		obr, obx := hl7v2.NewSegment("OBR"), hl7v2.NewSegment("OBX")
		g.Add(hl7v2.NewSegment("ORC"), obr, obx)
		obrs, obxs = append(obrs, obr), append(obxs, obx)
	}
	if obrs[0].GetField(1) != "1" || obrs[1].GetField(1) != "2" {
		t.Errorf("expected OBR numbered across groups, got %q %q", obrs[0].GetField(1), obrs[1].GetField(1))
	}
	if obxs[0].GetField(1) != "1" || obxs[1].GetField(1) != "1" {
		t.Errorf("expected OBX numbered per group, got %q %q", obxs[0].GetField(1), obxs[1].GetField(1))
	}
	if b.Count("OBR") != 2 || b.Count("DG1") != 2 || b.Count("PID") != 0 {
		t.Errorf("expected counts 2/2/0, got %d/%d/%d", b.Count("OBR"), b.Count("DG1"), b.Count("PID"))
	}
}

func TestMessageBuilder_KeepsWriterSetID(t *testing.T) {
	b := NewMessageBuilder("ADT_A01")
	nk1 := hl7v2.NewSegment("NK1")
	nk1.Set(1, 0, 1, 1, "7")
	b.Add(nk1)
	if nk1.GetField(1) != "7" {
		t.Errorf("expected set id 7 kept, got %q", nk1.GetField(1))
	}
}

func TestMessageBuilder_BindByIdentity(t *testing.T) {
	b := NewMessageBuilder("ORM_O01")
	sr := fhir.Resource{"resourceType": "ServiceRequest"}
	twin := fhir.Resource{"resourceType": "ServiceRequest"}
	g := b.NewGroup("ORDER")
	b.Bind(sr, g)

	if got, ok := b.Bound(sr); !ok || got != g {
		t.Errorf("expected bound group")
	}
	if _, ok := b.Bound(twin); ok {
		t.Errorf("expected an equal but distinct resource to be unbound")
	}
	if _, ok := b.Bound(nil); ok {
		t.Errorf("expected nil to be unbound")
	}
}

// ===== Registry =====

func TestRegistry_Dispatch(t *testing.T) {
	r := DefaultRegistry()
	if n := len(r.For("Encounter")); n != 2 {
		t.Errorf("expected PV1 and PV2 writers for Encounter, got %d", n)
	}
	if n := len(r.For("Appointment")); n != 2 {
		t.Errorf("expected SCH and resource writers for Appointment, got %d", n)
	}
	if n := len(r.For("Goal")); n != 0 {
		t.Errorf("expected no writer for Goal, got %d", n)
	}
	types := r.Types()
	if len(types) == 0 || types[0] != "Patient" {
		t.Errorf("expected Patient first, got %v", types)
	}
	seen := map[string]bool{}
	for _, ty := range types {
		if seen[ty] {
			t.Errorf("expected unique types, %s repeated", ty)
		}
		seen[ty] = true
	}
}

// ===== Helpers =====

func TestPatientClass(t *testing.T) {
	cases := map[string]string{"": "U", "IMP": "I", "I": "I", "EMER": "E", "weird": "O"}
	for in, want := range cases {
		if got := patientClass(in); got != want {
			t.Errorf("patientClass(%q): expected %q, got %q", in, want, got)
		}
	}
}

func TestMapCode(t *testing.T) {
	if got := mapCode(tables.Gender, "female"); got != "F" {
		t.Errorf("expected F, got %q", got)
	}
	if got := mapCode(tables.Gender, ""); got != "" {
		t.Errorf("expected empty for empty code, got %q", got)
	}
}

func TestTableCode_PrefersV2Coding(t *testing.T) {
	cc := map[string]interface{}{"coding": []interface{}{
		map[string]interface{}{"system": "http://snomed.info/sct", "code": "123"},
		map[string]interface{}{"system": "http://terminology.hl7.org/CodeSystem/v2-0002", "code": "M"},
	}}
	if got := tableCode(tables.MaritalStatus, cc); got != "M" {
		t.Errorf("expected v2 coding M, got %q", got)
	}
}

func TestReferenceRange(t *testing.T) {
	low := map[string]interface{}{"value": float64(4)}
	high := map[string]interface{}{"value": 10.5}
	cases := []struct {
		rr   map[string]interface{}
		want string
	}{
		{map[string]interface{}{"low": low, "high": high}, "4-10.5"},
		{map[string]interface{}{"high": high}, "<10.5"},
		{map[string]interface{}{"low": low}, ">4"},
		{map[string]interface{}{"text": "negative"}, "negative"},
	}
	for _, c := range cases {
		if got := referenceRange(c.rr); got != c.want {
			t.Errorf("expected %q, got %q", c.want, got)
		}
	}
}

func TestOrderNumbers(t *testing.T) {
	res := fhir.Resource{"resourceType": "ServiceRequest", "id": "sr9", "identifier": []interface{}{
		map[string]interface{}{"type": map[string]interface{}{"coding": []interface{}{map[string]interface{}{"code": "FILL"}}}, "value": "F-1"},
	}}
	placer, filler := orderNumbers(res)
	if fhir.GetString(placer, "value") != "sr9" {
		t.Errorf("expected id as placer, got %v", placer)
	}
	if fhir.GetString(filler, "value") != "F-1" {
		t.Errorf("expected filler F-1, got %v", filler)
	}
}
