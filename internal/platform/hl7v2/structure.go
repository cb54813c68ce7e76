package hl7v2

// GroupDef describes a repeating segment group by composition: a group
// instance opens on one of its anchor segments and runs while subsequent
// segments are members. Seeing an anchor the current instance already holds
// opens the next instance.
type GroupDef struct {
	Name    string
	Anchors []string
	Members []string
}

// Structure is the generic descriptor attached to a message: which groups
// exist. Segments outside every group, including Z-segments, are root-level.
type Structure struct {
	ID     string
	Groups []GroupDef
}

var (
	insuranceGroup = GroupDef{
		Name:    "INSURANCE",
		Anchors: []string{"IN1"},
		Members: []string{"IN1", "IN2", "IN3", "ROL"},
	}
	pharmacyOrderGroup = GroupDef{
		Name:    "ORDER",
		Anchors: []string{"ORC"},
		Members: []string{"ORC", "TQ1", "TQ2", "RXO", "RXE", "RXR", "RXC", "RXA", "RXD", "NTE", "OBX", "FT1"},
	}
)

var structures = map[string]Structure{
	"ADT_A01": {ID: "ADT_A01", Groups: []GroupDef{insuranceGroup}},
	"ORM_O01": {ID: "ORM_O01", Groups: []GroupDef{{
		Name:    "ORDER",
		Anchors: []string{"ORC"},
		Members: []string{"ORC", "TQ1", "OBR", "RQD", "RXO", "RXR", "RXC", "NTE", "DG1", "OBX", "CTI", "BLG"},
	}}},
	"ORU_R01": {ID: "ORU_R01", Groups: []GroupDef{{
		Name:    "ORDER_OBSERVATION",
		Anchors: []string{"ORC", "OBR"},
		Members: []string{"ORC", "OBR", "TQ1", "NTE", "OBX", "FT1", "CTI", "SPM"},
	}}},
	"RDE_O11": {ID: "RDE_O11", Groups: []GroupDef{pharmacyOrderGroup}},
	"RAS_O17": {ID: "RAS_O17", Groups: []GroupDef{pharmacyOrderGroup}},
	"VXU_V04": {ID: "VXU_V04", Groups: []GroupDef{pharmacyOrderGroup}},
	"SIU_S12": {ID: "SIU_S12", Groups: []GroupDef{{
		Name:    "RESOURCES",
		Anchors: []string{"RGS"},
		Members: []string{"RGS", "AIS", "AIG", "AIL", "AIP", "NTE"},
	}}},
	"MDM_T02": {ID: "MDM_T02"},
}

// defaultStructures maps a message code to the structure used when MSH-9.3
// is not sent.
var defaultStructures = map[string]string{
	"ADT": "ADT_A01",
	"ORM": "ORM_O01",
	"OML": "ORM_O01",
	"ORU": "ORU_R01",
	"RDE": "RDE_O11",
	"RAS": "RAS_O17",
	"VXU": "VXU_V04",
	"SIU": "SIU_S12",
	"MDM": "MDM_T02",
}

// LookupStructure resolves the structure for a message. Unknown messages get
// a descriptor with no groups, so every segment is root-level.
func LookupStructure(code, trigger, structureID string) Structure {
	if s, ok := structures[structureID]; ok {
		return s
	}
	if s, ok := structures[code+"_"+trigger]; ok {
		return s
	}
	if id, ok := defaultStructures[code]; ok {
		return structures[id]
	}
	id := structureID
	if id == "" && code != "" {
		id = code + "_" + trigger
	}
	return Structure{ID: id}
}

// Structure returns the descriptor for this message.
func (m *Message) Structure() Structure {
	return LookupStructure(m.Type, m.Trigger, m.StructureID)
}

func (g GroupDef) isAnchor(name string) bool {
	for _, a := range g.Anchors {
		if a == name {
			return true
		}
	}
	return false
}

func (g GroupDef) isMember(name string) bool {
	for _, a := range g.Members {
		if a == name {
			return true
		}
	}
	return false
}
