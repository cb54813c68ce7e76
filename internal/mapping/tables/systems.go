package tables

import (
	"regexp"
	"strings"

	fm "github.com/ehr/hl7bridge/pkg/fhirmodels"
)

// codingSystems maps HL7 v2 coding system names (CWE.3) to FHIR system URIs.
var codingSystems = map[string]string{
	"LN":     fm.SystemLOINC,
	"LOINC":  fm.SystemLOINC,
	"SCT":    fm.SystemSNOMED,
	"SNM":    fm.SystemSNOMED,
	"SNOMED": fm.SystemSNOMED,
	"I10":    fm.SystemICD10CM,
	"I10C":   fm.SystemICD10CM,
	"ICD10":  fm.SystemICD10CM,
	"I9C":    fm.SystemICD9CM,
	"I9":     fm.SystemICD9CM,
	"RXNORM": fm.SystemRxNorm,
	"RXN":    fm.SystemRxNorm,
	"CVX":    fm.SystemCVX,
	"MVX":    fm.SystemMVX,
	"NDC":    fm.SystemNDC,
	"CPT":    fm.SystemCPT,
	"C4":     fm.SystemCPT,
	"UCUM":   fm.SystemUCUM,
}

// systemNames is the preferred v2 name for each known FHIR system.
var systemNames = map[string]string{
	fm.SystemLOINC:   "LN",
	fm.SystemSNOMED:  "SCT",
	fm.SystemICD10CM: "I10",
	fm.SystemICD9CM:  "I9C",
	fm.SystemRxNorm:  "RXNORM",
	fm.SystemCVX:     "CVX",
	fm.SystemMVX:     "MVX",
	fm.SystemNDC:     "NDC",
	fm.SystemCPT:     "CPT",
	fm.SystemUCUM:    "UCUM",
}

var hl7Table = regexp.MustCompile(`^HL7(\d{4})$`)

const localPrefix = "urn:id:"

// ExtensionBase prefixes the extensions that keep v2 values FHIR has no
// element for.
const ExtensionBase = "urn:hl7bridge:extension:"

// SystemURI returns the FHIR system for a v2 coding system name. Unknown
// names become "urn:id:<name>"; an empty name yields "".
func SystemURI(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if uri, ok := codingSystems[strings.ToUpper(name)]; ok {
		return uri
	}
	if m := hl7Table.FindStringSubmatch(strings.ToUpper(name)); m != nil {
		return fm.SystemV2Prefix + m[1]
	}
	if isURI(name) {
		return name
	}
	return localPrefix + name
}

// SystemName is the inverse of SystemURI.
func SystemName(uri string) string {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return ""
	}
	if name, ok := systemNames[uri]; ok {
		return name
	}
	if strings.HasPrefix(uri, fm.SystemV2Prefix) {
		return "HL7" + strings.TrimPrefix(uri, fm.SystemV2Prefix)
	}
	if strings.HasPrefix(uri, localPrefix) {
		return strings.TrimPrefix(uri, localPrefix)
	}
	return uri
}

var oidPattern = regexp.MustCompile(`^[0-2](\.(0|[1-9]\d*))+$`)

// IdentifierSystem turns an assigning authority (CX.4 / XCN.9) into an
// Identifier.system. OIDs become urn:oid:, URLs are kept, anything else is
// namespaced under urn:id:.
func IdentifierSystem(authority, universalID string) string {
	if universalID != "" && oidPattern.MatchString(universalID) {
		return "urn:oid:" + universalID
	}
	authority = strings.TrimSpace(authority)
	if authority == "" {
		if universalID != "" {
			return IdentifierSystem(universalID, "")
		}
		return ""
	}
	if oidPattern.MatchString(authority) {
		return "urn:oid:" + authority
	}
	if isURI(authority) {
		return authority
	}
	return localPrefix + authority
}

// AuthorityName is the inverse of IdentifierSystem: it yields the namespace
// id to write into CX.4.1.
func AuthorityName(system string) string {
	switch {
	case strings.HasPrefix(system, "urn:oid:"):
		return strings.TrimPrefix(system, "urn:oid:")
	case strings.HasPrefix(system, localPrefix):
		return strings.TrimPrefix(system, localPrefix)
	}
	return system
}

func isURI(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "urn:")
}
