// Package terminology tags codes from CDA and FHIR documents with a closed
// set of code systems and sanity-checks their structure. It never calls a
// terminology server: every lookup is a read of an immutable table.
package terminology

import (
	"encoding/json"
	"strings"
)

// CodeSystem is the closed set of terminologies the engine recognises.
type CodeSystem uint8

const (
	Unrecognized CodeSystem = iota
	SNOMEDCT
	LOINC
	ICD10
	ATC
	UCUM
)

// Canonical system URIs, as used in FHIR.
const (
	SystemSNOMED = "http://snomed.info/sct"
	SystemLOINC  = "http://loinc.org"
	SystemICD10  = "http://hl7.org/fhir/sid/icd-10"
	SystemATC    = "http://www.whocc.no/atc"
	SystemUCUM   = "http://unitsofmeasure.org"
)

// Code system OIDs, as used in CDA codeSystem attributes.
const (
	OIDSNOMED  = "2.16.840.1.113883.6.96"
	OIDLOINC   = "2.16.840.1.113883.6.1"
	OIDICD10   = "2.16.840.1.113883.6.3"
	OIDICD10CM = "2.16.840.1.113883.6.90"
	OIDATC     = "2.16.840.1.113883.6.73"
	OIDUCUM    = "2.16.840.1.113883.6.8"
)

var codeSystemNames = [...]string{
	Unrecognized: "Unrecognized",
	SNOMEDCT:     "SNOMED CT",
	LOINC:        "LOINC",
	ICD10:        "ICD-10",
	ATC:          "ATC",
	UCUM:         "UCUM",
}

func (s CodeSystem) String() string {
	if int(s) < len(codeSystemNames) {
		return codeSystemNames[s]
	}
	return codeSystemNames[Unrecognized]
}

// URI returns the canonical FHIR system URI, or "" for Unrecognized.
func (s CodeSystem) URI() string {
	switch s {
	case SNOMEDCT:
		return SystemSNOMED
	case LOINC:
		return SystemLOINC
	case ICD10:
		return SystemICD10
	case ATC:
		return SystemATC
	case UCUM:
		return SystemUCUM
	}
	return ""
}

// MarshalText encodes the system by its display name.
func (s CodeSystem) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// systemAliases maps every spelling seen in source documents to a
// CodeSystem. Keys are lower-cased with any "urn:oid:" prefix and trailing
// slash removed.
var systemAliases = map[string]CodeSystem{
	// SNOMED CT
	OIDSNOMED:                  SNOMEDCT,
	"2.16.840.1.113883.6.96.1": SNOMEDCT,
	"http://snomed.info/sct":   SNOMEDCT,
	"snomed ct":                SNOMEDCT,
	"snomed-ct":                SNOMEDCT,
	"snomedct":                 SNOMEDCT,
	"snomed":                   SNOMEDCT,
	"sct":                      SNOMEDCT,
	"snomed clinical terms":    SNOMEDCT,

	// LOINC
	OIDLOINC:           LOINC,
	"http://loinc.org": LOINC,
	"loinc":            LOINC,
	"ln":               LOINC,

	// ICD-10 (WHO and national clinical modifications)
	OIDICD10:                            ICD10,
	OIDICD10CM:                          ICD10,
	"http://hl7.org/fhir/sid/icd-10":    ICD10,
	"http://hl7.org/fhir/sid/icd-10-cm": ICD10,
	"icd-10":                            ICD10,
	"icd10":                             ICD10,
	"icd-10-cm":                         ICD10,
	"icd10cm":                           ICD10,
	"icd-10 who":                        ICD10,

	// ATC
	OIDATC:                    ATC,
	"http://www.whocc.no/atc": ATC,
	"atc":                     ATC,
	"who atc":                 ATC,
	"whoatc":                  ATC,

	// UCUM
	OIDUCUM:                     UCUM,
	"http://unitsofmeasure.org": UCUM,
	"ucum":                      UCUM,
}

// ResolveSystem maps a loosely typed system identifier (OID, URI or name)
// to a CodeSystem.
func ResolveSystem(hint string) CodeSystem {
	key := strings.ToLower(strings.TrimSpace(hint))
	key = strings.TrimPrefix(key, "urn:oid:")
	key = strings.TrimSuffix(key, "/")
	if key == "" {
		return Unrecognized
	}
	if cs, ok := systemAliases[key]; ok {
		return cs
	}
	// SNOMED edition URIs carry a module path after the base URI.
	if strings.HasPrefix(key, SystemSNOMED+"/") {
		return SNOMEDCT
	}
	return Unrecognized
}

type conceptJSON struct {
	System    CodeSystem `json:"system"`
	Code      string     `json:"code,omitempty"`
	Display   string     `json:"display,omitempty"`
	Validated bool       `json:"validated"`
}

// MarshalJSON emits the concept with its system name so the presentation
// layer can render a provenance badge without knowing the enum.
func (c Concept) MarshalJSON() ([]byte, error) {
	return json.Marshal(conceptJSON(c))
}
