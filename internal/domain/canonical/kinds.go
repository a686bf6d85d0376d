// Package canonical is the single in-memory model every source document is
// normalized into. Records are a closed set of variants, one per SectionKind.
package canonical

import (
	"fmt"
	"strings"
)

// SectionKind is the closed set of clinical sections.
type SectionKind uint8

const (
	SectionMedication SectionKind = iota
	SectionAllergy
	SectionProblem
	SectionPastIllness
	SectionProcedure
	SectionImmunization
	SectionVitalSign
	SectionPhysicalFinding
	SectionSocialHistory
	SectionLaboratoryResult
	SectionPregnancy
	SectionDevice
	SectionAdvanceDirective

	sectionKindCount
)

var sectionKindNames = [sectionKindCount]string{
	SectionMedication:       "medication",
	SectionAllergy:          "allergy",
	SectionProblem:          "problem",
	SectionPastIllness:      "past_illness",
	SectionProcedure:        "procedure",
	SectionImmunization:     "immunization",
	SectionVitalSign:        "vital_sign",
	SectionPhysicalFinding:  "physical_finding",
	SectionSocialHistory:    "social_history",
	SectionLaboratoryResult: "laboratory_result",
	SectionPregnancy:        "pregnancy",
	SectionDevice:           "device",
	SectionAdvanceDirective: "advance_directive",
}

// AllSectionKinds returns every SectionKind in display order.
func AllSectionKinds() []SectionKind {
	kinds := make([]SectionKind, sectionKindCount)
	for i := range kinds {
		kinds[i] = SectionKind(i)
	}
	return kinds
}

// Valid reports whether k is one of the declared kinds.
func (k SectionKind) Valid() bool { return k < sectionKindCount }

func (k SectionKind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("SectionKind(%d)", uint8(k))
	}
	return sectionKindNames[k]
}

// MarshalText encodes the kind by name; it lets SectionKind be a JSON key.
func (k SectionKind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("canonical: invalid section kind %d", uint8(k))
	}
	return []byte(sectionKindNames[k]), nil
}

// ParseSectionKind is the inverse of SectionKind.String.
func ParseSectionKind(s string) (SectionKind, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range sectionKindNames {
		if name == s {
			return SectionKind(i), true
		}
	}
	return 0, false
}

// SourceFormat identifies the representation a document arrived in.
type SourceFormat uint8

const (
	FormatAuto SourceFormat = iota
	FormatCDA
	FormatFHIR
)

func (f SourceFormat) String() string {
	switch f {
	case FormatCDA:
		return "cda"
	case FormatFHIR:
		return "fhir"
	default:
		return "auto"
	}
}

func (f SourceFormat) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// ParseSourceFormat accepts "cda", "xml", "fhir", "json" and "auto"/"".
func ParseSourceFormat(s string) (SourceFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return FormatAuto, nil
	case "cda", "xml", "hl7-cda":
		return FormatCDA, nil
	case "fhir", "json", "fhir+json":
		return FormatFHIR, nil
	}
	return FormatAuto, fmt.Errorf("unsupported source format %q", s)
}

// Completeness records whether an adapter could extract everything a record
// normally carries.
type Completeness uint8

const (
	CompletenessUnknown Completeness = iota
	CompletenessFull
	CompletenessPartial
)

func (c Completeness) String() string {
	switch c {
	case CompletenessFull:
		return "full"
	case CompletenessPartial:
		return "partial"
	default:
		return "unknown"
	}
}

func (c Completeness) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Provenance points back at the source fragment a record came from.
type Provenance struct {
	SourceFormat  SourceFormat `json:"source_format"`
	RawFragmentID string       `json:"raw_fragment_id"`
}
