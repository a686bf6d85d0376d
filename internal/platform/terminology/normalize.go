package terminology

import (
	"regexp"
	"strings"
)

// Concept is a coded value tagged with its code system. Concepts whose
// system is Unrecognized or whose code fails the structural check are kept
// with Validated=false; they are never dropped.
type Concept struct {
	System    CodeSystem
	Code      string
	Display   string
	Validated bool
}

// IsZero reports whether the concept carries neither a code nor a display.
func (c Concept) IsZero() bool {
	return c.Code == "" && c.Display == ""
}

// Label is the text a clinician should see: the display name when present,
// otherwise the bare code.
func (c Concept) Label() string {
	if c.Display != "" {
		return c.Display
	}
	return c.Code
}

var codePatterns = map[CodeSystem]*regexp.Regexp{
	SNOMEDCT: regexp.MustCompile(`^\d{6,18}$`),
	LOINC:    regexp.MustCompile(`^(LA|LP)?\d{1,7}-\d$`),
	ICD10:    regexp.MustCompile(`^[A-Z]\d{2}(\.[0-9A-Z]{1,4})?$`),
	ATC:      regexp.MustCompile(`^[A-Z](\d{2}([A-Z]([A-Z](\d{2})?)?)?)?$`),
	UCUM:     regexp.MustCompile(`^[!-~]+$`),
}

// Normalize builds a Concept from a source system identifier, code and
// display name. It is pure: equal inputs always give equal Concepts.
func Normalize(systemHint, code, display string) Concept {
	c := Concept{
		System:  ResolveSystem(systemHint),
		Code:    strings.TrimSpace(code),
		Display: collapseSpace(display),
	}
	c.Validated = Validate(c.System, c.Code)
	return c
}

// Validate runs the structural check for system. Unrecognized systems never
// validate.
func Validate(system CodeSystem, code string) bool {
	if code == "" {
		return false
	}
	re, ok := codePatterns[system]
	if !ok {
		return false
	}
	switch system {
	case ICD10, ATC:
		code = strings.ToUpper(code)
	}
	return re.MatchString(code)
}

// Unit normalizes a unit of measure. Units in CDA PQ values and FHIR
// Quantity.code are UCUM by definition, so the system is implied. A
// missing unit yields the zero Concept.
func Unit(unit string) Concept {
	unit = strings.TrimSpace(unit)
	if unit == "" {
		return Concept{}
	}
	return Normalize(SystemUCUM, unit, unit)
}

// Text builds an uncoded concept from free text, e.g. a CDA originalText
// without a code.
func Text(display string) Concept {
	return Normalize("", "", display)
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
