package fhirmodels

// Common FHIR value set constants shared by the CDA and FHIR adapters.

// ObservationCategory codes (http://terminology.hl7.org/CodeSystem/observation-category).
const (
	ObsCategoryVitalSigns    = "vital-signs"
	ObsCategoryLaboratory    = "laboratory"
	ObsCategoryImaging       = "imaging"
	ObsCategorySocialHistory = "social-history"
	ObsCategorySurvey        = "survey"
	ObsCategoryExam          = "exam"
	ObsCategoryProcedure     = "procedure"
	ObsCategoryActivity      = "activity"
	ObsCategoryTherapy       = "therapy"
)

// ConditionClinicalStatus codes.
const (
	ConditionActive     = "active"
	ConditionRecurrence = "recurrence"
	ConditionRelapse    = "relapse"
	ConditionInactive   = "inactive"
	ConditionRemission  = "remission"
	ConditionResolved   = "resolved"
)

// AllergyIntolerance criticality codes.
const (
	CriticalityLow            = "low"
	CriticalityHigh           = "high"
	CriticalityUnableToAssess = "unable-to-assess"
)

// AdministrativeGender codes.
const (
	GenderMale    = "male"
	GenderFemale  = "female"
	GenderOther   = "other"
	GenderUnknown = "unknown"
)

// GenderFromV3 maps an HL7 v3 AdministrativeGender code (as used in CDA
// headers) to the FHIR code. Unknown input maps to GenderUnknown.
func GenderFromV3(code string) string {
	switch code {
	case "M", "m":
		return GenderMale
	case "F", "f":
		return GenderFemale
	case "UN", "O":
		return GenderOther
	case GenderMale, GenderFemale, GenderOther:
		return code
	}
	return GenderUnknown
}
