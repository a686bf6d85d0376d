package fhir

// The resource structs below carry only the elements the adapter reads.
// Unknown elements are ignored by encoding/json.

type Patient struct {
	Resource
	Identifier []Identifier     `json:"identifier,omitempty"`
	Name       []HumanName      `json:"name,omitempty"`
	Gender     string           `json:"gender,omitempty"`
	BirthDate  string           `json:"birthDate,omitempty"`
	Address    []Address        `json:"address,omitempty"`
	Contact    []PatientContact `json:"contact,omitempty"`
}

type PatientContact struct {
	Relationship []CodeableConcept `json:"relationship,omitempty"`
	Name         *HumanName        `json:"name,omitempty"`
	Telecom      []ContactPoint    `json:"telecom,omitempty"`
	Organization *Reference        `json:"organization,omitempty"`
}

type RelatedPerson struct {
	Resource
	Relationship []CodeableConcept `json:"relationship,omitempty"`
	Name         []HumanName       `json:"name,omitempty"`
	Telecom      []ContactPoint    `json:"telecom,omitempty"`
}

type Organization struct {
	Resource
	Identifier []Identifier   `json:"identifier,omitempty"`
	Name       string         `json:"name,omitempty"`
	Telecom    []ContactPoint `json:"telecom,omitempty"`
	Address    []Address      `json:"address,omitempty"`
}

type Practitioner struct {
	Resource
	Name    []HumanName    `json:"name,omitempty"`
	Telecom []ContactPoint `json:"telecom,omitempty"`
}

type PractitionerRole struct {
	Resource
	Practitioner *Reference        `json:"practitioner,omitempty"`
	Organization *Reference        `json:"organization,omitempty"`
	Code         []CodeableConcept `json:"code,omitempty"`
	Telecom      []ContactPoint    `json:"telecom,omitempty"`
}

type Device struct {
	Resource
	Type       *CodeableConcept   `json:"type,omitempty"`
	DeviceName []DeviceDeviceName `json:"deviceName,omitempty"`
}

type DeviceDeviceName struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

type Composition struct {
	Resource
	Date      string                `json:"date,omitempty"`
	Author    []Reference           `json:"author,omitempty"`
	Custodian *Reference            `json:"custodian,omitempty"`
	Attester  []CompositionAttester `json:"attester,omitempty"`
	Section   []CompositionSection  `json:"section,omitempty"`
}

type CompositionAttester struct {
	Mode  string     `json:"mode"`
	Time  string     `json:"time,omitempty"`
	Party *Reference `json:"party,omitempty"`
}

type CompositionSection struct {
	Title   string               `json:"title,omitempty"`
	Code    *CodeableConcept     `json:"code,omitempty"`
	Text    *Narrative           `json:"text,omitempty"`
	Entry   []Reference          `json:"entry,omitempty"`
	Section []CompositionSection `json:"section,omitempty"`
}

type Condition struct {
	Resource
	ClinicalStatus     *CodeableConcept `json:"clinicalStatus,omitempty"`
	VerificationStatus *CodeableConcept `json:"verificationStatus,omitempty"`
	Code               *CodeableConcept `json:"code,omitempty"`
	OnsetDateTime      string           `json:"onsetDateTime,omitempty"`
	OnsetPeriod        *Period          `json:"onsetPeriod,omitempty"`
	AbatementDateTime  string           `json:"abatementDateTime,omitempty"`
	AbatementPeriod    *Period          `json:"abatementPeriod,omitempty"`
	AbatementString    string           `json:"abatementString,omitempty"`
	AbatementBoolean   *bool            `json:"abatementBoolean,omitempty"`
}

type AllergyIntolerance struct {
	Resource
	ClinicalStatus     *CodeableConcept             `json:"clinicalStatus,omitempty"`
	VerificationStatus *CodeableConcept             `json:"verificationStatus,omitempty"`
	Criticality        string                       `json:"criticality,omitempty"`
	Code               *CodeableConcept             `json:"code,omitempty"`
	OnsetDateTime      string                       `json:"onsetDateTime,omitempty"`
	OnsetPeriod        *Period                      `json:"onsetPeriod,omitempty"`
	Reaction           []AllergyIntoleranceReaction `json:"reaction,omitempty"`
}

type AllergyIntoleranceReaction struct {
	Substance     *CodeableConcept  `json:"substance,omitempty"`
	Manifestation []CodeableConcept `json:"manifestation,omitempty"`
	Severity      string            `json:"severity,omitempty"`
	Onset         string            `json:"onset,omitempty"`
}

type Medication struct {
	Resource
	Code *CodeableConcept `json:"code,omitempty"`
}

type MedicationStatement struct {
	Resource
	Status                    string           `json:"status,omitempty"`
	MedicationCodeableConcept *CodeableConcept `json:"medicationCodeableConcept,omitempty"`
	MedicationReference       *Reference       `json:"medicationReference,omitempty"`
	EffectiveDateTime         string           `json:"effectiveDateTime,omitempty"`
	EffectivePeriod           *Period          `json:"effectivePeriod,omitempty"`
	Dosage                    []Dosage         `json:"dosage,omitempty"`
}

type MedicationRequest struct {
	Resource
	Status                    string           `json:"status,omitempty"`
	MedicationCodeableConcept *CodeableConcept `json:"medicationCodeableConcept,omitempty"`
	MedicationReference       *Reference       `json:"medicationReference,omitempty"`
	AuthoredOn                string           `json:"authoredOn,omitempty"`
	DosageInstruction         []Dosage         `json:"dosageInstruction,omitempty"`
	DispenseRequest           *struct {
		ValidityPeriod *Period `json:"validityPeriod,omitempty"`
	} `json:"dispenseRequest,omitempty"`
}

type Dosage struct {
	Text        string              `json:"text,omitempty"`
	Route       *CodeableConcept    `json:"route,omitempty"`
	DoseAndRate []DosageDoseAndRate `json:"doseAndRate,omitempty"`
}

type DosageDoseAndRate struct {
	DoseQuantity *Quantity `json:"doseQuantity,omitempty"`
}

type Procedure struct {
	Resource
	Status            string            `json:"status,omitempty"`
	Code              *CodeableConcept  `json:"code,omitempty"`
	PerformedDateTime string            `json:"performedDateTime,omitempty"`
	PerformedPeriod   *Period           `json:"performedPeriod,omitempty"`
	BodySite          []CodeableConcept `json:"bodySite,omitempty"`
}

type Immunization struct {
	Resource
	Status             string                 `json:"status,omitempty"`
	VaccineCode        *CodeableConcept       `json:"vaccineCode,omitempty"`
	OccurrenceDateTime string                 `json:"occurrenceDateTime,omitempty"`
	OccurrenceString   string                 `json:"occurrenceString,omitempty"`
	LotNumber          string                 `json:"lotNumber,omitempty"`
	ProtocolApplied    []ImmunizationProtocol `json:"protocolApplied,omitempty"`
}

// ImmunizationProtocol holds doseNumber[x], which FHIR R4 allows as either
// positiveInt or string.
type ImmunizationProtocol struct {
	DoseNumberPositiveInt *int   `json:"doseNumberPositiveInt,omitempty"`
	DoseNumberString      string `json:"doseNumberString,omitempty"`
}

type Observation struct {
	Resource
	Status            string                      `json:"status,omitempty"`
	Category          []CodeableConcept           `json:"category,omitempty"`
	Code              *CodeableConcept            `json:"code,omitempty"`
	EffectiveDateTime string                      `json:"effectiveDateTime,omitempty"`
	EffectivePeriod   *Period                     `json:"effectivePeriod,omitempty"`
	EffectiveInstant  string                      `json:"effectiveInstant,omitempty"`
	Interpretation    []CodeableConcept           `json:"interpretation,omitempty"`
	ReferenceRange    []ObservationReferenceRange `json:"referenceRange,omitempty"`
	Component         []ObservationComponent      `json:"component,omitempty"`
	HasMember         []Reference                 `json:"hasMember,omitempty"`
	ObservationValue
}

// ObservationValue is the value[x] choice shared by Observation and its
// components.
type ObservationValue struct {
	ValueQuantity        *Quantity        `json:"valueQuantity,omitempty"`
	ValueCodeableConcept *CodeableConcept `json:"valueCodeableConcept,omitempty"`
	ValueString          *string          `json:"valueString,omitempty"`
	ValueBoolean         *bool            `json:"valueBoolean,omitempty"`
	ValueInteger         *int             `json:"valueInteger,omitempty"`
	ValueRange           *Range           `json:"valueRange,omitempty"`
	ValueDateTime        string           `json:"valueDateTime,omitempty"`
}

type ObservationComponent struct {
	Code           *CodeableConcept  `json:"code,omitempty"`
	Interpretation []CodeableConcept `json:"interpretation,omitempty"`
	ObservationValue
}

type ObservationReferenceRange struct {
	Low  *Quantity `json:"low,omitempty"`
	High *Quantity `json:"high,omitempty"`
	Text string    `json:"text,omitempty"`
}

type DeviceUseStatement struct {
	Resource
	Status         string     `json:"status,omitempty"`
	Device         *Reference `json:"device,omitempty"`
	TimingDateTime string     `json:"timingDateTime,omitempty"`
	TimingPeriod   *Period    `json:"timingPeriod,omitempty"`
	RecordedOn     string     `json:"recordedOn,omitempty"`
}

type Consent struct {
	Resource
	Text      *Narrative        `json:"text,omitempty"`
	Status    string            `json:"status,omitempty"`
	Scope     *CodeableConcept  `json:"scope,omitempty"`
	Category  []CodeableConcept `json:"category,omitempty"`
	DateTime  string            `json:"dateTime,omitempty"`
	Provision *ConsentProvision `json:"provision,omitempty"`
}

type ConsentProvision struct {
	Type   string            `json:"type,omitempty"`
	Period *Period           `json:"period,omitempty"`
	Code   []CodeableConcept `json:"code,omitempty"`
}
