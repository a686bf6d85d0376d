package ccda

import "encoding/xml"

// Element names are matched without a namespace so documents that declare
// urn:hl7-org:v3 as the default namespace or through a prefix decode alike.

// LOINC section codes for EU Patient Summary and C-CDA sections.
const (
	LOINCMedications       = "10160-0"
	LOINCAllergies         = "48765-2"
	LOINCProblems          = "11450-4"
	LOINCPastIllness       = "11348-0"
	LOINCProcedures        = "47519-4"
	LOINCImmunizations     = "11369-6"
	LOINCVitalSigns        = "8716-3"
	LOINCPhysicalFindings  = "29545-1"
	LOINCSocialHistory     = "29762-2"
	LOINCResults           = "30954-2"
	LOINCPregnancy         = "10162-6"
	LOINCDevices           = "46264-8"
	LOINCAdvanceDirectives = "42348-3"
)

// LOINC entry-level codes used to recognise nested observations.
const (
	LOINCCriticality      = "82606-5"
	LOINCSeverity         = "SEV"
	LOINCDoseNumber       = "30973-2"
	LOINCProblemStatus    = "33999-4"
	SNOMEDSeverity        = "246112005"
	SNOMEDCriticality     = "246111003"
	templateSeverity      = "2.16.840.1.113883.10.20.22.4.8"
	templateCriticality   = "2.16.840.1.113883.10.20.22.4.145"
	templateReaction      = "2.16.840.1.113883.10.20.22.4.9"
	templateProblemStatus = "2.16.840.1.113883.10.20.22.4.6"
)

// ClinicalDocument is the root element of a CDA R2 document.
type ClinicalDocument struct {
	XMLName            xml.Name            `xml:"ClinicalDocument"`
	ID                 *II                 `xml:"id"`
	Code               *CD                 `xml:"code"`
	Title              string              `xml:"title"`
	EffectiveTime      *TS                 `xml:"effectiveTime"`
	LanguageCode       *CD                 `xml:"languageCode"`
	RecordTargets      []RecordTarget      `xml:"recordTarget"`
	Authors            []Author            `xml:"author"`
	Custodian          *Custodian          `xml:"custodian"`
	LegalAuthenticator *LegalAuthenticator `xml:"legalAuthenticator"`
	Participants       []HeaderParticipant `xml:"participant"`
	Component          *BodyComponent      `xml:"component"`
}

// II is an instance identifier.
type II struct {
	Root                   string `xml:"root,attr"`
	Extension              string `xml:"extension,attr"`
	AssigningAuthorityName string `xml:"assigningAuthorityName,attr"`
	NullFlavor             string `xml:"nullFlavor,attr"`
}

// CD is a coded value. It also decodes CE, CV, CS and CO.
type CD struct {
	Code           string `xml:"code,attr"`
	CodeSystem     string `xml:"codeSystem,attr"`
	CodeSystemName string `xml:"codeSystemName,attr"`
	DisplayName    string `xml:"displayName,attr"`
	NullFlavor     string `xml:"nullFlavor,attr"`
	OriginalText   *ED    `xml:"originalText"`
	Translations   []CD   `xml:"translation"`
}

// ED is encapsulated text: inline content and/or a reference into the
// section narrative.
type ED struct {
	Reference *Reference `xml:"reference"`
	Content   string     `xml:",chardata"`
}

// Reference points at a narrative element by "#ID".
type Reference struct {
	Value string `xml:"value,attr"`
}

// TS is a point in time.
type TS struct {
	Value      string `xml:"value,attr"`
	NullFlavor string `xml:"nullFlavor,attr"`
}

// IVLTS is an effectiveTime: a point (value) or an interval.
type IVLTS struct {
	Type   string `xml:"type,attr"`
	Value  string `xml:"value,attr"`
	Low    *TS    `xml:"low"`
	High   *TS    `xml:"high"`
	Center *TS    `xml:"center"`
}

// PQ is a physical quantity.
type PQ struct {
	Value string `xml:"value,attr"`
	Unit  string `xml:"unit,attr"`
}

// Value is an observation value of any xsi:type.
type Value struct {
	Type           string     `xml:"type,attr"`
	Value          string     `xml:"value,attr"`
	Unit           string     `xml:"unit,attr"`
	Code           string     `xml:"code,attr"`
	CodeSystem     string     `xml:"codeSystem,attr"`
	CodeSystemName string     `xml:"codeSystemName,attr"`
	DisplayName    string     `xml:"displayName,attr"`
	NullFlavor     string     `xml:"nullFlavor,attr"`
	OriginalText   *ED        `xml:"originalText"`
	Translations   []CD       `xml:"translation"`
	Low            *PQ        `xml:"low"`
	High           *PQ        `xml:"high"`
	Reference      *Reference `xml:"reference"`
	Content        string     `xml:",chardata"`
}

// AsCD views the coded part of the value.
func (v *Value) AsCD() *CD {
	return &CD{
		Code:           v.Code,
		CodeSystem:     v.CodeSystem,
		CodeSystemName: v.CodeSystemName,
		DisplayName:    v.DisplayName,
		NullFlavor:     v.NullFlavor,
		OriginalText:   v.OriginalText,
		Translations:   v.Translations,
	}
}

// RecordTarget holds the patient.
type RecordTarget struct {
	PatientRole *PatientRole `xml:"patientRole"`
}

// PatientRole contains patient identifiers and demographics.
type PatientRole struct {
	IDs      []II      `xml:"id"`
	Addrs    []Address `xml:"addr"`
	Telecoms []Telecom `xml:"telecom"`
	Patient  *Patient  `xml:"patient"`
}

// Patient holds patient demographic data.
type Patient struct {
	Names                    []PersonName `xml:"name"`
	AdministrativeGenderCode *CD          `xml:"administrativeGenderCode"`
	BirthTime                *TS          `xml:"birthTime"`
}

// PersonName is a PN. Unstructured names carry only Content.
type PersonName struct {
	Prefixes []string `xml:"prefix"`
	Given    []string `xml:"given"`
	Family   []string `xml:"family"`
	Content  string   `xml:",chardata"`
}

// Address is an AD.
type Address struct {
	Use                string   `xml:"use,attr"`
	StreetAddressLines []string `xml:"streetAddressLine"`
	City               string   `xml:"city"`
	State              string   `xml:"state"`
	PostalCode         string   `xml:"postalCode"`
	Country            string   `xml:"country"`
}

// Telecom is a TEL.
type Telecom struct {
	Use   string `xml:"use,attr"`
	Value string `xml:"value,attr"`
}

// Person is an assignedPerson / associatedPerson.
type Person struct {
	Names []PersonName `xml:"name"`
}

// Organization is any represented or scoping organization.
type Organization struct {
	IDs      []II      `xml:"id"`
	Names    []string  `xml:"name"`
	Telecoms []Telecom `xml:"telecom"`
	Addrs    []Address `xml:"addr"`
}

// Author holds authoring information in the header.
type Author struct {
	Time           *TS             `xml:"time"`
	AssignedAuthor *AssignedEntity `xml:"assignedAuthor"`
}

// AssignedEntity is shared by assignedAuthor and the legal authenticator's
// assignedEntity.
type AssignedEntity struct {
	IDs                     []II             `xml:"id"`
	Code                    *CD              `xml:"code"`
	Addrs                   []Address        `xml:"addr"`
	Telecoms                []Telecom        `xml:"telecom"`
	AssignedPerson          *Person          `xml:"assignedPerson"`
	AssignedAuthoringDevice *AuthoringDevice `xml:"assignedAuthoringDevice"`
	RepresentedOrganization *Organization    `xml:"representedOrganization"`
}

// AuthoringDevice identifies software acting as author.
type AuthoringDevice struct {
	ManufacturerModelName string `xml:"manufacturerModelName"`
	SoftwareName          string `xml:"softwareName"`
}

// Custodian holds the custodian organization.
type Custodian struct {
	AssignedCustodian *AssignedCustodian `xml:"assignedCustodian"`
}

// AssignedCustodian contains the custodian organization.
type AssignedCustodian struct {
	RepresentedCustodianOrganization *Organization `xml:"representedCustodianOrganization"`
}

// LegalAuthenticator signs the document.
type LegalAuthenticator struct {
	Time           *TS             `xml:"time"`
	AssignedEntity *AssignedEntity `xml:"assignedEntity"`
}

// HeaderParticipant is a header-level participant, e.g. an emergency
// contact (typeCode IND, associatedEntity classCode ECON).
type HeaderParticipant struct {
	TypeCode         string            `xml:"typeCode,attr"`
	AssociatedEntity *AssociatedEntity `xml:"associatedEntity"`
}

// AssociatedEntity is a related party.
type AssociatedEntity struct {
	ClassCode           string        `xml:"classCode,attr"`
	Code                *CD           `xml:"code"`
	Addrs               []Address     `xml:"addr"`
	Telecoms            []Telecom     `xml:"telecom"`
	AssociatedPerson    *Person       `xml:"associatedPerson"`
	ScopingOrganization *Organization `xml:"scopingOrganization"`
}

// BodyComponent wraps the structured body.
type BodyComponent struct {
	StructuredBody *StructuredBody `xml:"structuredBody"`
}

// StructuredBody holds the document sections.
type StructuredBody struct {
	Components []SectionComponent `xml:"component"`
}

// SectionComponent wraps a single section.
type SectionComponent struct {
	Section *Section `xml:"section"`
}

// Section is a CDA section. Sections may nest.
type Section struct {
	ID          *II                `xml:"id"`
	TemplateIDs []II               `xml:"templateId"`
	Code        *CD                `xml:"code"`
	Title       string             `xml:"title"`
	Text        *Narrative         `xml:"text"`
	Entries     []Holder           `xml:"entry"`
	Components  []SectionComponent `xml:"component"`
}

// Narrative is the raw XHTML-like section text.
type Narrative struct {
	Inner string `xml:",innerxml"`
}

// Holder is anything that wraps one clinical statement: entry,
// entryRelationship and organizer component.
type Holder struct {
	TypeCode                string     `xml:"typeCode,attr"`
	Act                     *Statement `xml:"act"`
	Observation             *Statement `xml:"observation"`
	SubstanceAdministration *Statement `xml:"substanceAdministration"`
	Supply                  *Statement `xml:"supply"`
	Procedure               *Statement `xml:"procedure"`
	Organizer               *Statement `xml:"organizer"`
	Encounter               *Statement `xml:"encounter"`
}

// Statement returns the wrapped statement, or nil.
func (h *Holder) Statement() *Statement {
	for _, s := range []*Statement{
		h.Act, h.Observation, h.SubstanceAdministration, h.Supply,
		h.Procedure, h.Organizer, h.Encounter,
	} {
		if s != nil {
			return s
		}
	}
	return nil
}

// Statement is the common shape of every CDA clinical statement. Fields a
// given element never carries simply stay empty.
type Statement struct {
	XMLName            xml.Name
	ClassCode          string           `xml:"classCode,attr"`
	MoodCode           string           `xml:"moodCode,attr"`
	NegationInd        string           `xml:"negationInd,attr"`
	TemplateIDs        []II             `xml:"templateId"`
	IDs                []II             `xml:"id"`
	Code               *CD              `xml:"code"`
	Text               *ED              `xml:"text"`
	StatusCode         *CD              `xml:"statusCode"`
	EffectiveTimes     []IVLTS          `xml:"effectiveTime"`
	RepeatNumber       *IVLTS           `xml:"repeatNumber"`
	Values             []Value          `xml:"value"`
	InterpretationCode []CD             `xml:"interpretationCode"`
	RouteCode          *CD              `xml:"routeCode"`
	TargetSiteCodes    []CD             `xml:"targetSiteCode"`
	DoseQuantity       *PQ              `xml:"doseQuantity"`
	Consumable         *Product         `xml:"consumable"`
	Product            *Product         `xml:"product"`
	Participants       []Participant    `xml:"participant"`
	ReferenceRanges    []ReferenceRange `xml:"referenceRange"`
	EntryRelationships []Holder         `xml:"entryRelationship"`
	Components         []Holder         `xml:"component"`
}

// Product is a consumable or supply product.
type Product struct {
	ManufacturedProduct *ManufacturedProduct `xml:"manufacturedProduct"`
}

// ManufacturedProduct holds the material; some national variants use
// manufacturedLabeledDrug instead.
type ManufacturedProduct struct {
	ManufacturedMaterial    *Material `xml:"manufacturedMaterial"`
	ManufacturedLabeledDrug *Material `xml:"manufacturedLabeledDrug"`
}

// Material is a medication, vaccine or device material.
type Material struct {
	Code          *CD    `xml:"code"`
	Name          string `xml:"name"`
	LotNumberText string `xml:"lotNumberText"`
}

// Participant is an entry-level participant (agent, device, ...).
type Participant struct {
	TypeCode        string           `xml:"typeCode,attr"`
	ParticipantRole *ParticipantRole `xml:"participantRole"`
}

// ParticipantRole holds the participating entity or device.
type ParticipantRole struct {
	IDs           []II           `xml:"id"`
	Code          *CD            `xml:"code"`
	PlayingEntity *PlayingEntity `xml:"playingEntity"`
	PlayingDevice *PlayingEntity `xml:"playingDevice"`
}

// PlayingEntity is a substance or device playing a participant role.
type PlayingEntity struct {
	Code  *CD      `xml:"code"`
	Names []string `xml:"name"`
}

// ReferenceRange wraps an observationRange.
type ReferenceRange struct {
	ObservationRange *ObservationRange `xml:"observationRange"`
}

// ObservationRange is a reference interval.
type ObservationRange struct {
	Text  *ED    `xml:"text"`
	Value *Value `xml:"value"`
}
