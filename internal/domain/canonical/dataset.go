package canonical

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/ehr/psnormalizer/internal/platform/clinicaldate"
)

// NotRecorded is the sentinel placed in demographic and administrative
// string fields that no source strategy could fill.
const NotRecorded = "Unknown"

// Identifier is an HL7 instance identifier (CDA II / FHIR Identifier).
type Identifier struct {
	Extension          string `json:"extension,omitempty"`
	Root               string `json:"root,omitempty"`
	AssigningAuthority string `json:"assigning_authority,omitempty"`
}

// Demographics describes the patient.
type Demographics struct {
	GivenName   string            `json:"given_name"`
	FamilyName  string            `json:"family_name"`
	BirthDate   clinicaldate.Date `json:"birth_date"`
	Gender      string            `json:"gender"`
	Identifiers []Identifier      `json:"identifiers"`
}

// FullName joins given and family names.
func (p Demographics) FullName() string {
	return strings.TrimSpace(p.GivenName + " " + p.FamilyName)
}

// HasPatient reports whether anything identifying the patient was found.
func (p Demographics) HasPatient() bool {
	return p.GivenName != "" || p.FamilyName != "" || len(p.Identifiers) > 0
}

// WithDefaults fills empty string fields with NotRecorded.
func (p Demographics) WithDefaults() Demographics {
	p.GivenName = orNotRecorded(p.GivenName)
	p.FamilyName = orNotRecorded(p.FamilyName)
	p.Gender = orNotRecorded(p.Gender)
	if p.Identifiers == nil {
		p.Identifiers = []Identifier{}
	}
	return p
}

// ExtractionSource names which step of a fallback chain produced a value.
type ExtractionSource uint8

const (
	SourceNone ExtractionSource = iota
	SourceEnhanced
	SourceBasic
	SourceDefault
)

func (s ExtractionSource) String() string {
	switch s {
	case SourceEnhanced:
		return "enhanced"
	case SourceBasic:
		return "basic"
	case SourceDefault:
		return "default"
	}
	return "none"
}

func (s ExtractionSource) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Completeness maps the chain step to a record completeness.
func (s ExtractionSource) Completeness() Completeness {
	switch s {
	case SourceEnhanced:
		return CompletenessFull
	case SourceBasic:
		return CompletenessPartial
	}
	return CompletenessUnknown
}

// Organization is the document custodian.
type Organization struct {
	Name        string           `json:"name"`
	Identifiers []Identifier     `json:"identifiers"`
	Address     string           `json:"address,omitempty"`
	Telecoms    []string         `json:"telecoms"`
	Source      ExtractionSource `json:"source"`
}

// Party is a person acting on the document: author, legal authenticator or
// emergency contact.
type Party struct {
	Name         string            `json:"name"`
	Role         string            `json:"role,omitempty"`
	Organization string            `json:"organization,omitempty"`
	Telecoms     []string          `json:"telecoms"`
	Time         clinicaldate.Date `json:"time"`
	Source       ExtractionSource  `json:"source"`
}

func (p Party) withDefaults() Party {
	p.Name = orNotRecorded(p.Name)
	if p.Telecoms == nil {
		p.Telecoms = []string{}
	}
	if p.Source == SourceNone {
		p.Source = SourceDefault
	}
	return p
}

// AdministrativeData carries document-level parties.
type AdministrativeData struct {
	Custodian          Organization `json:"custodian"`
	Authors            []Party      `json:"authors"`
	LegalAuthenticator Party        `json:"legal_authenticator"`
	EmergencyContacts  []Party      `json:"emergency_contacts"`
}

// WithDefaults fills empty fields with NotRecorded and marks their source as
// SourceDefault.
func (a AdministrativeData) WithDefaults() AdministrativeData {
	a.Custodian.Name = orNotRecorded(a.Custodian.Name)
	if a.Custodian.Identifiers == nil {
		a.Custodian.Identifiers = []Identifier{}
	}
	if a.Custodian.Telecoms == nil {
		a.Custodian.Telecoms = []string{}
	}
	if a.Custodian.Source == SourceNone {
		a.Custodian.Source = SourceDefault
	}
	a.LegalAuthenticator = a.LegalAuthenticator.withDefaults()

	authors := make([]Party, 0, len(a.Authors))
	for _, p := range a.Authors {
		authors = append(authors, p.withDefaults())
	}
	a.Authors = authors

	contacts := make([]Party, 0, len(a.EmergencyContacts))
	for _, p := range a.EmergencyContacts {
		contacts = append(contacts, p.withDefaults())
	}
	a.EmergencyContacts = contacts
	return a
}

func orNotRecorded(s string) string {
	if strings.TrimSpace(s) == "" {
		return NotRecorded
	}
	return s
}

// DataSet is the result of normalizing one document. Every SectionKind has
// a list, possibly empty. A DataSet is owned by the caller that requested
// it and is not safe for concurrent mutation.
type DataSet struct {
	SourceFormat   SourceFormat
	Country        string
	Patient        Demographics
	Administrative AdministrativeData

	sections [sectionKindCount][]Record
}

// NewDataSet returns an empty DataSet with every section present.
func NewDataSet(format SourceFormat, country string) *DataSet {
	ds := &DataSet{SourceFormat: format, Country: country}
	ds.ensureSections()
	return ds
}

func (d *DataSet) ensureSections() {
	for i := range d.sections {
		if d.sections[i] == nil {
			d.sections[i] = []Record{}
		}
	}
}

// Add appends r to the section matching its kind. Nil records are ignored.
func (d *DataSet) Add(r Record) {
	if r == nil || !r.Kind().Valid() {
		return
	}
	d.sections[r.Kind()] = append(d.sections[r.Kind()], r)
}

// Records returns a copy of the records in one section, never nil.
func (d *DataSet) Records(kind SectionKind) []Record {
	if !kind.Valid() {
		return []Record{}
	}
	out := make([]Record, len(d.sections[kind]))
	copy(out, d.sections[kind])
	return out
}

// Len is the total number of records across all sections.
func (d *DataSet) Len() int {
	n := 0
	for _, recs := range d.sections {
		n += len(recs)
	}
	return n
}

// Count returns the number of records per section, keyed by every kind.
func (d *DataSet) Count() map[SectionKind]int {
	out := make(map[SectionKind]int, sectionKindCount)
	for i, recs := range d.sections {
		out[SectionKind(i)] = len(recs)
	}
	return out
}

// PartialCount is the number of records flagged CompletenessPartial.
func (d *DataSet) PartialCount(kind SectionKind) int {
	if !kind.Valid() {
		return 0
	}
	n := 0
	for _, r := range d.sections[kind] {
		if r.Meta().Completeness == CompletenessPartial {
			n++
		}
	}
	return n
}

// ApplyDefaults fills absent demographic and administrative fields with
// NotRecorded. Clinical records are never defaulted.
func (d *DataSet) ApplyDefaults() {
	d.ensureSections()
	d.Patient = d.Patient.WithDefaults()
	d.Administrative = d.Administrative.WithDefaults()
}

type dataSetHeader struct {
	SourceFormat   SourceFormat       `json:"source_format"`
	Country        string             `json:"country,omitempty"`
	Patient        Demographics       `json:"patient"`
	Administrative AdministrativeData `json:"administrative"`
}

// MarshalJSON writes sections as an object whose keys follow SectionKind
// order, so the output is stable across runs.
func (d *DataSet) MarshalJSON() ([]byte, error) {
	head, err := json.Marshal(dataSetHeader{
		SourceFormat:   d.SourceFormat,
		Country:        d.Country,
		Patient:        d.Patient,
		Administrative: d.Administrative,
	})
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Write(head[:len(head)-1])
	buf.WriteString(`,"sections":{`)
	for i, recs := range d.sections {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, _ := json.Marshal(SectionKind(i).String())
		buf.Write(key)
		buf.WriteByte(':')
		if recs == nil {
			recs = []Record{}
		}
		body, err := json.Marshal(recs)
		if err != nil {
			return nil, err
		}
		buf.Write(body)
	}
	buf.WriteString("}}")
	return buf.Bytes(), nil
}
