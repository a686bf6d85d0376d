package canonical

import (
	"math"
	"strconv"
	"strings"

	"github.com/ehr/psnormalizer/internal/platform/clinicaldate"
	"github.com/ehr/psnormalizer/internal/platform/terminology"
)

// RecordMeta is carried by every record variant.
type RecordMeta struct {
	Provenance   Provenance   `json:"provenance"`
	Completeness Completeness `json:"completeness"`
}

// Record is a clinical record. The set of implementations is closed: one
// struct per SectionKind, all declared in this file. Code that must handle
// every variant implements RecordVisitor, so adding a variant breaks the
// build until every visitor is updated.
type Record interface {
	Kind() SectionKind
	Meta() RecordMeta
	Accept(v RecordVisitor)
	withMeta(m RecordMeta) Record
}

// RecordVisitor has one method per record variant.
type RecordVisitor interface {
	VisitMedication(Medication)
	VisitAllergy(Allergy)
	VisitProblem(Problem)
	VisitPastIllness(PastIllness)
	VisitProcedure(Procedure)
	VisitImmunization(Immunization)
	VisitVitalSign(VitalSign)
	VisitPhysicalFinding(PhysicalFinding)
	VisitSocialHistory(SocialHistory)
	VisitLaboratoryResult(LaboratoryResult)
	VisitPregnancy(Pregnancy)
	VisitDevice(Device)
	VisitAdvanceDirective(AdvanceDirective)
}

// Equivalent reports whether a and b describe the same clinical fact: same
// variant and identical clinical fields. Provenance and completeness are
// ignored, which is what makes CDA and FHIR results comparable.
func Equivalent(a, b Record) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.withMeta(RecordMeta{}) == b.withMeta(RecordMeta{})
}

// WithMeta returns a copy of r carrying m.
func WithMeta(r Record, m RecordMeta) Record {
	return r.withMeta(m)
}

// Quantity is a measured amount. Value holds a canonical decimal string so
// "36.60" and 36.6 compare equal.
type Quantity struct {
	Value string              `json:"value,omitempty"`
	Unit  terminology.Concept `json:"unit"`
}

// NewQuantity builds a Quantity from a source decimal and a UCUM unit.
// Numeric values are rewritten in shortest form; anything else is kept
// trimmed as written.
func NewQuantity(value, unit string) Quantity {
	return Quantity{Value: Decimal(value), Unit: terminology.Unit(unit)}
}

// Decimal returns the shortest decimal form of s ("36.60" becomes "36.6",
// "1e2" becomes "100"). Non-numeric input is returned trimmed.
func Decimal(s string) string {
	s = strings.TrimSpace(s)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return s
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func (q Quantity) IsZero() bool { return q.Value == "" && q.Unit.IsZero() }

func (q Quantity) String() string {
	if q.Unit.IsZero() {
		return q.Value
	}
	return strings.TrimSpace(q.Value + " " + q.Unit.Label())
}

// ObservationValue holds whichever typed value an observation carried.
type ObservationValue struct {
	Quantity Quantity            `json:"quantity"`
	Concept  terminology.Concept `json:"concept"`
	Text     string              `json:"text,omitempty"`
	Date     clinicaldate.Date   `json:"date"`
}

func (v ObservationValue) IsZero() bool {
	return v.Quantity.IsZero() && v.Concept.IsZero() && v.Text == "" && !v.Date.IsKnown()
}

// Display renders the value; dates use style.
func (v ObservationValue) Display(style clinicaldate.Style) string {
	switch {
	case !v.Quantity.IsZero():
		return v.Quantity.String()
	case !v.Concept.IsZero():
		return v.Concept.Label()
	case v.Text != "":
		return v.Text
	case v.Date.IsKnown():
		return clinicaldate.Format(v.Date, style)
	}
	return ""
}

// Period is a start/end pair of clinical dates.
type Period struct {
	Start clinicaldate.Date `json:"start"`
	End   clinicaldate.Date `json:"end"`
}

type Medication struct {
	RecordMeta
	Substance terminology.Concept `json:"substance"`
	Dose      Quantity            `json:"dose"`
	Route     terminology.Concept `json:"route"`
	Period    Period              `json:"period"`
}

type Allergy struct {
	RecordMeta
	Agent       terminology.Concept `json:"agent"`
	Reaction    terminology.Concept `json:"reaction"`
	Severity    string              `json:"severity,omitempty"`
	Criticality string              `json:"criticality,omitempty"`
	Onset       clinicaldate.Date   `json:"onset"`
}

type Problem struct {
	RecordMeta
	Condition terminology.Concept `json:"condition"`
	Onset     clinicaldate.Date   `json:"onset"`
}

type PastIllness struct {
	RecordMeta
	Condition terminology.Concept `json:"condition"`
	Onset     clinicaldate.Date   `json:"onset"`
	Resolved  clinicaldate.Date   `json:"resolved"`
}

type Procedure struct {
	RecordMeta
	Procedure terminology.Concept `json:"procedure"`
	BodySite  terminology.Concept `json:"body_site"`
	Performed clinicaldate.Date   `json:"performed"`
}

type Immunization struct {
	RecordMeta
	Vaccine    terminology.Concept `json:"vaccine"`
	DoseNumber string              `json:"dose_number,omitempty"`
	LotNumber  string              `json:"lot_number,omitempty"`
	Date       clinicaldate.Date   `json:"date"`
}

type VitalSign struct {
	RecordMeta
	Observation terminology.Concept `json:"observation"`
	Value       ObservationValue    `json:"value"`
	Effective   clinicaldate.Date   `json:"effective"`
}

type PhysicalFinding struct {
	RecordMeta
	Finding   terminology.Concept `json:"finding"`
	Value     ObservationValue    `json:"value"`
	Effective clinicaldate.Date   `json:"effective"`
}

type SocialHistory struct {
	RecordMeta
	Observation terminology.Concept `json:"observation"`
	Value       ObservationValue    `json:"value"`
	Effective   clinicaldate.Date   `json:"effective"`
}

type LaboratoryResult struct {
	RecordMeta
	Test           terminology.Concept `json:"test"`
	Value          ObservationValue    `json:"value"`
	Interpretation terminology.Concept `json:"interpretation"`
	ReferenceRange string              `json:"reference_range,omitempty"`
	Effective      clinicaldate.Date   `json:"effective"`
}

// Pregnancy covers pregnancy status, expected delivery and the individual
// outcome entries of the pregnancy history.
type Pregnancy struct {
	RecordMeta
	Observation terminology.Concept `json:"observation"`
	Value       ObservationValue    `json:"value"`
	Date        clinicaldate.Date   `json:"date"`
}

type Device struct {
	RecordMeta
	Device    terminology.Concept `json:"device"`
	Implanted clinicaldate.Date   `json:"implanted"`
}

type AdvanceDirective struct {
	RecordMeta
	Directive terminology.Concept `json:"directive"`
	Text      string              `json:"text,omitempty"`
	Period    Period              `json:"period"`
}

func (r Medication) Kind() SectionKind       { return SectionMedication }
func (r Allergy) Kind() SectionKind          { return SectionAllergy }
func (r Problem) Kind() SectionKind          { return SectionProblem }
func (r PastIllness) Kind() SectionKind      { return SectionPastIllness }
func (r Procedure) Kind() SectionKind        { return SectionProcedure }
func (r Immunization) Kind() SectionKind     { return SectionImmunization }
func (r VitalSign) Kind() SectionKind        { return SectionVitalSign }
func (r PhysicalFinding) Kind() SectionKind  { return SectionPhysicalFinding }
func (r SocialHistory) Kind() SectionKind    { return SectionSocialHistory }
func (r LaboratoryResult) Kind() SectionKind { return SectionLaboratoryResult }
func (r Pregnancy) Kind() SectionKind        { return SectionPregnancy }
func (r Device) Kind() SectionKind           { return SectionDevice }
func (r AdvanceDirective) Kind() SectionKind { return SectionAdvanceDirective }

func (r Medication) Meta() RecordMeta       { return r.RecordMeta }
func (r Allergy) Meta() RecordMeta          { return r.RecordMeta }
func (r Problem) Meta() RecordMeta          { return r.RecordMeta }
func (r PastIllness) Meta() RecordMeta      { return r.RecordMeta }
func (r Procedure) Meta() RecordMeta        { return r.RecordMeta }
func (r Immunization) Meta() RecordMeta     { return r.RecordMeta }
func (r VitalSign) Meta() RecordMeta        { return r.RecordMeta }
func (r PhysicalFinding) Meta() RecordMeta  { return r.RecordMeta }
func (r SocialHistory) Meta() RecordMeta    { return r.RecordMeta }
func (r LaboratoryResult) Meta() RecordMeta { return r.RecordMeta }
func (r Pregnancy) Meta() RecordMeta        { return r.RecordMeta }
func (r Device) Meta() RecordMeta           { return r.RecordMeta }
func (r AdvanceDirective) Meta() RecordMeta { return r.RecordMeta }

func (r Medication) Accept(v RecordVisitor)       { v.VisitMedication(r) }
func (r Allergy) Accept(v RecordVisitor)          { v.VisitAllergy(r) }
func (r Problem) Accept(v RecordVisitor)          { v.VisitProblem(r) }
func (r PastIllness) Accept(v RecordVisitor)      { v.VisitPastIllness(r) }
func (r Procedure) Accept(v RecordVisitor)        { v.VisitProcedure(r) }
func (r Immunization) Accept(v RecordVisitor)     { v.VisitImmunization(r) }
func (r VitalSign) Accept(v RecordVisitor)        { v.VisitVitalSign(r) }
func (r PhysicalFinding) Accept(v RecordVisitor)  { v.VisitPhysicalFinding(r) }
func (r SocialHistory) Accept(v RecordVisitor)    { v.VisitSocialHistory(r) }
func (r LaboratoryResult) Accept(v RecordVisitor) { v.VisitLaboratoryResult(r) }
func (r Pregnancy) Accept(v RecordVisitor)        { v.VisitPregnancy(r) }
func (r Device) Accept(v RecordVisitor)           { v.VisitDevice(r) }
func (r AdvanceDirective) Accept(v RecordVisitor) { v.VisitAdvanceDirective(r) }

func (r Medication) withMeta(m RecordMeta) Record       { r.RecordMeta = m; return r }
func (r Allergy) withMeta(m RecordMeta) Record          { r.RecordMeta = m; return r }
func (r Problem) withMeta(m RecordMeta) Record          { r.RecordMeta = m; return r }
func (r PastIllness) withMeta(m RecordMeta) Record      { r.RecordMeta = m; return r }
func (r Procedure) withMeta(m RecordMeta) Record        { r.RecordMeta = m; return r }
func (r Immunization) withMeta(m RecordMeta) Record     { r.RecordMeta = m; return r }
func (r VitalSign) withMeta(m RecordMeta) Record        { r.RecordMeta = m; return r }
func (r PhysicalFinding) withMeta(m RecordMeta) Record  { r.RecordMeta = m; return r }
func (r SocialHistory) withMeta(m RecordMeta) Record    { r.RecordMeta = m; return r }
func (r LaboratoryResult) withMeta(m RecordMeta) Record { r.RecordMeta = m; return r }
func (r Pregnancy) withMeta(m RecordMeta) Record        { r.RecordMeta = m; return r }
func (r Device) withMeta(m RecordMeta) Record           { r.RecordMeta = m; return r }
func (r AdvanceDirective) withMeta(m RecordMeta) Record { r.RecordMeta = m; return r }
