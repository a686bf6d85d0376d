package canonical

import (
	"strings"

	"github.com/ehr/psnormalizer/internal/platform/clinicaldate"
	"github.com/ehr/psnormalizer/internal/platform/terminology"
)

// Summary is the display projection of one record.
type Summary struct {
	Section      SectionKind  `json:"section"`
	Title        string       `json:"title"`
	Code         string       `json:"code,omitempty"`
	CodeSystem   string       `json:"code_system,omitempty"`
	Validated    bool         `json:"validated"`
	When         string       `json:"when"`
	Detail       string       `json:"detail,omitempty"`
	Completeness Completeness `json:"completeness"`
}

// Describe projects r into a Summary, rendering dates in style.
func Describe(r Record, style clinicaldate.Style) Summary {
	d := describer{style: style}
	r.Accept(&d)
	d.out.Section = r.Kind()
	d.out.Completeness = r.Meta().Completeness
	if d.out.Title == "" {
		d.out.Title = NotRecorded
	}
	return d.out
}

// DescribeSection projects every record of one section.
func DescribeSection(ds *DataSet, kind SectionKind, style clinicaldate.Style) []Summary {
	recs := ds.Records(kind)
	out := make([]Summary, 0, len(recs))
	for _, r := range recs {
		out = append(out, Describe(r, style))
	}
	return out
}

type describer struct {
	style clinicaldate.Style
	out   Summary
}

func (d *describer) concept(c terminology.Concept) {
	d.out.Title = c.Label()
	d.out.Code = c.Code
	if c.System != terminology.Unrecognized {
		d.out.CodeSystem = c.System.String()
	}
	d.out.Validated = c.Validated
}

func (d *describer) date(dt clinicaldate.Date) {
	d.out.When = clinicaldate.Format(dt, d.style)
}

func (d *describer) period(p Period) {
	d.out.When = clinicaldate.FormatRange(p.Start, p.End, d.style)
}

func (d *describer) details(parts ...string) {
	var kept []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	d.out.Detail = strings.Join(kept, "; ")
}

func (d *describer) VisitMedication(r Medication) {
	d.concept(r.Substance)
	d.period(r.Period)
	d.details(r.Dose.String(), r.Route.Label())
}

func (d *describer) VisitAllergy(r Allergy) {
	d.concept(r.Agent)
	d.date(r.Onset)
	d.details(r.Reaction.Label(), r.Severity, r.Criticality)
}

func (d *describer) VisitProblem(r Problem) {
	d.concept(r.Condition)
	d.date(r.Onset)
}

func (d *describer) VisitPastIllness(r PastIllness) {
	d.concept(r.Condition)
	d.period(Period{Start: r.Onset, End: r.Resolved})
}

func (d *describer) VisitProcedure(r Procedure) {
	d.concept(r.Procedure)
	d.date(r.Performed)
	d.details(r.BodySite.Label())
}

func (d *describer) VisitImmunization(r Immunization) {
	d.concept(r.Vaccine)
	d.date(r.Date)
	var dose string
	if r.DoseNumber != "" {
		dose = "dose " + r.DoseNumber
	}
	var lot string
	if r.LotNumber != "" {
		lot = "lot " + r.LotNumber
	}
	d.details(dose, lot)
}

func (d *describer) VisitVitalSign(r VitalSign) {
	d.concept(r.Observation)
	d.date(r.Effective)
	d.details(r.Value.Display(d.style))
}

func (d *describer) VisitPhysicalFinding(r PhysicalFinding) {
	d.concept(r.Finding)
	d.date(r.Effective)
	d.details(r.Value.Display(d.style))
}

func (d *describer) VisitSocialHistory(r SocialHistory) {
	d.concept(r.Observation)
	d.date(r.Effective)
	d.details(r.Value.Display(d.style))
}

func (d *describer) VisitLaboratoryResult(r LaboratoryResult) {
	d.concept(r.Test)
	d.date(r.Effective)
	var ref string
	if r.ReferenceRange != "" {
		ref = "ref " + r.ReferenceRange
	}
	d.details(r.Value.Display(d.style), r.Interpretation.Label(), ref)
}

func (d *describer) VisitPregnancy(r Pregnancy) {
	d.concept(r.Observation)
	d.date(r.Date)
	d.details(r.Value.Display(d.style))
}

func (d *describer) VisitDevice(r Device) {
	d.concept(r.Device)
	d.date(r.Implanted)
}

func (d *describer) VisitAdvanceDirective(r AdvanceDirective) {
	d.concept(r.Directive)
	if d.out.Title == "" {
		d.out.Title = r.Text
	}
	d.period(r.Period)
	if r.Text != d.out.Title {
		d.details(r.Text)
	}
}
