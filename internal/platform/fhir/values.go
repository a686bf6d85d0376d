package fhir

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/ehr/psnormalizer/internal/domain/canonical"
	"github.com/ehr/psnormalizer/internal/platform/clinicaldate"
	"github.com/ehr/psnormalizer/internal/platform/terminology"
)

// concept picks the first coding from a recognised code system, otherwise
// the first coding with a code, otherwise the free text.
func concept(cc *CodeableConcept) terminology.Concept {
	if cc == nil {
		return terminology.Concept{}
	}
	var pick *Coding
	for i := range cc.Coding {
		c := &cc.Coding[i]
		if c.Code != "" && terminology.ResolveSystem(c.System) != terminology.Unrecognized {
			pick = c
			break
		}
	}
	if pick == nil {
		for i := range cc.Coding {
			if cc.Coding[i].Code != "" {
				pick = &cc.Coding[i]
				break
			}
		}
	}
	if pick == nil {
		return terminology.Text(cc.Text)
	}
	display := pick.Display
	if display == "" {
		display = cc.Text
	}
	return terminology.Normalize(pick.System, pick.Code, display)
}

// firstConcept returns the concept of the first non-empty element.
func firstConcept(ccs []CodeableConcept) terminology.Concept {
	for i := range ccs {
		if c := concept(&ccs[i]); !c.IsZero() {
			return c
		}
	}
	return terminology.Concept{}
}

// quantity prefers the UCUM code over the human readable unit.
func quantity(q *Quantity) canonical.Quantity {
	if q == nil {
		return canonical.Quantity{}
	}
	unit := q.Code
	if unit == "" {
		unit = q.Unit
	}
	return canonical.NewQuantity(q.Value.String(), unit)
}

func fhirDate(raw string) clinicaldate.Date {
	return clinicaldate.Normalize(raw, clinicaldate.HintFHIR)
}

// firstDate returns the first candidate that normalizes to a known date.
func firstDate(raws ...string) clinicaldate.Date {
	for _, r := range raws {
		if d := fhirDate(r); d.IsKnown() {
			return d
		}
	}
	return clinicaldate.Unknown()
}

func period(p *Period) canonical.Period {
	if p == nil {
		return canonical.Period{}
	}
	return canonical.Period{Start: fhirDate(p.Start), End: fhirDate(p.End)}
}

func periodStart(p *Period) string {
	if p == nil {
		return ""
	}
	return p.Start
}

func periodEnd(p *Period) string {
	if p == nil {
		return ""
	}
	return p.End
}

func observationValue(v ObservationValue) canonical.ObservationValue {
	var out canonical.ObservationValue
	switch {
	case v.ValueQuantity != nil:
		out.Quantity = quantity(v.ValueQuantity)
	case v.ValueCodeableConcept != nil:
		out.Concept = concept(v.ValueCodeableConcept)
	case v.ValueString != nil:
		out.Text = collapse(*v.ValueString)
	case v.ValueBoolean != nil:
		out.Text = strconv.FormatBool(*v.ValueBoolean)
	case v.ValueInteger != nil:
		out.Quantity = canonical.NewQuantity(strconv.Itoa(*v.ValueInteger), "")
	case v.ValueRange != nil:
		out.Text = rangeText(v.ValueRange.Low, v.ValueRange.High)
	case v.ValueDateTime != "":
		out.Date = fhirDate(v.ValueDateTime)
	}
	return out
}

// rangeText renders "70-99 mg/dL", ">=70 mg/dL" or "<=99 mg/dL".
func rangeText(low, high *Quantity) string {
	var lo, hi canonical.Quantity
	if low != nil {
		lo = quantity(low)
	}
	if high != nil {
		hi = quantity(high)
	}
	unit := lo.Unit
	if unit.IsZero() {
		unit = hi.Unit
	}
	var out string
	switch {
	case lo.Value != "" && hi.Value != "":
		out = lo.Value + "-" + hi.Value
	case lo.Value != "":
		out = ">=" + lo.Value
	case hi.Value != "":
		out = "<=" + hi.Value
	default:
		return ""
	}
	if !unit.IsZero() {
		out += " " + unit.Label()
	}
	return out
}

func referenceRange(rr []ObservationReferenceRange) string {
	for _, r := range rr {
		if text := collapse(r.Text); text != "" {
			return text
		}
		if text := rangeText(r.Low, r.High); text != "" {
			return text
		}
	}
	return ""
}

// divText flattens a narrative div to plain text. Block elements break
// words; inline markup does not.
func divText(n *Narrative) string {
	if n == nil || strings.TrimSpace(n.Div) == "" {
		return ""
	}
	doc, err := html.Parse(strings.NewReader(n.Div))
	if err != nil {
		return ""
	}
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		switch node.Type {
		case html.TextNode:
			sb.WriteString(node.Data)
		case html.ElementNode:
			switch node.DataAtom {
			case atom.Br, atom.Div, atom.P, atom.Li, atom.Td, atom.Th, atom.Tr:
				sb.WriteByte(' ')
			}
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return collapse(sb.String())
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func titleCase(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
