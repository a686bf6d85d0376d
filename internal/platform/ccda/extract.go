package ccda

import (
	"fmt"
	"strings"

	"github.com/ehr/psnormalizer/internal/domain/canonical"
	"github.com/ehr/psnormalizer/internal/platform/clinicaldate"
	"github.com/ehr/psnormalizer/internal/platform/terminology"
)

// maxDepth bounds entryRelationship recursion.
const maxDepth = 8

// extraction is everything the strategy chain pulled out of one clinical
// statement, plus the extractions of its nested statements.
type extraction struct {
	element   string
	typeCode  string
	fragment  string
	templates []string

	// code-elements
	code           terminology.Concept
	value          canonical.ObservationValue
	material       terminology.Concept
	entity         terminology.Concept
	route          terminology.Concept
	site           terminology.Concept
	interpretation terminology.Concept

	// contextual-elements
	text       string
	status     string
	when       clinicaldate.Date
	period     canonical.Period
	dose       canonical.Quantity
	lot        string
	doseNumber string
	refRange   string

	// structural-elements
	children []*extraction

	degraded bool
}

// strategy fills part of an extraction from a statement. A strategy may
// panic on unexpected input; the chain recovers and marks the extraction
// degraded.
type strategy struct {
	name string
	run  func(sc *sectionContext, st *Statement, x *extraction, depth int)
}

// defaultStrategies is the fixed order every statement goes through.
var defaultStrategies = []strategy{
	{name: "code-elements", run: extractCodes},
	{name: "contextual-elements", run: extractContext},
	{name: "structural-elements", run: extractStructure},
}

// extract runs the strategy chain over st.
func (sc *sectionContext) extract(st *Statement, typeCode string, depth int) *extraction {
	x := &extraction{
		element:  st.XMLName.Local,
		typeCode: typeCode,
		fragment: fragmentID(st.IDs),
	}
	for _, t := range st.TemplateIDs {
		x.templates = append(x.templates, t.Root)
	}
	for _, s := range sc.strategies {
		if !sc.runStrategy(s, st, x, depth) {
			x.degraded = true
		}
	}
	return x
}

func (sc *sectionContext) runStrategy(s strategy, st *Statement, x *extraction, depth int) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			sc.logger.Warn().
				Str("section", sc.kind.String()).
				Str("fragment", x.fragment).
				Str("strategy", s.name).
				Str("panic", fmt.Sprint(r)).
				Msg("extraction strategy failed")
			ok = false
		}
	}()
	s.run(sc, st, x, depth)
	return true
}

func extractCodes(sc *sectionContext, st *Statement, x *extraction, _ int) {
	x.code = sc.concept(st.Code)
	for i := range st.Values {
		v := &st.Values[i]
		if isCoded(v) {
			x.value.Concept = sc.concept(v.AsCD())
			break
		}
	}
	if m := material(st); m != nil {
		x.material = sc.concept(m.Code)
		if x.material.IsZero() && m.Name != "" {
			x.material = terminology.Text(m.Name)
		}
	}
	for _, p := range st.Participants {
		if p.ParticipantRole == nil {
			continue
		}
		role := p.ParticipantRole
		for _, e := range []*PlayingEntity{role.PlayingEntity, role.PlayingDevice} {
			if e == nil || !x.entity.IsZero() {
				continue
			}
			x.entity = sc.concept(e.Code)
			if x.entity.IsZero() && len(e.Names) > 0 {
				x.entity = terminology.Text(e.Names[0])
			}
		}
	}
	x.route = sc.concept(st.RouteCode)
	if len(st.TargetSiteCodes) > 0 {
		x.site = sc.concept(&st.TargetSiteCodes[0])
	}
	if len(st.InterpretationCode) > 0 {
		x.interpretation = sc.concept(&st.InterpretationCode[0])
	}
}

func extractContext(sc *sectionContext, st *Statement, x *extraction, _ int) {
	x.text = sc.narrative.resolve(st.Text)
	if st.StatusCode != nil {
		x.status = strings.ToLower(st.StatusCode.Code)
	}

	if et := effectiveTime(st.EffectiveTimes); et != nil {
		x.period.Start = cdaDate(first(et.Low, et.Value))
		x.period.End = cdaDate(first(et.High, ""))
		x.when = cdaDate(first(et.Center, et.Value))
		if !x.when.IsKnown() {
			x.when = x.period.Start
		}
	}

	if st.DoseQuantity != nil {
		x.dose = canonical.NewQuantity(st.DoseQuantity.Value, st.DoseQuantity.Unit)
	}
	if m := material(st); m != nil {
		x.lot = strings.TrimSpace(m.LotNumberText)
	}
	if st.RepeatNumber != nil {
		x.doseNumber = strings.TrimSpace(first(st.RepeatNumber.Low, st.RepeatNumber.Value))
	}

	for i := range st.Values {
		v := &st.Values[i]
		if isCoded(v) {
			continue
		}
		sc.scalarValue(v, x)
		break
	}

	for _, rr := range st.ReferenceRanges {
		if rr.ObservationRange == nil {
			continue
		}
		if text := sc.narrative.resolve(rr.ObservationRange.Text); text != "" {
			x.refRange = text
			break
		}
		if v := rr.ObservationRange.Value; v != nil {
			x.refRange = rangeText(v)
			break
		}
	}
}

func extractStructure(sc *sectionContext, st *Statement, x *extraction, depth int) {
	if depth >= maxDepth {
		return
	}
	for _, group := range [][]Holder{st.EntryRelationships, st.Components} {
		for i := range group {
			child := group[i].Statement()
			if child == nil {
				continue
			}
			x.children = append(x.children, sc.extract(child, strings.ToUpper(group[i].TypeCode), depth+1))
		}
	}
}

// scalarValue fills the non-coded value types.
func (sc *sectionContext) scalarValue(v *Value, x *extraction) {
	switch valueType(v) {
	case "PQ", "INT", "REAL", "MO":
		x.value.Quantity = canonical.NewQuantity(v.Value, v.Unit)
	case "TS":
		x.value.Date = cdaDate(v.Value)
	case "BL":
		x.value.Text = strings.ToLower(strings.TrimSpace(v.Value))
	case "IVL_PQ":
		x.value.Text = rangeText(v)
	case "ST", "ED", "":
		text := collapse(v.Content)
		if text == "" && v.Reference != nil {
			text = sc.narrative.lookup(v.Reference.Value)
		}
		if text == "" && v.Value != "" {
			// Untyped values with a numeric value attribute are quantities.
			x.value.Quantity = canonical.NewQuantity(v.Value, v.Unit)
			return
		}
		x.value.Text = text
	}
}

// concept converts a CD, preferring the first of the code and its
// translations that belongs to a recognised code system.
func (sc *sectionContext) concept(cd *CD) terminology.Concept {
	if cd == nil {
		return terminology.Concept{}
	}
	pick := cd
	if cd.Code == "" || terminology.ResolveSystem(systemOf(cd)) == terminology.Unrecognized {
		for i := range cd.Translations {
			t := &cd.Translations[i]
			if t.Code != "" && terminology.ResolveSystem(systemOf(t)) != terminology.Unrecognized {
				pick = t
				break
			}
		}
	}

	display := pick.DisplayName
	if display == "" {
		display = cd.DisplayName
	}
	if display == "" {
		display = sc.narrative.resolve(cd.OriginalText)
	}
	if pick.Code == "" && display == "" {
		return terminology.Concept{}
	}
	if pick.Code == "" {
		return terminology.Text(display)
	}
	return terminology.Normalize(systemOf(pick), pick.Code, display)
}

func systemOf(cd *CD) string {
	if cd.CodeSystem != "" {
		return cd.CodeSystem
	}
	return cd.CodeSystemName
}

func isCoded(v *Value) bool {
	switch valueType(v) {
	case "CD", "CE", "CV", "CO", "CS":
		return true
	case "":
		return v.Code != "" || v.DisplayName != ""
	}
	return false
}

// valueType strips any namespace prefix from xsi:type.
func valueType(v *Value) string {
	t := v.Type
	if i := strings.IndexByte(t, ':'); i >= 0 {
		t = t[i+1:]
	}
	return strings.ToUpper(strings.TrimSpace(t))
}

func rangeText(v *Value) string {
	var low, high, unit string
	if v.Low != nil {
		low, unit = canonical.Decimal(v.Low.Value), v.Low.Unit
	}
	if v.High != nil {
		high = canonical.Decimal(v.High.Value)
		if unit == "" {
			unit = v.High.Unit
		}
	}
	var out string
	switch {
	case low != "" && high != "":
		out = low + "-" + high
	case low != "":
		out = ">=" + low
	case high != "":
		out = "<=" + high
	default:
		return ""
	}
	if unit != "" {
		out += " " + unit
	}
	return out
}

func material(st *Statement) *Material {
	for _, p := range []*Product{st.Consumable, st.Product} {
		if p == nil || p.ManufacturedProduct == nil {
			continue
		}
		if m := p.ManufacturedProduct.ManufacturedMaterial; m != nil {
			return m
		}
		if m := p.ManufacturedProduct.ManufacturedLabeledDrug; m != nil {
			return m
		}
	}
	return nil
}

// effectiveTime picks the first interval or point, skipping periodic
// frequencies that follow it on substanceAdministration.
func effectiveTime(ets []IVLTS) *IVLTS {
	for i := range ets {
		switch valueTypeOf(ets[i].Type) {
		case "PIVL_TS", "EIVL_TS", "SXPR_TS":
			continue
		}
		return &ets[i]
	}
	return nil
}

func valueTypeOf(t string) string {
	return valueType(&Value{Type: t})
}

func first(ts *TS, fallback string) string {
	if ts != nil && ts.Value != "" {
		return ts.Value
	}
	return fallback
}

func cdaDate(raw string) clinicaldate.Date {
	return clinicaldate.Normalize(raw, clinicaldate.HintCDA)
}

func fragmentID(ids []II) string {
	for _, id := range ids {
		switch {
		case id.Extension != "" && id.Root != "":
			return id.Root + "/" + id.Extension
		case id.Extension != "":
			return id.Extension
		case id.Root != "":
			return id.Root
		}
	}
	return ""
}

// ---- Tree helpers ----

// find returns x or the first descendant (depth first) matching pred.
func (x *extraction) find(pred func(*extraction) bool) *extraction {
	if pred(x) {
		return x
	}
	for _, c := range x.children {
		if f := c.find(pred); f != nil {
			return f
		}
	}
	return nil
}

// anyDegraded reports whether x or a descendant lost a strategy.
func (x *extraction) anyDegraded() bool {
	return x.find(func(e *extraction) bool { return e.degraded }) != nil
}

func (x *extraction) hasTemplate(root string) bool {
	for _, t := range x.templates {
		if t == root {
			return true
		}
	}
	return false
}

// codeIs reports whether the statement code matches any of codes.
func (x *extraction) codeIs(codes ...string) bool {
	for _, c := range codes {
		if x.code.Code == c {
			return true
		}
	}
	return false
}

// start is the best available start date: low, else the point value.
func (x *extraction) start() clinicaldate.Date {
	if x.period.Start.IsKnown() {
		return x.period.Start
	}
	return x.when
}

// label returns the concept, falling back to free text.
func label(c terminology.Concept, text string) terminology.Concept {
	if !c.IsZero() {
		return c
	}
	if text != "" {
		return terminology.Text(text)
	}
	return terminology.Concept{}
}
