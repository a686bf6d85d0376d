package ccda

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ehr/psnormalizer/internal/domain/canonical"
	"github.com/ehr/psnormalizer/internal/platform/clinicaldate"
)

// sectionKinds maps base section LOINC codes to their SectionKind.
var sectionKinds = map[string]canonical.SectionKind{
	LOINCMedications:       canonical.SectionMedication,
	LOINCAllergies:         canonical.SectionAllergy,
	LOINCProblems:          canonical.SectionProblem,
	LOINCPastIllness:       canonical.SectionPastIllness,
	LOINCProcedures:        canonical.SectionProcedure,
	LOINCImmunizations:     canonical.SectionImmunization,
	LOINCVitalSigns:        canonical.SectionVitalSign,
	LOINCPhysicalFindings:  canonical.SectionPhysicalFinding,
	LOINCSocialHistory:     canonical.SectionSocialHistory,
	LOINCResults:           canonical.SectionLaboratoryResult,
	LOINCPregnancy:         canonical.SectionPregnancy,
	LOINCDevices:           canonical.SectionDevice,
	LOINCAdvanceDirectives: canonical.SectionAdvanceDirective,
}

// sectionContext is the per-section state shared by the strategies.
type sectionContext struct {
	kind       canonical.SectionKind
	narrative  narrativeIndex
	strategies []strategy
	logger     zerolog.Logger
}

// entryMapper turns one extracted entry into zero or more records.
type entryMapper func(sc *sectionContext, x *extraction) []canonical.Record

var entryMappers = [...]entryMapper{
	canonical.SectionMedication:       mapMedication,
	canonical.SectionAllergy:          mapAllergy,
	canonical.SectionProblem:          mapProblem,
	canonical.SectionPastIllness:      mapProblem,
	canonical.SectionProcedure:        mapProcedure,
	canonical.SectionImmunization:     mapImmunization,
	canonical.SectionVitalSign:        mapObservations,
	canonical.SectionPhysicalFinding:  mapObservations,
	canonical.SectionSocialHistory:    mapObservations,
	canonical.SectionLaboratoryResult: mapObservations,
	canonical.SectionPregnancy:        mapPregnancy,
	canonical.SectionDevice:           mapDevice,
	canonical.SectionAdvanceDirective: mapAdvanceDirective,
}

// parseSection walks one section's entries and adds the resulting records
// to ds. A failing entry is logged and skipped; it never takes its
// siblings down with it.
func (p *Parser) parseSection(sec *Section, kind canonical.SectionKind, ds *canonical.DataSet) {
	sc := &sectionContext{
		kind:       kind,
		narrative:  indexNarrative(sec.Text),
		strategies: p.strategies,
		logger:     p.logger,
	}

	added := 0
	for i := range sec.Entries {
		st := sec.Entries[i].Statement()
		if st == nil {
			continue
		}
		for _, r := range sc.mapEntry(st) {
			ds.Add(r)
			added++
		}
	}

	// A directive written only as narrative is still a directive.
	if added == 0 && kind == canonical.SectionAdvanceDirective && sc.narrative.text != "" {
		ds.Add(canonical.AdvanceDirective{
			RecordMeta: canonical.RecordMeta{
				Provenance:   canonical.Provenance{SourceFormat: canonical.FormatCDA, RawFragmentID: fragmentID(optionalII(sec.ID))},
				Completeness: canonical.CompletenessUnknown,
			},
			Text: sc.narrative.text,
		})
	}
}

func (sc *sectionContext) mapEntry(st *Statement) (out []canonical.Record) {
	defer func() {
		if r := recover(); r != nil {
			sc.logger.Warn().
				Str("section", sc.kind.String()).
				Str("fragment", fragmentID(st.IDs)).
				Str("panic", fmt.Sprint(r)).
				Msg("entry mapping failed")
			out = nil
		}
	}()
	x := sc.extract(st, "", 0)
	out = entryMappers[sc.kind](sc, x)
	for _, r := range out {
		if r.Meta().Completeness == canonical.CompletenessPartial {
			sc.logger.Warn().
				Str("section", sc.kind.String()).
				Str("fragment", r.Meta().Provenance.RawFragmentID).
				Msg("degraded extraction")
		}
	}
	return out
}

// meta builds the record metadata for x. required is false when a field
// the variant cannot do without was missing.
func meta(root, x *extraction, required bool) canonical.RecordMeta {
	m := canonical.RecordMeta{
		Provenance:   canonical.Provenance{SourceFormat: canonical.FormatCDA, RawFragmentID: x.fragment},
		Completeness: canonical.CompletenessFull,
	}
	if m.Provenance.RawFragmentID == "" {
		m.Provenance.RawFragmentID = root.fragment
	}
	if !required || root.anyDegraded() {
		m.Completeness = canonical.CompletenessPartial
	}
	return m
}

func optionalII(id *II) []II {
	if id == nil {
		return nil
	}
	return []II{*id}
}

// ---- Entry Mappers ----

func mapMedication(_ *sectionContext, x *extraction) []canonical.Record {
	sa := x.find(func(e *extraction) bool {
		return e.element == "substanceAdministration" && !e.material.IsZero()
	})
	if sa == nil {
		sa = x.find(func(e *extraction) bool { return e.element == "substanceAdministration" })
	}
	if sa == nil {
		sa = x
	}
	rec := canonical.Medication{
		Substance: label(sa.material, sa.text),
		Dose:      sa.dose,
		Route:     sa.route,
		Period:    sa.period,
	}
	rec.RecordMeta = meta(x, sa, !rec.Substance.IsZero())
	return []canonical.Record{rec}
}

func mapAllergy(_ *sectionContext, x *extraction) []canonical.Record {
	obs := x.find(func(e *extraction) bool {
		return e.element == "observation" && !e.entity.IsZero()
	})
	if obs == nil {
		obs = x.find(func(e *extraction) bool {
			return e.element == "observation" && !e.value.Concept.IsZero()
		})
	}
	if obs == nil {
		obs = x
	}

	rec := canonical.Allergy{
		Agent: obs.entity,
		Onset: obs.start(),
	}
	if rec.Agent.IsZero() {
		rec.Agent = label(obs.value.Concept, obs.text)
	}

	for _, c := range obs.children {
		if c.typeCode == "MFST" || c.hasTemplate(templateReaction) {
			if rec.Reaction.IsZero() {
				rec.Reaction = label(c.value.Concept, c.text)
			}
		}
	}
	if sev := obs.find(isSeverity); sev != nil && sev != obs {
		rec.Severity = sev.value.Concept.Label()
	}
	if crit := obs.find(isCriticality); crit != nil && crit != obs {
		rec.Criticality = crit.value.Concept.Label()
	}

	rec.RecordMeta = meta(x, obs, !rec.Agent.IsZero())
	return []canonical.Record{rec}
}

func isSeverity(e *extraction) bool {
	return e.hasTemplate(templateSeverity) || e.codeIs(SNOMEDSeverity, LOINCSeverity)
}

func isCriticality(e *extraction) bool {
	return e.hasTemplate(templateCriticality) || e.codeIs(SNOMEDCriticality, LOINCCriticality)
}

func isProblemStatus(e *extraction) bool {
	return e.hasTemplate(templateProblemStatus) || e.codeIs(LOINCProblemStatus)
}

func mapProblem(sc *sectionContext, x *extraction) []canonical.Record {
	obs := x.find(func(e *extraction) bool {
		return e.element == "observation" && !isProblemStatus(e) && !e.value.Concept.IsZero()
	})
	if obs == nil {
		obs = x
	}
	condition := label(obs.value.Concept, obs.text)
	if condition.IsZero() && obs.element == "observation" {
		condition = obs.code
	}
	onset := obs.start()
	resolved := obs.period.End

	if sc.kind == canonical.SectionPastIllness || isResolved(obs, resolved.IsKnown()) {
		rec := canonical.PastIllness{Condition: condition, Onset: onset, Resolved: resolved}
		rec.RecordMeta = meta(x, obs, !condition.IsZero())
		return []canonical.Record{rec}
	}
	rec := canonical.Problem{Condition: condition, Onset: onset}
	rec.RecordMeta = meta(x, obs, !condition.IsZero())
	return []canonical.Record{rec}
}

// isResolved looks at the problem status observation first and the
// presence of an end date second.
func isResolved(obs *extraction, hasEnd bool) bool {
	if st := obs.find(isProblemStatus); st != nil && st != obs {
		switch st.value.Concept.Code {
		case "413322009", "73425007", "277022003": // resolved, inactive, remission
			return true
		case "55561003": // active
			return false
		}
		switch strings.ToLower(st.value.Concept.Display) {
		case "resolved", "inactive", "remission":
			return true
		}
	}
	return hasEnd
}

func mapProcedure(_ *sectionContext, x *extraction) []canonical.Record {
	proc := x.find(func(e *extraction) bool {
		return (e.element == "procedure" || e.element == "act" || e.element == "observation") && !e.code.IsZero()
	})
	if proc == nil {
		proc = x
	}
	rec := canonical.Procedure{
		Procedure: label(proc.code, proc.text),
		BodySite:  proc.site,
		Performed: proc.start(),
	}
	rec.RecordMeta = meta(x, proc, !rec.Procedure.IsZero())
	return []canonical.Record{rec}
}

func mapImmunization(_ *sectionContext, x *extraction) []canonical.Record {
	sa := x.find(func(e *extraction) bool { return e.element == "substanceAdministration" })
	if sa == nil {
		sa = x
	}
	rec := canonical.Immunization{
		Vaccine:    label(sa.material, sa.text),
		DoseNumber: sa.doseNumber,
		LotNumber:  sa.lot,
		Date:       sa.start(),
	}
	if rec.DoseNumber == "" {
		if dn := sa.find(func(e *extraction) bool { return e.codeIs(LOINCDoseNumber) }); dn != nil {
			rec.DoseNumber = dn.value.Quantity.Value
		}
	}
	rec.RecordMeta = meta(x, sa, !rec.Vaccine.IsZero())
	return []canonical.Record{rec}
}

// mapObservations handles the four observation-shaped sections. Organizers
// (vital sign sets, lab panels) expand into one record per member; members
// without their own effective time inherit the organizer's.
func mapObservations(sc *sectionContext, x *extraction) []canonical.Record {
	var out []canonical.Record
	var walk func(e *extraction, inherited clinicaldate.Date)
	walk = func(e *extraction, inherited clinicaldate.Date) {
		when := e.when
		if !when.IsKnown() {
			when = inherited
		}
		if e.element == "organizer" {
			for _, c := range e.children {
				walk(c, when)
			}
			return
		}
		if e.code.IsZero() && e.value.IsZero() && e.text == "" {
			return
		}
		out = append(out, sc.observationRecord(x, e, when))
	}
	walk(x, clinicaldate.Date{})
	return out
}

func (sc *sectionContext) observationRecord(root, e *extraction, when clinicaldate.Date) canonical.Record {
	concept := label(e.code, "")
	value := e.value
	if value.IsZero() && e.text != "" {
		value.Text = e.text
	}
	ok := !concept.IsZero() && !value.IsZero()

	switch sc.kind {
	case canonical.SectionVitalSign:
		return canonical.VitalSign{RecordMeta: meta(root, e, ok), Observation: concept, Value: value, Effective: when}
	case canonical.SectionPhysicalFinding:
		return canonical.PhysicalFinding{RecordMeta: meta(root, e, ok), Finding: concept, Value: value, Effective: when}
	case canonical.SectionSocialHistory:
		return canonical.SocialHistory{RecordMeta: meta(root, e, ok), Observation: concept, Value: value, Effective: when}
	default:
		return canonical.LaboratoryResult{
			RecordMeta:     meta(root, e, ok),
			Test:           concept,
			Value:          value,
			Interpretation: e.interpretation,
			ReferenceRange: e.refRange,
			Effective:      when,
		}
	}
}

// mapPregnancy emits the summary observation when it carries a value of its
// own, then one record per nested outcome observation.
func mapPregnancy(_ *sectionContext, x *extraction) []canonical.Record {
	var out []canonical.Record
	if !x.value.IsZero() || len(x.children) == 0 {
		rec := canonical.Pregnancy{Observation: label(x.code, ""), Value: x.value, Date: x.when}
		rec.RecordMeta = meta(x, x, !rec.Observation.IsZero() && !rec.Value.IsZero())
		out = append(out, rec)
	}
	for _, c := range x.children {
		if c.element != "observation" || (c.value.IsZero() && !c.when.IsKnown()) {
			continue
		}
		rec := canonical.Pregnancy{Observation: label(c.code, ""), Value: c.value, Date: c.when}
		rec.RecordMeta = meta(x, c, !rec.Observation.IsZero() && !rec.Value.IsZero())
		out = append(out, rec)
	}
	return out
}

func mapDevice(_ *sectionContext, x *extraction) []canonical.Record {
	dev := x.find(func(e *extraction) bool { return !e.entity.IsZero() })
	if dev == nil {
		dev = x
	}
	rec := canonical.Device{
		Device:    label(dev.entity, ""),
		Implanted: dev.start(),
	}
	if rec.Device.IsZero() {
		rec.Device = label(dev.code, dev.text)
	}
	rec.RecordMeta = meta(x, dev, !rec.Device.IsZero())
	return []canonical.Record{rec}
}

func mapAdvanceDirective(_ *sectionContext, x *extraction) []canonical.Record {
	rec := canonical.AdvanceDirective{
		Directive: x.value.Concept,
		Text:      x.text,
		Period:    x.period,
	}
	if rec.Directive.IsZero() {
		rec.Directive = x.code
	}
	if rec.Text == "" {
		rec.Text = x.value.Text
	}
	rec.RecordMeta = meta(x, x, !rec.Directive.IsZero() || rec.Text != "")
	return []canonical.Record{rec}
}
