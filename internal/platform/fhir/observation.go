package fhir

import (
	"fmt"

	"github.com/ehr/psnormalizer/internal/domain/canonical"
	"github.com/ehr/psnormalizer/internal/platform/clinicaldate"
	"github.com/ehr/psnormalizer/internal/platform/terminology"
)

// panel is what a hasMember observation passes down to its members.
type panel struct {
	kind       canonical.SectionKind
	classified bool
	effective  clinicaldate.Date
}

// observationFact is one value-bearing slot of an Observation: the
// resource itself or one of its components.
type observationFact struct {
	fragment       string
	code           terminology.Concept
	value          canonical.ObservationValue
	interpretation terminology.Concept
}

func effective(obs *Observation) clinicaldate.Date {
	return firstDate(obs.EffectiveDateTime, periodStart(obs.EffectivePeriod), obs.EffectiveInstant)
}

// mapObservation classifies the observation and emits one record for its
// own value plus one per component. A panel that only groups members
// through hasMember emits nothing itself; the members carry the data.
func mapObservation(bc *bundleContext, e entry) ([]canonical.Record, error) {
	obs, err := decode[Observation](e)
	if err != nil {
		return nil, err
	}
	if skipped(obs.Status) {
		return nil, nil
	}

	kind, ok := classify(obs)
	when := effective(obs)
	if parent, member := bc.panels[e.fragment()]; member {
		if !ok && parent.classified {
			kind, ok = parent.kind, true
		}
		if !when.IsKnown() {
			when = parent.effective
		}
	}
	if !ok {
		bc.logger.Debug().Str("fragment", e.fragment()).Msg("observation not classified")
		return nil, nil
	}

	var facts []observationFact
	value := observationValue(obs.ObservationValue)
	if !value.IsZero() || (len(obs.Component) == 0 && len(obs.HasMember) == 0) {
		facts = append(facts, observationFact{
			fragment:       e.fragment(),
			code:           concept(obs.Code),
			value:          value,
			interpretation: firstConcept(obs.Interpretation),
		})
	}
	for i := range obs.Component {
		c := &obs.Component[i]
		facts = append(facts, observationFact{
			fragment:       fmt.Sprintf("%s#component-%d", e.fragment(), i),
			code:           concept(c.Code),
			value:          observationValue(c.ObservationValue),
			interpretation: firstConcept(c.Interpretation),
		})
	}

	refRange := referenceRange(obs.ReferenceRange)
	out := make([]canonical.Record, 0, len(facts))
	for _, f := range facts {
		out = append(out, observationRecord(kind, f, refRange, when))
	}
	return out, nil
}

func observationRecord(kind canonical.SectionKind, f observationFact, refRange string, when clinicaldate.Date) canonical.Record {
	m := meta(f.fragment, !f.code.IsZero() && !f.value.IsZero())
	switch kind {
	case canonical.SectionVitalSign:
		return canonical.VitalSign{RecordMeta: m, Observation: f.code, Value: f.value, Effective: when}
	case canonical.SectionPhysicalFinding:
		return canonical.PhysicalFinding{RecordMeta: m, Finding: f.code, Value: f.value, Effective: when}
	case canonical.SectionSocialHistory:
		return canonical.SocialHistory{RecordMeta: m, Observation: f.code, Value: f.value, Effective: when}
	case canonical.SectionPregnancy:
		return canonical.Pregnancy{RecordMeta: m, Observation: f.code, Value: f.value, Date: when}
	default:
		return canonical.LaboratoryResult{
			RecordMeta:     m,
			Test:           f.code,
			Value:          f.value,
			Interpretation: f.interpretation,
			ReferenceRange: refRange,
			Effective:      when,
		}
	}
}
