package fhir

import (
	"strconv"
	"strings"

	"github.com/ehr/psnormalizer/internal/domain/canonical"
	"github.com/ehr/psnormalizer/internal/platform/terminology"
	"github.com/ehr/psnormalizer/pkg/fhirmodels"
)

// skipped reports resource statuses that never describe a real clinical
// fact.
func skipped(status string) bool {
	switch strings.ToLower(status) {
	case "entered-in-error", "not-done", "cancelled":
		return true
	}
	return false
}

func refuted(cc *CodeableConcept) bool {
	return cc.HasCode("entered-in-error", "refuted")
}

func mapCondition(bc *bundleContext, e entry) ([]canonical.Record, error) {
	c, err := decode[Condition](e)
	if err != nil {
		return nil, err
	}
	if refuted(c.VerificationStatus) {
		bc.logger.Debug().Str("fragment", e.fragment()).Msg("skipping refuted condition")
		return nil, nil
	}

	condition := concept(c.Code)
	onset := firstDate(c.OnsetDateTime, periodStart(c.OnsetPeriod))
	abated := firstDate(c.AbatementDateTime, periodEnd(c.AbatementPeriod), periodStart(c.AbatementPeriod))
	m := meta(e.fragment(), !condition.IsZero())

	if isPastCondition(c, abated.IsKnown()) {
		return []canonical.Record{canonical.PastIllness{RecordMeta: m, Condition: condition, Onset: onset, Resolved: abated}}, nil
	}
	return []canonical.Record{canonical.Problem{RecordMeta: m, Condition: condition, Onset: onset}}, nil
}

// isPastCondition routes by clinicalStatus. Without a usable status, an
// abatement of any kind marks the condition as past.
func isPastCondition(c *Condition, abatedDate bool) bool {
	if c.ClinicalStatus != nil {
		for _, cd := range c.ClinicalStatus.Coding {
			switch strings.ToLower(cd.Code) {
			case fhirmodels.ConditionActive, fhirmodels.ConditionRecurrence, fhirmodels.ConditionRelapse:
				return false
			case fhirmodels.ConditionInactive, fhirmodels.ConditionRemission, fhirmodels.ConditionResolved:
				return true
			}
		}
	}
	return abatedDate || c.AbatementString != "" || (c.AbatementBoolean != nil && *c.AbatementBoolean)
}

func mapAllergy(bc *bundleContext, e entry) ([]canonical.Record, error) {
	a, err := decode[AllergyIntolerance](e)
	if err != nil {
		return nil, err
	}
	if refuted(a.VerificationStatus) {
		bc.logger.Debug().Str("fragment", e.fragment()).Msg("skipping refuted allergy")
		return nil, nil
	}

	rec := canonical.Allergy{
		Agent:       concept(a.Code),
		Criticality: criticalityLabel(a.Criticality),
		Onset:       firstDate(a.OnsetDateTime, periodStart(a.OnsetPeriod)),
	}
	if len(a.Reaction) > 0 {
		r := a.Reaction[0]
		rec.Reaction = firstConcept(r.Manifestation)
		rec.Severity = titleCase(r.Severity)
		if rec.Agent.IsZero() {
			rec.Agent = concept(r.Substance)
		}
		if !rec.Onset.IsKnown() {
			rec.Onset = fhirDate(r.Onset)
		}
	}
	rec.RecordMeta = meta(e.fragment(), !rec.Agent.IsZero())
	return []canonical.Record{rec}, nil
}

func criticalityLabel(code string) string {
	switch code {
	case fhirmodels.CriticalityLow:
		return "low criticality"
	case fhirmodels.CriticalityHigh:
		return "high criticality"
	case fhirmodels.CriticalityUnableToAssess:
		return "unable to assess criticality"
	}
	return ""
}

// medication resolves the substance from either the inline concept or a
// Medication resource in the bundle. An unresolvable reference falls back
// to its display text.
func (bc *bundleContext) medication(cc *CodeableConcept, ref *Reference) terminology.Concept {
	if c := concept(cc); !c.IsZero() {
		return c
	}
	if target, ok := bc.index.resolve(ref); ok && target.resource.ResourceType == "Medication" {
		if med, err := decode[Medication](target); err == nil {
			if c := concept(med.Code); !c.IsZero() {
				return c
			}
		}
	}
	if ref != nil {
		return terminology.Text(ref.Display)
	}
	return terminology.Concept{}
}

// dosage reads the first dose quantity and route.
func dosage(ds []Dosage) (canonical.Quantity, terminology.Concept) {
	var dose canonical.Quantity
	var route terminology.Concept
	for _, d := range ds {
		if route.IsZero() {
			route = concept(d.Route)
		}
		for _, dr := range d.DoseAndRate {
			if dose.IsZero() && dr.DoseQuantity != nil {
				dose = quantity(dr.DoseQuantity)
			}
		}
	}
	return dose, route
}

func mapMedicationStatement(bc *bundleContext, e entry) ([]canonical.Record, error) {
	ms, err := decode[MedicationStatement](e)
	if err != nil {
		return nil, err
	}
	if skipped(ms.Status) {
		return nil, nil
	}
	rec := canonical.Medication{
		Substance: bc.medication(ms.MedicationCodeableConcept, ms.MedicationReference),
		Period:    period(ms.EffectivePeriod),
	}
	if !rec.Period.Start.IsKnown() {
		rec.Period.Start = fhirDate(ms.EffectiveDateTime)
	}
	rec.Dose, rec.Route = dosage(ms.Dosage)
	rec.RecordMeta = meta(e.fragment(), !rec.Substance.IsZero())
	return []canonical.Record{rec}, nil
}

// mapMedicationRequest fills in medications that only appear as requests.
// A request for a substance a MedicationStatement already covers is dropped.
func mapMedicationRequest(bc *bundleContext, e entry) ([]canonical.Record, error) {
	mr, err := decode[MedicationRequest](e)
	if err != nil {
		return nil, err
	}
	if skipped(mr.Status) {
		return nil, nil
	}
	substance := bc.medication(mr.MedicationCodeableConcept, mr.MedicationReference)
	if !substance.IsZero() && bc.statedSubstances[substance] {
		bc.logger.Debug().Str("fragment", e.fragment()).Msg("request duplicates a medication statement")
		return nil, nil
	}

	rec := canonical.Medication{Substance: substance}
	if mr.DispenseRequest != nil {
		rec.Period = period(mr.DispenseRequest.ValidityPeriod)
	}
	if !rec.Period.Start.IsKnown() {
		rec.Period.Start = fhirDate(mr.AuthoredOn)
	}
	rec.Dose, rec.Route = dosage(mr.DosageInstruction)
	rec.RecordMeta = meta(e.fragment(), !rec.Substance.IsZero())
	return []canonical.Record{rec}, nil
}

func mapProcedure(_ *bundleContext, e entry) ([]canonical.Record, error) {
	p, err := decode[Procedure](e)
	if err != nil {
		return nil, err
	}
	if skipped(p.Status) {
		return nil, nil
	}
	rec := canonical.Procedure{
		Procedure: concept(p.Code),
		BodySite:  firstConcept(p.BodySite),
		Performed: firstDate(p.PerformedDateTime, periodStart(p.PerformedPeriod)),
	}
	rec.RecordMeta = meta(e.fragment(), !rec.Procedure.IsZero())
	return []canonical.Record{rec}, nil
}

func mapImmunization(_ *bundleContext, e entry) ([]canonical.Record, error) {
	im, err := decode[Immunization](e)
	if err != nil {
		return nil, err
	}
	if skipped(im.Status) {
		return nil, nil
	}
	rec := canonical.Immunization{
		Vaccine:   concept(im.VaccineCode),
		LotNumber: strings.TrimSpace(im.LotNumber),
		Date:      firstDate(im.OccurrenceDateTime, im.OccurrenceString),
	}
	for _, pa := range im.ProtocolApplied {
		if pa.DoseNumberPositiveInt != nil {
			rec.DoseNumber = strconv.Itoa(*pa.DoseNumberPositiveInt)
			break
		}
		if s := strings.TrimSpace(pa.DoseNumberString); s != "" {
			rec.DoseNumber = s
			break
		}
	}
	rec.RecordMeta = meta(e.fragment(), !rec.Vaccine.IsZero())
	return []canonical.Record{rec}, nil
}

func deviceConcept(d *Device) terminology.Concept {
	if c := concept(d.Type); !c.IsZero() {
		return c
	}
	for _, n := range d.DeviceName {
		if name := collapse(n.Name); name != "" {
			return terminology.Text(name)
		}
	}
	return terminology.Concept{}
}

// mapDevice emits devices no DeviceUseStatement points at.
func mapDevice(bc *bundleContext, e entry) ([]canonical.Record, error) {
	if bc.usedDevices[e.fragment()] {
		return nil, nil
	}
	d, err := decode[Device](e)
	if err != nil {
		return nil, err
	}
	rec := canonical.Device{Device: deviceConcept(d)}
	rec.RecordMeta = meta(e.fragment(), !rec.Device.IsZero())
	return []canonical.Record{rec}, nil
}

func mapDeviceUseStatement(bc *bundleContext, e entry) ([]canonical.Record, error) {
	dus, err := decode[DeviceUseStatement](e)
	if err != nil {
		return nil, err
	}
	if skipped(dus.Status) {
		return nil, nil
	}
	rec := canonical.Device{
		Implanted: firstDate(periodStart(dus.TimingPeriod), dus.TimingDateTime),
	}
	if target, ok := bc.index.resolve(dus.Device); ok && target.resource.ResourceType == "Device" {
		if d, err := decode[Device](target); err == nil {
			rec.Device = deviceConcept(d)
		}
	}
	if rec.Device.IsZero() && dus.Device != nil {
		rec.Device = terminology.Text(dus.Device.Display)
	}
	rec.RecordMeta = meta(e.fragment(), !rec.Device.IsZero())
	return []canonical.Record{rec}, nil
}

// advanceDirectiveScope is the consent-scope code for advance directives.
const advanceDirectiveScope = "adr"

// mapConsent reads advance directives. Privacy and treatment consents are
// skipped.
func mapConsent(bc *bundleContext, e entry) ([]canonical.Record, error) {
	c, err := decode[Consent](e)
	if err != nil {
		return nil, err
	}
	if skipped(c.Status) {
		return nil, nil
	}
	if c.Scope != nil && !c.Scope.HasCode(advanceDirectiveScope) {
		bc.logger.Debug().Str("fragment", e.fragment()).Msg("skipping non-directive consent")
		return nil, nil
	}

	rec := canonical.AdvanceDirective{Text: divText(c.Text)}
	if c.Provision != nil {
		rec.Directive = firstConcept(c.Provision.Code)
		rec.Period = period(c.Provision.Period)
	}
	if rec.Directive.IsZero() {
		rec.Directive = firstConcept(c.Category)
	}
	rec.RecordMeta = meta(e.fragment(), !rec.Directive.IsZero() || rec.Text != "")
	return []canonical.Record{rec}, nil
}
