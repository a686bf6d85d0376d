package fhir

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ehr/psnormalizer/internal/domain/canonical"
	"github.com/ehr/psnormalizer/internal/platform/clinicaldate"
	"github.com/ehr/psnormalizer/internal/platform/terminology"
)

// Adapter normalizes FHIR R4 bundles into a canonical.DataSet. It holds no
// per-document state and is safe for concurrent use.
type Adapter struct {
	logger zerolog.Logger
}

// NewAdapter creates a FHIR adapter that logs skipped and degraded
// resources to logger.
func NewAdapter(logger zerolog.Logger) *Adapter {
	return &Adapter{logger: logger.With().Str("adapter", "fhir").Logger()}
}

// bundleContext is the per-document state shared by the resource mappers.
type bundleContext struct {
	index  *bundleIndex
	logger zerolog.Logger

	// devices referenced by a DeviceUseStatement; those are emitted through
	// the statement only.
	usedDevices map[string]bool
	// substances already covered by a MedicationStatement.
	statedSubstances map[terminology.Concept]bool
	// panel context keyed by member observation fragment.
	panels map[string]panel
}

// resourceMapper turns one bundle entry into zero or more records.
type resourceMapper func(bc *bundleContext, e entry) ([]canonical.Record, error)

var resourceMappers = map[string]resourceMapper{
	"Condition":           mapCondition,
	"AllergyIntolerance":  mapAllergy,
	"MedicationStatement": mapMedicationStatement,
	"MedicationRequest":   mapMedicationRequest,
	"Procedure":           mapProcedure,
	"Immunization":        mapImmunization,
	"Observation":         mapObservation,
	"Device":              mapDevice,
	"DeviceUseStatement":  mapDeviceUseStatement,
	"Consent":             mapConsent,
}

// placeholders build the record emitted for a resource that could not be
// decoded, when its resource type alone fixes the section.
var placeholders = map[string]func(canonical.RecordMeta) canonical.Record{
	"Condition":           func(m canonical.RecordMeta) canonical.Record { return canonical.Problem{RecordMeta: m} },
	"AllergyIntolerance":  func(m canonical.RecordMeta) canonical.Record { return canonical.Allergy{RecordMeta: m} },
	"MedicationStatement": func(m canonical.RecordMeta) canonical.Record { return canonical.Medication{RecordMeta: m} },
	"Procedure":           func(m canonical.RecordMeta) canonical.Record { return canonical.Procedure{RecordMeta: m} },
	"Immunization":        func(m canonical.RecordMeta) canonical.Record { return canonical.Immunization{RecordMeta: m} },
	"DeviceUseStatement":  func(m canonical.RecordMeta) canonical.Record { return canonical.Device{RecordMeta: m} },
}

// Parse reads a FHIR Bundle. It fails only with *canonical.FatalParseError,
// when the input is empty, is not a JSON Bundle, or has no entry of type
// Patient. A Patient with malformed members still counts; those members are
// skipped.
func (a *Adapter) Parse(data []byte, country string) (*canonical.DataSet, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, canonical.NewFatal(canonical.FormatFHIR, canonical.ReasonEmpty, nil)
	}

	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, canonical.NewFatal(canonical.FormatFHIR, canonical.ReasonMalformed, err)
	}
	if b.ResourceType != "Bundle" {
		return nil, canonical.NewFatal(canonical.FormatFHIR, canonical.ReasonMalformed,
			fmt.Errorf("resourceType %q is not Bundle", b.ResourceType))
	}

	idx := indexBundle(&b)
	patients := idx.ofType("Patient")
	if len(patients) == 0 {
		return nil, canonical.NewFatal(canonical.FormatFHIR, canonical.ReasonNoPatient,
			errors.New("bundle has no Patient"))
	}
	pat, skippedFields := decodePatient(patients[0])
	if len(skippedFields) > 0 {
		a.logger.Warn().
			Str("fragment", patients[0].fragment()).
			Strs("fields", skippedFields).
			Msg("patient fields skipped")
	}

	bc := &bundleContext{
		index:            idx,
		logger:           a.logger,
		usedDevices:      map[string]bool{},
		statedSubstances: map[terminology.Concept]bool{},
		panels:           map[string]panel{},
	}
	bc.prepare()

	ds := canonical.NewDataSet(canonical.FormatFHIR, country)
	ds.Patient = parsePatient(pat)
	ds.Administrative = bc.parseAdministrative(pat)

	for _, e := range idx.entries {
		mapper, ok := resourceMappers[e.resource.ResourceType]
		if !ok {
			continue
		}
		for _, r := range bc.mapEntry(mapper, e) {
			ds.Add(r)
		}
	}
	return ds, nil
}

// decodePatient reads the Patient member by member, so a malformed element
// only loses itself. It returns the names of the members it had to skip.
func decodePatient(e entry) (*Patient, []string) {
	var p Patient
	if err := json.Unmarshal(e.raw, &p); err == nil {
		return &p, nil
	}

	p = Patient{Resource: e.resource}
	fields := rawFields(e.raw)
	var bad []string
	check := func(name string, ok bool) {
		if !ok {
			bad = append(bad, name)
		}
	}
	check("identifier", field(fields, "identifier", &p.Identifier))
	check("name", field(fields, "name", &p.Name))
	check("gender", field(fields, "gender", &p.Gender))
	check("birthDate", field(fields, "birthDate", &p.BirthDate))
	check("address", field(fields, "address", &p.Address))
	check("contact", field(fields, "contact", &p.Contact))
	return &p, bad
}

// prepare collects the cross-resource facts the mappers need before any
// record is emitted.
func (bc *bundleContext) prepare() {
	for _, e := range bc.index.ofType("DeviceUseStatement") {
		var dus DeviceUseStatement
		if err := json.Unmarshal(e.raw, &dus); err != nil {
			continue
		}
		if dev, ok := bc.index.resolve(dus.Device); ok {
			bc.usedDevices[dev.fragment()] = true
		}
	}
	for _, e := range bc.index.ofType("MedicationStatement") {
		var ms MedicationStatement
		if err := json.Unmarshal(e.raw, &ms); err != nil {
			continue
		}
		if c := bc.medication(ms.MedicationCodeableConcept, ms.MedicationReference); !c.IsZero() {
			bc.statedSubstances[c] = true
		}
	}
	for _, e := range bc.index.ofType("Observation") {
		var obs Observation
		if err := json.Unmarshal(e.raw, &obs); err != nil || len(obs.HasMember) == 0 {
			continue
		}
		kind, ok := classify(&obs)
		p := panel{kind: kind, classified: ok, effective: effective(&obs)}
		for i := range obs.HasMember {
			if member, found := bc.index.resolve(&obs.HasMember[i]); found {
				bc.panels[member.fragment()] = p
			}
		}
	}
}

// mapEntry runs one mapper under recover. A resource that fails to decode
// or panics is logged; when its type fixes the section, a Partial
// placeholder keeps it visible.
func (bc *bundleContext) mapEntry(mapper resourceMapper, e entry) (out []canonical.Record) {
	defer func() {
		if r := recover(); r != nil {
			bc.logger.Warn().
				Str("resource", e.resource.ResourceType).
				Str("fragment", e.fragment()).
				Str("panic", fmt.Sprint(r)).
				Msg("resource mapping failed")
			out = bc.placeholder(e)
		}
	}()

	recs, err := mapper(bc, e)
	if err != nil {
		bc.logger.Warn().
			Err(err).
			Str("resource", e.resource.ResourceType).
			Str("fragment", e.fragment()).
			Msg("resource decode failed")
		return bc.placeholder(e)
	}
	for _, r := range recs {
		if r.Meta().Completeness == canonical.CompletenessPartial {
			bc.logger.Warn().
				Str("section", r.Kind().String()).
				Str("fragment", r.Meta().Provenance.RawFragmentID).
				Msg("degraded extraction")
		}
	}
	return recs
}

func (bc *bundleContext) placeholder(e entry) []canonical.Record {
	if e.resource.ResourceType == "Observation" {
		return bc.observationPlaceholder(e)
	}
	build, ok := placeholders[e.resource.ResourceType]
	if !ok {
		return nil
	}
	return []canonical.Record{build(meta(e.fragment(), false))}
}

// observationPlaceholder salvages the members that decide the section of
// an Observation that failed to decode. It emits nothing when those are
// unusable too.
func (bc *bundleContext) observationPlaceholder(e entry) []canonical.Record {
	fields := rawFields(e.raw)
	var obs Observation
	field(fields, "status", &obs.Status)
	field(fields, "category", &obs.Category)
	field(fields, "code", &obs.Code)
	if skipped(obs.Status) {
		return nil
	}

	kind, ok := classify(&obs)
	if parent, member := bc.panels[e.fragment()]; member && !ok && parent.classified {
		kind, ok = parent.kind, true
	}
	if !ok {
		return nil
	}
	f := observationFact{fragment: e.fragment(), code: concept(obs.Code)}
	return []canonical.Record{observationRecord(kind, f, "", clinicaldate.Date{})}
}

// decode unmarshals an entry into its typed resource.
func decode[T any](e entry) (*T, error) {
	var v T
	if err := json.Unmarshal(e.raw, &v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", e.resource.ResourceType, err)
	}
	return &v, nil
}

func meta(fragment string, complete bool) canonical.RecordMeta {
	m := canonical.RecordMeta{
		Provenance:   canonical.Provenance{SourceFormat: canonical.FormatFHIR, RawFragmentID: fragment},
		Completeness: canonical.CompletenessFull,
	}
	if !complete {
		m.Completeness = canonical.CompletenessPartial
	}
	return m
}
