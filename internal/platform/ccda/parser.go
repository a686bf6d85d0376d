package ccda

import (
	"bytes"
	"encoding/xml"
	"errors"

	"github.com/rs/zerolog"
	"golang.org/x/net/html/charset"

	"github.com/ehr/psnormalizer/internal/domain/canonical"
)

// Parser normalizes CDA documents into a canonical.DataSet. It is safe for
// concurrent use because it holds no mutable state.
type Parser struct {
	logger     zerolog.Logger
	strategies []strategy
}

// NewParser creates a new CDA parser that logs degraded extraction to
// logger.
func NewParser(logger zerolog.Logger) *Parser {
	return &Parser{
		logger:     logger.With().Str("adapter", "cda").Logger(),
		strategies: defaultStrategies,
	}
}

// Parse reads a CDA document. It fails only with *canonical.FatalParseError,
// when the XML is empty, not well formed, or has no patient. country is an
// ISO 3166-1 alpha-2 hint selecting a national profile; it may be empty.
func (p *Parser) Parse(data []byte, country string) (*canonical.DataSet, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, canonical.NewFatal(canonical.FormatCDA, canonical.ReasonEmpty, nil)
	}

	var doc ClinicalDocument
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.CharsetReader = charset.NewReaderLabel
	if err := dec.Decode(&doc); err != nil {
		return nil, canonical.NewFatal(canonical.FormatCDA, canonical.ReasonMalformed, err)
	}

	role := patientRole(&doc)
	if role == nil {
		return nil, canonical.NewFatal(canonical.FormatCDA, canonical.ReasonNoPatient,
			errors.New("no recordTarget/patientRole"))
	}

	ds := canonical.NewDataSet(canonical.FormatCDA, country)
	ds.Patient = parsePatient(role)
	ds.Administrative = parseAdministrative(&doc)

	profile := ProfileFor(country)
	if doc.Component != nil && doc.Component.StructuredBody != nil {
		for _, comp := range doc.Component.StructuredBody.Components {
			if comp.Section != nil {
				p.walkSection(comp.Section, profile, ds)
			}
		}
	}
	return ds, nil
}

// walkSection maps a section by its LOINC code and descends into nested
// sections. Unknown codes are skipped.
func (p *Parser) walkSection(sec *Section, profile CountryProfile, ds *canonical.DataSet) {
	if sec.Code != nil {
		if kind, ok := profile.sectionKind(sec.Code.Code); ok {
			p.parseSection(sec, kind, ds)
		} else {
			p.logger.Debug().Str("code", sec.Code.Code).Str("title", sec.Title).Msg("skipping unmapped section")
		}
	}
	for _, comp := range sec.Components {
		if comp.Section != nil {
			p.walkSection(comp.Section, profile, ds)
		}
	}
}

func patientRole(doc *ClinicalDocument) *PatientRole {
	for _, rt := range doc.RecordTargets {
		if rt.PatientRole != nil {
			return rt.PatientRole
		}
	}
	return nil
}
