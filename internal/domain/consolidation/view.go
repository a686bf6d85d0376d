package consolidation

import (
	"github.com/ehr/psnormalizer/internal/domain/canonical"
	"github.com/ehr/psnormalizer/internal/platform/clinicaldate"
)

// SummaryView is the display projection of a DataSet: header data as-is,
// records rendered into labels and formatted dates.
type SummaryView struct {
	SourceFormat   canonical.SourceFormat         `json:"source_format"`
	Country        string                         `json:"country,omitempty"`
	Patient        PatientSummary                 `json:"patient"`
	Administrative canonical.AdministrativeData   `json:"administrative"`
	Sections       map[string][]canonical.Summary `json:"sections"`
}

// PatientSummary is the rendered patient header.
type PatientSummary struct {
	Name        string                 `json:"name"`
	BirthDate   string                 `json:"birth_date"`
	Gender      string                 `json:"gender"`
	Identifiers []canonical.Identifier `json:"identifiers"`
}

// Summarize builds the SummaryView of ds, rendering dates in style.
func Summarize(ds *canonical.DataSet, style clinicaldate.Style) SummaryView {
	v := SummaryView{
		SourceFormat:   ds.SourceFormat,
		Country:        ds.Country,
		Administrative: ds.Administrative,
		Patient: PatientSummary{
			Name:        ds.Patient.FullName(),
			BirthDate:   clinicaldate.Format(ds.Patient.BirthDate, style),
			Gender:      ds.Patient.Gender,
			Identifiers: ds.Patient.Identifiers,
		},
		Sections: make(map[string][]canonical.Summary),
	}
	for _, kind := range canonical.AllSectionKinds() {
		v.Sections[kind.String()] = canonical.DescribeSection(ds, kind, style)
	}
	return v
}
