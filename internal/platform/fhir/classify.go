package fhir

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/ehr/psnormalizer/internal/domain/canonical"
	"github.com/ehr/psnormalizer/internal/platform/terminology"
	"github.com/ehr/psnormalizer/pkg/fhirmodels"
)

// categoryKinds maps observation-category codes to sections.
var categoryKinds = map[string]canonical.SectionKind{
	fhirmodels.ObsCategoryVitalSigns:    canonical.SectionVitalSign,
	fhirmodels.ObsCategoryLaboratory:    canonical.SectionLaboratoryResult,
	fhirmodels.ObsCategorySocialHistory: canonical.SectionSocialHistory,
	fhirmodels.ObsCategoryExam:          canonical.SectionPhysicalFinding,
}

// loincKinds is the per-section LOINC allowlist consulted when no category
// matched.
var loincKinds = func() map[string]canonical.SectionKind {
	lists := []struct {
		kind  canonical.SectionKind
		codes []string
	}{
		{canonical.SectionPregnancy, []string{
			"82810-3", // pregnancy status
			"93857-1", // date and outcome of pregnancy
			"11636-8", // births live
			"11612-9", // abortions
			"11640-0", // births total
			"11778-8", // delivery date estimated
			"8665-2",  // last menstrual period start date
			"11449-6", // pregnancy status (older)
		}},
		{canonical.SectionVitalSign, []string{
			"85354-9", "8480-6", "8462-4", "8867-4", "9279-1", "8310-5",
			"59408-5", "2708-6", "29463-7", "8302-2", "39156-5", "8287-5",
		}},
		{canonical.SectionSocialHistory, []string{
			"72166-2", "11367-0", "74013-4", "11331-6", "11341-5", "76689-9",
		}},
		{canonical.SectionLaboratoryResult, []string{
			"2345-7", "4548-4", "718-7", "2160-0", "2093-3", "2571-8",
			"2951-2", "2823-3", "6690-2", "777-3", "1742-6", "33914-3",
		}},
		{canonical.SectionPhysicalFinding, []string{
			"10210-3", "29545-1", "11384-5",
		}},
	}
	out := make(map[string]canonical.SectionKind)
	for _, l := range lists {
		for _, c := range l.codes {
			out[c] = l.kind
		}
	}
	return out
}()

// keywordKinds is checked in order; the first list with a hit wins. Keywords
// are lower case and accent free.
var keywordKinds = []struct {
	kind     canonical.SectionKind
	keywords []string
}{
	{canonical.SectionPregnancy, []string{
		"pregnan", "gravid", "gestation", "gestacao", "gestazione", "parto",
		"delivery date", "date of delivery", "births", "live birth", "nados vivos", "nati vivi",
	}},
	{canonical.SectionVitalSign, []string{
		"blood pressure", "pressao arterial", "pressione arteriosa", "tensao arterial",
		"heart rate", "frequencia cardiaca", "frequenza cardiaca", "pulse", "pulso",
		"respiratory rate", "frequencia respiratoria", "frequenza respiratoria",
		"temperature", "temperatura", "oxygen saturation", "saturacao", "saturazione",
		"body weight", "peso", "body height", "altura", "altezza", "bmi", "imc",
		"birth weight", "birth length",
	}},
	{canonical.SectionSocialHistory, []string{
		"smok", "tobacco", "tabac", "tabag", "fumo", "fumador", "fumatore",
		"alcohol", "alcool", "drug use", "occupation", "profissao",
	}},
	{canonical.SectionLaboratoryResult, []string{
		"serum", "plasma", "blood", "sangue", "urine", "urina",
		"glucose", "glicose", "glicemia", "hemoglobin", "hemoglobina", "emoglobina",
		"cholesterol", "colesterol", "colesterolo", "creatinin", "sodium", "potassium",
	}},
	{canonical.SectionPhysicalFinding, []string{
		"physical exam", "examination", "exame fisico", "esame obiettivo", "auscultation", "inspection",
	}},
}

// classify picks the section for an observation: category codings first,
// then the LOINC allowlist, then keywords in the code text. Pregnancy LOINC
// codes are the exception and win over any category, since producers file
// pregnancy status under social-history. ok is false when nothing matched.
func classify(obs *Observation) (canonical.SectionKind, bool) {
	if kind, ok := loincKind(obs.Code); ok && kind == canonical.SectionPregnancy {
		return kind, true
	}
	for _, cat := range obs.Category {
		for _, c := range cat.Coding {
			if kind, ok := categoryKinds[strings.ToLower(c.Code)]; ok {
				return kind, true
			}
		}
	}

	if obs.Code == nil {
		return 0, false
	}
	if kind, ok := loincKind(obs.Code); ok {
		return kind, true
	}

	text := obs.Code.Text
	if text == "" {
		for _, c := range obs.Code.Coding {
			if c.Display != "" {
				text = c.Display
				break
			}
		}
	}
	return classifyText(text)
}

// loincKind looks the LOINC codings of code up in the allowlist.
func loincKind(code *CodeableConcept) (canonical.SectionKind, bool) {
	if code == nil {
		return 0, false
	}
	for _, c := range code.Coding {
		if terminology.ResolveSystem(c.System) != terminology.LOINC {
			continue
		}
		if kind, ok := loincKinds[c.Code]; ok {
			return kind, true
		}
	}
	return 0, false
}

func classifyText(text string) (canonical.SectionKind, bool) {
	folded := foldAccents(text)
	if folded == "" {
		return 0, false
	}
	for _, group := range keywordKinds {
		for _, kw := range group.keywords {
			if strings.Contains(folded, kw) {
				return group.kind, true
			}
		}
	}
	return 0, false
}

// foldAccents lower-cases s and strips combining marks ("Pressão" ->
// "pressao"). A transformer is stateful, so one is built per call.
func foldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.Join(strings.Fields(out), " "))
}
