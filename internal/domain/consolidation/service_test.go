package consolidation

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/ehr/psnormalizer/internal/domain/canonical"
	"github.com/ehr/psnormalizer/internal/platform/clinicaldate"
	"github.com/ehr/psnormalizer/internal/platform/telemetry"
)

func cdaFixture(t *testing.T) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("..", "..", "platform", "ccda", "testdata", "patient_summary.xml"))
	if err != nil {
		t.Fatalf("failed to read CDA fixture: %v", err)
	}
	return data
}

func fhirFixture(t *testing.T) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("..", "..", "platform", "fhir", "testdata", "patient_summary_bundle.json"))
	if err != nil {
		t.Fatalf("failed to read FHIR fixture: %v", err)
	}
	return data
}

func newTestService() *Service {
	return NewService(zerolog.Nop(), telemetry.NewProvider(telemetry.TelemetryConfig{}))
}

const patientOnlyBundle = `{"resourceType":"Bundle","type":"document","entry":[
	{"resource":{"resourceType":"Patient","id":"p1","identifier":[{"system":"urn:oid:1.2.3","value":"X-1"}]}}]}`

type panicParser struct{}

func (panicParser) Parse([]byte, string) (*canonical.DataSet, error) { panic("adapter bug") }

func TestSniff(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		want   canonical.SourceFormat
		wantOK bool
	}{
		{"xml", `<?xml version="1.0"?><ClinicalDocument/>`, canonical.FormatCDA, true},
		{"json", `{"resourceType":"Bundle"}`, canonical.FormatFHIR, true},
		{"leading whitespace", "\n\t  {}", canonical.FormatFHIR, true},
		{"bom", "\xEF\xBB\xBF<ClinicalDocument/>", canonical.FormatCDA, true},
		{"empty", "", canonical.FormatAuto, false},
		{"blank", "   \n", canonical.FormatAuto, false},
		{"array", `[{"resourceType":"Bundle"}]`, canonical.FormatAuto, false},
		{"text", "MSH|^~\\&|", canonical.FormatAuto, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Sniff([]byte(tt.in))
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("expected (%v, %v), got (%v, %v)", tt.want, tt.wantOK, got, ok)
			}
		})
	}
}

func TestService_Process_CDA(t *testing.T) {
	ds, err := newTestService().Process(cdaFixture(t), canonical.FormatAuto, "IT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ds.SourceFormat != canonical.FormatCDA {
		t.Errorf("expected cda, got %v", ds.SourceFormat)
	}
	if ds.Patient.FamilyName != "Rossi" {
		t.Errorf("expected family name Rossi, got %q", ds.Patient.FamilyName)
	}
	if got := len(ds.Records(canonical.SectionAllergy)); got != 2 {
		t.Errorf("expected 2 allergies, got %d", got)
	}
}

func TestService_Process_FHIR(t *testing.T) {
	ds, err := newTestService().Process(fhirFixture(t), canonical.FormatAuto, "PT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ds.SourceFormat != canonical.FormatFHIR {
		t.Errorf("expected fhir, got %v", ds.SourceFormat)
	}
	if ds.Country != "PT" {
		t.Errorf("expected country PT, got %q", ds.Country)
	}
	if got := len(ds.Records(canonical.SectionVitalSign)); got != 4 {
		t.Errorf("expected 4 vital signs, got %d", got)
	}
}

func TestService_Process_TotalCoverage(t *testing.T) {
	ds, err := newTestService().Process([]byte(patientOnlyBundle), canonical.FormatFHIR, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, kind := range canonical.AllSectionKinds() {
		if recs := ds.Records(kind); recs == nil || len(recs) != 0 {
			t.Errorf("%v: expected empty non-nil section, got %v", kind, recs)
		}
	}

	if ds.Patient.GivenName != canonical.NotRecorded || ds.Patient.Gender != canonical.NotRecorded {
		t.Errorf("expected defaulted demographics, got %+v", ds.Patient)
	}
	if ds.Administrative.Custodian.Name != canonical.NotRecorded {
		t.Errorf("expected defaulted custodian, got %q", ds.Administrative.Custodian.Name)
	}
	if ds.Administrative.Authors == nil || ds.Administrative.EmergencyContacts == nil {
		t.Error("expected non-nil party lists")
	}

	out, err := json.Marshal(ds)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded struct {
		Sections map[string][]json.RawMessage `json:"sections"`
	}
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(decoded.Sections) != len(canonical.AllSectionKinds()) {
		t.Errorf("expected %d sections in JSON, got %d", len(canonical.AllSectionKinds()), len(decoded.Sections))
	}
}

func TestService_Process_Fatal(t *testing.T) {
	tests := []struct {
		name       string
		doc        string
		format     canonical.SourceFormat
		wantFormat canonical.SourceFormat
		wantReason canonical.FailureReason
	}{
		{"empty auto", "", canonical.FormatAuto, canonical.FormatAuto, canonical.ReasonEmpty},
		{"bom only", "\xEF\xBB\xBF ", canonical.FormatAuto, canonical.FormatAuto, canonical.ReasonEmpty},
		{"unknown content", "MSH|^~\\&|", canonical.FormatAuto, canonical.FormatAuto, canonical.ReasonUnsupportedFormat},
		{"unknown format value", "{}", canonical.SourceFormat(99), canonical.SourceFormat(99), canonical.ReasonUnsupportedFormat},
		{"cda empty", "  ", canonical.FormatCDA, canonical.FormatCDA, canonical.ReasonEmpty},
		{"cda truncated", "<ClinicalDocument><recordTarget>", canonical.FormatCDA, canonical.FormatCDA, canonical.ReasonMalformed},
		{"fhir not json", "<x/>", canonical.FormatFHIR, canonical.FormatFHIR, canonical.ReasonMalformed},
		{"fhir no patient", `{"resourceType":"Bundle","entry":[]}`, canonical.FormatFHIR, canonical.FormatFHIR, canonical.ReasonNoPatient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds, err := newTestService().Process([]byte(tt.doc), tt.format, "")
			if ds != nil {
				t.Error("expected no DataSet on failure")
			}
			var fe *canonical.FatalParseError
			if !errors.As(err, &fe) {
				t.Fatalf("expected FatalParseError, got %v", err)
			}
			if fe.Format != tt.wantFormat {
				t.Errorf("expected format %v, got %v", tt.wantFormat, fe.Format)
			}
			if fe.Reason != tt.wantReason {
				t.Errorf("expected reason %v, got %v", tt.wantReason, fe.Reason)
			}
		})
	}
}

func TestService_Process_Idempotent(t *testing.T) {
	svc := newTestService()
	for _, doc := range [][]byte{cdaFixture(t), fhirFixture(t)} {
		first, err := svc.Process(doc, canonical.FormatAuto, "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		second, err := svc.Process(doc, canonical.FormatAuto, "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		a, _ := json.Marshal(first)
		b, _ := json.Marshal(second)
		if string(a) != string(b) {
			t.Errorf("expected identical output for %v documents", first.SourceFormat)
		}
	}
}

func findByCode(ds *canonical.DataSet, kind canonical.SectionKind, code string) canonical.Record {
	for _, r := range ds.Records(kind) {
		if canonical.Describe(r, clinicaldate.StyleEuropean).Code == code {
			return r
		}
	}
	return nil
}

func TestService_CrossFormatParity(t *testing.T) {
	svc := newTestService()
	cda, err := svc.Process(cdaFixture(t), canonical.FormatCDA, "IT")
	if err != nil {
		t.Fatalf("cda: %v", err)
	}
	fhir, err := svc.Process(fhirFixture(t), canonical.FormatFHIR, "PT")
	if err != nil {
		t.Fatalf("fhir: %v", err)
	}

	a := findByCode(cda, canonical.SectionPregnancy, "93857-1")
	b := findByCode(fhir, canonical.SectionPregnancy, "93857-1")
	if a == nil || b == nil {
		t.Fatalf("expected pregnancy outcome in both formats, got cda=%v fhir=%v", a, b)
	}
	if a.Meta().Provenance.SourceFormat == b.Meta().Provenance.SourceFormat {
		t.Error("expected provenance to differ by source format")
	}
	if !canonical.Equivalent(a, b) {
		t.Errorf("expected equivalent records:\ncda:  %+v\nfhir: %+v", a, b)
	}
	if got := canonical.Describe(b, clinicaldate.StyleEuropean).When; got != "5 February 2020" {
		t.Errorf("expected '5 February 2020', got %q", got)
	}
}

func TestService_Metrics(t *testing.T) {
	svc := newTestService()
	ds, err := svc.Process(fhirFixture(t), canonical.FormatAuto, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.Process(nil, canonical.FormatAuto, ""); err == nil {
		t.Fatal("expected failure for empty document")
	}

	populated, degraded := 0, 0
	for _, kind := range canonical.AllSectionKinds() {
		if len(ds.Records(kind)) > 0 {
			populated++
		}
		if ds.PartialCount(kind) > 0 {
			degraded++
		}
	}
	if degraded == 0 {
		t.Fatal("expected the fixture to carry a partial record")
	}

	reg := svc.metrics.Registry()
	tests := []struct {
		metric string
		want   int
	}{
		{"psnormalizer_documents_processed_total", 2},
		{"psnormalizer_document_processing_seconds", 2},
		{"psnormalizer_records_extracted_total", populated},
		{"psnormalizer_records_partial_total", degraded},
	}
	for _, tt := range tests {
		got, err := testutil.GatherAndCount(reg, tt.metric)
		if err != nil {
			t.Fatalf("%s: %v", tt.metric, err)
		}
		if got != tt.want {
			t.Errorf("%s: expected %d series, got %d", tt.metric, tt.want, got)
		}
	}
}

func TestService_NilMetrics(t *testing.T) {
	svc := NewService(zerolog.Nop(), nil)
	if _, err := svc.Process([]byte(patientOnlyBundle), canonical.FormatAuto, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestService_ProcessBatch(t *testing.T) {
	docs := []Document{
		{Name: "summary.xml", Data: cdaFixture(t), Country: "IT"},
		{Name: "broken.json", Data: []byte(`{"resourceType":"Bundle"`), Format: canonical.FormatFHIR},
		{Name: "bundle.json", Data: fhirFixture(t), Format: canonical.FormatFHIR, Country: "PT"},
		{Name: "minimal.json", Data: []byte(patientOnlyBundle)},
	}

	results, err := newTestService().ProcessBatch(context.Background(), docs, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != len(docs) {
		t.Fatalf("expected %d results, got %d", len(docs), len(results))
	}
	for i, r := range results {
		if r.Name != docs[i].Name {
			t.Errorf("result %d: expected name %q, got %q", i, docs[i].Name, r.Name)
		}
	}
	if results[0].Err != nil || results[0].DataSet.SourceFormat != canonical.FormatCDA {
		t.Errorf("expected cda result, got %+v", results[0])
	}
	if !canonical.IsFatal(results[1].Err) || results[1].DataSet != nil {
		t.Errorf("expected fatal error for broken document, got %+v", results[1])
	}
	if results[2].Err != nil || results[2].DataSet.Country != "PT" {
		t.Errorf("expected fhir result, got %+v", results[2])
	}
	if results[3].Err != nil {
		t.Errorf("expected minimal bundle to succeed, got %v", results[3].Err)
	}
}

func TestService_ProcessBatch_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	docs := []Document{{Name: "a", Data: []byte(patientOnlyBundle)}, {Name: "b", Data: []byte(patientOnlyBundle)}}
	results, err := newTestService().ProcessBatch(ctx, docs, 0)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	for _, r := range results {
		if !errors.Is(r.Err, context.Canceled) || r.DataSet != nil {
			t.Errorf("%s: expected cancelled result, got %+v", r.Name, r)
		}
	}
}

func TestService_ProcessBatch_PanicIsolated(t *testing.T) {
	svc := newTestService()
	svc.adapters[canonical.FormatFHIR] = panicParser{}

	docs := []Document{
		{Name: "bad.json", Data: []byte(patientOnlyBundle), Format: canonical.FormatFHIR},
		{Name: "good.xml", Data: cdaFixture(t), Format: canonical.FormatCDA},
	}
	results, err := svc.ProcessBatch(context.Background(), docs, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !canonical.IsFatal(results[0].Err) {
		t.Errorf("expected panic to become a fatal error, got %v", results[0].Err)
	}
	if results[1].Err != nil || results[1].DataSet == nil {
		t.Errorf("expected sibling to succeed, got %+v", results[1])
	}
}
