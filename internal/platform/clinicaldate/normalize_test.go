package clinicaldate

import (
	"encoding/json"
	"testing"
	"time"
)

func TestNormalize_Encodings(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		hint    SourceHint
		kind    Kind
		iso     string
		hasTime bool
	}{
		{"cda date", "20220615", HintCDA, KindExact, "2022-06-15", false},
		{"cda midnight", "20220615000000", HintCDA, KindExact, "2022-06-15", false},
		{"cda time with zone", "20220615143000+0100", HintCDA, KindExact, "2022-06-15T14:30:00", true},
		{"cda minutes only", "202206151430", HintCDA, KindExact, "2022-06-15T14:30:00", true},
		{"cda fractional seconds", "20220615143000.250-0500", HintCDA, KindExact, "2022-06-15T14:30:00", true},
		{"cda year", "1994", HintCDA, KindYearOnly, "1994", false},
		{"cda year month", "199410", HintCDA, KindYearOnly, "1994", false},
		{"fhir date", "2022-06-15", HintFHIR, KindExact, "2022-06-15", false},
		{"fhir midnight utc", "2022-06-15T00:00:00Z", HintFHIR, KindExact, "2022-06-15", false},
		{"fhir time utc", "2022-06-15T14:30:00Z", HintFHIR, KindExact, "2022-06-15T14:30:00", true},
		{"fhir time offset millis", "2022-06-15T14:30:00.123+02:00", HintFHIR, KindExact, "2022-06-15T14:30:00", true},
		{"fhir year month", "2020-02", HintFHIR, KindYearOnly, "2020", false},
		{"fhir string under cda hint", "2022-06-15", HintCDA, KindExact, "2022-06-15", false},
		{"cda string under fhir hint", "20220615", HintFHIR, KindExact, "2022-06-15", false},
		{"surrounding whitespace", "  19941003 ", HintAny, KindExact, "1994-10-03", false},
		{"leap day", "20200229", HintCDA, KindExact, "2020-02-29", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Normalize(tt.raw, tt.hint)
			if d.Kind() != tt.kind {
				t.Fatalf("expected kind %s, got %s", tt.kind, d.Kind())
			}
			if d.ISO() != tt.iso {
				t.Errorf("expected ISO %q, got %q", tt.iso, d.ISO())
			}
			if d.HasTime() != tt.hasTime {
				t.Errorf("expected HasTime=%v, got %v", tt.hasTime, d.HasTime())
			}
		})
	}
}

func TestNormalize_Unparseable(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		"abc",
		"20221315",
		"20210229",
		"2022-02-30",
		"2022-06-15T25:00:00Z",
		"2022/06/15",
		"15-06-2022",
		"2022-6-15",
		"20220615143000+99",
		"2022-06-15T14:30:00+0200",
		"0000",
		"not a date at all",
	}
	for _, raw := range inputs {
		if d := Normalize(raw, HintAny); d.IsKnown() {
			t.Errorf("Normalize(%q) = %s, expected Unknown", raw, d)
		}
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{"20220615", "2022-06-15T14:30:00Z", "1994", "garbage", "", "20220615143000+0100"}
	for _, raw := range inputs {
		for _, hint := range []SourceHint{HintAny, HintCDA, HintFHIR} {
			a := Normalize(raw, hint)
			b := Normalize(raw, hint)
			if a != b {
				t.Errorf("Normalize(%q) not stable: %v vs %v", raw, a, b)
			}
		}
	}
}

func TestNormalize_CrossFormatParity(t *testing.T) {
	cda := Normalize("20220615", HintCDA)
	fhir := Normalize("2022-06-15T00:00:00Z", HintFHIR)
	if cda != fhir {
		t.Fatalf("expected identical dates, got %v and %v", cda, fhir)
	}
	if got := Format(cda, StyleEuropean); got != "15 June 2022" {
		t.Errorf("expected '15 June 2022', got %q", got)
	}
}

func TestNormalize_SignificantTimeParity(t *testing.T) {
	fhir := Normalize("2022-06-15T14:30:00Z", HintFHIR)
	cda := Normalize("20220615143000+0100", HintCDA)
	if fhir != cda {
		t.Fatalf("expected identical wall-clock dates, got %v and %v", fhir, cda)
	}
	if got := Format(fhir, StyleEuropean); got != "15 June 2022 at 14:30" {
		t.Errorf("expected '15 June 2022 at 14:30', got %q", got)
	}
}

func TestDate_Time(t *testing.T) {
	d := Normalize("20220615143000", HintCDA)
	tm, ok := d.Time()
	if !ok {
		t.Fatal("expected exact date to convert")
	}
	want := time.Date(2022, time.June, 15, 14, 30, 0, 0, time.UTC)
	if !tm.Equal(want) {
		t.Errorf("expected %v, got %v", want, tm)
	}
	if _, ok := Normalize("1994", HintCDA).Time(); ok {
		t.Error("expected year-only date not to convert")
	}
}

func TestDate_Before(t *testing.T) {
	early := Normalize("19941003", HintCDA)
	late := Normalize("2022-06-15", HintFHIR)
	year := Normalize("2000", HintAny)

	if !early.Before(late) {
		t.Error("expected 1994 before 2022")
	}
	if late.Before(early) {
		t.Error("expected 2022 not before 1994")
	}
	if !year.Before(late) {
		t.Error("expected year 2000 before 2022-06-15")
	}
	if Unknown().Before(early) {
		t.Error("expected Unknown to sort last")
	}
	if !early.Before(Unknown()) {
		t.Error("expected known dates before Unknown")
	}
}

func TestDate_MarshalJSON(t *testing.T) {
	data, err := json.Marshal(Normalize("2022-06-15T14:30:00Z", HintFHIR))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got map[string]interface{}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["kind"] != "exact" {
		t.Errorf("expected kind 'exact', got %v", got["kind"])
	}
	if got["value"] != "2022-06-15T14:30:00" {
		t.Errorf("expected value '2022-06-15T14:30:00', got %v", got["value"])
	}
	if got["has_time"] != true {
		t.Errorf("expected has_time true, got %v", got["has_time"])
	}

	data, _ = json.Marshal(Unknown())
	if string(data) != `{"kind":"unknown"}` {
		t.Errorf("expected unknown JSON, got %s", data)
	}
}
