package clinicaldate

import "testing"

func TestFormat(t *testing.T) {
	tests := []struct {
		raw   string
		style Style
		want  string
	}{
		{"20220615", StyleEuropean, "15 June 2022"},
		{"20220615", StyleUS, "June 15, 2022"},
		{"19941003", StyleEuropean, "3 October 1994"},
		{"19941003", StyleUS, "October 3, 1994"},
		{"2022-06-15T14:30:00Z", StyleEuropean, "15 June 2022 at 14:30"},
		{"2022-06-15T14:30:00Z", StyleUS, "June 15, 2022 at 14:30"},
		{"20220615090500", StyleEuropean, "15 June 2022 at 09:05"},
		{"1994", StyleEuropean, "1994"},
		{"1994", StyleUS, "1994"},
		{"", StyleEuropean, "Not recorded"},
		{"garbage", StyleUS, "Not recorded"},
	}
	for _, tt := range tests {
		got := Format(Normalize(tt.raw, HintAny), tt.style)
		if got != tt.want {
			t.Errorf("Format(%q, %s) = %q, want %q", tt.raw, tt.style, got, tt.want)
		}
	}
}

func TestFormat_StableAcrossCalls(t *testing.T) {
	d := Normalize("2022-06-15T14:30:00Z", HintFHIR)
	first := Format(d, StyleEuropean)
	for i := 0; i < 5; i++ {
		if got := Format(Normalize("2022-06-15T14:30:00Z", HintFHIR), StyleEuropean); got != first {
			t.Fatalf("expected stable output %q, got %q", first, got)
		}
	}
}

func TestFormatRange(t *testing.T) {
	start := Normalize("20200101", HintCDA)
	end := Normalize("20210315", HintCDA)

	if got := FormatRange(start, end, StyleEuropean); got != "1 January 2020 to 15 March 2021" {
		t.Errorf("unexpected closed range: %q", got)
	}
	if got := FormatRange(start, Unknown(), StyleEuropean); got != "since 1 January 2020" {
		t.Errorf("unexpected open range: %q", got)
	}
	if got := FormatRange(Unknown(), end, StyleUS); got != "until March 15, 2021" {
		t.Errorf("unexpected end-only range: %q", got)
	}
	if got := FormatRange(start, start, StyleEuropean); got != "1 January 2020" {
		t.Errorf("unexpected single-day range: %q", got)
	}
	if got := FormatRange(Unknown(), Unknown(), StyleEuropean); got != NotRecorded {
		t.Errorf("expected %q, got %q", NotRecorded, got)
	}
}

func TestParseStyle(t *testing.T) {
	if ParseStyle("US") != StyleUS {
		t.Error("expected US style")
	}
	if ParseStyle("european") != StyleEuropean {
		t.Error("expected European style")
	}
	if ParseStyle("") != StyleEuropean {
		t.Error("expected default European style")
	}
}
