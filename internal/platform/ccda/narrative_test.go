package ccda

import (
	"testing"

	"github.com/ehr/psnormalizer/internal/domain/canonical"
)

func TestIndexNarrative(t *testing.T) {
	n := &Narrative{Inner: `
		<table>
		  <thead><tr><th>Substance</th><th>Reaction</th></tr></thead>
		  <tbody>
		    <tr ID="row-1"><td><content ID="sub-1">Penicillin</content></td><td>Rash</td></tr>
		  </tbody>
		</table>
		<paragraph ID="note">Reviewed   with
		  patient.</paragraph>`}

	idx := indexNarrative(n)

	tests := []struct {
		ref  string
		want string
	}{
		{"#sub-1", "Penicillin"},
		{"sub-1", "Penicillin"},
		{"#row-1", "Penicillin Rash"},
		{"#note", "Reviewed with patient."},
		{"#missing", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			if got := idx.lookup(tt.ref); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}

	if idx.text != "Substance Reaction Penicillin Rash Reviewed with patient." {
		t.Errorf("unexpected flattened text %q", idx.text)
	}
}

func TestIndexNarrative_Empty(t *testing.T) {
	for _, n := range []*Narrative{nil, {Inner: "   "}} {
		idx := indexNarrative(n)
		if idx.text != "" || len(idx.byID) != 0 {
			t.Errorf("expected empty index, got %+v", idx)
		}
		if got := idx.lookup("#x"); got != "" {
			t.Errorf("expected empty lookup, got %q", got)
		}
	}
}

func TestNarrativeIndex_Resolve(t *testing.T) {
	idx := indexNarrative(&Narrative{Inner: `<content ID="c1">Aspirin 100 mg</content>`})

	tests := []struct {
		name string
		ed   *ED
		want string
	}{
		{"nil", nil, ""},
		{"inline wins", &ED{Content: " inline  text ", Reference: &Reference{Value: "#c1"}}, "inline text"},
		{"reference", &ED{Reference: &Reference{Value: "#c1"}}, "Aspirin 100 mg"},
		{"dangling reference", &ED{Reference: &Reference{Value: "#c9"}}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := idx.resolve(tt.ed); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestProfileFor(t *testing.T) {
	tests := []struct {
		country string
		code    string
		want    canonical.SectionKind
		ok      bool
	}{
		{"", LOINCAllergies, canonical.SectionAllergy, true},
		{"", "10183-2", 0, false},
		{"IT", "10183-2", canonical.SectionMedication, true},
		{" it ", "11329-0", canonical.SectionPastIllness, true},
		{"IE", "11535-2", 0, false},
		{"MT", LOINCPregnancy, canonical.SectionPregnancy, true},
	}
	for _, tt := range tests {
		t.Run(tt.country+"/"+tt.code, func(t *testing.T) {
			kind, ok := ProfileFor(tt.country).sectionKind(tt.code)
			if ok != tt.ok {
				t.Fatalf("expected ok=%v, got %v", tt.ok, ok)
			}
			if ok && kind != tt.want {
				t.Errorf("expected %v, got %v", tt.want, kind)
			}
		})
	}

	if got := ProfileFor("pt").Name; got != "Portugal" {
		t.Errorf("expected Portugal profile, got %q", got)
	}
}

func TestKnownCountry(t *testing.T) {
	for _, c := range []string{"IE", "it", "MT", "PT"} {
		if !KnownCountry(c) {
			t.Errorf("expected %s to be known", c)
		}
	}
	for _, c := range []string{"", "XX", "FR"} {
		if KnownCountry(c) {
			t.Errorf("expected %q to be unknown", c)
		}
	}
}

func TestLoadProfiles_RejectsUnknownKind(t *testing.T) {
	_, err := loadProfiles([]byte("XX:\n  section_aliases:\n    \"1-1\": nonsense\n"))
	if err == nil {
		t.Error("expected error for unknown section kind")
	}
}
