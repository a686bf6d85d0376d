package ccda

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ehr/psnormalizer/internal/domain/canonical"
)

//go:embed profiles.yaml
var profilesYAML []byte

// CountryProfile captures how a national CDA variant differs from the base
// EU Patient Summary layout.
type CountryProfile struct {
	Name           string            `yaml:"name"`
	SectionAliases map[string]string `yaml:"section_aliases"`

	aliases map[string]canonical.SectionKind
}

// profiles is built once at init and only read afterwards.
var profiles = mustLoadProfiles(profilesYAML)

func mustLoadProfiles(data []byte) map[string]CountryProfile {
	out, err := loadProfiles(data)
	if err != nil {
		panic(err)
	}
	return out
}

func loadProfiles(data []byte) (map[string]CountryProfile, error) {
	var raw map[string]CountryProfile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("ccda: decode country profiles: %w", err)
	}

	out := make(map[string]CountryProfile, len(raw))
	for country, p := range raw {
		p.aliases = make(map[string]canonical.SectionKind, len(p.SectionAliases))
		for code, name := range p.SectionAliases {
			kind, ok := canonical.ParseSectionKind(name)
			if !ok {
				return nil, fmt.Errorf("ccda: profile %s: unknown section kind %q", country, name)
			}
			p.aliases[code] = kind
		}
		out[strings.ToUpper(country)] = p
	}
	return out, nil
}

// ProfileFor returns the profile for an ISO country code. Unknown or empty
// codes get the zero profile, which adds nothing to the base layout.
func ProfileFor(country string) CountryProfile {
	return profiles[strings.ToUpper(strings.TrimSpace(country))]
}

// KnownCountry reports whether a national profile exists for country.
func KnownCountry(country string) bool {
	_, ok := profiles[strings.ToUpper(strings.TrimSpace(country))]
	return ok
}

// sectionKind resolves a section LOINC code against the base table and
// then the profile's aliases.
func (p CountryProfile) sectionKind(code string) (canonical.SectionKind, bool) {
	if kind, ok := sectionKinds[code]; ok {
		return kind, true
	}
	kind, ok := p.aliases[code]
	return kind, ok
}
