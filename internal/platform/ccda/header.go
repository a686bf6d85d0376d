package ccda

import (
	"strings"

	"github.com/ehr/psnormalizer/internal/domain/canonical"
	"github.com/ehr/psnormalizer/pkg/fhirmodels"
)

// parsePatient extracts patient demographics from the CDA header.
func parsePatient(role *PatientRole) canonical.Demographics {
	var patient canonical.Demographics

	for _, id := range role.IDs {
		if id.NullFlavor != "" || (id.Root == "" && id.Extension == "") {
			continue
		}
		patient.Identifiers = append(patient.Identifiers, canonical.Identifier{
			Extension:          id.Extension,
			Root:               id.Root,
			AssigningAuthority: id.AssigningAuthorityName,
		})
	}

	if role.Patient == nil {
		return patient
	}
	pat := role.Patient

	if len(pat.Names) > 0 {
		n := pat.Names[0]
		patient.GivenName = collapse(strings.Join(n.Given, " "))
		patient.FamilyName = collapse(strings.Join(n.Family, " "))
		if patient.GivenName == "" && patient.FamilyName == "" {
			patient.FamilyName = collapse(n.Content)
		}
	}

	if cd := pat.AdministrativeGenderCode; cd != nil && cd.Code != "" {
		patient.Gender = fhirmodels.GenderFromV3(cd.Code)
	}
	if pat.BirthTime != nil {
		patient.BirthDate = cdaDate(pat.BirthTime.Value)
	}
	return patient
}

// ---- Administrative data ----

// party is the common view over the header participations (author, legal
// authenticator, emergency contact) the fallback chains work on.
type party struct {
	role     *CD
	person   *Person
	org      *Organization
	device   *AuthoringDevice
	telecoms []Telecom
	time     *TS
}

var partyChain = []canonical.Strategy[party, canonical.Party]{
	{Source: canonical.SourceEnhanced, Extract: enhancedParty},
	{Source: canonical.SourceBasic, Extract: basicParty},
	{Source: canonical.SourceDefault, Extract: defaultParty},
}

var custodianChain = []canonical.Strategy[*Organization, canonical.Organization]{
	{Source: canonical.SourceEnhanced, Extract: enhancedOrganization},
	{Source: canonical.SourceBasic, Extract: basicOrganization},
	{Source: canonical.SourceDefault, Extract: defaultOrganization},
}

// enhancedParty needs a structured person name plus the organization or
// role it acts for.
func enhancedParty(p party) (canonical.Party, bool) {
	name := personName(p.person)
	if name == "" || (p.org == nil && p.role == nil) {
		return canonical.Party{}, false
	}
	out := canonical.Party{
		Name:     name,
		Telecoms: telecoms(p.telecoms),
	}
	if p.role != nil {
		out.Role = firstNonEmpty(p.role.DisplayName, p.role.Code)
	}
	if p.org != nil {
		out.Organization = firstString(p.org.Names)
		if len(out.Telecoms) == 0 {
			out.Telecoms = telecoms(p.org.Telecoms)
		}
	}
	if p.time != nil {
		out.Time = cdaDate(p.time.Value)
	}
	return out, true
}

// basicParty settles for any name: person, device or organization.
func basicParty(p party) (canonical.Party, bool) {
	name := personName(p.person)
	if name == "" && p.device != nil {
		name = firstNonEmpty(p.device.SoftwareName, p.device.ManufacturerModelName)
	}
	if name == "" && p.org != nil {
		name = firstString(p.org.Names)
	}
	if name == "" {
		return canonical.Party{}, false
	}
	return canonical.Party{Name: collapse(name), Telecoms: telecoms(p.telecoms)}, true
}

func defaultParty(party) (canonical.Party, bool) {
	return canonical.Party{}, true
}

func enhancedOrganization(o *Organization) (canonical.Organization, bool) {
	if o == nil {
		return canonical.Organization{}, false
	}
	name := firstString(o.Names)
	if name == "" || len(o.IDs) == 0 {
		return canonical.Organization{}, false
	}
	out := canonical.Organization{
		Name:     name,
		Telecoms: telecoms(o.Telecoms),
	}
	for _, id := range o.IDs {
		if id.NullFlavor == "" && (id.Root != "" || id.Extension != "") {
			out.Identifiers = append(out.Identifiers, canonical.Identifier{
				Extension:          id.Extension,
				Root:               id.Root,
				AssigningAuthority: id.AssigningAuthorityName,
			})
		}
	}
	if len(o.Addrs) > 0 {
		out.Address = formatAddress(o.Addrs[0])
	}
	return out, true
}

func basicOrganization(o *Organization) (canonical.Organization, bool) {
	if o == nil {
		return canonical.Organization{}, false
	}
	if name := firstString(o.Names); name != "" {
		return canonical.Organization{Name: name}, true
	}
	for _, id := range o.IDs {
		if id.Extension != "" {
			return canonical.Organization{Name: id.Extension}, true
		}
	}
	return canonical.Organization{}, false
}

func defaultOrganization(*Organization) (canonical.Organization, bool) {
	return canonical.Organization{}, true
}

// parseAdministrative runs the fallback chains over the header.
func parseAdministrative(doc *ClinicalDocument) canonical.AdministrativeData {
	var admin canonical.AdministrativeData

	var custodian *Organization
	if doc.Custodian != nil && doc.Custodian.AssignedCustodian != nil {
		custodian = doc.Custodian.AssignedCustodian.RepresentedCustodianOrganization
	}
	org, src := canonical.FirstOf(custodian, custodianChain...)
	org.Source = src
	admin.Custodian = org

	for _, a := range doc.Authors {
		p := party{time: a.Time}
		if e := a.AssignedAuthor; e != nil {
			p.role, p.person, p.org, p.device, p.telecoms = e.Code, e.AssignedPerson, e.RepresentedOrganization, e.AssignedAuthoringDevice, e.Telecoms
		}
		admin.Authors = append(admin.Authors, resolveParty(p))
	}

	if la := doc.LegalAuthenticator; la != nil {
		p := party{time: la.Time}
		if e := la.AssignedEntity; e != nil {
			p.role, p.person, p.org, p.telecoms = e.Code, e.AssignedPerson, e.RepresentedOrganization, e.Telecoms
		}
		admin.LegalAuthenticator = resolveParty(p)
	}

	for _, hp := range doc.Participants {
		e := hp.AssociatedEntity
		if e == nil || !isContact(hp.TypeCode, e.ClassCode) {
			continue
		}
		p := party{role: e.Code, person: e.AssociatedPerson, org: e.ScopingOrganization, telecoms: e.Telecoms}
		admin.EmergencyContacts = append(admin.EmergencyContacts, resolveParty(p))
	}
	return admin
}

func resolveParty(p party) canonical.Party {
	out, src := canonical.FirstOf(p, partyChain...)
	out.Source = src
	return out
}

// isContact accepts IND participants whose associated entity is an
// emergency contact, next of kin or other personal relationship.
func isContact(typeCode, classCode string) bool {
	if typeCode != "" && typeCode != "IND" {
		return false
	}
	switch classCode {
	case "ECON", "NOK", "PRS", "CAREGIVER":
		return true
	}
	return false
}

func personName(p *Person) string {
	if p == nil || len(p.Names) == 0 {
		return ""
	}
	n := p.Names[0]
	parts := append(append(append([]string{}, n.Prefixes...), n.Given...), n.Family...)
	if name := collapse(strings.Join(parts, " ")); name != "" {
		return name
	}
	return collapse(n.Content)
}

func telecoms(ts []Telecom) []string {
	var out []string
	for _, t := range ts {
		if v := strings.TrimSpace(t.Value); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func formatAddress(a Address) string {
	parts := append([]string{}, a.StreetAddressLines...)
	parts = append(parts, strings.TrimSpace(a.PostalCode+" "+a.City), a.State, a.Country)
	var kept []string
	for _, p := range parts {
		if p = collapse(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ", ")
}

func firstString(ss []string) string {
	for _, s := range ss {
		if s = collapse(s); s != "" {
			return s
		}
	}
	return ""
}

func firstNonEmpty(ss ...string) string {
	return firstString(ss)
}
