package fhir

import (
	"strings"

	"github.com/ehr/psnormalizer/internal/domain/canonical"
	"github.com/ehr/psnormalizer/pkg/fhirmodels"
)

// parsePatient extracts demographics from the Patient resource.
func parsePatient(p *Patient) canonical.Demographics {
	var patient canonical.Demographics
	for _, id := range p.Identifier {
		if id.Value == "" && id.System == "" {
			continue
		}
		patient.Identifiers = append(patient.Identifiers, identifier(id))
	}

	if n := preferredName(p.Name); n != nil {
		patient.GivenName = collapse(strings.Join(n.Given, " "))
		patient.FamilyName = collapse(n.Family)
		if patient.GivenName == "" && patient.FamilyName == "" {
			patient.FamilyName = collapse(n.Text)
		}
	}
	if p.Gender != "" {
		patient.Gender = fhirmodels.GenderFromV3(strings.ToLower(p.Gender))
	}
	patient.BirthDate = fhirDate(p.BirthDate)
	return patient
}

// identifier maps a FHIR Identifier onto the CDA-style II shape; an
// urn:oid: system becomes the bare OID root.
func identifier(id Identifier) canonical.Identifier {
	out := canonical.Identifier{
		Extension: strings.TrimSpace(id.Value),
		Root:      strings.TrimPrefix(strings.TrimSpace(id.System), "urn:oid:"),
	}
	if id.Assigner != nil {
		out.AssigningAuthority = collapse(id.Assigner.Display)
	}
	return out
}

// preferredName picks the official name, else the first one.
func preferredName(names []HumanName) *HumanName {
	for i := range names {
		if names[i].Use == "official" {
			return &names[i]
		}
	}
	if len(names) > 0 {
		return &names[0]
	}
	return nil
}

func displayName(n *HumanName) string {
	if n == nil {
		return ""
	}
	parts := append(append(append([]string{}, n.Prefix...), n.Given...), n.Family)
	if name := collapse(strings.Join(parts, " ")); name != "" {
		return name
	}
	return collapse(n.Text)
}

// ---- Administrative data ----

// party is the resolved view of an author, attester or contact that the
// fallback chains work on.
type party struct {
	person   string
	role     string
	org      string
	device   string
	display  string
	telecoms []ContactPoint
	time     string
}

var partyChain = []canonical.Strategy[party, canonical.Party]{
	{Source: canonical.SourceEnhanced, Extract: enhancedParty},
	{Source: canonical.SourceBasic, Extract: basicParty},
	{Source: canonical.SourceDefault, Extract: defaultParty},
}

var custodianChain = []canonical.Strategy[custodian, canonical.Organization]{
	{Source: canonical.SourceEnhanced, Extract: enhancedOrganization},
	{Source: canonical.SourceBasic, Extract: basicOrganization},
	{Source: canonical.SourceDefault, Extract: defaultOrganization},
}

// enhancedParty needs a person name plus the organization or role it acts
// for.
func enhancedParty(p party) (canonical.Party, bool) {
	if p.person == "" || (p.org == "" && p.role == "") {
		return canonical.Party{}, false
	}
	return canonical.Party{
		Name:         p.person,
		Role:         p.role,
		Organization: p.org,
		Telecoms:     contactPoints(p.telecoms),
		Time:         fhirDate(p.time),
	}, true
}

// basicParty settles for any name, including the reference display.
func basicParty(p party) (canonical.Party, bool) {
	for _, name := range []string{p.person, p.device, p.org, p.display} {
		if name != "" {
			return canonical.Party{Name: name, Telecoms: contactPoints(p.telecoms)}, true
		}
	}
	return canonical.Party{}, false
}

func defaultParty(party) (canonical.Party, bool) {
	return canonical.Party{}, true
}

// custodian is the Composition.custodian reference and the Organization it
// resolved to, if any.
type custodian struct {
	org *Organization
	ref *Reference
}

func enhancedOrganization(c custodian) (canonical.Organization, bool) {
	o := c.org
	if o == nil || collapse(o.Name) == "" || len(o.Identifier) == 0 {
		return canonical.Organization{}, false
	}
	out := canonical.Organization{
		Name:     collapse(o.Name),
		Telecoms: contactPoints(o.Telecom),
	}
	for _, id := range o.Identifier {
		if id.Value != "" || id.System != "" {
			out.Identifiers = append(out.Identifiers, identifier(id))
		}
	}
	if len(o.Address) > 0 {
		out.Address = formatAddress(o.Address[0])
	}
	return out, true
}

func basicOrganization(c custodian) (canonical.Organization, bool) {
	if c.org != nil {
		if name := collapse(c.org.Name); name != "" {
			return canonical.Organization{Name: name}, true
		}
		for _, id := range c.org.Identifier {
			if id.Value != "" {
				return canonical.Organization{Name: id.Value}, true
			}
		}
	}
	if c.ref != nil {
		if name := collapse(c.ref.Display); name != "" {
			return canonical.Organization{Name: name}, true
		}
	}
	return canonical.Organization{}, false
}

func defaultOrganization(custodian) (canonical.Organization, bool) {
	return canonical.Organization{}, true
}

// parseAdministrative reads custodian, authors and legal attester from the
// first Composition, and emergency contacts from the Patient and any
// RelatedPerson resources.
func (bc *bundleContext) parseAdministrative(pat *Patient) canonical.AdministrativeData {
	var admin canonical.AdministrativeData

	comp := bc.composition()
	if comp != nil {
		c := custodian{ref: comp.Custodian}
		if target, ok := bc.index.resolve(comp.Custodian); ok && target.resource.ResourceType == "Organization" {
			c.org, _ = decode[Organization](target)
		}
		admin.Custodian = resolveOrganization(c)

		for i := range comp.Author {
			p := bc.participant(&comp.Author[i])
			p.time = comp.Date
			admin.Authors = append(admin.Authors, resolveParty(p))
		}
		for _, at := range comp.Attester {
			if at.Mode != "legal" {
				continue
			}
			p := bc.participant(at.Party)
			p.time = at.Time
			admin.LegalAuthenticator = resolveParty(p)
			break
		}
	} else {
		admin.Custodian = resolveOrganization(custodian{})
	}

	for _, c := range pat.Contact {
		p := party{
			person:   displayName(c.Name),
			role:     firstConcept(c.Relationship).Label(),
			telecoms: c.Telecom,
		}
		p.org = bc.organizationName(c.Organization)
		admin.EmergencyContacts = append(admin.EmergencyContacts, resolveParty(p))
	}
	for _, e := range bc.index.ofType("RelatedPerson") {
		rp, err := decode[RelatedPerson](e)
		if err != nil {
			bc.logger.Warn().Err(err).Str("fragment", e.fragment()).Msg("resource decode failed")
			continue
		}
		p := party{
			person:   displayName(preferredName(rp.Name)),
			role:     firstConcept(rp.Relationship).Label(),
			telecoms: rp.Telecom,
		}
		admin.EmergencyContacts = append(admin.EmergencyContacts, resolveParty(p))
	}
	return admin
}

func (bc *bundleContext) composition() *Composition {
	for _, e := range bc.index.ofType("Composition") {
		if c, err := decode[Composition](e); err == nil {
			return c
		}
	}
	return nil
}

// participant resolves an author or attester reference to whatever the bundle
// holds for it.
func (bc *bundleContext) participant(ref *Reference) party {
	var p party
	if ref == nil {
		return p
	}
	p.display = collapse(ref.Display)

	target, ok := bc.index.resolve(ref)
	if !ok {
		return p
	}
	switch target.resource.ResourceType {
	case "Practitioner":
		if pr, err := decode[Practitioner](target); err == nil {
			p.person = displayName(preferredName(pr.Name))
			p.telecoms = pr.Telecom
		}
	case "PractitionerRole":
		if role, err := decode[PractitionerRole](target); err == nil {
			if pt, ok := bc.index.resolve(role.Practitioner); ok && pt.resource.ResourceType == "Practitioner" {
				if pr, err := decode[Practitioner](pt); err == nil {
					p.person = displayName(preferredName(pr.Name))
					p.telecoms = pr.Telecom
				}
			}
			if p.person == "" && role.Practitioner != nil {
				p.person = collapse(role.Practitioner.Display)
			}
			p.role = firstConcept(role.Code).Label()
			p.org = bc.organizationName(role.Organization)
			if len(role.Telecom) > 0 {
				p.telecoms = role.Telecom
			}
		}
	case "Organization":
		if o, err := decode[Organization](target); err == nil {
			p.org = collapse(o.Name)
			p.telecoms = o.Telecom
		}
	case "Device":
		if d, err := decode[Device](target); err == nil {
			p.device = deviceConcept(d).Label()
		}
	case "RelatedPerson":
		if rp, err := decode[RelatedPerson](target); err == nil {
			p.person = displayName(preferredName(rp.Name))
			p.telecoms = rp.Telecom
		}
	}
	return p
}

func (bc *bundleContext) organizationName(ref *Reference) string {
	if ref == nil {
		return ""
	}
	if target, ok := bc.index.resolve(ref); ok && target.resource.ResourceType == "Organization" {
		if o, err := decode[Organization](target); err == nil && collapse(o.Name) != "" {
			return collapse(o.Name)
		}
	}
	return collapse(ref.Display)
}

func resolveParty(p party) canonical.Party {
	out, src := canonical.FirstOf(p, partyChain...)
	out.Source = src
	return out
}

func resolveOrganization(c custodian) canonical.Organization {
	out, src := canonical.FirstOf(c, custodianChain...)
	out.Source = src
	return out
}

func contactPoints(cps []ContactPoint) []string {
	var out []string
	for _, cp := range cps {
		v := strings.TrimSpace(cp.Value)
		if v == "" {
			continue
		}
		switch cp.System {
		case "phone", "fax", "sms":
			if !strings.HasPrefix(v, "tel:") {
				v = "tel:" + v
			}
		case "email":
			if !strings.HasPrefix(v, "mailto:") {
				v = "mailto:" + v
			}
		}
		out = append(out, v)
	}
	return out
}

func formatAddress(a Address) string {
	if text := collapse(a.Text); text != "" && len(a.Line) == 0 && a.City == "" {
		return text
	}
	parts := append([]string{}, a.Line...)
	parts = append(parts, strings.TrimSpace(a.PostalCode+" "+a.City), a.State, a.Country)
	var kept []string
	for _, p := range parts {
		if p = collapse(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ", ")
}
