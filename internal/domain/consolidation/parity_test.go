package consolidation

import (
	"testing"

	"github.com/ehr/psnormalizer/internal/domain/canonical"
)

// cdaDocument wraps body sections in a clinical document for one patient.
func cdaDocument(sections string) []byte {
	return []byte(`<?xml version="1.0" encoding="UTF-8"?>
<ClinicalDocument xmlns="urn:hl7-org:v3" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance">
  <recordTarget><patientRole><id root="1.2.3" extension="p-1"/>
    <patient><name><given>Ana</given><family>Silva</family></name></patient>
  </patientRole></recordTarget>
  <component><structuredBody>` + sections + `</structuredBody></component>
</ClinicalDocument>`)
}

// fhirDocument wraps resources in a document bundle for the same patient.
func fhirDocument(resources ...string) []byte {
	out := `{"resourceType":"Bundle","type":"document","entry":[` +
		`{"resource":{"resourceType":"Patient","id":"p1","name":[{"given":["Ana"],"family":"Silva"}]}}`
	for _, r := range resources {
		out += `,{"resource":` + r + `}`
	}
	return []byte(out + `]}`)
}

func TestService_SectionParity(t *testing.T) {
	tests := []struct {
		name string
		kind canonical.SectionKind
		cda  string
		fhir string
	}{
		{
			name: "allergy",
			kind: canonical.SectionAllergy,
			cda: `<component><section>
			  <code code="48765-2" codeSystem="2.16.840.1.113883.6.1"/>
			  <entry><act classCode="ACT" moodCode="EVN">
			    <entryRelationship typeCode="SUBJ"><observation classCode="OBS" moodCode="EVN">
			      <effectiveTime><low value="20100315"/></effectiveTime>
			      <participant typeCode="CSM"><participantRole classCode="MANU"><playingEntity classCode="MMAT">
			        <code code="764146007" codeSystem="2.16.840.1.113883.6.96" displayName="Penicillin"/>
			      </playingEntity></participantRole></participant>
			      <entryRelationship typeCode="MFST"><observation classCode="OBS" moodCode="EVN">
			        <value xsi:type="CD" code="247472004" codeSystem="2.16.840.1.113883.6.96" displayName="Hives"/>
			      </observation></entryRelationship>
			    </observation></entryRelationship>
			  </act></entry>
			</section></component>`,
			fhir: `{"resourceType":"AllergyIntolerance","id":"a1",
			  "code":{"coding":[{"system":"http://snomed.info/sct","code":"764146007","display":"Penicillin"}]},
			  "onsetDateTime":"2010-03-15",
			  "reaction":[{"manifestation":[{"coding":[{"system":"http://snomed.info/sct","code":"247472004","display":"Hives"}]}]}]}`,
		},
		{
			name: "active condition",
			kind: canonical.SectionProblem,
			cda: `<component><section>
			  <code code="11450-4" codeSystem="2.16.840.1.113883.6.1"/>
			  <entry><act classCode="ACT" moodCode="EVN">
			    <entryRelationship typeCode="SUBJ"><observation classCode="OBS" moodCode="EVN">
			      <effectiveTime><low value="20150610"/></effectiveTime>
			      <value xsi:type="CD" code="195967001" codeSystem="2.16.840.1.113883.6.96" displayName="Asthma"/>
			      <entryRelationship typeCode="REFR"><observation classCode="OBS" moodCode="EVN">
			        <code code="33999-4" codeSystem="2.16.840.1.113883.6.1"/>
			        <value xsi:type="CD" code="55561003" codeSystem="2.16.840.1.113883.6.96" displayName="Active"/>
			      </observation></entryRelationship>
			    </observation></entryRelationship>
			  </act></entry>
			</section></component>`,
			fhir: `{"resourceType":"Condition","id":"c1",
			  "clinicalStatus":{"coding":[{"system":"http://terminology.hl7.org/CodeSystem/condition-clinical","code":"active"}]},
			  "code":{"coding":[{"system":"http://snomed.info/sct","code":"195967001","display":"Asthma"}]},
			  "onsetDateTime":"2015-06-10"}`,
		},
		{
			name: "resolved condition in the problem list",
			kind: canonical.SectionPastIllness,
			cda: `<component><section>
			  <code code="11450-4" codeSystem="2.16.840.1.113883.6.1"/>
			  <entry><act classCode="ACT" moodCode="EVN">
			    <entryRelationship typeCode="SUBJ"><observation classCode="OBS" moodCode="EVN">
			      <effectiveTime><low value="20180304"/><high value="20190520"/></effectiveTime>
			      <value xsi:type="CD" code="38341003" codeSystem="2.16.840.1.113883.6.96" displayName="Hypertensive disorder"/>
			      <entryRelationship typeCode="REFR"><observation classCode="OBS" moodCode="EVN">
			        <code code="33999-4" codeSystem="2.16.840.1.113883.6.1"/>
			        <value xsi:type="CD" code="413322009" codeSystem="2.16.840.1.113883.6.96" displayName="Resolved"/>
			      </observation></entryRelationship>
			    </observation></entryRelationship>
			  </act></entry>
			</section></component>`,
			fhir: `{"resourceType":"Condition","id":"c2",
			  "clinicalStatus":{"coding":[{"system":"http://terminology.hl7.org/CodeSystem/condition-clinical","code":"resolved"}]},
			  "code":{"coding":[{"system":"http://snomed.info/sct","code":"38341003","display":"Hypertensive disorder"}]},
			  "onsetDateTime":"2018-03-04","abatementDateTime":"2019-05-20"}`,
		},
		{
			name: "medication",
			kind: canonical.SectionMedication,
			cda: `<component><section>
			  <code code="10160-0" codeSystem="2.16.840.1.113883.6.1"/>
			  <entry><substanceAdministration classCode="SBADM" moodCode="EVN">
			    <effectiveTime xsi:type="IVL_TS"><low value="20200101"/></effectiveTime>
			    <routeCode code="26643006" codeSystem="2.16.840.1.113883.6.96" displayName="Oral route"/>
			    <doseQuantity value="500" unit="mg"/>
			    <consumable><manufacturedProduct><manufacturedMaterial>
			      <code code="A10BA02" codeSystem="2.16.840.1.113883.6.73" displayName="metformin"/>
			    </manufacturedMaterial></manufacturedProduct></consumable>
			  </substanceAdministration></entry>
			</section></component>`,
			fhir: `{"resourceType":"MedicationStatement","id":"m1","status":"active",
			  "medicationCodeableConcept":{"coding":[{"system":"http://www.whocc.no/atc","code":"A10BA02","display":"metformin"}]},
			  "effectivePeriod":{"start":"2020-01-01"},
			  "dosage":[{"route":{"coding":[{"system":"http://snomed.info/sct","code":"26643006","display":"Oral route"}]},
			    "doseAndRate":[{"doseQuantity":{"value":500,"unit":"mg","system":"http://unitsofmeasure.org","code":"mg"}}]}]}`,
		},
		{
			name: "immunization",
			kind: canonical.SectionImmunization,
			cda: `<component><section>
			  <code code="11369-6" codeSystem="2.16.840.1.113883.6.1"/>
			  <entry><substanceAdministration classCode="SBADM" moodCode="EVN">
			    <effectiveTime value="20210510"/>
			    <repeatNumber value="2"/>
			    <consumable><manufacturedProduct><manufacturedMaterial>
			      <code code="871831003" codeSystem="2.16.840.1.113883.6.96" displayName="Measles, mumps and rubella vaccine"/>
			      <lotNumberText>AB123</lotNumberText>
			    </manufacturedMaterial></manufacturedProduct></consumable>
			  </substanceAdministration></entry>
			</section></component>`,
			fhir: `{"resourceType":"Immunization","id":"i1","status":"completed",
			  "vaccineCode":{"coding":[{"system":"http://snomed.info/sct","code":"871831003","display":"Measles, mumps and rubella vaccine"}]},
			  "occurrenceDateTime":"2021-05-10","lotNumber":"AB123",
			  "protocolApplied":[{"doseNumberPositiveInt":2}]}`,
		},
		{
			name: "vital sign",
			kind: canonical.SectionVitalSign,
			cda: `<component><section>
			  <code code="8716-3" codeSystem="2.16.840.1.113883.6.1"/>
			  <entry><observation classCode="OBS" moodCode="EVN">
			    <code code="8867-4" codeSystem="2.16.840.1.113883.6.1" displayName="Heart rate"/>
			    <effectiveTime value="20230401"/>
			    <value xsi:type="PQ" value="72" unit="/min"/>
			  </observation></entry>
			</section></component>`,
			fhir: `{"resourceType":"Observation","id":"o1","status":"final",
			  "category":[{"coding":[{"system":"http://terminology.hl7.org/CodeSystem/observation-category","code":"vital-signs"}]}],
			  "code":{"coding":[{"system":"http://loinc.org","code":"8867-4","display":"Heart rate"}]},
			  "effectiveDateTime":"2023-04-01",
			  "valueQuantity":{"value":72,"unit":"/min","system":"http://unitsofmeasure.org","code":"/min"}}`,
		},
		{
			name: "laboratory result",
			kind: canonical.SectionLaboratoryResult,
			cda: `<component><section>
			  <code code="30954-2" codeSystem="2.16.840.1.113883.6.1"/>
			  <entry><observation classCode="OBS" moodCode="EVN">
			    <code code="718-7" codeSystem="2.16.840.1.113883.6.1" displayName="Hemoglobin"/>
			    <effectiveTime value="20230402"/>
			    <value xsi:type="PQ" value="13.50" unit="g/dL"/>
			  </observation></entry>
			</section></component>`,
			fhir: `{"resourceType":"Observation","id":"o2","status":"final",
			  "category":[{"coding":[{"code":"laboratory"}]}],
			  "code":{"coding":[{"system":"http://loinc.org","code":"718-7","display":"Hemoglobin"}]},
			  "effectiveDateTime":"2023-04-02",
			  "valueQuantity":{"value":13.5,"unit":"g/dL","system":"http://unitsofmeasure.org","code":"g/dL"}}`,
		},
		{
			name: "pregnancy status filed as social history",
			kind: canonical.SectionPregnancy,
			cda: `<component><section>
			  <code code="10162-6" codeSystem="2.16.840.1.113883.6.1"/>
			  <entry><observation classCode="OBS" moodCode="EVN">
			    <code code="82810-3" codeSystem="2.16.840.1.113883.6.1" displayName="Pregnancy status"/>
			    <effectiveTime value="20230401"/>
			    <value xsi:type="CD" code="77386006" codeSystem="2.16.840.1.113883.6.96" displayName="Pregnant"/>
			  </observation></entry>
			</section></component>`,
			fhir: `{"resourceType":"Observation","id":"o3","status":"final",
			  "category":[{"coding":[{"system":"http://terminology.hl7.org/CodeSystem/observation-category","code":"social-history"}]}],
			  "code":{"coding":[{"system":"http://loinc.org","code":"82810-3","display":"Pregnancy status"}]},
			  "effectiveDateTime":"2023-04-01",
			  "valueCodeableConcept":{"coding":[{"system":"http://snomed.info/sct","code":"77386006","display":"Pregnant"}]}}`,
		},
	}

	svc := newTestService()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cda, err := svc.Process(cdaDocument(tt.cda), canonical.FormatCDA, "")
			if err != nil {
				t.Fatalf("cda: %v", err)
			}
			fhir, err := svc.Process(fhirDocument(tt.fhir), canonical.FormatFHIR, "")
			if err != nil {
				t.Fatalf("fhir: %v", err)
			}

			if got := len(cda.Records(tt.kind)); got != 1 {
				t.Fatalf("expected 1 cda %s record, got %d", tt.kind, got)
			}
			for _, kind := range canonical.AllSectionKinds() {
				a, b := cda.Records(kind), fhir.Records(kind)
				if len(a) != len(b) {
					t.Errorf("%s: cda=%d fhir=%d records", kind, len(a), len(b))
					continue
				}
				for i := range a {
					if !canonical.Equivalent(a[i], b[i]) {
						t.Errorf("%s[%d]: expected equivalent records:\ncda:  %+v\nfhir: %+v", kind, i, a[i], b[i])
					}
				}
			}
		})
	}
}

func TestService_SectionParity_CountryHintIgnored(t *testing.T) {
	doc := cdaDocument(`<component><section>
	  <code code="11450-4" codeSystem="2.16.840.1.113883.6.1"/>
	  <entry><observation classCode="OBS" moodCode="EVN">
	    <effectiveTime><low value="20180304"/><high value="20190520"/></effectiveTime>
	    <value xsi:type="CD" code="38341003" codeSystem="2.16.840.1.113883.6.96" displayName="Hypertensive disorder"/>
	    <entryRelationship typeCode="REFR"><observation classCode="OBS" moodCode="EVN">
	      <code code="33999-4" codeSystem="2.16.840.1.113883.6.1"/>
	      <value xsi:type="CD" code="413322009" codeSystem="2.16.840.1.113883.6.96" displayName="Resolved"/>
	    </observation></entryRelationship>
	  </observation></entry>
	</section></component>`)

	svc := newTestService()
	for _, country := range []string{"", "IT", "PT", "XX"} {
		ds, err := svc.Process(doc, canonical.FormatCDA, country)
		if err != nil {
			t.Fatalf("country %q: %v", country, err)
		}
		if got := len(ds.Records(canonical.SectionPastIllness)); got != 1 {
			t.Errorf("country %q: expected 1 past illness, got %d", country, got)
		}
		if got := len(ds.Records(canonical.SectionProblem)); got != 0 {
			t.Errorf("country %q: expected no problems, got %d", country, got)
		}
	}
}
