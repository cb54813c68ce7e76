package hl7tofhir

import (
	"github.com/ehr/hl7bridge/internal/mapping/convert"
	"github.com/ehr/hl7bridge/internal/mapping/datatype"
	"github.com/ehr/hl7bridge/internal/mapping/tables"
	"github.com/ehr/hl7bridge/internal/platform/fhir"
	fm "github.com/ehr/hl7bridge/pkg/fhirmodels"
)

// InsuranceConverter maps IN1 to Coverage, with the insurer as a payor
// Organization, and GT1 guarantors to RelatedPerson.
type InsuranceConverter struct{}

func (InsuranceConverter) Name() string { return "Coverage" }

func (InsuranceConverter) Convert(acc Accessor, b *BundleBuilder, cctx *convert.Context) ([]fhir.Resource, error) {
	var out []fhir.Resource
	Each(acc, cctx, "IN1", func(o Occurrence) error {
		cov, err := coverage(o, b, cctx)
		if err != nil {
			return err
		}
		out = append(out, cov)
		return nil
	})
	Each(acc, cctx, "GT1", func(o Occurrence) error {
		if rp := guarantor(o, cctx); rp != nil {
			out = append(out, rp)
		}
		return nil
	})
	return out, nil
}

func coverage(o Occurrence, b *BundleBuilder, cctx *convert.Context) (fhir.Resource, error) {
	payorName := o.Field(4)
	payorID := datatype.Identifier(o.Segment, 3, 0)
	if payorName == "" && payorID == nil {
		return nil, o.SegmentErr("IN1-3 or IN1-4 insurance company is required")
	}
	start, err := dateField(o, 12)
	if err != nil {
		return nil, err
	}
	end, err := dateField(o, 13)
	if err != nil {
		return nil, err
	}

	org := newResource(cctx, "Organization")
	org["active"] = true
	setIf(org, "name", payorName)
	if payorID != nil {
		org["identifier"] = []interface{}{payorID}
	}
	setIf(org, "address", datatype.Addresses(o.Segment, 5))
	setIf(org, "telecom", datatype.ContactPoints(o.Segment, 7, "work"))
	org["type"] = []interface{}{concept("http://terminology.hl7.org/CodeSystem/organization-type", "ins", "Insurance Company")}
	b.Add(org)

	cov := newResource(cctx, "Coverage")
	cov["status"] = "active"
	payor := map[string]interface{}{"reference": org.Ref()}
	setIf(payor, "display", payorName)
	cov["payor"] = []interface{}{payor}
	if cctx.PatientID != "" {
		cov["beneficiary"] = map[string]interface{}{"reference": "Patient/" + cctx.PatientID}
	}

	policy := o.Field(36)
	if policy != "" {
		cov["identifier"] = []interface{}{map[string]interface{}{
			"type":  concept(fm.SystemIdentifierType, "MB", "Member number"),
			"value": policy,
		}}
	}
	if sub := firstOf(o.Field(49), policy); sub != "" {
		cov["subscriberId"] = sub
	}
	if plan := o.Field(15); plan != "" {
		cov["type"] = v2Concept("0086", plan, o.Comp(15, 2))
	}

	var classes []interface{}
	if group := o.Field(8); group != "" {
		class := map[string]interface{}{
			"type":  concept(fm.SystemCoverageClass, "group", "Group"),
			"value": group,
		}
		setIf(class, "name", o.Field(9))
		classes = append(classes, class)
	}
	if plan := o.Field(2); plan != "" {
		class := map[string]interface{}{
			"type":  concept(fm.SystemCoverageClass, "plan", "Plan"),
			"value": plan,
		}
		setIf(class, "name", o.Comp(2, 2))
		classes = append(classes, class)
	}
	setIf(cov, "class", classes)

	period := map[string]interface{}{}
	setIf(period, "start", start)
	setIf(period, "end", end)
	if len(period) > 0 {
		cov["period"] = period
	}

	rel := o.Field(17)
	if code, ok := tables.SubscriberRelationship.ToFHIR(rel); ok {
		cov["relationship"] = concept(fm.SystemSubscriberRel, code, "")
	} else if rel != "" {
		cov["relationship"] = v2Concept("0063", rel, o.Comp(17, 2))
	}
	if n, ok := atoi(o.Field(22)); ok {
		cov["order"] = n
	}
	return cov, nil
}

func guarantor(o Occurrence, cctx *convert.Context) fhir.Resource {
	name := datatype.HumanNames(o.Segment, 3)
	if len(name) == 0 {
		return nil
	}
	rp := newResource(cctx, "RelatedPerson")
	rp["active"] = true
	rp["name"] = name
	setSubject(rp, "patient", cctx)
	setIf(rp, "identifier", datatype.Identifiers(o.Segment, 2))
	setIf(rp, "address", datatype.Addresses(o.Segment, 5))
	telecom := datatype.ContactPoints(o.Segment, 6, "home")
	telecom = append(telecom, datatype.ContactPoints(o.Segment, 7, "work")...)
	setIf(rp, "telecom", telecom)
	if birth, err := dateField(o, 8); err == nil {
		setIf(rp, "birthDate", birth)
	} else {
		cctx.Warn(convert.CodeWarning, o.Name, o.Index, 8, err.Error()+"; value dropped")
	}
	if g, ok := tables.Gender.ToFHIR(o.Field(9)); ok {
		rp["gender"] = g
	}

	rels := []interface{}{concept("http://terminology.hl7.org/CodeSystem/v3-RoleClass", "GUAR", "guarantor")}
	if code := o.Field(11); code != "" {
		if v3, ok := tables.Relationship.ToFHIR(code); ok {
			rels = append(rels, concept(fm.SystemRoleCode, v3, o.Comp(11, 2)))
		} else {
			rels = append(rels, v2Concept("0063", code, o.Comp(11, 2)))
		}
	}
	rp["relationship"] = rels
	return rp
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
