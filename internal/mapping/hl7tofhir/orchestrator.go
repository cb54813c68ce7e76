package hl7tofhir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/hl7bridge/internal/mapping/convert"
	"github.com/ehr/hl7bridge/internal/mapping/detect"
	"github.com/ehr/hl7bridge/internal/platform/fhir"
	"github.com/ehr/hl7bridge/internal/platform/hl7v2"
)

// TenantTagSystem is the meta.tag system stamped on every produced resource.
const TenantTagSystem = "urn:hl7bridge:tenant"

// Options configure one HL7 to FHIR conversion.
type Options struct {
	TenantID string
	Strict   bool
	NewID    convert.IDGenerator
	Logger   zerolog.Logger
	Now      func() time.Time
	// Converters overrides DefaultConverters, mainly for tests.
	Converters []Converter
}

// DefaultConverters returns the converters in invocation order. Order
// matters: encounters need the patient id, reports resolve service
// requests, administrations resolve medication orders.
func DefaultConverters() []Converter {
	return []Converter{
		PatientConverter{},
		EncounterConverter{},
		ObservationConverter{},
		ConditionConverter{},
		AllergyConverter{},
		MedicationRequestConverter{},
		MedicationAdministrationConverter{},
		PractitionerConverter{},
		ProcedureConverter{},
		ServiceRequestConverter{},
		DiagnosticReportConverter{},
		ImmunizationConverter{},
		AppointmentConverter{},
		InsuranceConverter{},
		DocumentConverter{},
	}
}

// Convert runs the full pipeline over one raw message. It never returns nil;
// a result without output is a top-level failure.
func Convert(raw []byte, opts Options) *convert.Result {
	if len(bytes.TrimSpace(raw)) == 0 {
		return convert.Fail(convert.HL7ToFHIR, "", convert.CodeInvalidInput, hl7v2.ErrEmptyMessage.Error(), "")
	}

	msg, err := hl7v2.Parse(raw)
	if err != nil {
		opts.Logger.Error().Err(err).Str("tenant_id", opts.TenantID).Msg("hl7 parse failed")
		return convert.Fail(convert.HL7ToFHIR, "", convert.CodeParseFailure, err.Error(), fmt.Sprintf("%T", err))
	}
	event := detect.Inbound(msg)

	logger := opts.Logger.With().
		Str("tenant_id", opts.TenantID).
		Str("transaction_id", msg.ControlID).
		Str("direction", string(convert.HL7ToFHIR)).
		Logger()
	cctx := convert.NewContext(opts.TenantID, msg, opts.NewID, logger)

	result := convert.NewResult(convert.HL7ToFHIR)
	result.MessageType = msg.MessageType()

	// header
	bundleID := msg.ControlID
	if bundleID == "" {
		bundleID = cctx.NewID()
		cctx.Warn(convert.CodeWarning, "MSH", 0, 10, "message control id is missing; generated bundle id "+bundleID)
	}
	cctx.TransactionID = bundleID
	result.TransactionID = bundleID
	timestamp := ""
	if !msg.Timestamp.IsZero() {
		timestamp = msg.Timestamp.Format(time.RFC3339)
	} else if msg.RawTimestamp != "" {
		cctx.Warn(convert.CodeWarning, "MSH", 0, 7, fmt.Sprintf("invalid message timestamp %q", msg.RawTimestamp))
	}
	b := NewBundleBuilder(bundleID, timestamp)
	if opts.TenantID != "" {
		b.Bundle().Meta = map[string]interface{}{"tag": []interface{}{tenantTag(opts.TenantID)}}
	}

	converters := opts.Converters
	if converters == nil {
		converters = DefaultConverters()
	}
	acc := hl7v2.NewTerser(msg)
	for _, c := range converters {
		resources, err := runConverter(c, acc, b, cctx)
		if err != nil {
			cctx.RecordError(err, convert.CodeSegmentError)
		}
		for _, r := range resources {
			b.Add(r)
		}
	}

	reportUnmapped(msg, cctx)

	provenance := ProvenanceConverter{Now: opts.Now}
	if resources, err := runConverter(provenance, acc, b, cctx); err != nil {
		cctx.RecordError(err, convert.CodeResourceConversion)
	} else {
		for _, r := range resources {
			b.Add(r)
		}
	}

	if opts.TenantID != "" {
		for _, r := range b.Entries() {
			stampTenant(r, opts.TenantID)
		}
	}

	withhold := validate(b.Bundle(), opts.Strict, cctx)

	result.AddIssues(cctx.Issues())
	result.Counts = b.Counts()
	for _, n := range result.Counts {
		result.SuccessCount += n
	}
	if withhold {
		logger.Warn().Int("errors", len(result.Errors)).Msg("strict validation withheld the bundle")
		return result
	}

	data, err := json.Marshal(b.Bundle())
	if err != nil {
		logger.Error().Err(err).Msg("bundle serialization failed")
		failed := convert.Fail(convert.HL7ToFHIR, bundleID, convert.CodeSerializationFailure, err.Error(), fmt.Sprintf("%T", err))
		failed.MessageType = result.MessageType
		return failed
	}
	result.Output = data
	logger.Debug().
		Str("message_type", event.Code+"^"+event.Trigger).
		Int("entries", result.SuccessCount).
		Int("errors", len(result.Errors)).
		Msg("hl7 to fhir conversion finished")
	return result
}

// runConverter invokes one converter, turning a panic into an error.
func runConverter(c Converter, acc Accessor, b *BundleBuilder, cctx *convert.Context) (out []fhir.Resource, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = &convert.LocatedError{
				Code: convert.CodeSegmentError,
				Err:  fmt.Errorf("%s converter: %w", c.Name(), &convert.PanicError{Value: r}),
			}
		}
	}()
	return c.Convert(acc, b, cctx)
}

// reportUnmapped notes every Z-segment, which no converter reads.
func reportUnmapped(msg *hl7v2.Message, cctx *convert.Context) {
	seen := map[string]int{}
	for _, seg := range msg.Segments {
		if !strings.HasPrefix(seg.Name, "Z") {
			continue
		}
		idx := seen[seg.Name]
		seen[seg.Name]++
		cctx.Info(convert.CodeUnmappedSegment, seg.Name, idx, "site-specific segment "+seg.Name+" has no mapping")
	}
}

// validate decodes every entry into its typed R4 model. Problems are
// warnings, or errors that withhold the output in strict mode.
func validate(b *fhir.Bundle, strict bool, cctx *convert.Context) bool {
	problems := fhir.ValidateBundle(b)
	for _, p := range problems {
		sev := convert.SeverityWarning
		if strict {
			sev = convert.SeverityError
		}
		cctx.AddIssue(convert.Issue{
			Code:         convert.CodeValidationWarning,
			Message:      p.Detail,
			Severity:     sev,
			ResourceType: p.ResourceType,
			ResourceID:   p.ID,
		})
	}
	return strict && len(problems) > 0
}

func tenantTag(tenant string) map[string]interface{} {
	return map[string]interface{}{"system": TenantTagSystem, "code": tenant}
}

func stampTenant(r fhir.Resource, tenant string) {
	meta, _ := r["meta"].(map[string]interface{})
	if meta == nil {
		meta = map[string]interface{}{}
		r["meta"] = meta
	}
	tags, _ := meta["tag"].([]interface{})
	meta["tag"] = append(tags, tenantTag(tenant))
}
