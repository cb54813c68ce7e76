package fhirtohl7

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/hl7bridge/internal/mapping/convert"
	"github.com/ehr/hl7bridge/internal/mapping/detect"
	"github.com/ehr/hl7bridge/internal/platform/fhir"
	"github.com/ehr/hl7bridge/internal/platform/hl7v2"
)

// Precondition failures.
var (
	ErrEmptyInput            = errors.New("fhirtohl7: empty input")
	ErrUnsupportedBundleType = errors.New("fhirtohl7: bundle type is not message or transaction")
)

// Defaults for MSH-3 and MSH-4 when the bundle names no source.
const (
	DefaultSendingApplication = "HL7BRIDGE"
	DefaultSendingFacility    = "HL7BRIDGE"
)

// Options configure one FHIR to HL7 conversion.
type Options struct {
	TenantID string
	// Strict turns structural problems in the input bundle into errors that
	// withhold the message.
	Strict          bool
	NewID           convert.IDGenerator
	Logger          zerolog.Logger
	Now             func() time.Time
	SendingApp      string
	SendingFacility string
	// Registry overrides DefaultRegistry, mainly for tests.
	Registry *Registry
}

// kindOrder is the fixed processing order of resource kinds. Orders come
// before the reports and observations that attach to them; kinds not listed
// follow in bundle order.
var kindOrder = []string{
	"Patient",
	"RelatedPerson",
	"Encounter",
	"Condition",
	"AllergyIntolerance",
	"Procedure",
	"Coverage",
	"ServiceRequest",
	"DiagnosticReport",
	"Observation",
	"MedicationRequest",
	"MedicationAdministration",
	"Immunization",
	"Appointment",
	"DocumentReference",
}

var kindRank = func() map[string]int {
	m := make(map[string]int, len(kindOrder))
	for i, k := range kindOrder {
		m[k] = i
	}
	return m
}()

// Convert writes one bundle as an HL7 message. It never returns nil; a
// result without output is a top-level failure.
func Convert(data []byte, opts Options) *convert.Result {
	if err := CheckBundle(data); err != nil {
		return convert.Fail(convert.FHIRToHL7, "", convert.CodeInvalidInput, err.Error(), "")
	}
	b, err := fhir.ParseBundle(data)
	if err != nil {
		opts.Logger.Error().Err(err).Str("tenant_id", opts.TenantID).Msg("fhir bundle parse failed")
		return convert.Fail(convert.FHIRToHL7, "", convert.CodeParseFailure, err.Error(), fmt.Sprintf("%T", err))
	}

	mt := detect.Outbound(b)
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	cctx := convert.NewContext(opts.TenantID, nil, opts.NewID, opts.Logger)
	cctx.MessageCode, cctx.TriggerEvent, cctx.Structure = mt.Code, mt.Trigger, mt.Structure

	out := NewMessageBuilder(mt.Structure)
	controlID, err := populateHeader(out, b, mt, opts, cctx, now)
	if err != nil {
		opts.Logger.Error().Err(err).Str("tenant_id", opts.TenantID).Msg("message header failed")
		return convert.Fail(convert.FHIRToHL7, "", convert.CodeHeaderFailure, err.Error(), fmt.Sprintf("%T", err))
	}
	cctx.TransactionID = controlID

	logger := opts.Logger.With().
		Str("tenant_id", opts.TenantID).
		Str("transaction_id", controlID).
		Str("direction", string(convert.FHIRToHL7)).
		Logger()
	cctx.Logger = logger

	result := convert.NewResult(convert.FHIRToHL7)
	result.TransactionID = controlID
	result.MessageType = mt.String()

	withhold := validate(b, opts.Strict, cctx)

	registry := opts.Registry
	if registry == nil {
		registry = DefaultRegistry()
	}
	acc := newAccessor(b, mt, cctx)
	for _, res := range ordered(b.Resources()) {
		writers := registry.For(res.Type())
		if len(writers) == 0 {
			if !supportingKinds[res.Type()] && !consumedKinds[res.Type()] {
				cctx.AddIssue(convert.Issue{
					Code:         convert.CodeNoConverter,
					Message:      "no converter for resource type " + res.Type(),
					Severity:     convert.SeverityWarning,
					ResourceType: res.Type(),
					ResourceID:   res.ID(),
				})
			}
			continue
		}
		written, failed := false, false
		for _, w := range writers {
			ok, err := runWriter(w, res, out, acc)
			if err != nil {
				failed = true
				logger.Warn().Err(err).Str("writer", w.Name()).Str("resource", res.Ref()).Msg("resource conversion failed")
				cctx.AddIssue(convert.Issue{
					Code:          convert.CodeResourceConversion,
					Message:       fmt.Sprintf("%s writer: %v", w.Name(), err),
					Severity:      convert.SeverityError,
					ExceptionType: convert.ExceptionType(err),
					ResourceType:  res.Type(),
					ResourceID:    res.ID(),
				})
				continue
			}
			written = written || ok
		}
		if written {
			result.SuccessCount++
		} else if !failed {
			cctx.AddIssue(convert.Issue{
				Code:         convert.CodeNoConverter,
				Message:      fmt.Sprintf("no %s writer accepts %s", res.Type(), res.Ref()),
				Severity:     convert.SeverityWarning,
				ResourceType: res.Type(),
				ResourceID:   res.ID(),
			})
		}
	}
	if n := len(b.ResourcesOfType("Provenance")); n > 0 {
		logger.Debug().Int("provenance", n).Msg("provenance entries consumed")
	}

	msg := out.Message()
	for _, seg := range msg.Segments {
		result.Counts[seg.Name]++
	}
	result.AddIssues(cctx.Issues())
	if withhold {
		logger.Warn().Int("errors", len(result.Errors)).Msg("strict validation withheld the message")
		return result
	}

	result.Output = hl7v2.Encode(msg)
	logger.Debug().
		Str("message_type", mt.String()).
		Str("structure", mt.Structure).
		Str("detected_by", mt.Source).
		Int("segments", len(msg.Segments)).
		Int("errors", len(result.Errors)).
		Msg("fhir to hl7 conversion finished")
	return result
}

// CheckBundle accepts only a non-empty message or transaction Bundle.
// Malformed JSON passes; it is reported as a parse failure.
func CheckBundle(data []byte) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return ErrEmptyInput
	}
	var head struct {
		ResourceType string `json:"resourceType"`
		Type         string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil
	}
	if head.ResourceType != "Bundle" {
		return fmt.Errorf("%w (got %q)", fhir.ErrNotBundle, head.ResourceType)
	}
	if head.Type != fhir.BundleTypeMessage && head.Type != fhir.BundleTypeTransaction {
		return fmt.Errorf("%w (got %q)", ErrUnsupportedBundleType, head.Type)
	}
	return nil
}

// populateHeader fills MSH (and EVN where the structure has one) and
// returns the message control id.
func populateHeader(out *MessageBuilder, b *fhir.Bundle, mt detect.MessageType, opts Options, cctx *convert.Context, now func() time.Time) (controlID string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &convert.PanicError{Value: r}
		}
	}()

	var header fhir.Resource
	if hs := b.ResourcesOfType("MessageHeader"); len(hs) > 0 {
		header = hs[0]
	}
	msh := out.MSH()

	source := fhir.GetMap(header, "source")
	app := firstNonEmpty(fhir.GetString(source, "name"), fhir.GetString(source, "software"), opts.SendingApp, DefaultSendingApplication)
	facility := firstNonEmpty(organizationName(b, fhir.GetMap(header, "sender")), opts.SendingFacility, DefaultSendingFacility)
	msh.Set(3, 0, 1, 1, app)
	msh.Set(4, 0, 1, 1, facility)
	if dest := fhir.First(header, "destination"); dest != nil {
		msh.Set(5, 0, 1, 1, fhir.GetString(dest, "name"))
		msh.Set(6, 0, 1, 1, organizationName(b, fhir.GetMap(dest, "receiver")))
	}

	stamp := now().UTC().Format("20060102150405") + "+0000"
	if b.Timestamp != "" {
		if ts, err := hl7v2.FormatFHIR(b.Timestamp); err == nil {
			stamp = ts
		} else {
			cctx.AddIssue(convert.Issue{
				Segment:  "MSH",
				Field:    7,
				Code:     convert.CodeWarning,
				Message:  fmt.Sprintf("invalid bundle timestamp %q; current time used", b.Timestamp),
				Severity: convert.SeverityWarning,
			})
		}
	}
	msh.Set(7, 0, 1, 1, stamp)
	msh.SetComponents(9, 0, mt.Code, mt.Trigger, mt.Structure)

	controlID = firstNonEmpty(header.ID(), b.ID)
	if controlID == "" {
		controlID = cctx.NewID()
	}
	msh.Set(10, 0, 1, 1, controlID)
	msh.Set(11, 0, 1, 1, "P")
	msh.Set(12, 0, 1, 1, "2.5.1")

	if _, ok := out.rank["EVN"]; ok {
		evn := hl7v2.NewSegment("EVN")
		evn.Set(1, 0, 1, 1, mt.Trigger)
		evn.Set(2, 0, 1, 1, stamp)
		out.Add(evn)
	}
	return controlID, nil
}

// organizationName reads the name of a referenced Organization, falling
// back to the reference display.
func organizationName(b *fhir.Bundle, ref map[string]interface{}) string {
	if ref == nil {
		return ""
	}
	if org := b.Resolve(fhir.GetString(ref, "reference")); org != nil {
		if name := fhir.GetString(org, "name"); name != "" {
			return name
		}
	}
	return fhir.GetString(ref, "display")
}

// ordered sorts resources by kindOrder, keeping bundle order within a kind.
func ordered(resources []fhir.Resource) []fhir.Resource {
	out := make([]fhir.Resource, len(resources))
	copy(out, resources)
	rank := func(r fhir.Resource) int {
		if i, ok := kindRank[r.Type()]; ok {
			return i
		}
		return len(kindOrder)
	}
	sort.SliceStable(out, func(i, j int) bool { return rank(out[i]) < rank(out[j]) })
	return out
}

// runWriter invokes one writer, turning a panic into an error. It reports
// whether the writer accepted the resource.
func runWriter(w SegmentWriter, res fhir.Resource, out *MessageBuilder, acc Accessor) (accepted bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			accepted = false
			err = &convert.PanicError{Value: r}
		}
	}()
	if !w.CanConvert(res) {
		return false, nil
	}
	if err := w.Convert(res, out, acc); err != nil {
		return false, err
	}
	return true, nil
}

// validate checks the input bundle structurally. Problems are warnings, or
// errors that withhold the message in strict mode.
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

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
