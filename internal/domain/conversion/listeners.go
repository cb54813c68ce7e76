package conversion

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ehr/hl7bridge/internal/domain/transaction"
	"github.com/ehr/hl7bridge/internal/mapping/convert"
	"github.com/ehr/hl7bridge/internal/platform/db"
	"github.com/ehr/hl7bridge/internal/platform/hl7v2"
	"github.com/ehr/hl7bridge/internal/platform/queue"
)

// MLLPHandler converts each framed message to FHIR under tenantID and
// answers with an ACK: AA on full success, AE with one ERR segment per
// error on partial success, AR when nothing was produced.
func (s *Service) MLLPHandler(tenantID string) hl7v2.MessageHandler {
	return func(ctx context.Context, raw []byte) []byte {
		ctx = db.WithTenant(ctx, tenantID)
		incoming, err := hl7v2.Parse(raw)
		if err != nil {
			s.logger.Warn().Err(err).Str("tenant_id", tenantID).Msg("mllp message not parseable")
		}

		resp, _ := s.Convert(ctx, Request{
			TenantID:  tenantID,
			Direction: convert.HL7ToFHIR,
			Payload:   string(raw),
			Source:    transaction.SourceMLLP,
		})
		return hl7v2.Encode(Acknowledge(incoming, resp.Result))
	}
}

// Acknowledge builds the ACK for a conversion result. incoming may be nil.
func Acknowledge(incoming *hl7v2.Message, r *convert.Result) *hl7v2.Message {
	switch {
	case r.IsFullSuccess():
		return hl7v2.BuildACK(incoming, hl7v2.AckAccept, "", nil)
	case r.IsPartialSuccess():
		return hl7v2.BuildACK(incoming, hl7v2.AckError, "converted with errors", issueLines(r.Errors))
	}
	text := "conversion failed"
	if len(r.Errors) > 0 {
		text = r.Errors[0].Message
	}
	return hl7v2.BuildACK(incoming, hl7v2.AckReject, text, issueLines(r.Errors))
}

func issueLines(issues []convert.Issue) []string {
	lines := make([]string, 0, len(issues))
	for _, i := range issues {
		if loc := i.Location(); loc != "" {
			lines = append(lines, fmt.Sprintf("%s %s: %s", loc, i.Code, i.Message))
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s", i.Code, i.Message))
	}
	return lines
}

// QueueHandler converts queued jobs. Bad jobs produce a failed result
// rather than an error so they are not retried.
func (s *Service) QueueHandler() queue.Handler {
	return func(ctx context.Context, job queue.Job) (*queue.JobResult, error) {
		direction := convert.Direction(job.Direction)
		var r *convert.Result

		switch {
		case !db.ValidTenantID(job.TenantID):
			r = convert.Fail(direction, "", convert.CodeInvalidInput, fmt.Sprintf("invalid tenant %q", job.TenantID), "")
		default:
			resp, err := s.Convert(db.WithTenant(ctx, job.TenantID), Request{
				TenantID:  job.TenantID,
				Direction: direction,
				Payload:   job.Payload,
				Strict:    job.Strict,
				Source:    transaction.SourceQueue,
				RequestID: job.ID,
			})
			if err != nil {
				r = convert.Fail(direction, "", convert.CodeInvalidInput, err.Error(), "")
			} else {
				r = resp.Result
			}
		}

		raw, err := json.Marshal(r)
		if err != nil {
			return nil, fmt.Errorf("encode result: %w", err)
		}
		return &queue.JobResult{
			JobID:         job.ID,
			TenantID:      job.TenantID,
			Direction:     job.Direction,
			TransactionID: r.TransactionID,
			Status:        r.Status(),
			Output:        string(r.Output),
			Result:        raw,
			CompletedAt:   time.Now().UTC(),
		}, nil
	}
}
