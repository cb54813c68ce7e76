// Package conversion runs conversions on behalf of the delivery surfaces:
// HTTP, batch, the MLLP listener and queue workers. Each call is cached,
// recorded as a transaction and announced to webhook subscribers.
package conversion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/hl7bridge/internal/domain/transaction"
	"github.com/ehr/hl7bridge/internal/mapping/convert"
	"github.com/ehr/hl7bridge/internal/mapping/engine"
	"github.com/ehr/hl7bridge/internal/platform/cache"
	"github.com/ehr/hl7bridge/internal/platform/webhook"
)

var ErrBatchTooLarge = errors.New("conversion: batch too large")

// Notifier announces conversion outcomes. *webhook.Manager satisfies it.
type Notifier interface {
	Notify(ctx context.Context, tenantID, eventType string, data interface{})
}

type Request struct {
	TenantID  string
	Direction convert.Direction
	Payload   string
	Strict    bool
	Source    string
	RequestID string
}

type Response struct {
	Result      *convert.Result
	Cached      bool
	Transaction *transaction.Transaction
}

// Output is the converted message, empty on failure.
func (r *Response) Output() string {
	return string(r.Result.Output)
}

// cachedResult keeps Output, which Result does not serialize.
type cachedResult struct {
	Result *convert.Result `json:"result"`
	Output string          `json:"output"`
}

type Config struct {
	BatchConcurrency int
	BatchMaxItems    int
}

type Service struct {
	engine       *engine.Engine
	cache        *cache.Cache
	transactions *transaction.Service
	notifier     Notifier
	cfg          Config
	logger       zerolog.Logger
}

// NewService wires the collaborators. cache and notifier may be nil.
func NewService(eng *engine.Engine, c *cache.Cache, txs *transaction.Service, notifier Notifier, cfg Config, logger zerolog.Logger) *Service {
	return &Service{
		engine:       eng,
		cache:        c,
		transactions: txs,
		notifier:     notifier,
		cfg:          cfg,
		logger:       logger,
	}
}

// Convert runs one conversion. Conversion problems are reported in the
// result; the error return is reserved for an unknown direction.
func (s *Service) Convert(ctx context.Context, req Request) (*Response, error) {
	if req.Direction != convert.HL7ToFHIR && req.Direction != convert.FHIRToHL7 {
		return nil, fmt.Errorf("conversion: unknown direction %q", req.Direction)
	}
	start := time.Now()
	key := cache.Key(req.TenantID, string(req.Direction), req.Strict, []byte(req.Payload))

	resp := &Response{}
	var hit cachedResult
	if err := s.cache.Get(ctx, key, &hit); err == nil && hit.Result != nil {
		hit.Result.Output = []byte(hit.Output)
		resp.Result, resp.Cached = hit.Result, true
	} else {
		if err != nil && !errors.Is(err, cache.ErrMiss) {
			s.logger.Warn().Err(err).Msg("result cache read failed")
		}
		resp.Result = s.engine.Convert(req.TenantID, req.Direction, req.Payload, engine.CallOptions{Strict: req.Strict})
	}

	s.finish(ctx, req, resp, time.Since(start))

	if !resp.Cached && resp.Result.IsFullSuccess() {
		entry := cachedResult{Result: resp.Result, Output: string(resp.Result.Output)}
		if err := s.cache.Set(ctx, key, entry); err != nil {
			s.logger.Warn().Err(err).Msg("result cache write failed")
		}
	}
	return resp, nil
}

// finish records the transaction and notifies subscribers.
func (s *Service) finish(ctx context.Context, req Request, resp *Response, dur time.Duration) {
	if s.transactions != nil {
		// The error is logged by the transaction service.
		resp.Transaction, _ = s.transactions.Record(ctx, req.TenantID, req.Source, req.RequestID, resp.Result, dur)
	}
	if s.notifier != nil {
		s.notifier.Notify(ctx, req.TenantID, EventType(resp.Result), Summarize(req.TenantID, resp.Result, resp.Cached))
	}
}

// Batch converts items with bounded concurrency. Every result is recorded
// and announced like a single conversion.
func (s *Service) Batch(ctx context.Context, tenantID, requestID string, items []engine.BatchItem) ([]*convert.Result, error) {
	if s.cfg.BatchMaxItems > 0 && len(items) > s.cfg.BatchMaxItems {
		return nil, fmt.Errorf("%w: %d items, limit %d", ErrBatchTooLarge, len(items), s.cfg.BatchMaxItems)
	}
	for i := range items {
		items[i].TenantID = tenantID
	}

	start := time.Now()
	results := s.engine.Batch(ctx, items, s.cfg.BatchConcurrency)
	dur := time.Since(start)

	for i, r := range results {
		req := Request{
			TenantID:  tenantID,
			Direction: items[i].Direction,
			Strict:    items[i].Strict,
			Source:    transaction.SourceBatch,
			RequestID: requestID,
		}
		s.finish(ctx, req, &Response{Result: r}, dur)
	}
	return results, nil
}

// EventType maps a result onto its webhook event.
func EventType(r *convert.Result) string {
	switch r.Status() {
	case "full":
		return webhook.EventConversionCompleted
	case "partial":
		return webhook.EventConversionPartial
	}
	return webhook.EventConversionFailed
}

// Summary is the webhook payload of a conversion. It omits the converted
// message.
type Summary struct {
	TenantID      string            `json:"tenant_id"`
	TransactionID string            `json:"transaction_id"`
	Direction     convert.Direction `json:"direction"`
	MessageType   string            `json:"message_type,omitempty"`
	Status        string            `json:"status"`
	SuccessCount  int               `json:"success_count"`
	FailCount     int               `json:"fail_count"`
	Errors        []convert.Issue   `json:"errors,omitempty"`
	Cached        bool              `json:"cached"`
}

func Summarize(tenantID string, r *convert.Result, cached bool) Summary {
	return Summary{
		TenantID:      tenantID,
		TransactionID: r.TransactionID,
		Direction:     r.Direction,
		MessageType:   r.MessageType,
		Status:        r.Status(),
		SuccessCount:  r.SuccessCount,
		FailCount:     r.FailCount,
		Errors:        r.Errors,
		Cached:        cached,
	}
}
