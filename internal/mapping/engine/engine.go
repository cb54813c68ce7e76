// Package engine is the entry point the delivery shell calls: HL7 v2 to
// FHIR and back, one message per call, plus bounded concurrent batches.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ehr/hl7bridge/internal/mapping/convert"
	"github.com/ehr/hl7bridge/internal/mapping/fhirtohl7"
	"github.com/ehr/hl7bridge/internal/mapping/hl7tofhir"
	"github.com/ehr/hl7bridge/internal/platform/fhir"
)

// Causes behind a ConversionError, checked with errors.Is.
var (
	ErrEmptyInput            = errors.New("engine: empty input")
	ErrNotBundle             = fhir.ErrNotBundle
	ErrUnsupportedBundleType = fhirtohl7.ErrUnsupportedBundleType
	ErrConversionFailed      = errors.New("engine: conversion failed")
)

// DefaultBatchConcurrency bounds Batch when the caller passes no limit.
const DefaultBatchConcurrency = 4

// Options configure an Engine.
type Options struct {
	Logger zerolog.Logger
	// NewID allocates resource and control ids. It is called from concurrent
	// batch workers and must be safe for that; the default is a UUID.
	NewID           convert.IDGenerator
	Now             func() time.Time
	SendingApp      string
	SendingFacility string
	// Strict is the default for calls that do not ask for strict mode.
	Strict bool
}

// CallOptions tune one call.
type CallOptions struct {
	Strict bool
}

// Engine converts messages. It holds no per-call state and is safe for
// concurrent use.
type Engine struct {
	opts     Options
	registry *fhirtohl7.Registry
}

// New builds an engine. The outbound writer table is built once here.
func New(opts Options) *Engine {
	if opts.NewID == nil {
		opts.NewID = convert.NewUUID
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{opts: opts, registry: fhirtohl7.DefaultRegistry()}
}

// ConversionError is returned by the string API when a conversion produced
// no output. Result carries every issue raised.
type ConversionError struct {
	Result *convert.Result
	Cause  error
}

func (e *ConversionError) Unwrap() error { return e.Cause }

func (e *ConversionError) Error() string {
	if len(e.Result.Errors) == 0 {
		return fmt.Sprintf("%s conversion failed", e.Result.Direction)
	}
	first := e.Result.Errors[0]
	return fmt.Sprintf("%s conversion failed: %s: %s", e.Result.Direction, first.Code, first.Message)
}

// ConvertHL7ToFHIR returns the bundle JSON, or an error when the message
// could not be converted at all.
func (e *Engine) ConvertHL7ToFHIR(tenant, raw string) (string, error) {
	r := e.ConvertHL7ToFHIRResult(tenant, raw, CallOptions{})
	if r.IsFailure() {
		cause := ErrConversionFailed
		if strings.TrimSpace(raw) == "" {
			cause = ErrEmptyInput
		}
		return "", &ConversionError{Result: r, Cause: cause}
	}
	return string(r.Output), nil
}

// ConvertFHIRToHL7 returns the encoded HL7 message, or an error when the
// bundle could not be converted at all.
func (e *Engine) ConvertFHIRToHL7(tenant, json string) (string, error) {
	r := e.ConvertFHIRToHL7Result(tenant, json, CallOptions{})
	if r.IsFailure() {
		cause := ErrConversionFailed
		switch err := fhirtohl7.CheckBundle([]byte(json)); {
		case errors.Is(err, fhirtohl7.ErrEmptyInput):
			cause = ErrEmptyInput
		case err != nil:
			cause = err
		}
		return "", &ConversionError{Result: r, Cause: cause}
	}
	return string(r.Output), nil
}

// ConvertHL7ToFHIRResult never fails; problems are carried in the result.
func (e *Engine) ConvertHL7ToFHIRResult(tenant, raw string, co CallOptions) *convert.Result {
	start := time.Now()
	r := hl7tofhir.Convert([]byte(raw), hl7tofhir.Options{
		TenantID: tenant,
		Strict:   co.Strict || e.opts.Strict,
		NewID:    e.opts.NewID,
		Logger:   e.opts.Logger,
		Now:      e.opts.Now,
	})
	e.logResult(tenant, r, start)
	return r
}

// ConvertFHIRToHL7Result never fails; problems are carried in the result.
func (e *Engine) ConvertFHIRToHL7Result(tenant, json string, co CallOptions) *convert.Result {
	start := time.Now()
	r := fhirtohl7.Convert([]byte(json), fhirtohl7.Options{
		TenantID:        tenant,
		Strict:          co.Strict || e.opts.Strict,
		NewID:           e.opts.NewID,
		Logger:          e.opts.Logger,
		Now:             e.opts.Now,
		SendingApp:      e.opts.SendingApp,
		SendingFacility: e.opts.SendingFacility,
		Registry:        e.registry,
	})
	e.logResult(tenant, r, start)
	return r
}

// Convert dispatches on direction.
func (e *Engine) Convert(tenant string, direction convert.Direction, payload string, co CallOptions) *convert.Result {
	switch direction {
	case convert.HL7ToFHIR:
		return e.ConvertHL7ToFHIRResult(tenant, payload, co)
	case convert.FHIRToHL7:
		return e.ConvertFHIRToHL7Result(tenant, payload, co)
	}
	return convert.Fail(direction, "", convert.CodeInvalidInput, fmt.Sprintf("unknown direction %q", direction), "")
}

func (e *Engine) logResult(tenant string, r *convert.Result, start time.Time) {
	ev := e.opts.Logger.Info()
	if r.IsFailure() {
		ev = e.opts.Logger.Warn()
	}
	ev.Str("tenant_id", tenant).
		Str("transaction_id", r.TransactionID).
		Str("direction", string(r.Direction)).
		Str("message_type", r.MessageType).
		Str("status", r.Status()).
		Int("errors", len(r.Errors)).
		Int("warnings", len(r.Warnings)).
		Dur("duration", time.Since(start)).
		Msg("conversion")
}

// BatchItem is one conversion of a batch.
type BatchItem struct {
	TenantID  string            `json:"tenant_id"`
	Direction convert.Direction `json:"direction"`
	Payload   string            `json:"payload"`
	Strict    bool              `json:"strict"`
}

// Batch converts items with at most concurrency conversions in flight.
// Results are placed at their item's index. Items not started when ctx is
// done are marked failed with CANCELLED.
func (e *Engine) Batch(ctx context.Context, items []BatchItem, concurrency int) []*convert.Result {
	if concurrency <= 0 {
		concurrency = DefaultBatchConcurrency
	}
	results := make([]*convert.Result, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, item := range items {
		if gctx.Err() != nil {
			results[i] = cancelled(item, gctx.Err())
			continue
		}
		i, item := i, item
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i] = cancelled(item, err)
				return nil
			}
			results[i] = e.Convert(item.TenantID, item.Direction, item.Payload, CallOptions{Strict: item.Strict})
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func cancelled(item BatchItem, err error) *convert.Result {
	return convert.Fail(item.Direction, "", convert.CodeCancelled, "batch cancelled: "+err.Error(), fmt.Sprintf("%T", err))
}
