package conversion

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/ehr/hl7bridge/internal/domain/transaction"
	"github.com/ehr/hl7bridge/internal/mapping/convert"
	"github.com/ehr/hl7bridge/internal/mapping/engine"
	"github.com/ehr/hl7bridge/internal/platform/db"
	"github.com/ehr/hl7bridge/internal/platform/fhir"
)

// HL7ContentType is the media type of ER7-encoded HL7 v2 messages.
const HL7ContentType = "x-application/hl7-v2+er7; charset=utf-8"

// Response headers describing a conversion.
const (
	TransactionIDHeader = "X-Transaction-ID"
	StatusHeader        = "X-Conversion-Status"
	CacheHeader         = "X-Cache"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/convert")
	g.POST("/hl7-to-fhir", h.HL7ToFHIR)
	g.POST("/fhir-to-hl7", h.FHIRToHL7)
	g.POST("/batch", h.Batch)
}

func (h *Handler) HL7ToFHIR(c echo.Context) error {
	return h.convert(c, convert.HL7ToFHIR, fhir.FHIRContentType)
}

func (h *Handler) FHIRToHL7(c echo.Context) error {
	return h.convert(c, convert.FHIRToHL7, HL7ContentType)
}

// outcomeResponse is returned when ?outcome=true asks for the issues
// alongside the converted message.
type outcomeResponse struct {
	TransactionID string                 `json:"transactionId"`
	Status        string                 `json:"status"`
	MessageType   string                 `json:"messageType,omitempty"`
	Output        string                 `json:"output,omitempty"`
	Outcome       *fhir.OperationOutcome `json:"outcome"`
}

func (h *Handler) convert(c echo.Context, direction convert.Direction, contentType string) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "failed to read request body"})
	}
	strict, _ := strconv.ParseBool(c.QueryParam("strict"))
	withOutcome, _ := strconv.ParseBool(c.QueryParam("outcome"))

	ctx := c.Request().Context()
	resp, err := h.svc.Convert(ctx, Request{
		TenantID:  db.TenantFromContext(ctx),
		Direction: direction,
		Payload:   string(body),
		Strict:    strict,
		Source:    transaction.SourceHTTP,
		RequestID: requestID(c),
	})
	if err != nil {
		return c.JSON(http.StatusBadRequest, fhir.ErrorOutcome(err.Error()))
	}

	r := resp.Result
	c.Set("conversion_status", r.Status())
	c.Set("transaction_id", r.TransactionID)
	hdr := c.Response().Header()
	hdr.Set(TransactionIDHeader, r.TransactionID)
	hdr.Set(StatusHeader, r.Status())
	if resp.Cached {
		hdr.Set(CacheHeader, "HIT")
	}

	if r.IsFailure() {
		return c.JSON(http.StatusUnprocessableEntity, r.OperationOutcome())
	}
	if withOutcome {
		return c.JSON(http.StatusOK, outcomeResponse{
			TransactionID: r.TransactionID,
			Status:        r.Status(),
			MessageType:   r.MessageType,
			Output:        resp.Output(),
			Outcome:       r.OperationOutcome(),
		})
	}
	return c.Blob(http.StatusOK, contentType, r.Output)
}

type batchRequest struct {
	Items []engine.BatchItem `json:"items"`
}

type batchItemResponse struct {
	TransactionID string            `json:"transactionId"`
	Direction     convert.Direction `json:"direction"`
	MessageType   string            `json:"messageType,omitempty"`
	Status        string            `json:"status"`
	Output        string            `json:"output,omitempty"`
	Errors        []convert.Issue   `json:"errors"`
	Warnings      []convert.Issue   `json:"warnings"`
}

type batchResponse struct {
	Total   int                 `json:"total"`
	Full    int                 `json:"full"`
	Partial int                 `json:"partial"`
	Failed  int                 `json:"failed"`
	Results []batchItemResponse `json:"results"`
}

func (h *Handler) Batch(c echo.Context) error {
	var req batchRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid batch request"})
	}
	if len(req.Items) == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "items must not be empty"})
	}

	ctx := c.Request().Context()
	results, err := h.svc.Batch(ctx, db.TenantFromContext(ctx), requestID(c), req.Items)
	if errors.Is(err, ErrBatchTooLarge) {
		return c.JSON(http.StatusRequestEntityTooLarge, map[string]string{"error": err.Error()})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	out := batchResponse{Total: len(results), Results: make([]batchItemResponse, len(results))}
	for i, r := range results {
		switch r.Status() {
		case "full":
			out.Full++
		case "partial":
			out.Partial++
		default:
			out.Failed++
		}
		out.Results[i] = batchItemResponse{
			TransactionID: r.TransactionID,
			Direction:     r.Direction,
			MessageType:   r.MessageType,
			Status:        r.Status(),
			Output:        string(r.Output),
			Errors:        r.Errors,
			Warnings:      r.Warnings,
		}
	}
	return c.JSON(http.StatusOK, out)
}

func requestID(c echo.Context) string {
	rid, _ := c.Get("request_id").(string)
	return rid
}
