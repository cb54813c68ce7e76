package middleware

import (
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/hl7bridge/internal/platform/auth"
	"github.com/ehr/hl7bridge/internal/platform/db"
)

// AuditEntry describes one call to a conversion endpoint: who converted
// what, for which tenant, and how it came out.
type AuditEntry struct {
	RequestID        string
	UserID           string
	Roles            []string
	TenantID         string
	Direction        string
	TransactionID    string
	ConversionStatus string
	Method           string
	Path             string
	StatusCode       int
	IPAddress        string
	UserAgent        string
	Latency          time.Duration
	Timestamp        time.Time
}

// AuditRecorder persists audit entries beyond the log line.
type AuditRecorder interface {
	RecordAccess(entry AuditEntry) error
}

type AuditRecorderFunc func(entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(entry AuditEntry) error {
	return f(entry)
}

const convertPrefix = "/api/v1/convert/"

// Audit emits a conversion_audit line for every request under
// /api/v1/convert/, after the handler has run. The conversion handler
// publishes "transaction_id" and "conversion_status" on the echo context.
func Audit(logger zerolog.Logger, recorders ...AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !isAuditablePath(req.URL.Path) {
				return next(c)
			}

			start := time.Now()
			err := next(c)

			ctx := c.Request().Context()
			entry := AuditEntry{
				UserID:     auth.UserIDFromContext(ctx),
				Roles:      auth.RolesFromContext(ctx),
				TenantID:   db.TenantFromContext(ctx),
				Direction:  conversionDirection(req.URL.Path),
				Method:     req.Method,
				Path:       req.URL.Path,
				StatusCode: c.Response().Status,
				IPAddress:  c.RealIP(),
				UserAgent:  req.UserAgent(),
				Latency:    time.Since(start),
				Timestamp:  time.Now().UTC(),
			}
			if he, ok := err.(*echo.HTTPError); ok {
				entry.StatusCode = he.Code
			}
			entry.RequestID, _ = c.Get("request_id").(string)
			entry.TransactionID, _ = c.Get("transaction_id").(string)
			entry.ConversionStatus, _ = c.Get("conversion_status").(string)

			for _, r := range recorders {
				if r == nil {
					continue
				}
				if recErr := r.RecordAccess(entry); recErr != nil {
					logger.Error().Err(recErr).
						Str("request_id", entry.RequestID).
						Msg("failed to record audit entry")
				}
			}

			evt := logger.Info()
			if entry.ConversionStatus == "failed" || entry.StatusCode >= 400 {
				evt = logger.Warn()
			}
			evt.
				Str("type", "conversion_audit").
				Str("request_id", entry.RequestID).
				Str("user_id", entry.UserID).
				Strs("roles", entry.Roles).
				Str("tenant_id", entry.TenantID).
				Str("direction", entry.Direction).
				Str("transaction_id", entry.TransactionID).
				Str("conversion_status", entry.ConversionStatus).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Int("status", entry.StatusCode).
				Str("remote_ip", entry.IPAddress).
				Dur("latency", entry.Latency).
				Msg("conversion_audit")

			return err
		}
	}
}

func isAuditablePath(path string) bool {
	return strings.HasPrefix(path, convertPrefix)
}

// conversionDirection reads the direction from the last path segment:
// "hl7-to-fhir", "fhir-to-hl7" or "batch".
func conversionDirection(path string) string {
	rest := strings.Trim(strings.TrimPrefix(path, convertPrefix), "/")
	if rest == "" {
		return "unknown"
	}
	return rest
}
