package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"
)

// clinicalMediaTypes are the response types that carry converted patient
// content: FHIR resources and ER7-encoded HL7 v2 messages.
var clinicalMediaTypes = []string{
	"application/fhir+json",
	"application/fhir+xml",
	"x-application/hl7-v2+er7",
	"application/hl7-v2",
}

func isClinical(contentType string) bool {
	mt := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	for _, t := range clinicalMediaTypes {
		if mt == t {
			return true
		}
	}
	return false
}

// SecurityHeaders marks every response as non-sniffable and non-framable.
// Caching is decided once the handler has chosen a content type: FHIR and
// HL7 bodies are never stored by any cache, other responses default to
// no-store unless the handler set its own Cache-Control.
func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			res := c.Response()
			h := res.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			h.Set("Referrer-Policy", "no-referrer")
			res.Before(func() {
				switch {
				case isClinical(h.Get(echo.HeaderContentType)):
					h.Set("Cache-Control", "no-store, private")
					h.Set("Pragma", "no-cache")
				case h.Get("Cache-Control") == "":
					h.Set("Cache-Control", "no-store")
				}
			})
			return next(c)
		}
	}
}
