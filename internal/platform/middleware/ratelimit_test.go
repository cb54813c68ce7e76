package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/ehr/hl7bridge/internal/platform/db"
)

func tenantRequest(e *echo.Echo, tenantID string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/convert/hl7-to-fhir", nil)
	if tenantID != "" {
		req = req.WithContext(db.WithTenant(req.Context(), tenantID))
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestRateLimit_RequestsWithinLimit(t *testing.T) {
	e := echo.New()
	handler := RateLimit(RateLimitConfig{RequestsPerSecond: 10, BurstSize: 5})(okHandler)

	for i := 0; i < 5; i++ {
		c, rec := tenantRequest(e, "acme")
		if err := handler(c); err != nil {
			t.Fatalf("request %d: expected no error, got %v", i+1, err)
		}
		if got := rec.Header().Get("X-RateLimit-Limit"); got != "10" {
			t.Errorf("request %d: expected X-RateLimit-Limit '10', got %q", i+1, got)
		}
	}
}

func TestRateLimit_ExceedsLimit(t *testing.T) {
	e := echo.New()
	handler := RateLimit(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 2})(okHandler)

	for i := 0; i < 2; i++ {
		c, _ := tenantRequest(e, "acme")
		if err := handler(c); err != nil {
			t.Fatalf("request %d: expected no error, got %v", i+1, err)
		}
	}

	c, rec := tenantRequest(e, "acme")
	err := handler(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %v", err)
	}
	ra, convErr := strconv.Atoi(rec.Header().Get("Retry-After"))
	if convErr != nil || ra < 1 {
		t.Errorf("expected positive Retry-After, got %q", rec.Header().Get("Retry-After"))
	}
	if rec.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Error("expected X-RateLimit-Remaining 0")
	}
}

func TestRateLimit_PerTenantIsolation(t *testing.T) {
	e := echo.New()
	handler := RateLimit(RateLimitConfig{RequestsPerSecond: 0.001, BurstSize: 1})(okHandler)

	c, _ := tenantRequest(e, "acme")
	if err := handler(c); err != nil {
		t.Fatalf("acme first request: %v", err)
	}
	c, _ = tenantRequest(e, "acme")
	if err := handler(c); err == nil {
		t.Error("expected acme second request to be limited")
	}
	c, _ = tenantRequest(e, "globex")
	if err := handler(c); err != nil {
		t.Errorf("expected globex to have its own bucket, got %v", err)
	}
}

func TestRateLimit_DisabledWhenRateIsZero(t *testing.T) {
	e := echo.New()
	handler := RateLimit(RateLimitConfig{})(okHandler)
	for i := 0; i < 3; i++ {
		c, _ := tenantRequest(e, "acme")
		if err := handler(c); err != nil {
			t.Fatalf("expected no limit, got %v", err)
		}
	}
}

func TestTenantKey(t *testing.T) {
	e := echo.New()
	c, _ := tenantRequest(e, "acme")
	if got := TenantKey(c); got != "tenant:acme" {
		t.Errorf("expected tenant:acme, got %s", got)
	}

	c, _ = tenantRequest(e, "")
	c.Set("jwt_tenant_id", "globex")
	if got := TenantKey(c); got != "tenant:globex" {
		t.Errorf("expected tenant:globex, got %s", got)
	}

	c, _ = tenantRequest(e, "")
	if got := TenantKey(c); got != "ip:192.0.2.1" {
		t.Errorf("expected ip:192.0.2.1, got %s", got)
	}
}

func TestTokenBucket_RetryAfterWithZeroRate(t *testing.T) {
	b := newTokenBucket(0, 1)
	b.allow()
	if ra := b.retryAfter(); ra != 1 {
		t.Errorf("expected retryAfter 1 for zero rate, got %d", ra)
	}
}

func TestRateLimiterStore_ReusesBuckets(t *testing.T) {
	store := newRateLimiterStore(RateLimitConfig{RequestsPerSecond: 10, BurstSize: 5})
	b1 := store.getBucket("key1")
	if b1 != store.getBucket("key1") {
		t.Error("expected same bucket instance for same key")
	}
	if b1 == store.getBucket("key2") {
		t.Error("expected different bucket for different key")
	}
}
