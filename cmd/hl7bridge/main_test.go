package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/hl7bridge/internal/config"
)

const adtDoe = "MSH|^~\\&|HIS|RIH|EKG|EkG|199904140038||ADT^A01|1001|P|2.5\r" +
	"PID|1||100||DOE^JOHN||19700101|M"

type fakeChecker struct {
	name string
	err  error
}

func (f fakeChecker) Name() string { return f.name }

func (f fakeChecker) Check(context.Context) (interface{}, error) {
	return "ok", f.err
}

func testConfig() *config.Config {
	return &config.Config{
		Env:              "test",
		LogLevel:         "error",
		CacheTTL:         "1m",
		QueuePrefix:      "hl7bridge",
		QueueMaxAttempts: 3,
		DefaultTenant:    "default",
		RateLimitRPS:     100,
		RateLimitBurst:   100,
		BatchConcurrency: 2,
		BatchMaxItems:    10,
		SendingApp:       "HL7BRIDGE",
		SendingFacility:  "HL7BRIDGE",
		WebhookRetries:   0,
		CORSOrigins:      []string{"*"},
		BodyLimit:        "1M",
		RequestTimeout:   "30s",
	}
}

// ===== Readiness =====

func TestReadyHandler(t *testing.T) {
	tests := []struct {
		name     string
		checkers []checker
		want     int
	}{
		{"no backends", nil, http.StatusOK},
		{"all up", []checker{fakeChecker{name: "database"}, fakeChecker{name: "redis"}}, http.StatusOK},
		{"one down", []checker{fakeChecker{name: "database"}, fakeChecker{name: "redis", err: errors.New("refused")}}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/ready", nil), rec)

			if err := readyHandler(tt.checkers)(c); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, rec.Code)
			}
			if tt.want != http.StatusOK && !strings.Contains(rec.Body.String(), "refused") {
				t.Errorf("expected failing check in body, got %s", rec.Body.String())
			}
		})
	}
}

// ===== Logger =====

func TestNewLogger_Level(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.TraceLevel)

	newLogger(&config.Config{Env: "production", LogLevel: "warn"})
	if zerolog.GlobalLevel() != zerolog.WarnLevel {
		t.Errorf("expected warn, got %s", zerolog.GlobalLevel())
	}

	newLogger(&config.Config{Env: "production", LogLevel: "nonsense"})
	if zerolog.GlobalLevel() != zerolog.InfoLevel {
		t.Errorf("expected info fallback, got %s", zerolog.GlobalLevel())
	}
}

// ===== Migrations =====

func TestMigrationsFS(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "001_local.sql"), []byte("SELECT 1;"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "001_local.sql")); err != nil {
		t.Fatal(err)
	}

	if err := fstest.TestFS(migrationsFS(dir), "001_local.sql"); err != nil {
		t.Errorf("expected on-disk directory to be used: %v", err)
	}
	if err := fstest.TestFS(migrationsFS(filepath.Join(dir, "missing")), "001_transactions.sql", "002_webhooks.sql"); err != nil {
		t.Errorf("expected embedded migrations as fallback: %v", err)
	}
}

// ===== Commands =====

func TestConvertCmd_Stdin(t *testing.T) {
	cmd := rootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(adtDoe))
	cmd.SetArgs([]string{"convert", "hl7-to-fhir", "--tenant", "acme"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v (stderr %s)", err, errOut.String())
	}
	if !strings.Contains(out.String(), `"resourceType":"Bundle"`) {
		t.Errorf("expected a Bundle on stdout, got %s", out.String())
	}
}

func TestConvertCmd_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "adt.hl7")
	if err := os.WriteFile(path, []byte(adtDoe), 0o644); err != nil {
		t.Fatal(err)
	}

	cmd := rootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs([]string{"convert", "hl7-to-fhir", "--file", path, "--outcome"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(errOut.String(), "OperationOutcome") {
		t.Errorf("expected OperationOutcome on stderr, got %s", errOut.String())
	}
}

func TestConvertCmd_Failure(t *testing.T) {
	cmd := rootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader("not a message"))
	cmd.SetArgs([]string{"convert", "hl7-to-fhir"})

	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error for unparseable input")
	}
	if out.Len() != 0 {
		t.Errorf("expected no output, got %s", out.String())
	}
}

func TestConvertCmd_RejectsUnknownDirection(t *testing.T) {
	cmd := rootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(adtDoe))
	cmd.SetArgs([]string{"convert", "hl7-to-cda"})

	if err := cmd.Execute(); err == nil {
		t.Error("expected error for unknown direction")
	}
}

// ===== Server =====

func TestNewServer_InMemory(t *testing.T) {
	a, err := newApp(context.Background(), testConfig(), zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer a.Close()

	e, err := newServer(a)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected ready without backends, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/convert/hl7-to-fhir", strings.NewReader(adtDoe))
	req.Header.Set("X-Tenant-ID", "acme")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Conversion-Status") != "full" {
		t.Errorf("expected full status, got %q", rec.Header().Get("X-Conversion-Status"))
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected request id header")
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/transactions", nil)
	req.Header.Set("X-Tenant-ID", "acme")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 listing transactions, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "ADT^A01") {
		t.Errorf("expected recorded transaction, got %s", rec.Body.String())
	}
}

func TestNewServer_RejectsInvalidTenant(t *testing.T) {
	a, err := newApp(context.Background(), testConfig(), zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer a.Close()

	e, _ := newServer(a)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/convert/hl7-to-fhir", strings.NewReader(adtDoe))
	req.Header.Set("X-Tenant-ID", "acme; drop")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}
