package transaction

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/hl7bridge/internal/mapping/convert"
	"github.com/ehr/hl7bridge/internal/platform/db"
)

func partialResult() *convert.Result {
	r := convert.NewResult(convert.HL7ToFHIR)
	r.TransactionID = "MSG-1"
	r.MessageType = "ADT_A01"
	r.Output = []byte("{}")
	r.SuccessCount = 3
	r.AddIssues([]convert.Issue{
		{Code: convert.CodeWarning, Severity: convert.SeverityWarning, Message: "w"},
		{Code: convert.CodeSegmentError, Severity: convert.SeverityError, Segment: "AL1", SegmentIndex: 1, Message: "e"},
	})
	return r
}

// ===== Model =====

func TestFromResult(t *testing.T) {
	tx := FromResult("acme", SourceHTTP, partialResult(), 1500*time.Millisecond)
	if tx.Status != "partial" {
		t.Errorf("expected partial, got %s", tx.Status)
	}
	if tx.ErrorCount != 1 || tx.WarningCount != 1 || tx.FailCount != 1 || tx.SuccessCount != 3 {
		t.Errorf("unexpected counts %+v", tx)
	}
	if tx.DurationMS != 1500 {
		t.Errorf("expected 1500ms, got %d", tx.DurationMS)
	}
	var issues []convert.Issue
	if err := json.Unmarshal(tx.Issues, &issues); err != nil {
		t.Fatalf("issues not JSON: %v", err)
	}
	if len(issues) != 2 || issues[0].Severity != convert.SeverityError {
		t.Errorf("expected the error first, got %+v", issues)
	}
}

// ===== MemoryRepo =====

func TestMemoryRepo_TenantIsolation(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()
	a := FromResult("acme", SourceHTTP, partialResult(), 0)
	b := FromResult("other", SourceHTTP, partialResult(), 0)
	repo.Create(ctx, a)
	repo.Create(ctx, b)

	if _, err := repo.GetByID(ctx, "acme", a.ID); err != nil {
		t.Errorf("expected to find own transaction, got %v", err)
	}
	if _, err := repo.GetByID(ctx, "acme", b.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound across tenants, got %v", err)
	}
	items, total, _ := repo.List(ctx, Filter{TenantID: "acme"}, 10, 0)
	if total != 1 || len(items) != 1 || items[0].ID != a.ID {
		t.Errorf("expected only acme's row, got %d", total)
	}
}

func TestMemoryRepo_ListFiltersAndPages(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		r := partialResult()
		if i%2 == 0 {
			r.Direction = convert.FHIRToHL7
		}
		repo.Create(ctx, FromResult("acme", SourceHTTP, r, 0))
	}

	items, total, _ := repo.List(ctx, Filter{TenantID: "acme", Direction: string(convert.FHIRToHL7)}, 2, 0)
	if total != 3 || len(items) != 2 {
		t.Errorf("expected 3 total and a page of 2, got %d/%d", total, len(items))
	}
	items, _, _ = repo.List(ctx, Filter{TenantID: "acme"}, 10, 10)
	if len(items) != 0 {
		t.Errorf("expected an empty page past the end, got %d", len(items))
	}
}

// ===== Handler =====

func newTestHandler(t *testing.T) (*Handler, *Service) {
	t.Helper()
	svc := NewService(NewMemoryRepo(), zerolog.Nop())
	return NewHandler(svc), svc
}

func tenantRequest(method, target string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	return req.WithContext(db.WithTenant(req.Context(), "acme"))
}

func TestHandler_Get(t *testing.T) {
	h, svc := newTestHandler(t)
	tx, err := svc.Record(context.Background(), "acme", SourceHTTP, "req-1", partialResult(), time.Millisecond)
	if err != nil {
		t.Fatalf("record failed: %v", err)
	}

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(tenantRequest(http.MethodGet, "/"), rec)
	c.SetParamNames("id")
	c.SetParamValues(tx.ID.String())
	if err := h.GetTransaction(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"request_id":"req-1"`) {
		t.Errorf("expected request id in body, got %s", rec.Body.String())
	}
}

func TestHandler_GetErrors(t *testing.T) {
	h, _ := newTestHandler(t)
	e := echo.New()
	for _, tc := range []struct {
		id   string
		code int
	}{
		{"not-a-uuid", http.StatusBadRequest},
		{uuid.NewString(), http.StatusNotFound},
	} {
		c := e.NewContext(tenantRequest(http.MethodGet, "/"), httptest.NewRecorder())
		c.SetParamNames("id")
		c.SetParamValues(tc.id)
		err := h.GetTransaction(c)
		he, ok := err.(*echo.HTTPError)
		if !ok || he.Code != tc.code {
			t.Errorf("id %q: expected %d, got %v", tc.id, tc.code, err)
		}
	}
}

func TestHandler_List(t *testing.T) {
	h, svc := newTestHandler(t)
	ctx := context.Background()
	svc.Record(ctx, "acme", SourceHTTP, "", partialResult(), 0)
	svc.Record(ctx, "acme", SourceMLLP, "", partialResult(), 0)
	svc.Record(ctx, "other", SourceHTTP, "", partialResult(), 0)

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(tenantRequest(http.MethodGet, "/api/v1/transactions?status=partial&limit=1"), rec)
	if err := h.ListTransactions(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body struct {
		Data    []Transaction `json:"data"`
		Total   int           `json:"total"`
		HasMore bool          `json:"has_more"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if body.Total != 2 || len(body.Data) != 1 || !body.HasMore {
		t.Errorf("expected 2 total, 1 row, more pages; got %d %d %v", body.Total, len(body.Data), body.HasMore)
	}
}
