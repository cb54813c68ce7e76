package transaction

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/hl7bridge/internal/mapping/convert"
)

var ErrNotFound = errors.New("transaction: not found")

// Sources of a conversion.
const (
	SourceHTTP  = "http"
	SourceBatch = "batch"
	SourceMLLP  = "mllp"
	SourceQueue = "queue"
)

// Transaction is the audit record of one conversion.
type Transaction struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	TenantID      string          `db:"tenant_id" json:"tenant_id"`
	TransactionID string          `db:"transaction_id" json:"transaction_id"`
	Direction     string          `db:"direction" json:"direction"`
	MessageType   string          `db:"message_type" json:"message_type,omitempty"`
	Status        string          `db:"status" json:"status"`
	Source        string          `db:"source" json:"source"`
	RequestID     string          `db:"request_id" json:"request_id,omitempty"`
	SuccessCount  int             `db:"success_count" json:"success_count"`
	FailCount     int             `db:"fail_count" json:"fail_count"`
	ErrorCount    int             `db:"error_count" json:"error_count"`
	WarningCount  int             `db:"warning_count" json:"warning_count"`
	Issues        json.RawMessage `db:"issues" json:"issues"`
	DurationMS    int64           `db:"duration_ms" json:"duration_ms"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

// FromResult builds the record for r. Errors precede warnings in Issues.
func FromResult(tenantID, source string, r *convert.Result, dur time.Duration) *Transaction {
	issues := make([]convert.Issue, 0, len(r.Errors)+len(r.Warnings))
	issues = append(issues, r.Errors...)
	issues = append(issues, r.Warnings...)
	raw, err := json.Marshal(issues)
	if err != nil {
		raw = []byte("[]")
	}

	return &Transaction{
		ID:            uuid.New(),
		TenantID:      tenantID,
		TransactionID: r.TransactionID,
		Direction:     string(r.Direction),
		MessageType:   r.MessageType,
		Status:        r.Status(),
		Source:        source,
		SuccessCount:  r.SuccessCount,
		FailCount:     r.FailCount,
		ErrorCount:    len(r.Errors),
		WarningCount:  len(r.Warnings),
		Issues:        raw,
		DurationMS:    dur.Milliseconds(),
		CreatedAt:     time.Now().UTC(),
	}
}

// Filter narrows List. Empty fields match everything.
type Filter struct {
	TenantID    string
	Direction   string
	Status      string
	MessageType string
}

func (f Filter) matches(t *Transaction) bool {
	return (f.TenantID == "" || t.TenantID == f.TenantID) &&
		(f.Direction == "" || t.Direction == f.Direction) &&
		(f.Status == "" || t.Status == f.Status) &&
		(f.MessageType == "" || t.MessageType == f.MessageType)
}
