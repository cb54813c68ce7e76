// Package webhook notifies subscribers of conversion outcomes. Payloads are
// signed with HMAC-SHA256 and POSTed with retry and backoff.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
)

// Event types raised by the conversion service.
const (
	EventConversionCompleted = "conversion.completed"
	EventConversionPartial   = "conversion.partial"
	EventConversionFailed    = "conversion.failed"
	EventTest                = "webhook.test"
)

// Endpoint is a registered webhook destination.
type Endpoint struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	URL       string    `json:"url"`
	Secret    string    `json:"secret,omitempty"`
	Events    []string  `json:"events"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// DeliveryAttempt records one delivery of an event to an endpoint,
// including every retry made for it.
type DeliveryAttempt struct {
	ID         string        `json:"id"`
	EndpointID string        `json:"endpoint_id"`
	EventType  string        `json:"event_type"`
	EventID    string        `json:"event_id"`
	StatusCode int           `json:"status_code"`
	Attempts   int           `json:"attempts"`
	Status     string        `json:"status"` // "success" or "failed"
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration_ns"`
	CreatedAt  time.Time     `json:"created_at"`
}

// Event is the signed body POSTed to endpoints.
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	TenantID  string          `json:"tenant_id"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// SignPayload computes an HMAC-SHA256 signature of the payload using the given secret,
// returning the hex-encoded result.
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature returns true when the hex-encoded signature matches the HMAC-SHA256
// of payload under the given secret.
func VerifySignature(payload []byte, secret, signature string) bool {
	expected := SignPayload(payload, secret)
	return hmac.Equal([]byte(expected), []byte(strings.TrimPrefix(signature, "sha256=")))
}

type Option func(*Manager)

// WithHTTPClient overrides the client underneath the retrying transport.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Manager) { m.httpClient = c }
}

// WithMaxRetries sets how many times a failed delivery is retried.
func WithMaxRetries(n int) Option {
	return func(m *Manager) { m.maxRetries = n }
}

// WithRetryWait bounds the exponential backoff between retries.
func WithRetryWait(min, max time.Duration) Option {
	return func(m *Manager) { m.waitMin, m.waitMax = min, max }
}

func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

type Manager struct {
	store      Store
	httpClient *http.Client
	maxRetries int
	waitMin    time.Duration
	waitMax    time.Duration
	logger     zerolog.Logger
	wg         sync.WaitGroup
}

func NewManager(store Store, opts ...Option) *Manager {
	m := &Manager{
		store:      store,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		maxRetries: 3,
		waitMin:    1 * time.Second,
		waitMax:    30 * time.Second,
		logger:     zerolog.Nop(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func generateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func validateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("url is required")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got %q", u.Scheme)
	}
	return nil
}

// RegisterEndpoint validates and stores an endpoint. An empty secret is
// replaced by a random one; no events means every event.
func (m *Manager) RegisterEndpoint(ctx context.Context, tenantID, rawURL, secret string, events []string) (*Endpoint, error) {
	if err := validateURL(rawURL); err != nil {
		return nil, err
	}
	if secret == "" {
		s, err := generateSecret()
		if err != nil {
			return nil, fmt.Errorf("failed to generate secret: %w", err)
		}
		secret = s
	}
	if len(events) == 0 {
		events = []string{"*"}
	}

	ep := &Endpoint{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		URL:       rawURL,
		Secret:    secret,
		Events:    events,
		Status:    "active",
		CreatedAt: time.Now().UTC(),
	}
	if err := m.store.CreateEndpoint(ctx, ep); err != nil {
		return nil, err
	}
	return ep, nil
}

// eventMatches supports exact types, "*" and "prefix.*".
func eventMatches(pattern, eventType string) bool {
	if pattern == "*" || pattern == eventType {
		return true
	}
	if strings.HasSuffix(pattern, ".*") {
		return strings.HasPrefix(eventType, pattern[:len(pattern)-1])
	}
	return false
}

func (ep *Endpoint) subscribes(eventType string) bool {
	for _, pat := range ep.Events {
		if eventMatches(pat, eventType) {
			return true
		}
	}
	return false
}

// Notify delivers an event in the background. The caller's cancellation
// does not abort delivery; Wait blocks until every pending delivery ends.
func (m *Manager) Notify(ctx context.Context, tenantID, eventType string, data interface{}) {
	raw, err := json.Marshal(data)
	if err != nil {
		m.logger.Error().Err(err).Str("event_type", eventType).Msg("webhook payload not encodable")
		return
	}
	ev := Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TenantID:  tenantID,
		Data:      raw,
		Timestamp: time.Now().UTC(),
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.Deliver(context.WithoutCancel(ctx), ev)
	}()
}

// Wait blocks until background deliveries have finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Deliver sends ev to every active endpoint of its tenant that subscribes
// to its type.
func (m *Manager) Deliver(ctx context.Context, ev Event) []*DeliveryAttempt {
	endpoints, _, err := m.store.ListEndpoints(ctx, ev.TenantID, 1000, 0)
	if err != nil {
		m.logger.Error().Err(err).Str("tenant_id", ev.TenantID).Msg("list webhook endpoints failed")
		return nil
	}

	var attempts []*DeliveryAttempt
	for _, ep := range endpoints {
		if ep.Status != "active" || !ep.subscribes(ev.Type) {
			continue
		}
		attempts = append(attempts, m.DeliverToEndpoint(ctx, ep, ev))
	}
	return attempts
}

func (m *Manager) retryingClient(tries *int) *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.HTTPClient = m.httpClient
	c.RetryMax = m.maxRetries
	c.RetryWaitMin = m.waitMin
	c.RetryWaitMax = m.waitMax
	c.Logger = nil
	c.ErrorHandler = retryablehttp.PassthroughErrorHandler
	c.RequestLogHook = func(_ retryablehttp.Logger, _ *http.Request, n int) {
		*tries = n + 1
	}
	return c
}

// DeliverToEndpoint signs ev and POSTs it to ep, retrying transport errors,
// 429 and 5xx responses. The outcome is recorded in the store.
func (m *Manager) DeliverToEndpoint(ctx context.Context, ep *Endpoint, ev Event) *DeliveryAttempt {
	payload, _ := json.Marshal(ev)
	now := time.Now().UTC()

	attempt := &DeliveryAttempt{
		ID:         uuid.NewString(),
		EndpointID: ep.ID,
		EventType:  ev.Type,
		EventID:    ev.ID,
		Status:     "failed",
		CreatedAt:  now,
	}
	defer func() {
		if err := m.store.RecordDelivery(ctx, ep.TenantID, attempt); err != nil {
			m.logger.Error().Err(err).Str("endpoint_id", ep.ID).Msg("record webhook delivery failed")
		}
		evt := m.logger.Info()
		if attempt.Status != "success" {
			evt = m.logger.Warn()
		}
		evt.Str("endpoint_id", ep.ID).
			Str("event_type", ev.Type).
			Int("status_code", attempt.StatusCode).
			Int("attempts", attempt.Attempts).
			Str("error", attempt.Error).
			Msg("webhook delivery")
	}()

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, ep.URL, payload)
	if err != nil {
		attempt.Error = err.Error()
		return attempt
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", "sha256="+SignPayload(payload, ep.Secret))
	req.Header.Set("X-Webhook-ID", ep.ID)
	req.Header.Set("X-Webhook-Event", ev.Type)
	req.Header.Set("X-Webhook-Timestamp", now.Format(time.RFC3339))

	start := time.Now()
	resp, err := m.retryingClient(&attempt.Attempts).Do(req)
	attempt.Duration = time.Since(start)
	if err != nil {
		attempt.Error = err.Error()
		return attempt
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	attempt.StatusCode = resp.StatusCode
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		attempt.Status = "success"
	} else {
		attempt.Error = fmt.Sprintf("non-2xx response: %d", resp.StatusCode)
	}
	return attempt
}

// TestEndpoint sends a synthetic event to verify connectivity.
func (m *Manager) TestEndpoint(ctx context.Context, tenantID, endpointID string) (*DeliveryAttempt, error) {
	ep, err := m.store.GetEndpoint(ctx, tenantID, endpointID)
	if err != nil {
		return nil, err
	}
	ev := Event{
		ID:        uuid.NewString(),
		Type:      EventTest,
		TenantID:  tenantID,
		Data:      json.RawMessage(`{"test":true}`),
		Timestamp: time.Now().UTC(),
	}
	return m.DeliverToEndpoint(ctx, ep, ev), nil
}
